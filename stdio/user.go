package stdio

import (
	"os/user"
)

// UserProvider resolves the user ID bound to the stdio peer. Stdio
// carries no bearer token; the process owner stands in as the principal.
type UserProvider interface {
	CurrentUserID() (string, error)
}

// StaticUserProvider returns a fixed user ID, useful for tests and
// containerized deployments where the OS user is meaningless.
type StaticUserProvider string

func (p StaticUserProvider) CurrentUserID() (string, error) {
	return string(p), nil
}

// OSUserProvider resolves the user ID from the operating system's
// current user, preferring the username over the numeric UID.
type OSUserProvider struct{}

func (OSUserProvider) CurrentUserID() (string, error) {
	u, err := user.Current()
	if err != nil {
		return "", err
	}
	if u.Username != "" {
		return u.Username, nil
	}
	return u.Uid, nil
}
