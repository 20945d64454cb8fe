// Package authtest provides stub authenticators for tests and local
// development where real bearer tokens are not available.
package authtest

import (
	"context"

	"github.com/arcwell/mcpengine/auth"
)

// NoAuth accepts every token and reports a fixed user. Never use it
// outside tests or local development.
type NoAuth struct {
	UserID string
}

// NewNoAuth creates a NoAuth authenticator. An empty userID defaults to
// "test-user".
func NewNoAuth(userID string) *NoAuth {
	if userID == "" {
		userID = "test-user"
	}
	return &NoAuth{UserID: userID}
}

// CheckAuthentication implements auth.Authenticator; it always succeeds.
func (n *NoAuth) CheckAuthentication(ctx context.Context, tok string) (auth.UserInfo, error) {
	return &noAuthUserInfo{userID: n.UserID}, nil
}

var _ auth.Authenticator = (*NoAuth)(nil)

type noAuthUserInfo struct {
	userID string
}

func (n *noAuthUserInfo) UserID() string { return n.userID }

func (n *noAuthUserInfo) Claims(ref any) error { return nil }
