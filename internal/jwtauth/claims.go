package jwtauth

import (
	"fmt"
	"time"
)

// DefaultSkew is the clock-skew tolerance applied to exp and nbf checks
// when no explicit skew is configured.
const DefaultSkew = 60 * time.Second

// ValidationOptions carries the expectations claims are checked against.
// A zero-value field means that claim is not checked.
type ValidationOptions struct {
	Issuer          string
	Audience        string
	AuthorizedParty string
	Skew            time.Duration
}

func (o ValidationOptions) skew() time.Duration {
	if o.Skew > 0 {
		return o.Skew
	}
	return DefaultSkew
}

// ValidateClaims checks the token's registered claims against opts at the
// given reference time. Each check fails with its own error naming the
// expected and actual values; claims without a configured expectation are
// not checked.
func ValidateClaims(claims *Claims, at time.Time, opts ValidationOptions) error {
	skew := opts.skew()

	if claims.Expiry != nil {
		if at.Sub(claims.Expiry.Time) > skew {
			return fmt.Errorf("%w: expired at %s, now %s", ErrTokenExpired, claims.Expiry.Time.Format(time.RFC3339), at.Format(time.RFC3339))
		}
	}

	if claims.NotBefore != nil {
		if claims.NotBefore.Time.Sub(at) > skew {
			return fmt.Errorf("%w: valid from %s, now %s", ErrTokenNotYetValid, claims.NotBefore.Time.Format(time.RFC3339), at.Format(time.RFC3339))
		}
	}

	if opts.Issuer != "" && claims.Issuer != opts.Issuer {
		return fmt.Errorf("%w: expected %q, got %q", ErrInvalidIssuer, opts.Issuer, claims.Issuer)
	}

	if opts.Audience != "" && !containsString(claims.Audience, opts.Audience) {
		return fmt.Errorf("%w: expected %q, got %v", ErrInvalidAudience, opts.Audience, []string(claims.Audience))
	}

	if opts.AuthorizedParty != "" && claims.AuthorizedParty != opts.AuthorizedParty {
		return fmt.Errorf("%w: expected %q, got %q", ErrInvalidAuthorizedParty, opts.AuthorizedParty, claims.AuthorizedParty)
	}

	return nil
}

func containsString(haystack []string, want string) bool {
	for _, s := range haystack {
		if s == want {
			return true
		}
	}
	return false
}
