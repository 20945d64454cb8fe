// Package jwtauth validates bearer access tokens. The Verifier implements
// the explicit decode / claims / RS256-signature pipeline with keys
// resolved through a per-issuer JWKS cache; managed and discovery
// authenticators delegate key refresh to keyfunc and OIDC discovery
// instead. All three satisfy the same Authenticator contract.
package jwtauth

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/arcwell/mcpengine/jwks"
)

// Config controls validation behavior for access tokens.
type Config struct {
	Issuer string
	// Audience is the audience this server expects to find in tokens.
	Audience string
	// AuthorizedParty, when set, is matched exactly against azp.
	AuthorizedParty string
	// RequiredScopes must all be present in the token's scope claim unless
	// ScopeModeAny is set, in which case any one suffices.
	RequiredScopes []string
	ScopeModeAny   bool
	// Skew is the clock-skew tolerance for exp/nbf checks. Zero means
	// DefaultSkew.
	Skew time.Duration
}

// UserInfo exposes the validated token's subject and raw claims.
type UserInfo interface {
	UserID() string
	Claims(ref any) error
}

type userInfo struct {
	sub     string
	payload []byte
}

func (u *userInfo) UserID() string { return u.sub }
func (u *userInfo) Claims(ref any) error {
	return json.Unmarshal(u.payload, ref)
}

// Authenticator validates access tokens and returns a minimal UserInfo.
// Implementations MUST perform signature, issuer, audience and time
// validations.
type Authenticator interface {
	CheckAuthentication(ctx context.Context, tok string) (UserInfo, error)
}

// Verifier validates tokens with the explicit pipeline: decode, claims
// validation, then signature verification, short-circuiting on the first
// failure. Keys come from the JWKS cache keyed by the expected issuer.
type Verifier struct {
	cfg   *Config
	cache *jwks.Cache
	now   func() time.Time
}

// VerifierOption customizes a Verifier.
type VerifierOption func(*Verifier)

// WithClock overrides the reference time source. Intended for tests.
func WithClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) { v.now = now }
}

// NewVerifier builds a Verifier over the given key cache.
func NewVerifier(cfg *Config, cache *jwks.Cache, opts ...VerifierOption) (*Verifier, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Issuer == "" {
		return nil, fmt.Errorf("issuer is required")
	}
	if cache == nil {
		cache = jwks.NewCache()
	}
	v := &Verifier{cfg: cfg, cache: cache, now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Verify runs the full validation pipeline and returns the decoded token.
// Errors carry the specific failure for logging; callers facing the
// network must collapse them via CheckAuthentication.
func (v *Verifier) Verify(ctx context.Context, raw string) (*Token, error) {
	tok, err := Decode(raw)
	if err != nil {
		return nil, err
	}

	opts := ValidationOptions{
		Issuer:          v.cfg.Issuer,
		Audience:        v.cfg.Audience,
		AuthorizedParty: v.cfg.AuthorizedParty,
		Skew:            v.cfg.Skew,
	}
	if err := ValidateClaims(&tok.Claims, v.now(), opts); err != nil {
		return nil, err
	}

	set, err := v.cache.Get(ctx, v.cfg.Issuer)
	if err != nil {
		return nil, err
	}

	if err := VerifySignature(tok, set); err != nil {
		return nil, err
	}

	return tok, nil
}

// CheckAuthentication implements Authenticator. Validation failures of any
// flavor collapse to ErrUnauthorized; only the scope policy surfaces
// separately so transports can answer 403 instead of 401.
func (v *Verifier) CheckAuthentication(ctx context.Context, raw string) (UserInfo, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: empty token", ErrUnauthorized)
	}

	tok, err := v.Verify(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	if err := checkScopes(tok.Claims.Scope, v.cfg.RequiredScopes, v.cfg.ScopeModeAny); err != nil {
		return nil, err
	}

	if tok.Claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing sub", ErrUnauthorized)
	}

	return &userInfo{sub: tok.Claims.Subject, payload: tok.Payload}, nil
}

var _ Authenticator = (*Verifier)(nil)

func checkScopes(scopeClaim string, required []string, anyMode bool) error {
	if len(required) == 0 {
		return nil
	}
	have := map[string]bool{}
	for _, s := range strings.Fields(scopeClaim) {
		have[s] = true
	}
	if anyMode {
		for _, want := range required {
			if have[want] {
				return nil
			}
		}
		return ErrInsufficientScope
	}
	for _, want := range required {
		if !have[want] {
			return ErrInsufficientScope
		}
	}
	return nil
}
