package jwtauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	keyfunc "github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// managedAuthenticator validates tokens against a statically configured
// JWKS URI with background key refresh handled by keyfunc. It trades the
// explicit pipeline's TTL cache for automatic rotation handling.
type managedAuthenticator struct {
	cfg     *Config
	keyfunc jwt.Keyfunc
}

// NewManaged constructs an authenticator whose JWKS is auto-refreshed from
// the given URI. Refresh continues until ctx is cancelled.
func NewManaged(ctx context.Context, cfg *Config, jwksURI string) (*managedAuthenticator, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if cfg.Issuer == "" {
		return nil, errors.New("issuer is required")
	}
	if cfg.Audience == "" {
		return nil, errors.New("audience is required")
	}
	if jwksURI == "" {
		return nil, errors.New("jwks uri required")
	}

	kf, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURI})
	if err != nil {
		return nil, fmt.Errorf("jwks init failed: %w", err)
	}

	return &managedAuthenticator{cfg: cfg, keyfunc: func(t *jwt.Token) (any, error) {
		if alg := t.Method.Alg(); alg != "RS256" {
			return nil, fmt.Errorf("disallowed alg: %s", alg)
		}
		return kf.Keyfunc(t)
	}}, nil
}

// CheckAuthentication implements Authenticator.
func (a *managedAuthenticator) CheckAuthentication(ctx context.Context, tok string) (UserInfo, error) {
	if tok == "" {
		return nil, fmt.Errorf("%w: empty token", ErrUnauthorized)
	}

	opts := ValidationOptions{
		Issuer:          a.cfg.Issuer,
		Audience:        a.cfg.Audience,
		AuthorizedParty: a.cfg.AuthorizedParty,
		Skew:            a.cfg.Skew,
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(a.cfg.Issuer),
		jwt.WithLeeway(opts.skew()),
	)
	parsed, err := parser.Parse(tok, a.keyfunc)
	if err != nil {
		return nil, fmt.Errorf("%w: token parse/verify failed: %v", ErrUnauthorized, err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%w: invalid claims type", ErrUnauthorized)
	}

	if !audContains(claims["aud"], a.cfg.Audience) {
		return nil, fmt.Errorf("%w: audience mismatch", ErrUnauthorized)
	}
	if a.cfg.AuthorizedParty != "" {
		if azp, _ := claims["azp"].(string); azp != a.cfg.AuthorizedParty {
			return nil, fmt.Errorf("%w: authorized party mismatch", ErrUnauthorized)
		}
	}

	scope, _ := claims["scope"].(string)
	if err := checkScopes(scope, a.cfg.RequiredScopes, a.cfg.ScopeModeAny); err != nil {
		return nil, err
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, fmt.Errorf("%w: missing sub", ErrUnauthorized)
	}

	payload, err := json.Marshal(claims)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	return &userInfo{sub: sub, payload: payload}, nil
}

var _ Authenticator = (*managedAuthenticator)(nil)

func audContains(aud any, want string) bool {
	switch v := aud.(type) {
	case string:
		return v == want
	case []any:
		for _, e := range v {
			if s, ok := e.(string); ok && s == want {
				return true
			}
		}
	case []string:
		for _, s := range v {
			if s == want {
				return true
			}
		}
	}
	return false
}
