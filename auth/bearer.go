package auth

import (
	"context"
	"errors"
	"time"

	"github.com/arcwell/mcpengine/internal/jwtauth"
	"github.com/arcwell/mcpengine/jwks"
)

// Option configures optional aspects of a bearer token authenticator.
type Option func(*jwtauth.Config)

// WithRequiredScopes requires all of the provided scopes to be present in
// the space-delimited "scope" claim.
func WithRequiredScopes(scopes ...string) Option {
	return func(c *jwtauth.Config) {
		c.RequiredScopes = append([]string(nil), scopes...)
		c.ScopeModeAny = false
	}
}

// WithAnyRequiredScope requires at least one of the provided scopes to be present.
func WithAnyRequiredScope(scopes ...string) Option {
	return func(c *jwtauth.Config) {
		c.RequiredScopes = append([]string(nil), scopes...)
		c.ScopeModeAny = true
	}
}

// WithAuthorizedParty requires an exact azp claim match.
func WithAuthorizedParty(azp string) Option {
	return func(c *jwtauth.Config) { c.AuthorizedParty = azp }
}

// WithSkew sets clock skew tolerance for exp/nbf validation.
func WithSkew(d time.Duration) Option {
	return func(c *jwtauth.Config) { c.Skew = d }
}

// NewVerifier returns an Authenticator that validates tokens with the
// explicit pipeline: decode, claims validation, then RS256 signature
// verification against keys fetched through a shared per-issuer cache.
func NewVerifier(issuer, audience string, opts ...Option) (SecurityProvider, error) {
	cfg := &jwtauth.Config{Issuer: issuer, Audience: audience}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Audience == "" {
		return nil, errors.New("audience is required")
	}

	internal, err := jwtauth.NewVerifier(cfg, jwks.NewCache())
	if err != nil {
		return nil, err
	}
	return &adapter{a: internal, sec: securityFromConfig(cfg)}, nil
}

// NewManaged returns an Authenticator whose JWKS is auto-refreshed from a
// statically configured URI. Key refresh stops when ctx is cancelled.
func NewManaged(ctx context.Context, issuer, audience, jwksURI string, opts ...Option) (SecurityProvider, error) {
	cfg := &jwtauth.Config{Issuer: issuer, Audience: audience}
	for _, opt := range opts {
		opt(cfg)
	}

	internal, err := jwtauth.NewManaged(ctx, cfg, jwksURI)
	if err != nil {
		return nil, err
	}
	sec := securityFromConfig(cfg)
	sec.JWKSURL = jwksURI
	return &adapter{a: internal, sec: sec}, nil
}

// NewFromDiscovery returns an Authenticator configured via the issuer's
// OIDC discovery document. Beyond validation, the discovered endpoints are
// carried on the SecurityConfig so the transport can mirror authorization
// server metadata under /.well-known/.
func NewFromDiscovery(ctx context.Context, issuer, audience string, opts ...Option) (SecurityProvider, error) {
	cfg := &jwtauth.Config{Issuer: issuer, Audience: audience}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Audience == "" {
		return nil, errors.New("audience is required")
	}

	internal, err := jwtauth.NewFromDiscovery(ctx, cfg)
	if err != nil {
		return nil, err
	}

	sec := securityFromConfig(cfg)
	if dm, ok := any(internal).(jwtauth.DiscoveryMetadata); ok {
		sec.JWKSURL = dm.JwksURI()
		sec.OIDC = &OIDCExtra{
			AuthorizationEndpoint:             dm.AuthorizationEndpoint(),
			TokenEndpoint:                     dm.TokenEndpoint(),
			RegistrationEndpoint:              dm.RegistrationEndpoint(),
			ScopesSupported:                   dm.Scopes(),
			ResponseTypesSupported:            dm.ResponseTypes(),
			GrantTypesSupported:               dm.GrantTypes(),
			CodeChallengeMethodsSupported:     dm.CodeChallengeMethods(),
			TokenEndpointAuthMethodsSupported: dm.TokenEndpointAuthMethods(),
		}
	}
	return &adapter{a: internal, sec: sec}, nil
}

func securityFromConfig(cfg *jwtauth.Config) SecurityConfig {
	sec := SecurityConfig{
		Issuer:          cfg.Issuer,
		Audience:        cfg.Audience,
		AuthorizedParty: cfg.AuthorizedParty,
		Skew:            cfg.Skew,
		RequiredScopes:  append([]string(nil), cfg.RequiredScopes...),
		ScopeModeAny:    cfg.ScopeModeAny,
	}
	sec.Normalize()
	return sec
}

// adapter wraps the internal authenticator to satisfy the public interface.
type adapter struct {
	a   jwtauth.Authenticator
	sec SecurityConfig
}

func (ad *adapter) CheckAuthentication(ctx context.Context, tok string) (UserInfo, error) {
	ui, err := ad.a.CheckAuthentication(ctx, tok)
	if err != nil {
		if errors.Is(err, jwtauth.ErrInsufficientScope) {
			return nil, errors.Join(ErrInsufficientScope, err)
		}
		return nil, errors.Join(ErrUnauthorized, err)
	}
	return userInfoAdapter{ui: ui}, nil
}

func (ad *adapter) SecurityConfig() SecurityConfig { return ad.sec.Copy() }

type userInfoAdapter struct{ ui jwtauth.UserInfo }

func (u userInfoAdapter) UserID() string       { return u.ui.UserID() }
func (u userInfoAdapter) Claims(ref any) error { return u.ui.Claims(ref) }
