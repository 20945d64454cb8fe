package jwtauth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
)

// DiscoveryMetadata exposes advertisement-only endpoints learned via OIDC
// discovery. Transports use them to populate the well-known documents.
type DiscoveryMetadata interface {
	AuthorizationEndpoint() string
	TokenEndpoint() string
	RegistrationEndpoint() string
	JwksURI() string
	Scopes() []string
	ResponseTypes() []string
	GrantTypes() []string
	CodeChallengeMethods() []string
	TokenEndpointAuthMethods() []string
}

type discoveryAuthenticator struct {
	*Verifier

	authorizationEndpoint string
	tokenEndpoint         string
	registrationEndpoint  string
	jwksURI               string
	scopes                []string
	responseTypes         []string
	grantTypes            []string
	codeChallengeMethods  []string
	tokenAuthMethods      []string
}

// NewFromDiscovery resolves the issuer's OIDC discovery document and
// builds a Verifier-backed authenticator plus the advertisement metadata
// transports need for their well-known endpoints. JWKS keys go through
// the explicit pipeline's per-issuer cache.
func NewFromDiscovery(ctx context.Context, cfg *Config, opts ...VerifierOption) (*discoveryAuthenticator, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if cfg.Issuer == "" {
		return nil, errors.New("issuer is required")
	}

	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery failed: %w", err)
	}
	var meta struct {
		Issuer        string   `json:"issuer"`
		JwksURI       string   `json:"jwks_uri"`
		Authorization string   `json:"authorization_endpoint"`
		Token         string   `json:"token_endpoint"`
		Registration  string   `json:"registration_endpoint"`
		ResponseTypes []string `json:"response_types_supported"`
		Scopes        []string `json:"scopes_supported"`
		GrantTypes    []string `json:"grant_types_supported"`
		CodeChallenge []string `json:"code_challenge_methods_supported"`
		TokenAuth     []string `json:"token_endpoint_auth_methods_supported"`
	}
	if err := provider.Claims(&meta); err != nil {
		return nil, fmt.Errorf("invalid discovery metadata: %w", err)
	}

	var missing []string
	if meta.JwksURI == "" {
		missing = append(missing, "jwks_uri")
	}
	if meta.Authorization == "" {
		missing = append(missing, "authorization_endpoint")
	}
	if meta.Token == "" {
		missing = append(missing, "token_endpoint")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("discovery incomplete: missing %s", strings.Join(missing, ", "))
	}

	verifier, err := NewVerifier(cfg, nil, opts...)
	if err != nil {
		return nil, err
	}

	return &discoveryAuthenticator{
		Verifier:              verifier,
		authorizationEndpoint: meta.Authorization,
		tokenEndpoint:         meta.Token,
		registrationEndpoint:  meta.Registration,
		jwksURI:               meta.JwksURI,
		scopes:                append([]string(nil), meta.Scopes...),
		responseTypes:         append([]string(nil), meta.ResponseTypes...),
		grantTypes:            append([]string(nil), meta.GrantTypes...),
		codeChallengeMethods:  append([]string(nil), meta.CodeChallenge...),
		tokenAuthMethods:      append([]string(nil), meta.TokenAuth...),
	}, nil
}

func (a *discoveryAuthenticator) AuthorizationEndpoint() string { return a.authorizationEndpoint }
func (a *discoveryAuthenticator) TokenEndpoint() string         { return a.tokenEndpoint }
func (a *discoveryAuthenticator) RegistrationEndpoint() string  { return a.registrationEndpoint }
func (a *discoveryAuthenticator) JwksURI() string               { return a.jwksURI }
func (a *discoveryAuthenticator) Scopes() []string              { return append([]string(nil), a.scopes...) }
func (a *discoveryAuthenticator) ResponseTypes() []string {
	return append([]string(nil), a.responseTypes...)
}
func (a *discoveryAuthenticator) GrantTypes() []string {
	return append([]string(nil), a.grantTypes...)
}
func (a *discoveryAuthenticator) CodeChallengeMethods() []string {
	return append([]string(nil), a.codeChallengeMethods...)
}
func (a *discoveryAuthenticator) TokenEndpointAuthMethods() []string {
	return append([]string(nil), a.tokenAuthMethods...)
}

var (
	_ Authenticator     = (*discoveryAuthenticator)(nil)
	_ DiscoveryMetadata = (*discoveryAuthenticator)(nil)
)
