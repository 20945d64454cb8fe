package auth

import (
	"errors"
	"time"
)

// SecurityConfig is the immutable description of how this resource
// validates and advertises bearer token authentication. Transports read it
// to populate the well-known metadata documents; authenticator
// constructors read it to configure validation.
type SecurityConfig struct {
	Issuer          string
	Audience        string
	AuthorizedParty string
	JWKSURL         string // optional override, filled by discovery when available

	// Skew is the clock tolerance for exp/nbf checks (default 60s).
	Skew time.Duration
	// Advertise controls whether the transport publishes metadata under
	// /.well-known/ (default true).
	Advertise bool

	RequiredScopes []string
	ScopeModeAny   bool

	OIDC *OIDCExtra // advertisement-only metadata; never used for validation
}

// OIDCExtra carries optional authorization server metadata surfaced for
// client bootstrapping. None of these fields affect token validation.
type OIDCExtra struct {
	AuthorizationEndpoint             string
	TokenEndpoint                     string
	RegistrationEndpoint              string
	ScopesSupported                   []string
	ResponseTypesSupported            []string
	GrantTypesSupported               []string
	CodeChallengeMethodsSupported     []string
	TokenEndpointAuthMethodsSupported []string
}

// Normalize fills defaults in place.
func (c *SecurityConfig) Normalize() {
	if c.Skew == 0 {
		c.Skew = 60 * time.Second
	}
	c.Advertise = true
}

// Validate returns an error if required invariants are not met.
func (c SecurityConfig) Validate() error {
	if c.Issuer == "" {
		return errors.New("security: issuer required")
	}
	if c.Audience == "" {
		return errors.New("security: audience required")
	}
	return nil
}

// Copy returns a deep copy safe for mutation by the caller.
func (c SecurityConfig) Copy() SecurityConfig {
	dup := c
	dup.RequiredScopes = append([]string(nil), c.RequiredScopes...)
	if c.OIDC != nil {
		ox := *c.OIDC
		ox.ScopesSupported = append([]string(nil), c.OIDC.ScopesSupported...)
		ox.ResponseTypesSupported = append([]string(nil), c.OIDC.ResponseTypesSupported...)
		ox.GrantTypesSupported = append([]string(nil), c.OIDC.GrantTypesSupported...)
		ox.CodeChallengeMethodsSupported = append([]string(nil), c.OIDC.CodeChallengeMethodsSupported...)
		ox.TokenEndpointAuthMethodsSupported = append([]string(nil), c.OIDC.TokenEndpointAuthMethodsSupported...)
		dup.OIDC = &ox
	}
	return dup
}

// SecurityDescriptor exposes security configuration for transports to advertise.
type SecurityDescriptor interface{ SecurityConfig() SecurityConfig }

// SecurityProvider combines validation + descriptor. Returned by constructors.
type SecurityProvider interface {
	Authenticator
	SecurityDescriptor
}
