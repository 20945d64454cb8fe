// Package auth provides pluggable bearer-token authentication for the
// streaming HTTP transport. Servers that delegate authorization to an
// external OAuth 2.0 / OIDC authorization server plug one of the
// constructors in this package into the transport.
//
// The public surface stays small: an Authenticator validates an incoming
// bearer token string and returns a UserInfo (or an error). The transport
// extracts the token from the HTTP request and maps sentinel errors into
// RFC 6750 challenges.
//
// # Constructors
//
// NewVerifier builds the default authenticator: explicit JWT decoding,
// claims validation, and RS256 signature verification against keys fetched
// through a per-issuer JWKS cache. NewManaged delegates key refresh to a
// background JWKS poller instead. NewFromDiscovery additionally resolves
// the issuer's OIDC discovery document so the transport can advertise
// authorization server metadata.
//
// Example:
//
//	ctx := context.Background()
//	authn, err := auth.NewVerifier("https://issuer.example", "https://mcp.example/api",
//	    auth.WithRequiredScopes("mcp:read", "mcp:write"),
//	)
//	if err != nil { log.Fatal(err) }
//
//	ui, err := authn.CheckAuthentication(r.Context(), bearerToken)
//	if errors.Is(err, auth.ErrUnauthorized) { /* 401 challenge */ }
//	if errors.Is(err, auth.ErrInsufficientScope) { /* 403 challenge */ }
//	userID := ui.UserID()
//
// # Errors
//
// ErrUnauthorized signals the token is invalid (signature, expiry,
// audience, and so on); the specific failure is never exposed to the
// caller. ErrInsufficientScope signals successful authentication but a
// missing required scope.
package auth
