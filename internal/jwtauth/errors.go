package jwtauth

import "errors"

// Decode and validation failures are a rich set internally so logs can say
// exactly what went wrong. Transports collapse them to a boolean
// authorized/unauthorized before anything reaches the caller.
var (
	// ErrMalformedToken indicates the token does not have exactly three
	// dot-separated segments.
	ErrMalformedToken = errors.New("jwtauth: malformed token")

	// ErrUnsupportedToken indicates a five-segment (encrypted) JWT, which
	// is not handled.
	ErrUnsupportedToken = errors.New("jwtauth: unsupported token format")

	// ErrInvalidBase64 indicates a segment that is not valid base64url.
	ErrInvalidBase64 = errors.New("jwtauth: invalid base64url segment")

	// ErrInvalidJSON indicates a segment that decoded but is not valid JSON.
	ErrInvalidJSON = errors.New("jwtauth: invalid JSON segment")

	// ErrTokenExpired indicates the exp claim is past the allowed skew.
	ErrTokenExpired = errors.New("jwtauth: token expired")

	// ErrTokenNotYetValid indicates the nbf claim is too far in the future.
	ErrTokenNotYetValid = errors.New("jwtauth: token not yet valid")

	// ErrInvalidIssuer indicates an iss claim mismatch.
	ErrInvalidIssuer = errors.New("jwtauth: invalid issuer")

	// ErrInvalidAudience indicates the expected audience is absent from aud.
	ErrInvalidAudience = errors.New("jwtauth: invalid audience")

	// ErrInvalidAuthorizedParty indicates an azp claim mismatch.
	ErrInvalidAuthorizedParty = errors.New("jwtauth: invalid authorized party")

	// ErrUnsupportedAlgorithm indicates an alg other than RS256.
	ErrUnsupportedAlgorithm = errors.New("jwtauth: unsupported signing algorithm")

	// ErrSignatureInvalid is the single outcome for all signature-stage
	// failures (missing or unknown key, bad key material, mismatch), so an
	// unauthenticated caller cannot probe which sub-step failed.
	ErrSignatureInvalid = errors.New("jwtauth: signature verification failed")

	// ErrUnauthorized is the collapsed outcome transports surface for any
	// token that failed validation.
	ErrUnauthorized = errors.New("jwtauth: unauthorized")

	// ErrInsufficientScope indicates a valid token that did not satisfy
	// the required scopes policy; callers should respond with HTTP 403.
	ErrInsufficientScope = errors.New("jwtauth: insufficient_scope")
)
