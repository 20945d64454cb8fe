package jwtauth

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Header is the decoded JOSE header of a token.
type Header struct {
	Algorithm string `json:"alg"`
	Type      string `json:"typ,omitempty"`
	KeyID     string `json:"kid,omitempty"`
}

// Claims is the decoded payload of a token. Only the registered claims the
// validator inspects are typed; the full payload stays available through
// Token.Payload.
type Claims struct {
	Issuer          string           `json:"iss,omitempty"`
	Subject         string           `json:"sub,omitempty"`
	Audience        jwt.ClaimStrings `json:"aud,omitempty"`
	Expiry          *jwt.NumericDate `json:"exp,omitempty"`
	NotBefore       *jwt.NumericDate `json:"nbf,omitempty"`
	IssuedAt        *jwt.NumericDate `json:"iat,omitempty"`
	Scope           string           `json:"scope,omitempty"`
	AuthorizedParty string           `json:"azp,omitempty"`
}

// Token is a decoded but not yet verified JWT.
type Token struct {
	Raw       string
	Header    Header
	Claims    Claims
	Signature []byte

	// Payload is the decoded claims JSON, kept so callers can project the
	// full claim set onto their own types.
	Payload []byte

	// signingInput is header.payload as it appeared on the wire; the
	// signature check runs over these exact bytes.
	signingInput string
}

// Decode splits and decodes a compact-serialized JWT without verifying
// anything. Five segments means an encrypted JWT, which is rejected as
// unsupported; any count other than three is malformed.
func Decode(raw string) (*Token, error) {
	parts := strings.Split(raw, ".")
	switch len(parts) {
	case 3:
	case 5:
		return nil, fmt.Errorf("%w: encrypted JWTs are not handled", ErrUnsupportedToken)
	default:
		return nil, fmt.Errorf("%w: expected 3 segments, got %d", ErrMalformedToken, len(parts))
	}

	headerBytes, err := decodeSegment(parts[0])
	if err != nil {
		return nil, fmt.Errorf("header segment: %w", err)
	}
	var header Header
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrInvalidJSON, err)
	}

	payloadBytes, err := decodeSegment(parts[1])
	if err != nil {
		return nil, fmt.Errorf("payload segment: %w", err)
	}
	var claims Claims
	if err := json.Unmarshal(payloadBytes, &claims); err != nil {
		return nil, fmt.Errorf("%w: payload: %v", ErrInvalidJSON, err)
	}

	signature, err := decodeSegment(parts[2])
	if err != nil {
		return nil, fmt.Errorf("signature segment: %w", err)
	}

	return &Token{
		Raw:          raw,
		Header:       header,
		Claims:       claims,
		Signature:    signature,
		Payload:      payloadBytes,
		signingInput: parts[0] + "." + parts[1],
	}, nil
}

// decodeSegment base64url-decodes one token segment, tolerating both
// padded and unpadded encodings.
func decodeSegment(seg string) ([]byte, error) {
	if rem := len(seg) % 4; rem > 0 {
		seg += strings.Repeat("=", 4-rem)
	}
	b, err := base64.URLEncoding.DecodeString(seg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBase64, err)
	}
	return b, nil
}
