package jwtauth

import (
	"crypto/rsa"
	"fmt"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
)

// VerifySignature checks the token's RS256 signature against the key set.
// Only RS256 is accepted; there is no algorithm negotiation and no "none".
// All failures past the algorithm gate collapse to ErrSignatureInvalid so
// callers cannot distinguish a missing key from a mismatched signature;
// the wrapped detail is for server-side logs only.
func VerifySignature(tok *Token, set *jose.JSONWebKeySet) error {
	if tok.Header.Algorithm != "RS256" {
		return fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, tok.Header.Algorithm)
	}
	if tok.Header.KeyID == "" {
		return fmt.Errorf("%w: token header carries no key ID", ErrSignatureInvalid)
	}

	keys := set.Key(tok.Header.KeyID)
	if len(keys) == 0 {
		return fmt.Errorf("%w: no key with ID %q", ErrSignatureInvalid, tok.Header.KeyID)
	}

	pub, err := rsaPublicKey(keys[0])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}

	if err := jwt.SigningMethodRS256.Verify(tok.signingInput, tok.Signature, pub); err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	return nil
}

// rsaPublicKey derives an RSA public key from a JWK, preferring the first
// certificate of an x5c chain and falling back to raw modulus/exponent
// key material.
func rsaPublicKey(jwk jose.JSONWebKey) (*rsa.PublicKey, error) {
	if len(jwk.Certificates) > 0 {
		pub, ok := jwk.Certificates[0].PublicKey.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("certificate for key %q is not RSA", jwk.KeyID)
		}
		return pub, nil
	}
	pub, ok := jwk.Key.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("key %q is not RSA", jwk.KeyID)
	}
	return pub, nil
}
