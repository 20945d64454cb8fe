package jwtauth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"

	"github.com/arcwell/mcpengine/jwks"
)

func genRSA(t *testing.T) (*rsa.PrivateKey, string, []byte) {
	t.Helper()
	pk, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("gen key: %v", err)
	}
	kid := "test-key"
	jwk := jose.JSONWebKey{Key: &pk.PublicKey, KeyID: kid, Algorithm: "RS256", Use: "sig"}
	set := struct {
		Keys []jose.JSONWebKey `json:"keys"`
	}{Keys: []jose.JSONWebKey{jwk}}
	b, err := json.Marshal(set)
	if err != nil {
		t.Fatalf("marshal jwks: %v", err)
	}
	return pk, kid, b
}

func signToken(t *testing.T, pk *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = kid
	s, err := tok.SignedString(pk)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

// newIssuer serves a JWKS document at the path the key cache fetches.
func newIssuer(t *testing.T, keysJSON []byte) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/jwks.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(keysJSON)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func segment(v any) string {
	b, _ := json.Marshal(v)
	return base64.RawURLEncoding.EncodeToString(b)
}

func TestDecodeSegmentCounts(t *testing.T) {
	if _, err := Decode("a.b"); !errors.Is(err, ErrMalformedToken) {
		t.Fatalf("2 segments: got %v, want ErrMalformedToken", err)
	}
	if _, err := Decode("a.b.c.d"); !errors.Is(err, ErrMalformedToken) {
		t.Fatalf("4 segments: got %v, want ErrMalformedToken", err)
	}
	if _, err := Decode("a.b.c.d.e"); !errors.Is(err, ErrUnsupportedToken) {
		t.Fatalf("5 segments: got %v, want ErrUnsupportedToken", err)
	}
}

func TestDecodeDistinguishesBase64FromJSON(t *testing.T) {
	header := segment(map[string]string{"alg": "RS256", "kid": "k1"})
	payload := segment(map[string]string{"iss": "https://issuer.example.com"})

	if _, err := Decode("!!!." + payload + ".sig"); !errors.Is(err, ErrInvalidBase64) {
		t.Fatalf("bad base64 header: got %v, want ErrInvalidBase64", err)
	}

	notJSON := base64.RawURLEncoding.EncodeToString([]byte("not json"))
	if _, err := Decode(header + "." + notJSON + "."); !errors.Is(err, ErrInvalidJSON) {
		t.Fatalf("bad JSON payload: got %v, want ErrInvalidJSON", err)
	}
}

func TestDecodeHappyPath(t *testing.T) {
	pk, kid, _ := genRSA(t)
	raw := signToken(t, pk, kid, jwt.MapClaims{
		"iss": "https://issuer.example.com",
		"sub": "user-123",
		"aud": []string{"a", "b"},
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	tok, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if tok.Header.Algorithm != "RS256" || tok.Header.KeyID != kid {
		t.Fatalf("header = %+v", tok.Header)
	}
	if tok.Claims.Issuer != "https://issuer.example.com" || tok.Claims.Subject != "user-123" {
		t.Fatalf("claims = %+v", tok.Claims)
	}
	if len(tok.Claims.Audience) != 2 {
		t.Fatalf("audience = %v", tok.Claims.Audience)
	}
	if len(tok.Signature) == 0 {
		t.Fatal("signature bytes missing")
	}
}

func TestValidateClaimsExpirySkew(t *testing.T) {
	now := time.Now()

	expired := Claims{Expiry: jwt.NewNumericDate(now.Add(-61 * time.Second))}
	if err := ValidateClaims(&expired, now, ValidationOptions{}); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("exp=now-61s: got %v, want ErrTokenExpired", err)
	}

	inSkew := Claims{Expiry: jwt.NewNumericDate(now.Add(-59 * time.Second))}
	if err := ValidateClaims(&inSkew, now, ValidationOptions{}); err != nil {
		t.Fatalf("exp=now-59s: got %v, want nil", err)
	}
}

func TestValidateClaimsNotBefore(t *testing.T) {
	now := time.Now()

	future := Claims{NotBefore: jwt.NewNumericDate(now.Add(2 * time.Minute))}
	if err := ValidateClaims(&future, now, ValidationOptions{}); !errors.Is(err, ErrTokenNotYetValid) {
		t.Fatalf("nbf=now+2m: got %v, want ErrTokenNotYetValid", err)
	}

	within := Claims{NotBefore: jwt.NewNumericDate(now.Add(30 * time.Second))}
	if err := ValidateClaims(&within, now, ValidationOptions{}); err != nil {
		t.Fatalf("nbf=now+30s: got %v, want nil", err)
	}
}

func TestValidateClaimsIssuerAndAudience(t *testing.T) {
	now := time.Now()
	claims := Claims{
		Issuer:   "https://issuer.example.com",
		Audience: jwt.ClaimStrings{"a", "b"},
	}

	if err := ValidateClaims(&claims, now, ValidationOptions{Issuer: "https://other.example.com"}); !errors.Is(err, ErrInvalidIssuer) {
		t.Fatalf("wrong issuer: got %v, want ErrInvalidIssuer", err)
	}
	if err := ValidateClaims(&claims, now, ValidationOptions{Audience: "b"}); err != nil {
		t.Fatalf("aud [a b] vs b: got %v, want nil", err)
	}
	if err := ValidateClaims(&claims, now, ValidationOptions{Audience: "c"}); !errors.Is(err, ErrInvalidAudience) {
		t.Fatalf("aud [a b] vs c: got %v, want ErrInvalidAudience", err)
	}
}

func TestValidateClaimsAuthorizedParty(t *testing.T) {
	claims := Claims{AuthorizedParty: "client-1"}

	if err := ValidateClaims(&claims, time.Now(), ValidationOptions{AuthorizedParty: "client-1"}); err != nil {
		t.Fatalf("matching azp: got %v, want nil", err)
	}
	if err := ValidateClaims(&claims, time.Now(), ValidationOptions{AuthorizedParty: "client-2"}); !errors.Is(err, ErrInvalidAuthorizedParty) {
		t.Fatalf("wrong azp: got %v, want ErrInvalidAuthorizedParty", err)
	}

	// Permissive by omission: no expectations configured, nothing checked.
	if err := ValidateClaims(&claims, time.Now(), ValidationOptions{}); err != nil {
		t.Fatalf("no expectations: got %v, want nil", err)
	}
}

func TestVerifySignatureRejectsNonRS256(t *testing.T) {
	_, _, keysJSON := genRSA(t)
	var set jose.JSONWebKeySet
	if err := json.Unmarshal(keysJSON, &set); err != nil {
		t.Fatalf("unmarshal set: %v", err)
	}

	raw := segment(map[string]string{"alg": "HS256", "kid": "test-key"}) + "." + segment(map[string]string{"sub": "u"}) + "." + base64.RawURLEncoding.EncodeToString([]byte("sig"))
	tok, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if err := VerifySignature(tok, &set); !errors.Is(err, ErrUnsupportedAlgorithm) {
		t.Fatalf("HS256: got %v, want ErrUnsupportedAlgorithm", err)
	}
}

func TestVerifySignatureOutcomes(t *testing.T) {
	pk, kid, keysJSON := genRSA(t)
	var set jose.JSONWebKeySet
	if err := json.Unmarshal(keysJSON, &set); err != nil {
		t.Fatalf("unmarshal set: %v", err)
	}

	raw := signToken(t, pk, kid, jwt.MapClaims{"sub": "user-123"})
	tok, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if err := VerifySignature(tok, &set); err != nil {
		t.Fatalf("valid signature: %v", err)
	}

	// Unknown key ID collapses to the same outcome as a bad signature.
	unknown := signToken(t, pk, "other-key", jwt.MapClaims{"sub": "user-123"})
	tok2, err := Decode(unknown)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if err := VerifySignature(tok2, &set); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("unknown kid: got %v, want ErrSignatureInvalid", err)
	}

	// Tampered payload.
	tampered := segment(map[string]string{"alg": "RS256", "kid": kid}) + "." + segment(map[string]string{"sub": "attacker"}) + "." + base64.RawURLEncoding.EncodeToString(tok.Signature)
	tok3, err := Decode(tampered)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if err := VerifySignature(tok3, &set); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("tampered payload: got %v, want ErrSignatureInvalid", err)
	}
}

func TestVerifierEndToEnd(t *testing.T) {
	pk, kid, keysJSON := genRSA(t)
	issuer := newIssuer(t, keysJSON)

	aud := "https://api.example.com/mcp"
	v, err := NewVerifier(&Config{Issuer: issuer.URL, Audience: aud}, jwks.NewCache())
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	now := time.Now()
	raw := signToken(t, pk, kid, jwt.MapClaims{
		"iss":   issuer.URL,
		"sub":   "user-123",
		"aud":   aud,
		"exp":   now.Add(time.Hour).Unix(),
		"iat":   now.Unix(),
		"scope": "mcp:read mcp:write",
	})

	ui, err := v.CheckAuthentication(context.Background(), raw)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if ui.UserID() != "user-123" {
		t.Fatalf("user = %s, want user-123", ui.UserID())
	}

	var projected struct {
		Scope string `json:"scope"`
	}
	if err := ui.Claims(&projected); err != nil {
		t.Fatalf("claims: %v", err)
	}
	if projected.Scope != "mcp:read mcp:write" {
		t.Fatalf("scope = %q", projected.Scope)
	}
}

func TestVerifierCollapsesFailures(t *testing.T) {
	pk, kid, keysJSON := genRSA(t)
	issuer := newIssuer(t, keysJSON)

	aud := "https://api.example.com/mcp"
	v, err := NewVerifier(&Config{Issuer: issuer.URL, Audience: aud}, jwks.NewCache())
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	cases := []struct {
		name string
		tok  string
	}{
		{name: "empty", tok: ""},
		{name: "garbage", tok: "not-a-jwt"},
		{name: "expired", tok: signToken(t, pk, kid, jwt.MapClaims{
			"iss": issuer.URL, "sub": "u", "aud": aud,
			"exp": time.Now().Add(-time.Hour).Unix(),
		})},
		{name: "wrong audience", tok: signToken(t, pk, kid, jwt.MapClaims{
			"iss": issuer.URL, "sub": "u", "aud": "https://elsewhere.example.com",
			"exp": time.Now().Add(time.Hour).Unix(),
		})},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := v.CheckAuthentication(context.Background(), tc.tok); !errors.Is(err, ErrUnauthorized) {
				t.Fatalf("got %v, want ErrUnauthorized", err)
			}
		})
	}
}

func TestVerifierScopePolicy(t *testing.T) {
	pk, kid, keysJSON := genRSA(t)
	issuer := newIssuer(t, keysJSON)

	aud := "https://api.example.com/mcp"
	v, err := NewVerifier(&Config{
		Issuer:         issuer.URL,
		Audience:       aud,
		RequiredScopes: []string{"mcp:read", "mcp:write"},
	}, jwks.NewCache())
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	raw := signToken(t, pk, kid, jwt.MapClaims{
		"iss": issuer.URL, "sub": "u", "aud": aud,
		"exp":   time.Now().Add(time.Hour).Unix(),
		"scope": "mcp:read",
	})
	if _, err := v.CheckAuthentication(context.Background(), raw); !errors.Is(err, ErrInsufficientScope) {
		t.Fatalf("got %v, want ErrInsufficientScope", err)
	}
}
