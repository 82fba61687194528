package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func testClaims(sub, role string, ttl time.Duration) Claims {
	now := time.Now()
	return Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			Issuer:    "apptbook-test",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
}

func TestHS256RoundTrip(t *testing.T) {
	secret := "test-secret"
	token, err := SignHS256(testClaims("user-1", RoleBusinessOwner, time.Hour), secret)
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}

	v, err := NewVerifier(WithHS256Secret(secret), WithIssuer("apptbook-test"))
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	parsed, err := v.Verify("Bearer " + token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if parsed.UserID() != "user-1" || parsed.Role != RoleBusinessOwner {
		t.Fatalf("claims mismatch: got %+v", parsed)
	}

	wrong, _ := NewVerifier(WithHS256Secret("wrong-secret"))
	if _, err := wrong.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken with wrong secret, got %v", err)
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	token, err := SignHS256(testClaims("user-1", RoleCustomer, -time.Hour), "s")
	if err != nil {
		t.Fatalf("SignHS256: %v", err)
	}
	v, _ := NewVerifier(WithHS256Secret("s"), WithLeeway(time.Second))
	if _, err := v.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired token to fail, got %v", err)
	}
}

func TestRS256ViaJWKS(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey failed: %v", err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(jwks{Keys: []jwk{{
			Kty: "RSA",
			Kid: "kid-1",
			Alg: "RS256",
			N:   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
		}}})
	}))
	defer srv.Close()

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, testClaims("user-2", RoleStaff, time.Hour))
	tok.Header["kid"] = "kid-1"
	signed, err := tok.SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	v, err := NewVerifier(WithKeySource(NewJWKSClient(srv.URL, time.Minute)))
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	parsed, err := v.Verify(signed)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if parsed.UserID() != "user-2" || parsed.Role != RoleStaff {
		t.Fatalf("claims mismatch: got %+v", parsed)
	}

	// An HS256 token must not be accepted by an RS256-only verifier.
	hs, _ := SignHS256(testClaims("user-3", RoleStaff, time.Hour), "x")
	if _, err := v.Verify(hs); err == nil {
		t.Fatal("expected HS256 token to be rejected")
	}
}

func TestActorFromHeaders(t *testing.T) {
	var got Actor
	var gotErr error
	h := WithActorFromHeaders(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got, gotErr = ActorFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderUserID, "u-1")
	req.Header.Set(HeaderRole, "customer")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if gotErr != nil || got.UserID != "u-1" || !got.Is(RoleCustomer) {
		t.Fatalf("actor = %+v err = %v", got, gotErr)
	}

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if !errors.Is(gotErr, ErrNoActor) {
		t.Fatalf("expected ErrNoActor, got %v", gotErr)
	}

	if _, err := ActorFromContext(context.Background()); !errors.Is(err, ErrNoActor) {
		t.Fatal("empty context must have no actor")
	}
}

func TestSetIdentityHeadersReplacesSpoofed(t *testing.T) {
	h := http.Header{}
	h.Set(HeaderUserID, "spoofed")
	h.Set(HeaderBusinessID, "spoofed-biz")
	c := testClaims("real", "staff", time.Hour)
	SetIdentityHeaders(h, &c)
	if h.Get(HeaderUserID) != "real" || h.Get(HeaderRole) != RoleStaff || h.Get(HeaderBusinessID) != "" {
		t.Fatalf("headers = %v", h)
	}
}
