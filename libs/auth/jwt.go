package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims is the access token payload issued by the identity provider.
type Claims struct {
	Role       string `json:"role"`
	BusinessID string `json:"business_id,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) UserID() string { return c.Subject }

// KeySource resolves RS256 verification keys by key id.
type KeySource interface {
	Get(keyID string) (any, error)
}

type Verifier struct {
	secret []byte
	keys   KeySource
	issuer string
	leeway time.Duration
}

type VerifierOption func(*Verifier)

func WithHS256Secret(secret string) VerifierOption {
	return func(v *Verifier) { v.secret = []byte(secret) }
}

func WithKeySource(keys KeySource) VerifierOption {
	return func(v *Verifier) { v.keys = keys }
}

func WithIssuer(issuer string) VerifierOption {
	return func(v *Verifier) { v.issuer = issuer }
}

func WithLeeway(d time.Duration) VerifierOption {
	return func(v *Verifier) { v.leeway = d }
}

func NewVerifier(opts ...VerifierOption) (*Verifier, error) {
	v := &Verifier{leeway: 30 * time.Second}
	for _, opt := range opts {
		opt(v)
	}
	if len(v.secret) == 0 && v.keys == nil {
		return nil, errors.New("auth: verifier needs an HS256 secret or a key source")
	}
	return v, nil
}

// Verify checks signature, expiry and issuer. It accepts HS256 when a secret
// is configured and RS256 when a key source is configured.
func (v *Verifier) Verify(token string) (*Claims, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return nil, ErrInvalidToken
	}
	var methods []string
	if len(v.secret) > 0 {
		methods = append(methods, jwt.SigningMethodHS256.Alg())
	}
	if v.keys != nil {
		methods = append(methods, jwt.SigningMethodRS256.Alg())
	}
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods(methods),
		jwt.WithLeeway(v.leeway),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, v.keyFunc, parserOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims, nil
}

func (v *Verifier) keyFunc(t *jwt.Token) (any, error) {
	switch t.Method.Alg() {
	case jwt.SigningMethodHS256.Alg():
		return v.secret, nil
	case jwt.SigningMethodRS256.Alg():
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("missing kid")
		}
		return v.keys.Get(kid)
	default:
		return nil, fmt.Errorf("unexpected signing method %s", t.Method.Alg())
	}
}

// SignHS256 issues a token for local development and tests.
func SignHS256(claims Claims, secret string) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
