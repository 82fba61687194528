// Package token issues the access tokens the gateway verifies.
package token

import (
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/md-rashed-zaman/apptbook/libs/auth"
)

// JWK is the public half of an RS256 signing key as served from
// /.well-known/jwks.json.
type JWK struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type Signer interface {
	Sign(claims auth.Claims) (string, error)
	// JWKS is empty for symmetric signers.
	JWKS() []JWK
}

type hs256Signer struct {
	secret string
}

func NewHS256Signer(secret string) (Signer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("token: HS256 secret is empty")
	}
	return &hs256Signer{secret: secret}, nil
}

func (s *hs256Signer) Sign(claims auth.Claims) (string, error) {
	return auth.SignHS256(claims, s.secret)
}

func (s *hs256Signer) JWKS() []JWK { return nil }

// RS256Signer signs with the active key and publishes every key it holds, so
// tokens signed before a rotation keep verifying until they expire.
type RS256Signer struct {
	active string
	keys   map[string]*rsa.PrivateKey
	order  []string
}

// NewRS256Signer takes one or more PEM private keys. activeKid selects the
// signing key; empty means the first key.
func NewRS256Signer(pemBlocks string, activeKid string) (*RS256Signer, error) {
	s := &RS256Signer{keys: map[string]*rsa.PrivateKey{}}
	for _, block := range splitPEMBlocks(pemBlocks) {
		key, err := parseRSAPrivateKey([]byte(block))
		if err != nil {
			return nil, err
		}
		kid := KeyID(&key.PublicKey)
		if _, dup := s.keys[kid]; !dup {
			s.order = append(s.order, kid)
		}
		s.keys[kid] = key
	}
	if len(s.order) == 0 {
		return nil, errors.New("token: no RSA private keys found")
	}
	s.active = s.order[0]
	if activeKid != "" {
		if _, ok := s.keys[activeKid]; !ok {
			return nil, fmt.Errorf("token: active kid %q not among the configured keys", activeKid)
		}
		s.active = activeKid
	}
	return s, nil
}

func (s *RS256Signer) ActiveKid() string { return s.active }

func (s *RS256Signer) Sign(claims auth.Claims) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	t.Header["kid"] = s.active
	return t.SignedString(s.keys[s.active])
}

func (s *RS256Signer) JWKS() []JWK {
	out := make([]JWK, 0, len(s.order))
	for _, kid := range s.order {
		pub := &s.keys[kid].PublicKey
		out = append(out, JWK{
			Kty: "RSA",
			Kid: kid,
			Use: "sig",
			Alg: "RS256",
			N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		})
	}
	return out
}

// KeyID derives a stable kid from the modulus.
func KeyID(pub *rsa.PublicKey) string {
	sum := sha256.Sum256(pub.N.Bytes())
	return base64.RawURLEncoding.EncodeToString(sum[:8])
}

// Issuer turns an authenticated user into a signed access token.
type Issuer struct {
	signer Signer
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(signer Signer, issuer string, ttl time.Duration, now func() time.Time) *Issuer {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if now == nil {
		now = time.Now
	}
	return &Issuer{signer: signer, issuer: issuer, ttl: ttl, now: now}
}

type Token struct {
	AccessToken string    `json:"accessToken"`
	TokenType   string    `json:"tokenType"`
	ExpiresIn   int64     `json:"expiresIn"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

func (i *Issuer) Issue(userID, role string) (Token, error) {
	now := i.now().UTC().Truncate(time.Second)
	exp := now.Add(i.ttl)
	signed, err := i.signer.Sign(auth.Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
	if err != nil {
		return Token{}, fmt.Errorf("token: sign: %w", err)
	}
	return Token{AccessToken: signed, TokenType: "Bearer", ExpiresIn: int64(i.ttl / time.Second), ExpiresAt: exp}, nil
}

func (i *Issuer) JWKS() []JWK { return i.signer.JWKS() }

func parseRSAPrivateKey(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("token: invalid pem")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		if rsaKey, ok := key.(*rsa.PrivateKey); ok {
			return rsaKey, nil
		}
	}
	return nil, errors.New("token: unsupported private key")
}

func splitPEMBlocks(raw string) []string {
	var blocks []string
	var current strings.Builder
	inBlock := false
	for _, line := range strings.Split(raw, "\n") {
		if strings.HasPrefix(line, "-----BEGIN ") {
			inBlock = true
			current.Reset()
		}
		if inBlock {
			current.WriteString(line)
			current.WriteString("\n")
		}
		if strings.HasPrefix(line, "-----END ") && inBlock {
			inBlock = false
			blocks = append(blocks, current.String())
		}
	}
	return blocks
}
