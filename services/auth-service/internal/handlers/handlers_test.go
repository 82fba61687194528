package handlers

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/md-rashed-zaman/apptbook/libs/auth"
	"github.com/md-rashed-zaman/apptbook/services/auth-service/internal/storage"
	"github.com/md-rashed-zaman/apptbook/services/auth-service/internal/token"
	"github.com/md-rashed-zaman/apptbook/services/auth-service/internal/users"
)

const secret = "test-secret"

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code string `json:"code"`
	} `json:"error"`
}

type session struct {
	AccessToken string     `json:"accessToken"`
	TokenType   string     `json:"tokenType"`
	User        users.User `json:"user"`
}

func newRouter(t *testing.T, signer token.Signer) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	svc := users.NewService(storage.NewMemory(), logger, bcrypt.MinCost, nil)
	return New(svc, token.NewIssuer(signer, "apptbook-auth", time.Hour, nil), logger).Router()
}

func hsRouter(t *testing.T) http.Handler {
	t.Helper()
	signer, err := token.NewHS256Signer(secret)
	require.NoError(t, err)
	return newRouter(t, signer)
}

func do(t *testing.T, h http.Handler, actor *auth.Actor, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if actor != nil {
		req.Header.Set(auth.HeaderUserID, actor.UserID)
		req.Header.Set(auth.HeaderRole, actor.Role)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func testKeyPEM(t *testing.T) string {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}))
}

func errorCode(env envelope) string {
	if env.Error == nil {
		return ""
	}
	return env.Error.Code
}

func registerBody(email string) map[string]string {
	return map[string]string{"fullName": "Ana", "email": email, "password": "secret1", "role": "BUSINESS_OWNER"}
}

func TestRegisterIssuesTokenWithRole(t *testing.T) {
	h := hsRouter(t)

	rec, env := do(t, h, nil, http.MethodPost, "/api/v1/auth/register", registerBody("ana@example.com"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var s session
	require.NoError(t, json.Unmarshal(env.Data, &s))
	assert.Equal(t, "Bearer", s.TokenType)
	assert.Equal(t, auth.RoleBusinessOwner, s.User.Role)
	assert.NotContains(t, rec.Body.String(), "password")

	verifier, err := auth.NewVerifier(auth.WithHS256Secret(secret), auth.WithIssuer("apptbook-auth"))
	require.NoError(t, err)
	claims, err := verifier.Verify(s.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, s.User.ID, claims.UserID())
	assert.Equal(t, auth.RoleBusinessOwner, claims.Role)

	rec, env = do(t, h, nil, http.MethodPost, "/api/v1/auth/register", registerBody("ANA@example.com"))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "Conflict", errorCode(env))

	rec, env = do(t, h, nil, http.MethodPost, "/api/v1/auth/register", map[string]string{"email": "x@example.com"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "ValidationFailed", errorCode(env))

	rec, _ = do(t, h, nil, http.MethodPost, "/api/v1/auth/register", map[string]string{"unknown": "field"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogin(t *testing.T) {
	h := hsRouter(t)
	do(t, h, nil, http.MethodPost, "/api/v1/auth/register", registerBody("ana@example.com"))

	rec, env := do(t, h, nil, http.MethodPost, "/api/v1/auth/login", map[string]string{"email": "ana@example.com", "password": "secret1"})
	require.Equal(t, http.StatusOK, rec.Code)
	var s session
	require.NoError(t, json.Unmarshal(env.Data, &s))
	assert.NotEmpty(t, s.AccessToken)

	rec, env = do(t, h, nil, http.MethodPost, "/api/v1/auth/login", map[string]string{"email": "ana@example.com", "password": "nope-nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "InvalidCredentials", errorCode(env))
}

func TestMeAndProfile(t *testing.T) {
	h := hsRouter(t)
	_, env := do(t, h, nil, http.MethodPost, "/api/v1/auth/register", registerBody("ana@example.com"))
	var s session
	require.NoError(t, json.Unmarshal(env.Data, &s))
	actor := &auth.Actor{UserID: s.User.ID, Role: s.User.Role}

	rec, env := do(t, h, nil, http.MethodGet, "/api/v1/auth/me", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Unauthenticated", errorCode(env))

	rec, env = do(t, h, actor, http.MethodGet, "/api/v1/auth/me", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"userId":"`+s.User.ID+`","role":"BUSINESS_OWNER"}`, string(env.Data))

	rec, env = do(t, h, actor, http.MethodPut, "/api/v1/users/me", map[string]string{"phone": "0123456789"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var u users.User
	require.NoError(t, json.Unmarshal(env.Data, &u))
	assert.Equal(t, "0123456789", u.Phone)
	assert.Equal(t, "Ana", u.FullName)

	rec, env = do(t, h, actor, http.MethodGet, "/api/v1/users/me", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &u))
	assert.Equal(t, "0123456789", u.Phone)

	rec, _ = do(t, h, &auth.Actor{UserID: "ghost", Role: auth.RoleCustomer}, http.MethodGet, "/api/v1/users/me", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChangePassword(t *testing.T) {
	h := hsRouter(t)
	_, env := do(t, h, nil, http.MethodPost, "/api/v1/auth/register", registerBody("ana@example.com"))
	var s session
	require.NoError(t, json.Unmarshal(env.Data, &s))
	actor := &auth.Actor{UserID: s.User.ID, Role: s.User.Role}

	rec, env := do(t, h, actor, http.MethodPut, "/api/v1/users/me/password",
		map[string]string{"currentPassword": "wrong-one", "newPassword": "secret2"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "InvalidCredentials", errorCode(env))

	rec, _ = do(t, h, actor, http.MethodPut, "/api/v1/users/me/password",
		map[string]string{"currentPassword": "secret1", "newPassword": "secret2"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, h, nil, http.MethodPost, "/api/v1/auth/login", map[string]string{"email": "ana@example.com", "password": "secret2"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestJWKS(t *testing.T) {
	rec, _ := do(t, hsRouter(t), nil, http.MethodGet, "/.well-known/jwks.json", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	signer, err := token.NewRS256Signer(testKeyPEM(t), "")
	require.NoError(t, err)
	rec = httptest.NewRecorder()
	newRouter(t, signer).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/.well-known/jwks.json", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Keys []token.JWK `json:"keys"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Keys, 1)
	assert.Equal(t, signer.ActiveKid(), body.Keys[0].Kid)
	assert.Equal(t, "RS256", body.Keys[0].Alg)
}
