package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/md-rashed-zaman/apptbook/libs/auth"
	"github.com/md-rashed-zaman/apptbook/libs/httpx"
	"github.com/md-rashed-zaman/apptbook/services/auth-service/internal/token"
	"github.com/md-rashed-zaman/apptbook/services/auth-service/internal/users"
)

type AuthHandler struct {
	users  *users.Service
	tokens *token.Issuer
	logger *slog.Logger
}

func New(svc *users.Service, tokens *token.Issuer, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{users: svc, tokens: tokens, logger: logger}
}

// Router serves the public auth endpoints and the caller's own account.
// /auth/me and /users/me read gateway identity headers.
func (h *AuthHandler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(auth.WithActorFromHeaders)
	r.Get("/.well-known/jwks.json", h.jwks)
	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Post("/register", h.register)
		r.Post("/login", h.login)
		r.Get("/me", h.me)
	})
	r.Route("/api/v1/users/me", func(r chi.Router) {
		r.Get("/", h.profile)
		r.Put("/", h.updateProfile)
		r.Put("/password", h.changePassword)
	})
	return r
}

type authResponse struct {
	token.Token
	User users.User `json:"user"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type meResponse struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

func (h *AuthHandler) register(w http.ResponseWriter, r *http.Request) {
	var req users.RegisterInput
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "ValidationFailed", "invalid json body")
		return
	}
	u, err := h.users.Register(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeToken(w, r, http.StatusCreated, "registered", u)
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "ValidationFailed", "invalid json body")
		return
	}
	u, err := h.users.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeToken(w, r, http.StatusOK, "logged in", u)
}

func (h *AuthHandler) writeToken(w http.ResponseWriter, r *http.Request, status int, msg string, u users.User) {
	tok, err := h.tokens.Issue(u.ID, u.Role)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteMessage(w, status, msg, authResponse{Token: tok, User: u})
}

func (h *AuthHandler) me(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.ActorFromContext(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, meResponse{UserID: actor.UserID, Role: actor.Role})
}

func (h *AuthHandler) profile(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.ActorFromContext(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	u, err := h.users.Profile(r.Context(), actor)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, u)
}

func (h *AuthHandler) updateProfile(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.ActorFromContext(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req users.ProfileInput
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "ValidationFailed", "invalid json body")
		return
	}
	u, err := h.users.UpdateProfile(r.Context(), actor, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteMessage(w, http.StatusOK, "profile updated", u)
}

func (h *AuthHandler) changePassword(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.ActorFromContext(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req users.PasswordInput
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "ValidationFailed", "invalid json body")
		return
	}
	if err := h.users.ChangePassword(r.Context(), actor, req); err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteMessage(w, http.StatusOK, "password changed", nil)
}

// jwks is served bare, not enveloped, so standard JWKS clients can read it.
func (h *AuthHandler) jwks(w http.ResponseWriter, _ *http.Request) {
	keys := h.tokens.JWKS()
	if len(keys) == 0 {
		httpx.WriteError(w, http.StatusNotFound, "NotFound", "jwks not available")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{"keys": keys})
}

type errorMapping struct {
	target error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{users.ErrValidation, http.StatusBadRequest, "ValidationFailed"},
	{users.ErrInvalidCredentials, http.StatusUnauthorized, "InvalidCredentials"},
	{auth.ErrNoActor, http.StatusUnauthorized, "Unauthenticated"},
	{users.ErrEmailTaken, http.StatusConflict, "Conflict"},
	{users.ErrNotFound, http.StatusNotFound, "NotFound"},
}

func (h *AuthHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			httpx.WriteError(w, m.status, m.code, err.Error())
			return
		}
	}
	h.logger.ErrorContext(r.Context(), "request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", httpx.RequestIDFromContext(r.Context()),
		"err", err,
	)
	httpx.WriteError(w, http.StatusInternalServerError, "Internal", "internal error")
}
