package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/md-rashed-zaman/apptbook/libs/auth"
	"github.com/md-rashed-zaman/apptbook/libs/httpx"
	"github.com/md-rashed-zaman/apptbook/services/notification-service/internal/notify"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type Handler struct {
	svc    *notify.Service
	logger *slog.Logger
}

func New(svc *notify.Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Router serves the caller's notifications under /api/v1/notifications. Every
// route needs gateway identity headers.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(auth.WithActorFromHeaders)
	r.Route("/api/v1/notifications", func(r chi.Router) {
		r.Get("/", h.list)
		r.Get("/unread-count", h.unreadCount)
		r.Put("/read-all", h.markAllRead)
		r.Put("/{id}/read", h.markRead)
	})
	return r
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	page, size, ok := parsePage(r)
	if !ok {
		httpx.WriteError(w, http.StatusBadRequest, "ValidationFailed", "page and size must be non-negative integers")
		return
	}
	items, total, err := h.svc.List(r.Context(), actor.UserID, page, size)
	if err != nil {
		h.internal(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, httpx.Page[notify.Notification]{Items: items, Page: page, Size: size, Total: total})
}

func (h *Handler) unreadCount(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	n, err := h.svc.UnreadCount(r.Context(), actor.UserID)
	if err != nil {
		h.internal(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]int{"count": n})
}

func (h *Handler) markRead(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	err := h.svc.MarkRead(r.Context(), actor.UserID, chi.URLParam(r, "id"))
	if errors.Is(err, notify.ErrNotFound) {
		httpx.WriteError(w, http.StatusNotFound, "NotFound", err.Error())
		return
	}
	if err != nil {
		h.internal(w, r, err)
		return
	}
	httpx.WriteMessage(w, http.StatusOK, "notification marked as read", nil)
}

func (h *Handler) markAllRead(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	n, err := h.svc.MarkAllRead(r.Context(), actor.UserID)
	if err != nil {
		h.internal(w, r, err)
		return
	}
	httpx.WriteMessage(w, http.StatusOK, "all notifications marked as read", map[string]int{"updated": n})
}

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (auth.Actor, bool) {
	actor, err := auth.ActorFromContext(r.Context())
	if err != nil {
		httpx.WriteError(w, http.StatusUnauthorized, "Unauthenticated", err.Error())
		return actor, false
	}
	return actor, true
}

func (h *Handler) internal(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.ErrorContext(r.Context(), "request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", httpx.RequestIDFromContext(r.Context()),
		"err", err,
	)
	httpx.WriteError(w, http.StatusInternalServerError, "Internal", "internal error")
}

func parsePage(r *http.Request) (int, int, bool) {
	q := r.URL.Query()
	page, size := 0, defaultPageSize
	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return 0, 0, false
		}
		page = n
	}
	if v := q.Get("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return 0, 0, false
		}
		size = min(n, maxPageSize)
	}
	return page, size, true
}
