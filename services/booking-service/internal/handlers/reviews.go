package handlers

import (
	"log/slog"
	"net/http"

	"github.com/md-rashed-zaman/apptbook/libs/auth"
	"github.com/md-rashed-zaman/apptbook/libs/httpx"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/reviews"
)

type ReviewHandler struct {
	svc    *reviews.Service
	logger *slog.Logger
}

func NewReviewHandler(svc *reviews.Service, logger *slog.Logger) *ReviewHandler {
	return &ReviewHandler{svc: svc, logger: logger}
}

func (h *ReviewHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, in, ok := decodeWithActor[reviews.ReviewInput](w, r, h.logger)
	if !ok {
		return
	}
	rv, err := h.svc.Create(r.Context(), actor, in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteMessage(w, http.StatusCreated, "review created", rv)
}

func (h *ReviewHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, in, ok := decodeWithActor[reviews.ReviewInput](w, r, h.logger)
	if !ok {
		return
	}
	rv, err := h.svc.Update(r.Context(), actor, urlParam(r, "reviewId"), in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, rv)
}

func (h *ReviewHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.ActorFromContext(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.svc.Delete(r.Context(), actor, urlParam(r, "reviewId")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteMessage(w, http.StatusOK, "review deleted", nil)
}

func (h *ReviewHandler) ForBusiness(w http.ResponseWriter, r *http.Request) {
	page, ok := parsePage(r)
	if !ok {
		badRequest(w, "page and size must be non-negative integers")
		return
	}
	items, total, err := h.svc.ForBusiness(r.Context(), urlParam(r, "businessId"), page.page, page.size)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, httpx.Page[model.Review]{Items: items, Page: page.page, Size: page.size, Total: total})
}

func (h *ReviewHandler) Mine(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.ActorFromContext(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	items, err := h.svc.Mine(r.Context(), actor)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, items)
}

func (h *ReviewHandler) Favorites(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.ActorFromContext(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	items, err := h.svc.Favorites(r.Context(), actor)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, items)
}

func (h *ReviewHandler) AddFavorite(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.ActorFromContext(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.svc.AddFavorite(r.Context(), actor, urlParam(r, "businessId")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteMessage(w, http.StatusOK, "added to favorites", nil)
}

func (h *ReviewHandler) RemoveFavorite(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.ActorFromContext(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.svc.RemoveFavorite(r.Context(), actor, urlParam(r, "businessId")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteMessage(w, http.StatusOK, "removed from favorites", nil)
}

func (h *ReviewHandler) IsFavorite(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.ActorFromContext(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	fav, err := h.svc.IsFavorite(r.Context(), actor, urlParam(r, "businessId"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]bool{"favorite": fav})
}
