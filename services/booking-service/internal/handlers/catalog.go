package handlers

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/apptbook/libs/auth"
	"github.com/md-rashed-zaman/apptbook/libs/httpx"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/catalog"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/model"
)

type CatalogHandler struct {
	svc    *catalog.Service
	logger *slog.Logger
}

func NewCatalogHandler(svc *catalog.Service, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{svc: svc, logger: logger}
}

// --- businesses ---

func (h *CatalogHandler) CreateBusiness(w http.ResponseWriter, r *http.Request) {
	actor, in, ok := decodeWithActor[catalog.BusinessInput](w, r, h.logger)
	if !ok {
		return
	}
	b, err := h.svc.CreateBusiness(r.Context(), actor, in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteMessage(w, http.StatusCreated, "business created", b)
}

func (h *CatalogHandler) UpdateBusiness(w http.ResponseWriter, r *http.Request) {
	actor, in, ok := decodeWithActor[catalog.BusinessInput](w, r, h.logger)
	if !ok {
		return
	}
	b, err := h.svc.UpdateBusiness(r.Context(), actor, urlParam(r, "businessId"), in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, b)
}

func (h *CatalogHandler) MyBusiness(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.ActorFromContext(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	b, err := h.svc.MyBusiness(r.Context(), actor)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, b)
}

func (h *CatalogHandler) GetBusiness(w http.ResponseWriter, r *http.Request) {
	b, err := h.svc.GetBusiness(r.Context(), urlParam(r, "businessId"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, b)
}

func (h *CatalogHandler) ListBusinesses(w http.ResponseWriter, r *http.Request) {
	page, ok := parsePage(r)
	if !ok {
		badRequest(w, "page and size must be non-negative integers")
		return
	}
	q := r.URL.Query()
	items, total, err := h.svc.ListBusinesses(r.Context(), model.BusinessFilter{
		Name:         strings.TrimSpace(q.Get("name")),
		City:         strings.TrimSpace(q.Get("city")),
		Category:     strings.TrimSpace(q.Get("category")),
		BusinessType: strings.TrimSpace(q.Get("businessType")),
		Limit:        page.size,
		Offset:       page.offset(),
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, httpx.Page[model.Business]{Items: items, Page: page.page, Size: page.size, Total: total})
}

// --- services ---

func (h *CatalogHandler) CreateService(w http.ResponseWriter, r *http.Request) {
	actor, in, ok := decodeWithActor[catalog.ServiceInput](w, r, h.logger)
	if !ok {
		return
	}
	s, err := h.svc.CreateService(r.Context(), actor, urlParam(r, "businessId"), in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteMessage(w, http.StatusCreated, "service created", s)
}

func (h *CatalogHandler) UpdateService(w http.ResponseWriter, r *http.Request) {
	actor, in, ok := decodeWithActor[catalog.ServiceInput](w, r, h.logger)
	if !ok {
		return
	}
	s, err := h.svc.UpdateService(r.Context(), actor, urlParam(r, "businessId"), urlParam(r, "serviceId"), in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, s)
}

func (h *CatalogHandler) DeleteService(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.ActorFromContext(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.svc.DeleteService(r.Context(), actor, urlParam(r, "businessId"), urlParam(r, "serviceId")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteMessage(w, http.StatusOK, "service deleted", nil)
}

func (h *CatalogHandler) GetService(w http.ResponseWriter, r *http.Request) {
	s, err := h.svc.GetService(r.Context(), urlParam(r, "businessId"), urlParam(r, "serviceId"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, s)
}

func (h *CatalogHandler) ListServices(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListServices(r.Context(), urlParam(r, "businessId"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, items)
}

// --- employees ---

func (h *CatalogHandler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	actor, in, ok := decodeWithActor[catalog.EmployeeInput](w, r, h.logger)
	if !ok {
		return
	}
	e, err := h.svc.CreateEmployee(r.Context(), actor, urlParam(r, "businessId"), in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteMessage(w, http.StatusCreated, "employee created", e)
}

func (h *CatalogHandler) UpdateEmployee(w http.ResponseWriter, r *http.Request) {
	actor, in, ok := decodeWithActor[catalog.EmployeeInput](w, r, h.logger)
	if !ok {
		return
	}
	e, err := h.svc.UpdateEmployee(r.Context(), actor, urlParam(r, "businessId"), urlParam(r, "employeeId"), in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, e)
}

func (h *CatalogHandler) DeleteEmployee(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.ActorFromContext(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.svc.DeleteEmployee(r.Context(), actor, urlParam(r, "businessId"), urlParam(r, "employeeId")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteMessage(w, http.StatusOK, "employee deleted", nil)
}

func (h *CatalogHandler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	e, err := h.svc.GetEmployee(r.Context(), urlParam(r, "businessId"), urlParam(r, "employeeId"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, e)
}

func (h *CatalogHandler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListEmployees(r.Context(), urlParam(r, "businessId"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, items)
}

func (h *CatalogHandler) Invitation(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.ActorFromContext(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	token, err := h.svc.InvitationToken(r.Context(), actor, urlParam(r, "businessId"), urlParam(r, "employeeId"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (h *CatalogHandler) AcceptInvitation(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.ActorFromContext(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	e, err := h.svc.AcceptInvitation(r.Context(), actor, urlParam(r, "token"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteMessage(w, http.StatusOK, "invitation accepted", e)
}

// --- schedules ---

// workingHoursDTO is the wire form of one weekday: {"dayOfWeek":"MONDAY","startTime":"09:00",...}.
type workingHoursDTO struct {
	DayOfWeek   string `json:"dayOfWeek"`
	StartTime   string `json:"startTime,omitempty"`
	EndTime     string `json:"endTime,omitempty"`
	IsAvailable bool   `json:"isAvailable"`
}

func toDTO(week []model.WorkingHours) []workingHoursDTO {
	out := make([]workingHoursDTO, 0, len(week))
	for _, h := range week {
		d := workingHoursDTO{DayOfWeek: strings.ToUpper(h.DayOfWeek.String()), IsAvailable: h.IsAvailable}
		if h.IsAvailable {
			d.StartTime, d.EndTime = formatClock(h.StartMinute), formatClock(h.EndMinute)
		}
		out = append(out, d)
	}
	return out
}

func fromDTO(in []workingHoursDTO) ([]model.WorkingHours, bool) {
	out := make([]model.WorkingHours, 0, len(in))
	for _, d := range in {
		day, ok := parseWeekday(d.DayOfWeek)
		if !ok {
			return nil, false
		}
		h := model.WorkingHours{DayOfWeek: day, IsAvailable: d.IsAvailable}
		if d.IsAvailable {
			if h.StartMinute, ok = parseClock(d.StartTime); !ok {
				return nil, false
			}
			if h.EndMinute, ok = parseClock(d.EndTime); !ok {
				return nil, false
			}
		}
		out = append(out, h)
	}
	return out, true
}

func parseWeekday(v string) (time.Weekday, bool) {
	v = strings.ToUpper(strings.TrimSpace(v))
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.ToUpper(d.String()) == v {
			return d, true
		}
	}
	return 0, false
}

func (h *CatalogHandler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	week, err := h.svc.GetSchedule(r.Context(), urlParam(r, "employeeId"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toDTO(week))
}

// scheduleBody accepts either a bare array of days or {"schedules": [...]}.
type scheduleBody []workingHoursDTO

func (b *scheduleBody) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var wrapped struct {
			Schedules []workingHoursDTO `json:"schedules"`
		}
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return err
		}
		*b = wrapped.Schedules
		return nil
	}
	var days []workingHoursDTO
	if err := json.Unmarshal(trimmed, &days); err != nil {
		return err
	}
	*b = days
	return nil
}

func (h *CatalogHandler) SetSchedule(w http.ResponseWriter, r *http.Request) {
	actor, in, ok := decodeWithActor[scheduleBody](w, r, h.logger)
	if !ok {
		return
	}
	week, ok := fromDTO(in)
	if !ok {
		badRequest(w, "each day needs dayOfWeek and, when available, HH:mm startTime and endTime")
		return
	}
	saved, err := h.svc.SetSchedule(r.Context(), actor, urlParam(r, "businessId"), urlParam(r, "employeeId"), week)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteMessage(w, http.StatusOK, "schedule updated", toDTO(saved))
}

// decodeWithActor resolves the caller and decodes the request body, writing
// the error response itself when either fails.
func decodeWithActor[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger) (auth.Actor, T, bool) {
	var in T
	actor, err := auth.ActorFromContext(r.Context())
	if err != nil {
		writeError(w, r, logger, err)
		return actor, in, false
	}
	if err := httpx.DecodeJSON(r, &in); err != nil {
		badRequest(w, "invalid json body")
		return actor, in, false
	}
	return actor, in, true
}
