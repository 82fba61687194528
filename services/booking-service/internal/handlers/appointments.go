package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/md-rashed-zaman/apptbook/libs/auth"
	"github.com/md-rashed-zaman/apptbook/libs/httpx"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/model"
)

type AppointmentHandler struct {
	svc    *booking.Service
	logger *slog.Logger
}

func NewAppointmentHandler(svc *booking.Service, logger *slog.Logger) *AppointmentHandler {
	return &AppointmentHandler{svc: svc, logger: logger}
}

// AvailableSlots answers GET /appointments/available-slots with "HH:mm" start
// times in the schedule timezone.
func (h *AppointmentHandler) AvailableSlots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	loc := h.svc.Engine().Location()

	employeeID := strings.TrimSpace(q.Get("employeeId"))
	if employeeID == "" {
		badRequest(w, "employeeId is required")
		return
	}
	day, ok := parseDate(q.Get("date"), loc)
	if !ok {
		badRequest(w, "date must be YYYY-MM-DD")
		return
	}
	rawDuration := q.Get("durationMinutes")
	if rawDuration == "" {
		rawDuration = q.Get("duration")
	}
	duration, err := strconv.Atoi(strings.TrimSpace(rawDuration))
	if err != nil {
		writeError(w, r, h.logger, model.ErrInvalidDuration)
		return
	}

	slots, err := h.svc.Availability(r.Context(), employeeID, day, duration)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.In(loc).Format("15:04"))
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

type createAppointmentRequest struct {
	BusinessID      string `json:"businessId"`
	ServiceID       string `json:"serviceId"`
	EmployeeID      string `json:"employeeId"`
	AppointmentDate string `json:"appointmentDate"`
	Notes           string `json:"notes"`
}

func (h *AppointmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.ActorFromContext(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req createAppointmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		badRequest(w, "invalid json body")
		return
	}
	start, ok := parseTime(req.AppointmentDate, h.svc.Engine().Location())
	if !ok {
		badRequest(w, "appointmentDate must be RFC3339 or YYYY-MM-DDTHH:mm:ss")
		return
	}

	appt, replayed, err := h.svc.Create(r.Context(), actor, booking.CreateRequest{
		BusinessID:     strings.TrimSpace(req.BusinessID),
		ServiceID:      strings.TrimSpace(req.ServiceID),
		EmployeeID:     strings.TrimSpace(req.EmployeeID),
		Start:          start,
		Notes:          req.Notes,
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if replayed {
		w.Header().Set("Idempotent-Replayed", "true")
		httpx.WriteJSON(w, http.StatusOK, appt)
		return
	}
	httpx.WriteMessage(w, http.StatusCreated, "appointment created", appt)
}

func (h *AppointmentHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.ActorFromContext(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	page, ok := parsePage(r)
	if !ok {
		badRequest(w, "page and size must be non-negative integers")
		return
	}
	q := r.URL.Query()
	req := booking.ListRequest{
		Status: model.Status(strings.ToUpper(strings.TrimSpace(q.Get("status")))),
		Page:   page.page,
		Size:   page.size,
	}
	loc := h.svc.Engine().Location()
	if v := q.Get("from"); v != "" {
		if req.From, ok = parseDate(v, loc); !ok {
			badRequest(w, "from must be YYYY-MM-DD")
			return
		}
	}
	if v := q.Get("to"); v != "" {
		to, ok := parseDate(v, loc)
		if !ok {
			badRequest(w, "to must be YYYY-MM-DD")
			return
		}
		req.To = to.AddDate(0, 0, 1)
	}

	items, total, err := h.svc.List(r.Context(), actor, req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, httpx.Page[model.Appointment]{Items: items, Page: page.page, Size: page.size, Total: total})
}

func (h *AppointmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.ActorFromContext(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	appt, err := h.svc.Get(r.Context(), actor, urlParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, appt)
}

func (h *AppointmentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "appointment cancelled", h.svc.Cancel)
}

func (h *AppointmentHandler) ApproveOwner(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "owner approval recorded", h.svc.ApproveAsOwner)
}

func (h *AppointmentHandler) RejectOwner(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "owner rejection recorded", h.svc.RejectAsOwner)
}

func (h *AppointmentHandler) ApproveEmployee(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "employee approval recorded", h.svc.ApproveAsEmployee)
}

func (h *AppointmentHandler) RejectEmployee(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "employee rejection recorded", h.svc.RejectAsEmployee)
}

type transitionFunc func(ctx context.Context, actor auth.Actor, id string) (model.Appointment, error)

func (h *AppointmentHandler) transition(w http.ResponseWriter, r *http.Request, msg string, fn transitionFunc) {
	actor, err := auth.ActorFromContext(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	appt, err := fn(r.Context(), actor, urlParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteMessage(w, http.StatusOK, msg, appt)
}

type rescheduleRequest struct {
	AppointmentDate string `json:"appointmentDate"`
}

func (h *AppointmentHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.ActorFromContext(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req rescheduleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		badRequest(w, "invalid json body")
		return
	}
	start, ok := parseTime(req.AppointmentDate, h.svc.Engine().Location())
	if !ok {
		badRequest(w, "appointmentDate must be RFC3339 or YYYY-MM-DDTHH:mm:ss")
		return
	}
	appt, err := h.svc.Reschedule(r.Context(), actor, urlParam(r, "id"), start)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.WriteMessage(w, http.StatusOK, "appointment rescheduled", appt)
}
