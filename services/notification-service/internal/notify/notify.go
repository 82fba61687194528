// Package notify turns appointment events into per-user in-app notifications.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrNotFound = errors.New("notification not found")

type Notification struct {
	ID            string    `json:"id"`
	UserID        string    `json:"userId"`
	Type          string    `json:"type"`
	Title         string    `json:"title"`
	Message       string    `json:"message"`
	AppointmentID string    `json:"appointmentId,omitempty"`
	Read          bool      `json:"read"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Store persists notifications. Apply records eventID and inserts the
// notifications atomically; it reports false when the event was seen before.
type Store interface {
	Apply(ctx context.Context, eventID, eventType string, ns []Notification) (bool, error)
	List(ctx context.Context, userID string, limit, offset int) ([]Notification, int, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, userID, id string) error
	MarkAllRead(ctx context.Context, userID string) (int, error)
}

// Appointment event types produced by booking-service.
const (
	EventCreated          = "booking.appointment.created.v1"
	EventApprovalRecorded = "booking.appointment.approval_recorded.v1"
	EventConfirmed        = "booking.appointment.confirmed.v1"
	EventCancelled        = "booking.appointment.cancelled.v1"
	EventCompleted        = "booking.appointment.completed.v1"
	EventRescheduled      = "booking.appointment.rescheduled.v1"
)

// Topics lists every event type the service subscribes to.
func Topics() []string {
	return []string{EventCreated, EventApprovalRecorded, EventConfirmed, EventCancelled, EventCompleted, EventRescheduled}
}

// AppointmentEvent mirrors the booking.appointment.* payload.
type AppointmentEvent struct {
	AppointmentID   string    `json:"appointment_id"`
	BusinessID      string    `json:"business_id"`
	CustomerID      string    `json:"customer_id"`
	OwnerUserID     string    `json:"owner_user_id"`
	EmployeeID      string    `json:"employee_id"`
	EmployeeUserID  string    `json:"employee_user_id"`
	AppointmentDate time.Time `json:"appointment_date"`
	Status          string    `json:"status"`
	Party           string    `json:"party"`
	Approved        *bool     `json:"approved"`
	Reason          string    `json:"reason"`
	OccurredAt      time.Time `json:"occurred_at"`
}

type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{store: store, now: now}
}

// HandleEvent decodes one appointment event and stores the notifications it
// produces. Duplicate deliveries are ignored. Malformed payloads are reported
// as permanent errors so the consumer can skip them.
func (s *Service) HandleEvent(ctx context.Context, eventID, eventType string, payload []byte) (bool, error) {
	if strings.TrimSpace(eventID) == "" {
		return false, permanent(errors.New("event without id"))
	}
	var evt AppointmentEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return false, permanent(fmt.Errorf("decode %s: %w", eventType, err))
	}
	if evt.AppointmentID == "" {
		return false, permanent(fmt.Errorf("%s without appointment_id", eventType))
	}
	ns := Build(eventType, evt)
	at := evt.OccurredAt
	if at.IsZero() {
		at = s.now()
	}
	for i := range ns {
		ns[i].CreatedAt = at.UTC()
	}
	return s.store.Apply(ctx, eventID, eventType, ns)
}

func (s *Service) List(ctx context.Context, userID string, page, size int) ([]Notification, int, error) {
	return s.store.List(ctx, userID, size, page*size)
}

func (s *Service) UnreadCount(ctx context.Context, userID string) (int, error) {
	return s.store.UnreadCount(ctx, userID)
}

func (s *Service) MarkRead(ctx context.Context, userID, id string) error {
	return s.store.MarkRead(ctx, userID, id)
}

func (s *Service) MarkAllRead(ctx context.Context, userID string) (int, error) {
	return s.store.MarkAllRead(ctx, userID)
}

// Build fans one event out to the users who should hear about it. The actor
// who caused a decision is not notified of their own action.
func Build(eventType string, e AppointmentEvent) []Notification {
	when := e.AppointmentDate.UTC().Format("Mon 2 Jan 15:04 MST")
	var out []Notification
	add := func(userID, title, msg string) {
		if userID == "" {
			return
		}
		for _, n := range out {
			if n.UserID == userID {
				return
			}
		}
		out = append(out, Notification{UserID: userID, Type: eventType, Title: title, Message: msg, AppointmentID: e.AppointmentID})
	}

	switch eventType {
	case EventCreated:
		add(e.OwnerUserID, "New booking request", "A customer requested an appointment on "+when+".")
		add(e.EmployeeUserID, "New booking request", "You have a new appointment request on "+when+".")
		add(e.CustomerID, "Booking received", "Your appointment on "+when+" is waiting for approval.")
	case EventApprovalRecorded:
		if e.Approved == nil || !*e.Approved {
			return nil
		}
		who := "The business"
		if e.Party == "EMPLOYEE" {
			who = "Your specialist"
		}
		add(e.CustomerID, "Approval recorded", who+" approved your appointment on "+when+".")
	case EventConfirmed:
		add(e.CustomerID, "Appointment confirmed", "Your appointment on "+when+" is confirmed.")
		add(e.EmployeeUserID, "Appointment confirmed", "The appointment on "+when+" is confirmed.")
		add(e.OwnerUserID, "Appointment confirmed", "The appointment on "+when+" is confirmed.")
	case EventCancelled:
		switch e.Reason {
		case "customer_cancelled":
			add(e.OwnerUserID, "Appointment cancelled", "The customer cancelled the appointment on "+when+".")
			add(e.EmployeeUserID, "Appointment cancelled", "The customer cancelled the appointment on "+when+".")
		default:
			add(e.CustomerID, "Appointment declined", "Your appointment on "+when+" was declined.")
			if e.Reason == "owner_rejected" {
				add(e.EmployeeUserID, "Appointment declined", "The business declined the appointment on "+when+".")
			} else {
				add(e.OwnerUserID, "Appointment declined", "The specialist declined the appointment on "+when+".")
			}
		}
	case EventCompleted:
		add(e.CustomerID, "How was it?", "Your appointment on "+when+" is complete. Leave a review.")
	case EventRescheduled:
		add(e.OwnerUserID, "Appointment rescheduled", "An appointment moved to "+when+" and needs approval again.")
		add(e.EmployeeUserID, "Appointment rescheduled", "An appointment moved to "+when+" and needs approval again.")
	}
	return out
}

type permanentError struct{ err error }

func (p permanentError) Error() string { return p.err.Error() }
func (p permanentError) Unwrap() error { return p.err }

func permanent(err error) error { return permanentError{err: err} }

// IsPermanent reports whether retrying err cannot succeed.
func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}
