// Package lifecycle is the appointment state machine. It is the only code that
// assigns Status, OwnerApproved or EmployeeApproved; callers persist the
// returned Outcome and publish its events in the same transaction.
package lifecycle

import (
	"fmt"
	"strings"
	"time"

	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/model"
)

type Party string

const (
	PartyOwner    Party = "OWNER"
	PartyEmployee Party = "EMPLOYEE"
)

// Policy decides which approvals confirm a pending appointment.
type Policy string

const (
	PolicyBoth   Policy = "both"
	PolicyEither Policy = "either"
)

func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyBoth:
		return PolicyBoth, nil
	case PolicyEither:
		return PolicyEither, nil
	default:
		return "", fmt.Errorf("unknown approval policy %q (want both or either)", s)
	}
}

// Event types, also used as Kafka topics.
const (
	EventCreated          = "booking.appointment.created.v1"
	EventApprovalRecorded = "booking.appointment.approval_recorded.v1"
	EventConfirmed        = "booking.appointment.confirmed.v1"
	EventCancelled        = "booking.appointment.cancelled.v1"
	EventCompleted        = "booking.appointment.completed.v1"
	EventRescheduled      = "booking.appointment.rescheduled.v1"
)

// Cancellation reasons carried on EventCancelled.
const (
	ReasonOwnerRejected     = "owner_rejected"
	ReasonEmployeeRejected  = "employee_rejected"
	ReasonCustomerCancelled = "customer_cancelled"
)

type Event struct {
	Type     string
	Party    Party
	Approved *bool
	Reason   string
}

// Outcome is the result of one transition. Changed=false means the call was an
// idempotent repeat: nothing to persist, nothing to emit.
type Outcome struct {
	Appointment model.Appointment
	Previous    model.Status
	Changed     bool
	Events      []Event
}

type Draft struct {
	CustomerID      string
	BusinessID      string
	ServiceID       string
	EmployeeID      string
	Start           time.Time
	DurationMinutes int
	Notes           string
}

// Create builds a PENDING appointment with both approvals unset.
func Create(d Draft, now time.Time) Outcome {
	appt := model.Appointment{
		CustomerID:      d.CustomerID,
		BusinessID:      d.BusinessID,
		ServiceID:       d.ServiceID,
		EmployeeID:      d.EmployeeID,
		AppointmentDate: d.Start,
		EndTime:         d.Start.Add(time.Duration(d.DurationMinutes) * time.Minute),
		DurationMinutes: d.DurationMinutes,
		Status:          model.StatusPending,
		Notes:           d.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	return Outcome{Appointment: appt, Changed: true, Events: []Event{{Type: EventCreated}}}
}

// Decide records one party's approval or rejection and recomputes the status.
// Repeating the recorded decision is a no-op; reversing it is ErrAlreadyDecided.
func Decide(appt model.Appointment, party Party, approve bool, policy Policy, now time.Time) (Outcome, error) {
	field, err := decisionField(&appt, party)
	if err != nil {
		return Outcome{}, err
	}
	prev := appt.Status
	if *field != nil {
		if **field == approve {
			return Outcome{Appointment: appt, Previous: prev}, nil
		}
		return Outcome{}, model.ErrAlreadyDecided
	}
	if prev.Terminal() {
		return Outcome{}, model.ErrInvalidTransition
	}

	v := approve
	*field = &v
	appt.Status = Recompute(appt, policy)
	appt.UpdatedAt = now

	events := []Event{{Type: EventApprovalRecorded, Party: party, Approved: &v}}
	switch {
	case appt.Status == model.StatusConfirmed && prev != model.StatusConfirmed:
		events = append(events, Event{Type: EventConfirmed, Party: party})
	case appt.Status == model.StatusCancelled:
		reason := ReasonOwnerRejected
		if party == PartyEmployee {
			reason = ReasonEmployeeRejected
		}
		events = append(events, Event{Type: EventCancelled, Party: party, Reason: reason})
	}
	return Outcome{Appointment: appt, Previous: prev, Changed: true, Events: events}, nil
}

// Recompute derives the aggregate status from the approval fields. Terminal
// statuses are returned unchanged.
func Recompute(appt model.Appointment, policy Policy) model.Status {
	if appt.Status.Terminal() {
		return appt.Status
	}
	owner, employee := appt.OwnerApproved, appt.EmployeeApproved
	if (owner != nil && !*owner) || (employee != nil && !*employee) {
		return model.StatusCancelled
	}
	ownerOK := owner != nil && *owner
	employeeOK := employee != nil && *employee
	if policy == PolicyEither {
		if ownerOK || employeeOK {
			return model.StatusConfirmed
		}
		return model.StatusPending
	}
	if ownerOK && employeeOK {
		return model.StatusConfirmed
	}
	return model.StatusPending
}

// Cancel is the customer's cancellation: only their own, only while PENDING or
// CONFIRMED, and only before the appointment starts.
func Cancel(appt model.Appointment, customerID string, now time.Time) (Outcome, error) {
	if !CanCancel(appt, customerID, now) {
		return Outcome{}, model.ErrCancellationNotAllowed
	}
	prev := appt.Status
	appt.Status = model.StatusCancelled
	appt.UpdatedAt = now
	return Outcome{
		Appointment: appt,
		Previous:    prev,
		Changed:     true,
		Events:      []Event{{Type: EventCancelled, Reason: ReasonCustomerCancelled}},
	}, nil
}

func CanCancel(appt model.Appointment, customerID string, now time.Time) bool {
	if customerID == "" || appt.CustomerID != customerID {
		return false
	}
	if appt.Status != model.StatusPending && appt.Status != model.StatusConfirmed {
		return false
	}
	return appt.AppointmentDate.After(now)
}

// Reschedule moves a live appointment to a new start. Both parties have to
// decide again, so the approvals reset and the status returns to PENDING.
func Reschedule(appt model.Appointment, customerID string, start time.Time, now time.Time) (Outcome, error) {
	if appt.CustomerID != customerID {
		return Outcome{}, model.ErrUnauthorized
	}
	if appt.Status != model.StatusPending && appt.Status != model.StatusConfirmed {
		return Outcome{}, model.ErrInvalidTransition
	}
	if !appt.AppointmentDate.After(now) {
		return Outcome{}, model.ErrInvalidTransition
	}
	if start.Equal(appt.AppointmentDate) {
		return Outcome{Appointment: appt, Previous: appt.Status}, nil
	}
	prev := appt.Status
	appt.AppointmentDate = start
	appt.EndTime = start.Add(appt.Duration())
	appt.Status = model.StatusPending
	appt.OwnerApproved = nil
	appt.EmployeeApproved = nil
	appt.UpdatedAt = now
	return Outcome{Appointment: appt, Previous: prev, Changed: true, Events: []Event{{Type: EventRescheduled}}}, nil
}

// Complete moves a CONFIRMED appointment whose interval has fully elapsed to
// COMPLETED. ok=false means nothing to do.
func Complete(appt model.Appointment, now time.Time) (Outcome, bool) {
	if appt.Status != model.StatusConfirmed || appt.EndTime.After(now) {
		return Outcome{}, false
	}
	prev := appt.Status
	appt.Status = model.StatusCompleted
	appt.UpdatedAt = now
	return Outcome{Appointment: appt, Previous: prev, Changed: true, Events: []Event{{Type: EventCompleted}}}, true
}

func decisionField(appt *model.Appointment, party Party) (**bool, error) {
	switch party {
	case PartyOwner:
		return &appt.OwnerApproved, nil
	case PartyEmployee:
		return &appt.EmployeeApproved, nil
	default:
		return nil, fmt.Errorf("%w: unknown party %q", model.ErrValidation, party)
	}
}
