package booking

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/lifecycle"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/outbox"
)

// AppointmentEvent is the payload of every booking.appointment.* event. It
// names all parties so consumers can notify without calling back.
type AppointmentEvent struct {
	AppointmentID   string    `json:"appointment_id"`
	BusinessID      string    `json:"business_id"`
	ServiceID       string    `json:"service_id"`
	CustomerID      string    `json:"customer_id"`
	OwnerUserID     string    `json:"owner_user_id"`
	EmployeeID      string    `json:"employee_id"`
	EmployeeUserID  string    `json:"employee_user_id,omitempty"`
	AppointmentDate time.Time `json:"appointment_date"`
	EndTime         time.Time `json:"end_time"`
	Status          string    `json:"status"`
	PreviousStatus  string    `json:"previous_status,omitempty"`
	Party           string    `json:"party,omitempty"`
	Approved        *bool     `json:"approved,omitempty"`
	Reason          string    `json:"reason,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}

func (s *Service) emit(ctx context.Context, tx Tx, out lifecycle.Outcome, p parties) error {
	if len(out.Events) == 0 {
		return nil
	}
	appt := out.Appointment
	events := make([]outbox.Event, 0, len(out.Events))
	for _, e := range out.Events {
		payload := AppointmentEvent{
			AppointmentID:   appt.ID,
			BusinessID:      appt.BusinessID,
			ServiceID:       appt.ServiceID,
			CustomerID:      appt.CustomerID,
			OwnerUserID:     p.ownerUserID,
			EmployeeID:      appt.EmployeeID,
			EmployeeUserID:  p.employeeUserID,
			AppointmentDate: appt.AppointmentDate,
			EndTime:         appt.EndTime,
			Status:          string(appt.Status),
			PreviousStatus:  string(out.Previous),
			Party:           string(e.Party),
			Approved:        e.Approved,
			Reason:          e.Reason,
			OccurredAt:      appt.UpdatedAt,
		}
		evt, err := outbox.NewEvent(ctx, outbox.AggregateAppointment, appt.ID, e.Type, payload, appt.UpdatedAt)
		if err != nil {
			return err
		}
		events = append(events, evt)
	}
	return tx.InsertEvents(ctx, events...)
}
