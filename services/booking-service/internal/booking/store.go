package booking

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/outbox"
)

// Store is the appointment persistence the service needs. Reads outside InTx
// are lock-free snapshots.
type Store interface {
	availability.Source

	// InTx runs fn in one serializable unit of work. Returning an error rolls
	// everything back, including outbox rows.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	GetAppointment(ctx context.Context, id string) (model.Appointment, error)
	ListAppointments(ctx context.Context, f model.AppointmentFilter) ([]model.Appointment, int, error)
	GetBusinessByOwner(ctx context.Context, ownerID string) (model.Business, error)
	GetEmployeeByUser(ctx context.Context, userID string) (model.Employee, error)
	GetBusiness(ctx context.Context, id string) (model.Business, error)
	GetEmployee(ctx context.Context, id string) (model.Employee, error)
}

// Tx is a transaction handle. Its availability reads see the transaction's
// own writes and, after LockEmployee, no concurrent booking for that employee.
type Tx interface {
	availability.Source

	// LockEmployee serializes bookings for one employee until the transaction ends.
	LockEmployee(ctx context.Context, employeeID string) error

	GetBusiness(ctx context.Context, id string) (model.Business, error)
	GetService(ctx context.Context, id string) (model.Service, error)
	GetEmployee(ctx context.Context, id string) (model.Employee, error)

	// InsertAppointment assigns ID and Version. An overlapping non-cancelled
	// appointment for the same employee yields model.ErrSlotUnavailable.
	InsertAppointment(ctx context.Context, appt model.Appointment) (model.Appointment, error)
	GetAppointmentForUpdate(ctx context.Context, id string) (model.Appointment, error)
	// UpdateAppointment writes status, approvals and times when appt.Version
	// still matches, and returns the row with the bumped version.
	UpdateAppointment(ctx context.Context, appt model.Appointment) (model.Appointment, error)
	// ListDueForCompletion locks CONFIRMED appointments that ended at or before
	// now, skipping rows another sweeper holds.
	ListDueForCompletion(ctx context.Context, now time.Time, limit int) ([]model.Appointment, error)

	// ClaimIdempotencyKey returns the appointment id already stored under key,
	// or "" after reserving the key for this transaction.
	ClaimIdempotencyKey(ctx context.Context, customerID, key string) (string, error)
	FinalizeIdempotencyKey(ctx context.Context, customerID, key, appointmentID string) error

	InsertEvents(ctx context.Context, events ...outbox.Event) error
}
