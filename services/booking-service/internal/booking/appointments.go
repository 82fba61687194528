package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/md-rashed-zaman/apptbook/libs/auth"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/lifecycle"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/model"
)

type CreateRequest struct {
	BusinessID     string
	ServiceID      string
	EmployeeID     string
	Start          time.Time
	Notes          string
	IdempotencyKey string
}

// Availability lists bookable starts for one employee on one day.
func (s *Service) Availability(ctx context.Context, employeeID string, day time.Time, durationMinutes int) ([]time.Time, error) {
	if strings.TrimSpace(employeeID) == "" {
		return nil, model.ErrEmployeeNotFound
	}
	started := time.Now()
	defer func() { s.metrics.ObserveAvailability(time.Since(started)) }()
	return s.engine.Slots(ctx, s.store, employeeID, day, durationMinutes)
}

// Create books a slot for the calling customer. Availability is re-checked
// under the employee lock and the insert is guarded by the store's overlap
// constraint, so of two racing requests for one slot exactly one commits.
// replayed reports that the idempotency key matched an earlier booking.
func (s *Service) Create(ctx context.Context, actor auth.Actor, req CreateRequest) (appt model.Appointment, replayed bool, err error) {
	if !actor.Is(auth.RoleCustomer) {
		return model.Appointment{}, false, model.ErrUnauthorized
	}
	if req.BusinessID == "" || req.ServiceID == "" || req.EmployeeID == "" || req.Start.IsZero() {
		return model.Appointment{}, false, fmt.Errorf("%w: businessId, serviceId, employeeId and appointmentDate are required", model.ErrValidation)
	}
	if len(req.Notes) > 1000 {
		return model.Appointment{}, false, fmt.Errorf("%w: notes too long", model.ErrValidation)
	}

	ctx, span := startSpan(ctx, "booking.create",
		attribute.String("booking.employee_id", req.EmployeeID),
		attribute.String("booking.service_id", req.ServiceID),
	)
	defer func() { endSpan(span, err) }()

	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if req.IdempotencyKey != "" {
			existing, err := tx.ClaimIdempotencyKey(ctx, actor.UserID, req.IdempotencyKey)
			if err != nil {
				return err
			}
			if existing != "" {
				appt, err = tx.GetAppointmentForUpdate(ctx, existing)
				replayed = err == nil
				return err
			}
		}

		svc, err := tx.GetService(ctx, req.ServiceID)
		if err != nil || !svc.Active || svc.BusinessID != req.BusinessID {
			return notFound(err, "service")
		}
		if svc.DurationMinutes <= 0 {
			return model.ErrInvalidDuration
		}
		emp, err := tx.GetEmployee(ctx, req.EmployeeID)
		if err != nil || !emp.Active || emp.BusinessID != req.BusinessID {
			if err != nil && !errors.Is(err, model.ErrNotFound) && !errors.Is(err, model.ErrEmployeeNotFound) {
				return err
			}
			return model.ErrEmployeeNotFound
		}
		biz, err := tx.GetBusiness(ctx, req.BusinessID)
		if err != nil {
			return notFound(err, "business")
		}

		if err := tx.LockEmployee(ctx, emp.ID); err != nil {
			return err
		}
		if err := s.engine.Fits(ctx, tx, emp.ID, req.Start, svc.DurationMinutes); err != nil {
			if errors.Is(err, model.ErrSlotUnavailable) {
				s.metrics.SlotConflict("check")
			}
			return err
		}

		out := lifecycle.Create(lifecycle.Draft{
			CustomerID:      actor.UserID,
			BusinessID:      req.BusinessID,
			ServiceID:       svc.ID,
			EmployeeID:      emp.ID,
			Start:           req.Start,
			DurationMinutes: svc.DurationMinutes,
			Notes:           strings.TrimSpace(req.Notes),
		}, s.now())
		appt, err = tx.InsertAppointment(ctx, out.Appointment)
		if err != nil {
			if errors.Is(err, model.ErrSlotUnavailable) {
				s.metrics.SlotConflict("constraint")
			}
			return err
		}
		out.Appointment = appt

		if err := s.emit(ctx, tx, out, parties{ownerUserID: biz.OwnerID, employeeUserID: emp.UserID}); err != nil {
			return err
		}
		if req.IdempotencyKey != "" {
			return tx.FinalizeIdempotencyKey(ctx, actor.UserID, req.IdempotencyKey, appt.ID)
		}
		return nil
	})
	if err != nil {
		return model.Appointment{}, false, err
	}
	if !replayed {
		s.metrics.AppointmentCreated()
		s.logger.InfoContext(ctx, "appointment created",
			"appointment_id", appt.ID,
			"employee_id", appt.EmployeeID,
			"start", appt.AppointmentDate,
		)
	}
	return appt, replayed, nil
}

func (s *Service) ApproveAsOwner(ctx context.Context, actor auth.Actor, id string) (model.Appointment, error) {
	return s.decide(ctx, actor, id, lifecycle.PartyOwner, true)
}

func (s *Service) RejectAsOwner(ctx context.Context, actor auth.Actor, id string) (model.Appointment, error) {
	return s.decide(ctx, actor, id, lifecycle.PartyOwner, false)
}

func (s *Service) ApproveAsEmployee(ctx context.Context, actor auth.Actor, id string) (model.Appointment, error) {
	return s.decide(ctx, actor, id, lifecycle.PartyEmployee, true)
}

func (s *Service) RejectAsEmployee(ctx context.Context, actor auth.Actor, id string) (model.Appointment, error) {
	return s.decide(ctx, actor, id, lifecycle.PartyEmployee, false)
}

// decide loads the row FOR UPDATE so concurrent owner and employee decisions
// serialize and the second recompute sees both approvals.
func (s *Service) decide(ctx context.Context, actor auth.Actor, id string, party lifecycle.Party, approve bool) (_ model.Appointment, err error) {
	ctx, span := startSpan(ctx, "booking.decide",
		attribute.String("booking.appointment_id", id),
		attribute.String("booking.party", string(party)),
		attribute.Bool("booking.approve", approve),
	)
	defer func() { endSpan(span, err) }()

	var result model.Appointment
	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		appt, err := tx.GetAppointmentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		p, err := s.loadParties(ctx, tx, appt)
		if err != nil {
			return err
		}
		switch party {
		case lifecycle.PartyOwner:
			if p.ownerUserID != actor.UserID {
				return model.ErrUnauthorized
			}
		case lifecycle.PartyEmployee:
			if p.employeeUserID == "" || p.employeeUserID != actor.UserID {
				return model.ErrUnauthorized
			}
		}

		out, err := lifecycle.Decide(appt, party, approve, s.policy, s.now())
		if err != nil {
			return err
		}
		result, err = s.apply(ctx, tx, out, p)
		return err
	})
	if err != nil {
		return model.Appointment{}, err
	}
	return result, nil
}

// Cancel is customer-initiated cancellation of their own future appointment.
func (s *Service) Cancel(ctx context.Context, actor auth.Actor, id string) (model.Appointment, error) {
	var result model.Appointment
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		appt, err := tx.GetAppointmentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		out, err := lifecycle.Cancel(appt, actor.UserID, s.now())
		if err != nil {
			return err
		}
		p, err := s.loadParties(ctx, tx, appt)
		if err != nil {
			return err
		}
		result, err = s.apply(ctx, tx, out, p)
		return err
	})
	if err != nil {
		return model.Appointment{}, err
	}
	return result, nil
}

// Reschedule moves the customer's appointment to a new start on the same
// employee's calendar, with the same guarantees as Create.
func (s *Service) Reschedule(ctx context.Context, actor auth.Actor, id string, start time.Time) (model.Appointment, error) {
	if start.IsZero() {
		return model.Appointment{}, fmt.Errorf("%w: appointmentDate is required", model.ErrValidation)
	}
	var result model.Appointment
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		appt, err := tx.GetAppointmentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		out, err := lifecycle.Reschedule(appt, actor.UserID, start, s.now())
		if err != nil || !out.Changed {
			result = appt
			return err
		}
		if err := tx.LockEmployee(ctx, appt.EmployeeID); err != nil {
			return err
		}
		if err := s.engine.Fits(ctx, availability.Excluding(tx, appt.ID), appt.EmployeeID, start, appt.DurationMinutes); err != nil {
			if errors.Is(err, model.ErrSlotUnavailable) {
				s.metrics.SlotConflict("check")
			}
			return err
		}
		p, err := s.loadParties(ctx, tx, appt)
		if err != nil {
			return err
		}
		result, err = s.apply(ctx, tx, out, p)
		if errors.Is(err, model.ErrSlotUnavailable) {
			s.metrics.SlotConflict("constraint")
		}
		return err
	})
	if err != nil {
		return model.Appointment{}, err
	}
	return result, nil
}

// CompleteDue moves up to limit elapsed CONFIRMED appointments to COMPLETED.
// Running it again finds nothing new, so overlapping sweeps are harmless.
func (s *Service) CompleteDue(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	now := s.now()
	completed := 0
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		due, err := tx.ListDueForCompletion(ctx, now, limit)
		if err != nil {
			return err
		}
		for _, appt := range due {
			out, ok := lifecycle.Complete(appt, now)
			if !ok {
				continue
			}
			p, err := s.loadParties(ctx, tx, appt)
			if err != nil {
				return err
			}
			if _, err := s.apply(ctx, tx, out, p); err != nil {
				return err
			}
			completed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.metrics.SweepCompleted(completed)
	return completed, nil
}

// Get returns an appointment visible to the actor: its customer, the owner of
// its business, or the assigned employee.
func (s *Service) Get(ctx context.Context, actor auth.Actor, id string) (model.Appointment, error) {
	appt, err := s.store.GetAppointment(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if appt.CustomerID == actor.UserID {
		return appt, nil
	}
	if biz, err := s.store.GetBusiness(ctx, appt.BusinessID); err == nil && biz.OwnerID == actor.UserID {
		return appt, nil
	}
	if emp, err := s.store.GetEmployee(ctx, appt.EmployeeID); err == nil && emp.UserID != "" && emp.UserID == actor.UserID {
		return appt, nil
	}
	return model.Appointment{}, model.ErrUnauthorized
}

type ListRequest struct {
	Status model.Status
	From   time.Time
	To     time.Time
	Page   int
	Size   int
}

// List returns the caller's appointments: a customer sees their bookings, an
// owner sees their business, staff see what is assigned to them.
func (s *Service) List(ctx context.Context, actor auth.Actor, req ListRequest) ([]model.Appointment, int, error) {
	if req.Status != "" && !req.Status.Valid() {
		return nil, 0, fmt.Errorf("%w: unknown status %q", model.ErrValidation, req.Status)
	}
	f := model.AppointmentFilter{Status: req.Status, From: req.From, To: req.To, Limit: req.Size, Offset: req.Page * req.Size}
	switch actor.Role {
	case auth.RoleCustomer:
		f.CustomerID = actor.UserID
	case auth.RoleBusinessOwner:
		biz, err := s.store.GetBusinessByOwner(ctx, actor.UserID)
		if errors.Is(err, model.ErrNotFound) {
			return []model.Appointment{}, 0, nil
		}
		if err != nil {
			return nil, 0, err
		}
		f.BusinessID = biz.ID
	case auth.RoleStaff:
		emp, err := s.store.GetEmployeeByUser(ctx, actor.UserID)
		if errors.Is(err, model.ErrNotFound) || errors.Is(err, model.ErrEmployeeNotFound) {
			return []model.Appointment{}, 0, nil
		}
		if err != nil {
			return nil, 0, err
		}
		f.EmployeeID = emp.ID
	default:
		return nil, 0, model.ErrUnauthorized
	}
	return s.store.ListAppointments(ctx, f)
}

// apply persists a changed outcome and writes its events; unchanged outcomes
// are returned as-is.
func (s *Service) apply(ctx context.Context, tx Tx, out lifecycle.Outcome, p parties) (model.Appointment, error) {
	if !out.Changed {
		return out.Appointment, nil
	}
	updated, err := tx.UpdateAppointment(ctx, out.Appointment)
	if err != nil {
		return model.Appointment{}, err
	}
	out.Appointment = updated
	if err := s.emit(ctx, tx, out, p); err != nil {
		return model.Appointment{}, err
	}
	s.metrics.Transition(string(out.Previous), string(updated.Status))
	return updated, nil
}

type parties struct {
	ownerUserID    string
	employeeUserID string
}

func (s *Service) loadParties(ctx context.Context, tx Tx, appt model.Appointment) (parties, error) {
	biz, err := tx.GetBusiness(ctx, appt.BusinessID)
	if err != nil {
		return parties{}, fmt.Errorf("load business %s: %w", appt.BusinessID, err)
	}
	emp, err := tx.GetEmployee(ctx, appt.EmployeeID)
	if err != nil {
		return parties{}, fmt.Errorf("load employee %s: %w", appt.EmployeeID, err)
	}
	return parties{ownerUserID: biz.OwnerID, employeeUserID: emp.UserID}, nil
}

func notFound(err error, what string) error {
	if err == nil || errors.Is(err, model.ErrNotFound) {
		return fmt.Errorf("%w: %s", model.ErrNotFound, what)
	}
	return err
}

const tracerName = "booking-service/booking"

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// endSpan marks the span failed for unexpected errors only. Domain outcomes
// such as a taken slot are recorded as events.
func endSpan(span trace.Span, err error) {
	switch {
	case err == nil:
	case isDomainError(err):
		span.AddEvent("rejected", trace.WithAttributes(attribute.String("error", err.Error())))
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func isDomainError(err error) bool {
	for _, target := range []error{
		model.ErrValidation, model.ErrNotFound, model.ErrEmployeeNotFound, model.ErrSlotUnavailable,
		model.ErrInvalidDuration, model.ErrAlreadyDecided, model.ErrInvalidTransition, model.ErrUnauthorized,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
