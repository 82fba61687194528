package availability

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/model"
)

// Source supplies the two inputs of a slot computation. Pool-backed sources give
// lock-free snapshot reads; a transaction handle gives reads under the employee lock.
type Source interface {
	// WorkingHours returns model.ErrEmployeeNotFound for unknown employees and
	// ok=false when the employee has no record for the weekday.
	WorkingHours(ctx context.Context, employeeID string, day time.Weekday) (hours model.WorkingHours, ok bool, err error)
	// BusyIntervals lists non-cancelled appointments of the employee overlapping [from, to).
	BusyIntervals(ctx context.Context, employeeID string, from, to time.Time) ([]Interval, error)
}

type Engine struct {
	step time.Duration
	loc  *time.Location
	now  func() time.Time
}

func NewEngine(step time.Duration, loc *time.Location, now func() time.Time) *Engine {
	if step <= 0 {
		step = 30 * time.Minute
	}
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &Engine{step: step, loc: loc, now: now}
}

func (e *Engine) Step() time.Duration      { return e.step }
func (e *Engine) Location() *time.Location { return e.loc }
func (e *Engine) Now() time.Time           { return e.now().In(e.loc) }

// Slots returns the bookable starts on the calendar day containing day (in the
// engine location). Past days, days off and fully booked days yield an empty,
// non-nil slice.
func (e *Engine) Slots(ctx context.Context, src Source, employeeID string, day time.Time, durationMinutes int) ([]time.Time, error) {
	if durationMinutes <= 0 {
		return nil, model.ErrInvalidDuration
	}
	dayStart := e.startOfDay(day)
	hours, ok, err := src.WorkingHours(ctx, employeeID, dayStart.Weekday())
	if err != nil {
		return nil, err
	}

	now := e.Now()
	if dayStart.Before(e.startOfDay(now)) || !ok || !hours.IsAvailable {
		return []time.Time{}, nil
	}

	windowStart, windowEnd := e.Window(dayStart, hours)
	busy, err := src.BusyIntervals(ctx, employeeID, windowStart, windowEnd)
	if err != nil {
		return nil, err
	}

	duration := time.Duration(durationMinutes) * time.Minute
	grid := WallClockGrid(dayStart, e.loc, hours.StartMinute, hours.EndMinute, duration, e.step)
	slots := FreeSlots(grid, duration, busy, now)
	if slots == nil {
		slots = []time.Time{}
	}
	return slots, nil
}

// Fits reports whether start is one of the slots Slots would offer right now.
// It returns model.ErrSlotUnavailable for off-grid, out-of-hours, past or
// overlapping starts.
func (e *Engine) Fits(ctx context.Context, src Source, employeeID string, start time.Time, durationMinutes int) error {
	slots, err := e.Slots(ctx, src, employeeID, start, durationMinutes)
	if err != nil {
		return err
	}
	for _, s := range slots {
		if s.Equal(start) {
			return nil
		}
	}
	return model.ErrSlotUnavailable
}

// Window converts a weekday record to absolute times on the given day.
func (e *Engine) Window(day time.Time, hours model.WorkingHours) (time.Time, time.Time) {
	y, m, d := day.In(e.loc).Date()
	start := time.Date(y, m, d, hours.StartMinute/60, hours.StartMinute%60, 0, 0, e.loc)
	end := time.Date(y, m, d, hours.EndMinute/60, hours.EndMinute%60, 0, 0, e.loc)
	return start, end
}

func (e *Engine) startOfDay(t time.Time) time.Time {
	y, m, d := t.In(e.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, e.loc)
}

// Excluding hides one appointment's own interval, so a reschedule does not
// collide with the slot it is moving away from.
func Excluding(src Source, appointmentID string) Source {
	return excludingSource{Source: src, id: appointmentID}
}

type excludingSource struct {
	Source
	id string
}

func (s excludingSource) BusyIntervals(ctx context.Context, employeeID string, from, to time.Time) ([]Interval, error) {
	busy, err := s.Source.BusyIntervals(ctx, employeeID, from, to)
	if err != nil {
		return nil, err
	}
	out := busy[:0:0]
	for _, b := range busy {
		if b.ID != s.id {
			out = append(out, b)
		}
	}
	return out, nil
}
