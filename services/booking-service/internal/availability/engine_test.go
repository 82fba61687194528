package availability

import (
	"context"
	"errors"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/model"
)

type fakeSource struct {
	hours map[string][]model.WorkingHours
	busy  map[string][]Interval
	err   error
}

func (f *fakeSource) WorkingHours(_ context.Context, employeeID string, day time.Weekday) (model.WorkingHours, bool, error) {
	week, ok := f.hours[employeeID]
	if !ok {
		return model.WorkingHours{}, false, model.ErrEmployeeNotFound
	}
	for _, h := range week {
		if h.DayOfWeek == day {
			return h, true, nil
		}
	}
	return model.WorkingHours{}, false, nil
}

func (f *fakeSource) BusyIntervals(_ context.Context, employeeID string, from, to time.Time) ([]Interval, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []Interval
	for _, b := range f.busy[employeeID] {
		if b.Overlaps(from, to) {
			out = append(out, b)
		}
	}
	return out, nil
}

// Wednesday 2030-01-30; "now" is the Monday before.
var (
	monday    = time.Date(2030, 1, 28, 8, 0, 0, 0, time.UTC)
	wednesday = time.Date(2030, 1, 30, 0, 0, 0, 0, time.UTC)
)

func newTestEngine(now time.Time) *Engine {
	return NewEngine(30*time.Minute, time.UTC, func() time.Time { return now })
}

func nineToFive() *fakeSource {
	return &fakeSource{
		hours: map[string][]model.WorkingHours{"emp-1": model.DefaultWeek("emp-1")},
		busy:  map[string][]Interval{},
	}
}

func clock(slots []time.Time) []string {
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.Format("15:04"))
	}
	return out
}

func TestSlots_FullDayHourlyService(t *testing.T) {
	e := newTestEngine(monday)

	slots, err := e.Slots(context.Background(), nineToFive(), "emp-1", wednesday, 60)
	require.NoError(t, err)

	var want []string
	for m := 9 * 60; m <= 16*60; m += 30 {
		want = append(want, time.Date(2030, 1, 30, m/60, m%60, 0, 0, time.UTC).Format("15:04"))
	}
	assert.Equal(t, want, clock(slots))
	assert.Equal(t, "16:00", clock(slots)[len(slots)-1])
}

func TestSlots_ExcludesBookedHour(t *testing.T) {
	src := nineToFive()
	src.busy["emp-1"] = []Interval{{
		ID:    "appt-1",
		Start: wednesday.Add(10 * time.Hour),
		End:   wednesday.Add(11 * time.Hour),
	}}

	slots, err := newTestEngine(monday).Slots(context.Background(), src, "emp-1", wednesday, 30)
	require.NoError(t, err)

	got := clock(slots)
	assert.NotContains(t, got, "10:00")
	assert.NotContains(t, got, "10:30")
	assert.Contains(t, got, "09:30")
	assert.Contains(t, got, "11:00")
}

func TestSlots_PastDayIsEmpty(t *testing.T) {
	slots, err := newTestEngine(wednesday.Add(24*time.Hour)).Slots(context.Background(), nineToFive(), "emp-1", wednesday, 30)
	require.NoError(t, err)
	assert.NotNil(t, slots)
	assert.Empty(t, slots)
}

func TestSlots_TodaySkipsElapsedStarts(t *testing.T) {
	now := wednesday.Add(15*time.Hour + 10*time.Minute)
	slots, err := newTestEngine(now).Slots(context.Background(), nineToFive(), "emp-1", wednesday, 60)
	require.NoError(t, err)
	assert.Equal(t, []string{"15:30", "16:00"}, clock(slots))
}

func TestSlots_DayOffIsEmpty(t *testing.T) {
	saturday := time.Date(2030, 2, 2, 0, 0, 0, 0, time.UTC)
	slots, err := newTestEngine(monday).Slots(context.Background(), nineToFive(), "emp-1", saturday, 30)
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestSlots_Errors(t *testing.T) {
	e := newTestEngine(monday)

	_, err := e.Slots(context.Background(), nineToFive(), "emp-1", wednesday, 0)
	assert.ErrorIs(t, err, model.ErrInvalidDuration)

	_, err = e.Slots(context.Background(), nineToFive(), "ghost", wednesday, 30)
	assert.ErrorIs(t, err, model.ErrEmployeeNotFound)

	boom := errors.New("db down")
	src := nineToFive()
	src.err = boom
	_, err = e.Slots(context.Background(), src, "emp-1", wednesday, 30)
	assert.ErrorIs(t, err, boom)
}

func TestSlots_ScheduleTimezone(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	e := NewEngine(30*time.Minute, loc, func() time.Time { return monday })

	slots, err := e.Slots(context.Background(), nineToFive(), "emp-1", time.Date(2030, 1, 30, 12, 0, 0, 0, loc), 480)
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.True(t, slots[0].Equal(time.Date(2030, 1, 30, 6, 0, 0, 0, time.UTC)), "09:00+03 is 06:00Z, got %s", slots[0])
}

func TestFits(t *testing.T) {
	e := newTestEngine(monday)
	src := nineToFive()
	src.busy["emp-1"] = []Interval{{ID: "appt-1", Start: wednesday.Add(10 * time.Hour), End: wednesday.Add(11 * time.Hour)}}
	ctx := context.Background()

	assert.NoError(t, e.Fits(ctx, src, "emp-1", wednesday.Add(9*time.Hour), 60))
	assert.ErrorIs(t, e.Fits(ctx, src, "emp-1", wednesday.Add(9*time.Hour+30*time.Minute), 60), model.ErrSlotUnavailable, "overlaps 10:00")
	assert.ErrorIs(t, e.Fits(ctx, src, "emp-1", wednesday.Add(9*time.Hour+10*time.Minute), 30), model.ErrSlotUnavailable, "off grid")
	assert.ErrorIs(t, e.Fits(ctx, src, "emp-1", wednesday.Add(16*time.Hour+30*time.Minute), 60), model.ErrSlotUnavailable, "past closing")
	assert.ErrorIs(t, e.Fits(ctx, src, "emp-1", wednesday.Add(9*time.Hour), -5), model.ErrInvalidDuration)

	assert.NoError(t, e.Fits(ctx, Excluding(src, "appt-1"), "emp-1", wednesday.Add(10*time.Hour), 60),
		"an appointment does not collide with itself")
}

func TestSlots_DaylightSavingKeepsWallClockGrid(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	src := &fakeSource{hours: map[string][]model.WorkingHours{"emp-1": {
		{EmployeeID: "emp-1", DayOfWeek: time.Sunday, StartMinute: 0, EndMinute: 4 * 60, IsAvailable: true},
	}}}
	now := time.Date(2030, 3, 1, 0, 0, 0, 0, ny)
	e := NewEngine(60*time.Minute, ny, func() time.Time { return now })
	ctx := context.Background()

	// 2030-11-03: 01:00-02:00 happens twice; each wall-clock start is offered once.
	fallBack := time.Date(2030, 11, 3, 12, 0, 0, 0, ny)
	slots, err := e.Slots(ctx, src, "emp-1", fallBack, 60)
	require.NoError(t, err)
	assert.Equal(t, []string{"00:00", "01:00", "02:00", "03:00"}, clock(slots))

	// 2030-03-10: 02:00-03:00 does not exist.
	springForward := time.Date(2030, 3, 10, 12, 0, 0, 0, ny)
	slots, err = e.Slots(ctx, src, "emp-1", springForward, 60)
	require.NoError(t, err)
	assert.Equal(t, []string{"00:00", "01:00", "03:00"}, clock(slots))
	for _, s := range slots {
		assert.NoError(t, e.Fits(ctx, src, "emp-1", s, 60))
	}
}

func TestWallClockGrid(t *testing.T) {
	day := time.Date(2030, 1, 30, 0, 0, 0, 0, time.UTC)
	grid := WallClockGrid(day, time.UTC, 9*60, 11*60, 45*time.Minute, 30*time.Minute)
	assert.Equal(t, []string{"09:00", "09:30", "10:00"}, clock(grid))

	grid = WallClockGrid(day, time.UTC, 22*60, 24*60, 60*time.Minute, 30*time.Minute)
	assert.Equal(t, []string{"22:00", "22:30", "23:00"}, clock(grid))

	assert.Nil(t, WallClockGrid(day, time.UTC, 9*60, 9*60, time.Hour, 30*time.Minute))
	assert.Nil(t, WallClockGrid(day, time.UTC, 9*60, 17*60, time.Hour, 0))
}
