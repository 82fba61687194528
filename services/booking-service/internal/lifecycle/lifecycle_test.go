package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/model"
)

var (
	now   = time.Date(2030, 3, 4, 12, 0, 0, 0, time.UTC)
	start = now.Add(48 * time.Hour)
)

func pending() model.Appointment {
	return Create(Draft{
		CustomerID:      "cust-1",
		BusinessID:      "biz-1",
		ServiceID:       "svc-1",
		EmployeeID:      "emp-1",
		Start:           start,
		DurationMinutes: 60,
	}, now).Appointment
}

func eventTypes(o Outcome) []string {
	out := make([]string, 0, len(o.Events))
	for _, e := range o.Events {
		out = append(out, e.Type)
	}
	return out
}

func TestCreate(t *testing.T) {
	o := Create(Draft{CustomerID: "c", Start: start, DurationMinutes: 45}, now)
	assert.Equal(t, model.StatusPending, o.Appointment.Status)
	assert.Nil(t, o.Appointment.OwnerApproved)
	assert.Nil(t, o.Appointment.EmployeeApproved)
	assert.True(t, o.Appointment.EndTime.Equal(start.Add(45*time.Minute)))
	assert.Equal(t, []string{EventCreated}, eventTypes(o))
}

func TestDecide_BothPolicyNeedsBoth(t *testing.T) {
	o, err := Decide(pending(), PartyOwner, true, PolicyBoth, now)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, o.Appointment.Status)
	assert.Equal(t, []string{EventApprovalRecorded}, eventTypes(o))

	o, err = Decide(o.Appointment, PartyEmployee, true, PolicyBoth, now)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, o.Appointment.Status)
	assert.Equal(t, []string{EventApprovalRecorded, EventConfirmed}, eventTypes(o))
}

func TestDecide_EitherPolicyConfirmsOnFirstApproval(t *testing.T) {
	o, err := Decide(pending(), PartyEmployee, true, PolicyEither, now)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, o.Appointment.Status)

	// The other party can still reject a confirmed appointment.
	o, err = Decide(o.Appointment, PartyOwner, false, PolicyEither, now)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, o.Appointment.Status)
	assert.Equal(t, ReasonOwnerRejected, o.Events[len(o.Events)-1].Reason)
}

func TestDecide_OwnerRejectCancelsRegardlessOfEmployee(t *testing.T) {
	o, err := Decide(pending(), PartyOwner, false, PolicyBoth, now)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, o.Appointment.Status)
	assert.Nil(t, o.Appointment.EmployeeApproved)
	assert.Equal(t, []string{EventApprovalRecorded, EventCancelled}, eventTypes(o))

	_, err = Decide(o.Appointment, PartyEmployee, true, PolicyBoth, now)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
}

func TestDecide_RepeatIsIdempotent(t *testing.T) {
	once, err := Decide(pending(), PartyOwner, true, PolicyBoth, now)
	require.NoError(t, err)

	twice, err := Decide(once.Appointment, PartyOwner, true, PolicyBoth, now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, twice.Changed)
	assert.Empty(t, twice.Events)
	assert.Equal(t, once.Appointment, twice.Appointment)

	_, err = Decide(once.Appointment, PartyOwner, false, PolicyBoth, now)
	assert.ErrorIs(t, err, model.ErrAlreadyDecided)
}

func TestDecide_DoesNotMutateInput(t *testing.T) {
	in := pending()
	_, err := Decide(in, PartyEmployee, true, PolicyBoth, now)
	require.NoError(t, err)
	assert.Nil(t, in.EmployeeApproved)
}

func TestRecompute(t *testing.T) {
	yes, no := true, false
	cases := []struct {
		name     string
		owner    *bool
		employee *bool
		policy   Policy
		want     model.Status
	}{
		{"none", nil, nil, PolicyBoth, model.StatusPending},
		{"owner only both", &yes, nil, PolicyBoth, model.StatusPending},
		{"owner only either", &yes, nil, PolicyEither, model.StatusConfirmed},
		{"both yes", &yes, &yes, PolicyBoth, model.StatusConfirmed},
		{"employee no", &yes, &no, PolicyEither, model.StatusCancelled},
		{"owner no", &no, nil, PolicyBoth, model.StatusCancelled},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := pending()
			a.OwnerApproved, a.EmployeeApproved = tc.owner, tc.employee
			assert.Equal(t, tc.want, Recompute(a, tc.policy))
		})
	}

	done := pending()
	done.Status = model.StatusCompleted
	assert.Equal(t, model.StatusCompleted, Recompute(done, PolicyBoth))
}

func TestCancel(t *testing.T) {
	o, err := Cancel(pending(), "cust-1", now)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, o.Appointment.Status)
	assert.Equal(t, ReasonCustomerCancelled, o.Events[0].Reason)

	_, err = Cancel(pending(), "someone-else", now)
	assert.ErrorIs(t, err, model.ErrCancellationNotAllowed)

	confirmedPast := pending()
	confirmedPast.Status = model.StatusConfirmed
	_, err = Cancel(confirmedPast, "cust-1", start.Add(time.Minute))
	assert.ErrorIs(t, err, model.ErrCancellationNotAllowed)

	_, err = Cancel(confirmedPast, "cust-1", start)
	assert.ErrorIs(t, err, model.ErrCancellationNotAllowed, "start time itself is not strictly future")

	_, err = Cancel(o.Appointment, "cust-1", now)
	assert.ErrorIs(t, err, model.ErrCancellationNotAllowed, "already cancelled")
}

func TestReschedule(t *testing.T) {
	a := pending()
	yes := true
	a.OwnerApproved, a.EmployeeApproved = &yes, &yes
	a.Status = model.StatusConfirmed

	next := start.Add(24 * time.Hour)
	o, err := Reschedule(a, "cust-1", next, now)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, o.Appointment.Status)
	assert.Nil(t, o.Appointment.OwnerApproved)
	assert.True(t, o.Appointment.EndTime.Equal(next.Add(time.Hour)))
	assert.Equal(t, []string{EventRescheduled}, eventTypes(o))

	_, err = Reschedule(a, "intruder", next, now)
	assert.ErrorIs(t, err, model.ErrUnauthorized)

	same, err := Reschedule(a, "cust-1", start, now)
	require.NoError(t, err)
	assert.False(t, same.Changed)
}

func TestComplete(t *testing.T) {
	a := pending()
	a.Status = model.StatusConfirmed

	_, ok := Complete(a, a.EndTime.Add(-time.Second))
	assert.False(t, ok, "still running")

	o, ok := Complete(a, a.EndTime)
	require.True(t, ok)
	assert.Equal(t, model.StatusCompleted, o.Appointment.Status)
	assert.Equal(t, []string{EventCompleted}, eventTypes(o))

	_, ok = Complete(o.Appointment, a.EndTime.Add(time.Hour))
	assert.False(t, ok, "completion is idempotent")

	_, ok = Complete(pending(), a.EndTime.Add(time.Hour))
	assert.False(t, ok, "pending appointments are never completed")
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyBoth, p)

	p, err = ParsePolicy(" Either ")
	require.NoError(t, err)
	assert.Equal(t, PolicyEither, p)

	_, err = ParsePolicy("majority")
	assert.Error(t, err)
}
