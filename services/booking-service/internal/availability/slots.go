package availability

import "time"

// Interval is a half-open busy range [Start, End). ID names the appointment
// holding it, when known.
type Interval struct {
	ID    string
	Start time.Time
	End   time.Time
}

// Overlaps uses the half-open test: [start,end) meets [i.Start,i.End) iff start < i.End && i.Start < end.
func (i Interval) Overlaps(start, end time.Time) bool {
	return start.Before(i.End) && i.Start.Before(end)
}

// AvailableSlots returns slot starts on a fixed step grid anchored at windowStart
// for which [t, t+duration) lies inside [windowStart, windowEnd), starts no earlier
// than now, and overlaps no busy interval. Results are ascending.
func AvailableSlots(windowStart, windowEnd time.Time, duration, step time.Duration, busy []Interval, now time.Time) []time.Time {
	if duration <= 0 || step <= 0 {
		return nil
	}
	if !windowEnd.After(windowStart) || windowStart.Add(duration).After(windowEnd) {
		return nil
	}

	var candidates []time.Time
	for t := windowStart; !t.Add(duration).After(windowEnd); t = t.Add(step) {
		candidates = append(candidates, t)
	}
	return freeSlots(candidates, duration, busy, now)
}

// WallClockGrid lists the candidate starts of a working window given in minutes
// from midnight of day in loc. Each start is built from the wall clock, so the
// grid keeps its :00/:30 labels on days with a daylight-saving switch. Wall
// times skipped by the switch are left out, and the last start is the latest
// one whose [t, t+duration) ends by the window end.
func WallClockGrid(day time.Time, loc *time.Location, startMinute, endMinute int, duration, step time.Duration) []time.Time {
	stepMinutes := int(step / time.Minute)
	if duration <= 0 || stepMinutes <= 0 || endMinute <= startMinute {
		return nil
	}
	y, m, d := day.In(loc).Date()
	windowEnd := time.Date(y, m, d, 0, endMinute, 0, 0, loc)

	var out []time.Time
	for minute := startMinute; minute < endMinute; minute += stepMinutes {
		t := time.Date(y, m, d, 0, minute, 0, 0, loc)
		if t.Hour()*60+t.Minute() != minute%(24*60) {
			continue
		}
		if t.Add(duration).After(windowEnd) {
			break
		}
		out = append(out, t)
	}
	return out
}

// FreeSlots filters grid candidates down to those starting no earlier than now
// and overlapping no busy interval.
func FreeSlots(candidates []time.Time, duration time.Duration, busy []Interval, now time.Time) []time.Time {
	return freeSlots(candidates, duration, busy, now)
}

func freeSlots(candidates []time.Time, duration time.Duration, busy []Interval, now time.Time) []time.Time {
	var slots []time.Time
	for _, t := range candidates {
		if t.Before(now) {
			continue
		}
		if !overlapsAny(t, t.Add(duration), busy) {
			slots = append(slots, t)
		}
	}
	return slots
}

func overlapsAny(start, end time.Time, busy []Interval) bool {
	for _, b := range busy {
		if b.Overlaps(start, end) {
			return true
		}
	}
	return false
}
