package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Booking exposes counters for the appointment core. All methods are safe on a nil receiver.
type Booking struct {
	created         prometheus.Counter
	slotConflicts   *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	availability    prometheus.Histogram
	outboxPublished prometheus.Counter
	outboxFailures  prometheus.Counter
	sweepCompleted  prometheus.Counter
}

func NewBooking(reg prometheus.Registerer) *Booking {
	m := &Booking{
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "apptbook",
			Subsystem: "booking",
			Name:      "appointments_created_total",
			Help:      "Appointments committed.",
		}),
		slotConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "apptbook",
			Subsystem: "booking",
			Name:      "slot_conflicts_total",
			Help:      "Create or reschedule attempts rejected because the slot was taken.",
		}, []string{"stage"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "apptbook",
			Subsystem: "booking",
			Name:      "status_transitions_total",
			Help:      "Appointment status transitions.",
		}, []string{"from", "to"}),
		availability: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "apptbook",
			Subsystem: "booking",
			Name:      "availability_query_seconds",
			Help:      "Latency of slot computations.",
			Buckets:   prometheus.DefBuckets,
		}),
		outboxPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "apptbook",
			Subsystem: "outbox",
			Name:      "published_total",
			Help:      "Outbox events delivered to the sink.",
		}),
		outboxFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "apptbook",
			Subsystem: "outbox",
			Name:      "publish_failures_total",
			Help:      "Outbox batches that failed to deliver.",
		}),
		sweepCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "apptbook",
			Subsystem: "sweep",
			Name:      "completed_total",
			Help:      "Appointments moved to COMPLETED by the sweep.",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.created, m.slotConflicts, m.transitions, m.availability,
		m.outboxPublished, m.outboxFailures, m.sweepCompleted)
	return m
}

func (m *Booking) AppointmentCreated() {
	if m == nil {
		return
	}
	m.created.Inc()
}

// SlotConflict records a lost race; stage is "check" (engine rejected) or
// "constraint" (the database exclusion constraint rejected).
func (m *Booking) SlotConflict(stage string) {
	if m == nil {
		return
	}
	m.slotConflicts.WithLabelValues(stage).Inc()
}

func (m *Booking) Transition(from, to string) {
	if m == nil || from == to {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

func (m *Booking) ObserveAvailability(d time.Duration) {
	if m == nil {
		return
	}
	m.availability.Observe(d.Seconds())
}

func (m *Booking) OutboxPublished(n int) {
	if m == nil {
		return
	}
	m.outboxPublished.Add(float64(n))
}

func (m *Booking) OutboxFailed() {
	if m == nil {
		return
	}
	m.outboxFailures.Inc()
}

func (m *Booking) SweepCompleted(n int) {
	if m == nil {
		return
	}
	m.sweepCompleted.Add(float64(n))
}
