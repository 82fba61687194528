package booking

import (
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/apptbook/services/booking-service/internal/lifecycle"
)

type Metrics interface {
	AppointmentCreated()
	SlotConflict(stage string)
	Transition(from, to string)
	ObserveAvailability(d time.Duration)
	SweepCompleted(n int)
}

// Service runs appointment use cases: availability, booking, approvals,
// cancellation, rescheduling and the completion sweep.
type Service struct {
	store   Store
	engine  *availability.Engine
	policy  lifecycle.Policy
	logger  *slog.Logger
	metrics Metrics
}

func NewService(store Store, engine *availability.Engine, policy lifecycle.Policy, logger *slog.Logger, metrics Metrics) *Service {
	if policy == "" {
		policy = lifecycle.PolicyBoth
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Service{store: store, engine: engine, policy: policy, logger: logger, metrics: metrics}
}

func (s *Service) Engine() *availability.Engine { return s.engine }

func (s *Service) now() time.Time { return s.engine.Now() }

type noopMetrics struct{}

func (noopMetrics) AppointmentCreated()               {}
func (noopMetrics) SlotConflict(string)               {}
func (noopMetrics) Transition(string, string)         {}
func (noopMetrics) ObserveAvailability(time.Duration) {}
func (noopMetrics) SweepCompleted(int)                {}
