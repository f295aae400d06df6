// Package failurenotifier fans anomaly alerts out to every configured sink.
package failurenotifier

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/interop/jobgather/internal/observability/notify"
)

// SinkRegistration pairs a sink implementation with a human-readable name for logging.
type SinkRegistration struct {
	Name string
	Sink notify.Sink
}

// Options configures the notifier service.
type Options struct {
	Logger *slog.Logger
	Sinks  []SinkRegistration
	// SuppressWindow drops repeats of the same DedupKey raised within the window. Zero sends every alert.
	SuppressWindow time.Duration
	// Now overrides the clock used for suppression.
	Now func() time.Time
}

// Service dispatches anomalies to all registered sinks. It implements notify.Alerter.
type Service struct {
	logger   *slog.Logger
	sinks    []SinkRegistration
	window   time.Duration
	now      func() time.Time
	mu       sync.Mutex
	lastSent map[string]time.Time
}

var _ notify.Alerter = (*Service)(nil)

// NewService constructs a notifier.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	var sinks []SinkRegistration
	for _, entry := range opts.Sinks {
		if entry.Sink == nil {
			continue
		}
		if entry.Name == "" {
			entry.Name = "sink"
		}
		sinks = append(sinks, entry)
	}

	return &Service{
		logger:   logger.With("component", "failure_notifier"),
		sinks:    sinks,
		window:   opts.SuppressWindow,
		now:      now,
		lastSent: make(map[string]time.Time),
	}
}

// NotifyAnomaly fans the payload out to all sinks and waits for them. Delivery errors are
// logged; they never reach the caller.
func (s *Service) NotifyAnomaly(ctx context.Context, payload notify.AnomalyPayload) {
	if len(s.sinks) == 0 {
		return
	}
	if payload.Severity == "" {
		payload.Severity = payload.Kind.DefaultSeverity()
	}
	if payload.OccurredAt.IsZero() {
		payload.OccurredAt = s.now()
	}
	if s.suppressed(payload.DedupKey(), payload.OccurredAt) {
		s.logger.DebugContext(ctx, "anomaly suppressed",
			"kind", payload.Kind,
			"job_id", payload.JobID,
		)
		return
	}

	var wg sync.WaitGroup
	for _, entry := range s.sinks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := entry.Sink.SendAnomaly(ctx, payload); err != nil {
				s.logger.ErrorContext(ctx, "anomaly delivery error",
					"sink", entry.Name,
					"kind", payload.Kind,
					"job_id", payload.JobID,
					"error", err,
				)
			}
		}()
	}
	wg.Wait()
}

func (s *Service) suppressed(key string, at time.Time) bool {
	if s.window <= 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if last, ok := s.lastSent[key]; ok && at.Sub(last) < s.window {
		return true
	}
	s.lastSent[key] = at
	// Keep the map bounded by the window.
	for k, t := range s.lastSent {
		if at.Sub(t) >= s.window {
			delete(s.lastSent, k)
		}
	}
	return false
}

// Enabled reports whether the notifier has any active sinks.
func (s *Service) Enabled() bool {
	return len(s.sinks) > 0
}
