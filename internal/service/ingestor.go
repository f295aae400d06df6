package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/interop/jobgather/internal/core"
	"github.com/interop/jobgather/internal/domain/model"
	apperrors "github.com/interop/jobgather/internal/errors"
	"github.com/interop/jobgather/internal/observability/metrics"
	"github.com/interop/jobgather/internal/observability/notify"
	"github.com/interop/jobgather/internal/observability/statsd"
)

// Reasons an event is acknowledged without being counted.
const (
	SkipInvalidEvent   = "invalid_event"
	SkipDuplicate      = "duplicate"
	SkipMappingMissing = "mapping_missing"
)

// ResultIngestorOptions groups dependencies for ResultIngestor.
type ResultIngestorOptions struct {
	Bus         core.EventBus              // Required for Run
	Mappings    core.UnitMappingRepository // Required
	Records     core.UnitRecordRepository  // Required
	Coordinator *Coordinator               // Required
	Guard       core.DeliveryGuard         // Optional: cross-process redelivery dedup
	Logger      *slog.Logger
	Metrics     statsd.Sink
	Alerter     notify.Alerter
	Now         func() time.Time
	// HandlerTimeout bounds one event's processing; zero means no extra bound.
	HandlerTimeout time.Duration
}

// ResultIngestor turns "unit finished" events into counted progress.
type ResultIngestor struct {
	bus         core.EventBus
	mappings    core.UnitMappingRepository
	records     core.UnitRecordRepository
	coordinator *Coordinator
	guard       core.DeliveryGuard
	logger      *slog.Logger
	metrics     statsd.Sink
	alerter     notify.Alerter
	now         func() time.Time
	timeout     time.Duration
}

// NewResultIngestor constructs a ResultIngestor.
func NewResultIngestor(opts ResultIngestorOptions) (*ResultIngestor, error) {
	switch {
	case opts.Mappings == nil:
		return nil, errors.New("UnitMappingRepository is required")
	case opts.Records == nil:
		return nil, errors.New("UnitRecordRepository is required")
	case opts.Coordinator == nil:
		return nil, errors.New("Coordinator is required")
	}
	return &ResultIngestor{
		bus:         opts.Bus,
		mappings:    opts.Mappings,
		records:     opts.Records,
		coordinator: opts.Coordinator,
		guard:       opts.Guard,
		logger:      componentLogger(opts.Logger, "result_ingestor"),
		metrics:     opts.Metrics,
		alerter:     alerterOrNop(opts.Alerter),
		now:         clockOrNow(opts.Now),
		timeout:     opts.HandlerTimeout,
	}, nil
}

// Run subscribes to the bus and blocks until ctx is canceled.
func (i *ResultIngestor) Run(ctx context.Context) error {
	if i.bus == nil {
		return errors.New("EventBus is required")
	}
	i.logger.InfoContext(ctx, "starting result ingestor")
	err := i.bus.Subscribe(ctx, i.Handle)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Handle processes one delivery. A returned error means nothing was counted and the bus
// should redeliver; once the increment happened every later failure is only reported.
func (i *ResultIngestor) Handle(ctx context.Context, ev model.UnitEvent) error {
	if i.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.timeout)
		defer cancel()
	}
	log := i.logger.With("job_id", ev.JobID, "unit_ref", ev.UnitRef, "correlation_id", ev.CorrelationID)

	if err := ev.Validate(); err != nil {
		log.WarnContext(ctx, "dropping malformed unit event", "error", err)
		metrics.EmitIngestSkipped(i.metrics, SkipInvalidEvent)
		return nil
	}

	key := ev.DedupKey()
	if i.guard != nil {
		claimed, err := i.guard.Claim(ctx, key)
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeInternal, "claim delivery")
		}
		if !claimed {
			log.DebugContext(ctx, "duplicate delivery skipped")
			metrics.EmitIngestSkipped(i.metrics, SkipDuplicate)
			return nil
		}
	}

	mapping, err := i.resolve(ctx, ev)
	if apperrors.IsNotFound(err) {
		i.release(ctx, log, key)
		log.WarnContext(ctx, "no unit mapping for event")
		metrics.EmitIngestSkipped(i.metrics, SkipMappingMissing)
		i.alerter.NotifyAnomaly(ctx, notify.AnomalyPayload{
			Kind:          notify.KindMappingMissing,
			JobID:         ev.JobID,
			CorrelationID: ev.CorrelationID,
			Summary:       "unit event could not be correlated to a job",
			OccurredAt:    i.now().UTC(),
			Metadata:      map[string]string{"unit_ref": ev.UnitRef},
		})
		return nil
	}
	if err != nil {
		i.release(ctx, log, key)
		return err
	}

	if err := i.records.Upsert(ctx, core.UpsertUnitRecordParams{
		JobID:        mapping.JobID,
		UnitRef:      mapping.UnitRef,
		Outcome:      ev.Outcome,
		ReasonForDev: ev.ReasonForDev,
	}); err != nil {
		i.release(ctx, log, key)
		return err
	}

	decision, err := i.coordinator.OnUnitResult(ctx, mapping.JobID, ev.Outcome)
	if err != nil {
		i.release(ctx, log, key)
		return err
	}

	if i.guard != nil {
		if err := i.guard.Complete(ctx, key); err != nil {
			log.WarnContext(ctx, "failed to mark delivery processed", "error", err)
		}
	}
	log.DebugContext(ctx, "unit event ingested", "job_id", mapping.JobID, "decision", decision)
	return nil
}

func (i *ResultIngestor) resolve(ctx context.Context, ev model.UnitEvent) (*model.UnitMapping, error) {
	if ev.CorrelationID != "" {
		return i.mappings.GetByCorrelationID(ctx, ev.CorrelationID)
	}
	return i.mappings.GetByUnit(ctx, ev.JobID, ev.UnitRef)
}

func (i *ResultIngestor) release(ctx context.Context, log *slog.Logger, key string) {
	if i.guard == nil {
		return
	}
	if err := i.guard.Release(context.WithoutCancel(ctx), key); err != nil {
		log.WarnContext(ctx, "failed to release delivery claim", "error", err)
	}
}
