package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/interop/jobgather/internal/core"
	"github.com/interop/jobgather/internal/domain/fanout"
	"github.com/interop/jobgather/internal/domain/model"
	apperrors "github.com/interop/jobgather/internal/errors"
	"github.com/interop/jobgather/internal/observability/metrics"
	"github.com/interop/jobgather/internal/observability/notify"
	"github.com/interop/jobgather/internal/observability/statsd"
)

// GatherRequest is one logical request to scatter across targets.
type GatherRequest struct {
	RequestID string
	Items     []model.WorkItem
	// Target, when set, addresses every item to one target instead of resolving per item.
	Target       *model.Target
	Timeout      time.Duration
	PollInterval time.Duration
}

// DispatchFailure records a chunk that never reached its target.
type DispatchFailure struct {
	RequestChunkID string
	TargetID       string
	Err            error
}

// GatherResult is what ScatterGather collected.
type GatherResult struct {
	Plan           fanout.Plan
	Dispatched     int
	DispatchErrors []DispatchFailure
	Results        []model.ResultRecord
	Complete       bool
}

// GatherServiceOptions groups dependencies for GatherService.
type GatherServiceOptions struct {
	Dispatcher core.Dispatcher     // Required
	Poller     *CompletionPoller   // Required
	Capacity   fanout.CapacityFunc // Required
	Targets    fanout.TargetFunc   // Required unless every request carries a Target
	// Concurrency bounds in-flight dispatches.
	Concurrency int
	Logger      *slog.Logger
	Metrics     statsd.Sink
	Alerter     notify.Alerter
	Now         func() time.Time
}

// GatherService splits a request into per-target chunks, dispatches them and waits for
// their results.
type GatherService struct {
	dispatcher  core.Dispatcher
	poller      *CompletionPoller
	capacity    fanout.CapacityFunc
	targets     fanout.TargetFunc
	concurrency int
	logger      *slog.Logger
	metrics     statsd.Sink
	alerter     notify.Alerter
	now         func() time.Time
}

// NewGatherService constructs a GatherService.
func NewGatherService(opts GatherServiceOptions) (*GatherService, error) {
	switch {
	case opts.Dispatcher == nil:
		return nil, errors.New("Dispatcher is required")
	case opts.Poller == nil:
		return nil, errors.New("CompletionPoller is required")
	case opts.Capacity == nil:
		return nil, errors.New("capacity function is required")
	}
	n := opts.Concurrency
	if n < 1 {
		n = 1
	}
	return &GatherService{
		dispatcher:  opts.Dispatcher,
		poller:      opts.Poller,
		capacity:    opts.Capacity,
		targets:     opts.Targets,
		concurrency: n,
		logger:      componentLogger(opts.Logger, "gather_service"),
		metrics:     opts.Metrics,
		alerter:     alerterOrNop(opts.Alerter),
		now:         clockOrNow(opts.Now),
	}, nil
}

// ScatterGather plans, dispatches and awaits one request. Items without a usable target are
// reported in Plan.Invalid and alerted; failed dispatches are reported in DispatchErrors
// and are not awaited. The returned error is non-nil only for planning failures or parent
// cancellation.
func (s *GatherService) ScatterGather(ctx context.Context, req GatherRequest) (*GatherResult, error) {
	if strings.TrimSpace(req.RequestID) == "" {
		return nil, apperrors.ValidationField("request_id", "request id is required")
	}
	targetOf := s.targets
	if req.Target != nil {
		targetOf = fanout.StaticTarget(*req.Target)
	}
	if targetOf == nil {
		return nil, apperrors.ValidationField("target", "no target resolver configured")
	}
	log := s.logger.With("request_id", req.RequestID)

	plan, err := fanout.BuildPlan(req.RequestID, req.Items, targetOf, s.capacity)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "plan request")
	}
	metrics.EmitFanout(s.metrics, len(plan.Requests), len(plan.Invalid))
	if len(plan.Invalid) > 0 {
		s.reportInvalid(ctx, log, req.RequestID, plan.Invalid)
	}

	out := &GatherResult{Plan: plan}
	out.DispatchErrors = s.dispatchAll(ctx, plan.Requests)
	out.Dispatched = len(plan.Requests) - len(out.DispatchErrors)
	log.InfoContext(ctx, "request scattered",
		"requests", len(plan.Requests),
		"dispatched", out.Dispatched,
		"invalid_items", len(plan.Invalid),
		"targets", len(plan.Targets()),
	)
	if out.Dispatched == 0 {
		out.Complete = len(out.DispatchErrors) == 0
		return out, ctx.Err()
	}

	awaited, err := s.poller.Await(ctx, AwaitRequest{
		CorrelationID: req.RequestID,
		ExpectedCount: out.Dispatched,
		Timeout:       req.Timeout,
		PollInterval:  req.PollInterval,
	})
	out.Results = awaited.Results
	out.Complete = awaited.Complete
	return out, err
}

func (s *GatherService) dispatchAll(ctx context.Context, reqs []model.FanoutRequest) []DispatchFailure {
	var (
		mu       sync.Mutex
		failures []DispatchFailure
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, r := range reqs {
		g.Go(func() error {
			if err := s.dispatcher.Dispatch(gctx, r); err != nil {
				s.logger.WarnContext(gctx, "dispatch failed",
					"request_chunk_id", r.RequestChunkID,
					"target_id", r.Target.ID,
					"error", err,
				)
				mu.Lock()
				failures = append(failures, DispatchFailure{RequestChunkID: r.RequestChunkID, TargetID: r.Target.ID, Err: err})
				mu.Unlock()
			}
			// One target failing must not cancel dispatches to the others.
			return nil
		})
	}
	_ = g.Wait()
	return failures
}

func (s *GatherService) reportInvalid(ctx context.Context, log *slog.Logger, requestID string, invalid []model.InvalidItem) {
	reasons := make(map[string]int)
	for _, it := range invalid {
		reasons[it.Reason]++
	}
	meta := map[string]string{"invalid_items": strconv.Itoa(len(invalid))}
	for reason, n := range reasons {
		meta["reason:"+reason] = strconv.Itoa(n)
	}
	log.WarnContext(ctx, "items excluded from plan", "count", len(invalid))
	s.alerter.NotifyAnomaly(ctx, notify.AnomalyPayload{
		Kind:          notify.KindInvalidTarget,
		CorrelationID: requestID,
		Summary:       fmt.Sprintf("%d item(s) have no usable target", len(invalid)),
		OccurredAt:    s.now().UTC(),
		Metadata:      meta,
	})
}
