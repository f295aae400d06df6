package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/interop/jobgather/config"
	"github.com/interop/jobgather/internal/core"
	"github.com/interop/jobgather/internal/domain/model"
	apperrors "github.com/interop/jobgather/internal/errors"
	"github.com/interop/jobgather/internal/observability/metrics"
	"github.com/interop/jobgather/internal/observability/notify"
	"github.com/interop/jobgather/internal/observability/statsd"
)

// AwaitRequest describes what a gather is waiting for.
type AwaitRequest struct {
	CorrelationID string
	ExpectedCount int
	// Timeout and PollInterval fall back to the poller defaults when zero.
	Timeout      time.Duration
	PollInterval time.Duration
}

// AwaitResult is the outcome of Await. Complete=false means the deadline passed first;
// Results then holds whatever had arrived.
type AwaitResult struct {
	Results  []model.ResultRecord
	Complete bool
	Polls    int
	Elapsed  time.Duration
}

// CompletionPollerOptions groups dependencies for CompletionPoller.
type CompletionPollerOptions struct {
	Results core.ResultStore    // Required
	Config  config.PollerConfig // Defaults for Timeout, PollInterval and the final fetch grace
	Logger  *slog.Logger
	Metrics statsd.Sink
	Alerter notify.Alerter
	Now     func() time.Time
}

// CompletionPoller waits for a known number of results to appear for a correlation id.
type CompletionPoller struct {
	results core.ResultStore
	cfg     config.PollerConfig
	logger  *slog.Logger
	metrics statsd.Sink
	alerter notify.Alerter
	now     func() time.Time
}

// NewCompletionPoller constructs a CompletionPoller.
func NewCompletionPoller(opts CompletionPollerOptions) (*CompletionPoller, error) {
	if opts.Results == nil {
		return nil, errors.New("ResultStore is required")
	}
	cfg := opts.Config
	cfg.Sanitize()
	return &CompletionPoller{
		results: opts.Results,
		cfg:     cfg,
		logger:  componentLogger(opts.Logger, "completion_poller"),
		metrics: opts.Metrics,
		alerter: alerterOrNop(opts.Alerter),
		now:     clockOrNow(opts.Now),
	}, nil
}

// Await polls immediately and then every interval until ExpectedCount distinct results
// exist or the timeout elapses. Query errors are logged and polling continues. When the
// parent context is canceled the results gathered so far are returned with ctx.Err().
func (p *CompletionPoller) Await(ctx context.Context, req AwaitRequest) (AwaitResult, error) {
	if req.CorrelationID == "" {
		return AwaitResult{}, apperrors.ValidationField("correlation_id", "correlation id is required")
	}
	if req.ExpectedCount < 0 {
		return AwaitResult{}, apperrors.ValidationField("expected_count", "expected count must be >= 0")
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = p.cfg.Timeout
	}
	interval := req.PollInterval
	if interval <= 0 {
		interval = p.cfg.PollInterval
	}

	start := p.now()
	log := p.logger.With("correlation_id", req.CorrelationID, "expected", req.ExpectedCount)

	deadlineCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	out := AwaitResult{}
	for {
		out.Polls++
		if recs, ok := p.pollOnce(deadlineCtx, log, req); ok {
			out.Results = recs
			out.Complete = true
			out.Elapsed = p.now().Sub(start)
			metrics.EmitPoll(p.metrics, true, len(recs), out.Elapsed)
			return out, nil
		}
		select {
		case <-deadlineCtx.Done():
			return p.finish(ctx, log, req, out, start)
		case <-ticker.C:
		}
	}
}

// pollOnce runs the cheap count and fetches only when enough results exist.
func (p *CompletionPoller) pollOnce(ctx context.Context, log *slog.Logger, req AwaitRequest) ([]model.ResultRecord, bool) {
	n, err := p.results.CountByCorrelationID(ctx, req.CorrelationID)
	if err != nil {
		if ctx.Err() == nil {
			log.WarnContext(ctx, "result count failed", "error", err)
		}
		return nil, false
	}
	if n < req.ExpectedCount {
		return nil, false
	}
	recs, err := p.results.QueryByCorrelationID(ctx, req.CorrelationID)
	if err != nil {
		if ctx.Err() == nil {
			log.WarnContext(ctx, "result fetch failed", "error", err)
		}
		return nil, false
	}
	recs = LatestPerAuthority(recs)
	return recs, len(recs) >= req.ExpectedCount
}

// finish performs the single bounded fetch after the deadline.
func (p *CompletionPoller) finish(
	ctx context.Context,
	log *slog.Logger,
	req AwaitRequest,
	out AwaitResult,
	start time.Time,
) (AwaitResult, error) {
	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.FinalFetchGrace)
	defer cancel()

	recs, err := p.results.QueryByCorrelationID(fetchCtx, req.CorrelationID)
	if err != nil {
		log.WarnContext(ctx, "final result fetch failed", "error", err)
	}
	out.Results = LatestPerAuthority(recs)
	out.Complete = len(out.Results) >= req.ExpectedCount
	out.Elapsed = p.now().Sub(start)
	metrics.EmitPoll(p.metrics, out.Complete, len(out.Results), out.Elapsed)

	if parentErr := ctx.Err(); parentErr != nil {
		log.InfoContext(ctx, "await canceled", "received", len(out.Results), "reason", parentErr)
		return out, parentErr
	}
	if !out.Complete {
		log.WarnContext(ctx, "await timed out with results missing",
			"received", len(out.Results),
			"elapsed", out.Elapsed,
		)
		p.alerter.NotifyAnomaly(ctx, notify.AnomalyPayload{
			Kind:          notify.KindPollIncomplete,
			CorrelationID: req.CorrelationID,
			Summary:       "results missing at gather deadline",
			OccurredAt:    p.now().UTC(),
			Metadata: map[string]string{
				"expected": strconv.Itoa(req.ExpectedCount),
				"received": strconv.Itoa(len(out.Results)),
				"timeout":  out.Elapsed.Round(time.Millisecond).String(),
			},
		})
	}
	return out, nil
}

// LatestPerAuthority collapses duplicates so each (target, chunk) is represented by its newest
// record. Output keeps the order in which each key first appeared.
func LatestPerAuthority(recs []model.ResultRecord) []model.ResultRecord {
	if len(recs) == 0 {
		return nil
	}
	index := make(map[string]int, len(recs))
	out := make([]model.ResultRecord, 0, len(recs))
	for _, rec := range recs {
		key := rec.AuthorityKey()
		i, seen := index[key]
		if !seen {
			index[key] = len(out)
			out = append(out, rec)
			continue
		}
		if !rec.CreatedAt.Before(out[i].CreatedAt) {
			out[i] = rec
		}
	}
	return out
}
