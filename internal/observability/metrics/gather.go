// Package metrics names the StatsD series emitted by the job-completion services.
package metrics

import (
	"maps"
	"time"

	obserrors "github.com/interop/jobgather/internal/observability/errors"
	"github.com/interop/jobgather/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// Metric names.
const (
	JobTransition  = "job.transition"
	JobDuration    = "job.duration"
	UnitResult     = "unit.result"
	PollOutcome    = "poll.outcome"
	PollDuration   = "poll.duration"
	TriggerOutcome = "trigger.outcome"
	IngestSkipped  = "ingest.skipped"
	FanoutRequests = "fanout.requests"
	FanoutInvalid  = "fanout.invalid_items"
	ReconcileRun   = "reconcile.run"
)

// TransitionMetric describes one job status write.
type TransitionMetric struct {
	From     string
	To       string
	Result   string
	Forced   bool
	Duration time.Duration // job runtime, reported on terminal edges only
	Err      error
}

// EmitTransition records a status write and, on terminal edges, the job's runtime.
func EmitTransition(sink statsd.Sink, in TransitionMetric) {
	if sink == nil {
		return
	}
	tags := map[string]string{
		"from":   in.From,
		"to":     in.To,
		"result": in.Result,
	}
	if in.Forced {
		tags["forced"] = "true"
	}
	addErrorClass(tags, in.Result, in.Err)
	sink.Count(JobTransition, 1, tags)
	if in.Duration > 0 {
		sink.Timing(JobDuration, in.Duration, map[string]string{"status": in.To})
	}
}

// EmitUnitResult counts one ingested unit outcome.
func EmitUnitResult(sink statsd.Sink, outcome string) {
	if sink == nil {
		return
	}
	sink.Count(UnitResult, 1, map[string]string{"outcome": outcome})
}

// EmitIngestSkipped counts an event the ingestor acknowledged without counting.
func EmitIngestSkipped(sink statsd.Sink, reason string) {
	if sink == nil {
		return
	}
	sink.Count(IngestSkipped, 1, map[string]string{"reason": reason})
}

// EmitPoll records the end of a completion poll.
func EmitPoll(sink statsd.Sink, complete bool, results int, elapsed time.Duration) {
	if sink == nil {
		return
	}
	tags := map[string]string{"complete": "false"}
	if complete {
		tags["complete"] = "true"
	}
	sink.Count(PollOutcome, 1, tags)
	sink.Gauge(PollOutcome+".results", float64(results), CloneTags(tags))
	sink.Timing(PollDuration, elapsed, CloneTags(tags))
}

// EmitTrigger records a downstream finisher call.
func EmitTrigger(sink statsd.Sink, result string, attempts int, err error) {
	if sink == nil {
		return
	}
	tags := map[string]string{"result": result}
	addErrorClass(tags, result, err)
	sink.Count(TriggerOutcome, 1, tags)
	sink.Gauge(TriggerOutcome+".attempts", float64(attempts), map[string]string{"result": result})
}

// EmitFanout records a planned scatter.
func EmitFanout(sink statsd.Sink, requests, invalid int) {
	if sink == nil {
		return
	}
	sink.Count(FanoutRequests, int64(requests), nil)
	if invalid > 0 {
		sink.Count(FanoutInvalid, int64(invalid), nil)
	}
}

// EmitReconcile records one reconciler sweep.
func EmitReconcile(sink statsd.Sink, scanned, completed, stale int) {
	if sink == nil {
		return
	}
	sink.Count(ReconcileRun, 1, nil)
	sink.Gauge(ReconcileRun+".scanned", float64(scanned), nil)
	sink.Gauge(ReconcileRun+".completed", float64(completed), nil)
	sink.Gauge(ReconcileRun+".stale", float64(stale), nil)
}

func addErrorClass(tags map[string]string, result string, err error) {
	if err == nil || result != ResultError {
		return
	}
	if class := obserrors.Classify(err); class != "" {
		tags["error_class"] = class
	}
}

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	return maps.Clone(src)
}
