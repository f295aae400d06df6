package pagerduty

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/interop/jobgather/internal/observability/notify"
	"github.com/interop/jobgather/internal/util"
)

// APIEndpoint is the PagerDuty Events API v2 ingest URL.
const APIEndpoint = "https://events.pagerduty.com/v2/enqueue"

// Config captures runtime configuration for the PagerDuty sink.
type Config struct {
	RoutingKey string
	Source     string
	Component  string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
	// Endpoint overrides APIEndpoint (tests, regional ingest).
	Endpoint string
}

// Client publishes events via PagerDuty's Events API v2.
type Client struct {
	routingKey string
	source     string
	component  string
	endpoint   string
	policy     util.RetryPolicy
	client     *http.Client
}

var _ notify.Sink = (*Client)(nil)

// NewClient constructs a PagerDuty events client from config. Callers must provide a routing key.
func NewClient(cfg Config) (*Client, error) {
	key := strings.TrimSpace(cfg.RoutingKey)
	if key == "" {
		return nil, errors.New("pagerduty routing key is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{
		routingKey: key,
		source:     orDefault(cfg.Source, "jobgather"),
		component:  orDefault(cfg.Component, "completion"),
		endpoint:   orDefault(cfg.Endpoint, APIEndpoint),
		policy:     util.RetryPolicy{MaxAttempts: max(cfg.RetryLimit, 0) + 1},
		client:     hc,
	}, nil
}

// SendAnomaly submits a trigger event. Repeated alerts for the same kind and job share a
// dedup key so PagerDuty folds them into one incident.
func (c *Client) SendAnomaly(ctx context.Context, payload notify.AnomalyPayload) error {
	body, err := json.Marshal(c.buildEvent(payload))
	if err != nil {
		return fmt.Errorf("encode pagerduty payload: %w", err)
	}
	_, err = util.PostJSONWithRetry(ctx, c.client, c.policy, "pagerduty api", c.endpoint, body, nil)
	return err
}

func (c *Client) buildEvent(p notify.AnomalyPayload) map[string]any {
	severity := strings.ToLower(strings.TrimSpace(p.Severity))
	if severity == "" {
		severity = p.Kind.DefaultSeverity()
	}
	at := p.OccurredAt.UTC()
	if p.OccurredAt.IsZero() {
		at = time.Now().UTC()
	}

	custom := map[string]any{
		"kind":           string(p.Kind),
		"job_id":         p.JobID,
		"correlation_id": p.CorrelationID,
		"error":          p.Error,
		"error_class":    p.ErrorClass,
	}
	for k, v := range p.Metadata {
		if _, exists := custom[k]; !exists {
			custom[k] = v
		}
	}

	summary := p.Summary
	if summary == "" {
		summary = fmt.Sprintf("%s on job %s", p.Kind, orDefault(p.JobID, "unknown"))
	}

	return map[string]any{
		"routing_key":  c.routingKey,
		"event_action": "trigger",
		"dedup_key":    p.DedupKey(),
		"payload": map[string]any{
			"summary":        summary,
			"severity":       severity,
			"source":         c.source,
			"component":      c.component,
			"class":          string(p.Kind),
			"timestamp":      at.Format(time.RFC3339),
			"custom_details": custom,
		},
	}
}

func orDefault(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}
