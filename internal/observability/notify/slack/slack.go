package slack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/interop/jobgather/internal/observability/notify"
	"github.com/interop/jobgather/internal/util"
)

// Config captures the subset of Slack webhook behaviour we need.
type Config struct {
	WebhookURL string
	Channel    string
	Username   string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
	// JobURLPrefix, when set, turns job ids into links (prefix + "/" + id).
	JobURLPrefix string
}

// Client delivers anomaly alerts to a Slack webhook.
type Client struct {
	webhookURL   string
	channel      string
	username     string
	jobURLPrefix string
	policy       util.RetryPolicy
	client       *http.Client
}

var _ notify.Sink = (*Client)(nil)

// NewClient builds a Slack webhook client. Callers should pass a validated config.
func NewClient(cfg Config) (*Client, error) {
	webhookURL := strings.TrimSpace(cfg.WebhookURL)
	if webhookURL == "" {
		return nil, errors.New("slack webhook url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}
	username := strings.TrimSpace(cfg.Username)
	if username == "" {
		username = "jobgather"
	}
	return &Client{
		webhookURL:   webhookURL,
		channel:      strings.TrimSpace(cfg.Channel),
		username:     username,
		jobURLPrefix: strings.TrimRight(strings.TrimSpace(cfg.JobURLPrefix), "/"),
		policy:       util.RetryPolicy{MaxAttempts: max(cfg.RetryLimit, 0) + 1},
		client:       hc,
	}, nil
}

// SendAnomaly posts a formatted message to Slack.
func (c *Client) SendAnomaly(ctx context.Context, payload notify.AnomalyPayload) error {
	body, err := json.Marshal(c.formatMessage(payload))
	if err != nil {
		return fmt.Errorf("encode slack payload: %w", err)
	}
	_, err = util.PostJSONWithRetry(ctx, c.client, c.policy, "slack webhook", c.webhookURL, body, nil)
	return err
}

func (c *Client) formatMessage(p notify.AnomalyPayload) map[string]any {
	at := p.OccurredAt
	if at.IsZero() {
		at = time.Now()
	}
	severity := p.Severity
	if severity == "" {
		severity = p.Kind.DefaultSeverity()
	}

	var text strings.Builder
	fmt.Fprintf(&text, "*%s* `%s`", headline(severity), p.Kind)
	if p.Summary != "" {
		text.WriteString(" ")
		text.WriteString(escape(p.Summary))
	}
	text.WriteByte('\n')

	field(&text, "Job", c.jobRef(p.JobID))
	field(&text, "Correlation", escape(p.CorrelationID))
	field(&text, "Error class", p.ErrorClass)
	field(&text, "Error", escape(p.Error))
	if len(p.Metadata) > 0 {
		text.WriteString("• Details:\n")
		for _, k := range slices.Sorted(maps.Keys(p.Metadata)) {
			fmt.Fprintf(&text, "    • %s: %s\n", k, escape(p.Metadata[k]))
		}
	}
	text.WriteString("• Timestamp: ")
	text.WriteString(at.UTC().Format(time.RFC3339))

	msg := map[string]any{
		"text":     text.String(),
		"username": c.username,
	}
	if c.channel != "" {
		msg["channel"] = c.channel
	}
	return msg
}

func headline(severity string) string {
	if severity == notify.SeverityCritical {
		return ":rotating_light: Job anomaly"
	}
	return ":warning: Job anomaly"
}

func (c *Client) jobRef(jobID string) string {
	id := escape(strings.TrimSpace(jobID))
	if id == "" || c.jobURLPrefix == "" {
		return id
	}
	return fmt.Sprintf("<%s/%s|%s>", c.jobURLPrefix, id, id)
}

func escape(v string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(v)
}

func field(text *strings.Builder, label, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	text.WriteString("• ")
	text.WriteString(label)
	text.WriteString(": ")
	text.WriteString(value)
	text.WriteByte('\n')
}
