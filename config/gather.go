package config

import (
	"strings"
	"time"
)

// PollerConfig holds completion poller defaults used when a caller leaves them zero.
type PollerConfig struct {
	Timeout      time.Duration `env:"TIMEOUT"       envDefault:"30s"`
	PollInterval time.Duration `env:"POLL_INTERVAL" envDefault:"250ms"`
	// FinalFetchGrace bounds the last fetch after the deadline.
	FinalFetchGrace time.Duration `env:"FINAL_FETCH_GRACE" envDefault:"2s"`
}

// Sanitize applies guardrails to poller configuration values.
func (c *PollerConfig) Sanitize() {
	if c.PollInterval < time.Millisecond {
		c.PollInterval = time.Millisecond
	}
	if c.Timeout < c.PollInterval {
		c.Timeout = c.PollInterval
	}
	if c.FinalFetchGrace <= 0 {
		c.FinalFetchGrace = 2 * time.Second
	}
}

// FanoutConfig configures chunk planning and dispatch.
type FanoutConfig struct {
	// DefaultCapacity is the max items per request for targets without an override.
	DefaultCapacity int `env:"DEFAULT_CAPACITY" envDefault:"50"`
	// CapacityOverrides maps target id (or "prefix*") to capacity, e.g. "epic:10,cerner*:25".
	CapacityOverrides map[string]int `env:"CAPACITY_OVERRIDES" envDefault:""`
	// TargetIDExpr and EndpointExpr are JMESPath expressions evaluated against each item payload.
	TargetIDExpr string `env:"TARGET_ID_EXPR" envDefault:"target.id"`
	EndpointExpr string `env:"ENDPOINT_EXPR"  envDefault:"target.endpoint"`
	// Endpoints is a fallback directory of target id to endpoint.
	Endpoints map[string]string `env:"ENDPOINTS" envDefault:""`
	// DispatchConcurrency bounds simultaneous outbound requests per scatter.
	DispatchConcurrency int `env:"DISPATCH_CONCURRENCY" envDefault:"8"`
}

// Sanitize applies guardrails to fan-out configuration values.
func (c *FanoutConfig) Sanitize() {
	if c.DefaultCapacity < 1 {
		c.DefaultCapacity = 1
	}
	for k, v := range c.CapacityOverrides {
		if v < 1 || strings.TrimSpace(k) == "" {
			delete(c.CapacityOverrides, k)
		}
	}
	if c.DispatchConcurrency < 1 {
		c.DispatchConcurrency = 1
	}
	c.TargetIDExpr = strings.TrimSpace(c.TargetIDExpr)
	c.EndpointExpr = strings.TrimSpace(c.EndpointExpr)
}

// TriggerConfig bounds the downstream "job finished" call.
type TriggerConfig struct {
	// Mode selects the finisher: "amqp", "http" or "none".
	Mode            string        `env:"MODE"             envDefault:"amqp"`
	URL             string        `env:"URL"`
	InitialDelay    time.Duration `env:"INITIAL_DELAY"    envDefault:"0s"`
	MaxAttempts     int           `env:"MAX_ATTEMPTS"     envDefault:"3"`
	InitialInterval time.Duration `env:"INITIAL_INTERVAL" envDefault:"200ms"`
	MaxInterval     time.Duration `env:"MAX_INTERVAL"     envDefault:"5s"`
	Timeout         time.Duration `env:"TIMEOUT"          envDefault:"10s"`
}

// Sanitize applies guardrails to trigger configuration values.
func (c *TriggerConfig) Sanitize() {
	c.Mode = strings.ToLower(strings.TrimSpace(c.Mode))
	switch c.Mode {
	case "amqp", "http", "none":
	default:
		c.Mode = "amqp"
	}
	c.URL = strings.TrimSpace(c.URL)
	if c.Mode == "http" && c.URL == "" {
		c.Mode = "none"
	}
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 1
	}
	if c.MaxAttempts > 20 {
		c.MaxAttempts = 20
	}
	if c.InitialDelay < 0 {
		c.InitialDelay = 0
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = 200 * time.Millisecond
	}
	if c.MaxInterval < c.InitialInterval {
		c.MaxInterval = c.InitialInterval
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
}

// WebhookConfig configures customer status-change webhooks.
type WebhookConfig struct {
	Enabled bool   `env:"ENABLED" envDefault:"false"`
	URL     string `env:"URL"`
	// BodyExpr optionally reshapes the status change with a JMESPath expression.
	BodyExpr   string            `env:"BODY_EXPR"`
	Headers    map[string]string `env:"HEADERS"     envDefault:""`
	Timeout    time.Duration     `env:"TIMEOUT"     envDefault:"5s"`
	RetryLimit int               `env:"RETRY_LIMIT" envDefault:"3"`
}

// Sanitize applies guardrails to webhook configuration values.
func (c *WebhookConfig) Sanitize() {
	c.URL = strings.TrimSpace(c.URL)
	c.BodyExpr = strings.TrimSpace(c.BodyExpr)
	if c.URL == "" {
		c.Enabled = false
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.RetryLimit < 0 {
		c.RetryLimit = 0
	}
}
