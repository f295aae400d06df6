package config

import (
	"os"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - database.go: Postgres and Redis
//   - messaging.go: AMQP event bus and finisher
//   - gather.go: poller, fan-out, trigger and webhook tuning
//   - services.go: service modes, ingestor and reconciler
//   - observability.go: metrics and alert fan-out
//   - http.go: health endpoint
type AppConfig struct {
	// IsDev enables text logs and debug level. Set DEV=true or APP_ENV=development.
	IsDev bool `env:"DEV" envDefault:"false"`

	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`
	AMQP     AMQPConfig  `envPrefix:"AMQP_"`

	Poller  PollerConfig  `envPrefix:"POLLER_"`
	Fanout  FanoutConfig  `envPrefix:"FANOUT_"`
	Trigger TriggerConfig `envPrefix:"TRIGGER_"`
	Webhook WebhookConfig `envPrefix:"WEBHOOK_"`

	// Services is a comma-delimited list of service modes to run.
	Services   string           `env:"SERVICES" envDefault:"ingestor"`
	Ingestor   IngestorConfig   `envPrefix:"INGESTOR_"`
	Reconciler ReconcilerConfig `envPrefix:"RECONCILER_"`

	HTTP          HTTPConfig
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.Redis.Sanitize()
	c.AMQP.Sanitize()
	c.Poller.Sanitize()
	c.Fanout.Sanitize()
	c.Trigger.Sanitize()
	c.Webhook.Sanitize()
	c.Ingestor.Sanitize()
	c.Reconciler.Sanitize()
	c.Observability.Sanitize()
	c.detectDevMode()
}

func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		appEnv := strings.ToLower(os.Getenv("APP_ENV"))
		c.IsDev = appEnv == "development" || appEnv == "dev"
	}
}

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

// IsIngestorEnabled returns true if the result ingestor service is enabled.
func (c *AppConfig) IsIngestorEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeIngestor]
}

// IsReconcilerEnabled returns true if the reconciler service is enabled.
func (c *AppConfig) IsReconcilerEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeReconciler]
}
