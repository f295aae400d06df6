package config

import (
	"testing"
	"time"

	env "github.com/caarlos0/env/v11"
)

func TestParseServices(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    map[ServiceMode]bool
		expectError bool
	}{
		{
			name:     "single service - ingestor",
			input:    "ingestor",
			expected: map[ServiceMode]bool{ServiceModeIngestor: true},
		},
		{
			name:     "single service - reconciler",
			input:    "reconciler",
			expected: map[ServiceMode]bool{ServiceModeReconciler: true},
		},
		{
			name:  "services with spaces and duplicates",
			input: " ingestor , reconciler ,ingestor",
			expected: map[ServiceMode]bool{
				ServiceModeIngestor:   true,
				ServiceModeReconciler: true,
			},
		},
		{name: "empty string", input: "", expectError: true},
		{name: "only commas", input: " , ,", expectError: true},
		{name: "unknown service", input: "ingestor,http", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseServices(tt.input)
			if tt.expectError {
				if err == nil {
					t.Errorf("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(result) != len(tt.expected) {
				t.Fatalf("expected %d services, got %d", len(tt.expected), len(result))
			}
			for service := range tt.expected {
				if !result[service] {
					t.Errorf("expected service %s to be enabled", service)
				}
			}
		})
	}
}

func TestConfig_ServiceEnabledMethods(t *testing.T) {
	cfg := AppConfig{Services: "reconciler"}
	if cfg.IsIngestorEnabled() {
		t.Error("ingestor should be disabled")
	}
	if !cfg.IsReconcilerEnabled() {
		t.Error("reconciler should be enabled")
	}

	cfg = AppConfig{Services: "bogus"}
	if cfg.IsIngestorEnabled() || cfg.IsReconcilerEnabled() {
		t.Error("invalid services must disable every mode")
	}
}

func TestAppConfig_ParseEnv(t *testing.T) {
	t.Setenv("SERVICES", "ingestor,reconciler")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("AMQP_QUEUE", "results-test")
	t.Setenv("POLLER_TIMEOUT", "100ms")
	t.Setenv("POLLER_POLL_INTERVAL", "10ms")
	t.Setenv("FANOUT_CAPACITY_OVERRIDES", "epic:10,cerner*:25")
	t.Setenv("FANOUT_ENDPOINTS", "epic:https://epic.example/fhir")
	t.Setenv("TRIGGER_MODE", "HTTP")
	t.Setenv("TRIGGER_URL", " https://finisher.example/jobs ")
	t.Setenv("RECONCILER_INTERVAL", "30s")
	t.Setenv("NOTIFY_SLACK_ENABLED", "true")

	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.Sanitize()

	if cfg.Postgres.Host != "db.internal" || cfg.Postgres.Port != 5432 {
		t.Errorf("unexpected postgres config: %+v", cfg.Postgres)
	}
	if !cfg.Redis.Enabled || cfg.Redis.LeaseTTL != 5*time.Minute {
		t.Errorf("unexpected redis config: %+v", cfg.Redis)
	}
	if cfg.AMQP.Queue != "results-test" || cfg.AMQP.Exchange != "interop.units" {
		t.Errorf("unexpected amqp config: %+v", cfg.AMQP)
	}
	if cfg.Poller.Timeout != 100*time.Millisecond || cfg.Poller.PollInterval != 10*time.Millisecond {
		t.Errorf("unexpected poller config: %+v", cfg.Poller)
	}
	if cfg.Fanout.CapacityOverrides["epic"] != 10 || cfg.Fanout.CapacityOverrides["cerner*"] != 25 {
		t.Errorf("unexpected capacity overrides: %v", cfg.Fanout.CapacityOverrides)
	}
	if cfg.Fanout.Endpoints["epic"] != "https://epic.example/fhir" {
		t.Errorf("unexpected endpoints: %v", cfg.Fanout.Endpoints)
	}
	if cfg.Trigger.Mode != "http" || cfg.Trigger.URL != "https://finisher.example/jobs" {
		t.Errorf("unexpected trigger config: %+v", cfg.Trigger)
	}
	if cfg.Reconciler.Jitter != 10*time.Second {
		t.Errorf("unexpected reconciler jitter: %v", cfg.Reconciler.Jitter)
	}
	if cfg.Observability.Notifications.Slack.Enabled {
		t.Error("slack must stay disabled while notifications are off")
	}
}

func TestTriggerConfig_Sanitize(t *testing.T) {
	tests := []struct {
		name     string
		in       TriggerConfig
		wantMode string
		wantMax  int
	}{
		{name: "unknown mode falls back to amqp", in: TriggerConfig{Mode: "kafka"}, wantMode: "amqp", wantMax: 1},
		{name: "http without url disables", in: TriggerConfig{Mode: "http", MaxAttempts: 3}, wantMode: "none", wantMax: 3},
		{name: "attempts clamped", in: TriggerConfig{Mode: "none", MaxAttempts: 99}, wantMode: "none", wantMax: 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.in
			cfg.Sanitize()
			if cfg.Mode != tt.wantMode {
				t.Errorf("mode = %q, want %q", cfg.Mode, tt.wantMode)
			}
			if cfg.MaxAttempts != tt.wantMax {
				t.Errorf("max attempts = %d, want %d", cfg.MaxAttempts, tt.wantMax)
			}
			if cfg.MaxInterval < cfg.InitialInterval {
				t.Errorf("max interval %v below initial %v", cfg.MaxInterval, cfg.InitialInterval)
			}
		})
	}
}

func TestReconcilerConfig_Sanitize(t *testing.T) {
	cfg := ReconcilerConfig{Interval: 10 * time.Millisecond, Jitter: time.Hour, StaleAfter: 0, BatchSize: 0}
	cfg.Sanitize()

	if cfg.Interval != time.Second {
		t.Errorf("interval = %v, want 1s", cfg.Interval)
	}
	if cfg.Jitter != 500*time.Millisecond {
		t.Errorf("jitter = %v, want half the interval", cfg.Jitter)
	}
	if cfg.StaleAfter != time.Minute || cfg.BatchSize != 1 {
		t.Errorf("unexpected clamps: %+v", cfg)
	}
}

func TestPollerAndFanoutConfig_Sanitize(t *testing.T) {
	p := PollerConfig{Timeout: time.Nanosecond, PollInterval: 0}
	p.Sanitize()
	if p.PollInterval != time.Millisecond || p.Timeout != time.Millisecond || p.FinalFetchGrace <= 0 {
		t.Errorf("unexpected poller clamps: %+v", p)
	}

	f := FanoutConfig{DefaultCapacity: 0, CapacityOverrides: map[string]int{"a": 0, " ": 3, "b": 4}}
	f.Sanitize()
	if f.DefaultCapacity != 1 || f.DispatchConcurrency != 1 {
		t.Errorf("unexpected fanout clamps: %+v", f)
	}
	if len(f.CapacityOverrides) != 1 || f.CapacityOverrides["b"] != 4 {
		t.Errorf("invalid overrides should be dropped: %v", f.CapacityOverrides)
	}
}

func TestRedisConfig_Sanitize(t *testing.T) {
	cfg := RedisConfig{LeaseTTL: 10 * time.Minute, DoneTTL: time.Minute, ClusterNodes: []string{" a:1 ", "", "b:2"}}
	cfg.Sanitize()
	if cfg.DoneTTL != 10*time.Minute {
		t.Errorf("done ttl should not be shorter than the lease, got %v", cfg.DoneTTL)
	}
	if len(cfg.ClusterNodes) != 2 || cfg.ClusterNodes[0] != "a:1" {
		t.Errorf("unexpected cluster nodes: %v", cfg.ClusterNodes)
	}
}

func TestValidServiceModes(t *testing.T) {
	modes := ValidServiceModes()
	if len(modes) != 2 || modes[0] != ServiceModeIngestor || modes[1] != ServiceModeReconciler {
		t.Errorf("unexpected modes: %v", modes)
	}
}

func TestObservabilityMetricsConfig_Sanitize(t *testing.T) {
	cfg := ObservabilityMetricsConfig{Enabled: true, StatsdAddress: " "}
	cfg.Sanitize()
	if cfg.Enabled {
		t.Fatalf("expected enabled to be false when address is empty")
	}

	cfg = ObservabilityMetricsConfig{Enabled: true, StatsdAddress: " statsd:1234 "}
	cfg.Sanitize()
	if !cfg.IsEnabled() {
		t.Fatalf("expected metrics to remain enabled")
	}
	if cfg.StatsdAddress != "statsd:1234" || cfg.Prefix != "jobgather" {
		t.Fatalf("unexpected sanitised metrics config: %+v", cfg)
	}
}

func TestObservabilityNotificationsConfig_Sanitize(t *testing.T) {
	cfg := ObservabilityNotificationsConfig{
		Enabled:    true,
		RetryLimit: -1,
		Slack:      SlackNotificationConfig{Enabled: true, WebhookURL: " "},
		PagerDuty:  PagerDutyNotificationConfig{Enabled: true, RoutingKey: " "},
	}
	cfg.Sanitize()

	if cfg.Timeout <= 0 {
		t.Fatalf("expected timeout to fall back to default, got %v", cfg.Timeout)
	}
	if cfg.RetryLimit != 0 {
		t.Fatalf("expected retry limit to be clamped to 0, got %d", cfg.RetryLimit)
	}
	if cfg.Slack.Enabled || cfg.PagerDuty.Enabled {
		t.Fatal("expected sinks without credentials to be disabled")
	}
	if cfg.PagerDuty.Source != "jobgather" || cfg.PagerDuty.Component != "completion" {
		t.Fatalf("unexpected pagerduty defaults: %+v", cfg.PagerDuty)
	}
	if cfg.Slack.Username != "jobgather" {
		t.Fatalf("unexpected slack username: %q", cfg.Slack.Username)
	}
}
