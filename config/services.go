package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeIngestor consumes unit results from the event bus.
	ServiceModeIngestor ServiceMode = "ingestor"
	// ServiceModeReconciler periodically completes jobs whose tally already reached total.
	ServiceModeReconciler ServiceMode = "reconciler"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{ServiceModeIngestor, ServiceModeReconciler}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	for part := range strings.SplitSeq(servicesStr, ",") {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}
		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeIngestor, ServiceModeReconciler:
			services[mode] = true
		default:
			return nil, fmt.Errorf("invalid service name: %q (valid options: ingestor, reconciler)", serviceName)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}
	return services, nil
}

// IngestorConfig contains result ingestor configuration.
type IngestorConfig struct {
	// Concurrency is the number of deliveries handled in parallel.
	Concurrency int `env:"CONCURRENCY" envDefault:"4"`
	// HandlerTimeout bounds one delivery end to end.
	HandlerTimeout time.Duration `env:"HANDLER_TIMEOUT" envDefault:"30s"`
	// TransitionAttempts bounds retries of the guarded completion write.
	TransitionAttempts int `env:"TRANSITION_ATTEMPTS" envDefault:"5"`
}

// Sanitize applies guardrails to ingestor configuration values.
func (c *IngestorConfig) Sanitize() {
	if c.Concurrency < 1 {
		c.Concurrency = 1
	}
	if c.Concurrency > 256 {
		c.Concurrency = 256
	}
	if c.HandlerTimeout < time.Second {
		c.HandlerTimeout = time.Second
	}
	if c.TransitionAttempts < 1 {
		c.TransitionAttempts = 1
	}
}

// ReconcilerConfig contains reconciler service configuration.
type ReconcilerConfig struct {
	// Interval is the mean time between sweeps; each tick is jittered.
	Interval time.Duration `env:"INTERVAL" envDefault:"1m"`
	// Jitter is the standard deviation applied to Interval.
	Jitter time.Duration `env:"JITTER" envDefault:"10s"`
	// StaleAfter is how long a processing job may go without progress before it is reported.
	StaleAfter time.Duration `env:"STALE_AFTER" envDefault:"30m"`
	// BatchSize is the page size of each scan.
	BatchSize int `env:"BATCH_SIZE" envDefault:"200"`
}

// Sanitize applies guardrails to reconciler configuration values.
func (r *ReconcilerConfig) Sanitize() {
	if r.Interval < time.Second {
		r.Interval = time.Second
	}
	if r.Jitter < 0 {
		r.Jitter = 0
	}
	// Keep ticks positive: the jittered delay is drawn from N(Interval, Jitter).
	if r.Jitter > r.Interval/2 {
		r.Jitter = r.Interval / 2
	}
	if r.StaleAfter < time.Minute {
		r.StaleAfter = time.Minute
	}
	if r.BatchSize < 1 {
		r.BatchSize = 1
	}
	if r.BatchSize > 5000 {
		r.BatchSize = 5000
	}
}
