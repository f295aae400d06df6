package bootstrap

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/interop/jobgather/config"
	"github.com/interop/jobgather/internal/adapters/dispatch"
	"github.com/interop/jobgather/internal/adapters/eventbus"
	"github.com/interop/jobgather/internal/adapters/finisher"
	"github.com/interop/jobgather/internal/adapters/webhook"
	"github.com/interop/jobgather/internal/core"
	"github.com/interop/jobgather/internal/data"
	"github.com/interop/jobgather/internal/domain/fanout"
	"github.com/interop/jobgather/internal/observability/notify/pagerduty"
	"github.com/interop/jobgather/internal/observability/notify/slack"
	"github.com/interop/jobgather/internal/observability/statsd"
	"github.com/interop/jobgather/internal/service"
	"github.com/interop/jobgather/internal/service/failurenotifier"
	"github.com/interop/jobgather/internal/util"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Jobs        *service.JobService
	Tracker     *service.ProgressTracker
	Trigger     *service.BestEffortTrigger
	Coordinator *service.Coordinator
	Ingestor    *service.ResultIngestor
	Reconciler  *service.Reconciler
	Poller      *service.CompletionPoller
	Gather      *service.GatherService

	// Repositories are exposed for the admin CLI.
	JobRepo  *data.JobRepo
	Mappings *data.UnitMappingRepo
	Records  *data.UnitRecordRepo
	Results  *data.ResultRepo

	// DeliveryGuard is nil unless Redis is configured.
	DeliveryGuard *data.RedisDeliveryGuard

	Observability ObservabilityContainer

	closers []func() error
}

// Close releases adapters owned by the container (publisher channel, statsd socket).
func (c *ServiceContainer) Close() error {
	var errs []error
	for _, fn := range c.closers {
		if err := fn(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	// MetricsSink is nil when metrics are disabled.
	MetricsSink     statsd.Sink
	MetricsConfig   config.ObservabilityMetricsConfig
	FailureNotifier *failurenotifier.Service
	NotifierConfig  config.ObservabilityNotificationsConfig
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient // Optional: enables the delivery guard
	AMQP        *eventbus.Connector   // Optional: required by the ingestor and the amqp finisher
	Logger      *slog.Logger
	// Bus overrides the AMQP bus (replays, tests).
	Bus core.EventBus
}

// NewServices wires repositories, adapters and services.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return ServiceContainer{}, errors.New("service deps with config are required")
	}
	if deps.DB == nil {
		return ServiceContainer{}, errors.New("database is required")
	}
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := ServiceContainer{
		JobRepo:  data.NewJobRepo(deps.DB, data.RepoConfig{Logger: logger}),
		Mappings: data.NewUnitMappingRepo(deps.DB, nil),
		Records:  data.NewUnitRecordRepo(deps.DB, nil),
		Results:  data.NewResultRepo(deps.DB),
	}
	c.Observability = buildObservability(logger, cfg.Observability)
	if closer, ok := c.Observability.MetricsSink.(interface{ Close() error }); ok {
		c.closers = append(c.closers, closer.Close)
	}
	obs := c.Observability

	webhooks, err := buildWebhookSink(cfg.Webhook)
	if err != nil {
		return c, err
	}
	if c.Jobs, err = service.NewJobService(service.JobServiceOptions{
		Repo:     c.JobRepo,
		Webhooks: webhooks,
		Logger:   logger,
		Metrics:  obs.MetricsSink,
	}); err != nil {
		return c, fmt.Errorf("job service: %w", err)
	}
	if c.Tracker, err = service.NewProgressTracker(service.ProgressTrackerOptions{
		Store:   c.JobRepo,
		Logger:  logger,
		Metrics: obs.MetricsSink,
	}); err != nil {
		return c, fmt.Errorf("progress tracker: %w", err)
	}

	fin, closeFin, err := buildFinisher(cfg, deps.AMQP)
	if err != nil {
		return c, err
	}
	if closeFin != nil {
		c.closers = append(c.closers, closeFin)
	}
	c.Trigger = service.NewBestEffortTrigger(service.BestEffortTriggerOptions{
		Finisher: fin,
		Config:   cfg.Trigger,
		Logger:   logger,
		Metrics:  obs.MetricsSink,
		Alerter:  obs.FailureNotifier,
	})

	if c.Coordinator, err = service.NewCoordinator(service.CoordinatorOptions{
		Tracker:            c.Tracker,
		Jobs:               c.Jobs,
		Trigger:            c.Trigger,
		Logger:             logger,
		Alerter:            obs.FailureNotifier,
		TransitionAttempts: cfg.Ingestor.TransitionAttempts,
	}); err != nil {
		return c, fmt.Errorf("coordinator: %w", err)
	}

	if err := c.buildIngestor(deps, logger); err != nil {
		return c, err
	}

	if c.Reconciler, err = service.NewReconciler(service.ReconcilerOptions{
		Repo:        c.JobRepo,
		Coordinator: c.Coordinator,
		Config:      cfg.Reconciler,
		Logger:      logger,
		Metrics:     obs.MetricsSink,
		Alerter:     obs.FailureNotifier,
	}); err != nil {
		return c, fmt.Errorf("reconciler: %w", err)
	}

	if c.Poller, err = service.NewCompletionPoller(service.CompletionPollerOptions{
		Results: c.Results,
		Config:  cfg.Poller,
		Logger:  logger,
		Metrics: obs.MetricsSink,
		Alerter: obs.FailureNotifier,
	}); err != nil {
		return c, fmt.Errorf("completion poller: %w", err)
	}

	if c.Gather, err = buildGather(cfg, c.Poller, logger, obs); err != nil {
		return c, err
	}
	return c, nil
}

func (c *ServiceContainer) buildIngestor(deps *ServiceDeps, logger *slog.Logger) error {
	cfg := deps.Config

	var guard core.DeliveryGuard
	if deps.RedisClient != nil {
		c.DeliveryGuard = data.NewRedisDeliveryGuard(deps.RedisClient, data.DeliveryGuardOptions{
			KeyPrefix: cfg.Redis.KeyPrefix,
			LeaseTTL:  cfg.Redis.LeaseTTL,
			DoneTTL:   cfg.Redis.DoneTTL,
		})
		guard = c.DeliveryGuard
	}

	bus := deps.Bus
	if bus == nil && deps.AMQP != nil {
		amqpBus, err := eventbus.NewAMQPBus(eventbus.AMQPBusOptions{
			Open:           deps.AMQP.Opener(),
			Exchange:       cfg.AMQP.Exchange,
			Queue:          cfg.AMQP.Queue,
			RoutingKey:     cfg.AMQP.RoutingKey,
			Prefetch:       cfg.AMQP.Prefetch,
			Concurrency:    cfg.Ingestor.Concurrency,
			ConsumerTag:    "jobgather-ingestor",
			ReconnectDelay: cfg.AMQP.ReconnectDelay,
			Logger:         logger,
		})
		if err != nil {
			return fmt.Errorf("amqp bus: %w", err)
		}
		bus = amqpBus
	}

	ing, err := service.NewResultIngestor(service.ResultIngestorOptions{
		Bus:            bus,
		Mappings:       c.Mappings,
		Records:        c.Records,
		Coordinator:    c.Coordinator,
		Guard:          guard,
		Logger:         logger,
		Metrics:        c.Observability.MetricsSink,
		Alerter:        c.Observability.FailureNotifier,
		HandlerTimeout: cfg.Ingestor.HandlerTimeout,
	})
	if err != nil {
		return fmt.Errorf("result ingestor: %w", err)
	}
	c.Ingestor = ing
	return nil
}

// buildObservability configures metrics and notification adapters.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	out := ObservabilityContainer{
		MetricsConfig:  cfg.Metrics,
		NotifierConfig: cfg.Notifications,
	}
	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled: true,
			Address: cfg.Metrics.StatsdAddress,
			Prefix:  cfg.Metrics.Prefix,
			Logger:  obsLogger,
		})
		if err != nil {
			obsLogger.Error("failed to initialise statsd client", "error", err)
		} else {
			out.MetricsSink = client
		}
	}
	out.FailureNotifier = buildFailureNotifier(obsLogger, cfg.Notifications)
	return out
}

func buildFailureNotifier(logger *slog.Logger, cfg config.ObservabilityNotificationsConfig) *failurenotifier.Service {
	baseLogger := logger
	if baseLogger == nil {
		baseLogger = slog.Default()
	}

	if !cfg.Enabled {
		return failurenotifier.NewService(failurenotifier.Options{
			Logger: baseLogger,
		})
	}

	sinks := make([]failurenotifier.SinkRegistration, 0, 2)

	if cfg.Slack.Enabled {
		client, err := slack.NewClient(slack.Config{
			WebhookURL:   cfg.Slack.WebhookURL,
			Channel:      cfg.Slack.Channel,
			Username:     cfg.Slack.Username,
			Timeout:      cfg.Timeout,
			RetryLimit:   cfg.RetryLimit,
			JobURLPrefix: cfg.Slack.JobURLPrefix,
		})
		if err != nil {
			baseLogger.Error("failed to initialise slack notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{
				Name: "slack",
				Sink: client,
			})
		}
	}

	if cfg.PagerDuty.Enabled {
		client, err := pagerduty.NewClient(pagerduty.Config{
			RoutingKey: cfg.PagerDuty.RoutingKey,
			Source:     cfg.PagerDuty.Source,
			Component:  cfg.PagerDuty.Component,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			baseLogger.Error("failed to initialise pagerduty notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{
				Name: "pagerduty",
				Sink: client,
			})
		}
	}

	return failurenotifier.NewService(failurenotifier.Options{
		Logger:         baseLogger,
		Sinks:          sinks,
		SuppressWindow: cfg.SuppressWindow,
	})
}

//nolint:ireturn // the sink is optional; nil disables webhooks.
func buildWebhookSink(cfg config.WebhookConfig) (core.WebhookSink, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	sink, err := webhook.NewHTTPSink(webhook.Config{
		URL:        cfg.URL,
		Headers:    cfg.Headers,
		BodyExpr:   cfg.BodyExpr,
		Timeout:    cfg.Timeout,
		RetryLimit: cfg.RetryLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("webhook sink: %w", err)
	}
	return sink, nil
}

// buildFinisher selects the downstream collaborator from TRIGGER_MODE. A nil finisher disables the trigger.
//
//nolint:ireturn // the finisher implementation depends on configuration.
func buildFinisher(cfg *config.AppConfig, conn *eventbus.Connector) (core.Finisher, func() error, error) {
	switch cfg.Trigger.Mode {
	case "amqp":
		if conn == nil {
			return nil, nil, errors.New("trigger mode amqp requires an amqp connection")
		}
		pub, err := finisher.NewAMQPPublisher(finisher.AMQPOptions{
			Open:       publishOpener(conn),
			Exchange:   cfg.AMQP.FinishedExchange,
			RoutingKey: cfg.AMQP.FinishedRoutingKey,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("amqp finisher: %w", err)
		}
		return pub, pub.Close, nil
	case "http":
		f, err := finisher.NewHTTPFinisher(finisher.HTTPOptions{
			URL:     cfg.Trigger.URL,
			Timeout: cfg.Trigger.Timeout,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("http finisher: %w", err)
		}
		return f, nil, nil
	default:
		return nil, nil, nil
	}
}

func buildGather(
	cfg *config.AppConfig,
	poller *service.CompletionPoller,
	logger *slog.Logger,
	obs ObservabilityContainer,
) (*service.GatherService, error) {
	capacity, err := fanout.NewCapacityPolicy(cfg.Fanout.DefaultCapacity, cfg.Fanout.CapacityOverrides)
	if err != nil {
		return nil, fmt.Errorf("capacity policy: %w", err)
	}
	resolver, err := fanout.NewJMESPathTargetResolver(cfg.Fanout.TargetIDExpr, cfg.Fanout.EndpointExpr, cfg.Fanout.Endpoints)
	if err != nil {
		return nil, fmt.Errorf("target resolver: %w", err)
	}
	dispatcher := dispatch.NewHTTPDispatcher(dispatch.HTTPOptions{
		Policy: util.RetryPolicy{
			MaxAttempts:     cfg.Trigger.MaxAttempts,
			InitialInterval: cfg.Trigger.InitialInterval,
			MaxInterval:     cfg.Trigger.MaxInterval,
		},
	})
	gather, err := service.NewGatherService(service.GatherServiceOptions{
		Dispatcher:  dispatcher,
		Poller:      poller,
		Capacity:    capacity.CapacityOf,
		Targets:     resolver.Resolve,
		Concurrency: cfg.Fanout.DispatchConcurrency,
		Logger:      logger,
		Metrics:     obs.MetricsSink,
		Alerter:     obs.FailureNotifier,
	})
	if err != nil {
		return nil, fmt.Errorf("gather service: %w", err)
	}
	return gather, nil
}
