package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/interop/jobgather/config"
	"github.com/interop/jobgather/internal/adapters/eventbus"
	"github.com/interop/jobgather/internal/bootstrap"
)

func main() {
	ctx := context.Background()
	logger := bootstrap.InitLogger(false)
	if err := run(ctx, logger); err != nil {
		logger.ErrorContext(ctx, "fatal error", "error", err)
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}
	if cfg.IsDev {
		logger = bootstrap.InitLogger(true)
	}

	logStartupInfo(ctx, logger, &cfg)

	cfgPtr := &cfg
	if err = bootstrap.ValidateServiceConfig(cfgPtr); err != nil {
		return err
	}

	infra, err := initInfrastructure(ctx, cfgPtr, logger)
	if err != nil {
		return err
	}
	defer infra.close(ctx, logger)

	if cfg.Postgres.RunMigrationsOnStart {
		if err = bootstrap.RunMigrations(ctx, infra.db, logger); err != nil {
			return err
		}
	} else {
		logger.InfoContext(ctx, "skipping database migrations on startup", "reason", "disabled via config")
	}

	services, err := bootstrap.NewServices(&bootstrap.ServiceDeps{
		Config:      cfgPtr,
		DB:          infra.db,
		RedisClient: infra.redis,
		AMQP:        infra.amqp,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("init services: %w", err)
	}
	defer func() {
		if cerr := services.Close(); cerr != nil {
			logger.ErrorContext(ctx, "close services failed", "error", cerr)
		}
	}()

	return bootstrap.RunServicesWithShutdown(&bootstrap.ServiceOrchestrationConfig{
		Config:   cfgPtr,
		Services: services,
		DB:       infra.db,
		AMQP:     infra.amqp,
		Logger:   logger,
	})
}

func logStartupInfo(ctx context.Context, logger *slog.Logger, cfg *config.AppConfig) {
	logger.InfoContext(ctx, "starting jobgather service",
		"db_host", cfg.Postgres.Host,
		"db_port", cfg.Postgres.Port,
		"db_name", cfg.Postgres.Name,
		"redis_guard", cfg.Redis.Enabled,
		"trigger_mode", cfg.Trigger.Mode,
		"enabled_services", bootstrap.GetEnabledServices(cfg))
}

type infrastructure struct {
	db    *sql.DB
	redis redis.UniversalClient
	amqp  *eventbus.Connector
}

func (i *infrastructure) close(ctx context.Context, logger *slog.Logger) {
	if i.amqp != nil {
		if err := i.amqp.Close(); err != nil {
			logger.ErrorContext(ctx, "close amqp failed", "error", err)
		}
	}
	if i.redis != nil {
		if err := i.redis.Close(); err != nil {
			logger.ErrorContext(ctx, "close redis failed", "error", err)
		}
	}
	if i.db != nil {
		if err := i.db.Close(); err != nil {
			logger.ErrorContext(ctx, "close database failed", "error", err)
		}
	}
}

// initInfrastructure connects shared dependencies used by the service runtime.
// Redis is optional; AMQP is dialed only when the ingestor runs or the trigger publishes to it.
func initInfrastructure(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (*infrastructure, error) {
	dbCfg := bootstrap.DatabaseConfig{
		DBConfig:    cfg.Postgres,
		RedisConfig: cfg.Redis,
		Logger:      logger,
	}
	db, err := bootstrap.ConnectDB(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	infra := &infrastructure{db: db}

	if cfg.Redis.Enabled {
		client, redisErr := bootstrap.ConnectRedis(dbCfg)
		if redisErr != nil {
			infra.close(ctx, logger)
			return nil, fmt.Errorf("connect redis: %w", redisErr)
		}
		infra.redis = client
	}

	if cfg.IsIngestorEnabled() || cfg.Trigger.Mode == "amqp" {
		conn, amqpErr := bootstrap.ConnectAMQP(cfg.AMQP, logger)
		if amqpErr != nil {
			infra.close(ctx, logger)
			return nil, errors.Join(amqpErr, errors.New("amqp is required by the ingestor or TRIGGER_MODE=amqp"))
		}
		infra.amqp = conn
	}

	return infra, nil
}
