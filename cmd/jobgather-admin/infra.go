package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/interop/jobgather/internal/adapters/eventbus"
	"github.com/interop/jobgather/internal/bootstrap"
	"github.com/interop/jobgather/internal/core"
)

type serviceOptions struct {
	Timeout time.Duration
	// Bus replaces the AMQP consumer; commands never consume from the broker.
	Bus core.EventBus
}

// withServices connects the configured infrastructure, builds the service container and
// runs f. Redis and AMQP are attached only when the configuration asks for them.
func withServices(
	cmdCtx *commandContext,
	opts serviceOptions,
	f func(context.Context, *bootstrap.ServiceContainer) error,
) (err error) {
	ctx := cmdCtx.Ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	cfg := &cmdCtx.Config
	dbCfg := bootstrap.DatabaseConfig{
		DBConfig:    cfg.Postgres,
		RedisConfig: cfg.Redis,
		Logger:      cmdCtx.Logger,
	}

	db, err := bootstrap.ConnectDB(dbCfg)
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close db: %w", cerr))
		}
	}()

	deps := &bootstrap.ServiceDeps{
		Config: cfg,
		DB:     db,
		Logger: cmdCtx.Logger,
		Bus:    opts.Bus,
	}

	if cfg.Redis.Enabled {
		client, redisErr := bootstrap.ConnectRedis(dbCfg)
		if redisErr != nil {
			return fmt.Errorf("connect redis: %w", redisErr)
		}
		defer func() {
			if cerr := client.Close(); cerr != nil {
				err = errors.Join(err, fmt.Errorf("close redis: %w", cerr))
			}
		}()
		deps.RedisClient = client
	}

	var conn *eventbus.Connector
	if cfg.Trigger.Mode == "amqp" {
		conn, err = bootstrap.ConnectAMQP(cfg.AMQP, cmdCtx.Logger)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := conn.Close(); cerr != nil {
				err = errors.Join(err, fmt.Errorf("close amqp: %w", cerr))
			}
		}()
		deps.AMQP = conn
	}

	services, err := bootstrap.NewServices(deps)
	if err != nil {
		return fmt.Errorf("init services: %w", err)
	}
	defer func() {
		if cerr := services.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close services: %w", cerr))
		}
	}()

	return f(ctx, &services)
}
