package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/interop/jobgather/internal/adapters/eventbus"
	"github.com/interop/jobgather/internal/data"
	httpx "github.com/interop/jobgather/internal/http"
)

// HealthServerConfig contains the dependencies checked by /readyz.
type HealthServerConfig struct {
	Addr          string
	DB            *sql.DB
	// DeliveryGuard is checked only when the ingestor deduplicates through Redis.
	DeliveryGuard *data.RedisDeliveryGuard
	AMQP          *eventbus.Connector
	Logger        *slog.Logger
}

// StartHealthServer starts the health listener. It returns nil when Addr is empty.
func StartHealthServer(cfg HealthServerConfig) *http.Server {
	if cfg.Addr == "" {
		return nil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	handler := httpx.NewHealthRouter(httpx.HealthOptions{
		Checks: readinessChecks(cfg),
		Logger: logger,
	})

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("starting health server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("health server failed", "error", err)
		}
	}()

	return server
}

func readinessChecks(cfg HealthServerConfig) []httpx.ReadinessCheck {
	var checks []httpx.ReadinessCheck
	if cfg.DB != nil {
		checks = append(checks, httpx.ReadinessCheck{Name: "postgres", Check: cfg.DB.PingContext})
	}
	if cfg.DeliveryGuard != nil {
		checks = append(checks, httpx.ReadinessCheck{Name: "redis", Check: cfg.DeliveryGuard.Health})
	}
	if cfg.AMQP != nil {
		checks = append(checks, httpx.ReadinessCheck{Name: "amqp", Check: cfg.AMQP.Check})
	}
	return checks
}

// ShutdownHealthServer gracefully shuts down the health listener.
func ShutdownHealthServer(ctx context.Context, server *http.Server, logger *slog.Logger) error {
	if server == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if logger != nil {
		logger.Info("health server stopped")
	}
	return nil
}
