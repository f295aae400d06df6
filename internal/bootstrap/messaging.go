package bootstrap

import (
	"fmt"
	"log/slog"
	"net/url"

	"github.com/interop/jobgather/config"
	"github.com/interop/jobgather/internal/adapters/eventbus"
	"github.com/interop/jobgather/internal/adapters/finisher"
)

// ConnectAMQP dials the broker once so bad credentials fail startup. The returned
// connector redials on its own after broker restarts.
func ConnectAMQP(cfg config.AMQPConfig, logger *slog.Logger) (*eventbus.Connector, error) {
	conn := eventbus.NewConnector(cfg.URL)
	if err := conn.Connect(); err != nil {
		return nil, fmt.Errorf("connect amqp: %w", err)
	}
	if logger != nil {
		logger.Info("amqp connected", "addr", redactURL(cfg.URL))
	}
	return conn, nil
}

// publishOpener adapts the connector to the finisher's channel type.
func publishOpener(conn *eventbus.Connector) func() (finisher.PublishChannel, error) {
	return func() (finisher.PublishChannel, error) {
		ch, err := conn.Channel()
		if err != nil {
			return nil, err
		}
		return ch, nil
	}
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<unparseable>"
	}
	return u.Redacted()
}
