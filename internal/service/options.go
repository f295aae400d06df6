package service

import (
	"log/slog"
	"time"

	"github.com/interop/jobgather/internal/observability/notify"
)

func componentLogger(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return logger.With("component", component)
}

func alerterOrNop(a notify.Alerter) notify.Alerter {
	if a == nil {
		return notify.NopAlerter{}
	}
	return a
}

func clockOrNow(now func() time.Time) func() time.Time {
	if now == nil {
		return time.Now
	}
	return now
}
