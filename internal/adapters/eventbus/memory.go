package eventbus

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/interop/jobgather/internal/core"
	"github.com/interop/jobgather/internal/domain/model"
)

// ErrBusClosed is returned by Publish after Close.
var ErrBusClosed = errors.New("bus closed")

// DeadLetter is an event the handler kept rejecting.
type DeadLetter struct {
	Event    model.UnitEvent
	Attempts int
	Err      error
}

// MemoryBus is an in-process EventBus used for replays and tests.
// Failed deliveries are retried in place up to MaxAttempts, then dead-lettered.
type MemoryBus struct {
	events      chan model.UnitEvent
	maxAttempts int
	logger      *slog.Logger

	closeOnce sync.Once
	closed    chan struct{}

	mu   sync.Mutex
	dead []DeadLetter
}

var _ core.EventBus = (*MemoryBus)(nil)

// NewMemoryBus creates a bus with the given buffer and attempt budget.
func NewMemoryBus(buffer, maxAttempts int, logger *slog.Logger) *MemoryBus {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &MemoryBus{
		events:      make(chan model.UnitEvent, max(buffer, 0)),
		maxAttempts: max(maxAttempts, 1),
		logger:      logger.With("component", "memory_bus"),
		closed:      make(chan struct{}),
	}
}

// Publish enqueues ev, blocking while the buffer is full.
func (b *MemoryBus) Publish(ctx context.Context, ev model.UnitEvent) error {
	select {
	case <-b.closed:
		return ErrBusClosed
	default:
	}
	select {
	case b.events <- ev:
		return nil
	case <-b.closed:
		return ErrBusClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting events. Subscribe returns once the buffer is drained.
func (b *MemoryBus) Close() {
	b.closeOnce.Do(func() { close(b.closed) })
}

// Subscribe handles events until ctx is canceled, or until the bus is closed and empty.
func (b *MemoryBus) Subscribe(ctx context.Context, handler core.UnitEventHandler) error {
	if handler == nil {
		return errors.New("handler is required")
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-b.events:
			b.deliver(ctx, ev, handler)
		case <-b.closed:
			// Drain what was published before Close.
			for {
				select {
				case ev := <-b.events:
					b.deliver(ctx, ev, handler)
				default:
					return nil
				}
			}
		}
	}
}

func (b *MemoryBus) deliver(ctx context.Context, ev model.UnitEvent, handler core.UnitEventHandler) {
	var err error
	attempts := 0
	for attempts < b.maxAttempts {
		attempts++
		if err = handler(ctx, ev); err == nil {
			return
		}
		if ctx.Err() != nil {
			break
		}
		b.logger.DebugContext(ctx, "redelivering unit event", "attempt", attempts, "error", err)
	}
	b.logger.WarnContext(ctx, "unit event dead-lettered", "job_id", ev.JobID, "unit_ref", ev.UnitRef, "error", err)
	b.mu.Lock()
	b.dead = append(b.dead, DeadLetter{Event: ev, Attempts: attempts, Err: err})
	b.mu.Unlock()
}

// DeadLetters returns a copy of the events that exhausted their attempts.
func (b *MemoryBus) DeadLetters() []DeadLetter {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]DeadLetter, len(b.dead))
	copy(out, b.dead)
	return out
}
