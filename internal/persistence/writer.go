package persistence

import (
	"context"
	"log/slog"
	"time"
)

const (
	writeAttempts    = 3
	writeRetryDelay  = 150 * time.Millisecond
	defaultQueueSize = 256
)

type storeWrite struct {
	op string
	fn func(context.Context) error
}

// Writer serializes store mutations onto one goroutine so bus handlers
// never block on sqlite. Failed writes are retried with a doubling delay
// before being dropped.
type Writer struct {
	logger *slog.Logger
	queue  chan storeWrite
}

func NewWriter(logger *slog.Logger, capacity int) *Writer {
	if capacity <= 0 {
		capacity = defaultQueueSize
	}

	return &Writer{
		logger: logger,
		queue:  make(chan storeWrite, capacity),
	}
}

// Enqueue never blocks the caller: when the queue is full the write is
// handed to a goroutine that waits for a slot.
func (w *Writer) Enqueue(op string, fn func(context.Context) error) {
	wr := storeWrite{op: op, fn: fn}
	select {
	case w.queue <- wr:
	default:
		go func() { w.queue <- wr }()
	}
}

func (w *Writer) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case wr := <-w.queue:
				w.apply(ctx, wr)
			}
		}
	}()
}

func (w *Writer) apply(ctx context.Context, wr storeWrite) {
	delay := writeRetryDelay
	for attempt := 1; ; attempt++ {
		err := wr.fn(ctx)
		if err == nil {
			return
		}
		w.logger.Error("store write failed", "op", wr.op, "attempt", attempt, "error", err)
		if attempt == writeAttempts {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
	}
}
