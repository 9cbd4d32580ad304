package scimgateway

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/scimforge/gateway/observability"
)

type logRecord struct {
	ctx      context.Context
	level    slog.Level
	category string
	endpoint string
	msg      string
	attrs    map[string]any
}

// requestLogBatcher sits between LoggingMiddleware and the
// observability logger, coalescing request-log writes so a busy
// gateway doesn't take the ring buffer's lock on every request. It
// flushes whenever the pending batch reaches maxBatch entries and on
// every tick of a fixed flushInterval ticker (a size-triggered flush
// does not reset the ticker), and once more, unconditionally, on Close.
type requestLogBatcher struct {
	logger   *observability.Logger
	maxBatch int

	mu      sync.Mutex
	pending []logRecord

	closeOnce sync.Once
	done      chan struct{}
	ticker    *time.Ticker
}

// newRequestLogBatcher starts the background flush ticker immediately;
// callers must Close it to stop the goroutine and flush anything left.
func newRequestLogBatcher(logger *observability.Logger, maxBatch int, flushInterval time.Duration) *requestLogBatcher {
	b := &requestLogBatcher{
		logger:   logger,
		maxBatch: maxBatch,
		done:     make(chan struct{}),
		ticker:   time.NewTicker(flushInterval),
	}
	go b.run()
	return b
}

func (b *requestLogBatcher) run() {
	for {
		select {
		case <-b.ticker.C:
			b.flush()
		case <-b.done:
			b.ticker.Stop()
			return
		}
	}
}

// Log satisfies RequestLogger, so the batcher drops into
// LoggingMiddleware in place of the logger it wraps.
func (b *requestLogBatcher) Log(ctx context.Context, level slog.Level, category, endpoint, msg string, attrs map[string]any) {
	b.mu.Lock()
	b.pending = append(b.pending, logRecord{ctx, level, category, endpoint, msg, attrs})
	shouldFlush := len(b.pending) >= b.maxBatch
	b.mu.Unlock()

	if shouldFlush {
		b.flush()
	}
}

func (b *requestLogBatcher) flush() {
	b.mu.Lock()
	batch := b.pending
	b.pending = nil
	b.mu.Unlock()

	for _, rec := range batch {
		b.logger.Log(rec.ctx, rec.level, rec.category, rec.endpoint, rec.msg, rec.attrs)
	}
}

// Close stops the flush ticker and drains whatever is still pending
// into the underlying logger. Safe to call more than once.
func (b *requestLogBatcher) Close() {
	b.closeOnce.Do(func() {
		close(b.done)
		b.flush()
	})
}
