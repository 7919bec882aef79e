// Package batcher provides a generic buffered batch processor with rate limiting.
package batcher

import (
	"context"
	"sync"
	"time"

	"go.uber.org/ratelimit"
	"go.uber.org/zap"
)

const finalFlushTimeout = 5 * time.Second

// Options configure a Batcher.
type Options struct {
	// FlushSize flushes once this many items are buffered.
	FlushSize int
	// FlushInterval flushes a partial batch after this long.
	FlushInterval time.Duration
	// RPS limits flushes per second.
	RPS int
}

// Batcher buffers items and flushes them either by size or interval. Items
// still queued when it stops are flushed before Stop returns.
type Batcher[T any] struct {
	flush   func(context.Context, []T) error
	itemsCh chan T
	opts    Options
	rl      ratelimit.Limiter
	logger  *zap.Logger

	wg       sync.WaitGroup
	stop     chan struct{}
	stopOnce sync.Once
}

// New constructs a Batcher.
func New[T any](logger *zap.Logger, flush func(context.Context, []T) error, opts Options) *Batcher[T] {
	if opts.FlushSize <= 0 {
		opts.FlushSize = 1
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = time.Second
	}
	if opts.RPS <= 0 {
		opts.RPS = 100
	}
	return &Batcher[T]{
		logger:  logger,
		flush:   flush,
		itemsCh: make(chan T, opts.FlushSize*2),
		opts:    opts,
		rl:      ratelimit.New(opts.RPS),
		stop:    make(chan struct{}),
	}
}

// Start begins the background flushing loop.
func (b *Batcher[T]) Start(ctx context.Context) {
	b.wg.Add(1)
	go b.run(ctx)
}

// Stop flushes queued items and stops the background loop.
func (b *Batcher[T]) Stop() {
	b.stopOnce.Do(func() { close(b.stop) })
	b.wg.Wait()
}

// Add queues an item for batching, respecting context cancellation.
func (b *Batcher[T]) Add(ctx context.Context, item T) error {
	select {
	case <-b.stop:
		return context.Canceled
	default:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-b.stop:
		return context.Canceled
	case b.itemsCh <- item:
		return nil
	}
}

func (b *Batcher[T]) run(ctx context.Context) {
	defer b.wg.Done()

	ticker := time.NewTicker(b.opts.FlushInterval)
	defer ticker.Stop()

	buf := make([]T, 0, b.opts.FlushSize)

	flush := func(ctx context.Context) {
		if len(buf) == 0 {
			return
		}

		b.rl.Take()
		err := b.flush(ctx, buf)
		if err != nil {
			b.logger.Error("batch not flushed", zap.Int("size", len(buf)), zap.Error(err))
		} else {
			b.logger.Debug("batch flushed", zap.Int("size", len(buf)))
		}
		buf = buf[:0]
	}

	// drain flushes whatever is still queued after the loop ends.
	drain := func() {
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalFlushTimeout)
		defer cancel()
		for {
			select {
			case item := <-b.itemsCh:
				buf = append(buf, item)
				if len(buf) >= b.opts.FlushSize {
					flush(flushCtx)
				}
			default:
				flush(flushCtx)
				return
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			drain()
			return

		case <-b.stop:
			drain()
			return

		case item := <-b.itemsCh:
			buf = append(buf, item)
			if len(buf) >= b.opts.FlushSize {
				flush(ctx)
			}

		case <-ticker.C:
			flush(ctx)
		}
	}
}
