package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/goodnatureofminers/spvchain/internal/clock"
	"github.com/goodnatureofminers/spvchain/internal/spv/model"
	"go.uber.org/zap"
)

// SyncOptions configure Sync.
type SyncOptions struct {
	// To stops the sync once the tip reaches this height. Zero follows the
	// best height reported by the source.
	To uint64
	// Retry paces retries after ErrSourceUnavailable.
	Retry clock.Backoff
}

// Sync requests headers after the tip from source and processes them until
// the target height is reached or source has nothing more to offer.
func (c *Chain) Sync(ctx context.Context, source HeaderSource, opts SyncOptions) (*model.ChainBlock, error) {
	if !c.syncing.CompareAndSwap(false, true) {
		return nil, ErrSyncInProgress
	}
	c.syncHeight.Store(opts.To)
	defer func() {
		c.syncHeight.Store(0)
		c.syncing.Store(false)
	}()

	logger := c.logger.With(zap.Uint64("to", opts.To))
	logger.Info("sync started", zap.Uint64("height", c.Tip().Height))
	c.publish(ctx, Event{Kind: EventSyncing})

	retry := opts.Retry
	for {
		done, err := c.syncDone(ctx, source, opts.To)
		if err == nil && !done {
			err = c.syncBatch(ctx, source, &done)
		}
		if errors.Is(err, ErrSourceUnavailable) {
			logger.Warn("header source unavailable, retrying", zap.Error(err))
			if err := retry.Wait(ctx); err != nil {
				return nil, err
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		retry.Reset()
		if done {
			break
		}
	}

	tip := c.Tip()
	logger.Info("sync finished", zap.Uint64("height", tip.Height), zap.Stringer("hash", tip.Hash))
	c.syncing.Store(false)
	c.publish(ctx, Event{Kind: EventSynced, Tip: tip})
	return tip, nil
}

func (c *Chain) syncDone(ctx context.Context, source HeaderSource, to uint64) (bool, error) {
	if to == 0 {
		best, err := source.BestHeight(ctx)
		if err != nil {
			return false, fmt.Errorf("get best height: %w", err)
		}
		to = best
	}
	return c.Tip().Height >= to, nil
}

func (c *Chain) syncBatch(ctx context.Context, source HeaderSource, done *bool) error {
	headers, err := source.GetHeaders(ctx, c.Locator())
	if err != nil {
		return fmt.Errorf("get headers: %w", err)
	}
	if len(headers) == 0 {
		*done = true
		return nil
	}

	before := c.Tip()
	last, err := c.ProcessHeaders(ctx, headers)
	if err != nil {
		return fmt.Errorf("process headers: %w", err)
	}
	c.publish(ctx, Event{Kind: EventSync, Block: last})

	// With a single hash locator a source on another branch keeps resending
	// headers we already have.
	if c.Tip().Hash == before.Hash {
		c.logger.Warn("header batch did not extend the tip", zap.Int("headers", len(headers)))
		*done = true
	}
	return nil
}
