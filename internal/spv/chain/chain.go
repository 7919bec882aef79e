// Package chain validates block headers and maintains the best header chain.
package chain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/goodnatureofminers/spvchain/internal/spv/model"
	"github.com/goodnatureofminers/spvchain/internal/spv/store"
	"github.com/goodnatureofminers/spvchain/pkg/broadcast"
	"go.uber.org/zap"
)

// Chain is the header chain state. ProcessHeaders calls are serialized; reads
// may run concurrently and observe the tip as an immutable snapshot.
type Chain struct {
	params  model.Params
	store   BlockStore
	metrics Metrics
	logger  *zap.Logger

	mu  sync.Mutex
	tip atomic.Pointer[model.ChainBlock]

	syncing    atomic.Bool
	syncHeight atomic.Uint64

	events *broadcast.Hub[Event]
}

// New loads the tip from blockStore, storing the genesis block or checkpoint
// on first use.
func New(ctx context.Context, params model.Params, blockStore BlockStore, metrics Metrics, logger *zap.Logger) (*Chain, error) {
	c := &Chain{
		params:  params,
		store:   blockStore,
		metrics: metrics,
		logger:  logger.Named("chain").With(zap.String("network", params.Name)),
		events:  broadcast.New[Event](),
	}

	tip, err := blockStore.GetTip(ctx)
	switch {
	case errors.Is(err, store.ErrNotFound):
		tip = params.Floor()
		if err := blockStore.Put(ctx, tip, store.PutOptions{Tip: true}); err != nil {
			return nil, fmt.Errorf("store chain anchor: %w", err)
		}
		c.logger.Info("chain initialized", zap.Uint64("height", tip.Height), zap.Stringer("hash", tip.Hash))
	case err != nil:
		return nil, fmt.Errorf("load tip: %w", err)
	default:
		c.logger.Info("chain loaded", zap.Uint64("height", tip.Height), zap.Stringer("hash", tip.Hash))
	}

	c.tip.Store(tip)
	metrics.ObserveTip(tip.Height)
	return c, nil
}

// Params returns the consensus params of the chain.
func (c *Chain) Params() model.Params {
	return c.params
}

// Tip returns the current best block.
func (c *Chain) Tip() *model.ChainBlock {
	return c.tip.Load()
}

// Syncing reports whether Sync is running.
func (c *Chain) Syncing() bool {
	return c.syncing.Load()
}

// Get returns the stored block with the given hash.
func (c *Chain) Get(ctx context.Context, hash chainhash.Hash) (*model.ChainBlock, error) {
	if tip := c.Tip(); tip.Hash == hash {
		return tip, nil
	}
	return c.store.Get(ctx, hash)
}

// Locator returns the block locator used to request headers after the tip.
func (c *Chain) Locator() []chainhash.Hash {
	return []chainhash.Hash{c.Tip().Hash}
}

// Close ends all event subscriptions.
func (c *Chain) Close() {
	c.events.Close()
}

func (c *Chain) setTip(b *model.ChainBlock) {
	c.tip.Store(b)
	c.metrics.ObserveTip(b.Height)
}
