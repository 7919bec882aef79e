package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goodnatureofminers/spvchain/internal/spv/model"
	"github.com/goodnatureofminers/spvchain/internal/spv/store"
	"go.uber.org/zap"
)

// ProcessHeaders validates headers in order and stores them. headers[0] must
// connect to a stored block and every following header to its predecessor.
// Blocks validated before a failure stay stored. It returns the block built
// from the last header.
func (c *Chain) ProcessHeaders(ctx context.Context, headers []*model.Header) (last *model.ChainBlock, err error) {
	started := time.Now()
	defer func() {
		c.metrics.ObserveProcessHeaders(err, len(headers), started)
	}()

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(headers) == 0 {
		return c.Tip(), nil
	}

	prevTip := c.Tip()
	prevHash := headers[0].PrevHash()
	start, err := c.Get(ctx, prevHash)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: unknown parent %s", ErrDoesNotConnect, prevHash)
	}
	if err != nil {
		return nil, fmt.Errorf("get parent %s: %w", prevHash, err)
	}

	if limit := c.syncHeight.Load(); limit != 0 && start.Height+uint64(len(headers)) > limit {
		if start.Height >= limit {
			return start, nil
		}
		headers = headers[:limit-start.Height]
	}

	last = start
	for i, header := range headers {
		if i > 0 && header.PrevHash() != headers[i-1].Hash() {
			err = fmt.Errorf("%w: header %d (%s) does not follow %s", ErrBrokenSequence, i, header.Hash(), headers[i-1].Hash())
			break
		}
		var block *model.ChainBlock
		block, err = c.processHeader(ctx, last, header)
		if err != nil {
			break
		}
		last = block
	}

	if reorgErr := c.reconcile(ctx, prevTip); reorgErr != nil && err == nil {
		err = reorgErr
	}
	if err != nil {
		return nil, err
	}
	return last, nil
}

// processHeader validates header as the child of parent and stores it.
func (c *Chain) processHeader(ctx context.Context, parent *model.ChainBlock, header *model.Header) (*model.ChainBlock, error) {
	hash := header.Hash()
	if header.PrevHash() != parent.Hash {
		return nil, fmt.Errorf("%w: %s does not follow %s", ErrDoesNotConnect, hash, parent.Hash)
	}
	height := parent.Height + 1

	block, err := c.store.Get(ctx, hash)
	switch {
	case err == nil:
		// Already accepted. Keep the stored copy so its next pointer survives.
	case errors.Is(err, store.ErrNotFound):
		if err := c.validate(ctx, parent, header, height); err != nil {
			return nil, err
		}
		block = model.NewChainBlock(height, header)
	default:
		return nil, fmt.Errorf("get block %s: %w", hash, err)
	}

	tip := c.Tip()
	if block.Height <= tip.Height {
		if err == nil {
			return block, nil
		}
		if err := c.store.Put(ctx, block, store.PutOptions{}); err != nil {
			return nil, fmt.Errorf("put block %s: %w", hash, err)
		}
		return block, nil
	}

	opts := store.PutOptions{Tip: true, Prev: parent.WithNext(block.Hash)}
	if err := c.store.Put(ctx, block, opts); err != nil {
		return nil, fmt.Errorf("put block %s: %w", hash, err)
	}
	c.setTip(block)
	c.logger.Debug("new tip", zap.Uint64("height", block.Height), zap.Stringer("hash", block.Hash))
	c.publish(ctx, Event{Kind: EventBlock, Block: block, Tip: block})
	return block, nil
}

func (c *Chain) validate(ctx context.Context, parent *model.ChainBlock, header *model.Header, height uint64) error {
	hash := header.Hash()
	retarget := c.params.ShouldRetarget(height)

	if !retarget && c.params.ConstantDifficulty && header.Bits() != parent.Header.Bits() {
		return fmt.Errorf("%w at height %d: got %08x, parent %08x", ErrUnexpectedDifficultyChange, height, header.Bits(), parent.Header.Bits())
	}

	target := model.CompactToTarget(header.Bits())
	if target.Sign() <= 0 || target.Cmp(c.params.MaxTarget) > 0 {
		return fmt.Errorf("%w: target %08x out of range at height %d", ErrInvalidProofOfWork, header.Bits(), height)
	}
	if model.HashToTarget(hash).Cmp(target) > 0 {
		return fmt.Errorf("%w: %s above target %08x at height %d", ErrInvalidProofOfWork, hash, header.Bits(), height)
	}

	if retarget && !c.params.NoRetargeting && c.hasRetargetHistory(height) {
		next, err := c.CalculateTarget(ctx, parent)
		if err != nil {
			return fmt.Errorf("calculate target at height %d: %w", height, err)
		}
		if expected := model.TargetToCompact(next); expected != header.Bits() {
			return &UnexpectedBitsError{Height: height, Got: header.Bits(), Expected: expected}
		}
	}
	return nil
}

// hasRetargetHistory reports whether a full retarget window above the
// validation floor exists for height.
func (c *Chain) hasRetargetHistory(height uint64) bool {
	if c.params.Checkpoint == nil {
		return true
	}
	return height >= c.params.Checkpoint.Height+c.params.RetargetInterval
}

// reconcile relinks next pointers and publishes a reorg when the tip moved to
// a branch that does not contain prevTip.
func (c *Chain) reconcile(ctx context.Context, prevTip *model.ChainBlock) error {
	tip := c.Tip()
	if tip.Hash == prevTip.Hash {
		return nil
	}

	path, err := c.GetPath(ctx, prevTip, tip)
	if err != nil {
		return fmt.Errorf("compute reorg path: %w", err)
	}
	if len(path.Remove) == 0 {
		return nil
	}

	prev := path.Fork
	for _, b := range path.Add {
		if prev.Next == nil || *prev.Next != b.Hash {
			if err := c.store.Put(ctx, prev.WithNext(b.Hash), store.PutOptions{}); err != nil {
				return fmt.Errorf("relink block %s: %w", prev.Hash, err)
			}
		}
		prev = b
	}

	c.metrics.ObserveReorg(len(path.Remove))
	c.logger.Info("reorg",
		zap.Uint64("fork_height", path.Fork.Height),
		zap.Int("removed", len(path.Remove)),
		zap.Int("added", len(path.Add)),
		zap.Uint64("tip_height", tip.Height))
	c.publish(ctx, Event{Kind: EventReorg, Path: path, Tip: tip})
	return nil
}
