package chain

import (
	"context"
	"fmt"

	"github.com/goodnatureofminers/spvchain/internal/spv/model"
	"github.com/goodnatureofminers/spvchain/internal/spv/store"
)

// GetBlockAtHeight returns the best chain block at height, walking from the
// floor or from the tip, whichever is closer.
func (c *Chain) GetBlockAtHeight(ctx context.Context, height uint64) (*model.ChainBlock, error) {
	tip := c.Tip()
	floor := c.params.Floor()
	if height < floor.Height || height > tip.Height {
		return nil, fmt.Errorf("%w: %d not in [%d, %d]", ErrHeightOutOfRange, height, floor.Height, tip.Height)
	}

	if height-floor.Height < tip.Height-height {
		return c.walkForward(ctx, floor, height)
	}

	cur := tip
	for cur.Height > height {
		prev, err := c.Get(ctx, cur.Header.PrevHash())
		if err != nil {
			return nil, fmt.Errorf("walk back from %d: %w", cur.Height, err)
		}
		cur = prev
	}
	return cur, nil
}

func (c *Chain) walkForward(ctx context.Context, floor *model.ChainBlock, height uint64) (*model.ChainBlock, error) {
	cur, err := c.Get(ctx, floor.Hash)
	if err != nil {
		return nil, fmt.Errorf("get floor: %w", err)
	}
	for cur.Height < height {
		if cur.Next == nil {
			return nil, fmt.Errorf("%w: best path ends at height %d", store.ErrNotFound, cur.Height)
		}
		if cur, err = c.Get(ctx, *cur.Next); err != nil {
			return nil, fmt.Errorf("walk forward from %d: %w", height, err)
		}
	}
	return cur, nil
}

// GetBlockAtTime returns the earliest block on the walk back from the tip
// whose timestamp is at or after t minus margin seconds.
func (c *Chain) GetBlockAtTime(ctx context.Context, t, margin uint32) (*model.ChainBlock, error) {
	threshold := uint32(0)
	if t > margin {
		threshold = t - margin
	}
	floorHeight := c.params.Floor().Height

	cur := c.Tip()
	if cur.Header.Time() < threshold {
		return nil, fmt.Errorf("%w: no block at or after time %d", store.ErrNotFound, threshold)
	}
	for cur.Height > floorHeight {
		prev, err := c.Get(ctx, cur.Header.PrevHash())
		if err != nil {
			return nil, fmt.Errorf("walk back from %d: %w", cur.Height, err)
		}
		if prev.Header.Time() < threshold {
			break
		}
		cur = prev
	}
	return cur, nil
}

// GetBlock resolves a hash, height or time reference.
func (c *Chain) GetBlock(ctx context.Context, ref model.BlockRef) (*model.ChainBlock, error) {
	switch ref.Kind {
	case model.RefHeight:
		return c.GetBlockAtHeight(ctx, ref.Height)
	case model.RefTime:
		return c.GetBlockAtTime(ctx, ref.Time, 0)
	default:
		return c.Get(ctx, ref.Hash)
	}
}
