package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/goodnatureofminers/spvchain/internal/spv/model"
)

// ShouldRetarget reports whether height is a retarget boundary.
func (c *Chain) ShouldRetarget(height uint64) bool {
	return c.params.ShouldRetarget(height)
}

// CalculateTarget returns the target required for the child of parent. It
// reads the retarget window from the store one block at a time and stops
// when ctx is done.
func (c *Chain) CalculateTarget(ctx context.Context, parent *model.ChainBlock) (*big.Int, error) {
	interval := c.params.RetargetInterval
	if parent.Height+1 < interval {
		return nil, fmt.Errorf("height %d below first retarget window", parent.Height+1)
	}

	first := parent
	for i := uint64(1); i < interval; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		prev, err := c.Get(ctx, first.Header.PrevHash())
		if err != nil {
			return nil, fmt.Errorf("walk retarget window at height %d: %w", first.Height-1, err)
		}
		first = prev
	}

	return nextTarget(parent.Header.Bits(), int64(parent.Header.Time())-int64(first.Header.Time()), c.params), nil
}

func nextTarget(bits uint32, timespan int64, params model.Params) *big.Int {
	expected := int64(params.TargetTimespan)
	if timespan < expected/4 {
		timespan = expected / 4
	}
	if timespan > expected*4 {
		timespan = expected * 4
	}

	target := model.CompactToTarget(bits)
	target.Mul(target, big.NewInt(timespan))
	target.Div(target, big.NewInt(expected))
	if target.Cmp(params.MaxTarget) > 0 {
		target.Set(params.MaxTarget)
	}
	return target
}
