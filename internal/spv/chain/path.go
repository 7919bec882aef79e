package chain

import (
	"context"
	"fmt"

	"github.com/goodnatureofminers/spvchain/internal/spv/model"
)

// GetPath returns the blocks to remove from and add to from in order to reach
// to.
func (c *Chain) GetPath(ctx context.Context, from, to *model.ChainBlock) (*model.ChainPath, error) {
	var (
		remove []*model.ChainBlock
		add    []*model.ChainBlock
		err    error
	)

	for from.Height > to.Height {
		remove = append(remove, from)
		if from, err = c.parent(ctx, from); err != nil {
			return nil, err
		}
	}
	for to.Height > from.Height {
		add = append(add, to)
		if to, err = c.parent(ctx, to); err != nil {
			return nil, err
		}
	}
	for from.Hash != to.Hash {
		if from.Height <= c.params.Floor().Height {
			return nil, fmt.Errorf("%w: %s and %s", ErrNotInSameChain, from.Hash, to.Hash)
		}
		remove = append(remove, from)
		add = append(add, to)
		if from, err = c.parent(ctx, from); err != nil {
			return nil, err
		}
		if to, err = c.parent(ctx, to); err != nil {
			return nil, err
		}
	}

	for i, j := 0, len(add)-1; i < j; i, j = i+1, j-1 {
		add[i], add[j] = add[j], add[i]
	}

	path := &model.ChainPath{Add: add, Remove: remove}
	if len(add) > 0 && len(remove) > 0 {
		path.Fork = from
	}
	return path, nil
}

func (c *Chain) parent(ctx context.Context, b *model.ChainBlock) (*model.ChainBlock, error) {
	if b.Height <= c.params.Floor().Height {
		return nil, fmt.Errorf("%w: walked below height %d", ErrNotInSameChain, b.Height)
	}
	p, err := c.Get(ctx, b.Header.PrevHash())
	if err != nil {
		return nil, fmt.Errorf("get parent of %s: %w", b.Hash, err)
	}
	return p, nil
}
