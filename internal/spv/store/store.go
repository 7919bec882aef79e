// Package store defines how accepted chain blocks are persisted.
package store

import (
	"context"
	"errors"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/goodnatureofminers/spvchain/internal/spv/model"
)

var (
	ErrNotFound = errors.New("block not found")
	ErrClosed   = errors.New("store closed")
)

// PutOptions control what is written together with a block.
type PutOptions struct {
	// Tip records the block as the new tip.
	Tip bool
	// Prev is written in the same batch, usually with its next pointer updated.
	Prev *model.ChainBlock
}

// Store persists chain blocks keyed by hash. Put must write the block, Prev
// and the tip record atomically.
type Store interface {
	Get(ctx context.Context, hash chainhash.Hash) (*model.ChainBlock, error)
	Put(ctx context.Context, block *model.ChainBlock, opts PutOptions) error
	GetTip(ctx context.Context) (*model.ChainBlock, error)
	Close() error
}
