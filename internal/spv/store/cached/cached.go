// Package cached puts an LRU read cache in front of a block store.
package cached

import (
	"context"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/goodnatureofminers/spvchain/internal/spv/model"
	"github.com/goodnatureofminers/spvchain/internal/spv/store"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Store caches decoded blocks by hash. The tip is always read through.
type Store struct {
	store.Store
	lru *lru.Cache[chainhash.Hash, *model.ChainBlock]
}

// New wraps backend with a cache holding up to size blocks.
func New(backend store.Store, size int) (*Store, error) {
	l, err := lru.New[chainhash.Hash, *model.ChainBlock](size)
	if err != nil {
		return nil, err
	}
	return &Store{Store: backend, lru: l}, nil
}

func (s *Store) Get(ctx context.Context, hash chainhash.Hash) (*model.ChainBlock, error) {
	if b, ok := s.lru.Get(hash); ok {
		return b, nil
	}
	b, err := s.Store.Get(ctx, hash)
	if err != nil {
		return nil, err
	}
	s.lru.Add(hash, b)
	return b, nil
}

func (s *Store) Put(ctx context.Context, block *model.ChainBlock, opts store.PutOptions) error {
	if err := s.Store.Put(ctx, block, opts); err != nil {
		// the write may have partially applied; drop both entries
		s.lru.Remove(block.Hash)
		if opts.Prev != nil {
			s.lru.Remove(opts.Prev.Hash)
		}
		return err
	}
	s.lru.Add(block.Hash, block)
	if opts.Prev != nil {
		s.lru.Add(opts.Prev.Hash, opts.Prev)
	}
	return nil
}

func (s *Store) Close() error {
	s.lru.Purge()
	return s.Store.Close()
}
