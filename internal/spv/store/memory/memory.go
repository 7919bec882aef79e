// Package memory is an in-process block store.
package memory

import (
	"context"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/goodnatureofminers/spvchain/internal/spv/model"
	"github.com/goodnatureofminers/spvchain/internal/spv/store"
)

// Store keeps encoded records in a map.
type Store struct {
	mu      sync.RWMutex
	records map[chainhash.Hash][]byte
	tip     []byte
	closed  bool
}

func New() *Store {
	return &Store{records: make(map[chainhash.Hash][]byte)}
}

func (s *Store) Get(ctx context.Context, hash chainhash.Hash) (*model.ChainBlock, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, store.ErrClosed
	}
	data, ok := s.records[hash]
	if !ok {
		return nil, store.ErrNotFound
	}
	return store.DecodeBlock(data)
}

func (s *Store) Put(ctx context.Context, block *model.ChainBlock, opts store.PutOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return store.ErrClosed
	}
	s.records[block.Hash] = store.EncodeBlock(block)
	if opts.Prev != nil {
		s.records[opts.Prev.Hash] = store.EncodeBlock(opts.Prev)
	}
	if opts.Tip {
		s.tip = store.EncodeTip(block)
	}
	return nil
}

func (s *Store) GetTip(ctx context.Context) (*model.ChainBlock, error) {
	s.mu.RLock()
	tip, closed := s.tip, s.closed
	s.mu.RUnlock()

	if closed {
		return nil, store.ErrClosed
	}
	if tip == nil {
		return nil, store.ErrNotFound
	}
	_, hash, err := store.DecodeTip(tip)
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, hash)
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
