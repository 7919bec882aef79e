// Package badger persists chain blocks in BadgerDB.
package badger

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/dgraph-io/badger/v4"
	"github.com/goodnatureofminers/spvchain/internal/spv/model"
	"github.com/goodnatureofminers/spvchain/internal/spv/store"
	"go.uber.org/zap"
)

// Config holds configuration for BadgerDB.
type Config struct {
	// DataDir is the database directory. An empty DataDir keeps the data in memory.
	DataDir string
}

// Store is a BadgerDB-backed block store.
type Store struct {
	db     *badger.DB
	closed atomic.Bool
}

// New opens the database described by config.
func New(config Config, logger *zap.Logger) (*Store, error) {
	opts := badger.DefaultOptions(config.DataDir).
		WithLogger(badgerLogger{logger.Named("badger").Sugar()})
	if config.DataDir == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Get(ctx context.Context, hash chainhash.Hash) (*model.ChainBlock, error) {
	data, err := s.read(ctx, store.Key(hash))
	if err != nil {
		return nil, err
	}
	return store.DecodeBlock(data)
}

// Put writes the block, the previous block and the tip record in one
// transaction.
func (s *Store) Put(ctx context.Context, block *model.ChainBlock, opts store.PutOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.closed.Load() {
		return store.ErrClosed
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(store.Key(block.Hash), store.EncodeBlock(block)); err != nil {
			return err
		}
		if opts.Prev != nil {
			if err := txn.Set(store.Key(opts.Prev.Hash), store.EncodeBlock(opts.Prev)); err != nil {
				return err
			}
		}
		if opts.Tip {
			return txn.Set(store.TipKey, store.EncodeTip(block))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("put block %s: %w", block.Hash, mapErr(err))
	}
	return nil
}

func (s *Store) GetTip(ctx context.Context) (*model.ChainBlock, error) {
	data, err := s.read(ctx, store.TipKey)
	if err != nil {
		return nil, err
	}
	_, hash, err := store.DecodeTip(data)
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, hash)
}

func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

func (s *Store) read(ctx context.Context, key []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.closed.Load() {
		return nil, store.ErrClosed
	}

	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, mapErr(err)
	}
	return value, nil
}

func mapErr(err error) error {
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
		return store.ErrNotFound
	case errors.Is(err, badger.ErrDBClosed):
		return store.ErrClosed
	default:
		return err
	}
}

type badgerLogger struct {
	*zap.SugaredLogger
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.Warnf(format, args...)
}
