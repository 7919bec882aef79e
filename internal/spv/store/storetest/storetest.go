// Package storetest checks store implementations against the store contract.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
	"github.com/goodnatureofminers/spvchain/internal/spv/model"
	"github.com/goodnatureofminers/spvchain/internal/spv/store"
	"github.com/stretchr/testify/require"
)

// Run exercises the store returned by open. Each subtest gets a fresh store.
func Run(t *testing.T, open func(t *testing.T) store.Store) {
	t.Helper()

	genesis := model.NewChainBlock(0, model.NewHeader(chaincfg.RegressionNetParams.GenesisBlock.Header))
	child := model.NewChainBlock(1, model.NewHeader(wire.BlockHeader{
		Version:   1,
		PrevBlock: genesis.Hash,
		Timestamp: time.Unix(1296688602, 0),
		Bits:      0x207fffff,
	}))

	t.Run("empty", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		_, err := s.Get(ctx, genesis.Hash)
		require.ErrorIs(t, err, store.ErrNotFound)
		_, err = s.GetTip(ctx)
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("put and get", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		require.NoError(t, s.Put(ctx, genesis, store.PutOptions{Tip: true}))
		got, err := s.Get(ctx, genesis.Hash)
		require.NoError(t, err)
		require.Equal(t, genesis.Hash, got.Hash)
		require.Nil(t, got.Next)

		tip, err := s.GetTip(ctx)
		require.NoError(t, err)
		require.Equal(t, genesis.Hash, tip.Hash)
	})

	t.Run("put with prev links next", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		require.NoError(t, s.Put(ctx, genesis, store.PutOptions{Tip: true}))
		require.NoError(t, s.Put(ctx, child, store.PutOptions{Tip: true, Prev: genesis.WithNext(child.Hash)}))

		parent, err := s.Get(ctx, genesis.Hash)
		require.NoError(t, err)
		require.NotNil(t, parent.Next)
		require.Equal(t, child.Hash, *parent.Next)

		tip, err := s.GetTip(ctx)
		require.NoError(t, err)
		require.Equal(t, uint64(1), tip.Height)
		require.Equal(t, child.Hash, tip.Hash)
	})

	t.Run("put without tip keeps tip", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		require.NoError(t, s.Put(ctx, genesis, store.PutOptions{Tip: true}))
		require.NoError(t, s.Put(ctx, child, store.PutOptions{}))

		tip, err := s.GetTip(ctx)
		require.NoError(t, err)
		require.Equal(t, genesis.Hash, tip.Hash)
		_, err = s.Get(ctx, child.Hash)
		require.NoError(t, err)
	})

	t.Run("closed", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		require.NoError(t, s.Put(ctx, genesis, store.PutOptions{Tip: true}))
		require.NoError(t, s.Close())

		_, err := s.Get(ctx, genesis.Hash)
		require.True(t, errors.Is(err, store.ErrClosed), "Get() error = %v", err)
		_, err = s.GetTip(ctx)
		require.True(t, errors.Is(err, store.ErrClosed), "GetTip() error = %v", err)
		err = s.Put(ctx, child, store.PutOptions{})
		require.True(t, errors.Is(err, store.ErrClosed), "Put() error = %v", err)
	})
}
