package index

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=$GOPACKAGE

import (
	"context"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/goodnatureofminers/spvchain/internal/spv/chain"
	"github.com/goodnatureofminers/spvchain/internal/spv/model"
)

type (
	ChainReader interface {
		Params() model.Params
		Tip() *model.ChainBlock
		Get(ctx context.Context, hash chainhash.Hash) (*model.ChainBlock, error)
		GetBlockAtHeight(ctx context.Context, height uint64) (*model.ChainBlock, error)
		Subscribe(buffer int) (<-chan chain.Event, func())
	}

	Repository interface {
		InsertHeaders(ctx context.Context, headers []model.IndexedHeader) error
		MaxHeaderHeight(ctx context.Context, network string) (uint64, error)
		HeaderHash(ctx context.Context, network string, height uint64) (string, error)
	}

	Metrics interface {
		ObserveFlush(err error, rows int, started time.Time)
		ObserveBackfill(err error, started time.Time)
	}
)
