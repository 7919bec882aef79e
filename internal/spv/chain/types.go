package chain

import (
	"context"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/goodnatureofminers/spvchain/internal/spv/model"
	"github.com/goodnatureofminers/spvchain/internal/spv/store"
)

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=$GOPACKAGE

type (
	// BlockStore persists accepted blocks.
	BlockStore interface {
		Get(ctx context.Context, hash chainhash.Hash) (*model.ChainBlock, error)
		Put(ctx context.Context, block *model.ChainBlock, opts store.PutOptions) error
		GetTip(ctx context.Context) (*model.ChainBlock, error)
	}

	// HeaderSource returns headers following the first locator hash it knows.
	HeaderSource interface {
		GetHeaders(ctx context.Context, locator []chainhash.Hash) ([]*model.Header, error)
		BestHeight(ctx context.Context) (uint64, error)
	}

	Metrics interface {
		ObserveProcessHeaders(err error, count int, started time.Time)
		ObserveTip(height uint64)
		ObserveReorg(depth int)
	}
)
