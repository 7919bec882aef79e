// Package rpcsource serves headers from a trusted node over JSON-RPC.
package rpcsource

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=$GOPACKAGE

import (
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/goodnatureofminers/spvchain/internal/spv/chain"
	"github.com/goodnatureofminers/spvchain/internal/spv/model"
	"github.com/goodnatureofminers/spvchain/pkg/safe"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultBatchSize   = 2000
	defaultConcurrency = 8
)

type Client interface {
	GetBlockCount() (int64, error)
	GetBlockHash(blockHeight int64) (*chainhash.Hash, error)
	GetBlockHeader(blockHash *chainhash.Hash) (*wire.BlockHeader, error)
	GetBlockHeaderVerbose(blockHash *chainhash.Hash) (*btcjson.GetBlockHeaderVerboseResult, error)
}

type Options struct {
	// BatchSize caps the headers returned per call. Defaults to 2000.
	BatchSize int
	// Concurrency limits parallel RPC calls. Defaults to 8.
	Concurrency int
}

// Source implements chain.HeaderSource by looking blocks up by height.
type Source struct {
	client Client
	opts   Options
	logger *zap.Logger
}

func New(client Client, opts Options, logger *zap.Logger) *Source {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	return &Source{
		client: client,
		opts:   opts,
		logger: logger.Named("rpc_source"),
	}
}

func (s *Source) BestHeight(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	count, err := s.client.GetBlockCount()
	if err != nil {
		return 0, classify("get block count", err)
	}
	height, err := safe.Uint64(count)
	if err != nil {
		return 0, fmt.Errorf("block count: %w", err)
	}
	return height, nil
}

// GetHeaders returns the node's main chain headers after the first locator
// hash the node has on its main chain.
func (s *Source) GetHeaders(ctx context.Context, locator []chainhash.Hash) ([]*model.Header, error) {
	start, ok, err := s.locate(ctx, locator)
	if err != nil || !ok {
		return nil, err
	}
	best, err := s.BestHeight(ctx)
	if err != nil {
		return nil, err
	}
	if best <= start {
		return nil, nil
	}
	end := min(best, start+uint64(s.opts.BatchSize))

	headers := make([]*model.Header, end-start)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for height := start + 1; height <= end; height++ {
		g.Go(func() error {
			h, err := s.headerAt(gctx, height)
			if err != nil {
				return err
			}
			headers[height-start-1] = h
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	s.logger.Debug("headers fetched", zap.Uint64("from", start+1), zap.Uint64("to", end))
	return headers, nil
}

func (s *Source) locate(ctx context.Context, locator []chainhash.Hash) (uint64, bool, error) {
	for i := range locator {
		if err := ctx.Err(); err != nil {
			return 0, false, err
		}
		res, err := s.client.GetBlockHeaderVerbose(&locator[i])
		if isBlockNotFound(err) {
			continue
		}
		if err != nil {
			return 0, false, classify("get block header", err)
		}
		// stale blocks report -1 confirmations
		if res.Confirmations < 0 {
			continue
		}
		height, err := safe.Uint64(res.Height)
		if err != nil {
			return 0, false, fmt.Errorf("block %s height: %w", locator[i], err)
		}
		return height, true, nil
	}
	return 0, false, nil
}

func (s *Source) headerAt(ctx context.Context, height uint64) (*model.Header, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h, err := safe.Int64(height)
	if err != nil {
		return nil, err
	}
	hash, err := s.client.GetBlockHash(h)
	if err != nil {
		return nil, classify(fmt.Sprintf("get block hash %d", height), err)
	}
	header, err := s.client.GetBlockHeader(hash)
	if err != nil {
		return nil, classify(fmt.Sprintf("get block header %s", hash), err)
	}
	return model.NewHeader(*header), nil
}

func isBlockNotFound(err error) bool {
	var rpcErr *btcjson.RPCError
	return errors.As(err, &rpcErr) && rpcErr.Code == btcjson.ErrRPCBlockNotFound
}

// classify marks transport failures as retryable. Errors reported by the
// node itself are returned as they are.
func classify(op string, err error) error {
	var rpcErr *btcjson.RPCError
	if errors.As(err, &rpcErr) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %w", chain.ErrSourceUnavailable, op, err)
}
