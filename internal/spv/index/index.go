// Package index mirrors the best chain into the header repository.
package index

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/goodnatureofminers/spvchain/internal/spv/chain"
	"github.com/goodnatureofminers/spvchain/internal/spv/model"
	"github.com/goodnatureofminers/spvchain/internal/spv/repository/clickhouse"
	"github.com/goodnatureofminers/spvchain/pkg/batcher"
	"github.com/goodnatureofminers/spvchain/pkg/workerpool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultChunkSize     = 2000
	defaultWorkers       = 4
	defaultFlushSize     = 500
	defaultFlushInterval = time.Second
	defaultFlushRPS      = 20
	// resumeDepth bounds the walk back to the last indexed block that is
	// still on the best chain. Deeper divergence reindexes from the floor.
	resumeDepth = 1000
	eventBuffer = 256
)

type Options struct {
	ChunkSize     int
	Workers       int
	FlushSize     int
	FlushInterval time.Duration
	FlushRPS      int
}

// Index backfills missing rows and then follows chain events.
type Index struct {
	chain   ChainReader
	repo    Repository
	network string
	opts    Options
	metrics Metrics
	logger  *zap.Logger

	mu   sync.Mutex
	fork uint64
}

func New(chain ChainReader, repo Repository, network string, opts Options, metrics Metrics, logger *zap.Logger) *Index {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = defaultChunkSize
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.FlushSize <= 0 {
		opts.FlushSize = defaultFlushSize
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = defaultFlushInterval
	}
	if opts.FlushRPS <= 0 {
		opts.FlushRPS = defaultFlushRPS
	}
	return &Index{
		chain:   chain,
		repo:    repo,
		network: network,
		opts:    opts,
		metrics: metrics,
		logger:  logger.Named("index"),
		fork:    math.MaxUint64,
	}
}

// Run indexes until ctx is done. Chain events are consumed while the
// backfill runs so the chain never waits on the index.
func (ix *Index) Run(ctx context.Context) error {
	events, unsubscribe := ix.chain.Subscribe(eventBuffer)
	defer unsubscribe()

	b := batcher.New(ix.logger.Named("batcher"), ix.flush, batcher.Options{
		FlushSize:     ix.opts.FlushSize,
		FlushInterval: ix.opts.FlushInterval,
		RPS:           ix.opts.FlushRPS,
	})
	b.Start(ctx)
	defer b.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ix.follow(gctx, events, b)
	})
	g.Go(func() error {
		return ix.Backfill(gctx)
	})
	return g.Wait()
}

// Backfill indexes the best chain from the last indexed block that still
// matches it up to the current tip. Heights rewritten by reorgs seen during
// the backfill are indexed again before it returns.
func (ix *Index) Backfill(ctx context.Context) (err error) {
	started := time.Now()
	defer func() {
		ix.metrics.ObserveBackfill(err, started)
	}()

	from, err := ix.resume(ctx)
	if err != nil {
		return err
	}
	to := ix.chain.Tip().Height
	ix.logger.Info("backfill started", zap.Uint64("from", from), zap.Uint64("to", to))

	for {
		if err = ix.backfillRange(ctx, from, to); err != nil {
			return err
		}
		fork, ok := ix.takeFork()
		if !ok || fork >= to {
			break
		}
		ix.logger.Info("reindexing after reorg", zap.Uint64("from", fork+1), zap.Uint64("to", to))
		from = fork + 1
	}

	ix.logger.Info("backfill finished", zap.Uint64("to", to), zap.Duration("took", time.Since(started)))
	return nil
}

// resume returns the highest height whose indexed hash matches the best
// chain, or the validation floor.
func (ix *Index) resume(ctx context.Context) (uint64, error) {
	floor := ix.chain.Params().Floor().Height
	tip := ix.chain.Tip()

	indexed, err := ix.repo.MaxHeaderHeight(ctx, ix.network)
	if err != nil {
		return 0, fmt.Errorf("max indexed height: %w", err)
	}
	height := min(max(indexed, floor), tip.Height)
	if height == floor {
		return floor, nil
	}

	b, err := ix.chain.GetBlockAtHeight(ctx, height)
	if err != nil {
		return 0, fmt.Errorf("block at %d: %w", height, err)
	}
	for depth := 0; b.Height > floor; depth++ {
		if depth == resumeDepth {
			ix.logger.Warn("index diverged beyond resume depth", zap.Uint64("height", b.Height))
			return floor, nil
		}
		stored, err := ix.repo.HeaderHash(ctx, ix.network, b.Height)
		if err != nil && !errors.Is(err, clickhouse.ErrNotFound) {
			return 0, fmt.Errorf("indexed hash at %d: %w", b.Height, err)
		}
		if err == nil && stored == b.Hash.String() {
			return b.Height, nil
		}
		if b, err = ix.chain.Get(ctx, b.Header.PrevHash()); err != nil {
			return 0, fmt.Errorf("walk back from %d: %w", height, err)
		}
	}
	return floor, nil
}

// backfillRange walks next pointers from from to to and inserts the rows in
// chunks, up to Workers chunks at a time.
func (ix *Index) backfillRange(ctx context.Context, from, to uint64) error {
	if from > to {
		return nil
	}
	cur, err := ix.chain.GetBlockAtHeight(ctx, from)
	if err != nil {
		return fmt.Errorf("block at %d: %w", from, err)
	}

	var (
		pending [][]model.IndexedHeader
		chunk   = make([]model.IndexedHeader, 0, ix.opts.ChunkSize)
	)
	insert := func() error {
		if len(chunk) > 0 {
			pending = append(pending, chunk)
			chunk = make([]model.IndexedHeader, 0, ix.opts.ChunkSize)
		}
		err := workerpool.Process(ctx, ix.opts.Workers, pending, ix.flush)
		pending = pending[:0]
		return err
	}

	for {
		chunk = append(chunk, model.NewIndexedHeader(ix.network, cur))
		if len(chunk) == ix.opts.ChunkSize {
			pending = append(pending, chunk)
			chunk = make([]model.IndexedHeader, 0, ix.opts.ChunkSize)
			if len(pending) == ix.opts.Workers {
				if err := insert(); err != nil {
					return err
				}
			}
		}
		if cur.Height >= to || cur.Next == nil {
			break
		}
		next, err := ix.chain.Get(ctx, *cur.Next)
		if err != nil {
			return fmt.Errorf("follow next from %d: %w", cur.Height, err)
		}
		cur = next
	}
	return insert()
}

// follow queues rows for new tips and for blocks added by reorgs.
func (ix *Index) follow(ctx context.Context, events <-chan chain.Event, b *batcher.Batcher[model.IndexedHeader]) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			var blocks []*model.ChainBlock
			switch ev.Kind {
			case chain.EventBlock:
				blocks = []*model.ChainBlock{ev.Block}
			case chain.EventReorg:
				ix.noteFork(ev.Path.Fork.Height)
				blocks = ev.Path.Add
			default:
				continue
			}
			for _, block := range blocks {
				if err := b.Add(ctx, model.NewIndexedHeader(ix.network, block)); err != nil {
					return err
				}
			}
		}
	}
}

func (ix *Index) flush(ctx context.Context, rows []model.IndexedHeader) (err error) {
	started := time.Now()
	defer func() {
		ix.metrics.ObserveFlush(err, len(rows), started)
	}()
	if err = ix.repo.InsertHeaders(ctx, rows); err != nil {
		return fmt.Errorf("insert %d headers: %w", len(rows), err)
	}
	return nil
}

func (ix *Index) noteFork(height uint64) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.fork = min(ix.fork, height)
}

func (ix *Index) takeFork() (uint64, bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	fork := ix.fork
	ix.fork = math.MaxUint64
	return fork, fork != math.MaxUint64
}
