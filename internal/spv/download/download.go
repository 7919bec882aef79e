// Package download streams block data for a range of the stored chain in
// height order.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/goodnatureofminers/spvchain/internal/spv/model"
	"github.com/goodnatureofminers/spvchain/internal/spv/peer"
	"go.uber.org/zap"
)

var (
	ErrStreamClosed     = errors.New("block stream closed")
	ErrNotFound         = errors.New("block data not found")
	ErrPeerDisconnected = errors.New("peer disconnected with outstanding requests")
	ErrRequestTimeout   = errors.New("block data request timed out")
)

const defaultBufferSize = 32

type Options struct {
	// From is the first block to download.
	From chainhash.Hash
	// Filtered requests merkle blocks matching the peers' bloom filter
	// instead of full blocks.
	Filtered bool
	// BufferSize bounds outstanding requests plus results not yet taken by
	// the consumer.
	BufferSize int
	// FetchTransactions requests the matched transactions of filtered
	// blocks. A result is emitted only once all of them arrived.
	FetchTransactions bool
	// Timeout fails the stream when a request stays unanswered for longer.
	// Zero waits forever.
	Timeout time.Duration
	Metrics Metrics
}

// Stream is a single-pass sequence of block results in ascending height.
type Stream struct {
	chain   ChainReader
	peers   Peers
	opts    Options
	metrics Metrics
	logger  *zap.Logger

	results chan *model.BlockResult
	wake    chan struct{}
	paused  atomic.Bool
	closed  atomic.Bool

	cancel context.CancelFunc
	done   chan struct{}
	// err is written before done is closed.
	err error
}

// Open starts downloading from opts.From along the best chain. The stream
// ends after the block that was the tip when it was requested, and stops when
// ctx is done. Unlike a stream that stops at the last block with a known
// successor, the tip itself is requested and emitted.
func Open(ctx context.Context, chain ChainReader, peers Peers, opts Options, logger *zap.Logger) (*Stream, error) {
	if opts.BufferSize <= 0 {
		opts.BufferSize = defaultBufferSize
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = nopMetrics{}
	}

	start, err := chain.Get(ctx, opts.From)
	if err != nil {
		return nil, fmt.Errorf("get start block %s: %w", opts.From, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &Stream{
		chain:   chain,
		peers:   peers,
		opts:    opts,
		metrics: metrics,
		logger: logger.Named("download").With(
			zap.Uint64("from", start.Height),
			zap.Bool("filtered", opts.Filtered)),
		results: make(chan *model.BlockResult),
		wake:    make(chan struct{}, 1),
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	// subscribe before the first request so no response is missed
	events, unsubscribe := peers.Subscribe(2*opts.BufferSize + 16)
	go s.run(ctx, start.Hash, events, unsubscribe)
	return s, nil
}

func (s *Stream) run(ctx context.Context, from chainhash.Hash, events <-chan peer.Event, unsubscribe func()) {
	defer close(s.done)
	defer unsubscribe()

	s.logger.Info("stream opened")
	err := s.loop(ctx, from, events)
	switch {
	case s.closed.Load():
		err = ErrStreamClosed
		s.logger.Info("stream closed")
	case err != nil:
		s.logger.Warn("stream failed", zap.Error(err))
	default:
		s.logger.Info("stream finished")
	}
	s.metrics.ObserveInFlight(0)
	s.err = err
}

func (s *Stream) loop(ctx context.Context, from chainhash.Hash, events <-chan peer.Event) error {
	var (
		w      window
		ready  []*model.BlockResult
		cursor = &from
	)

	for {
		for cursor != nil && !s.paused.Load() && w.len()+len(ready) < s.opts.BufferSize {
			next, err := s.request(ctx, &w, *cursor)
			if err != nil {
				return err
			}
			cursor = next
		}
		s.metrics.ObserveInFlight(w.len())

		if cursor == nil && w.len() == 0 && len(ready) == 0 {
			return nil
		}

		var (
			out     chan<- *model.BlockResult
			head    *model.BlockResult
			timeout <-chan time.Time
		)
		if len(ready) > 0 {
			out, head = s.results, ready[0]
		}
		if s.opts.Timeout > 0 {
			if oldest := w.oldest(); oldest != nil {
				timeout = time.After(time.Until(oldest.requested.Add(s.opts.Timeout)))
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- head:
			ready[0] = nil
			ready = ready[1:]
		case <-s.wake:
		case ev, ok := <-events:
			if !ok {
				return fmt.Errorf("peer events: %w", peer.ErrGroupClosed)
			}
			if err := s.handle(&w, ev); err != nil {
				return err
			}
			ready = append(ready, w.pop()...)
		case <-timeout:
			if oldest := w.oldest(); oldest != nil && time.Since(oldest.requested) >= s.opts.Timeout {
				return fmt.Errorf("%w after %s at height %d", ErrRequestTimeout, s.opts.Timeout, oldest.block.Height)
			}
		}
	}
}

// request asks a peer for the block data of hash and returns the hash of the
// following block, or nil at the tip.
func (s *Stream) request(ctx context.Context, w *window, hash chainhash.Hash) (*chainhash.Hash, error) {
	block, err := s.chain.Get(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("get block %s: %w", hash, err)
	}

	p, err := s.peers.WaitForPeer(ctx)
	if err != nil {
		return nil, fmt.Errorf("select peer: %w", err)
	}

	invType := wire.InvTypeBlock
	if s.opts.Filtered {
		invType = wire.InvTypeFilteredBlock
	}
	msg := wire.NewMsgGetData()
	if err := msg.AddInvVect(wire.NewInvVect(invType, &block.Hash)); err != nil {
		return nil, err
	}
	if err := p.Send(msg); err != nil {
		return nil, fmt.Errorf("request block %d from peer %d: %w", block.Height, p.ID(), err)
	}
	w.push(&slot{block: block, peerID: p.ID(), requested: time.Now()})
	s.logger.Debug("block requested", zap.Uint64("height", block.Height), zap.Int32("peer", p.ID()))

	return block.Next, nil
}

// Next returns the next result. It returns io.EOF after the last result and
// ErrStreamClosed once Close was called.
func (s *Stream) Next(ctx context.Context) (*model.BlockResult, error) {
	select {
	case r := <-s.results:
		return r, nil
	case <-s.done:
		if s.closed.Load() {
			return nil, ErrStreamClosed
		}
		if s.err != nil {
			return nil, s.err
		}
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// All yields the remaining results. Iteration stops after the first error.
func (s *Stream) All(ctx context.Context) iter.Seq2[*model.BlockResult, error] {
	return func(yield func(*model.BlockResult, error) bool) {
		for {
			r, err := s.Next(ctx)
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(r, err) || err != nil {
				return
			}
		}
	}
}

// Pause stops new requests. Outstanding requests are still answered and
// emitted.
func (s *Stream) Pause() {
	s.paused.Store(true)
}

// Resume lets the stream request blocks again.
func (s *Stream) Resume() {
	s.paused.Store(false)
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Err returns the error that ended the stream, or nil while it runs or after
// it finished.
func (s *Stream) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Close stops the stream. Responses to outstanding requests are discarded.
func (s *Stream) Close() error {
	s.closed.Store(true)
	s.cancel()
	<-s.done
	return nil
}
