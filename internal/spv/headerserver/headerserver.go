// Package headerserver answers getheaders requests from connected peers out
// of the local chain.
package headerserver

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=$GOPACKAGE

import (
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/goodnatureofminers/spvchain/internal/spv/model"
	"github.com/goodnatureofminers/spvchain/internal/spv/peer"
	"github.com/goodnatureofminers/spvchain/internal/spv/store"
	"go.uber.org/zap"
)

type (
	ChainReader interface {
		Get(ctx context.Context, hash chainhash.Hash) (*model.ChainBlock, error)
	}

	Peers interface {
		Subscribe(buffer int) (<-chan peer.Event, func())
	}
)

type Server struct {
	chain  ChainReader
	logger *zap.Logger
}

func New(chain ChainReader, logger *zap.Logger) *Server {
	return &Server{chain: chain, logger: logger}
}

// Headers returns the best path headers following the first known locator
// hash, up to stop or wire.MaxBlockHeadersPerMsg. It returns nil when no
// locator hash is known or the known block is not followed by any block.
func (s *Server) Headers(ctx context.Context, locator []*chainhash.Hash, stop chainhash.Hash) ([]*model.Header, error) {
	start, err := s.start(ctx, locator)
	if err != nil || start == nil {
		return nil, err
	}

	var headers []*model.Header
	for next := start.Next; next != nil && len(headers) < wire.MaxBlockHeadersPerMsg; {
		b, err := s.chain.Get(ctx, *next)
		if err != nil {
			return nil, fmt.Errorf("get block %s: %w", next, err)
		}
		headers = append(headers, b.Header)
		if b.Hash == stop {
			break
		}
		next = b.Next
	}
	return headers, nil
}

func (s *Server) start(ctx context.Context, locator []*chainhash.Hash) (*model.ChainBlock, error) {
	for _, hash := range locator {
		b, err := s.chain.Get(ctx, *hash)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get locator block %s: %w", hash, err)
		}
		return b, nil
	}
	return nil, nil
}

// Run serves getheaders events from peers until ctx is done.
func (s *Server) Run(ctx context.Context, peers Peers) error {
	events, unsubscribe := peers.Subscribe(16)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.Kind != peer.EventGetHeaders || ev.GetHeaders == nil || ev.Peer == nil {
				continue
			}
			if err := s.serve(ctx, ev.Peer, ev.GetHeaders); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.logger.Warn("failed to serve headers",
					zap.Int32("peer", ev.Peer.ID()),
					zap.Error(err),
				)
			}
		}
	}
}

func (s *Server) serve(ctx context.Context, p peer.Peer, req *wire.MsgGetHeaders) error {
	headers, err := s.Headers(ctx, req.BlockLocatorHashes, req.HashStop)
	if err != nil {
		return err
	}
	if len(headers) == 0 {
		return nil
	}

	msg := wire.NewMsgHeaders()
	for _, h := range headers {
		bh := h.BlockHeader()
		if err := msg.AddBlockHeader(&bh); err != nil {
			return fmt.Errorf("add header: %w", err)
		}
	}
	if err := p.Send(msg); err != nil {
		return fmt.Errorf("send headers: %w", err)
	}
	s.logger.Debug("served headers",
		zap.Int32("peer", p.ID()),
		zap.Int("count", len(headers)),
	)
	return nil
}
