package peer

import (
	"context"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/goodnatureofminers/spvchain/internal/spv/chain"
	"github.com/goodnatureofminers/spvchain/internal/spv/model"
	"go.uber.org/zap"
)

const defaultHeadersTimeout = 30 * time.Second

// HeaderSource requests headers from a random peer of a group. Every failure
// that a different peer could resolve is reported as
// chain.ErrSourceUnavailable.
type HeaderSource struct {
	group   *Group
	timeout time.Duration
	logger  *zap.Logger
}

func NewHeaderSource(group *Group, timeout time.Duration, logger *zap.Logger) *HeaderSource {
	if timeout <= 0 {
		timeout = defaultHeadersTimeout
	}
	return &HeaderSource{
		group:   group,
		timeout: timeout,
		logger:  logger.Named("header_source"),
	}
}

func (s *HeaderSource) GetHeaders(ctx context.Context, locator []chainhash.Hash) ([]*model.Header, error) {
	p, err := s.group.Pick()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", chain.ErrSourceUnavailable, err)
	}

	msg := wire.NewMsgGetHeaders()
	for i := range locator {
		if err := msg.AddBlockLocatorHash(&locator[i]); err != nil {
			return nil, fmt.Errorf("build locator: %w", err)
		}
	}

	// subscribe before sending so the response cannot be missed
	events, unsubscribe := s.group.Subscribe(peerEventBuffer)
	defer unsubscribe()

	if err := p.Send(msg); err != nil {
		return nil, fmt.Errorf("%w: send getheaders to peer %d: %w", chain.ErrSourceUnavailable, p.ID(), err)
	}
	s.logger.Debug("headers requested", zap.Int32("peer", p.ID()), zap.Int("locator", len(locator)))

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil, fmt.Errorf("%w: %w", chain.ErrSourceUnavailable, ErrGroupClosed)
			}
			if ev.Peer == nil || ev.Peer.ID() != p.ID() {
				continue
			}
			switch ev.Kind {
			case EventHeaders:
				return ev.Headers, nil
			case EventDisconnect:
				return nil, fmt.Errorf("%w: peer %d: %w", chain.ErrSourceUnavailable, p.ID(), ErrDisconnected)
			}
		case <-timer.C:
			p.Disconnect()
			return nil, fmt.Errorf("%w: peer %d sent no headers within %s", chain.ErrSourceUnavailable, p.ID(), s.timeout)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (s *HeaderSource) BestHeight(context.Context) (uint64, error) {
	best, err := s.group.BestHeight()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", chain.ErrSourceUnavailable, err)
	}
	return best, nil
}
