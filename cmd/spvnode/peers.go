package main

import (
	"context"
	"errors"
	"time"

	"github.com/goodnatureofminers/spvchain/internal/clock"
	"github.com/goodnatureofminers/spvchain/internal/spv/chain"
	"github.com/goodnatureofminers/spvchain/internal/spv/peer"
	"github.com/goodnatureofminers/spvchain/internal/spv/peer/btcdpeer"
	"go.uber.org/zap"
)

const userAgentVersion = "0.1.0"

func peerConfig(cfg config, c *chain.Chain) btcdpeer.Config {
	return btcdpeer.Config{
		Params:           c.Params().Chain,
		UserAgentName:    cfg.UserAgent,
		UserAgentVersion: userAgentVersion,
		NewestBlock:      btcdpeer.NewestBlock(c.Tip),
	}
}

// maintainPeer keeps a connection to addr in the group, redialing with
// backoff whenever it drops.
func maintainPeer(ctx context.Context, addr string, group *peer.Group, cfg btcdpeer.Config, logger *zap.Logger) error {
	logger = logger.With(zap.String("peer", addr))
	backoff := clock.Backoff{Initial: time.Second, Max: 5 * time.Minute}

	for {
		p, err := btcdpeer.Dial(ctx, addr, cfg, logger)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warn("dial failed", zap.Error(err))
			if err := backoff.Wait(ctx); err != nil {
				return err
			}
			continue
		}

		events, unsubscribe := p.Subscribe(1)
		if err := group.Add(p); err != nil {
			unsubscribe()
			p.Disconnect()
			if errors.Is(err, peer.ErrGroupClosed) {
				return nil
			}
			return err
		}
		backoff.Reset()
		logger.Info("peer connected", zap.Uint64("start_height", p.StartHeight()))

		if !waitDisconnect(ctx, events) {
			unsubscribe()
			p.Disconnect()
			return ctx.Err()
		}
		unsubscribe()
		logger.Warn("peer disconnected")
		if err := backoff.Wait(ctx); err != nil {
			return err
		}
	}
}

// waitDisconnect reports false when ctx ended first.
func waitDisconnect(ctx context.Context, events <-chan peer.Event) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-events:
			if !ok || ev.Kind == peer.EventDisconnect {
				return true
			}
		}
	}
}
