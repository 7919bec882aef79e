//go:build zmq

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pebbe/zmq4"
	"go.uber.org/zap"
)

// startBlockSignal subscribes to a node's hashblock notifications. Signals
// are coalesced: a pending signal absorbs later ones until the sync loop
// takes it.
func startBlockSignal(ctx context.Context, addr string, logger *zap.Logger) (<-chan struct{}, error) {
	if addr == "" {
		return nil, nil
	}

	sub, err := newSubscriber(addr, "hashblock")
	if err != nil {
		return nil, fmt.Errorf("connect zmq: %w", err)
	}
	if err := sub.SetRcvtimeo(time.Second); err != nil {
		sub.Close()
		return nil, fmt.Errorf("set zmq receive timeout: %w", err)
	}

	notify := make(chan struct{}, 1)
	go func() {
		defer sub.Close()
		for ctx.Err() == nil {
			parts, err := sub.RecvMessageBytes(0)
			if err != nil {
				// receive timeouts land here too
				logger.Debug("zmq recv", zap.Error(err))
				continue
			}
			if len(parts) < 2 {
				logger.Warn("skip malformed zmq message", zap.Int("parts", len(parts)))
				continue
			}
			select {
			case notify <- struct{}{}:
			default:
			}
		}
	}()

	return notify, nil
}

func newSubscriber(addr string, topics ...string) (*zmq4.Socket, error) {
	sub, err := zmq4.NewSocket(zmq4.SUB)
	if err != nil {
		return nil, err
	}
	for _, topic := range topics {
		if err := sub.SetSubscribe(topic); err != nil {
			sub.Close()
			return nil, err
		}
	}
	if err := sub.Connect(addr); err != nil {
		sub.Close()
		return nil, err
	}
	return sub, nil
}
