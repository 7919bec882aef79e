// Package btcdpeer connects to bitcoin nodes over TCP with the btcd peer
// implementation.
package btcdpeer

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	btcpeer "github.com/btcsuite/btcd/peer"
	"github.com/btcsuite/btcd/wire"
	"github.com/goodnatureofminers/spvchain/internal/spv/model"
	"github.com/goodnatureofminers/spvchain/internal/spv/peer"
	"github.com/goodnatureofminers/spvchain/pkg/broadcast"
	"github.com/goodnatureofminers/spvchain/pkg/safe"
	"go.uber.org/zap"
)

const defaultDialTimeout = 10 * time.Second

type Config struct {
	Params           *chaincfg.Params
	UserAgentName    string
	UserAgentVersion string
	// NewestBlock reports our tip in the version handshake.
	NewestBlock func() (*chainhash.Hash, int32, error)
	DialTimeout time.Duration
	// AllowSelfConns disables btcd's check for connections to ourselves.
	AllowSelfConns bool
}

// NewestBlock reports tip in the form the version handshake expects.
func NewestBlock(tip func() *model.ChainBlock) func() (*chainhash.Hash, int32, error) {
	return func() (*chainhash.Hash, int32, error) {
		b := tip()
		height, err := safe.Int32(b.Height)
		if err != nil {
			return nil, 0, fmt.Errorf("tip height: %w", err)
		}
		hash := b.Hash
		return &hash, height, nil
	}
}

// Peer adapts a btcd outbound peer to peer.Peer.
type Peer struct {
	peer   *btcpeer.Peer
	events *broadcast.Hub[peer.Event]
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	verack     chan struct{}
	verackOnce sync.Once
	done       chan struct{}
}

var _ peer.Peer = (*Peer)(nil)

// Dial connects to addr and returns once the version handshake completed.
func Dial(ctx context.Context, addr string, cfg Config, logger *zap.Logger) (*Peer, error) {
	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}

	p := &Peer{
		events: broadcast.New[peer.Event](),
		logger: logger.Named("btcdpeer").With(zap.String("addr", addr)),
		verack: make(chan struct{}),
		done:   make(chan struct{}),
	}
	p.ctx, p.cancel = context.WithCancel(context.Background())

	bp, err := btcpeer.NewOutboundPeer(&btcpeer.Config{
		NewestBlock:      cfg.NewestBlock,
		UserAgentName:    cfg.UserAgentName,
		UserAgentVersion: cfg.UserAgentVersion,
		ChainParams:      cfg.Params,
		DisableRelayTx:   true,
		AllowSelfConns:   cfg.AllowSelfConns,
		Listeners:        p.listeners(),
	}, addr)
	if err != nil {
		return nil, fmt.Errorf("create peer %s: %w", addr, err)
	}
	p.peer = bp

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	bp.AssociateConnection(conn)
	go p.watch()

	select {
	case <-p.verack:
		p.logger.Info("connected", zap.Int32("peer", bp.ID()), zap.Int32("start_height", bp.StartingHeight()))
		return p, nil
	case <-p.done:
		return nil, fmt.Errorf("handshake with %s: %w", addr, peer.ErrDisconnected)
	case <-ctx.Done():
		bp.Disconnect()
		return nil, ctx.Err()
	}
}

func (p *Peer) listeners() btcpeer.MessageListeners {
	return btcpeer.MessageListeners{
		OnVerAck: func(*btcpeer.Peer, *wire.MsgVerAck) {
			p.verackOnce.Do(func() { close(p.verack) })
		},
		OnHeaders: func(_ *btcpeer.Peer, msg *wire.MsgHeaders) {
			headers := make([]*model.Header, 0, len(msg.Headers))
			for _, h := range msg.Headers {
				headers = append(headers, model.NewHeader(*h))
			}
			p.publish(peer.Event{Kind: peer.EventHeaders, Headers: headers})
		},
		OnBlock: func(_ *btcpeer.Peer, msg *wire.MsgBlock, _ []byte) {
			p.publish(peer.Event{Kind: peer.EventBlock, Block: msg})
		},
		OnMerkleBlock: func(_ *btcpeer.Peer, msg *wire.MsgMerkleBlock) {
			p.publish(peer.Event{Kind: peer.EventMerkleBlock, MerkleBlock: msg})
		},
		OnTx: func(_ *btcpeer.Peer, msg *wire.MsgTx) {
			p.publish(peer.Event{Kind: peer.EventTx, Tx: msg})
		},
		OnNotFound: func(_ *btcpeer.Peer, msg *wire.MsgNotFound) {
			p.publish(peer.Event{Kind: peer.EventNotFound, NotFound: msg.InvList})
		},
		OnGetHeaders: func(_ *btcpeer.Peer, msg *wire.MsgGetHeaders) {
			p.publish(peer.Event{Kind: peer.EventGetHeaders, GetHeaders: msg})
		},
	}
}

func (p *Peer) publish(ev peer.Event) {
	ev.Peer = p
	if err := p.events.Publish(p.ctx, ev); err != nil {
		p.logger.Debug("event dropped", zap.Stringer("kind", ev.Kind), zap.Error(err))
	}
}

func (p *Peer) watch() {
	p.peer.WaitForDisconnect()
	close(p.done)
	p.publish(peer.Event{Kind: peer.EventDisconnect, Err: peer.ErrDisconnected})
	p.cancel()
	p.events.Close()
	p.logger.Info("disconnected")
}

func (p *Peer) ID() int32    { return p.peer.ID() }
func (p *Peer) Addr() string { return p.peer.Addr() }

func (p *Peer) StartHeight() uint64 {
	h, err := safe.Uint64(p.peer.StartingHeight())
	if err != nil {
		return 0
	}
	return h
}

func (p *Peer) Send(msg wire.Message) error {
	if !p.peer.Connected() {
		return peer.ErrDisconnected
	}
	p.peer.QueueMessage(msg, nil)
	return nil
}

func (p *Peer) Subscribe(buffer int) (<-chan peer.Event, func()) {
	return p.events.Subscribe(buffer)
}

func (p *Peer) Disconnect() {
	p.peer.Disconnect()
}
