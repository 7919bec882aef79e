// Package peertest provides an in-process peer for tests.
package peertest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/btcsuite/btcd/wire"
	"github.com/goodnatureofminers/spvchain/internal/spv/model"
	"github.com/goodnatureofminers/spvchain/internal/spv/peer"
	"github.com/goodnatureofminers/spvchain/pkg/broadcast"
)

// Peer records sent messages and emits scripted events.
type Peer struct {
	id     int32
	height uint64
	events *broadcast.Hub[peer.Event]

	mu     sync.Mutex
	sent   []wire.Message
	onSend func(p *Peer, msg wire.Message)

	disconnected atomic.Bool
}

var _ peer.Peer = (*Peer)(nil)

func New(id int32, height uint64) *Peer {
	return &Peer{
		id:     id,
		height: height,
		events: broadcast.New[peer.Event](),
	}
}

// OnSend installs fn to run synchronously inside Send. Handlers that emit
// responses should do so from a new goroutine.
func (p *Peer) OnSend(fn func(p *Peer, msg wire.Message)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onSend = fn
}

func (p *Peer) ID() int32           { return p.id }
func (p *Peer) Addr() string        { return fmt.Sprintf("peertest-%d", p.id) }
func (p *Peer) StartHeight() uint64 { return p.height }

func (p *Peer) Send(msg wire.Message) error {
	if p.disconnected.Load() {
		return peer.ErrDisconnected
	}
	p.mu.Lock()
	p.sent = append(p.sent, msg)
	fn := p.onSend
	p.mu.Unlock()

	if fn != nil {
		fn(p, msg)
	}
	return nil
}

// Sent returns the messages sent so far.
func (p *Peer) Sent() []wire.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]wire.Message, len(p.sent))
	copy(out, p.sent)
	return out
}

// Requested returns the inventory of every getdata message sent so far.
func (p *Peer) Requested() []*wire.InvVect {
	var invs []*wire.InvVect
	for _, msg := range p.Sent() {
		if getData, ok := msg.(*wire.MsgGetData); ok {
			invs = append(invs, getData.InvList...)
		}
	}
	return invs
}

func (p *Peer) Subscribe(buffer int) (<-chan peer.Event, func()) {
	return p.events.Subscribe(buffer)
}

// Emit publishes ev as coming from p.
func (p *Peer) Emit(ctx context.Context, ev peer.Event) error {
	ev.Peer = p
	return p.events.Publish(ctx, ev)
}

func (p *Peer) EmitHeaders(ctx context.Context, headers []*model.Header) error {
	return p.Emit(ctx, peer.Event{Kind: peer.EventHeaders, Headers: headers})
}

func (p *Peer) EmitBlock(ctx context.Context, block *wire.MsgBlock) error {
	return p.Emit(ctx, peer.Event{Kind: peer.EventBlock, Block: block})
}

func (p *Peer) EmitMerkleBlock(ctx context.Context, msg *wire.MsgMerkleBlock) error {
	return p.Emit(ctx, peer.Event{Kind: peer.EventMerkleBlock, MerkleBlock: msg})
}

func (p *Peer) EmitTx(ctx context.Context, tx *wire.MsgTx) error {
	return p.Emit(ctx, peer.Event{Kind: peer.EventTx, Tx: tx})
}

func (p *Peer) EmitNotFound(ctx context.Context, invs ...*wire.InvVect) error {
	return p.Emit(ctx, peer.Event{Kind: peer.EventNotFound, NotFound: invs})
}

// Disconnect emits EventDisconnect once and closes all subscriptions.
func (p *Peer) Disconnect() {
	if !p.disconnected.CompareAndSwap(false, true) {
		return
	}
	_ = p.Emit(context.Background(), peer.Event{Kind: peer.EventDisconnect, Err: peer.ErrDisconnected})
	p.events.Close()
}
