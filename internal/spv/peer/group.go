package peer

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"

	"github.com/btcsuite/btcd/wire"
	"github.com/goodnatureofminers/spvchain/pkg/broadcast"
	"go.uber.org/zap"
)

const peerEventBuffer = 64

type member struct {
	Peer
	unsubscribe func()
}

// Group tracks connected peers and merges their events into one stream.
// Peers leave the group when they disconnect.
type Group struct {
	metrics Metrics
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	events *broadcast.Hub[Event]
	wg     sync.WaitGroup

	mu     sync.Mutex
	peers  map[int32]*member
	filter *wire.MsgFilterLoad
	joined chan struct{}
	closed bool
}

func NewGroup(metrics Metrics, logger *zap.Logger) *Group {
	ctx, cancel := context.WithCancel(context.Background())
	return &Group{
		metrics: metrics,
		logger:  logger.Named("peers"),
		ctx:     ctx,
		cancel:  cancel,
		events:  broadcast.New[Event](),
		peers:   make(map[int32]*member),
		joined:  make(chan struct{}),
	}
}

// Add joins p to the group and loads the current bloom filter into it.
func (g *Group) Add(p Peer) error {
	events, unsubscribe := p.Subscribe(peerEventBuffer)

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		unsubscribe()
		return ErrGroupClosed
	}
	if _, ok := g.peers[p.ID()]; ok {
		g.mu.Unlock()
		unsubscribe()
		return fmt.Errorf("peer %d already in group", p.ID())
	}
	g.peers[p.ID()] = &member{Peer: p, unsubscribe: unsubscribe}
	filter := g.filter
	close(g.joined)
	g.joined = make(chan struct{})
	n := len(g.peers)
	g.mu.Unlock()

	g.metrics.ObserveConnected(n)
	g.logger.Info("peer added", zap.Int32("peer", p.ID()), zap.String("addr", p.Addr()), zap.Uint64("start_height", p.StartHeight()))

	if filter != nil {
		if err := p.Send(filter); err != nil {
			g.logger.Warn("filter not loaded", zap.Int32("peer", p.ID()), zap.Error(err))
		}
	}

	g.wg.Add(1)
	go g.forward(p, events)
	return nil
}

func (g *Group) forward(p Peer, events <-chan Event) {
	defer g.wg.Done()
	defer g.remove(p.ID())

	for ev := range events {
		if err := g.events.Publish(g.ctx, ev); err != nil {
			return
		}
		if ev.Kind == EventDisconnect {
			g.logger.Info("peer disconnected", zap.Int32("peer", p.ID()), zap.Error(ev.Err))
			return
		}
	}
}

func (g *Group) remove(id int32) {
	g.mu.Lock()
	m, ok := g.peers[id]
	if ok {
		delete(g.peers, id)
	}
	n := len(g.peers)
	g.mu.Unlock()

	if !ok {
		return
	}
	m.unsubscribe()
	g.metrics.ObserveDisconnect()
	g.metrics.ObserveConnected(n)
}

// Peers returns the connected peers ordered by ID.
func (g *Group) Peers() []Peer {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sortedLocked()
}

func (g *Group) sortedLocked() []Peer {
	peers := make([]Peer, 0, len(g.peers))
	for _, m := range g.peers {
		peers = append(peers, m.Peer)
	}
	slices.SortFunc(peers, func(a, b Peer) int { return cmp.Compare(a.ID(), b.ID()) })
	return peers
}

func (g *Group) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.peers)
}

// Pick returns a random connected peer.
func (g *Group) Pick() (Peer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil, ErrGroupClosed
	}
	peers := g.sortedLocked()
	if len(peers) == 0 {
		return nil, ErrNoPeers
	}
	return peers[rand.IntN(len(peers))], nil
}

// WaitForPeer returns a random connected peer, waiting for one to join.
func (g *Group) WaitForPeer(ctx context.Context) (Peer, error) {
	for {
		p, err := g.Pick()
		if !errors.Is(err, ErrNoPeers) {
			return p, err
		}

		g.mu.Lock()
		joined := g.joined
		g.mu.Unlock()

		select {
		case <-joined:
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-g.ctx.Done():
			return nil, ErrGroupClosed
		}
	}
}

// BestHeight returns the highest start height announced by a connected peer.
func (g *Group) BestHeight() (uint64, error) {
	peers := g.Peers()
	if len(peers) == 0 {
		return 0, ErrNoPeers
	}
	var best uint64
	for _, p := range peers {
		best = max(best, p.StartHeight())
	}
	return best, nil
}

// SetFilter loads filter into every connected peer and into peers added
// later.
func (g *Group) SetFilter(filter *wire.MsgFilterLoad) error {
	g.mu.Lock()
	g.filter = filter
	peers := g.sortedLocked()
	g.mu.Unlock()

	var errs []error
	for _, p := range peers {
		if err := p.Send(filter); err != nil {
			errs = append(errs, fmt.Errorf("load filter into peer %d: %w", p.ID(), err))
		}
	}
	return errors.Join(errs...)
}

// Subscribe returns the merged events of all peers in the group.
func (g *Group) Subscribe(buffer int) (<-chan Event, func()) {
	return g.events.Subscribe(buffer)
}

// Close disconnects every peer and ends all subscriptions.
func (g *Group) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	peers := g.sortedLocked()
	g.mu.Unlock()

	g.cancel()
	for _, p := range peers {
		p.Disconnect()
		g.remove(p.ID())
	}
	g.wg.Wait()
	g.events.Close()
}
