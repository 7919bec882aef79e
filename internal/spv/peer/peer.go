// Package peer defines the peer capability used by the chain and the block
// downloader, and groups connected peers.
package peer

import (
	"errors"

	"github.com/btcsuite/btcd/wire"
	"github.com/goodnatureofminers/spvchain/internal/spv/model"
)

var (
	ErrDisconnected = errors.New("peer disconnected")
	ErrNoPeers      = errors.New("no connected peers")
	ErrGroupClosed  = errors.New("peer group closed")
)

// Peer is a connection to a remote node, independent of its transport.
type Peer interface {
	ID() int32
	Addr() string
	// StartHeight is the best height the peer announced during handshake.
	StartHeight() uint64
	// Send queues msg for delivery. It fails with ErrDisconnected once the
	// peer is gone.
	Send(msg wire.Message) error
	// Subscribe returns the peer's inbound events. The channel is closed
	// after EventDisconnect.
	Subscribe(buffer int) (<-chan Event, func())
	Disconnect()
}

type EventKind int

const (
	EventHeaders EventKind = iota
	EventBlock
	EventMerkleBlock
	EventTx
	EventNotFound
	EventGetHeaders
	EventDisconnect
)

func (k EventKind) String() string {
	switch k {
	case EventHeaders:
		return "headers"
	case EventBlock:
		return "block"
	case EventMerkleBlock:
		return "merkleblock"
	case EventTx:
		return "tx"
	case EventNotFound:
		return "notfound"
	case EventGetHeaders:
		return "getheaders"
	case EventDisconnect:
		return "disconnect"
	default:
		return "unknown"
	}
}

// Event is an inbound message or state change of a peer. Exactly one payload
// field matching Kind is set.
type Event struct {
	Kind EventKind
	Peer Peer

	Headers     []*model.Header
	Block       *wire.MsgBlock
	MerkleBlock *wire.MsgMerkleBlock
	Tx          *wire.MsgTx
	NotFound    []*wire.InvVect
	GetHeaders  *wire.MsgGetHeaders
	// Err is the disconnect reason.
	Err error
}
