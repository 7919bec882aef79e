package model

import "time"

// IndexedHeader is an accepted header as exported to the header index.
type IndexedHeader struct {
	Network    string
	Height     uint64
	Hash       string
	PrevHash   string
	MerkleRoot string
	Version    int32
	Timestamp  time.Time
	Bits       uint32
	Nonce      uint32
}

// NewIndexedHeader flattens b into an index row.
func NewIndexedHeader(network string, b *ChainBlock) IndexedHeader {
	h := b.Header
	prev := h.PrevHash()
	root := h.MerkleRoot()
	return IndexedHeader{
		Network:    network,
		Height:     b.Height,
		Hash:       b.Hash.String(),
		PrevHash:   prev.String(),
		MerkleRoot: root.String(),
		Version:    h.Version(),
		Timestamp:  time.Unix(int64(h.Time()), 0).UTC(),
		Bits:       h.Bits(),
		Nonce:      h.Nonce(),
	}
}
