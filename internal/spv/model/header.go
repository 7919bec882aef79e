// Package model holds the chain data types shared by the spv packages.
package model

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// HeaderSize is the serialized size of a block header.
const HeaderSize = wire.MaxBlockHeaderPayload

// Header is an immutable block header. Its identity is computed on first use
// and cached.
type Header struct {
	raw wire.BlockHeader

	once sync.Once
	hash chainhash.Hash
}

// NewHeader copies h into a Header.
func NewHeader(h wire.BlockHeader) *Header {
	return &Header{raw: h}
}

// ParseHeader decodes a network-serialized header.
func ParseHeader(b []byte) (*Header, error) {
	if len(b) != HeaderSize {
		return nil, fmt.Errorf("parse header: expected %d bytes, got %d", HeaderSize, len(b))
	}
	var raw wire.BlockHeader
	if err := raw.Deserialize(bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("parse header: %w", err)
	}
	return &Header{raw: raw}, nil
}

// Hash returns the double-SHA256 identity of the header.
func (h *Header) Hash() chainhash.Hash {
	h.once.Do(func() {
		h.hash = h.raw.BlockHash()
	})
	return h.hash
}

func (h *Header) Version() int32 { return h.raw.Version }

func (h *Header) PrevHash() chainhash.Hash { return h.raw.PrevBlock }

func (h *Header) MerkleRoot() chainhash.Hash { return h.raw.MerkleRoot }

// Time returns the header timestamp in unix seconds.
func (h *Header) Time() uint32 { return uint32(h.raw.Timestamp.Unix()) }

func (h *Header) Bits() uint32 { return h.raw.Bits }

func (h *Header) Nonce() uint32 { return h.raw.Nonce }

// BlockHeader returns a copy of the wire header.
func (h *Header) BlockHeader() wire.BlockHeader {
	return h.raw
}

// Bytes returns the network serialization of the header.
func (h *Header) Bytes() []byte {
	var buf bytes.Buffer
	buf.Grow(HeaderSize)
	// Writing into a bytes.Buffer does not fail.
	_ = h.raw.Serialize(&buf)
	return buf.Bytes()
}
