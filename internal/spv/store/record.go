package store

import (
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/goodnatureofminers/spvchain/internal/spv/model"
)

// TipKey is the key of the tip record.
var TipKey = []byte("tip")

const (
	heightSize = 8
	recordSize = heightSize + model.HeaderSize
	tipSize    = heightSize + chainhash.HashSize
)

// Key returns the storage key of a block: the hash in display byte order.
func Key(hash chainhash.Hash) []byte {
	key := make([]byte, chainhash.HashSize)
	for i := range hash {
		key[chainhash.HashSize-1-i] = hash[i]
	}
	return key
}

func hashFromKey(key []byte) (chainhash.Hash, error) {
	var h chainhash.Hash
	if len(key) != chainhash.HashSize {
		return h, fmt.Errorf("hash key length %d", len(key))
	}
	for i := range h {
		h[i] = key[chainhash.HashSize-1-i]
	}
	return h, nil
}

// EncodeBlock serializes a block as height, header and optional next hash.
func EncodeBlock(b *model.ChainBlock) []byte {
	size := recordSize
	if b.Next != nil {
		size += chainhash.HashSize
	}
	out := make([]byte, 0, size)
	out = binary.BigEndian.AppendUint64(out, b.Height)
	out = append(out, b.Header.Bytes()...)
	if b.Next != nil {
		out = append(out, Key(*b.Next)...)
	}
	return out
}

// DecodeBlock parses a record written by EncodeBlock.
func DecodeBlock(data []byte) (*model.ChainBlock, error) {
	if len(data) != recordSize && len(data) != recordSize+chainhash.HashSize {
		return nil, fmt.Errorf("decode block: unexpected record length %d", len(data))
	}
	header, err := model.ParseHeader(data[heightSize:recordSize])
	if err != nil {
		return nil, fmt.Errorf("decode block: %w", err)
	}
	block := model.NewChainBlock(binary.BigEndian.Uint64(data[:heightSize]), header)
	if len(data) > recordSize {
		next, err := hashFromKey(data[recordSize:])
		if err != nil {
			return nil, fmt.Errorf("decode block next: %w", err)
		}
		block.Next = &next
	}
	return block, nil
}

// EncodeTip serializes the tip record: height and hash only.
func EncodeTip(b *model.ChainBlock) []byte {
	out := make([]byte, 0, tipSize)
	out = binary.BigEndian.AppendUint64(out, b.Height)
	return append(out, Key(b.Hash)...)
}

// DecodeTip returns the height and hash stored in a tip record.
func DecodeTip(data []byte) (uint64, chainhash.Hash, error) {
	if len(data) != tipSize {
		return 0, chainhash.Hash{}, fmt.Errorf("decode tip: unexpected record length %d", len(data))
	}
	hash, err := hashFromKey(data[heightSize:])
	if err != nil {
		return 0, chainhash.Hash{}, fmt.Errorf("decode tip: %w", err)
	}
	return binary.BigEndian.Uint64(data[:heightSize]), hash, nil
}
