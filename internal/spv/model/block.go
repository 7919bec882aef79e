package model

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// ChainBlock is a header accepted by the chain together with its height.
// Next is set only while the block is an ancestor of the tip on the best path.
type ChainBlock struct {
	Height uint64
	Hash   chainhash.Hash
	Header *Header
	Next   *chainhash.Hash
}

// NewChainBlock returns a block for header at height without a next pointer.
func NewChainBlock(height uint64, header *Header) *ChainBlock {
	return &ChainBlock{
		Height: height,
		Hash:   header.Hash(),
		Header: header,
	}
}

// WithNext returns a copy of b pointing at next.
func (b *ChainBlock) WithNext(next chainhash.Hash) *ChainBlock {
	cp := *b
	cp.Next = &next
	return &cp
}

// ChainPath describes how to move from one chain position to another.
// Add is ascending by height, Remove is descending. Fork is nil when one
// endpoint is an ancestor of the other.
type ChainPath struct {
	Add    []*ChainBlock
	Remove []*ChainBlock
	Fork   *ChainBlock
}

// BlockResult is a downloaded block ready for a consumer.
type BlockResult struct {
	Height uint64
	Hash   chainhash.Hash
	Header *Header

	// Block is set for unfiltered downloads.
	Block *wire.MsgBlock
	// MerkleBlock is set for filtered downloads.
	MerkleBlock *wire.MsgMerkleBlock
	// Matched lists the transaction ids proven by MerkleBlock.
	Matched []chainhash.Hash
	// Transactions holds the matched transactions when they were requested,
	// in Matched order, or the block transactions for unfiltered downloads.
	Transactions []*wire.MsgTx
}
