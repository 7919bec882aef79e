// Package merkle verifies BIP37 partial merkle trees.
package merkle

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

var (
	ErrNoTransactions       = errors.New("merkle proof has no transactions")
	ErrProofExhausted       = errors.New("merkle proof exhausted before traversal finished")
	ErrTreeNotFullyConsumed = errors.New("merkle tree not fully consumed")
	ErrDegenerateNode       = errors.New("merkle tree has identical sibling hashes")
	ErrRootMismatch         = errors.New("merkle root mismatch")
)

// RootMismatchError reports a computed root that differs from the header.
type RootMismatchError struct {
	Expected chainhash.Hash
	Computed chainhash.Hash
}

func (e *RootMismatchError) Error() string {
	return fmt.Sprintf("%v: expected %s, computed %s", ErrRootMismatch, e.Expected, e.Computed)
}

func (e *RootMismatchError) Unwrap() error { return ErrRootMismatch }

// Proof is the compact form of a partial merkle tree.
type Proof struct {
	NumTransactions uint32
	Hashes          []chainhash.Hash
	// Flags is read least significant bit first within each byte.
	Flags []byte
}

// Tree is the result of walking a proof.
type Tree struct {
	Depth   uint32
	Matched []chainhash.Hash
	Root    chainhash.Hash
}

// FromMerkleBlock extracts the proof carried by a merkleblock message.
func FromMerkleBlock(msg *wire.MsgMerkleBlock) Proof {
	hashes := make([]chainhash.Hash, len(msg.Hashes))
	for i, h := range msg.Hashes {
		hashes[i] = *h
	}
	return Proof{
		NumTransactions: msg.Transactions,
		Hashes:          hashes,
		Flags:           msg.Flags,
	}
}

// Build walks the proof and returns the matched transaction ids and the
// computed root.
func Build(p Proof) (Tree, error) {
	if p.NumTransactions == 0 {
		return Tree{}, ErrNoTransactions
	}

	w := walker{proof: p}
	depth := uint32(bits.Len32(p.NumTransactions - 1))
	root, err := w.node(depth, 0)
	if err != nil {
		return Tree{}, err
	}
	if w.hashesUsed != len(p.Hashes) {
		return Tree{}, fmt.Errorf("%w: %d of %d hashes used", ErrTreeNotFullyConsumed, w.hashesUsed, len(p.Hashes))
	}
	if (w.bitsUsed+7)/8 != len(p.Flags) {
		return Tree{}, fmt.Errorf("%w: %d of %d flag bytes used", ErrTreeNotFullyConsumed, (w.bitsUsed+7)/8, len(p.Flags))
	}

	return Tree{Depth: depth, Matched: w.matched, Root: root}, nil
}

// Verify builds the tree and checks its root against expected.
func Verify(p Proof, expected chainhash.Hash) (Tree, error) {
	tree, err := Build(p)
	if err != nil {
		return Tree{}, err
	}
	if tree.Root != expected {
		return Tree{}, &RootMismatchError{Expected: expected, Computed: tree.Root}
	}
	return tree, nil
}

// VerifyMerkleBlock verifies msg against the merkle root of its own header.
func VerifyMerkleBlock(msg *wire.MsgMerkleBlock) (Tree, error) {
	return Verify(FromMerkleBlock(msg), msg.Header.MerkleRoot)
}

type walker struct {
	proof      Proof
	bitsUsed   int
	hashesUsed int
	matched    []chainhash.Hash
}

// width is the number of nodes at height h, counted from the leaves.
func (w *walker) width(h uint32) uint64 {
	return (uint64(w.proof.NumTransactions) + (uint64(1) << h) - 1) >> h
}

func (w *walker) nextBit() (bool, error) {
	if w.bitsUsed >= len(w.proof.Flags)*8 {
		return false, fmt.Errorf("%w: out of flag bits", ErrProofExhausted)
	}
	b := w.proof.Flags[w.bitsUsed/8]>>(uint(w.bitsUsed)%8)&1 == 1
	w.bitsUsed++
	return b, nil
}

func (w *walker) nextHash() (chainhash.Hash, error) {
	if w.hashesUsed >= len(w.proof.Hashes) {
		return chainhash.Hash{}, fmt.Errorf("%w: out of hashes", ErrProofExhausted)
	}
	h := w.proof.Hashes[w.hashesUsed]
	w.hashesUsed++
	return h, nil
}

func (w *walker) node(height uint32, pos uint64) (chainhash.Hash, error) {
	flag, err := w.nextBit()
	if err != nil {
		return chainhash.Hash{}, err
	}

	if height == 0 || !flag {
		h, err := w.nextHash()
		if err != nil {
			return chainhash.Hash{}, err
		}
		if height == 0 && flag {
			w.matched = append(w.matched, h)
		}
		return h, nil
	}

	left, err := w.node(height-1, pos*2)
	if err != nil {
		return chainhash.Hash{}, err
	}
	right := left
	if pos*2+1 < w.width(height-1) {
		right, err = w.node(height-1, pos*2+1)
		if err != nil {
			return chainhash.Hash{}, err
		}
		if right == left {
			return chainhash.Hash{}, fmt.Errorf("%w: height %d position %d", ErrDegenerateNode, height, pos)
		}
	}

	var buf [chainhash.HashSize * 2]byte
	copy(buf[:chainhash.HashSize], left[:])
	copy(buf[chainhash.HashSize:], right[:])
	return chainhash.DoubleHashH(buf[:]), nil
}
