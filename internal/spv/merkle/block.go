package merkle

import (
	"fmt"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// BlockRoot computes the merkle root of txs. Duplicate transaction ids and
// levels pairing two identical hashes fail with ErrDegenerateNode.
func BlockRoot(txs []*wire.MsgTx) (chainhash.Hash, error) {
	if len(txs) == 0 {
		return chainhash.Hash{}, ErrNoTransactions
	}

	seen := make(map[chainhash.Hash]int, len(txs))
	wrapped := make([]*btcutil.Tx, len(txs))
	for i, tx := range txs {
		wrapped[i] = btcutil.NewTx(tx)
		id := *wrapped[i].Hash()
		if j, ok := seen[id]; ok {
			return chainhash.Hash{}, fmt.Errorf("%w: transactions %d and %d share id %s", ErrDegenerateNode, j, i, id)
		}
		seen[id] = i
	}

	tree := blockchain.BuildMerkleTreeStore(wrapped, false)
	offset := 0
	for width, height := len(tree)/2+1, 0; width > 1; width, height = width/2, height+1 {
		for i := 0; i < width; i += 2 {
			left, right := tree[offset+i], tree[offset+i+1]
			if left != nil && right != nil && left.IsEqual(right) {
				return chainhash.Hash{}, fmt.Errorf("%w: height %d position %d", ErrDegenerateNode, height, i/2)
			}
		}
		offset += width
	}
	return *tree[len(tree)-1], nil
}

// VerifyBlock checks the transactions of msg against its header merkle root.
func VerifyBlock(msg *wire.MsgBlock) error {
	root, err := BlockRoot(msg.Transactions)
	if err != nil {
		return err
	}
	if root != msg.Header.MerkleRoot {
		return &RootMismatchError{Expected: msg.Header.MerkleRoot, Computed: root}
	}
	return nil
}
