package download

import (
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/goodnatureofminers/spvchain/internal/spv/model"
)

// slot is one outstanding request of the window.
type slot struct {
	block     *model.ChainBlock
	peerID    int32
	requested time.Time

	// result is set once the block data arrived. With pending transactions
	// the slot stays unresolved until every one of them arrived.
	result  *model.BlockResult
	pending map[chainhash.Hash]int
	txs     []*wire.MsgTx
}

func (s *slot) resolved() bool {
	return s.result != nil && len(s.pending) == 0
}

// window holds outstanding requests in request order. Its head is emitted as
// soon as it is resolved, so results leave in request order regardless of the
// order responses arrive in.
type window struct {
	slots []*slot
}

func (w *window) len() int { return len(w.slots) }

func (w *window) push(s *slot) {
	w.slots = append(w.slots, s)
}

// match returns the index of the oldest slot waiting for block data of hash.
func (w *window) match(hash chainhash.Hash) (int, bool) {
	for i, s := range w.slots {
		if s.result == nil && s.block.Hash == hash {
			return i, true
		}
	}
	return 0, false
}

// matchTx returns the slot waiting for transaction hash.
func (w *window) matchTx(hash chainhash.Hash) (*slot, int, bool) {
	for _, s := range w.slots {
		if idx, ok := s.pending[hash]; ok {
			return s, idx, true
		}
	}
	return nil, 0, false
}

// pop removes and returns the resolved slots at the head of the window.
func (w *window) pop() []*model.BlockResult {
	var out []*model.BlockResult
	n := 0
	for n < len(w.slots) && w.slots[n].resolved() {
		s := w.slots[n]
		if s.txs != nil {
			s.result.Transactions = s.txs
		}
		out = append(out, s.result)
		w.slots[n] = nil
		n++
	}
	w.slots = w.slots[n:]
	return out
}

// oldest returns the unresolved slot with the earliest request time, or nil.
// A slot waiting on re-requested transactions counts from the re-request.
func (w *window) oldest() *slot {
	var found *slot
	for _, s := range w.slots {
		if s.resolved() {
			continue
		}
		if found == nil || s.requested.Before(found.requested) {
			found = s
		}
	}
	return found
}

// fromPeer reports whether an unresolved slot waits on peer id.
func (w *window) fromPeer(id int32) bool {
	for _, s := range w.slots {
		if !s.resolved() && s.peerID == id {
			return true
		}
	}
	return false
}
