package download

import (
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/goodnatureofminers/spvchain/internal/spv/merkle"
	"github.com/goodnatureofminers/spvchain/internal/spv/model"
	"github.com/goodnatureofminers/spvchain/internal/spv/peer"
	"go.uber.org/zap"
)

func (s *Stream) handle(w *window, ev peer.Event) error {
	switch ev.Kind {
	case peer.EventBlock:
		return s.onBlock(w, ev)
	case peer.EventMerkleBlock:
		return s.onMerkleBlock(w, ev)
	case peer.EventTx:
		s.onTx(w, ev)
	case peer.EventNotFound:
		return s.onNotFound(w, ev)
	case peer.EventDisconnect:
		if w.fromPeer(ev.Peer.ID()) {
			return fmt.Errorf("%w: peer %d", ErrPeerDisconnected, ev.Peer.ID())
		}
	}
	return nil
}

func (s *Stream) onBlock(w *window, ev peer.Event) error {
	msg := ev.Block
	hash := msg.Header.BlockHash()
	i, ok := w.match(hash)
	if !ok || s.opts.Filtered {
		s.unmatched(ev, hash)
		return nil
	}
	sl := w.slots[i]

	err := merkle.VerifyBlock(msg)
	s.metrics.ObserveResponse(ev.Kind.String(), err, sl.requested)
	if err != nil {
		return fmt.Errorf("block %d (%s): %w", sl.block.Height, hash, err)
	}
	sl.result = &model.BlockResult{
		Height:       sl.block.Height,
		Hash:         hash,
		Header:       sl.block.Header,
		Block:        msg,
		Transactions: msg.Transactions,
	}
	return nil
}

func (s *Stream) onMerkleBlock(w *window, ev peer.Event) error {
	msg := ev.MerkleBlock
	hash := msg.Header.BlockHash()
	i, ok := w.match(hash)
	if !ok || !s.opts.Filtered {
		s.unmatched(ev, hash)
		return nil
	}
	sl := w.slots[i]

	tree, err := merkle.VerifyMerkleBlock(msg)
	s.metrics.ObserveResponse(ev.Kind.String(), err, sl.requested)
	if err != nil {
		return fmt.Errorf("merkle block %d (%s): %w", sl.block.Height, hash, err)
	}
	sl.result = &model.BlockResult{
		Height:      sl.block.Height,
		Hash:        hash,
		Header:      sl.block.Header,
		MerkleBlock: msg,
		Matched:     tree.Matched,
	}

	if !s.opts.FetchTransactions || len(tree.Matched) == 0 {
		return nil
	}
	sl.pending = make(map[chainhash.Hash]int, len(tree.Matched))
	sl.txs = make([]*wire.MsgTx, len(tree.Matched))
	getData := wire.NewMsgGetData()
	for j := range tree.Matched {
		sl.pending[tree.Matched[j]] = j
		if err := getData.AddInvVect(wire.NewInvVect(wire.InvTypeTx, &tree.Matched[j])); err != nil {
			return err
		}
	}
	if err := ev.Peer.Send(getData); err != nil {
		return fmt.Errorf("request %d transactions of block %d: %w", len(tree.Matched), sl.block.Height, err)
	}
	sl.peerID = ev.Peer.ID()
	sl.requested = time.Now()
	return nil
}

func (s *Stream) onTx(w *window, ev peer.Event) {
	hash := ev.Tx.TxHash()
	sl, idx, ok := w.matchTx(hash)
	if !ok {
		s.unmatched(ev, hash)
		return
	}
	sl.txs[idx] = ev.Tx
	delete(sl.pending, hash)
	if len(sl.pending) == 0 {
		s.metrics.ObserveResponse(ev.Kind.String(), nil, sl.requested)
	}
}

func (s *Stream) onNotFound(w *window, ev peer.Event) error {
	for _, inv := range ev.NotFound {
		switch inv.Type {
		case wire.InvTypeBlock, wire.InvTypeFilteredBlock, wire.InvTypeWitnessBlock:
			if i, ok := w.match(inv.Hash); ok && w.slots[i].peerID == ev.Peer.ID() {
				return fmt.Errorf("%w: block %d (%s)", ErrNotFound, w.slots[i].block.Height, inv.Hash)
			}
		case wire.InvTypeTx, wire.InvTypeWitnessTx:
			if sl, _, ok := w.matchTx(inv.Hash); ok && sl.peerID == ev.Peer.ID() {
				return fmt.Errorf("%w: transaction %s of block %d", ErrNotFound, inv.Hash, sl.block.Height)
			}
		}
	}
	return nil
}

func (s *Stream) unmatched(ev peer.Event, hash chainhash.Hash) {
	s.metrics.ObserveUnmatched(ev.Kind.String())
	var peerID int32
	if ev.Peer != nil {
		peerID = ev.Peer.ID()
	}
	s.logger.Debug("unmatched response",
		zap.Stringer("kind", ev.Kind),
		zap.Stringer("hash", hash),
		zap.Int32("peer", peerID))
}
