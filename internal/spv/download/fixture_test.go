package download

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/goodnatureofminers/spvchain/internal/metrics"
	"github.com/goodnatureofminers/spvchain/internal/spv/chain"
	"github.com/goodnatureofminers/spvchain/internal/spv/chain/chaintest"
	"github.com/goodnatureofminers/spvchain/internal/spv/merkle"
	"github.com/goodnatureofminers/spvchain/internal/spv/model"
	"github.com/goodnatureofminers/spvchain/internal/spv/peer"
	"github.com/goodnatureofminers/spvchain/internal/spv/peer/peertest"
	"github.com/goodnatureofminers/spvchain/internal/spv/store/memory"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fixture is a stored chain whose blocks each carry one transaction, served
// by test peers.
type fixture struct {
	chain   *chain.Chain
	headers []*model.Header
	blocks  map[chainhash.Hash]*wire.MsgBlock
	txs     map[chainhash.Hash]*wire.MsgTx
}

func coinbase(height int) *wire.MsgTx {
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&chainhash.Hash{}, math.MaxUint32), []byte{byte(height), byte(height >> 8), 0x51}, nil))
	tx.AddTxOut(wire.NewTxOut(50, []byte{0x51}))
	return tx
}

func newFixture(t testing.TB, n int) *fixture {
	t.Helper()
	return newFixtureWith(t, n, func(height int) []*wire.MsgTx {
		return []*wire.MsgTx{coinbase(height)}
	})
}

// newFixtureWith builds n blocks carrying the transactions txsAt returns for
// each height.
func newFixtureWith(t testing.TB, n int, txsAt func(height int) []*wire.MsgTx) *fixture {
	t.Helper()

	ctx := context.Background()
	params := chaintest.Params()
	f := &fixture{
		blocks: make(map[chainhash.Hash]*wire.MsgBlock, n),
		txs:    make(map[chainhash.Hash]*wire.MsgTx, n),
	}

	parent := params.Genesis
	for i := 1; i <= n; i++ {
		txs := txsAt(i)
		root, err := merkle.BlockRoot(txs)
		require.NoError(t, err)
		tmpl := chaintest.Template(parent, 0)
		tmpl.MerkleRoot = root
		h := chaintest.Solve(tmpl)
		f.headers = append(f.headers, h)
		f.blocks[h.Hash()] = &wire.MsgBlock{Header: h.BlockHeader(), Transactions: txs}
		for _, tx := range txs {
			f.txs[tx.TxHash()] = tx
		}
		parent = h
	}

	c, err := chain.New(ctx, params, memory.New(), metrics.NewChain("regtest"), zap.NewNop())
	require.NoError(t, err)
	_, err = c.ProcessHeaders(ctx, f.headers)
	require.NoError(t, err)
	f.chain = c
	return f
}

// merkleBlock proves the single transaction of block, matched or not.
func merkleBlock(block *wire.MsgBlock, match bool) *wire.MsgMerkleBlock {
	root := block.Header.MerkleRoot
	flags := []byte{0x00}
	if match {
		flags[0] = 0x01
	}
	return &wire.MsgMerkleBlock{
		Header:       block.Header,
		Transactions: 1,
		Hashes:       []*chainhash.Hash{&root},
		Flags:        flags,
	}
}

// response builds the answer of an honest peer to inv.
func (f *fixture) response(inv *wire.InvVect, match bool) (peer.Event, bool) {
	switch inv.Type {
	case wire.InvTypeBlock:
		if b, ok := f.blocks[inv.Hash]; ok {
			return peer.Event{Kind: peer.EventBlock, Block: b}, true
		}
	case wire.InvTypeFilteredBlock:
		if b, ok := f.blocks[inv.Hash]; ok {
			return peer.Event{Kind: peer.EventMerkleBlock, MerkleBlock: merkleBlock(b, match)}, true
		}
	case wire.InvTypeTx:
		if tx, ok := f.txs[inv.Hash]; ok {
			return peer.Event{Kind: peer.EventTx, Tx: tx}, true
		}
	}
	return peer.Event{}, false
}

// serve makes p answer every getdata from its own goroutine.
func (f *fixture) serve(p *peertest.Peer, match bool) {
	p.OnSend(func(p *peertest.Peer, msg wire.Message) {
		getData, ok := msg.(*wire.MsgGetData)
		if !ok {
			return
		}
		invs := getData.InvList
		go func() {
			for _, inv := range invs {
				if ev, ok := f.response(inv, match); ok {
					_ = p.Emit(context.Background(), ev)
				}
			}
		}()
	})
}

func newGroup(t require.TestingT, peers ...*peertest.Peer) *peer.Group {
	g := peer.NewGroup(metrics.NewPeers("regtest"), zap.NewNop())
	for _, p := range peers {
		require.NoError(t, g.Add(p))
	}
	return g
}

func waitRequested(t require.TestingT, p *peertest.Peer, n int) []*wire.InvVect {
	deadline := time.Now().Add(2 * time.Second)
	for {
		invs := p.Requested()
		if len(invs) >= n {
			return invs
		}
		if time.Now().After(deadline) {
			require.FailNow(t, "requests not sent", "got %d of %d", len(invs), n)
		}
		time.Sleep(time.Millisecond)
	}
}

func collect(t *testing.T, s *Stream) []*model.BlockResult {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var out []*model.BlockResult
	for r, err := range s.All(ctx) {
		require.NoError(t, err)
		out = append(out, r)
	}
	return out
}
