// Package chaintest builds valid header chains for tests.
package chaintest

import (
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/goodnatureofminers/spvchain/internal/spv/model"
)

const (
	// Interval is the retarget interval of Params.
	Interval = 8
	// Spacing keeps every retarget window above four target timespans so
	// the expected bits stay at the network limit.
	Spacing = 3600
)

// Params are regtest params with a short, enforced retarget interval.
func Params() model.Params {
	p := model.ParamsFor(&chaincfg.RegressionNetParams)
	p.RetargetInterval = Interval
	p.TargetTimespan = Interval * 600
	p.ConstantDifficulty = true
	p.NoRetargeting = false
	return p
}

// Genesis returns the regtest genesis header.
func Genesis() *model.Header {
	return Params().Genesis
}

// Template returns an unsolved child of parent. branch distinguishes
// siblings.
func Template(parent *model.Header, branch byte) wire.BlockHeader {
	prev := parent.Hash()
	return wire.BlockHeader{
		Version:    1,
		PrevBlock:  prev,
		MerkleRoot: chainhash.DoubleHashH(append([]byte{branch}, prev[:]...)),
		Timestamp:  time.Unix(int64(parent.Time())+Spacing, 0),
		Bits:       parent.Bits(),
	}
}

// Solve increments the nonce until the header satisfies its own target.
func Solve(h wire.BlockHeader) *model.Header {
	for {
		if model.CheckProofOfWork(h.BlockHash(), h.Bits) {
			return model.NewHeader(h)
		}
		h.Nonce++
	}
}

// Unsolve increments the nonce until the header fails its own target.
func Unsolve(h wire.BlockHeader) *model.Header {
	for {
		if !model.CheckProofOfWork(h.BlockHash(), h.Bits) {
			return model.NewHeader(h)
		}
		h.Nonce++
	}
}

// Extend returns n solved headers following parent.
func Extend(parent *model.Header, n int, branch byte) []*model.Header {
	headers := make([]*model.Header, 0, n)
	prev := parent
	for i := 0; i < n; i++ {
		h := Solve(Template(prev, branch))
		headers = append(headers, h)
		prev = h
	}
	return headers
}

// Last returns the final header of headers.
func Last(headers []*model.Header) *model.Header {
	return headers[len(headers)-1]
}
