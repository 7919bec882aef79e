// Package filter builds BIP37 bloom filters for watched addresses and
// outpoints.
package filter

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/bloom"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
)

const defaultFalsePositiveRate = 0.0001

var ErrEmpty = errors.New("nothing to watch")

type Config struct {
	Addresses []string
	OutPoints []wire.OutPoint
	// FalsePositiveRate defaults to 0.0001.
	FalsePositiveRate float64
	Tweak             uint32
}

// Filter matches transactions paying to or spending from watched items.
type Filter struct {
	bloom *bloom.Filter
}

// New decodes the watched addresses for params and adds them to a filter
// sized for all watched items.
func New(params *chaincfg.Params, cfg Config) (*Filter, error) {
	n := len(cfg.Addresses) + len(cfg.OutPoints)
	if n == 0 {
		return nil, ErrEmpty
	}
	rate := cfg.FalsePositiveRate
	if rate <= 0 {
		rate = defaultFalsePositiveRate
	}

	f := bloom.NewFilter(uint32(n), cfg.Tweak, rate, wire.BloomUpdateAll)
	for _, s := range cfg.Addresses {
		addr, err := btcutil.DecodeAddress(s, params)
		if err != nil {
			return nil, fmt.Errorf("decode address %q: %w", s, err)
		}
		if !addr.IsForNet(params) {
			return nil, fmt.Errorf("address %q is not for network %s", s, params.Name)
		}
		f.Add(addr.ScriptAddress())
	}
	for i := range cfg.OutPoints {
		f.AddOutPoint(&cfg.OutPoints[i])
	}
	return &Filter{bloom: f}, nil
}

// Load returns the filterload message for peers.
func (f *Filter) Load() *wire.MsgFilterLoad {
	return f.bloom.MsgFilterLoad()
}

// MatchTx reports whether tx pays to or spends a watched item. Matched
// outputs are added to the filter.
func (f *Filter) MatchTx(tx *wire.MsgTx) bool {
	return f.bloom.MatchTxAndUpdate(btcutil.NewTx(tx))
}
