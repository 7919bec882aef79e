package model

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// TimestampThreshold separates block heights from unix timestamps in
// numeric block references.
const TimestampThreshold = 500_000_000

var ErrUnknownNetwork = errors.New("unknown network")

// Checkpoint replaces genesis as the validation floor.
type Checkpoint struct {
	Height uint64
	Header *Header
}

// Block returns the checkpoint as a chain block.
func (c Checkpoint) Block() *ChainBlock {
	return NewChainBlock(c.Height, c.Header)
}

// Params are the consensus rules the chain validates headers against.
type Params struct {
	Name  string
	Chain *chaincfg.Params

	Genesis          *Header
	RetargetInterval uint64
	// TargetTimespan is the expected duration of a retarget window in seconds.
	TargetTimespan uint32
	MaxTarget      *big.Int
	// ConstantDifficulty requires bits to stay unchanged between retargets.
	ConstantDifficulty bool
	// NoRetargeting disables the retarget check entirely.
	NoRetargeting bool
	Checkpoint    *Checkpoint
}

// ParamsFor derives validation params from btcd network params.
func ParamsFor(chain *chaincfg.Params) Params {
	return Params{
		Name:               chain.Name,
		Chain:              chain,
		Genesis:            NewHeader(chain.GenesisBlock.Header),
		RetargetInterval:   uint64(chain.TargetTimespan / chain.TargetTimePerBlock),
		TargetTimespan:     uint32(chain.TargetTimespan / time.Second),
		MaxTarget:          new(big.Int).Set(chain.PowLimit),
		ConstantDifficulty: !chain.ReduceMinDifficulty,
		NoRetargeting:      chain.PoWNoRetargeting,
	}
}

// ParamsByName resolves a network name such as "mainnet" or "testnet3".
func ParamsByName(name string) (Params, error) {
	switch name {
	case chaincfg.MainNetParams.Name:
		return ParamsFor(&chaincfg.MainNetParams), nil
	case chaincfg.TestNet3Params.Name, "testnet":
		return ParamsFor(&chaincfg.TestNet3Params), nil
	case chaincfg.RegressionNetParams.Name:
		return ParamsFor(&chaincfg.RegressionNetParams), nil
	case chaincfg.SigNetParams.Name:
		return ParamsFor(&chaincfg.SigNetParams), nil
	default:
		return Params{}, fmt.Errorf("%w: %q", ErrUnknownNetwork, name)
	}
}

// WithCheckpoint returns a copy of p anchored at the known checkpoint of its
// network.
func (p Params) WithCheckpoint() (Params, error) {
	cp, ok := knownCheckpoints[p.Chain.Net]
	if !ok {
		return p, fmt.Errorf("no checkpoint for network %s", p.Name)
	}
	p.Checkpoint = &cp
	return p, nil
}

// Floor returns the lowest block the chain validates from.
func (p Params) Floor() *ChainBlock {
	if p.Checkpoint != nil {
		return p.Checkpoint.Block()
	}
	return NewChainBlock(0, p.Genesis)
}

// ShouldRetarget reports whether height is a retarget boundary.
func (p Params) ShouldRetarget(height uint64) bool {
	return p.RetargetInterval != 0 && height%p.RetargetInterval == 0
}

var knownCheckpoints = map[wire.BitcoinNet]Checkpoint{
	wire.MainNet: {
		Height: 359000,
		Header: checkpointHeader(3,
			"000000000000000006ecee94daaa034bbd026cad52a9d3c6a5b7972716e5d566",
			"1e24b829d04e8e6fcb71fa0de364d6c0fa952c1cdb5fad446cf2a94dd203867a",
			1433195458, 0x18171a8b, 3020402664),
	},
	wire.TestNet3: {
		Height: 446000,
		Header: checkpointHeader(3,
			"00000000003d7bfe7baf59981a749017112b8018f0977356a3a21ea81a04d79d",
			"8a5829f9ac43b54819a02e44b2754458179de46c748f2d110bf97a0b02595267",
			1432987428, 0x1a3fffc0, 3771678460),
	},
}

func checkpointHeader(version int32, prev, merkleRoot string, ts int64, bits, nonce uint32) *Header {
	return NewHeader(wire.BlockHeader{
		Version:    version,
		PrevBlock:  mustHash(prev),
		MerkleRoot: mustHash(merkleRoot),
		Timestamp:  time.Unix(ts, 0),
		Bits:       bits,
		Nonce:      nonce,
	})
}

func mustHash(s string) chainhash.Hash {
	h, err := chainhash.NewHashFromStr(s)
	if err != nil {
		panic(err)
	}
	return *h
}
