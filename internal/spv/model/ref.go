package model

import (
	"fmt"
	"strconv"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

type BlockRefKind int

const (
	RefHash BlockRefKind = iota
	RefHeight
	RefTime
)

// BlockRef addresses a block by hash, height or timestamp.
type BlockRef struct {
	Kind   BlockRefKind
	Hash   chainhash.Hash
	Height uint64
	Time   uint32
}

func ByHash(h chainhash.Hash) BlockRef { return BlockRef{Kind: RefHash, Hash: h} }

func ByHeight(height uint64) BlockRef { return BlockRef{Kind: RefHeight, Height: height} }

func ByTime(t uint32) BlockRef { return BlockRef{Kind: RefTime, Time: t} }

// RefFromNumber treats values below TimestampThreshold as heights and the
// rest as unix timestamps.
func RefFromNumber(n uint64) BlockRef {
	if n < TimestampThreshold {
		return ByHeight(n)
	}
	return ByTime(uint32(n))
}

// ParseBlockRef accepts a 64 character hex hash or a decimal number.
func ParseBlockRef(s string) (BlockRef, error) {
	if len(s) == chainhash.MaxHashStringSize {
		h, err := chainhash.NewHashFromStr(s)
		if err != nil {
			return BlockRef{}, fmt.Errorf("parse block hash: %w", err)
		}
		return ByHash(*h), nil
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return BlockRef{}, fmt.Errorf("parse block reference %q: %w", s, err)
	}
	return RefFromNumber(n), nil
}

func (r BlockRef) String() string {
	switch r.Kind {
	case RefHeight:
		return "height " + strconv.FormatUint(r.Height, 10)
	case RefTime:
		return "time " + strconv.FormatUint(uint64(r.Time), 10)
	default:
		return "hash " + r.Hash.String()
	}
}
