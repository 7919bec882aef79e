package model

import (
	"math/big"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// CompactToTarget decodes the compact "bits" representation of a target.
func CompactToTarget(bits uint32) *big.Int {
	return blockchain.CompactToBig(bits)
}

// TargetToCompact encodes target in canonical compact form.
func TargetToCompact(target *big.Int) uint32 {
	return blockchain.BigToCompact(target)
}

// HashToTarget interprets a block identity as a big-endian integer.
func HashToTarget(hash chainhash.Hash) *big.Int {
	return blockchain.HashToBig(&hash)
}

// CheckProofOfWork reports whether hash satisfies the target encoded in bits.
func CheckProofOfWork(hash chainhash.Hash, bits uint32) bool {
	target := CompactToTarget(bits)
	if target.Sign() <= 0 {
		return false
	}
	return HashToTarget(hash).Cmp(target) <= 0
}
