package chain

import (
	"errors"
	"fmt"
)

var (
	ErrDoesNotConnect             = errors.New("block does not connect to chain")
	ErrBrokenSequence             = errors.New("headers are not consecutive")
	ErrUnexpectedDifficultyChange = errors.New("unexpected difficulty change")
	ErrInvalidProofOfWork         = errors.New("invalid proof of work")
	ErrUnexpectedBits             = errors.New("unexpected bits")
	ErrNotInSameChain             = errors.New("blocks are not in the same chain")
	ErrHeightOutOfRange           = errors.New("height out of range")
	ErrSyncInProgress             = errors.New("sync already in progress")
	// ErrSourceUnavailable marks a transient header source failure. Sync
	// retries it.
	ErrSourceUnavailable = errors.New("header source unavailable")
)

// UnexpectedBitsError is returned when a retarget header carries bits that
// differ from the recomputed target.
type UnexpectedBitsError struct {
	Height   uint64
	Got      uint32
	Expected uint32
}

func (e *UnexpectedBitsError) Error() string {
	return fmt.Sprintf("%v at height %d: got %08x, expected %08x", ErrUnexpectedBits, e.Height, e.Got, e.Expected)
}

func (e *UnexpectedBitsError) Unwrap() error { return ErrUnexpectedBits }
