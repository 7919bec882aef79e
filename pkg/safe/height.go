// Package safe converts block heights between the unsigned form used by the
// chain and the signed forms used on the wire and by RPC.
package safe

import (
	"fmt"
	"math"
)

// Uint64 converts a signed height, rejecting negatives.
func Uint64[T ~int | ~int32 | ~int64](v T) (uint64, error) {
	if v < 0 {
		return 0, fmt.Errorf("value %d out of uint64 range", v)
	}
	return uint64(v), nil
}

// Int64 converts an unsigned height for RPC calls.
func Int64(v uint64) (int64, error) {
	if v > math.MaxInt64 {
		return 0, fmt.Errorf("value %d out of int64 range", v)
	}
	return int64(v), nil
}

// Int32 converts an unsigned height for protocol messages.
func Int32(v uint64) (int32, error) {
	if v > math.MaxInt32 {
		return 0, fmt.Errorf("value %d out of int32 range", v)
	}
	return int32(v), nil
}
