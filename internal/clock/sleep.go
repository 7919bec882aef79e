// Package clock provides helpers for time-related operations.
package clock

import (
	"context"
	"time"
)

// Sleep waits for d, a value on wake, or ctx to be done, whichever comes
// first. Only the last case returns an error. A nil wake never fires.
func Sleep(ctx context.Context, d time.Duration, wake <-chan struct{}) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-wake:
		return nil
	case <-timer.C:
		return nil
	}
}
