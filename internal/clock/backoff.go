package clock

import (
	"context"
	"time"
)

// Backoff produces exponentially growing delays between retries.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration

	attempt int
}

// Next returns the delay for the next retry.
func (b *Backoff) Next() time.Duration {
	d := b.Initial
	if d <= 0 {
		d = 100 * time.Millisecond
	}
	for i := 0; i < b.attempt; i++ {
		d *= 2
		if b.Max > 0 && d >= b.Max {
			d = b.Max
			break
		}
	}
	b.attempt++
	return d
}

// Wait sleeps for the next delay or until ctx is done.
func (b *Backoff) Wait(ctx context.Context) error {
	return Sleep(ctx, b.Next(), nil)
}

// Reset starts the sequence over.
func (b *Backoff) Reset() {
	b.attempt = 0
}
