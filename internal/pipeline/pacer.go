package pipeline

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// RandomPacer waits a uniformly random duration in [Min, Max] between fetches.
type RandomPacer struct {
	Min time.Duration
	Max time.Duration
	// Sleep is replaceable in tests; it defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// NewRandomPacer returns a pacer for the given window.
func NewRandomPacer(lo, hi time.Duration) *RandomPacer {
	if hi < lo {
		lo, hi = hi, lo
	}
	return &RandomPacer{Min: lo, Max: hi, Sleep: sleepContext}
}

// Pause sleeps for the next delay or until ctx is done.
func (p *RandomPacer) Pause(ctx context.Context) error {
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	return sleep(ctx, p.Next())
}

// Next draws the next delay.
func (p *RandomPacer) Next() time.Duration {
	span := p.Max - p.Min
	if span <= 0 {
		return p.Min
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(span)+1))
	if err != nil {
		return p.Min + span/2
	}
	return p.Min + time.Duration(n.Int64())
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("pause interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
