package relay

import (
	"context"
	"math/rand/v2"
	"time"
)

// Pacer holds an event before synthesis to mimic a human typing.
type Pacer interface {
	Pace(ctx context.Context) error
}

// RandomPacer waits a uniformly random duration in [Min, Max).
type RandomPacer struct {
	Min time.Duration
	Max time.Duration
}

// Delay draws the next pause.
func (p RandomPacer) Delay() time.Duration {
	if p.Max <= p.Min {
		return p.Min
	}
	return p.Min + rand.N(p.Max-p.Min)
}

// Pace blocks for Delay or until ctx is done.
func (p RandomPacer) Pace(ctx context.Context) error {
	d := p.Delay()
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// NoPacer skips the pause.
type NoPacer struct{}

func (NoPacer) Pace(ctx context.Context) error { return ctx.Err() }
