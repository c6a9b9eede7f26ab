package pipeline

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

// Pacer produces the randomized delay inserted between consecutive sends.
// Outbound mail providers rate-limit and flag bursts as spam; a jittered
// pause mimics human sending cadence.
type Pacer struct {
	min time.Duration
	max time.Duration
}

// NewPacer validates the inclusive bounds and returns a pacer.
// Negative or inverted bounds are rejected.
func NewPacer(min, max time.Duration) (*Pacer, error) {
	if min < 0 {
		return nil, fmt.Errorf("pause bounds must be non-negative, got min=%s", min)
	}
	if min > max {
		return nil, fmt.Errorf("pause bounds inverted: min=%s > max=%s", min, max)
	}
	return &Pacer{min: min, max: max}, nil
}

// Delay returns a uniformly distributed duration in [min, max] inclusive.
func (p *Pacer) Delay() time.Duration {
	if p.min == p.max {
		return p.min
	}
	return p.min + rand.N(p.max-p.min+1)
}

// Wait suspends for one delay or until ctx is cancelled.
func (p *Pacer) Wait(ctx context.Context) error {
	d := p.Delay()
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
