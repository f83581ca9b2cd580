// Package retry decides when a failed queue item is attempted again and
// when it is given up on.
package retry

import (
	"math"
	"time"
)

const (
	DefaultMaxAttempts = 10
	DefaultBaseDelay   = 5 * time.Second
	DefaultMaxDelay    = 10 * time.Minute
)

// Policy is exponential backoff with a dead-letter ceiling. A zero
// MaxAttempts never dead-letters.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func Default() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
	}
}

// Backoff returns the wait after the given number of failed attempts:
// BaseDelay * 2^(attempts-1), capped at MaxDelay. Without MaxDelay it
// saturates at the largest representable duration.
func (p Policy) Backoff(attempts int) time.Duration {
	if attempts <= 0 || p.BaseDelay <= 0 {
		return 0
	}
	d := p.BaseDelay
	for i := 1; i < attempts; i++ {
		if d > math.MaxInt64/2 {
			d = math.MaxInt64
			break
		}
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Exhausted reports whether an item with this many failed attempts should
// be dead-lettered.
func (p Policy) Exhausted(attempts int) bool {
	return p.MaxAttempts > 0 && attempts >= p.MaxAttempts
}

// NextAttempt is the earliest time the item may be retried.
func (p Policy) NextAttempt(now time.Time, attempts int) time.Time {
	return now.Add(p.Backoff(attempts))
}
