// Package backoff provides reconnection delay policies.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/sereno-app/sereno/internal/config"
)

// DefaultDelay is the fixed reconnect delay used when nothing is configured.
const DefaultDelay = 3 * time.Second

// Policy decides how long to wait before a reconnect attempt and when to stop.
// Attempts are numbered from 1.
type Policy interface {
	NextDelay(attempt int) time.Duration
	ShouldGiveUp(attempt int) bool
}

// Fixed waits the same delay before every attempt. MaxAttempts == 0 retries forever.
type Fixed struct {
	Delay       time.Duration
	MaxAttempts int
}

func (f Fixed) NextDelay(int) time.Duration {
	if f.Delay < 0 {
		return 0
	}
	return f.Delay
}

func (f Fixed) ShouldGiveUp(attempt int) bool {
	return f.MaxAttempts > 0 && attempt > f.MaxAttempts
}

// Exponential grows the delay by Factor per attempt, capped at Max.
// Jitter in [0,1] randomizes the delay downwards by up to that fraction.
type Exponential struct {
	Base        time.Duration
	Max         time.Duration
	Factor      float64
	Jitter      float64
	MaxAttempts int
}

func (e Exponential) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	factor := e.Factor
	if factor <= 1 {
		factor = 2
	}
	d := float64(e.Base) * math.Pow(factor, float64(attempt-1))
	if e.Max > 0 && d > float64(e.Max) {
		d = float64(e.Max)
	}
	if e.Jitter > 0 {
		j := min(e.Jitter, 1)
		d -= d * j * rand.Float64()
	}
	if d < 0 || math.IsNaN(d) {
		return 0
	}
	return time.Duration(d)
}

func (e Exponential) ShouldGiveUp(attempt int) bool {
	return e.MaxAttempts > 0 && attempt > e.MaxAttempts
}

// Default returns the fixed 3s, unbounded policy.
func Default() Policy {
	return Fixed{Delay: DefaultDelay}
}

// FromConfig builds the policy selected by the [reconnect] table.
func FromConfig(c config.ReconnectConfig) Policy {
	delay := c.Delay
	if delay <= 0 {
		delay = DefaultDelay
	}
	if c.Strategy == config.StrategyExponential {
		return Exponential{
			Base:        delay,
			Max:         c.MaxDelay,
			Factor:      c.Factor,
			Jitter:      c.Jitter,
			MaxAttempts: c.MaxAttempts,
		}
	}
	return Fixed{Delay: delay, MaxAttempts: c.MaxAttempts}
}
