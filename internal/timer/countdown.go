// Package timer implements the per-question countdown driven by a repeating
// ticker. A Countdown is not safe for concurrent use; its owner serializes
// every call, including reads of C.
package timer

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// State of a countdown.
type State int

const (
	Idle State = iota
	Running
	Paused
	Expired
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Expired:
		return "expired"
	default:
		return "idle"
	}
}

// Countdown tracks the authoritative remaining time of a question and a
// ticker that fires at a configurable cadence. The cadence never affects the
// remaining time, which is always derived from the deadline.
type Countdown struct {
	clock    clockwork.Clock
	interval time.Duration

	ticker    clockwork.Ticker
	deadline  time.Time
	remaining time.Duration
	paused    bool
	expired   bool
}

func New(clock clockwork.Clock, interval time.Duration) *Countdown {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Countdown{clock: clock, interval: interval}
}

// Arm stops any ticker and loads a fresh duration without starting it.
func (c *Countdown) Arm(d time.Duration) {
	c.stopTicker()
	c.remaining = d
	c.paused = false
	c.expired = false
}

// Start begins ticking at the current interval. It is a no-op while a ticker
// is live and resumes from the preserved remaining time when paused.
// It reports whether a ticker was started.
func (c *Countdown) Start() bool {
	if c.ticker != nil {
		return false
	}
	c.paused = false
	if c.expired || c.remaining <= 0 {
		return false
	}
	c.deadline = c.clock.Now().Add(c.remaining)
	c.ticker = c.clock.NewTicker(c.interval)
	return true
}

// Reset cancels the live ticker, if any, and starts a new one at interval.
// Remaining time carries over and the countdown is un-paused.
func (c *Countdown) Reset(interval time.Duration) bool {
	c.stopTicker()
	c.interval = interval
	return c.Start()
}

// TogglePause flips the paused flag and reports the new value. Pausing keeps
// the remaining time; resuming restarts the ticker from it.
func (c *Countdown) TogglePause() bool {
	if c.paused {
		c.Start()
		return false
	}
	c.stopTicker()
	c.paused = true
	return true
}

// Stop cancels the ticker and clears the paused flag, keeping the remaining
// time. Safe to call repeatedly.
func (c *Countdown) Stop() {
	c.stopTicker()
	c.paused = false
}

// Tick recomputes the remaining time; the owner calls it whenever C fires.
// When time runs out the ticker is stopped and expired is true.
func (c *Countdown) Tick() (remaining time.Duration, expired bool) {
	if c.ticker == nil {
		return c.remaining, c.expired
	}
	c.remaining = c.deadline.Sub(c.clock.Now())
	if c.remaining <= 0 {
		c.remaining = 0
		c.expired = true
		c.stopTicker()
	}
	return c.remaining, c.expired
}

// C is the channel of the live ticker, or nil when none is live.
// A nil channel blocks forever in a select.
func (c *Countdown) C() <-chan time.Time {
	if c.ticker == nil {
		return nil
	}
	return c.ticker.Chan()
}

// Remaining returns the time left, computed from the deadline while running.
func (c *Countdown) Remaining() time.Duration {
	if c.ticker == nil {
		return c.remaining
	}
	if d := c.deadline.Sub(c.clock.Now()); d > 0 {
		return d
	}
	return 0
}

// RemainingSeconds rounds the remaining time up to whole seconds.
func (c *Countdown) RemainingSeconds() int {
	return int((c.Remaining() + time.Second - 1) / time.Second)
}

func (c *Countdown) Interval() time.Duration { return c.interval }

func (c *Countdown) Paused() bool { return c.paused }

func (c *Countdown) Active() bool { return c.ticker != nil }

func (c *Countdown) State() State {
	switch {
	case c.expired:
		return Expired
	case c.paused:
		return Paused
	case c.ticker != nil:
		return Running
	default:
		return Idle
	}
}

func (c *Countdown) stopTicker() {
	if c.ticker == nil {
		return
	}
	if d := c.deadline.Sub(c.clock.Now()); d > 0 {
		c.remaining = d
	} else {
		c.remaining = 0
		c.expired = true
	}
	c.ticker.Stop()
	c.ticker = nil
}
