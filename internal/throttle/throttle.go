// Package throttle implements the adaptive packet-rate controller from
// §4.B: a token bucket governs how fast the caller may send, and a
// sliding window of reported outcomes periodically adjusts that bucket's
// rate. The token bucket itself is golang.org/x/time/rate, the standard
// ecosystem limiter for exactly this pattern (present in this pack's
// dependency graph via mfreeman451-serviceradar); the adaptive feedback
// loop on top of it is this package's own contribution, grounded in the
// same worker-pool-with-shared-mutex-state shape the teacher repo uses
// in internal/fingerprint.Scanner.scanPorts.
package throttle

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Outcome is fed back into the controller via Report.
type Outcome bool

const (
	Success Outcome = true
	Failure Outcome = false
)

// Options configures a Controller. Zero values are replaced by the
// documented §4.B defaults in New.
type Options struct {
	InitialPPS       int
	MaxPPS           int
	MinPPS           int
	WindowSize       int           // sliding window of outcomes, default 200
	SuccessThreshold float64       // default 0.95
	FailureThreshold float64       // default 0.80
	RateIncrease     float64       // default 1.5
	RateDecrease     float64       // default 0.5
	Cooldown         time.Duration // default 500ms
	Logger           logrus.FieldLogger
}

func (o *Options) applyDefaults() {
	if o.InitialPPS <= 0 {
		o.InitialPPS = 100
	}
	if o.MaxPPS <= 0 {
		o.MaxPPS = 1000
	}
	if o.MinPPS <= 0 {
		o.MinPPS = 10
	}
	if o.WindowSize <= 0 {
		o.WindowSize = 200
	}
	if o.SuccessThreshold <= 0 {
		o.SuccessThreshold = 0.95
	}
	if o.FailureThreshold <= 0 {
		o.FailureThreshold = 0.80
	}
	if o.RateIncrease <= 1 {
		o.RateIncrease = 1.5
	}
	if o.RateDecrease <= 0 || o.RateDecrease >= 1 {
		o.RateDecrease = 0.5
	}
	if o.Cooldown <= 0 {
		o.Cooldown = 500 * time.Millisecond
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
}

// State is a read-only snapshot of the controller's internals (§3).
type State struct {
	CurrentPPS     int
	Sent           uint64
	Succeeded      uint64
	Failed         uint64
	LastAdjustTime time.Time
	SuccessWindow  float64 // successes/N over the current sliding window
}

// Controller is the shared, mutex-guarded adaptive rate limiter. A
// single instance is constructed once per scan and shared by every
// worker; its own internal synchronization is the only lock any caller
// needs to take (§5, "Throttle Controller: single shared instance").
type Controller struct {
	opts Options

	mu          sync.Mutex
	limiter     *rate.Limiter
	currentPPS  float64
	outcomes    []Outcome
	outcomeHead int
	outcomeLen  int
	sent        uint64
	succeeded   uint64
	failed      uint64
	lastAdjust  time.Time
}

// New constructs a Controller from opts, filling in §4.B's documented
// defaults for any zero field.
func New(opts Options) *Controller {
	opts.applyDefaults()
	c := &Controller{
		opts:       opts,
		currentPPS: float64(opts.InitialPPS),
		outcomes:   make([]Outcome, opts.WindowSize),
	}
	c.limiter = rate.NewLimiter(rate.Limit(c.currentPPS), burstFor(opts.InitialPPS))
	return c
}

func burstFor(pps int) int {
	b := pps / 10
	if b < 1 {
		b = 1
	}
	return b
}

// Acquire suspends the caller until it is permitted to send one packet.
// It never busy-waits: the token bucket's Wait blocks on a timer.
func (c *Controller) Acquire(ctx context.Context) error {
	c.mu.Lock()
	limiter := c.limiter
	c.mu.Unlock()
	return limiter.Wait(ctx)
}

// Report feeds a single packet's outcome back into the sliding window
// and, at most once per cooldown, re-evaluates the send rate.
func (c *Controller) Report(outcome Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sent++
	if outcome == Success {
		c.succeeded++
	} else {
		c.failed++
	}

	if c.outcomeLen < len(c.outcomes) {
		c.outcomes[c.outcomeLen] = outcome
		c.outcomeLen++
	} else {
		c.outcomes[c.outcomeHead] = outcome
		c.outcomeHead = (c.outcomeHead + 1) % len(c.outcomes)
	}

	if c.outcomeLen < len(c.outcomes) {
		return // window not yet full; don't adjust on partial data
	}
	if time.Since(c.lastAdjust) < c.opts.Cooldown {
		return
	}
	c.adjustLocked()
}

func (c *Controller) successRateLocked() float64 {
	if c.outcomeLen == 0 {
		return 1
	}
	successes := 0
	for i := 0; i < c.outcomeLen; i++ {
		if c.outcomes[i] == Success {
			successes++
		}
	}
	return float64(successes) / float64(c.outcomeLen)
}

func (c *Controller) adjustLocked() {
	s := c.successRateLocked()
	before := c.currentPPS

	switch {
	case s >= c.opts.SuccessThreshold:
		c.currentPPS = min64(c.currentPPS*c.opts.RateIncrease, float64(c.opts.MaxPPS))
	case s <= c.opts.FailureThreshold:
		c.currentPPS = max64(c.currentPPS*c.opts.RateDecrease, float64(c.opts.MinPPS))
	default:
		return
	}

	if c.currentPPS == before {
		return
	}
	c.lastAdjust = time.Now()
	c.limiter.SetLimit(rate.Limit(c.currentPPS))
	c.limiter.SetBurst(burstFor(int(c.currentPPS)))
	c.opts.Logger.WithFields(logrus.Fields{
		"success_rate": s,
		"old_pps":      before,
		"new_pps":      c.currentPPS,
	}).Debug("throttle: adjusted send rate")
}

// Stats returns a point-in-time snapshot of the controller's state.
func (c *Controller) Stats() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		CurrentPPS:     int(c.currentPPS),
		Sent:           c.sent,
		Succeeded:      c.succeeded,
		Failed:         c.failed,
		LastAdjustTime: c.lastAdjust,
		SuccessWindow:  c.successRateLocked(),
	}
}

func min64(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func max64(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
