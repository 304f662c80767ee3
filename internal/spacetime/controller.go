// Package spacetime implements the engine's simulated clock.
//
// The simulated instant is derived from an anchor pair (simulated, system)
// captured whenever the clock state changes. While synced, simulated time is
// anchorSim + rate × (system − anchorSys); while not synced it stays at
// anchorSim. Reads never mutate state, so the clock can be sampled from any
// goroutine.
package spacetime

import (
	"errors"
	"math"
	"sync"
	"time"
)

var (
	// ErrZeroRate is returned when a caller asks for a zero time rate.
	// Freezing the clock is done with SetSyncToClock(false).
	ErrZeroRate = errors.New("spacetime: time rate must not be zero")

	// ErrInvalidRate is returned for NaN or infinite rates.
	ErrInvalidRate = errors.New("spacetime: time rate must be finite")
)

// State is a point-in-time view of the controller.
type State struct {
	Now    time.Time     `json:"now"`
	JNow   float64       `json:"jnow"`
	Synced bool          `json:"sync_to_clock"`
	Rate   float64       `json:"time_rate"`
	Offset time.Duration `json:"offset_ns"`
}

// Controller is the simulated clock. One Controller is owned by a host and
// shared by every engine instance that host creates.
// Safe for concurrent use.
type Controller struct {
	clk Clock

	mu        sync.RWMutex
	anchorSim time.Time
	anchorSys time.Time
	synced    bool
	rate      float64
}

// New creates a controller locked to clk with rate 1 and zero offset.
func New(clk Clock) *Controller {
	if clk == nil {
		clk = SystemClock{}
	}
	now := clk.Now().UTC()
	return &Controller{
		clk:       clk,
		anchorSim: now,
		anchorSys: now,
		synced:    true,
		rate:      1,
	}
}

// nowLocked computes the simulated time at system time sys. Caller holds mu.
func (c *Controller) nowLocked(sys time.Time) time.Time {
	if !c.synced {
		return c.anchorSim
	}
	elapsed := sys.Sub(c.anchorSys)
	if c.rate == 1 {
		return c.anchorSim.Add(elapsed)
	}
	scaled := float64(elapsed) * c.rate
	// Clamp to the representable duration range for extreme rates.
	if scaled > math.MaxInt64 {
		scaled = math.MaxInt64
	} else if scaled < math.MinInt64 {
		scaled = math.MinInt64
	}
	return c.anchorSim.Add(time.Duration(scaled))
}

// reanchorLocked pins the current simulated value to the current system time.
func (c *Controller) reanchorLocked(sys time.Time) {
	c.anchorSim = c.nowLocked(sys)
	c.anchorSys = sys
}

// Now returns the current simulated time in UTC.
func (c *Controller) Now() time.Time {
	sys := c.clk.Now().UTC()
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.nowLocked(sys)
}

// SetNow sets the simulated time and returns the value that was stored.
// If the clock is synced it keeps advancing from t.
func (c *Controller) SetNow(t time.Time) time.Time {
	t = t.UTC()
	sys := c.clk.Now().UTC()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.anchorSim = t
	c.anchorSys = sys
	return t
}

// SyncToClock reports whether the simulated clock advances with the system clock.
// There may still be a constant offset between the two.
func (c *Controller) SyncToClock() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.synced
}

// SetSyncToClock freezes (false) or resumes (true) the simulated clock and
// returns its argument. Resuming continues from the frozen value, which
// usually leaves an offset against the system clock.
func (c *Controller) SetSyncToClock(sync bool) bool {
	sys := c.clk.Now().UTC()
	c.mu.Lock()
	defer c.mu.Unlock()
	if sync == c.synced {
		return sync
	}
	c.reanchorLocked(sys)
	c.synced = sync
	return sync
}

// TimeRate returns the simulated-to-system rate factor. It may be negative.
func (c *Controller) TimeRate() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rate
}

// SetTimeRate sets the rate factor and returns it. A zero rate is rejected
// with ErrZeroRate and leaves the clock untouched.
func (c *Controller) SetTimeRate(rate float64) (float64, error) {
	if err := ValidateRate(rate); err != nil {
		return c.TimeRate(), err
	}

	sys := c.clk.Now().UTC()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reanchorLocked(sys)
	c.rate = rate
	return rate, nil
}

// ValidateRate reports the error SetTimeRate would return for rate.
func ValidateRate(rate float64) error {
	if math.IsNaN(rate) || math.IsInf(rate, 0) {
		return ErrInvalidRate
	}
	if rate == 0 {
		return ErrZeroRate
	}
	return nil
}

// SyncTime locks the simulated clock onto the system clock: it turns syncing
// on and sets the offset between the two to exactly zero.
func (c *Controller) SyncTime() {
	sys := c.clk.Now().UTC()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.anchorSim = sys
	c.anchorSys = sys
	c.synced = true
}

// JNow returns the current simulated time as a Julian date.
func (c *Controller) JNow() float64 {
	return UTCToJulian(c.Now())
}

// Offset returns simulated minus system time.
func (c *Controller) Offset() time.Duration {
	sys := c.clk.Now().UTC()
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.nowLocked(sys).Sub(sys)
}

// Snapshot returns a consistent view of the controller.
func (c *Controller) Snapshot() State {
	sys := c.clk.Now().UTC()
	c.mu.RLock()
	now := c.nowLocked(sys)
	synced := c.synced
	rate := c.rate
	c.mu.RUnlock()

	return State{
		Now:    now,
		JNow:   UTCToJulian(now),
		Synced: synced,
		Rate:   rate,
		Offset: now.Sub(sys),
	}
}
