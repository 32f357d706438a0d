// Package clock implements the engine's monotonic simulated clock
// (spec §4 C11, §9 "replace module-level singletons / global mutable
// clock"). It is an explicit object passed to the engine at construction,
// not a package-level global.
package clock

// Driver advances a monotonic nanosecond clock from incoming data
// timestamps and stamps every emitted event. Time can only move forward;
// an attempt to set it backward is a programmer error (spec §5 ordering
// guarantee: ClockDriver is set to t before any processing for t).
type Driver struct {
	nowNs int64
}

func New() *Driver {
	return &Driver{}
}

// Now returns the current simulated time in nanoseconds.
func (d *Driver) Now() int64 {
	return d.nowNs
}

// Advance sets the clock to t. t must be >= the current time; callers
// (engine.Process, engine.ProcessTick/Bar/OrderBook) are responsible for
// only ever advancing with monotonically non-decreasing timestamps drawn
// from the replayed data stream.
func (d *Driver) Advance(t int64) {
	if t < d.nowNs {
		panic("clock: time may not move backward")
	}
	d.nowNs = t
}

// Reset returns the clock to zero (spec §6, engine.Reset()).
func (d *Driver) Reset() {
	d.nowNs = 0
}
