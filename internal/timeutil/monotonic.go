package timeutil

import "time"

// Timebase converts between wall-clock instants and the float64
// monotonic-seconds timestamps carried on decoded sensor packets. The
// epoch is fixed at construction, so Seconds readings from one Timebase
// are mutually comparable and strictly ordered by the underlying Clock.
type Timebase struct {
	clock Clock
	epoch time.Time
}

// NewTimebase returns a Timebase with its epoch at the clock's current
// time.
func NewTimebase(clock Clock) *Timebase {
	return &Timebase{clock: clock, epoch: clock.Now()}
}

// Seconds returns the seconds elapsed since the epoch.
func (tb *Timebase) Seconds() float64 {
	return tb.clock.Since(tb.epoch).Seconds()
}

// At converts a wall-clock instant to seconds on this timebase.
func (tb *Timebase) At(t time.Time) float64 {
	return t.Sub(tb.epoch).Seconds()
}

// Time converts a seconds reading back to a wall-clock instant, for
// display and persistence.
func (tb *Timebase) Time(sec float64) time.Time {
	return tb.epoch.Add(time.Duration(sec * float64(time.Second)))
}

// Epoch returns the wall-clock instant of second zero.
func (tb *Timebase) Epoch() time.Time { return tb.epoch }
