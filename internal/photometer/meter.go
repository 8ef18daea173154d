package photometer

import "sort"

// Meter accumulates bound assertions from one photometric sensor and
// folds them into a point estimate of ambient illuminance.
//
// Live samples sit in two lists, one per direction, each ordered by End
// ascending with duplicate keys allowed. Expiry is lazy: Consume prunes
// entries whose validity has ended before storing a new one; nothing
// runs on a timer. No stored sample subsumes another stored sample in
// the same direction; redundant arrivals are rejected at insertion.
//
// A Meter is not safe for concurrent use. Consume is the sole mutator
// and callers serialize it against reads; EstimateAt works on a filtered
// view and never touches live state.
type Meter struct {
	lower []Sample
	upper []Sample
}

// NewMeter returns an empty meter.
func NewMeter() *Meter { return &Meter{} }

// Size returns the number of live samples across both directions.
func (m *Meter) Size() int { return len(m.lower) + len(m.upper) }

// Consume folds one sample into the meter. A clearing sample wipes all
// accumulated evidence first and is then stored itself; any other
// sample first expires entries whose validity ended at or before its
// observation time. A sample already subsumed by a stored entry in its
// direction is dropped.
func (m *Meter) Consume(s Sample) {
	if s.Clear {
		m.lower = m.lower[:0]
		m.upper = m.upper[:0]
	} else {
		m.lower = expireThrough(m.lower, s.Start)
		m.upper = expireThrough(m.upper, s.Start)
	}

	target := &m.lower
	if s.Direction == Upper {
		target = &m.upper
	}
	for _, o := range *target {
		if o.Subsumes(s) {
			return
		}
	}
	*target = insertByEnd(*target, s)
}

// ConsumeRaw decodes a wire packet observed at now and consumes it.
func (m *Meter) ConsumeRaw(now float64, data [PacketSize]byte) {
	m.Consume(Decode(now, data))
}

// Lower returns the effective lower bound in lux: the tightest stored
// floor not overridden by any ceiling, or the universal lower bound
// when nothing survives.
func (m *Meter) Lower() float64 { return m.effectiveLower().Lux }

// Upper returns the effective upper bound in lux, symmetric to Lower.
func (m *Meter) Upper() float64 { return m.effectiveUpper().Lux }

// Estimate returns the midpoint of the effective bounds over whatever
// is currently stored. It does not expire entries; callers are expected
// to invoke it right after a Consume at the same timestamp, or to use
// EstimateAt when querying an arbitrary time.
func (m *Meter) Estimate() float64 {
	return 0.5 * (m.Lower() + m.Upper())
}

// EstimateAt returns the estimate as of time t, considering only
// samples still valid then. Live state is untouched, so repeated
// historical queries do not disturb the meter or each other.
func (m *Meter) EstimateAt(t float64) float64 {
	snap := m.validAfter(t)
	return snap.Estimate()
}

// LowerAt returns the effective lower bound as of time t, like
// EstimateAt without touching live state.
func (m *Meter) LowerAt(t float64) float64 {
	snap := m.validAfter(t)
	return snap.Lower()
}

// UpperAt returns the effective upper bound as of time t.
func (m *Meter) UpperAt(t float64) float64 {
	snap := m.validAfter(t)
	return snap.Upper()
}

// SizeAt returns the number of samples still valid at time t. Expiry
// is lazy, so this can be smaller than Size until the next Consume.
func (m *Meter) SizeAt(t float64) int {
	snap := m.validAfter(t)
	return snap.Size()
}

// Bounds returns copies of the live sample lists, each ordered by
// expiry time. Intended for diagnostics and display.
func (m *Meter) Bounds() (lower, upper []Sample) {
	lower = append([]Sample(nil), m.lower...)
	upper = append([]Sample(nil), m.upper...)
	return lower, upper
}

func (m *Meter) effectiveLower() Sample {
	best := UniversalLower
	// Pairwise override scan; both lists stay small in practice.
	for _, l := range m.lower {
		if overriddenByAny(m.upper, l) {
			continue
		}
		// Narrow by preferring the greater floor.
		if l.Lux >= best.Lux {
			best = l
		}
	}
	return best
}

func (m *Meter) effectiveUpper() Sample {
	best := UniversalUpper
	for _, u := range m.upper {
		if overriddenByAny(m.lower, u) {
			continue
		}
		// Narrow by preferring the lesser ceiling.
		if u.Lux <= best.Lux {
			best = u
		}
	}
	return best
}

func overriddenByAny(opposing []Sample, s Sample) bool {
	for _, o := range opposing {
		if o.Overrides(s) {
			return true
		}
	}
	return false
}

// validAfter returns a read-only view holding only samples whose
// validity extends beyond t.
func (m *Meter) validAfter(t float64) Meter {
	li := sort.Search(len(m.lower), func(i int) bool { return m.lower[i].End > t })
	ui := sort.Search(len(m.upper), func(i int) bool { return m.upper[i].End > t })
	return Meter{lower: m.lower[li:], upper: m.upper[ui:]}
}

// expireThrough drops every sample whose half-open validity interval has
// ended by t, meaning End <= t. An entry expires at the instant equal to
// its own End, not before.
func expireThrough(list []Sample, t float64) []Sample {
	i := sort.Search(len(list), func(i int) bool { return list[i].End > t })
	return list[i:]
}

// insertByEnd inserts s after any stored samples sharing its End, so
// arrival order is preserved among equal keys.
func insertByEnd(list []Sample, s Sample) []Sample {
	i := sort.Search(len(list), func(i int) bool { return list[i].End > s.End })
	list = append(list, Sample{})
	copy(list[i+1:], list[i:])
	list[i] = s
	return list
}
