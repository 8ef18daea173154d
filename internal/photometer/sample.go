package photometer

import "math"

// Direction classifies which side of the illuminance range a sample
// constrains.
type Direction uint8

const (
	// Lower marks a sample asserting the illuminance is at least Lux.
	Lower Direction = iota
	// Upper marks a sample asserting the illuminance is at most Lux.
	Upper
)

func (d Direction) String() string {
	if d == Upper {
		return "upper"
	}
	return "lower"
}

// Sample is one decoded bound assertion. It is valid over the half-open
// interval [Start, End): at the instant End the assertion has expired.
// Samples are immutable once constructed.
type Sample struct {
	Start      float64   // observation time, monotonic seconds
	End        float64   // expiry time: Start plus the decoded horizon
	Direction  Direction // which bound the sample asserts
	Lux        float64   // asserted bound in lux
	Clear      bool      // discard all prior evidence before applying
	Confidence uint8     // trust level, 0 (lowest) to 3 (highest)
}

// Universal bounds are the identity elements of the folds: a floor below
// and a ceiling above every encodable level, at the lowest confidence,
// valid forever. They are never stored in a Meter; with no live evidence
// the estimate settles at their midpoint, 50000 lx.
var (
	UniversalLower = Sample{Start: -math.MaxFloat64, End: math.MaxFloat64, Direction: Lower, Lux: 0}
	UniversalUpper = Sample{Start: -math.MaxFloat64, End: math.MaxFloat64, Direction: Upper, Lux: 100e3}
)

// Decode expands a wire packet observed at now into a Sample. It is
// total: every 16-bit pattern yields a well-defined Sample.
func Decode(now float64, data [PacketSize]byte) Sample {
	return RawFromBytes(data).At(now)
}

// At expands the packet word into a Sample observed at the given time.
func (r RawSample) At(now float64) Sample {
	return Sample{
		Start:      now,
		End:        now + r.HorizonSeconds(),
		Direction:  r.Direction(),
		Lux:        r.Lux(),
		Clear:      r.ShouldClear(),
		Confidence: r.Confidence(),
	}
}

// Raw re-encodes the sample to its wire word. The mapping is lossy: Lux
// snaps to the nearest 390 lx step and the horizon to the nearest
// power-of-two duration class, so decode(Raw()) reproduces the sample
// only to within one quantization step.
func (s Sample) Raw() RawSample {
	value := int16(math.Round((s.Lux - LuxMidpoint) / LuxStep))
	exp := int16(math.Round(math.Log2((s.End - s.Start) / HorizonBase)))
	return PackRaw(s.Confidence, s.Clear, int8(value), s.Direction, uint8(exp))
}

// Bytes returns the sample re-encoded in wire order.
func (s Sample) Bytes() [PacketSize]byte { return s.Raw().Bytes() }

// Conflicts reports whether s and o assert a mutually impossible range:
// one claims a floor strictly above the other's ceiling. Samples in the
// same direction never conflict.
func (s Sample) Conflicts(o Sample) bool {
	switch {
	case s.Direction == o.Direction:
		return false
	case s.Direction == Upper:
		return s.Lux < o.Lux
	default:
		return s.Lux > o.Lux
	}
}

// Subsumes reports whether s makes o redundant: same direction, valid at
// least as long, and at least as tight a bound. A subsumed sample adds
// no information and is dropped at insertion.
func (s Sample) Subsumes(o Sample) bool {
	if s.Direction != o.Direction || s.End < o.End {
		return false
	}
	if s.Direction == Upper {
		return s.Lux <= o.Lux
	}
	return s.Lux >= o.Lux
}

// Overrides reports whether s wins a contradiction against o: the
// samples conflict and s carries higher confidence, or equal confidence
// and an earlier observation. The later, no-more-confident contradictory
// reading is treated as noise.
func (s Sample) Overrides(o Sample) bool {
	if !s.Conflicts(o) {
		return false
	}
	return s.Confidence > o.Confidence ||
		(s.Confidence == o.Confidence && s.Start < o.Start)
}
