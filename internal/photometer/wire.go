// Package photometer decodes evidence packets from a photometric sensor
// and accumulates them into a running estimate of ambient illuminance.
//
// The sensor never reports illuminance directly. Each 2-byte packet
// asserts either a floor (lower bound) or a ceiling (upper bound) on the
// true level, tagged with a confidence class and a validity horizon. The
// Meter collects these assertions, expires them as their horizons pass,
// arbitrates contradictions, and folds the survivors into a point
// estimate.
package photometer

import (
	"encoding/binary"
	"fmt"
)

// Wire format: each packet is one 16-bit little-endian word, fields
// packed LSB first.
//
//	bits 0-1    confidence, 0 (lowest) to 3 (highest)
//	bit  2      clear flag: discard all prior evidence before applying
//	bits 3-10   quantized value, signed 8-bit two's complement
//	bit  11     direction: 0 = lower bound, 1 = upper bound
//	bits 12-15  horizon exponent, power-of-two duration class
//
// There is no framing, checksum, or version field; the link is assumed
// reliable and synchronized out of band.
const (
	// PacketSize is the fixed wire size of one sensor packet in bytes.
	PacketSize = 2

	confidenceMask = 0x3
	clearBit       = 1 << 2
	valueShift     = 3
	directionBit   = 1 << 11
	horizonShift   = 12
	horizonMask    = 0xF
)

// Physical conversion constants for the quantized fields.
const (
	// LuxMidpoint is the illuminance encoded by a zero quantized value.
	LuxMidpoint = 50e3
	// LuxStep is the illuminance represented by one quantization step.
	LuxStep = 390
	// HorizonBase is the validity duration in seconds at horizon
	// exponent zero. Exponent 15 gives about 540.7 s.
	HorizonBase = 0.0165
)

// RawSample is one sensor packet held as its 16-bit wire word. Every bit
// pattern is valid; decoding cannot fail.
type RawSample uint16

// RawFromBytes interprets two wire bytes as a little-endian packet word.
func RawFromBytes(data [PacketSize]byte) RawSample {
	return RawSample(binary.LittleEndian.Uint16(data[:]))
}

// Bytes returns the packet in wire order.
func (r RawSample) Bytes() [PacketSize]byte {
	var b [PacketSize]byte
	binary.LittleEndian.PutUint16(b[:], uint16(r))
	return b
}

// PackRaw assembles a packet word from its fields. Confidence and the
// horizon exponent are masked to their field widths.
func PackRaw(confidence uint8, clear bool, value int8, dir Direction, horizonExp uint8) RawSample {
	w := uint16(confidence) & confidenceMask
	if clear {
		w |= clearBit
	}
	w |= uint16(uint8(value)) << valueShift
	if dir == Upper {
		w |= directionBit
	}
	w |= (uint16(horizonExp) & horizonMask) << horizonShift
	return RawSample(w)
}

// Confidence returns the 2-bit trust level, 0 to 3.
func (r RawSample) Confidence() uint8 { return uint8(r & confidenceMask) }

// ShouldClear reports whether the packet instructs the receiver to
// discard all accumulated evidence before applying it.
func (r RawSample) ShouldClear() bool { return r&clearBit != 0 }

// Quantized returns the signed 8-bit quantized value field.
func (r RawSample) Quantized() int8 { return int8(r >> valueShift) }

// Direction reports whether the packet asserts a lower or upper bound.
func (r RawSample) Direction() Direction {
	if r&directionBit != 0 {
		return Upper
	}
	return Lower
}

// HorizonExponent returns the 4-bit validity duration exponent.
func (r RawSample) HorizonExponent() uint8 { return uint8(r>>horizonShift) & horizonMask }

// Lux returns the asserted bound in lux.
func (r RawSample) Lux() float64 {
	return LuxMidpoint + LuxStep*float64(r.Quantized())
}

// HorizonSeconds returns the validity duration in seconds.
func (r RawSample) HorizonSeconds() float64 {
	return HorizonBase * float64(uint32(1)<<r.HorizonExponent())
}

// String renders the decoded fields for logs and debug output.
func (r RawSample) String() string {
	clear := 0
	if r.ShouldClear() {
		clear = 1
	}
	return fmt.Sprintf("conf=%d clear=%d value=%g %s horizon=%gs",
		r.Confidence(), clear, r.Lux(), r.Direction(), r.HorizonSeconds())
}
