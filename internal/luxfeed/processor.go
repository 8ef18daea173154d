// Package luxfeed folds raw sensor frames into the running illuminance
// estimate and persists the evidence trail. The Processor sits between
// the transports (serial mux, UDP listener, capture replay) and the
// database: every frame updates the in-memory meter immediately, while
// point estimates are written out on a timer by the EstimateFlusher.
package luxfeed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fieldsense/lux.report/internal/luxdb"
	"github.com/fieldsense/lux.report/internal/monitoring"
	"github.com/fieldsense/lux.report/internal/packetmux"
	"github.com/fieldsense/lux.report/internal/photometer"
	"github.com/fieldsense/lux.report/internal/timeutil"
)

// Store is the subset of the database layer the feed path writes to.
// *luxdb.DB implements this interface.
type Store interface {
	RecordSample(rec luxdb.SampleRecord) error
	RecordEstimate(rec luxdb.EstimateRecord) error
}

// Processor decodes sensor frames, feeds them to a photometer meter and
// mirrors each one into the store. Wall-clock capture times are mapped
// onto the meter's monotonic timebase so that host clock steps cannot
// reorder evidence.
//
// All methods are safe for concurrent use; the meter is guarded by a
// single mutex shared with the estimate accessors.
type Processor struct {
	clock     timeutil.Clock
	timebase  *timeutil.Timebase
	epochUnix float64
	store     Store

	mu        sync.Mutex
	meter     *photometer.Meter
	sessionID string
}

// ProcessorConfig contains configuration for a Processor.
type ProcessorConfig struct {
	// Store receives one row per frame plus the flushed estimates.
	// Nil keeps the processor in-memory only.
	Store Store
	// SessionID tags persisted rows with a recording session. Empty
	// leaves rows unattached.
	SessionID string
	// Clock is swapped for a mock in tests. Nil means the real clock.
	Clock timeutil.Clock
}

// NewProcessor creates a Processor. The monotonic timebase is anchored
// at the clock's current time, so construct the Processor before the
// first frame arrives.
func NewProcessor(cfg ProcessorConfig) *Processor {
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	tb := timeutil.NewTimebase(clock)
	return &Processor{
		clock:     clock,
		timebase:  tb,
		epochUnix: float64(tb.Epoch().UnixNano()) / 1e9,
		store:     cfg.Store,
		meter:     photometer.NewMeter(),
		sessionID: cfg.SessionID,
	}
}

// Timebase exposes the processor's monotonic timebase so tools can
// translate between wall-clock and meter seconds.
func (p *Processor) Timebase() *timeutil.Timebase { return p.timebase }

// HandleFrame folds one sensor frame observed at the captured time into
// the meter and records it. Implements luxnet.FrameSink. The meter is
// updated even when the store write fails, so transient database errors
// do not lose live evidence.
func (p *Processor) HandleFrame(frame [photometer.PacketSize]byte, captured time.Time) error {
	raw := photometer.RawFromBytes(frame)
	s := raw.At(p.timebase.At(captured))

	p.mu.Lock()
	var wiped int
	if s.Clear {
		wiped = p.meter.Size()
	}
	p.meter.Consume(s)
	session := p.sessionID
	p.mu.Unlock()

	monitoring.SamplesStored.Add(1)
	if wiped > 0 {
		monitoring.SamplesCleared.Add(int64(wiped))
	}

	if p.store == nil {
		return nil
	}
	rec := luxdb.NewSampleRecord(session, s, raw, unixSeconds(captured), p.epochUnix)
	if err := p.store.RecordSample(rec); err != nil {
		return fmt.Errorf("failed to record sample: %w", err)
	}
	return nil
}

// Run consumes frames from a packetmux subscription channel until the
// channel closes or the context is cancelled. The mux does not carry
// capture timestamps, so frames are stamped with their arrival time.
// Store errors are logged rather than returned; a database hiccup must
// not stall the feed.
func (p *Processor) Run(ctx context.Context, frames <-chan packetmux.Frame) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-frames:
			if !ok {
				return nil
			}
			if err := p.HandleFrame(frame, p.clock.Now()); err != nil {
				monitoring.Logf("luxfeed: %v", err)
			}
		}
	}
}

// Estimate is a point-in-time reading of the accumulated evidence.
type Estimate struct {
	Time        time.Time `json:"time"`
	Lux         float64   `json:"lux"`
	LowerLux    float64   `json:"lower_lux"`
	UpperLux    float64   `json:"upper_lux"`
	SampleCount int       `json:"sample_count"`
}

// EstimateNow returns the estimate at the current clock time.
func (p *Processor) EstimateNow() Estimate {
	return p.EstimateAt(p.clock.Now())
}

// EstimateAt returns the estimate at an arbitrary wall-clock time,
// considering only evidence still valid then.
func (p *Processor) EstimateAt(t time.Time) Estimate {
	at := p.timebase.At(t)
	p.mu.Lock()
	defer p.mu.Unlock()
	return Estimate{
		Time:        t,
		Lux:         p.meter.EstimateAt(at),
		LowerLux:    p.meter.LowerAt(at),
		UpperLux:    p.meter.UpperAt(at),
		SampleCount: p.meter.SizeAt(at),
	}
}

// Bound is one live evidence sample translated to wall-clock time.
type Bound struct {
	Direction  string    `json:"direction"`
	Lux        float64   `json:"lux"`
	Confidence uint8     `json:"confidence"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
}

// Bounds returns the live floor and ceiling samples for display, each
// ordered by expiry time.
func (p *Processor) Bounds() (lower, upper []Bound) {
	p.mu.Lock()
	lo, up := p.meter.Bounds()
	p.mu.Unlock()
	return p.toBounds(lo), p.toBounds(up)
}

func (p *Processor) toBounds(samples []photometer.Sample) []Bound {
	out := make([]Bound, 0, len(samples))
	for _, s := range samples {
		out = append(out, Bound{
			Direction:  s.Direction.String(),
			Lux:        s.Lux,
			Confidence: s.Confidence,
			Start:      p.timebase.Time(s.Start),
			End:        p.timebase.Time(s.End),
		})
	}
	return out
}

// Size returns the number of live samples in the meter. Expiry is lazy,
// so this includes samples that have run out but were not pruned yet.
func (p *Processor) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.meter.Size()
}

// SetSession retargets subsequent rows at a different recording
// session. An empty id detaches them.
func (p *Processor) SetSession(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessionID = id
}

// Session returns the current recording session id.
func (p *Processor) Session() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sessionID
}

// FlushEstimate writes the current estimate to the store. Implements
// EstimateRecorder for the flusher. A nil store makes it a no-op.
func (p *Processor) FlushEstimate() error {
	if p.store == nil {
		return nil
	}
	now := p.clock.Now()
	est := p.EstimateAt(now)
	rec := luxdb.EstimateRecord{
		SessionID:   p.Session(),
		WriteUnix:   unixSeconds(now),
		EstimateLux: est.Lux,
		LowerLux:    est.LowerLux,
		UpperLux:    est.UpperLux,
		SampleCount: est.SampleCount,
	}
	if err := p.store.RecordEstimate(rec); err != nil {
		return fmt.Errorf("failed to record estimate: %w", err)
	}
	monitoring.EstimatesFlushed.Add(1)
	return nil
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
