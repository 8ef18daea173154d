package monitoring

import "expvar"

// Counters for the sensor packet path. They are incremented from the feed
// loop, so callers rely on expvar.Int being safe for concurrent Add.
var (
	PacketsReceived  = counter("luxmeter_packets_received")
	PacketsMalformed = counter("luxmeter_packets_malformed")
	SamplesStored    = counter("luxmeter_samples_stored")
	SamplesCleared   = counter("luxmeter_samples_cleared")
	EstimatesServed  = counter("luxmeter_estimates_served")
	EstimatesFlushed = counter("luxmeter_estimates_flushed")
)

var counters = map[string]*expvar.Int{}

func counter(name string) *expvar.Int {
	c := expvar.NewInt(name)
	counters[name] = c
	return c
}

// Snapshot returns the current counter values keyed by expvar name. The
// stats API serves this map directly.
func Snapshot() map[string]int64 {
	out := make(map[string]int64, len(counters))
	for name, c := range counters {
		out[name] = c.Value()
	}
	return out
}
