package luxnet

import (
	"fmt"
	"sync"
	"time"

	"github.com/fieldsense/lux.report/internal/monitoring"
)

// PacketStats tracks receive statistics with thread-safe operations.
type PacketStats struct {
	mu             sync.Mutex
	packetCount    int64
	byteCount      int64
	malformedCount int64
	frameCount     int64
	lastReset      time.Time
}

// NewPacketStats creates a new PacketStats instance.
func NewPacketStats() *PacketStats {
	return &PacketStats{
		lastReset: time.Now(),
	}
}

// AddPacket increments datagram count and byte count.
func (ps *PacketStats) AddPacket(bytes int) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.packetCount++
	ps.byteCount += int64(bytes)
}

// AddMalformed increments the malformed datagram count.
func (ps *PacketStats) AddMalformed() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.malformedCount++
}

// AddFrames increments the extracted frame count.
func (ps *PacketStats) AddFrames(count int) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.frameCount += int64(count)
}

// GetAndReset returns current stats and resets counters.
func (ps *PacketStats) GetAndReset() (packets, bytes, malformed, frames int64, duration time.Duration) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	now := time.Now()
	duration = now.Sub(ps.lastReset)
	packets = ps.packetCount
	bytes = ps.byteCount
	malformed = ps.malformedCount
	frames = ps.frameCount

	ps.packetCount = 0
	ps.byteCount = 0
	ps.malformedCount = 0
	ps.frameCount = 0
	ps.lastReset = now

	return
}

// LogStats logs receive rates since the previous report. Intervals with
// no traffic produce no output.
func (ps *PacketStats) LogStats() {
	packets, bytes, malformed, frames, duration := ps.GetAndReset()
	if packets == 0 && malformed == 0 {
		return
	}

	packetsPerSec := float64(packets) / duration.Seconds()
	framesPerSec := float64(frames) / duration.Seconds()

	logMsg := fmt.Sprintf("Sensor UDP stats (/sec): %.1f datagrams, %.1f frames (%d bytes)",
		packetsPerSec, framesPerSec, bytes)
	if malformed > 0 {
		logMsg += fmt.Sprintf(", %d malformed", malformed)
	}

	monitoring.Logf("%s", logMsg)
}
