package luxnet

import (
	"context"
	"fmt"
	"time"

	"github.com/fieldsense/lux.report/internal/monitoring"
)

// ReplayConfig configures capture replay.
type ReplayConfig struct {
	// UDPPort filters the capture to sensor traffic on this port. Zero
	// disables filtering.
	UDPPort int

	// Speed controls pacing relative to the capture timestamps: 1.0
	// replays in real time, 2.0 at double speed. Zero or negative
	// replays as fast as possible.
	Speed float64

	// StartSec skips capture content before this offset, in seconds from
	// the first packet.
	StartSec float64

	// DurationSec limits how much capture time to replay after the
	// offset. Zero or negative replays to the end of the file.
	DurationSec float64

	Stats PacketStatsInterface
	Sink  FrameSink
}

// ReplayPCAP feeds sensor frames from a capture file into the configured
// sink. Frames are stamped with their capture timestamps, so a replayed
// file reproduces the original evidence timeline regardless of pacing.
func ReplayPCAP(ctx context.Context, factory PCAPReaderFactory, pcapFile string, cfg ReplayConfig) error {
	stats := cfg.Stats
	if stats == nil {
		stats = &noopStats{}
	}

	reader := factory.NewReader()
	if err := reader.Open(pcapFile); err != nil {
		return fmt.Errorf("failed to open PCAP file %s: %w", pcapFile, err)
	}
	defer reader.Close()

	if cfg.UDPPort > 0 {
		filterStr := fmt.Sprintf("udp port %d", cfg.UDPPort)
		if err := reader.SetBPFFilter(filterStr); err != nil {
			return fmt.Errorf("failed to set BPF filter %q: %w", filterStr, err)
		}
		monitoring.Logf("PCAP BPF filter set: %s", filterStr)
	}

	packetCount := 0
	frameCount := 0
	startTime := time.Now()
	var firstCaptureTime time.Time
	var lastCaptureTime time.Time

	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("PCAP replay stopping due to context cancellation (processed %d packets)", packetCount)
			return ctx.Err()
		default:
		}

		pkt, err := reader.NextPacket()
		if err != nil {
			return fmt.Errorf("failed to read PCAP packet: %w", err)
		}
		if pkt == nil {
			// End of capture file
			elapsed := time.Since(startTime)
			monitoring.Logf("PCAP replay complete: %d packets (%d frames) in %v", packetCount, frameCount, elapsed)
			return nil
		}

		packetCount++

		// Apply the replay window against capture timestamps. Captures
		// without timestamps are always in the window.
		if !pkt.Timestamp.IsZero() {
			if firstCaptureTime.IsZero() {
				firstCaptureTime = pkt.Timestamp
			}
			offset := pkt.Timestamp.Sub(firstCaptureTime).Seconds()
			if offset < cfg.StartSec {
				continue
			}
			if cfg.DurationSec > 0 && offset > cfg.StartSec+cfg.DurationSec {
				elapsed := time.Since(startTime)
				monitoring.Logf("PCAP replay window complete: %d packets (%d frames) in %v", packetCount-1, frameCount, elapsed)
				return nil
			}

			// Pace against capture timing when real-time replay is requested.
			if cfg.Speed > 0 {
				if !lastCaptureTime.IsZero() {
					delay := time.Duration(float64(pkt.Timestamp.Sub(lastCaptureTime)) / cfg.Speed)
					if delay > 0 {
						select {
						case <-ctx.Done():
							return ctx.Err()
						case <-time.After(delay):
						}
					}
				}
				lastCaptureTime = pkt.Timestamp
			}
		}

		stats.AddPacket(len(pkt.Data))

		frames, err := splitFrames(pkt.Data)
		if err != nil {
			stats.AddMalformed()
			monitoring.PacketsMalformed.Add(1)
			monitoring.Logf("PCAP packet %d malformed: %v", packetCount, err)
			continue
		}

		stats.AddFrames(len(frames))
		monitoring.PacketsReceived.Add(int64(len(frames)))
		frameCount += len(frames)

		captured := pkt.Timestamp
		if captured.IsZero() {
			captured = time.Now()
		}

		if cfg.Sink == nil {
			continue
		}
		for _, frame := range frames {
			if err := cfg.Sink.HandleFrame(frame, captured); err != nil {
				monitoring.Logf("Error handling frame from PCAP packet %d: %v", packetCount, err)
			}
		}

		// Log progress periodically
		if packetCount%10000 == 0 {
			elapsed := time.Since(startTime)
			monitoring.Logf("PCAP progress: %d packets in %v (%.0f pkt/s)",
				packetCount, elapsed, float64(packetCount)/elapsed.Seconds())
		}
	}
}
