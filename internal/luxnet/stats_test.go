package luxnet

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/fieldsense/lux.report/internal/monitoring"
)

func TestPacketStats_GetAndReset(t *testing.T) {
	stats := NewPacketStats()

	stats.AddPacket(2)
	stats.AddPacket(6)
	stats.AddMalformed()
	stats.AddFrames(4)

	time.Sleep(10 * time.Millisecond)

	packets, bytes, malformed, frames, duration := stats.GetAndReset()
	if packets != 2 {
		t.Errorf("expected 2 packets, got %d", packets)
	}
	if bytes != 8 {
		t.Errorf("expected 8 bytes, got %d", bytes)
	}
	if malformed != 1 {
		t.Errorf("expected 1 malformed, got %d", malformed)
	}
	if frames != 4 {
		t.Errorf("expected 4 frames, got %d", frames)
	}
	if duration <= 0 {
		t.Errorf("expected positive duration, got %v", duration)
	}

	// Counters reset after read.
	packets, bytes, malformed, frames, _ = stats.GetAndReset()
	if packets != 0 || bytes != 0 || malformed != 0 || frames != 0 {
		t.Errorf("expected zeroed counters, got %d/%d/%d/%d", packets, bytes, malformed, frames)
	}
}

func TestPacketStats_LogStats(t *testing.T) {
	var logged []string
	monitoring.SetLogger(func(format string, v ...interface{}) {
		logged = append(logged, fmt.Sprintf(format, v...))
	})
	defer monitoring.SetLogger(nil)

	stats := NewPacketStats()

	// Quiet interval: nothing to report.
	stats.LogStats()
	if len(logged) != 0 {
		t.Fatalf("expected no log for quiet interval, got %v", logged)
	}

	stats.AddPacket(2)
	stats.AddFrames(1)
	stats.LogStats()
	if len(logged) != 1 {
		t.Fatalf("expected 1 log line, got %d", len(logged))
	}
	if !strings.Contains(logged[0], "datagrams") {
		t.Errorf("expected datagram rate in log, got %q", logged[0])
	}
	if strings.Contains(logged[0], "malformed") {
		t.Errorf("expected no malformed note, got %q", logged[0])
	}

	// Malformed traffic is called out even with no valid packets.
	stats.AddMalformed()
	stats.LogStats()
	if len(logged) != 2 {
		t.Fatalf("expected 2 log lines, got %d", len(logged))
	}
	if !strings.Contains(logged[1], "1 malformed") {
		t.Errorf("expected malformed note, got %q", logged[1])
	}
}

func TestPacketStats_Concurrent(t *testing.T) {
	stats := NewPacketStats()

	done := make(chan struct{})
	for i := 0; i < 4; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				stats.AddPacket(2)
				stats.AddFrames(1)
			}
			done <- struct{}{}
		}()
	}
	for i := 0; i < 4; i++ {
		<-done
	}

	packets, bytes, _, frames, _ := stats.GetAndReset()
	if packets != 400 {
		t.Errorf("expected 400 packets, got %d", packets)
	}
	if bytes != 800 {
		t.Errorf("expected 800 bytes, got %d", bytes)
	}
	if frames != 400 {
		t.Errorf("expected 400 frames, got %d", frames)
	}
}
