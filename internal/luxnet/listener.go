// Package luxnet receives photometric sensor frames over UDP and replays
// them from packet capture files. Both paths validate the raw datagrams
// and hand individual frames to a FrameSink; decoding and accumulation
// happen downstream.
package luxnet

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/fieldsense/lux.report/internal/monitoring"
	"github.com/fieldsense/lux.report/internal/photometer"
)

// FrameSink consumes validated sensor frames together with the time each
// one was captured.
type FrameSink interface {
	HandleFrame(frame [photometer.PacketSize]byte, captured time.Time) error
}

// FrameSinkFunc adapts a plain function to the FrameSink interface.
type FrameSinkFunc func(frame [photometer.PacketSize]byte, captured time.Time) error

// HandleFrame calls f.
func (f FrameSinkFunc) HandleFrame(frame [photometer.PacketSize]byte, captured time.Time) error {
	return f(frame, captured)
}

// PacketStatsInterface provides packet statistics management.
type PacketStatsInterface interface {
	AddPacket(bytes int)
	AddMalformed()
	AddFrames(count int)
	LogStats()
}

// UDPListener receives sensor frames from UDP datagrams. A datagram may
// carry a single frame or several concatenated frames; anything that is
// not a whole number of frames is counted as malformed and dropped.
type UDPListener struct {
	address     string
	rcvBuf      int
	logInterval time.Duration
	conn        UDPSocket
	factory     UDPSocketFactory
	stats       PacketStatsInterface
	sink        FrameSink
}

// UDPListenerConfig contains configuration options for the UDP listener.
type UDPListenerConfig struct {
	Address     string
	RcvBuf      int
	LogInterval time.Duration
	Stats       PacketStatsInterface
	Sink        FrameSink

	// SocketFactory is swapped for a mock in tests. Nil means real sockets.
	SocketFactory UDPSocketFactory
}

// NewUDPListener creates a new UDP listener with the provided configuration.
func NewUDPListener(config UDPListenerConfig) *UDPListener {
	// Provide a no-op stats implementation when none is supplied to avoid
	// nil pointer dereferences in the packet handling and logging paths.
	var stats PacketStatsInterface
	if config.Stats != nil {
		stats = config.Stats
	} else {
		stats = &noopStats{}
	}

	logInterval := config.LogInterval
	if logInterval == 0 {
		logInterval = time.Minute
	}

	factory := config.SocketFactory
	if factory == nil {
		factory = NewRealUDPSocketFactory()
	}

	return &UDPListener{
		address:     config.Address,
		rcvBuf:      config.RcvBuf,
		logInterval: logInterval,
		factory:     factory,
		stats:       stats,
		sink:        config.Sink,
	}
}

// noopStats is a PacketStatsInterface implementation that does nothing.
// It is used as a safe default when no stats collector is provided.
type noopStats struct{}

func (n *noopStats) AddPacket(bytes int) {}
func (n *noopStats) AddMalformed()       {}
func (n *noopStats) AddFrames(count int) {}
func (n *noopStats) LogStats()           {}

// Start begins listening for UDP packets and feeding frames to the sink.
// It blocks until the context is cancelled or the socket fails to open.
func (l *UDPListener) Start(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", l.address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := l.factory.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP address: %w", err)
	}
	l.conn = conn
	defer conn.Close()

	if l.rcvBuf > 0 {
		if err := conn.SetReadBuffer(l.rcvBuf); err != nil {
			monitoring.Logf("Warning: failed to set UDP receive buffer size to %d: %v", l.rcvBuf, err)
		}
	}

	monitoring.Logf("UDP listener started on %s", l.address)

	go l.startStatsLogging(ctx)

	// The sensor sends one frame per datagram; batched replays may pack
	// more, so leave some margin.
	buffer := make([]byte, 512)

	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("UDP listener stopping due to context cancellation")
			return ctx.Err()
		default:
			// Set read deadline to allow checking context cancellation
			if err := conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond)); err != nil {
				monitoring.Logf("Warning: failed to set read deadline: %v", err)
			}

			n, addr, err := conn.ReadFromUDP(buffer)
			if err != nil {
				if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
					continue // Continue on timeout to check context
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				monitoring.Logf("UDP read error: %v", err)
				continue
			}

			if err := l.handlePacket(buffer[:n], time.Now()); err != nil {
				monitoring.Logf("Error handling packet from %v: %v", addr, err)
			}
		}
	}
}

// startStatsLogging periodically logs receive statistics.
func (l *UDPListener) startStatsLogging(ctx context.Context) {
	// Trigger an initial stats report shortly after startup to avoid a
	// long silence on first-run. Then continue on the configured interval.
	select {
	case <-ctx.Done():
		return
	case <-time.After(2 * time.Second):
		l.stats.LogStats()
	}

	ticker := time.NewTicker(l.logInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.stats.LogStats()
		}
	}
}

// handlePacket splits a datagram into sensor frames and hands each one to
// the sink. Sink errors are logged without aborting the rest of the batch.
func (l *UDPListener) handlePacket(packet []byte, captured time.Time) error {
	l.stats.AddPacket(len(packet))

	frames, err := splitFrames(packet)
	if err != nil {
		l.stats.AddMalformed()
		monitoring.PacketsMalformed.Add(1)
		return err
	}

	l.stats.AddFrames(len(frames))
	monitoring.PacketsReceived.Add(int64(len(frames)))

	if l.sink == nil {
		return nil
	}

	for _, frame := range frames {
		if err := l.sink.HandleFrame(frame, captured); err != nil {
			monitoring.Logf("Frame handling failed: %v", err)
		}
	}
	return nil
}

// splitFrames validates that a payload is a whole number of sensor frames
// and returns them in wire order.
func splitFrames(payload []byte) ([][photometer.PacketSize]byte, error) {
	if len(payload) == 0 || len(payload)%photometer.PacketSize != 0 {
		return nil, fmt.Errorf("payload length %d is not a multiple of the %d-byte frame size",
			len(payload), photometer.PacketSize)
	}

	frames := make([][photometer.PacketSize]byte, len(payload)/photometer.PacketSize)
	for i := range frames {
		copy(frames[i][:], payload[i*photometer.PacketSize:])
	}
	return frames, nil
}

// LocalAddr reports the bound address once Start has opened the socket.
func (l *UDPListener) LocalAddr() net.Addr {
	if l.conn == nil {
		return nil
	}
	return l.conn.LocalAddr()
}

// Close closes the UDP listener and releases resources.
func (l *UDPListener) Close() error {
	if l.conn != nil {
		return l.conn.Close()
	}
	return nil
}
