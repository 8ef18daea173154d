package packetmux

import (
	"io"
	"time"
)

// PacketPorter defines the minimal interface needed for a sensor stream.
// The photometric sensor is a broadcast-only device, so the stream is
// read-only. This abstraction enables unit testing without real hardware.
type PacketPorter interface {
	io.Reader
	io.Closer
}

// TimeoutPacketPorter extends PacketPorter with timeout capabilities.
// This is an optional interface that sensor streams may implement.
type TimeoutPacketPorter interface {
	PacketPorter
	// SetReadTimeout sets the read timeout for the stream.
	SetReadTimeout(timeout time.Duration) error
}

// PacketPortFactory defines an interface for creating sensor streams.
// This abstraction enables dependency injection of port creation.
type PacketPortFactory interface {
	// Open opens a sensor stream at the specified path with the given options.
	Open(path string, opts PortOptions) (PacketPorter, error)
}
