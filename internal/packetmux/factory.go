package packetmux

import (
	"go.bug.st/serial"
)

// NewRealPacketMux creates a PacketMux instance backed by a real serial port
// at the given path using the provided serial options.
func NewRealPacketMux(path string, opts PortOptions) (*PacketMux[serial.Port], error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, err
	}

	return NewPacketMux[serial.Port](port), nil
}

// RealPacketPortFactory opens real serial ports via go.bug.st/serial.
type RealPacketPortFactory struct{}

// NewRealPacketPortFactory creates a factory for real serial ports.
func NewRealPacketPortFactory() *RealPacketPortFactory {
	return &RealPacketPortFactory{}
}

// Open opens the sensor port at path with the given options.
func (f *RealPacketPortFactory) Open(path string, opts PortOptions) (PacketPorter, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	return serial.Open(path, mode)
}
