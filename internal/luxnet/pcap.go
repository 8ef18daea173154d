//go:build pcap
// +build pcap

package luxnet

import (
	"fmt"
	"io"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
)

// GopacketReader reads capture files through libpcap. It is only
// available when building with the 'pcap' build tag.
type GopacketReader struct {
	handle *pcap.Handle
	source *gopacket.PacketSource
}

// NewRealPCAPReaderFactory returns a factory producing libpcap-backed
// readers.
func NewRealPCAPReaderFactory() PCAPReaderFactory {
	return &gopacketReaderFactory{}
}

type gopacketReaderFactory struct{}

func (f *gopacketReaderFactory) NewReader() PCAPReader {
	return &GopacketReader{}
}

// Open opens the named capture file.
func (r *GopacketReader) Open(filename string) error {
	handle, err := pcap.OpenOffline(filename)
	if err != nil {
		return fmt.Errorf("failed to open PCAP file %s: %w", filename, err)
	}
	r.handle = handle
	r.source = gopacket.NewPacketSource(handle, handle.LinkType())
	return nil
}

// SetBPFFilter applies a BPF filter to the open capture.
func (r *GopacketReader) SetBPFFilter(filter string) error {
	if r.handle == nil {
		return fmt.Errorf("capture not open")
	}
	return r.handle.SetBPFFilter(filter)
}

// NextPacket returns the UDP payload of the next captured packet, or
// (nil, nil) at end of file. Non-UDP and empty packets are skipped.
func (r *GopacketReader) NextPacket() (*PCAPPacket, error) {
	if r.source == nil {
		return nil, fmt.Errorf("capture not open")
	}

	for {
		packet, err := r.source.NextPacket()
		if err == io.EOF {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}

		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue // Skip non-UDP packets (shouldn't happen with BPF filter)
		}
		udp, ok := udpLayer.(*layers.UDP)
		if !ok || len(udp.Payload) == 0 {
			continue
		}

		return &PCAPPacket{
			Data:      udp.Payload,
			Timestamp: packet.Metadata().Timestamp,
		}, nil
	}
}

// Close releases the capture handle.
func (r *GopacketReader) Close() {
	if r.handle != nil {
		r.handle.Close()
		r.handle = nil
		r.source = nil
	}
}

// LinkType reports the link layer type of the open capture.
func (r *GopacketReader) LinkType() int {
	if r.handle == nil {
		return 0
	}
	return int(r.handle.LinkType())
}
