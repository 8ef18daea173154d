package luxnet

import (
	"time"

	"github.com/fieldsense/lux.report/internal/photometer"
)

// PCAPPacket represents a single UDP payload extracted from a capture
// file, stamped with the time it was captured.
type PCAPPacket struct {
	Data      []byte
	Timestamp time.Time
}

// PCAPReader provides an interface for reading packet capture files.
// This abstraction enables testing replay logic without libpcap or
// capture fixtures on disk.
type PCAPReader interface {
	// Open opens the named capture file.
	Open(filename string) error

	// SetBPFFilter restricts subsequent reads to packets matching the
	// filter expression.
	SetBPFFilter(filter string) error

	// NextPacket returns the next UDP payload from the capture. It
	// returns (nil, nil) at end of file.
	NextPacket() (*PCAPPacket, error)

	// Close releases capture resources.
	Close()

	// LinkType reports the capture's link layer type.
	LinkType() int
}

// PCAPReaderFactory creates PCAPReader instances.
type PCAPReaderFactory interface {
	NewReader() PCAPReader
}

// MockPCAPReader implements PCAPReader for testing.
type MockPCAPReader struct {
	// Packets holds the payloads to return from NextPacket.
	Packets []*PCAPPacket
	// ReadIndex tracks the current position in Packets.
	ReadIndex int
	// OpenError is returned by Open if set.
	OpenError error
	// FilterError is returned by SetBPFFilter if set.
	FilterError error
	// OpenedFile records the filename passed to Open.
	OpenedFile string
	// AppliedFilter records the expression passed to SetBPFFilter.
	AppliedFilter string
	// Closed indicates whether Close was called.
	Closed bool
	// MockLinkType is returned by LinkType.
	MockLinkType int
}

// NewMockPCAPReader creates a MockPCAPReader reporting an Ethernet link.
func NewMockPCAPReader() *MockPCAPReader {
	return &MockPCAPReader{MockLinkType: 1}
}

// Open records the filename, or fails with OpenError.
func (m *MockPCAPReader) Open(filename string) error {
	if m.OpenError != nil {
		return m.OpenError
	}
	m.OpenedFile = filename
	return nil
}

// SetBPFFilter records the filter expression, or fails with FilterError.
func (m *MockPCAPReader) SetBPFFilter(filter string) error {
	if m.FilterError != nil {
		return m.FilterError
	}
	m.AppliedFilter = filter
	return nil
}

// NextPacket returns the next queued packet, or (nil, nil) once the
// queue is exhausted.
func (m *MockPCAPReader) NextPacket() (*PCAPPacket, error) {
	if m.ReadIndex >= len(m.Packets) {
		return nil, nil
	}
	pkt := m.Packets[m.ReadIndex]
	m.ReadIndex++
	return pkt, nil
}

// Close marks the reader as closed.
func (m *MockPCAPReader) Close() {
	m.Closed = true
}

// LinkType returns the configured mock link type.
func (m *MockPCAPReader) LinkType() int {
	return m.MockLinkType
}

// AddPacket queues a raw payload with the given capture timestamp.
func (m *MockPCAPReader) AddPacket(data []byte, captured time.Time) {
	m.Packets = append(m.Packets, &PCAPPacket{Data: data, Timestamp: captured})
}

// AddFrame queues a payload carrying a single encoded sensor frame.
func (m *MockPCAPReader) AddFrame(raw photometer.RawSample, captured time.Time) {
	b := raw.Bytes()
	m.AddPacket(b[:], captured)
}

// Reset clears recorded state so the reader can be reused.
func (m *MockPCAPReader) Reset() {
	m.Packets = nil
	m.ReadIndex = 0
	m.OpenError = nil
	m.FilterError = nil
	m.OpenedFile = ""
	m.AppliedFilter = ""
	m.Closed = false
}

// MockPCAPReaderFactory implements PCAPReaderFactory for testing.
type MockPCAPReaderFactory struct {
	// Reader is returned by every NewReader call.
	Reader *MockPCAPReader
	// CreateCalls counts NewReader invocations.
	CreateCalls int
}

// NewMockPCAPReaderFactory creates a factory returning the given reader.
func NewMockPCAPReaderFactory(reader *MockPCAPReader) *MockPCAPReaderFactory {
	return &MockPCAPReaderFactory{Reader: reader}
}

// NewReader returns the configured mock reader.
func (f *MockPCAPReaderFactory) NewReader() PCAPReader {
	f.CreateCalls++
	return f.Reader
}
