package packetmux

import (
	"bytes"
	"io"
	"sync"
	"time"

	"github.com/fieldsense/lux.report/internal/photometer"
)

// MockPacketPort implements PacketPorter for testing
type MockPacketPort struct {
	io.ReadCloser
}

// DefaultMockFrames returns a short scripted scenario for the mock sensor: a
// floor and ceiling pair, a tighter pair at higher confidence, then a
// clearing sample. Cycled on a 500ms cadence it produces a slowly wandering
// estimate, which is enough to exercise the whole pipeline without hardware.
func DefaultMockFrames() []Frame {
	return []Frame{
		photometer.PackRaw(1, false, 13, photometer.Lower, 9).Bytes(),  // floor 55070 lx, 8.448s
		photometer.PackRaw(1, false, 64, photometer.Upper, 9).Bytes(),  // ceiling 74960 lx, 8.448s
		photometer.PackRaw(2, false, 26, photometer.Lower, 8).Bytes(),  // floor 60140 lx, 4.224s
		photometer.PackRaw(2, false, 51, photometer.Upper, 8).Bytes(),  // ceiling 69890 lx, 4.224s
		photometer.PackRaw(0, true, 0, photometer.Lower, 5).Bytes(),    // clear
		photometer.PackRaw(3, false, -20, photometer.Lower, 9).Bytes(), // floor 42200 lx, 8.448s
		photometer.PackRaw(3, false, 30, photometer.Upper, 9).Bytes(),  // ceiling 61700 lx, 8.448s
	}
}

// NewMockPacketMux creates a PacketMux instance backed by a mock sensor that
// cycles through the given frames on a fixed cadence. Passing no frames uses
// DefaultMockFrames.
func NewMockPacketMux(frames []Frame) *PacketMux[*MockPacketPort] {
	if len(frames) == 0 {
		frames = DefaultMockFrames()
	}
	r, w := io.Pipe()

	mockPort := &MockPacketPort{ReadCloser: r}

	// generate frames periodically to simulate sensor input
	go func() {
		defer w.Close()
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		i := 0
		for range ticker.C {
			frame := frames[i%len(frames)]
			i++
			if _, err := w.Write(frame[:]); err != nil {
				// reader side closed
				return
			}
		}
	}()

	return NewPacketMux(mockPort)
}

// TestablePacketPort implements PacketPorter with configurable behaviour for
// testing. It provides fine-grained control over reads, errors, and latency.
type TestablePacketPort struct {
	mu sync.Mutex

	// ReadBuffer holds data to be returned by Read calls
	ReadBuffer *bytes.Buffer

	// ReadLatency adds a delay to each Read call
	ReadLatency time.Duration

	// ReadError is returned by the next Read call if set
	ReadError error

	// CloseError is returned by Close if set
	CloseError error

	// Closed indicates whether Close was called
	Closed bool

	// ReadCalls records the number of Read calls
	ReadCalls int

	// ReadTimeout is the current read timeout
	ReadTimeout time.Duration

	// BlockReads causes Read to block until data is added or Close is called
	BlockReads bool

	// readCond is used to signal blocked readers
	readCond *sync.Cond
}

// NewTestablePacketPort creates a new TestablePacketPort for testing.
func NewTestablePacketPort() *TestablePacketPort {
	tpp := &TestablePacketPort{
		ReadBuffer: bytes.NewBuffer(nil),
	}
	tpp.readCond = sync.NewCond(&tpp.mu)
	return tpp
}

// Read reads from the read buffer, optionally simulating latency and errors.
func (t *TestablePacketPort) Read(p []byte) (n int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadCalls++

	if t.Closed {
		return 0, io.EOF
	}

	if t.ReadError != nil {
		err := t.ReadError
		t.ReadError = nil
		return 0, err
	}

	if t.ReadLatency > 0 {
		t.mu.Unlock()
		time.Sleep(t.ReadLatency)
		t.mu.Lock()
	}

	// If blocking reads are enabled and buffer is empty, wait for data
	if t.BlockReads && t.ReadBuffer.Len() == 0 {
		for !t.Closed && t.ReadBuffer.Len() == 0 {
			t.readCond.Wait()
		}
		if t.Closed {
			return 0, io.EOF
		}
	}

	return t.ReadBuffer.Read(p)
}

// Close marks the port as closed.
func (t *TestablePacketPort) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.Closed = true
	t.readCond.Broadcast() // Wake up any blocked readers

	return t.CloseError
}

// SetReadTimeout implements TimeoutPacketPorter.
func (t *TestablePacketPort) SetReadTimeout(timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadTimeout = timeout
	return nil
}

// AddReadData adds data to be returned by subsequent Read calls.
func (t *TestablePacketPort) AddReadData(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadBuffer.Write(data)
	t.readCond.Signal() // Wake up a blocked reader
}

// Reset clears the buffer and resets state.
func (t *TestablePacketPort) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadBuffer.Reset()
	t.ReadCalls = 0
	t.Closed = false
	t.ReadError = nil
	t.CloseError = nil
	t.ReadLatency = 0
}

// MockPacketPortFactory implements PacketPortFactory for testing.
type MockPacketPortFactory struct {
	mu sync.Mutex

	// Port is the port to return from Open
	Port PacketPorter

	// Error is returned by Open if set
	Error error

	// OpenCalls records all Open calls
	OpenCalls []MockOpenCall
}

// MockOpenCall records details of an Open call.
type MockOpenCall struct {
	Path string
	Opts PortOptions
}

// NewMockPacketPortFactory creates a new MockPacketPortFactory.
func NewMockPacketPortFactory(port PacketPorter) *MockPacketPortFactory {
	return &MockPacketPortFactory{Port: port}
}

// Open returns the configured port or error.
func (f *MockPacketPortFactory) Open(path string, opts PortOptions) (PacketPorter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.OpenCalls = append(f.OpenCalls, MockOpenCall{
		Path: path,
		Opts: opts,
	})

	if f.Error != nil {
		return nil, f.Error
	}

	return f.Port, nil
}

// LastCall returns the most recent Open call, or nil if none.
func (f *MockPacketPortFactory) LastCall() *MockOpenCall {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.OpenCalls) == 0 {
		return nil
	}
	return &f.OpenCalls[len(f.OpenCalls)-1]
}

// Reset clears all recorded calls.
func (f *MockPacketPortFactory) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.OpenCalls = nil
	f.Error = nil
}
