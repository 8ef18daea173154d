package luxnet

import (
	"bytes"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/fieldsense/lux.report/internal/photometer"
)

func TestMockUDPSocket_ReadPackets(t *testing.T) {
	sender := &net.UDPAddr{IP: net.ParseIP("192.168.1.50"), Port: 40000}
	socket := NewMockUDPSocket([]MockUDPPacket{
		{Data: []byte{0x82, 0x57}, Addr: sender},
		{Data: []byte{0x30, 0x51}, Addr: sender},
	})

	buf := make([]byte, 512)

	n, addr, err := socket.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("first read: %v", err)
	}
	if n != 2 || !bytes.Equal(buf[:n], []byte{0x82, 0x57}) {
		t.Errorf("first read: expected 8257, got %x", buf[:n])
	}
	if addr != sender {
		t.Errorf("first read: expected sender addr, got %v", addr)
	}

	n, _, err = socket.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("second read: %v", err)
	}
	if !bytes.Equal(buf[:n], []byte{0x30, 0x51}) {
		t.Errorf("second read: expected 3051, got %x", buf[:n])
	}
}

func TestMockUDPSocket_TimeoutWhenExhausted(t *testing.T) {
	socket := NewMockUDPSocket(nil)

	_, _, err := socket.ReadFromUDP(make([]byte, 512))
	if err == nil {
		t.Fatal("expected timeout error")
	}
	netErr, ok := err.(net.Error)
	if !ok {
		t.Fatalf("expected net.Error, got %T", err)
	}
	if !netErr.Timeout() {
		t.Error("expected Timeout() to be true")
	}
}

func TestMockUDPSocket_QueueFrame(t *testing.T) {
	socket := NewMockUDPSocket(nil)
	raw := photometer.PackRaw(2, false, -16, photometer.Lower, 5)
	socket.QueueFrame(raw)

	buf := make([]byte, 512)
	n, addr, err := socket.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("ReadFromUDP: %v", err)
	}
	if n != photometer.PacketSize {
		t.Fatalf("expected %d bytes, got %d", photometer.PacketSize, n)
	}
	want := raw.Bytes()
	if !bytes.Equal(buf[:n], want[:]) {
		t.Errorf("expected %x, got %x", want, buf[:n])
	}
	if addr == nil {
		t.Error("expected a sender address")
	}
}

func TestMockUDPSocket_ReadError_ConsumedOnce(t *testing.T) {
	socket := NewMockUDPSocket([]MockUDPPacket{
		{Data: []byte{0x82, 0x57}},
	})
	socket.ReadError = errors.New("connection reset")

	_, _, err := socket.ReadFromUDP(make([]byte, 512))
	if err == nil || err.Error() != "connection reset" {
		t.Fatalf("expected injected error, got %v", err)
	}

	// The error is consumed; the queued packet is still readable.
	n, _, err := socket.ReadFromUDP(make([]byte, 512))
	if err != nil {
		t.Fatalf("second read: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 bytes, got %d", n)
	}
}

func TestMockUDPSocket_Closed(t *testing.T) {
	socket := NewMockUDPSocket(nil)

	if err := socket.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !socket.Closed {
		t.Error("expected Closed to be true")
	}

	_, _, err := socket.ReadFromUDP(make([]byte, 512))
	if !errors.Is(err, net.ErrClosed) {
		t.Errorf("expected net.ErrClosed, got %v", err)
	}
}

func TestMockUDPSocket_SetReadBuffer(t *testing.T) {
	socket := NewMockUDPSocket(nil)

	if err := socket.SetReadBuffer(65536); err != nil {
		t.Fatalf("SetReadBuffer: %v", err)
	}
	if socket.ReadBufferSize != 65536 {
		t.Errorf("expected 65536, got %d", socket.ReadBufferSize)
	}

	socket.SetReadBufferError = errors.New("no buffers")
	if err := socket.SetReadBuffer(1); err == nil {
		t.Error("expected injected SetReadBuffer error")
	}
}

func TestMockUDPSocket_SetReadDeadline(t *testing.T) {
	socket := NewMockUDPSocket(nil)

	deadline := time.Now().Add(100 * time.Millisecond)
	if err := socket.SetReadDeadline(deadline); err != nil {
		t.Fatalf("SetReadDeadline: %v", err)
	}
	if !socket.ReadDeadline.Equal(deadline) {
		t.Errorf("expected deadline %v, got %v", deadline, socket.ReadDeadline)
	}
}

func TestMockUDPSocket_LocalAddr(t *testing.T) {
	socket := NewMockUDPSocket(nil)

	addr, ok := socket.LocalAddr().(*net.UDPAddr)
	if !ok {
		t.Fatalf("expected *net.UDPAddr, got %T", socket.LocalAddr())
	}
	if addr.Port != 8089 {
		t.Errorf("expected default port 8089, got %d", addr.Port)
	}
}

func TestMockUDPSocket_Reset(t *testing.T) {
	socket := NewMockUDPSocket([]MockUDPPacket{
		{Data: []byte{0x82, 0x57}},
	})
	socket.ReadFromUDP(make([]byte, 512))
	socket.SetReadBuffer(1024)
	socket.Close()

	socket.Reset()

	if socket.ReadIndex != 0 || socket.Closed || socket.ReadBufferSize != 0 {
		t.Error("Reset did not clear socket state")
	}

	// Packets survive a reset and can be read again.
	n, _, err := socket.ReadFromUDP(make([]byte, 512))
	if err != nil {
		t.Fatalf("read after reset: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 bytes after reset, got %d", n)
	}
}

func TestMockUDPSocketFactory(t *testing.T) {
	socket := NewMockUDPSocket(nil)
	factory := NewMockUDPSocketFactory(socket)

	laddr := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 8089}
	got, err := factory.ListenUDP("udp", laddr)
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	if got != socket {
		t.Error("expected the configured socket back")
	}
	if len(factory.ListenCalls) != 1 {
		t.Fatalf("expected 1 recorded call, got %d", len(factory.ListenCalls))
	}
	if factory.ListenCalls[0].Network != "udp" {
		t.Errorf("expected network 'udp', got %q", factory.ListenCalls[0].Network)
	}
	if factory.ListenCalls[0].Addr.Port != 8089 {
		t.Errorf("expected port 8089, got %d", factory.ListenCalls[0].Addr.Port)
	}
}

func TestMockUDPSocketFactory_Error(t *testing.T) {
	factory := NewMockUDPSocketFactory(nil)
	factory.Error = errors.New("address in use")

	_, err := factory.ListenUDP("udp", &net.UDPAddr{Port: 8089})
	if err == nil {
		t.Fatal("expected injected error")
	}
	// Calls are recorded even when they fail.
	if len(factory.ListenCalls) != 1 {
		t.Errorf("expected 1 recorded call, got %d", len(factory.ListenCalls))
	}
}

func TestRealUDPSocketFactory_Loopback(t *testing.T) {
	factory := NewRealUDPSocketFactory()

	laddr := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0}
	socket, err := factory.ListenUDP("udp", laddr)
	if err != nil {
		t.Fatalf("ListenUDP on loopback: %v", err)
	}
	defer socket.Close()

	addr, ok := socket.LocalAddr().(*net.UDPAddr)
	if !ok {
		t.Fatalf("expected *net.UDPAddr, got %T", socket.LocalAddr())
	}
	if addr.Port == 0 {
		t.Error("expected a bound ephemeral port")
	}

	if err := socket.SetReadBuffer(65536); err != nil {
		t.Errorf("SetReadBuffer: %v", err)
	}
	if err := socket.SetReadDeadline(time.Now().Add(10 * time.Millisecond)); err != nil {
		t.Errorf("SetReadDeadline: %v", err)
	}

	// With no traffic the deadline should trip with a timeout error.
	_, _, err = socket.ReadFromUDP(make([]byte, 512))
	if netErr, ok := err.(net.Error); !ok || !netErr.Timeout() {
		t.Errorf("expected timeout, got %v", err)
	}
}
