package packetmux

import (
	"context"
	"net/http"
	"sync"
)

// DisabledPacketMux is a no-op PacketMux implementation used when the sensor
// hardware is absent (feed_source "none"). It allows the server and admin
// routes to run without a real device. Subscribers are tracked so their
// channels can be deterministically closed on Unsubscribe() or Close(),
// allowing readers to unblock predictably during shutdown.
type DisabledPacketMux struct {
	mu          sync.Mutex
	subscribers map[string]chan Frame
	closing     bool
}

func NewDisabledPacketMux() *DisabledPacketMux {
	return &DisabledPacketMux{
		subscribers: make(map[string]chan Frame),
	}
}

func (d *DisabledPacketMux) Subscribe() (string, chan Frame) {
	id := randomID()
	ch := make(chan Frame)

	d.mu.Lock()
	if d.closing {
		// If already closing, return a closed channel so callers don't block.
		close(ch)
		d.mu.Unlock()
		return id, ch
	}
	d.subscribers[id] = ch
	d.mu.Unlock()
	return id, ch
}

func (d *DisabledPacketMux) Unsubscribe(id string) {
	d.mu.Lock()
	if ch, ok := d.subscribers[id]; ok {
		close(ch)
		delete(d.subscribers, id)
	}
	d.mu.Unlock()
}

func (d *DisabledPacketMux) Monitor(ctx context.Context) error { <-ctx.Done(); return ctx.Err() }

func (d *DisabledPacketMux) Close() error {
	d.mu.Lock()
	if d.closing {
		d.mu.Unlock()
		return nil
	}
	d.closing = true
	// Close all subscriber channels
	for id, ch := range d.subscribers {
		close(ch)
		delete(d.subscribers, id)
	}
	d.mu.Unlock()
	return nil
}

func (d *DisabledPacketMux) AttachAdminRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/debug/sensor-disabled", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("sensor disabled"))
	})
}
