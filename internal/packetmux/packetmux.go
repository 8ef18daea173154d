// Packetmux provides an abstraction over the photometric sensor's byte
// stream with the ability for multiple clients to subscribe to the fixed-size
// evidence packets the sensor emits.
package packetmux

import (
	"bytes"
	"context"
	crand "crypto/rand"
	"embed"
	"encoding/hex"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"sync"
	"time"

	"tailscale.com/tsweb"

	"github.com/fieldsense/lux.report/internal/monitoring"
	"github.com/fieldsense/lux.report/internal/photometer"
)

//go:embed templates/*
var adminTemplateFS embed.FS

var packetsTemplate = template.Must(template.ParseFS(adminTemplateFS, "templates/packets.html.tmpl"))

// recentPackets bounds the ring of packets kept for the admin dump.
const recentPackets = 64

// Frame is one sensor evidence packet as read off the wire.
type Frame = [photometer.PacketSize]byte

// RecentPacket is a received frame together with its arrival time, kept in
// the recent ring for the admin packets page.
type RecentPacket struct {
	At   time.Time
	Data Frame
}

// PacketMux is a generic packet multiplexer that allows multiple clients to
// subscribe to frames from a single sensor stream.
type PacketMux[T PacketPorter] struct {
	port         T
	subscribers  map[string]chan Frame
	subscriberMu sync.Mutex
	closing      bool
	closingMu    sync.Mutex

	recent   []RecentPacket
	recentMu sync.Mutex
}

// PacketMuxInterface defines the interface for the PacketMux type.
type PacketMuxInterface interface {
	// Subscribe creates a new channel for receiving frames from the sensor
	// stream. The channel ID is used to identify the unique channel when
	// unsubscribing.
	Subscribe() (string, chan Frame)
	// Unsubscribe removes a channel from the list of subscribers.
	Unsubscribe(string)
	// Monitor reads frames from the sensor stream and sends them to the
	// appropriate channels.
	Monitor(context.Context) error
	// Close closes all subscribed channels and closes the sensor stream.
	Close() error

	// AttachAdminRoutes attaches admin debugging endpoints to the given HTTP
	// mux served at /debug/. These routes are accessible only over
	// localhost/via Tailscale and are not publicly accessible.
	AttachAdminRoutes(*http.ServeMux)
}

// NewPacketMux creates a PacketMux instance backed by the given sensor
// stream.
func NewPacketMux[T PacketPorter](port T) *PacketMux[T] {
	return &PacketMux[T]{
		port:         port,
		subscribers:  make(map[string]chan Frame),
		subscriberMu: sync.Mutex{},
	}
}

// randomID generates a random channel ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

func (s *PacketMux[T]) Subscribe() (string, chan Frame) {
	id := randomID()
	ch := make(chan Frame)
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	s.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber from the packet mux.
func (s *PacketMux[T]) Unsubscribe(id string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

// Monitor reads fixed-size frames from the sensor stream and fans them out
// to subscribers.
func (s *PacketMux[T]) Monitor(ctx context.Context) error {
	frameChan := make(chan Frame)
	readErrChan := make(chan error, 1)

	// start a goroutine to read frames from the port & send them to
	// frameChan, and any read error to readErrChan.
	//
	// the blocking ReadFull will not interfere with our outer loop awaiting
	// frames & context cancellation.
	go func() {
		defer close(frameChan)
		for {
			var frame Frame
			if _, err := io.ReadFull(s.port, frame[:]); err != nil {
				// EOF between frames is a clean end of stream. An
				// unexpected EOF means the stream died mid-frame.
				if err == io.EOF {
					return
				}
				select {
				case readErrChan <- err:
				case <-ctx.Done():
				}
				return
			}
			select {
			case frameChan <- frame:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		// check if the context is done
		// and exit the loop if so
		case <-ctx.Done():
			return ctx.Err()

		case err := <-readErrChan:
			// a read error during Close is the port being torn down,
			// not a failure worth reporting
			s.closingMu.Lock()
			closing := s.closing
			s.closingMu.Unlock()
			if closing {
				return nil
			}
			return err

		case frame, ok := <-frameChan:
			// if the channel is closed, we're done reading from the sensor
			if !ok {
				return nil
			}
			// Check if we're closing
			s.closingMu.Lock()
			if s.closing {
				s.closingMu.Unlock()
				return nil
			}
			s.closingMu.Unlock()

			monitoring.PacketsReceived.Add(1)
			s.remember(frame)

			// otherwise take a read lock on the subscriber map
			s.subscriberMu.Lock()
			for _, ch := range s.subscribers {
				select {
				case ch <- frame:
				default:
					// if the channel is full/blocking skip so as not to block the outer loop
				}
			}
			s.subscriberMu.Unlock()
		}
	}
}

func (s *PacketMux[T]) Close() error {
	s.closingMu.Lock()
	s.closing = true
	s.closingMu.Unlock()

	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	return s.port.Close()
}

func (s *PacketMux[T]) remember(frame Frame) {
	s.recentMu.Lock()
	defer s.recentMu.Unlock()
	s.recent = append(s.recent, RecentPacket{At: time.Now(), Data: frame})
	if len(s.recent) > recentPackets {
		s.recent = s.recent[len(s.recent)-recentPackets:]
	}
}

// Recent returns a copy of the most recently observed packets, oldest first.
func (s *PacketMux[T]) Recent() []RecentPacket {
	s.recentMu.Lock()
	defer s.recentMu.Unlock()
	out := make([]RecentPacket, len(s.recent))
	copy(out, s.recent)
	return out
}

// packetRow is the view model for one row of the admin packets page.
type packetRow struct {
	At      string
	Hex     string
	Decoded string
}

func (s *PacketMux[T]) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	// Table of recently received packets plus a live tail, using the two
	// API endpoints below.
	debug.HandleFunc("packets", "recently received sensor packets", func(w http.ResponseWriter, r *http.Request) {
		recent := s.Recent()
		rows := make([]packetRow, 0, len(recent))
		for _, p := range recent {
			rows = append(rows, packetRow{
				At:      p.At.Format(time.RFC3339Nano),
				Hex:     fmt.Sprintf("%x", p.Data),
				Decoded: photometer.RawFromBytes(p.Data).String(),
			})
		}
		buf := bytes.NewBuffer(nil)
		if err := packetsTemplate.Execute(buf, map[string]any{"Packets": rows}); err != nil {
			http.Error(w, "Failed to render template", http.StatusInternalServerError)
			return
		}
		io.Copy(w, buf)
	})

	// API endpoint to issue Server-Side Events (SSE) in response to frames
	// coming from the sensor stream.
	debug.HandleSilentFunc("tail", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

		id, c := s.Subscribe()
		defer s.Unsubscribe(id)

		// Send initial ping to establish connection
		w.Write([]byte(": ping\n\n"))
		w.(http.Flusher).Flush()

		for {
			select {
			case frame, ok := <-c:
				if !ok {
					// Channel closed, exit gracefully
					return
				}
				payload := fmt.Sprintf("%x %s", frame, photometer.RawFromBytes(frame))
				_, err := w.Write([]byte(fmt.Sprintf("data: %s\n\n", payload)))
				if err != nil {
					return
				}
				w.(http.Flusher).Flush()
			case <-r.Context().Done():
				return
			}
		}
	})

	debug.HandleSilentFunc("tail.js", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/javascript")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		// serve tail.js from adminTemplateFS
		f, err := adminTemplateFS.Open("templates/tail.js")
		if err != nil {
			http.Error(w, "Failed to open tail.js", http.StatusInternalServerError)
			return
		}
		defer f.Close()
		io.Copy(w, f)
	})
}
