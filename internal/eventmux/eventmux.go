// Package eventmux reads host events from a newline-delimited JSON stream
// and fans them out to any number of subscribers.
package eventmux

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"tailscale.com/tsweb"

	"github.com/banshee-data/radar.overlay/internal/monitoring"
	"github.com/banshee-data/radar.overlay/internal/scheduler"
	"github.com/banshee-data/radar.overlay/internal/timeutil"
)

// SubscriberBuffer is the channel capacity of each subscriber. Events for a
// subscriber whose buffer is full are dropped.
const SubscriberBuffer = 64

// wireEvent is one line of the host event stream, for example
// {"type":"area_changed","area":"1_1_town"}.
type wireEvent struct {
	Type string    `json:"type"`
	Area string    `json:"area,omitempty"`
	At   time.Time `json:"at,omitzero"`
}

// ParseEvent decodes one event line. Events without a timestamp are
// stamped with now.
func ParseEvent(line []byte, now time.Time) (scheduler.Event, error) {
	var w wireEvent
	if err := json.Unmarshal(line, &w); err != nil {
		return scheduler.Event{}, fmt.Errorf("malformed event %q: %w", line, err)
	}
	typ, err := scheduler.ParseEventType(w.Type)
	if err != nil {
		return scheduler.Event{}, err
	}
	at := w.At
	if at.IsZero() {
		at = now
	}
	return scheduler.Event{Type: typ, Area: w.Area, At: at}, nil
}

// FormatEvent encodes ev as one event line without the trailing newline.
func FormatEvent(ev scheduler.Event) ([]byte, error) {
	return json.Marshal(wireEvent{Type: ev.Type.String(), Area: ev.Area, At: ev.At})
}

// EventMux multiplexes one host event stream.
type EventMux struct {
	src          io.ReadCloser
	clock        timeutil.Clock
	subscribers  map[string]chan scheduler.Event
	subscriberMu sync.Mutex
	closing      bool
	closingMu    sync.Mutex
}

// New returns an EventMux reading from src. A nil clock uses wall time.
func New(src io.ReadCloser, clock timeutil.Clock) *EventMux {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &EventMux{
		src:         src,
		clock:       clock,
		subscribers: make(map[string]chan scheduler.Event),
	}
}

// Subscribe returns a new subscriber id and its event channel.
func (m *EventMux) Subscribe() (string, <-chan scheduler.Event) {
	id := uuid.NewString()
	ch := make(chan scheduler.Event, SubscriberBuffer)

	m.closingMu.Lock()
	defer m.closingMu.Unlock()
	if m.closing {
		close(ch)
		return id, ch
	}

	m.subscriberMu.Lock()
	m.subscribers[id] = ch
	m.subscriberMu.Unlock()
	return id, ch
}

// Unsubscribe closes and removes the subscriber with the given id.
func (m *EventMux) Unsubscribe(id string) {
	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	if ch, ok := m.subscribers[id]; ok {
		close(ch)
		delete(m.subscribers, id)
	}
}

// Publish delivers ev to every subscriber without blocking.
func (m *EventMux) Publish(ev scheduler.Event) {
	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	for id, ch := range m.subscribers {
		select {
		case ch <- ev:
		default:
			monitoring.Opsf("eventmux: subscriber %s is full, dropping %s", id, ev.Type)
		}
	}
}

// Monitor reads the stream until it ends, ctx is done or the mux is closed.
// Malformed lines and unknown event types are logged and skipped.
func (m *EventMux) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(m.src)

	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			select {
			case scanErrChan <- err:
			case <-ctx.Done():
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-scanErrChan:
			return err

		case line, ok := <-lineChan:
			if !ok {
				select {
				case err := <-scanErrChan:
					return err
				default:
					return nil
				}
			}
			m.closingMu.Lock()
			closing := m.closing
			m.closingMu.Unlock()
			if closing {
				return nil
			}

			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			ev, err := ParseEvent([]byte(line), m.clock.Now())
			if err != nil {
				monitoring.Opsf("eventmux: skipping line: %v", err)
				continue
			}
			monitoring.Tracef("eventmux: %s %q", ev.Type, ev.Area)
			m.Publish(ev)
		}
	}
}

// Close closes every subscriber channel and the underlying stream.
func (m *EventMux) Close() error {
	m.closingMu.Lock()
	m.closing = true
	m.closingMu.Unlock()

	m.subscriberMu.Lock()
	for id, ch := range m.subscribers {
		close(ch)
		delete(m.subscribers, id)
	}
	m.subscriberMu.Unlock()
	return m.src.Close()
}

// AttachAdminRoutes registers the event tail, publish and websocket ingest
// endpoints under /debug/ on mux. tsweb limits them to loopback and tailnet
// clients.
func (m *EventMux) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleSilentFunc("events/ws", m.serveWebsocket)

	debug.HandleSilentFunc("events/publish", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		typ, err := scheduler.ParseEventType(strings.TrimSpace(r.FormValue("type")))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		ev := scheduler.Event{Type: typ, Area: strings.TrimSpace(r.FormValue("area")), At: m.clock.Now()}
		m.Publish(ev)
		io.WriteString(w, fmt.Sprintf("Published %s", ev.Type))
	})

	// Server-Sent Events stream of every event seen by the mux.
	debug.HandleSilentFunc("events/tail", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")

		id, c := m.Subscribe()
		defer m.Unsubscribe(id)

		w.Write([]byte(": ping\n\n"))
		w.(http.Flusher).Flush()

		for {
			select {
			case ev, ok := <-c:
				if !ok {
					return
				}
				payload, err := FormatEvent(ev)
				if err != nil {
					return
				}
				if _, err := w.Write([]byte(fmt.Sprintf("data: %s\n\n", payload))); err != nil {
					return
				}
				w.(http.Flusher).Flush()
			case <-r.Context().Done():
				return
			}
		}
	})
}
