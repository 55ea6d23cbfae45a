package eventmux

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/banshee-data/radar.overlay/internal/monitoring"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsWriteTimeout = 5 * time.Second
	wsMaxMessage   = 64 * 1024
)

// wsAck answers every websocket message.
type wsAck struct {
	Published string `json:"published,omitempty"`
	Error     string `json:"error,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4 * 1024,
	WriteBufferSize: 4 * 1024,
}

// serveWebsocket accepts event lines as websocket text messages and
// publishes each one. Every message is acknowledged.
func (m *EventMux) serveWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	conn.SetReadLimit(wsMaxMessage)

	for {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				monitoring.Diagf("eventmux: websocket %s: %v", r.RemoteAddr, err)
			}
			return
		}

		var ack wsAck
		if ev, err := ParseEvent(msg, m.clock.Now()); err != nil {
			ack.Error = err.Error()
		} else {
			m.Publish(ev)
			ack.Published = ev.Type.String()
		}
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(ack); err != nil {
			return
		}
	}
}
