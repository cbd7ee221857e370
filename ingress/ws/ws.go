// Package ws is the WebSocket ingress transport: stations and the PV
// inverter connect to this server and push telemetry frames, which are
// decoded and delivered to the control loop over a channel. It mirrors this
// codebase's other WebSocket surface, inverted from server-push to
// client-push.
package ws

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Telemetry is one decoded inbound frame. Exactly one of StationID/PV should
// be meaningful, selected by Kind.
type Telemetry struct {
	Kind             string  `json:"kind"` // "station" or "pv"
	StationID        int     `json:"station_id,omitempty"`
	ActualCurrentA   float64 `json:"actual_current_a,omitempty"`
	StatusRaw        string  `json:"status,omitempty"`
	VehicleConnected bool    `json:"vehicle_connected,omitempty"`
	PVSurplusW       float64 `json:"pv_surplus_w,omitempty"`
}

// Listener accepts inbound telemetry connections and makes decoded frames
// available on Readings.
type Listener struct {
	logger   *log.Logger
	upgrader websocket.Upgrader
	clients  sync.Map
	Readings chan Telemetry
}

// NewListener returns a Listener with a buffered readings channel.
func NewListener(logger *log.Logger) *Listener {
	return &Listener{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		Readings: make(chan Telemetry, 256),
	}
}

// Handler returns the http.HandlerFunc to mount at the ingress path.
func (l *Listener) Handler() http.HandlerFunc {
	return l.handle
}

func (l *Listener) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.logger.Printf("ws ingress: upgrade error: %v", err)
		return
	}
	l.clients.Store(conn, true)
	defer func() {
		l.clients.Delete(conn)
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				l.logger.Printf("ws ingress: read error: %v", err)
			}
			return
		}
		var t Telemetry
		if err := json.Unmarshal(data, &t); err != nil {
			l.logger.Printf("ws ingress: malformed frame: %v", err)
			continue
		}
		select {
		case l.Readings <- t:
		default:
			l.logger.Printf("ws ingress: readings channel full, dropping frame")
		}
	}
}

// ClientCount reports how many transports are currently connected.
func (l *Listener) ClientCount() int {
	count := 0
	l.clients.Range(func(_, _ any) bool {
		count++
		return true
	})
	return count
}

// ValidateKind reports whether a Telemetry's Kind is recognized.
func ValidateKind(kind string) error {
	switch kind {
	case "station", "pv":
		return nil
	default:
		return fmt.Errorf("ws ingress: unknown telemetry kind %q", kind)
	}
}
