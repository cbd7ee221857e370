// Package ws is the WebSocket dispatch transport: it holds one connection
// per station (dialed outbound to the station's own small control server)
// and writes setpoint commands to it as JSON frames.
package ws

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// CommandFrame is the wire representation of a dispatched command.
type CommandFrame struct {
	StationID int    `json:"station_id"`
	Command   string `json:"command"` // "set_current", "pause", or "release"
	AmpsA     int    `json:"amps_a,omitempty"`
}

// Dialer dials and caches one outbound connection per station address,
// redialing lazily on the next write after a failure.
type Dialer struct {
	logger *log.Logger
	mu     sync.Mutex
	conns  map[int]*websocket.Conn
	dial   websocket.Dialer
}

// NewDialer returns a Dialer with a default handshake timeout.
func NewDialer(logger *log.Logger) *Dialer {
	return &Dialer{
		logger: logger,
		conns:  make(map[int]*websocket.Conn),
		dial:   websocket.Dialer{HandshakeTimeout: 5 * time.Second},
	}
}

// WriteCommand sends a command frame to stationID at url, dialing a fresh
// connection if none is cached or the cached one fails to write.
func (d *Dialer) WriteCommand(stationID int, url string, frame CommandFrame) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	conn, ok := d.conns[stationID]
	if !ok {
		c, err := d.connect(url)
		if err != nil {
			return fmt.Errorf("ws dispatch: dialing station %d: %w", stationID, err)
		}
		conn = c
		d.conns[stationID] = conn
	}

	if err := conn.WriteJSON(frame); err != nil {
		conn.Close()
		delete(d.conns, stationID)

		c, derr := d.connect(url)
		if derr != nil {
			return fmt.Errorf("ws dispatch: writing to station %d after redial failure: %w", stationID, err)
		}
		if werr := c.WriteJSON(frame); werr != nil {
			c.Close()
			return fmt.Errorf("ws dispatch: writing to station %d after redial: %w", stationID, werr)
		}
		d.conns[stationID] = c
	}
	return nil
}

func (d *Dialer) connect(url string) (*websocket.Conn, error) {
	conn, _, err := d.dial.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Close closes every cached connection.
func (d *Dialer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, conn := range d.conns {
		conn.Close()
		delete(d.conns, id)
	}
}

// Marshal encodes a station id, command name and amps as a JSON CommandFrame. Kept here
// rather than in core/dispatch so the core package stays free of transport
// concerns.
func Marshal(stationID int, commandType string, amps int) ([]byte, error) {
	return json.Marshal(CommandFrame{StationID: stationID, Command: commandType, AmpsA: amps})
}
