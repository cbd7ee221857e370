// Package server exposes the operator-facing HTTP and WebSocket surface:
// a point-in-time status summary, a push feed of the same, and endpoints to
// adjust mode, tunables, and the enabled flag. Its shape mirrors this
// codebase's own WebServer.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sixdouglas/suncalc"

	"github.com/devskill-org/pv-load-manager/core/clock"
	"github.com/devskill-org/pv-load-manager/core/control"
	"github.com/devskill-org/pv-load-manager/core/pv"
	"github.com/devskill-org/pv-load-manager/core/station"
)

// SunInfo is the instantaneous (non-forecast) solar position summary. It is
// reported for operator convenience only and never feeds the allocation
// engine.
type SunInfo struct {
	SolarAltitudeDeg float64 `json:"solar_altitude_deg"`
	Sunrise          string  `json:"sunrise"`
	Sunset           string  `json:"sunset"`
}

// StationSummary is one station's operator-facing status.
type StationSummary struct {
	ID                int     `json:"id"`
	State             string  `json:"state"`
	ActualCurrentA    float64 `json:"actual_current_a"`
	LastAllocationA   float64 `json:"last_allocation_a"`
	VehicleConnected  bool    `json:"vehicle_connected"`
	LastSetpointSentA *int    `json:"last_setpoint_sent_a,omitempty"`
}

// StatusResponse is the full operator status summary.
type StatusResponse struct {
	Timestamp  string           `json:"timestamp"`
	Mode       string           `json:"mode"`
	Enabled    bool             `json:"enabled"`
	AvailableA float64          `json:"pv_available_current_a"`
	IsStale    bool             `json:"pv_stale"`
	IsCloudy   bool             `json:"pv_cloudy"`
	Stations   []StationSummary `json:"stations"`
	Sun        SunInfo          `json:"sun"`
}

// Server is the HTTP+WebSocket operator surface.
type Server struct {
	logger    *log.Logger
	control   *control.Controller
	stations  *station.Tracker
	estimator *pv.Estimator
	clk       clock.Clock
	latitude  float64
	longitude float64
	now       func() time.Time

	mux        *http.ServeMux
	httpServer *http.Server
	upgrader   websocket.Upgrader
	clients    sync.Map
	broadcast  chan []byte
	done       chan struct{}
}

// New builds a Server bound to addr, the runtime controller/tracker/
// estimator, and the site's latitude/longitude for sun-position reporting.
func New(addr string, ctrl *control.Controller, stations *station.Tracker, estimator *pv.Estimator, clk clock.Clock, latitude, longitude float64, logger *log.Logger) *Server {
	s := &Server{
		logger:    logger,
		control:   ctrl,
		stations:  stations,
		estimator: estimator,
		clk:       clk,
		latitude:  latitude,
		longitude: longitude,
		now:       time.Now,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		broadcast: make(chan []byte, 256),
		done:      make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.statusHandler)
	mux.HandleFunc("/api/ws", s.wsHandler)
	mux.HandleFunc("/api/mode", s.modeHandler)
	mux.HandleFunc("/api/tunables", s.tunablesHandler)
	mux.HandleFunc("/api/enable", s.enableHandler)
	s.mux = mux

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Mux exposes the underlying ServeMux so additional routes (such as an
// inbound ingress transport) can be registered before Start is called.
func (s *Server) Mux() *http.ServeMux {
	return s.mux
}

// Start begins serving and broadcasting in the background.
func (s *Server) Start() {
	go s.handleBroadcasts()
	go s.broadcastLoop()
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("[server] error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the HTTP server and closes WebSocket clients.
func (s *Server) Stop(ctx context.Context) error {
	close(s.done)
	s.clients.Range(func(key, _ any) bool {
		if conn, ok := key.(*websocket.Conn); ok {
			conn.Close()
		}
		return true
	})
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.buildStatus())
}

func (s *Server) wsHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("[server] websocket upgrade error: %v", err)
		return
	}
	s.clients.Store(conn, true)
	s.sendStatusTo(conn)

	defer func() {
		s.clients.Delete(conn)
		conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Printf("[server] websocket error: %v", err)
			}
			return
		}
	}
}

func (s *Server) modeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Mode string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if err := s.control.SetMode(body.Mode); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) tunablesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		HysteresisThresholdA *float64 `json:"hysteresis_threshold_a"`
		HysteresisDelayS     *float64 `json:"hysteresis_delay_s"`
		RampUpDelayS         *float64 `json:"ramp_up_delay_s"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if body.HysteresisThresholdA != nil {
		if err := s.control.SetHysteresisThreshold(*body.HysteresisThresholdA); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	if body.HysteresisDelayS != nil {
		if err := s.control.SetHysteresisDelay(*body.HysteresisDelayS); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	if body.RampUpDelayS != nil {
		if err := s.control.SetRampUpDelay(*body.RampUpDelayS); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) enableHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Enabled string `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if err := s.control.SetEnabled(body.Enabled); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBroadcasts() {
	for {
		select {
		case message := <-s.broadcast:
			s.clients.Range(func(key, _ any) bool {
				conn, ok := key.(*websocket.Conn)
				if !ok {
					return true
				}
				if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
					conn.Close()
					s.clients.Delete(conn)
				}
				return true
			})
		case <-s.done:
			return
		}
	}
}

func (s *Server) broadcastLoop() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			hasClients := false
			s.clients.Range(func(_, _ any) bool {
				hasClients = true
				return false
			})
			if !hasClients {
				continue
			}
			message, err := json.Marshal(s.buildStatus())
			if err != nil {
				s.logger.Printf("[server] failed to marshal status: %v", err)
				continue
			}
			s.broadcast <- message
		case <-s.done:
			return
		}
	}
}

func (s *Server) sendStatusTo(conn *websocket.Conn) {
	if err := conn.WriteJSON(s.buildStatus()); err != nil {
		s.logger.Printf("[server] failed to send initial status: %v", err)
	}
}

func (s *Server) buildStatus() StatusResponse {
	now := s.now()
	nowMonotonic := s.clk.Now()

	stations := s.stations.All()
	summaries := make([]StationSummary, 0, len(stations))
	for _, st := range stations {
		summaries = append(summaries, StationSummary{
			ID:                st.ID,
			State:             st.State.String(),
			ActualCurrentA:    st.ActualCurrentA,
			LastAllocationA:   st.LastAllocationA,
			VehicleConnected:  st.VehicleConnected,
			LastSetpointSentA: st.LastSetpointSentA,
		})
	}

	sunTimes := suncalc.GetTimes(now, s.latitude, s.longitude)
	sunPos := suncalc.GetPosition(now, s.latitude, s.longitude)

	return StatusResponse{
		Timestamp:  now.UTC().Format(time.RFC3339),
		Mode:       s.control.Mode().String(),
		Enabled:    s.control.Enabled(),
		AvailableA: s.estimator.AvailableCurrentA(nowMonotonic),
		IsStale:    s.estimator.IsStale(nowMonotonic),
		IsCloudy:   s.estimator.IsCloudy(),
		Stations:   summaries,
		Sun: SunInfo{
			SolarAltitudeDeg: sunPos.Altitude * 180 / math.Pi,
			Sunrise:          sunTimes["sunrise"].Value.Format(time.RFC3339),
			Sunset:           sunTimes["sunset"].Value.Format(time.RFC3339),
		},
	}
}
