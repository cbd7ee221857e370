package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/devskill-org/pv-load-manager/core/clock"
	"github.com/devskill-org/pv-load-manager/core/control"
	"github.com/devskill-org/pv-load-manager/core/pv"
	"github.com/devskill-org/pv-load-manager/core/station"
)

// HealthServer is a minimal, separate HTTP listener for container/orchestrator
// probes. It is deliberately independent of the operator API in Server: a
// liveness probe must keep answering even if the operator websocket surface
// is wedged.
type HealthServer struct {
	control   *control.Controller
	stations  *station.Tracker
	estimator *pv.Estimator
	clk       clock.Clock
	logger    *log.Logger
	server    *http.Server
}

// HealthResponse is the /health payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp string    `json:"timestamp"`
	Enabled   bool      `json:"enabled"`
	Mode      string    `json:"mode"`
	Stations  int       `json:"stations_tracked"`
	PVStale   bool      `json:"pv_stale"`
}

// ReadinessResponse is the /ready payload.
type ReadinessResponse struct {
	Ready     bool   `json:"ready"`
	Timestamp string `json:"timestamp"`
}

// NewHealthServer builds a HealthServer listening on port. A non-positive
// port disables the health server entirely and returns nil.
func NewHealthServer(ctrl *control.Controller, stations *station.Tracker, estimator *pv.Estimator, clk clock.Clock, port int, logger *log.Logger) *HealthServer {
	if port <= 0 {
		return nil
	}

	hs := &HealthServer{
		control:   ctrl,
		stations:  stations,
		estimator: estimator,
		clk:       clk,
		logger:    logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", hs.healthHandler)
	mux.HandleFunc("/ready", hs.readinessHandler)
	mux.HandleFunc("/", hs.rootHandler)

	hs.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return hs
}

// Start runs the health server in the background. A nil receiver (disabled
// health server) is a no-op.
func (hs *HealthServer) Start() {
	if hs == nil {
		return
	}
	go func() {
		if err := hs.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			hs.logger.Printf("[health] error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the health server. A nil receiver is a no-op.
func (hs *HealthServer) Stop(ctx context.Context) error {
	if hs == nil {
		return nil
	}
	return hs.server.Shutdown(ctx)
}

func (hs *HealthServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	now := hs.clk.Now()
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Enabled:   hs.control.Enabled(),
		Mode:      hs.control.Mode().String(),
		Stations:  len(hs.stations.All()),
		PVStale:   hs.estimator.IsStale(now),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (hs *HealthServer) readinessHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ready := hs.control.Enabled()
	resp := ReadinessResponse{
		Ready:     ready,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if !ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(resp)
}

func (hs *HealthServer) rootHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	endpoints := map[string]string{
		"health": "liveness probe",
		"ready":  "readiness probe (ready once enabled)",
	}
	resp := map[string]any{
		"service":   "pv-load-manager",
		"endpoints": endpoints,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
