// Package server exposes the vehicle state over HTTP and WebSocket.
package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"codeberg.org/mutker/vehicled/internal/config"
	"codeberg.org/mutker/vehicled/internal/errors"
	"codeberg.org/mutker/vehicled/internal/logger"
	"codeberg.org/mutker/vehicled/internal/metrics"
	"codeberg.org/mutker/vehicled/internal/sim"
	"codeberg.org/mutker/vehicled/internal/store"
	"codeberg.org/mutker/vehicled/internal/vehicle"
)

const (
	readHeaderTimeout = 5 * time.Second
	broadcastInterval = time.Second
)

// Server serves the REST surface and pushes live telemetry to websocket
// clients once per second.
type Server struct {
	store   *store.Store
	engine  *sim.Engine
	hub     *hub
	http    *http.Server
	cancel  context.CancelFunc
	version string
}

// New wires the router and arms the hub and broadcaster goroutines.
// Shutdown stops them.
func New(cfg config.Server, st *store.Store, engine *sim.Engine, version string) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		store:   st,
		engine:  engine,
		hub:     newHub(),
		cancel:  cancel,
		version: version,
	}
	s.http = &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.router(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go s.hub.run(ctx)
	go s.broadcaster(ctx)

	return s
}

func (s *Server) router() *mux.Router {
	r := mux.NewRouter()
	r.Use(metrics.Middleware)

	r.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	r.HandleFunc("/vehicle/all", s.handleVehicleAll).Methods(http.MethodGet)
	r.HandleFunc("/vehicle/history", s.handleHistory).Methods(http.MethodGet)
	r.HandleFunc("/vehicle/alerts", s.handleAlerts).Methods(http.MethodGet)
	r.HandleFunc("/vehicle/simulate/start", s.handleSimStart).Methods(http.MethodPost)
	r.HandleFunc("/vehicle/simulate/stop", s.handleSimStop).Methods(http.MethodPost)
	r.HandleFunc("/vehicle/simulate/status", s.handleSimStatus).Methods(http.MethodGet)
	r.HandleFunc("/vehicle/reset", s.handleReset).Methods(http.MethodPost)
	r.HandleFunc("/external/telemetry", s.handleInject).Methods(http.MethodPost)
	r.HandleFunc("/predictive/analysis", s.handlePredictive).Methods(http.MethodGet)
	r.HandleFunc("/ws/telemetry", s.handleWebSocket)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	return r
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start binds the listener and serves in the background. A bind failure is
// returned synchronously.
func (s *Server) Start() error {
	errFactory := errors.New()

	listener, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return errFactory.Wrap(errors.ErrInitServer, err)
	}

	logger.Info().Str("addr", s.http.Addr).Msg("HTTP server listening")

	go func() {
		if err := s.http.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	return nil
}

// Shutdown stops the broadcaster and hub, then drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()

	if err := s.http.Shutdown(ctx); err != nil {
		return errors.New().Wrap(errors.ErrShutdownFailed, err)
	}

	return nil
}

// wsTelemetry is the frame pushed to every websocket client once per second.
type wsTelemetry struct {
	Type       string           `json:"type"`
	Data       vehicle.Snapshot `json:"data"`
	SimRunning bool             `json:"sim_running"`
	AlertCount int              `json:"alert_count"`
}

func (s *Server) broadcaster(ctx context.Context) {
	ticker := time.NewTicker(broadcastInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pushTelemetry()
		}
	}
}

func (s *Server) pushTelemetry() {
	frame := wsTelemetry{
		Type:       "telemetry",
		Data:       s.store.Current(),
		SimRunning: s.engine.Running(),
		AlertCount: s.store.AlertCount(),
	}

	data, err := json.Marshal(frame)
	if err != nil {
		logger.Debug().Err(err).Msg("Failed to encode telemetry frame")

		return
	}

	select {
	case s.hub.broadcast <- data:
	default:
	}
}
