package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"codeberg.org/mutker/vehicled/internal/logger"
	"codeberg.org/mutker/vehicled/internal/metrics"
	"codeberg.org/mutker/vehicled/internal/predict"
	"codeberg.org/mutker/vehicled/internal/vehicle"
)

const (
	defaultHistoryLimit = 60
	maxHistoryLimit     = 300
	defaultAlertLimit   = 50
	maxAlertLimit       = 100
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Debug().Err(err).Msg("Failed to encode response")
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// queryLimit reads ?limit, clamping it to [1, ceiling]. A missing value
// falls back; a non-numeric one is rejected.
func queryLimit(r *http.Request, fallback, ceiling int) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback, true
	}

	limit, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	if limit < 1 {
		limit = 1
	}
	if limit > ceiling {
		limit = ceiling
	}

	return limit, true
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"service": "vehicled",
		"version": s.version,
		"status":  "operational",
		"endpoints": map[string]string{
			"vehicle":             "/vehicle/all",
			"history":             "/vehicle/history",
			"alerts":              "/vehicle/alerts",
			"simulate_start":      "/vehicle/simulate/start",
			"simulate_stop":       "/vehicle/simulate/stop",
			"simulate_status":     "/vehicle/simulate/status",
			"reset":               "/vehicle/reset",
			"external_telemetry":  "/external/telemetry",
			"predictive_analysis": "/predictive/analysis",
			"websocket":           "/ws/telemetry",
			"metrics":             "/metrics",
			"health":              "/health",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleVehicleAll(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.store.Current())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(r, defaultHistoryLimit, maxHistoryLimit)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid limit")

		return
	}

	history := s.store.History(limit)
	respondJSON(w, http.StatusOK, map[string]any{
		"count":   len(history),
		"history": history,
	})
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(r, defaultAlertLimit, maxAlertLimit)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid limit")

		return
	}

	alerts := s.store.Alerts(limit)
	respondJSON(w, http.StatusOK, map[string]any{
		"count":  len(alerts),
		"alerts": alerts,
	})
}

func (s *Server) handleSimStart(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("variant")
	if raw != "" && !vehicle.Variant(raw).IsValid() {
		logger.Warn().Str("variant", raw).Msg("Unknown vehicle variant, defaulting to EV")
	}

	respondJSON(w, http.StatusOK, s.engine.Start(vehicle.ParseVariant(raw)))
}

func (s *Server) handleSimStop(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.engine.Stop())
}

func (s *Server) handleSimStatus(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.engine.State())
}

func (s *Server) handleReset(w http.ResponseWriter, _ *http.Request) {
	s.store.Reset()
	logger.Info().Msg("Vehicle state reset")
	respondJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// handleInject merges a partial external snapshot over the current state.
func (s *Server) handleInject(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var patch vehicle.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		respondError(w, http.StatusBadRequest, "invalid telemetry payload")

		return
	}

	merged := s.store.Inject(r.Context(), patch)
	metrics.Injects.Inc()
	logger.Debug().
		Float64("speed", merged.Speed).
		Float64("soc", merged.Battery.SoC).
		Msg("External telemetry injected")

	respondJSON(w, http.StatusOK, merged)
}

func (s *Server) handlePredictive(w http.ResponseWriter, _ *http.Request) {
	tires := make(map[vehicle.TirePosition][]float64, len(vehicle.TirePositions))
	for _, pos := range vehicle.TirePositions {
		tires[pos] = s.store.TireSeries(pos)
	}

	report := predict.BuildReport(s.store.BatterySeries(), s.store.SpeedSeries(), tires, time.Now())
	respondJSON(w, http.StatusOK, report)
}
