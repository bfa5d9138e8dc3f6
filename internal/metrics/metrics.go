// Package metrics exposes the daemon's Prometheus instrumentation.
package metrics

import (
	"bufio"
	"net"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Ticks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vehicled_ticks_total",
		Help: "Total number of simulator ticks executed",
	})

	Alerts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vehicled_alerts_total",
		Help: "Total number of alerts stored, by type",
	}, []string{"type"})

	SnapshotsPersisted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vehicled_snapshots_persisted_total",
		Help: "Total number of snapshots handed to durable storage",
	})

	PersistFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vehicled_persist_failures_total",
		Help: "Total number of failed durable writes",
	})

	Injects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vehicled_injects_total",
		Help: "Total number of externally injected snapshots",
	})

	BrokerPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vehicled_broker_published_total",
		Help: "Total number of messages acknowledged by the MQTT broker",
	})

	BrokerFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vehicled_broker_failures_total",
		Help: "Total number of MQTT publishes that failed or timed out",
	})

	MirrorWrites = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vehicled_mirror_writes_total",
		Help: "Total number of Redis mirror writes",
	})

	MirrorFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vehicled_mirror_failures_total",
		Help: "Total number of failed Redis mirror writes",
	})

	WSClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vehicled_ws_clients",
		Help: "Connected WebSocket clients",
	})

	SimRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vehicled_sim_running",
		Help: "Whether the simulator loop is running (1) or stopped (0)",
	})

	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vehicled_requests_total",
		Help: "Total number of HTTP requests processed",
	}, []string{"endpoint", "method", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vehicled_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"endpoint", "method"})
)

// Handler serves the Prometheus exposition endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// statusRecorder captures the response status for the request counter. It
// keeps the underlying Hijacker reachable so WebSocket upgrades still work
// behind the middleware.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}

	return hj.Hijack()
}

// Middleware records request counts and latency per route template.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		endpoint := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				endpoint = tpl
			}
		}

		timer := prometheus.NewTimer(requestDuration.WithLabelValues(endpoint, r.Method))
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		timer.ObserveDuration()
		requestsTotal.WithLabelValues(endpoint, r.Method, strconv.Itoa(rec.status)).Inc()
	})
}
