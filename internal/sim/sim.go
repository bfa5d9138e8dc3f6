// Package sim generates vehicle telemetry on a fixed tick, feeding each
// snapshot through the store and the health rules.
package sim

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"codeberg.org/mutker/vehicled/internal/health"
	"codeberg.org/mutker/vehicled/internal/logger"
	"codeberg.org/mutker/vehicled/internal/metrics"
	"codeberg.org/mutker/vehicled/internal/store"
	"codeberg.org/mutker/vehicled/internal/vehicle"
)

// State reports the simulator lifecycle to API consumers.
type State struct {
	Running   bool            `json:"running"`
	Variant   vehicle.Variant `json:"variant,omitempty"`
	TickCount int             `json:"tick_count"`
	StartedAt *time.Time      `json:"start_time,omitempty"`
	Message   string          `json:"message,omitempty"`
}

// Engine owns the tick loop. Start and Stop are safe to call from any
// goroutine; a stop waits for a mid-flight tick to complete.
type Engine struct {
	store    *store.Store
	rng      *rand.Rand
	interval time.Duration

	mu     sync.Mutex
	state  State
	phys   physics
	cancel context.CancelFunc
	done   chan struct{}
}

// New builds an engine ticking at the given interval. The caller provides
// the randomness source so tests can seed it; nil falls back to a
// time-seeded source.
func New(st *store.Store, rng *rand.Rand, interval time.Duration) *Engine {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	return &Engine{
		store:    st,
		rng:      rng,
		interval: interval,
	}
}

// Start seeds fresh physics for the variant and launches the tick loop.
// Starting a running engine changes nothing and reports the live state.
func (e *Engine) Start(variant vehicle.Variant) State {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.Running {
		state := e.state
		state.Message = "simulator already running"

		return state
	}

	if !variant.IsValid() {
		variant = vehicle.VariantEV
	}

	e.phys = newPhysics(variant)
	now := time.Now()
	e.state = State{
		Running:   true,
		Variant:   variant,
		StartedAt: &now,
		Message:   fmt.Sprintf("simulator started (variant: %s)", variant),
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.done = make(chan struct{})
	go e.run(ctx, e.done)

	metrics.SimRunning.Set(1)
	logger.Info().Str("variant", string(variant)).Msg("Simulator started")

	return e.state
}

// Stop cancels the loop and waits for it to drain. Stopping a stopped
// engine changes nothing and reports the idle state.
func (e *Engine) Stop() State {
	e.mu.Lock()
	if !e.state.Running {
		state := e.state
		state.Message = "simulator not running"
		e.mu.Unlock()

		return state
	}

	e.state.Running = false
	cancel := e.cancel
	done := e.done
	e.cancel = nil
	e.done = nil
	e.mu.Unlock()

	cancel()
	<-done

	e.mu.Lock()
	defer e.mu.Unlock()

	e.state.Message = fmt.Sprintf("simulator stopped after %d ticks", e.state.TickCount)
	metrics.SimRunning.Set(0)
	logger.Info().Int("ticks", e.state.TickCount).Msg("Simulator stopped")

	return e.state
}

// State returns a copy of the lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.state
}

// Running reports whether the tick loop is live.
func (e *Engine) Running() bool {
	return e.State().Running
}

func (e *Engine) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.tick()
		}
	}
}

// tick advances physics, publishes the snapshot and runs the health rules
// over the refreshed windows.
func (e *Engine) tick() {
	e.mu.Lock()
	e.phys.advance(e.rng)
	snapshot := e.phys.snapshot(time.Now())
	e.state.TickCount = e.phys.tick
	e.mu.Unlock()

	ctx := context.Background()
	e.store.Update(ctx, snapshot)
	metrics.Ticks.Inc()

	windows := health.Windows{
		BatterySoC: e.store.BatterySeries(),
		Speeds:     e.store.SpeedSeries(),
	}
	for _, alert := range health.Analyze(snapshot, windows) {
		if e.store.AddAlert(ctx, alert) {
			metrics.Alerts.WithLabelValues(string(alert.Type)).Inc()
			logger.Warn().
				Str("type", string(alert.Type)).
				Str("severity", string(alert.Severity)).
				Str("signal", alert.Signal).
				Msg(alert.Message)
		}
	}
}
