// Package store owns the live telemetry state: the current snapshot, the
// bounded rolling windows the analytics engines read, and the alert ring.
package store

import (
	"context"
	"sync"
	"time"

	"codeberg.org/mutker/vehicled/internal/logger"
	"codeberg.org/mutker/vehicled/internal/vehicle"
)

const (
	windowRetention = 300 * time.Second
	historySize     = 300
	alertRingSize   = 100
	dedupInterval   = 10 * time.Second
	dedupScanDepth  = 20
)

// Sink receives every stored snapshot and alert. Implementations must be
// safe for concurrent use. Sink errors are logged and never propagated;
// the in-memory state is already committed when a sink is called.
type Sink interface {
	SaveSnapshot(ctx context.Context, snapshot vehicle.Snapshot) error
	SaveAlert(ctx context.Context, alert vehicle.Alert) error
}

type sample struct {
	at    time.Time
	value float64
}

type tireSample struct {
	at        time.Time
	pressures [4]float64
}

type Store struct {
	mu      sync.RWMutex
	current vehicle.Snapshot
	history []vehicle.Snapshot
	battery []sample
	speed   []sample
	tires   []tireSample
	alerts  []vehicle.Alert
	sinks   []Sink
}

func New(sinks ...Sink) *Store {
	return &Store{
		current: vehicle.DefaultSnapshot(time.Now()),
		sinks:   sinks,
	}
}

// Update replaces the current snapshot and appends it to every window,
// then forwards it to the sinks outside the lock.
func (s *Store) Update(ctx context.Context, snapshot vehicle.Snapshot) {
	s.mu.Lock()
	s.record(snapshot)
	s.mu.Unlock()

	s.forwardSnapshot(ctx, snapshot)
}

// Inject merges a partial patch over the current snapshot and stores the
// result through the regular update path. No analysis is triggered; the
// next simulator tick overwrites whatever it does not model.
func (s *Store) Inject(ctx context.Context, patch vehicle.Patch) vehicle.Snapshot {
	s.mu.Lock()
	merged := patch.Apply(s.current, time.Now())
	s.record(merged)
	s.mu.Unlock()

	s.forwardSnapshot(ctx, merged)

	return merged
}

// record appends the snapshot to the windows and evicts aged samples.
// Caller holds mu.
func (s *Store) record(snapshot vehicle.Snapshot) {
	s.current = snapshot

	s.history = append(s.history, snapshot)
	if len(s.history) > historySize {
		s.history = s.history[1:]
	}

	s.battery = append(s.battery, sample{at: snapshot.Timestamp, value: snapshot.Battery.SoC})
	s.speed = append(s.speed, sample{at: snapshot.Timestamp, value: snapshot.Speed})

	tires := tireSample{at: snapshot.Timestamp}
	for i, pos := range vehicle.TirePositions {
		tires.pressures[i] = snapshot.Tires.Pressure(pos)
	}
	s.tires = append(s.tires, tires)

	cutoff := snapshot.Timestamp.Add(-windowRetention)
	s.battery = evictSamples(s.battery, cutoff)
	s.speed = evictSamples(s.speed, cutoff)
	s.tires = evictTireSamples(s.tires, cutoff)
}

// AddAlert stores an alert unless an alert with the same type and signal
// was stored within the dedup interval. Returns whether it was stored.
func (s *Store) AddAlert(ctx context.Context, alert vehicle.Alert) bool {
	s.mu.Lock()
	if s.isDuplicate(alert) {
		s.mu.Unlock()
		return false
	}

	s.alerts = append(s.alerts, alert)
	if len(s.alerts) > alertRingSize {
		s.alerts = s.alerts[1:]
	}
	s.mu.Unlock()

	s.forwardAlert(ctx, alert)

	return true
}

// isDuplicate scans the most recent alerts for one with the same type and
// signal inside the dedup interval. Caller holds mu.
func (s *Store) isDuplicate(alert vehicle.Alert) bool {
	floor := len(s.alerts) - dedupScanDepth
	if floor < 0 {
		floor = 0
	}

	for i := len(s.alerts) - 1; i >= floor; i-- {
		prev := s.alerts[i]
		if prev.Type == alert.Type && prev.Signal == alert.Signal &&
			alert.Timestamp.Sub(prev.Timestamp) < dedupInterval {
			return true
		}
	}

	return false
}

func (s *Store) Current() vehicle.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.current
}

// History returns up to limit of the most recent snapshots, oldest first.
// A limit of 0 or above the window size returns the whole window.
func (s *Store) History(limit int) []vehicle.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.history) {
		limit = len(s.history)
	}

	out := make([]vehicle.Snapshot, limit)
	copy(out, s.history[len(s.history)-limit:])

	return out
}

// Alerts returns up to limit of the most recent alerts, newest first.
func (s *Store) Alerts(limit int) []vehicle.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.alerts) {
		limit = len(s.alerts)
	}

	out := make([]vehicle.Alert, 0, limit)
	for i := len(s.alerts) - 1; i >= len(s.alerts)-limit; i-- {
		out = append(out, s.alerts[i])
	}

	return out
}

func (s *Store) AlertCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.alerts)
}

// BatterySeries returns the state-of-charge values currently in the
// battery window, oldest first.
func (s *Store) BatterySeries() []float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return sampleValues(s.battery)
}

// SpeedSeries returns the speed values currently in the speed window,
// oldest first.
func (s *Store) SpeedSeries() []float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return sampleValues(s.speed)
}

// TireSeries returns the pressure values for one tire position, oldest first.
func (s *Store) TireSeries(pos vehicle.TirePosition) []float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]float64, len(s.tires))
	for i := range s.tires {
		out[i] = s.tires[i].pressures[pos]
	}

	return out
}

// Hydrate seeds the history window from persisted snapshots, oldest first.
// Intended for startup only; nothing is forwarded to the sinks and the
// current snapshot is left alone.
func (s *Store) Hydrate(snapshots []vehicle.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(snapshots) > historySize {
		snapshots = snapshots[len(snapshots)-historySize:]
	}

	s.history = append(s.history[:0], snapshots...)
}

// Reset drops all windows and alerts and restores the default snapshot.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = vehicle.DefaultSnapshot(time.Now())
	s.history = nil
	s.battery = nil
	s.speed = nil
	s.tires = nil
	s.alerts = nil
}

func (s *Store) forwardSnapshot(ctx context.Context, snapshot vehicle.Snapshot) {
	for _, sink := range s.sinks {
		if err := sink.SaveSnapshot(ctx, snapshot); err != nil {
			logger.Warn().Err(err).Msg("Snapshot sink write failed")
		}
	}
}

func (s *Store) forwardAlert(ctx context.Context, alert vehicle.Alert) {
	for _, sink := range s.sinks {
		if err := sink.SaveAlert(ctx, alert); err != nil {
			logger.Warn().Err(err).Msg("Alert sink write failed")
		}
	}
}

func evictSamples(window []sample, cutoff time.Time) []sample {
	i := 0
	for i < len(window) && window[i].at.Before(cutoff) {
		i++
	}

	return window[i:]
}

func evictTireSamples(window []tireSample, cutoff time.Time) []tireSample {
	i := 0
	for i < len(window) && window[i].at.Before(cutoff) {
		i++
	}

	return window[i:]
}

func sampleValues(window []sample) []float64 {
	out := make([]float64, len(window))
	for i := range window {
		out[i] = window[i].value
	}

	return out
}
