package sim

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/mutker/vehicled/internal/store"
	"codeberg.org/mutker/vehicled/internal/vehicle"
)

// newTestEngine uses an interval long enough that the background loop never
// fires during a test; ticks are driven manually through tick().
func newTestEngine(seed int64) (*Engine, *store.Store) {
	st := store.New()
	e := New(st, rand.New(rand.NewSource(seed)), time.Hour)

	return e, st
}

func TestStartStopLifecycle(t *testing.T) {
	e, _ := newTestEngine(1)

	state := e.Start(vehicle.VariantEV)
	assert.True(t, state.Running)
	assert.Equal(t, vehicle.VariantEV, state.Variant)
	assert.Equal(t, 0, state.TickCount)
	assert.Equal(t, "simulator started (variant: EV)", state.Message)
	require.NotNil(t, state.StartedAt)

	state = e.Stop()
	assert.False(t, state.Running)
	assert.Equal(t, "simulator stopped after 0 ticks", state.Message)
}

func TestStartWhileRunningIsNoop(t *testing.T) {
	e, _ := newTestEngine(1)

	e.Start(vehicle.VariantEV)
	defer e.Stop()

	state := e.Start(vehicle.VariantICE)
	assert.True(t, state.Running)
	assert.Equal(t, vehicle.VariantEV, state.Variant)
	assert.Equal(t, "simulator already running", state.Message)
}

func TestStopWhileStoppedIsNoop(t *testing.T) {
	e, _ := newTestEngine(1)

	state := e.Stop()
	assert.False(t, state.Running)
	assert.Equal(t, "simulator not running", state.Message)
}

func TestTickPublishesSnapshots(t *testing.T) {
	e, st := newTestEngine(42)

	e.Start(vehicle.VariantEV)
	defer e.Stop()

	for i := 0; i < 30; i++ {
		e.tick()
	}

	assert.Equal(t, 30, e.State().TickCount)

	history := st.History(0)
	require.Len(t, history, 30)

	current := st.Current()
	assert.Equal(t, vehicle.VariantEV, current.Variant)
	assert.Equal(t, "motor_running", current.EngineStatus)
	assert.GreaterOrEqual(t, current.Speed, 0.0)
	assert.LessOrEqual(t, current.Speed, 140.0)
	assert.GreaterOrEqual(t, current.Battery.SoC, 5.0)
	assert.LessOrEqual(t, current.Battery.SoC, 95.0)
	assert.GreaterOrEqual(t, current.Odometer, 15000.0)

	for _, pos := range vehicle.TirePositions {
		pressure := current.Tires.Pressure(pos)
		assert.GreaterOrEqual(t, pressure, 15.0)
		assert.LessOrEqual(t, pressure, 40.0)
	}

	assert.Len(t, st.SpeedSeries(), 30)
	assert.Len(t, st.BatterySeries(), 30)
}

func TestForcedHighSpeedTriggersAlert(t *testing.T) {
	e, st := newTestEngine(7)

	e.Start(vehicle.VariantEV)
	defer e.Stop()

	// Ticks 50-64 are a forced high-speed stretch regardless of seed, so
	// ten consecutive samples above 100 km/h are guaranteed.
	for i := 0; i < 70; i++ {
		e.tick()
	}

	maxSpeed := 0.0
	for _, speed := range st.SpeedSeries() {
		if speed > maxSpeed {
			maxSpeed = speed
		}
	}
	assert.GreaterOrEqual(t, maxSpeed, 105.0)

	var highSpeed int
	for _, alert := range st.Alerts(0) {
		if alert.Type == vehicle.AlertHighSpeedStress {
			highSpeed++
		}
	}
	assert.GreaterOrEqual(t, highSpeed, 1)
}

func TestVariantICE(t *testing.T) {
	e, st := newTestEngine(11)

	e.Start(vehicle.VariantICE)
	defer e.Stop()

	for i := 0; i < 20; i++ {
		e.tick()
	}

	current := st.Current()
	assert.Equal(t, vehicle.VariantICE, current.Variant)
	assert.Equal(t, "running", current.EngineStatus)
	assert.InDelta(t, 0.0, current.EV.Range, 1e-9)
	assert.False(t, current.EV.RegenBraking)
	assert.GreaterOrEqual(t, current.Battery.SoC, 90.0)
	assert.GreaterOrEqual(t, current.Battery.Voltage, 12.0)
	assert.LessOrEqual(t, current.Battery.Voltage, 14.0)
	assert.Less(t, current.FuelLevel, 100.0)
}

func TestVariantHybrid(t *testing.T) {
	e, st := newTestEngine(13)

	e.Start(vehicle.VariantHybrid)
	defer e.Stop()

	for i := 0; i < 20; i++ {
		e.tick()
	}

	current := st.Current()
	assert.Equal(t, vehicle.VariantHybrid, current.Variant)
	assert.Equal(t, "motor_running", current.EngineStatus)
	assert.GreaterOrEqual(t, current.Battery.SoC, 15.0)
	assert.GreaterOrEqual(t, current.Battery.Voltage, 350.0)
	assert.LessOrEqual(t, current.Battery.Voltage, 400.0)
	assert.Less(t, current.FuelLevel, 100.0)
	assert.Greater(t, current.EV.Range, 0.0)
}

func TestStartReseedsPhysicsButKeepsStore(t *testing.T) {
	e, st := newTestEngine(3)

	e.Start(vehicle.VariantEV)
	for i := 0; i < 10; i++ {
		e.tick()
	}
	e.Stop()

	state := e.Start(vehicle.VariantICE)
	assert.Equal(t, 0, state.TickCount)
	assert.Equal(t, vehicle.VariantICE, state.Variant)

	e.tick()
	e.Stop()

	// Odometer restarts from the seed value; store history accumulates
	// across runs until an explicit reset.
	assert.InDelta(t, 15000.0, st.Current().Odometer, 0.1)
	assert.Equal(t, vehicle.VariantICE, st.Current().Variant)
	assert.Len(t, st.History(0), 11)
}

func TestTickerLoopRuns(t *testing.T) {
	st := store.New()
	e := New(st, rand.New(rand.NewSource(5)), time.Millisecond)

	e.Start(vehicle.VariantEV)

	deadline := time.Now().Add(2 * time.Second)
	for e.State().TickCount == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	state := e.Stop()
	assert.False(t, state.Running)
	assert.GreaterOrEqual(t, state.TickCount, 1)
	assert.NotEmpty(t, st.History(0))
}
