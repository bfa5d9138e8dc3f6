package health_test

import (
	"testing"
	"time"

	"codeberg.org/mutker/vehicled/internal/health"
	"codeberg.org/mutker/vehicled/internal/vehicle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// healthySnapshot returns a snapshot no rule fires on.
func healthySnapshot() vehicle.Snapshot {
	snap := vehicle.DefaultSnapshot(time.Now())
	snap.Speed = 60
	snap.EV.Range = 280

	return snap
}

func repeat(value float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = value
	}

	return out
}

func alertsOfType(alerts []vehicle.Alert, alertType vehicle.AlertType) []vehicle.Alert {
	var out []vehicle.Alert
	for _, alert := range alerts {
		if alert.Type == alertType {
			out = append(out, alert)
		}
	}

	return out
}

func TestHealthySnapshotProducesNoAlerts(t *testing.T) {
	windows := health.Windows{
		BatterySoC: []float64{85, 85, 84.9},
		Speeds:     repeat(60, 20),
	}

	assert.Empty(t, health.Analyze(healthySnapshot(), windows))
}

func TestTirePressureBoundary(t *testing.T) {
	snap := healthySnapshot()
	snap.Tires.FrontLeft = 24.9

	alerts := health.Analyze(snap, health.Windows{})
	require.Len(t, alerts, 1)
	assert.Equal(t, vehicle.AlertTirePressureLow, alerts[0].Type)
	assert.Equal(t, vehicle.SeverityCritical, alerts[0].Severity)
	assert.Equal(t, "tire_pressure_fl", alerts[0].Signal)
	assert.Equal(t, 24.9, alerts[0].Value)
	assert.Equal(t, "Possible Tire Failure: Front Left tire pressure at 24.9 PSI (below 25 PSI threshold)", alerts[0].Message)

	// Exactly at the threshold is healthy
	snap.Tires.FrontLeft = 25.0
	assert.Empty(t, health.Analyze(snap, health.Windows{}))
}

func TestTirePressureOneAlertPerTire(t *testing.T) {
	snap := healthySnapshot()
	snap.Tires.FrontRight = 20
	snap.Tires.RearLeft = 18

	alerts := health.Analyze(snap, health.Windows{})
	require.Len(t, alerts, 2)
	assert.Equal(t, "tire_pressure_fr", alerts[0].Signal)
	assert.Equal(t, "tire_pressure_rl", alerts[1].Signal)
	assert.NotEqual(t, alerts[0].ID, alerts[1].ID)
}

func TestBatteryDegradation(t *testing.T) {
	snap := healthySnapshot()
	snap.Battery.SoC = 89

	alerts := alertsOfType(
		health.Analyze(snap, health.Windows{BatterySoC: []float64{95.5, 93, 91}}),
		vehicle.AlertBatteryDegradation,
	)
	require.Len(t, alerts, 1)
	assert.Equal(t, vehicle.SeverityCritical, alerts[0].Severity)
	assert.Equal(t, "battery_soc", alerts[0].Signal)
	assert.Equal(t, 89.0, alerts[0].Value)
	assert.Equal(t, "Battery Degradation Alert: SoC dropped 6.5% (from 95.5% to 89.0%)", alerts[0].Message)
}

func TestBatteryDegradationNeedsTwoSamplesAndRealDrop(t *testing.T) {
	snap := healthySnapshot()
	snap.Battery.SoC = 80

	// Single sample cannot establish a drop
	assert.Empty(t, health.Analyze(snap, health.Windows{BatterySoC: []float64{95}}))

	// A drop of exactly 5% stays quiet
	snap.Battery.SoC = 90
	assert.Empty(t, health.Analyze(snap, health.Windows{BatterySoC: []float64{95, 92}}))
}

func TestSustainedHighSpeed(t *testing.T) {
	snap := healthySnapshot()
	snap.Speed = 112

	alerts := health.Analyze(snap, health.Windows{Speeds: repeat(110, 10)})
	require.Len(t, alerts, 1)
	assert.Equal(t, vehicle.AlertHighSpeedStress, alerts[0].Type)
	assert.Equal(t, vehicle.SeverityWarning, alerts[0].Severity)
	assert.Equal(t, "speed", alerts[0].Signal)
	assert.Equal(t, "High Speed Stress Warning: Vehicle sustained speed above 100 km/h (current: 112.0 km/h)", alerts[0].Message)
}

func TestNineHighSpeedSamplesDoNotTrigger(t *testing.T) {
	snap := healthySnapshot()
	snap.Speed = 112

	// Nine samples total
	assert.Empty(t, health.Analyze(snap, health.Windows{Speeds: repeat(110, 9)}))

	// Ten samples but one inside the limit
	speeds := repeat(110, 10)
	speeds[3] = 95
	assert.Empty(t, health.Analyze(snap, health.Windows{Speeds: speeds}))
}

func TestHighSpeedLooksAtMostRecentTen(t *testing.T) {
	snap := healthySnapshot()
	snap.Speed = 112

	// Early slow samples are outside the run being checked
	speeds := append(repeat(40, 5), repeat(110, 10)...)
	alerts := health.Analyze(snap, health.Windows{Speeds: speeds})
	require.Len(t, alerts, 1)
	assert.Equal(t, vehicle.AlertHighSpeedStress, alerts[0].Type)
}

func TestHarshBraking(t *testing.T) {
	snap := healthySnapshot()
	snap.Drivetrain.Brake = 95.5

	alerts := health.Analyze(snap, health.Windows{})
	require.Len(t, alerts, 1)
	assert.Equal(t, vehicle.AlertHarshBraking, alerts[0].Type)
	assert.Equal(t, "brake_position", alerts[0].Signal)
	assert.Equal(t, "Harsh Braking Detected: Brake at 95.5% (above 90% threshold)", alerts[0].Message)

	snap.Drivetrain.Brake = 90.0
	assert.Empty(t, health.Analyze(snap, health.Windows{}))
}

func TestHarshAccelerationNeedsSpeedHistory(t *testing.T) {
	snap := healthySnapshot()
	snap.Drivetrain.Throttle = 96

	assert.Empty(t, health.Analyze(snap, health.Windows{Speeds: repeat(60, 4)}))

	alerts := health.Analyze(snap, health.Windows{Speeds: repeat(60, 5)})
	require.Len(t, alerts, 1)
	assert.Equal(t, vehicle.AlertHarshAcceleration, alerts[0].Type)
	assert.Equal(t, "throttle_position", alerts[0].Signal)
	assert.Equal(t, "Harsh Acceleration: Throttle at 96.0% (above 90% sustained)", alerts[0].Message)
}

func TestLowEVRange(t *testing.T) {
	snap := healthySnapshot()
	snap.EV.Range = 29.9

	alerts := health.Analyze(snap, health.Windows{})
	require.Len(t, alerts, 1)
	assert.Equal(t, vehicle.AlertLowEVRange, alerts[0].Type)
	assert.Equal(t, "ev_range", alerts[0].Signal)
	assert.Equal(t, "Low EV Range Alert: Only 29.9 km remaining (below 30 km threshold)", alerts[0].Message)

	snap.EV.Range = 30.0
	assert.Empty(t, health.Analyze(snap, health.Windows{}))
}

func TestLowEVRangeSkipsICE(t *testing.T) {
	snap := healthySnapshot()
	snap.Variant = vehicle.VariantICE
	snap.EV.Range = 0

	assert.Empty(t, health.Analyze(snap, health.Windows{}))

	snap.Variant = vehicle.VariantHybrid
	snap.EV.Range = 12
	alerts := health.Analyze(snap, health.Windows{})
	require.Len(t, alerts, 1)
	assert.Equal(t, vehicle.AlertLowEVRange, alerts[0].Type)
}

func TestMultipleRulesFireTogether(t *testing.T) {
	snap := healthySnapshot()
	snap.Speed = 118
	snap.Tires.RearRight = 19
	snap.Drivetrain.Brake = 97
	snap.Battery.SoC = 70
	snap.EV.Range = 15

	windows := health.Windows{
		BatterySoC: []float64{90, 85, 80},
		Speeds:     repeat(115, 12),
	}

	alerts := health.Analyze(snap, windows)
	assert.Len(t, alerts, 5)
	assert.Len(t, alertsOfType(alerts, vehicle.AlertTirePressureLow), 1)
	assert.Len(t, alertsOfType(alerts, vehicle.AlertBatteryDegradation), 1)
	assert.Len(t, alertsOfType(alerts, vehicle.AlertHighSpeedStress), 1)
	assert.Len(t, alertsOfType(alerts, vehicle.AlertHarshBraking), 1)
	assert.Len(t, alertsOfType(alerts, vehicle.AlertLowEVRange), 1)
}
