// Package health is the rule engine that inspects the latest snapshot plus
// the store's rolling windows and emits alerts. Every rule is independent
// and stateless; the store owns deduplication.
package health

import (
	"fmt"

	"codeberg.org/mutker/vehicled/internal/vehicle"
	"github.com/google/uuid"
)

const (
	tirePressureFloor  = 25.0
	socDropLimit       = 5.0
	highSpeedLimit     = 100.0
	highSpeedRun       = 10
	harshBrakeLimit    = 90.0
	harshThrottleLimit = 90.0
	throttleMinSamples = 5
	lowRangeLimit      = 30.0
)

// Windows is the analyzer's read-only view of the rolling windows,
// oldest sample first.
type Windows struct {
	BatterySoC []float64
	Speeds     []float64
}

// Analyze runs every rule against the snapshot and windows and returns the
// alerts they produce, zero or more per rule.
func Analyze(snapshot vehicle.Snapshot, windows Windows) []vehicle.Alert {
	var alerts []vehicle.Alert

	alerts = append(alerts, checkTirePressure(snapshot)...)

	if alert := checkBatteryDegradation(snapshot, windows.BatterySoC); alert != nil {
		alerts = append(alerts, *alert)
	}
	if alert := checkHighSpeed(snapshot, windows.Speeds); alert != nil {
		alerts = append(alerts, *alert)
	}
	if alert := checkHarshBraking(snapshot); alert != nil {
		alerts = append(alerts, *alert)
	}
	if alert := checkHarshAcceleration(snapshot, windows.Speeds); alert != nil {
		alerts = append(alerts, *alert)
	}
	if alert := checkEVRange(snapshot); alert != nil {
		alerts = append(alerts, *alert)
	}

	return alerts
}

// checkTirePressure emits one critical alert per tire below the floor.
func checkTirePressure(snapshot vehicle.Snapshot) []vehicle.Alert {
	var alerts []vehicle.Alert

	for _, pos := range vehicle.TirePositions {
		pressure := snapshot.Tires.Pressure(pos)
		if pressure >= tirePressureFloor {
			continue
		}

		alerts = append(alerts, vehicle.Alert{
			ID:       uuid.NewString(),
			Type:     vehicle.AlertTirePressureLow,
			Severity: vehicle.SeverityCritical,
			Message: fmt.Sprintf("Possible Tire Failure: %s tire pressure at %.1f PSI (below 25 PSI threshold)",
				pos.Label(), pressure),
			Signal:    pos.Signal(),
			Value:     pressure,
			Threshold: "< 25 PSI",
			Timestamp: snapshot.Timestamp,
		})
	}

	return alerts
}

// checkBatteryDegradation compares the oldest SoC in the window against the
// current snapshot.
func checkBatteryDegradation(snapshot vehicle.Snapshot, soc []float64) *vehicle.Alert {
	if len(soc) < 2 {
		return nil
	}

	oldest := soc[0]
	current := snapshot.Battery.SoC
	drop := oldest - current
	if drop <= socDropLimit {
		return nil
	}

	return &vehicle.Alert{
		ID:       uuid.NewString(),
		Type:     vehicle.AlertBatteryDegradation,
		Severity: vehicle.SeverityCritical,
		Message: fmt.Sprintf("Battery Degradation Alert: SoC dropped %.1f%% (from %.1f%% to %.1f%%)",
			drop, oldest, current),
		Signal:    "battery_soc",
		Value:     current,
		Threshold: "> 5% drop in monitoring window",
		Timestamp: snapshot.Timestamp,
	}
}

// checkHighSpeed requires the ten most recent speed samples to all exceed
// the limit. Nine highs never trigger.
func checkHighSpeed(snapshot vehicle.Snapshot, speeds []float64) *vehicle.Alert {
	if len(speeds) < highSpeedRun {
		return nil
	}

	for _, speed := range speeds[len(speeds)-highSpeedRun:] {
		if speed <= highSpeedLimit {
			return nil
		}
	}

	return &vehicle.Alert{
		ID:       uuid.NewString(),
		Type:     vehicle.AlertHighSpeedStress,
		Severity: vehicle.SeverityWarning,
		Message: fmt.Sprintf("High Speed Stress Warning: Vehicle sustained speed above 100 km/h (current: %.1f km/h)",
			snapshot.Speed),
		Signal:    "speed",
		Value:     snapshot.Speed,
		Threshold: "> 100 km/h sustained for 10+ seconds",
		Timestamp: snapshot.Timestamp,
	}
}

func checkHarshBraking(snapshot vehicle.Snapshot) *vehicle.Alert {
	brake := snapshot.Drivetrain.Brake
	if brake <= harshBrakeLimit {
		return nil
	}

	return &vehicle.Alert{
		ID:       uuid.NewString(),
		Type:     vehicle.AlertHarshBraking,
		Severity: vehicle.SeverityWarning,
		Message: fmt.Sprintf("Harsh Braking Detected: Brake at %.1f%% (above 90%% threshold)",
			brake),
		Signal:    "brake_position",
		Value:     brake,
		Threshold: "> 90%",
		Timestamp: snapshot.Timestamp,
	}
}

// checkHarshAcceleration additionally needs a few seconds of speed history
// so a single spike right after start does not alert.
func checkHarshAcceleration(snapshot vehicle.Snapshot, speeds []float64) *vehicle.Alert {
	throttle := snapshot.Drivetrain.Throttle
	if throttle <= harshThrottleLimit || len(speeds) < throttleMinSamples {
		return nil
	}

	return &vehicle.Alert{
		ID:       uuid.NewString(),
		Type:     vehicle.AlertHarshAcceleration,
		Severity: vehicle.SeverityWarning,
		Message: fmt.Sprintf("Harsh Acceleration: Throttle at %.1f%% (above 90%% sustained)",
			throttle),
		Signal:    "throttle_position",
		Value:     throttle,
		Threshold: "> 90% sustained",
		Timestamp: snapshot.Timestamp,
	}
}

// checkEVRange skips ICE vehicles, whose range signal is pinned to zero.
func checkEVRange(snapshot vehicle.Snapshot) *vehicle.Alert {
	if snapshot.Variant == vehicle.VariantICE {
		return nil
	}

	evRange := snapshot.EV.Range
	if evRange >= lowRangeLimit {
		return nil
	}

	return &vehicle.Alert{
		ID:       uuid.NewString(),
		Type:     vehicle.AlertLowEVRange,
		Severity: vehicle.SeverityWarning,
		Message: fmt.Sprintf("Low EV Range Alert: Only %.1f km remaining (below 30 km threshold)",
			evRange),
		Signal:    "ev_range",
		Value:     evRange,
		Threshold: "< 30 km",
		Timestamp: snapshot.Timestamp,
	}
}
