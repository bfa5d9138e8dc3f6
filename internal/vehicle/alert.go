package vehicle

import "time"

// AlertType identifies the rule that produced an alert.
type AlertType string

const (
	AlertTirePressureLow    AlertType = "tire_pressure_low"
	AlertBatteryDegradation AlertType = "battery_degradation"
	AlertHighSpeedStress    AlertType = "high_speed_stress"
	AlertHarshBraking       AlertType = "harsh_braking"
	AlertHarshAcceleration  AlertType = "harsh_acceleration"
	AlertLowEVRange         AlertType = "low_ev_range"
)

// Severity grades the urgency of an alert.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert is a single health finding. Every field is fixed at creation;
// alerts are never mutated once appended to the store.
type Alert struct {
	ID        string    `json:"id"`
	Type      AlertType `json:"type"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	Signal    string    `json:"signal"`
	Value     float64   `json:"value"`
	Threshold string    `json:"threshold"`
	Timestamp time.Time `json:"timestamp"`
}
