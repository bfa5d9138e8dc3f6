package vehicle

import "time"

// Variant is the vehicle powertrain category controlling discharge and
// fuel physics.
type Variant string

const (
	VariantEV     Variant = "EV"
	VariantHybrid Variant = "Hybrid"
	VariantICE    Variant = "ICE"
)

// ParseVariant maps a variant string to a known Variant. Unknown strings
// fall back to EV rather than failing.
func ParseVariant(s string) Variant {
	switch Variant(s) {
	case VariantEV, VariantHybrid, VariantICE:
		return Variant(s)
	default:
		return VariantEV
	}
}

// IsValid returns whether the variant is a known powertrain category.
func (v Variant) IsValid() bool {
	switch v {
	case VariantEV, VariantHybrid, VariantICE:
		return true
	default:
		return false
	}
}

func (v Variant) String() string {
	return string(v)
}

// Battery holds the high-voltage (EV/Hybrid) or starter (ICE) battery state.
type Battery struct {
	SoC         float64 `json:"soc"`
	Voltage     float64 `json:"voltage"`
	Temperature float64 `json:"temperature"`
	Health      string  `json:"health_status"`
}

// Tires holds the four tire pressures in PSI.
type Tires struct {
	FrontLeft  float64 `json:"front_left"`
	FrontRight float64 `json:"front_right"`
	RearLeft   float64 `json:"rear_left"`
	RearRight  float64 `json:"rear_right"`
}

// TirePosition addresses one of the four tires.
type TirePosition int

const (
	FrontLeft TirePosition = iota
	FrontRight
	RearLeft
	RearRight
)

var tireLabels = map[TirePosition]string{
	FrontLeft:  "Front Left",
	FrontRight: "Front Right",
	RearLeft:   "Rear Left",
	RearRight:  "Rear Right",
}

var tireSignals = map[TirePosition]string{
	FrontLeft:  "tire_pressure_fl",
	FrontRight: "tire_pressure_fr",
	RearLeft:   "tire_pressure_rl",
	RearRight:  "tire_pressure_rr",
}

// Label returns the human readable tire name, e.g. "Front Left".
func (p TirePosition) Label() string {
	return tireLabels[p]
}

// Signal returns the signal identifier for the tire, e.g. "tire_pressure_fl".
func (p TirePosition) Signal() string {
	return tireSignals[p]
}

// TirePositions lists the four positions in reading order.
var TirePositions = []TirePosition{FrontLeft, FrontRight, RearLeft, RearRight}

// Pressure returns the pressure at the given position.
func (t Tires) Pressure(p TirePosition) float64 {
	switch p {
	case FrontLeft:
		return t.FrontLeft
	case FrontRight:
		return t.FrontRight
	case RearLeft:
		return t.RearLeft
	default:
		return t.RearRight
	}
}

// Drivetrain holds pedal, gear and steering state.
type Drivetrain struct {
	Throttle      float64 `json:"throttle_position"`
	Brake         float64 `json:"brake_position"`
	Gear          string  `json:"gear_position"`
	SteeringAngle float64 `json:"steering_angle"`
}

// EV holds range and charging state. Range is forced to zero for ICE.
type EV struct {
	Range        float64 `json:"ev_range"`
	Charging     bool    `json:"charging"`
	RegenBraking bool    `json:"regen_braking"`
}

// GPS holds the dead-reckoned position.
type GPS struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Snapshot is one immutable, fully populated telemetry record. The store
// holds at most one as current, replaced wholesale on each update.
type Snapshot struct {
	Timestamp    time.Time  `json:"timestamp"`
	Speed        float64    `json:"speed"`
	Battery      Battery    `json:"battery"`
	Tires        Tires      `json:"tires"`
	Drivetrain   Drivetrain `json:"drivetrain"`
	EV           EV         `json:"ev_status"`
	GPS          GPS        `json:"gps"`
	Odometer     float64    `json:"odometer"`
	FuelLevel    float64    `json:"fuel_level"`
	EngineStatus string     `json:"engine_status"`
	Variant      Variant    `json:"vehicle_variant"`
}

// DefaultSnapshot returns the snapshot the store exposes before the first
// simulator tick and after a reset.
func DefaultSnapshot(now time.Time) Snapshot {
	return Snapshot{
		Timestamp: now,
		Speed:     60,
		Battery: Battery{
			SoC:         85,
			Voltage:     395,
			Temperature: 28,
			Health:      "Good",
		},
		Tires: Tires{
			FrontLeft:  32.0,
			FrontRight: 31.5,
			RearLeft:   31.8,
			RearRight:  32.2,
		},
		Drivetrain: Drivetrain{
			Gear: "D",
		},
		EV: EV{
			Range: 280,
		},
		GPS: GPS{
			Latitude:  12.9716,
			Longitude: 77.5946,
		},
		Odometer:     15234.5,
		FuelLevel:    100,
		EngineStatus: "running",
		Variant:      VariantEV,
	}
}

// BatteryHealthLabel maps a state of charge to its health label.
func BatteryHealthLabel(soc float64) string {
	switch {
	case soc < 20:
		return "Low"
	case soc < 50:
		return "Fair"
	default:
		return "Good"
	}
}
