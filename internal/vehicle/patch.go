package vehicle

import "time"

// Patch is a partial snapshot used by external feeders. Every field is
// optional; nil fields leave the corresponding snapshot value untouched.
type Patch struct {
	Speed              *float64 `json:"speed,omitempty"`
	BatterySoC         *float64 `json:"battery_soc,omitempty"`
	BatteryVoltage     *float64 `json:"battery_voltage,omitempty"`
	BatteryTemperature *float64 `json:"battery_temperature,omitempty"`
	TireFrontLeft      *float64 `json:"tire_fl,omitempty"`
	TireFrontRight     *float64 `json:"tire_fr,omitempty"`
	TireRearLeft       *float64 `json:"tire_rl,omitempty"`
	TireRearRight      *float64 `json:"tire_rr,omitempty"`
	Throttle           *float64 `json:"throttle,omitempty"`
	Brake              *float64 `json:"brake,omitempty"`
	Gear               *string  `json:"gear,omitempty"`
	SteeringAngle      *float64 `json:"steering_angle,omitempty"`
	EVRange            *float64 `json:"ev_range,omitempty"`
	Latitude           *float64 `json:"latitude,omitempty"`
	Longitude          *float64 `json:"longitude,omitempty"`
	Odometer           *float64 `json:"odometer,omitempty"`
	FuelLevel          *float64 `json:"fuel_level,omitempty"`
	Variant            *string  `json:"vehicle_variant,omitempty"`
}

// Apply merges the non-nil patch fields over base and stamps the result
// with now. Fields absent from the patch keep their base values, including
// derived ones like battery health.
func (p Patch) Apply(base Snapshot, now time.Time) Snapshot {
	merged := base
	merged.Timestamp = now

	if p.Speed != nil {
		merged.Speed = *p.Speed
	}
	if p.BatterySoC != nil {
		merged.Battery.SoC = *p.BatterySoC
		merged.Battery.Health = BatteryHealthLabel(*p.BatterySoC)
	}
	if p.BatteryVoltage != nil {
		merged.Battery.Voltage = *p.BatteryVoltage
	}
	if p.BatteryTemperature != nil {
		merged.Battery.Temperature = *p.BatteryTemperature
	}
	if p.TireFrontLeft != nil {
		merged.Tires.FrontLeft = *p.TireFrontLeft
	}
	if p.TireFrontRight != nil {
		merged.Tires.FrontRight = *p.TireFrontRight
	}
	if p.TireRearLeft != nil {
		merged.Tires.RearLeft = *p.TireRearLeft
	}
	if p.TireRearRight != nil {
		merged.Tires.RearRight = *p.TireRearRight
	}
	if p.Throttle != nil {
		merged.Drivetrain.Throttle = *p.Throttle
	}
	if p.Brake != nil {
		merged.Drivetrain.Brake = *p.Brake
	}
	if p.Gear != nil {
		merged.Drivetrain.Gear = *p.Gear
	}
	if p.SteeringAngle != nil {
		merged.Drivetrain.SteeringAngle = *p.SteeringAngle
	}
	if p.EVRange != nil {
		merged.EV.Range = *p.EVRange
	}
	if p.Latitude != nil {
		merged.GPS.Latitude = *p.Latitude
	}
	if p.Longitude != nil {
		merged.GPS.Longitude = *p.Longitude
	}
	if p.Odometer != nil {
		merged.Odometer = *p.Odometer
	}
	if p.FuelLevel != nil {
		merged.FuelLevel = *p.FuelLevel
	}
	if p.Variant != nil {
		merged.Variant = ParseVariant(*p.Variant)
	}

	return merged
}
