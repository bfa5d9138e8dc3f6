package sim

import (
	"math"
	"math/rand"
	"time"

	"codeberg.org/mutker/vehicled/internal/logger"
	"codeberg.org/mutker/vehicled/internal/vehicle"
)

const (
	maxSpeed        = 140.0
	highSpeedFloor  = 105.0
	highSpeedCeil   = 130.0
	directionFlipP  = 0.05
	harshBrakeP     = 0.015
	numericGearP    = 0.02
	tireDropP       = 0.01
	minTirePressure = 15.0
	maxTirePressure = 40.0
	maxSteering     = 540.0
	steeringDecay   = 0.95
	metersPerDegree = 111320.0
)

// physics carries the mutable signal state between ticks.
type physics struct {
	variant vehicle.Variant
	tick    int

	speed     float64
	direction float64
	throttle  float64
	brake     float64
	gear      string
	steering  float64

	soc     float64
	voltage float64
	temp    float64
	evRange float64
	regen   bool
	fuel    float64

	tires [4]float64

	heading float64
	lat     float64
	lon     float64

	odometer float64
}

func newPhysics(variant vehicle.Variant) physics {
	p := physics{
		variant:   variant,
		direction: 1,
		gear:      "P",
		soc:       95,
		voltage:   400,
		temp:      25,
		evRange:   350,
		fuel:      100,
		tires:     [4]float64{32.0, 31.5, 31.8, 32.2},
		lat:       12.9716,
		lon:       77.5946,
		odometer:  15000,
	}
	if variant == vehicle.VariantICE {
		// Starter battery, stays near full.
		p.soc = 100
	}

	return p
}

func (p *physics) advance(rng *rand.Rand) {
	p.tick++

	delta := p.advanceSpeed(rng)
	p.advancePedals(rng, delta)
	p.advanceGear(rng)
	p.advanceSteering(rng)
	p.advanceBattery(rng)
	p.advanceTires(rng)
	p.advancePosition(rng)

	p.odometer += p.speed / 3600
}

func (p *physics) advanceSpeed(rng *rand.Rand) float64 {
	if rng.Float64() < directionFlipP {
		p.direction = -p.direction
	}

	delta := uniform(rng, 1, 5) * p.direction
	p.speed = clamp(p.speed+delta, 0, maxSpeed)

	// Hold a high-speed stretch periodically so the sustained-speed rule
	// has something to chew on.
	if p.tick%50 < 15 && p.tick > 20 {
		p.speed = uniform(rng, highSpeedFloor, highSpeedCeil)
	}

	return delta
}

// advancePedals correlates throttle and brake with the speed change.
func (p *physics) advancePedals(rng *rand.Rand, delta float64) {
	if delta > 0 {
		p.throttle = math.Min(100, math.Abs(delta)*15+uniform(rng, 0, 10))
		p.brake = 0
	} else {
		p.throttle = 0
		p.brake = math.Min(100, math.Abs(delta)*12+uniform(rng, 0, 8))
	}

	if rng.Float64() < harshBrakeP {
		p.brake = uniform(rng, 85, 100)
		p.throttle = 0
	}
}

func (p *physics) advanceGear(rng *rand.Rand) {
	if p.speed < 1 {
		p.gear = "P"
	} else {
		p.gear = "D"
	}
	if p.speed > 5 && rng.Float64() < numericGearP {
		p.gear = []string{"1", "2", "3"}[rng.Intn(3)]
	}
}

func (p *physics) advanceSteering(rng *rand.Rand) {
	p.steering = clamp(p.steering+uniform(rng, -10, 10), -maxSteering, maxSteering)
	// Tend back to center.
	p.steering *= steeringDecay
}

func (p *physics) advanceBattery(rng *rand.Rand) {
	switch p.variant {
	case vehicle.VariantICE:
		p.soc = math.Max(90, 100-uniform(rng, 0, 0.01)*float64(p.tick))
		p.voltage = 12 + (p.soc/100)*2
		p.temp = 25 + uniform(rng, -2, 3)
		p.evRange = 0
		p.regen = false
		p.fuel = math.Max(0, p.fuel-uniform(rng, 0.02, 0.1))
	case vehicle.VariantHybrid:
		p.soc -= uniform(rng, 0.02, 0.08)
		if rng.Float64() < 0.01 {
			p.soc -= uniform(rng, 2, 4)
		}
		p.soc = clamp(p.soc, 15, 100)
		p.voltage = 350 + (p.soc/100)*50
		p.temp = 25 + uniform(rng, -2, 5)
		p.evRange = math.Max(0, p.soc*(4.0-p.speed/120))
		p.regen = p.brake > 30
		p.fuel = math.Max(0, p.fuel-uniform(rng, 0.01, 0.05))
	default:
		p.soc -= uniform(rng, 0.05, 0.2)
		if rng.Float64() < 0.02 {
			p.soc -= uniform(rng, 5, 8)
			logger.Debug().Msg("Battery rapid drop event")
		}
		p.soc = clamp(p.soc, 5, 100)
		p.voltage = 350 + (p.soc/100)*50
		p.temp = 25 + uniform(rng, -2, 5)
		p.evRange = math.Max(0, p.soc*(5.5-p.speed/100))
		p.regen = p.brake > 30
	}
}

func (p *physics) advanceTires(rng *rand.Rand) {
	for i := range p.tires {
		p.tires[i] += uniform(rng, -0.1, 0.1)
	}

	if rng.Float64() < tireDropP {
		i := rng.Intn(len(p.tires))
		p.tires[i] -= uniform(rng, 8, 15)
		logger.Debug().
			Str("tire", vehicle.TirePositions[i].Signal()).
			Msg("Tire pressure sudden drop")
	}

	for i := range p.tires {
		p.tires[i] = clamp(p.tires[i], minTirePressure, maxTirePressure)
	}
}

// advancePosition dead-reckons the GPS position from heading and speed.
func (p *physics) advancePosition(rng *rand.Rand) {
	p.heading += uniform(rng, -0.1, 0.1)
	ms := p.speed / 3.6
	p.lat += (ms * math.Cos(p.heading)) / metersPerDegree
	p.lon += (ms * math.Sin(p.heading)) / (metersPerDegree * math.Cos(p.lat*math.Pi/180))
}

func (p *physics) snapshot(now time.Time) vehicle.Snapshot {
	engineStatus := "motor_running"
	if p.variant == vehicle.VariantICE {
		engineStatus = "running"
	}

	return vehicle.Snapshot{
		Timestamp: now,
		Speed:     round1(p.speed),
		Battery: vehicle.Battery{
			SoC:         round1(p.soc),
			Voltage:     round1(p.voltage),
			Temperature: round1(p.temp),
			Health:      vehicle.BatteryHealthLabel(p.soc),
		},
		Tires: vehicle.Tires{
			FrontLeft:  round1(p.tires[0]),
			FrontRight: round1(p.tires[1]),
			RearLeft:   round1(p.tires[2]),
			RearRight:  round1(p.tires[3]),
		},
		Drivetrain: vehicle.Drivetrain{
			Throttle:      round1(p.throttle),
			Brake:         round1(p.brake),
			Gear:          p.gear,
			SteeringAngle: round1(p.steering),
		},
		EV: vehicle.EV{
			Range:        round1(p.evRange),
			Charging:     false,
			RegenBraking: p.regen,
		},
		GPS: vehicle.GPS{
			Latitude:  round6(p.lat),
			Longitude: round6(p.lon),
		},
		Odometer:     round1(p.odometer),
		FuelLevel:    round1(p.fuel),
		EngineStatus: engineStatus,
		Variant:      p.variant,
	}
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

func clamp(value, floor, ceiling float64) float64 {
	return math.Max(floor, math.Min(ceiling, value))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
