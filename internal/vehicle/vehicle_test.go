package vehicle_test

import (
	"testing"
	"time"

	"codeberg.org/mutker/vehicled/internal/vehicle"
	"github.com/stretchr/testify/assert"
)

func TestParseVariant(t *testing.T) {
	assert.Equal(t, vehicle.VariantEV, vehicle.ParseVariant("EV"))
	assert.Equal(t, vehicle.VariantHybrid, vehicle.ParseVariant("Hybrid"))
	assert.Equal(t, vehicle.VariantICE, vehicle.ParseVariant("ICE"))

	// Unknown variants default to EV rather than failing
	assert.Equal(t, vehicle.VariantEV, vehicle.ParseVariant("hovercraft"))
	assert.Equal(t, vehicle.VariantEV, vehicle.ParseVariant(""))
	assert.Equal(t, vehicle.VariantEV, vehicle.ParseVariant("ev"))
}

func TestBatteryHealthLabel(t *testing.T) {
	assert.Equal(t, "Good", vehicle.BatteryHealthLabel(85))
	assert.Equal(t, "Good", vehicle.BatteryHealthLabel(50))
	assert.Equal(t, "Fair", vehicle.BatteryHealthLabel(49.9))
	assert.Equal(t, "Fair", vehicle.BatteryHealthLabel(20))
	assert.Equal(t, "Low", vehicle.BatteryHealthLabel(19.9))
	assert.Equal(t, "Low", vehicle.BatteryHealthLabel(5))
}

func TestTirePositions(t *testing.T) {
	tires := vehicle.Tires{FrontLeft: 32.0, FrontRight: 31.5, RearLeft: 31.8, RearRight: 32.2}

	assert.Equal(t, 32.0, tires.Pressure(vehicle.FrontLeft))
	assert.Equal(t, 31.5, tires.Pressure(vehicle.FrontRight))
	assert.Equal(t, 31.8, tires.Pressure(vehicle.RearLeft))
	assert.Equal(t, 32.2, tires.Pressure(vehicle.RearRight))

	assert.Equal(t, "Front Left", vehicle.FrontLeft.Label())
	assert.Equal(t, "tire_pressure_rr", vehicle.RearRight.Signal())
	assert.Len(t, vehicle.TirePositions, 4)
}

func TestPatchApply(t *testing.T) {
	now := time.Now()
	base := vehicle.DefaultSnapshot(now.Add(-time.Minute))

	speed := 42.0
	merged := vehicle.Patch{Speed: &speed}.Apply(base, now)

	assert.Equal(t, 42.0, merged.Speed)
	assert.Equal(t, now, merged.Timestamp)

	// Every other field keeps the prior snapshot's value
	assert.Equal(t, base.Battery, merged.Battery)
	assert.Equal(t, base.Tires, merged.Tires)
	assert.Equal(t, base.Drivetrain, merged.Drivetrain)
	assert.Equal(t, base.EV, merged.EV)
	assert.Equal(t, base.GPS, merged.GPS)
	assert.Equal(t, base.Odometer, merged.Odometer)
	assert.Equal(t, base.EngineStatus, merged.EngineStatus)
	assert.Equal(t, base.Variant, merged.Variant)
}

func TestPatchApplyDerivesBatteryHealth(t *testing.T) {
	now := time.Now()
	base := vehicle.DefaultSnapshot(now)

	soc := 12.0
	merged := vehicle.Patch{BatterySoC: &soc}.Apply(base, now)

	assert.Equal(t, 12.0, merged.Battery.SoC)
	assert.Equal(t, "Low", merged.Battery.Health)
	assert.Equal(t, base.Battery.Voltage, merged.Battery.Voltage)
}

func TestPatchApplyVariant(t *testing.T) {
	now := time.Now()
	base := vehicle.DefaultSnapshot(now)

	ice := "ICE"
	merged := vehicle.Patch{Variant: &ice}.Apply(base, now)
	assert.Equal(t, vehicle.VariantICE, merged.Variant)

	bogus := "warp-drive"
	merged = vehicle.Patch{Variant: &bogus}.Apply(base, now)
	assert.Equal(t, vehicle.VariantEV, merged.Variant)
}
