// Package predict fits simple trends over the store's rolling windows and
// derives forecasts and a composite driving score. Everything is a pure
// function over copied series; nothing here touches shared state.
package predict

import (
	"fmt"
	"math"
	"time"

	"codeberg.org/mutker/vehicled/internal/vehicle"
)

const (
	minSamples      = 10
	criticalSoC     = 10.0
	maxConfidence   = 0.95
	projectionSecs  = 60
	tireCriticalPSI = 25.0
	tireWarningPSI  = 28.0
	packCapacityKWh = 77.5
	neutralScore    = 80.0
)

// Prediction is a single trend forecast over one signal.
type Prediction struct {
	Signal             string           `json:"signal"`
	Type               string           `json:"prediction_type"`
	CurrentValue       float64          `json:"current_value"`
	PredictedValue     float64          `json:"predicted_value"`
	Confidence         float64          `json:"confidence"`
	TimeHorizonSeconds int              `json:"time_horizon_seconds"`
	Message            string           `json:"message"`
	Severity           vehicle.Severity `json:"severity"`
}

// Score grades recent driving behavior on a 0-100 scale.
type Score struct {
	Overall    float64      `json:"overall_score"`
	Speed      float64      `json:"speed_score"`
	Braking    float64      `json:"braking_score"`
	Efficiency float64      `json:"efficiency_score"`
	Details    ScoreDetails `json:"details"`
}

type ScoreDetails struct {
	AvgSpeedKmh    float64 `json:"avg_speed_kmh"`
	MaxSpeedKmh    float64 `json:"max_speed_kmh"`
	AvgSpeedChange float64 `json:"avg_speed_change"`
	DataPoints     int     `json:"data_points"`
}

// Report is the full analytics result returned by the API.
type Report struct {
	Predictions     []Prediction `json:"predictions"`
	DrivingScore    *Score       `json:"driving_score"`
	SamplesAnalyzed int          `json:"data_points_analyzed"`
	GeneratedAt     time.Time    `json:"timestamp"`
}

// linearTrend fits y = slope*x + intercept by ordinary least squares over
// the sample index. Zero-variance input yields slope 0.
func linearTrend(values []float64) (slope, intercept float64) {
	n := len(values)
	if n == 0 {
		return 0, 0
	}
	if n < 2 {
		return 0, values[0]
	}

	xMean := float64(n-1) / 2
	var yMean float64
	for _, v := range values {
		yMean += v
	}
	yMean /= float64(n)

	var num, den float64
	for i, v := range values {
		dx := float64(i) - xMean
		num += dx * (v - yMean)
		den += dx * dx
	}
	if den == 0 {
		return 0, yMean
	}

	slope = num / den

	return slope, yMean - slope*xMean
}

// rSquared reports the goodness of fit. A flat series fits perfectly only
// when the residuals are also zero.
func rSquared(values []float64, slope, intercept float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}

	var yMean float64
	for _, v := range values {
		yMean += v
	}
	yMean /= float64(n)

	var ssTot, ssRes float64
	for i, v := range values {
		ssTot += (v - yMean) * (v - yMean)
		fit := slope*float64(i) + intercept
		ssRes += (v - fit) * (v - fit)
	}

	if ssTot == 0 {
		if ssRes == 0 {
			return 1
		}
		return 0
	}

	return math.Max(0, 1-ssRes/ssTot)
}

// BatteryDepletion projects when the state of charge reaches the critical
// level. Fewer than ten samples yield no prediction.
func BatteryDepletion(soc []float64) *Prediction {
	if len(soc) < minSamples {
		return nil
	}

	slope, intercept := linearTrend(soc)
	current := soc[len(soc)-1]

	if slope >= 0 {
		return &Prediction{
			Signal:         "battery_soc",
			Type:           "battery_depletion",
			CurrentValue:   round1(current),
			PredictedValue: round1(current),
			Confidence:     0.5,
			Message:        "Battery SoC is stable or increasing",
			Severity:       vehicle.SeverityInfo,
		}
	}

	horizon := int((criticalSoC - current) / slope)
	if horizon < 0 {
		horizon = 0
	}
	predicted := math.Max(0, current+slope*projectionSecs)
	confidence := math.Min(maxConfidence, rSquared(soc, slope, intercept))

	severity := vehicle.SeverityInfo
	switch {
	case horizon < 300:
		severity = vehicle.SeverityCritical
	case horizon < 900:
		severity = vehicle.SeverityWarning
	}

	return &Prediction{
		Signal:             "battery_soc",
		Type:               "battery_depletion",
		CurrentValue:       round1(current),
		PredictedValue:     round1(predicted),
		Confidence:         round2(confidence),
		TimeHorizonSeconds: horizon,
		Message: fmt.Sprintf("Battery SoC declining at %.2f%%/sec. Predicted to reach 10%% in %ds. SoC in 60s: %.1f%%",
			math.Abs(slope), horizon, predicted),
		Severity: severity,
	}
}

// TireWear projects one tire's pressure sixty seconds ahead.
func TireWear(pressures []float64, pos vehicle.TirePosition) *Prediction {
	if len(pressures) < minSamples {
		return nil
	}

	slope, intercept := linearTrend(pressures)
	current := pressures[len(pressures)-1]
	predicted := current + slope*projectionSecs

	severity := vehicle.SeverityInfo
	switch {
	case predicted < tireCriticalPSI:
		severity = vehicle.SeverityCritical
	case predicted < tireWarningPSI:
		severity = vehicle.SeverityWarning
	}

	return &Prediction{
		Signal:             pos.Signal(),
		Type:               "tire_wear",
		CurrentValue:       round1(current),
		PredictedValue:     round1(predicted),
		Confidence:         round2(math.Min(maxConfidence, rSquared(pressures, slope, intercept))),
		TimeHorizonSeconds: projectionSecs,
		Message: fmt.Sprintf("%s tire pressure trend: %.3f PSI/sec. Predicted in 60s: %.1f PSI",
			pos.Label(), slope, predicted),
		Severity: severity,
	}
}

// DrivingScore composites speed discipline, braking smoothness and energy
// use over the recent windows. Fewer than ten speed samples yield no score.
func DrivingScore(speeds, soc []float64) *Score {
	if len(speeds) < minSamples {
		return nil
	}

	var sum float64
	maxSpeed := speeds[0]
	for _, v := range speeds {
		sum += v
		if v > maxSpeed {
			maxSpeed = v
		}
	}
	avgSpeed := sum / float64(len(speeds))

	speedScore := clampScore(100 - 2*math.Max(0, maxSpeed-120))

	var deltaSum float64
	for i := 1; i < len(speeds); i++ {
		deltaSum += math.Abs(speeds[i] - speeds[i-1])
	}
	avgDelta := deltaSum / float64(len(speeds)-1)
	brakingScore := clampScore(100 - 10*avgDelta)

	efficiencyScore := neutralScore
	if len(soc) >= 2 {
		socUsed := soc[0] - soc[len(soc)-1]
		kmDriven := avgSpeed * float64(len(speeds)) / 3600
		if kmDriven > 0 && socUsed > 0 {
			kwhPerKm := socUsed * packCapacityKWh / 100 / kmDriven
			efficiencyScore = clampScore(100 - 5*kwhPerKm)
		}
	}

	overall := clampScore(0.3*speedScore + 0.4*brakingScore + 0.3*efficiencyScore)

	return &Score{
		Overall:    round1(overall),
		Speed:      round1(speedScore),
		Braking:    round1(brakingScore),
		Efficiency: round1(efficiencyScore),
		Details: ScoreDetails{
			AvgSpeedKmh:    round1(avgSpeed),
			MaxSpeedKmh:    round1(maxSpeed),
			AvgSpeedChange: round2(avgDelta),
			DataPoints:     len(speeds),
		},
	}
}

// BuildReport assembles the battery forecast, one forecast per tire and the
// driving score into a single report.
func BuildReport(soc, speeds []float64, tires map[vehicle.TirePosition][]float64, now time.Time) Report {
	predictions := make([]Prediction, 0, 1+len(vehicle.TirePositions))

	if p := BatteryDepletion(soc); p != nil {
		predictions = append(predictions, *p)
	}
	for _, pos := range vehicle.TirePositions {
		if p := TireWear(tires[pos], pos); p != nil {
			predictions = append(predictions, *p)
		}
	}

	return Report{
		Predictions:     predictions,
		DrivingScore:    DrivingScore(speeds, soc),
		SamplesAnalyzed: len(speeds) + len(soc),
		GeneratedAt:     now,
	}
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}

	return v
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
