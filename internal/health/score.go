// Package health estimates how natural a sender's traffic looks.
//
// The score is the product of four factors, scaled to 0..100:
//
//	base        exp(-0.5 * ((avgPerDay - 35) / 15)^2)
//	consistency max(0, 1 - min(stdDev/10, 0.3))
//	activity    max(0, 1 - zeroDays/totalDays*0.4)
//	delivery    sent / total executions
//
// Volume (avgPerDay, stdDev, activity) comes from daily HealthMetric rows
// when any exist, otherwise from executions grouped by calendar day.
// Delivery always comes from executions.
package health

import (
	"math"
	"time"

	"github.com/unclebandit/warmup-engine/internal/model"
)

const (
	OptimalPerDay = 35.0
	Spread        = 15.0
	// NeutralScore is returned for empty histories and on internal failure.
	NeutralScore = 100.0
	Window       = 30 * 24 * time.Hour
)

// Breakdown carries every intermediate value of a score computation.
type Breakdown struct {
	Total        int
	Sent         int
	Failed       int
	DeliveryRate float64 // percent
	AvgPerDay    float64
	StdDev       float64
	Base         float64
	Consistency  float64
	Activity     float64
	Score        float64
}

// Compute scores a session from its recent metrics and executions. Both
// slices are expected to already be limited to the scoring window.
func Compute(metrics []*model.HealthMetric, executions []*model.Execution) Breakdown {
	if len(metrics) == 0 && len(executions) == 0 {
		return Breakdown{DeliveryRate: 100, Base: 1, Consistency: 1, Activity: 1, Score: NeutralScore}
	}

	b := Breakdown{Total: len(executions), Activity: 1}
	for _, e := range executions {
		switch e.Status {
		case model.ExecutionSent:
			b.Sent++
		case model.ExecutionFailed:
			b.Failed++
		}
	}
	b.DeliveryRate = 100
	if b.Total > 0 {
		b.DeliveryRate = float64(b.Sent) / float64(b.Total) * 100
	}

	if len(metrics) > 0 {
		daily := make([]float64, len(metrics))
		zeroDays := 0
		for i, m := range metrics {
			daily[i] = float64(m.MessagesSent)
			if m.MessagesSent == 0 {
				zeroDays++
			}
		}
		b.AvgPerDay, b.StdDev = meanStdDev(daily)
		b.Activity = math.Max(0, 1-float64(zeroDays)/float64(len(metrics))*0.4)
	} else {
		byDay := map[string]float64{}
		for _, e := range executions {
			byDay[e.CreatedAt.Format("2006-01-02")]++
		}
		daily := make([]float64, 0, len(byDay))
		for _, n := range byDay {
			daily = append(daily, n)
		}
		b.AvgPerDay, b.StdDev = meanStdDev(daily)
	}

	b.Base = Gaussian(b.AvgPerDay, OptimalPerDay, Spread)
	b.Consistency = math.Max(0, 1-math.Min(b.StdDev/10, 0.3))
	b.Score = Clamp(b.Base * b.Consistency * b.Activity * (b.DeliveryRate / 100) * 100)
	return b
}

// Gaussian is an unnormalized bell curve peaking at 1 when x == center.
func Gaussian(x, center, spread float64) float64 {
	z := (x - center) / spread
	return math.Exp(-0.5 * z * z)
}

// Clamp bounds a score to [0, 100]. NaN maps to NeutralScore.
func Clamp(score float64) float64 {
	if math.IsNaN(score) {
		return NeutralScore
	}
	return math.Max(0, math.Min(100, score))
}

// population standard deviation
func meanStdDev(values []float64) (mean, stdDev float64) {
	if len(values) == 0 {
		return 0, 0
	}
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	var variance float64
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(values))
	return mean, math.Sqrt(variance)
}
