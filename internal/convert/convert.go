// Package convert derives the metric representation of a reading from its
// imperial source representation. Conversion is pure and forward-lossless:
// every metric reading has exactly one imperial reading with the same
// timestamp, and unknown sensor fields are carried through untouched.
package convert

import (
	"math"

	"github.com/DrMrsMoo/ambient-weather-heiligers/internal/types"
)

const (
	inHgToHpa = 33.8639
	mphToKmh  = 1.609344
	inToMm    = 25.4
)

// round2 rounds to two decimal places, matching the precision the station
// reports in its source units.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func fahrenheitToCelsius(f float64) float64 {
	return round2((f - 32) * 5 / 9)
}

// apply returns the converted value, or nil when the source is absent.
func apply(v *float64, fn func(float64) float64) *float64 {
	if v == nil {
		return nil
	}
	out := fn(*v)
	return &out
}

// ToMetric derives the metric reading for one imperial reading.
func ToMetric(imp types.Reading) types.Reading {
	scale := func(factor float64) func(float64) float64 {
		return func(v float64) float64 { return round2(v * factor) }
	}

	return types.Reading{
		TimestampMillis: imp.TimestampMillis,
		Date:            imp.Date,
		Location:        imp.Location,
		LastRain:        imp.LastRain,

		Humidity:       imp.Humidity,
		HumidityIn:     imp.HumidityIn,
		WindDir:        imp.WindDir,
		SolarRadiation: imp.SolarRadiation,
		UV:             imp.UV,
		BattOut:        imp.BattOut,

		TempC:           apply(imp.TempF, fahrenheitToCelsius),
		TempInC:         apply(imp.TempInF, fahrenheitToCelsius),
		DewPointC:       apply(imp.DewPointF, fahrenheitToCelsius),
		FeelsLikeC:      apply(imp.FeelsLikeF, fahrenheitToCelsius),
		BaromRelHpa:     apply(imp.BaromRelIn, scale(inHgToHpa)),
		BaromAbsHpa:     apply(imp.BaromAbsIn, scale(inHgToHpa)),
		WindSpeedKMH:    apply(imp.WindSpeedMPH, scale(mphToKmh)),
		WindGustKMH:     apply(imp.WindGustMPH, scale(mphToKmh)),
		MaxDailyGustKMH: apply(imp.MaxDailyGust, scale(mphToKmh)),
		HourlyRainMM:    apply(imp.HourlyRainIn, scale(inToMm)),
		DailyRainMM:     apply(imp.DailyRainIn, scale(inToMm)),
		WeeklyRainMM:    apply(imp.WeeklyRainIn, scale(inToMm)),
		MonthlyRainMM:   apply(imp.MonthlyRainIn, scale(inToMm)),
		TotalRainMM:     apply(imp.TotalRainIn, scale(inToMm)),

		Extra: imp.Extra,
	}
}

// BatchToMetric derives the metric batch for one imperial batch, covering
// the same span in the same order.
func BatchToMetric(imp *types.Batch) *types.Batch {
	if imp == nil {
		return nil
	}
	out := &types.Batch{
		Category:   types.CategoryMetric,
		FromMillis: imp.FromMillis,
		ToMillis:   imp.ToMillis,
		Readings:   make([]types.Reading, 0, len(imp.Readings)),
	}
	for _, r := range imp.Readings {
		out.Readings = append(out.Readings, ToMetric(r))
	}
	return out
}
