package service

import (
	"math"

	"github.com/kjstillabower/farm-weather-service/internal/models"
)

// Default counting band used unless both min and max are supplied.
const (
	DefaultBandMin = 0.0
	DefaultBandMax = 7.0
)

// CountingBand returns [min, max] when both are supplied, otherwise the default band.
func CountingBand(minTemp, maxTemp *float64) models.TempRange {
	if minTemp != nil && maxTemp != nil {
		return models.TempRange{Min: *minTemp, Max: *maxTemp}
	}
	return models.TempRange{Min: DefaultBandMin, Max: DefaultBandMax}
}

// AggregateDay reduces one day of hourly samples to a DailyAggregate.
//
// Hours inside band (inclusive) are counted. The average covers every sample
// not below a supplied min and not above a supplied max, rounded to one decimal.
// Samples without a temperature are ignored. ok is false when no sample
// contributes to the average.
func AggregateDay(day models.HistoryDay, minTemp, maxTemp *float64, band models.TempRange) (row models.DailyAggregate, ok bool) {
	var sum float64
	var n, inBand int

	for _, h := range day.Hour {
		if h.TempC == nil {
			continue
		}
		t := *h.TempC
		if t >= band.Min && t <= band.Max {
			inBand++
		}
		if minTemp != nil && t < *minTemp {
			continue
		}
		if maxTemp != nil && t > *maxTemp {
			continue
		}
		sum += t
		n++
	}

	if n == 0 {
		return models.DailyAggregate{}, false
	}
	return models.DailyAggregate{
		Date:           day.Date,
		TempC:          round1(sum / float64(n)),
		TempHoursCount: inBand,
	}, true
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
