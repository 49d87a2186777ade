package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/farm-weather-service/internal/client"
	"github.com/kjstillabower/farm-weather-service/internal/models"
	"github.com/kjstillabower/farm-weather-service/internal/observability"
)

// ErrInvalidDateRange is returned when a range query starts after it ends.
var ErrInvalidDateRange = errors.New("start date must be before or equal to end date")

// WeatherService serves current, historical and aggregated historical weather
// by calling the upstream client. Nothing is cached; every call goes upstream.
type WeatherService struct {
	client client.WeatherClient
}

// NewWeatherService creates a new WeatherService backed by the given client.
func NewWeatherService(client client.WeatherClient) *WeatherService {
	return &WeatherService{client: client}
}

// GetCurrentWeather returns the provider's current-conditions document unchanged.
func (s *WeatherService) GetCurrentWeather(ctx context.Context, lat, lng float64) (json.RawMessage, error) {
	start := time.Now()
	logger := observability.LoggerFromContext(ctx)

	data, err := s.client.GetCurrentWeather(ctx, lat, lng)
	if err != nil {
		return nil, fmt.Errorf("fetch current weather: %w", err)
	}
	logger.Debug("current weather served",
		zap.Float64("lat", lat),
		zap.Float64("lng", lng),
		zap.Duration("duration", time.Since(start)))
	return data, nil
}

// GetHistoricalWeather returns the provider's history document for one date unchanged.
func (s *WeatherService) GetHistoricalWeather(ctx context.Context, lat, lng float64, date string) (json.RawMessage, error) {
	start := time.Now()
	logger := observability.LoggerFromContext(ctx)

	data, err := s.client.GetHistoricalWeather(ctx, lat, lng, date)
	if err != nil {
		return nil, fmt.Errorf("fetch historical weather for %s: %w", date, err)
	}
	logger.Debug("historical weather served",
		zap.Float64("lat", lat),
		zap.Float64("lng", lng),
		zap.String("date", date),
		zap.Duration("duration", time.Since(start)))
	return data, nil
}

// historyResponse is the subset of a provider history document the aggregation reads.
type historyResponse struct {
	Forecast struct {
		Forecastday []models.HistoryDay `json:"forecastday"`
	} `json:"forecast"`
}

// GetHistoricalRange fetches every calendar day from q.StartDate to q.EndDate inclusive,
// one upstream call at a time, and aggregates each into a DailyAggregate.
// Days whose fetch fails or that carry no usable samples are left out of the result.
// Rows are returned sorted by date. If ctx ends mid-range the context error is returned.
func (s *WeatherService) GetHistoricalRange(ctx context.Context, q models.RangeQuery) (models.RangeResult, error) {
	if q.StartDate.After(q.EndDate) {
		return models.RangeResult{}, ErrInvalidDateRange
	}

	start := time.Now()
	logger := observability.LoggerFromContext(ctx)
	band := CountingBand(q.MinTemp, q.MaxTemp)
	rows := make([]models.DailyAggregate, 0)

	for day := q.StartDate; !day.After(q.EndDate); day = day.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			return models.RangeResult{}, err
		}
		date := day.Format(models.DateLayout)

		hist, err := s.fetchDay(ctx, q.Lat, q.Lng, date)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return models.RangeResult{}, ctxErr
			}
			observability.RangeDaysTotal.WithLabelValues("failed").Inc()
			logger.Warn("historical day fetch failed, skipping",
				zap.String("date", date),
				zap.Error(err))
			continue
		}
		if hist == nil {
			observability.RangeDaysTotal.WithLabelValues("empty").Inc()
			continue
		}

		row, ok := AggregateDay(*hist, q.MinTemp, q.MaxTemp, band)
		if !ok {
			observability.RangeDaysTotal.WithLabelValues("empty").Inc()
			continue
		}
		if row.Date == "" {
			row.Date = date
		}
		observability.RangeDaysTotal.WithLabelValues("aggregated").Inc()
		rows = append(rows, row)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Date < rows[j].Date
	})

	logger.Debug("historical range served",
		zap.String("start_date", q.StartDate.Format(models.DateLayout)),
		zap.String("end_date", q.EndDate.Format(models.DateLayout)),
		zap.Int("rows", len(rows)),
		zap.Duration("duration", time.Since(start)))

	return models.RangeResult{Data: rows, TempRange: band}, nil
}

// fetchDay returns forecastday[0] for date, or nil when the document has none.
func (s *WeatherService) fetchDay(ctx context.Context, lat, lng float64, date string) (*models.HistoryDay, error) {
	raw, err := s.client.GetHistoricalWeather(ctx, lat, lng, date)
	if err != nil {
		return nil, err
	}
	var resp historyResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode history for %s: %w", date, err)
	}
	if len(resp.Forecast.Forecastday) == 0 {
		return nil, nil
	}
	return &resp.Forecast.Forecastday[0], nil
}
