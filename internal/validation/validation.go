package validation

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/kjstillabower/farm-weather-service/internal/models"
)

// DefaultLookbackDays is how far back historical dates may reach.
const DefaultLookbackDays = 365

var (
	// ErrInvalidQuery wraps every field-level failure (missing, non-numeric, malformed date).
	ErrInvalidQuery = errors.New("invalid query")
	// ErrDateOutOfWindow is returned when a date is in the future or older than the lookback window.
	ErrDateOutOfWindow = errors.New("date outside allowed window")
	// ErrDateRangeInverted is returned when start_date is after end_date.
	ErrDateRangeInverted = errors.New("start date must be before or equal to end date")
)

var validate = newValidator()

// decimalPattern accepts signed integers and decimals with optional leading or trailing digits
// and an optional exponent: "5", "-5", ".5", "5.", "1e3", "+2.5E-1".
var decimalPattern = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("decimal", func(fl validator.FieldLevel) bool {
		return decimalPattern.MatchString(fl.Field().String())
	})
	return v
}

type weatherParams struct {
	Lat  string `validate:"required,decimal"`
	Lng  string `validate:"required,decimal"`
	Date string `validate:"omitempty,datetime=2006-01-02"`
}

type rangeParams struct {
	Lat       string `validate:"required,decimal"`
	Lng       string `validate:"required,decimal"`
	StartDate string `validate:"required,datetime=2006-01-02"`
	EndDate   string `validate:"required,datetime=2006-01-02"`
	MinTemp   string `validate:"omitempty,decimal"`
	MaxTemp   string `validate:"omitempty,decimal"`
}

// queryNames maps struct fields to the query parameter names used in messages.
var queryNames = map[string]string{
	"Lat":       "lat",
	"Lng":       "lng",
	"Date":      "date",
	"StartDate": "start_date",
	"EndDate":   "end_date",
	"MinTemp":   "min_temp",
	"MaxTemp":   "max_temp",
}

// Window is the inclusive range of calendar dates accepted for historical lookups,
// evaluated against now: [today - LookbackDays, today].
type Window struct {
	LookbackDays int
	Now          time.Time
}

func (w Window) bounds() (earliest, latest time.Time) {
	days := w.LookbackDays
	if days <= 0 {
		days = DefaultLookbackDays
	}
	now := w.Now
	if now.IsZero() {
		now = time.Now()
	}
	latest = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return latest.AddDate(0, 0, -days), latest
}

// Contains reports whether the calendar date d lies inside the window.
func (w Window) Contains(d time.Time) bool {
	earliest, latest := w.bounds()
	return !d.Before(earliest) && !d.After(latest)
}

// ParseWeatherQuery validates GET /weather parameters: lat and lng are required numbers and
// date, when present, is a YYYY-MM-DD date inside the window.
func ParseWeatherQuery(values url.Values, window Window) (models.WeatherQuery, error) {
	p := weatherParams{
		Lat:  strings.TrimSpace(values.Get("lat")),
		Lng:  strings.TrimSpace(values.Get("lng")),
		Date: strings.TrimSpace(values.Get("date")),
	}
	if err := validate.Struct(p); err != nil {
		return models.WeatherQuery{}, describe(err)
	}

	q := models.WeatherQuery{Date: p.Date}
	q.Lat, _ = strconv.ParseFloat(p.Lat, 64)
	q.Lng, _ = strconv.ParseFloat(p.Lng, 64)

	if p.Date != "" {
		d, _ := time.Parse(models.DateLayout, p.Date)
		if !window.Contains(d) {
			return models.WeatherQuery{}, windowError("date", window)
		}
	}
	return q, nil
}

// ParseRangeQuery validates GET /weather/filtered parameters. Both dates are required and must
// lie inside the window with start <= end; min_temp and max_temp are optional numbers.
func ParseRangeQuery(values url.Values, window Window) (models.RangeQuery, error) {
	p := rangeParams{
		Lat:       strings.TrimSpace(values.Get("lat")),
		Lng:       strings.TrimSpace(values.Get("lng")),
		StartDate: strings.TrimSpace(values.Get("start_date")),
		EndDate:   strings.TrimSpace(values.Get("end_date")),
		MinTemp:   strings.TrimSpace(values.Get("min_temp")),
		MaxTemp:   strings.TrimSpace(values.Get("max_temp")),
	}
	if err := validate.Struct(p); err != nil {
		return models.RangeQuery{}, describe(err)
	}

	q := models.RangeQuery{
		MinTemp: optionalFloat(p.MinTemp),
		MaxTemp: optionalFloat(p.MaxTemp),
	}
	q.Lat, _ = strconv.ParseFloat(p.Lat, 64)
	q.Lng, _ = strconv.ParseFloat(p.Lng, 64)
	q.StartDate, _ = time.Parse(models.DateLayout, p.StartDate)
	q.EndDate, _ = time.Parse(models.DateLayout, p.EndDate)

	if !window.Contains(q.StartDate) {
		return models.RangeQuery{}, windowError("start_date", window)
	}
	if !window.Contains(q.EndDate) {
		return models.RangeQuery{}, windowError("end_date", window)
	}
	if q.StartDate.After(q.EndDate) {
		return models.RangeQuery{}, ErrDateRangeInverted
	}
	return q, nil
}

func optionalFloat(s string) *float64 {
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}

func windowError(field string, w Window) error {
	days := w.LookbackDays
	if days <= 0 {
		days = DefaultLookbackDays
	}
	return fmt.Errorf("%w: %s must be within the last %d days and not in the future", ErrDateOutOfWindow, field, days)
}

// describe turns validator errors into one readable message wrapping ErrInvalidQuery.
func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		name := queryNames[fe.Field()]
		if name == "" {
			name = strings.ToLower(fe.Field())
		}
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, name+" is required")
		case "decimal":
			msgs = append(msgs, name+" must be a number")
		case "datetime":
			msgs = append(msgs, name+" must be a date in YYYY-MM-DD format")
		default:
			msgs = append(msgs, name+" is invalid")
		}
	}
	return fmt.Errorf("%w: %s", ErrInvalidQuery, strings.Join(msgs, "; "))
}
