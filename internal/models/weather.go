package models

import "time"

// DateLayout is the calendar date format used on the wire and by the weather provider.
const DateLayout = "2006-01-02"

// WeatherQuery is a validated GET /weather request. Date is empty for current weather.
type WeatherQuery struct {
	Lat  float64
	Lng  float64
	Date string
}

// RangeQuery is a validated GET /weather/filtered request.
// MinTemp and MaxTemp are nil when the caller did not supply them.
type RangeQuery struct {
	Lat       float64
	Lng       float64
	StartDate time.Time
	EndDate   time.Time
	MinTemp   *float64
	MaxTemp   *float64
}

// HourSample is one hourly reading from the provider. TempC is nil when the provider omits it.
type HourSample struct {
	Time  string   `json:"time"`
	TempC *float64 `json:"temp_c"`
}

// HistoryDay is the single forecastday entry of a provider history response.
type HistoryDay struct {
	Date string       `json:"date"`
	Hour []HourSample `json:"hour"`
}

// DailyAggregate summarizes one day of a historical range.
type DailyAggregate struct {
	Date           string  `json:"date"`
	TempC          float64 `json:"temp_c"`
	TempHoursCount int     `json:"temp_hours_count"`
}

// TempRange is the inclusive temperature band used to count hours in range.
type TempRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// RangeResult is the GET /weather/filtered response body.
type RangeResult struct {
	Data      []DailyAggregate `json:"data"`
	TempRange TempRange        `json:"temp_range"`
}
