package models

import (
	"encoding/json"
	"math"
	"time"
)

// DateLayout is the calendar date format used at the read boundary.
const DateLayout = "2006-01-02"

// MissingSentinel marks a measurement that was never taken.
const MissingSentinel = -9999

// WeatherRecord is one daily observation for a station.
// Natural key: (StationID, Date). NULL values represented as pointers.
type WeatherRecord struct {
	ID            int64     `json:"id" db:"id"`
	StationID     string    `json:"station_id" db:"station_id"`
	Date          time.Time `json:"date" db:"date"`
	MaxTemp       *float64  `json:"max_temp" db:"max_temp"`           // °C
	MinTemp       *float64  `json:"min_temp" db:"min_temp"`           // °C
	Precipitation *float64  `json:"precipitation" db:"precipitation"` // cm
}

// MarshalJSON renders Date as a calendar date rather than a timestamp.
func (w WeatherRecord) MarshalJSON() ([]byte, error) {
	type alias WeatherRecord
	return json.Marshal(struct {
		alias
		Date string `json:"date"`
	}{
		alias: alias(w),
		Date:  w.Date.Format(DateLayout),
	})
}

// CropYieldRecord is the harvested yield for a station and year.
// Natural key: (StationID, Year).
type CropYieldRecord struct {
	ID         int64   `json:"id" db:"id"`
	StationID  string  `json:"station_id" db:"station_id"`
	Year       int     `json:"year" db:"year"`
	YieldValue float64 `json:"yield_value" db:"yield_value"`
}

// StatsRecord is the per station-year aggregate computed by weather_stats_view.
// It is read-only: nothing in this codebase inserts or updates it.
type StatsRecord struct {
	StationID          string   `json:"station_id" db:"station_id"`
	Year               int      `json:"year" db:"year"`
	AvgMaxTemp         *float64 `json:"avg_max_temp" db:"avg_max_temp"`
	AvgMinTemp         *float64 `json:"avg_min_temp" db:"avg_min_temp"`
	TotalPrecipitation *float64 `json:"total_precipitation" db:"total_precipitation"`
}

// Sanitize replaces NaN and ±Inf aggregates with nil so they serialize as null.
func (s *StatsRecord) Sanitize() {
	s.AvgMaxTemp = FiniteOrNil(s.AvgMaxTemp)
	s.AvgMinTemp = FiniteOrNil(s.AvgMinTemp)
	s.TotalPrecipitation = FiniteOrNil(s.TotalPrecipitation)
}

// StationSummary describes the observations held for one station.
type StationSummary struct {
	StationID        string    `json:"station_id" db:"station_id"`
	ObservationCount int       `json:"observation_count" db:"observation_count"`
	FirstDate        time.Time `json:"first_date" db:"first_date"`
	LastDate         time.Time `json:"last_date" db:"last_date"`
}

// FiniteOrNil returns v unless it points at NaN or an infinity.
func FiniteOrNil(v *float64) *float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	return v
}

// Float64 returns a pointer to v.
func Float64(v float64) *float64 {
	return &v
}
