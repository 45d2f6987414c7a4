package etl

import (
	"math"
	"strconv"
	"strings"
	"time"

	"weather-etl/internal/models"
)

// rawDateLayout is the YYYYMMDD form used by the weather files.
const rawDateLayout = "20060102"

// unitScale converts tenths of a unit into the stored unit.
const unitScale = 10.0

// TransformReport counts what the transform stage did with its input.
type TransformReport struct {
	InputRows      int `json:"input_rows"`
	InvalidDates   int `json:"invalid_dates"`
	InvalidValues  int `json:"invalid_values"`
	DroppedEmpty   int `json:"dropped_empty"`
	DroppedKeyless int `json:"dropped_keyless"`
	Duplicates     int `json:"duplicates"`
	OutputRows     int `json:"output_rows"`
}

// TransformWeather turns raw weather rows into typed records for stationID.
//
// Each row is processed as follows: the YYYYMMDD date is parsed (a bad date
// makes the row invalid since it is part of the natural key), -9999 sentinels
// become nil, remaining measurements are divided by ten, rows with no usable
// field are dropped, and for repeated (station_id, date) keys the first
// occurrence in input order is kept.
//
// The input slice is never modified.
func TransformWeather(rows []RawWeatherRow, stationID string) ([]models.WeatherRecord, TransformReport) {
	report := TransformReport{InputRows: len(rows)}
	out := make([]models.WeatherRecord, 0, len(rows))
	seen := make(map[time.Time]struct{}, len(rows))

	for _, row := range rows {
		maxTemp, okMax := scaledMeasurement(row.MaxTemp)
		minTemp, okMin := scaledMeasurement(row.MinTemp)
		precip, okPrecip := scaledMeasurement(row.Precipitation)
		for _, ok := range []bool{okMax, okMin, okPrecip} {
			if !ok {
				report.InvalidValues++
			}
		}

		date, dateOK := parseRawDate(row.Date)
		if !dateOK {
			if maxTemp == nil && minTemp == nil && precip == nil {
				report.DroppedEmpty++
			} else {
				report.InvalidDates++
			}
			continue
		}

		if _, dup := seen[date]; dup {
			report.Duplicates++
			continue
		}
		seen[date] = struct{}{}

		out = append(out, models.WeatherRecord{
			StationID:     stationID,
			Date:          date,
			MaxTemp:       maxTemp,
			MinTemp:       minTemp,
			Precipitation: precip,
		})
	}

	report.OutputRows = len(out)
	return out, report
}

// TransformCropYield turns raw crop-yield rows into typed records for stationID.
//
// Year and yield are coerced to numbers (unparseable or sentinel values are
// missing). Rows with nothing usable are dropped as empty; rows missing the
// year (key) or the yield (NOT NULL column) are dropped as keyless. For
// repeated (station_id, year) keys the first occurrence is kept.
func TransformCropYield(rows []RawCropYieldRow, stationID string) ([]models.CropYieldRecord, TransformReport) {
	report := TransformReport{InputRows: len(rows)}
	out := make([]models.CropYieldRecord, 0, len(rows))
	seen := make(map[int]struct{}, len(rows))

	for _, row := range rows {
		year, okYear := parseYear(row.Year)
		yield, okYield := parseMeasurement(row.YieldValue)
		if !okYear {
			report.InvalidValues++
		}
		if !okYield {
			report.InvalidValues++
		}

		switch {
		case year == nil && yield == nil:
			report.DroppedEmpty++
			continue
		case year == nil || yield == nil:
			report.DroppedKeyless++
			continue
		}

		if _, dup := seen[*year]; dup {
			report.Duplicates++
			continue
		}
		seen[*year] = struct{}{}

		out = append(out, models.CropYieldRecord{
			StationID:  stationID,
			Year:       *year,
			YieldValue: *yield,
		})
	}

	report.OutputRows = len(out)
	return out, report
}

func parseRawDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if len(s) != len(rawDateLayout) {
		return time.Time{}, false
	}
	d, err := time.Parse(rawDateLayout, s)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

// parseMeasurement returns nil for blank, sentinel or non-finite values.
// ok is false only when the cell held text that is not a number.
func parseMeasurement(s string) (value *float64, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, true
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, false
	}
	if v == models.MissingSentinel {
		return nil, true
	}
	return models.Float64(v), true
}

// scaledMeasurement applies the sentinel check before dividing by ten.
func scaledMeasurement(s string) (*float64, bool) {
	v, ok := parseMeasurement(s)
	if v == nil {
		return nil, ok
	}
	return models.Float64(*v / unitScale), true
}

// parseYear accepts integral numbers such as "1985" or "1985.0".
func parseYear(s string) (*int, bool) {
	v, ok := parseMeasurement(s)
	if v == nil {
		return nil, ok
	}
	if *v != math.Trunc(*v) || *v < 1 || *v > 9999 {
		return nil, false
	}
	year := int(*v)
	return &year, true
}
