package models

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"
)

func TestWeatherRecord_MarshalJSON(t *testing.T) {
	tests := []struct {
		name   string
		record WeatherRecord
		want   []string
	}{
		{
			name: "all measurements present",
			record: WeatherRecord{
				ID:            7,
				StationID:     "USC00110072",
				Date:          time.Date(1985, 1, 1, 0, 0, 0, 0, time.UTC),
				MaxTemp:       Float64(-2.2),
				MinTemp:       Float64(-12.8),
				Precipitation: Float64(9.4),
			},
			want: []string{`"id":7`, `"date":"1985-01-01"`, `"max_temp":-2.2`, `"min_temp":-12.8`, `"precipitation":9.4`},
		},
		{
			name: "missing measurements are null",
			record: WeatherRecord{
				StationID: "USC00110072",
				Date:      time.Date(2014, 12, 31, 0, 0, 0, 0, time.UTC),
				MinTemp:   Float64(0),
			},
			want: []string{`"date":"2014-12-31"`, `"max_temp":null`, `"min_temp":0`, `"precipitation":null`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.record)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			got := string(data)
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("JSON %s missing %s", got, w)
				}
			}
			if strings.Count(got, `"date"`) != 1 {
				t.Errorf("JSON %s should carry exactly one date key", got)
			}
		})
	}
}

func TestStatsRecord_Sanitize(t *testing.T) {
	tests := []struct {
		name    string
		in      StatsRecord
		wantMax *float64
		wantMin *float64
		wantPre *float64
	}{
		{
			name:    "finite values kept",
			in:      StatsRecord{AvgMaxTemp: Float64(15.2), AvgMinTemp: Float64(3.1), TotalPrecipitation: Float64(80.4)},
			wantMax: Float64(15.2), wantMin: Float64(3.1), wantPre: Float64(80.4),
		},
		{
			name:    "NaN and infinities become nil",
			in:      StatsRecord{AvgMaxTemp: Float64(math.NaN()), AvgMinTemp: Float64(math.Inf(-1)), TotalPrecipitation: Float64(math.Inf(1))},
			wantMax: nil, wantMin: nil, wantPre: nil,
		},
		{
			name:    "nil stays nil",
			in:      StatsRecord{AvgMinTemp: Float64(-1.5)},
			wantMax: nil, wantMin: Float64(-1.5), wantPre: nil,
		},
	}

	equal := func(a, b *float64) bool {
		if a == nil || b == nil {
			return a == b
		}
		return *a == *b
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := tt.in
			rec.Sanitize()
			if !equal(rec.AvgMaxTemp, tt.wantMax) || !equal(rec.AvgMinTemp, tt.wantMin) || !equal(rec.TotalPrecipitation, tt.wantPre) {
				t.Errorf("Sanitize() = %v/%v/%v", rec.AvgMaxTemp, rec.AvgMinTemp, rec.TotalPrecipitation)
			}
			if _, err := json.Marshal(rec); err != nil {
				t.Errorf("sanitized record does not marshal: %v", err)
			}
		})
	}
}

func TestValidationError(t *testing.T) {
	err := &ValidationError{Field: "limit", Value: "0", Message: "must be at least 1"}
	if err.Error() != "limit: must be at least 1" {
		t.Errorf("Error() = %q", err.Error())
	}
	if err.IsTransient() {
		t.Error("validation errors are never transient")
	}
	if got := (&ValidationError{Message: "bad"}).Error(); got != "bad" {
		t.Errorf("Error() without field = %q", got)
	}
}
