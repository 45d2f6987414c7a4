package etl

import (
	"reflect"
	"testing"
	"time"

	"weather-etl/internal/models"
)

func floatPtrEqual(got *float64, want *float64) bool {
	if got == nil || want == nil {
		return got == nil && want == nil
	}
	return *got == *want
}

func TestTransformWeather(t *testing.T) {
	tests := []struct {
		name       string
		rows       []RawWeatherRow
		wantRows   int
		wantReport TransformReport
		check      func(*testing.T, []models.WeatherRecord)
	}{
		{
			name:     "scales tenths to units",
			rows:     []RawWeatherRow{{Date: "20200101", MaxTemp: "250", MinTemp: "150", Precipitation: "50"}},
			wantRows: 1,
			check: func(t *testing.T, recs []models.WeatherRecord) {
				r := recs[0]
				wantDate := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
				if !r.Date.Equal(wantDate) {
					t.Errorf("Date = %v, want %v", r.Date, wantDate)
				}
				if !floatPtrEqual(r.MaxTemp, models.Float64(25.0)) {
					t.Errorf("MaxTemp = %v, want 25.0", r.MaxTemp)
				}
				if !floatPtrEqual(r.MinTemp, models.Float64(15.0)) {
					t.Errorf("MinTemp = %v, want 15.0", r.MinTemp)
				}
				if !floatPtrEqual(r.Precipitation, models.Float64(5.0)) {
					t.Errorf("Precipitation = %v, want 5.0", r.Precipitation)
				}
				if r.StationID != "USC00110072" {
					t.Errorf("StationID = %q, want USC00110072", r.StationID)
				}
			},
		},
		{
			name: "sentinel becomes missing, never -999.9",
			rows: []RawWeatherRow{
				{Date: "19850101", MaxTemp: "-9999", MinTemp: "-128", Precipitation: "-9999"},
				{Date: "19850102", MaxTemp: "-9999.0", MinTemp: "-9999", Precipitation: "0"},
			},
			wantRows: 2,
			check: func(t *testing.T, recs []models.WeatherRecord) {
				if recs[0].MaxTemp != nil || recs[0].Precipitation != nil {
					t.Errorf("sentinel values should be nil, got max=%v precip=%v", recs[0].MaxTemp, recs[0].Precipitation)
				}
				if !floatPtrEqual(recs[0].MinTemp, models.Float64(-12.8)) {
					t.Errorf("MinTemp = %v, want -12.8", recs[0].MinTemp)
				}
				if recs[1].MaxTemp != nil || recs[1].MinTemp != nil {
					t.Errorf("sentinel values should be nil, got max=%v min=%v", recs[1].MaxTemp, recs[1].MinTemp)
				}
				if !floatPtrEqual(recs[1].Precipitation, models.Float64(0)) {
					t.Errorf("Precipitation = %v, want 0", recs[1].Precipitation)
				}
			},
		},
		{
			name: "duplicate dates keep the first occurrence",
			rows: []RawWeatherRow{
				{Date: "19850101", MaxTemp: "10", MinTemp: "5", Precipitation: "1"},
				{Date: "19850101", MaxTemp: "99", MinTemp: "99", Precipitation: "99"},
				{Date: "19850102", MaxTemp: "20", MinTemp: "6", Precipitation: "2"},
			},
			wantRows:   2,
			wantReport: TransformReport{InputRows: 3, Duplicates: 1, OutputRows: 2},
			check: func(t *testing.T, recs []models.WeatherRecord) {
				if !floatPtrEqual(recs[0].MaxTemp, models.Float64(1.0)) {
					t.Errorf("kept MaxTemp = %v, want first occurrence 1.0", recs[0].MaxTemp)
				}
			},
		},
		{
			name: "invalid date drops the row",
			rows: []RawWeatherRow{
				{Date: "1985-01-01", MaxTemp: "10", MinTemp: "5", Precipitation: "1"},
				{Date: "19851301", MaxTemp: "10", MinTemp: "5", Precipitation: "1"},
				{Date: "19850103", MaxTemp: "10", MinTemp: "5", Precipitation: "1"},
			},
			wantRows:   1,
			wantReport: TransformReport{InputRows: 3, InvalidDates: 2, OutputRows: 1},
		},
		{
			name: "fully empty rows are dropped",
			rows: []RawWeatherRow{
				{},
				{Date: "", MaxTemp: "-9999", MinTemp: "-9999", Precipitation: "-9999"},
				{Date: "19850103", MaxTemp: "1", MinTemp: "1", Precipitation: "1"},
			},
			wantRows:   1,
			wantReport: TransformReport{InputRows: 3, DroppedEmpty: 2, OutputRows: 1},
		},
		{
			name: "dated row without measurements is kept",
			rows: []RawWeatherRow{
				{Date: "19850101", MaxTemp: "-9999", MinTemp: "-9999", Precipitation: "-9999"},
			},
			wantRows:   1,
			wantReport: TransformReport{InputRows: 1, OutputRows: 1},
		},
		{
			name: "non numeric measurement becomes missing",
			rows: []RawWeatherRow{
				{Date: "19850101", MaxTemp: "abc", MinTemp: "-22", Precipitation: "NaN"},
			},
			wantRows:   1,
			wantReport: TransformReport{InputRows: 1, InvalidValues: 2, OutputRows: 1},
			check: func(t *testing.T, recs []models.WeatherRecord) {
				if recs[0].MaxTemp != nil || recs[0].Precipitation != nil {
					t.Errorf("invalid values should be nil, got max=%v precip=%v", recs[0].MaxTemp, recs[0].Precipitation)
				}
				if !floatPtrEqual(recs[0].MinTemp, models.Float64(-2.2)) {
					t.Errorf("MinTemp = %v, want -2.2", recs[0].MinTemp)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, report := TransformWeather(tt.rows, "USC00110072")

			if len(recs) != tt.wantRows {
				t.Fatalf("TransformWeather() returned %d rows, want %d", len(recs), tt.wantRows)
			}
			if tt.wantReport != (TransformReport{}) && report != tt.wantReport {
				t.Errorf("report = %+v, want %+v", report, tt.wantReport)
			}
			if tt.check != nil {
				tt.check(t, recs)
			}
		})
	}
}

func TestTransformWeather_DoesNotMutateInput(t *testing.T) {
	rows := []RawWeatherRow{
		{Date: "19850101", MaxTemp: "-9999", MinTemp: "250", Precipitation: "10"},
		{Date: "19850101", MaxTemp: "1", MinTemp: "1", Precipitation: "1"},
	}
	snapshot := append([]RawWeatherRow(nil), rows...)

	first, _ := TransformWeather(rows, "S1")
	second, _ := TransformWeather(rows, "S1")

	if !reflect.DeepEqual(rows, snapshot) {
		t.Errorf("input rows were modified: %+v", rows)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("transform is not deterministic: %+v vs %+v", first, second)
	}
}

func TestTransformCropYield(t *testing.T) {
	tests := []struct {
		name       string
		rows       []RawCropYieldRow
		want       []models.CropYieldRecord
		wantReport TransformReport
	}{
		{
			name: "round trip of a single year",
			rows:       []RawCropYieldRow{{Year: "1985", YieldValue: "225447"}},
			want:       []models.CropYieldRecord{{StationID: "stationXYZ", Year: 1985, YieldValue: 225447.0}},
			wantReport: TransformReport{InputRows: 1, OutputRows: 1},
		},
		{
			name: "float formatted year is accepted",
			rows:       []RawCropYieldRow{{Year: "1986.0", YieldValue: "208944.5"}},
			want:       []models.CropYieldRecord{{StationID: "stationXYZ", Year: 1986, YieldValue: 208944.5}},
			wantReport: TransformReport{InputRows: 1, OutputRows: 1},
		},
		{
			name: "duplicate years keep the first occurrence",
			rows: []RawCropYieldRow{
				{Year: "1985", YieldValue: "1"},
				{Year: "1985", YieldValue: "2"},
			},
			want:       []models.CropYieldRecord{{StationID: "stationXYZ", Year: 1985, YieldValue: 1}},
			wantReport: TransformReport{InputRows: 2, Duplicates: 1, OutputRows: 1},
		},
		{
			name: "missing key or value drops the row",
			rows: []RawCropYieldRow{
				{Year: "abc", YieldValue: "1"},
				{Year: "1987", YieldValue: "-9999"},
				{Year: "1987.5", YieldValue: "3"},
				{Year: "-9999", YieldValue: "-9999"},
				{Year: "", YieldValue: ""},
			},
			want:       []models.CropYieldRecord{},
			wantReport: TransformReport{InputRows: 5, InvalidValues: 2, DroppedKeyless: 3, DroppedEmpty: 2, OutputRows: 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, report := TransformCropYield(tt.rows, "stationXYZ")

			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("TransformCropYield() = %+v, want %+v", got, tt.want)
			}
			if report != tt.wantReport {
				t.Errorf("report = %+v, want %+v", report, tt.wantReport)
			}
		})
	}
}
