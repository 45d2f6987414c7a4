package handlers

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"weather-etl/internal/models"
	"weather-etl/internal/repository"
)

const defaultLimit = 100

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report query parameter names instead of Go field names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("query"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

// pageQuery holds the pagination parameters shared by every list endpoint.
type pageQuery struct {
	Limit  int `query:"limit" validate:"min=1,max=1000"`
	Offset int `query:"offset" validate:"min=0"`
}

type weatherQuery struct {
	pageQuery
	StationID      string `query:"station_id" validate:"omitempty,max=64"`
	StartDate      string `query:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate        string `query:"end_date" validate:"omitempty,datetime=2006-01-02"`
	OrderBy        string `query:"order_by" validate:"oneof=id station_id date max_temp min_temp precipitation"`
	OrderDirection string `query:"order_direction" validate:"oneof=asc desc"`
}

type statsQuery struct {
	pageQuery
	StationID string `query:"station_id" validate:"omitempty,max=64"`
	Year      int    `query:"year" validate:"omitempty,min=1,max=9999"`
}

type cropYieldQuery struct {
	pageQuery
	StationID string `query:"station_id" validate:"omitempty,max=64"`
	Year      int    `query:"year" validate:"omitempty,min=1,max=9999"`
}

func bindPage(values url.Values) (pageQuery, error) {
	var page pageQuery
	var err error
	if page.Limit, err = intParam(values, "limit", defaultLimit); err != nil {
		return page, err
	}
	if page.Offset, err = intParam(values, "offset", 0); err != nil {
		return page, err
	}
	return page, nil
}

func bindWeatherQuery(values url.Values) (repository.WeatherFilter, error) {
	page, err := bindPage(values)
	if err != nil {
		return repository.WeatherFilter{}, err
	}

	q := weatherQuery{
		pageQuery:      page,
		StationID:      strings.TrimSpace(values.Get("station_id")),
		StartDate:      strings.TrimSpace(values.Get("start_date")),
		EndDate:        strings.TrimSpace(values.Get("end_date")),
		OrderBy:        stringParam(values, "order_by", "date"),
		OrderDirection: strings.ToLower(stringParam(values, "order_direction", "asc")),
	}
	if err := validate.Struct(q); err != nil {
		return repository.WeatherFilter{}, validationError(err)
	}

	filter := repository.WeatherFilter{
		Limit:          q.Limit,
		Offset:         q.Offset,
		OrderBy:        q.OrderBy,
		OrderDirection: q.OrderDirection,
	}
	if q.StationID != "" {
		filter.StationID = &q.StationID
	}
	if q.StartDate != "" {
		start, _ := time.Parse(models.DateLayout, q.StartDate)
		filter.StartDate = &start
	}
	if q.EndDate != "" {
		end, _ := time.Parse(models.DateLayout, q.EndDate)
		filter.EndDate = &end
	}
	if filter.StartDate != nil && filter.EndDate != nil && filter.EndDate.Before(*filter.StartDate) {
		return repository.WeatherFilter{}, &models.ValidationError{
			Field:   "end_date",
			Value:   q.EndDate,
			Message: "must not be before start_date",
		}
	}

	return filter, nil
}

func bindStatsQuery(values url.Values) (repository.StatsFilter, error) {
	page, err := bindPage(values)
	if err != nil {
		return repository.StatsFilter{}, err
	}
	year, err := intParam(values, "year", 0)
	if err != nil {
		return repository.StatsFilter{}, err
	}

	q := statsQuery{pageQuery: page, StationID: strings.TrimSpace(values.Get("station_id")), Year: year}
	if err := validate.Struct(q); err != nil {
		return repository.StatsFilter{}, validationError(err)
	}

	filter := repository.StatsFilter{Limit: q.Limit, Offset: q.Offset}
	if q.StationID != "" {
		filter.StationID = &q.StationID
	}
	if values.Has("year") {
		filter.Year = &q.Year
	}
	return filter, nil
}

func bindCropYieldQuery(values url.Values) (repository.CropYieldFilter, error) {
	page, err := bindPage(values)
	if err != nil {
		return repository.CropYieldFilter{}, err
	}
	year, err := intParam(values, "year", 0)
	if err != nil {
		return repository.CropYieldFilter{}, err
	}

	q := cropYieldQuery{pageQuery: page, StationID: strings.TrimSpace(values.Get("station_id")), Year: year}
	if err := validate.Struct(q); err != nil {
		return repository.CropYieldFilter{}, validationError(err)
	}

	filter := repository.CropYieldFilter{Limit: q.Limit, Offset: q.Offset}
	if q.StationID != "" {
		filter.StationID = &q.StationID
	}
	if values.Has("year") {
		filter.Year = &q.Year
	}
	return filter, nil
}

func bindPageQuery(values url.Values) (pageQuery, error) {
	page, err := bindPage(values)
	if err != nil {
		return page, err
	}
	if err := validate.Struct(page); err != nil {
		return page, validationError(err)
	}
	return page, nil
}

func intParam(values url.Values, name string, def int) (int, error) {
	raw := strings.TrimSpace(values.Get(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &models.ValidationError{Field: name, Value: raw, Message: "must be an integer"}
	}
	return v, nil
}

func stringParam(values url.Values, name, def string) string {
	if v := strings.TrimSpace(values.Get(name)); v != "" {
		return v
	}
	return def
}

// validationError converts the first validator failure into a ValidationError.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &models.ValidationError{Message: err.Error()}
	}

	fe := verrs[0]
	var msg string
	switch fe.Tag() {
	case "min":
		msg = "must be at least " + fe.Param()
	case "max":
		msg = "must be at most " + fe.Param()
	case "oneof":
		msg = "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "datetime":
		msg = "must be a date in YYYY-MM-DD format"
	default:
		msg = fmt.Sprintf("failed %q validation", fe.Tag())
	}

	return &models.ValidationError{
		Field:   fe.Field(),
		Value:   fmt.Sprint(fe.Value()),
		Message: msg,
	}
}
