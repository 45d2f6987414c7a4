package etl

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/jszwec/csvutil"
)

// RawWeatherRow is one weather line as read from the file, before any typing.
// Format: YYYYMMDD\tMAX_TEMP\tMIN_TEMP\tPRECIP (tenths, -9999 = missing)
type RawWeatherRow struct {
	Date          string `csv:"date"`
	MaxTemp       string `csv:"max_temp"`
	MinTemp       string `csv:"min_temp"`
	Precipitation string `csv:"precipitation"`
}

// RawCropYieldRow is one crop-yield line as read from the file.
// Format: YEAR\tYIELD
type RawCropYieldRow struct {
	Year       string `csv:"year"`
	YieldValue string `csv:"yield_value"`
}

var (
	weatherHeader   = []string{"date", "max_temp", "min_temp", "precipitation"}
	cropYieldHeader = []string{"year", "yield_value"}
)

// StationIDFromFilename returns the file's basename without its extension.
func StationIDFromFilename(filename string) (string, error) {
	name := strings.TrimSpace(filename)
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	stationID := strings.TrimSpace(strings.TrimSuffix(name, path.Ext(name)))
	if stationID == "" || stationID == "." {
		return "", fmt.Errorf("%w: %q", ErrInvalidFilename, filename)
	}
	return stationID, nil
}

// ExtractWeather decodes every non-blank line of r into a RawWeatherRow.
func ExtractWeather(r io.Reader) ([]RawWeatherRow, error) {
	return extractRows[RawWeatherRow](r, weatherHeader)
}

// ExtractCropYield decodes every non-blank line of r into a RawCropYieldRow.
func ExtractCropYield(r io.Reader) ([]RawCropYieldRow, error) {
	return extractRows[RawCropYieldRow](r, cropYieldHeader)
}

// extractRows reads headerless tab-separated rows with csvutil. Rows whose
// width differs from the header are reshaped by fixedWidthReader so that bad
// lines degrade into missing values instead of aborting the file.
func extractRows[R any](r io.Reader, header []string) ([]R, error) {
	cr := csv.NewReader(skipBOM(r))
	cr.Comma = '\t'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	dec, err := csvutil.NewDecoder(&fixedWidthReader{r: cr, width: len(header)}, header...)
	if err != nil {
		return nil, &ParseError{Cause: err}
	}

	var rows []R
	for {
		var row R
		if err := dec.Decode(&row); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			var csvErr *csv.ParseError
			if errors.As(err, &csvErr) {
				return nil, &ParseError{Line: csvErr.Line, Cause: csvErr.Err}
			}
			return nil, &ParseError{Line: len(rows) + 1, Cause: err}
		}
		rows = append(rows, row)
	}

	return rows, nil
}

// utf8BOM is written at the start of files saved by some Windows editors.
const utf8BOM = "\ufeff"

// skipBOM returns a reader over r without its leading UTF-8 byte-order mark.
func skipBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && string(head) == utf8BOM {
		_, _ = br.Discard(len(utf8BOM))
	}
	return br
}

// fixedWidthReader pads short records with empty fields and trims trailing
// empty fields. A record carrying extra non-empty fields cannot be trusted
// positionally and is blanked, which the transformers drop as all-missing.
type fixedWidthReader struct {
	r     *csv.Reader
	width int
}

func (f *fixedWidthReader) Read() ([]string, error) {
	record, err := f.r.Read()
	if err != nil {
		return nil, err
	}

	for i := range record {
		record[i] = strings.TrimSpace(record[i])
	}

	switch {
	case len(record) == f.width:
		return record, nil
	case len(record) < f.width:
		padded := make([]string, f.width)
		copy(padded, record)
		return padded, nil
	default:
		for _, extra := range record[f.width:] {
			if extra != "" {
				return make([]string, f.width), nil
			}
		}
		return record[:f.width], nil
	}
}
