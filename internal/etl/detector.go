package etl

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Schema names a record layout a file can be ingested as.
type Schema string

const (
	SchemaWeather   Schema = "weather"
	SchemaCropYield Schema = "crop_yield"
)

// DefaultSampleLines is the number of non-empty lines inspected by Detect.
const DefaultSampleLines = 5

// maxSampleLineBytes bounds each sampled line so detection reads a bounded prefix.
const maxSampleLineBytes = 64 * 1024

// Columns returns the number of tab-separated fields the schema expects.
func (s Schema) Columns() int {
	switch s {
	case SchemaWeather:
		return 4
	case SchemaCropYield:
		return 2
	default:
		return 0
	}
}

// SchemaForColumns maps a column count to its schema.
func SchemaForColumns(columns int) (Schema, error) {
	switch columns {
	case SchemaWeather.Columns():
		return SchemaWeather, nil
	case SchemaCropYield.Columns():
		return SchemaCropYield, nil
	default:
		return "", &UnrecognizedFormatError{Columns: columns}
	}
}

// Detect samples the first lines of r, counts their tab-separated columns and
// returns the matching schema. The widest sampled row decides the count.
// r is rewound to its start before Detect returns, whatever the outcome.
func Detect(r io.ReadSeeker, sampleLines int) (Schema, error) {
	if sampleLines < DefaultSampleLines {
		sampleLines = DefaultSampleLines
	}

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("failed to rewind input: %w", err)
	}

	prefix := skipBOM(io.LimitReader(r, int64(sampleLines)*maxSampleLineBytes))
	columns, sampleErr := sampleColumns(prefix, sampleLines)

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("failed to rewind input: %w", err)
	}
	if sampleErr != nil {
		return "", sampleErr
	}

	return SchemaForColumns(columns)
}

func sampleColumns(r io.Reader, lines int) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxSampleLineBytes)

	seen, widest := 0, 0
	for seen < lines && scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		seen++
		if n := strings.Count(line, "\t") + 1; n > widest {
			widest = n
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, &ParseError{Line: seen + 1, Cause: err}
	}

	return widest, nil
}
