package etl

import (
	"errors"
	"fmt"

	"weather-etl/pkg/database"
)

// ErrUnrecognizedFormat is matched by every UnrecognizedFormatError.
var ErrUnrecognizedFormat = errors.New("unrecognized file format")

// ErrInvalidFilename is returned when no station ID can be derived from the filename.
var ErrInvalidFilename = errors.New("invalid filename: cannot derive station id")

// UnrecognizedFormatError reports a sampled column count with no mapped schema.
type UnrecognizedFormatError struct {
	Columns int
}

func (e *UnrecognizedFormatError) Error() string {
	return fmt.Sprintf("%s: %d columns", ErrUnrecognizedFormat, e.Columns)
}

func (e *UnrecognizedFormatError) Is(target error) bool {
	return target == ErrUnrecognizedFormat
}

// IsTransient returns false: the file has to be fixed before it can be ingested.
func (e *UnrecognizedFormatError) IsTransient() bool {
	return false
}

// ParseError reports that the raw byte stream could not be read as
// tab-separated rows at all. Bad cell content never produces a ParseError.
type ParseError struct {
	Line  int
	Cause error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse failure at line %d: %v", e.Line, e.Cause)
	}
	return fmt.Sprintf("parse failure: %v", e.Cause)
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}

func (e *ParseError) IsTransient() bool {
	return false
}

// LoadError reports the batch that failed to commit. Batches before it stay committed.
type LoadError struct {
	Batch     int   // 1-based index of the failed batch
	Offset    int   // index of the batch's first record in the loaded slice
	Size      int   // records in the failed batch
	Committed int64 // records inserted by earlier batches
	Cause     error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load failure in batch %d (records %d-%d, %d already committed): %v",
		e.Batch, e.Offset+1, e.Offset+e.Size, e.Committed, e.Cause)
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}

// IsTransient reports whether resubmitting the file may succeed.
func (e *LoadError) IsTransient() bool {
	return database.IsTransient(e.Cause)
}
