package uploader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"weather-etl/internal/etl"
	"weather-etl/pkg/logging"
	"weather-etl/pkg/metrics"
)

const uploadPath = "/api/upload_file"

var (
	errServerError = errors.New("server error")
	errCircuitOpen = errors.New("circuit breaker open")
)

// Config controls the upload client
type Config struct {
	BaseURL string
	// FailureTrip is the number of consecutive server failures that opens the breaker.
	FailureTrip uint32
	// BreakerTimeout is how long the breaker stays open before probing again.
	BreakerTimeout time.Duration
}

// RejectedError reports a file the server refused to ingest (4xx). It does
// not count against the circuit breaker.
type RejectedError struct {
	StatusCode int
	Message    string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("rejected with status %d: %s", e.StatusCode, e.Message)
}

// Upload outcomes reported per file
const (
	StatusUploaded = "uploaded"
	StatusRejected = "rejected"
	StatusFailed   = "failed"
	StatusSkipped  = "skipped"
)

// FileResult is the outcome for one file
type FileResult struct {
	File    string       `json:"file"`
	Status  string       `json:"status"`
	Summary *etl.Summary `json:"summary,omitempty"`
	Error   string       `json:"error,omitempty"`
}

// Report summarizes a directory upload
type Report struct {
	Files    []FileResult  `json:"files"`
	Uploaded int           `json:"uploaded"`
	Rejected int           `json:"rejected"`
	Failed   int           `json:"failed"`
	Skipped  int           `json:"skipped"`
	Inserted int64         `json:"inserted_records"`
	Duration time.Duration `json:"duration"`
}

// Client posts data files to the ingestion API
type Client struct {
	baseURL string
	client  *http.Client
	circuit *gobreaker.CircuitBreaker
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// New creates an upload client. httpClient may be nil.
func New(cfg Config, httpClient *http.Client, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	trip := cfg.FailureTrip
	if trip == 0 {
		trip = 3
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "upload-api",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= trip
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn(context.Background(), "[UPLOAD_BREAKER] Circuit breaker state changed", logging.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
		},
	})

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  httpClient,
		circuit: cb,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// UploadFile posts one file and returns the server's ingestion summary.
func (c *Client) UploadFile(ctx context.Context, path string) (*etl.Summary, error) {
	body, contentType, err := multipartBody(path)
	if err != nil {
		return nil, err
	}

	result, err := c.circuit.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+uploadPath, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("%w: %s", errServerError, readMessage(resp))
		}
		if resp.StatusCode != http.StatusOK {
			// The file is at fault, not the server: report it without tripping the breaker.
			return &RejectedError{StatusCode: resp.StatusCode, Message: readMessage(resp)}, nil
		}

		var summary etl.Summary
		if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
			return nil, fmt.Errorf("failed to decode upload response: %w", err)
		}
		return &summary, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, errCircuitOpen
		}
		return nil, err
	}

	if rejected, ok := result.(*RejectedError); ok {
		return nil, rejected
	}
	return result.(*etl.Summary), nil
}

// UploadDirectory uploads every .txt file in dir in name order. Once the
// breaker opens, the remaining files are skipped rather than attempted.
func (c *Client) UploadDirectory(ctx context.Context, dir string) (*Report, error) {
	started := time.Now()

	files, err := filepath.Glob(filepath.Join(dir, "*.txt"))
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .txt files found in %s", dir)
	}
	sort.Strings(files)

	c.logger.Info(ctx, "[UPLOAD_START] Uploading directory", logging.Fields{
		"data_dir": dir,
		"files":    len(files),
		"api":      c.baseURL + uploadPath,
	})

	report := &Report{Files: make([]FileResult, 0, len(files))}
	for _, path := range files {
		name := filepath.Base(path)

		if ctx.Err() != nil || c.circuit.State() == gobreaker.StateOpen {
			report.Skipped++
			report.Files = append(report.Files, FileResult{File: name, Status: StatusSkipped})
			c.metrics.RecordUpload(StatusSkipped)
			continue
		}

		summary, err := c.UploadFile(ctx, path)
		res := FileResult{File: name, Summary: summary}

		var rejected *RejectedError
		switch {
		case err == nil:
			res.Status = StatusUploaded
			report.Uploaded++
			report.Inserted += summary.InsertedRecords
			c.logger.Info(ctx, "[UPLOAD_FILE] File uploaded", logging.Fields{
				"file":             name,
				"total_records":    summary.TotalRecords,
				"inserted_records": summary.InsertedRecords,
				"time_taken":       summary.TimeTaken,
			})
		case errors.As(err, &rejected):
			res.Status = StatusRejected
			res.Error = err.Error()
			report.Rejected++
			c.logger.Warn(ctx, "[UPLOAD_REJECTED] File rejected", logging.Fields{
				"file":   name,
				"status": rejected.StatusCode,
				"reason": rejected.Message,
			})
		case errors.Is(err, errCircuitOpen):
			res.Status = StatusSkipped
			res.Error = err.Error()
			report.Skipped++
		default:
			res.Status = StatusFailed
			res.Error = err.Error()
			report.Failed++
			c.logger.Error(ctx, "[UPLOAD_ERROR] Upload failed", logging.Fields{
				"file": name,
			}, err)
		}

		c.metrics.RecordUpload(res.Status)
		report.Files = append(report.Files, res)
	}

	report.Duration = time.Since(started)
	c.logger.Info(ctx, "[UPLOAD_COMPLETE] Directory upload finished", logging.Fields{
		"uploaded":         report.Uploaded,
		"rejected":         report.Rejected,
		"failed":           report.Failed,
		"skipped":          report.Skipped,
		"inserted_records": report.Inserted,
		"duration_ms":      report.Duration.Milliseconds(),
	})
	return report, nil
}

func multipartBody(path string) ([]byte, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), mw.FormDataContentType(), nil
}

// readMessage extracts the message from the API error envelope, falling back
// to the raw body.
func readMessage(resp *http.Response) string {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var envelope struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &envelope) == nil && envelope.Message != "" {
		return envelope.Message
	}
	if msg := strings.TrimSpace(string(data)); msg != "" {
		return msg
	}
	return http.StatusText(resp.StatusCode)
}
