package uploader

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"weather-etl/internal/etl"
	"weather-etl/pkg/logging"
	"weather-etl/pkg/metrics"
)

func writeFiles(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("1985\t225447\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

// uploadServer answers each upload with the status chosen by respond and
// records the filenames it received.
type uploadServer struct {
	mu       sync.Mutex
	received []string
	respond  func(filename string) int
}

func (s *uploadServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/api/upload_file" || r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	data, _ := io.ReadAll(file)
	file.Close()

	s.mu.Lock()
	s.received = append(s.received, header.Filename)
	s.mu.Unlock()

	code := s.respond(header.Filename)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if code == http.StatusOK {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"message":          "File processed successfully",
			"station_id":       strings.TrimSuffix(header.Filename, ".txt"),
			"schema":           "crop_yield",
			"total_records":    strings.Count(string(data), "\n"),
			"inserted_records": 1,
			"time_taken":       0.01,
		})
		return
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error":   http.StatusText(code),
		"message": "unrecognized file format",
		"code":    code,
	})
}

func newClient(baseURL string, trip uint32) (*Client, *metrics.Collector) {
	m := metrics.NewCollector("uploader_test", prometheus.NewRegistry())
	return New(Config{BaseURL: baseURL + "/", FailureTrip: trip}, nil, logging.NewNopLogger(), m), m
}

func TestUploadFile_Success(t *testing.T) {
	srv := &uploadServer{respond: func(string) int { return http.StatusOK }}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	dir := writeFiles(t, "stationXYZ.txt")
	client, _ := newClient(ts.URL, 3)

	summary, err := client.UploadFile(context.Background(), filepath.Join(dir, "stationXYZ.txt"))
	if err != nil {
		t.Fatalf("UploadFile() error = %v", err)
	}
	if summary.StationID != "stationXYZ" || summary.Schema != etl.SchemaCropYield || summary.InsertedRecords != 1 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestUploadFile_Rejected(t *testing.T) {
	srv := &uploadServer{respond: func(string) int { return http.StatusBadRequest }}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	dir := writeFiles(t, "bad.txt")
	client, _ := newClient(ts.URL, 1)

	for i := 0; i < 3; i++ {
		_, err := client.UploadFile(context.Background(), filepath.Join(dir, "bad.txt"))
		var rejected *RejectedError
		if !errors.As(err, &rejected) {
			t.Fatalf("attempt %d: error = %v, want RejectedError", i, err)
		}
		if rejected.StatusCode != http.StatusBadRequest || rejected.Message != "unrecognized file format" {
			t.Errorf("rejected = %+v", rejected)
		}
	}
	if len(srv.received) != 3 {
		t.Errorf("server saw %d uploads, want 3: rejections must not open the breaker", len(srv.received))
	}
}

func TestUploadDirectory_MixedOutcomes(t *testing.T) {
	srv := &uploadServer{respond: func(name string) int {
		if name == "b_bad.txt" {
			return http.StatusBadRequest
		}
		return http.StatusOK
	}}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	dir := writeFiles(t, "a.txt", "b_bad.txt", "c.txt", "notes.md")
	client, m := newClient(ts.URL, 3)

	report, err := client.UploadDirectory(context.Background(), dir)
	if err != nil {
		t.Fatalf("UploadDirectory() error = %v", err)
	}
	if report.Uploaded != 2 || report.Rejected != 1 || report.Failed != 0 || report.Skipped != 0 {
		t.Errorf("report = %+v", report)
	}
	if report.Inserted != 2 {
		t.Errorf("Inserted = %d, want 2", report.Inserted)
	}
	want := []string{"a.txt", "b_bad.txt", "c.txt"}
	for i, name := range want {
		if srv.received[i] != name {
			t.Errorf("upload %d = %s, want %s", i, srv.received[i], name)
		}
	}
	if got := testutil.ToFloat64(m.UploaderFilesTotal.WithLabelValues(StatusUploaded)); got != 2 {
		t.Errorf("uploaded metric = %v, want 2", got)
	}
}

func TestUploadDirectory_BreakerSkipsRemaining(t *testing.T) {
	srv := &uploadServer{respond: func(string) int { return http.StatusInternalServerError }}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	dir := writeFiles(t, "1.txt", "2.txt", "3.txt", "4.txt", "5.txt")
	client, m := newClient(ts.URL, 2)

	report, err := client.UploadDirectory(context.Background(), dir)
	if err != nil {
		t.Fatalf("UploadDirectory() error = %v", err)
	}
	if report.Failed != 2 || report.Skipped != 3 {
		t.Errorf("report = %+v, want 2 failed then 3 skipped", report)
	}
	if len(srv.received) != 2 {
		t.Errorf("server saw %d uploads, want 2", len(srv.received))
	}
	if got := testutil.ToFloat64(m.UploaderFilesTotal.WithLabelValues(StatusSkipped)); got != 3 {
		t.Errorf("skipped metric = %v, want 3", got)
	}
}

func TestUploadDirectory_Empty(t *testing.T) {
	client, _ := newClient("http://127.0.0.1:1", 3)

	if _, err := client.UploadDirectory(context.Background(), t.TempDir()); err == nil {
		t.Fatal("UploadDirectory() error = nil for a directory without .txt files")
	}
}
