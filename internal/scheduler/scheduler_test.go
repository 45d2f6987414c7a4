package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"weather-etl/pkg/logging"
)

func TestScheduler_RunsImmediately(t *testing.T) {
	ran := make(chan struct{}, 1)
	s := New("ingest", time.Hour, func(ctx context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	}, logging.NewNopLogger())

	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop()

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("job did not run after Start")
	}
}

func TestScheduler_StopCancelsJobContext(t *testing.T) {
	started := make(chan struct{})
	cancelled := make(chan error, 1)
	s := New("ingest", time.Hour, func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		cancelled <- ctx.Err()
		return ctx.Err()
	}, logging.NewNopLogger())

	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("job did not start")
	}
	s.Stop()

	select {
	case err := <-cancelled:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("job context error = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("job context was not cancelled by Stop")
	}
}

func TestScheduler_RejectsNonPositiveInterval(t *testing.T) {
	s := New("ingest", 0, func(ctx context.Context) error { return nil }, logging.NewNopLogger())
	if err := s.Start(); err == nil {
		t.Fatal("Start() error = nil for a zero interval")
	}
}
