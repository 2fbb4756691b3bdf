// Rapid Studio - Swipe Feed Engine and Preference Analytics
// Copyright 2026 Jeff M. Johnson (jeffmichaeljohnson-tech)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jeffmichaeljohnson-tech/rapid-studio

package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// stubService runs until canceled, counting starts. With failures > 0
// it errors that many times first, exercising restart-with-backoff.
type stubService struct {
	name     string
	starts   atomic.Int32
	failures atomic.Int32
}

func (s *stubService) Serve(ctx context.Context) error {
	s.starts.Add(1)
	if s.failures.Load() > 0 {
		s.failures.Add(-1)
		return errors.New("simulated failure")
	}
	<-ctx.Done()
	return ctx.Err()
}

func (s *stubService) String() string { return s.name }

func TestNewTreeDefaults(t *testing.T) {
	tree, err := NewTree(testLogger(), TreeConfig{})
	if err != nil {
		t.Fatalf("NewTree() error = %v", err)
	}
	if tree.Root() == nil {
		t.Fatal("Root() = nil")
	}
	want := DefaultTreeConfig()
	if tree.config != want {
		t.Errorf("config = %+v, want defaults %+v", tree.config, want)
	}
}

func TestTreeServesAndStops(t *testing.T) {
	tree, err := NewTree(testLogger(), TreeConfig{
		FailureBackoff:  100 * time.Millisecond,
		ShutdownTimeout: time.Second,
	})
	if err != nil {
		t.Fatalf("NewTree() error = %v", err)
	}

	data := &stubService{name: "stub-data"}
	feed := &stubService{name: "stub-feed"}
	api := &stubService{name: "stub-api"}
	tree.AddDataService(data)
	tree.AddFeedService(feed)
	tree.AddAPIService(api)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	deadline := time.After(2 * time.Second)
	for data.starts.Load() == 0 || feed.starts.Load() == 0 || api.starts.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("services did not start")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("tree did not stop")
	}
}

func TestTreeRestartsFailedService(t *testing.T) {
	tree, err := NewTree(testLogger(), TreeConfig{
		FailureBackoff:  50 * time.Millisecond,
		ShutdownTimeout: time.Second,
	})
	if err != nil {
		t.Fatalf("NewTree() error = %v", err)
	}

	svc := &stubService{name: "flaky"}
	svc.failures.Store(2)
	tree.AddFeedService(svc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tree.ServeBackground(ctx)

	deadline := time.After(3 * time.Second)
	for svc.starts.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("starts = %d, want >= 3 (two failures then steady state)", svc.starts.Load())
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// fakeHTTPServer blocks in ListenAndServe until Shutdown.
type fakeHTTPServer struct {
	started  chan struct{}
	release  chan struct{}
	shutdown atomic.Bool
}

func newFakeHTTPServer() *fakeHTTPServer {
	return &fakeHTTPServer{started: make(chan struct{}), release: make(chan struct{})}
}

func (f *fakeHTTPServer) ListenAndServe() error {
	close(f.started)
	<-f.release
	return http.ErrServerClosed
}

func (f *fakeHTTPServer) Shutdown(ctx context.Context) error {
	f.shutdown.Store(true)
	close(f.release)
	return nil
}

func TestHTTPServiceGracefulShutdown(t *testing.T) {
	srv := newFakeHTTPServer()
	svc := NewHTTPService(srv, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Serve(ctx) }()

	select {
	case <-srv.started:
	case <-time.After(time.Second):
		t.Fatal("server never started")
	}

	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve() did not return")
	}
	if !srv.shutdown.Load() {
		t.Error("Shutdown was not called")
	}
}

type failingHTTPServer struct{}

func (f *failingHTTPServer) ListenAndServe() error              { return errors.New("bind: address in use") }
func (f *failingHTTPServer) Shutdown(ctx context.Context) error { return nil }

func TestHTTPServiceStartupError(t *testing.T) {
	svc := NewHTTPService(&failingHTTPServer{}, time.Second)
	if err := svc.Serve(context.Background()); err == nil {
		t.Fatal("Serve() = nil, want bind error")
	}
}
