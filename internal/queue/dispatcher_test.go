package queue

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	logx "calendard/pkg/logx"
)

func TestDispatcherDelivers(t *testing.T) {
	got := make(chan []byte, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Content-Type = %q", r.Header.Get("Content-Type"))
		}
		if r.Header.Get("X-Task-Name") == "" {
			t.Error("missing X-Task-Name header")
		}
		b, _ := io.ReadAll(r.Body)
		got <- b
	}))
	defer srv.Close()

	d := NewDispatcher(DispatcherConfig{Workers: 1}, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)
	defer d.Stop(context.Background())

	b := NewBuilder(BuilderConfig{CallbackURL: srv.URL})
	if err := d.Submit(ctx, b.Build("ev-1", "hello", 0, 0)); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	select {
	case body := <-got:
		if len(body) == 0 {
			t.Fatal("empty delivery body")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("task was never delivered")
	}
}

func TestDispatcherDedupsPendingName(t *testing.T) {
	var hits atomic.Int64
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
	}))
	defer srv.Close()

	d := NewDispatcher(DispatcherConfig{Workers: 1}, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	b := NewBuilder(BuilderConfig{CallbackURL: srv.URL})
	task := b.Build("ev-dup", "x", 0, 1)
	for i := 0; i < 3; i++ {
		if err := d.Submit(ctx, task); err != nil {
			t.Fatalf("Submit #%d: %v", i, err)
		}
	}

	// Give duplicates a chance to (wrongly) fire.
	time.Sleep(300 * time.Millisecond)
	close(release)
	d.Stop(context.Background())

	if n := hits.Load(); n != 1 {
		t.Fatalf("delivered %d times, want 1 (name dedup)", n)
	}
}

func TestDispatcherRetriesOnError(t *testing.T) {
	var hits atomic.Int64
	done := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		close(done)
	}))
	defer srv.Close()

	d := NewDispatcher(DispatcherConfig{
		Workers:   1,
		RetryMax:  2,
		RetryBase: 10 * time.Millisecond,
	}, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)
	defer d.Stop(context.Background())

	b := NewBuilder(BuilderConfig{CallbackURL: srv.URL})
	if err := d.Submit(ctx, b.Build("ev-retry", "x", 0, 0)); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	select {
	case <-done:
		if hits.Load() < 2 {
			t.Fatalf("hits = %d, want at least 2", hits.Load())
		}
	case <-time.After(5 * time.Second):
		t.Fatal("delivery was never retried")
	}
}

func TestSubmitAfterStop(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{}, logx.Nop())
	d.Start(context.Background())
	d.Stop(context.Background())

	b := NewBuilder(BuilderConfig{CallbackURL: "http://127.0.0.1:0"})
	if err := d.Submit(context.Background(), b.Build("ev", "x", 0, 0)); err != ErrStopped {
		t.Fatalf("Submit after stop = %v, want ErrStopped", err)
	}
}
