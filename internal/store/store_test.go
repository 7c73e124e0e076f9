package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"calendard/internal/event"
	logx "calendard/pkg/logx"
)

func testEvent(id string) event.Event {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return event.Event{
		ID:              id,
		Message:         "standup",
		ScheduleTime:    now.Add(time.Hour),
		Timedelta:       3600,
		RepeatRemaining: 2,
		CreatedAt:       now,
	}
}

func openTestStores(t *testing.T) map[string]Store {
	t.Helper()
	ctx := context.Background()

	sq, err := Open(ctx, Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "events.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	stores := map[string]Store{
		"memory": NewMemory(),
		"sqlite": sq,
	}
	t.Cleanup(func() {
		for _, st := range stores {
			_ = st.Close()
		}
	})
	return stores
}

func TestCreateGetList(t *testing.T) {
	ctx := context.Background()
	for name, st := range openTestStores(t) {
		t.Run(name, func(t *testing.T) {
			want := testEvent("ev-1")
			if err := st.CreateEvent(ctx, want); err != nil {
				t.Fatalf("CreateEvent: %v", err)
			}

			got, err := st.GetEvent(ctx, "ev-1")
			if err != nil {
				t.Fatalf("GetEvent: %v", err)
			}
			if got.ID != want.ID || got.Message != want.Message ||
				got.Timedelta != want.Timedelta || got.RepeatRemaining != want.RepeatRemaining {
				t.Fatalf("GetEvent = %+v, want %+v", got, want)
			}
			if !got.ScheduleTime.Equal(want.ScheduleTime) {
				t.Fatalf("ScheduleTime = %v, want %v", got.ScheduleTime, want.ScheduleTime)
			}
			if got.Processed || got.ExecutionCounter != 0 {
				t.Fatalf("fresh event should be unprocessed with zero counter: %+v", got)
			}

			if _, err := st.GetEvent(ctx, "missing"); err != ErrNotFound {
				t.Fatalf("GetEvent(missing) = %v, want ErrNotFound", err)
			}

			all, err := st.ListEvents(ctx)
			if err != nil {
				t.Fatalf("ListEvents: %v", err)
			}
			if len(all) != 1 || all[0].ID != "ev-1" {
				t.Fatalf("ListEvents = %+v", all)
			}
		})
	}
}

func TestIncrementExecution(t *testing.T) {
	ctx := context.Background()
	for name, st := range openTestStores(t) {
		t.Run(name, func(t *testing.T) {
			if err := st.CreateEvent(ctx, testEvent("ev-inc")); err != nil {
				t.Fatalf("CreateEvent: %v", err)
			}

			n, err := st.IncrementExecution(ctx, "ev-inc", false)
			if err != nil || n != 1 {
				t.Fatalf("IncrementExecution = (%d, %v), want (1, nil)", n, err)
			}
			n, err = st.IncrementExecution(ctx, "ev-inc", true)
			if err != nil || n != 2 {
				t.Fatalf("IncrementExecution = (%d, %v), want (2, nil)", n, err)
			}

			// processed latches: a late duplicate with finished=false must not unset it
			if _, err := st.IncrementExecution(ctx, "ev-inc", false); err != nil {
				t.Fatalf("IncrementExecution: %v", err)
			}
			got, err := st.GetEvent(ctx, "ev-inc")
			if err != nil {
				t.Fatalf("GetEvent: %v", err)
			}
			if !got.Processed {
				t.Fatal("processed flag must stay true once set")
			}
			if got.ExecutionCounter != 3 {
				t.Fatalf("ExecutionCounter = %d, want 3", got.ExecutionCounter)
			}

			if _, err := st.IncrementExecution(ctx, "missing", true); err != ErrNotFound {
				t.Fatalf("IncrementExecution(missing) = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestIncrementExecutionConcurrent(t *testing.T) {
	ctx := context.Background()
	for name, st := range openTestStores(t) {
		t.Run(name, func(t *testing.T) {
			if err := st.CreateEvent(ctx, testEvent("ev-conc")); err != nil {
				t.Fatalf("CreateEvent: %v", err)
			}

			const deliveries = 50
			var wg sync.WaitGroup
			wg.Add(deliveries)
			for i := 0; i < deliveries; i++ {
				go func() {
					defer wg.Done()
					if _, err := st.IncrementExecution(ctx, "ev-conc", false); err != nil {
						t.Errorf("IncrementExecution: %v", err)
					}
				}()
			}
			wg.Wait()

			got, err := st.GetEvent(ctx, "ev-conc")
			if err != nil {
				t.Fatalf("GetEvent: %v", err)
			}
			if got.ExecutionCounter != deliveries {
				t.Fatalf("ExecutionCounter = %d, want %d", got.ExecutionCounter, deliveries)
			}
		})
	}
}
