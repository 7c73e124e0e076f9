package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"calendard/internal/callback"
	"calendard/internal/intake"
	"calendard/internal/queue"
	"calendard/internal/store"
	logx "calendard/pkg/logx"
)

type recordingQueue struct {
	mu    sync.Mutex
	tasks []queue.TaskDescriptor
	err   error
}

func (q *recordingQueue) Submit(_ context.Context, task queue.TaskDescriptor) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.tasks = append(q.tasks, task)
	return nil
}

type countingBackups struct {
	mu sync.Mutex
	n  int
}

func (b *countingBackups) Trigger() {
	b.mu.Lock()
	b.n++
	b.mu.Unlock()
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, string) error { return nil }

func newTestServer(t *testing.T) (*httptest.Server, *recordingQueue, *countingBackups) {
	t.Helper()
	st := store.NewMemory()
	q := &recordingQueue{}
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	b := queue.NewBuilderAt(queue.BuilderConfig{CallbackURL: "https://cb.example"}, clock)

	svc := intake.NewAt(st, b, q, logx.Nop(), clock)
	proc := callback.NewProcessor(st, b, q, nopNotifier{}, logx.Nop())
	backups := &countingBackups{}

	srv := NewServer(Config{}, svc, proc, backups, logx.Nop())
	ts := httptest.NewServer(srv.routes())
	t.Cleanup(ts.Close)
	return ts, q, backups
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, into any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestCreateEventEndpoint(t *testing.T) {
	ts, q, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/events", `{"message":"standup","timedelta":3600,"repeat":2}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	var created struct {
		ID               string `json:"id"`
		Message          string `json:"message"`
		ScheduleTime     string `json:"schedule_time"`
		RepeatRemaining  int    `json:"repeat_remaining"`
		Processed        bool   `json:"processed"`
		ExecutionCounter int64  `json:"execution_counter"`
	}
	decodeBody(t, resp, &created)
	if created.ID == "" || created.Message != "standup" {
		t.Fatalf("created = %+v", created)
	}
	if created.RepeatRemaining != 2 || created.Processed || created.ExecutionCounter != 0 {
		t.Fatalf("initial state = %+v", created)
	}
	if created.ScheduleTime != "2024-06-01T13:00:00Z" {
		t.Fatalf("schedule_time = %q", created.ScheduleTime)
	}
	if len(q.tasks) != 1 {
		t.Fatalf("queue submissions = %d, want 1", len(q.tasks))
	}
}

func TestCreateEventRejections(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{name: "not json", body: `{{{`, wantMsg: "invalid JSON"},
		{name: "past timestamp", body: `{"timestamp":"2000-01-01T00:00:00Z"}`, wantMsg: "future"},
		{name: "no schedule", body: `{"message":"x"}`, wantMsg: "timedelta"},
		{name: "negative repeat", body: `{"timedelta":5,"repeat":-1}`, wantMsg: "repeat"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			ts, q, _ := newTestServer(t)
			resp := postJSON(t, ts.URL+"/events", tt.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", resp.StatusCode)
			}
			var body struct {
				Error string `json:"error"`
			}
			decodeBody(t, resp, &body)
			if !strings.Contains(body.Error, tt.wantMsg) {
				t.Fatalf("error %q does not contain %q", body.Error, tt.wantMsg)
			}
			if len(q.tasks) != 0 {
				t.Fatalf("rejected request reached the queue")
			}
		})
	}
}

func TestListEventsEndpoint(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/events")
	if err != nil {
		t.Fatalf("GET /events: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body struct {
		Objects []json.RawMessage `json:"objects"`
	}
	decodeBody(t, resp, &body)
	if body.Objects == nil {
		t.Fatal("objects must be present even when empty")
	}
	if len(body.Objects) != 0 {
		t.Fatalf("objects = %d, want 0", len(body.Objects))
	}

	postJSON(t, ts.URL+"/events", `{"message":"a","timedelta":5}`)
	postJSON(t, ts.URL+"/events", `{"message":"b","timedelta":10}`)

	resp2, err := http.Get(ts.URL + "/events")
	if err != nil {
		t.Fatalf("GET /events: %v", err)
	}
	defer resp2.Body.Close()
	var body2 struct {
		Objects []json.RawMessage `json:"objects"`
	}
	decodeBody(t, resp2, &body2)
	if len(body2.Objects) != 2 {
		t.Fatalf("objects = %d, want 2", len(body2.Objects))
	}
}

func TestCallbackEndpoint(t *testing.T) {
	ts, q, _ := newTestServer(t)

	// Create the event through the API so the processor finds it.
	resp := postJSON(t, ts.URL+"/events", `{"message":"standup","timedelta":3600,"repeat":1}`)
	var created struct {
		ID string `json:"id"`
	}
	decodeBody(t, resp, &created)

	cb := postJSON(t, ts.URL+"/callback",
		`{"message":"standup","timedelta":3600,"id":"`+created.ID+`","repeat":1}`)
	if cb.StatusCode != http.StatusOK {
		t.Fatalf("callback status = %d, want 200", cb.StatusCode)
	}
	// Initial submission plus one re-enqueue.
	if len(q.tasks) != 2 {
		t.Fatalf("queue submissions = %d, want 2", len(q.tasks))
	}
	if q.tasks[1].Payload.Repeat != 0 {
		t.Fatalf("re-enqueued repeat = %d, want 0", q.tasks[1].Payload.Repeat)
	}
}

func TestCallbackMalformedIsDropped(t *testing.T) {
	ts, q, _ := newTestServer(t)

	for _, body := range []string{"", "{bad json", `{"message":"x","repeat":1}`} {
		resp := postJSON(t, ts.URL+"/callback", body)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("malformed body %q: status = %d, want 200", body, resp.StatusCode)
		}
	}
	if len(q.tasks) != 0 {
		t.Fatalf("malformed callbacks reached the queue")
	}
}

func TestCallbackFailureReturns500(t *testing.T) {
	ts, _, _ := newTestServer(t)

	// Well-formed payload for an event that does not exist.
	resp := postJSON(t, ts.URL+"/callback", `{"message":"x","id":"ghost","repeat":0}`)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
	var body struct {
		Message string `json:"message"`
	}
	decodeBody(t, resp, &body)
	// Internal detail (store errors, event ids) stays in the logs.
	if body.Message != "internal error" {
		t.Fatalf("message = %q, want generic internal error", body.Message)
	}
}

func TestBackupEndpoint(t *testing.T) {
	ts, _, backups := newTestServer(t)

	resp := postJSON(t, ts.URL+"/backup", "")
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	backups.mu.Lock()
	n := backups.n
	backups.mu.Unlock()
	if n != 1 {
		t.Fatalf("backup triggered %d times, want 1", n)
	}
}

func TestHealthEndpoint(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestServerStartStop(t *testing.T) {
	srv := NewServer(Config{Address: "127.0.0.1:0"}, nil, nil, nil, logx.Nop())
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	addr := srv.Addr()
	if addr == "" {
		t.Fatal("no listen address after Start")
	}

	resp, err := http.Get("http://" + addr + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	_ = resp.Body.Close()

	srv.Stop(context.Background())
	if srv.Addr() != "" {
		t.Fatal("address still set after Stop")
	}
	if _, err := http.Get("http://" + addr + "/healthz"); err == nil {
		t.Fatal("server still reachable after Stop")
	}
}
