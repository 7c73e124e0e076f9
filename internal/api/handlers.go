package api

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"calendard/internal/event"
	"calendard/internal/intake"
	logx "calendard/pkg/logx"
)

const maxBodyBytes = 64 << 10

// eventView is the wire representation of a stored event.
type eventView struct {
	ID               string `json:"id"`
	Message          string `json:"message"`
	ScheduleTime     string `json:"schedule_time"`
	Timedelta        int64  `json:"timedelta"`
	RepeatRemaining  int    `json:"repeat_remaining"`
	Processed        bool   `json:"processed"`
	ExecutionCounter int64  `json:"execution_counter"`
	CreatedAt        string `json:"created_at"`
}

func viewOf(ev event.Event) eventView {
	return eventView{
		ID:               ev.ID,
		Message:          ev.Message,
		ScheduleTime:     ev.ScheduleTime.UTC().Format(time.RFC3339),
		Timedelta:        ev.Timedelta,
		RepeatRemaining:  ev.RepeatRemaining,
		Processed:        ev.Processed,
		ExecutionCounter: ev.ExecutionCounter,
		CreatedAt:        ev.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /events", s.handleCreateEvent)
	mux.HandleFunc("GET /events", s.handleListEvents)
	mux.HandleFunc("POST /callback", s.handleCallback)
	mux.HandleFunc("POST /backup", s.handleBackup)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var req intake.CreateRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	ev, err := s.events.Create(r.Context(), req)
	if err != nil {
		if event.IsValidation(err) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		s.log.Error("event creation failed", logx.Err(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, http.StatusCreated, viewOf(ev))
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.events.List(r.Context())
	if err != nil {
		s.log.Error("event listing failed", logx.Err(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	views := make([]eventView, 0, len(events))
	for _, ev := range events {
		views = append(views, viewOf(ev))
	}
	writeJSON(w, http.StatusOK, map[string]any{"objects": views})
}

// handleCallback feeds the raw body to the processor. A nil result covers
// both successful processing and dropped malformed payloads; either way the
// queue must not redeliver, so both answer 200.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "failed reading request body"})
		return
	}
	if err := s.callbacks.Process(r.Context(), body); err != nil {
		s.log.Error("callback processing failed", logx.Err(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "internal error"})
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleBackup(w http.ResponseWriter, _ *http.Request) {
	if s.backups == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "backups disabled"})
		return
	}
	s.backups.Trigger()
	writeJSON(w, http.StatusAccepted, map[string]string{"message": "backup started"})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
