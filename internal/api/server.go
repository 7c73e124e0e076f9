// Package api exposes the HTTP surface: event creation and listing, the
// queue callback endpoint, the backup trigger, and a health probe.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"calendard/internal/event"
	"calendard/internal/intake"
	logx "calendard/pkg/logx"
)

// Config controls the HTTP listener.
type Config struct {
	Address           string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

func (c Config) withDefaults() Config {
	if c.Address == "" {
		c.Address = "127.0.0.1:8080"
	}
	if c.ReadHeaderTimeout <= 0 {
		c.ReadHeaderTimeout = 5 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
	return c
}

// Events is the intake surface the handlers call.
type Events interface {
	Create(ctx context.Context, req intake.CreateRequest) (event.Event, error)
	List(ctx context.Context) ([]event.Event, error)
}

// Callbacks handles one raw queue delivery body.
type Callbacks interface {
	Process(ctx context.Context, body []byte) error
}

// Backups starts an export run. Trigger must not block on the export itself.
type Backups interface {
	Trigger()
}

// Server owns the HTTP listener lifecycle.
type Server struct {
	cfg Config
	log logx.Logger

	events    Events
	callbacks Callbacks
	backups   Backups

	mu   sync.Mutex
	srv  *http.Server
	ln   net.Listener
	addr string
}

func NewServer(cfg Config, events Events, callbacks Callbacks, backups Backups, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Server{
		cfg:       cfg.withDefaults(),
		log:       log.With(logx.String("comp", "api")),
		events:    events,
		callbacks: callbacks,
		backups:   backups,
	}
}

// Start binds the listener and serves in the background. Idempotent while
// running.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return nil
	}

	ln, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.srv = srv
	s.ln = ln
	s.addr = ln.Addr().String()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server error", logx.String("addr", s.addr), logx.Err(err))
		}
	}()
	s.log.Info("http server listening", logx.String("addr", s.addr))
	return nil
}

// Stop gracefully shuts the server down, bounded by ShutdownTimeout when the
// caller's context has no earlier deadline.
func (s *Server) Stop(ctx context.Context) {
	s.mu.Lock()
	srv := s.srv
	ln := s.ln
	addr := s.addr
	s.srv = nil
	s.ln = nil
	s.addr = ""
	s.mu.Unlock()

	if srv == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
		defer cancel()
	}
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.log.Warn("http shutdown error", logx.String("addr", addr), logx.Err(err))
	}
	if ln != nil {
		_ = ln.Close()
	}
	s.log.Info("http server stopped", logx.String("addr", addr))
}

// Addr reports the bound listen address while running.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}
