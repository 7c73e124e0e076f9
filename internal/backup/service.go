// Package backup exports the event store to timestamped JSON snapshots,
// on demand and optionally on a cron schedule. Each run reports its outcome
// through the notifier.
package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"calendard/internal/store"
	logx "calendard/pkg/logx"
)

// Config controls the backup service.
type Config struct {
	Enabled  bool
	Dir      string
	Schedule string
	Timeout  time.Duration
}

func (c Config) withDefaults() Config {
	if c.Dir == "" {
		c.Dir = "./backups"
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	return c
}

// Notifier receives the outcome report. Failures to notify are logged only.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

type Service struct {
	cfg      Config
	store    store.Store
	notifier Notifier
	log      logx.Logger
	now      func() time.Time

	mu      sync.Mutex
	started bool
	cron    *cron.Cron
	trigger chan struct{}
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

func New(cfg Config, st store.Store, n Notifier, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:      cfg.withDefaults(),
		store:    st,
		notifier: n,
		log:      log.With(logx.String("comp", "backup")),
		now:      time.Now,
	}
}

// Start launches the trigger worker and, when a schedule is configured, the
// cron entry driving it.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cfg.Enabled || s.started {
		return nil
	}

	s.trigger = make(chan struct{}, 1)
	s.stopCh = make(chan struct{})

	if s.cfg.Schedule != "" {
		c := cron.New()
		if _, err := c.AddFunc(s.cfg.Schedule, s.Trigger); err != nil {
			return fmt.Errorf("backup schedule %q: %w", s.cfg.Schedule, err)
		}
		c.Start()
		s.cron = c
	}

	s.wg.Add(1)
	go s.worker()

	s.started = true
	s.log.Info("backup service started",
		logx.String("dir", s.cfg.Dir),
		logx.String("schedule", s.cfg.Schedule))
	return nil
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	if s.cron != nil {
		s.cron.Stop()
		s.cron = nil
	}
	close(s.stopCh)
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn("backup stop timed out")
	}
}

// Trigger requests a run. Requests arriving while a run is already queued
// coalesce into one.
func (s *Service) Trigger() {
	s.mu.Lock()
	trigger := s.trigger
	started := s.started
	s.mu.Unlock()
	if !started {
		return
	}
	select {
	case trigger <- struct{}{}:
	default:
	}
}

func (s *Service) worker() {
	defer s.wg.Done()
	for {
		select {
		case <-s.stopCh:
			return
		case <-s.trigger:
			ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
			dir, err := s.Run(ctx)
			s.report(ctx, dir, err)
			cancel()
		}
	}
}

// Run performs one export synchronously and returns the snapshot directory.
func (s *Service) Run(ctx context.Context) (string, error) {
	events, err := s.store.ListEvents(ctx)
	if err != nil {
		return "", fmt.Errorf("list events: %w", err)
	}

	stamp := s.now().UTC().Format("20060102T150405")
	dir := filepath.Join(s.cfg.Dir, fmt.Sprintf("%sU%s", stamp, uuid.NewString()[:8]))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}

	data, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode events: %w", err)
	}
	path := filepath.Join(dir, "events.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}

	s.log.Info("backup written",
		logx.String("path", path),
		logx.Int("events", len(events)))
	return dir, nil
}

func (s *Service) report(ctx context.Context, dir string, runErr error) {
	if s.notifier == nil {
		return
	}
	text := fmt.Sprintf("Backup complete: %s", dir)
	if runErr != nil {
		text = fmt.Sprintf("Backup failed: %v", runErr)
	}
	if err := s.notifier.Notify(ctx, text); err != nil {
		s.log.Warn("backup report failed", logx.Err(err))
	}
}
