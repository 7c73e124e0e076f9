package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	logx "calendard/pkg/logx"
)

const validJSON = `{
  "server": {"address": "127.0.0.1:8080"},
  "logging": {"level": "INFO", "console": true, "file": {"enabled": false, "path": ""}},
  "storage": {"driver": "memory"},
  "queue": {"callback_url": "http://127.0.0.1:8080/callback", "workers": 2}
}`

func writeFile(t *testing.T, dir, name, data string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestLoadJSON(t *testing.T) {
	t.Parallel()
	path := writeFile(t, t.TempDir(), "config.json", validJSON)
	m := NewManager(path, logx.Nop())

	cfg, err := m.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Address != "127.0.0.1:8080" {
		t.Fatalf("server.address = %q", cfg.Server.Address)
	}
	if cfg.Queue.Workers != 2 {
		t.Fatalf("queue.workers = %d", cfg.Queue.Workers)
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get did not return the committed config")
	}
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	path := writeFile(t, t.TempDir(), "config.yaml", `
server:
  address: "127.0.0.1:9090"
logging:
  level: DEBUG
  console: true
  file:
    enabled: false
    path: ""
storage:
  driver: sqlite
  path: ./calendard.db
queue:
  callback_url: http://127.0.0.1:9090/callback
  retry_base: 500ms
`)
	m := NewManager(path, logx.Nop())
	cfg, err := m.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "DEBUG" || cfg.Storage.Driver != "sqlite" {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	path := writeFile(t, t.TempDir(), "config.json",
		`{"queue": {"callback_url": "http://x/callback"}, "no_such_section": {}}`)
	m := NewManager(path, logx.Nop())
	if _, err := m.Parse(); err == nil {
		t.Fatal("expected unknown field to be rejected")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	base := func() *Config {
		return &Config{
			Queue:   QueueConfig{CallbackURL: "http://x/callback"},
			Storage: StorageConfig{Driver: "memory"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:    "missing callback url",
			mutate:  func(c *Config) { c.Queue.CallbackURL = "" },
			wantErr: "callback_url",
		},
		{
			name:    "unknown driver",
			mutate:  func(c *Config) { c.Storage.Driver = "oracle" },
			wantErr: "not supported",
		},
		{
			name:    "postgres without dsn",
			mutate:  func(c *Config) { c.Storage = StorageConfig{Driver: "postgres"} },
			wantErr: "dsn",
		},
		{
			name:    "notifier without telegram",
			mutate:  func(c *Config) { c.Notifier.Enabled = true },
			wantErr: "telegram",
		},
		{
			name:    "bad duration",
			mutate:  func(c *Config) { c.Queue.RetryBase = "soon" },
			wantErr: "retry_base",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestWatchPublishesValidReloads(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.json", validJSON)
	m := NewManager(path, logx.Nop())
	if _, err := m.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub := m.Subscribe(1)
	watchDone := make(chan error, 1)
	go func() { watchDone <- m.Watch(ctx) }()

	// Give the watcher a moment to attach before the first write.
	time.Sleep(200 * time.Millisecond)
	writeFile(t, dir, "config.json",
		strings.Replace(validJSON, `"workers": 2`, `"workers": 4`, 1))

	select {
	case cfg := <-sub:
		if cfg.Queue.Workers != 4 {
			t.Fatalf("reloaded workers = %d, want 4", cfg.Queue.Workers)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload was published")
	}

	// Invalid content must not be committed or published.
	writeFile(t, dir, "config.json", `{"queue": {"callback_url": ""}}`)
	select {
	case cfg := <-sub:
		t.Fatalf("invalid config was published: %+v", cfg)
	case <-time.After(time.Second):
	}
	if got := m.Get().Queue.Workers; got != 4 {
		t.Fatalf("committed config changed to workers=%d after invalid write", got)
	}

	cancel()
	select {
	case <-watchDone:
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}
