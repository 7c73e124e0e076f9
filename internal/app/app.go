// Package app assembles and runs the calendard service: config, logging,
// store, dispatcher, intake, callback processing, notifier, backup, and the
// HTTP API.
package app

import (
	"context"
	"fmt"
	"time"

	"calendard/internal/api"
	"calendard/internal/backup"
	"calendard/internal/callback"
	"calendard/internal/config"
	"calendard/internal/intake"
	"calendard/internal/notifier"
	"calendard/internal/queue"
	"calendard/internal/runtime/supervisor"
	"calendard/internal/store"
	"calendard/internal/transport"
	"calendard/internal/transport/telegram"
	logx "calendard/pkg/logx"
)

type App struct {
	cfgMgr *config.Manager
	logSvc *logx.Service
	log    logx.Logger

	store      store.Store
	dispatcher *queue.Dispatcher
	notifier   *notifier.Service
	backup     *backup.Service
	server     *api.Server

	sup *supervisor.Supervisor
}

// New loads the config and wires every component. Nothing is running yet;
// call Start.
func New(ctx context.Context, configPath string) (*App, error) {
	bootLog := logx.NewConsole("INFO")

	cfgMgr := config.NewManager(configPath, bootLog)
	cfg, err := cfgMgr.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", configPath, err)
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})

	st, err := store.Open(ctx, store.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		DSN:         cfg.Storage.DSN,
		BusyTimeout: cfg.Storage.BusyTimeout,
	}, log.With(logx.String("comp", "store")))
	if err != nil {
		_ = logSvc.Close()
		return nil, fmt.Errorf("open store: %w", err)
	}

	dispatcher := queue.NewDispatcher(dispatcherConfig(cfg.Queue),
		log.With(logx.String("comp", "dispatcher")))
	builder := queue.NewBuilder(queue.BuilderConfig{
		CallbackURL: cfg.Queue.CallbackURL,
		Principal:   cfg.Queue.Principal,
	})

	var adapter transport.Adapter
	if cfg.Notifier.Enabled {
		tg, err := telegram.New(telegram.Config{Token: cfg.Telegram.Token},
			log.With(logx.String("comp", "telegram")))
		if err != nil {
			_ = st.Close()
			_ = logSvc.Close()
			return nil, fmt.Errorf("telegram adapter: %w", err)
		}
		adapter = tg
	}
	notify := notifier.New(notifierConfig(cfg), adapter,
		log.With(logx.String("comp", "notifier")))

	intakeSvc := intake.New(st, builder, dispatcher,
		log.With(logx.String("comp", "intake")))
	processor := callback.NewProcessor(st, builder, dispatcher, notify,
		log.With(logx.String("comp", "callback")))

	backupSvc := backup.New(backup.Config{
		Enabled:  cfg.Backup.Enabled,
		Dir:      cfg.Backup.Dir,
		Schedule: cfg.Backup.Schedule,
		Timeout:  durationOr(cfg.Backup.Timeout, 0),
	}, st, notify, log)

	var backups api.Backups
	if cfg.Backup.Enabled {
		backups = backupSvc
	}
	server := api.NewServer(api.Config{
		Address:           cfg.Server.Address,
		ReadHeaderTimeout: durationOr(cfg.Server.ReadHeaderTimeout, 0),
		ShutdownTimeout:   durationOr(cfg.Server.ShutdownTimeout, 0),
	}, intakeSvc, processor, backups, log)

	return &App{
		cfgMgr:     cfgMgr,
		logSvc:     logSvc,
		log:        log,
		store:      st,
		dispatcher: dispatcher,
		notifier:   notify,
		backup:     backupSvc,
		server:     server,
	}, nil
}

// Start brings every component up and begins watching the config file.
func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log),
		supervisor.WithCancelOnError(true))
	runCtx := a.sup.Context()

	a.dispatcher.Start(runCtx)
	a.notifier.Start(runCtx)
	if err := a.backup.Start(runCtx); err != nil {
		return err
	}
	if err := a.server.Start(runCtx); err != nil {
		return err
	}

	a.sup.Go("config-watch", a.cfgMgr.Watch)

	sub := a.cfgMgr.Subscribe(1)
	a.sup.Go0("config-apply", func(ctx context.Context) {
		defer a.cfgMgr.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case cfg := <-sub:
				if cfg == nil {
					continue
				}
				a.applyReload(cfg)
			}
		}
	})

	a.log.Info("calendard started", logx.String("addr", a.server.Addr()))
	return nil
}

// applyReload applies the hot-reloadable subset: logging sinks and notifier
// rate/retry knobs. Listener, store, and queue topology need a restart.
func (a *App) applyReload(cfg *config.Config) {
	a.logSvc.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	a.notifier.Apply(notifierConfig(cfg))
	a.log.Info("runtime config applied")
}

// Wait blocks until a component fails or ctx is done.
func (a *App) Wait(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Wait(ctx)
}

// Stop shuts everything down in reverse dependency order.
func (a *App) Stop(ctx context.Context) {
	a.server.Stop(ctx)
	a.backup.Stop(ctx)
	a.notifier.Stop(ctx)
	a.dispatcher.Stop(ctx)
	if a.sup != nil {
		_ = a.sup.Stop(ctx)
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn("store close failed", logx.Err(err))
	}
	a.log.Info("calendard stopped")
	_ = a.logSvc.Close()
}

func dispatcherConfig(q config.QueueConfig) queue.DispatcherConfig {
	return queue.DispatcherConfig{
		Workers:        q.Workers,
		QueueSize:      q.QueueSize,
		RetryMax:       q.RetryMax,
		RetryBase:      durationOr(q.RetryBase, 0),
		RetryMaxDelay:  durationOr(q.RetryMaxDelay, 0),
		RequestTimeout: durationOr(q.RequestTimeout, 0),
	}
}

func notifierConfig(cfg *config.Config) notifier.Config {
	return notifier.Config{
		Enabled:       cfg.Notifier.Enabled,
		Workers:       cfg.Notifier.Workers,
		QueueSize:     cfg.Notifier.QueueSize,
		RatePerSec:    cfg.Notifier.RatePerSec,
		RetryMax:      cfg.Notifier.RetryMax,
		RetryBase:     durationOr(cfg.Notifier.RetryBase, 0),
		RetryMaxDelay: durationOr(cfg.Notifier.RetryMaxDelay, 0),
		Target: transport.ChatTarget{
			ChatID:   cfg.Telegram.ChatID,
			ThreadID: cfg.Telegram.ThreadID,
		},
	}
}

// durationOr tolerates empty strings; Validate already rejected malformed
// values at load time.
func durationOr(raw string, def time.Duration) time.Duration {
	d, err := config.ParseDurationOrDefault("", raw, def)
	if err != nil {
		return def
	}
	return d
}
