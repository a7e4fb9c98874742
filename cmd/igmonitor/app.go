package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"igmonitor/internal/lock"
	"igmonitor/pkg/auth"
	"igmonitor/pkg/collector"
	"igmonitor/pkg/config"
	"igmonitor/pkg/instagram"
	"igmonitor/pkg/logger"
	"igmonitor/pkg/metrics"
	"igmonitor/pkg/monitor"
	"igmonitor/pkg/ratelimit"
	"igmonitor/pkg/storage"
	"igmonitor/pkg/storage/filestore"
	"igmonitor/pkg/storage/sqlite"
)

var (
	errIncomplete = errors.New("one or more collections did not complete")
	// errAlreadyReported exits non-zero without printing again
	errAlreadyReported = errors.New("failed")
)

// engine holds the wired components behind a command
type engine struct {
	backend  storage.Backend
	governor *ratelimit.Governor
	monitor  *monitor.Monitor
	log      logger.Logger
}

// engineOptions selects the interactive collaborators of a run
type engineOptions struct {
	// Collect wires the upstream client and collector; read-only commands
	// leave it unset
	Collect  bool
	Prompter collector.Prompter
	Progress collector.Progress
	Notifier monitor.Notifier
	// OnUsage and OnCountdown are installed on the governor
	OnUsage     func(used, max int, resetAt time.Time)
	OnCountdown func(remaining time.Duration)
}

// openBackend opens the configured record store
func openBackend(cfg *config.Config, log logger.Logger) (storage.Backend, error) {
	switch strings.ToLower(cfg.Storage.Backend) {
	case config.BackendSQLite:
		return sqlite.NewStore(cfg.Storage.DataDir, log)
	case config.BackendFile, "":
		return filestore.New(cfg.Storage.DataDir, log)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// newEngine wires storage, the governor, the Instagram client and the
// monitor from the loaded configuration
func newEngine(ctx context.Context, opts engineOptions) (*engine, error) {
	log := logger.GetLogger()

	backend, err := openBackend(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	e := &engine{backend: backend, log: log}

	deps := monitor.Deps{
		Backend:  backend,
		Notifier: opts.Notifier,
		Logger:   log,
	}

	if opts.Collect {
		locks, err := lock.New(cfg.Storage.DataDir, log)
		if err != nil {
			backend.Close()
			return nil, err
		}

		e.governor = ratelimit.NewGovernor(ratelimit.OptionsFromConfig(cfg.RateLimit), nil, log)
		e.governor.OnUsage = opts.OnUsage
		e.governor.OnCountdown = opts.OnCountdown

		client := instagram.NewClient(instagram.OptionsFromConfig(cfg.Source), log)
		if session := loadSession(log); session != nil {
			client.SetSession(session)
		}

		prompter := opts.Prompter
		if prompter == nil {
			prompter = collector.AutoPrompter{AcceptCooldown: cfg.Collection.AssumeYes}
		}

		col, err := collector.New(collector.Deps{
			Source:      client,
			Governor:    e.governor,
			Checkpoints: backend.Checkpoints(),
			Snapshots:   backend.Snapshots(),
			Prompter:    prompter,
			Progress:    opts.Progress,
			Locker:      locks,
			Logger:      log,
		}, collector.OptionsFromConfig(cfg.Collection))
		if err != nil {
			backend.Close()
			return nil, err
		}
		deps.Collector = col

		if cfg.Metrics.Enabled {
			go func() {
				if err := metrics.Serve(ctx, cfg.Metrics.Address); err != nil {
					log.WithError(err).Warn("metrics endpoint stopped")
				}
			}()
		}
	}

	mon, err := monitor.New(deps, cfg.Storage.Retention)
	if err != nil {
		backend.Close()
		return nil, err
	}
	e.monitor = mon
	return e, nil
}

// loadSession returns the stored web session, if any. Collections of public
// accounts work without one, so a missing session is only logged.
func loadSession(log logger.Logger) *instagram.Session {
	dir, err := auth.DefaultDir()
	if err != nil {
		log.WithError(err).Debug("no credential directory")
		return nil
	}
	manager, err := auth.NewManager(dir, log)
	if err != nil {
		log.WithError(err).Debug("credential manager unavailable")
		return nil
	}
	acct, err := manager.RetrieveDefault(cfg.Source.Account)
	if err != nil {
		log.Info("no stored session, requests are anonymous")
		return nil
	}
	log.WithField("account", acct.Username).Debug("using stored session")
	return acct.Session()
}

func (e *engine) Close() {
	if err := e.backend.Close(); err != nil {
		fmt.Fprintln(os.Stderr, "failed to close storage:", err)
	}
}
