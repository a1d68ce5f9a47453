// Package app assembles the bot: configuration, logging, storage, the
// Discord session, and the results pipeline.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/DeLoWaN/openfront-discord-bot/internal/config"
	"github.com/DeLoWaN/openfront-discord-bot/internal/discord"
	"github.com/DeLoWaN/openfront-discord-bot/internal/eventbus"
	"github.com/DeLoWaN/openfront-discord-bot/internal/openfront"
	"github.com/DeLoWaN/openfront-discord-bot/internal/results"
	"github.com/DeLoWaN/openfront-discord-bot/internal/runtime/supervisor"
	"github.com/DeLoWaN/openfront-discord-bot/internal/storage"
	"github.com/DeLoWaN/openfront-discord-bot/pkg/logx"
)

const shutdownTimeout = 10 * time.Second

// App is the assembled bot process.
type App struct {
	cfgMgr  *config.Manager
	logSvc  *logx.Service
	log     logx.Logger
	store   storage.Store
	discord *discord.Client
	bus     eventbus.Bus
	results *results.Service
}

// New loads and validates the configuration and builds every component.
// Nothing is connected or scheduled until Run.
func New(configPath string) (*App, error) {
	mgr := config.NewManager(configPath)
	mgr.SetValidator(func(ctx context.Context, cfg *config.Config) error {
		return cfg.Validate()
	})
	cfg, err := mgr.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logSvc, log := logx.New(loggingConfig(cfg), nil)
	mgr.SetLogger(log.With(logx.String("task", "config")))

	st, err := storage.Open(storageConfig(cfg), log.With(logx.String("task", "storage")))
	if err != nil {
		logSvc.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}

	dg, err := discord.New(cfg.Discord.Token, log.With(logx.String("task", "discord")))
	if err != nil {
		st.Close()
		logSvc.Close()
		return nil, err
	}
	logSvc.SetSender(dg)

	feed := openfront.NewClient(feedConfig(cfg), log.With(logx.String("task", "openfront")))
	bus := eventbus.New()
	resultsOpts, err := resultsOptions(cfg)
	if err != nil {
		st.Close()
		logSvc.Close()
		return nil, err
	}

	return &App{
		cfgMgr:  mgr,
		logSvc:  logSvc,
		log:     log,
		store:   st,
		discord: dg,
		bus:     bus,
		results: results.NewService(feed, st, dg, bus, resultsOpts, log),
	}, nil
}

// Run connects Discord, starts the pipeline tasks and the config watcher,
// and blocks until ctx is canceled.
func (a *App) Run(ctx context.Context) error {
	if err := a.discord.Open(); err != nil {
		return err
	}
	a.log.Info("bot starting")

	sup := supervisor.New(ctx, supervisor.WithLogger(a.log.With(logx.String("task", "supervisor"))))
	if a.cfgMgr.Get().Results.Enabled {
		a.results.Start(sup)
	} else {
		a.log.Warn("results pipeline disabled by configuration")
	}
	sup.GoRestart("config.watch", a.cfgMgr.Watch)
	sup.Go0("config.apply", a.applyUpdates)

	<-ctx.Done()
	a.log.Info("bot stopping")

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := sup.Stop(stopCtx); err != nil {
		a.log.Warn("tasks did not stop cleanly", logx.Err(err))
	}

	if err := a.discord.Close(); err != nil {
		a.log.Warn("discord close failed", logx.Err(err))
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn("storage close failed", logx.Err(err))
	}
	a.logSvc.Close()
	return nil
}

// applyUpdates pushes validated config reloads into the running services.
func (a *App) applyUpdates(ctx context.Context) {
	updates := a.cfgMgr.Subscribe(1)
	defer a.cfgMgr.Unsubscribe(updates)
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-updates:
			if !ok {
				return
			}
			a.logSvc.Apply(loggingConfig(cfg))
			opts, err := resultsOptions(cfg)
			if err != nil {
				a.log.Error("config reload rejected", logx.Err(err))
				continue
			}
			a.results.Apply(opts)
			a.log.Info("configuration reloaded")
		}
	}
}

func loggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Discord: logx.DiscordConfig{
			Enabled:    cfg.Logging.Discord.Enabled,
			ChannelID:  cfg.Logging.Discord.ChannelID,
			MinLevel:   cfg.Logging.Discord.MinLevel,
			RatePerSec: cfg.Logging.Discord.RatePerSec,
		},
	}
}

func storageConfig(cfg *config.Config) storage.Config {
	busy, _ := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 0)
	return storage.Config{Path: cfg.Storage.Path, BusyTimeout: busy}
}

func feedConfig(cfg *config.Config) openfront.Config {
	timeout, _ := config.ParseDurationOrDefault("openfront.request_timeout", cfg.OpenFront.RequestTimeout, 0)
	return openfront.Config{
		BaseURL:    cfg.OpenFront.BaseURL,
		Timeout:    timeout,
		RatePerSec: float64(cfg.OpenFront.RatePerSec),
	}
}

func resultsOptions(cfg *config.Config) (results.Options, error) {
	poll, err := config.ParseDurationOrDefault("openfront.lobby_poll_interval", cfg.OpenFront.LobbyPollInterval, 2*time.Second)
	if err != nil {
		return results.Options{}, err
	}
	retry, err := config.ParseDurationOrDefault("results.retry_delay", cfg.Results.RetryDelay, 60*time.Second)
	if err != nil {
		return results.Options{}, err
	}
	retention, err := config.ParseDurationOrDefault("results.retention", cfg.Results.Retention, 7*24*time.Hour)
	if err != nil {
		return results.Options{}, err
	}
	return results.Options{
		PollInterval: poll,
		Worker: results.WorkerOptions{
			RetryDelay:   retry,
			FailureLimit: cfg.Results.FailureLimit,
			BatchLimit:   cfg.Results.BatchLimit,
			Workers:      cfg.Results.Workers,
		},
		Retention:     retention,
		PruneSchedule: cfg.Results.PruneSchedule,
		ExcludedModes: cfg.Results.ExcludedModes,
	}, nil
}
