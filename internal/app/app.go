// Package app wires the services together and owns their lifecycle.
package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"siriusbot/internal/accounts"
	"siriusbot/internal/config"
	"siriusbot/internal/console"
	"siriusbot/internal/notify"
	"siriusbot/internal/refresh"
	"siriusbot/internal/sched"
	"siriusbot/internal/sirius"
	"siriusbot/pkg/logx"
)

const (
	defaultMargin  = 3 * time.Second
	defaultGrace   = 5 * time.Second
	defaultHorizon = 48 * time.Hour

	defaultRefreshEvery = 10 * time.Minute
)

type App struct {
	cfgm *config.Manager
	sup  *Supervisor

	log  logx.Logger
	logs *logx.Service

	store    *accounts.Store
	client   *sirius.Client
	registry *sched.Registry
	notif    *notify.Service
	refr     *refresh.Service
	cons     *console.Console
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logConfig(cfg))
	log = log.With(logx.String("comp", "app"))

	storePath := strings.TrimSpace(cfg.Storage.Path)
	if storePath == "" {
		storePath = "./siriusbot.db"
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, time.Second)
	if err != nil {
		return nil, err
	}
	store, err := accounts.Open(accounts.Config{
		Path:        storePath,
		BusyTimeout: busy,
	}, log.With(logx.String("comp", "accounts")))
	if err != nil {
		return nil, err
	}

	client, err := newClient(cfg, log)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	notifSvc := notify.New(notifyConfig(cfg), log.With(logx.String("comp", "notify")))

	every, err := config.ParseDurationOrDefault("refresh.every", cfg.Refresh.Every, defaultRefreshEvery)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	refrSvc := refresh.New(refresh.Config{
		Enabled: cfg.Refresh.Enabled,
		Every:   every,
	}, log.With(logx.String("comp", "refresh")))

	a := &App{
		cfgm:     cfgm,
		log:      log,
		logs:     logSvc,
		store:    store,
		client:   client,
		registry: sched.NewRegistry(),
		notif:    notifSvc,
		refr:     refrSvc,
	}

	a.cons = console.New(console.Options{
		In:       os.Stdin,
		Out:      os.Stdout,
		Store:    store,
		Client:   client,
		Registry: a.registry,
		Notify:   notifSvc,
		Settings: a.settings,
		Clock:    sched.SystemClock(),
		Log:      log.With(logx.String("comp", "console")),
	})
	refrSvc.SetJob(a.cons.RefreshArmed)

	return a, nil
}

// Run starts the background services, drives the console until it exits (or
// ctx is cancelled), then tears everything down. Sessions held by armed
// records are released on every path out.
func (a *App) Run(ctx context.Context) error {
	a.sup = NewSupervisor(ctx, WithLogger(a.log))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return validate(cfg)
	})

	a.notif.Start(a.sup.Context())
	if a.refr.Enabled() {
		a.refr.Start(a.sup.Context())
	}

	a.sup.Go("config.watch", a.cfgm.Watch)

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})

	a.log.Info("app started")

	err := a.cons.Run(a.sup.Context())

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a.Stop(stopCtx)
	return err
}

// Stop tears components down with a per-step upper bound so one of them
// cannot stall the whole shutdown.
func (a *App) Stop(ctx context.Context) {
	if a.sup == nil {
		return
	}
	a.log.Info("stopping")

	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context)) {
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()
		done := make(chan struct{})
		go func() {
			defer close(done)
			defer func() {
				if r := recover(); r != nil {
					a.log.Warn("panic in stop step", logx.String("step", name), logx.Any("panic", r))
				}
			}()
			fn(stepCtx)
		}()
		select {
		case <-done:
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("step", name))
		}
	}

	step("refresh", 2*time.Second, func(c context.Context) { a.refr.Stop(c) })
	step("notify", 2*time.Second, func(c context.Context) { a.notif.Stop(c) })
	step("supervisor", 2*time.Second, func(c context.Context) { _ = a.sup.Wait(c) })
	step("accounts", time.Second, func(context.Context) { _ = a.store.Close() })

	a.log.Info("stopped")
	_ = a.logs.Close()
}

// reloadLoop applies hot-reloaded configs. Margin/grace/horizon are read live
// by the console through settings(), so only the service-shaped sections need
// explicit apply calls here.
func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		var newCfg *config.Config
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			newCfg = drainLatest(sub, cfg)
		}
		if newCfg == nil {
			continue
		}

		sections, attrs := config.SummarizeChange(lastApplied, newCfg)
		lastApplied = newCfg

		a.logs.Apply(logConfig(newCfg))
		a.applyRefresh(ctx, newCfg)

		if len(sections) > 0 {
			a.log.Info("config reloaded",
				append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)...)
		} else {
			a.log.Info("config reloaded (no changes)")
		}
	}
}

func (a *App) applyRefresh(ctx context.Context, cfg *config.Config) {
	every, err := config.ParseDurationOrDefault("refresh.every", cfg.Refresh.Every, defaultRefreshEvery)
	if err != nil {
		// Validator should have rejected this; keep the old schedule.
		return
	}
	prevEnabled := a.refr.Enabled()
	a.refr.Apply(refresh.Config{Enabled: cfg.Refresh.Enabled, Every: every})
	switch {
	case prevEnabled && !cfg.Refresh.Enabled:
		stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		a.refr.Stop(stopCtx)
		cancel()
	case !prevEnabled && cfg.Refresh.Enabled:
		a.refr.Start(ctx)
	}
}

// drainLatest coalesces a burst of reloads down to the newest config.
func drainLatest(sub chan *config.Config, latest *config.Config) *config.Config {
	for {
		select {
		case cfg, ok := <-sub:
			if !ok {
				return latest
			}
			if cfg != nil {
				latest = cfg
			}
		default:
			return latest
		}
	}
}

// settings snapshots the tunables for one console command.
func (a *App) settings() console.Settings {
	set := console.Settings{
		Margin:  defaultMargin,
		Grace:   defaultGrace,
		Horizon: defaultHorizon,
	}
	cfg := a.cfgm.Get()
	if cfg == nil {
		return set
	}
	if d, err := config.ParseDurationOrDefault("scheduler.margin", cfg.Scheduler.Margin, defaultMargin); err == nil {
		set.Margin = d
	}
	if d, err := config.ParseDurationOrDefault("scheduler.grace", cfg.Scheduler.Grace, defaultGrace); err == nil {
		set.Grace = d
	}
	if d, err := config.ParseDurationOrDefault("scheduler.horizon", cfg.Scheduler.Horizon, defaultHorizon); err == nil {
		set.Horizon = d
	}
	set.StopAfterClose = cfg.Scheduler.StopAfterClose
	return set
}

func logConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func newClient(cfg *config.Config, log logx.Logger) (*sirius.Client, error) {
	timeout, err := config.ParseDurationOrDefault("service.request_timeout", cfg.Service.RequestTimeout, 15*time.Second)
	if err != nil {
		return nil, err
	}
	c := sirius.Config{
		BaseURL:            strings.TrimSpace(cfg.Service.BaseURL),
		AppID:              strings.TrimSpace(cfg.Service.AppID),
		FormID:             strings.TrimSpace(cfg.Service.FormID),
		UserField:          strings.TrimSpace(cfg.Service.UserField),
		RequestTimeout:     timeout,
		TimelineRatePerMin: cfg.Service.TimelineRatePerMin,
	}
	return sirius.NewClient(c, log.With(logx.String("comp", "sirius"))), nil
}

func notifyConfig(cfg *config.Config) notify.Config {
	if cfg.Notify == nil {
		return notify.Config{}
	}
	return notify.Config{
		Enabled:    cfg.Notify.Enabled,
		Token:      cfg.Notify.Token,
		ChatID:     cfg.Notify.ChatID,
		RatePerSec: cfg.Notify.RatePerSec,
		QueueSize:  cfg.Notify.QueueSize,
	}
}

// validate rejects a reloaded config before it is committed.
func validate(cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if err := config.CheckDurations(cfg); err != nil {
		return err
	}
	if cfg.Service.TimelineRatePerMin < 0 {
		return fmt.Errorf("service.timeline_rate_per_min must be >= 0")
	}
	if n := cfg.Notify; n != nil && n.Enabled {
		if strings.TrimSpace(n.Token) == "" {
			return fmt.Errorf("notify.token is required when notify.enabled")
		}
		if n.ChatID == 0 {
			return fmt.Errorf("notify.chat_id is required when notify.enabled")
		}
	}
	return nil
}
