package core

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"fedbot/internal/chatwatch"
	"fedbot/internal/config"
	"fedbot/internal/scheduler"
	"fedbot/internal/storage"
	kit "fedbot/internal/transport"
	"fedbot/internal/transport/telegram"
	"fedbot/pkg/logx"
)

// App wires config, logging, transport, storage, the chatwatch bus, the
// scheduler, and the plugin/command managers into one runnable unit.
type App struct {
	cfgm  *config.Manager
	logs  *logx.Service
	log   logx.Logger
	adpt  *telegram.Adapter
	store storage.Store
	watch *chatwatch.Bus
	sched *scheduler.Service
	cmdm  *CommandManager
	plugm *PluginManager

	sup     *Supervisor
	updates chan kit.Update
}

func NewApp(configPath string) (*App, error) {
	cfgm := config.NewManager(configPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logs, log := logx.New(logxConfig(cfg), nil)
	cfgm.SetLogger(log.With(logx.String("svc", "config")))

	pollTimeout, _ := time.ParseDuration(cfg.Telegram.PollTimeout)
	adpt, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, log.With(logx.String("svc", "telegram")))
	if err != nil {
		_ = logs.Close()
		return nil, fmt.Errorf("telegram adapter: %w", err)
	}
	logs.SetSender(adpt)
	if id := parseChatID(cfg.Telegram.GroupLog); id != 0 {
		logs.SetTelegramTarget(id, cfg.Logging.Telegram.ThreadID)
	}

	store, err := storage.Open(storage.Config{
		Driver: cfg.Storage.Driver,
		Path:   cfg.Storage.Path,
	}, log.With(logx.String("svc", "storage")))
	if err != nil {
		_ = logs.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}

	watch := chatwatch.New()
	sched := scheduler.New(log.With(logx.String("svc", "scheduler")))

	cmdm := NewCommandManager(log.With(logx.String("svc", "commands")), adpt, cfgm, store, watch, cfg.Telegram.OwnerUserIDs)
	plugm := NewPluginManager(log.With(logx.String("svc", "plugins")), cfgm, PluginDeps{
		Log:       log,
		Adapter:   adpt,
		Config:    cfgm,
		Store:     store,
		Watch:     watch,
		Scheduler: sched,
		Owners:    cfg.Telegram.OwnerUserIDs,
	}, cmdm)

	cfgm.SetValidator(func(ctx context.Context, c *config.Config) error {
		if strings.TrimSpace(c.Telegram.Token) == "" {
			return fmt.Errorf("telegram.token must not be empty")
		}
		if len(c.Telegram.OwnerUserIDs) == 0 {
			return fmt.Errorf("telegram.owner_user_ids must not be empty")
		}
		return nil
	})

	return &App{
		cfgm:    cfgm,
		logs:    logs,
		log:     log,
		adpt:    adpt,
		store:   store,
		watch:   watch,
		sched:   sched,
		cmdm:    cmdm,
		plugm:   plugm,
		updates: make(chan kit.Update, 512),
	}, nil
}

func (a *App) Plugins() *PluginManager { return a.plugm }

func (a *App) Log() logx.Logger { return a.log }

// Run starts everything and blocks until ctx is cancelled or a supervised
// component fails.
func (a *App) Run(ctx context.Context) error {
	a.sup = NewSupervisor(ctx, WithLogger(a.log.With(logx.String("svc", "supervisor"))), WithCancelOnError(true))
	sctx := a.sup.Context()

	if err := a.adpt.Start(sctx, a.updates); err != nil {
		return fmt.Errorf("start telegram adapter: %w", err)
	}
	a.sched.Start()

	if err := a.plugm.StartAll(sctx); err != nil {
		return fmt.Errorf("start plugins: %w", err)
	}

	a.sup.Go("dispatcher", func(ctx context.Context) error {
		return a.cmdm.DispatchLoop(ctx, a.updates)
	})
	a.sup.Go("config-watch", func(ctx context.Context) error {
		return a.cfgm.Watch(ctx)
	})
	a.sup.Go("config-apply", func(ctx context.Context) error {
		a.reloadLoop(ctx)
		return nil
	})

	a.log.Info("bot up")
	err := a.sup.Wait(context.Background())
	return err
}

// reloadLoop applies committed config updates: logging sinks, owner lists,
// and plugin reconciliation.
func (a *App) reloadLoop(ctx context.Context) {
	sub := a.cfgm.Subscribe(2)
	defer a.cfgm.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok || cfg == nil {
				return
			}
			a.logs.Apply(logxConfig(cfg))
			if id := parseChatID(cfg.Telegram.GroupLog); id != 0 {
				a.logs.SetTelegramTarget(id, cfg.Logging.Telegram.ThreadID)
			}
			a.cmdm.SetOwners(cfg.Telegram.OwnerUserIDs)
			a.plugm.SetOwners(cfg.Telegram.OwnerUserIDs)
			a.plugm.OnConfigUpdate(ctx, cfg)
		}
	}
}

// Stop shuts components down in dependency order, each step bounded by the
// remaining ctx budget.
func (a *App) Stop(ctx context.Context) {
	stopCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	a.plugm.StopAll(stopCtx)
	a.sched.Stop()
	_ = a.adpt.Stop(stopCtx)

	if a.sup != nil {
		a.sup.Cancel()
		_ = a.sup.Wait(stopCtx)
	}

	_ = a.store.Close()
	_ = a.logs.Close()
}

func logxConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func parseChatID(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return id
}
