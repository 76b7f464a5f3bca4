// Package app wires the taskherd core: config, logging, stores, the agent
// registry, the routine scheduler, the notification dispatcher and the
// internal job runner.
package app

import (
	"context"
	"fmt"

	"taskherd/internal/agents"
	"taskherd/internal/config"
	"taskherd/internal/eventbus"
	"taskherd/internal/notify"
	"taskherd/internal/routines"
	"taskherd/internal/runner"
	"taskherd/internal/storage"
	"taskherd/internal/tasks"
	logx "taskherd/pkg/logx"
)

type App struct {
	cfgm *config.Manager

	log      logx.Logger
	logClose func() error

	bus      eventbus.Bus
	audit    storage.Store
	registry *agents.Memory

	tasks      *tasks.Store
	routines   *routines.Service
	dispatcher *notify.Dispatcher
	bridge     *notify.EventBridge
	runner     *runner.Runner

	cfgSub      chan *config.Config
	watchCancel context.CancelFunc
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, logClose, err := logx.New(cfg.Logging.LogxConfig())
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	audit, err := storage.Open(cfg.Audit.StorageConfig(), log.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logClose()
		return nil, fmt.Errorf("open audit store: %w", err)
	}

	bus := eventbus.New()
	registry := agents.NewMemory(cfg.RegistrySeed())

	taskStore, err := tasks.New(tasks.Config{
		Path:       cfg.Data.TasksPath(),
		MaxRecords: cfg.Data.MaxTasks,
	}, bus, audit, log.With(logx.String("comp", "tasks")))
	if err != nil {
		_ = logClose()
		return nil, err
	}

	routineStore, err := routines.NewStore(routines.Config{
		Path:       cfg.Data.RoutinesPath(),
		MaxRecords: cfg.Data.MaxRoutines,
	}, log.With(logx.String("comp", "routines")))
	if err != nil {
		_ = logClose()
		return nil, err
	}
	routineSvc := routines.NewService(routineStore, taskStore, registry, log.With(logx.String("comp", "routines")))

	notifyStore, err := notify.NewStore(notify.StoreConfig{
		Path:       cfg.Data.NotificationsPath(),
		MaxRecords: cfg.Data.MaxNotifications,
	}, log.With(logx.String("comp", "notify")))
	if err != nil {
		_ = logClose()
		return nil, err
	}
	dispatcher := notify.NewDispatcher(notify.DispatcherConfig{
		SendTimeout: cfg.Dispatcher.SendTimeoutOrDefault(),
		RatePerSec:  cfg.Dispatcher.RatePerSec,
	}, notifyStore, registry, notify.NewHTTPSender(), log.With(logx.String("comp", "dispatch")))
	bridge := notify.NewEventBridge(notifyStore, bus, log.With(logx.String("comp", "notify")))

	run := runner.New(runner.Config{
		Workers:     cfg.Runner.Workers,
		QueueSize:   cfg.Runner.QueueSize,
		HistorySize: cfg.Runner.HistorySize,
	}, log.With(logx.String("comp", "runner")))

	return &App{
		cfgm:       cfgm,
		log:        log,
		logClose:   logClose,
		bus:        bus,
		audit:      audit,
		registry:   registry,
		tasks:      taskStore,
		routines:   routineSvc,
		dispatcher: dispatcher,
		bridge:     bridge,
		runner:     run,
	}, nil
}

// Accessors for the embedding REST layer.
func (a *App) Tasks() *tasks.Store         { return a.tasks }
func (a *App) Routines() *routines.Service { return a.routines }
func (a *App) Notify() *notify.Dispatcher  { return a.dispatcher }
func (a *App) Registry() *agents.Memory    { return a.registry }
func (a *App) Runner() *runner.Runner      { return a.runner }

func (a *App) Start(ctx context.Context) error {
	cfg := a.cfgm.Get()

	a.bridge.Start(ctx)

	if cfg.Scheduler.IsEnabled() {
		tick := cfg.Scheduler.TickOrDefault()
		if err := a.runner.AddInterval("routines.tick", tick, tick, a.routines.Tick); err != nil {
			return err
		}
	}
	if cfg.Dispatcher.IsEnabled() {
		poll := cfg.Dispatcher.PollOrDefault()
		if err := a.runner.AddInterval("notify.dispatch", poll, 0, a.dispatcher.DispatchPending); err != nil {
			return err
		}
		retention := cfg.Dispatcher.RetentionOrDefault()
		err := a.runner.AddCron("notify.prune", "0 3 * * *", 0, func(ctx context.Context) error {
			n, err := a.dispatcher.Store().PruneDelivered(retention)
			if n > 0 {
				a.log.Info("pruned delivered notifications", logx.Int("removed", n))
			}
			return err
		})
		if err != nil {
			return err
		}
	}
	a.runner.Start(ctx)

	// Config hot reload: re-seed the agent registry live. Store paths and
	// loop cadences take effect on restart.
	watchCtx, cancel := context.WithCancel(ctx)
	a.watchCancel = cancel
	a.cfgSub = a.cfgm.Subscribe(1)
	go func() {
		if err := a.cfgm.Watch(watchCtx); err != nil {
			a.log.Warn("config watch stopped", logx.Err(err))
		}
	}()
	go func() {
		for cfg := range a.cfgSub {
			if cfg == nil {
				continue
			}
			for _, agent := range cfg.RegistrySeed() {
				a.registry.Upsert(agent)
			}
			a.log.Info("config applied", logx.Int("agents", len(cfg.Agents)))
		}
	}()

	a.log.Info("taskherd started")
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	if a.watchCancel != nil {
		a.watchCancel()
	}
	a.runner.Stop(ctx)
	a.bridge.Stop(ctx)
	if a.cfgSub != nil {
		a.cfgm.Unsubscribe(a.cfgSub)
		a.cfgSub = nil
	}
	if a.audit != nil {
		_ = a.audit.Close()
	}
	if a.logClose != nil {
		_ = a.logClose()
	}
	return nil
}
