// Package app wires configuration, logging, storage, the sweep loop and its
// observers into one process.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"questsweep/internal/accounts"
	"questsweep/internal/config"
	"questsweep/internal/eventbus"
	"questsweep/internal/notify"
	"questsweep/internal/runtime/supervisor"
	"questsweep/internal/storage"
	"questsweep/internal/sweep"
	logx "questsweep/pkg/logx"
	"questsweep/pkg/systemd"
)

const stopGrace = 10 * time.Second

type App struct {
	cfgm *config.ConfigManager
	cfg  *config.Config

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store
	notif *notify.Notifier
	sd    *systemd.Notifier

	accounts []accounts.Account
	loop     *sweep.Loop
	sched    sweep.Schedule
}

// New loads the config at cfgPath (after .env) and builds every component.
// Nothing runs until Run or Once.
func New(cfgPath string) (*App, error) {
	if err := config.LoadEnv(); err != nil {
		return nil, err
	}
	cfgm := config.NewConfigManager(config.ResolvePath(cfgPath))
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logs, log := logx.New(mapLogConfig(cfg))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	a := &App{cfgm: cfgm, cfg: cfg, log: log.With(logx.String("comp", "app")), logs: logs}
	if err := a.build(); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build() error {
	cfg := a.cfg

	accs, err := loadAccounts(cfg)
	if err != nil {
		return err
	}
	a.accounts = accs

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return err
	}
	if a.store, err = storage.Open(sc, a.logs.Logger().With(logx.String("comp", "storage"))); err != nil {
		return err
	}

	if a.notif, err = notify.New(mapNotifyConfig(cfg), a.logs.Logger().With(logx.String("comp", "notify"))); err != nil {
		return err
	}
	a.sd = systemd.New(a.logs.Logger().With(logx.String("comp", "systemd")))
	a.bus = eventbus.New()

	factory, err := mapClientFactory(cfg, a.logs.Logger().With(logx.String("comp", "client")))
	if err != nil {
		return err
	}
	rc, err := mapRunnerConfig(cfg)
	if err != nil {
		return err
	}
	bc, err := mapBatchConfig(cfg)
	if err != nil {
		return err
	}
	if a.sched, err = mapSchedule(cfg); err != nil {
		return err
	}

	sweepLog := a.logs.Logger().With(logx.String("comp", "sweep"))
	runner := sweep.NewRunner(rc, factory, sweepLog)
	a.loop = sweep.NewLoop(sweep.LoopConfig{Batch: bc, Schedule: a.sched}, accs, runner, a.store, a.bus, sweepLog)

	fields := []logx.Field{
		logx.Int("accounts", len(accs)),
		logx.Bool("use_proxy", cfg.Accounts.UseProxy),
		logx.Int("batch_size", bc.Size),
		logx.String("storage", sc.Driver),
	}
	if !a.sched.IsZero() {
		fields = append(fields, logx.String("schedule", a.sched.Raw))
	}
	a.log.Info("questsweep configured", fields...)
	if !cfg.Accounts.UseProxy {
		a.log.Warn("running without proxies")
	}
	return nil
}

func (a *App) Accounts() []accounts.Account { return a.accounts }
func (a *App) Config() *config.Config       { return a.cfg }
func (a *App) Logger() logx.Logger          { return a.log }

// Run sweeps until ctx is cancelled, with config hot reload, event logging,
// sweep notifications and systemd status running alongside.
func (a *App) Run(ctx context.Context) error {
	sup := supervisor.NewSupervisor(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	a.startObservers(sup)
	sup.Go0("config.watch", func(c context.Context) {
		if err := a.cfgm.Watch(c); err != nil {
			a.log.Warn("config hot reload disabled", logx.Err(err))
		}
	})
	sup.Go0("config.reload", a.applyReloads)
	sup.Go0("systemd.watchdog", a.sd.Watchdog)

	if err := a.loop.Prepare(sup.Context()); err != nil {
		a.log.Warn("user agent store unavailable, using ephemeral agents", logx.Err(err))
	}
	a.sd.Ready()
	a.log.Info("questsweep started")

	sup.Go("sweep.loop", a.loop.Run)

	<-sup.Context().Done()
	a.sd.Stopping()
	a.log.Info("questsweep stopping")

	stopCtx, cancel := context.WithTimeout(context.Background(), stopGrace)
	defer cancel()
	err := sup.Stop(stopCtx)
	if errors.Is(err, context.DeadlineExceeded) {
		a.log.Warn("shutdown grace elapsed", logx.Duration("grace", stopGrace))
		return nil
	}
	return err
}

// Once runs a single sweep and sends its summary synchronously.
func (a *App) Once(ctx context.Context) (sweep.Report, error) {
	if err := a.loop.Prepare(ctx); err != nil {
		a.log.Warn("user agent store unavailable, using ephemeral agents", logx.Err(err))
	}
	rep := a.loop.Sweep(ctx)
	if err := a.notif.Notify(ctx, rep); err != nil && !errors.Is(err, notify.ErrDisabled) {
		a.log.Warn("sweep summary not sent", logx.Err(err))
	}
	if err := ctx.Err(); err != nil {
		return rep, err
	}
	if len(rep.Outcomes) > 0 && rep.Succeeded == 0 {
		return rep, fmt.Errorf("all %d accounts failed", len(rep.Outcomes))
	}
	return rep, nil
}

func (a *App) Close() error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.logs != nil {
		errs = append(errs, a.logs.Close())
	}
	return errors.Join(errs...)
}

func (a *App) startObservers(sup *supervisor.Supervisor) {
	events, unsub := a.bus.Subscribe(128)
	sup.Go0("events.observe", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type))
				if s := statusLine(e); s != "" {
					a.sd.Status(s)
				}
			}
		}
	})
	sup.Go0("notify", func(c context.Context) { a.notif.Run(c, a.bus) })
}

// statusLine renders the systemd status for an event, or "" to keep the
// current one.
func statusLine(e eventbus.Event) string {
	switch d := e.Data.(type) {
	case sweep.SweepInfo:
		return fmt.Sprintf("sweeping %d accounts in %d batches", d.Accounts, d.Batches)
	case sweep.BatchInfo:
		if e.Type == eventbus.BatchStarted {
			return fmt.Sprintf("batch %d/%d running (%d accounts)", d.Batch, d.Batches, d.Size)
		}
	case sweep.Report:
		return fmt.Sprintf("idle: %d ok, %d failed; next sweep %s",
			d.Succeeded, d.Failed, d.Wait.Until.Local().Format("2006-01-02 15:04"))
	}
	return ""
}

// applyReloads applies logging changes live; every other section needs a
// restart.
func (a *App) applyReloads(ctx context.Context) {
	sub := a.cfgm.Subscribe(4)
	defer a.cfgm.Unsubscribe(sub)
	last := a.cfg
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
			changed := config.ChangedSections(last, next)
			last = next
			var restart []string
			for _, s := range changed {
				if s == "logging" {
					a.logs.Apply(mapLogConfig(next))
					a.log.Info("logging config applied", logx.String("level", mapLogConfig(next).Level))
					continue
				}
				restart = append(restart, s)
			}
			if len(restart) > 0 {
				a.log.Warn("config changed; restart required", logx.String("sections", strings.Join(restart, ",")))
			}
		}
	}
}
