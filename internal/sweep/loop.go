// Package sweep runs every account through its quests in bounded batches,
// then sleeps until the next sweep can be useful.
package sweep

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"questsweep/internal/accounts"
	"questsweep/internal/eventbus"
	"questsweep/internal/storage"
	"questsweep/internal/useragent"
	logx "questsweep/pkg/logx"
)

// AccountRunner runs one account's pipeline.
type AccountRunner interface {
	Run(ctx context.Context, acc accounts.Account, userAgent string) (Outcome, error)
}

type LoopConfig struct {
	Batch BatchConfig
	// Schedule, when set, replaces the cooldown-derived wait.
	Schedule Schedule
}

// Report summarizes one sweep. It is the payload of eventbus.SweepFinished.
type Report struct {
	ID        string
	Started   time.Time
	Finished  time.Time
	Outcomes  []Outcome
	Succeeded int
	Failed    int
	Wait      Wait
}

// SweepInfo is the payload of eventbus.SweepStarted.
type SweepInfo struct {
	ID       string
	Accounts int
	Batches  int
}

// BatchInfo is the payload of eventbus.BatchStarted and eventbus.BatchFinished.
type BatchInfo struct {
	SweepID   string
	Batch     int
	Batches   int
	Size      int
	Succeeded int
}

type Loop struct {
	cfg      LoopConfig
	accounts []accounts.Account
	runner   AccountRunner
	store    storage.Store
	bus      eventbus.Bus
	log      logx.Logger

	now    func() time.Time
	rng    *rand.Rand
	agents map[int]string
}

func NewLoop(cfg LoopConfig, accs []accounts.Account, runner AccountRunner, store storage.Store, bus eventbus.Bus, log logx.Logger) *Loop {
	if store == nil {
		store = storage.NewMemory()
	}
	if bus == nil {
		bus = eventbus.Nop{}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Loop{
		cfg:      cfg,
		accounts: accs,
		runner:   runner,
		store:    store,
		bus:      bus,
		log:      log,
		now:      time.Now,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Prepare assigns every account its persisted user agent. Sweep calls it on
// first use.
func (l *Loop) Prepare(ctx context.Context) error {
	agents := make(map[int]string, len(l.accounts))
	var firstErr error
	created := 0
	for _, acc := range l.accounts {
		ua, isNew, err := useragent.Resolve(ctx, l.store, acc.Index, l.rng)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			l.log.Warn("user agent not persisted", logx.String("account", acc.Label()), logx.Err(err))
			ua = useragent.Pick(l.rng)
		}
		if isNew {
			created++
		}
		agents[acc.Index] = ua
	}
	l.agents = agents
	l.log.Debug("user agents ready", logx.Int("accounts", len(agents)), logx.Int("created", created))
	return firstErr
}

// Sweep runs every account once and computes the wait until the next sweep.
func (l *Loop) Sweep(ctx context.Context) Report {
	if l.agents == nil {
		_ = l.Prepare(ctx)
	}

	rep := Report{ID: uuid.NewString(), Started: l.now()}
	size := l.cfg.Batch.Size
	if size <= 0 {
		size = 1
	}
	batches := (len(l.accounts) + size - 1) / size
	log := l.log.With(logx.String("sweep", rep.ID))

	log.Info("sweep started", logx.Int("accounts", len(l.accounts)), logx.Int("batches", batches))
	l.bus.Publish(eventbus.Event{Type: eventbus.SweepStarted, Data: SweepInfo{ID: rep.ID, Accounts: len(l.accounts), Batches: batches}})

	units := make([]Unit, len(l.accounts))
	for i, acc := range l.accounts {
		ua := l.agents[acc.Index]
		units[i] = Unit{
			Index: acc.Index,
			Label: acc.Label(),
			Run: func(ctx context.Context) (Outcome, error) {
				return l.runner.Run(ctx, acc, ua)
			},
		}
	}

	bc := l.cfg.Batch
	bc.OnBatchStart = func(batch, batches, size int) {
		l.bus.Publish(eventbus.Event{Type: eventbus.BatchStarted, Data: BatchInfo{SweepID: rep.ID, Batch: batch, Batches: batches, Size: size}})
	}
	bc.OnBatchDone = func(batch, batches int, results []Result) {
		info := BatchInfo{SweepID: rep.ID, Batch: batch, Batches: batches, Size: len(results)}
		for _, r := range results {
			l.recordOutcome(ctx, log, rep.ID, r)
			if r.Err == nil {
				info.Succeeded++
			}
		}
		l.bus.Publish(eventbus.Event{Type: eventbus.BatchFinished, Data: info})
	}

	results := RunBatches(ctx, bc, units, log)
	rep.Outcomes = make([]Outcome, len(results))
	for i, r := range results {
		rep.Outcomes[i] = r.Outcome
		if r.Outcome.Success {
			rep.Succeeded++
		} else {
			rep.Failed++
		}
	}

	rep.Finished = l.now()
	rep.Wait = l.nextWait(rep.Outcomes, rep.Finished)

	fields := []logx.Field{
		logx.Int("succeeded", rep.Succeeded),
		logx.Int("failed", rep.Failed),
		logx.Duration("took", rep.Finished.Sub(rep.Started).Round(time.Millisecond)),
		logx.Duration("wait", rep.Wait.Duration.Round(time.Second)),
		logx.Time("next_sweep", rep.Wait.Until),
	}
	if rep.Wait.Account != "" {
		fields = append(fields, logx.String("longest_wait_account", rep.Wait.Account))
	}
	log.Info("sweep finished", fields...)
	l.bus.Publish(eventbus.Event{Type: eventbus.SweepFinished, Data: rep})
	return rep
}

func (l *Loop) nextWait(outcomes []Outcome, now time.Time) Wait {
	if !l.cfg.Schedule.IsZero() {
		until := l.cfg.Schedule.Next(now)
		return Wait{Duration: until.Sub(now), Until: until, Scheduled: true}
	}
	return ComputeWait(outcomes, now)
}

// recordOutcome logs an account result, publishes it and appends it to the
// journal. Journal failures are logged only.
func (l *Loop) recordOutcome(ctx context.Context, log logx.Logger, sweepID string, r Result) {
	o := r.Outcome
	alog := log.With(logx.String("account", o.Label), logx.String("egress", egressOf(o)))
	if r.Err != nil {
		alog.Error("account failed", logx.Err(r.Err), logx.Duration("took", r.Took.Round(time.Millisecond)))
	} else {
		fields := []logx.Field{logx.Bool("rolled", o.Rolled), logx.Duration("took", r.Took.Round(time.Millisecond))}
		if !o.NextEligible.IsZero() {
			fields = append(fields, logx.Time("next_roll", o.NextEligible))
		}
		alog.Info("account finished", fields...)
	}
	l.bus.Publish(eventbus.Event{Type: eventbus.AccountFinished, Data: o})

	entry := storage.OutcomeEntry{
		SweepID:      sweepID,
		At:           l.now(),
		Account:      o.Index,
		Label:        o.Label,
		Success:      o.Success,
		Rolled:       o.Rolled,
		NextEligible: o.NextEligible,
		Credits:      o.Credits,
		TookMS:       r.Took.Milliseconds(),
	}
	if r.Err != nil {
		entry.Error = r.Err.Error()
	}
	if err := l.store.AppendOutcome(context.WithoutCancel(ctx), entry); err != nil && !errors.Is(err, storage.ErrDisabled) {
		alog.Warn("journal append failed", logx.Err(err))
	}
}

func egressOf(o Outcome) string {
	if o.Egress == "" {
		return "unknown"
	}
	return o.Egress
}

// Run sweeps until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	if l.agents == nil {
		if err := l.Prepare(ctx); err != nil {
			l.log.Warn("user agent store unavailable, using ephemeral agents", logx.Err(err))
		}
	}
	for {
		rep := l.Sweep(ctx)
		if ctx.Err() != nil {
			return nil
		}
		l.log.Info("waiting for next sweep",
			logx.Duration("wait", rep.Wait.Duration.Round(time.Second)),
			logx.Time("until", rep.Wait.Until),
		)
		if !sleep(ctx, rep.Wait.Duration) {
			return nil
		}
	}
}
