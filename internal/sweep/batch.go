package sweep

import (
	"context"
	"errors"
	"fmt"
	"time"

	"questsweep/internal/runtime/supervisor"
	logx "questsweep/pkg/logx"
)

var ErrUnitTimeout = errors.New("account run timed out")

// Unit is one account's run inside a batch.
type Unit struct {
	Index int
	Label string
	Run   func(ctx context.Context) (Outcome, error)
}

type BatchConfig struct {
	Size        int
	Pause       time.Duration
	UnitTimeout time.Duration

	OnBatchStart func(batch, batches, size int)
	OnBatchDone  func(batch, batches int, results []Result)
}

// Result is the scheduler's record of a unit. Outcome.Success is false
// whenever Err is set.
type Result struct {
	Outcome Outcome
	Err     error
	Took    time.Duration
}

// RunBatches runs units in consecutive groups of at most cfg.Size. Every unit
// of a group finishes (or times out) before the next group starts. The
// returned slice is in unit order and has one entry per unit.
func RunBatches(ctx context.Context, cfg BatchConfig, units []Unit, log logx.Logger) []Result {
	if log.IsZero() {
		log = logx.Nop()
	}
	size := cfg.Size
	if size <= 0 {
		size = 1
	}
	results := make([]Result, len(units))
	batches := (len(units) + size - 1) / size

	for b := 0; b < batches; b++ {
		lo := b * size
		hi := min(lo+size, len(units))

		if ctx.Err() != nil {
			for i := lo; i < len(units); i++ {
				results[i] = failed(units[i], ctx.Err(), 0)
			}
			return results
		}

		if cfg.OnBatchStart != nil {
			cfg.OnBatchStart(b+1, batches, hi-lo)
		}
		log.Info("batch started", logx.Int("batch", b+1), logx.Int("batches", batches), logx.Int("accounts", hi-lo))

		sup := supervisor.NewSupervisor(ctx, supervisor.WithLogger(log))
		for i := lo; i < hi; i++ {
			u := units[i]
			sup.Go0(u.Label, func(ctx context.Context) {
				results[i] = runUnit(ctx, cfg.UnitTimeout, u, log)
			})
		}
		// runUnit always returns once its timeout fires, so this barrier is bounded.
		_ = sup.Wait(context.Background())
		sup.Cancel()

		log.Info("batch finished", logx.Int("batch", b+1), logx.Int("batches", batches))
		if cfg.OnBatchDone != nil {
			cfg.OnBatchDone(b+1, batches, results[lo:hi])
		}

		if hi < len(units) && cfg.Pause > 0 {
			t := time.NewTimer(cfg.Pause)
			select {
			case <-ctx.Done():
			case <-t.C:
			}
			t.Stop()
		}
	}
	return results
}

// runUnit runs u in its own goroutine so a unit that ignores its context is
// abandoned at the timeout instead of stalling the batch.
func runUnit(ctx context.Context, timeout time.Duration, u Unit, log logx.Logger) Result {
	start := time.Now()
	var (
		uctx   context.Context
		cancel context.CancelFunc
	)
	if timeout > 0 {
		uctx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		uctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	type done struct {
		out Outcome
		err error
	}
	ch := make(chan done, 1)
	go func() {
		var out Outcome
		err := supervisor.Protect(u.Label, log, func() error {
			var err error
			out, err = u.Run(uctx)
			return err
		})
		ch <- done{out: out, err: err}
	}()

	var res Result
	select {
	case d := <-ch:
		out := d.out
		out.Index = u.Index
		if out.Label == "" {
			out.Label = u.Label
		}
		out.Took = time.Since(start)
		if d.err != nil {
			out.Success = false
			out.Err = d.err
		}
		res = Result{Outcome: out, Err: d.err, Took: out.Took}
	case <-uctx.Done():
		err := uctx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w after %s", ErrUnitTimeout, timeout)
		}
		res = failed(u, err, time.Since(start))
	}

	log.Debug("account unit finished",
		logx.String("account", u.Label),
		logx.Bool("success", res.Outcome.Success),
		logx.Duration("took", res.Took),
		logx.Err(res.Err),
	)
	return res
}

func failed(u Unit, err error, took time.Duration) Result {
	return Result{
		Outcome: Outcome{Index: u.Index, Label: u.Label, Err: err, Took: took},
		Err:     err,
		Took:    took,
	}
}
