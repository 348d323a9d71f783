package sweep

import (
	"context"
	"errors"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "questsweep/pkg/logx"
)

func okUnit(i int, fn func(ctx context.Context)) Unit {
	return Unit{
		Index: i,
		Label: "u" + string(rune('a'+i)),
		Run: func(ctx context.Context) (Outcome, error) {
			if fn != nil {
				fn(ctx)
			}
			return Outcome{Success: true}, nil
		},
	}
}

func TestRunBatchesBoundedConcurrency(t *testing.T) {
	var active, peak atomic.Int32
	track := func(context.Context) {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		active.Add(-1)
	}

	units := make([]Unit, 7)
	for i := range units {
		units[i] = okUnit(i, track)
	}

	var starts []int
	cfg := BatchConfig{
		Size:         3,
		OnBatchStart: func(batch, batches, size int) { starts = append(starts, size) },
	}
	results := RunBatches(context.Background(), cfg, units, logx.Nop())

	require.Len(t, results, 7)
	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.Equal(t, []int{3, 3, 1}, starts)
	for i, r := range results {
		assert.NoError(t, r.Err)
		assert.True(t, r.Outcome.Success)
		assert.Equal(t, i, r.Outcome.Index)
	}
}

func TestRunBatchesIsolation(t *testing.T) {
	boom := errors.New("boom")
	units := []Unit{
		okUnit(0, nil),
		{Index: 1, Label: "panics", Run: func(context.Context) (Outcome, error) { panic("kaboom") }},
		{Index: 2, Label: "fails", Run: func(context.Context) (Outcome, error) { return Outcome{Success: true}, boom }},
		{Index: 3, Label: "hangs", Run: func(context.Context) (Outcome, error) {
			select {}
		}},
		okUnit(4, nil),
	}
	cfg := BatchConfig{Size: 5, UnitTimeout: 50 * time.Millisecond}
	results := RunBatches(context.Background(), cfg, units, logx.Nop())

	require.Len(t, results, 5)
	assert.True(t, results[0].Outcome.Success)
	assert.True(t, results[4].Outcome.Success)

	assert.Error(t, results[1].Err)
	assert.False(t, results[1].Outcome.Success)

	assert.ErrorIs(t, results[2].Err, boom)
	assert.False(t, results[2].Outcome.Success)

	assert.ErrorIs(t, results[3].Err, ErrUnitTimeout)
	assert.Equal(t, "hangs", results[3].Outcome.Label)
}

func TestRunBatchesPauseAndBarrier(t *testing.T) {
	var order []int
	done := make(chan int, 4)
	units := make([]Unit, 4)
	for i := range units {
		units[i] = okUnit(i, func(context.Context) { done <- i })
	}
	cfg := BatchConfig{
		Size:  2,
		Pause: 30 * time.Millisecond,
		OnBatchDone: func(batch, batches int, results []Result) {
			assert.Len(t, results, 2)
			for range results {
				order = append(order, <-done)
			}
		},
	}
	start := time.Now()
	RunBatches(context.Background(), cfg, units, logx.Nop())

	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	require.Len(t, order, 4)
	assert.ElementsMatch(t, []int{0, 1}, order[:2])
	assert.ElementsMatch(t, []int{2, 3}, order[2:])
}

func TestRunBatchesCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var ran atomic.Int32
	units := []Unit{okUnit(0, func(context.Context) { ran.Add(1) }), okUnit(1, nil)}

	results := RunBatches(ctx, BatchConfig{Size: 1}, units, logx.Nop())
	require.Len(t, results, 2)
	assert.Equal(t, int32(0), ran.Load())
	for _, r := range results {
		assert.ErrorIs(t, r.Err, context.Canceled)
	}
}

// foreignCtx hides its cancelCtx from the context package, which then has to
// watch Done with a goroutine for every child derived from it.
type foreignCtx struct {
	context.Context
	done chan struct{}
}

func (c foreignCtx) Done() <-chan struct{} { return c.done }

func TestRunBatchesReleasesContextsAcrossSweeps(t *testing.T) {
	root := foreignCtx{Context: context.Background(), done: make(chan struct{})}
	defer close(root.done)

	units := make([]Unit, 20)
	for i := range units {
		units[i] = okUnit(i, nil)
	}
	cfg := BatchConfig{Size: 2, UnitTimeout: time.Second}

	RunBatches(root, cfg, units, logx.Nop())
	before := runtime.NumGoroutine()
	for range 10 {
		results := RunBatches(root, cfg, units, logx.Nop())
		require.Len(t, results, 20)
	}
	assert.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= before+2
	}, 2*time.Second, 10*time.Millisecond)
}
