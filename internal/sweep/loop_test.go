package sweep

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"questsweep/internal/accounts"
	"questsweep/internal/eventbus"
	"questsweep/internal/storage"
	"questsweep/internal/useragent"
	logx "questsweep/pkg/logx"
)

type fakeRunner struct {
	mu     sync.Mutex
	agents map[int]string
	run    func(acc accounts.Account) (Outcome, error)
}

func (f *fakeRunner) Run(_ context.Context, acc accounts.Account, ua string) (Outcome, error) {
	f.mu.Lock()
	if f.agents == nil {
		f.agents = map[int]string{}
	}
	f.agents[acc.Index] = ua
	f.mu.Unlock()
	return f.run(acc)
}

func TestLoopSweep(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	accs := []accounts.Account{{Index: 0}, {Index: 1}, {Index: 2}}
	runner := &fakeRunner{run: func(acc accounts.Account) (Outcome, error) {
		switch acc.Index {
		case 0:
			return Outcome{Label: "a@x", Success: true, NextEligible: now.Add(time.Hour)}, nil
		case 1:
			return Outcome{Label: "b@x", Success: true, Rolled: true, Credits: 10, NextEligible: now.Add(24 * time.Hour)}, nil
		default:
			return Outcome{}, errors.New("can't get user info")
		}
	}}
	store := storage.NewMemory()
	bus := eventbus.New()
	events, unsub := bus.Subscribe(32)
	defer unsub()

	l := NewLoop(LoopConfig{Batch: BatchConfig{Size: 2}}, accs, runner, store, bus, logx.Nop())
	l.now = func() time.Time { return now }

	rep := l.Sweep(context.Background())

	assert.NotEmpty(t, rep.ID)
	assert.Equal(t, 2, rep.Succeeded)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, 24*time.Hour+WaitBuffer, rep.Wait.Duration)
	assert.Equal(t, "b@x", rep.Wait.Account)

	journal := store.Outcomes()
	require.Len(t, journal, 3)
	for _, e := range journal {
		assert.Equal(t, rep.ID, e.SweepID)
	}
	assert.Equal(t, "can't get user info", journal[2].Error)
	assert.False(t, journal[2].Success)

	for _, acc := range accs {
		ua, ok, err := store.GetSession(context.Background(), useragent.Key(acc.Index))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, ua, runner.agents[acc.Index])
	}

	var types []string
	for len(events) > 0 {
		types = append(types, (<-events).Type)
	}
	assert.Equal(t, []string{
		eventbus.SweepStarted,
		eventbus.BatchStarted,
		eventbus.AccountFinished, eventbus.AccountFinished,
		eventbus.BatchFinished,
		eventbus.BatchStarted,
		eventbus.AccountFinished,
		eventbus.BatchFinished,
		eventbus.SweepFinished,
	}, types)
}

func TestLoopFixedSchedule(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	runner := &fakeRunner{run: func(accounts.Account) (Outcome, error) {
		return Outcome{Success: true, NextEligible: now.Add(20 * time.Hour)}, nil
	}}
	sched, err := ParseSchedule("30m")
	require.NoError(t, err)

	l := NewLoop(LoopConfig{Batch: BatchConfig{Size: 1}, Schedule: sched}, []accounts.Account{{}}, runner, nil, nil, logx.Nop())
	l.now = func() time.Time { return now }

	rep := l.Sweep(context.Background())
	assert.True(t, rep.Wait.Scheduled)
	assert.Equal(t, 30*time.Minute, rep.Wait.Duration)
}

func TestLoopRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var sweeps int
	runner := &fakeRunner{run: func(accounts.Account) (Outcome, error) {
		sweeps++
		cancel()
		return Outcome{Success: true}, nil
	}}
	l := NewLoop(LoopConfig{Batch: BatchConfig{Size: 1}}, []accounts.Account{{}}, runner, nil, nil, logx.Nop())

	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop")
	}
	assert.Equal(t, 1, sweeps)
}

type countingStore struct {
	*storage.Memory
	gets atomic.Int32
}

func (s *countingStore) GetSession(ctx context.Context, key string) (string, bool, error) {
	s.gets.Add(1)
	return s.Memory.GetSession(ctx, key)
}

func TestLoopRunKeepsPreparedAgents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	runner := &fakeRunner{run: func(accounts.Account) (Outcome, error) {
		cancel()
		return Outcome{Success: true}, nil
	}}
	store := &countingStore{Memory: storage.NewMemory()}
	accs := []accounts.Account{{Index: 0}, {Index: 1}}
	l := NewLoop(LoopConfig{Batch: BatchConfig{Size: 2}}, accs, runner, store, nil, logx.Nop())

	require.NoError(t, l.Prepare(context.Background()))
	require.Equal(t, int32(2), store.gets.Load())

	require.NoError(t, l.Run(ctx))
	assert.Equal(t, int32(2), store.gets.Load())
}
