package quest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"questsweep/internal/client"
	"questsweep/internal/model"
	logx "questsweep/pkg/logx"
)

const diceID = "dice"

type fakeAPI struct {
	mu       sync.Mutex
	statuses [][]model.QuestStatus
	submits  []func(questID string) (model.QuestStatus, error)

	fetches   int
	submitted []string
	metadata  []map[string]any
}

func (f *fakeAPI) QuestStatuses(context.Context) ([]model.QuestStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.fetches
	f.fetches++
	if len(f.statuses) == 0 {
		return nil, nil
	}
	if i >= len(f.statuses) {
		i = len(f.statuses) - 1
	}
	return f.statuses[i], nil
}

func (f *fakeAPI) SubmitAction(_ context.Context, questID string, meta map[string]any) (model.QuestStatus, error) {
	f.mu.Lock()
	i := len(f.submitted)
	f.submitted = append(f.submitted, questID)
	f.metadata = append(f.metadata, meta)
	var fn func(string) (model.QuestStatus, error)
	if len(f.submits) > 0 {
		if i >= len(f.submits) {
			i = len(f.submits) - 1
		}
		fn = f.submits[i]
	}
	f.mu.Unlock()
	if fn == nil {
		return model.QuestStatus{QuestID: questID, Status: model.StatusCompleted}, nil
	}
	return fn(questID)
}

func reply(st model.QuestStatus, err error) func(string) (model.QuestStatus, error) {
	return func(string) (model.QuestStatus, error) { return st, err }
}

func newMachine(api API, now time.Time) *Machine {
	return NewMachine(api, Options{
		PollInterval: time.Millisecond,
		MaxPolls:     5,
		MaxRerolls:   2,
		Now:          func() time.Time { return now },
	}, logx.Nop())
}

func TestClassify(t *testing.T) {
	r := DefaultRules()
	tests := []struct {
		title string
		want  Kind
	}{
		{"Daily Dice Roll", KindDiceRoll},
		{"Follow X", KindSocial},
		{"Follow Telegram Channel", KindSocial},
		{"Follow Discord Server", KindOther},
		{"Refer a friend", KindOther},
		{"daily dice roll", KindOther},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Classify(model.Quest{Title: tt.title}))
		})
	}

	quests := []model.Quest{
		{ID: "1", Title: "Follow X"},
		{ID: "2", Title: "Daily Dice Roll"},
		{ID: "3", Title: "Follow Discord Server"},
		{ID: "4", Title: "Follow Medium"},
	}
	dice, ok := r.FindDice(quests)
	require.True(t, ok)
	assert.Equal(t, "2", dice.ID)
	social := r.Social(quests)
	require.Len(t, social, 2)
	assert.Equal(t, "1", social[0].ID)
	assert.Equal(t, "4", social[1].ID)

	_, ok = r.FindDice(quests[:1])
	assert.False(t, ok)
}

func TestNextEligible(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	t.Run("no history is eligible now", func(t *testing.T) {
		next := NextEligible(nil, diceID, now)
		assert.Equal(t, now, next)
		assert.True(t, Eligible(next, now))
	})

	t.Run("latest completion wins", func(t *testing.T) {
		history := []model.QuestStatus{
			{QuestID: diceID, Status: model.StatusCompleted, UpdatedAt: now.Add(-30 * time.Hour)},
			{QuestID: diceID, Status: model.StatusCompleted, UpdatedAt: now.Add(-2 * time.Hour)},
			{QuestID: diceID, Status: model.StatusCompleted, UpdatedAt: now.Add(-10 * time.Hour)},
		}
		next := NextEligible(history, diceID, now)
		assert.Equal(t, now.Add(22*time.Hour), next)
		assert.False(t, Eligible(next, now))
	})

	t.Run("pending and other quests are ignored", func(t *testing.T) {
		history := []model.QuestStatus{
			{QuestID: diceID, Status: model.StatusPending, UpdatedAt: now.Add(-time.Hour)},
			{QuestID: "other", Status: model.StatusCompleted, UpdatedAt: now.Add(-time.Hour)},
		}
		assert.Equal(t, now, NextEligible(history, diceID, now))
	})

	t.Run("boundary is eligible", func(t *testing.T) {
		history := []model.QuestStatus{
			{QuestID: diceID, Status: model.StatusCompleted, UpdatedAt: now.Add(-Cooldown)},
		}
		assert.True(t, Eligible(NextEligible(history, diceID, now), now))
	})

	t.Run("completion without timestamp is skipped", func(t *testing.T) {
		history := []model.QuestStatus{
			{QuestID: diceID, Status: model.StatusCompleted, BadUpdatedAt: `""`},
			{QuestID: diceID, Status: model.StatusCompleted, UpdatedAt: now.Add(-20 * time.Hour)},
		}
		assert.Equal(t, now.Add(4*time.Hour), NextEligible(history, diceID, now))
	})
}

func TestRollDice(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	t.Run("cooldown does not submit", func(t *testing.T) {
		api := &fakeAPI{statuses: [][]model.QuestStatus{{
			{QuestID: diceID, Status: model.StatusCompleted, UpdatedAt: now.Add(-2 * time.Hour)},
		}}}
		res, err := newMachine(api, now).RollDice(context.Background(), diceID)
		require.NoError(t, err)
		assert.False(t, res.Rolled)
		assert.Equal(t, now.Add(22*time.Hour), res.NextEligible)
		assert.Empty(t, api.submitted)
	})

	t.Run("pending then completed", func(t *testing.T) {
		done := now.Add(3 * time.Second)
		api := &fakeAPI{
			statuses: [][]model.QuestStatus{nil},
			submits: []func(string) (model.QuestStatus, error){
				reply(model.QuestStatus{QuestID: diceID, Status: model.StatusPending, DiceRolls: []int{3}}, nil),
				reply(model.QuestStatus{QuestID: diceID, Status: model.StatusCompleted, Credits: 10, DiceRolls: []int{5}, UpdatedAt: done}, nil),
			},
		}
		res, err := newMachine(api, now).RollDice(context.Background(), diceID)
		require.NoError(t, err)
		assert.True(t, res.Rolled)
		assert.Equal(t, 10.0, res.Credits)
		assert.Equal(t, []int{3, 5}, res.Rolls)
		assert.Equal(t, done.Add(Cooldown), res.NextEligible)
		assert.Len(t, api.submitted, 2)
		assert.Equal(t, map[string]any{"action": "ROLL"}, api.metadata[0])
	})

	t.Run("already completed race reports known cooldown", func(t *testing.T) {
		completedAt := now.Add(-time.Minute)
		api := &fakeAPI{
			statuses: [][]model.QuestStatus{
				nil,
				{{QuestID: diceID, Status: model.StatusCompleted, UpdatedAt: completedAt}},
			},
			submits: []func(string) (model.QuestStatus, error){
				reply(model.QuestStatus{}, &client.APIError{Status: 400, Message: "Quest already completed"}),
			},
		}
		res, err := newMachine(api, now).RollDice(context.Background(), diceID)
		require.NoError(t, err)
		assert.False(t, res.Rolled)
		assert.Equal(t, completedAt.Add(Cooldown), res.NextEligible)
		assert.Equal(t, 2, api.fetches)
	})

	t.Run("reroll is bounded", func(t *testing.T) {
		api := &fakeAPI{
			statuses: [][]model.QuestStatus{nil},
			submits: []func(string) (model.QuestStatus, error){
				reply(model.QuestStatus{}, &client.APIError{Status: 400, Message: "already completed"}),
			},
		}
		_, err := newMachine(api, now).RollDice(context.Background(), diceID)
		assert.ErrorIs(t, err, ErrRerollLimit)
		assert.Len(t, api.submitted, 3)
	})

	t.Run("other failure aborts", func(t *testing.T) {
		boom := errors.New("connection reset")
		api := &fakeAPI{
			statuses: [][]model.QuestStatus{nil},
			submits:  []func(string) (model.QuestStatus, error){reply(model.QuestStatus{}, boom)},
		}
		_, err := newMachine(api, now).RollDice(context.Background(), diceID)
		assert.ErrorIs(t, err, boom)
		assert.Len(t, api.submitted, 1)
	})

	t.Run("poll limit", func(t *testing.T) {
		api := &fakeAPI{
			statuses: [][]model.QuestStatus{nil},
			submits: []func(string) (model.QuestStatus, error){
				reply(model.QuestStatus{QuestID: diceID, Status: model.StatusPending}, nil),
			},
		}
		_, err := newMachine(api, now).RollDice(context.Background(), diceID)
		assert.ErrorIs(t, err, ErrPollLimit)
		assert.Len(t, api.submitted, 5)
	})

	t.Run("completion without timestamp uses now", func(t *testing.T) {
		api := &fakeAPI{statuses: [][]model.QuestStatus{nil}}
		res, err := newMachine(api, now).RollDice(context.Background(), diceID)
		require.NoError(t, err)
		assert.Equal(t, now.Add(Cooldown), res.NextEligible)
	})
}

func TestCompleteSocial(t *testing.T) {
	now := time.Now()
	social := []model.Quest{
		{ID: "x", Title: "Follow X"},
		{ID: "tg", Title: "Follow Telegram"},
		{ID: "md", Title: "Follow Medium"},
		{ID: "yt", Title: "Follow YouTube"},
	}

	t.Run("recorded quests are skipped", func(t *testing.T) {
		api := &fakeAPI{}
		statuses := []model.QuestStatus{
			{QuestID: "x", Status: model.StatusCompleted},
			{QuestID: "tg", Status: model.StatusPending},
			{QuestID: "md", Status: model.StatusCompleted},
			{QuestID: "yt", Status: model.StatusCompleted},
		}
		rep := newMachine(api, now).CompleteSocial(context.Background(), social, statuses)
		assert.Empty(t, api.submitted)
		assert.Equal(t, SocialReport{}, rep)
	})

	t.Run("rejections count as done", func(t *testing.T) {
		api := &fakeAPI{submits: []func(string) (model.QuestStatus, error){
			reply(model.QuestStatus{Status: model.StatusCompleted, Credits: 5}, nil),
			reply(model.QuestStatus{}, &client.APIError{Status: 400, Message: "nope"}),
			reply(model.QuestStatus{}, &client.APIError{Status: 403, Message: "forbidden"}),
		}}
		statuses := []model.QuestStatus{{QuestID: "x", Status: model.StatusCompleted}}
		rep := newMachine(api, now).CompleteSocial(context.Background(), social, statuses)
		assert.Equal(t, []string{"tg", "md", "yt"}, api.submitted)
		assert.Equal(t, 3, rep.Pending)
		assert.Equal(t, 1, rep.Completed)
		assert.Equal(t, 1, rep.AlreadyDone)
		assert.Equal(t, 1, rep.Failed)
		assert.Equal(t, 5.0, rep.Credits)
		assert.Equal(t, map[string]any{}, api.metadata[0])
	})

	t.Run("resubmitting a completed quest succeeds both times", func(t *testing.T) {
		api := &fakeAPI{submits: []func(string) (model.QuestStatus, error){
			reply(model.QuestStatus{}, &client.APIError{Status: 400, Message: "Quest already completed"}),
		}}
		m := newMachine(api, now)
		for i := range 2 {
			rep := m.CompleteSocial(context.Background(), social[:1], nil)
			assert.Equal(t, SocialReport{Pending: 1, AlreadyDone: 1}, rep, "call %d", i+1)
		}
		assert.Equal(t, []string{"x", "x"}, api.submitted)
	})

	t.Run("cancelled context stops pacing", func(t *testing.T) {
		api := &fakeAPI{}
		m := NewMachine(api, Options{SocialDelay: time.Hour}, logx.Nop())
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		m.CompleteSocial(ctx, social, nil)
		assert.Len(t, api.submitted, 1)
	})
}
