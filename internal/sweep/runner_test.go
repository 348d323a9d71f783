package sweep

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"questsweep/internal/accounts"
	"questsweep/internal/client"
	"questsweep/internal/model"
	"questsweep/internal/quest"
	logx "questsweep/pkg/logx"
)

type fakeAccountAPI struct {
	mu sync.Mutex

	egress     string
	egressErr  error
	profileErr []error
	quests     []model.Quest
	statuses   []model.QuestStatus
	submit     func(questID string, meta map[string]any) (model.QuestStatus, error)

	profileCalls int
	submitted    []string
}

func (f *fakeAccountAPI) EgressIP(context.Context) (string, error) { return f.egress, f.egressErr }

func (f *fakeAccountAPI) Profile(context.Context) (model.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.profileCalls
	f.profileCalls++
	if i < len(f.profileErr) && f.profileErr[i] != nil {
		return model.Profile{}, f.profileErr[i]
	}
	return model.Profile{Email: "a@example.com", RefCode: "REF"}, nil
}

func (f *fakeAccountAPI) Quests(context.Context) ([]model.Quest, error) { return f.quests, nil }

func (f *fakeAccountAPI) QuestStatuses(context.Context) ([]model.QuestStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.QuestStatus(nil), f.statuses...), nil
}

func (f *fakeAccountAPI) SubmitAction(_ context.Context, questID string, meta map[string]any) (model.QuestStatus, error) {
	f.mu.Lock()
	f.submitted = append(f.submitted, questID)
	f.mu.Unlock()
	if f.submit != nil {
		return f.submit(questID, meta)
	}
	return model.QuestStatus{QuestID: questID, Status: model.StatusCompleted}, nil
}

var catalog = []model.Quest{
	{ID: "dice", Title: "Daily Dice Roll"},
	{ID: "x", Title: "Follow X"},
	{ID: "discord", Title: "Follow Discord Server"},
}

func newTestRunner(api *fakeAccountAPI, useProxy bool) *Runner {
	return NewRunner(RunnerConfig{
		UseProxy: useProxy,
		Rules:    quest.DefaultRules(),
		Quest:    quest.Options{PollInterval: time.Millisecond, MaxPolls: 3},
	}, func(accounts.Account, string) (AccountAPI, error) { return api, nil }, logx.Nop())
}

func TestRunnerRollsAndCompletesSocial(t *testing.T) {
	done := time.Now().UTC().Truncate(time.Second)
	api := &fakeAccountAPI{
		quests: catalog,
		submit: func(questID string, _ map[string]any) (model.QuestStatus, error) {
			if questID == "dice" {
				return model.QuestStatus{QuestID: questID, Status: model.StatusCompleted, Credits: 10, UpdatedAt: done}, nil
			}
			return model.QuestStatus{QuestID: questID, Status: model.StatusCompleted, Credits: 2}, nil
		},
	}
	out, err := newTestRunner(api, false).Run(context.Background(), accounts.Account{Index: 0, Token: "t"}, "ua")
	require.NoError(t, err)

	assert.True(t, out.Success)
	assert.True(t, out.Rolled)
	assert.Equal(t, "a@example.com", out.Label)
	assert.Equal(t, "local", out.Egress)
	assert.Equal(t, 12.0, out.Credits)
	assert.Equal(t, 1, out.Social)
	assert.Equal(t, done.Add(quest.Cooldown), out.NextEligible)
	assert.Equal(t, []string{"x", "dice"}, api.submitted)
}

func TestRunnerCooldownReportsNextTime(t *testing.T) {
	last := time.Now().Add(-23 * time.Hour)
	api := &fakeAccountAPI{
		quests: catalog,
		statuses: []model.QuestStatus{
			{QuestID: "dice", Status: model.StatusCompleted, UpdatedAt: last},
			{QuestID: "x", Status: model.StatusCompleted},
		},
	}
	out, err := newTestRunner(api, false).Run(context.Background(), accounts.Account{Index: 1}, "ua")
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.False(t, out.Rolled)
	assert.Equal(t, last.Add(quest.Cooldown), out.NextEligible)
	assert.Empty(t, api.submitted)
}

func TestRunnerProfileRetriedOnce(t *testing.T) {
	down := errors.New("down")

	api := &fakeAccountAPI{quests: catalog, profileErr: []error{down}}
	_, err := newTestRunner(api, false).Run(context.Background(), accounts.Account{}, "ua")
	require.NoError(t, err)
	assert.Equal(t, 2, api.profileCalls)

	api = &fakeAccountAPI{quests: catalog, profileErr: []error{down, down, nil}}
	out, err := newTestRunner(api, false).Run(context.Background(), accounts.Account{}, "ua")
	assert.ErrorIs(t, err, down)
	assert.False(t, out.Success)
	assert.Equal(t, 2, api.profileCalls)
}

func TestRunnerEgressFailureAborts(t *testing.T) {
	api := &fakeAccountAPI{egressErr: errors.New("proxy refused")}
	out, err := newTestRunner(api, true).Run(context.Background(), accounts.Account{Proxy: "http://p:1"}, "ua")
	assert.Error(t, err)
	assert.Equal(t, "unknown", out.Egress)
	assert.Equal(t, 0, api.profileCalls)
}

func TestRunnerDiceFailureStillSucceeds(t *testing.T) {
	api := &fakeAccountAPI{
		egress: "10.0.0.1",
		quests: catalog,
		statuses: []model.QuestStatus{
			{QuestID: "x", Status: model.StatusCompleted},
		},
		submit: func(string, map[string]any) (model.QuestStatus, error) {
			return model.QuestStatus{}, &client.APIError{Status: 403, Message: "banned"}
		},
	}
	before := time.Now()
	out, err := newTestRunner(api, true).Run(context.Background(), accounts.Account{}, "ua")
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.False(t, out.Rolled)
	assert.Equal(t, "10.0.0.1", out.Egress)
	assert.False(t, out.NextEligible.Before(before))
}

func TestRunnerMissingDiceQuest(t *testing.T) {
	api := &fakeAccountAPI{quests: []model.Quest{{ID: "x", Title: "Follow X"}}}
	out, err := newTestRunner(api, false).Run(context.Background(), accounts.Account{}, "ua")
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.True(t, out.NextEligible.IsZero())
}
