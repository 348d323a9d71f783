// Package quest decides which quests an account still has to do and drives
// them through the service's submit/poll lifecycle.
package quest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"questsweep/internal/client"
	"questsweep/internal/model"
	logx "questsweep/pkg/logx"
)

var (
	ErrPollLimit   = errors.New("dice roll still pending after max polls")
	ErrRerollLimit = errors.New("dice roll kept racing with completed state")
)

// API is the slice of the account client the state machine needs.
type API interface {
	QuestStatuses(ctx context.Context) ([]model.QuestStatus, error)
	SubmitAction(ctx context.Context, questID string, metadata map[string]any) (model.QuestStatus, error)
}

type Options struct {
	// PollInterval is the wait between re-submissions of a PENDING roll.
	PollInterval time.Duration
	// MaxPolls bounds re-submissions of a single roll.
	MaxPolls int
	// MaxRerolls bounds fresh roll attempts after an "already completed" race.
	MaxRerolls int
	// SocialDelay paces social quest submissions.
	SocialDelay time.Duration

	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second
	}
	if o.MaxPolls <= 0 {
		o.MaxPolls = 60
	}
	if o.MaxRerolls < 0 {
		o.MaxRerolls = 0
	}
	if o.SocialDelay < 0 {
		o.SocialDelay = 0
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

type Machine struct {
	api API
	opt Options
	log logx.Logger
}

func NewMachine(api API, opt Options, log logx.Logger) *Machine {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Machine{api: api, opt: opt.withDefaults(), log: log}
}

type SocialReport struct {
	Pending     int
	Completed   int
	AlreadyDone int
	Failed      int
	Credits     float64
}

// CompleteSocial submits every social quest missing from statuses once.
// A 400 rejection means the server already has it, which counts as done.
func (m *Machine) CompleteSocial(ctx context.Context, social []model.Quest, statuses []model.QuestStatus) SocialReport {
	seen := make(map[string]struct{}, len(statuses))
	for _, st := range statuses {
		seen[st.QuestID] = struct{}{}
	}

	var rep SocialReport
	first := true
	for _, q := range social {
		if _, ok := seen[q.ID]; ok {
			continue
		}
		rep.Pending++
		if !first && !sleep(ctx, m.opt.SocialDelay) {
			return rep
		}
		first = false

		st, err := m.api.SubmitAction(ctx, q.ID, map[string]any{})
		switch {
		case err == nil:
			rep.Completed++
			rep.Credits += st.Credits
			m.log.Info("social quest completed", logx.String("quest", q.Title), logx.Float64("credits", st.Credits))
		case alreadyDone(err):
			rep.AlreadyDone++
			m.log.Warn("social quest previously completed", logx.String("quest", q.Title))
		default:
			rep.Failed++
			m.log.Warn("social quest failed", logx.String("quest", q.Title), logx.Err(err))
		}
	}
	return rep
}

func alreadyDone(err error) bool {
	if client.IsAlreadyCompleted(err) {
		return true
	}
	ae, ok := client.IsRejected(err)
	return ok && ae.Status == http.StatusBadRequest
}

// DiceResult is what one sweep learned about an account's dice roll.
type DiceResult struct {
	// Rolled is true when a roll completed during this call.
	Rolled       bool
	NextEligible time.Time
	Credits      float64
	Rolls        []int
}

// RollDice rolls if the cooldown has passed. A cooldown that has not passed is
// not an error: the result carries the known next eligible time.
func (m *Machine) RollDice(ctx context.Context, questID string) (DiceResult, error) {
	rolls := 0
	for {
		statuses, err := m.api.QuestStatuses(ctx)
		if err != nil {
			return DiceResult{}, fmt.Errorf("load quest statuses: %w", err)
		}
		now := m.opt.Now()
		next := NextEligible(statuses, questID, now)
		if !Eligible(next, now) {
			fields := []logx.Field{
				logx.Time("next_roll", next),
				logx.Duration("remaining", next.Sub(now).Round(time.Minute)),
			}
			if last, ok := LastCompleted(statuses, questID); ok {
				fields = append(fields, logx.Float64("credits", last.Credits), logx.Ints("rolls", last.DiceRolls))
			}
			m.log.Info("dice roll on cooldown", fields...)
			return DiceResult{NextEligible: next}, nil
		}

		if rolls > m.opt.MaxRerolls {
			return DiceResult{}, ErrRerollLimit
		}
		if rolls > 0 {
			m.log.Info("cooldown passed after race, rolling again", logx.Int("attempt", rolls+1))
		}
		rolls++

		res, err := m.roll(ctx, questID)
		if err == nil {
			return res, nil
		}
		if !client.IsAlreadyCompleted(err) {
			return DiceResult{}, err
		}
		m.log.Warn("dice roll already completed; re-checking cooldown")
	}
}

// roll submits the roll action and keeps re-submitting while the server
// reports PENDING. Each re-submission continues the same in-flight roll.
func (m *Machine) roll(ctx context.Context, questID string) (DiceResult, error) {
	meta := map[string]any{"action": "ROLL"}
	var res DiceResult
	for poll := 1; poll <= m.opt.MaxPolls; poll++ {
		st, err := m.api.SubmitAction(ctx, questID, meta)
		if err != nil {
			return DiceResult{}, err
		}
		if len(st.DiceRolls) > 0 {
			res.Rolls = append(res.Rolls, st.DiceRolls...)
			m.log.Debug("dice rolls", logx.Ints("rolls", st.DiceRolls), logx.Int("poll", poll))
		}
		if st.Credits > 0 {
			res.Credits += st.Credits
		}
		if st.Completed() {
			done := st.UpdatedAt
			if done.IsZero() {
				done = m.opt.Now()
			}
			res.Rolled = true
			res.NextEligible = done.Add(Cooldown)
			m.log.Info("dice roll completed",
				logx.Float64("credits", res.Credits),
				logx.Ints("rolls", res.Rolls),
				logx.Time("next_roll", res.NextEligible),
			)
			return res, nil
		}
		if !sleep(ctx, m.opt.PollInterval) {
			return DiceResult{}, ctx.Err()
		}
	}
	return DiceResult{}, ErrPollLimit
}

// NextEligible re-derives the cooldown from fresh server state.
func (m *Machine) NextEligible(ctx context.Context, questID string) (time.Time, error) {
	statuses, err := m.api.QuestStatuses(ctx)
	if err != nil {
		return time.Time{}, fmt.Errorf("load quest statuses: %w", err)
	}
	return NextEligible(statuses, questID, m.opt.Now()), nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
