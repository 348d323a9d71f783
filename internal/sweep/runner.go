package sweep

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"questsweep/internal/accounts"
	"questsweep/internal/model"
	"questsweep/internal/quest"
	logx "questsweep/pkg/logx"
)

// AccountAPI is what one account's run needs from its client.
type AccountAPI interface {
	quest.API
	Profile(ctx context.Context) (model.Profile, error)
	Quests(ctx context.Context) ([]model.Quest, error)
	EgressIP(ctx context.Context) (string, error)
}

// ClientFactory builds the client for one account run.
type ClientFactory func(acc accounts.Account, userAgent string) (AccountAPI, error)

type RunnerConfig struct {
	UseProxy      bool
	StartDelayMin time.Duration
	StartDelayMax time.Duration
	// ProfileAttempts bounds profile fetches on top of client retries.
	ProfileAttempts int

	Rules quest.Rules
	Quest quest.Options
}

// Runner executes the per-account pipeline: egress check, profile, social
// quests, then the dice roll.
type Runner struct {
	cfg       RunnerConfig
	newClient ClientFactory
	log       logx.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

func NewRunner(cfg RunnerConfig, newClient ClientFactory, log logx.Logger) *Runner {
	if cfg.ProfileAttempts <= 0 {
		cfg.ProfileAttempts = 2
	}
	if cfg.StartDelayMax < cfg.StartDelayMin {
		cfg.StartDelayMax = cfg.StartDelayMin
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Runner{
		cfg:       cfg,
		newClient: newClient,
		log:       log,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *Runner) Run(ctx context.Context, acc accounts.Account, userAgent string) (Outcome, error) {
	out := Outcome{Index: acc.Index, Label: acc.Label(), Egress: "local"}
	log := r.log.With(logx.String("account", acc.Label()))

	api, err := r.newClient(acc, userAgent)
	if err != nil {
		return out, fmt.Errorf("build client: %w", err)
	}

	if r.cfg.UseProxy {
		out.Egress = "unknown"
		ip, err := api.EgressIP(ctx)
		if err != nil {
			log.With(logx.String("egress", out.Egress)).Warn("cannot check proxy IP", logx.Err(err))
			return out, fmt.Errorf("egress check: %w", err)
		}
		out.Egress = ip
		log = log.With(logx.String("egress", ip))

		if d := r.startDelay(); d > 0 {
			log.Info("starting after delay", logx.Duration("delay", d))
			if !sleep(ctx, d) {
				return out, ctx.Err()
			}
		}
	} else {
		log = log.With(logx.String("egress", out.Egress))
	}

	var profile model.Profile
	for attempt := 1; ; attempt++ {
		profile, err = api.Profile(ctx)
		if err == nil {
			break
		}
		if attempt >= r.cfg.ProfileAttempts || ctx.Err() != nil {
			log.Error("can't get user info, skipping", logx.Err(err))
			return out, fmt.Errorf("can't get user info: %w", err)
		}
	}
	if profile.Email != "" {
		out.Label = profile.Email
	}
	log.Info("account loaded", logx.String("email", profile.Email), logx.String("ref_code", profile.RefCode))

	catalog, err := api.Quests(ctx)
	if err != nil {
		return out, fmt.Errorf("list quests: %w", err)
	}
	statuses, err := api.QuestStatuses(ctx)
	if err != nil {
		return out, fmt.Errorf("list quest statuses: %w", err)
	}

	m := quest.NewMachine(api, r.cfg.Quest, log)

	social := m.CompleteSocial(ctx, r.cfg.Rules.Social(catalog), statuses)
	out.Social = social.Completed + social.AlreadyDone
	out.Credits += social.Credits

	out.Success = true
	dice, ok := r.cfg.Rules.FindDice(catalog)
	if !ok {
		log.Warn("dice roll quest not found", logx.String("title", r.cfg.Rules.DiceTitle))
		return out, nil
	}

	res, err := m.RollDice(ctx, dice.ID)
	if err == nil {
		out.Rolled = res.Rolled
		out.Credits += res.Credits
		out.NextEligible = res.NextEligible
		return out, nil
	}

	log.Warn("dice roll failed", logx.Err(err))
	next, lerr := m.NextEligible(ctx, dice.ID)
	if lerr != nil {
		log.Warn("cannot determine next roll time", logx.Err(lerr))
		return out, nil
	}
	out.NextEligible = next
	return out, nil
}

func (r *Runner) startDelay() time.Duration {
	lo, hi := r.cfg.StartDelayMin, r.cfg.StartDelayMax
	if hi <= 0 {
		return 0
	}
	if hi == lo {
		return lo
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return lo + time.Duration(r.rng.Int63n(int64(hi-lo)+1))
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
