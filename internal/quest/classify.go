package quest

import (
	"strings"

	"questsweep/internal/model"
)

type Kind int

const (
	KindOther Kind = iota
	KindSocial
	KindDiceRoll
)

func (k Kind) String() string {
	switch k {
	case KindSocial:
		return "social"
	case KindDiceRoll:
		return "dice_roll"
	default:
		return "other"
	}
}

// Rules classifies quests by their server-provided titles.
type Rules struct {
	DiceTitle     string
	SocialPrefix  string
	SocialExclude []string
}

func DefaultRules() Rules {
	return Rules{
		DiceTitle:     "Daily Dice Roll",
		SocialPrefix:  "Follow ",
		SocialExclude: []string{"Follow Discord Server"},
	}
}

func (r Rules) Classify(q model.Quest) Kind {
	if r.DiceTitle != "" && q.Title == r.DiceTitle {
		return KindDiceRoll
	}
	if r.SocialPrefix != "" && strings.HasPrefix(q.Title, r.SocialPrefix) {
		for _, ex := range r.SocialExclude {
			if q.Title == ex {
				return KindOther
			}
		}
		return KindSocial
	}
	return KindOther
}

// FindDice returns the dice-roll quest, if the catalog still has one.
func (r Rules) FindDice(quests []model.Quest) (model.Quest, bool) {
	for _, q := range quests {
		if r.Classify(q) == KindDiceRoll {
			return q, true
		}
	}
	return model.Quest{}, false
}

// Social returns the social quests in catalog order.
func (r Rules) Social(quests []model.Quest) []model.Quest {
	var out []model.Quest
	for _, q := range quests {
		if r.Classify(q) == KindSocial {
			out = append(out, q)
		}
	}
	return out
}
