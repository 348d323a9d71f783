package quest

import (
	"time"

	"questsweep/internal/model"
)

// Cooldown is the grace period after a completed dice roll.
const Cooldown = 24 * time.Hour

// LastCompleted returns the COMPLETED record for questID with the latest
// update time. Records without a usable timestamp are skipped.
func LastCompleted(history []model.QuestStatus, questID string) (model.QuestStatus, bool) {
	var (
		last  model.QuestStatus
		found bool
	)
	for _, st := range history {
		if st.QuestID != questID || !st.Completed() || st.UpdatedAt.IsZero() {
			continue
		}
		if !found || st.UpdatedAt.After(last.UpdatedAt) {
			last = st
			found = true
		}
	}
	return last, found
}

// NextEligible is the earliest time questID may be submitted again:
// the latest completion plus Cooldown, or now when it was never completed.
func NextEligible(history []model.QuestStatus, questID string, now time.Time) time.Time {
	last, ok := LastCompleted(history, questID)
	if !ok {
		return now
	}
	return last.UpdatedAt.Add(Cooldown)
}

// Eligible reports whether now has reached next.
func Eligible(next, now time.Time) bool { return !now.Before(next) }
