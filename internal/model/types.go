// Package model holds the records exchanged with the quest service.
package model

import (
	"encoding/json"
	"strings"
	"time"
)

// Lifecycle states of a QuestStatus record.
const (
	StatusPending   = "PENDING"
	StatusCompleted = "COMPLETED"
)

// Profile is the account's remote user record.
type Profile struct {
	ID      string `json:"id,omitempty"`
	Email   string `json:"email"`
	RefCode string `json:"refCode"`
}

// Quest is a remote-defined unit of work. Read-only to this system.
type Quest struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// QuestStatus is one (account, quest) interaction record. Server-owned.
type QuestStatus struct {
	ID        string    `json:"id,omitempty"`
	QuestID   string    `json:"questId"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updatedAt"`
	Credits   float64   `json:"credits,omitempty"`
	DiceRolls []int     `json:"_diceRolls,omitempty"`

	// BadUpdatedAt holds the raw updatedAt value when it could not be parsed.
	// UpdatedAt is zero in that case.
	BadUpdatedAt string `json:"-"`
}

// UnmarshalJSON tolerates a malformed updatedAt so one bad record does not
// reject the whole status list.
func (s *QuestStatus) UnmarshalJSON(b []byte) error {
	type plain QuestStatus
	var w struct {
		plain
		UpdatedAt json.RawMessage `json:"updatedAt"`
	}
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*s = QuestStatus(w.plain)
	s.UpdatedAt, s.BadUpdatedAt = parseTimestamp(w.UpdatedAt)
	return nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func parseTimestamp(raw json.RawMessage) (time.Time, string) {
	v := strings.TrimSpace(string(raw))
	if v == "" || v == "null" {
		return time.Time{}, ""
	}
	var str string
	if err := json.Unmarshal(raw, &str); err != nil {
		return time.Time{}, v
	}
	str = strings.TrimSpace(str)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, str); err == nil {
			return t, ""
		}
	}
	return time.Time{}, v
}

func (s QuestStatus) Completed() bool { return s.Status == StatusCompleted }
func (s QuestStatus) Pending() bool   { return s.Status == StatusPending }

// Action is the body of a quest submission.
type Action struct {
	QuestID  string         `json:"questId"`
	Metadata map[string]any `json:"metadata"`
}
