package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "memory": process-local maps (default for tests)
//   - "file": JSON session snapshot + JSON Lines outcome journal
//   - "sqlite": SQLite database file
//
// If Driver is empty, "memory" is used.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// OutcomeEntry records one account's result in one sweep.
type OutcomeEntry struct {
	SweepID      string    `json:"sweep_id"`
	At           time.Time `json:"at"`
	Account      int       `json:"account"`
	Label        string    `json:"label"`
	Success      bool      `json:"success"`
	Rolled       bool      `json:"rolled,omitempty"`
	NextEligible time.Time `json:"next_eligible,omitempty"`
	Credits      float64   `json:"credits,omitempty"`
	Error        string    `json:"error,omitempty"`
	TookMS       int64     `json:"took_ms"`
}
