package storage

import (
	"context"
	"strings"
	"sync"
)

// Memory is a process-local Store.
type Memory struct {
	mu       sync.Mutex
	sessions map[string]string
	outcomes []OutcomeEntry
}

func NewMemory() *Memory {
	return &Memory{sessions: map[string]string{}}
}

func (m *Memory) GetSession(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.sessions[strings.TrimSpace(key)]
	return v, ok, nil
}

func (m *Memory) PutSession(_ context.Context, key, value string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	m.mu.Lock()
	m.sessions[key] = value
	m.mu.Unlock()
	return nil
}

func (m *Memory) AppendOutcome(_ context.Context, e OutcomeEntry) error {
	m.mu.Lock()
	m.outcomes = append(m.outcomes, e)
	m.mu.Unlock()
	return nil
}

// Outcomes returns a copy of the journal.
func (m *Memory) Outcomes() []OutcomeEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]OutcomeEntry(nil), m.outcomes...)
}

func (m *Memory) Close() error { return nil }
