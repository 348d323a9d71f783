package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "questsweep/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.sessions.json   (snapshot, rewritten atomically on change)
//   - <prefix>.outcomes.jsonl  (append-only JSON Lines)
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	sessionsPath string
	sessions     map[string]string
	outcomeFile  *os.File
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	sessionsPath := prefix + ".sessions.json"
	sessions := map[string]string{}
	if err := loadSessions(sessionsPath, sessions); err != nil && !errors.Is(err, os.ErrNotExist) {
		// A corrupt snapshot only costs us fresh user agents.
		log.Warn("session snapshot unreadable; starting empty", logx.String("path", sessionsPath), logx.Err(err))
	}

	of, err := os.OpenFile(prefix+".outcomes.jsonl", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	return &fileStore{
		log:          log,
		sessionsPath: sessionsPath,
		sessions:     sessions,
		outcomeFile:  of,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outcomeFile == nil {
		return nil
	}
	err := s.outcomeFile.Close()
	s.outcomeFile = nil
	return err
}

func (s *fileStore) GetSession(ctx context.Context, key string) (string, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.sessions[strings.TrimSpace(key)]
	return v, ok, nil
}

func (s *fileStore) PutSession(ctx context.Context, key, value string) error {
	_ = ctx
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.sessions[key]; ok && prev == value {
		return nil
	}
	s.sessions[key] = value
	return s.writeSessionsLocked()
}

func (s *fileStore) AppendOutcome(ctx context.Context, e OutcomeEntry) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outcomeFile == nil {
		return errors.New("outcome journal closed")
	}
	return json.NewEncoder(s.outcomeFile).Encode(e)
}

func (s *fileStore) writeSessionsLocked() error {
	tmp := s.sessionsPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s.sessions); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, s.sessionsPath)
}

func loadSessions(path string, out map[string]string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var m map[string]string
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return err
	}
	for k, v := range m {
		out[k] = v
	}
	return nil
}
