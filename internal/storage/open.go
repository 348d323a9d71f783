package storage

import (
	"context"
	"errors"
	"strings"

	logx "questsweep/pkg/logx"
)

// Store is the persistence API used by the sweeper.
type Store interface {
	GetSession(ctx context.Context, key string) (value string, ok bool, err error)
	PutSession(ctx context.Context, key, value string) error
	AppendOutcome(ctx context.Context, e OutcomeEntry) error
	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "", "memory", "none":
		return NewMemory(), nil
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
