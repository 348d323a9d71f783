// Package storage provides the small persistence layer used by the sweeper.
//
// It currently supports:
//   - Per-account session values (user agents), keyed by account
//   - An append-only journal of account outcomes per sweep
//
// Neither is scheduling truth: cooldowns are always re-derived from the
// remote service.
package storage
