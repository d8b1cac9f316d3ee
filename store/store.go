// Package store defines the durable storage interface for account rows.
//
// Implementations translate Account records to and from persisted rows;
// they carry no business logic. The in-memory ledger is authoritative
// while the process runs, so every write here is a checkpoint of ledger
// state, idempotent and keyed by token.
package store

import (
	"context"

	"github.com/xraph/turnstile/account"
)

// Store is the storage interface implemented by every backend.
type Store interface {
	// LoadAll reads every persisted account row. Called once at startup
	// to reconcile the ledger from durable storage.
	LoadAll(ctx context.Context) ([]*account.Account, error)

	// Upsert writes or updates one row keyed by token. Idempotent:
	// applying the same account state twice leaves the row unchanged.
	Upsert(ctx context.Context, a *account.Account) error

	// Insert writes a fresh row for a newly provisioned token. Fails if
	// the row already exists; callers check the ledger first, this is the
	// durable backstop.
	Insert(ctx context.Context, a *account.Account) error

	// Delete removes one row. No-op if the row is absent.
	Delete(ctx context.Context, token string) error

	// Migrate creates the required tables and indexes.
	Migrate(ctx context.Context) error

	// Ping checks connectivity to the backend.
	Ping(ctx context.Context) error

	// Close releases the underlying connection. Called exactly once at
	// shutdown, after the final checkpoint flush.
	Close() error
}
