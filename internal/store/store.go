// Package store keeps local client state in SQLite.
package store

import (
	"context"

	"github.com/nhle/taskflow/internal/model"
)

// Store defines the local persistence interface. It satisfies
// session.Vault.
type Store interface {
	// Load returns the persisted session, or nil when none is stored.
	Load(ctx context.Context) (*model.PersistedSession, error)

	// Save writes every session key in one transaction.
	Save(ctx context.Context, s model.PersistedSession) error

	// Clear removes every session key in one transaction.
	Clear(ctx context.Context) error

	Close() error
}

var _ Store = (*SQLiteStore)(nil)
