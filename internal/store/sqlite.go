package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/taskflow/internal/model"
)

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Each :memory: connection is its own database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	// Check if schema_version table exists.
	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// stateRow is one session_state row.
type stateRow struct {
	Key   string `db:"key"`
	Value string `db:"value"`
}

// Load reads the session keys. A missing token means no session.
func (s *SQLiteStore) Load(ctx context.Context) (*model.PersistedSession, error) {
	var rows []stateRow
	err := s.db.SelectContext(ctx, &rows, "SELECT key, value FROM session_state")
	if err != nil {
		return nil, fmt.Errorf("querying session state: %w", err)
	}

	values := make(map[string]string, len(rows))
	for _, r := range rows {
		values[r.Key] = r.Value
	}
	token, ok := values[model.KeyAuthToken]
	if !ok || token == "" {
		return nil, nil
	}

	sess := &model.PersistedSession{Token: token}
	if raw := values[model.KeyUser]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &sess.User); err != nil {
			return nil, fmt.Errorf("unmarshaling %s: %w", model.KeyUser, err)
		}
	}
	if sess.LoginTime, err = parseTime(values[model.KeyLoginTime]); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", model.KeyLoginTime, err)
	}
	if sess.LastActivity, err = parseTime(values[model.KeyLastActivity]); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", model.KeyLastActivity, err)
	}
	return sess, nil
}

// Save replaces all session keys in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, sess model.PersistedSession) error {
	user, err := json.Marshal(sess.User)
	if err != nil {
		return fmt.Errorf("marshaling user: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx,
		"INSERT OR REPLACE INTO session_state (key, value, updated_at) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("preparing session upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	values := []stateRow{
		{model.KeyAuthToken, sess.Token},
		{model.KeyUser, string(user)},
		{model.KeyLoginTime, formatTime(sess.LoginTime)},
		{model.KeyLastActivity, formatTime(sess.LastActivity)},
	}
	for _, v := range values {
		if _, err := stmt.ExecContext(ctx, v.Key, v.Value, now); err != nil {
			return fmt.Errorf("writing %s: %w", v.Key, err)
		}
	}

	return tx.Commit()
}

// Clear deletes all session keys in one transaction.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	keys := []string{model.KeyAuthToken, model.KeyUser, model.KeyLoginTime, model.KeyLastActivity}
	query, args, err := sqlx.In("DELETE FROM session_state WHERE key IN (?)", keys)
	if err != nil {
		return fmt.Errorf("building clear query: %w", err)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
		return fmt.Errorf("clearing session state: %w", err)
	}

	return tx.Commit()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
