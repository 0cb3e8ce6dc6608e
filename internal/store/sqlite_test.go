package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/nhle/taskflow/internal/model"
	"github.com/nhle/taskflow/internal/store"
	"github.com/nhle/taskflow/tests/testutil"
)

func TestEmptyStoreHasNoSession(t *testing.T) {
	s := testutil.NewTestStore(t)
	got, err := s.Load(context.Background())
	if err != nil || got != nil {
		t.Fatalf("expected nil session, got %+v %v", got, err)
	}
}

func TestSessionRoundTrip(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	login := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	want := model.PersistedSession{
		Token:        "tok",
		User:         model.User{ID: "u1", Name: "Ann", Email: "ann@example.com"},
		LoginTime:    login,
		LastActivity: login.Add(90 * time.Minute),
	}
	if err := s.Save(ctx, want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Saving again overwrites rather than duplicating.
	want.LastActivity = login.Add(2 * time.Hour)
	if err := s.Save(ctx, want); err != nil {
		t.Fatalf("second Save: %v", err)
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Token != "tok" || got.User != want.User {
		t.Fatalf("unexpected session %+v", got)
	}
	if !got.LoginTime.Equal(want.LoginTime) || !got.LastActivity.Equal(want.LastActivity) {
		t.Fatalf("timestamps mismatch: %+v", got)
	}

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if got, _ := s.Load(ctx); got != nil {
		t.Fatalf("expected cleared store, got %+v", got)
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "taskflow.db")

	s, err := store.NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Save(context.Background(), model.PersistedSession{Token: "tok", User: model.User{ID: "u1"}}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	s.Close()

	s, err = store.NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	got, err := s.Load(context.Background())
	if err != nil || got == nil || got.Token != "tok" {
		t.Fatalf("expected session to survive reopen, got %+v %v", got, err)
	}
}
