package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nhle/taskflow/internal/model"
	"github.com/nhle/taskflow/internal/session"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	cfg := "" +
		"server:\n" +
		"  api_url: http://127.0.0.1:1\n" +
		"  ws_url: ws://127.0.0.1:1/ws\n" +
		"session:\n" +
		"  vault: sqlite\n" +
		"log:\n" +
		"  file: " + filepath.Join(dir, "taskflow.log") + "\n" +
		"data:\n" +
		"  db_path: " + filepath.Join(dir, "taskflow.db") + "\n"
	if err := os.WriteFile(path, []byte(cfg), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadServicesWithSQLiteVault(t *testing.T) {
	svc, err := loadServices(writeConfig(t), true)
	if err != nil {
		t.Fatalf("loadServices: %v", err)
	}
	defer svc.Close()

	if svc.cfg.Session.Vault != model.VaultSQLite {
		t.Fatalf("expected sqlite vault, got %q", svc.cfg.Session.Vault)
	}
	if err := svc.session.Rehydrate(context.Background()); err != nil {
		t.Fatalf("Rehydrate: %v", err)
	}
	if svc.session.State() != session.Anonymous {
		t.Fatalf("expected anonymous session, got %s", svc.session.State())
	}
}

func TestRestoredSessionSurvivesRestart(t *testing.T) {
	path := writeConfig(t)
	ctx := context.Background()

	svc, err := loadServices(path, true)
	if err != nil {
		t.Fatalf("loadServices: %v", err)
	}
	now := time.Now()
	stored := model.PersistedSession{
		Token:        "opaque-token",
		User:         model.User{ID: "u1", Name: "Ada", Email: "ada@example.com"},
		LoginTime:    now,
		LastActivity: now,
	}
	db, err := svc.openVault()
	if err != nil {
		t.Fatalf("openVault: %v", err)
	}
	if err := db.Save(ctx, stored); err != nil {
		t.Fatalf("Save: %v", err)
	}
	svc.Close()

	svc, err = loadServices(path, true)
	if err != nil {
		t.Fatalf("loadServices: %v", err)
	}
	defer svc.Close()

	user, err := restore(ctx, svc)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if user.ID != "u1" || svc.session.Token() != "opaque-token" {
		t.Fatalf("unexpected session %+v", user)
	}
}

func TestWhoamiWhenSignedOut(t *testing.T) {
	configFlag = writeConfig(t)
	var out bytes.Buffer
	stdout = &out
	defer func() { stdout = os.Stdout }()

	whoamiCmd.SetContext(context.Background())
	err := runWhoami(whoamiCmd, nil)
	if err == nil || !strings.Contains(err.Error(), "not signed in") {
		t.Fatalf("expected not signed in error, got %v", err)
	}
}
