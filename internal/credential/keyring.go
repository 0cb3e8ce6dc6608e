// Package credential persists the client session in the operating system
// keyring.
package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/99designs/keyring"

	"github.com/nhle/taskflow/internal/model"
)

const (
	serviceName = "taskflow"

	// sessionKey is the single keyring item holding every persisted
	// session key, so a clear removes them together.
	sessionKey = "session"
)

// Opener opens a keyring. Tests substitute keyring.NewArrayKeyring.
type Opener func() (keyring.Keyring, error)

// SystemKeyring opens the platform keyring, falling back to an encrypted
// file under dir when no native backend is available.
func SystemKeyring(dir string) Opener {
	return func() (keyring.Keyring, error) {
		ring, err := keyring.Open(keyring.Config{
			ServiceName: serviceName,
			AllowedBackends: []keyring.BackendType{
				keyring.KeychainBackend,
				keyring.SecretServiceBackend,
				keyring.WinCredBackend,
				keyring.PassBackend,
				keyring.FileBackend,
			},
			FileDir:                  filepath.Join(dir, "credentials"),
			FilePasswordFunc:         keyring.FixedStringPrompt("taskflow-file-key"),
			KeychainTrustApplication: true,
		})
		if err != nil {
			return nil, fmt.Errorf("opening keyring: %w", err)
		}
		return ring, nil
	}
}

// Vault stores the session as one JSON keyring item.
type Vault struct {
	open Opener
}

// NewVault creates a vault backed by the keyring returned by open.
func NewVault(open Opener) *Vault {
	return &Vault{open: open}
}

// item is the keyring payload, keyed by the well-known session keys.
type item map[string]json.RawMessage

// Load returns the persisted session, or nil when none is stored.
func (v *Vault) Load(ctx context.Context) (*model.PersistedSession, error) {
	ring, err := v.open()
	if err != nil {
		return nil, err
	}

	it, err := ring.Get(sessionKey)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting credential %q: %w", sessionKey, err)
	}

	var fields item
	if err := json.Unmarshal(it.Data, &fields); err != nil {
		return nil, fmt.Errorf("decoding credential %q: %w", sessionKey, err)
	}

	var s model.PersistedSession
	decode := []struct {
		key string
		dst any
	}{
		{model.KeyAuthToken, &s.Token},
		{model.KeyUser, &s.User},
		{model.KeyLoginTime, &s.LoginTime},
		{model.KeyLastActivity, &s.LastActivity},
	}
	for _, d := range decode {
		raw, ok := fields[d.key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, d.dst); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", d.key, err)
		}
	}
	return &s, nil
}

// Save replaces the stored session.
func (v *Vault) Save(ctx context.Context, s model.PersistedSession) error {
	ring, err := v.open()
	if err != nil {
		return err
	}

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}

	err = ring.Set(keyring.Item{
		Key:         sessionKey,
		Data:        data,
		Label:       "taskflow session",
		Description: "taskflow board client session",
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", sessionKey, err)
	}
	return nil
}

// Clear removes the stored session. Clearing an empty vault succeeds.
func (v *Vault) Clear(ctx context.Context) error {
	ring, err := v.open()
	if err != nil {
		return err
	}

	err = ring.Remove(sessionKey)
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("deleting credential %q: %w", sessionKey, err)
	}
	return nil
}
