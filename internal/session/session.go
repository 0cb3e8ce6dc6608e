// Package session holds the authenticated identity of the client: the
// bearer credential, the signed-in user, and the timestamps that drive
// session expiry.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/golang-jwt/jwt/v4"

	"github.com/nhle/taskflow/internal/logging"
	"github.com/nhle/taskflow/internal/model"
)

// State is the session lifecycle state.
type State int

const (
	// Unknown is the state before rehydration has completed.
	Unknown State = iota
	Anonymous
	Authenticated
)

func (s State) String() string {
	switch s {
	case Anonymous:
		return "anonymous"
	case Authenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Reason explains a state transition.
type Reason string

const (
	ReasonRehydrated   Reason = "rehydrated"
	ReasonLogin        Reason = "login"
	ReasonRegister     Reason = "register"
	ReasonLogout       Reason = "logout"
	ReasonExpired      Reason = "expired"
	ReasonInactive     Reason = "inactive"
	ReasonUnauthorized Reason = "unauthorized"
)

// ErrNotAuthenticated is returned by operations that need a signed-in user.
var ErrNotAuthenticated = errors.New("not authenticated")

// Vault persists the session between runs. Load returns nil, nil when
// nothing is stored. Clear removes every key in one step.
type Vault interface {
	Load(ctx context.Context) (*model.PersistedSession, error)
	Save(ctx context.Context, s model.PersistedSession) error
	Clear(ctx context.Context) error
}

// Authenticator exchanges credentials for a bearer token.
type Authenticator interface {
	Login(ctx context.Context, in model.Credentials) (*model.AuthResult, error)
	Register(ctx context.Context, in model.Registration) (*model.AuthResult, error)
}

// Listener is notified after every state transition.
type Listener func(State, Reason)

// Timeouts bounds a session's lifetime.
type Timeouts struct {
	Absolute   time.Duration
	Inactivity time.Duration
}

// DefaultTimeouts returns a 24h absolute and 7h inactivity ceiling.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Absolute:   24 * time.Hour,
		Inactivity: 7 * time.Hour,
	}
}

// Store is the session store. It is safe for concurrent use.
type Store struct {
	auth     Authenticator
	vault    Vault
	timeouts Timeouts
	logger   *log.Logger
	now      func() time.Time

	mu        sync.Mutex
	state     State
	current   model.PersistedSession
	expiresAt time.Time
	dirty     bool
	listeners []Listener

	rehydrate sync.Once
	ready     chan struct{}
}

// Option configures a Store.
type Option func(*Store)

// WithTimeouts overrides the default ceilings.
func WithTimeouts(t Timeouts) Option {
	return func(s *Store) { s.timeouts = t }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a store in the Unknown state. Call Rehydrate before use.
func New(auth Authenticator, vault Vault, opts ...Option) *Store {
	s := &Store{
		auth:     auth,
		vault:    vault,
		timeouts: DefaultTimeouts(),
		logger:   logging.Discard(),
		now:      time.Now,
		ready:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Rehydrate restores a persisted session. It runs once; later calls
// return immediately. A persisted session past either ceiling is cleared.
func (s *Store) Rehydrate(ctx context.Context) error {
	var err error
	s.rehydrate.Do(func() {
		err = s.doRehydrate(ctx)
		close(s.ready)
	})
	return err
}

func (s *Store) doRehydrate(ctx context.Context) error {
	persisted, err := s.vault.Load(ctx)
	if err != nil {
		s.logger.Warn("loading persisted session", "err", err)
		s.transition(Anonymous, model.PersistedSession{}, ReasonRehydrated)
		return fmt.Errorf("loading persisted session: %w", err)
	}
	if persisted == nil || !persisted.Valid() {
		s.transition(Anonymous, model.PersistedSession{}, ReasonRehydrated)
		return nil
	}

	expiresAt := s.ceiling(*persisted)
	if reason, expired := s.expired(*persisted, expiresAt, s.now()); expired {
		s.logger.Info("persisted session expired", "reason", reason)
		if err := s.vault.Clear(ctx); err != nil {
			s.logger.Warn("clearing expired session", "err", err)
		}
		s.transition(Anonymous, model.PersistedSession{}, reason)
		return nil
	}

	s.mu.Lock()
	s.expiresAt = expiresAt
	s.mu.Unlock()
	s.transition(Authenticated, *persisted, ReasonRehydrated)
	return nil
}

// WaitReady blocks until rehydration has completed or ctx ends.
func (s *Store) WaitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Login authenticates with email and password. On failure the session
// stays Anonymous and the gateway error is returned.
func (s *Store) Login(ctx context.Context, email, password string) error {
	res, err := s.auth.Login(ctx, model.Credentials{Email: email, Password: password})
	if err != nil {
		return err
	}
	return s.start(ctx, res, ReasonLogin)
}

// Register creates an account and signs in.
func (s *Store) Register(ctx context.Context, name, email, password string) error {
	res, err := s.auth.Register(ctx, model.Registration{Name: name, Email: email, Password: password})
	if err != nil {
		return err
	}
	return s.start(ctx, res, ReasonRegister)
}

func (s *Store) start(ctx context.Context, res *model.AuthResult, reason Reason) error {
	if res == nil || res.Token == "" || res.User.ID == "" {
		return errors.New("server returned an incomplete session")
	}

	now := s.now()
	p := model.PersistedSession{
		Token:        res.Token,
		User:         res.User,
		LoginTime:    now,
		LastActivity: now,
	}
	if err := s.vault.Save(ctx, p); err != nil {
		return fmt.Errorf("persisting session: %w", err)
	}

	s.mu.Lock()
	s.expiresAt = s.ceiling(p)
	s.dirty = false
	s.mu.Unlock()

	s.logger.Info("signed in", "user", p.User.ID, "reason", reason)
	s.transition(Authenticated, p, reason)
	return nil
}

// Logout ends the session unconditionally. The vault is cleared even if
// the store is already anonymous.
func (s *Store) Logout(ctx context.Context, reason Reason) error {
	if reason == "" {
		reason = ReasonLogout
	}
	err := s.vault.Clear(ctx)
	if err != nil {
		s.logger.Warn("clearing persisted session", "err", err)
		err = fmt.Errorf("clearing persisted session: %w", err)
	}

	s.mu.Lock()
	wasAuthenticated := s.state == Authenticated
	s.expiresAt = time.Time{}
	s.dirty = false
	s.mu.Unlock()

	if wasAuthenticated {
		s.logger.Info("signed out", "reason", reason)
	}
	s.transition(Anonymous, model.PersistedSession{}, reason)
	return err
}

// Touch records user activity. The timestamp is persisted by the next
// CheckTimeout.
func (s *Store) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Authenticated {
		return
	}
	s.current.LastActivity = s.now()
	s.dirty = true
}

// CheckTimeout logs out when either ceiling has passed at now, and
// otherwise persists pending activity. It reports whether the session
// was ended.
func (s *Store) CheckTimeout(ctx context.Context, now time.Time) (bool, error) {
	s.mu.Lock()
	if s.state != Authenticated {
		s.mu.Unlock()
		return false, nil
	}
	current, expiresAt, dirty := s.current, s.expiresAt, s.dirty
	s.dirty = false
	s.mu.Unlock()

	if reason, expired := s.expired(current, expiresAt, now); expired {
		return true, s.Logout(ctx, reason)
	}

	if dirty {
		if err := s.vault.Save(ctx, current); err != nil {
			s.mu.Lock()
			s.dirty = true
			s.mu.Unlock()
			return false, fmt.Errorf("persisting activity: %w", err)
		}
	}
	return false, nil
}

// State returns the current state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// User returns the signed-in user.
func (s *Store) User() (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Authenticated {
		return model.User{}, ErrNotAuthenticated
	}
	return s.current.User, nil
}

// Token returns the bearer credential, or "" when signed out.
func (s *Store) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Authenticated {
		return ""
	}
	return s.current.Token
}

// ExpiresAt returns the absolute deadline of the current session.
func (s *Store) ExpiresAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expiresAt
}

// OnChange registers l for every state transition.
func (s *Store) OnChange(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

func (s *Store) transition(state State, p model.PersistedSession, reason Reason) {
	s.mu.Lock()
	s.state = state
	s.current = p
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()

	for _, l := range listeners {
		l(state, reason)
	}
}

// ceiling is the absolute deadline of p: login time plus the absolute
// timeout, moved earlier if the token carries an earlier expiry.
func (s *Store) ceiling(p model.PersistedSession) time.Time {
	deadline := p.LoginTime.Add(s.timeouts.Absolute)
	if exp, ok := tokenExpiry(p.Token); ok && exp.Before(deadline) {
		return exp
	}
	return deadline
}

func (s *Store) expired(p model.PersistedSession, expiresAt, now time.Time) (Reason, bool) {
	if !expiresAt.IsZero() && !now.Before(expiresAt) {
		return ReasonExpired, true
	}
	if !p.LastActivity.IsZero() && now.Sub(p.LastActivity) >= s.timeouts.Inactivity {
		return ReasonInactive, true
	}
	return "", false
}

// tokenExpiry reads the exp claim of a JWT without verifying its
// signature. Opaque tokens report false.
func tokenExpiry(token string) (time.Time, bool) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
