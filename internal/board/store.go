// Package board is the client-side cache over the board resource. It
// applies local mutations optimistically, reconciles them with server
// responses, and folds in realtime events from other sessions.
package board

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"github.com/nhle/taskflow/internal/api"
	"github.com/nhle/taskflow/internal/logging"
	"github.com/nhle/taskflow/internal/model"
	"github.com/nhle/taskflow/internal/realtime"
)

// Gateway is the subset of the REST client the store uses.
type Gateway interface {
	ListBoards(ctx context.Context) ([]model.Board, error)
	GetBoard(ctx context.Context, boardID string) (*model.Board, error)
	CreateBoard(ctx context.Context, in model.BoardInput) (*model.Board, error)
	UpdateBoard(ctx context.Context, boardID string, in model.BoardInput) (*model.Board, error)
	DeleteBoard(ctx context.Context, boardID string) error
	AddList(ctx context.Context, boardID, name string) (*model.Board, error)
	DeleteList(ctx context.Context, boardID, listID string) (*model.Board, error)
	InviteMember(ctx context.Context, boardID, email string, role model.Role) error
	RemoveMember(ctx context.Context, boardID, userID string) error
	AcceptInvite(ctx context.Context, token string) (*model.Board, error)
	ListTasks(ctx context.Context, boardID string) ([]model.Task, error)
	CreateTask(ctx context.Context, boardID string, in model.TaskInput) (*model.Task, error)
	UpdateTask(ctx context.Context, boardID, taskID string, patch model.TaskPatch) (*model.Task, error)
	DeleteTask(ctx context.Context, boardID, taskID string) error
}

// Broadcaster is the subset of the realtime channel the store uses.
type Broadcaster interface {
	JoinBoard(ctx context.Context, boardID string) error
	LeaveBoard(ctx context.Context, boardID string) error
	EmitTaskChanged(ctx context.Context, p realtime.TaskChange) error
	EmitListChanged(ctx context.Context, p realtime.ListChange) error
	EmitBoardChanged(ctx context.Context, p realtime.BoardChange) error
}

// Identity supplies the signed-in user for role checks.
type Identity interface {
	User() (model.User, error)
}

// Snapshot is a read-only copy of the store state.
type Snapshot struct {
	Boards []model.Board

	// Selected is the materialized board with its visible tasks, or nil.
	Selected *model.Board

	// Pending tags tasks with unconfirmed local mutations.
	Pending map[string]TaskState

	// Role is the current user's role on the selected board.
	Role model.Role

	Loading bool
	Err     string
}

// Store owns the boards collection and the selected board aggregate.
// All methods are safe for concurrent use; network calls are made
// without holding the lock.
type Store struct {
	gw     Gateway
	rt     Broadcaster
	me     Identity
	logger *log.Logger

	flight singleflight.Group

	mu        sync.Mutex
	gen       uint64
	boards    []model.Board
	selected  *aggregate
	target    string
	joined    string
	seq       uint64
	loading   int
	err       string
	listeners []func()
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New creates an empty store.
func New(gw Gateway, rt Broadcaster, me Identity, opts ...Option) *Store {
	s := &Store{
		gw:     gw,
		rt:     rt,
		me:     me,
		logger: logging.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnChange registers fn to run after every state change.
func (s *Store) OnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Store) notify() {
	s.mu.Lock()
	listeners := append([]func(){}, s.listeners...)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Boards:  make([]model.Board, len(s.boards)),
		Loading: s.loading > 0,
		Err:     s.err,
		Role:    model.RoleGuest,
	}
	for i, b := range s.boards {
		snap.Boards[i] = b.Clone()
	}
	if s.selected != nil {
		b := s.selected.snapshot()
		snap.Selected = &b
		snap.Pending = s.selected.pending()
		snap.Role = s.roleLocked()
	}
	return snap
}

// CurrentRole returns the user's role on the selected board.
func (s *Store) CurrentRole() model.Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == nil {
		return model.RoleGuest
	}
	return s.roleLocked()
}

// OrderedTasks returns the visible tasks of listID in display order.
func (s *Store) OrderedTasks(listID string) []model.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == nil {
		return nil
	}
	return Ordered(s.selected.visible(), listID)
}

// ClearError dismisses the last surfaced error.
func (s *Store) ClearError() {
	s.mu.Lock()
	s.err = ""
	s.mu.Unlock()
	s.notify()
}

func (s *Store) userID() string {
	if s.me == nil {
		return ""
	}
	u, err := s.me.User()
	if err != nil {
		return ""
	}
	return u.ID
}

func (s *Store) roleLocked() model.Role {
	return s.selected.board.RoleOf(s.userID())
}

// authorizeLocked checks action against the selected board and returns
// its id.
func (s *Store) authorizeLocked(action Action) (string, error) {
	if s.selected == nil {
		return "", ErrNoSelection
	}
	role := s.roleLocked()
	if !Allowed(role, action) {
		return "", &PermissionDenied{Action: action, Role: role}
	}
	return s.selected.id(), nil
}

// currentLocked returns the aggregate if boardID is still selected.
func (s *Store) currentLocked(boardID string) *aggregate {
	if s.selected == nil || s.selected.id() != boardID {
		return nil
	}
	return s.selected
}

func (s *Store) fail(err error) {
	s.mu.Lock()
	s.err = api.Message(err)
	s.mu.Unlock()
	s.notify()
}

// generation identifies the session the store currently serves. Reset
// advances it.
func (s *Store) generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

func (s *Store) nextSeqLocked() uint64 {
	s.seq++
	return s.seq
}
