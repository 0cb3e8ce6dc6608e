package board

import (
	"context"

	"github.com/nhle/taskflow/internal/model"
	"github.com/nhle/taskflow/internal/realtime"
)

// Apply folds a realtime event into the selected aggregate. Events for
// any other board are ignored. Every case is idempotent: replaying an
// event leaves the aggregate unchanged. No causal order is assumed, so
// among remote updates to one task the last applied wins.
func (s *Store) Apply(ev realtime.Event) {
	s.mu.Lock()
	a := s.selected
	if a == nil || ev.Board() == "" || ev.Board() != a.id() {
		s.mu.Unlock()
		return
	}

	changed := false
	removedSelf := false

	switch ev := ev.(type) {
	case realtime.TaskCreated:
		changed = a.insert(ev.Task)

	case realtime.TaskUpdated:
		changed = applyRemoteUpdate(a, ev.Task)

	case realtime.TaskDeleted:
		changed = a.remove(ev.TaskID)

	case realtime.ListCreated:
		if !a.hasListLike(ev.List) {
			a.board.Lists = append(a.board.Lists, ev.List)
			changed = true
		}

	case realtime.ListDeleted:
		changed = a.removeList(ev.ListID)

	case realtime.MemberRemoved:
		changed = a.removeMember(ev.UserID)
		removedSelf = ev.UserID != "" && ev.UserID == s.userID()
		if removedSelf {
			s.boards = withoutBoard(s.boards, a.id())
		}
	}
	boardID := a.id()
	s.mu.Unlock()

	if removedSelf {
		s.logger.Info("removed from board", "board", boardID)
		s.ClearSelection(context.Background())
		return
	}
	if changed {
		s.notify()
	}
}

// applyRemoteUpdate replaces the task wholesale. While a local mutation
// is pending the visible value is kept and the remote value becomes the
// one a failed mutation restores.
func applyRemoteUpdate(a *aggregate, t model.Task) bool {
	e := a.find(t.ID)
	if e == nil {
		return false
	}
	t = t.Clone()
	if t.BoardID == "" {
		t.BoardID = a.id()
	}
	switch e.state {
	case StatePendingUpdate:
		e.original = &t
		return false
	case StatePendingDelete:
		e.task = t
		return false
	default:
		e.task = t
		return true
	}
}
