package board

import (
	"context"
	"fmt"
	"strings"

	"github.com/nhle/taskflow/internal/model"
	"github.com/nhle/taskflow/internal/realtime"
)

// AddTask creates a task on the selected board. The task appears once the
// server returns it with its id; a realtime echo that arrived first wins.
// Without an explicit position the task goes to the end of its list.
func (s *Store) AddTask(ctx context.Context, in model.TaskInput) (*model.Task, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return nil, fmt.Errorf("adding task: title is required")
	}

	s.mu.Lock()
	boardID, err := s.authorizeLocked(ActionCreateTask)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if !s.selected.board.HasList(in.ListID) {
		s.mu.Unlock()
		return nil, fmt.Errorf("adding task to %s: %w", in.ListID, ErrListNotFound)
	}
	if in.Position == nil {
		pos := s.selected.nextPosition(in.ListID, "")
		in.Position = &pos
	}
	s.mu.Unlock()

	created, err := s.gw.CreateTask(ctx, boardID, in)
	if err != nil {
		s.fail(err)
		return nil, fmt.Errorf("adding task: %w", err)
	}
	if created.BoardID == "" {
		created.BoardID = boardID
	}

	s.mu.Lock()
	if a := s.currentLocked(boardID); a != nil {
		a.insert(*created)
	}
	s.mu.Unlock()
	s.notify()

	s.emitTask(ctx, realtime.TaskChange{BoardID: boardID, Type: realtime.ChangeCreated, Task: created})
	return created, nil
}

// UpdateTask applies patch locally, then sends it. On success the
// server's task replaces the local one; on failure the task is restored
// to its value before the update. A patch that only sets Completed is
// gated as a completion toggle.
func (s *Store) UpdateTask(ctx context.Context, taskID string, patch model.TaskPatch) (*model.Task, error) {
	action := ActionEditTask
	if patch.OnlyCompletion() {
		action = ActionToggleComplete
	}
	return s.mutateTask(ctx, action, taskID, patch, false)
}

// ToggleComplete flips a task's completion flag.
func (s *Store) ToggleComplete(ctx context.Context, taskID string) (*model.Task, error) {
	s.mu.Lock()
	var completed bool
	if s.selected != nil {
		if e := s.selected.find(taskID); e != nil {
			completed = e.task.Completed
		}
	}
	s.mu.Unlock()

	next := !completed
	return s.mutateTask(ctx, ActionToggleComplete, taskID, model.TaskPatch{Completed: &next}, false)
}

// MoveTask moves a task to targetListID. A nil position drops it at the
// end of the target list; otherwise the position is used verbatim and
// siblings are not renumbered. The move is shown immediately; if the
// server rejects it the board is re-fetched.
func (s *Store) MoveTask(ctx context.Context, taskID, targetListID string, position *float64) (*model.Task, error) {
	s.mu.Lock()
	if s.selected == nil {
		s.mu.Unlock()
		return nil, ErrNoSelection
	}
	if !s.selected.board.HasList(targetListID) {
		s.mu.Unlock()
		return nil, fmt.Errorf("moving task to %s: %w", targetListID, ErrListNotFound)
	}
	pos := s.selected.nextPosition(targetListID, taskID)
	if position != nil {
		pos = *position
	}
	s.mu.Unlock()

	list := targetListID
	return s.mutateTask(ctx, ActionMoveTask, taskID, model.TaskPatch{ListID: &list, Position: &pos}, true)
}

// mutateTask is the optimistic update path shared by edits, toggles and
// moves. refetch selects rollback by re-fetching the board instead of
// restoring the original value.
func (s *Store) mutateTask(ctx context.Context, action Action, taskID string, patch model.TaskPatch, refetch bool) (*model.Task, error) {
	s.mu.Lock()
	boardID, err := s.authorizeLocked(action)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if patch.ListID != nil && !s.selected.board.HasList(*patch.ListID) {
		s.mu.Unlock()
		return nil, fmt.Errorf("%s %s to %s: %w", action, taskID, *patch.ListID, ErrListNotFound)
	}
	e := s.selected.find(taskID)
	if e == nil || e.state == StatePendingDelete {
		s.mu.Unlock()
		return nil, fmt.Errorf("%s %s: %w", action, taskID, ErrTaskNotFound)
	}
	if e.state == StateConfirmed {
		original := e.task.Clone()
		e.original = &original
	}
	e.state = StatePendingUpdate
	e.task = patch.Apply(e.task)
	seq := s.nextSeqLocked()
	e.seq = seq
	s.mu.Unlock()
	s.notify()

	updated, err := s.gw.UpdateTask(ctx, boardID, taskID, patch)
	if err != nil {
		s.logger.Warn("task mutation rejected", "action", action, "task", taskID, "err", err)
		s.fail(err)
		if refetch {
			if rerr := s.resync(ctx, boardID); rerr == nil {
				return nil, fmt.Errorf("%s: %w", action, err)
			}
		}
		s.restore(boardID, taskID, seq)
		return nil, fmt.Errorf("%s: %w", action, err)
	}
	if updated.BoardID == "" {
		updated.BoardID = boardID
	}

	s.mu.Lock()
	if a := s.currentLocked(boardID); a != nil {
		if e := a.find(taskID); e != nil {
			confirmed := updated.Clone()
			if e.seq == seq || e.state == StateConfirmed {
				e.task = confirmed
				e.state = StateConfirmed
				e.original = nil
			} else if e.state == StatePendingUpdate {
				// A newer local mutation is in flight; this becomes the
				// value it rolls back to.
				e.original = &confirmed
			}
		}
	}
	s.mu.Unlock()
	s.notify()

	s.emitTask(ctx, realtime.TaskChange{BoardID: boardID, Type: realtime.ChangeUpdated, Task: updated})
	return updated, nil
}

// restore rolls a failed update back to the task's original value, unless
// a newer mutation has taken over the task.
func (s *Store) restore(boardID, taskID string, seq uint64) {
	s.mu.Lock()
	a := s.currentLocked(boardID)
	if a == nil {
		s.mu.Unlock()
		return
	}
	e := a.find(taskID)
	if e == nil || e.seq != seq || e.state != StatePendingUpdate || e.original == nil {
		s.mu.Unlock()
		return
	}
	e.task = *e.original
	e.original = nil
	e.state = StateConfirmed
	s.mu.Unlock()
	s.notify()
}

// DeleteTask hides a task immediately and deletes it on the server. If
// the server rejects the deletion the board is re-fetched.
func (s *Store) DeleteTask(ctx context.Context, taskID string) error {
	s.mu.Lock()
	boardID, err := s.authorizeLocked(ActionDeleteTask)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	e := s.selected.find(taskID)
	if e == nil || e.state == StatePendingDelete {
		s.mu.Unlock()
		return fmt.Errorf("deleting %s: %w", taskID, ErrTaskNotFound)
	}
	e.prev = e.state
	e.state = StatePendingDelete
	seq := s.nextSeqLocked()
	e.seq = seq
	s.mu.Unlock()
	s.notify()

	if err := s.gw.DeleteTask(ctx, boardID, taskID); err != nil {
		s.logger.Warn("task deletion rejected", "task", taskID, "err", err)
		s.fail(err)
		if rerr := s.resync(ctx, boardID); rerr != nil {
			s.undelete(boardID, taskID, seq)
		}
		return fmt.Errorf("deleting task: %w", err)
	}

	s.mu.Lock()
	if a := s.currentLocked(boardID); a != nil {
		a.remove(taskID)
	}
	s.mu.Unlock()
	s.notify()

	s.emitTask(ctx, realtime.TaskChange{BoardID: boardID, Type: realtime.ChangeDeleted, TaskID: taskID})
	return nil
}

func (s *Store) undelete(boardID, taskID string, seq uint64) {
	s.mu.Lock()
	a := s.currentLocked(boardID)
	if a == nil {
		s.mu.Unlock()
		return
	}
	if e := a.find(taskID); e != nil && e.seq == seq && e.state == StatePendingDelete {
		e.state = e.prev
	}
	s.mu.Unlock()
	s.notify()
}

func (s *Store) emitTask(ctx context.Context, p realtime.TaskChange) {
	if s.rt == nil {
		return
	}
	if err := s.rt.EmitTaskChanged(ctx, p); err != nil {
		s.logger.Debug("broadcasting task change", "type", p.Type, "err", err)
	}
}
