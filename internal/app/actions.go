package app

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/taskflow/internal/model"
	"github.com/nhle/taskflow/internal/session"
)

// actionTimeout bounds a single store operation started from the UI.
const actionTimeout = 30 * time.Second

// actionResultMsg reports the outcome of a store operation. State changes
// arrive separately through the bridge.
type actionResultMsg struct {
	op  string
	err error
}

// authResultMsg reports a login or registration attempt.
type authResultMsg struct {
	err error
}

// rehydratedMsg is sent once the persisted session has been restored.
type rehydratedMsg struct {
	err error
}

// boardCreatedResultMsg carries a newly created board to open.
type boardCreatedResultMsg struct {
	board *model.Board
	err   error
}

// run executes fn off the UI goroutine and reports its error as op.
func run(op string, fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		return actionResultMsg{op: op, err: fn(ctx)}
	}
}

func (m Model) rehydrate() tea.Cmd {
	sess := m.sess
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		return rehydratedMsg{err: sess.Rehydrate(ctx)}
	}
}

func (m Model) authenticate(register bool, name, email, password string) tea.Cmd {
	sess := m.sess
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		if register {
			return authResultMsg{err: sess.Register(ctx, name, email, password)}
		}
		return authResultMsg{err: sess.Login(ctx, email, password)}
	}
}

func (m Model) logout(reason session.Reason) tea.Cmd {
	sess := m.sess
	return run("logout", func(ctx context.Context) error {
		return sess.Logout(ctx, reason)
	})
}

func (m Model) selectBoard(boardID string) tea.Cmd {
	s := m.boards
	return run("open board", func(ctx context.Context) error {
		return s.SelectBoard(ctx, boardID)
	})
}

func (m Model) closeBoard() tea.Cmd {
	s := m.boards
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		s.ClearSelection(ctx)
		return nil
	}
}

func (m Model) refresh() tea.Cmd {
	s, n := m.boards, m.notes
	selected := m.boardSnap.Selected != nil
	return run("refresh", func(ctx context.Context) error {
		if err := s.LoadBoards(ctx); err != nil {
			return err
		}
		if selected {
			if err := s.Refresh(ctx); err != nil {
				return err
			}
		}
		return n.FetchPage(ctx, 1)
	})
}

func (m Model) createBoard(in model.BoardInput) tea.Cmd {
	s := m.boards
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		b, err := s.CreateBoard(ctx, in)
		return boardCreatedResultMsg{board: b, err: err}
	}
}

func (m Model) renameBoard(boardID, name string) tea.Cmd {
	s := m.boards
	return run("rename board", func(ctx context.Context) error {
		_, err := s.UpdateBoard(ctx, boardID, model.BoardInput{Name: name})
		return err
	})
}

func (m Model) deleteBoard(boardID string) tea.Cmd {
	s := m.boards
	return run("delete board", func(ctx context.Context) error {
		return s.DeleteBoard(ctx, boardID)
	})
}

func (m Model) acceptInvite(token string) tea.Cmd {
	s := m.boards
	return run("join board", func(ctx context.Context) error {
		_, err := s.AcceptInvite(ctx, token)
		return err
	})
}

func (m Model) addList(name string) tea.Cmd {
	s := m.boards
	return run("add list", func(ctx context.Context) error {
		return s.AddList(ctx, name)
	})
}

func (m Model) removeList(listID string) tea.Cmd {
	s := m.boards
	return run("remove list", func(ctx context.Context) error {
		return s.RemoveList(ctx, listID)
	})
}

func (m Model) inviteMember(email string, role model.Role) tea.Cmd {
	s := m.boards
	return run("invite", func(ctx context.Context) error {
		return s.InviteMember(ctx, email, role)
	})
}

func (m Model) removeMember(userID string) tea.Cmd {
	s := m.boards
	return run("remove member", func(ctx context.Context) error {
		return s.RemoveMember(ctx, userID)
	})
}

func (m Model) addTask(in model.TaskInput) tea.Cmd {
	s := m.boards
	return run("add task", func(ctx context.Context) error {
		_, err := s.AddTask(ctx, in)
		return err
	})
}

func (m Model) updateTask(taskID string, patch model.TaskPatch) tea.Cmd {
	s := m.boards
	return run("update task", func(ctx context.Context) error {
		_, err := s.UpdateTask(ctx, taskID, patch)
		return err
	})
}

func (m Model) toggleTask(taskID string) tea.Cmd {
	s := m.boards
	return run("toggle task", func(ctx context.Context) error {
		_, err := s.ToggleComplete(ctx, taskID)
		return err
	})
}

func (m Model) moveTask(taskID, listID string, position *float64) tea.Cmd {
	s := m.boards
	return run("move task", func(ctx context.Context) error {
		_, err := s.MoveTask(ctx, taskID, listID, position)
		return err
	})
}

func (m Model) deleteTask(taskID string) tea.Cmd {
	s := m.boards
	return run("delete task", func(ctx context.Context) error {
		return s.DeleteTask(ctx, taskID)
	})
}

func (m Model) loadMoreNotifications() tea.Cmd {
	n := m.notes
	return run("load notifications", func(ctx context.Context) error {
		return n.LoadMore(ctx)
	})
}

func (m Model) markRead(id string) tea.Cmd {
	n := m.notes
	return run("mark read", func(ctx context.Context) error {
		return n.MarkRead(ctx, id)
	})
}

func (m Model) markAllRead() tea.Cmd {
	n := m.notes
	return run("mark all read", func(ctx context.Context) error {
		return n.MarkAllRead(ctx)
	})
}

func (m Model) deleteNotification(id string) tea.Cmd {
	n := m.notes
	return run("delete notification", func(ctx context.Context) error {
		return n.Delete(ctx, id)
	})
}
