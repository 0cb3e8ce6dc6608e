package board

import (
	"context"
	"fmt"
	"strings"

	"github.com/nhle/taskflow/internal/model"
)

// LoadBoards replaces the boards collection with the server's. On
// failure the previous collection is kept and the error is surfaced. A
// response that resolves after Reset is discarded with ErrStaleAggregate.
func (s *Store) LoadBoards(ctx context.Context) error {
	s.mu.Lock()
	s.loading++
	gen := s.gen
	s.mu.Unlock()
	s.notify()

	boards, err := s.gw.ListBoards(ctx)

	s.mu.Lock()
	s.loading--
	if gen != s.gen {
		s.mu.Unlock()
		s.logger.Debug("discarding boards loaded before reset")
		s.notify()
		return ErrStaleAggregate
	}
	if err != nil {
		s.mu.Unlock()
		s.logger.Warn("loading boards", "err", err)
		s.fail(err)
		return fmt.Errorf("loading boards: %w", err)
	}
	s.boards = boards
	s.err = ""
	s.mu.Unlock()

	s.notify()
	return nil
}

// CreateBoard creates a board and appends it to the collection once the
// server confirms it.
func (s *Store) CreateBoard(ctx context.Context, in model.BoardInput) (*model.Board, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, fmt.Errorf("creating board: name is required")
	}

	gen := s.generation()
	created, err := s.gw.CreateBoard(ctx, in)
	if err != nil {
		s.fail(err)
		return nil, fmt.Errorf("creating board: %w", err)
	}

	s.mu.Lock()
	if gen == s.gen {
		s.boards = append(s.boards, created.Clone())
	}
	s.mu.Unlock()

	s.logger.Info("board created", "board", created.ID, "name", created.Name)
	s.notify()
	return created, nil
}

// UpdateBoard renames or re-describes a board.
func (s *Store) UpdateBoard(ctx context.Context, boardID string, in model.BoardInput) (*model.Board, error) {
	if err := s.authorizeBoard(boardID, ActionEditBoard); err != nil {
		return nil, err
	}

	updated, err := s.gw.UpdateBoard(ctx, boardID, in)
	if err != nil {
		s.fail(err)
		return nil, fmt.Errorf("updating board: %w", err)
	}

	s.mu.Lock()
	for i := range s.boards {
		if s.boards[i].ID == boardID {
			s.boards[i].Name = updated.Name
			s.boards[i].Description = updated.Description
		}
	}
	if a := s.currentLocked(boardID); a != nil {
		a.board.Name = updated.Name
		a.board.Description = updated.Description
	}
	s.mu.Unlock()

	s.notify()
	return updated, nil
}

// DeleteBoard deletes a board. If it was selected, the selection is
// cleared.
func (s *Store) DeleteBoard(ctx context.Context, boardID string) error {
	if err := s.authorizeBoard(boardID, ActionDeleteBoard); err != nil {
		return err
	}

	if err := s.gw.DeleteBoard(ctx, boardID); err != nil {
		s.fail(err)
		return fmt.Errorf("deleting board: %w", err)
	}

	s.mu.Lock()
	s.boards = withoutBoard(s.boards, boardID)
	selected := s.target == boardID
	s.mu.Unlock()

	if selected {
		s.ClearSelection(ctx)
		return nil
	}
	s.notify()
	return nil
}

// AcceptInvite joins the board an invite token points to and adds it to
// the collection.
func (s *Store) AcceptInvite(ctx context.Context, token string) (*model.Board, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("accepting invite: token is required")
	}

	gen := s.generation()
	joined, err := s.gw.AcceptInvite(ctx, token)
	if err != nil {
		s.fail(err)
		return nil, fmt.Errorf("accepting invite: %w", err)
	}

	s.mu.Lock()
	if joined.ID != "" && gen == s.gen {
		s.boards = append(withoutBoard(s.boards, joined.ID), joined.Clone())
	}
	s.mu.Unlock()

	s.notify()
	return joined, nil
}

// authorizeBoard gates board-level operations. The role is read from the
// selected aggregate when it is that board, otherwise from the collection.
// A summary without membership data is left to the server to judge.
func (s *Store) authorizeBoard(boardID string, action Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var b *model.Board
	if a := s.currentLocked(boardID); a != nil {
		b = &a.board
	} else {
		for i := range s.boards {
			if s.boards[i].ID == boardID {
				b = &s.boards[i]
				break
			}
		}
	}
	if b == nil || len(b.Members) == 0 {
		return nil
	}

	role := b.RoleOf(s.userID())
	if !Allowed(role, action) {
		return &PermissionDenied{Action: action, Role: role}
	}
	return nil
}

func withoutBoard(boards []model.Board, boardID string) []model.Board {
	out := boards[:0:0]
	for _, b := range boards {
		if b.ID != boardID {
			out = append(out, b)
		}
	}
	return out
}
