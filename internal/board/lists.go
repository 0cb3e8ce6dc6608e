package board

import (
	"context"
	"fmt"
	"strings"

	"github.com/nhle/taskflow/internal/realtime"
)

// AddList creates a list on the selected board. Nothing is inserted until
// the server answers; its lists then replace the local ones.
func (s *Store) AddList(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("adding list: name is required")
	}

	s.mu.Lock()
	boardID, err := s.authorizeLocked(ActionAddList)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	updated, err := s.gw.AddList(ctx, boardID, name)
	if err != nil {
		s.fail(err)
		return fmt.Errorf("adding list: %w", err)
	}

	s.mu.Lock()
	// The server's lists already include the new one, so a realtime echo
	// that arrived first is subsumed.
	if a := s.currentLocked(boardID); a != nil && updated != nil && updated.Lists != nil {
		a.board.Lists = updated.Lists
	}
	s.mu.Unlock()

	s.notify()
	return nil
}

// RemoveList deletes a list and its tasks. Both disappear locally before
// the request is sent; if the server rejects it the board is re-fetched.
func (s *Store) RemoveList(ctx context.Context, listID string) error {
	s.mu.Lock()
	boardID, err := s.authorizeLocked(ActionRemoveList)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if !s.selected.board.HasList(listID) {
		s.mu.Unlock()
		return fmt.Errorf("removing list %s: %w", listID, ErrListNotFound)
	}
	s.selected.removeList(listID)
	s.mu.Unlock()
	s.notify()

	updated, err := s.gw.DeleteList(ctx, boardID, listID)
	if err != nil {
		s.logger.Warn("removing list", "board", boardID, "list", listID, "err", err)
		s.fail(err)
		if rerr := s.resync(ctx, boardID); rerr != nil {
			s.logger.Warn("resync after failed list removal", "err", rerr)
		}
		return fmt.Errorf("removing list: %w", err)
	}

	s.mu.Lock()
	if a := s.currentLocked(boardID); a != nil && updated != nil && updated.Lists != nil {
		a.board.Lists = updated.Lists
	}
	s.mu.Unlock()
	s.notify()

	s.emitList(ctx, realtime.ListChange{BoardID: boardID, Type: realtime.ChangeDeleted, ListID: listID})
	return nil
}

func (s *Store) emitList(ctx context.Context, p realtime.ListChange) {
	if s.rt == nil {
		return
	}
	if err := s.rt.EmitListChanged(ctx, p); err != nil {
		s.logger.Debug("broadcasting list change", "type", p.Type, "err", err)
	}
}
