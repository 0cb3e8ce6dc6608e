package board

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nhle/taskflow/internal/api"
	"github.com/nhle/taskflow/internal/model"
)

// SelectBoard materializes boardID: board detail and tasks are fetched
// concurrently, merged, and the board's realtime room is joined. Selecting
// the board that is already materialized is a no-op; concurrent calls for
// the same id share one fetch.
func (s *Store) SelectBoard(ctx context.Context, boardID string) error {
	if boardID == "" {
		return fmt.Errorf("selecting board: empty id")
	}

	s.mu.Lock()
	if s.target == boardID && s.selected != nil && s.selected.id() == boardID {
		s.mu.Unlock()
		return nil
	}
	s.target = boardID
	s.err = ""
	s.mu.Unlock()

	return s.load(ctx, boardID)
}

// Refresh re-fetches the selected board unconditionally.
func (s *Store) Refresh(ctx context.Context) error {
	s.mu.Lock()
	boardID := s.target
	s.mu.Unlock()
	if boardID == "" {
		return ErrNoSelection
	}
	return s.load(ctx, boardID)
}

// ClearSelection drops the selected aggregate and leaves its room. A
// fetch still in flight is discarded when it resolves.
func (s *Store) ClearSelection(ctx context.Context) {
	s.mu.Lock()
	s.selected = nil
	s.target = ""
	joined := s.joined
	s.joined = ""
	s.mu.Unlock()

	if joined != "" && s.rt != nil {
		if err := s.rt.LeaveBoard(ctx, joined); err != nil {
			s.logger.Debug("leaving board room", "board", joined, "err", err)
		}
	}
	s.notify()
}

// Reset clears the selection and forgets the boards collection. Called
// when the session ends; requests still in flight are discarded when they
// resolve.
func (s *Store) Reset(ctx context.Context) {
	s.mu.Lock()
	s.gen++
	s.boards = nil
	s.err = ""
	s.mu.Unlock()
	s.ClearSelection(ctx)
}

// resync re-fetches boardID if it is still the selection. Used to roll
// back mutations the server rejected. It returns ErrStaleAggregate without
// fetching when another board is selected or loading, so the caller can
// roll back locally.
func (s *Store) resync(ctx context.Context, boardID string) error {
	s.mu.Lock()
	current := s.target == boardID && s.selected != nil && s.selected.id() == boardID
	s.mu.Unlock()
	if !current {
		return ErrStaleAggregate
	}
	s.logger.Debug("resyncing board", "board", boardID)
	return s.load(ctx, boardID)
}

// fetchTimeout bounds a shared board fetch, which does not inherit the
// cancellation of the caller that started it.
const fetchTimeout = 30 * time.Second

// load fetches and materializes boardID, sharing the work with any
// concurrent load of the same id. The result is applied only if boardID
// is still the target when the fetch resolves.
func (s *Store) load(ctx context.Context, boardID string) error {
	ch := s.flight.DoChan(boardID, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
		defer cancel()
		return nil, s.fetch(fctx, boardID)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) fetch(ctx context.Context, boardID string) error {
	s.mu.Lock()
	s.loading++
	s.mu.Unlock()
	s.notify()

	var (
		detail *model.Board
		tasks  []model.Task
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		b, err := s.gw.GetBoard(gctx, boardID)
		if err != nil {
			return err
		}
		detail = b
		return nil
	})
	g.Go(func() error {
		ts, err := s.gw.ListTasks(gctx, boardID)
		if err != nil {
			return err
		}
		tasks = ts
		return nil
	})
	err := g.Wait()

	s.mu.Lock()
	s.loading--
	if s.target != boardID {
		s.mu.Unlock()
		s.logger.Debug("discarding stale board fetch", "board", boardID)
		s.notify()
		return ErrStaleAggregate
	}
	if err != nil {
		s.err = api.Message(err)
		if s.selected != nil {
			// The previous board stays materialized, so it is the target
			// again.
			s.target = s.selected.id()
		}
		s.mu.Unlock()
		s.logger.Warn("fetching board", "board", boardID, "err", err)
		s.notify()
		return fmt.Errorf("fetching board %s: %w", boardID, err)
	}
	if detail.ID == "" {
		detail.ID = boardID
	}
	s.selected = newAggregate(*detail, tasks)
	previous := s.joined
	s.joined = boardID
	s.mu.Unlock()

	if previous != boardID && s.rt != nil {
		if previous != "" {
			if err := s.rt.LeaveBoard(ctx, previous); err != nil {
				s.logger.Debug("leaving board room", "board", previous, "err", err)
			}
		}
		if err := s.rt.JoinBoard(ctx, boardID); err != nil {
			s.logger.Debug("joining board room", "board", boardID, "err", err)
		}
	}
	s.notify()
	return nil
}
