package board

import (
	"context"
	"fmt"
	"strings"

	"github.com/nhle/taskflow/internal/model"
	"github.com/nhle/taskflow/internal/realtime"
)

// InviteMember invites email to the selected board with role.
func (s *Store) InviteMember(ctx context.Context, email string, role model.Role) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("inviting member: email is required")
	}
	if role != model.RoleAdmin && role != model.RoleMember {
		return fmt.Errorf("inviting member: invalid role %q", role)
	}

	s.mu.Lock()
	boardID, err := s.authorizeLocked(ActionInviteMember)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	if err := s.gw.InviteMember(ctx, boardID, email, role); err != nil {
		s.fail(err)
		return fmt.Errorf("inviting member: %w", err)
	}
	s.logger.Info("member invited", "board", boardID, "role", role)
	return nil
}

// RemoveMember removes userID from the selected board. The member
// disappears locally first; the board is re-fetched afterwards whether
// the server accepts or rejects the removal.
func (s *Store) RemoveMember(ctx context.Context, userID string) error {
	if userID != "" && userID == s.userID() {
		return ErrSelfRemoval
	}

	s.mu.Lock()
	boardID, err := s.authorizeLocked(ActionRemoveMember)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.selected.removeMember(userID)
	s.mu.Unlock()
	s.notify()

	err = s.gw.RemoveMember(ctx, boardID, userID)
	if err != nil {
		s.logger.Warn("member removal rejected", "board", boardID, "user", userID, "err", err)
		s.fail(err)
	}

	if rerr := s.resync(ctx, boardID); rerr != nil {
		s.logger.Warn("resync after member removal", "err", rerr)
	}
	if err != nil {
		return fmt.Errorf("removing member: %w", err)
	}

	if s.rt != nil {
		change := realtime.BoardChange{BoardID: boardID, Type: realtime.ChangeMemberRemoved, RemovedUserID: userID}
		if err := s.rt.EmitBoardChanged(ctx, change); err != nil {
			s.logger.Debug("broadcasting member removal", "err", err)
		}
	}
	return nil
}

// Members returns the selected board's members, admins first.
func (s *Store) Members() []model.Member {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == nil {
		return nil
	}
	return SortMembers(s.selected.board.Members)
}

// SortMembers returns a copy of members with admins first, otherwise in
// their original order.
func SortMembers(members []model.Member) []model.Member {
	out := make([]model.Member, 0, len(members))
	for _, m := range members {
		if m.Role == model.RoleAdmin {
			out = append(out, m)
		}
	}
	for _, m := range members {
		if m.Role != model.RoleAdmin {
			out = append(out, m)
		}
	}
	return out
}
