package board

import (
	"errors"
	"fmt"

	"github.com/nhle/taskflow/internal/model"
)

// Action is a mutating operation subject to the role gate.
type Action string

const (
	ActionEditBoard      Action = "edit board"
	ActionDeleteBoard    Action = "delete board"
	ActionAddList        Action = "add list"
	ActionRemoveList     Action = "remove list"
	ActionCreateTask     Action = "create task"
	ActionEditTask       Action = "edit task"
	ActionMoveTask       Action = "move task"
	ActionDeleteTask     Action = "delete task"
	ActionToggleComplete Action = "toggle completion"
	ActionInviteMember   Action = "invite member"
	ActionRemoveMember   Action = "remove member"
)

// Allowed reports whether role may perform action. Admins may do
// everything, members may only toggle completion, guests nothing.
func Allowed(role model.Role, action Action) bool {
	switch role {
	case model.RoleAdmin:
		return true
	case model.RoleMember:
		return action == ActionToggleComplete
	default:
		return false
	}
}

// PermissionDenied is returned when the caller's role on the selected
// board does not allow an operation. No request has been sent.
type PermissionDenied struct {
	Action Action
	Role   model.Role
}

func (e *PermissionDenied) Error() string {
	return fmt.Sprintf("permission denied: %s cannot %s", e.Role, e.Action)
}

// IsPermissionDenied reports whether err is a PermissionDenied.
func IsPermissionDenied(err error) bool {
	var pd *PermissionDenied
	return errors.As(err, &pd)
}

var (
	// ErrNoSelection is returned by board-scoped operations when no board
	// is selected.
	ErrNoSelection = errors.New("no board selected")

	// ErrStaleAggregate is returned when a board fetch resolved after the
	// selection had moved on; its result was discarded.
	ErrStaleAggregate = errors.New("board selection changed; result discarded")

	// ErrSelfRemoval refuses removing the current user from a board.
	ErrSelfRemoval = errors.New("cannot remove yourself from a board; leave it instead")

	// ErrTaskNotFound is returned for task ids absent from the aggregate.
	ErrTaskNotFound = errors.New("task not found")

	// ErrListNotFound is returned for list ids absent from the aggregate.
	ErrListNotFound = errors.New("list not found")
)
