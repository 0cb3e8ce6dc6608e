package model

import "time"

// Task is a card on a board. It lives in exactly one list at a time;
// moving it across lists reassigns ListID.
type Task struct {
	// ID is the server-assigned identifier.
	ID string `json:"_id"`

	// ListID is the owning list. Reassigned by drag-and-drop moves.
	ListID string `json:"listId"`

	// BoardID is the owning board.
	BoardID string `json:"boardId"`

	Title       string `json:"title"`
	Description string `json:"description,omitempty"`

	// Deadline is optional.
	Deadline *time.Time `json:"deadline,omitempty"`

	Completed bool `json:"completed"`

	// Position orders tasks within a list (ascending). It is unique per list
	// only after a server refetch; local drops may leave ties or gaps.
	Position float64 `json:"position"`

	// AssignedTo holds user IDs.
	AssignedTo []string `json:"assignedTo,omitempty"`
}

// Clone returns a deep copy of t.
func (t Task) Clone() Task {
	c := t
	if t.Deadline != nil {
		d := *t.Deadline
		c.Deadline = &d
	}
	if t.AssignedTo != nil {
		c.AssignedTo = append([]string(nil), t.AssignedTo...)
	}
	return c
}

// TaskInput is the body for task creation.
type TaskInput struct {
	ListID      string     `json:"listId"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Deadline    *time.Time `json:"deadline,omitempty"`
	Position    *float64   `json:"position,omitempty"`
	AssignedTo  []string   `json:"assignedTo,omitempty"`
}

// TaskPatch is a partial task update. Nil fields are left untouched.
type TaskPatch struct {
	ListID      *string    `json:"listId,omitempty"`
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Deadline    *time.Time `json:"deadline,omitempty"`
	Completed   *bool      `json:"completed,omitempty"`
	Position    *float64   `json:"position,omitempty"`
	AssignedTo  []string   `json:"assignedTo,omitempty"`
}

// OnlyCompletion reports whether the patch touches nothing but Completed.
func (p TaskPatch) OnlyCompletion() bool {
	return p.Completed != nil &&
		p.ListID == nil && p.Title == nil && p.Description == nil &&
		p.Deadline == nil && p.Position == nil && p.AssignedTo == nil
}

// Empty reports whether the patch changes nothing.
func (p TaskPatch) Empty() bool {
	return p.Completed == nil &&
		p.ListID == nil && p.Title == nil && p.Description == nil &&
		p.Deadline == nil && p.Position == nil && p.AssignedTo == nil
}

// Apply returns a copy of t with the patch fields applied.
func (p TaskPatch) Apply(t Task) Task {
	out := t.Clone()
	if p.ListID != nil {
		out.ListID = *p.ListID
	}
	if p.Title != nil {
		out.Title = *p.Title
	}
	if p.Description != nil {
		out.Description = *p.Description
	}
	if p.Deadline != nil {
		d := *p.Deadline
		out.Deadline = &d
	}
	if p.Completed != nil {
		out.Completed = *p.Completed
	}
	if p.Position != nil {
		out.Position = *p.Position
	}
	if p.AssignedTo != nil {
		out.AssignedTo = append([]string(nil), p.AssignedTo...)
	}
	return out
}
