package model

// Role is a member's permission level on a board.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"

	// RoleGuest is never stored; it is derived for users absent from
	// a board's member list.
	RoleGuest Role = "guest"
)

// Board is a collection of lists and tasks shared between members.
// Tasks are only populated on the selected board aggregate; the boards
// collection carries summaries.
type Board struct {
	ID          string   `json:"_id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Members     []Member `json:"members,omitempty"`
	Lists       []List   `json:"lists,omitempty"`
	Tasks       []Task   `json:"tasks,omitempty"`
}

// Member pairs a user with their role on a board.
type Member struct {
	User UserRef `json:"user"`
	Role Role    `json:"role"`
}

// List is a column on a board. Lists are ordered by their position in
// Board.Lists; there is no stored rank.
type List struct {
	ID      string `json:"_id"`
	BoardID string `json:"boardId,omitempty"`
	Name    string `json:"name"`
}

// BoardInput is the body for board creation and update.
type BoardInput struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Clone returns a deep copy of b.
func (b Board) Clone() Board {
	c := b
	if b.Members != nil {
		c.Members = append([]Member(nil), b.Members...)
	}
	if b.Lists != nil {
		c.Lists = append([]List(nil), b.Lists...)
	}
	if b.Tasks != nil {
		c.Tasks = make([]Task, len(b.Tasks))
		for i, t := range b.Tasks {
			c.Tasks[i] = t.Clone()
		}
	}
	return c
}

// RoleOf returns the role of userID on the board, or RoleGuest when the
// user is not a member.
func (b Board) RoleOf(userID string) Role {
	if userID == "" {
		return RoleGuest
	}
	for _, m := range b.Members {
		if m.User.ID == userID {
			if m.Role == "" {
				return RoleGuest
			}
			return m.Role
		}
	}
	return RoleGuest
}

// HasList reports whether a list with the given ID exists on the board.
func (b Board) HasList(listID string) bool {
	for _, l := range b.Lists {
		if l.ID == listID {
			return true
		}
	}
	return false
}
