package app

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/taskflow/internal/model"
	"github.com/nhle/taskflow/internal/session"
	"github.com/nhle/taskflow/internal/ui/command"
)

// executeCommand runs a palette command. Usage errors are shown in the
// status bar without reaching a store.
func (m *Model) executeCommand(c command.CommandMsg) tea.Cmd {
	selected := m.boardSnap.Selected

	switch c.Name {
	case "board":
		name := c.Rest(0)
		if name == "" {
			return m.usage("board <name>")
		}
		return m.createBoard(model.BoardInput{Name: name})

	case "rename":
		name := c.Rest(0)
		if selected == nil || name == "" {
			return m.usage("rename <name> (with a board open)")
		}
		return m.renameBoard(selected.ID, name)

	case "delete-board":
		if selected == nil {
			return m.usage("delete-board (with a board open)")
		}
		return m.deleteBoard(selected.ID)

	case "list":
		name := c.Rest(0)
		if selected == nil || name == "" {
			return m.usage("list <name> (with a board open)")
		}
		return m.addList(name)

	case "remove-list":
		l, ok := m.boardView.FocusedList()
		if !ok {
			return m.usage("remove-list (focus a list first)")
		}
		return m.removeList(l.ID)

	case "invite":
		email := c.Arg(0)
		if selected == nil || email == "" {
			return m.usage("invite <email> [admin|member]")
		}
		role, err := parseRole(c.Arg(1))
		if err != nil {
			m.localErr = err.Error()
			return nil
		}
		return m.inviteMember(email, role)

	case "kick":
		if selected == nil || c.Arg(0) == "" {
			return m.usage("kick <email|id>")
		}
		userID, ok := findMember(selected.Members, c.Arg(0))
		if !ok {
			m.localErr = fmt.Sprintf("%s is not a member of this board", c.Arg(0))
			return nil
		}
		return m.removeMember(userID)

	case "join":
		if c.Arg(0) == "" {
			return m.usage("join <token>")
		}
		return m.acceptInvite(c.Arg(0))

	case "refresh", "sync":
		return m.refresh()

	case "logout":
		return m.logout(session.ReasonLogout)

	case "quit", "q":
		m.bridge.Stop()
		return tea.Quit

	default:
		m.localErr = fmt.Sprintf("unknown command %q", c.Name)
		return nil
	}
}

func (m *Model) usage(text string) tea.Cmd {
	m.localErr = "usage: " + text
	return nil
}

// parseRole maps an invite argument to a role. Empty means member.
func parseRole(s string) (model.Role, error) {
	switch strings.ToLower(s) {
	case "", string(model.RoleMember):
		return model.RoleMember, nil
	case string(model.RoleAdmin):
		return model.RoleAdmin, nil
	default:
		return "", fmt.Errorf("role must be admin or member, got %q", s)
	}
}

// findMember resolves a member by user id or case-insensitive email.
func findMember(members []model.Member, ref string) (string, bool) {
	for _, mem := range members {
		if mem.User.ID == ref || strings.EqualFold(mem.User.Email, ref) {
			return mem.User.ID, true
		}
	}
	return "", false
}
