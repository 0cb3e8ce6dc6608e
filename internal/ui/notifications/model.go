package notifications

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/taskflow/internal/keys"
	"github.com/nhle/taskflow/internal/notification"
	"github.com/nhle/taskflow/internal/theme"
)

// CloseMsg hides the panel.
type CloseMsg struct{}

// MarkReadMsg marks one notification read.
type MarkReadMsg struct{ ID string }

// MarkAllReadMsg marks the feed read.
type MarkAllReadMsg struct{}

// DeleteMsg removes one notification.
type DeleteMsg struct{ ID string }

// LoadMoreMsg fetches the next page.
type LoadMoreMsg struct{}

// Model is the notification panel.
type Model struct {
	keys   *keys.KeyMap
	snap   notification.Snapshot
	cursor int
	width  int
	height int
	now    func() time.Time
}

// New creates an empty panel.
func New(k *keys.KeyMap, width, height int) Model {
	return Model{keys: k, width: width, height: height, now: time.Now}
}

// SetSnapshot replaces the rendered feed.
func (m *Model) SetSnapshot(snap notification.Snapshot) {
	m.snap = snap
	if m.cursor >= len(snap.Items) {
		m.cursor = len(snap.Items) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

// Update handles key input.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	kmsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	items := m.snap.Items

	switch {
	case key.Matches(kmsg, m.keys.Back), key.Matches(kmsg, m.keys.Notifications):
		return m, func() tea.Msg { return CloseMsg{} }
	case key.Matches(kmsg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(kmsg, m.keys.Down):
		if m.cursor < len(items)-1 {
			m.cursor++
		} else if m.snap.HasMore {
			return m, func() tea.Msg { return LoadMoreMsg{} }
		}
	case key.Matches(kmsg, m.keys.LoadMore):
		if m.snap.HasMore {
			return m, func() tea.Msg { return LoadMoreMsg{} }
		}
	case key.Matches(kmsg, m.keys.MarkAll):
		return m, func() tea.Msg { return MarkAllReadMsg{} }
	case key.Matches(kmsg, m.keys.Select):
		if m.cursor < len(items) && !items[m.cursor].Read {
			id := items[m.cursor].ID
			return m, func() tea.Msg { return MarkReadMsg{ID: id} }
		}
	case key.Matches(kmsg, m.keys.Delete):
		if m.cursor < len(items) {
			id := items[m.cursor].ID
			return m, func() tea.Msg { return DeleteMsg{ID: id} }
		}
	}
	return m, nil
}

// View renders the feed.
func (m Model) View() string {
	title := theme.ColumnTitleStyle.Render(fmt.Sprintf("Notifications (%d unread)", m.snap.Unread))

	var lines []string
	if len(m.snap.Items) == 0 {
		text := "Nothing here yet."
		if m.snap.Loading {
			text = "Loading..."
		}
		lines = append(lines, theme.HelpStyle.Render(text))
	}
	for i, n := range m.snap.Items {
		mark := "●"
		if n.Read {
			mark = " "
		}
		line := fmt.Sprintf("%s %s  %s", mark, n.Message, relativeTime(m.now(), n.CreatedAt))
		if n.Read {
			line = theme.DimmedStyle.Render(line)
		}
		if i == m.cursor {
			line = theme.SelectedItemStyle.Render(line)
		} else {
			line = theme.ListItemStyle.Render(line)
		}
		lines = append(lines, line)
	}
	if m.snap.HasMore {
		lines = append(lines, theme.HelpStyle.Render("M to load more"))
	}

	content := lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(lines, "\n"))
	return theme.PanelStyle.
		Width(m.width - 4).
		Height(m.height - 4).
		Render(content)
}

// SetSize updates the panel dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

// relativeTime returns a human-friendly relative time string.
func relativeTime(now, t time.Time) string {
	if t.IsZero() {
		return ""
	}

	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return fmt.Sprintf("%dw ago", int(d.Hours()/24/7))
	}
}
