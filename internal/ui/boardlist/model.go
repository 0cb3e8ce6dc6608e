package boardlist

import (
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/taskflow/internal/keys"
	"github.com/nhle/taskflow/internal/model"
	"github.com/nhle/taskflow/internal/theme"
)

// SelectedBoardMsg is sent when the user opens a board.
type SelectedBoardMsg struct {
	BoardID string
}

// NewBoardMsg is sent when the user asks to create a board.
type NewBoardMsg struct{}

// BoardItem wraps a model.Board so it can be used in a bubbles/list.
type BoardItem struct {
	Board model.Board
	Role  model.Role
}

// FilterValue returns the string used for fuzzy filtering.
func (i BoardItem) FilterValue() string { return i.Board.Name }

// Title returns the board name.
func (i BoardItem) Title() string { return i.Board.Name }

// Description returns the board description.
func (i BoardItem) Description() string { return i.Board.Description }

// itemDelegate renders one board per line.
type itemDelegate struct{}

func (d itemDelegate) Height() int                             { return 1 }
func (d itemDelegate) Spacing() int                            { return 0 }
func (d itemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }

func (d itemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	bi, ok := item.(BoardItem)
	if !ok {
		return
	}

	role := theme.RoleStyle(string(bi.Role)).Render(string(bi.Role))
	members := lipgloss.NewStyle().
		Foreground(theme.ColorGray).
		Render(fmt.Sprintf("%d members", len(bi.Board.Members)))

	line := fmt.Sprintf("▤ %s %s  %s", bi.Board.Name, role, members)
	if bi.Board.Description != "" {
		line += theme.HelpStyle.Render("  " + bi.Board.Description)
	}

	if index == m.Index() {
		line = theme.SelectedItemStyle.Render(line)
	} else {
		line = theme.ListItemStyle.Render(line)
	}
	fmt.Fprint(w, line)
}

// Model is the board picker.
type Model struct {
	list    list.Model
	keys    *keys.KeyMap
	loading bool
	width   int
	height  int
}

// New creates an empty board picker.
func New(k *keys.KeyMap, width, height int) Model {
	l := list.New([]list.Item{}, itemDelegate{}, width, height)
	l.Title = "Boards"
	l.SetShowStatusBar(true)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.Styles.Title = theme.HeaderStyle

	return Model{
		list:   l,
		keys:   k,
		width:  width,
		height: height,
	}
}

// SetBoards replaces the listed boards. userID determines each role
// badge. The cursor stays on the same board when it still exists.
func (m *Model) SetBoards(boards []model.Board, userID string, loading bool) tea.Cmd {
	m.loading = loading

	var current string
	if bi, ok := m.list.SelectedItem().(BoardItem); ok {
		current = bi.Board.ID
	}

	items := make([]list.Item, len(boards))
	index := 0
	for i, b := range boards {
		items[i] = BoardItem{Board: b, Role: b.RoleOf(userID)}
		if b.ID == current {
			index = i
		}
	}
	cmd := m.list.SetItems(items)
	m.list.Select(index)
	return cmd
}

// Update handles messages for the board picker.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(msg, m.keys.Select):
			bi, ok := m.list.SelectedItem().(BoardItem)
			if !ok {
				return m, nil
			}
			return m, func() tea.Msg {
				return SelectedBoardMsg{BoardID: bi.Board.ID}
			}

		case key.Matches(msg, m.keys.NewBoard):
			return m, func() tea.Msg { return NewBoardMsg{} }
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View renders the board picker.
func (m Model) View() string {
	if len(m.list.Items()) == 0 {
		return m.renderEmptyState()
	}
	return m.list.View()
}

func (m Model) renderEmptyState() string {
	style := lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(theme.ColorGray)

	if m.loading {
		return style.Render("Loading boards...")
	}
	return style.Render(
		"No boards yet.\n\n" +
			"Press n to create one, or : then 'join <token>' to accept an invite.",
	)
}

// SetSize updates the list dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height)
}

// Filtering reports whether the filter input has focus.
func (m Model) Filtering() bool {
	return m.list.FilterState() == list.Filtering
}
