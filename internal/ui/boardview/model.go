package boardview

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/taskflow/internal/board"
	"github.com/nhle/taskflow/internal/keys"
	"github.com/nhle/taskflow/internal/model"
	"github.com/nhle/taskflow/internal/theme"
)

// BackMsg returns to the board picker.
type BackMsg struct{}

// ToggleTaskMsg flips a task's completion.
type ToggleTaskMsg struct{ TaskID string }

// DeleteTaskMsg deletes a task.
type DeleteTaskMsg struct{ TaskID string }

// MoveTaskMsg moves a task. A nil Position drops it at the end of ListID.
type MoveTaskMsg struct {
	TaskID   string
	ListID   string
	Position *float64
}

// NewTaskMsg asks for a task form on ListID.
type NewTaskMsg struct{ ListID string }

// EditTaskMsg asks for a task form prefilled with Task.
type EditTaskMsg struct{ Task model.Task }

// Model renders the selected board as columns, one per list.
type Model struct {
	keys        *keys.KeyMap
	snap        board.Snapshot
	col         int
	row         int
	showMembers bool
	width       int
	height      int
	now         func() time.Time
}

// New creates an empty board view.
func New(k *keys.KeyMap, width, height int) Model {
	return Model{keys: k, width: width, height: height, now: time.Now}
}

// SetSnapshot replaces the rendered state and keeps the cursor in range.
func (m *Model) SetSnapshot(snap board.Snapshot) {
	m.snap = snap
	m.clamp()
}

// FocusedList returns the list under the cursor.
func (m Model) FocusedList() (model.List, bool) {
	b := m.snap.Selected
	if b == nil || len(b.Lists) == 0 {
		return model.List{}, false
	}
	return b.Lists[m.col], true
}

// FocusedTask returns the task under the cursor.
func (m Model) FocusedTask() (model.Task, bool) {
	tasks := m.columnTasks(m.col)
	if m.row < 0 || m.row >= len(tasks) {
		return model.Task{}, false
	}
	return tasks[m.row], true
}

func (m Model) columnTasks(col int) []model.Task {
	b := m.snap.Selected
	if b == nil || col < 0 || col >= len(b.Lists) {
		return nil
	}
	return board.Ordered(b.Tasks, b.Lists[col].ID)
}

func (m *Model) clamp() {
	b := m.snap.Selected
	if b == nil || len(b.Lists) == 0 {
		m.col, m.row = 0, 0
		return
	}
	if m.col >= len(b.Lists) {
		m.col = len(b.Lists) - 1
	}
	if m.col < 0 {
		m.col = 0
	}
	n := len(m.columnTasks(m.col))
	if m.row >= n {
		m.row = n - 1
	}
	if m.row < 0 {
		m.row = 0
	}
}

// Update handles key input.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	kmsg, ok := msg.(tea.KeyMsg)
	if !ok || m.snap.Selected == nil {
		return m, nil
	}
	lists := m.snap.Selected.Lists

	switch {
	case key.Matches(kmsg, m.keys.Back):
		return m, func() tea.Msg { return BackMsg{} }

	case key.Matches(kmsg, m.keys.Members):
		m.showMembers = !m.showMembers
		return m, nil

	case key.Matches(kmsg, m.keys.MoveLeft), key.Matches(kmsg, m.keys.MoveRight):
		t, ok := m.FocusedTask()
		if !ok {
			return m, nil
		}
		target := m.col - 1
		if key.Matches(kmsg, m.keys.MoveRight) {
			target = m.col + 1
		}
		if target < 0 || target >= len(lists) {
			return m, nil
		}
		m.col = target
		m.row = len(m.columnTasks(target))
		listID := lists[target].ID
		return m, func() tea.Msg { return MoveTaskMsg{TaskID: t.ID, ListID: listID} }

	case key.Matches(kmsg, m.keys.MoveUp), key.Matches(kmsg, m.keys.MoveDown):
		tasks := m.columnTasks(m.col)
		target := m.row - 1
		if key.Matches(kmsg, m.keys.MoveDown) {
			target = m.row + 1
		}
		pos, ok := Reorder(tasks, m.row, target)
		if !ok {
			return m, nil
		}
		t := tasks[m.row]
		m.row = target
		listID := lists[m.col].ID
		return m, func() tea.Msg { return MoveTaskMsg{TaskID: t.ID, ListID: listID, Position: &pos} }

	case key.Matches(kmsg, m.keys.Left):
		m.col--
		m.clamp()
	case key.Matches(kmsg, m.keys.Right):
		m.col++
		m.clamp()
	case key.Matches(kmsg, m.keys.Up):
		m.row--
		m.clamp()
	case key.Matches(kmsg, m.keys.Down):
		m.row++
		m.clamp()

	case key.Matches(kmsg, m.keys.Toggle):
		if t, ok := m.FocusedTask(); ok {
			return m, func() tea.Msg { return ToggleTaskMsg{TaskID: t.ID} }
		}
	case key.Matches(kmsg, m.keys.Delete):
		if t, ok := m.FocusedTask(); ok {
			return m, func() tea.Msg { return DeleteTaskMsg{TaskID: t.ID} }
		}
	case key.Matches(kmsg, m.keys.EditTask), key.Matches(kmsg, m.keys.Select):
		if t, ok := m.FocusedTask(); ok {
			return m, func() tea.Msg { return EditTaskMsg{Task: t} }
		}
	case key.Matches(kmsg, m.keys.NewTask):
		if l, ok := m.FocusedList(); ok {
			return m, func() tea.Msg { return NewTaskMsg{ListID: l.ID} }
		}
	}
	return m, nil
}

// Reorder computes the position that places tasks[from] at index to
// within the same ordered list: midway between the new neighbours, or one
// past the end neighbour. It reports false when the move is a no-op.
func Reorder(tasks []model.Task, from, to int) (float64, bool) {
	if from < 0 || from >= len(tasks) || to < 0 || to >= len(tasks) || from == to {
		return 0, false
	}

	rest := make([]model.Task, 0, len(tasks)-1)
	rest = append(rest, tasks[:from]...)
	rest = append(rest, tasks[from+1:]...)

	switch {
	case to == 0:
		return rest[0].Position - 1, true
	case to >= len(rest):
		return rest[len(rest)-1].Position + 1, true
	default:
		return (rest[to-1].Position + rest[to].Position) / 2, true
	}
}

// View renders the columns.
func (m Model) View() string {
	b := m.snap.Selected
	if b == nil {
		msg := "Loading board..."
		if !m.snap.Loading {
			msg = "No board selected."
		}
		return lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(theme.ColorGray).
			Render(msg)
	}

	if len(b.Lists) == 0 {
		return lipgloss.NewStyle().
			Width(m.width).
			Padding(1, 2).
			Foreground(theme.ColorGray).
			Render(b.Name + " has no lists.\n\nPress : then 'list <name>' to add one.")
	}

	width := m.width
	if m.showMembers {
		width -= memberPanelWidth
	}
	colWidth := width/len(b.Lists) - 2
	if colWidth < 18 {
		colWidth = 18
	}

	cols := make([]string, len(b.Lists))
	for i, l := range b.Lists {
		cols[i] = m.renderColumn(i, l, colWidth)
	}
	view := lipgloss.JoinHorizontal(lipgloss.Top, cols...)

	if m.showMembers {
		view = lipgloss.JoinHorizontal(lipgloss.Top, view, m.renderMembers())
	}
	return view
}

func (m Model) renderColumn(i int, l model.List, width int) string {
	tasks := m.columnTasks(i)

	lines := []string{theme.ColumnTitleStyle.Render(fmt.Sprintf("%s (%d)", l.Name, len(tasks)))}
	for j, t := range tasks {
		lines = append(lines, m.renderTask(t, i == m.col && j == m.row, width-2))
	}
	if len(tasks) == 0 {
		lines = append(lines, theme.HelpStyle.Render("empty"))
	}

	style := theme.ColumnStyle
	if i == m.col {
		style = theme.FocusedColumnStyle
	}
	return style.Width(width).Render(strings.Join(lines, "\n"))
}

func (m Model) renderTask(t model.Task, focused bool, width int) string {
	box := "○"
	if t.Completed {
		box = "✓"
	}
	title := t.Title
	if limit := width - 4; limit > 1 && lipgloss.Width(title) > limit {
		if r := []rune(title); len(r) > limit-1 {
			title = string(r[:limit-1]) + "…"
		}
	}
	line := box + " " + title

	if t.Deadline != nil {
		due := t.Deadline.Format("Jan 02")
		if !t.Completed && t.Deadline.Before(m.now()) {
			line += theme.OverdueStyle.Render(" " + due)
		} else {
			line += theme.DeadlineStyle.Render(" " + due)
		}
	}

	switch {
	case m.snap.Pending[t.ID] != board.StateConfirmed:
		line = theme.PendingStyle.Render(line)
	case t.Completed:
		line = theme.DimmedStyle.Render(line)
	}

	if focused {
		return theme.SelectedItemStyle.Render(line)
	}
	return theme.ListItemStyle.Render(line)
}

const memberPanelWidth = 30

func (m Model) renderMembers() string {
	lines := []string{theme.ColumnTitleStyle.Render("Members")}
	for _, mem := range board.SortMembers(m.snap.Selected.Members) {
		name := mem.User.Name
		if name == "" {
			name = mem.User.Email
		}
		lines = append(lines, name+" "+theme.RoleStyle(string(mem.Role)).Render(string(mem.Role)))
	}
	return theme.ColumnStyle.Width(memberPanelWidth - 2).Render(strings.Join(lines, "\n"))
}

// SetSize updates the view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}
