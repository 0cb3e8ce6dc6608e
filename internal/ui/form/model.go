package form

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/taskflow/internal/model"
	"github.com/nhle/taskflow/internal/theme"
)

// TaskCreatedMsg is dispatched when the task form is submitted in create
// mode.
type TaskCreatedMsg struct {
	Input model.TaskInput
}

// TaskEditedMsg is dispatched when the task form is submitted in edit mode.
type TaskEditedMsg struct {
	TaskID string
	Patch  model.TaskPatch
}

// BoardCreatedMsg is dispatched when the board form is submitted.
type BoardCreatedMsg struct {
	Input model.BoardInput
}

// CancelMsg is dispatched when the user aborts the form.
type CancelMsg struct{}

type mode int

const (
	modeNewTask mode = iota
	modeEditTask
	modeNewBoard
)

const dateLayout = "2006-01-02"

// formBindings holds form field values on the heap so that huh's Value()
// pointers remain valid across Bubble Tea model copies.
type formBindings struct {
	title       string
	description string
	deadline    string
}

// Model is the task and board form.
type Model struct {
	form   *huh.Form
	fb     *formBindings
	mode   mode
	listID string
	editID string
	orig   model.Task
	width  int
	height int
}

// New creates an idle form.
func New(width, height int) Model {
	return Model{
		fb:     &formBindings{},
		width:  width,
		height: height,
	}
}

// StartTask opens the form for a new task on listID.
func (m *Model) StartTask(listID string) tea.Cmd {
	m.mode = modeNewTask
	m.listID = listID
	m.editID = ""
	*m.fb = formBindings{}
	m.form = m.buildTaskForm()
	return m.form.Init()
}

// StartEdit opens the form prefilled with t.
func (m *Model) StartEdit(t model.Task) tea.Cmd {
	m.mode = modeEditTask
	m.editID = t.ID
	m.orig = t
	*m.fb = formBindings{title: t.Title, description: t.Description}
	if t.Deadline != nil {
		m.fb.deadline = t.Deadline.Format(dateLayout)
	}
	m.form = m.buildTaskForm()
	return m.form.Init()
}

// StartBoard opens the form for a new board.
func (m *Model) StartBoard() tea.Cmd {
	m.mode = modeNewBoard
	*m.fb = formBindings{}
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Name").
				Placeholder("Sprint 1").
				Value(&m.fb.title).
				Validate(validateRequired("Name")),
			huh.NewText().
				Title("Description").
				Placeholder("Optional").
				Value(&m.fb.description),
		),
	).WithWidth(m.formWidth()).WithHeight(m.formHeight())
	return m.form.Init()
}

// Update handles messages for the form.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if m.form == nil {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		return m, m.handleSubmit()
	case huh.StateAborted:
		return m, func() tea.Msg { return CancelMsg{} }
	}
	return m, cmd
}

// View renders the form.
func (m Model) View() string {
	if m.form == nil {
		return ""
	}

	titleText := "New Task"
	switch m.mode {
	case modeEditTask:
		titleText = "Edit Task"
	case modeNewBoard:
		titleText = "New Board"
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	content := titleStyle.Render(titleText) + "\n" + m.form.View()

	return lipgloss.NewStyle().
		Padding(1, 2).
		Render(content)
}

// SetSize updates the form dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m *Model) buildTaskForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Title").
				Placeholder("What needs to be done?").
				Value(&m.fb.title).
				Validate(validateRequired("Title")),
			huh.NewText().
				Title("Description").
				Placeholder("Optional details...").
				Value(&m.fb.description),
			huh.NewInput().
				Title("Deadline").
				Placeholder("YYYY-MM-DD (optional)").
				Value(&m.fb.deadline).
				Validate(validateOptionalDate),
		),
	).WithWidth(m.formWidth()).WithHeight(m.formHeight())
}

func (m Model) handleSubmit() tea.Cmd {
	title := strings.TrimSpace(m.fb.title)
	description := strings.TrimSpace(m.fb.description)
	deadline := parseDate(m.fb.deadline)

	switch m.mode {
	case modeNewBoard:
		in := model.BoardInput{Name: title, Description: description}
		return func() tea.Msg { return BoardCreatedMsg{Input: in} }

	case modeEditTask:
		patch := model.TaskPatch{}
		if title != m.orig.Title {
			patch.Title = &title
		}
		if description != m.orig.Description {
			patch.Description = &description
		}
		if deadline != nil && (m.orig.Deadline == nil || !deadline.Equal(*m.orig.Deadline)) {
			patch.Deadline = deadline
		}
		id := m.editID
		return func() tea.Msg { return TaskEditedMsg{TaskID: id, Patch: patch} }

	default:
		in := model.TaskInput{
			ListID:      m.listID,
			Title:       title,
			Description: description,
			Deadline:    deadline,
		}
		return func() tea.Msg { return TaskCreatedMsg{Input: in} }
	}
}

func (m Model) formWidth() int {
	w := m.width - 4
	if w < 40 {
		w = 40
	}
	if w > 100 {
		w = 100
	}
	return w
}

func (m Model) formHeight() int {
	h := m.height - 4
	if h < 10 {
		h = 10
	}
	return h
}

func parseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil
	}
	return &t
}

func validateRequired(fieldName string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
		return nil
	}
}

func validateOptionalDate(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if _, err := time.Parse(dateLayout, s); err != nil {
		return fmt.Errorf("invalid date format, use YYYY-MM-DD")
	}
	return nil
}
