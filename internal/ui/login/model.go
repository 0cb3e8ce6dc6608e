package login

import (
	"fmt"
	"net/mail"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/taskflow/internal/theme"
)

// SubmitMsg carries the credentials entered by the user.
type SubmitMsg struct {
	Register bool
	Name     string
	Email    string
	Password string
}

// QuitMsg is sent when the user aborts the form.
type QuitMsg struct{}

const (
	actionLogin    = "login"
	actionRegister = "register"
)

type formBindings struct {
	action   string
	name     string
	email    string
	password string
}

// Model is the sign-in screen.
type Model struct {
	form    *huh.Form
	fb      *formBindings
	err     string
	notice  string
	pending bool
	width   int
	height  int
}

// New creates the sign-in form.
func New(width, height int) Model {
	return Model{
		fb:     &formBindings{action: actionLogin},
		width:  width,
		height: height,
	}
}

// Start resets the form, keeping the last email.
func (m *Model) Start() tea.Cmd {
	m.fb.password = ""
	m.pending = false
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Welcome to taskflow").
				Options(
					huh.NewOption("Sign in", actionLogin),
					huh.NewOption("Create an account", actionRegister),
				).
				Value(&m.fb.action),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Name").
				Value(&m.fb.name).
				Validate(required("Name")),
		).WithHideFunc(func() bool { return m.fb.action != actionRegister }),
		huh.NewGroup(
			huh.NewInput().
				Title("Email").
				Placeholder("you@example.com").
				Value(&m.fb.email).
				Validate(validateEmail),
			huh.NewInput().
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Value(&m.fb.password).
				Validate(required("Password")),
		),
	).WithWidth(m.formWidth())
	return m.form.Init()
}

// SetError shows a failed attempt and restarts the form.
func (m *Model) SetError(msg string) tea.Cmd {
	m.err = msg
	return m.Start()
}

// SetNotice shows why the user was signed out.
func (m *Model) SetNotice(msg string) {
	m.notice = msg
}

// Update handles messages for the form.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if m.form == nil || m.pending {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		m.pending = true
		m.err = ""
		submit := SubmitMsg{
			Register: m.fb.action == actionRegister,
			Name:     strings.TrimSpace(m.fb.name),
			Email:    strings.TrimSpace(m.fb.email),
			Password: m.fb.password,
		}
		return m, func() tea.Msg { return submit }
	case huh.StateAborted:
		return m, func() tea.Msg { return QuitMsg{} }
	}
	return m, cmd
}

// View renders the sign-in screen.
func (m Model) View() string {
	var parts []string
	if m.notice != "" {
		parts = append(parts, theme.HelpStyle.Render(m.notice))
	}
	if m.err != "" {
		parts = append(parts, lipgloss.NewStyle().Foreground(theme.ColorRed).Render(m.err))
	}
	if m.pending {
		parts = append(parts, theme.HelpStyle.Render("Signing in..."))
	} else if m.form != nil {
		parts = append(parts, m.form.View())
	}

	content := lipgloss.JoinVertical(lipgloss.Left, parts...)
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center,
		theme.PanelStyle.Render(content))
}

// SetSize updates the form dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m Model) formWidth() int {
	w := m.width / 2
	if w < 40 {
		w = 40
	}
	if w > 70 {
		w = 70
	}
	return w
}

func required(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}

func validateEmail(s string) error {
	if _, err := mail.ParseAddress(strings.TrimSpace(s)); err != nil {
		return fmt.Errorf("enter a valid email address")
	}
	return nil
}
