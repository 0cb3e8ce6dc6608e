package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"

	"github.com/nhle/taskflow/internal/api"
	"github.com/nhle/taskflow/internal/board"
	"github.com/nhle/taskflow/internal/logging"
	"github.com/nhle/taskflow/internal/model"
	"github.com/nhle/taskflow/internal/notification"
	"github.com/nhle/taskflow/internal/realtime"
	"github.com/nhle/taskflow/internal/session"
	appsync "github.com/nhle/taskflow/internal/sync"
	"github.com/nhle/taskflow/internal/ui"
	"github.com/nhle/taskflow/internal/ui/boardlist"
	"github.com/nhle/taskflow/internal/ui/boardview"
	"github.com/nhle/taskflow/internal/ui/command"
	"github.com/nhle/taskflow/internal/ui/form"
	helpview "github.com/nhle/taskflow/internal/ui/help"
	"github.com/nhle/taskflow/internal/ui/login"
	"github.com/nhle/taskflow/internal/ui/notifications"
)

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewStartup ViewState = iota
	ViewLogin
	ViewBoards
	ViewBoard
	ViewForm
	ViewNotifications
	ViewHelp
	ViewCommand
)

// toastDuration is how long a toast stays on screen.
const toastDuration = 4 * time.Second

// toastExpiredMsg hides the toast with the matching sequence number.
type toastExpiredMsg struct{ seq int }

// Deps are the long-lived services the root model drives.
type Deps struct {
	Session  *session.Store
	Boards   *board.Store
	Notes    *notification.Store
	Bridge   *appsync.Bridge
	Realtime interface{ Connected() bool }
	Logger   *log.Logger
}

// Model is the root Bubble Tea model: it routes messages between the
// views and the stores and renders the frame.
type Model struct {
	currentView  ViewState
	previousView ViewState
	layout       ui.Layout
	ready        bool
	keys         *KeyMap

	sess   *session.Store
	boards *board.Store
	notes  *notification.Store
	bridge *appsync.Bridge
	rt     interface{ Connected() bool }
	logger *log.Logger

	loginView   login.Model
	boardList   boardlist.Model
	boardView   boardview.Model
	formView    form.Model
	notifyView  notifications.Model
	helpView    helpview.Model
	commandView command.Model

	user      model.User
	boardSnap board.Snapshot
	noteSnap  notification.Snapshot

	localErr string
	toast    string
	toastSeq int
}

// New creates the root model.
func New(d Deps) Model {
	k := DefaultKeyMap()
	logger := d.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return Model{
		currentView: ViewStartup,
		keys:        k,
		sess:        d.Session,
		boards:      d.Boards,
		notes:       d.Notes,
		bridge:      d.Bridge,
		rt:          d.Realtime,
		logger:      logger,
		loginView:   login.New(80, 24),
		boardList:   boardlist.New(k, 80, 24),
		boardView:   boardview.New(k, 80, 24),
		formView:    form.New(80, 24),
		notifyView:  notifications.New(k, 80, 24),
		helpView:    helpview.New(k, 80, 24),
		commandView: command.New(80, 24),
	}
}

// Init starts the bridge and restores the persisted session.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.bridge.Start(), m.rehydrate())
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		w, h := m.layout.ContentWidth(), m.layout.ContentHeight()
		m.loginView.SetSize(w, h)
		m.boardList.SetSize(w, h)
		m.boardView.SetSize(w, h)
		m.formView.SetSize(w, h)
		m.notifyView.SetSize(w, h)
		m.helpView.SetSize(w, h)
		m.commandView.SetSize(w, h)
		// Forward to active view so huh forms can calculate their layout.
		return m.updateActiveView(msg)

	case rehydratedMsg:
		if msg.err != nil {
			m.logger.Warn("restoring session", "err", msg.err)
		}
		if m.currentView != ViewStartup {
			return m, nil
		}
		if m.sess.State() == session.Authenticated {
			cmd := m.enterSignedIn()
			return m, cmd
		}
		cmd := m.showLogin("")
		return m, cmd

	case appsync.SessionChangedMsg:
		var cmd tea.Cmd
		switch msg.State {
		case session.Authenticated:
			cmd = m.enterSignedIn()
		case session.Anonymous:
			cmd = m.showLogin(signOutNotice(msg.Reason))
		}
		return m, tea.Batch(cmd, m.bridge.WaitForNextResult())

	case appsync.BoardsChangedMsg:
		cmd := m.syncBoards()
		return m, tea.Batch(cmd, m.bridge.WaitForNextResult())

	case appsync.NotificationsChangedMsg:
		m.noteSnap = m.notes.Snapshot()
		m.notifyView.SetSnapshot(m.noteSnap)
		return m, m.bridge.WaitForNextResult()

	case appsync.RemoteEventMsg:
		cmd := m.remoteToast(msg.Event)
		return m, tea.Batch(cmd, m.bridge.WaitForNextResult())

	case toastExpiredMsg:
		if msg.seq == m.toastSeq {
			m.toast = ""
		}
		return m, nil

	case authResultMsg:
		if msg.err != nil {
			cmd := m.loginView.SetError(api.Message(msg.err))
			return m, cmd
		}
		return m, nil

	case actionResultMsg:
		cmd := m.handleActionResult(msg)
		return m, cmd

	case boardCreatedResultMsg:
		if msg.err != nil {
			cmd := m.handleActionResult(actionResultMsg{op: "create board", err: msg.err})
			return m, cmd
		}
		m.currentView = ViewBoard
		return m, m.selectBoard(msg.board.ID)

	case login.SubmitMsg:
		return m, m.authenticate(msg.Register, msg.Name, msg.Email, msg.Password)

	case login.QuitMsg:
		m.bridge.Stop()
		return m, tea.Quit

	case boardlist.SelectedBoardMsg:
		m.currentView = ViewBoard
		return m, m.selectBoard(msg.BoardID)

	case boardlist.NewBoardMsg:
		cmd := m.openForm(m.formView.StartBoard)
		return m, cmd

	case boardview.BackMsg:
		m.currentView = ViewBoards
		return m, m.closeBoard()

	case boardview.ToggleTaskMsg:
		return m, m.toggleTask(msg.TaskID)

	case boardview.DeleteTaskMsg:
		return m, m.deleteTask(msg.TaskID)

	case boardview.MoveTaskMsg:
		return m, m.moveTask(msg.TaskID, msg.ListID, msg.Position)

	case boardview.NewTaskMsg:
		listID := msg.ListID
		cmd := m.openForm(func() tea.Cmd { return m.formView.StartTask(listID) })
		return m, cmd

	case boardview.EditTaskMsg:
		t := msg.Task
		cmd := m.openForm(func() tea.Cmd { return m.formView.StartEdit(t) })
		return m, cmd

	case form.TaskCreatedMsg:
		m.currentView = m.previousView
		return m, m.addTask(msg.Input)

	case form.TaskEditedMsg:
		m.currentView = m.previousView
		if msg.Patch.Empty() {
			return m, nil
		}
		return m, m.updateTask(msg.TaskID, msg.Patch)

	case form.BoardCreatedMsg:
		m.currentView = m.previousView
		return m, m.createBoard(msg.Input)

	case form.CancelMsg:
		m.currentView = m.previousView
		return m, nil

	case notifications.CloseMsg:
		m.currentView = m.previousView
		return m, nil

	case notifications.MarkReadMsg:
		return m, m.markRead(msg.ID)

	case notifications.MarkAllReadMsg:
		return m, m.markAllRead()

	case notifications.DeleteMsg:
		return m, m.deleteNotification(msg.ID)

	case notifications.LoadMoreMsg:
		return m, m.loadMoreNotifications()

	case command.CommandMsg:
		m.currentView = m.previousView
		cmd := m.executeCommand(msg)
		return m, cmd

	case tea.KeyMsg:
		if cmd, handled := m.handleGlobalKey(msg); handled {
			return m, cmd
		}
	}

	return m.updateActiveView(msg)
}

// handleGlobalKey processes keys that work across views. It reports
// whether the key was consumed.
func (m *Model) handleGlobalKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	if msg.String() == "ctrl+c" {
		m.bridge.Stop()
		return tea.Quit, true
	}

	signedIn := m.currentView != ViewStartup && m.currentView != ViewLogin
	if signedIn {
		m.sess.Touch()
	}

	switch m.currentView {
	case ViewStartup, ViewLogin, ViewForm:
		return nil, false
	case ViewBoards:
		if m.boardList.Filtering() {
			return nil, false
		}
	case ViewCommand:
		if key.Matches(msg, m.keys.Back) || key.Matches(msg, m.keys.Command) {
			m.currentView = m.previousView
			return nil, true
		}
		return nil, false
	}

	if key.Matches(msg, m.keys.Back) && m.errorText() != "" {
		m.clearErrors()
		return nil, true
	}

	switch {
	case key.Matches(msg, m.keys.Help):
		if m.currentView == ViewHelp {
			m.currentView = m.previousView
			return nil, true
		}
		m.open(ViewHelp)
		return nil, true

	case key.Matches(msg, m.keys.Command):
		m.open(ViewCommand)
		return m.commandView.Focus(), true

	case key.Matches(msg, m.keys.Logout):
		return m.logout(session.ReasonLogout), true
	}

	switch m.currentView {
	case ViewHelp:
		if key.Matches(msg, m.keys.Back) {
			m.currentView = m.previousView
			return nil, true
		}
	case ViewBoards:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.bridge.Stop()
			return tea.Quit, true
		case key.Matches(msg, m.keys.Refresh):
			return m.refresh(), true
		case key.Matches(msg, m.keys.Notifications):
			m.open(ViewNotifications)
			return nil, true
		}
	case ViewBoard:
		switch {
		case key.Matches(msg, m.keys.Refresh):
			return m.refresh(), true
		case key.Matches(msg, m.keys.Notifications):
			m.open(ViewNotifications)
			return nil, true
		}
	}
	return nil, false
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewLogin:
		m.loginView, cmd = m.loginView.Update(msg)
	case ViewBoards:
		m.boardList, cmd = m.boardList.Update(msg)
	case ViewBoard:
		m.boardView, cmd = m.boardView.Update(msg)
	case ViewForm:
		m.formView, cmd = m.formView.Update(msg)
	case ViewNotifications:
		m.notifyView, cmd = m.notifyView.Update(msg)
	case ViewHelp:
		m.helpView, cmd = m.helpView.Update(msg)
	case ViewCommand:
		m.commandView, cmd = m.commandView.Update(msg)
	}

	return m, cmd
}

func (m *Model) open(v ViewState) {
	if m.currentView == v {
		return
	}
	m.previousView = m.currentView
	m.currentView = v
}

func (m *Model) openForm(start func() tea.Cmd) tea.Cmd {
	m.open(ViewForm)
	return start()
}

func (m *Model) enterSignedIn() tea.Cmd {
	user, err := m.sess.User()
	if err != nil {
		return m.showLogin("")
	}
	m.user = user
	m.localErr = ""
	if m.currentView == ViewStartup || m.currentView == ViewLogin {
		m.currentView = ViewBoards
	}
	return m.syncBoards()
}

func (m *Model) showLogin(notice string) tea.Cmd {
	if m.currentView == ViewLogin && notice == "" {
		return nil
	}
	m.user = model.User{}
	m.localErr = ""
	m.toast = ""
	m.currentView = ViewLogin
	m.loginView.SetNotice(notice)
	return m.loginView.Start()
}

// syncBoards copies the board store state into the views. An open board
// that disappears (deleted, or the user was removed) returns to the list.
func (m *Model) syncBoards() tea.Cmd {
	m.boardSnap = m.boards.Snapshot()
	cmd := m.boardList.SetBoards(m.boardSnap.Boards, m.user.ID, m.boardSnap.Loading)
	m.boardView.SetSnapshot(m.boardSnap)

	if m.boardSnap.Selected == nil && !m.boardSnap.Loading {
		if m.currentView == ViewBoard {
			m.currentView = ViewBoards
		}
		if m.previousView == ViewBoard {
			m.previousView = ViewBoards
		}
	}
	return cmd
}

func (m *Model) remoteToast(ev realtime.Event) tea.Cmd {
	lc, ok := ev.(realtime.ListCreated)
	if !ok {
		return nil
	}
	if sel := m.boardSnap.Selected; sel == nil || sel.ID != lc.BoardID {
		return nil
	}
	return m.showToast(fmt.Sprintf("List %q was added", lc.List.Name))
}

func (m *Model) showToast(text string) tea.Cmd {
	m.toastSeq++
	m.toast = text
	seq := m.toastSeq
	return tea.Tick(toastDuration, func(time.Time) tea.Msg {
		return toastExpiredMsg{seq: seq}
	})
}

func (m *Model) handleActionResult(msg actionResultMsg) tea.Cmd {
	if msg.err == nil || errors.Is(msg.err, board.ErrStaleAggregate) {
		return nil
	}
	if api.IsUnauthorized(msg.err) {
		m.logger.Info("credential rejected", "op", msg.op)
		return m.logout(session.ReasonUnauthorized)
	}
	m.logger.Debug("action failed", "op", msg.op, "err", msg.err)
	m.localErr = fmt.Sprintf("%s: %s", msg.op, api.Message(msg.err))
	return nil
}

func (m Model) errorText() string {
	switch {
	case m.localErr != "":
		return m.localErr
	case m.boardSnap.Err != "":
		return m.boardSnap.Err
	default:
		return m.noteSnap.Err
	}
}

func (m *Model) clearErrors() {
	m.localErr = ""
	m.boardSnap.Err = ""
	m.noteSnap.Err = ""
	m.boards.ClearError()
}

// signOutNotice explains an involuntary sign-out.
func signOutNotice(reason session.Reason) string {
	switch reason {
	case session.ReasonExpired:
		return "Your session expired. Please sign in again."
	case session.ReasonInactive:
		return "You were signed out after a period of inactivity."
	case session.ReasonUnauthorized:
		return "The server rejected your session. Please sign in again."
	default:
		return ""
	}
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	header := m.layout.RenderHeader(m.headerTitle(), m.headerStatus())
	toast := m.layout.RenderToast(m.toast)
	statusBar := m.layout.RenderStatusBar(m.keyHints(), m.errorText())

	return m.layout.RenderWithFrame(header, m.renderContent(), toast, statusBar)
}

// renderContent returns the rendered string for the current active view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewStartup:
		return "Restoring session..."
	case ViewLogin:
		return m.loginView.View()
	case ViewBoards:
		return m.boardList.View()
	case ViewBoard:
		return m.boardView.View()
	case ViewForm:
		return m.formView.View()
	case ViewNotifications:
		return m.notifyView.View()
	case ViewHelp:
		return m.helpView.View()
	case ViewCommand:
		return m.commandView.View()
	default:
		return ""
	}
}

func (m Model) headerTitle() string {
	title := "taskflow"
	if sel := m.boardSnap.Selected; sel != nil && m.currentView != ViewBoards {
		title += " / " + sel.Name
		if m.boardSnap.Role != "" {
			title += " [" + string(m.boardSnap.Role) + "]"
		}
	}
	return title
}

func (m Model) headerStatus() string {
	if m.user.ID == "" {
		return ""
	}
	name := m.user.Name
	if name == "" {
		name = m.user.Email
	}
	status := name
	if n := m.noteSnap.Unread; n > 0 {
		status += fmt.Sprintf(" | %d new", n)
	}
	if m.rt != nil && !m.rt.Connected() {
		status += " | offline"
	}
	if m.boardSnap.Loading {
		status += " | syncing"
	}
	return status
}

// keyHints returns keyboard shortcut hints for the status bar.
func (m Model) keyHints() string {
	switch m.currentView {
	case ViewLogin:
		return "enter submit | ctrl+c quit"
	case ViewHelp:
		return "? close help | esc back"
	case ViewCommand:
		return "enter execute | esc back"
	case ViewForm:
		return "enter submit | esc cancel"
	case ViewNotifications:
		return "enter mark read | a mark all | d delete | M more | esc back"
	case ViewBoard:
		return "n new | e edit | x toggle | d delete | H/L move | J/K reorder | m members | : command | esc back"
	case ViewBoards:
		return "enter open | n new board | N notifications | r refresh | : command | ? help | q quit"
	default:
		return ""
	}
}
