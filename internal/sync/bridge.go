// Package sync turns store change callbacks, realtime events and the
// session watchdog into Bubble Tea messages.
package sync

import (
	"context"
	gosync "sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"

	"github.com/nhle/taskflow/internal/logging"
	"github.com/nhle/taskflow/internal/realtime"
	"github.com/nhle/taskflow/internal/session"
)

// BoardsChangedMsg is sent when the board store changed.
type BoardsChangedMsg struct{}

// NotificationsChangedMsg is sent when the notification feed changed.
type NotificationsChangedMsg struct{}

// SessionChangedMsg is sent after every session transition.
type SessionChangedMsg struct {
	State  session.State
	Reason session.Reason
}

// RemoteEventMsg carries realtime events the UI surfaces as toasts.
type RemoteEventMsg struct {
	Event realtime.Event
}

// Notifier is a store that reports state changes.
type Notifier interface {
	OnChange(fn func())
}

// SessionSource is the part of the session store the bridge watches.
type SessionSource interface {
	OnChange(l session.Listener)
	CheckTimeout(ctx context.Context, now time.Time) (bool, error)
}

// Subscriber delivers realtime events.
type Subscriber interface {
	Subscribe(h realtime.Handler) func()
}

// checkTimeout bounds a single watchdog pass.
const checkTimeout = 10 * time.Second

// Bridge forwards background activity to the Bubble Tea runtime. Change
// messages are coalesced: while one is queued, further changes of the
// same kind are dropped.
type Bridge struct {
	sess     SessionSource
	boards   Notifier
	notes    Notifier
	events   Subscriber
	interval time.Duration
	now      func() time.Time
	logger   *log.Logger

	resultCh chan tea.Msg
	stopCh   chan struct{}

	mu          gosync.Mutex
	running     bool
	wired       bool
	pending     map[string]bool
	unsubscribe func()
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithInterval sets how often the session watchdog runs.
func WithInterval(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.interval = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(b *Bridge) { b.logger = l }
}

// WithClock overrides the watchdog's time source.
func WithClock(now func() time.Time) Option {
	return func(b *Bridge) { b.now = now }
}

// New creates a Bridge. Any source may be nil.
func New(sess SessionSource, boards, notes Notifier, events Subscriber, opts ...Option) *Bridge {
	b := &Bridge{
		sess:     sess,
		boards:   boards,
		notes:    notes,
		events:   events,
		interval: time.Minute,
		now:      time.Now,
		logger:   logging.Discard(),
		resultCh: make(chan tea.Msg, 16),
		pending:  make(map[string]bool),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Start registers the listeners on first use, starts the watchdog and returns a
// command that waits for the first message.
func (b *Bridge) Start() tea.Cmd {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return nil
	}
	b.running = true
	stop := make(chan struct{})
	b.stopCh = stop
	wire := !b.wired
	b.wired = true
	b.mu.Unlock()

	if wire {
		b.wire()
	}
	b.subscribe()
	if b.sess != nil {
		go b.watch(stop)
	}
	return b.waitForResult()
}

func (b *Bridge) wire() {
	if b.boards != nil {
		b.boards.OnChange(func() { b.sendCoalesced("boards", BoardsChangedMsg{}) })
	}
	if b.notes != nil {
		b.notes.OnChange(func() { b.sendCoalesced("notes", NotificationsChangedMsg{}) })
	}
	if b.sess != nil {
		b.sess.OnChange(func(state session.State, reason session.Reason) {
			b.send(SessionChangedMsg{State: state, Reason: reason})
		})
	}
}

// subscribe forwards the realtime events the UI shows as toasts.
func (b *Bridge) subscribe() {
	if b.events == nil {
		return
	}
	unsub := b.events.Subscribe(func(ev realtime.Event) {
		if _, ok := ev.(realtime.ListCreated); ok {
			b.send(RemoteEventMsg{Event: ev})
		}
	})
	b.mu.Lock()
	b.unsubscribe = unsub
	b.mu.Unlock()
}

// Stop halts the watchdog and the realtime subscription.
func (b *Bridge) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.running {
		return
	}
	close(b.stopCh)
	b.running = false
	if b.unsubscribe != nil {
		b.unsubscribe()
		b.unsubscribe = nil
	}
}

// watch runs the session watchdog until Stop.
func (b *Bridge) watch(stop <-chan struct{}) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			b.check()
		}
	}
}

func (b *Bridge) check() {
	ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
	defer cancel()

	ended, err := b.sess.CheckTimeout(ctx, b.now())
	if err != nil {
		b.logger.Warn("session check", "err", err)
	}
	if ended {
		b.logger.Info("session ended by watchdog")
	}
}

// sendCoalesced queues msg unless one of the same kind is still queued.
func (b *Bridge) sendCoalesced(kind string, msg tea.Msg) {
	b.mu.Lock()
	if b.pending[kind] {
		b.mu.Unlock()
		return
	}
	b.pending[kind] = true
	b.mu.Unlock()

	if !b.send(msg) {
		b.mu.Lock()
		b.pending[kind] = false
		b.mu.Unlock()
	}
}

// send queues msg without blocking and reports whether it was queued.
func (b *Bridge) send(msg tea.Msg) bool {
	select {
	case b.resultCh <- msg:
		return true
	default:
		b.logger.Debug("bridge queue full; dropping message")
		return false
	}
}

func (b *Bridge) waitForResult() tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-b.resultCh
		if !ok {
			return nil
		}
		b.mu.Lock()
		switch msg.(type) {
		case BoardsChangedMsg:
			b.pending["boards"] = false
		case NotificationsChangedMsg:
			b.pending["notes"] = false
		}
		b.mu.Unlock()
		return msg
	}
}

// WaitForNextResult returns a command that waits for the next message.
// Call it after handling each bridge message to keep listening.
func (b *Bridge) WaitForNextResult() tea.Cmd {
	return b.waitForResult()
}
