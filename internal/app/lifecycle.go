package app

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/nhle/taskflow/internal/model"
	"github.com/nhle/taskflow/internal/session"
)

// Realtime is the part of the realtime channel driven by the session.
type Realtime interface {
	Connect(ctx context.Context) error
	Close() error
	Connected() bool
	JoinUser(ctx context.Context, userID string) error
}

// BoardLoader is the part of the board store reset by the session.
type BoardLoader interface {
	LoadBoards(ctx context.Context) error
	Reset(ctx context.Context)
}

// FeedLoader is the part of the notification store reset by the session.
type FeedLoader interface {
	FetchPage(ctx context.Context, n int) error
	Reset()
}

// Identity resolves the signed-in user.
type Identity interface {
	User() (model.User, error)
}

// startupTimeout bounds the work done after a sign-in.
const startupTimeout = 30 * time.Second

// Lifecycle connects the realtime channel and loads the stores when a
// session starts, and tears them down when it ends. Transitions reported
// by the session listener run one at a time, in order, on a worker
// goroutine.
type Lifecycle struct {
	rt     Realtime
	boards BoardLoader
	notes  FeedLoader
	me     Identity
	logger *log.Logger

	wake chan struct{}
	stop chan struct{}
	done chan struct{}

	mu      sync.Mutex
	queue   []transition
	stopped bool
	// cancelStartup aborts the sign-in work in progress.
	cancelStartup context.CancelFunc
}

type transition struct {
	state  session.State
	reason session.Reason
}

// NewLifecycle creates a lifecycle handler and starts its worker. Call
// Stop to end it.
func NewLifecycle(rt Realtime, boards BoardLoader, notes FeedLoader, me Identity, logger *log.Logger) *Lifecycle {
	l := &Lifecycle{
		rt:     rt,
		boards: boards,
		notes:  notes,
		me:     me,
		logger: logger,
		wake:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go l.work()
	return l
}

// Listener returns the session listener. It never blocks: transitions are
// queued for the worker, and a sign-out cancels a sign-in still running.
func (l *Lifecycle) Listener() session.Listener {
	return func(state session.State, reason session.Reason) {
		if state != session.Authenticated && state != session.Anonymous {
			return
		}
		l.mu.Lock()
		if l.stopped {
			l.mu.Unlock()
			return
		}
		l.queue = append(l.queue, transition{state: state, reason: reason})
		if state == session.Anonymous && l.cancelStartup != nil {
			l.cancelStartup()
		}
		l.mu.Unlock()

		select {
		case l.wake <- struct{}{}:
		default:
		}
	}
}

// Stop ends the worker after the transition in progress. Queued
// transitions are dropped.
func (l *Lifecycle) Stop() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	l.queue = nil
	if l.cancelStartup != nil {
		l.cancelStartup()
	}
	l.mu.Unlock()

	close(l.stop)
	<-l.done
}

func (l *Lifecycle) work() {
	defer close(l.done)
	for {
		select {
		case <-l.stop:
			return
		case <-l.wake:
		}
		for {
			tr, ok := l.next()
			if !ok {
				break
			}
			l.handle(tr)
		}
	}
}

func (l *Lifecycle) next() (transition, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped || len(l.queue) == 0 {
		return transition{}, false
	}
	tr := l.queue[0]
	l.queue = l.queue[1:]
	return tr, true
}

func (l *Lifecycle) handle(tr transition) {
	switch tr.state {
	case session.Authenticated:
		ctx, cancel := context.WithCancel(context.Background())
		l.mu.Lock()
		l.cancelStartup = cancel
		l.mu.Unlock()

		l.SignedIn(ctx)

		l.mu.Lock()
		l.cancelStartup = nil
		l.mu.Unlock()
		cancel()
	case session.Anonymous:
		l.SignedOut(context.Background(), tr.reason)
	}
}

// SignedIn connects realtime, joins the user room and loads the boards
// and the first notification page. Failures are logged; the stores keep
// their own error state.
func (l *Lifecycle) SignedIn(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	user, err := l.me.User()
	if err != nil {
		l.logger.Warn("session ended before startup", "err", err)
		return
	}

	if l.rt != nil {
		if err := l.rt.Connect(ctx); err != nil {
			l.logger.Warn("realtime unavailable", "err", err)
		}
		if err := l.rt.JoinUser(ctx, user.ID); err != nil {
			l.logger.Debug("joining user room", "user", user.ID, "err", err)
		}
	}

	if err := l.boards.LoadBoards(ctx); err != nil {
		l.logger.Warn("loading boards", "err", err)
	}
	if err := l.notes.FetchPage(ctx, 1); err != nil {
		l.logger.Warn("loading notifications", "err", err)
	}
}

// SignedOut disconnects and clears every user-scoped store.
func (l *Lifecycle) SignedOut(ctx context.Context, reason session.Reason) {
	l.logger.Info("session ended", "reason", reason)
	if l.rt != nil {
		if err := l.rt.Close(); err != nil {
			l.logger.Debug("closing realtime channel", "err", err)
		}
	}
	l.boards.Reset(ctx)
	l.notes.Reset()
}
