package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nhle/taskflow/internal/board"
	"github.com/nhle/taskflow/internal/logging"
	"github.com/nhle/taskflow/internal/model"
	"github.com/nhle/taskflow/internal/notification"
	"github.com/nhle/taskflow/internal/session"
	"github.com/nhle/taskflow/tests/testutil"
)

type fakeRealtime struct {
	mu         sync.Mutex
	connected  bool
	connectErr error
	users      []string
	closes     int
	history    []string

	// gate, when set, blocks Connect until it is closed or ctx ends.
	gate chan struct{}
}

func (f *fakeRealtime) Connect(ctx context.Context) error {
	f.mu.Lock()
	f.history = append(f.history, "connect")
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeRealtime) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.closes++
	f.history = append(f.history, "close")
	return nil
}

func (f *fakeRealtime) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.history...)
}

func (f *fakeRealtime) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeRealtime) JoinUser(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users = append(f.users, userID)
	return nil
}

type anonymous struct{}

func (anonymous) User() (model.User, error) { return model.User{}, session.ErrNotAuthenticated }

var me = model.User{ID: "u1", Name: "Ada", Email: "ada@example.com"}

func newStores(t *testing.T) (*testutil.FakeGateway, *board.Store, *notification.Store) {
	t.Helper()
	gw := testutil.NewFakeGateway(me)
	gw.PutBoard(model.Board{
		ID:      "b1",
		Name:    "Roadmap",
		Members: []model.Member{{User: me, Role: model.RoleAdmin}},
	})
	gw.PutNotifications(model.Notification{ID: "n1", Message: "hello"})
	boards := board.New(gw, testutil.NewFakeBroadcaster(), testutil.StaticIdentity(me))
	notes := notification.New(gw)
	return gw, boards, notes
}

func TestSignedInConnectsAndLoads(t *testing.T) {
	_, boards, notes := newStores(t)
	rt := &fakeRealtime{}
	lc := NewLifecycle(rt, boards, notes, testutil.StaticIdentity(me), logging.Discard())
	defer lc.Stop()

	lc.SignedIn(context.Background())

	if !rt.Connected() {
		t.Fatal("expected realtime to be connected")
	}
	if len(rt.users) != 1 || rt.users[0] != "u1" {
		t.Fatalf("expected user room u1, got %v", rt.users)
	}
	if got := len(boards.Snapshot().Boards); got != 1 {
		t.Fatalf("expected 1 board, got %d", got)
	}
	if got := len(notes.Items()); got != 1 {
		t.Fatalf("expected 1 notification, got %d", got)
	}
}

func TestSignedInLoadsEvenWithoutRealtime(t *testing.T) {
	_, boards, notes := newStores(t)
	rt := &fakeRealtime{connectErr: errors.New("refused")}
	lc := NewLifecycle(rt, boards, notes, testutil.StaticIdentity(me), logging.Discard())
	defer lc.Stop()

	lc.SignedIn(context.Background())

	if rt.Connected() {
		t.Fatal("realtime should not be connected")
	}
	if got := len(boards.Snapshot().Boards); got != 1 {
		t.Fatalf("boards should load without realtime, got %d", got)
	}
}

func TestSignedInWithoutUserDoesNothing(t *testing.T) {
	gw, boards, notes := newStores(t)
	rt := &fakeRealtime{}
	lc := NewLifecycle(rt, boards, notes, anonymous{}, logging.Discard())
	defer lc.Stop()

	lc.SignedIn(context.Background())

	if rt.Connected() || len(gw.Calls()) != 0 {
		t.Fatalf("expected no work, got calls %v", gw.Calls())
	}
}

func TestSignedOutClearsStores(t *testing.T) {
	_, boards, notes := newStores(t)
	rt := &fakeRealtime{}
	lc := NewLifecycle(rt, boards, notes, testutil.StaticIdentity(me), logging.Discard())
	defer lc.Stop()
	ctx := context.Background()

	lc.SignedIn(ctx)
	if err := boards.SelectBoard(ctx, "b1"); err != nil {
		t.Fatalf("SelectBoard: %v", err)
	}

	lc.SignedOut(ctx, session.ReasonInactive)

	snap := boards.Snapshot()
	if len(snap.Boards) != 0 || snap.Selected != nil {
		t.Fatalf("expected empty board store, got %+v", snap)
	}
	if len(notes.Items()) != 0 {
		t.Fatal("expected empty feed")
	}
	if rt.Connected() || rt.closes != 1 {
		t.Fatalf("expected one close, got %d", rt.closes)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestTransitionsRunInOrder(t *testing.T) {
	_, boards, notes := newStores(t)
	rt := &fakeRealtime{gate: make(chan struct{})}
	lc := NewLifecycle(rt, boards, notes, testutil.StaticIdentity(me), logging.Discard())
	defer lc.Stop()
	listen := lc.Listener()

	listen(session.Authenticated, session.ReasonLogin)
	waitFor(t, "first connect", func() bool { return len(rt.calls()) == 1 })

	// Sign out while the sign-in is still connecting, then sign in again.
	listen(session.Anonymous, session.ReasonLogout)
	close(rt.gate)
	listen(session.Authenticated, session.ReasonLogin)

	waitFor(t, "second sign-in", func() bool {
		return len(rt.calls()) == 3 && rt.Connected() && len(notes.Items()) == 1
	})
	if got := strings.Join(rt.calls(), ","); got != "connect,close,connect" {
		t.Fatalf("unexpected transition order %s", got)
	}
	if got := len(boards.Snapshot().Boards); got != 1 {
		t.Fatalf("expected the new session's board, got %d", got)
	}
}

func TestListenerAfterStopIsIgnored(t *testing.T) {
	gw, boards, notes := newStores(t)
	rt := &fakeRealtime{}
	lc := NewLifecycle(rt, boards, notes, testutil.StaticIdentity(me), logging.Discard())
	listen := lc.Listener()
	lc.Stop()

	listen(session.Authenticated, session.ReasonLogin)
	time.Sleep(20 * time.Millisecond)
	if len(rt.calls()) != 0 || len(gw.Calls()) != 0 {
		t.Fatalf("expected no work after Stop, got %v %v", rt.calls(), gw.Calls())
	}
}
