package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/nhle/taskflow/internal/api"
	"github.com/nhle/taskflow/internal/model"
	"github.com/nhle/taskflow/internal/realtime"
)

// FakeGateway is an in-memory board service. It implements the gateway
// interfaces of the board and notification stores and records every call.
type FakeGateway struct {
	mu sync.Mutex

	// Me is the user creating boards; they become the admin.
	Me model.User

	boards        map[string]*model.Board
	order         []string
	tasks         map[string][]model.Task
	invites       map[string]string
	notifications []model.Notification
	pageOverride  map[int]*model.NotificationPage

	fail  map[string]error
	gates map[string]chan struct{}
	calls []string
	next  int
}

// NewFakeGateway returns an empty fake.
func NewFakeGateway(me model.User) *FakeGateway {
	return &FakeGateway{
		Me:           me,
		boards:       make(map[string]*model.Board),
		tasks:        make(map[string][]model.Task),
		invites:      make(map[string]string),
		pageOverride: make(map[int]*model.NotificationPage),
		fail:         make(map[string]error),
		gates:        make(map[string]chan struct{}),
	}
}

// PutBoard stores a board and its tasks.
func (f *FakeGateway) PutBoard(b model.Board, tasks ...model.Task) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := b.Clone()
	cp.Tasks = nil
	if _, ok := f.boards[b.ID]; !ok {
		f.order = append(f.order, b.ID)
	}
	f.boards[b.ID] = &cp
	ts := make([]model.Task, len(tasks))
	for i, t := range tasks {
		t.BoardID = b.ID
		ts[i] = t.Clone()
	}
	f.tasks[b.ID] = ts
}

// PutInvite maps an invite token to a board.
func (f *FakeGateway) PutInvite(token, boardID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invites[token] = boardID
}

// PutNotifications replaces the stored notification feed, newest first.
func (f *FakeGateway) PutNotifications(ns ...model.Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifications = append([]model.Notification(nil), ns...)
}

// PutPage makes ListNotifications return page verbatim for its number.
func (f *FakeGateway) PutPage(page model.NotificationPage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pageOverride[page.CurrentPage] = &page
}

// Fail makes every later call to method return err. A nil err clears it.
func (f *FakeGateway) Fail(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.fail, method)
		return
	}
	f.fail[method] = err
}

// Reject makes method fail with a RequestFailure.
func (f *FakeGateway) Reject(method string, status int, message string) {
	f.Fail(method, &api.RequestFailure{Status: status, Message: message})
}

// Hold blocks calls to method until the returned release is called.
// The call is recorded before it blocks.
func (f *FakeGateway) Hold(method string) (release func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.gates[method] = ch
	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			if f.gates[method] == ch {
				delete(f.gates, method)
			}
			f.mu.Unlock()
			close(ch)
		})
	}
}

// Calls returns the recorded method names in order.
func (f *FakeGateway) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// CallCount returns how many times method was called.
func (f *FakeGateway) CallCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == method {
			n++
		}
	}
	return n
}

// Task returns the server-side copy of a task.
func (f *FakeGateway) Task(boardID, taskID string) (model.Task, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tasks[boardID] {
		if t.ID == taskID {
			return t.Clone(), true
		}
	}
	return model.Task{}, false
}

// enter records the call, waits on any gate, and returns the configured
// failure. The lock is held on return.
func (f *FakeGateway) enter(ctx context.Context, method string) error {
	f.mu.Lock()
	f.calls = append(f.calls, method)
	gate := f.gates[method]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			f.mu.Lock()
			return &api.NetworkFailure{Op: method, Err: ctx.Err()}
		}
	}

	f.mu.Lock()
	return f.fail[method]
}

func (f *FakeGateway) id(prefix string) string {
	f.next++
	return fmt.Sprintf("%s-%d", prefix, f.next)
}

func notFound(what, id string) error {
	return &api.RequestFailure{Status: 404, Message: fmt.Sprintf("%s %s not found", what, id)}
}

func (f *FakeGateway) ListBoards(ctx context.Context) ([]model.Board, error) {
	err := f.enter(ctx, "ListBoards")
	defer f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	out := make([]model.Board, 0, len(f.order))
	for _, id := range f.order {
		if b, ok := f.boards[id]; ok {
			out = append(out, b.Clone())
		}
	}
	return out, nil
}

func (f *FakeGateway) GetBoard(ctx context.Context, boardID string) (*model.Board, error) {
	err := f.enter(ctx, "GetBoard")
	defer f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	b, ok := f.boards[boardID]
	if !ok {
		return nil, notFound("board", boardID)
	}
	cp := b.Clone()
	return &cp, nil
}

func (f *FakeGateway) CreateBoard(ctx context.Context, in model.BoardInput) (*model.Board, error) {
	err := f.enter(ctx, "CreateBoard")
	defer f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	b := &model.Board{
		ID:          f.id("board"),
		Name:        in.Name,
		Description: in.Description,
		Members:     []model.Member{{User: f.Me, Role: model.RoleAdmin}},
	}
	f.boards[b.ID] = b
	f.order = append(f.order, b.ID)
	cp := b.Clone()
	return &cp, nil
}

func (f *FakeGateway) UpdateBoard(ctx context.Context, boardID string, in model.BoardInput) (*model.Board, error) {
	err := f.enter(ctx, "UpdateBoard")
	defer f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	b, ok := f.boards[boardID]
	if !ok {
		return nil, notFound("board", boardID)
	}
	b.Name = in.Name
	b.Description = in.Description
	cp := b.Clone()
	return &cp, nil
}

func (f *FakeGateway) DeleteBoard(ctx context.Context, boardID string) error {
	err := f.enter(ctx, "DeleteBoard")
	defer f.mu.Unlock()
	if err != nil {
		return err
	}
	delete(f.boards, boardID)
	delete(f.tasks, boardID)
	return nil
}

func (f *FakeGateway) AddList(ctx context.Context, boardID, name string) (*model.Board, error) {
	err := f.enter(ctx, "AddList")
	defer f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	b, ok := f.boards[boardID]
	if !ok {
		return nil, notFound("board", boardID)
	}
	b.Lists = append(b.Lists, model.List{ID: f.id("list"), BoardID: boardID, Name: name})
	cp := b.Clone()
	return &cp, nil
}

func (f *FakeGateway) DeleteList(ctx context.Context, boardID, listID string) (*model.Board, error) {
	err := f.enter(ctx, "DeleteList")
	defer f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	b, ok := f.boards[boardID]
	if !ok {
		return nil, notFound("board", boardID)
	}
	lists := b.Lists[:0:0]
	for _, l := range b.Lists {
		if l.ID != listID {
			lists = append(lists, l)
		}
	}
	b.Lists = lists
	tasks := f.tasks[boardID][:0:0]
	for _, t := range f.tasks[boardID] {
		if t.ListID != listID {
			tasks = append(tasks, t)
		}
	}
	f.tasks[boardID] = tasks
	cp := b.Clone()
	return &cp, nil
}

func (f *FakeGateway) InviteMember(ctx context.Context, boardID, email string, role model.Role) error {
	err := f.enter(ctx, "InviteMember")
	defer f.mu.Unlock()
	return err
}

func (f *FakeGateway) RemoveMember(ctx context.Context, boardID, userID string) error {
	err := f.enter(ctx, "RemoveMember")
	defer f.mu.Unlock()
	if err != nil {
		return err
	}
	b, ok := f.boards[boardID]
	if !ok {
		return notFound("board", boardID)
	}
	members := b.Members[:0:0]
	for _, m := range b.Members {
		if m.User.ID != userID {
			members = append(members, m)
		}
	}
	b.Members = members
	return nil
}

func (f *FakeGateway) AcceptInvite(ctx context.Context, token string) (*model.Board, error) {
	err := f.enter(ctx, "AcceptInvite")
	defer f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	boardID, ok := f.invites[token]
	if !ok {
		return nil, &api.RequestFailure{Status: 400, Message: "invalid or expired invite"}
	}
	b := f.boards[boardID]
	b.Members = append(b.Members, model.Member{User: f.Me, Role: model.RoleMember})
	cp := b.Clone()
	return &cp, nil
}

func (f *FakeGateway) ListTasks(ctx context.Context, boardID string) ([]model.Task, error) {
	err := f.enter(ctx, "ListTasks")
	defer f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	out := make([]model.Task, len(f.tasks[boardID]))
	for i, t := range f.tasks[boardID] {
		out[i] = t.Clone()
	}
	return out, nil
}

func (f *FakeGateway) CreateTask(ctx context.Context, boardID string, in model.TaskInput) (*model.Task, error) {
	err := f.enter(ctx, "CreateTask")
	defer f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	t := model.Task{
		ID:          f.id("task"),
		ListID:      in.ListID,
		BoardID:     boardID,
		Title:       in.Title,
		Description: in.Description,
		Deadline:    in.Deadline,
		AssignedTo:  in.AssignedTo,
	}
	if in.Position != nil {
		t.Position = *in.Position
	}
	f.tasks[boardID] = append(f.tasks[boardID], t)
	cp := t.Clone()
	return &cp, nil
}

func (f *FakeGateway) UpdateTask(ctx context.Context, boardID, taskID string, patch model.TaskPatch) (*model.Task, error) {
	err := f.enter(ctx, "UpdateTask")
	defer f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	for i, t := range f.tasks[boardID] {
		if t.ID == taskID {
			f.tasks[boardID][i] = patch.Apply(t)
			cp := f.tasks[boardID][i].Clone()
			return &cp, nil
		}
	}
	return nil, notFound("task", taskID)
}

func (f *FakeGateway) DeleteTask(ctx context.Context, boardID, taskID string) error {
	err := f.enter(ctx, "DeleteTask")
	defer f.mu.Unlock()
	if err != nil {
		return err
	}
	tasks := f.tasks[boardID][:0:0]
	for _, t := range f.tasks[boardID] {
		if t.ID != taskID {
			tasks = append(tasks, t)
		}
	}
	f.tasks[boardID] = tasks
	return nil
}

func (f *FakeGateway) ListNotifications(ctx context.Context, page, limit int) (*model.NotificationPage, error) {
	err := f.enter(ctx, "ListNotifications")
	defer f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if p, ok := f.pageOverride[page]; ok {
		cp := *p
		cp.Notifications = append([]model.Notification(nil), p.Notifications...)
		return &cp, nil
	}
	if limit <= 0 {
		limit = 20
	}
	total := (len(f.notifications) + limit - 1) / limit
	start := (page - 1) * limit
	end := start + limit
	if start > len(f.notifications) {
		start = len(f.notifications)
	}
	if end > len(f.notifications) {
		end = len(f.notifications)
	}
	return &model.NotificationPage{
		Notifications: append([]model.Notification(nil), f.notifications[start:end]...),
		TotalPages:    total,
		CurrentPage:   page,
	}, nil
}

func (f *FakeGateway) MarkNotificationRead(ctx context.Context, id string) error {
	err := f.enter(ctx, "MarkNotificationRead")
	defer f.mu.Unlock()
	if err != nil {
		return err
	}
	for i := range f.notifications {
		if f.notifications[i].ID == id {
			f.notifications[i].Read = true
		}
	}
	return nil
}

func (f *FakeGateway) MarkAllNotificationsRead(ctx context.Context) error {
	err := f.enter(ctx, "MarkAllNotificationsRead")
	defer f.mu.Unlock()
	if err != nil {
		return err
	}
	for i := range f.notifications {
		f.notifications[i].Read = true
	}
	return nil
}

func (f *FakeGateway) DeleteNotification(ctx context.Context, id string) error {
	err := f.enter(ctx, "DeleteNotification")
	defer f.mu.Unlock()
	if err != nil {
		return err
	}
	kept := f.notifications[:0:0]
	for _, n := range f.notifications {
		if n.ID != id {
			kept = append(kept, n)
		}
	}
	f.notifications = kept
	return nil
}

// FakeBroadcaster records realtime room changes and emits.
type FakeBroadcaster struct {
	mu     sync.Mutex
	joined map[string]bool
	log    []string
	tasks  []realtime.TaskChange
	lists  []realtime.ListChange
	boards []realtime.BoardChange
}

// NewFakeBroadcaster returns an empty recorder.
func NewFakeBroadcaster() *FakeBroadcaster {
	return &FakeBroadcaster{joined: make(map[string]bool)}
}

func (b *FakeBroadcaster) JoinBoard(ctx context.Context, boardID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.joined[boardID] = true
	b.log = append(b.log, "join:"+boardID)
	return nil
}

func (b *FakeBroadcaster) LeaveBoard(ctx context.Context, boardID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.joined, boardID)
	b.log = append(b.log, "leave:"+boardID)
	return nil
}

func (b *FakeBroadcaster) EmitTaskChanged(ctx context.Context, p realtime.TaskChange) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tasks = append(b.tasks, p)
	return nil
}

func (b *FakeBroadcaster) EmitListChanged(ctx context.Context, p realtime.ListChange) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lists = append(b.lists, p)
	return nil
}

func (b *FakeBroadcaster) EmitBoardChanged(ctx context.Context, p realtime.BoardChange) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.boards = append(b.boards, p)
	return nil
}

// Rooms returns the joined board rooms, sorted.
func (b *FakeBroadcaster) Rooms() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.joined))
	for id := range b.joined {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// RoomLog returns join/leave operations in order.
func (b *FakeBroadcaster) RoomLog() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.log...)
}

// TaskChanges returns the emitted task changes.
func (b *FakeBroadcaster) TaskChanges() []realtime.TaskChange {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]realtime.TaskChange(nil), b.tasks...)
}

// ListChanges returns the emitted list changes.
func (b *FakeBroadcaster) ListChanges() []realtime.ListChange {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]realtime.ListChange(nil), b.lists...)
}

// BoardChanges returns the emitted board changes.
func (b *FakeBroadcaster) BoardChanges() []realtime.BoardChange {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]realtime.BoardChange(nil), b.boards...)
}

// StaticIdentity is a fixed signed-in user.
type StaticIdentity model.User

// User implements the identity interfaces.
func (u StaticIdentity) User() (model.User, error) {
	return model.User(u), nil
}
