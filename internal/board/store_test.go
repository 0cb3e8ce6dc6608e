package board_test

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/nhle/taskflow/internal/api"
	"github.com/nhle/taskflow/internal/board"
	"github.com/nhle/taskflow/internal/model"
	"github.com/nhle/taskflow/internal/realtime"
	"github.com/nhle/taskflow/tests/testutil"
)

var (
	admin  = model.User{ID: "u1", Name: "Ada"}
	member = model.User{ID: "u2", Name: "Max"}
	guest  = model.User{ID: "u3", Name: "Gus"}
)

// fixtureBoard has an empty "Todo" list and a "Doing" list holding t1
// and t2.
func fixtureBoard() (model.Board, []model.Task) {
	b := model.Board{
		ID:   "b1",
		Name: "Roadmap",
		Members: []model.Member{
			{User: admin, Role: model.RoleAdmin},
			{User: member, Role: model.RoleMember},
		},
		Lists: []model.List{
			{ID: "todo", BoardID: "b1", Name: "Todo"},
			{ID: "doing", BoardID: "b1", Name: "Doing"},
		},
	}
	tasks := []model.Task{
		{ID: "t1", ListID: "doing", Title: "Write docs", Position: 0},
		{ID: "t2", ListID: "doing", Title: "Ship", Position: 1},
	}
	return b, tasks
}

type harness struct {
	store *board.Store
	gw    *testutil.FakeGateway
	rt    *testutil.FakeBroadcaster
}

func newHarness(t *testing.T, me model.User) *harness {
	t.Helper()
	gw := testutil.NewFakeGateway(me)
	b, tasks := fixtureBoard()
	gw.PutBoard(b, tasks...)
	gw.PutBoard(model.Board{ID: "b2", Name: "Ops", Members: []model.Member{{User: admin, Role: model.RoleAdmin}}})
	rt := testutil.NewFakeBroadcaster()
	return &harness{
		store: board.New(gw, rt, testutil.StaticIdentity(me)),
		gw:    gw,
		rt:    rt,
	}
}

func (h *harness) selectBoard(t *testing.T, id string) {
	t.Helper()
	if err := h.store.SelectBoard(context.Background(), id); err != nil {
		t.Fatalf("SelectBoard(%s): %v", id, err)
	}
}

func (h *harness) task(t *testing.T, id string) (model.Task, bool) {
	t.Helper()
	snap := h.store.Snapshot()
	if snap.Selected == nil {
		t.Fatalf("no board selected")
	}
	for _, task := range snap.Selected.Tasks {
		if task.ID == id {
			return task, true
		}
	}
	return model.Task{}, false
}

func taskIDs(tasks []model.Task) []string {
	ids := make([]string, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	return ids
}

func waitUntil(t *testing.T, what string, cond func() bool) {
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

func TestLoadBoardsReplacesCollection(t *testing.T) {
	h := newHarness(t, admin)
	if err := h.store.LoadBoards(context.Background()); err != nil {
		t.Fatalf("LoadBoards: %v", err)
	}
	if got := len(h.store.Snapshot().Boards); got != 2 {
		t.Fatalf("expected 2 boards, got %d", got)
	}

	// A second load replaces rather than merges.
	if err := h.store.LoadBoards(context.Background()); err != nil {
		t.Fatalf("LoadBoards: %v", err)
	}
	if got := len(h.store.Snapshot().Boards); got != 2 {
		t.Fatalf("expected 2 boards after reload, got %d", got)
	}
}

func TestLoadBoardsFailureKeepsCollection(t *testing.T) {
	h := newHarness(t, admin)
	h.store.LoadBoards(context.Background())

	h.gw.Fail("ListBoards", &api.NetworkFailure{Op: "GET /api/boards", Err: errors.New("refused")})
	if err := h.store.LoadBoards(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	snap := h.store.Snapshot()
	if len(snap.Boards) != 2 {
		t.Fatalf("prior collection should survive, got %d boards", len(snap.Boards))
	}
	if snap.Err == "" || snap.Loading {
		t.Fatalf("expected error flag and loading cleared, got %+v", snap)
	}
}

func TestCreateBoardAppendsExactlyOne(t *testing.T) {
	h := newHarness(t, admin)
	h.store.LoadBoards(context.Background())
	before := len(h.store.Snapshot().Boards)

	created, err := h.store.CreateBoard(context.Background(), model.BoardInput{Name: "Sprint 1"})
	if err != nil {
		t.Fatalf("CreateBoard: %v", err)
	}

	boards := h.store.Snapshot().Boards
	if len(boards) != before+1 {
		t.Fatalf("expected %d boards, got %d", before+1, len(boards))
	}
	found := false
	for _, b := range boards {
		if b.Name == "Sprint 1" && b.ID == created.ID {
			found = true
		}
	}
	if !found {
		t.Fatalf("Sprint 1 missing from %+v", boards)
	}
}

func TestCreateBoardRequiresName(t *testing.T) {
	h := newHarness(t, admin)
	if _, err := h.store.CreateBoard(context.Background(), model.BoardInput{Name: "  "}); err == nil {
		t.Fatalf("expected error")
	}
	if h.gw.CallCount("CreateBoard") != 0 {
		t.Fatalf("no request expected")
	}
}

func TestSelectBoardMergesDetailAndTasks(t *testing.T) {
	h := newHarness(t, admin)
	h.selectBoard(t, "b1")

	snap := h.store.Snapshot()
	if snap.Selected == nil || snap.Selected.ID != "b1" {
		t.Fatalf("expected b1 selected, got %+v", snap.Selected)
	}
	if len(snap.Selected.Lists) != 2 || len(snap.Selected.Tasks) != 2 {
		t.Fatalf("expected lists and tasks merged, got %+v", snap.Selected)
	}
	if snap.Role != model.RoleAdmin {
		t.Fatalf("expected admin role, got %s", snap.Role)
	}
	if rooms := h.rt.Rooms(); len(rooms) != 1 || rooms[0] != "b1" {
		t.Fatalf("expected b1 room joined, got %v", rooms)
	}

	// Same id again is a no-op.
	h.selectBoard(t, "b1")
	if n := h.gw.CallCount("GetBoard"); n != 1 {
		t.Fatalf("expected 1 GetBoard, got %d", n)
	}
}

func TestSwitchingBoardsLeavesOldRoomFirst(t *testing.T) {
	h := newHarness(t, admin)
	h.selectBoard(t, "b1")
	h.selectBoard(t, "b2")

	log := h.rt.RoomLog()
	want := []string{"join:b1", "leave:b1", "join:b2"}
	if len(log) != len(want) {
		t.Fatalf("expected %v, got %v", want, log)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, log)
		}
	}
}

func TestConcurrentSelectSameBoardFetchesOnce(t *testing.T) {
	h := newHarness(t, admin)
	release := h.gw.Hold("GetBoard")

	var wg sync.WaitGroup
	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- h.store.SelectBoard(context.Background(), "b1")
		}()
	}
	waitUntil(t, "first fetch in flight", func() bool { return h.gw.CallCount("GetBoard") == 1 })
	time.Sleep(20 * time.Millisecond)
	release()
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("SelectBoard: %v", err)
		}
	}
	if n := h.gw.CallCount("GetBoard"); n != 1 {
		t.Fatalf("expected one fetch, got %d", n)
	}
	if log := h.rt.RoomLog(); len(log) != 1 {
		t.Fatalf("expected a single join, got %v", log)
	}
}

func TestStaleSelectionIsDiscarded(t *testing.T) {
	h := newHarness(t, admin)
	release := h.gw.Hold("GetBoard")

	first := make(chan error, 1)
	go func() { first <- h.store.SelectBoard(context.Background(), "b1") }()
	waitUntil(t, "b1 fetch in flight", func() bool { return h.gw.CallCount("GetBoard") == 1 })

	second := make(chan error, 1)
	go func() { second <- h.store.SelectBoard(context.Background(), "b2") }()
	waitUntil(t, "b2 fetch in flight", func() bool { return h.gw.CallCount("GetBoard") == 2 })

	release()
	if err := <-first; !errors.Is(err, board.ErrStaleAggregate) {
		t.Fatalf("expected ErrStaleAggregate for b1, got %v", err)
	}
	if err := <-second; err != nil {
		t.Fatalf("SelectBoard(b2): %v", err)
	}

	snap := h.store.Snapshot()
	if snap.Selected == nil || snap.Selected.ID != "b2" {
		t.Fatalf("expected b2 to win, got %+v", snap.Selected)
	}
	if rooms := h.rt.Rooms(); len(rooms) != 1 || rooms[0] != "b2" {
		t.Fatalf("expected only b2 room, got %v", rooms)
	}
}

func TestMoveOntoEmptyListStartsAtZero(t *testing.T) {
	h := newHarness(t, admin)
	h.selectBoard(t, "b1")

	if _, err := h.store.MoveTask(context.Background(), "t1", "todo", nil); err != nil {
		t.Fatalf("MoveTask: %v", err)
	}
	got, _ := h.task(t, "t1")
	if got.ListID != "todo" || got.Position != 0 {
		t.Fatalf("expected t1 in todo at 0, got %s at %v", got.ListID, got.Position)
	}
	if server, _ := h.gw.Task("b1", "t1"); server.ListID != "todo" {
		t.Fatalf("server not updated: %+v", server)
	}

	changes := h.rt.TaskChanges()
	if len(changes) != 1 || changes[0].Type != realtime.ChangeUpdated || changes[0].Task.ID != "t1" {
		t.Fatalf("expected one updated broadcast, got %+v", changes)
	}
}

func TestMoveToEndIgnoresMovedTask(t *testing.T) {
	h := newHarness(t, admin)
	h.selectBoard(t, "b1")

	// t2 is already last at 1; moving it to the end of its own list
	// keeps it at max(others)+1 = 1.
	if _, err := h.store.MoveTask(context.Background(), "t2", "doing", nil); err != nil {
		t.Fatalf("MoveTask: %v", err)
	}
	got, _ := h.task(t, "t2")
	if got.Position != 1 {
		t.Fatalf("expected position 1, got %v", got.Position)
	}

	if _, err := h.store.MoveTask(context.Background(), "t1", "doing", nil); err != nil {
		t.Fatalf("MoveTask: %v", err)
	}
	got, _ = h.task(t, "t1")
	if got.Position != 2 {
		t.Fatalf("expected t1 at 2, got %v", got.Position)
	}
	if order := taskIDs(h.store.OrderedTasks("doing")); order[0] != "t2" || order[1] != "t1" {
		t.Fatalf("unexpected order %v", order)
	}
}

func TestMoveIsVisibleBeforeServerAnswers(t *testing.T) {
	h := newHarness(t, admin)
	h.selectBoard(t, "b1")
	release := h.gw.Hold("UpdateTask")

	done := make(chan error, 1)
	go func() {
		_, err := h.store.MoveTask(context.Background(), "t1", "todo", nil)
		done <- err
	}()
	waitUntil(t, "move request in flight", func() bool { return h.gw.CallCount("UpdateTask") == 1 })

	got, _ := h.task(t, "t1")
	if got.ListID != "todo" {
		t.Fatalf("expected optimistic move, got %s", got.ListID)
	}
	if h.store.Snapshot().Pending["t1"] != board.StatePendingUpdate {
		t.Fatalf("expected t1 pending")
	}

	release()
	if err := <-done; err != nil {
		t.Fatalf("MoveTask: %v", err)
	}
	if _, pending := h.store.Snapshot().Pending["t1"]; pending {
		t.Fatalf("expected t1 confirmed")
	}
}

func TestFailedMoveRefetchesAndTaskStaysInOneList(t *testing.T) {
	h := newHarness(t, admin)
	h.selectBoard(t, "b1")
	h.gw.Reject("UpdateTask", 500, "boom")

	if _, err := h.store.MoveTask(context.Background(), "t1", "todo", nil); err == nil {
		t.Fatalf("expected error")
	}
	if n := h.gw.CallCount("GetBoard"); n != 2 {
		t.Fatalf("expected refetch, got %d GetBoard calls", n)
	}

	snap := h.store.Snapshot()
	count := 0
	for _, l := range snap.Selected.Lists {
		for _, task := range board.Ordered(snap.Selected.Tasks, l.ID) {
			if task.ID == "t1" {
				count++
				if l.ID != "doing" {
					t.Fatalf("expected t1 back in doing, found in %s", l.ID)
				}
			}
		}
	}
	if count != 1 {
		t.Fatalf("t1 appears in %d lists", count)
	}
	if snap.Err != "boom" {
		t.Fatalf("expected surfaced error, got %q", snap.Err)
	}
}

func TestMoveWithinListOrderIsPositionThenID(t *testing.T) {
	h := newHarness(t, admin)
	h.selectBoard(t, "b1")
	ctx := context.Background()
	for _, title := range []string{"a", "b", "c", "d"} {
		if _, err := h.store.AddTask(ctx, model.TaskInput{ListID: "doing", Title: title}); err != nil {
			t.Fatalf("AddTask: %v", err)
		}
	}

	rng := rand.New(rand.NewSource(7))
	snap := h.store.Snapshot()
	ids := taskIDs(board.Ordered(snap.Selected.Tasks, "doing"))
	for i := 0; i < 50; i++ {
		id := ids[rng.Intn(len(ids))]
		var pos *float64
		if rng.Intn(3) > 0 {
			p := float64(rng.Intn(4))
			pos = &p
		}
		if _, err := h.store.MoveTask(ctx, id, "doing", pos); err != nil {
			t.Fatalf("MoveTask: %v", err)
		}

		ordered := h.store.OrderedTasks("doing")
		for j := 1; j < len(ordered); j++ {
			prev, cur := ordered[j-1], ordered[j]
			if prev.Position > cur.Position || (prev.Position == cur.Position && prev.ID > cur.ID) {
				t.Fatalf("step %d: order violated at %d: %+v", i, j, ordered)
			}
		}
	}
}

func TestOrderedTieBreakByID(t *testing.T) {
	tasks := []model.Task{
		{ID: "c", ListID: "l", Position: 1},
		{ID: "a", ListID: "l", Position: 1},
		{ID: "b", ListID: "l", Position: 0},
		{ID: "x", ListID: "other", Position: 0},
	}
	got := taskIDs(board.Ordered(tasks, "l"))
	want := []string{"b", "a", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestRemoveListDropsTasksBeforeServerAnswers(t *testing.T) {
	h := newHarness(t, admin)
	h.selectBoard(t, "b1")
	release := h.gw.Hold("DeleteList")

	done := make(chan error, 1)
	go func() { done <- h.store.RemoveList(context.Background(), "doing") }()
	waitUntil(t, "delete in flight", func() bool { return h.gw.CallCount("DeleteList") == 1 })

	snap := h.store.Snapshot()
	if snap.Selected.HasList("doing") {
		t.Fatalf("list should be gone before the response")
	}
	if len(snap.Selected.Tasks) != 0 {
		t.Fatalf("tasks of the list should be gone, got %v", taskIDs(snap.Selected.Tasks))
	}

	release()
	if err := <-done; err != nil {
		t.Fatalf("RemoveList: %v", err)
	}
	changes := h.rt.ListChanges()
	if len(changes) != 1 || changes[0].ListID != "doing" || changes[0].Type != realtime.ChangeDeleted {
		t.Fatalf("expected list deleted broadcast, got %+v", changes)
	}
}

func TestRemoveListFailureRefetches(t *testing.T) {
	h := newHarness(t, admin)
	h.selectBoard(t, "b1")
	h.gw.Reject("DeleteList", 500, "nope")

	if err := h.store.RemoveList(context.Background(), "doing"); err == nil {
		t.Fatalf("expected error")
	}
	snap := h.store.Snapshot()
	if !snap.Selected.HasList("doing") || len(snap.Selected.Tasks) != 2 {
		t.Fatalf("expected list and tasks restored by refetch, got %+v", snap.Selected)
	}
}

func TestAddListIsServerConfirmedAndDeduplicated(t *testing.T) {
	h := newHarness(t, admin)
	h.selectBoard(t, "b1")

	if err := h.store.AddList(context.Background(), "Done"); err != nil {
		t.Fatalf("AddList: %v", err)
	}
	lists := h.store.Snapshot().Selected.Lists
	if len(lists) != 3 || lists[2].Name != "Done" {
		t.Fatalf("expected Done appended, got %+v", lists)
	}

	// The broadcast of the same creation arrives afterwards.
	h.store.Apply(realtime.ListCreated{BoardID: "b1", List: lists[2]})
	if got := len(h.store.Snapshot().Selected.Lists); got != 3 {
		t.Fatalf("echo should be ignored, got %d lists", got)
	}
}

func TestListCreatedWithSameNameIsIgnored(t *testing.T) {
	h := newHarness(t, admin)
	h.selectBoard(t, "b1")

	h.store.Apply(realtime.ListCreated{BoardID: "b1", List: model.List{ID: "other-id", Name: "Todo"}})
	if got := len(h.store.Snapshot().Selected.Lists); got != 2 {
		t.Fatalf("expected name guard to ignore list, got %d lists", got)
	}

	h.store.Apply(realtime.ListCreated{BoardID: "b1", List: model.List{ID: "l9", Name: "Review"}})
	h.store.Apply(realtime.ListCreated{BoardID: "b1", List: model.List{ID: "l9", Name: "Review"}})
	if got := len(h.store.Snapshot().Selected.Lists); got != 3 {
		t.Fatalf("expected exactly one new list, got %d", got)
	}
}

func TestTaskCreatedIsIdempotent(t *testing.T) {
	h := newHarness(t, admin)
	h.selectBoard(t, "b1")

	h.store.Apply(realtime.TaskCreated{BoardID: "b1", Task: model.Task{ID: "t1", ListID: "todo", Title: "dup"}})
	got, _ := h.task(t, "t1")
	if got.Title != "Write docs" || got.ListID != "doing" {
		t.Fatalf("existing task should be untouched, got %+v", got)
	}

	fresh := model.Task{ID: "t9", ListID: "todo", Title: "New"}
	h.store.Apply(realtime.TaskCreated{BoardID: "b1", Task: fresh})
	h.store.Apply(realtime.TaskCreated{BoardID: "b1", Task: fresh})
	if n := len(h.store.Snapshot().Selected.Tasks); n != 3 {
		t.Fatalf("expected 3 tasks, got %d", n)
	}
}

func TestRemoteUpdatesLastAppliedWins(t *testing.T) {
	h := newHarness(t, admin)
	h.selectBoard(t, "b1")

	stateA := model.Task{ID: "t1", ListID: "doing", Title: "A"}
	stateB := model.Task{ID: "t1", ListID: "doing", Title: "B"}

	// B was produced later but is delivered first.
	h.store.Apply(realtime.TaskUpdated{BoardID: "b1", Task: stateB})
	h.store.Apply(realtime.TaskUpdated{BoardID: "b1", Task: stateA})

	got, _ := h.task(t, "t1")
	if got.Title != "A" {
		t.Fatalf("expected last applied (A), got %q", got.Title)
	}
}

func TestTaskDeletedAndListDeletedEvents(t *testing.T) {
	h := newHarness(t, admin)
	h.selectBoard(t, "b1")

	h.store.Apply(realtime.TaskDeleted{BoardID: "b1", TaskID: "t1"})
	h.store.Apply(realtime.TaskDeleted{BoardID: "b1", TaskID: "t1"})
	if _, ok := h.task(t, "t1"); ok {
		t.Fatalf("t1 should be removed")
	}

	h.store.Apply(realtime.ListDeleted{BoardID: "b1", ListID: "doing"})
	snap := h.store.Snapshot()
	if snap.Selected.HasList("doing") || len(snap.Selected.Tasks) != 0 {
		t.Fatalf("expected doing and its tasks removed, got %+v", snap.Selected)
	}
}

func TestEventsForOtherBoardsAreIgnored(t *testing.T) {
	h := newHarness(t, admin)
	h.selectBoard(t, "b1")

	h.store.Apply(realtime.TaskDeleted{BoardID: "b2", TaskID: "t1"})
	h.store.Apply(realtime.TaskCreated{BoardID: "b2", Task: model.Task{ID: "x", ListID: "todo"}})
	h.store.Apply(realtime.ListCreated{BoardID: "b2", List: model.List{ID: "x", Name: "X"}})

	snap := h.store.Snapshot()
	if len(snap.Selected.Tasks) != 2 || len(snap.Selected.Lists) != 2 {
		t.Fatalf("foreign events leaked into b1: %+v", snap.Selected)
	}
}

func TestMemberCannotDeleteTask(t *testing.T) {
	h := newHarness(t, member)
	h.selectBoard(t, "b1")

	err := h.store.DeleteTask(context.Background(), "t1")
	if !board.IsPermissionDenied(err) {
		t.Fatalf("expected PermissionDenied, got %v", err)
	}
	if n := h.gw.CallCount("DeleteTask"); n != 0 {
		t.Fatalf("no request expected, got %d", n)
	}
	if n := len(h.store.Snapshot().Selected.Tasks); n != 2 {
		t.Fatalf("task set changed: %d tasks", n)
	}
}

func TestRoleGate(t *testing.T) {
	ctx := context.Background()

	h := newHarness(t, member)
	h.selectBoard(t, "b1")
	if _, err := h.store.ToggleComplete(ctx, "t1"); err != nil {
		t.Fatalf("member toggle: %v", err)
	}
	if _, err := h.store.UpdateTask(ctx, "t1", model.TaskPatch{Title: strPtr("x")}); !board.IsPermissionDenied(err) {
		t.Fatalf("member edit should be refused, got %v", err)
	}
	if _, err := h.store.MoveTask(ctx, "t1", "todo", nil); !board.IsPermissionDenied(err) {
		t.Fatalf("member move should be refused, got %v", err)
	}
	if err := h.store.AddList(ctx, "X"); !board.IsPermissionDenied(err) {
		t.Fatalf("member add list should be refused, got %v", err)
	}

	g := newHarness(t, guest)
	g.selectBoard(t, "b1")
	if g.store.CurrentRole() != model.RoleGuest {
		t.Fatalf("expected guest role")
	}
	if _, err := g.store.ToggleComplete(ctx, "t1"); !board.IsPermissionDenied(err) {
		t.Fatalf("guest toggle should be refused, got %v", err)
	}
	if err := g.store.InviteMember(ctx, "x@y.z", model.RoleMember); !board.IsPermissionDenied(err) {
		t.Fatalf("guest invite should be refused, got %v", err)
	}
	if n := g.gw.CallCount("UpdateTask") + g.gw.CallCount("InviteMember"); n != 0 {
		t.Fatalf("guest issued %d requests", n)
	}
}

func TestUpdateTaskFailureRestoresOriginal(t *testing.T) {
	h := newHarness(t, admin)
	h.selectBoard(t, "b1")
	h.gw.Reject("UpdateTask", 422, "title too long")

	if _, err := h.store.UpdateTask(context.Background(), "t1", model.TaskPatch{Title: strPtr("New title")}); err == nil {
		t.Fatalf("expected error")
	}
	got, _ := h.task(t, "t1")
	if got.Title != "Write docs" {
		t.Fatalf("expected rollback to original, got %q", got.Title)
	}
	if n := h.gw.CallCount("GetBoard"); n != 1 {
		t.Fatalf("rollback should not refetch, got %d GetBoard calls", n)
	}
	if len(h.rt.TaskChanges()) != 0 {
		t.Fatalf("failed update must not broadcast")
	}
}

func TestUpdateTaskSuccessUsesServerValue(t *testing.T) {
	h := newHarness(t, admin)
	h.selectBoard(t, "b1")

	updated, err := h.store.UpdateTask(context.Background(), "t1", model.TaskPatch{Title: strPtr("Renamed")})
	if err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}
	got, _ := h.task(t, "t1")
	if got.Title != "Renamed" || updated.Title != "Renamed" {
		t.Fatalf("unexpected task %+v", got)
	}
	changes := h.rt.TaskChanges()
	if len(changes) != 1 || changes[0].BoardID != "b1" || changes[0].Type != realtime.ChangeUpdated {
		t.Fatalf("unexpected broadcasts %+v", changes)
	}
}

func TestRemoteUpdateDuringPendingBecomesRollbackBaseline(t *testing.T) {
	h := newHarness(t, admin)
	h.selectBoard(t, "b1")
	h.gw.Reject("UpdateTask", 500, "fail")
	release := h.gw.Hold("UpdateTask")

	done := make(chan error, 1)
	go func() {
		_, err := h.store.UpdateTask(context.Background(), "t1", model.TaskPatch{Title: strPtr("Mine")})
		done <- err
	}()
	waitUntil(t, "update in flight", func() bool { return h.gw.CallCount("UpdateTask") == 1 })

	h.store.Apply(realtime.TaskUpdated{BoardID: "b1", Task: model.Task{ID: "t1", ListID: "doing", Title: "Theirs"}})
	if got, _ := h.task(t, "t1"); got.Title != "Mine" {
		t.Fatalf("local value should stay visible while pending, got %q", got.Title)
	}

	release()
	<-done
	if got, _ := h.task(t, "t1"); got.Title != "Theirs" {
		t.Fatalf("expected rollback to remote value, got %q", got.Title)
	}
}

func TestDeleteTaskSuccessAndBroadcast(t *testing.T) {
	h := newHarness(t, admin)
	h.selectBoard(t, "b1")

	if err := h.store.DeleteTask(context.Background(), "t1"); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	if _, ok := h.task(t, "t1"); ok {
		t.Fatalf("t1 should be gone")
	}
	changes := h.rt.TaskChanges()
	if len(changes) != 1 || changes[0].Type != realtime.ChangeDeleted || changes[0].TaskID != "t1" {
		t.Fatalf("unexpected broadcasts %+v", changes)
	}
}

func TestDeleteTaskFailureRefetches(t *testing.T) {
	h := newHarness(t, admin)
	h.selectBoard(t, "b1")
	h.gw.Reject("DeleteTask", 500, "nope")

	if err := h.store.DeleteTask(context.Background(), "t1"); err == nil {
		t.Fatalf("expected error")
	}
	if _, ok := h.task(t, "t1"); !ok {
		t.Fatalf("t1 should be restored")
	}
	if n := h.gw.CallCount("GetBoard"); n != 2 {
		t.Fatalf("expected refetch, got %d", n)
	}
}

func TestDeleteTaskFailureWithoutRefetchRestoresLocally(t *testing.T) {
	h := newHarness(t, admin)
	h.selectBoard(t, "b1")
	h.gw.Reject("DeleteTask", 500, "nope")
	h.gw.Fail("GetBoard", &api.NetworkFailure{Op: "GET", Err: errors.New("down")})

	h.store.DeleteTask(context.Background(), "t1")
	if _, ok := h.task(t, "t1"); !ok {
		t.Fatalf("t1 should reappear when the refetch also fails")
	}
}

func TestAddTaskInsertsOnceWhenEchoArrivesFirst(t *testing.T) {
	h := newHarness(t, admin)
	h.selectBoard(t, "b1")
	release := h.gw.Hold("CreateTask")

	done := make(chan *model.Task, 1)
	go func() {
		created, err := h.store.AddTask(context.Background(), model.TaskInput{ListID: "todo", Title: "Echoed"})
		if err != nil {
			t.Errorf("AddTask: %v", err)
		}
		done <- created
	}()
	waitUntil(t, "create in flight", func() bool { return h.gw.CallCount("CreateTask") == 1 })
	if n := len(h.store.Snapshot().Selected.Tasks); n != 2 {
		t.Fatalf("nothing should render before the server answers, got %d", n)
	}

	// The fake assigns ids sequentially; the first is task-1.
	h.store.Apply(realtime.TaskCreated{BoardID: "b1", Task: model.Task{ID: "task-1", ListID: "todo", Title: "Echoed"}})
	release()
	created := <-done

	if created == nil || created.ID != "task-1" {
		t.Fatalf("unexpected created task %+v", created)
	}
	count := 0
	for _, task := range h.store.Snapshot().Selected.Tasks {
		if task.ID == "task-1" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected task-1 once, got %d", count)
	}
	changes := h.rt.TaskChanges()
	if len(changes) != 1 || changes[0].Type != realtime.ChangeCreated {
		t.Fatalf("expected created broadcast, got %+v", changes)
	}
}

func TestAddTaskDefaultsToEndOfList(t *testing.T) {
	h := newHarness(t, admin)
	h.selectBoard(t, "b1")

	created, err := h.store.AddTask(context.Background(), model.TaskInput{ListID: "doing", Title: "Last"})
	if err != nil {
		t.Fatalf("AddTask: %v", err)
	}
	if created.Position != 2 {
		t.Fatalf("expected position 2, got %v", created.Position)
	}
	if _, err := h.store.AddTask(context.Background(), model.TaskInput{ListID: "missing", Title: "x"}); !errors.Is(err, board.ErrListNotFound) {
		t.Fatalf("expected ErrListNotFound, got %v", err)
	}
}

func TestRemoveSelfIsRefusedWithoutRequest(t *testing.T) {
	h := newHarness(t, admin)
	h.selectBoard(t, "b1")

	if err := h.store.RemoveMember(context.Background(), admin.ID); !errors.Is(err, board.ErrSelfRemoval) {
		t.Fatalf("expected ErrSelfRemoval, got %v", err)
	}
	if n := h.gw.CallCount("RemoveMember"); n != 0 {
		t.Fatalf("no request expected, got %d", n)
	}
}

func TestRemoveMemberRefetchesOnSuccess(t *testing.T) {
	h := newHarness(t, admin)
	h.selectBoard(t, "b1")

	if err := h.store.RemoveMember(context.Background(), member.ID); err != nil {
		t.Fatalf("RemoveMember: %v", err)
	}
	if n := h.gw.CallCount("GetBoard"); n != 2 {
		t.Fatalf("expected refetch after success, got %d", n)
	}
	if members := h.store.Members(); len(members) != 1 || members[0].User.ID != admin.ID {
		t.Fatalf("unexpected members %+v", members)
	}
	changes := h.rt.BoardChanges()
	if len(changes) != 1 || changes[0].RemovedUserID != member.ID || changes[0].Type != realtime.ChangeMemberRemoved {
		t.Fatalf("unexpected broadcasts %+v", changes)
	}
}

func TestRemoveMemberFailureRefetches(t *testing.T) {
	h := newHarness(t, admin)
	h.selectBoard(t, "b1")
	h.gw.Reject("RemoveMember", 403, "forbidden")

	if err := h.store.RemoveMember(context.Background(), member.ID); err == nil {
		t.Fatalf("expected error")
	}
	if n := h.gw.CallCount("GetBoard"); n != 2 {
		t.Fatalf("expected refetch after failure, got %d", n)
	}
	if members := h.store.Members(); len(members) != 2 {
		t.Fatalf("member should be restored, got %+v", members)
	}
	if len(h.rt.BoardChanges()) != 0 {
		t.Fatalf("failed removal must not broadcast")
	}
}

func TestBeingRemovedClearsSelection(t *testing.T) {
	h := newHarness(t, member)
	h.store.LoadBoards(context.Background())
	h.selectBoard(t, "b1")

	h.store.Apply(realtime.MemberRemoved{BoardID: "b1", UserID: member.ID})

	snap := h.store.Snapshot()
	if snap.Selected != nil {
		t.Fatalf("selection should be cleared")
	}
	for _, b := range snap.Boards {
		if b.ID == "b1" {
			t.Fatalf("b1 should leave the collection")
		}
	}
	if rooms := h.rt.Rooms(); len(rooms) != 0 {
		t.Fatalf("expected room left, got %v", rooms)
	}
}

func TestMembersAdminsFirst(t *testing.T) {
	members := []model.Member{
		{User: model.User{ID: "a"}, Role: model.RoleMember},
		{User: model.User{ID: "b"}, Role: model.RoleAdmin},
		{User: model.User{ID: "c"}, Role: model.RoleMember},
	}
	got := board.SortMembers(members)
	if got[0].User.ID != "b" || got[1].User.ID != "a" || got[2].User.ID != "c" {
		t.Fatalf("unexpected order %+v", got)
	}
}

func TestDeleteSelectedBoardClearsSelection(t *testing.T) {
	h := newHarness(t, admin)
	h.store.LoadBoards(context.Background())
	h.selectBoard(t, "b1")

	if err := h.store.DeleteBoard(context.Background(), "b1"); err != nil {
		t.Fatalf("DeleteBoard: %v", err)
	}
	snap := h.store.Snapshot()
	if snap.Selected != nil || len(snap.Boards) != 1 {
		t.Fatalf("unexpected state %+v", snap)
	}
}

func TestMemberCannotRenameBoard(t *testing.T) {
	h := newHarness(t, member)
	h.store.LoadBoards(context.Background())
	if _, err := h.store.UpdateBoard(context.Background(), "b1", model.BoardInput{Name: "x"}); !board.IsPermissionDenied(err) {
		t.Fatalf("expected PermissionDenied, got %v", err)
	}
}

func TestAcceptInviteAddsBoard(t *testing.T) {
	h := newHarness(t, guest)
	h.gw.PutInvite("tok-1", "b2")

	joined, err := h.store.AcceptInvite(context.Background(), "tok-1")
	if err != nil {
		t.Fatalf("AcceptInvite: %v", err)
	}
	if joined.ID != "b2" || len(h.store.Snapshot().Boards) != 1 {
		t.Fatalf("unexpected state %+v", h.store.Snapshot().Boards)
	}

	if _, err := h.store.AcceptInvite(context.Background(), "bogus"); api.Status(err) != 400 {
		t.Fatalf("expected rejection, got %v", err)
	}
}

func TestOnChangeFires(t *testing.T) {
	h := newHarness(t, admin)
	var mu sync.Mutex
	calls := 0
	h.store.OnChange(func() {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	h.selectBoard(t, "b1")
	mu.Lock()
	defer mu.Unlock()
	if calls == 0 {
		t.Fatalf("expected change notifications")
	}
}

func TestResetForgetsEverything(t *testing.T) {
	h := newHarness(t, admin)
	ctx := context.Background()
	h.store.LoadBoards(ctx)
	h.selectBoard(t, "b1")

	h.store.Reset(ctx)

	snap := h.store.Snapshot()
	if len(snap.Boards) != 0 || snap.Selected != nil {
		t.Fatalf("expected empty store, got %+v", snap)
	}
	if rooms := h.rt.Rooms(); len(rooms) != 0 {
		t.Fatalf("expected no joined rooms, got %v", rooms)
	}
}

func strPtr(s string) *string { return &s }

func TestBoardsLoadedBeforeResetAreDiscarded(t *testing.T) {
	h := newHarness(t, admin)
	ctx := context.Background()
	release := h.gw.Hold("ListBoards")

	done := make(chan error, 1)
	go func() { done <- h.store.LoadBoards(ctx) }()
	waitUntil(t, "boards request in flight", func() bool { return h.gw.CallCount("ListBoards") == 1 })

	h.store.Reset(ctx)
	release()

	if err := <-done; !errors.Is(err, board.ErrStaleAggregate) {
		t.Fatalf("expected ErrStaleAggregate, got %v", err)
	}
	snap := h.store.Snapshot()
	if len(snap.Boards) != 0 || snap.Loading {
		t.Fatalf("expected an empty idle store after reset, got %+v", snap)
	}
}

func TestFailedSwitchKeepsRollbackOnPreviousBoard(t *testing.T) {
	h := newHarness(t, admin)
	ctx := context.Background()
	h.selectBoard(t, "b1")

	h.gw.Reject("GetBoard", 500, "down")
	if err := h.store.SelectBoard(ctx, "b2"); err == nil {
		t.Fatalf("expected the switch to fail")
	}
	h.gw.Fail("GetBoard", nil)

	h.gw.Reject("DeleteTask", 500, "nope")
	if err := h.store.DeleteTask(ctx, "t1"); err == nil {
		t.Fatalf("expected error")
	}
	if _, ok := h.task(t, "t1"); !ok {
		t.Fatalf("t1 should be back after the rejected delete")
	}
	if n := h.gw.CallCount("GetBoard"); n != 3 {
		t.Fatalf("expected a refetch of b1, got %d GetBoard calls", n)
	}

	// The failed board can still be selected afterwards.
	h.selectBoard(t, "b2")
	if snap := h.store.Snapshot(); snap.Selected == nil || snap.Selected.ID != "b2" {
		t.Fatalf("expected b2 selected, got %+v", snap.Selected)
	}
}

func TestRollbackWhileAnotherBoardLoadsIsLocal(t *testing.T) {
	h := newHarness(t, admin)
	ctx := context.Background()
	h.selectBoard(t, "b1")

	release := h.gw.Hold("GetBoard")
	defer release()
	go h.store.SelectBoard(ctx, "b2")
	waitUntil(t, "b2 fetch in flight", func() bool { return h.gw.CallCount("GetBoard") == 2 })

	h.gw.Reject("DeleteTask", 500, "nope")
	h.store.DeleteTask(ctx, "t1")
	if _, ok := h.task(t, "t1"); !ok {
		t.Fatalf("t1 should be restored locally")
	}
	if n := h.gw.CallCount("GetBoard"); n != 2 {
		t.Fatalf("expected no refetch of b1, got %d GetBoard calls", n)
	}
}

func TestSharedFetchSurvivesFirstCallerCancel(t *testing.T) {
	h := newHarness(t, admin)
	release := h.gw.Hold("GetBoard")

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() { first <- h.store.SelectBoard(ctx, "b1") }()
	waitUntil(t, "fetch in flight", func() bool { return h.gw.CallCount("GetBoard") == 1 })

	second := make(chan error, 1)
	go func() { second <- h.store.SelectBoard(context.Background(), "b1") }()
	time.Sleep(20 * time.Millisecond)

	cancel()
	if err := <-first; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected the cancelled caller to see context.Canceled, got %v", err)
	}
	release()
	if err := <-second; err != nil {
		t.Fatalf("second caller: %v", err)
	}
	if snap := h.store.Snapshot(); snap.Selected == nil || snap.Selected.ID != "b1" {
		t.Fatalf("expected b1 selected, got %+v", snap.Selected)
	}
	if n := h.gw.CallCount("GetBoard"); n != 1 {
		t.Fatalf("expected one shared fetch, got %d", n)
	}
}

func TestUpdateTaskRejectsUnknownList(t *testing.T) {
	h := newHarness(t, admin)
	h.selectBoard(t, "b1")

	_, err := h.store.UpdateTask(context.Background(), "t1", model.TaskPatch{ListID: strPtr("elsewhere")})
	if !errors.Is(err, board.ErrListNotFound) {
		t.Fatalf("expected ErrListNotFound, got %v", err)
	}
	if n := h.gw.CallCount("UpdateTask"); n != 0 {
		t.Fatalf("no request should be sent, got %d", n)
	}
	if got, _ := h.task(t, "t1"); got.ListID != "doing" {
		t.Fatalf("t1 should stay in doing, got %q", got.ListID)
	}
}
