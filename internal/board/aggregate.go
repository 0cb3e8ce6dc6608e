package board

import (
	"sort"

	"github.com/nhle/taskflow/internal/model"
)

// TaskState tags a task with the status of local mutations against it.
type TaskState int

const (
	StateConfirmed TaskState = iota
	StatePendingUpdate
	StatePendingDelete
)

func (s TaskState) String() string {
	switch s {
	case StatePendingUpdate:
		return "pending update"
	case StatePendingDelete:
		return "pending delete"
	default:
		return "confirmed"
	}
}

// entry is one task in the aggregate together with its state tag.
type entry struct {
	task  model.Task
	state TaskState

	// original is the value to restore if a pending update fails.
	original *model.Task

	// prev is the state to return to if a pending delete is undone.
	prev TaskState

	// seq identifies the latest local mutation against the task.
	seq uint64
}

// aggregate is the materialized selected board: detail plus tasks.
type aggregate struct {
	board   model.Board
	entries []*entry
}

func newAggregate(b model.Board, tasks []model.Task) *aggregate {
	a := &aggregate{board: b.Clone()}
	a.board.Tasks = nil
	seen := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		if t.ID == "" || seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		t = t.Clone()
		if t.BoardID == "" {
			t.BoardID = b.ID
		}
		a.entries = append(a.entries, &entry{task: t})
	}
	return a
}

func (a *aggregate) id() string { return a.board.ID }

func (a *aggregate) find(taskID string) *entry {
	for _, e := range a.entries {
		if e.task.ID == taskID {
			return e
		}
	}
	return nil
}

func (a *aggregate) insert(t model.Task) bool {
	if a.find(t.ID) != nil {
		return false
	}
	t = t.Clone()
	if t.BoardID == "" {
		t.BoardID = a.board.ID
	}
	a.entries = append(a.entries, &entry{task: t})
	return true
}

func (a *aggregate) remove(taskID string) bool {
	for i, e := range a.entries {
		if e.task.ID == taskID {
			a.entries = append(a.entries[:i], a.entries[i+1:]...)
			return true
		}
	}
	return false
}

// removeList drops the list and every task that references it.
func (a *aggregate) removeList(listID string) bool {
	found := false
	lists := a.board.Lists[:0:0]
	for _, l := range a.board.Lists {
		if l.ID == listID {
			found = true
			continue
		}
		lists = append(lists, l)
	}
	a.board.Lists = lists

	kept := a.entries[:0:0]
	for _, e := range a.entries {
		if e.task.ListID == listID {
			found = true
			continue
		}
		kept = append(kept, e)
	}
	a.entries = kept
	return found
}

// hasListLike reports whether a list with l's id or name exists.
func (a *aggregate) hasListLike(l model.List) bool {
	for _, existing := range a.board.Lists {
		if existing.ID == l.ID || existing.Name == l.Name {
			return true
		}
	}
	return false
}

func (a *aggregate) removeMember(userID string) bool {
	members := a.board.Members[:0:0]
	found := false
	for _, m := range a.board.Members {
		if m.User.ID == userID {
			found = true
			continue
		}
		members = append(members, m)
	}
	a.board.Members = members
	return found
}

// visible returns copies of tasks that are not pending deletion.
func (a *aggregate) visible() []model.Task {
	out := make([]model.Task, 0, len(a.entries))
	for _, e := range a.entries {
		if e.state == StatePendingDelete {
			continue
		}
		out = append(out, e.task.Clone())
	}
	return out
}

// nextPosition is one past the highest position in listID, ignoring
// exclude, or 0 for an empty list.
func (a *aggregate) nextPosition(listID, exclude string) float64 {
	var (
		max   float64
		found bool
	)
	for _, e := range a.entries {
		if e.state == StatePendingDelete || e.task.ListID != listID || e.task.ID == exclude {
			continue
		}
		if !found || e.task.Position > max {
			max = e.task.Position
			found = true
		}
	}
	if !found {
		return 0
	}
	return max + 1
}

func (a *aggregate) snapshot() model.Board {
	b := a.board.Clone()
	b.Tasks = a.visible()
	return b
}

func (a *aggregate) pending() map[string]TaskState {
	var out map[string]TaskState
	for _, e := range a.entries {
		if e.state == StateConfirmed {
			continue
		}
		if out == nil {
			out = make(map[string]TaskState)
		}
		out[e.task.ID] = e.state
	}
	return out
}

// Ordered returns the tasks of listID sorted by position ascending, ties
// broken by task id ascending.
func Ordered(tasks []model.Task, listID string) []model.Task {
	out := make([]model.Task, 0, len(tasks))
	for _, t := range tasks {
		if t.ListID == listID {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].ID < out[j].ID
	})
	return out
}
