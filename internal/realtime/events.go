package realtime

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nhle/taskflow/internal/model"
)

// Wire event names.
const (
	EventJoinUser        = "joinUser"
	EventLeaveUser       = "leaveUser"
	EventJoinBoard       = "joinBoard"
	EventLeaveBoard      = "leaveBoard"
	EventTaskChanged     = "taskChanged"
	EventListChanged     = "listChanged"
	EventListCreated     = "listCreated"
	EventBoardChanged    = "boardChanged"
	EventNewNotification = "new_notification"
)

// Change types carried in the "type" field of change payloads.
const (
	ChangeCreated       = "created"
	ChangeUpdated       = "updated"
	ChangeDeleted       = "deleted"
	ChangeMemberRemoved = "memberRemoved"
)

// ErrUnknownEvent is returned by Decode for frames with an event name or
// change type this client does not handle.
var ErrUnknownEvent = errors.New("unknown realtime event")

// envelope is the JSON frame exchanged over the socket.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// TaskChange is the taskChanged payload, sent and received.
type TaskChange struct {
	BoardID string      `json:"boardId"`
	Type    string      `json:"type"`
	Task    *model.Task `json:"task,omitempty"`
	TaskID  string      `json:"taskId,omitempty"`
}

// ListChange is the listChanged payload, sent and received.
type ListChange struct {
	BoardID string      `json:"boardId"`
	Type    string      `json:"type"`
	List    *model.List `json:"list,omitempty"`
	ListID  string      `json:"listId,omitempty"`
}

// BoardChange is the boardChanged payload.
type BoardChange struct {
	BoardID       string `json:"boardId"`
	Type          string `json:"type"`
	RemovedUserID string `json:"removedUserId,omitempty"`
}

// Event is one validated inbound realtime event. The set of
// implementations is closed; consumers switch on the concrete type.
type Event interface {
	// Board returns the board the event is scoped to, or "" for
	// user-scoped events.
	Board() string
	isEvent()
}

// TaskCreated reports a task created by any session.
type TaskCreated struct {
	BoardID string
	Task    model.Task
}

// TaskUpdated carries the full new state of a task.
type TaskUpdated struct {
	BoardID string
	Task    model.Task
}

// TaskDeleted reports a removed task.
type TaskDeleted struct {
	BoardID string
	TaskID  string
}

// ListCreated reports a new list.
type ListCreated struct {
	BoardID string
	List    model.List
}

// ListDeleted reports a removed list.
type ListDeleted struct {
	BoardID string
	ListID  string
}

// MemberRemoved reports a user removed from a board.
type MemberRemoved struct {
	BoardID string
	UserID  string
}

// NewNotification is a live push into the user's feed.
type NewNotification struct {
	Notification model.Notification
}

func (e TaskCreated) Board() string     { return e.BoardID }
func (e TaskUpdated) Board() string     { return e.BoardID }
func (e TaskDeleted) Board() string     { return e.BoardID }
func (e ListCreated) Board() string     { return e.BoardID }
func (e ListDeleted) Board() string     { return e.BoardID }
func (e MemberRemoved) Board() string   { return e.BoardID }
func (e NewNotification) Board() string { return "" }

func (TaskCreated) isEvent()     {}
func (TaskUpdated) isEvent()     {}
func (TaskDeleted) isEvent()     {}
func (ListCreated) isEvent()     {}
func (ListDeleted) isEvent()     {}
func (MemberRemoved) isEvent()   {}
func (NewNotification) isEvent() {}

// Decode parses one frame into a validated Event. Frames that are
// malformed or lack the identifiers reconciliation depends on are rejected.
func Decode(frame []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("decoding frame: %w", err)
	}

	switch env.Event {
	case EventTaskChanged:
		var p TaskChange
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", env.Event, err)
		}
		return decodeTaskChange(p)

	case EventListChanged:
		var p ListChange
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", env.Event, err)
		}
		return decodeListChange(p)

	case EventListCreated:
		var l model.List
		if err := json.Unmarshal(env.Data, &l); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", env.Event, err)
		}
		return decodeListChange(ListChange{BoardID: l.BoardID, Type: ChangeCreated, List: &l})

	case EventBoardChanged:
		var p BoardChange
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", env.Event, err)
		}
		if p.Type != ChangeMemberRemoved {
			return nil, fmt.Errorf("%w: %s/%s", ErrUnknownEvent, env.Event, p.Type)
		}
		if p.BoardID == "" || p.RemovedUserID == "" {
			return nil, fmt.Errorf("%s: missing board or user id", env.Event)
		}
		return MemberRemoved{BoardID: p.BoardID, UserID: p.RemovedUserID}, nil

	case EventNewNotification:
		var n model.Notification
		if err := json.Unmarshal(env.Data, &n); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", env.Event, err)
		}
		if n.ID == "" {
			return nil, fmt.Errorf("%s: missing notification id", env.Event)
		}
		return NewNotification{Notification: n}, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
}

func decodeTaskChange(p TaskChange) (Event, error) {
	boardID := p.BoardID
	if boardID == "" && p.Task != nil {
		boardID = p.Task.BoardID
	}
	if boardID == "" {
		return nil, fmt.Errorf("%s: missing board id", EventTaskChanged)
	}

	switch p.Type {
	case ChangeCreated, ChangeUpdated:
		if p.Task == nil || p.Task.ID == "" {
			return nil, fmt.Errorf("%s/%s: missing task", EventTaskChanged, p.Type)
		}
		if p.Task.BoardID == "" {
			p.Task.BoardID = boardID
		}
		if p.Type == ChangeCreated {
			return TaskCreated{BoardID: boardID, Task: *p.Task}, nil
		}
		return TaskUpdated{BoardID: boardID, Task: *p.Task}, nil

	case ChangeDeleted:
		id := p.TaskID
		if id == "" && p.Task != nil {
			id = p.Task.ID
		}
		if id == "" {
			return nil, fmt.Errorf("%s/%s: missing task id", EventTaskChanged, p.Type)
		}
		return TaskDeleted{BoardID: boardID, TaskID: id}, nil
	}

	return nil, fmt.Errorf("%w: %s/%s", ErrUnknownEvent, EventTaskChanged, p.Type)
}

func decodeListChange(p ListChange) (Event, error) {
	boardID := p.BoardID
	if boardID == "" && p.List != nil {
		boardID = p.List.BoardID
	}
	if boardID == "" {
		return nil, fmt.Errorf("%s: missing board id", EventListChanged)
	}

	switch p.Type {
	case ChangeCreated:
		if p.List == nil || p.List.ID == "" {
			return nil, fmt.Errorf("%s/%s: missing list", EventListChanged, p.Type)
		}
		if p.List.BoardID == "" {
			p.List.BoardID = boardID
		}
		return ListCreated{BoardID: boardID, List: *p.List}, nil

	case ChangeDeleted:
		id := p.ListID
		if id == "" && p.List != nil {
			id = p.List.ID
		}
		if id == "" {
			return nil, fmt.Errorf("%s/%s: missing list id", EventListChanged, p.Type)
		}
		return ListDeleted{BoardID: boardID, ListID: id}, nil
	}

	return nil, fmt.Errorf("%w: %s/%s", ErrUnknownEvent, EventListChanged, p.Type)
}

// encode builds an outbound frame.
func encode(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encoding %s payload: %w", event, err)
	}
	return json.Marshal(envelope{Event: event, Data: raw})
}
