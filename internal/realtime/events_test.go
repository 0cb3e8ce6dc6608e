package realtime

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDecodeTaskChangeFallsBackToTaskBoard(t *testing.T) {
	ev, err := Decode([]byte(`{"event":"taskChanged","data":{"type":"updated","task":{"_id":"t1","boardId":"b1","listId":"l1","title":"x"}}}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	up, ok := ev.(TaskUpdated)
	if !ok {
		t.Fatalf("expected TaskUpdated, got %T", ev)
	}
	if up.Board() != "b1" || up.Task.ID != "t1" || up.Task.ListID != "l1" {
		t.Fatalf("unexpected event %+v", up)
	}
}

func TestDecodeStampsBoardOnPayload(t *testing.T) {
	ev, err := Decode([]byte(`{"event":"taskChanged","data":{"boardId":"b1","type":"created","task":{"_id":"t1","listId":"l1"}}}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got := ev.(TaskCreated).Task.BoardID; got != "b1" {
		t.Fatalf("expected task board stamped, got %q", got)
	}
}

func TestDecodeBareListCreated(t *testing.T) {
	ev, err := Decode([]byte(`{"event":"listCreated","data":{"_id":"l9","boardId":"b1","name":"Done"}}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	lc, ok := ev.(ListCreated)
	if !ok || lc.List.ID != "l9" || lc.List.Name != "Done" || lc.BoardID != "b1" {
		t.Fatalf("unexpected event %#v", ev)
	}
}

func TestDecodeListDeletedUsesListID(t *testing.T) {
	ev, err := Decode([]byte(`{"event":"listChanged","data":{"boardId":"b1","type":"deleted","listId":"l2"}}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if ld, ok := ev.(ListDeleted); !ok || ld.ListID != "l2" {
		t.Fatalf("unexpected event %#v", ev)
	}
}

func TestDecodeMemberRemoved(t *testing.T) {
	ev, err := Decode([]byte(`{"event":"boardChanged","data":{"boardId":"b1","type":"memberRemoved","removedUserId":"u2"}}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if mr, ok := ev.(MemberRemoved); !ok || mr.UserID != "u2" || mr.Board() != "b1" {
		t.Fatalf("unexpected event %#v", ev)
	}
}

func TestDecodeRejectsIncompleteFrames(t *testing.T) {
	frames := map[string]string{
		"not json":          `{{`,
		"task no board":     `{"event":"taskChanged","data":{"type":"deleted","taskId":"t1"}}`,
		"task no body":      `{"event":"taskChanged","data":{"boardId":"b1","type":"updated"}}`,
		"delete no id":      `{"event":"taskChanged","data":{"boardId":"b1","type":"deleted"}}`,
		"list no id":        `{"event":"listChanged","data":{"boardId":"b1","type":"created","list":{"name":"x"}}}`,
		"member no user":    `{"event":"boardChanged","data":{"boardId":"b1","type":"memberRemoved"}}`,
		"notification noid": `{"event":"new_notification","data":{"message":"hi"}}`,
	}
	for name, frame := range frames {
		if _, err := Decode([]byte(frame)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestDecodeUnknownEvent(t *testing.T) {
	_, err := Decode([]byte(`{"event":"somethingElse","data":{}}`))
	if !errors.Is(err, ErrUnknownEvent) {
		t.Fatalf("expected ErrUnknownEvent, got %v", err)
	}
	_, err = Decode([]byte(`{"event":"taskChanged","data":{"boardId":"b1","type":"archived","taskId":"t1"}}`))
	if !errors.Is(err, ErrUnknownEvent) {
		t.Fatalf("expected ErrUnknownEvent for change type, got %v", err)
	}
}

func TestEncodeWrapsPayload(t *testing.T) {
	frame, err := encode(EventTaskChanged, TaskChange{BoardID: "b1", Type: ChangeDeleted, TaskID: "t1"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var env struct {
		Event string         `json:"event"`
		Data  map[string]any `json:"data"`
	}
	if err := json.Unmarshal(frame, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Event != EventTaskChanged || env.Data["taskId"] != "t1" {
		t.Fatalf("unexpected frame %s", frame)
	}
	if _, ok := env.Data["task"]; ok {
		t.Fatalf("empty task should be omitted: %s", frame)
	}
}
