package mongo

import (
	"testing"

	"github.com/google/uuid"

	"github.com/xraph/stash/group"
	"github.com/xraph/stash/message"
)

func TestDocIDIsUnambiguous(t *testing.T) {
	if docID("a:b", "c") == docID("a", "b:c") {
		t.Fatal("document ids collide")
	}
}

func TestMessageModelRoundTrip(t *testing.T) {
	msg := message.New([]byte("hi"),
		message.WithCorrelationID("order-1"),
		message.WithHeader("nested", map[string]any{"a": "b"}),
	)
	msg.Headers.Saved = true
	msg.Headers.CreatedTimestamp = 42
	rec := &message.Record{Region: "R", Message: msg, Fingerprint: "fp", Version: 3}

	m, err := toMessageModel(rec)
	if err != nil {
		t.Fatal(err)
	}
	if m.ID != docID("R", msg.ID.String()) {
		t.Fatalf("unexpected _id %q", m.ID)
	}

	got, err := fromMessageModel(m)
	if err != nil {
		t.Fatal(err)
	}
	if !message.SameContent(msg, got.Message) {
		t.Fatal("content changed across the model")
	}
	if got.Message.Headers.CreatedTimestamp != 42 || got.Version != 3 {
		t.Fatalf("unexpected record: %+v", got)
	}
}

func TestGroupModelRoundTrip(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	g := &group.Group{Region: "R", CorrelationID: "c", Members: []uuid.UUID{a, b}, Marked: []uuid.UUID{a}}

	got, err := fromGroupModel(toGroupModel(g))
	if err != nil {
		t.Fatal(err)
	}
	if got.Size() != 2 || !got.IsMarked(a) || got.IsMarked(b) {
		t.Fatalf("unexpected group: %+v", got)
	}
}

func TestFromGroupModelRejectsBadIDs(t *testing.T) {
	if _, err := fromGroupModel(&groupModel{Members: []string{"not-a-uuid"}}); err == nil {
		t.Fatal("expected error for malformed member id")
	}
}
