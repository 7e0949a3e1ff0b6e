package redis

import (
	"testing"

	"github.com/google/uuid"

	"github.com/xraph/stash/group"
	"github.com/xraph/stash/message"
)

func TestEntityKeyIsUnambiguous(t *testing.T) {
	a := entityKey(prefixGroup, "eu:1", "x")
	b := entityKey(prefixGroup, "eu", "1:x")
	if a == b {
		t.Fatalf("keys collide: %q", a)
	}
	if got, want := entityKey(prefixMessage, "DEFAULT", "abc"), "stash:msg:7:DEFAULT:abc"; got != want {
		t.Fatalf("entityKey = %q, want %q", got, want)
	}
}

func TestIndexKey(t *testing.T) {
	if got, want := indexKey(zGroupRegion, "DEFAULT"), "stash:z:grp:DEFAULT"; got != want {
		t.Fatalf("indexKey = %q, want %q", got, want)
	}
}

func TestMessageModelRoundTrip(t *testing.T) {
	msg := message.New([]byte("hi"), message.WithHeader("k", "v"))
	msg.Headers.Saved = true
	rec := &message.Record{Region: "R", Message: msg, Fingerprint: "fp", Version: 4, UpdatedAt: 9}

	got, err := fromMessageModel(toMessageModel(rec))
	if err != nil {
		t.Fatal(err)
	}
	if got.ID() != msg.ID || got.Version != 4 || got.Fingerprint != "fp" {
		t.Fatalf("unexpected record: %+v", got)
	}
	if got.Message.Headers.Values["k"] != "v" || !got.Message.IsSaved() {
		t.Fatalf("headers lost: %+v", got.Message.Headers)
	}
}

func TestGroupModelRoundTrip(t *testing.T) {
	id := uuid.New()
	g := &group.Group{Region: "R", CorrelationID: "c", Members: []uuid.UUID{id}, Version: 2}
	g.CreatedAt = 100

	got := fromGroupModel(toGroupModel(g))
	if !got.Contains(id) || got.Version != 2 || got.Timestamp() != 100 {
		t.Fatalf("unexpected group: %+v", got)
	}
}
