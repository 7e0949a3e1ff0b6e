package message_test

import (
	"testing"

	"github.com/google/uuid"

	"github.com/xraph/stash/message"
)

func TestNewAssignsID(t *testing.T) {
	a := message.New([]byte("a"))
	b := message.New([]byte("a"))
	if a.ID == uuid.Nil {
		t.Fatal("expected a generated id")
	}
	if a.ID == b.ID {
		t.Fatal("expected distinct ids")
	}

	id := uuid.New()
	m := message.New(nil, message.WithID(id), message.WithCorrelationID("order-1"))
	if m.ID != id {
		t.Fatalf("ID: want %s, got %s", id, m.ID)
	}
	if m.CorrelationID != "order-1" {
		t.Fatalf("CorrelationID: want order-1, got %q", m.CorrelationID)
	}
}

func TestReservedHeadersCannotBeSet(t *testing.T) {
	m := message.New([]byte("a"),
		message.WithHeader(message.SavedKey, true),
		message.WithHeader(message.CreatedTimestampKey, int64(5)),
		message.WithHeader("tenant", "acme"),
	)
	if m.IsSaved() {
		t.Fatal("SAVED must not be settable by callers")
	}
	if _, ok := m.Headers.Get(message.CreatedTimestampKey); ok {
		t.Fatal("CREATED_TIMESTAMP must not be settable by callers")
	}
	if m.Headers.Len() != 1 {
		t.Fatalf("Len: want 1, got %d", m.Headers.Len())
	}
}

func TestHeadersMapIncludesReserved(t *testing.T) {
	h := message.Headers{Saved: true, CreatedTimestamp: 42}
	h.Set("k", "v")

	got := h.Map()
	if len(got) != 3 {
		t.Fatalf("Map: want 3 entries, got %v", got)
	}
	if got[message.SavedKey] != true {
		t.Errorf("SAVED: got %v", got[message.SavedKey])
	}
	if got[message.CreatedTimestampKey] != int64(42) {
		t.Errorf("CREATED_TIMESTAMP: got %v", got[message.CreatedTimestampKey])
	}

	h.Delete("k")
	if _, ok := h.Get("k"); ok {
		t.Error("expected k to be deleted")
	}
}

func TestCloneIsDeep(t *testing.T) {
	m := message.New([]byte("abc"), message.WithHeader("k", "v"))
	c := m.Clone()

	c.Payload[0] = 'x'
	c.Headers.Set("k", "changed")

	if string(m.Payload) != "abc" {
		t.Errorf("payload shared with clone: %q", m.Payload)
	}
	if v, _ := m.Headers.Get("k"); v != "v" {
		t.Errorf("headers shared with clone: %v", v)
	}
	if (*message.Message)(nil).Clone() != nil {
		t.Error("nil clone should be nil")
	}
}

func TestDeriveKeepsID(t *testing.T) {
	m := message.New([]byte("a"))
	d := m.Derive(message.WithHeader("k", "v"))
	if d.ID != m.ID {
		t.Fatal("derived message must keep the id")
	}
	if _, ok := m.Headers.Get("k"); ok {
		t.Fatal("derive must not touch the original")
	}
}

func TestFingerprintIgnoresReservedHeaders(t *testing.T) {
	m := message.New([]byte("a"), message.WithHeader("k", "v"))
	stamped := m.Clone()
	stamped.Headers.Saved = true
	stamped.Headers.CreatedTimestamp = 1_700_000_000_000

	if !message.SameContent(m, stamped) {
		t.Fatal("stamping must not change content")
	}
}

func TestFingerprintDetectsChanges(t *testing.T) {
	base := message.New([]byte("a"), message.WithHeader("k", "v"))

	tests := []struct {
		name string
		opt  message.Option
	}{
		{"header value", message.WithHeader("k", "w")},
		{"extra header", message.WithHeader("k2", "v")},
		{"correlation", message.WithCorrelationID("c")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if message.SameContent(base, base.Derive(tt.opt)) {
				t.Fatal("expected different content")
			}
		})
	}

	payload := base.Clone()
	payload.Payload = []byte("b")
	if message.SameContent(base, payload) {
		t.Fatal("payload change not detected")
	}
}

func TestFingerprintEmptyHeaders(t *testing.T) {
	a := message.New([]byte("a"))
	b := a.Clone()
	b.Headers.Values = map[string]any{}

	fa, err := message.Fingerprint(a)
	if err != nil {
		t.Fatal(err)
	}
	fb, err := message.Fingerprint(b)
	if err != nil {
		t.Fatal(err)
	}
	if fa != fb {
		t.Fatal("nil and empty header maps must fingerprint the same")
	}
}

func TestFingerprintEmptyPayload(t *testing.T) {
	saved := message.New([]byte{}, message.WithHeader("k", "v"))
	saved.Headers.Saved = true

	readBack := saved.Clone()
	readBack.Payload = nil

	if !message.SameContent(saved, readBack) {
		t.Fatal("nil and empty payloads must be the same content")
	}
}

func TestFingerprintRejectsUnencodableHeaders(t *testing.T) {
	m := message.New([]byte("a"), message.WithHeader("fn", func() {}))
	if _, err := message.Fingerprint(m); err == nil {
		t.Fatal("expected an error")
	}
	if message.SameContent(m, m) {
		t.Fatal("unencodable messages never compare equal")
	}
}
