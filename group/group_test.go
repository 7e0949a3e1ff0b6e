package group_test

import (
	"slices"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/xraph/stash/group"
)

func TestNewGroup(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	g := group.New("EU", "order-1", now)

	if g.Timestamp() != now.UnixMilli() {
		t.Fatalf("Timestamp: want %d, got %d", now.UnixMilli(), g.Timestamp())
	}
	if !g.IsEmpty() {
		t.Fatal("new group should be empty")
	}
	if got := g.Age(now.Add(1500 * time.Millisecond)); got != 1500*time.Millisecond {
		t.Fatalf("Age: got %v", got)
	}
}

func TestAddRemove(t *testing.T) {
	g := group.New("", "c", time.Now())
	a, b := uuid.New(), uuid.New()

	if !g.Add(a) || !g.Add(b) {
		t.Fatal("expected both adds to succeed")
	}
	if g.Add(a) {
		t.Fatal("duplicate add should report false")
	}
	if g.Size() != 2 {
		t.Fatalf("Size: want 2, got %d", g.Size())
	}

	g.Mark(a)
	if !g.Remove(a) {
		t.Fatal("expected remove to succeed")
	}
	if g.Contains(a) || g.IsMarked(a) {
		t.Fatal("removed id must leave members and marked set")
	}
	if g.Remove(a) {
		t.Fatal("second remove should report false")
	}
}

func TestMark(t *testing.T) {
	g := group.New("", "c", time.Now())
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	g.Add(a)
	g.Add(b)
	g.Add(c)

	if g.Mark(uuid.New()) {
		t.Fatal("non-members cannot be marked")
	}
	if !g.Mark(b) || g.Mark(b) {
		t.Fatal("mark should succeed once")
	}
	if got := g.Unmarked(); !slices.Equal(got, []uuid.UUID{a, c}) {
		t.Fatalf("Unmarked: got %v", got)
	}

	if n := g.MarkAll(); n != 2 {
		t.Fatalf("MarkAll: want 2 newly marked, got %d", n)
	}
	if !slices.Equal(g.Marked, g.Members) {
		t.Fatal("marked set should equal members after MarkAll")
	}
	if len(g.Unmarked()) != 0 {
		t.Fatal("expected nothing unmarked")
	}
}

func TestCloneIsDeep(t *testing.T) {
	g := group.New("", "c", time.Now())
	g.Add(uuid.New())
	c := g.Clone()
	c.Add(uuid.New())
	c.MarkAll()

	if g.Size() != 1 || len(g.Marked) != 0 {
		t.Fatal("clone shares state with the original")
	}
	if (*group.Group)(nil).Clone() != nil {
		t.Error("nil clone should be nil")
	}
}

func TestTouchKeepsCreation(t *testing.T) {
	created := time.UnixMilli(1000)
	g := group.New("", "c", created)
	g.Touch(created.Add(time.Hour))

	if g.CreatedAt != 1000 {
		t.Fatalf("CreatedAt changed: %d", g.CreatedAt)
	}
	if g.UpdatedAt != created.Add(time.Hour).UnixMilli() {
		t.Fatalf("UpdatedAt: got %d", g.UpdatedAt)
	}
}
