// Package storetest provides a conformance suite that every store.Store
// backend runs from its own tests.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/stash"
	"github.com/xraph/stash/group"
	"github.com/xraph/stash/message"
	"github.com/xraph/stash/store"
)

// Factory returns a fresh, migrated, empty backend. The suite closes it.
type Factory func(t *testing.T) store.Store

// Run executes the conformance suite against backends produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"MessageCreateGet", testMessageCreateGet},
		{"MessageCreateDuplicate", testMessageCreateDuplicate},
		{"MessageUpdate", testMessageUpdate},
		{"MessageDelete", testMessageDelete},
		{"MessageRegions", testMessageRegions},
		{"GroupCreateGet", testGroupCreateGet},
		{"GroupUpdate", testGroupUpdate},
		{"GroupDelete", testGroupDelete},
		{"GroupDeleteIf", testGroupDeleteIf},
		{"GroupScan", testGroupScan},
		{"Ping", testPing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s)
		})
	}
}

func ctx() context.Context { return context.Background() }

// NewRecord returns an unsaved record for region with a stamped message.
func NewRecord(t *testing.T, region string, payload string) *message.Record {
	t.Helper()
	msg := message.New([]byte(payload),
		message.WithCorrelationID("order-1"),
		message.WithHeader("tenant", "acme"),
		message.WithHeader("attempt", float64(2)),
	)
	msg.Headers.Saved = true
	msg.Headers.CreatedTimestamp = time.Now().UnixMilli()

	fp, err := message.Fingerprint(msg)
	require.NoError(t, err)
	return &message.Record{
		Region:      region,
		Message:     msg,
		Fingerprint: fp,
		UpdatedAt:   msg.Headers.CreatedTimestamp,
	}
}

// ──────────────────────────────────────────────────
// message.Store
// ──────────────────────────────────────────────────

func testMessageCreateGet(t *testing.T, s store.Store) {
	rec := NewRecord(t, stash.DefaultRegion, "hello")
	require.NoError(t, s.CreateMessage(ctx(), rec))
	assert.NotZero(t, rec.Version)

	got, err := s.GetMessage(ctx(), stash.DefaultRegion, rec.ID())
	require.NoError(t, err)
	assert.Equal(t, rec.ID(), got.ID())
	assert.Equal(t, rec.Version, got.Version)
	assert.Equal(t, rec.Fingerprint, got.Fingerprint)
	assert.Equal(t, "hello", string(got.Message.Payload))
	assert.Equal(t, "order-1", got.Message.CorrelationID)
	assert.True(t, got.Message.Headers.Saved)
	assert.Equal(t, rec.Message.Headers.CreatedTimestamp, got.Message.Headers.CreatedTimestamp)
	assert.Equal(t, "acme", got.Message.Headers.Values["tenant"])
	assert.True(t, message.SameContent(rec.Message, got.Message), "content must survive a round trip")

	_, err = s.GetMessage(ctx(), stash.DefaultRegion, uuid.New())
	assert.ErrorIs(t, err, stash.ErrMessageNotFound)
}

func testMessageCreateDuplicate(t *testing.T, s store.Store) {
	rec := NewRecord(t, stash.DefaultRegion, "once")
	require.NoError(t, s.CreateMessage(ctx(), rec))

	dup := rec.Clone()
	dup.Message.Payload = []byte("twice")
	assert.ErrorIs(t, s.CreateMessage(ctx(), dup), stash.ErrMessageExists)

	got, err := s.GetMessage(ctx(), stash.DefaultRegion, rec.ID())
	require.NoError(t, err)
	assert.Equal(t, "once", string(got.Message.Payload))
}

func testMessageUpdate(t *testing.T, s store.Store) {
	rec := NewRecord(t, stash.DefaultRegion, "v1")
	require.NoError(t, s.CreateMessage(ctx(), rec))

	a, err := s.GetMessage(ctx(), stash.DefaultRegion, rec.ID())
	require.NoError(t, err)
	b, err := s.GetMessage(ctx(), stash.DefaultRegion, rec.ID())
	require.NoError(t, err)

	a.Message.Payload = []byte("v2")
	a.Fingerprint = "changed"
	before := a.Version
	require.NoError(t, s.UpdateMessage(ctx(), a))
	assert.NotEqual(t, before, a.Version, "update must advance the version")

	b.Message.Payload = []byte("v3")
	assert.ErrorIs(t, s.UpdateMessage(ctx(), b), stash.ErrVersionConflict)

	got, err := s.GetMessage(ctx(), stash.DefaultRegion, rec.ID())
	require.NoError(t, err)
	assert.Equal(t, "v2", string(got.Message.Payload))
	assert.Equal(t, "changed", got.Fingerprint)
	assert.Equal(t, a.Version, got.Version)

	missing := NewRecord(t, stash.DefaultRegion, "ghost")
	missing.Version = 1
	assert.ErrorIs(t, s.UpdateMessage(ctx(), missing), stash.ErrMessageNotFound)
}

func testMessageDelete(t *testing.T, s store.Store) {
	rec := NewRecord(t, stash.DefaultRegion, "bye")
	require.NoError(t, s.CreateMessage(ctx(), rec))

	old, err := s.DeleteMessage(ctx(), stash.DefaultRegion, rec.ID())
	require.NoError(t, err)
	assert.Equal(t, "bye", string(old.Message.Payload))

	_, err = s.GetMessage(ctx(), stash.DefaultRegion, rec.ID())
	assert.ErrorIs(t, err, stash.ErrMessageNotFound)

	_, err = s.DeleteMessage(ctx(), stash.DefaultRegion, rec.ID())
	assert.ErrorIs(t, err, stash.ErrMessageNotFound)
}

func testMessageRegions(t *testing.T, s store.Store) {
	a := NewRecord(t, "REGION-A", "a")
	require.NoError(t, s.CreateMessage(ctx(), a))

	b := a.Clone()
	b.Region = "REGION-B"
	b.Message.Payload = []byte("b")
	require.NoError(t, s.CreateMessage(ctx(), b), "same id in another region must not collide")

	got, err := s.GetMessage(ctx(), "REGION-A", a.ID())
	require.NoError(t, err)
	assert.Equal(t, "a", string(got.Message.Payload))

	require.NoError(t, s.CreateMessage(ctx(), NewRecord(t, "REGION-A", "a2")))

	n, err := s.CountMessages(ctx(), "REGION-A")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = s.CountMessages(ctx(), "REGION-B")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = s.CountMessages(ctx(), "REGION-C")
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = s.DeleteMessage(ctx(), "REGION-C", a.ID())
	assert.ErrorIs(t, err, stash.ErrMessageNotFound)
}

// ──────────────────────────────────────────────────
// group.Store
// ──────────────────────────────────────────────────

func newGroup(region, correlationID string, created time.Time, members ...uuid.UUID) *group.Group {
	g := group.New(region, correlationID, created)
	for _, id := range members {
		g.Add(id)
	}
	return g
}

func testGroupCreateGet(t *testing.T, s store.Store) {
	m1, m2, m3 := uuid.New(), uuid.New(), uuid.New()
	g := newGroup(stash.DefaultRegion, "order-1", time.UnixMilli(1_700_000_000_000), m1, m2, m3)
	g.Mark(m2)
	require.NoError(t, s.CreateGroup(ctx(), g))
	assert.NotZero(t, g.Version)

	got, err := s.GetGroup(ctx(), stash.DefaultRegion, "order-1")
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{m1, m2, m3}, got.Members, "member order must be preserved")
	assert.Equal(t, []uuid.UUID{m2}, got.Marked)
	assert.Equal(t, int64(1_700_000_000_000), got.Timestamp())
	assert.Equal(t, g.Version, got.Version)

	assert.ErrorIs(t, s.CreateGroup(ctx(), newGroup(stash.DefaultRegion, "order-1", time.Now())), stash.ErrGroupExists)

	_, err = s.GetGroup(ctx(), stash.DefaultRegion, "missing")
	assert.ErrorIs(t, err, stash.ErrGroupNotFound)
}

func testGroupUpdate(t *testing.T, s store.Store) {
	g := newGroup(stash.DefaultRegion, "order-2", time.Now(), uuid.New())
	require.NoError(t, s.CreateGroup(ctx(), g))

	a, err := s.GetGroup(ctx(), stash.DefaultRegion, "order-2")
	require.NoError(t, err)
	b, err := s.GetGroup(ctx(), stash.DefaultRegion, "order-2")
	require.NoError(t, err)

	added := uuid.New()
	a.Add(added)
	require.NoError(t, s.UpdateGroup(ctx(), a))

	b.Add(uuid.New())
	assert.ErrorIs(t, s.UpdateGroup(ctx(), b), stash.ErrVersionConflict)

	got, err := s.GetGroup(ctx(), stash.DefaultRegion, "order-2")
	require.NoError(t, err)
	assert.Len(t, got.Members, 2)
	assert.True(t, got.Contains(added))
	assert.Equal(t, g.Timestamp(), got.Timestamp(), "update must not move the group timestamp")

	assert.ErrorIs(t, s.UpdateGroup(ctx(), newGroup(stash.DefaultRegion, "ghost", time.Now())), stash.ErrGroupNotFound)
}

func testGroupDelete(t *testing.T, s store.Store) {
	require.NoError(t, s.CreateGroup(ctx(), newGroup(stash.DefaultRegion, "order-3", time.Now(), uuid.New())))

	require.NoError(t, s.DeleteGroup(ctx(), stash.DefaultRegion, "order-3"))
	_, err := s.GetGroup(ctx(), stash.DefaultRegion, "order-3")
	assert.ErrorIs(t, err, stash.ErrGroupNotFound)
	assert.ErrorIs(t, s.DeleteGroup(ctx(), stash.DefaultRegion, "order-3"), stash.ErrGroupNotFound)

	// The group can be recreated from scratch.
	require.NoError(t, s.CreateGroup(ctx(), newGroup(stash.DefaultRegion, "order-3", time.Now())))
}

func testGroupDeleteIf(t *testing.T, s store.Store) {
	base := time.UnixMilli(1_700_000_000_000)
	require.NoError(t, s.CreateGroup(ctx(), newGroup(stash.DefaultRegion, "order-4", base, uuid.New())))

	stale, err := s.GetGroup(ctx(), stash.DefaultRegion, "order-4")
	require.NoError(t, err)
	fresh := stale.Clone()
	fresh.Add(uuid.New())
	require.NoError(t, s.UpdateGroup(ctx(), fresh))

	assert.ErrorIs(t, s.DeleteGroupIf(ctx(), stale), stash.ErrVersionConflict)
	got, err := s.GetGroup(ctx(), stash.DefaultRegion, "order-4")
	require.NoError(t, err)
	assert.Len(t, got.Members, 2, "a stale guarded delete must leave the group alone")

	require.NoError(t, s.DeleteGroupIf(ctx(), got))
	assert.ErrorIs(t, s.DeleteGroupIf(ctx(), got), stash.ErrGroupNotFound)

	// A recreated group is not the one that was read, even at the same version.
	require.NoError(t, s.CreateGroup(ctx(), newGroup(stash.DefaultRegion, "order-5", base)))
	old, err := s.GetGroup(ctx(), stash.DefaultRegion, "order-5")
	require.NoError(t, err)
	require.NoError(t, s.DeleteGroup(ctx(), stash.DefaultRegion, "order-5"))
	require.NoError(t, s.CreateGroup(ctx(), newGroup(stash.DefaultRegion, "order-5", base.Add(time.Hour), uuid.New())))

	assert.ErrorIs(t, s.DeleteGroupIf(ctx(), old), stash.ErrVersionConflict)
	got, err = s.GetGroup(ctx(), stash.DefaultRegion, "order-5")
	require.NoError(t, err)
	assert.Len(t, got.Members, 1)
}

func testGroupScan(t *testing.T, s store.Store) {
	base := time.UnixMilli(1_700_000_000_000)
	require.NoError(t, s.CreateGroup(ctx(), newGroup("REGION-A", "g1", base, uuid.New())))
	require.NoError(t, s.CreateGroup(ctx(), newGroup("REGION-A", "g2", base.Add(time.Second))))
	require.NoError(t, s.CreateGroup(ctx(), newGroup("REGION-B", "g1", base, uuid.New())))

	groups, err := s.ScanGroups(ctx(), "REGION-A")
	require.NoError(t, err)
	require.Len(t, groups, 2, "scan must include empty groups and exclude other regions")

	ids := []string{groups[0].CorrelationID, groups[1].CorrelationID}
	assert.ElementsMatch(t, []string{"g1", "g2"}, ids)
	for _, g := range groups {
		assert.Equal(t, "REGION-A", g.Region)
	}

	groups, err = s.ScanGroups(ctx(), "REGION-C")
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func testPing(t *testing.T, s store.Store) {
	assert.NoError(t, s.Ping(ctx()))
}
