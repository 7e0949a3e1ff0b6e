package stash_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gu "github.com/xraph/go-utils/metrics"

	"github.com/xraph/stash"
	"github.com/xraph/stash/message"
	"github.com/xraph/stash/observability"
	"github.com/xraph/stash/store/memory"
)

func ctx() context.Context { return context.Background() }

// clock is a settable time source.
type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newClock() *clock { return &clock{now: time.UnixMilli(1_700_000_000_000)} }

func newStore(t *testing.T, opts ...stash.Option) *stash.Store {
	t.Helper()
	opts = append([]stash.Option{stash.WithBackend(memory.New())}, opts...)
	s, err := stash.New(opts...)
	require.NoError(t, err)
	return s
}

// ──────────────────────────────────────────────────
// Construction
// ──────────────────────────────────────────────────

func TestNewRequiresBackend(t *testing.T) {
	_, err := stash.New()
	assert.ErrorIs(t, err, stash.ErrNoBackend)
}

func TestNewDefaults(t *testing.T) {
	s := newStore(t, stash.WithRegion("  "), stash.WithMaxCASAttempts(0))
	assert.Equal(t, stash.DefaultRegion, s.Region())
	assert.NotNil(t, s.Backend())
	assert.NotNil(t, s.Sweeper())
}

func TestNewPropagatesOptionError(t *testing.T) {
	boom := errors.New("boom")
	_, err := stash.New(stash.WithBackend(memory.New()), func(*stash.Store) error { return boom })
	assert.ErrorIs(t, err, boom)
}

// ──────────────────────────────────────────────────
// Messages
// ──────────────────────────────────────────────────

func TestGetBeforeAddIsAbsent(t *testing.T) {
	s := newStore(t)
	got, err := s.GetMessage(ctx(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestAddStampsMetadata(t *testing.T) {
	c := newClock()
	s := newStore(t, stash.WithClock(c.Now))

	m := message.New([]byte("foo"), message.WithHeader("tenant", "acme"))
	saved, err := s.AddMessage(ctx(), m)
	require.NoError(t, err)

	assert.False(t, m.IsSaved(), "the caller's message must not be modified")
	assert.True(t, saved.IsSaved())
	assert.Equal(t, c.now.UnixMilli(), saved.Headers.CreatedTimestamp)

	got, err := s.GetMessage(ctx(), m.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, m.ID, got.ID)
	assert.Equal(t, []byte("foo"), got.Payload)
	assert.True(t, message.SameContent(m, got))

	v, ok := got.Headers.Get(message.SavedKey)
	assert.True(t, ok)
	assert.Equal(t, true, v)
	v, ok = got.Headers.Get(message.CreatedTimestampKey)
	assert.True(t, ok)
	assert.Equal(t, c.now.UnixMilli(), v)
}

func TestAddRejectsInvalidMessages(t *testing.T) {
	s := newStore(t)

	_, err := s.AddMessage(ctx(), nil)
	assert.ErrorIs(t, err, stash.ErrInvalidMessage)

	_, err = s.AddMessage(ctx(), &message.Message{Payload: []byte("x")})
	assert.ErrorIs(t, err, stash.ErrInvalidMessage)

	_, err = s.AddMessageToGroup(ctx(), "", message.New(nil))
	assert.ErrorIs(t, err, stash.ErrInvalidMessage)
}

func TestRegionIsolation(t *testing.T) {
	s := newStore(t)
	m := message.New([]byte("eu only"))

	eu := s.InRegion("EU")
	_, err := eu.AddMessage(ctx(), m)
	require.NoError(t, err)

	got, err := s.GetMessage(ctx(), m.ID)
	require.NoError(t, err)
	assert.Nil(t, got, "default region must not see EU messages")

	got, err = eu.GetMessage(ctx(), m.ID)
	require.NoError(t, err)
	assert.NotNil(t, got)

	assert.Equal(t, stash.DefaultRegion, s.Region(), "InRegion must not rebind the receiver")
	assert.Equal(t, "EU", eu.Region())

	n, err := s.MessageCount(ctx())
	require.NoError(t, err)
	assert.Zero(t, n)
	n, err = eu.MessageCount(ctx())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestReAddLastUpdateWins(t *testing.T) {
	c := newClock()
	s := newStore(t, stash.WithClock(c.Now))

	m := message.New([]byte("p"), message.WithCorrelationID("X"))
	first, err := s.AddMessage(ctx(), m)
	require.NoError(t, err)

	c.Advance(time.Minute)
	changed := m.Derive(message.WithCorrelationID("Y"), message.WithHeader("k", "v"))
	second, err := s.AddMessage(ctx(), changed)
	require.NoError(t, err)

	assert.Equal(t, m.ID, second.ID)
	assert.Equal(t, "Y", second.CorrelationID)
	assert.Equal(t, first.Headers.CreatedTimestamp, second.Headers.CreatedTimestamp,
		"an update keeps the original creation time")

	got, err := s.GetMessage(ctx(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, "Y", got.CorrelationID)
	assert.Equal(t, "v", got.Headers.Values["k"])

	n, err := s.MessageCount(ctx())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestReAddUnchangedIsIdempotent(t *testing.T) {
	c := newClock()
	factory := gu.NewMetricsCollector("test")
	metrics := observability.NewMetrics(factory)
	s := newStore(t, stash.WithClock(c.Now), stash.WithMetrics(metrics))

	m := message.New([]byte("same"), message.WithHeader("k", "v"))
	first, err := s.AddMessage(ctx(), m)
	require.NoError(t, err)

	c.Advance(time.Hour)

	// Re-adding the stamped copy differs only in reserved headers.
	again, err := s.AddMessage(ctx(), first)
	require.NoError(t, err)
	assert.Equal(t, first, again)

	_, err = s.AddMessage(ctx(), m)
	require.NoError(t, err)

	n, err := s.MessageCount(ctx())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.InDelta(t, 1, metrics.MessagesAdded.Value(), 0)
	assert.InDelta(t, 2, metrics.MessagesIdempotent.Value(), 0)
	assert.InDelta(t, 0, metrics.MessagesUpdated.Value(), 0)
}

func TestReturnedMessagesAreDetached(t *testing.T) {
	s := newStore(t)
	m := message.New([]byte("abc"), message.WithHeader("k", "v"))
	saved, err := s.AddMessage(ctx(), m)
	require.NoError(t, err)

	saved.Payload[0] = 'X'
	saved.Headers.Values["k"] = "changed"

	got, err := s.GetMessage(ctx(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got.Payload)
	assert.Equal(t, "v", got.Headers.Values["k"])
}

func TestRemoveMessage(t *testing.T) {
	s := newStore(t)
	u1 := uuid.New()
	m1 := message.New([]byte("foo"), message.WithID(u1))

	_, err := s.AddMessage(ctx(), m1)
	require.NoError(t, err)

	got, err := s.GetMessage(ctx(), u1)
	require.NoError(t, err)
	assert.True(t, got.IsSaved())

	removed, err := s.RemoveMessage(ctx(), u1)
	require.NoError(t, err)
	require.NotNil(t, removed)
	assert.True(t, message.SameContent(m1, removed))

	got, err = s.GetMessage(ctx(), u1)
	require.NoError(t, err)
	assert.Nil(t, got)

	removed, err = s.RemoveMessage(ctx(), u1)
	require.NoError(t, err)
	assert.Nil(t, removed)
}

func TestStorageErrorsAreWrapped(t *testing.T) {
	backend := memory.New()
	s := newStore(t, stash.WithBackend(backend))
	require.NoError(t, backend.Close())

	_, err := s.GetMessage(ctx(), uuid.New())
	require.Error(t, err)
	assert.ErrorIs(t, err, stash.ErrStoreClosed)

	var se *stash.StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "get message", se.Op)
	assert.Equal(t, stash.DefaultRegion, se.Region)

	_, err = s.AddMessage(ctx(), message.New(nil))
	assert.True(t, stash.IsStorageError(err))

	_, err = s.GetMessageGroup(ctx(), "g")
	assert.True(t, stash.IsStorageError(err))
}

func TestLogsWrites(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	s := newStore(t, stash.WithLogger(logger))

	m := message.New([]byte("x"))
	_, err := s.AddMessage(ctx(), m)
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "message added")
	assert.Contains(t, buf.String(), m.ID.String())
}

func TestGroupEntityIsNameable(t *testing.T) {
	c := newClock()
	s := newStore(t, stash.WithClock(c.Now))
	g, err := s.AddMessageToGroup(ctx(), "X", message.New([]byte("a")))
	require.NoError(t, err)

	var e stash.Entity = g.Entity
	assert.Equal(t, stash.NewEntity(c.now), e)
}
