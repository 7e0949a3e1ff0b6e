package reaper_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/stash"
	"github.com/xraph/stash/message"
	"github.com/xraph/stash/reaper"
	"github.com/xraph/stash/store/memory"
)

func ctx() context.Context { return context.Background() }

// clock is a settable time source.
type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newStore(t *testing.T, c *clock) *stash.Store {
	t.Helper()
	s, err := stash.New(
		stash.WithBackend(memory.New()),
		stash.WithClock(c.Now),
	)
	require.NoError(t, err)
	return s
}

func TestRunOnceExpiresOldGroups(t *testing.T) {
	c := &clock{now: time.UnixMilli(1_700_000_000_000)}
	s := newStore(t, c)

	_, err := s.AddMessageToGroup(ctx(), "old", message.New([]byte("a")))
	require.NoError(t, err)
	_, err = s.InRegion("EU").AddMessageToGroup(ctx(), "old-eu", message.New([]byte("b")))
	require.NoError(t, err)

	c.now = c.now.Add(time.Minute)
	_, err = s.AddMessageToGroup(ctx(), "fresh", message.New([]byte("c")))
	require.NoError(t, err)

	r, err := reaper.New(s, 30*time.Second, reaper.WithRegions(stash.DefaultRegion, "EU"))
	require.NoError(t, err)

	expired, err := r.RunOnce(ctx())
	require.NoError(t, err)
	assert.Equal(t, map[string]int{stash.DefaultRegion: 1, "EU": 1}, expired)

	n, err := s.MessageGroupCount(ctx())
	require.NoError(t, err)
	assert.Equal(t, 1, n, "the fresh group must survive")
}

func TestRunOnceDefaultsToStoreRegion(t *testing.T) {
	c := &clock{now: time.UnixMilli(1_700_000_000_000)}
	s := newStore(t, c).InRegion("APAC")

	_, err := s.AddMessageToGroup(ctx(), "g", message.New([]byte("a")))
	require.NoError(t, err)

	r, err := reaper.New(s, -1)
	require.NoError(t, err)

	expired, err := r.RunOnce(ctx())
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"APAC": 1}, expired)
}

func TestRunOnceReportsBackendFailure(t *testing.T) {
	backend := memory.New()
	s, err := stash.New(stash.WithBackend(backend))
	require.NoError(t, err)
	require.NoError(t, backend.Close())

	r, err := reaper.New(s, time.Second)
	require.NoError(t, err)

	_, err = r.RunOnce(ctx())
	require.Error(t, err)
	assert.ErrorIs(t, err, stash.ErrStoreClosed)
	assert.True(t, stash.IsStorageError(err))
}

func TestInvalidSchedule(t *testing.T) {
	s := newStore(t, &clock{now: time.Now()})
	_, err := reaper.New(s, time.Second, reaper.WithSchedule("not a schedule"))
	require.Error(t, err)
}

func TestStartStop(t *testing.T) {
	s, err := stash.New(stash.WithBackend(memory.New()))
	require.NoError(t, err)

	_, err = s.AddMessageToGroup(ctx(), "g", message.New([]byte("a")))
	require.NoError(t, err)

	r, err := reaper.New(s, -1, reaper.WithSchedule("@every 1s"))
	require.NoError(t, err)

	require.NoError(t, r.Start(ctx()))
	require.NoError(t, r.Start(ctx()), "second start is a no-op")

	require.Eventually(t, func() bool {
		n, err := s.MessageGroupCount(ctx())
		return err == nil && n == 0
	}, 5*time.Second, 50*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Stop(stopCtx))
	require.NoError(t, r.Stop(stopCtx), "second stop is a no-op")
}
