package nats

import (
	"regexp"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/stash/group"
	"github.com/xraph/stash/message"
)

var validKey = regexp.MustCompile(`^[-/_=.a-zA-Z0-9]+$`)

func TestKeysAreValidSubjects(t *testing.T) {
	id := uuid.New()
	for _, region := range []string{"DEFAULT", "eu west", "a.b.c", "ünïcode/*>"} {
		for _, key := range []string{
			messageKey(region, id),
			groupKey(region, "order 42.*"),
		} {
			assert.Regexp(t, validKey, key)
		}
	}
}

func TestKeysSeparateRegions(t *testing.T) {
	id := uuid.New()
	assert.NotEqual(t, messageKey("a.msg", id), messageKey("a", id))
	assert.NotEqual(t, groupKey("a", "b.grp.c"), groupKey("a.grp.b", "c"))
	assert.Regexp(t, "^"+regexp.QuoteMeta(encodeToken("r"))+`\.msg\.`, messageKey("r", id))
}

func TestMessageCodecRoundTrip(t *testing.T) {
	msg := message.New([]byte("payload"),
		message.WithCorrelationID("order-1"),
		message.WithHeader("tenant", "acme"),
	)
	msg.Headers.Saved = true
	msg.Headers.CreatedTimestamp = 1_700_000_000_000
	fp, err := message.Fingerprint(msg)
	require.NoError(t, err)

	raw, err := encodeMessage(&message.Record{Region: "R", Message: msg, Fingerprint: fp, UpdatedAt: 5})
	require.NoError(t, err)

	rec, err := decodeMessage(raw, 7)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), rec.Version, "version comes from the KV revision")
	assert.Equal(t, "R", rec.Region)
	assert.Equal(t, msg.ID, rec.ID())
	assert.Equal(t, fp, rec.Fingerprint)
	assert.True(t, rec.Message.IsSaved())
	assert.True(t, message.SameContent(msg, rec.Message))
}

func TestGroupCodecRoundTrip(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	g := &group.Group{Region: "R", CorrelationID: "order-1", Members: []uuid.UUID{a, b}, Marked: []uuid.UUID{b}}
	g.CreatedAt = 10
	g.UpdatedAt = 20

	raw, err := encodeGroup(g)
	require.NoError(t, err)

	got, err := decodeGroup(raw, 3)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{a, b}, got.Members)
	assert.Equal(t, []uuid.UUID{b}, got.Marked)
	assert.Equal(t, int64(10), got.Timestamp())
	assert.Equal(t, uint64(3), got.Version)
}
