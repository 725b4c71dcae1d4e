package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gochat/internal/client/ledger"
	"gochat/internal/common"
)

const self = "user-a"

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	led := ledger.New(t.TempDir(), self, time.Hour)
	require.NoError(t, led.Load())
	t.Cleanup(func() { _ = led.Close() })
	return New(self, led)
}

func msg(id, sender, receiver, content string, at time.Time) common.Message {
	return common.Message{
		ID:         id,
		SenderID:   sender,
		ReceiverID: receiver,
		Content:    content,
		CreatedAt:  at,
	}
}

func TestCache_MergeHistoryOrdersAndDedupes(t *testing.T) {
	c := newTestCache(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	c.MergeHistory("user-b", []common.Message{
		msg("m2", "user-b", self, "second", base.Add(time.Minute)),
		msg("m1", self, "user-b", "first", base),
	})
	// overlapping re-fetch must not duplicate
	c.MergeHistory("user-b", []common.Message{
		msg("m2", "user-b", self, "second", base.Add(time.Minute)),
		msg("m3", "user-b", self, "third", base.Add(2*time.Minute)),
	})

	got := c.Messages("user-b")
	require.Len(t, got, 3)
	assert.Equal(t, "m1", got[0].ID)
	assert.Equal(t, "m2", got[1].ID)
	assert.Equal(t, "m3", got[2].ID)
}

func TestCache_LiveAndHistoryRaceResortsByCreatedAt(t *testing.T) {
	c := newTestCache(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// live message arrives before the older history does
	c.AddLive(msg("m2", "user-b", self, "newer", base.Add(time.Minute)))
	c.MergeHistory("user-b", []common.Message{
		msg("m1", "user-b", self, "older", base),
	})

	got := c.Messages("user-b")
	require.Len(t, got, 2)
	assert.Equal(t, "m1", got[0].ID)
	assert.Equal(t, "m2", got[1].ID)
}

func TestCache_PendingReplacedByConfirmation(t *testing.T) {
	c := newTestCache(t)

	pending := c.AddPending("user-b", "hello", "ref-1")
	require.True(t, pending.Pending)

	confirmed := msg("srv-1", self, "user-b", "hello", time.Now().UTC())
	c.Confirm(confirmed, "ref-1")

	got := c.Messages("user-b")
	require.Len(t, got, 1)
	assert.Equal(t, "srv-1", got[0].ID)
	assert.False(t, got[0].Pending)
}

func TestCache_ConfirmAfterPushReplayYieldsSingleEntry(t *testing.T) {
	c := newTestCache(t)
	at := time.Now().UTC()

	// fallback send: optimistic entry, then the push channel replays the
	// stored message before the fallback response is reconciled
	c.AddPending("user-b", "hello", "ref-1")
	c.AddLive(msg("srv-1", self, "user-b", "hello", at))
	c.Confirm(msg("srv-1", self, "user-b", "hello", at), "ref-1")

	got := c.Messages("user-b")
	require.Len(t, got, 1)
	assert.Equal(t, "srv-1", got[0].ID)
}

func TestCache_ConcurrentIdenticalPendingsMatchByRef(t *testing.T) {
	c := newTestCache(t)

	// two in-flight sends with the same content; refs must decide the match
	c.AddPending("user-b", "hello", "ref-1")
	c.AddPending("user-b", "hello", "ref-2")

	c.Confirm(msg("srv-2", self, "user-b", "hello", time.Now().UTC()), "ref-2")

	got := c.Messages("user-b")
	require.Len(t, got, 2)

	var confirmed, pending int
	for _, e := range got {
		if e.Pending {
			pending++
			assert.Equal(t, "ref-1", e.ClientRef, "the other send must stay pending untouched")
		} else {
			confirmed++
			assert.Equal(t, "srv-2", e.ID)
		}
	}
	assert.Equal(t, 1, confirmed)
	assert.Equal(t, 1, pending)
}

func TestCache_ConfirmWithoutPendingActsAsLive(t *testing.T) {
	c := newTestCache(t)

	c.Confirm(msg("srv-1", self, "user-b", "hello", time.Now().UTC()), "unknown-ref")

	got := c.Messages("user-b")
	require.Len(t, got, 1)
	assert.Equal(t, "srv-1", got[0].ID)
}

func TestCache_RetractRemovesFailedSend(t *testing.T) {
	c := newTestCache(t)

	c.AddPending("user-b", "hello", "ref-1")
	c.Retract("ref-1")

	assert.Empty(t, c.Messages("user-b"))
}

func TestCache_UnreadCounting(t *testing.T) {
	c := newTestCache(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	c.AddLive(msg("m1", "user-b", self, "one", base))
	c.AddLive(msg("m2", "user-b", self, "two", base.Add(time.Minute)))
	// own messages never count
	c.AddLive(msg("m3", self, "user-b", "reply", base.Add(2*time.Minute)))

	count, ok := c.Unread("user-b")
	require.True(t, ok)
	assert.Equal(t, 2, count)

	c.OpenConversation("user-b")

	count, ok = c.Unread("user-b")
	require.True(t, ok)
	assert.Equal(t, 0, count)

	// idempotent: opening again keeps the count at zero
	c.OpenConversation("user-b")
	count, _ = c.Unread("user-b")
	assert.Equal(t, 0, count)
}

func TestCache_UnreadUnknownBeforeLedgerLoad(t *testing.T) {
	led := ledger.New(t.TempDir(), self, time.Hour)
	c := New(self, led)

	c.AddLive(msg("m1", "user-b", self, "one", time.Now().UTC()))

	_, ok := c.Unread("user-b")
	assert.False(t, ok, "count must be unknown, not zero, before the ledger loads")

	require.NoError(t, led.Load())
	count, ok := c.Unread("user-b")
	require.True(t, ok)
	assert.Equal(t, 1, count)
}

func TestCache_UnreadSurvivesRestart(t *testing.T) {
	dir := t.TempDir()

	led := ledger.New(dir, self, time.Hour)
	require.NoError(t, led.Load())
	c := New(self, led)
	c.AddLive(msg("m1", "user-b", self, "one", time.Now().UTC()))
	c.OpenConversation("user-b")
	require.NoError(t, led.Close())

	// fresh session over the same state dir
	led2 := ledger.New(dir, self, time.Hour)
	require.NoError(t, led2.Load())
	c2 := New(self, led2)
	c2.AddLive(msg("m1", "user-b", self, "one", time.Now().UTC()))

	count, ok := c2.Unread("user-b")
	require.True(t, ok)
	assert.Equal(t, 0, count)
}

func TestCache_Summaries(t *testing.T) {
	c := newTestCache(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	c.AddLive(msg("m1", "user-b", self, "from b", base))
	c.AddLive(msg("m2", "user-c", self, "from c", base.Add(time.Minute)))
	c.OpenConversation("user-c")

	got := c.Summaries()
	require.Len(t, got, 2)

	// most recent conversation first
	assert.Equal(t, "user-c", got[0].Peer)
	assert.Equal(t, "m2", got[0].Last.ID)
	require.True(t, got[0].UnreadKnown)
	assert.Equal(t, 0, got[0].Unread)

	assert.Equal(t, "user-b", got[1].Peer)
	require.True(t, got[1].UnreadKnown)
	assert.Equal(t, 1, got[1].Unread)
}

func TestCache_IgnoresForeignMessages(t *testing.T) {
	c := newTestCache(t)

	// neither party is the local user
	c.AddLive(msg("m1", "user-b", "user-c", "not mine", time.Now().UTC()))

	assert.Empty(t, c.Summaries())
}
