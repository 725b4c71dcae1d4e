package cache

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"gochat/internal/client/ledger"
	"gochat/internal/common"
)

// Entry is one message as the UI sees it. Pending entries are optimistic
// local echoes that have not been confirmed by the server yet; they carry a
// locally generated ID which is replaced once the server-assigned one
// arrives.
type Entry struct {
	common.Message
	Pending   bool
	ClientRef string
}

// Summary is one row of the conversation list.
type Summary struct {
	Peer        string
	Last        Entry
	Unread      int
	UnreadKnown bool
}

// Cache merges historical fetches, the live event stream and the read-state
// ledger into per-peer ordered conversations. All methods are safe for
// concurrent use.
type Cache struct {
	mu     sync.Mutex
	self   string
	ledger *ledger.Ledger

	conversations map[string][]Entry
}

func New(selfID string, led *ledger.Ledger) *Cache {
	return &Cache{
		self:          selfID,
		ledger:        led,
		conversations: make(map[string][]Entry),
	}
}

// MergeHistory folds a fetched conversation into the cache. Messages already
// known by ID are updated in place, everything else is appended, and the
// conversation is re-sorted by creation time since history and live arrivals
// can race.
func (c *Cache) MergeHistory(peer string, msgs []common.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, m := range msgs {
		c.upsertLocked(peer, Entry{Message: m})
	}
	c.sortLocked(peer)
}

// AddLive folds a single message from the push channel into the cache. The
// same message may have been observed earlier through the fallback channel;
// dedup is by server-assigned ID, so a replay is a no-op.
func (c *Cache) AddLive(msg common.Message) {
	peer := c.peerOf(msg)
	if peer == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.upsertLocked(peer, Entry{Message: msg})
	c.sortLocked(peer)
}

// AddPending records an optimistic entry for a just-sent message and returns
// it. The entry carries a locally generated ID until Confirm replaces it with
// the server-assigned message.
func (c *Cache) AddPending(peer, content, clientRef string) Entry {
	entry := Entry{
		Message: common.Message{
			ID:         "local-" + uuid.NewString(),
			SenderID:   c.self,
			ReceiverID: peer,
			Content:    content,
			CreatedAt:  time.Now().UTC(),
		},
		Pending:   true,
		ClientRef: clientRef,
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.conversations[peer] = append(c.conversations[peer], entry)
	c.sortLocked(peer)
	return entry
}

// Confirm reconciles a server-confirmed message with its optimistic entry.
// The pending entry is matched by client reference first, then by
// sender/content as a fallback, and replaced in place rather than appended
// alongside. A confirmation with no matching pending entry (fallback send,
// replay after reconnect) is folded in like any live message.
func (c *Cache) Confirm(msg common.Message, clientRef string) {
	peer := c.peerOf(msg)
	if peer == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entries := c.conversations[peer]
	for i := range entries {
		if !entries[i].Pending {
			continue
		}
		if matchesPending(entries[i], msg, clientRef) {
			entries[i] = Entry{Message: msg}
			c.dedupLocked(peer)
			c.sortLocked(peer)
			return
		}
	}
	c.upsertLocked(peer, Entry{Message: msg})
	c.sortLocked(peer)
}

// matchesPending pairs a confirmation with its optimistic entry. When both
// sides carry a client reference the refs decide; the sender/content
// heuristic only applies when one side predates references, so two
// concurrent identical-content sends never cross-replace.
func matchesPending(e Entry, msg common.Message, clientRef string) bool {
	if clientRef != "" && e.ClientRef != "" {
		return e.ClientRef == clientRef
	}
	return e.SenderID == msg.SenderID && e.Content == msg.Content
}

// Retract removes a failed optimistic entry so the UI does not keep showing
// a message the server rejected.
func (c *Cache) Retract(clientRef string) {
	if clientRef == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for peer, entries := range c.conversations {
		for i := range entries {
			if entries[i].Pending && entries[i].ClientRef == clientRef {
				c.conversations[peer] = append(entries[:i], entries[i+1:]...)
				return
			}
		}
	}
}

// OpenConversation marks every known message from peer as read by recording
// the IDs in the ledger. Calling it twice in a row is a no-op the second
// time.
func (c *Cache) OpenConversation(peer string) {
	c.mu.Lock()
	var ids []string
	for _, e := range c.conversations[peer] {
		if e.Pending || e.ReceiverID != c.self {
			continue
		}
		ids = append(ids, e.ID)
	}
	c.mu.Unlock()

	if len(ids) > 0 {
		c.ledger.Add(ids...)
	}
}

// Unread reports the number of messages from peer the local user has not
// seen. Before the ledger has loaded the count is unknown and ok is false;
// reporting zero instead would flash an empty badge that fills in later.
func (c *Cache) Unread(peer string) (count int, ok bool) {
	if !c.ledger.Loaded() {
		return 0, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unreadLocked(peer), true
}

// Messages returns the ordered conversation with peer.
func (c *Cache) Messages(peer string) []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := c.conversations[peer]
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out
}

// Summaries returns one row per known peer, most recent conversation first.
func (c *Cache) Summaries() []Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	loaded := c.ledger.Loaded()
	out := make([]Summary, 0, len(c.conversations))
	for peer, entries := range c.conversations {
		if len(entries) == 0 {
			continue
		}
		s := Summary{Peer: peer, Last: entries[len(entries)-1]}
		if loaded {
			s.Unread = c.unreadLocked(peer)
			s.UnreadKnown = true
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Last.CreatedAt.Equal(out[j].Last.CreatedAt) {
			return out[i].Peer < out[j].Peer
		}
		return out[i].Last.CreatedAt.After(out[j].Last.CreatedAt)
	})
	return out
}

func (c *Cache) unreadLocked(peer string) int {
	count := 0
	for _, e := range c.conversations[peer] {
		if e.Pending || e.ReceiverID != c.self {
			continue
		}
		if seen, _ := c.ledger.Contains(e.ID); !seen {
			count++
		}
	}
	return count
}

// upsertLocked updates an existing entry by server ID or appends a new one.
func (c *Cache) upsertLocked(peer string, entry Entry) {
	entries := c.conversations[peer]
	for i := range entries {
		if !entries[i].Pending && entries[i].ID == entry.ID {
			entries[i] = entry
			return
		}
	}
	c.conversations[peer] = append(entries, entry)
}

// dedupLocked drops later duplicates of the same server ID, keeping the
// first occurrence. Needed after Confirm replaces a pending entry whose
// confirmed twin may already have arrived on the push channel.
func (c *Cache) dedupLocked(peer string) {
	entries := c.conversations[peer]
	seen := make(map[string]bool, len(entries))
	kept := entries[:0]
	for _, e := range entries {
		if !e.Pending {
			if seen[e.ID] {
				continue
			}
			seen[e.ID] = true
		}
		kept = append(kept, e)
	}
	c.conversations[peer] = kept
}

func (c *Cache) sortLocked(peer string) {
	entries := c.conversations[peer]
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
}

// peerOf resolves which conversation a message belongs to from the local
// user's point of view.
func (c *Cache) peerOf(msg common.Message) string {
	switch {
	case msg.SenderID == c.self:
		return strings.TrimSpace(msg.ReceiverID)
	case msg.ReceiverID == c.self:
		return strings.TrimSpace(msg.SenderID)
	default:
		return ""
	}
}
