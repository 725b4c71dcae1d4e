package session

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"gochat/internal/client/cache"
	"gochat/internal/client/conn"
	"gochat/internal/client/ledger"
	"gochat/internal/client/rest"
	"gochat/internal/common"
	"gochat/internal/config"
)

const ledgerFlushDelay = 2 * time.Second

// Session owns the client-side moving parts for one local user: the
// connection manager, the conversation cache, the read-state ledger and the
// fallback channel. It routes live events into the cache and picks the send
// channel by connection status.
type Session struct {
	self        string
	displayName string

	manager *conn.Manager
	cache   *cache.Cache
	ledger  *ledger.Ledger
	rest    *rest.Client
	timeout time.Duration

	mu       sync.Mutex
	onError  func(string)           // transient banner, auto-expiring in the UI
	onChange func()                 // conversation state changed, re-render
	acks     map[string]*time.Timer // clientRef -> push-ack deadline

	presence   []string
	activities map[string]string
}

// New wires a session for userID over the given transport; production
// callers pass conn.WebSocketTransport{}. Nothing connects until Start.
func New(cfg config.ClientConfig, transport conn.Transport, userID, displayName, token string) *Session {
	led := ledger.New(cfg.StateDir, userID, ledgerFlushDelay)
	s := &Session{
		self:        userID,
		displayName: displayName,
		ledger:      led,
		cache:       cache.New(userID, led),
		rest:        rest.NewClient(cfg.ServerURL, cfg.RequestTimeout),
		timeout:     cfg.RequestTimeout,
		acks:        make(map[string]*time.Timer),
		activities:  make(map[string]string),
	}
	s.manager = conn.NewManager(transport, conn.Options{
		URL:          pushURL(cfg.ServerURL),
		Retries:      cfg.ReconnectRetries,
		RetryDelay:   cfg.ReconnectDelay,
		PingInterval: cfg.HeartbeatInterval,
		PingTimeout:  cfg.RequestTimeout,
		Token:        token,
	})
	s.subscribe()
	return s
}

// pushURL derives the websocket endpoint from the REST base URL.
func pushURL(base string) string {
	u := strings.TrimSuffix(base, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/ws"
}

// subscribe wires the manager's events into the cache. Keys are fixed so the
// wiring stays idempotent across reconnects.
func (s *Session) subscribe() {
	s.manager.SubscribeMessages("session", func(msg common.Message) {
		s.cache.AddLive(msg)
		s.notify()
	})
	s.manager.SubscribeAcks("session", func(msg common.Message, clientRef string) {
		s.resolveAck(clientRef)
		s.cache.Confirm(msg, clientRef)
		s.notify()
	})
	s.manager.SubscribeErrors("session", func(kind, msg, clientRef string) {
		s.resolveAck(clientRef)
		s.cache.Retract(clientRef)
		s.reportError(kind + ": " + msg)
		s.notify()
	})
	s.manager.SubscribePresence("session", func(users []string, activities map[string]string) {
		s.mu.Lock()
		s.presence = users
		s.activities = activities
		s.mu.Unlock()
		s.notify()
	})
	s.manager.SubscribeActivity("session", func(userID, activity string) {
		s.mu.Lock()
		s.activities[userID] = activity
		s.mu.Unlock()
		s.notify()
	})
	s.manager.SubscribeStatus("session", func(st conn.Status) {
		if st == conn.StatusDisconnected {
			s.reportError("connection lost, sending via fallback")
		}
		s.notify()
	})
}

// Start loads the ledger and begins connecting. The ledger load happens
// before the first live message can arrive so unread accounting is never
// computed against a half-loaded set.
func (s *Session) Start() error {
	if err := s.ledger.Load(); err != nil {
		return err
	}
	s.manager.Connect(s.self, s.displayName)
	return nil
}

// Stop disconnects and flushes the ledger.
func (s *Session) Stop() {
	s.mu.Lock()
	for ref, timer := range s.acks {
		timer.Stop()
		delete(s.acks, ref)
	}
	s.mu.Unlock()

	s.manager.Disconnect()
	if err := s.ledger.Close(); err != nil {
		log.Printf("session: ledger flush on stop: %v", err)
	}
}

// Send delivers content to receiverID over the push channel when connected,
// otherwise over the fallback channel. Either way an optimistic entry shows
// up in the cache immediately and is reconciled, or retracted, once the
// outcome is known.
func (s *Session) Send(ctx context.Context, receiverID, content string) error {
	if strings.TrimSpace(content) == "" {
		return common.NewValidationError("message content cannot be empty")
	}

	clientRef := uuid.NewString()
	s.cache.AddPending(receiverID, content, clientRef)
	s.notify()

	if s.manager.Status() == conn.StatusConnected {
		if err := s.manager.Send(receiverID, content, clientRef); err == nil {
			// reconciliation happens when message_sent echoes clientRef; if
			// the transport drops before the ack arrives, the deadline below
			// retries over the fallback channel so the entry never hangs
			// pending
			s.trackAck(receiverID, content, clientRef)
			return nil
		}
		// push write failed mid-flight, fall through to the fallback path
	}

	msg, err := s.rest.Send(ctx, s.self, receiverID, content)
	if err != nil {
		s.cache.Retract(clientRef)
		s.notify()
		return err
	}
	// fold the acknowledged message in now so a later push-channel replay
	// of the same ID dedupes instead of duplicating
	s.cache.Confirm(*msg, clientRef)
	s.notify()
	return nil
}

// OpenConversation fetches history for peer, merges it into the cache and
// marks everything from peer as read. Returns the merged ordered messages.
func (s *Session) OpenConversation(ctx context.Context, peer string) ([]cache.Entry, error) {
	// already-known messages are marked read up front so the unread badge
	// drops to zero immediately instead of flickering for the duration of
	// the fetch
	s.cache.OpenConversation(peer)
	s.notify()

	msgs, err := s.rest.Fetch(ctx, s.self, peer)
	if err != nil {
		// offline: serve what the cache already has rather than failing the
		// whole screen, but still surface the fetch problem
		s.reportError("history fetch failed: " + err.Error())
	} else {
		flat := make([]common.Message, 0, len(msgs))
		for _, m := range msgs {
			flat = append(flat, *m)
		}
		s.cache.MergeHistory(peer, flat)
	}

	s.cache.OpenConversation(peer)
	s.notify()
	return s.cache.Messages(peer), err
}

// trackAck arms a deadline for the server's answer to a push-channel send.
// The ack or error event disarms it; expiry means the transport dropped with
// the send in flight.
func (s *Session) trackAck(receiverID, content, clientRef string) {
	timer := time.AfterFunc(s.timeout, func() {
		s.ackTimedOut(receiverID, content, clientRef)
	})
	s.mu.Lock()
	s.acks[clientRef] = timer
	s.mu.Unlock()
}

func (s *Session) resolveAck(clientRef string) {
	s.mu.Lock()
	if timer, ok := s.acks[clientRef]; ok {
		timer.Stop()
		delete(s.acks, clientRef)
	}
	s.mu.Unlock()
}

// ackTimedOut retries an unacknowledged push send over the fallback channel;
// if that also fails the optimistic entry is retracted and the user told.
func (s *Session) ackTimedOut(receiverID, content, clientRef string) {
	s.mu.Lock()
	delete(s.acks, clientRef)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	msg, err := s.rest.Send(ctx, s.self, receiverID, content)
	if err != nil {
		s.cache.Retract(clientRef)
		s.reportError("send not acknowledged: " + err.Error())
		s.notify()
		return
	}
	s.cache.Confirm(*msg, clientRef)
	s.notify()
}

// Peers returns everyone the local user has exchanged messages with.
func (s *Session) Peers(ctx context.Context) ([]string, error) {
	return s.rest.Peers(ctx, s.self)
}

// SetActivity broadcasts the local activity label; a failure is surfaced as
// a banner, not an error, since activity is best-effort.
func (s *Session) SetActivity(label string) {
	if err := s.manager.SetActivity(label); err != nil {
		s.reportError("activity update failed: " + err.Error())
	}
}

func (s *Session) Summaries() []cache.Summary     { return s.cache.Summaries() }
func (s *Session) Messages(peer string) []cache.Entry { return s.cache.Messages(peer) }
func (s *Session) Unread(peer string) (int, bool) { return s.cache.Unread(peer) }
func (s *Session) Status() conn.Status            { return s.manager.Status() }

// Online returns the latest presence broadcast.
func (s *Session) Online() (users []string, activities map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	users = append([]string(nil), s.presence...)
	activities = make(map[string]string, len(s.activities))
	for k, v := range s.activities {
		activities[k] = v
	}
	return users, activities
}

// OnError registers the transient error banner hook.
func (s *Session) OnError(fn func(string)) {
	s.mu.Lock()
	s.onError = fn
	s.mu.Unlock()
}

// OnChange registers a re-render hook fired after any cache or presence
// mutation.
func (s *Session) OnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

func (s *Session) reportError(msg string) {
	s.mu.Lock()
	fn := s.onError
	s.mu.Unlock()
	if fn != nil {
		fn(msg)
	} else {
		log.Printf("session: %s", msg)
	}
}

func (s *Session) notify() {
	s.mu.Lock()
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}
