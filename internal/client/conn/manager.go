// Package conn owns the client's persistent push connection: the
// connect/authenticate handshake, reconnection with backoff, heartbeat
// liveness, and a typed event surface for the rest of the client.
package conn

import (
	"context"
	"log"
	"sync"
	"time"

	"gochat/internal/common"
)

type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Options tunes the manager. Reconnection is a fixed retry count with a fixed
// delay; once retries are exhausted the manager settles in disconnected until
// the caller connects again.
type Options struct {
	URL          string
	Retries      int
	RetryDelay   time.Duration
	PingInterval time.Duration
	PingTimeout  time.Duration
	Token        string // optional identity token passed on authenticate
}

type Manager struct {
	transport Transport
	opts      Options

	mu          sync.Mutex
	status      Status
	conn        Conn
	cancel      context.CancelFunc
	userID      string
	displayName string

	// keyed handler maps: re-subscribing under the same key replaces the
	// handler instead of stacking a duplicate, so reconnect-time re-wiring
	// never double-delivers
	onMessage  map[string]func(common.Message)
	onAck      map[string]func(common.Message, string)
	onError    map[string]func(kind, msg, clientRef string)
	onPresence map[string]func(users []string, activities map[string]string)
	onActivity map[string]func(userID, activity string)
	onStatus   map[string]func(Status)
}

func NewManager(transport Transport, opts Options) *Manager {
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 3 * time.Second
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.PingTimeout <= 0 {
		opts.PingTimeout = 10 * time.Second
	}
	return &Manager{
		transport:  transport,
		opts:       opts,
		onMessage:  make(map[string]func(common.Message)),
		onAck:      make(map[string]func(common.Message, string)),
		onError:    make(map[string]func(kind, msg, clientRef string)),
		onPresence: make(map[string]func([]string, map[string]string)),
		onActivity: make(map[string]func(string, string)),
		onStatus:   make(map[string]func(Status)),
	}
}

// Connect starts the connection loop for the given identity and returns
// immediately; progress is observable through the status subscription. A
// second Connect while a session is live is a no-op.
func (m *Manager) Connect(userID, displayName string) {
	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.userID = userID
	m.displayName = displayName
	m.mu.Unlock()

	go m.run(ctx)
}

// Disconnect tears the session down and settles in disconnected.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	cancel := m.cancel
	conn := m.conn
	m.cancel = nil
	m.conn = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}
	m.setStatus(StatusDisconnected)
}

// Send fires a message over the push channel. Before the handshake has
// completed this fails with a transport error; it is never silently dropped.
func (m *Manager) Send(receiverID, content, clientRef string) error {
	m.mu.Lock()
	conn := m.conn
	sender := m.userID
	m.mu.Unlock()

	if conn == nil {
		return common.NewTransportError("push channel not connected", nil)
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.opts.PingTimeout)
	defer cancel()
	return conn.WriteEnvelope(ctx, common.Envelope{
		Event:      common.EventSendMessage,
		SenderID:   sender,
		ReceiverID: receiverID,
		Content:    content,
		ClientRef:  clientRef,
	})
}

// SetActivity broadcasts the local user's activity label.
func (m *Manager) SetActivity(label string) error {
	m.mu.Lock()
	conn := m.conn
	userID := m.userID
	m.mu.Unlock()

	if conn == nil {
		return common.NewTransportError("push channel not connected", nil)
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.opts.PingTimeout)
	defer cancel()
	return conn.WriteEnvelope(ctx, common.Envelope{
		Event:    common.EventUpdateActivity,
		UserID:   userID,
		Activity: label,
	})
}

func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Subscription surface. Each method registers under a caller-chosen key;
// registering the same key again replaces the previous handler.

func (m *Manager) SubscribeMessages(key string, fn func(common.Message)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onMessage[key] = fn
}

func (m *Manager) SubscribeAcks(key string, fn func(msg common.Message, clientRef string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onAck[key] = fn
}

func (m *Manager) SubscribeErrors(key string, fn func(kind, msg, clientRef string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onError[key] = fn
}

func (m *Manager) SubscribePresence(key string, fn func(users []string, activities map[string]string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onPresence[key] = fn
}

func (m *Manager) SubscribeActivity(key string, fn func(userID, activity string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onActivity[key] = fn
}

func (m *Manager) SubscribeStatus(key string, fn func(Status)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStatus[key] = fn
}

// Unsubscribe drops the key from every event surface.
func (m *Manager) Unsubscribe(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.onMessage, key)
	delete(m.onAck, key)
	delete(m.onError, key)
	delete(m.onPresence, key)
	delete(m.onActivity, key)
	delete(m.onStatus, key)
}

// run is the session loop: dial, handshake, pump events, and on transport
// failure retry with the fixed policy until exhausted.
func (m *Manager) run(ctx context.Context) {
	attempts := 0
	for {
		if ctx.Err() != nil {
			return
		}

		m.setStatus(StatusConnecting)

		dialCtx, cancel := context.WithTimeout(ctx, m.opts.PingTimeout)
		conn, err := m.transport.Dial(dialCtx, m.opts.URL)
		cancel()
		if err != nil {
			attempts++
			if attempts > m.opts.Retries {
				log.Printf("conn: retries exhausted after %d attempts: %v", attempts, err)
				m.setStatus(StatusDisconnected)
				m.clearSession()
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(m.opts.RetryDelay):
			}
			continue
		}
		attempts = 0

		// application-level handshake before the connection is usable
		hsCtx, hsCancel := context.WithTimeout(ctx, m.opts.PingTimeout)
		err = conn.WriteEnvelope(hsCtx, common.Envelope{
			Event:       common.EventAuthenticate,
			UserID:      m.userID,
			DisplayName: m.displayName,
			Token:       m.opts.Token,
		})
		hsCancel()
		if err != nil {
			_ = conn.Close()
			continue
		}

		m.mu.Lock()
		m.conn = conn
		m.mu.Unlock()
		m.setStatus(StatusConnected)

		m.pump(ctx, conn)

		m.mu.Lock()
		m.conn = nil
		m.mu.Unlock()
		_ = conn.Close()

		if ctx.Err() != nil {
			return
		}
		// transport-level drop: re-enter connecting automatically
	}
}

// pump reads events until the connection dies; a parallel heartbeat treats a
// ping timeout as an implicit disconnect by closing the connection under the
// reader.
func (m *Manager) pump(ctx context.Context, conn Conn) {
	pumpCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		ticker := time.NewTicker(m.opts.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-pumpCtx.Done():
				return
			case <-ticker.C:
				pingCtx, pingCancel := context.WithTimeout(pumpCtx, m.opts.PingTimeout)
				err := conn.Ping(pingCtx)
				pingCancel()
				if err != nil {
					_ = conn.Close()
					return
				}
			}
		}
	}()

	for {
		ev, err := conn.ReadEnvelope(pumpCtx)
		if err != nil {
			return
		}
		m.dispatch(ev)
	}
}

func (m *Manager) dispatch(ev common.Envelope) {
	switch ev.Event {
	case common.EventReceiveMessage:
		if ev.Message == nil {
			return
		}
		for _, fn := range m.messageHandlers() {
			fn(*ev.Message)
		}
	case common.EventMessageSent:
		if ev.Message == nil {
			return
		}
		for _, fn := range m.ackHandlers() {
			fn(*ev.Message, ev.ClientRef)
		}
	case common.EventMessageError:
		for _, fn := range m.errorHandlers() {
			fn(ev.ErrorKind, ev.Error, ev.ClientRef)
		}
	case common.EventUsersOnline:
		for _, fn := range m.presenceHandlers() {
			fn(ev.Users, ev.Activities)
		}
	case common.EventActivityUpdated:
		for _, fn := range m.activityHandlers() {
			fn(ev.UserID, ev.Activity)
		}
	case common.EventUserConnected, common.EventUserDisconnected:
		// the full users_online broadcast follows; nothing to do here
	}
}

func (m *Manager) setStatus(s Status) {
	m.mu.Lock()
	if m.status == s {
		m.mu.Unlock()
		return
	}
	m.status = s
	handlers := make([]func(Status), 0, len(m.onStatus))
	for _, fn := range m.onStatus {
		handlers = append(handlers, fn)
	}
	m.mu.Unlock()

	for _, fn := range handlers {
		fn(s)
	}
}

func (m *Manager) clearSession() {
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.mu.Unlock()
}

func (m *Manager) messageHandlers() []func(common.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]func(common.Message), 0, len(m.onMessage))
	for _, fn := range m.onMessage {
		out = append(out, fn)
	}
	return out
}

func (m *Manager) ackHandlers() []func(common.Message, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]func(common.Message, string), 0, len(m.onAck))
	for _, fn := range m.onAck {
		out = append(out, fn)
	}
	return out
}

func (m *Manager) errorHandlers() []func(string, string, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]func(string, string, string), 0, len(m.onError))
	for _, fn := range m.onError {
		out = append(out, fn)
	}
	return out
}

func (m *Manager) presenceHandlers() []func([]string, map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]func([]string, map[string]string), 0, len(m.onPresence))
	for _, fn := range m.onPresence {
		out = append(out, fn)
	}
	return out
}

func (m *Manager) activityHandlers() []func(string, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]func(string, string), 0, len(m.onActivity))
	for _, fn := range m.onActivity {
		out = append(out, fn)
	}
	return out
}
