package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"gochat/internal/common"
	"gochat/internal/config"
	"gochat/internal/dbmysql"
	"gochat/internal/delivery"
	"gochat/internal/message/service"
	"gochat/internal/presence"
)

// memRepo is an in-memory MessageRepository for exercising the full
// hub -> router -> service path over a real websocket.
type memRepo struct {
	mu       sync.Mutex
	messages []*dbmysql.Message
	failSave bool
}

func (m *memRepo) Save(_ context.Context, msg *dbmysql.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSave {
		return assert.AnError
	}
	cp := *msg
	m.messages = append(m.messages, &cp)
	return nil
}

func (m *memRepo) History(_ context.Context, userA, userB string) ([]*dbmysql.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*dbmysql.Message
	for _, msg := range m.messages {
		if (msg.SenderID == userA && msg.ReceiverID == userB) ||
			(msg.SenderID == userB && msg.ReceiverID == userA) {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *memRepo) Peers(_ context.Context, userID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[string]bool{}
	var peers []string
	for _, msg := range m.messages {
		var peer string
		switch userID {
		case msg.SenderID:
			peer = msg.ReceiverID
		case msg.ReceiverID:
			peer = msg.SenderID
		default:
			continue
		}
		if !seen[peer] {
			seen[peer] = true
			peers = append(peers, peer)
		}
	}
	return peers, nil
}

func (m *memRepo) MarkConversationRead(_ context.Context, receiverID, senderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.messages {
		if msg.ReceiverID == receiverID && msg.SenderID == senderID {
			msg.Read = true
		}
	}
	return nil
}

func (m *memRepo) DeleteConversation(_ context.Context, userA, userB string) error {
	return nil
}

func (m *memRepo) stored() []*dbmysql.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*dbmysql.Message, len(m.messages))
	copy(out, m.messages)
	return out
}

func newTestServer(t *testing.T) (*httptest.Server, *memRepo) {
	return newTestServerCfg(t, config.PushConfig{
		SendBufferSize:    64,
		WriteTimeout:      5 * time.Second,
		HeartbeatInterval: time.Minute,
	})
}

func newTestServerCfg(t *testing.T, cfg config.PushConfig) (*httptest.Server, *memRepo) {
	t.Helper()

	repo := &memRepo{}
	h := NewHub(cfg)
	router := delivery.NewRouter(service.NewMessageService(repo), presence.NewRegistry(), h)
	h.AttachRouter(router)

	srv := httptest.NewServer(http.HandlerFunc(h.HandleWebSocket))
	t.Cleanup(srv.Close)
	return srv, repo
}

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func sendEvent(t *testing.T, conn *websocket.Conn, ev common.Envelope) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	data, err := json.Marshal(ev)
	require.NoError(t, err)
	require.NoError(t, conn.Write(ctx, websocket.MessageText, data))
}

// waitFor reads frames until the named event arrives, skipping unrelated
// broadcasts that race in between.
func waitFor(t *testing.T, conn *websocket.Conn, event string) common.Envelope {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	for {
		_, data, err := conn.Read(ctx)
		require.NoError(t, err, "waiting for %s", event)

		var ev common.Envelope
		require.NoError(t, json.Unmarshal(data, &ev))
		if ev.Event == event {
			return ev
		}
	}
}

func authenticate(t *testing.T, conn *websocket.Conn, userID, displayName string) {
	t.Helper()
	sendEvent(t, conn, common.Envelope{
		Event:       common.EventAuthenticate,
		UserID:      userID,
		DisplayName: displayName,
	})
	waitFor(t, conn, common.EventUserConnected)
}

func TestHub_AuthenticateBroadcastsPresence(t *testing.T) {
	srv, _ := newTestServer(t)

	connA := dialWS(t, srv)
	sendEvent(t, connA, common.Envelope{Event: common.EventAuthenticate, UserID: "user-a", DisplayName: "Alice"})

	ev := waitFor(t, connA, common.EventUsersOnline)
	assert.Equal(t, []string{"user-a"}, ev.Users)

	connB := dialWS(t, srv)
	sendEvent(t, connB, common.Envelope{Event: common.EventAuthenticate, UserID: "user-b", DisplayName: "Bob"})

	// the already-connected client observes the newcomer
	joined := waitFor(t, connA, common.EventUserConnected)
	assert.Equal(t, "user-b", joined.UserID)
	online := waitFor(t, connA, common.EventUsersOnline)
	assert.Equal(t, []string{"user-a", "user-b"}, online.Users)
}

func TestHub_SendDeliversAndAcks(t *testing.T) {
	srv, repo := newTestServer(t)

	connA := dialWS(t, srv)
	authenticate(t, connA, "user-a", "Alice")
	connB := dialWS(t, srv)
	authenticate(t, connB, "user-b", "Bob")

	sendEvent(t, connA, common.Envelope{
		Event:      common.EventSendMessage,
		ReceiverID: "user-b",
		Content:    "hello",
		ClientRef:  "pending-1",
	})

	received := waitFor(t, connB, common.EventReceiveMessage)
	require.NotNil(t, received.Message)
	assert.Equal(t, "hello", received.Message.Content)
	assert.Equal(t, "user-a", received.Message.SenderID)
	assert.False(t, received.Message.Read)

	ack := waitFor(t, connA, common.EventMessageSent)
	require.NotNil(t, ack.Message)
	assert.Equal(t, "pending-1", ack.ClientRef)
	assert.Equal(t, received.Message.ID, ack.Message.ID)

	stored := repo.stored()
	require.Len(t, stored, 1)
	assert.False(t, stored[0].Read)
}

func TestHub_SendBeforeAuthenticateRejected(t *testing.T) {
	srv, repo := newTestServer(t)

	conn := dialWS(t, srv)
	sendEvent(t, conn, common.Envelope{
		Event:      common.EventSendMessage,
		ReceiverID: "user-b",
		Content:    "too early",
		ClientRef:  "pending-1",
	})

	ev := waitFor(t, conn, common.EventMessageError)
	assert.Contains(t, ev.Error, "authenticate required")
	assert.Equal(t, "pending-1", ev.ClientRef)
	assert.Empty(t, repo.stored())
}

func TestHub_EmptyContentRejected(t *testing.T) {
	srv, repo := newTestServer(t)

	connA := dialWS(t, srv)
	authenticate(t, connA, "user-a", "Alice")

	sendEvent(t, connA, common.Envelope{
		Event:      common.EventSendMessage,
		ReceiverID: "user-b",
		Content:    "   ",
	})

	ev := waitFor(t, connA, common.EventMessageError)
	assert.Equal(t, "validation", ev.ErrorKind)
	assert.Empty(t, repo.stored())
}

func TestHub_PersistenceFailureOnlyNotifiesSender(t *testing.T) {
	srv, repo := newTestServer(t)
	repo.failSave = true

	connA := dialWS(t, srv)
	authenticate(t, connA, "user-a", "Alice")
	connB := dialWS(t, srv)
	authenticate(t, connB, "user-b", "Bob")

	sendEvent(t, connA, common.Envelope{
		Event:      common.EventSendMessage,
		ReceiverID: "user-b",
		Content:    "doomed",
	})

	ev := waitFor(t, connA, common.EventMessageError)
	assert.Equal(t, "persistence", ev.ErrorKind)
}

func TestHub_OfflineReceiverStillStored(t *testing.T) {
	srv, repo := newTestServer(t)

	connA := dialWS(t, srv)
	authenticate(t, connA, "user-a", "Alice")

	sendEvent(t, connA, common.Envelope{
		Event:      common.EventSendMessage,
		ReceiverID: "user-offline",
		Content:    "hi",
	})

	ack := waitFor(t, connA, common.EventMessageSent)
	assert.Equal(t, "user-offline", ack.Message.ReceiverID)

	stored := repo.stored()
	require.Len(t, stored, 1)
	assert.False(t, stored[0].Read)
}

func TestHub_ActivityBroadcast(t *testing.T) {
	srv, _ := newTestServer(t)

	connA := dialWS(t, srv)
	authenticate(t, connA, "user-a", "Alice")
	connB := dialWS(t, srv)
	authenticate(t, connB, "user-b", "Bob")

	sendEvent(t, connB, common.Envelope{Event: common.EventUpdateActivity, Activity: "Typing"})

	ev := waitFor(t, connA, common.EventActivityUpdated)
	assert.Equal(t, "user-b", ev.UserID)
	assert.Equal(t, "Typing", ev.Activity)
}

func TestHub_JWTHandshake(t *testing.T) {
	srv, _ := newTestServerCfg(t, config.PushConfig{
		SendBufferSize:    64,
		WriteTimeout:      5 * time.Second,
		HeartbeatInterval: time.Minute,
		JWTRequired:       true,
	})

	token, err := common.GenerateToken("user-a", "Alice")
	require.NoError(t, err)

	// token identity must match the claimed user id
	connBad := dialWS(t, srv)
	sendEvent(t, connBad, common.Envelope{
		Event:  common.EventAuthenticate,
		UserID: "user-b",
		Token:  token,
	})
	ev := waitFor(t, connBad, common.EventMessageError)
	assert.Contains(t, ev.Error, "invalid identity token")

	connGood := dialWS(t, srv)
	sendEvent(t, connGood, common.Envelope{
		Event:       common.EventAuthenticate,
		UserID:      "user-a",
		DisplayName: "Alice",
		Token:       token,
	})
	online := waitFor(t, connGood, common.EventUsersOnline)
	assert.Equal(t, []string{"user-a"}, online.Users)
}

func TestHub_DisconnectBroadcast(t *testing.T) {
	srv, _ := newTestServer(t)

	connA := dialWS(t, srv)
	authenticate(t, connA, "user-a", "Alice")
	connB := dialWS(t, srv)
	authenticate(t, connB, "user-b", "Bob")

	require.NoError(t, connB.Close(websocket.StatusNormalClosure, ""))

	gone := waitFor(t, connA, common.EventUserDisconnected)
	assert.Equal(t, "user-b", gone.UserID)
	online := waitFor(t, connA, common.EventUsersOnline)
	assert.Equal(t, []string{"user-a"}, online.Users)
}
