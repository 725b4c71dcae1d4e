package common

import (
	"time"

	"gochat/internal/dbmysql"
)

// Push-channel event names. client->server: authenticate, send_message,
// update_activity. server->client: the rest.
const (
	EventAuthenticate     = "authenticate"
	EventSendMessage      = "send_message"
	EventUpdateActivity   = "update_activity"
	EventReceiveMessage   = "receive_message"
	EventMessageSent      = "message_sent"
	EventMessageError     = "message_error"
	EventUsersOnline      = "users_online"
	EventActivityUpdated  = "activity_updated"
	EventUserConnected    = "user_connected"
	EventUserDisconnected = "user_disconnected"
)

// Message is the wire representation of a stored direct message.
type Message struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Content    string    `json:"content"`
	Read       bool      `json:"read"`
	CreatedAt  time.Time `json:"createdAt"`
}

func MessageFromModel(m *dbmysql.Message) *Message {
	if m == nil {
		return nil
	}
	return &Message{
		ID:         m.ID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Content:    m.Content,
		Read:       m.Read,
		CreatedAt:  m.CreatedAt,
	}
}

// Envelope is the JSON frame exchanged on the push channel in both
// directions; fields are populated per event and omitted otherwise.
type Envelope struct {
	Event string `json:"event"`

	// authenticate
	UserID      string `json:"userId,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	Token       string `json:"token,omitempty"`

	// send_message; ClientRef is echoed on message_sent / message_error so
	// the sender can reconcile its optimistic entry
	SenderID   string `json:"senderId,omitempty"`
	ReceiverID string `json:"receiverId,omitempty"`
	Content    string `json:"content,omitempty"`
	ClientRef  string `json:"clientRef,omitempty"`

	// update_activity / activity_updated
	Activity string `json:"activity,omitempty"`

	// server->client payloads
	Message    *Message          `json:"message,omitempty"`
	Users      []string          `json:"users,omitempty"`
	Activities map[string]string `json:"activities,omitempty"`
	Error      string            `json:"error,omitempty"`
	ErrorKind  string            `json:"errorKind,omitempty"`
}
