// Package delivery routes inbound sends to storage and live connections, and
// owns every presence broadcast. It is the only component that mutates the
// presence registry.
package delivery

import (
	"context"
	"log"

	"gochat/internal/common"
	"gochat/internal/dbmysql"
	"gochat/internal/message/service"
	"gochat/internal/presence"
)

// Sink is the outbound side of the push channel. Push to an unknown
// connection is a no-op, which is what lets the REST fallback path share this
// router: an offline sender simply gets no ack event.
type Sink interface {
	Push(connID string, ev common.Envelope)
	Broadcast(ev common.Envelope)
}

type Router struct {
	svc  service.MessageService
	reg  *presence.Registry
	sink Sink
}

func NewRouter(svc service.MessageService, reg *presence.Registry, sink Sink) *Router {
	return &Router{svc: svc, reg: reg, sink: sink}
}

// Deliver persists the message, pushes it to the recipient's live connection
// if one exists, and acks the sender. clientRef is the sender's optimistic
// reference, echoed back verbatim. On failure only the sender hears about it.
func (r *Router) Deliver(ctx context.Context, senderID, receiverID, content, clientRef string) (*dbmysql.Message, error) {
	msg, err := r.svc.Send(ctx, senderID, receiverID, content)
	if err != nil {
		if connID, ok := r.reg.ConnFor(senderID); ok {
			r.sink.Push(connID, common.Envelope{
				Event:     common.EventMessageError,
				ClientRef: clientRef,
				Error:     err.Error(),
				ErrorKind: common.KindOf(err).String(),
			})
		}
		return nil, err
	}

	wireMsg := common.MessageFromModel(msg)

	if connID, ok := r.reg.ConnFor(receiverID); ok {
		r.sink.Push(connID, common.Envelope{
			Event:   common.EventReceiveMessage,
			Message: wireMsg,
		})
	}

	// ack always goes back to the sender's own connection; this is what moves
	// the sender's UI from optimistic to confirmed
	if connID, ok := r.reg.ConnFor(senderID); ok {
		r.sink.Push(connID, common.Envelope{
			Event:     common.EventMessageSent,
			ClientRef: clientRef,
			Message:   wireMsg,
		})
	}

	return msg, nil
}

// Connect registers the user's connection and broadcasts the updated presence
// state. A reconnect supersedes the prior session without kicking it.
func (r *Router) Connect(userID, connID string) {
	if old, replaced := r.reg.Register(userID, connID); replaced {
		log.Printf("presence: %s reconnected, superseding %s", userID, old)
	}

	r.sink.Broadcast(common.Envelope{Event: common.EventUserConnected, UserID: userID})
	r.broadcastPresence()
}

// Disconnect frees the connection's presence entry, if it ever authenticated,
// and broadcasts the updated state.
func (r *Router) Disconnect(connID string) {
	userID, ok := r.reg.Unregister(connID)
	if !ok {
		return
	}

	r.sink.Broadcast(common.Envelope{Event: common.EventUserDisconnected, UserID: userID})
	r.broadcastPresence()
}

// SetActivity updates the user's activity label and tells everyone.
func (r *Router) SetActivity(userID, activity string) {
	if !r.reg.SetActivity(userID, activity) {
		return
	}
	r.sink.Broadcast(common.Envelope{
		Event:    common.EventActivityUpdated,
		UserID:   userID,
		Activity: activity,
	})
}

// broadcastPresence sends the full online list and activity table to every
// connection. O(n) on purpose: diffs are not worth it at single-process
// fan-out scale.
func (r *Router) broadcastPresence() {
	r.sink.Broadcast(common.Envelope{
		Event:      common.EventUsersOnline,
		Users:      r.reg.ListOnline(),
		Activities: r.reg.Activities(),
	})
}
