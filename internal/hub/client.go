package hub

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"gochat/internal/common"
)

// client is one connected push-channel peer. Events for it go through a
// buffered send channel; a full buffer drops the frame rather than stalling
// the broadcaster on a slow reader.
type client struct {
	connID string
	conn   *websocket.Conn
	hub    *Hub
	send   chan common.Envelope
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	authed bool
	user   string
}

func newClient(connID string, conn *websocket.Conn, h *Hub) *client {
	ctx, cancel := context.WithCancel(context.Background())
	return &client{
		connID: connID,
		conn:   conn,
		hub:    h,
		send:   make(chan common.Envelope, h.cfg.SendBufferSize),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (c *client) run() {
	go c.writePump()
	go c.heartbeat()
	c.readPump()
}

func (c *client) readPump() {
	defer c.cancel()
	for {
		_, data, err := c.conn.Read(c.ctx)
		if err != nil {
			return
		}
		c.handleMessage(data)
	}
}

func (c *client) writePump() {
	defer func() { _ = c.conn.Close(websocket.StatusNormalClosure, "") }()
	for {
		select {
		case <-c.ctx.Done():
			return
		case ev := <-c.send:
			data, err := json.Marshal(ev)
			if err != nil {
				log.Printf("hub: marshal failed: %v", err)
				continue
			}
			ctx, cancel := context.WithTimeout(c.ctx, c.hub.cfg.WriteTimeout)
			err = c.conn.Write(ctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

// heartbeat pings on an interval; a failed or timed-out pong tears the
// connection down, which the client treats as a transport disconnect.
func (c *client) heartbeat() {
	ticker := time.NewTicker(c.hub.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(c.ctx, c.hub.cfg.WriteTimeout)
			err := c.conn.Ping(ctx)
			cancel()
			if err != nil {
				c.cancel()
				return
			}
		}
	}
}

func (c *client) sendJSON(ev common.Envelope) {
	select {
	case c.send <- ev:
	default:
		log.Printf("hub: dropping %s event for slow client %s", ev.Event, c.connID)
	}
}

// handleMessage runs each inbound event to completion before reading the
// next frame, so registry mutations from one connection never interleave.
func (c *client) handleMessage(data []byte) {
	var ev common.Envelope
	if err := json.Unmarshal(data, &ev); err != nil {
		c.sendJSON(common.Envelope{
			Event:     common.EventMessageError,
			Error:     "invalid JSON",
			ErrorKind: common.KindValidation.String(),
		})
		return
	}

	if !c.authenticated() {
		if ev.Event != common.EventAuthenticate {
			c.sendJSON(common.Envelope{
				Event:     common.EventMessageError,
				ClientRef: ev.ClientRef,
				Error:     "authenticate required before " + ev.Event,
				ErrorKind: common.KindValidation.String(),
			})
			return
		}
		c.handleAuthenticate(ev)
		return
	}

	switch ev.Event {
	case common.EventAuthenticate:
		// re-authentication on a live connection is a no-op
	case common.EventSendMessage:
		// sender identity comes from the handshake, not the payload
		_, _ = c.hub.router.Deliver(c.ctx, c.userID(), ev.ReceiverID, ev.Content, ev.ClientRef)
	case common.EventUpdateActivity:
		c.hub.router.SetActivity(c.userID(), ev.Activity)
	default:
		c.sendJSON(common.Envelope{
			Event:     common.EventMessageError,
			Error:     "unknown event: " + ev.Event,
			ErrorKind: common.KindValidation.String(),
		})
	}
}

func (c *client) handleAuthenticate(ev common.Envelope) {
	if ev.UserID == "" {
		c.sendJSON(common.Envelope{
			Event:     common.EventMessageError,
			Error:     "userId is required",
			ErrorKind: common.KindValidation.String(),
		})
		return
	}

	if c.hub.cfg.JWTRequired {
		claims, err := common.ValidToken(ev.Token)
		if err != nil || claims.UserID != ev.UserID {
			c.sendJSON(common.Envelope{
				Event:     common.EventMessageError,
				Error:     "invalid identity token",
				ErrorKind: common.KindValidation.String(),
			})
			return
		}
	}

	c.mu.Lock()
	c.authed = true
	c.user = ev.UserID
	c.mu.Unlock()

	log.Printf("hub: %s authenticated as %s (%s)", c.connID, ev.UserID, ev.DisplayName)
	c.hub.router.Connect(ev.UserID, c.connID)
}

func (c *client) authenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authed
}

func (c *client) userID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.user
}
