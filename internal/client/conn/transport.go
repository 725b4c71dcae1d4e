package conn

import (
	"context"
	"encoding/json"

	"nhooyr.io/websocket"

	"gochat/internal/common"
)

// Conn is one live push-channel connection. The manager only ever speaks
// envelopes, so tests substitute a scripted implementation.
type Conn interface {
	ReadEnvelope(ctx context.Context) (common.Envelope, error)
	WriteEnvelope(ctx context.Context, ev common.Envelope) error
	Ping(ctx context.Context) error
	Close() error
}

// Transport dials push-channel connections.
type Transport interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WebSocketTransport is the production transport.
type WebSocketTransport struct{}

func (WebSocketTransport) Dial(ctx context.Context, url string) (Conn, error) {
	c, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return &wsConn{conn: c}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (w *wsConn) ReadEnvelope(ctx context.Context) (common.Envelope, error) {
	var ev common.Envelope
	_, data, err := w.conn.Read(ctx)
	if err != nil {
		return ev, err
	}
	if err := json.Unmarshal(data, &ev); err != nil {
		return ev, err
	}
	return ev, nil
}

func (w *wsConn) WriteEnvelope(ctx context.Context, ev common.Envelope) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return w.conn.Write(ctx, websocket.MessageText, data)
}

func (w *wsConn) Ping(ctx context.Context) error {
	return w.conn.Ping(ctx)
}

func (w *wsConn) Close() error {
	return w.conn.Close(websocket.StatusNormalClosure, "")
}
