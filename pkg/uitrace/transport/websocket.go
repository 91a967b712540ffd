package transport

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/randalmurphal/uitrace/pkg/uitrace/sender"
)

const wsWriteTimeout = 10 * time.Second

// WebSocketTransport delivers each batch as one text message over a
// long-lived WebSocket connection. The connection is dialed on first use
// and redialed after a failed write.
type WebSocketTransport struct {
	url    string
	dialer *websocket.Dialer

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

var _ sender.Transport = (*WebSocketTransport)(nil)

// NewWebSocket creates a WebSocket transport for a ws:// or wss:// URL.
func NewWebSocket(url string) *WebSocketTransport {
	return &WebSocketTransport{url: url, dialer: websocket.DefaultDialer}
}

// Endpoint implements sender.Transport.
func (t *WebSocketTransport) Endpoint() string {
	return t.url
}

// Transmit implements sender.Transport.
func (t *WebSocketTransport) Transmit(ctx context.Context, b sender.Batch) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}

	if t.conn == nil {
		conn, _, err := t.dialer.DialContext(ctx, t.url, nil)
		if err != nil {
			return err
		}
		t.conn = conn
	}

	deadline := time.Now().Add(wsWriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = t.conn.SetWriteDeadline(deadline)

	if err := t.conn.WriteMessage(websocket.TextMessage, b.Payload); err != nil {
		_ = t.conn.Close()
		t.conn = nil
		return err
	}
	return nil
}

// Close sends a close frame and releases the connection.
func (t *WebSocketTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true

	if t.conn == nil {
		return nil
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	err := t.conn.Close()
	t.conn = nil
	return err
}
