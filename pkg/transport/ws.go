package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const logPrefix = "transport:WSConn"

// Upgrader is shared across connections, matching gorilla/websocket's
// recommended usage: one Upgrader reused for every request.
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WSConn adapts a *websocket.Conn to Conn. gorilla/websocket forbids
// concurrent writers on one connection, but the Ingress Pipeline and the
// Egress Pump both write to it from separate goroutines, so writeMu
// serializes them.
type WSConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// Upgrade upgrades an HTTP request to a WSConn.
func Upgrade(w http.ResponseWriter, r *http.Request) (*WSConn, error) {
	c, err := Upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("%s - upgrade failed: %w", logPrefix, err)
	}
	return &WSConn{conn: c}, nil
}

// ReadMessage implements Conn.
func (c *WSConn) ReadMessage(ctx context.Context) (MessageType, []byte, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetReadDeadline(deadline)
	}
	mt, data, err := c.conn.ReadMessage()
	if err != nil {
		return 0, nil, fmt.Errorf("%s - read failed: %w", logPrefix, err)
	}
	return fromGorillaType(mt), data, nil
}

// WriteMessage implements Conn. Safe for concurrent callers: the Egress
// Pump and the Ingress Pipeline both call it on the same WSConn.
func (c *WSConn) WriteMessage(ctx context.Context, mt MessageType, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(10 * time.Second)
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("%s - failed to set write deadline: %w", logPrefix, err)
	}
	if err := c.conn.WriteMessage(toGorillaType(mt), data); err != nil {
		return fmt.Errorf("%s - write failed: %w", logPrefix, err)
	}
	return nil
}

// Close implements Conn.
func (c *WSConn) Close() error {
	return c.conn.Close()
}

// RemoteAddr implements Conn.
func (c *WSConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func toGorillaType(mt MessageType) int {
	switch mt {
	case CloseMessage:
		return websocket.CloseMessage
	case BinaryMessage:
		return websocket.BinaryMessage
	default:
		return websocket.TextMessage
	}
}

func fromGorillaType(mt int) MessageType {
	switch mt {
	case websocket.CloseMessage:
		return CloseMessage
	case websocket.BinaryMessage:
		return BinaryMessage
	default:
		return TextMessage
	}
}
