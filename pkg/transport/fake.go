package transport

import (
	"context"
	"errors"
)

// Frame pairs a message type with its payload, for FakeConn's channels.
type Frame struct {
	Type MessageType
	Data []byte
}

// FakeConn is an in-memory Conn used by dispatcher package tests, so the
// Ingress Pipeline and Egress Pump can be exercised without a real socket.
type FakeConn struct {
	Incoming chan Frame
	Outgoing chan Frame
	closed   chan struct{}
	addr     string
}

// NewFakeConn creates a FakeConn with buffered channels.
func NewFakeConn(addr string) *FakeConn {
	return &FakeConn{
		Incoming: make(chan Frame, 16),
		Outgoing: make(chan Frame, 16),
		closed:   make(chan struct{}),
		addr:     addr,
	}
}

// PushText enqueues a text frame as if received from the client.
func (c *FakeConn) PushText(data []byte) {
	c.Incoming <- Frame{Type: TextMessage, Data: data}
}

// PushBinary enqueues a binary frame as if received from the client.
func (c *FakeConn) PushBinary(data []byte) {
	c.Incoming <- Frame{Type: BinaryMessage, Data: data}
}

// ReadMessage implements Conn.
func (c *FakeConn) ReadMessage(ctx context.Context) (MessageType, []byte, error) {
	select {
	case f, ok := <-c.Incoming:
		if !ok {
			return CloseMessage, nil, errors.New("transport:FakeConn - closed")
		}
		return f.Type, f.Data, nil
	case <-c.closed:
		return CloseMessage, nil, errors.New("transport:FakeConn - closed")
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	}
}

// WriteMessage implements Conn.
func (c *FakeConn) WriteMessage(ctx context.Context, mt MessageType, data []byte) error {
	select {
	case c.Outgoing <- (Frame{Type: mt, Data: data}):
		return nil
	case <-c.closed:
		return errors.New("transport:FakeConn - closed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements Conn.
func (c *FakeConn) Close() error {
	select {
	case <-c.closed:
	default:
		close(c.closed)
	}
	return nil
}

// RemoteAddr implements Conn.
func (c *FakeConn) RemoteAddr() string {
	return c.addr
}
