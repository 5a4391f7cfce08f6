// Package transport defines the client connection abstraction the Ingress
// Pipeline and Egress Pump read and write against. spec.md treats the wire
// transport as an external collaborator named but not designed; this
// package supplies the one concrete adapter the dispatcher ships with.
package transport

import "context"

// MessageType mirrors the frame kind a Conn carries, independent of any one
// transport implementation's own constants.
type MessageType int

const (
	// TextMessage carries a UTF-8 JSON frame, the dispatcher protocol's
	// primary frame kind.
	TextMessage MessageType = iota + 1
	// BinaryMessage carries an opaque payload the Ingress Pipeline echoes
	// back unchanged (spec.md §4.4 step 2, a placeholder behavior).
	BinaryMessage
	// CloseMessage signals the remote end closed the connection.
	CloseMessage
)

// Conn is the minimal duplex connection the Ingress Pipeline and Egress
// Pump need. Implementations must make ReadMessage safe to call
// concurrently with WriteMessage (one reader goroutine, one writer
// goroutine, per spec.md §4.4/§4.5). WriteMessage itself must also be safe
// for concurrent callers: both the Ingress Pipeline (confirm/error/message
// frames) and the Egress Pump (remote listener responses) write through it
// on the same connection.
type Conn interface {
	// ReadMessage blocks for the next client frame. It returns an error
	// (commonly wrapping io.EOF or a close error) when the connection ends.
	ReadMessage(ctx context.Context) (MessageType, []byte, error)
	// WriteMessage sends one frame to the client. Safe for concurrent use.
	WriteMessage(ctx context.Context, mt MessageType, data []byte) error
	// Close terminates the connection.
	Close() error
	// RemoteAddr identifies the peer, for logging.
	RemoteAddr() string
}
