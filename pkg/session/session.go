// Package session implements the Session Manager collaborator: per-session
// state, the subsystem event bus, and (optionally) persistent registration
// state. spec.md treats the Session Manager as an external collaborator
// exposing get(id), destroy(id), subsystem.send, and subsystem.events.on;
// this package gives that collaborator one concrete, exercised
// implementation.
package session

import (
	"context"
	"sync/atomic"
)

// SendFunc delivers a pre-serialized outbound frame for a session. The
// Connection Lifecycle supplies one that writes the frame directly to the
// client connection.
type SendFunc func(ctx context.Context, frame []byte) error

// Session is the opaque per-connection handle spec.md describes: a
// registration flag and a send primitive.
type Session struct {
	id         string
	registered int32 // atomic bool: 0 = false, 1 = true
	send       SendFunc
}

// newSession constructs a Session. Unexported: only a Manager creates
// sessions, so IDs stay centrally allocated.
func newSession(id string, send SendFunc) *Session {
	return &Session{id: id, send: send}
}

// ID returns the session's id (decimal string, per spec.md §4.4 step 9:
// injected into requests "as a decimal string").
func (s *Session) ID() string { return s.id }

// IsRegistered reports whether the "register" verb (or equivalent) has
// completed for this session.
func (s *Session) IsRegistered() bool {
	return atomic.LoadInt32(&s.registered) == 1
}

// MarkRegistered flips the session to registered. Idempotent.
func (s *Session) MarkRegistered() {
	atomic.StoreInt32(&s.registered, 1)
}

// Send passes frame to the session's SendFunc.
func (s *Session) Send(ctx context.Context, frame []byte) error {
	return s.send(ctx, frame)
}
