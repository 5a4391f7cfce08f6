package session

import (
	"fmt"
	"sync"

	comms "github.com/nats-io/nats.go"
)

const natsBusLogPrefix = "session:NatsBus"

// NatsBus is an EventBus and a queue-channel backend (Push/BlockingPop)
// both implemented over a single COMMS (NATS) connection. spec.md models
// the queue client as an external collaborator named only at the interface
// level ("the Redis/queue client library"); this adapter exercises the
// teacher's own queue technology (NATS) for that role rather than pulling
// in a second broker client for no domain reason.
type NatsBus struct {
	nc *comms.Conn

	mu   sync.Mutex
	subs map[string]*comms.Subscription
}

// NewNatsBus wraps an established COMMS connection.
func NewNatsBus(nc *comms.Conn) *NatsBus {
	return &NatsBus{nc: nc, subs: make(map[string]*comms.Subscription)}
}

// Publish implements EventBus.
func (b *NatsBus) Publish(subject string, payload []byte) error {
	if err := b.nc.Publish(subject, payload); err != nil {
		return fmt.Errorf("%s - publish to %s failed: %w", natsBusLogPrefix, subject, err)
	}
	return nil
}

// Subscribe implements EventBus.
func (b *NatsBus) Subscribe(subject string, handler func(payload []byte)) (func(), error) {
	sub, err := b.nc.Subscribe(subject, func(msg *comms.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("%s - subscribe to %s failed: %w", natsBusLogPrefix, subject, err)
	}

	b.mu.Lock()
	b.subs[subject] = sub
	b.mu.Unlock()

	return func() {
		sub.Unsubscribe()
		b.mu.Lock()
		delete(b.subs, subject)
		b.mu.Unlock()
	}, nil
}

// Push publishes payload onto subject, mirroring a queue client's
// non-blocking push (spec.md §5: "producers... are non-blocking and may be
// concurrent").
func (b *NatsBus) Push(subject string, payload []byte) error {
	return b.Publish(subject, payload)
}

// BlockingPop subscribes to subject and forwards each received payload to
// the returned channel until unsubscribe is called. spec.md's queue client
// offers a true blocking pop (one message per call); a NATS subscription
// channel is the idiomatic Go equivalent — the Egress Pump ranges over it
// exactly as it would block on successive pops.
func (b *NatsBus) BlockingPop(subject string) (<-chan []byte, func(), error) {
	out := make(chan []byte, 16)
	unsubscribe, err := b.Subscribe(subject, func(payload []byte) {
		out <- payload
	})
	if err != nil {
		return nil, nil, err
	}
	return out, unsubscribe, nil
}
