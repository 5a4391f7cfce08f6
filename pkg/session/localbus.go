package session

import "sync"

// LocalBus is an in-process EventBus, used by tests and by single-instance
// deployments that have no COMMS connection to share. Delivery is
// synchronous in publish order per subject.
type LocalBus struct {
	mu       sync.RWMutex
	handlers map[string][]*localSub
	nextID   int
}

type localSub struct {
	id      int
	handler func(payload []byte)
}

// NewLocalBus creates an empty LocalBus.
func NewLocalBus() *LocalBus {
	return &LocalBus{handlers: make(map[string][]*localSub)}
}

// Publish implements EventBus.
func (b *LocalBus) Publish(subject string, payload []byte) error {
	b.mu.RLock()
	subs := append([]*localSub(nil), b.handlers[subject]...)
	b.mu.RUnlock()

	for _, s := range subs {
		s.handler(payload)
	}
	return nil
}

// Subscribe implements EventBus.
func (b *LocalBus) Subscribe(subject string, handler func(payload []byte)) (func(), error) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	sub := &localSub{id: id, handler: handler}
	b.handlers[subject] = append(b.handlers[subject], sub)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.handlers[subject]
		for i, s := range subs {
			if s.id == id {
				b.handlers[subject] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}, nil
}

// Push implements the same non-blocking producer role as NatsBus.Push.
func (b *LocalBus) Push(subject string, payload []byte) error {
	return b.Publish(subject, payload)
}

// BlockingPop mirrors NatsBus.BlockingPop for tests that don't need NATS.
func (b *LocalBus) BlockingPop(subject string) (<-chan []byte, func(), error) {
	out := make(chan []byte, 16)
	unsubscribe, err := b.Subscribe(subject, func(payload []byte) {
		out <- payload
	})
	if err != nil {
		return nil, nil, err
	}
	return out, unsubscribe, nil
}
