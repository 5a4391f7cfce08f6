package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/relaycore/dispatcher-core/pkg/catalog"
	"github.com/relaycore/dispatcher-core/pkg/commsutil"
	"github.com/relaycore/dispatcher-core/pkg/schemavalidate"
	"github.com/relaycore/dispatcher-core/pkg/session"
	"github.com/relaycore/dispatcher-core/pkg/transport"
)

const connectionLogPrefix = "dispatcher:Connection"

// destroyGrace is the delay between connection close and session
// destruction (spec.md §4.5: "allows in-flight responses to drain").
const destroyGrace = 5 * time.Second

type connState int32

const (
	stateBuffering connState = iota
	stateActive
	stateClosing
)

var sessionCounter uint64

// NextSessionID allocates a session id by combining the current wall-clock
// millisecond with a strictly-monotonic process-wide counter, so two
// connections opened within the same millisecond never collide (spec.md §9
// design note: the original field-name mismatch bug is not reproduced
// here).
func NextSessionID() string {
	const counterSpace = 1_000_000
	n := atomic.AddUint64(&sessionCounter, 1)
	id := uint64(time.Now().UnixMilli())*counterSpace + (n % counterSpace)
	return strconv.FormatUint(id, 10)
}

// Deps bundles the collaborators a Connection needs. A dispatcher instance
// constructs one Deps and reuses it for every accepted connection.
type Deps struct {
	Catalog         *catalog.Catalog
	Validator       schemavalidate.Validator
	Bus             session.EventBus
	Queue           session.Queue
	Manager         *session.Manager
	InstanceID      string
	LoadedPlatforms []string
	// Shutdown is a process-wide flag the Connection Lifecycle's shutdown
	// path flips; the Ingress Pipeline polls it atomically per spec.md §5.
	Shutdown *int32
}

type pendingFrame struct {
	mt   transport.MessageType
	data []byte
}

// Connection drives one client socket through the Buffering → Active →
// Closing state machine spec.md §9 calls for explicitly.
type Connection struct {
	id   string
	conn transport.Conn
	deps Deps

	mu      sync.Mutex
	state   connState
	pending []pendingFrame
	sess    *session.Session
}

// Accept allocates a session id, starts the Egress Pump, installs the
// pre-session buffering handler, and requests a session asynchronously
// (spec.md §4.5 "On connect").
func Accept(ctx context.Context, conn transport.Conn, deps Deps) *Connection {
	c := &Connection{
		id:    NextSessionID(),
		conn:  conn,
		deps:  deps,
		state: stateBuffering,
	}

	// Subscribe before returning so a payload pushed to the outgoing
	// channel right after Accept (including the disconnect sentinel) is not
	// missed.
	subject := commsutil.OutgoingSubject(deps.InstanceID, c.id)
	ch, unsubscribe, err := deps.Queue.BlockingPop(subject)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - egress pump failed to subscribe to %s: %v", connectionLogPrefix, subject, err))
	} else {
		go c.runEgressPump(ch, unsubscribe)
	}

	resultCh := deps.Manager.Create(ctx, c.id, func(sendCtx context.Context, frame []byte) error {
		return conn.WriteMessage(sendCtx, transport.TextMessage, frame)
	})
	go func() {
		sess, ok := <-resultCh
		if !ok || sess == nil {
			slog.Error(fmt.Sprintf("%s - session resolution failed for %s, connection stuck in Phase A", connectionLogPrefix, c.id))
			return
		}
		c.activate(ctx, sess)
	}()

	return c
}

// ID returns the session id this connection owns.
func (c *Connection) ID() string { return c.id }

// activate implements spec.md §4.4 Phase B transition: detach the
// pre-session buffer, install the real handler, and replay buffered frames
// in arrival order.
func (c *Connection) activate(ctx context.Context, sess *session.Session) {
	c.mu.Lock()
	c.sess = sess
	buffered := c.pending
	c.pending = nil
	if c.state == stateBuffering {
		c.state = stateActive
	}
	c.mu.Unlock()

	for _, f := range buffered {
		c.processFrame(ctx, f.mt, f.data)
	}
}

// Serve reads frames from the transport until it errors or closes,
// buffering during Phase A and dispatching through the Ingress Pipeline
// once Active. It runs the Connection Lifecycle's close path on return.
func (c *Connection) Serve(ctx context.Context) {
	defer c.teardown(ctx)
	for {
		mt, data, err := c.conn.ReadMessage(ctx)
		if err != nil {
			slog.Info(fmt.Sprintf("%s - read loop ending for session %s: %v", connectionLogPrefix, c.id, err))
			return
		}

		c.mu.Lock()
		switch c.state {
		case stateBuffering:
			c.pending = append(c.pending, pendingFrame{mt: mt, data: data})
			c.mu.Unlock()
		case stateClosing:
			c.mu.Unlock()
			slog.Debug(fmt.Sprintf("%s - dropping frame for closing session %s", connectionLogPrefix, c.id))
		default:
			c.mu.Unlock()
			c.processFrame(ctx, mt, data)
		}
	}
}

// runEgressPump implements spec.md §4.3: a blocking consumer of the
// session's outgoing channel, forwarding every payload verbatim until the
// disconnect sentinel arrives or the queue client errors.
func (c *Connection) runEgressPump(ch <-chan []byte, unsubscribe func()) {
	defer unsubscribe()

	for payload := range ch {
		if string(payload) == DisconnectSentinel {
			return
		}
		if err := c.conn.WriteMessage(context.Background(), transport.TextMessage, payload); err != nil {
			slog.Error(fmt.Sprintf("%s - egress pump write failed for session %s: %v", connectionLogPrefix, c.id, err))
			return
		}
	}
}

// teardown implements spec.md §4.5 "On close": broadcast cleanup, unblock
// the Egress Pump with the disconnect sentinel, then destroy the session
// after a grace period so in-flight responses can drain.
func (c *Connection) teardown(ctx context.Context) {
	c.mu.Lock()
	c.state = stateClosing
	c.mu.Unlock()

	payload, err := json.Marshal(CleanupEvent{SIDs: []string{c.id}})
	if err != nil {
		slog.Error(fmt.Sprintf("%s - failed to encode cleanup event for session %s: %v", connectionLogPrefix, c.id, err))
	} else if err := c.deps.Bus.Publish(commsutil.SubjectCleanup, payload); err != nil {
		slog.Error(fmt.Sprintf("%s - cleanup broadcast failed for session %s: %v", connectionLogPrefix, c.id, err))
	}

	subject := commsutil.OutgoingSubject(c.deps.InstanceID, c.id)
	if err := c.deps.Queue.Push(subject, []byte(DisconnectSentinel)); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to push disconnect sentinel for session %s: %v", connectionLogPrefix, c.id, err))
	}

	time.AfterFunc(destroyGrace, func() {
		c.deps.Manager.Destroy(ctx, c.id)
	})

	_ = c.conn.Close()
}

// Shutdown flips flag to signal process-wide shutdown: the Ingress
// Pipeline starts rejecting new inbound frames (spec.md §4.5 "Global
// shutdown"). It does not force-close open connections (spec.md §9 Open
// Question (c)).
func Shutdown(flag *int32) {
	atomic.StoreInt32(flag, 1)
}
