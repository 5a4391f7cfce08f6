// Package liveness implements the heartbeat protocol that determines which
// remote platform listeners are live before the dispatcher declares itself
// ready, per spec.md §4.2.
package liveness

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/relaycore/dispatcher-core/pkg/catalog"
	"github.com/relaycore/dispatcher-core/pkg/commsutil"
	"github.com/relaycore/dispatcher-core/pkg/session"
)

const logPrefix = "liveness:Liveness"

// Config holds the readiness scan parameters (spec.md §6:
// DISPATCHER.LISTENER_INTERVAL_TIME / LISTENER_INTERVAL_COUNT).
type Config struct {
	ScanInterval time.Duration
	ScanCount    int
}

// PingEvent is the payload published on the ping/ping-response subjects.
// Actor is nil for the dispatcher's own outbound ping broadcast and set by
// a listener (or peer dispatcher instance) acknowledging it.
type PingEvent struct {
	Timestamp int64     `json:"timestamp"`
	EncKey    string    `json:"encKey"`
	Actor     *ActorRef `json:"actor,omitempty"`
}

// ActorRef identifies the platform an event concerns.
type ActorRef struct {
	Platform string `json:"platform"`
}

// Liveness pings every remote platform this dispatcher is responsible for
// and tracks which have answered, via the catalog's PingState.
type Liveness struct {
	bus session.EventBus
	cat *catalog.Catalog
	cfg Config
}

// New creates a Liveness subsystem bound to bus and cat.
func New(bus session.EventBus, cat *catalog.Catalog, cfg Config) *Liveness {
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = 2 * time.Second
	}
	if cfg.ScanCount <= 0 {
		cfg.ScanCount = 5
	}
	return &Liveness{bus: bus, cat: cat, cfg: cfg}
}

// NewCorrelationKey generates an opaque correlation token for one ping
// round. spec.md §9 notes the original design used non-cryptographic
// randomness and time and should be treated as a correlation token, not a
// secret; this uses crypto/rand, which costs nothing extra, while keeping
// the same "not a secret" contract for callers.
func NewCorrelationKey() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("%s - failed to generate correlation key: %w", logPrefix, err)
	}
	return fmt.Sprintf("%d-%s", time.Now().UnixNano(), hex.EncodeToString(buf)), nil
}

// Init subscribes to the ping/ping-response subjects, marks every remote
// platform in myPlatforms as pinged and publishes one ping broadcast, then
// runs the bounded readiness scan loop.
// It returns nil once every remote platform has answered, or a non-nil,
// non-fatal error if the scan budget is exhausted (or ctx is cancelled)
// while platforms remain pending — callers must keep the dispatcher running
// either way, per spec.md §4.2/§7 item 5.
func (l *Liveness) Init(ctx context.Context, myPlatforms []string) error {
	unsubPing, err := l.bus.Subscribe(commsutil.SubjectPing, l.handlePingEvent)
	if err != nil {
		return fmt.Errorf("%s - failed to subscribe to ping: %w", logPrefix, err)
	}
	defer unsubPing()

	unsubResp, err := l.bus.Subscribe(commsutil.SubjectPingResponse, l.handlePingEvent)
	if err != nil {
		return fmt.Errorf("%s - failed to subscribe to ping-response: %w", logPrefix, err)
	}
	defer unsubResp()

	remote := l.remoteResponsibilities(myPlatforms)
	if len(remote) == 0 {
		slog.Info(fmt.Sprintf("%s - no remote platforms to ping, ready immediately", logPrefix))
		return nil
	}

	if err := l.broadcastPing(remote); err != nil {
		return fmt.Errorf("%s - initial ping broadcast failed: %w", logPrefix, err)
	}

	for scan := 0; scan < l.cfg.ScanCount; scan++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s - readiness cancelled: %w", logPrefix, ctx.Err())
		case <-time.After(l.cfg.ScanInterval):
		}

		pending := l.pendingPlatforms(remote)
		if len(pending) == 0 {
			slog.Info(fmt.Sprintf("%s - all remote platforms responsive", logPrefix))
			return nil
		}

		slog.Warn(fmt.Sprintf("%s - %d platform(s) still pending after scan %d/%d: %v", logPrefix, len(pending), scan+1, l.cfg.ScanCount, pending))
		if err := l.broadcastPing(pending); err != nil {
			slog.Error(fmt.Sprintf("%s - re-ping broadcast failed: %v", logPrefix, err))
		}
	}

	pending := l.pendingPlatforms(remote)
	if len(pending) > 0 {
		return fmt.Errorf("%s - readiness timed out, still pending: %v", logPrefix, pending)
	}
	return nil
}

func (l *Liveness) remoteResponsibilities(myPlatforms []string) []string {
	var out []string
	for _, name := range myPlatforms {
		p, ok := l.cat.Platform(name)
		if !ok || p.Local {
			continue
		}
		out = append(out, name)
	}
	return out
}

func (l *Liveness) pendingPlatforms(platforms []string) []string {
	var pending []string
	for _, name := range platforms {
		if !l.cat.Responsive(name) {
			pending = append(pending, name)
		}
	}
	return pending
}

func (l *Liveness) broadcastPing(platforms []string) error {
	now := time.Now()
	encKey, err := NewCorrelationKey()
	if err != nil {
		return err
	}

	for _, name := range platforms {
		l.cat.MarkPingSent(name, now)
	}

	payload, err := json.Marshal(PingEvent{Timestamp: now.UnixNano(), EncKey: encKey})
	if err != nil {
		return fmt.Errorf("%s - failed to encode ping payload: %w", logPrefix, err)
	}
	return l.bus.Publish(commsutil.SubjectPing, payload)
}

func (l *Liveness) handlePingEvent(payload []byte) {
	var event PingEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		slog.Warn(fmt.Sprintf("%s - malformed ping event: %v", logPrefix, err))
		return
	}
	if event.Actor == nil {
		// Our own outbound broadcast looping back, or a malformed peer event.
		return
	}
	if _, ok := l.cat.Platform(event.Actor.Platform); !ok {
		slog.Debug(fmt.Sprintf("%s - ping event for unknown platform %q, ignoring (may belong to another dispatcher instance)", logPrefix, event.Actor.Platform))
		return
	}
	l.cat.MarkPingReceived(event.Actor.Platform, time.Now())
}
