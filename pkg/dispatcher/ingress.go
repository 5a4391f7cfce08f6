package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/relaycore/dispatcher-core/pkg/catalog"
	"github.com/relaycore/dispatcher-core/pkg/commsutil"
	"github.com/relaycore/dispatcher-core/pkg/transport"
)

const ingressLogPrefix = "dispatcher:Ingress"

// processFrame implements spec.md §4.4's "for each active frame" steps 1-5:
// shutdown check, binary echo, JSON parse, batch normalization, then one
// processEntry call per batch element.
func (c *Connection) processFrame(ctx context.Context, mt transport.MessageType, data []byte) {
	if atomic.LoadInt32(c.deps.Shutdown) != 0 {
		slog.Info(fmt.Sprintf("%s - dropping frame for session %s, dispatcher in shutdown", ingressLogPrefix, c.id))
		return
	}

	if mt == transport.BinaryMessage {
		if err := c.conn.WriteMessage(ctx, transport.BinaryMessage, data); err != nil {
			slog.Error(fmt.Sprintf("%s - binary echo failed for session %s: %v", ingressLogPrefix, c.id, err))
		}
		return
	}

	var parsed interface{}
	if err := json.Unmarshal(data, &parsed); err != nil {
		c.send(ErrorFrame{Verb: "confirm", Status: false, Message: "invalid JSON received"})
		return
	}

	for _, item := range normalizeBatch(parsed) {
		c.processEntry(ctx, item)
	}
}

// normalizeBatch implements spec.md §4.4 step 4: an array whose first
// element is an object is treated as the whole batch; anything else is
// wrapped as a singleton batch.
func normalizeBatch(parsed interface{}) []interface{} {
	if arr, ok := parsed.([]interface{}); ok && len(arr) > 0 {
		if _, ok := arr[0].(map[string]interface{}); ok {
			return arr
		}
	}
	return []interface{}{parsed}
}

// processEntry runs the validation chain (spec.md §4.4 table, 1-8) against
// one batch entry, short-circuiting at the first failing check (resolving
// Open Question (a) from spec.md §9 — see DESIGN.md), then dispatches on
// success.
func (c *Connection) processEntry(ctx context.Context, item interface{}) {
	raw, _ := item.(map[string]interface{})
	if raw == nil {
		raw = map[string]interface{}{}
	}

	ridVal, hasRID := raw["rid"]
	if !hasRID || !isStringOrNumber(ridVal) {
		c.emitChainError(nil, nil, "no rid (request ID) specified")
		return
	}
	rid, err := json.Marshal(ridVal)
	if err != nil {
		c.emitChainError(nil, nil, "no rid (request ID) specified")
		return
	}

	platform, ok := raw["platform"].(string)
	if !ok {
		c.emitChainError(rid, nil, "no platform specified")
		return
	}

	verb, ok := raw["verb"].(string)
	if !ok {
		c.emitChainError(rid, &platform, "no verb (action) specified")
		return
	}

	plat, known := c.deps.Catalog.Platform(platform)
	unseenRemote := known && !plat.Local && !c.deps.Catalog.EverReceived(platform)
	if !known || unseenRemote {
		c.emitChainError(rid, &platform, fmt.Sprintf("unknown platform received: %s", platform))
		return
	}

	if platform != "dispatcher" && !c.deps.Catalog.IsLoaded(platform, c.deps.LoadedPlatforms) {
		c.emitChainError(rid, &platform, fmt.Sprintf("platform '%s' not loaded", platform))
		return
	}

	v, ok := c.deps.Catalog.Verb(platform, verb)
	if !ok {
		c.emitChainError(rid, &platform, fmt.Sprintf("unknown verb received: %s", verb))
		return
	}

	if _, hasSessionID := raw["sessionId"]; hasSessionID {
		c.emitChainError(rid, &platform, "cannot use name sessionId, reserved property")
		return
	}

	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()
	if !sess.IsRegistered() && verb != "register" {
		c.emitChainError(rid, &platform, "session not registered, cannot process verb")
		return
	}

	target := normalizeTarget(raw["target"])
	object, _ := raw["object"].(map[string]interface{})
	if object == nil {
		object = map[string]interface{}{}
	}

	// Validate and dispatch the full request object (spec.md §3: the verb
	// schema applies to rid/platform/verb/object/target/actor and any other
	// client-supplied field), not a reconstruction that would drop actor.
	raw["target"] = target
	raw["object"] = object
	if err := c.deps.Validator.Validate(v.Schema, raw); err != nil {
		c.send(ErrorFrame{
			RID:      rid,
			Platform: &platform,
			Verb:     verb,
			Status:   false,
			Message:  fmt.Sprintf("unable to validate json against schema: %s", err.Error()),
			Target:   target,
		})
		return
	}

	raw["sessionId"] = sess.ID()
	c.send(ConfirmFrame{RID: rid, Verb: "confirm", Status: true})

	if v.Func != nil {
		req := catalog.LocalRequest{
			RID:       rid,
			Platform:  platform,
			Verb:      verb,
			Object:    object,
			Target:    target,
			SessionID: sess.ID(),
		}
		v.Func(ctx, req, func(handlerErr error, data interface{}) {
			if handlerErr != nil {
				c.send(ErrorFrame{RID: rid, Platform: &platform, Verb: verb, Status: false, Message: handlerErr.Error(), Target: target})
				return
			}
			c.send(MessageFrame{RID: rid, Verb: verb, Platform: platform, Status: true, Object: data, Target: target})
		})
		return
	}

	payload, err := json.Marshal(raw)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - failed to encode request for session %s: %v", ingressLogPrefix, c.id, err))
		return
	}
	subject := commsutil.IncomingSubject(c.deps.InstanceID, platform)
	if err := c.deps.Queue.Push(subject, payload); err != nil {
		// spec.md §7 item 3: producer-side queue errors are logged; the
		// client has already received its confirm and is not notified.
		slog.Error(fmt.Sprintf("%s - failed to push request to %s: %v", ingressLogPrefix, subject, err))
	}
}

func (c *Connection) emitChainError(rid json.RawMessage, platform *string, message string) {
	c.send(ErrorFrame{RID: rid, Platform: platform, Verb: "confirm", Status: false, Message: message})
}

func isStringOrNumber(v interface{}) bool {
	switch v.(type) {
	case string, float64:
		return true
	default:
		return false
	}
}

// normalizeTarget implements spec.md §3: target is normalized to an
// ordered sequence, empty if absent.
func normalizeTarget(v interface{}) []map[string]interface{} {
	switch t := v.(type) {
	case []interface{}:
		out := make([]map[string]interface{}, 0, len(t))
		for _, item := range t {
			if m, ok := item.(map[string]interface{}); ok {
				out = append(out, m)
			}
		}
		return out
	case map[string]interface{}:
		return []map[string]interface{}{t}
	default:
		return []map[string]interface{}{}
	}
}

func (c *Connection) send(frame interface{}) {
	data, err := json.Marshal(frame)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - failed to encode frame for session %s: %v", ingressLogPrefix, c.id, err))
		return
	}
	if err := c.conn.WriteMessage(context.Background(), transport.TextMessage, data); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to write frame for session %s: %v", ingressLogPrefix, c.id, err))
	}
}
