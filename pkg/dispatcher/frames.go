// Package dispatcher implements the Ingress Pipeline, Egress Pump, and
// Connection Lifecycle: the per-connection request/response multiplexer
// described across spec.md §4.3–§4.5.
package dispatcher

import "encoding/json"

// DisconnectSentinel is the exact payload pushed to a session's outgoing
// channel to signal the Egress Pump to exit without reissuing its blocking
// pop (spec.md §3, §4.3).
const DisconnectSentinel = `{"platform":"dispatcher","verb":"disconnect","status":true}`

// ConfirmFrame acknowledges a request passed the full validation chain,
// sent before any downstream response for the same rid.
type ConfirmFrame struct {
	RID    json.RawMessage `json:"rid"`
	Verb   string          `json:"verb"`
	Status bool            `json:"status"`
}

// MessageFrame carries a local handler's or remote listener's response.
type MessageFrame struct {
	RID      json.RawMessage          `json:"rid"`
	Verb     string                   `json:"verb"`
	Platform string                   `json:"platform"`
	Status   bool                     `json:"status"`
	Object   interface{}              `json:"object"`
	Target   []map[string]interface{} `json:"target,omitempty"`
}

// ErrorFrame reports a validation failure or a local handler error.
// Platform is a pointer so an undetermined platform serializes as JSON
// null rather than an empty string, matching spec.md §8 scenario 1.
type ErrorFrame struct {
	RID      json.RawMessage          `json:"rid"`
	Platform *string                  `json:"platform"`
	Verb     string                   `json:"verb"`
	Status   bool                     `json:"status"`
	Message  string                   `json:"message"`
	Object   interface{}              `json:"object,omitempty"`
	Target   []map[string]interface{} `json:"target,omitempty"`
}

// CleanupEvent is broadcast on the subsystem event bus when a connection
// closes (spec.md §4.5).
type CleanupEvent struct {
	SIDs []string `json:"sids"`
}
