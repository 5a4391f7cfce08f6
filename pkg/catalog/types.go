// Package catalog implements the Protocol Registry: the in-memory catalog of
// platforms, verbs, per-verb JSON schemas, and optional local handler
// functions that the dispatcher validates and routes requests against.
package catalog

import (
	"context"
	"encoding/json"
	"sync/atomic"
)

// LocalHandler is invoked in-process for a verb that does not forward to a
// platform listener. responseHandler(err, data) mirrors spec.md §4.4: a
// truthy err produces an error frame, otherwise a message frame with
// object=data.
type LocalHandler func(ctx context.Context, req LocalRequest, respond func(err error, data interface{}))

// LocalRequest is the subset of a dispatcher request a local handler needs,
// kept independent of the dispatcher package to avoid an import cycle.
type LocalRequest struct {
	RID       json.RawMessage
	Platform  string
	Verb      string
	Object    map[string]interface{}
	Target    []map[string]interface{}
	SessionID string
}

// Verb is a single action defined under a platform.
type Verb struct {
	Schema json.RawMessage `json:"schema"`
	// MinCatalogVersion, if set, is a semver constraint (e.g. ">=1.2.0")
	// the catalog's own CatalogVersion must satisfy for this verb to be
	// considered defined. Absent means no constraint.
	MinCatalogVersion string `json:"minCatalogVersion,omitempty"`
	// Func is nil for verbs that forward to a platform listener over the
	// queue, and non-nil for verbs executed in-process. Not serialized;
	// populated by code registering local handlers after load.
	Func LocalHandler `json:"-"`
}

// PingState tracks the liveness protocol's last-sent/last-received
// timestamps (unix nanoseconds) for a remote platform. Accessed exclusively
// via sync/atomic: writes come from the Liveness Subsystem, reads from the
// Ingress Pipeline's validation chain, and no further locking is needed
// because the comparison is advisory (spec.md §5).
type PingState struct {
	lastSent     int64
	lastReceived int64
}

func (p *PingState) setLastSent(nanos int64)     { atomic.StoreInt64(&p.lastSent, nanos) }
func (p *PingState) setLastReceived(nanos int64) { atomic.StoreInt64(&p.lastReceived, nanos) }
func (p *PingState) getLastSent() int64          { return atomic.LoadInt64(&p.lastSent) }
func (p *PingState) getLastReceived() int64      { return atomic.LoadInt64(&p.lastReceived) }

// Platform is a named integration module owning a verb set and, for remote
// platforms, a ping state.
type Platform struct {
	Name  string          `json:"-"`
	Local bool            `json:"local"`
	Verbs map[string]*Verb `json:"verbs"`
	// Ping is nil for local platforms; they skip the ping protocol entirely.
	Ping *PingState `json:"-"`
}

// verbDoc and platformDoc mirror the JSON shape of a catalog file on disk;
// Verb.Func cannot be serialized so the file format only carries schema and
// version constraint.
type verbDoc struct {
	Schema            json.RawMessage `json:"schema"`
	MinCatalogVersion string          `json:"minCatalogVersion,omitempty"`
}

type platformDoc struct {
	Local bool               `json:"local"`
	Verbs map[string]verbDoc `json:"verbs"`
}

// catalogDoc is the root JSON document loaded from a catalog file.
type catalogDoc struct {
	CatalogVersion string                 `json:"catalogVersion"`
	Platforms      map[string]platformDoc `json:"platforms"`
}
