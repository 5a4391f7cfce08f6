package catalog

import (
	"fmt"
	"time"

	"github.com/Masterminds/semver/v3"
)

const logPrefix = "catalog:Catalog"

// Catalog is the Protocol Registry. It is immutable after load except for
// each remote platform's PingState timestamps, which the Liveness Subsystem
// owns.
type Catalog struct {
	version   *semver.Version
	platforms map[string]*Platform
}

// Platform returns the named platform, or false if it is not in the
// catalog.
func (c *Catalog) Platform(name string) (*Platform, bool) {
	p, ok := c.platforms[name]
	return p, ok
}

// IsLoaded reports whether platform is in the configured allow-list.
// "dispatcher" is always implicitly allowed, per spec.md §4.1.
func (c *Catalog) IsLoaded(platform string, loaded []string) bool {
	if platform == "dispatcher" {
		return true
	}
	for _, p := range loaded {
		if p == platform {
			return true
		}
	}
	return false
}

// RemotePlatforms returns the names of every non-local platform in the
// catalog, for the Liveness Subsystem to ping at init.
func (c *Catalog) RemotePlatforms() []string {
	var out []string
	for name, p := range c.platforms {
		if !p.Local {
			out = append(out, name)
		}
	}
	return out
}

// MarkPingSent records that a ping round was just sent to platform.
// No-op for unknown or local platforms.
func (c *Catalog) MarkPingSent(platform string, when time.Time) {
	p, ok := c.platforms[platform]
	if !ok || p.Ping == nil {
		return
	}
	p.Ping.setLastSent(when.UnixNano())
}

// MarkPingReceived records a ping or ping-response observed for platform.
// No-op for unknown or local platforms (spec.md §4.2: "if the platform is
// unknown the event is logged and ignored").
func (c *Catalog) MarkPingReceived(platform string, when time.Time) {
	p, ok := c.platforms[platform]
	if !ok || p.Ping == nil {
		return
	}
	p.Ping.setLastReceived(when.UnixNano())
}

// Responsive reports whether platform's most recent ping round has been
// answered: last_received >= last_sent (spec.md §3 invariant). Local
// platforms and unknown platforms are always reported non-responsive by
// this method; callers that need to treat local platforms as always-OK
// should check p.Local first.
func (c *Catalog) Responsive(platform string) bool {
	p, ok := c.platforms[platform]
	if !ok || p.Ping == nil {
		return false
	}
	return p.Ping.getLastReceived() >= p.Ping.getLastSent()
}

// EverReceived reports whether platform has ever received a ping/
// ping-response (last_received != 0). Validation rule 4 in spec.md §4.4
// rejects a remote platform whose last_received is still zero even if a
// ping round is nominally "responsive" (0 >= 0 would otherwise pass).
func (c *Catalog) EverReceived(platform string) bool {
	p, ok := c.platforms[platform]
	if !ok || p.Ping == nil {
		return false
	}
	return p.Ping.getLastReceived() != 0
}

// Verb returns the named verb under platform, or false if either is
// undefined, or if the verb carries a MinCatalogVersion constraint the
// catalog's own version does not satisfy.
func (c *Catalog) Verb(platform, verb string) (*Verb, bool) {
	p, ok := c.platforms[platform]
	if !ok {
		return nil, false
	}
	v, ok := p.Verbs[verb]
	if !ok {
		return nil, false
	}
	if v.MinCatalogVersion != "" && c.version != nil {
		constraint, err := semver.NewConstraint(v.MinCatalogVersion)
		if err == nil && !constraint.Check(c.version) {
			return nil, false
		}
	}
	return v, true
}

// RegisterLocalHandler attaches an in-process handler to a verb already
// present in the catalog. Returns an error if the platform/verb pair is
// undefined.
func (c *Catalog) RegisterLocalHandler(platform, verb string, fn LocalHandler) error {
	p, ok := c.platforms[platform]
	if !ok {
		return fmt.Errorf("%s - unknown platform %q", logPrefix, platform)
	}
	v, ok := p.Verbs[verb]
	if !ok {
		return fmt.Errorf("%s - unknown verb %q for platform %q", logPrefix, verb, platform)
	}
	v.Func = fn
	return nil
}
