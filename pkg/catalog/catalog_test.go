package catalog

import (
	"context"
	"testing"
	"time"
)

const testCatalogJSON = `{
	"catalogVersion": "1.4.0",
	"platforms": {
		"xmpp": {
			"local": false,
			"verbs": {
				"send": {"schema": {"type": "object"}},
				"join": {"schema": {"type": "object"}, "minCatalogVersion": ">=2.0.0"}
			}
		},
		"dispatcher": {
			"local": true,
			"verbs": {
				"register": {"schema": {"type": "object"}}
			}
		}
	}
}`

func mustParse(t *testing.T) *Catalog {
	t.Helper()
	cat, err := Parse([]byte(testCatalogJSON))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return cat
}

func TestParse_PlatformsAndVerbs(t *testing.T) {
	cat := mustParse(t)

	xmpp, ok := cat.Platform("xmpp")
	if !ok {
		t.Fatal("expected xmpp platform")
	}
	if xmpp.Local {
		t.Error("expected xmpp to be remote")
	}
	if xmpp.Ping == nil {
		t.Error("expected xmpp to have a ping state")
	}

	dispatcher, ok := cat.Platform("dispatcher")
	if !ok {
		t.Fatal("expected dispatcher platform")
	}
	if !dispatcher.Local {
		t.Error("expected dispatcher to be local")
	}
	if dispatcher.Ping != nil {
		t.Error("expected local platform to have no ping state")
	}
}

func TestIsLoaded_DispatcherAlwaysAllowed(t *testing.T) {
	cat := mustParse(t)

	if !cat.IsLoaded("dispatcher", nil) {
		t.Error("dispatcher should always be implicitly allowed")
	}
	if cat.IsLoaded("xmpp", nil) {
		t.Error("xmpp should not be allowed with an empty allow-list")
	}
	if !cat.IsLoaded("xmpp", []string{"irc", "xmpp"}) {
		t.Error("xmpp should be allowed when present in the allow-list")
	}
}

func TestResponsiveAndEverReceived(t *testing.T) {
	cat := mustParse(t)
	now := time.Now()

	if cat.EverReceived("xmpp") {
		t.Error("expected xmpp to not have been received yet")
	}
	if !cat.Responsive("xmpp") {
		t.Error("unsent platform reports responsive via Responsive (0>=0 is true); EverReceived is what catches it")
	}

	cat.MarkPingSent("xmpp", now)
	if cat.Responsive("xmpp") {
		t.Error("platform should be pending immediately after a ping is sent")
	}

	cat.MarkPingReceived("xmpp", now.Add(time.Millisecond))
	if !cat.Responsive("xmpp") {
		t.Error("platform should be responsive once last_received >= last_sent")
	}
	if !cat.EverReceived("xmpp") {
		t.Error("expected xmpp to have been received after MarkPingReceived")
	}
}

func TestMarkPing_UnknownPlatformIsNoOp(t *testing.T) {
	cat := mustParse(t)
	cat.MarkPingSent("unknown-platform", time.Now())
	cat.MarkPingReceived("unknown-platform", time.Now())
	if cat.Responsive("unknown-platform") {
		t.Error("unknown platform should never report responsive")
	}
}

func TestVerb_MinCatalogVersionConstraint(t *testing.T) {
	cat := mustParse(t)

	if _, ok := cat.Verb("xmpp", "send"); !ok {
		t.Error("expected send verb with no constraint to resolve")
	}
	// catalogVersion is 1.4.0; join requires >=2.0.0, so it should not resolve.
	if _, ok := cat.Verb("xmpp", "join"); ok {
		t.Error("expected join verb to be rejected: catalog version does not satisfy constraint")
	}
	if _, ok := cat.Verb("xmpp", "nonexistent"); ok {
		t.Error("expected nonexistent verb to be absent")
	}
}

func TestRegisterLocalHandler(t *testing.T) {
	cat := mustParse(t)

	called := false
	handler := func(ctx context.Context, req LocalRequest, respond func(error, interface{})) {
		called = true
		respond(nil, map[string]string{"ok": "true"})
	}
	if err := cat.RegisterLocalHandler("dispatcher", "register", handler); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	v, ok := cat.Verb("dispatcher", "register")
	if !ok {
		t.Fatal("expected register verb to resolve")
	}
	if v.Func == nil {
		t.Fatal("expected Func to be set")
	}
	v.Func(context.Background(), LocalRequest{}, func(error, interface{}) {})
	if !called {
		t.Error("expected handler to be invoked")
	}
}

func TestRegisterLocalHandler_UnknownPlatform(t *testing.T) {
	cat := mustParse(t)
	if err := cat.RegisterLocalHandler("nope", "register", nil); err == nil {
		t.Error("expected error for unknown platform")
	}
}

func TestRegisterLocalHandler_UnknownVerb(t *testing.T) {
	cat := mustParse(t)
	if err := cat.RegisterLocalHandler("dispatcher", "nope", nil); err == nil {
		t.Error("expected error for unknown verb")
	}
}

func TestLoad_FallsBackToDefault(t *testing.T) {
	cat, err := Load("/nonexistent/path/catalog.json")
	if err != nil {
		t.Fatalf("Load should fall back to default catalog: %v", err)
	}
	if _, ok := cat.Platform("dispatcher"); !ok {
		t.Error("default catalog should include the dispatcher platform")
	}
}
