package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/relaycore/dispatcher-core/internal/config"
	"github.com/relaycore/dispatcher-core/pkg/catalog"
)

const serverTestPrefix = "server:server_test"

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Parse([]byte(`{
		"catalogVersion": "1.0.0",
		"platforms": {
			"dispatcher": {"local": true, "verbs": {"register": {"schema": {"type": "object"}}}},
			"irc": {"local": false, "verbs": {"send": {"schema": {}}}}
		}
	}`))
	if err != nil {
		t.Fatalf("%s - unexpected error: %v", serverTestPrefix, err)
	}
	return cat
}

func testServer(t *testing.T, cat *catalog.Catalog) *Server {
	t.Helper()
	return &Server{
		cfg: &config.Config{HealthCheckTimeout: 5 * time.Second},
		cat: cat,
	}
}

func TestHandleHealth_DegradedWhenPlatformUnresponsive(t *testing.T) {
	s := testServer(t, testCatalog(t))
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.handleHealth()(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("%s - got status %d, want 503", serverTestPrefix, rec.Code)
	}

	var payload healthPayload
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("%s - decode failed: %v", serverTestPrefix, err)
	}
	if payload.Status != "degraded" {
		t.Errorf("%s - Status = %q, want degraded", serverTestPrefix, payload.Status)
	}
	if responsive, ok := payload.Platforms["irc"]; !ok || responsive {
		t.Errorf("%s - Platforms[irc] = %v, ok=%v, want false/true", serverTestPrefix, responsive, ok)
	}
}

func TestHandleHealth_HealthyOnceResponsive(t *testing.T) {
	cat := testCatalog(t)
	cat.MarkPingReceived("irc", time.Now())
	s := testServer(t, cat)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.handleHealth()(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("%s - got status %d, want 200", serverTestPrefix, rec.Code)
	}

	var payload healthPayload
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("%s - decode failed: %v", serverTestPrefix, err)
	}
	if payload.Status != "healthy" {
		t.Errorf("%s - Status = %q, want healthy", serverTestPrefix, payload.Status)
	}
	if !payload.Platforms["irc"] {
		t.Errorf("%s - Platforms[irc] = false, want true", serverTestPrefix)
	}
}

func TestHandleReady(t *testing.T) {
	s := testServer(t, testCatalog(t))
	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rec := httptest.NewRecorder()
	s.handleReady()(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("%s - got status %d, want 200", serverTestPrefix, rec.Code)
	}
	var out map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("%s - decode failed: %v", serverTestPrefix, err)
	}
	if out["status"] != "ready" {
		t.Errorf("%s - status = %q, want ready", serverTestPrefix, out["status"])
	}
}
