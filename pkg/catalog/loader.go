package catalog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/Masterminds/semver/v3"
)

const loaderLogPrefix = "catalog:Load"

// Load loads a catalog from file paths or environment. It tries paths in
// order: first any paths passed in, then DISPATCHER_CATALOG_FILE env, then
// a built-in default with just the "dispatcher" platform (so an empty
// dispatcher can still start and serve registration).
func Load(paths ...string) (*Catalog, error) {
	all := make([]string, 0, len(paths)+2)
	for _, p := range paths {
		if p != "" {
			all = append(all, p)
		}
	}
	if envPath := os.Getenv("DISPATCHER_CATALOG_FILE"); envPath != "" {
		all = append(all, envPath)
	}

	for _, p := range all {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}

		cat, err := Parse(data)
		if err != nil {
			slog.Warn(fmt.Sprintf("%s - failed to parse catalog file %s: %v", loaderLogPrefix, p, err))
			continue
		}

		slog.Info(fmt.Sprintf("%s - loaded catalog from %s", loaderLogPrefix, p))
		return cat, nil
	}

	slog.Info(fmt.Sprintf("%s - using default catalog", loaderLogPrefix))
	return Parse(defaultCatalogJSON)
}

// Parse decodes a catalog document from JSON bytes.
func Parse(data []byte) (*Catalog, error) {
	var doc catalogDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%s - invalid catalog JSON: %w", loaderLogPrefix, err)
	}

	cat := &Catalog{
		platforms: make(map[string]*Platform, len(doc.Platforms)),
	}

	if doc.CatalogVersion != "" {
		v, err := semver.NewVersion(doc.CatalogVersion)
		if err != nil {
			return nil, fmt.Errorf("%s - invalid catalogVersion %q: %w", loaderLogPrefix, doc.CatalogVersion, err)
		}
		cat.version = v
	}

	if _, ok := doc.Platforms["dispatcher"]; !ok {
		doc.Platforms["dispatcher"] = platformDoc{
			Local: true,
			Verbs: map[string]verbDoc{
				"register": {Schema: json.RawMessage(`{"type":"object"}`)},
			},
		}
	}

	for name, pd := range doc.Platforms {
		platform := &Platform{
			Name:  name,
			Local: pd.Local,
			Verbs: make(map[string]*Verb, len(pd.Verbs)),
		}
		if !pd.Local {
			platform.Ping = &PingState{}
		}
		for verbName, vd := range pd.Verbs {
			schema := vd.Schema
			if len(schema) == 0 {
				schema = json.RawMessage(`{}`)
			}
			platform.Verbs[verbName] = &Verb{
				Schema:            schema,
				MinCatalogVersion: vd.MinCatalogVersion,
			}
		}
		cat.platforms[name] = platform
	}

	return cat, nil
}

// defaultCatalogJSON is the built-in fallback catalog: only the local
// "dispatcher" platform with a "register" verb. Remote platforms must be
// supplied via an explicit catalog file.
var defaultCatalogJSON = []byte(`{
	"catalogVersion": "1.0.0",
	"platforms": {
		"dispatcher": {
			"local": true,
			"verbs": {
				"register": {"schema": {"type": "object"}}
			}
		}
	}
}`)
