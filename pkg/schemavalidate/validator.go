// Package schemavalidate is the named interface for the schema catalog's
// validation concern: applying a verb's JSON schema to a full incoming
// request object. spec.md treats the schema catalog loader as an external
// collaborator with a named interface only; this package gives that
// interface one concrete, exercised adapter backed by a real JSON Schema
// implementation.
package schemavalidate

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const logPrefix = "schemavalidate:Validator"

// Validator compiles and applies JSON schemas. Implementations must be safe
// for concurrent use: the Ingress Pipeline validates requests from many
// sessions concurrently.
type Validator interface {
	// Validate applies the schema document (as raw JSON) to data (any
	// JSON-encodable value) and returns a descriptive error if data does
	// not conform.
	Validate(schema json.RawMessage, data interface{}) error
}

// CompiledValidator is a Validator that compiles each distinct schema
// document once and caches the result, keyed by the schema's own bytes.
// Compilation is the expensive step; validation against a compiled schema
// is cheap and safe for concurrent callers.
type CompiledValidator struct {
	mu    sync.Mutex
	cache map[string]*jsonschema.Schema
}

// New creates a CompiledValidator with an empty cache.
func New() *CompiledValidator {
	return &CompiledValidator{cache: make(map[string]*jsonschema.Schema)}
}

// Validate implements Validator.
func (v *CompiledValidator) Validate(schema json.RawMessage, data interface{}) error {
	compiled, err := v.compile(schema)
	if err != nil {
		return fmt.Errorf("%s - invalid schema: %w", logPrefix, err)
	}

	// jsonschema validates against decoded-JSON-shaped values (map/slice/
	// primitive), so round-trip data through JSON to normalize structs.
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("%s - failed to encode data for validation: %w", logPrefix, err)
	}
	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fmt.Errorf("%s - failed to decode data for validation: %w", logPrefix, err)
	}

	if err := compiled.Validate(decoded); err != nil {
		return err
	}
	return nil
}

func (v *CompiledValidator) compile(schema json.RawMessage) (*jsonschema.Schema, error) {
	key := string(schema)

	v.mu.Lock()
	if cached, ok := v.cache[key]; ok {
		v.mu.Unlock()
		return cached, nil
	}
	v.mu.Unlock()

	compiler := jsonschema.NewCompiler()
	sum := sha256.Sum256(schema)
	resourceName := hex.EncodeToString(sum[:]) + ".json"
	if err := compiler.AddResource(resourceName, bytes.NewReader(schema)); err != nil {
		return nil, err
	}
	compiled, err := compiler.Compile(resourceName)
	if err != nil {
		return nil, err
	}

	v.mu.Lock()
	v.cache[key] = compiled
	v.mu.Unlock()

	return compiled, nil
}
