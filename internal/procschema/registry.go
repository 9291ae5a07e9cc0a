// Package procschema validates inline step configurations against the
// JSON Schemas of the supported processors. One schema file per processor
// is embedded at build time; each is compiled on first use and cached.
package procschema

import (
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/srec-tools/pipectl/pkg/schema"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// Registry compiles processor config schemas from the embedded files and
// caches the compiled form. It is safe for concurrent use.
type Registry struct {
	// mu guards the cache of compiled schemas.
	mu    sync.RWMutex
	cache map[string]*jsonschema.Schema
}

// NewRegistry creates a Registry with an empty cache.
func NewRegistry() *Registry {
	return &Registry{cache: make(map[string]*jsonschema.Schema)}
}

// Schema returns the compiled config schema for a processor, compiling it
// from the embedded file on first use.
func (r *Registry) Schema(processor string) (*jsonschema.Schema, error) {
	r.mu.RLock()
	if cached, ok := r.cache[processor]; ok {
		r.mu.RUnlock()
		return cached, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring write lock.
	if cached, ok := r.cache[processor]; ok {
		return cached, nil
	}

	raw, err := schemaFS.ReadFile("schemas/" + processor + ".json")
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeInvalidConfig,
			"no config schema for processor %q", processor)
	}

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("unmarshal %s schema: %w", processor, err)
	}

	url := "pipectl://schemas/" + processor + ".json"
	c := jsonschema.NewCompiler()
	c.AssertFormat()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add %s schema resource: %w", processor, err)
	}

	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile %s schema: %w", processor, err)
	}

	r.cache[processor] = compiled
	return compiled, nil
}

// Validate checks an inline step config against the processor's schema.
// A nil or empty config is validated as an empty object so that required
// fields still surface.
func (r *Registry) Validate(processor string, config json.RawMessage) error {
	compiled, err := r.Schema(processor)
	if err != nil {
		return err
	}

	if len(config) == 0 {
		config = json.RawMessage("{}")
	}

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(config)))
	if err != nil {
		return schema.NewError(schema.ErrCodeInvalidConfig, "config is not valid JSON").
			WithCause(err)
	}

	if err := compiled.Validate(doc); err != nil {
		return toConfigError(processor, err)
	}

	return nil
}

// toConfigError converts a jsonschema.ValidationError into a PipelineError
// with one message per violated constraint.
func toConfigError(processor string, err error) *schema.PipelineError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeInvalidConfig, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeInvalidConfig, verr.Error())
	}

	if len(violations) == 1 {
		return schema.NewErrorf(schema.ErrCodeInvalidConfig, "%s config: %s", processor, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}

	msg := fmt.Sprintf("%s config failed with %d schema violations", processor, len(violations))
	return schema.NewError(schema.ErrCodeInvalidConfig, msg).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks a ValidationError tree and collects leaf error
// messages with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
