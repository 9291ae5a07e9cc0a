// Package output post-processes command payloads before printing. The jq
// filter lets any command's JSON output be reshaped on the way out, the
// same role the --jq flag plays in other API tooling.
package output

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/itchyny/gojq"

	"github.com/srec-tools/pipectl/pkg/schema"
)

// evalTimeout bounds a single filter evaluation. Expressions run over
// command-sized payloads; anything longer than this is a runaway program.
const evalTimeout = time.Second

// Filter evaluates jq expressions against JSON payloads.
// Thread-safe: compiled *Code objects are cached and reused across
// goroutines.
type Filter struct {
	mu    sync.RWMutex
	cache map[string]*gojq.Code
}

// NewFilter creates an empty filter cache.
func NewFilter() *Filter {
	return &Filter{
		cache: make(map[string]*gojq.Code),
	}
}

// Apply evaluates the expression against the payload and returns one
// compact JSON document per jq output, in output order.
func (f *Filter) Apply(ctx context.Context, expression string, payload any) ([]string, error) {
	results, err := f.Run(ctx, expression, payload)
	if err != nil {
		return nil, err
	}

	lines := make([]string, 0, len(results))
	for _, res := range results {
		encoded, mErr := json.Marshal(res)
		if mErr != nil {
			return nil, schema.NewErrorf(schema.ErrCodeValidation,
				"jq output not encodable: %s", mErr.Error()).WithCause(mErr)
		}
		lines = append(lines, string(encoded))
	}
	return lines, nil
}

// Run evaluates the expression and returns the raw jq outputs. The payload
// is round-tripped through JSON first, so any marshalable value works as
// input. jq expressions can produce zero, one, or many outputs.
func (f *Filter) Run(ctx context.Context, expression string, payload any) ([]any, error) {
	if expression == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "empty jq expression")
	}

	code, err := f.getOrCompile(expression)
	if err != nil {
		return nil, err
	}

	input, err := toJSONValue(payload)
	if err != nil {
		return nil, err
	}

	tctx, cancel := context.WithTimeout(ctx, evalTimeout)
	defer cancel()

	iter := code.RunWithContext(tctx, input)

	var results []any
	for {
		val, ok := iter.Next()
		if !ok {
			break
		}
		if evalErr, isErr := val.(error); isErr {
			return nil, schema.NewErrorf(schema.ErrCodeValidation,
				"jq evaluation failed for %q: %s", expression, evalErr.Error()).
				WithCause(evalErr).
				WithDetails(map[string]any{"expression": expression})
		}
		results = append(results, val)
	}

	return results, nil
}

// getOrCompile returns a cached compiled code or compiles and caches a new one.
func (f *Filter) getOrCompile(expression string) (*gojq.Code, error) {
	f.mu.RLock()
	if code, ok := f.cache[expression]; ok {
		f.mu.RUnlock()
		return code, nil
	}
	f.mu.RUnlock()

	f.mu.Lock()
	defer f.mu.Unlock()

	// Double-check after acquiring write lock.
	if code, ok := f.cache[expression]; ok {
		return code, nil
	}

	query, err := gojq.Parse(expression)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"jq parse error in %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}

	code, err := gojq.Compile(query,
		// Sandbox: return empty env to block $ENV and env access.
		gojq.WithEnvironLoader(func() []string { return nil }),
	)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"jq compile error in %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}

	f.cache[expression] = code
	return code, nil
}

// toJSONValue normalizes an arbitrary payload into jq's value domain
// (maps, slices, float64, string, bool, nil) by round-tripping it
// through JSON.
func toJSONValue(payload any) (any, error) {
	if payload == nil {
		return nil, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"payload not JSON-encodable: %s", err.Error()).WithCause(err)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"payload round-trip failed: %s", err.Error()).WithCause(err)
	}
	return v, nil
}
