package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Shipped examples ---

// The pipeline definitions under examples/ are user-facing documentation
// and feed cmd/gen-diagrams; they must stay structurally valid.
func TestShippedExamplesValidate(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("..", "..", "examples", "*.json"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			setupWorkspace(t)
			stdout, _, err := runCLI(t, "pipeline", "validate", "-f", path, "--offline")
			require.NoError(t, err)
			assert.Contains(t, stdout, "Pipeline is valid.")
		})
	}
}
