package layout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Levels ---

func TestLevels_Diamond(t *testing.T) {
	nodes := []string{"a", "b", "c", "d"}
	edges := []Edge{
		{Source: "a", Target: "b"},
		{Source: "a", Target: "c"},
		{Source: "b", Target: "d"},
		{Source: "c", Target: "d"},
	}

	levels := Levels(nodes, edges)
	assert.Equal(t, map[string]int{"a": 0, "b": 1, "c": 1, "d": 2}, levels)
}

func TestLevels_LongestPathWins(t *testing.T) {
	// d is fed both directly by a and through b; the longer chain decides.
	nodes := []string{"a", "b", "d"}
	edges := []Edge{
		{Source: "a", Target: "b"},
		{Source: "a", Target: "d"},
		{Source: "b", Target: "d"},
	}

	levels := Levels(nodes, edges)
	assert.Equal(t, 2, levels["d"])
}

func TestLevels_TwoNodeCycle(t *testing.T) {
	nodes := []string{"a", "b"}
	edges := []Edge{
		{Source: "a", Target: "b"},
		{Source: "b", Target: "a"},
	}

	levels := Levels(nodes, edges)
	assert.Equal(t, 0, levels["a"])
	assert.Equal(t, 0, levels["b"])
}

func TestLevels_CycleWithUpstreamRoot(t *testing.T) {
	// root feeds the b<->c cycle; the cycle members collapse to level 0,
	// the root is untouched.
	nodes := []string{"root", "b", "c"}
	edges := []Edge{
		{Source: "root", Target: "b"},
		{Source: "c", Target: "b"},
		{Source: "b", Target: "c"},
	}

	levels := Levels(nodes, edges)
	assert.Equal(t, 0, levels["root"])
	assert.Equal(t, 0, levels["b"])
	assert.Equal(t, 0, levels["c"])
}

func TestLevels_IgnoresDanglingEdges(t *testing.T) {
	nodes := []string{"a", "b"}
	edges := []Edge{
		{Source: "ghost", Target: "b"},
		{Source: "a", Target: "b"},
	}

	levels := Levels(nodes, edges)
	assert.Equal(t, map[string]int{"a": 0, "b": 1}, levels)
}

// --- Compute ---

func TestCompute_Empty(t *testing.T) {
	assert.Empty(t, Compute(nil, nil))
}

func TestCompute_SingleNode(t *testing.T) {
	positions := Compute([]string{"only"}, nil)
	require.Len(t, positions, 1)
	assert.Equal(t, Position{X: Margin, Y: 0}, positions["only"])
}

func TestCompute_DiamondPositions(t *testing.T) {
	nodes := []string{"a", "b", "c", "d"}
	edges := []Edge{
		{Source: "a", Target: "b"},
		{Source: "a", Target: "c"},
		{Source: "b", Target: "d"},
		{Source: "c", Target: "d"},
	}

	positions := Compute(nodes, edges)
	require.Len(t, positions, 4)

	// Columns by level.
	assert.Equal(t, Margin, positions["a"].X)
	assert.Equal(t, LevelSpacing+Margin, positions["b"].X)
	assert.Equal(t, LevelSpacing+Margin, positions["c"].X)
	assert.Equal(t, 2*LevelSpacing+Margin, positions["d"].X)

	// The two-node middle layer is the tallest; single-node layers center
	// against it.
	assert.Equal(t, NodeSpacing/2, positions["a"].Y)
	assert.Equal(t, 0.0, positions["b"].Y)
	assert.Equal(t, NodeSpacing, positions["c"].Y)
	assert.Equal(t, NodeSpacing/2, positions["d"].Y)
}

func TestCompute_StableWithinLayer(t *testing.T) {
	edges := []Edge{
		{Source: "a", Target: "b"},
		{Source: "a", Target: "c"},
	}

	first := Compute([]string{"a", "b", "c"}, edges)
	swapped := Compute([]string{"a", "c", "b"}, edges)

	// Input order decides stacking inside a layer.
	assert.Less(t, first["b"].Y, first["c"].Y)
	assert.Less(t, swapped["c"].Y, swapped["b"].Y)
}

func TestCompute_Deterministic(t *testing.T) {
	nodes := []string{"a", "b", "c", "d", "e"}
	edges := []Edge{
		{Source: "a", Target: "b"},
		{Source: "b", Target: "c"},
		{Source: "a", Target: "d"},
		{Source: "d", Target: "e"},
		{Source: "c", Target: "e"},
	}

	first := Compute(nodes, edges)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Compute(nodes, edges))
	}
}

func TestCompute_CycleDoesNotPanic(t *testing.T) {
	nodes := []string{"a", "b"}
	edges := []Edge{
		{Source: "a", Target: "b"},
		{Source: "b", Target: "a"},
	}

	positions := Compute(nodes, edges)
	require.Len(t, positions, 2)
	// Both pinned to the first column, stacked in input order.
	assert.Equal(t, Position{X: Margin, Y: 0}, positions["a"])
	assert.Equal(t, Position{X: Margin, Y: NodeSpacing}, positions["b"])
}
