package dag

import (
	"fmt"
	"strings"

	"github.com/srec-tools/pipectl/pkg/schema"
)

// MaxSteps is the largest pipeline the validator accepts.
const MaxSteps = 1000

// Analysis is the structural breakdown of a pipeline step array. Report
// carries the same fields, error strings, and warning strings the backend
// validator produces, so offline validation reads identically to online.
type Analysis struct {
	Report schema.ValidateReport

	// Depths maps step id to its DAG depth; roots are depth 1. Steps caught
	// in a cycle keep whatever depth propagated before the walk stalled
	// (0 when nothing reached them).
	Depths map[string]int

	// Order is a topological order over the steps that were processed,
	// stable with respect to array order. Steps in a cycle are absent.
	Order []string
}

// Analyze inspects a step array and reports duplicate ids, self and unknown
// dependencies, missing roots, and cycles, along with roots, leaves, and the
// maximum dependency depth. It never fails: every problem becomes a report
// entry. Kahn's algorithm bounds the work at O(V+E) regardless of cycles.
func Analyze(steps []schema.DagStepDefinition) *Analysis {
	a := &Analysis{Depths: make(map[string]int, len(steps))}
	report := &a.Report
	report.Errors = []string{}
	report.Warnings = []string{}
	report.RootSteps = []string{}
	report.LeafSteps = []string{}

	if len(steps) == 0 {
		report.Errors = append(report.Errors, "DAG must have at least one step")
		return a
	}

	if len(steps) > MaxSteps {
		report.Errors = append(report.Errors,
			fmt.Sprintf("DAG has %d steps, maximum allowed is %d", len(steps), MaxSteps))
		return a
	}

	n := len(steps)

	// Index steps by id; a repeated id reports an error and keeps the last
	// occurrence, matching the backend.
	idToIdx := make(map[string]int, n)
	for i, step := range steps {
		if _, exists := idToIdx[step.ID]; exists {
			report.Errors = append(report.Errors, fmt.Sprintf("Duplicate step ID: %s", step.ID))
		}
		idToIdx[step.ID] = i
	}

	// Single pass: build the dependent lists, count in-degrees, and report
	// self and unresolved dependencies.
	inDegree := make([]int, n)
	dependents := make([][]int, n)
	hasDependents := make([]bool, n)

	for i, step := range steps {
		for _, dep := range step.DependsOn {
			if dep == step.ID {
				report.Errors = append(report.Errors,
					fmt.Sprintf("Step '%s' depends on itself", step.ID))
				continue
			}
			depIdx, ok := idToIdx[dep]
			if !ok {
				report.Errors = append(report.Errors,
					fmt.Sprintf("Step '%s' depends on non-existent step '%s'", step.ID, dep))
				continue
			}
			dependents[depIdx] = append(dependents[depIdx], i)
			inDegree[i]++
			hasDependents[depIdx] = true
		}
	}

	for i, step := range steps {
		if inDegree[i] == 0 {
			report.RootSteps = append(report.RootSteps, step.ID)
		}
		if !hasDependents[i] {
			report.LeafSteps = append(report.LeafSteps, step.ID)
		}
	}

	if len(report.RootSteps) == 0 {
		report.Errors = append(report.Errors, "DAG has no root steps (all steps have dependencies)")
	}

	// Kahn's algorithm: cycle detection and depth computation in one pass.
	// Roots get depth 1; every dependent gets the longest path from a root.
	queue := make([]int, 0, n)
	depths := make([]int, n)
	remaining := make([]int, n)
	copy(remaining, inDegree)

	for i := 0; i < n; i++ {
		if remaining[i] == 0 {
			queue = append(queue, i)
			depths[i] = 1
		}
	}

	processed := 0
	for head := 0; head < len(queue); head++ {
		node := queue[head]
		processed++
		a.Order = append(a.Order, steps[node].ID)

		for _, dependent := range dependents[node] {
			if depths[node]+1 > depths[dependent] {
				depths[dependent] = depths[node] + 1
			}
			remaining[dependent]--
			if remaining[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	// Unprocessed nodes are part of a cycle; name the first few.
	if processed < n {
		cycleNodes := make([]string, 0, 5)
		for i := 0; i < n && len(cycleNodes) < 5; i++ {
			if remaining[i] > 0 {
				cycleNodes = append(cycleNodes, steps[i].ID)
			}
		}
		suffix := ""
		if len(cycleNodes) == 5 {
			suffix = " ..."
		}
		report.Errors = append(report.Errors,
			fmt.Sprintf("Cycle detected involving: %s%s", strings.Join(cycleNodes, " -> "), suffix))
	}

	maxDepth := 0
	for i, step := range steps {
		a.Depths[step.ID] = depths[i]
		if depths[i] > maxDepth {
			maxDepth = depths[i]
		}
	}
	report.MaxDepth = maxDepth

	if n == 1 {
		report.Warnings = append(report.Warnings,
			"DAG has only one step - consider if a pipeline is necessary")
	}
	if maxDepth > 10 {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("DAG has depth %d - deep pipelines may be slow", maxDepth))
	}

	report.Valid = len(report.Errors) == 0
	return a
}
