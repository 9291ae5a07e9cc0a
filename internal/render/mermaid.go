package render

import (
	"fmt"
	"strings"

	"github.com/srec-tools/pipectl/pkg/schema"
)

// RenderMermaid renders the model as a Mermaid flowchart. The graph reads
// left to right like the canvas view; node shape follows the step kind.
func RenderMermaid(model *Model) string {
	var b strings.Builder

	b.WriteString("graph LR\n")

	// Title as comment.
	if model.Title != "" {
		b.WriteString(fmt.Sprintf("    %%%% %s\n", model.Title))
	}

	for _, node := range model.Nodes {
		b.WriteString(fmt.Sprintf("    %s\n", mermaidNodeDef(node)))
	}

	for _, edge := range model.Edges {
		b.WriteString(fmt.Sprintf("    %s --> %s\n",
			mermaidSafeID(edge.From), mermaidSafeID(edge.To)))
	}

	// Kind class definitions.
	b.WriteString("\n")
	b.WriteString("    classDef preset fill:#1a5276,stroke:#0e3a52,color:#fff\n")
	b.WriteString("    classDef inline fill:#2d6a2d,stroke:#1a4a1a,color:#fff\n")
	b.WriteString("    classDef workflow fill:#b7791a,stroke:#8a5c14,color:#fff\n")

	for _, node := range model.Nodes {
		cls := string(node.Kind)
		if cls == "" {
			continue
		}
		b.WriteString(fmt.Sprintf("    class %s %s\n", mermaidSafeID(node.ID), cls))
	}

	return b.String()
}

// mermaidNodeDef returns a Mermaid node definition with the shape for the
// step kind: rounded for preset references, rectangle for inline steps,
// subroutine for sub-workflow references.
func mermaidNodeDef(node *Node) string {
	id := mermaidSafeID(node.ID)
	label := caption(node)

	switch node.Kind {
	case schema.StepKindPreset:
		return fmt.Sprintf("%s(%q)", id, label)
	case schema.StepKindWorkflow:
		return fmt.Sprintf("%s[[%q]]", id, label)
	default: // inline
		return fmt.Sprintf("%s[%q]", id, label)
	}
}

// mermaidSafeID converts a node ID to a Mermaid-safe identifier.
// Replaces dots and dashes with underscores.
func mermaidSafeID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", " ", "_")
	return r.Replace(id)
}
