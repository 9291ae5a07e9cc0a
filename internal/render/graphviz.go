package render

import (
	"bytes"
	"context"
	"fmt"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"

	"github.com/srec-tools/pipectl/pkg/schema"
)

// RenderDOT renders the model as Graphviz DOT source.
func RenderDOT(model *Model) (string, error) {
	out, err := renderGraphviz(model, graphviz.XDOT)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// RenderImage renders the model as a PNG image using graphviz.
// Returns the PNG bytes.
func RenderImage(model *Model) ([]byte, error) {
	return renderGraphviz(model, graphviz.PNG)
}

func renderGraphviz(model *Model, format graphviz.Format) ([]byte, error) {
	ctx := context.Background()

	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("render: create graphviz: %w", err)
	}
	defer gv.Close()

	gv.SetLayout(graphviz.DOT)

	graph, err := gv.Graph()
	if err != nil {
		return nil, fmt.Errorf("render: create graph: %w", err)
	}
	defer graph.Close()

	graph.SetRankDir(cgraph.LRRank)
	if model.Title != "" {
		graph.SetLabel(model.Title)
	}

	gvNodes := make(map[string]*cgraph.Node, len(model.Nodes))
	for _, node := range model.Nodes {
		gvNode, nErr := graph.CreateNodeByName(node.ID)
		if nErr != nil {
			return nil, fmt.Errorf("render: create node %s: %w", node.ID, nErr)
		}
		gvNode.SetLabel(caption(node))
		applyKindStyle(gvNode, node.Kind)
		gvNodes[node.ID] = gvNode
	}

	for _, edge := range model.Edges {
		fromGV, toGV := gvNodes[edge.From], gvNodes[edge.To]
		if fromGV != nil && toGV != nil {
			if _, eErr := graph.CreateEdgeByName("", fromGV, toGV); eErr != nil {
				return nil, fmt.Errorf("render: create edge %s->%s: %w", edge.From, edge.To, eErr)
			}
		}
	}

	var buf bytes.Buffer
	if err := gv.Render(ctx, graph, format, &buf); err != nil {
		return nil, fmt.Errorf("render: render %s: %w", format, err)
	}

	return buf.Bytes(), nil
}

// applyKindStyle sets shape and fill per step kind.
func applyKindStyle(gvNode *cgraph.Node, kind schema.StepKind) {
	gvNode.SetStyle(cgraph.FilledNodeStyle)
	switch kind {
	case schema.StepKindPreset:
		gvNode.SetShape(cgraph.EllipseShape)
		gvNode.SetFillColor("#1a5276")
		gvNode.SetFontColor("white")
	case schema.StepKindWorkflow:
		gvNode.SetShape(cgraph.HexagonShape)
		gvNode.SetFillColor("#b7791a")
		gvNode.SetFontColor("white")
	default:
		gvNode.SetShape(cgraph.BoxShape)
		gvNode.SetFillColor("#2d6a2d")
		gvNode.SetFontColor("white")
	}
}
