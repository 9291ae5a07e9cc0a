package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/srec-tools/pipectl/internal/client"
	"github.com/srec-tools/pipectl/internal/dag"
	"github.com/srec-tools/pipectl/internal/render"
	"github.com/srec-tools/pipectl/pkg/schema"
)

// handleValidate runs the local analyzer over a step array and returns the
// full report. A report with valid=false is a successful tool call.
func (s *PipectlServer) handleValidate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stepsJSON, err := req.RequireString("steps")
	if err != nil {
		return mcp.NewToolResultError("steps is required"), nil
	}

	steps, parseErr := parseSteps(stepsJSON)
	if parseErr != nil {
		return mcp.NewToolResultError(parseErr.Error()), nil
	}

	analysis := dag.Analyze(steps)
	return marshalResult(analysis.Report)
}

// handleRender draws a step array in the requested format.
func (s *PipectlServer) handleRender(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	format, err := req.RequireString("format")
	if err != nil {
		return mcp.NewToolResultError("format is required"), nil
	}
	if format != "ascii" && format != "mermaid" && format != "dot" && format != "image" {
		return mcp.NewToolResultError("format must be ascii, mermaid, dot, or image"), nil
	}

	stepsJSON, err := req.RequireString("steps")
	if err != nil {
		return mcp.NewToolResultError("steps is required"), nil
	}
	steps, parseErr := parseSteps(stepsJSON)
	if parseErr != nil {
		return mcp.NewToolResultError(parseErr.Error()), nil
	}

	name := req.GetString("name", "")

	model, buildErr := render.Build(name, steps, nil)
	if buildErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("render failed: %v", buildErr)), nil
	}

	switch format {
	case "ascii":
		return mcp.NewToolResultText(render.RenderASCII(model)), nil
	case "mermaid":
		return mcp.NewToolResultText(render.RenderMermaid(model)), nil
	case "dot":
		text, dotErr := render.RenderDOT(model)
		if dotErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("dot render failed: %v", dotErr)), nil
		}
		return mcp.NewToolResultText(text), nil
	case "image":
		png, imgErr := render.RenderImage(model)
		if imgErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("image render failed: %v", imgErr)), nil
		}
		encoded := base64.StdEncoding.EncodeToString(png)
		return mcp.NewToolResultText(encoded), nil
	default:
		return mcp.NewToolResultError("unsupported format"), nil
	}
}

// handleListJobPresets proxies a job preset listing to the backend.
func (s *PipectlServer) handleListJobPresets(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.client == nil {
		return mcp.NewToolResultError("no backend configured: set the server url before using preset tools"), nil
	}

	filter := client.JobPresetFilter{
		Category:  req.GetString("category", ""),
		Processor: req.GetString("processor", ""),
		Search:    req.GetString("search", ""),
	}
	limit, limitErr := intArg(req, "limit")
	if limitErr != nil {
		return mcp.NewToolResultError(limitErr.Error()), nil
	}
	filter.Limit = limit

	list, listErr := s.client.ListJobPresets(ctx, filter)
	if listErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("preset listing failed: %v", listErr)), nil
	}
	return marshalResult(list)
}

// handleListPipelinePresets proxies a pipeline preset listing to the backend.
func (s *PipectlServer) handleListPipelinePresets(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.client == nil {
		return mcp.NewToolResultError("no backend configured: set the server url before using preset tools"), nil
	}

	filter := client.PipelinePresetFilter{
		Search: req.GetString("search", ""),
	}
	limit, limitErr := intArg(req, "limit")
	if limitErr != nil {
		return mcp.NewToolResultError(limitErr.Error()), nil
	}
	filter.Limit = limit

	list, listErr := s.client.ListPipelinePresets(ctx, filter)
	if listErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("preset listing failed: %v", listErr)), nil
	}
	return marshalResult(list)
}

// handleGetJobPreset fetches one job preset with its processor config.
func (s *PipectlServer) handleGetJobPreset(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.client == nil {
		return mcp.NewToolResultError("no backend configured: set the server url before using preset tools"), nil
	}

	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("id is required"), nil
	}

	preset, getErr := s.client.GetJobPreset(ctx, id)
	if getErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("preset lookup failed: %v", getErr)), nil
	}
	return marshalResult(preset)
}

// --- Internal helpers ---

// parseSteps decodes the steps argument. Bare preset name strings inside the
// array decode as preset steps, matching the legacy wire form.
func parseSteps(raw string) ([]schema.DagStepDefinition, error) {
	var steps []schema.DagStepDefinition
	if err := json.Unmarshal([]byte(raw), &steps); err != nil {
		return nil, fmt.Errorf("steps must be a JSON array of step objects: %v", err)
	}
	return steps, nil
}

// intArg reads an optional numeric argument that agents pass as a string.
func intArg(req mcp.CallToolRequest, key string) (int, error) {
	raw := req.GetString(key, "")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	return n, nil
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
