package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/srec-tools/pipectl/internal/client"
)

// PipectlServerDeps holds the dependencies for creating a PipectlServer.
type PipectlServerDeps struct {
	// Client talks to the srec backend. It may be nil, in which case the
	// preset tools report that no backend is configured while the offline
	// tools keep working.
	Client *client.Client
	Logger *slog.Logger
}

// PipectlServer wraps an MCP server with pipeline editing tool handlers.
type PipectlServer struct {
	client    *client.Client
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewPipectlServer creates a new PipectlServer with all 5 tools registered.
func NewPipectlServer(deps PipectlServerDeps) *PipectlServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	s := &PipectlServer{
		client: deps.Client,
		logger: logger,
	}

	mcpSrv := server.NewMCPServer(
		"pipectl",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("pipectl edits srec recording pipelines. Use validate_pipeline to check a step array for structural problems, render_pipeline to draw it as ASCII, Mermaid, DOT, or a PNG image, list_job_presets and list_pipeline_presets to browse the backend catalog, and get_job_preset to fetch a single preset including its processor config."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *PipectlServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *PipectlServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// tools returns the 5 registered MCP tools as ServerTool entries.
func (s *PipectlServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: validateTool(), Handler: s.handleValidate},
		{Tool: renderTool(), Handler: s.handleRender},
		{Tool: listJobPresetsTool(), Handler: s.handleListJobPresets},
		{Tool: listPipelinePresetsTool(), Handler: s.handleListPipelinePresets},
		{Tool: getJobPresetTool(), Handler: s.handleGetJobPreset},
	}
}

// --- Tool definitions ---

func validateTool() mcp.Tool {
	return mcp.NewTool("validate_pipeline",
		mcp.WithDescription("Validate a pipeline step array: duplicate ids, unknown or self dependencies, cycles, and unreachable depth. Returns the full report, not just pass/fail"),
		mcp.WithString("steps", mcp.Required(), mcp.Description("Pipeline steps as a JSON array of {id, step, depends_on} objects; step may be a bare preset name string")),
	)
}

func renderTool() mcp.Tool {
	return mcp.NewTool("render_pipeline",
		mcp.WithDescription("Draw a pipeline step array as a graph. Returns ASCII art, Mermaid flowchart syntax, Graphviz DOT text, or a base64-encoded PNG image"),
		mcp.WithString("steps", mcp.Required(), mcp.Description("Pipeline steps as a JSON array of {id, step, depends_on} objects")),
		mcp.WithString("format", mcp.Required(),
			mcp.Enum("ascii", "mermaid", "dot", "image"),
			mcp.Description("Output format: ascii (text), mermaid (flowchart syntax), dot (Graphviz source), or image (base64 PNG)"),
		),
		mcp.WithString("name", mcp.Description("Pipeline name used as the diagram title")),
	)
}

func listJobPresetsTool() mcp.Tool {
	return mcp.NewTool("list_job_presets",
		mcp.WithDescription("List reusable single-job presets from the backend catalog"),
		mcp.WithString("category", mcp.Description("Only presets in this category")),
		mcp.WithString("processor", mcp.Description("Only presets for this processor type")),
		mcp.WithString("search", mcp.Description("Substring match on preset name and description")),
		mcp.WithString("limit", mcp.Description("Maximum presets to return (server default 50)")),
	)
}

func listPipelinePresetsTool() mcp.Tool {
	return mcp.NewTool("list_pipeline_presets",
		mcp.WithDescription("List saved pipeline presets from the backend catalog"),
		mcp.WithString("search", mcp.Description("Substring match on preset name and description")),
		mcp.WithString("limit", mcp.Description("Maximum presets to return (server default 50)")),
	)
}

func getJobPresetTool() mcp.Tool {
	return mcp.NewTool("get_job_preset",
		mcp.WithDescription("Fetch a single job preset by id, including its processor configuration"),
		mcp.WithString("id", mcp.Required(), mcp.Description("Job preset id")),
	)
}
