package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/srec-tools/pipectl/pkg/mcp"
)

func newMCPCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the pipeline tools over MCP on stdio",
		Long: `Serve the pipeline tools over MCP on stdio. Validation and rendering work
without a backend; the preset tools proxy to the configured server when one
is reachable.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			serveCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			// The preset tools degrade to a tool error when the backend is
			// unreachable, so a failed client setup does not block serving.
			deps := mcp.PipectlServerDeps{Logger: ctx.logger()}
			if api, err := ctx.apiClient(); err == nil {
				deps.Client = api
			} else {
				ctx.logger().Warn("mcp starting without a backend client", "error", err)
			}

			server := mcp.NewPipectlServer(deps)
			return server.Serve(serveCtx)
		},
	}
}
