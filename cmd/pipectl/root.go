package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var configFlag string
	var jsonFlag bool
	var jqFlag string
	var quietFlag bool

	ctx := newCommandContext(&configFlag, &jsonFlag, &jqFlag, &quietFlag)

	rootCmd := &cobra.Command{
		Use:           "pipectl",
		Short:         "Edit and publish srec processing pipelines",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().BoolVar(&jsonFlag, "json", false, "Print machine-readable JSON instead of tables")
	rootCmd.PersistentFlags().StringVar(&jqFlag, "jq", "", "Filter JSON output through a jq expression (implies --json)")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Suppress human-readable chatter")

	rootCmd.AddCommand(newLoginCommand(ctx))
	rootCmd.AddCommand(newLogoutCommand(ctx))
	rootCmd.AddCommand(newPresetCommand(ctx))
	rootCmd.AddCommand(newPipelineCommand(ctx))
	rootCmd.AddCommand(newDraftCommand(ctx))
	rootCmd.AddCommand(newMCPCommand(ctx))
	rootCmd.AddCommand(newUpgradeCommand())
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}
