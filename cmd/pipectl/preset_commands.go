package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/srec-tools/pipectl/internal/client"
)

func newPresetCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preset",
		Short: "Browse reusable job presets on the backend",
	}

	cmd.AddCommand(newPresetListCommand(ctx))
	cmd.AddCommand(newPresetShowCommand(ctx))
	cmd.AddCommand(newPresetCloneCommand(ctx))

	return cmd
}

func newPresetListCommand(ctx *commandContext) *cobra.Command {
	var category string
	var processor string
	var search string
	var limit int
	var offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List job presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := ctx.apiClient()
			if err != nil {
				return err
			}
			list, err := api.ListJobPresets(cmd.Context(), client.JobPresetFilter{
				Category:  category,
				Processor: processor,
				Search:    search,
				Limit:     limit,
				Offset:    offset,
			})
			if err != nil {
				return err
			}

			return ctx.emit(cmd, list, func(out io.Writer) {
				if len(list.Presets) == 0 {
					fmt.Fprintln(out, "No job presets found.")
					return
				}
				rows := make([][]string, 0, len(list.Presets))
				for _, p := range list.Presets {
					rows = append(rows, []string{
						p.ID, p.Name, p.Category, p.Processor, formatDisplayTime(p.UpdatedAt),
					})
				}
				fmt.Fprintln(out, renderTable(out,
					[]string{"ID", "Name", "Category", "Processor", "Updated"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
				))
				fmt.Fprintf(out, "%d of %d presets\n", len(list.Presets), list.Total)
			})
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "Filter by category")
	cmd.Flags().StringVar(&processor, "processor", "", "Filter by processor type")
	cmd.Flags().StringVar(&search, "search", "", "Filter by name or description substring")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum presets to return")
	cmd.Flags().IntVar(&offset, "offset", 0, "Presets to skip before the first result")

	return cmd
}

func newPresetShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one job preset including its processor config",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := ctx.apiClient()
			if err != nil {
				return err
			}
			preset, err := api.GetJobPreset(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			return ctx.emit(cmd, preset, func(out io.Writer) {
				fmt.Fprintf(out, "ID:        %s\n", preset.ID)
				fmt.Fprintf(out, "Name:      %s\n", preset.Name)
				if preset.Description != "" {
					fmt.Fprintf(out, "Desc:      %s\n", preset.Description)
				}
				if preset.Category != "" {
					fmt.Fprintf(out, "Category:  %s\n", preset.Category)
				}
				fmt.Fprintf(out, "Processor: %s\n", preset.Processor)
				fmt.Fprintf(out, "Updated:   %s\n", formatDisplayTime(preset.UpdatedAt))
				if strings.TrimSpace(preset.Config) != "" {
					fmt.Fprintf(out, "Config:\n%s\n", preset.Config)
				}
			})
		},
	}
}

func newPresetCloneCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clone <id> <new-name>",
		Short: "Clone a job preset under a new name",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := ctx.apiClient()
			if err != nil {
				return err
			}
			clone, err := api.CloneJobPreset(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return ctx.emit(cmd, clone, func(out io.Writer) {
				fmt.Fprintf(out, "Cloned as %q (%s)\n", clone.Name, clone.ID)
			})
		},
	}
}

func formatDisplayTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04")
}
