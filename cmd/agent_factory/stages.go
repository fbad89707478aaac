package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/agent-factory/internal/observability"
	"github.com/jonathan/agent-factory/internal/pipeline/steps"
)

func newStagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stages",
		Short: "List the pipeline stages in execution order",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			observability.NewPrinter(cmd.OutOrStdout()).PrintStages(steps.Ordered())
		},
	}
}

func newNextLabelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "next-label [current]",
		Short: "Print the navigation label that follows current",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			current := ""
			if len(args) == 1 {
				current = args[0]
			}
			fmt.Fprintln(cmd.OutOrStdout(), steps.NextLabel(current)) //nolint:errcheck
		},
	}
}
