package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/agent-factory/internal/observability"
	"github.com/jonathan/agent-factory/internal/pipeline/steps"
)

func newShowCmd(g *globalFlags) *cobra.Command {
	var runID string
	cmd := &cobra.Command{
		Use:   "show [tasks|edges|calls|result <label>]",
		Short: "Show a stored job run",
		Long: `Prints the job run, or one of its tables: the task graph, the workflow
edges, the model call log, or the latest result of one stage.`,
		Args: cobra.RangeArgs(0, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return show(cmd, g, runID, args)
		},
	}
	cmd.Flags().StringVar(&runID, "run", "", "Job run ID (required)")
	_ = cmd.MarkFlagRequired("run")
	return cmd
}

func show(cmd *cobra.Command, g *globalFlags, runID string, args []string) error {
	what := "run"
	if len(args) > 0 {
		what = args[0]
	}
	if what == "result" && len(args) != 2 {
		return fmt.Errorf("show result needs a stage label")
	}
	if what != "result" && len(args) > 1 {
		return fmt.Errorf("unexpected argument %q", args[1])
	}

	ctx := cmd.Context()
	a, err := openStore(ctx, cmd, g)
	if err != nil {
		return err
	}
	defer a.Close()

	run, err := a.store.GetJobRun(ctx, runID)
	if err != nil {
		return err
	}
	printer := observability.NewPrinter(cmd.OutOrStdout())

	switch what {
	case "run":
		printer.PrintJobRun(run)
	case "tasks":
		tasks, err := a.store.GetTasks(ctx, run.ID)
		if err != nil {
			return err
		}
		printer.PrintTasks(tasks)
	case "edges":
		edges, err := a.store.GetEdges(ctx, run.ID)
		if err != nil {
			return err
		}
		printer.PrintEdges(edges)
	case "calls":
		logs, err := a.store.ListCallLogs(ctx, run.ID)
		if err != nil {
			return err
		}
		printer.PrintCallLogs(logs)
	case "result":
		stage, err := steps.Resolve(args[1])
		if err != nil {
			return err
		}
		res, err := a.store.GetStageResult(ctx, run.ID, stage.ID)
		if err != nil {
			return err
		}
		printer.PrintStageResult(stage, res)
	default:
		return fmt.Errorf("unknown view %q: want tasks, edges, calls or result", what)
	}
	return nil
}
