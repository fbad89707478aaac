package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jonathan/agent-factory/internal/db"
	"github.com/jonathan/agent-factory/internal/observability"
	"github.com/jonathan/agent-factory/internal/pipeline"
	"github.com/jonathan/agent-factory/internal/types"
)

type runFlags struct {
	company  string
	title    string
	jdFile   string
	jdText   string
	jdURL    string
	industry string
	goal     string
	until    string
	from     string
	force    bool
}

func newRunCmd(g *globalFlags) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline for a job up to a stage",
		Long: `Creates the job run for --company and --title (or reuses the existing one)
and runs every stage up to --until. Stages with a clean stored result are
reused unless --force is given; --from reruns from a stage using stored
upstream results.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPipeline(cmd, g, f)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.company, "company", "", "Company name (required)")
	flags.StringVar(&f.title, "title", "", "Job title (required)")
	flags.StringVar(&f.jdFile, "jd-file", "", "Path to a job description text file")
	flags.StringVar(&f.jdText, "jd-text", "", "Job description text")
	flags.StringVar(&f.jdURL, "jd-url", "", "URL of the job posting")
	flags.StringVar(&f.industry, "industry", "", "Industry context")
	flags.StringVar(&f.goal, "goal", "", "Business goal of the transformation")
	flags.StringVar(&f.until, "until", "2.2", "Last stage to run")
	flags.StringVar(&f.from, "from", "", "First stage to execute; earlier stages are loaded from the store")
	flags.BoolVar(&f.force, "force", false, "Rerun stages even when a clean result is stored")
	_ = cmd.MarkFlagRequired("company")
	_ = cmd.MarkFlagRequired("title")
	cmd.MarkFlagsMutuallyExclusive("jd-file", "jd-text")

	return cmd
}

func runPipeline(cmd *cobra.Command, g *globalFlags, f *runFlags) error {
	jdText := f.jdText
	if f.jdFile != "" {
		data, err := os.ReadFile(f.jdFile)
		if err != nil {
			return fmt.Errorf("failed to read job description: %w", err)
		}
		jdText = string(data)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, cmd, g)
	if err != nil {
		return err
	}
	defer a.Close()

	run, err := a.orch.CreateOrGetJobRun(ctx, db.JobRunInput{
		CompanyName:     f.company,
		JobTitle:        f.title,
		ManualJDText:    types.StringPtr(jdText),
		JDURL:           types.StringPtr(f.jdURL),
		IndustryContext: types.StringPtr(f.industry),
		BusinessGoal:    types.StringPtr(f.goal),
	})
	if err != nil {
		return err
	}

	printer := observability.NewPrinter(cmd.OutOrStdout())
	printer.PrintJobRun(run)

	res, err := a.orch.RunUntil(ctx, run, f.until, pipeline.RunOptions{
		Force:        f.force,
		From:         f.from,
		ManualJDText: jdText,
		JobURL:       f.jdURL,
		OnProgress: func(e pipeline.ProgressEvent) {
			printer.PrintProgress(e.Label, e.Message, e.Cached, e.ModelError)
		},
	})
	if err != nil {
		return err
	}

	return printSummary(ctx, cmd, a, res, g.verbose)
}

func printSummary(ctx context.Context, cmd *cobra.Command, a *app, res *pipeline.Result, verbose bool) error {
	out := cmd.OutOrStdout()
	printer := observability.NewPrinter(out)
	stubs := 0
	for _, s := range res.Stages {
		if s.ModelError != nil {
			stubs++
		}
		if summary := observability.Summary(s.Output); summary != "" {
			fmt.Fprintf(out, "  %-4s %s\n", s.Stage.Label, summary) //nolint:errcheck
		}
	}

	tasks, err := a.orch.GetTasks(ctx, res.JobRunID)
	if err != nil {
		return err
	}
	printer.PrintTasks(tasks)
	if diagram, ok := res.Output("2.2").(*types.MermaidDiagram); ok {
		printer.PrintMermaid(diagram)
	}
	if axResult, ok := res.Output("4").(*types.AXWorkflowResult); ok {
		printer.PrintAgents(axResult)
	}
	if verbose {
		logs, err := a.store.ListCallLogs(ctx, res.JobRunID)
		if err != nil {
			return err
		}
		printer.PrintCallLogs(logs)
	}

	fmt.Fprintf(out, "run %s: %d stages, %d with stub output\n", res.JobRunID, len(res.Stages), stubs) //nolint:errcheck
	return nil
}
