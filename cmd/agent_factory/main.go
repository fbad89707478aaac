// Package main provides the agent_factory command line: it runs the job
// analysis and agent design pipeline, inspects stored runs and serves the
// HTTP API.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// globalFlags are shared by every command.
type globalFlags struct {
	configPath string
	dbURL      string
	provider   string
	logLevel   string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:   "agent_factory",
		Short: "Job analysis to AI agent design pipeline",
		Long: `agent_factory turns a job posting into an IVC task graph, a workflow
diagram and a set of deployable agent designs with skills and prompts.`,
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&g.configPath, "config", "", "Path to a JSON, YAML or TOML config file")
	pf.StringVar(&g.dbURL, "db", "", "Database URL: a sqlite file path or postgres:// URL")
	pf.StringVar(&g.provider, "provider", "", "Model provider: gemini, genai, claude, placeholder or none")
	pf.StringVar(&g.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	pf.BoolVarP(&g.verbose, "verbose", "v", false, "Development logging and detailed output")

	root.AddCommand(
		newRunCmd(g),
		newNextLabelCmd(),
		newStagesCmd(),
		newShowCmd(g),
		newMigrateCmd(g),
		newServeCmd(g),
	)
	return root
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
