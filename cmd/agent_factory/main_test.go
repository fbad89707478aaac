package main

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestNextLabelCommand(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{nil, "0.2\n"},
		{[]string{"1.3"}, "2.2\n"},
		{[]string{"8"}, "8\n"},
	}
	for _, tt := range tests {
		out, err := execute(t, append([]string{"next-label"}, tt.args...)...)
		require.NoError(t, err)
		assert.Equal(t, tt.want, out)
	}
}

func TestStagesCommand(t *testing.T) {
	out, err := execute(t, "stages")
	require.NoError(t, err)
	assert.Contains(t, out, "S0_1_COLLECT")
	assert.Contains(t, out, "STAGES")
}

func TestRunCommand_MissingFlags(t *testing.T) {
	_, err := execute(t, "run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `required flag(s) "company", "title" not set`)
}

func TestRunCommand_ExclusiveJDFlags(t *testing.T) {
	_, err := execute(t, "run", "--company", "Acme", "--title", "Analyst", "--jd-file", "x.txt", "--jd-text", "y")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jd-file")
}

func TestRunCommand_WithoutModel(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "af.db")
	jdPath := filepath.Join(dir, "jd.txt")
	require.NoError(t, os.WriteFile(jdPath, []byte("Collect data with SQL. Build dashboards."), 0o600))

	out, err := execute(t, "run", "--db", dbPath, "--provider", "none",
		"--company", "Acme", "--title", "Data Analyst", "--jd-file", jdPath, "--until", "1.1")
	require.NoError(t, err)
	assert.Contains(t, out, "[0.1] running")
	assert.Contains(t, out, "model_error")
	assert.Contains(t, out, "3 stages, 3 with stub output")

	runID := regexp.MustCompile(`ID:\s+(\S+)`).FindStringSubmatch(out)
	require.Len(t, runID, 2)

	out, err = execute(t, "show", "--db", dbPath, "--run", runID[1], "result", "0.2")
	require.NoError(t, err)
	assert.Contains(t, out, "stub output")
	assert.Contains(t, out, "raw_job_desc")

	out, err = execute(t, "show", "--db", dbPath, "--run", runID[1], "calls")
	require.NoError(t, err)
	assert.Contains(t, out, "CALLS (3)")

	_, err = execute(t, "show", "--db", dbPath, "--run", "missing")
	assert.ErrorContains(t, err, "not found")

	_, err = execute(t, "show", "--db", dbPath, "--run", runID[1], "result")
	assert.ErrorContains(t, err, "needs a stage label")
}

func TestMigrateCommand(t *testing.T) {
	out, err := execute(t, "migrate", "--db", filepath.Join(t.TempDir(), "m.db"))
	require.NoError(t, err)
	assert.Equal(t, "database sqlite is up to date\n", out)
}

func TestLoadConfig_Precedence(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("database_url: from-file.db\nlog_level: warn\nllm:\n  provider: claude\n"), 0o600))

	env := map[string]string{
		"AGENT_FACTORY_DATABASE_URL": "from-env.db",
		"ANTHROPIC_API_KEY":          "claude-key",
		"GEMINI_API_KEY":             "gemini-key",
	}
	getenv := func(k string) string { return env[k] }

	load := func(args ...string) (*cobra.Command, *globalFlags) {
		g := &globalFlags{}
		cmd := &cobra.Command{Use: "t"}
		cmd.Flags().StringVar(&g.configPath, "config", "", "")
		cmd.Flags().StringVar(&g.dbURL, "db", "", "")
		cmd.Flags().StringVar(&g.provider, "provider", "", "")
		cmd.Flags().StringVar(&g.logLevel, "log-level", "", "")
		cmd.Flags().BoolVarP(&g.verbose, "verbose", "v", false, "")
		require.NoError(t, cmd.Flags().Parse(args))
		return cmd, g
	}

	cmd, g := load("--config", cfgPath)
	cfg, err := loadConfig(cmd, g, getenv)
	require.NoError(t, err)
	assert.Equal(t, "from-env.db", cfg.DatabaseURL)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "claude-key", cfg.LLM.APIKey)
	assert.Equal(t, 4, cfg.Pipeline.AgentConcurrency)

	cmd, g = load("--config", cfgPath, "--db", "flag.db", "--provider", "gemini", "-v")
	cfg, err = loadConfig(cmd, g, getenv)
	require.NoError(t, err)
	assert.Equal(t, "flag.db", cfg.DatabaseURL)
	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, "gemini-key", cfg.LLM.APIKey)
	assert.True(t, cfg.LogDevelopment)

	cmd, g = load("--provider", "bogus")
	_, err = loadConfig(cmd, g, getenv)
	assert.ErrorContains(t, err, "unknown llm provider")
}
