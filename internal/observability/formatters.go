// Package observability provides formatted output utilities for the CLI.
package observability

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"

	"github.com/jonathan/agent-factory/internal/pipeline/steps"
	"github.com/jonathan/agent-factory/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 72
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 20
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	stubStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
)

// Printer handles formatted output for the CLI
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %s%s │\n", titleStyle.Render(title), pad(title, boxWidth-4))
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		line = truncate(line, boxWidth-4)
		fmt.Fprintf(p.out, "│ %s%s │\n", line, pad(line, boxWidth-4))
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

func pad(s string, width int) string {
	n := width - lipgloss.Width(s)
	if n <= 0 {
		return ""
	}
	return strings.Repeat(" ", n)
}

func truncate(s string, width int) string {
	if lipgloss.Width(s) <= width {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 && lipgloss.Width(string(runes))+3 > width {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "..."
}

func moreLine(sb *strings.Builder, total int, noun string) {
	if total > maxItemsToShow {
		fmt.Fprintf(sb, "\n... and %d more %s", total-maxItemsToShow, noun)
	}
}

// PrintProgress prints one line per stage event.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintProgress(label, message string, cached bool, modelError *string) {
	line := fmt.Sprintf("[%s] %s", label, message)
	switch {
	case modelError != nil:
		fmt.Fprintln(p.out, stubStyle.Render(line+" (model_error: "+*modelError+")"))
	case cached:
		fmt.Fprintln(p.out, dimStyle.Render(line))
	default:
		fmt.Fprintln(p.out, line)
	}
}

// PrintStages lists the stage registry.
func (p *Printer) PrintStages(stages []steps.StageMeta) {
	var sb strings.Builder
	for _, s := range stages {
		fmt.Fprintf(&sb, "%-4s %-24s %s\n", s.Label, s.ID, s.Title)
	}
	p.printBox("STAGES", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintJobRun prints a job run summary.
func (p *Printer) PrintJobRun(run *types.JobRun) {
	if run == nil {
		return
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "ID:       %s\n", run.ID)
	fmt.Fprintf(&sb, "Company:  %s\n", run.CompanyName)
	fmt.Fprintf(&sb, "Title:    %s\n", run.JobTitle)
	fmt.Fprintf(&sb, "Status:   %s", run.Status)
	if run.JDURL != nil {
		fmt.Fprintf(&sb, "\nJD URL:   %s", *run.JDURL)
	}
	p.printBox("JOB RUN", sb.String())
}

// PrintTasks outputs the task graph rows as a table.
func (p *Printer) PrintTasks(tasks []types.TaskRecord) {
	if len(tasks) == 0 {
		p.printBox("TASKS", "no tasks")
		return
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%-5s %-18s %-8s %s\n", "ID", "PHASE", "STAGE", "TASK")
	for i, t := range tasks {
		if i == maxItemsToShow {
			break
		}
		phase := "-"
		if t.IVCPhase != nil {
			phase = string(*t.IVCPhase)
		}
		stage := types.Deref(t.StageID)
		if stage == "" {
			stage = "-"
		}
		fmt.Fprintf(&sb, "%-5s %-18s %-8s %s\n", t.TaskID, phase, stage, t.Title())
	}
	moreLine(&sb, len(tasks), "tasks")
	p.printBox(fmt.Sprintf("TASKS (%d)", len(tasks)), strings.TrimSuffix(sb.String(), "\n"))
}

// PrintEdges outputs the workflow edges.
func (p *Printer) PrintEdges(edges []types.TaskEdge) {
	if len(edges) == 0 {
		p.printBox("EDGES", "no edges")
		return
	}
	var sb strings.Builder
	for i, e := range edges {
		if i == maxItemsToShow {
			break
		}
		fmt.Fprintf(&sb, "%s → %s", e.SourceTaskID, e.TargetTaskID)
		if e.Label != nil {
			fmt.Fprintf(&sb, "  (%s)", *e.Label)
		}
		sb.WriteString("\n")
	}
	moreLine(&sb, len(edges), "edges")
	p.printBox(fmt.Sprintf("EDGES (%d)", len(edges)), strings.TrimSuffix(sb.String(), "\n"))
}

// PrintCallLogs outputs one line per model call.
func (p *Printer) PrintCallLogs(logs []types.CallLog) {
	if len(logs) == 0 {
		p.printBox("CALLS", "no calls")
		return
	}
	var sb strings.Builder
	for i, l := range logs {
		if i == maxItemsToShow {
			break
		}
		latency := "-"
		if l.LatencyMS != nil {
			latency = fmt.Sprintf("%dms", *l.LatencyMS)
		}
		fmt.Fprintf(&sb, "%-24s %-16s %-8s %s", l.StageName, l.Status, latency, l.ModelName)
		if l.ErrorType != nil {
			fmt.Fprintf(&sb, " [%s]", *l.ErrorType)
		}
		sb.WriteString("\n")
	}
	moreLine(&sb, len(logs), "calls")
	p.printBox(fmt.Sprintf("CALLS (%d)", len(logs)), strings.TrimSuffix(sb.String(), "\n"))
}

// PrintStageResult prints a persisted stage output as indented JSON.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintStageResult(stage steps.StageMeta, res *types.StageResult) {
	title := fmt.Sprintf("%s %s", stage.Label, strings.ToUpper(stage.Title))
	if res == nil {
		p.printBox(title, "no result")
		return
	}
	if res.ModelError != nil {
		fmt.Fprintln(p.out, stubStyle.Render("stub output: "+*res.ModelError))
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, res.Payload, "", "  "); err != nil {
		buf.Reset()
		buf.Write(res.Payload)
	}
	fmt.Fprintln(p.out, titleStyle.Render(title))
	fmt.Fprintln(p.out, buf.String())
}

// PrintMermaid prints the rendered workflow diagram.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintMermaid(diagram *types.MermaidDiagram) {
	if diagram == nil {
		return
	}
	fmt.Fprintln(p.out, titleStyle.Render("WORKFLOW "+diagram.WorkflowName))
	fmt.Fprintln(p.out, diagram.MermaidCode)
	for _, w := range diagram.Warnings {
		fmt.Fprintln(p.out, dimStyle.Render("warning: "+w))
	}
}

// PrintAgents outputs the AX agent table.
func (p *Printer) PrintAgents(result *types.AXWorkflowResult) {
	if result == nil || len(result.AgentTable) == 0 {
		return
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s (%s)\n\n", result.AXWorkflowName, result.Mode)
	for _, a := range result.AgentTable {
		fmt.Fprintf(&sb, "%-4s %-6s %-16s %s\n", a.AgentID, a.Stage, a.ExecutionEnvironment, a.AgentName)
	}
	p.printBox(fmt.Sprintf("AGENTS (%d)", len(result.AgentTable)), strings.TrimSuffix(sb.String(), "\n"))
}

// Summary condenses a stage output into one line for progress output.
func Summary(output any) string {
	switch v := output.(type) {
	case *types.CollectResult:
		return fmt.Sprintf("%d sources", len(v.RawSources))
	case *types.ResearchResult:
		return fmt.Sprintf("%d chars of job description", utf8.RuneCountInString(v.RawJobDesc))
	case *types.TaskExtractionResult:
		return fmt.Sprintf("%d tasks", len(v.TaskAtoms))
	case *types.PhaseClassificationResult:
		return fmt.Sprintf("%d tasks classified", len(v.IVCTasks))
	case *types.StaticClassificationResult:
		return fmt.Sprintf("%d tasks profiled", len(v.TaskStaticMeta))
	case *types.WorkflowPlan:
		return fmt.Sprintf("%d stages, %d nodes, %d edges", len(v.Stages), len(v.Nodes), len(v.Edges))
	case *types.MermaidDiagram:
		return fmt.Sprintf("%d lines of mermaid", strings.Count(v.MermaidCode, "\n")+1)
	case *types.AXWorkflowResult:
		return fmt.Sprintf("%d agents", len(v.AgentTable))
	case *types.AgentArchitectResult:
		return fmt.Sprintf("%d agent specs", len(v.AgentSpecs))
	case *types.DeepResearchSet:
		return fmt.Sprintf("%d research notes", len(v.Results))
	case *types.SkillCardSet:
		return fmt.Sprintf("%d skill cards", len(v.SkillCards))
	case *types.AgentPromptSet:
		return fmt.Sprintf("%d prompts", len(v.AgentPrompts))
	}
	return ""
}
