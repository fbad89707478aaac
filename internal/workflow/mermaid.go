package workflow

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/jonathan/agent-factory/internal/types"
)

var unsafeID = regexp.MustCompile(`[^A-Za-z0-9_]`)

// mermaidID turns an arbitrary id into a Mermaid-safe identifier.
func mermaidID(id string) string {
	safe := unsafeID.ReplaceAllString(id, "_")
	if safe == "" || (safe[0] >= '0' && safe[0] <= '9') {
		safe = "n_" + safe
	}
	return safe
}

func mermaidLabel(label string) string {
	label = strings.ReplaceAll(label, `"`, "#quot;")
	return strings.Join(strings.Fields(label), " ")
}

// RenderMermaid writes a plan as a top-down flowchart with one subgraph per
// stage. Nodes without a known stage are placed after the subgraphs.
func RenderMermaid(plan types.WorkflowPlan) string {
	var b strings.Builder
	b.WriteString("flowchart TD\n")

	byStage := make(map[string][]types.WorkflowNode)
	known := make(map[string]bool, len(plan.Stages))
	for _, st := range plan.Stages {
		known[st.StageID] = true
	}
	var loose []types.WorkflowNode
	for _, n := range plan.Nodes {
		if n.StageID != nil && known[*n.StageID] {
			byStage[*n.StageID] = append(byStage[*n.StageID], n)
			continue
		}
		loose = append(loose, n)
	}

	writeNode := func(indent string, n types.WorkflowNode) {
		label := n.Label
		if label == "" {
			label = n.NodeID
		}
		fmt.Fprintf(&b, "%s%s[\"%s\"]\n", indent, mermaidID(n.NodeID), mermaidLabel(label))
	}

	for _, st := range plan.Stages {
		name := st.Name
		if name == "" {
			name = st.StageID
		}
		fmt.Fprintf(&b, "    subgraph %s[\"%s\"]\n", mermaidID(st.StageID), mermaidLabel(name))
		for _, n := range byStage[st.StageID] {
			writeNode("        ", n)
		}
		b.WriteString("    end\n")
	}
	for _, n := range loose {
		writeNode("    ", n)
	}
	for _, e := range plan.Edges {
		if e.Label != nil && *e.Label != "" {
			fmt.Fprintf(&b, "    %s -->|%s| %s\n", mermaidID(e.Source), mermaidLabel(*e.Label), mermaidID(e.Target))
			continue
		}
		fmt.Fprintf(&b, "    %s --> %s\n", mermaidID(e.Source), mermaidID(e.Target))
	}
	return strings.TrimRight(b.String(), "\n")
}
