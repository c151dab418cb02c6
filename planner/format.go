package planner

import (
	"strings"
)

// Format renders a plan tree as stable, deterministic text: one line per node, each
// level of input indented by two further spaces. EXPLAIN tooling and tests rely on
// this exact output, change it deliberately or not at all.
func Format(plan PlanNode) string {
	sb := &strings.Builder{}
	formatNode(sb, plan, 0)
	return sb.String()
}

func formatNode(sb *strings.Builder, plan PlanNode, indent int) {
	if sel, ok := plan.(*SelectPlan); ok {
		// Select frames the result without printing anything, its input renders at the
		// same depth.
		formatNode(sb, sel.Input, indent)
		return
	}
	if indent > 0 {
		sb.WriteString("\n")
		sb.WriteString(strings.Repeat("  ", indent))
	}
	sb.WriteString(plan.String())
	for _, child := range plan.Children() {
		formatNode(sb, child, indent+1)
	}
}
