package agent

import (
	"fmt"
	"strings"

	"github.com/dmcode/reagent/tools"
)

// BuildSystemPrompt renders the default instructions for a tool registry:
// the agent's role, the available tools, and the JSON response contract.
func BuildSystemPrompt(registry *tools.Registry) string {
	var b strings.Builder
	b.WriteString("You are an autonomous coding agent. You accomplish tasks step by step by choosing one tool per step.\n\n")

	b.WriteString("Available tools:\n")
	for _, t := range registry.List() {
		fmt.Fprintf(&b, "- %s: %s\n", t.Name, t.Description)
	}

	b.WriteString("\nRespond with exactly one JSON object per step:\n")
	b.WriteString("{\"thought\": \"your reasoning\", \"action\": \"tool name\", \"action_input\": {\"arg\": \"value\"}}\n\n")
	b.WriteString("Rules:\n")
	b.WriteString("- Use one tool per response. No text outside the JSON object.\n")
	b.WriteString("- Inspect before you modify: read files before editing them.\n")
	fmt.Fprintf(&b, "- When the task is done, call %s with a summary message, ", tools.TaskCompleteName)
	fmt.Fprintf(&b, "or use {\"action\": %q, \"action_input\": \"final answer\"} to answer directly.\n", FinishAction)
	b.WriteString("- If a tool fails, read the observation and try a different approach.")
	return b.String()
}
