// Package planner generates an upfront, advisory outline of tool actions
// for a task and tracks its completion as the agent loop executes. Planning
// failures are never fatal: a failed or unparsable plan degrades to an empty
// outline and the loop proceeds step by step.
package planner

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/dmcode/reagent/jsonx"
	"github.com/dmcode/reagent/llm"
	"github.com/dmcode/reagent/tools"
)

// Planning queries run slightly warm; outline diversity helps more than
// determinism here.
const planTemperature = 0.3

// Step is one entry of a plan.
type Step struct {
	Number    int    `json:"step"`
	Action    string `json:"action"`
	Reason    string `json:"reason"`
	Completed bool   `json:"completed"`
	Result    string `json:"result,omitempty"`
}

// Planner asks the model for an ordered outline before execution starts.
type Planner struct {
	client llm.Client
	tools  []tools.Tool

	mu   sync.Mutex
	plan []Step
}

// New creates a Planner over the given client and toolset.
func New(client llm.Client, toolset []tools.Tool) *Planner {
	return &Planner{client: client, tools: toolset}
}

type planEnvelope struct {
	Plan []struct {
		Step   int    `json:"step"`
		Action string `json:"action"`
		Reason string `json:"reason"`
	} `json:"plan"`
}

// Plan generates an execution plan for the task. On model or parse failure
// it returns an empty plan; the caller falls back to unplanned execution.
func (p *Planner) Plan(ctx context.Context, task string) []Step {
	prompt := p.buildPlanPrompt(task)
	return p.requestPlan(ctx, prompt)
}

// Replan generates a fresh plan after execution stalled, feeding the model
// the already-completed steps and an optional error description.
func (p *Planner) Replan(ctx context.Context, task string, completed []Step, errDescription string) []Step {
	var b strings.Builder
	b.WriteString("Task execution hit a problem and needs a new plan.\n\n")
	fmt.Fprintf(&b, "Original task: %s\n\n", task)
	b.WriteString("Completed steps:\n")
	for _, s := range completed {
		fmt.Fprintf(&b, "step %d: %s - %s (done)\n", s.Number, s.Action, s.Reason)
	}
	if errDescription != "" {
		fmt.Fprintf(&b, "\nError:\n%s\n", errDescription)
	}
	b.WriteString("\nGenerate a new plan to finish the remaining work. Respond with JSON:\n")
	b.WriteString(`{"plan": [{"step": 1, "action": "tool name", "reason": "why this step"}, ...]}`)

	return p.requestPlan(ctx, b.String())
}

func (p *Planner) requestPlan(ctx context.Context, prompt string) []Step {
	response, err := p.client.Respond(ctx, []llm.Message{llm.UserMessage(prompt)}, planTemperature)
	if err != nil {
		slog.Warn("plan generation failed, continuing without a plan", "error", err)
		return nil
	}

	var envelope planEnvelope
	if err := jsonx.DecodeObject(response, &envelope); err != nil {
		slog.Warn("plan response was not parsable, continuing without a plan", "error", err)
		return nil
	}

	steps := make([]Step, 0, len(envelope.Plan))
	for _, item := range envelope.Plan {
		steps = append(steps, Step{Number: item.Step, Action: item.Action, Reason: item.Reason})
	}

	p.mu.Lock()
	p.plan = steps
	p.mu.Unlock()
	return steps
}

func (p *Planner) buildPlanPrompt(task string) string {
	var descriptions []string
	for _, t := range p.tools {
		descriptions = append(descriptions, fmt.Sprintf("- %s: %s", t.Name, t.Description))
	}

	var b strings.Builder
	b.WriteString("You are a task planning assistant. Produce a detailed execution plan for the task below.\n\n")
	fmt.Fprintf(&b, "Task: %s\n\n", task)
	fmt.Fprintf(&b, "Available tools:\n%s\n\n", strings.Join(descriptions, "\n"))
	b.WriteString("Produce 3-8 steps. Each step must use an available tool, have a clear purpose, ")
	b.WriteString("follow logically from the previous one, and be independently verifiable.\n\n")
	b.WriteString("Respond with JSON:\n")
	b.WriteString("{\n  \"plan\": [\n    {\"step\": 1, \"action\": \"tool name\", \"reason\": \"why this step\"},\n    ...\n  ]\n}\n\n")
	fmt.Fprintf(&b, "The action field must name a tool from the list above. The final step must be %q. Keep the plan minimal.", tools.TaskCompleteName)
	return b.String()
}

// MarkCompleted flags the numbered step as done and records its result.
func (p *Planner) MarkCompleted(stepNumber int, result string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.plan {
		if p.plan[i].Number == stepNumber {
			p.plan[i].Completed = true
			p.plan[i].Result = result
			return
		}
	}
}

// MarkNextMatching flags the first incomplete step with the given action as
// done. It reports whether a step was marked.
func (p *Planner) MarkNextMatching(action, result string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.plan {
		if p.plan[i].Action == action && !p.plan[i].Completed {
			p.plan[i].Completed = true
			p.plan[i].Result = result
			return true
		}
	}
	return false
}

// NextStep returns the first incomplete step, or false when the plan is
// finished or absent.
func (p *Planner) NextStep() (Step, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.plan {
		if !s.Completed {
			return s, true
		}
	}
	return Step{}, false
}

// HasPlan reports whether a plan is loaded.
func (p *Planner) HasPlan() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.plan) > 0
}

// ClearPlan discards the current plan.
func (p *Planner) ClearPlan() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.plan = nil
}

// Steps returns a copy of the current plan.
func (p *Planner) Steps() []Step {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Step, len(p.plan))
	copy(out, p.plan)
	return out
}

// Progress renders a human-readable status report of the plan.
func (p *Planner) Progress() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.plan) == 0 {
		return "no plan"
	}

	completed := 0
	for _, s := range p.plan {
		if s.Completed {
			completed++
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "plan progress: %d/%d steps completed\n", completed, len(p.plan))
	for _, s := range p.plan {
		marker := "[ ]"
		if s.Completed {
			marker = "[x]"
		}
		fmt.Fprintf(&b, "%s step %d: %s - %s\n", marker, s.Number, s.Action, s.Reason)
		if s.Completed && s.Result != "" {
			result := s.Result
			if len(result) > 100 {
				result = result[:100] + "..."
			}
			fmt.Fprintf(&b, "    result: %s\n", result)
		}
	}
	return b.String()
}
