package planner

import (
	"context"
	"strings"
	"testing"

	"github.com/dmcode/reagent/llm"
	"github.com/dmcode/reagent/tools"
)

var testTools = []tools.Tool{
	{Name: "read_file", Description: "read a file"},
	{Name: "write_file", Description: "write a file"},
	{Name: "task_complete", Description: "finish the task"},
}

const planResponse = `{"plan": [
  {"step": 1, "action": "read_file", "reason": "inspect the source"},
  {"step": 2, "action": "write_file", "reason": "apply the fix"},
  {"step": 3, "action": "task_complete", "reason": "done"}
]}`

func TestPlanParsesSteps(t *testing.T) {
	client := &llm.ScriptedClient{Responses: []string{planResponse}}
	p := New(client, testTools)

	steps := p.Plan(context.Background(), "fix the bug")
	if len(steps) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(steps))
	}
	if steps[0].Action != "read_file" || steps[0].Number != 1 {
		t.Errorf("unexpected first step: %+v", steps[0])
	}
	if steps[2].Action != "task_complete" {
		t.Errorf("final step should be task_complete, got %q", steps[2].Action)
	}
	if !p.HasPlan() {
		t.Error("plan should be loaded after Plan")
	}
}

func TestPlanPromptListsTools(t *testing.T) {
	client := &llm.ScriptedClient{Responses: []string{planResponse}}
	p := New(client, testTools)
	p.Plan(context.Background(), "fix the bug")

	if len(client.Calls) != 1 {
		t.Fatalf("expected one model call, got %d", len(client.Calls))
	}
	prompt := client.Calls[0][0].Content
	for _, want := range []string{"read_file", "write_file", "task_complete", "fix the bug"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestPlanModelFailureReturnsEmptyPlan(t *testing.T) {
	client := &llm.ScriptedClient{} // exhausted immediately
	p := New(client, testTools)

	if steps := p.Plan(context.Background(), "anything"); len(steps) != 0 {
		t.Errorf("expected empty plan on model failure, got %d steps", len(steps))
	}
	if p.HasPlan() {
		t.Error("no plan should be loaded after a failed attempt")
	}
}

func TestPlanUnparsableResponseReturnsEmptyPlan(t *testing.T) {
	client := &llm.ScriptedClient{Responses: []string{"I cannot plan this"}}
	p := New(client, testTools)

	if steps := p.Plan(context.Background(), "anything"); len(steps) != 0 {
		t.Errorf("expected empty plan on parse failure, got %d steps", len(steps))
	}
}

func TestPlanEmbeddedJSON(t *testing.T) {
	client := &llm.ScriptedClient{Responses: []string{"Here is the plan:\n" + planResponse + "\nGood luck."}}
	p := New(client, testTools)

	if steps := p.Plan(context.Background(), "task"); len(steps) != 3 {
		t.Errorf("expected embedded JSON to parse, got %d steps", len(steps))
	}
}

func TestMarkCompletedAndNextStep(t *testing.T) {
	client := &llm.ScriptedClient{Responses: []string{planResponse}}
	p := New(client, testTools)
	p.Plan(context.Background(), "task")

	next, ok := p.NextStep()
	if !ok || next.Number != 1 {
		t.Fatalf("expected step 1 next, got %+v ok=%v", next, ok)
	}

	p.MarkCompleted(1, "read 120 lines")
	next, ok = p.NextStep()
	if !ok || next.Number != 2 {
		t.Errorf("expected step 2 next, got %+v ok=%v", next, ok)
	}

	steps := p.Steps()
	if !steps[0].Completed || steps[0].Result != "read 120 lines" {
		t.Errorf("step 1 not marked: %+v", steps[0])
	}
}

func TestMarkNextMatching(t *testing.T) {
	client := &llm.ScriptedClient{Responses: []string{planResponse}}
	p := New(client, testTools)
	p.Plan(context.Background(), "task")

	if !p.MarkNextMatching("write_file", "done") {
		t.Error("expected a write_file step to be marked")
	}
	if p.MarkNextMatching("write_file", "again") {
		t.Error("no second write_file step exists")
	}
}

func TestProgress(t *testing.T) {
	client := &llm.ScriptedClient{Responses: []string{planResponse}}
	p := New(client, testTools)
	p.Plan(context.Background(), "task")
	p.MarkCompleted(1, "ok")

	progress := p.Progress()
	if !strings.Contains(progress, "1/3 steps completed") {
		t.Errorf("unexpected progress header:\n%s", progress)
	}
	if !strings.Contains(progress, "[x] step 1") || !strings.Contains(progress, "[ ] step 2") {
		t.Errorf("unexpected markers:\n%s", progress)
	}
}

func TestProgressWithoutPlan(t *testing.T) {
	p := New(&llm.ScriptedClient{}, testTools)
	if got := p.Progress(); got != "no plan" {
		t.Errorf("expected \"no plan\", got %q", got)
	}
}

func TestClearPlan(t *testing.T) {
	client := &llm.ScriptedClient{Responses: []string{planResponse}}
	p := New(client, testTools)
	p.Plan(context.Background(), "task")
	p.ClearPlan()
	if p.HasPlan() {
		t.Error("plan should be gone after ClearPlan")
	}
}

func TestReplanIncludesHistory(t *testing.T) {
	client := &llm.ScriptedClient{Responses: []string{planResponse}}
	p := New(client, testTools)

	completed := []Step{{Number: 1, Action: "read_file", Reason: "looked around", Completed: true}}
	p.Replan(context.Background(), "fix the bug", completed, "write_file kept failing")

	prompt := client.Calls[0][0].Content
	for _, want := range []string{"fix the bug", "read_file", "write_file kept failing"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("replan prompt missing %q", want)
		}
	}
}
