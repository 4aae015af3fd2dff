package agent

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/dmcode/reagent/llm"
	"github.com/dmcode/reagent/memory"
	"github.com/dmcode/reagent/planner"
	"github.com/dmcode/reagent/skills"
	"github.com/dmcode/reagent/tools"
)

func listTool(t *testing.T) tools.Tool {
	t.Helper()
	return tools.Tool{
		Name:        "list_directory",
		Description: "list files",
		Run: func(args map[string]any) (string, error) {
			return "main.go\nREADME.md", nil
		},
	}
}

func registryWith(t *testing.T, extra ...tools.Tool) *tools.Registry {
	t.Helper()
	reg := tools.NewRegistry()
	reg.Register(tools.TaskCompleteTool())
	for _, tool := range extra {
		reg.Register(tool)
	}
	return reg
}

func TestRunEmptyTask(t *testing.T) {
	a := New(&llm.ScriptedClient{}, registryWith(t))
	if _, err := a.Run(context.Background(), "   "); !errors.Is(err, ErrEmptyTask) {
		t.Fatalf("expected ErrEmptyTask, got %v", err)
	}
}

func TestRunToolThenFinish(t *testing.T) {
	client := &llm.ScriptedClient{Responses: []string{
		`{"thought": "look around", "action": "list_directory", "action_input": {"path": "."}}`,
		`{"thought": "done", "action": "finish", "action_input": "done"}`,
	}}
	a := New(client, registryWith(t, listTool(t)))

	result, err := a.Run(context.Background(), "list files in .")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.FinalAnswer != "done" {
		t.Errorf("final answer = %q, want done", result.FinalAnswer)
	}
	if len(result.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(result.Steps))
	}
	if result.Steps[0].Action != "list_directory" || !strings.Contains(result.Steps[0].Observation, "main.go") {
		t.Errorf("unexpected first step: %+v", result.Steps[0])
	}
	if result.Steps[1].Action != "finish" {
		t.Errorf("unexpected second step: %+v", result.Steps[1])
	}
}

func TestRunGarbageThenFinish(t *testing.T) {
	client := &llm.ScriptedClient{Responses: []string{
		"I think I should probably list some files",
		`{"thought": "done", "action": "finish", "action_input": "recovered"}`,
	}}
	a := New(client, registryWith(t))

	result, err := a.Run(context.Background(), "do something")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(result.Steps))
	}
	if result.Steps[0].Action != "error" {
		t.Errorf("step 1 action = %q, want error", result.Steps[0].Action)
	}
	if result.Steps[1].Action != "finish" {
		t.Errorf("step 2 action = %q, want finish", result.Steps[1].Action)
	}
	if result.FinalAnswer != "recovered" {
		t.Errorf("final answer = %q", result.FinalAnswer)
	}
}

func TestRunExtractsEmbeddedJSON(t *testing.T) {
	client := &llm.ScriptedClient{Responses: []string{
		`Sure, here is my response: {"thought": "done", "action": "finish", "action_input": "embedded"} hope that helps!`,
	}}
	a := New(client, registryWith(t))

	result, err := a.Run(context.Background(), "task")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.FinalAnswer != "embedded" {
		t.Errorf("final answer = %q, want embedded", result.FinalAnswer)
	}
}

func TestRunToolErrorBecomesObservation(t *testing.T) {
	failing := tools.Tool{
		Name:        "broken",
		Description: "always fails",
		Run: func(args map[string]any) (string, error) {
			return "", errors.New("disk on fire")
		},
	}
	client := &llm.ScriptedClient{Responses: []string{
		`{"thought": "try it", "action": "broken", "action_input": {}}`,
		`{"thought": "give up", "action": "finish", "action_input": "could not"}`,
	}}
	a := New(client, registryWith(t, failing))

	result, err := a.Run(context.Background(), "task")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(result.Steps))
	}
	obs := result.Steps[0].Observation
	if !strings.HasPrefix(obs, "tool execution failed: ") || !strings.Contains(obs, "disk on fire") {
		t.Errorf("unexpected observation: %q", obs)
	}
}

func TestRunToolPanicBecomesObservation(t *testing.T) {
	panicking := tools.Tool{
		Name:        "panicky",
		Description: "panics",
		Run: func(args map[string]any) (string, error) {
			panic("index out of range")
		},
	}
	client := &llm.ScriptedClient{Responses: []string{
		`{"thought": "try", "action": "panicky", "action_input": {}}`,
		`{"thought": "ok", "action": "finish", "action_input": "survived"}`,
	}}
	a := New(client, registryWith(t, panicking))

	result, err := a.Run(context.Background(), "task")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.HasPrefix(result.Steps[0].Observation, "tool execution failed: ") {
		t.Errorf("panic not converted to observation: %q", result.Steps[0].Observation)
	}
	if result.FinalAnswer != "survived" {
		t.Errorf("loop did not continue after panic: %q", result.FinalAnswer)
	}
}

func TestRunUnknownTool(t *testing.T) {
	client := &llm.ScriptedClient{Responses: []string{
		`{"thought": "hm", "action": "teleport", "action_input": {}}`,
		`{"thought": "ok", "action": "finish", "action_input": "fine"}`,
	}}
	a := New(client, registryWith(t))

	result, err := a.Run(context.Background(), "task")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(result.Steps[0].Observation, "unknown tool") {
		t.Errorf("unexpected observation: %q", result.Steps[0].Observation)
	}
}

func TestRunMalformedArguments(t *testing.T) {
	client := &llm.ScriptedClient{Responses: []string{
		`{"thought": "hm", "action": "list_directory", "action_input": "just a string"}`,
		`{"thought": "hm", "action": "list_directory"}`,
		`{"thought": "ok", "action": "finish", "action_input": "fine"}`,
	}}
	a := New(client, registryWith(t, listTool(t)))

	result, err := a.Run(context.Background(), "task")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(result.Steps[0].Observation, "must be a JSON object") {
		t.Errorf("string input observation: %q", result.Steps[0].Observation)
	}
	if !strings.Contains(result.Steps[1].Observation, "missing") {
		t.Errorf("missing input observation: %q", result.Steps[1].Observation)
	}
}

func TestRunTaskCompleteCoercion(t *testing.T) {
	client := &llm.ScriptedClient{Responses: []string{
		`{"thought": "done", "action": "task_complete", "action_input": "all wrapped up"}`,
	}}
	a := New(client, registryWith(t))

	result, err := a.Run(context.Background(), "task")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.FinalAnswer != "all wrapped up" {
		t.Errorf("final answer = %q", result.FinalAnswer)
	}
	if len(result.Steps) != 1 {
		t.Errorf("expected 1 step, got %d", len(result.Steps))
	}
}

func TestRunTaskCompleteMissingInput(t *testing.T) {
	client := &llm.ScriptedClient{Responses: []string{
		`{"thought": "done", "action": "task_complete"}`,
	}}
	a := New(client, registryWith(t))

	result, err := a.Run(context.Background(), "task")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.FinalAnswer != "task completed successfully" {
		t.Errorf("final answer = %q", result.FinalAnswer)
	}
}

func TestRunStepLimit(t *testing.T) {
	client := &llm.ScriptedClient{Responses: []string{
		`{"thought": "loop", "action": "list_directory", "action_input": {"path": "."}}`,
	}}
	a := New(client, registryWith(t, listTool(t)), WithMaxSteps(1))

	result, err := a.Run(context.Background(), "task")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(result.FinalAnswer, "step limit reached") {
		t.Errorf("final answer = %q", result.FinalAnswer)
	}
	if len(result.Steps) != 1 {
		t.Errorf("expected exactly 1 step, got %d", len(result.Steps))
	}
}

func TestRunFinishAnswerField(t *testing.T) {
	client := &llm.ScriptedClient{Responses: []string{
		`{"thought": "done", "action": "finish", "action_input": {"answer": "from field", "extra": 1}}`,
	}}
	a := New(client, registryWith(t))

	result, err := a.Run(context.Background(), "task")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.FinalAnswer != "from field" {
		t.Errorf("final answer = %q", result.FinalAnswer)
	}
}

func TestRunFinishSerializesObjectWithoutAnswer(t *testing.T) {
	client := &llm.ScriptedClient{Responses: []string{
		`{"thought": "done", "action": "finish", "action_input": {"status": "ok"}}`,
	}}
	a := New(client, registryWith(t))

	result, err := a.Run(context.Background(), "task")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.FinalAnswer != `{"status":"ok"}` {
		t.Errorf("final answer = %q", result.FinalAnswer)
	}
}

func TestRunModelErrorPropagates(t *testing.T) {
	client := &llm.ScriptedClient{} // exhausted: fails with a typed llm error
	a := New(client, registryWith(t))

	_, err := a.Run(context.Background(), "task")
	if err == nil {
		t.Fatal("expected model error")
	}
	if !llm.IsModelError(err) {
		t.Errorf("model error should be detectable: %v", err)
	}
}

func TestRunStepCallback(t *testing.T) {
	client := &llm.ScriptedClient{Responses: []string{
		`{"thought": "look", "action": "list_directory", "action_input": {"path": "."}}`,
		`{"thought": "done", "action": "finish", "action_input": "done"}`,
	}}
	var numbers []int
	a := New(client, registryWith(t, listTool(t)), WithStepCallback(func(n int, s Step) {
		numbers = append(numbers, n)
	}))

	if _, err := a.Run(context.Background(), "task"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !reflect.DeepEqual(numbers, []int{1, 2}) {
		t.Errorf("callback numbers = %v", numbers)
	}
}

func TestResetConversationIdempotence(t *testing.T) {
	responses := []string{
		`{"thought": "done", "action": "finish", "action_input": "done"}`,
	}

	fresh := New(&llm.ScriptedClient{Responses: responses}, registryWith(t))
	if _, err := fresh.Run(context.Background(), "task"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := fresh.ConversationHistory()

	reused := New(&llm.ScriptedClient{Responses: append(responses, responses...)}, registryWith(t))
	if _, err := reused.Run(context.Background(), "task"); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	reused.ResetConversation()
	if _, err := reused.Run(context.Background(), "task"); err != nil {
		t.Fatalf("second Run: %v", err)
	}

	if !reflect.DeepEqual(reused.ConversationHistory(), want) {
		t.Errorf("reset+run differs from a fresh agent:\n%v\nvs\n%v", reused.ConversationHistory(), want)
	}
}

func TestRunWithPlannerRendersOutline(t *testing.T) {
	plan := `{"plan": [
  {"step": 1, "action": "list_directory", "reason": "see the files"},
  {"step": 2, "action": "task_complete", "reason": "wrap up"}
]}`
	client := &llm.ScriptedClient{Responses: []string{
		plan,
		`{"thought": "look", "action": "list_directory", "action_input": {"path": "."}}`,
		`{"thought": "done", "action": "task_complete", "action_input": "did it"}`,
	}}
	reg := registryWith(t, listTool(t))
	p := planner.New(client, reg.List())
	a := New(client, reg, WithPlanner(p))

	result, err := a.Run(context.Background(), "list the files")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.FinalAnswer != "did it" {
		t.Errorf("final answer = %q", result.FinalAnswer)
	}

	// Call 2 is the first loop query; its last user turn carries the outline.
	loopMessages := client.Calls[1]
	var firstUser string
	for _, m := range loopMessages {
		if m.Role == llm.RoleUser {
			firstUser = m.Content
			break
		}
	}
	if !strings.Contains(firstUser, "Suggested plan:") || !strings.Contains(firstUser, "1. list_directory") {
		t.Errorf("outline missing from first turn:\n%s", firstUser)
	}

	// The observation turn of the third call carries plan progress.
	final := client.Calls[2]
	last := final[len(final)-1].Content
	if !strings.Contains(last, "plan progress: 1/2 steps completed") {
		t.Errorf("plan progress missing:\n%s", last)
	}
}

func TestRunWithCompressor(t *testing.T) {
	var responses []string
	for i := 0; i < 7; i++ {
		responses = append(responses, `{"thought": "again", "action": "list_directory", "action_input": {"path": "."}}`)
	}
	responses = append(responses, `{"thought": "done", "action": "finish", "action_input": "done"}`)

	client := &llm.ScriptedClient{Responses: responses}
	a := New(client, registryWith(t, listTool(t)),
		WithMaxSteps(10),
		WithCompressor(memory.NewCompressor(memory.WithCompressEvery(5), memory.WithKeepRecent(2))),
	)

	result, err := a.Run(context.Background(), "task")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.FinalAnswer != "done" {
		t.Errorf("final answer = %q", result.FinalAnswer)
	}

	lastCall := client.Calls[len(client.Calls)-1]
	summarized := false
	for _, m := range lastCall {
		if strings.HasPrefix(m.Content, "Summary of earlier conversation:") {
			summarized = true
		}
	}
	if !summarized {
		t.Error("expected a summary turn in the final model query")
	}
}

func TestRunWithSkillsAugmentsPromptAndTools(t *testing.T) {
	mgr := skills.NewManager(skills.NewSelector())
	mgr.Register(&skills.Definition{
		Meta:   skills.Metadata{Name: "lister", Keywords: []string{"list"}},
		Prompt: "You are excellent at listing things.",
		Toolset: []tools.Tool{{
			Name:        "count_files",
			Description: "count files",
			Run: func(args map[string]any) (string, error) {
				return "2 files", nil
			},
		}},
	})

	client := &llm.ScriptedClient{Responses: []string{
		`{"thought": "count", "action": "count_files", "action_input": {}}`,
		`{"thought": "done", "action": "finish", "action_input": "2 files"}`,
	}}
	a := New(client, registryWith(t), WithSkillManager(mgr))

	result, err := a.Run(context.Background(), "list the files")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Steps[0].Observation != "2 files" {
		t.Errorf("skill tool not invocable: %+v", result.Steps[0])
	}

	system := client.Calls[0][0]
	if system.Role != llm.RoleSystem || !strings.Contains(system.Content, "excellent at listing") {
		t.Errorf("skill prompt addition missing from system prompt")
	}
	if len(mgr.ActiveNames()) != 0 {
		t.Error("base manager's activation state must stay untouched")
	}
}

func TestBuildSystemPromptListsTools(t *testing.T) {
	reg := registryWith(t, listTool(t))
	prompt := BuildSystemPrompt(reg)
	for _, want := range []string{"list_directory", "task_complete", "action_input", fmt.Sprintf("%q", FinishAction)} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %s", want)
		}
	}
}
