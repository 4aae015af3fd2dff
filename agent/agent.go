package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dmcode/reagent/jsonx"
	"github.com/dmcode/reagent/llm"
	"github.com/dmcode/reagent/memory"
	"github.com/dmcode/reagent/planner"
	"github.com/dmcode/reagent/skills"
	"github.com/dmcode/reagent/tools"
)

// Defaults for the loop.
const (
	DefaultMaxSteps    = 20
	DefaultTemperature = 0.2
)

const (
	// FinishAction terminates the loop with a final answer.
	FinishAction = "finish"

	failurePrefix = "tool execution failed: "
)

// ErrEmptyTask is returned by Run for an empty task string.
var ErrEmptyTask = errors.New("task must not be empty")

// Step records one reason-then-act iteration. Steps are immutable once
// recorded.
type Step struct {
	Number      int            `json:"number"`
	Thought     string         `json:"thought"`
	Action      string         `json:"action"`
	Input       map[string]any `json:"input,omitempty"`
	Observation string         `json:"observation"`
	RawResponse string         `json:"-"`
}

// Result is the outcome of one task run.
type Result struct {
	FinalAnswer string `json:"final_answer"`
	Steps       []Step `json:"steps"`
}

// StepCallback is invoked synchronously after each recorded step.
type StepCallback func(stepNumber int, step Step)

// ReactAgent alternates between asking the model for the next action and
// executing that action against the registered tools until the model
// signals completion or the step budget runs out.
type ReactAgent struct {
	client      llm.Client
	base        *tools.Registry
	maxSteps    int
	temperature float64
	prompt      string
	callback    StepCallback
	planner     *planner.Planner
	compressor  *memory.Compressor
	skillMgr    *skills.Manager

	history []llm.Message
}

// Option configures a ReactAgent.
type Option func(*ReactAgent)

// WithMaxSteps sets the step budget per task.
func WithMaxSteps(n int) Option {
	return func(a *ReactAgent) {
		if n > 0 {
			a.maxSteps = n
		}
	}
}

// WithTemperature sets the sampling temperature for loop queries.
func WithTemperature(t float64) Option {
	return func(a *ReactAgent) { a.temperature = t }
}

// WithSystemPrompt overrides the default tool-derived system prompt.
func WithSystemPrompt(p string) Option {
	return func(a *ReactAgent) { a.prompt = p }
}

// WithStepCallback registers a callback invoked after every recorded step.
func WithStepCallback(cb StepCallback) Option {
	return func(a *ReactAgent) { a.callback = cb }
}

// WithPlanner enables upfront planning. The plan is advisory: it shapes the
// first user turn and progress reporting but never the loop's termination.
func WithPlanner(p *planner.Planner) Option {
	return func(a *ReactAgent) { a.planner = p }
}

// WithCompressor enables conversation compression between steps.
func WithCompressor(c *memory.Compressor) Option {
	return func(a *ReactAgent) { a.compressor = c }
}

// WithSkillManager enables task-conditional skill activation. The agent
// clones the manager so its activation state is private to this loop.
func WithSkillManager(m *skills.Manager) Option {
	return func(a *ReactAgent) { a.skillMgr = m.Clone() }
}

// New creates a ReactAgent over the given model client and base tool
// registry.
func New(client llm.Client, base *tools.Registry, opts ...Option) *ReactAgent {
	a := &ReactAgent{
		client:      client,
		base:        base,
		maxSteps:    DefaultMaxSteps,
		temperature: DefaultTemperature,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type modelResponse struct {
	Thought     string `json:"thought"`
	Action      string `json:"action"`
	ActionInput any    `json:"action_input"`
}

// Run executes one task to completion. Parse and tool failures become
// observation steps the model can react to; only an empty task or a model
// communication failure aborts the run with an error.
func (a *ReactAgent) Run(ctx context.Context, task string) (*Result, error) {
	if strings.TrimSpace(task) == "" {
		return nil, ErrEmptyTask
	}

	active := a.base.Clone()
	systemPrompt := a.prompt
	if a.skillMgr != nil {
		if _, err := a.skillMgr.ApplyForTask(ctx, task); err != nil {
			slog.Warn("skill activation failed, continuing without skills", "error", err)
		}
		for _, t := range a.skillMgr.ActiveTools() {
			active.Register(t)
		}
	}
	if systemPrompt == "" {
		systemPrompt = BuildSystemPrompt(active)
	}
	if a.skillMgr != nil {
		if additions := a.skillMgr.ActivePromptAdditions(); additions != "" {
			systemPrompt += "\n\n" + additions
		}
	}

	firstTurn := task
	if a.planner != nil {
		if steps := a.planner.Plan(ctx, task); len(steps) > 0 {
			firstTurn += "\n\nSuggested plan:\n" + renderPlan(steps)
		}
	}
	a.history = append(a.history, llm.UserMessage(firstTurn))

	var steps []Step
	record := func(s Step) {
		steps = append(steps, s)
		if a.callback != nil {
			a.callback(s.Number, s)
		}
	}

	for n := 1; n <= a.maxSteps; n++ {
		if a.compressor != nil && a.compressor.ShouldCompress(a.history) {
			compressed := a.compressor.Compress(a.history)
			stats := a.compressor.Stats(a.history, compressed)
			a.history = compressed
			slog.Info("conversation compressed",
				"messages", stats.CompressedMessages, "saved", stats.SavedMessages)
		}

		messages := make([]llm.Message, 0, len(a.history)+1)
		messages = append(messages, llm.SystemMessage(systemPrompt))
		messages = append(messages, a.history...)

		raw, err := a.client.Respond(ctx, messages, a.temperature)
		if err != nil {
			return nil, fmt.Errorf("model query on step %d: %w", n, err)
		}
		a.history = append(a.history, llm.AssistantMessage(raw))

		var parsed modelResponse
		if err := jsonx.DecodeObject(raw, &parsed); err != nil {
			obs := "failed to parse model response: " + err.Error()
			record(Step{Number: n, Action: "error", Observation: obs, RawResponse: raw})
			a.history = append(a.history, llm.UserMessage("observation: "+obs))
			continue
		}

		if parsed.Action == FinishAction {
			answer := finalAnswer(parsed)
			record(Step{
				Number:      n,
				Thought:     parsed.Thought,
				Action:      FinishAction,
				Observation: answer,
				RawResponse: raw,
			})
			return &Result{FinalAnswer: answer, Steps: steps}, nil
		}

		step := a.executeAction(active, n, parsed, raw)
		record(step)

		if a.planner != nil {
			a.planner.MarkNextMatching(step.Action, step.Observation)
		}
		a.history = append(a.history, llm.UserMessage(a.observationTurn(step)))

		if step.Action == tools.TaskCompleteName && !strings.HasPrefix(step.Observation, failurePrefix) {
			return &Result{FinalAnswer: step.Observation, Steps: steps}, nil
		}
	}

	return &Result{
		FinalAnswer: fmt.Sprintf("step limit reached after %d steps", a.maxSteps),
		Steps:       steps,
	}, nil
}

// executeAction resolves and invokes the chosen tool, converting every
// failure mode into observation text.
func (a *ReactAgent) executeAction(active *tools.Registry, n int, parsed modelResponse, raw string) Step {
	step := Step{Number: n, Thought: parsed.Thought, Action: parsed.Action, RawResponse: raw}

	tool, ok := active.Get(parsed.Action)
	if !ok {
		step.Observation = fmt.Sprintf("unknown tool %q", parsed.Action)
		return step
	}

	args, obs := coerceArguments(parsed.Action, parsed.ActionInput)
	if obs != "" {
		step.Observation = obs
		return step
	}
	step.Input = args

	step.Observation = tools.TruncateObservation(invoke(tool, args), tools.DefaultMaxObservation)
	return step
}

// invoke runs the tool, converting errors and panics into the failure
// observation. Tool failures never escape the loop.
func invoke(tool tools.Tool, args map[string]any) (obs string) {
	defer func() {
		if r := recover(); r != nil {
			obs = fmt.Sprintf("%s%v", failurePrefix, r)
		}
	}()
	out, err := tool.Execute(args)
	if err != nil {
		return failurePrefix + err.Error()
	}
	return out
}

// coerceArguments validates the action input. The completion tool tolerates
// a missing or string input; every other tool requires a JSON object.
func coerceArguments(action string, input any) (map[string]any, string) {
	switch v := input.(type) {
	case nil:
		if action == tools.TaskCompleteName {
			return map[string]any{}, ""
		}
		return nil, "tool arguments are missing"
	case map[string]any:
		return v, ""
	case string:
		if action == tools.TaskCompleteName {
			return map[string]any{"message": v}, ""
		}
		return nil, "tool arguments must be a JSON object"
	default:
		return nil, "tool arguments must be a JSON object"
	}
}

// finalAnswer resolves the finish action's input into the answer text.
func finalAnswer(parsed modelResponse) string {
	switch v := parsed.ActionInput.(type) {
	case string:
		return v
	case map[string]any:
		if answer, ok := v["answer"].(string); ok {
			return answer
		}
		return serialize(v)
	case nil:
		return parsed.Thought
	default:
		return serialize(v)
	}
}

func serialize(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

func (a *ReactAgent) observationTurn(step Step) string {
	input := "null"
	if step.Input != nil {
		input = serialize(step.Input)
	}
	turn := fmt.Sprintf("executed action %s with input %s\nobservation: %s",
		step.Action, input, step.Observation)
	if a.planner != nil && a.planner.HasPlan() {
		turn += "\n" + planProgressLine(a.planner.Steps())
	}
	return turn
}

func planProgressLine(steps []planner.Step) string {
	completed := 0
	for _, s := range steps {
		if s.Completed {
			completed++
		}
	}
	return fmt.Sprintf("plan progress: %d/%d steps completed", completed, len(steps))
}

func renderPlan(steps []planner.Step) string {
	var b strings.Builder
	for _, s := range steps {
		fmt.Fprintf(&b, "%d. %s - %s\n", s.Number, s.Action, s.Reason)
	}
	return strings.TrimRight(b.String(), "\n")
}

// ResetConversation clears the conversation history, returning the agent to
// its freshly constructed state.
func (a *ReactAgent) ResetConversation() {
	a.history = nil
	if a.planner != nil {
		a.planner.ClearPlan()
	}
}

// ConversationHistory returns a copy of the conversation so far.
func (a *ReactAgent) ConversationHistory() []llm.Message {
	return append([]llm.Message(nil), a.history...)
}
