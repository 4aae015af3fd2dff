// Package agent implements the reason-act execution loop: the agent asks
// the model for the next action, executes it against the registered tools,
// feeds the observation back, and repeats until the model signals
// completion or the step budget is exhausted.
//
// # Architecture
//
// The loop composes four optional collaborators, each injected through an
// Option:
//
//   - a skills.Manager that augments instructions and tools per task,
//   - a planner.Planner that produces an advisory upfront outline,
//   - a memory.Compressor that keeps long conversations within budget,
//   - a StepCallback that streams progress to observers.
//
// Tool failures, unknown actions, malformed arguments, and unparsable model
// output all degrade into observation text the model can react to on the
// next step. Only an empty task or a model communication failure aborts a
// run; the latter surfaces as a typed llm error detectable with errors.As.
//
// # Quick Start
//
//	registry := tools.DefaultRegistry(tools.Access{}, nil)
//	client, err := llm.NewGollmClient("openai", "gpt-4o")
//	if err != nil {
//		log.Fatal(err)
//	}
//	a := agent.New(client, registry, agent.WithMaxSteps(15))
//	result, err := a.Run(ctx, "list the files in the repository root")
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(result.FinalAnswer)
//
// Each ReactAgent is single-threaded per task: one Run occupies one control
// flow from start to final answer. Concurrent tasks use separate agents
// sharing only the base registry and skill catalog.
package agent
