// Package llm defines the language-model client contract used by the agent
// loop and provides a gollm-backed implementation.
//
// The contract is deliberately narrow: a client turns a role-tagged message
// list into a single text response at a given sampling temperature. All
// transport, auth, and provider concerns live behind it.
//
//	client, err := llm.NewGollmClient("openai", "gpt-4o-mini")
//	text, err := client.Respond(ctx, messages, 0.0)
//
// Failures surface as *llm.ModelError (or one of its concrete wrappers), so
// callers can tell a model-communication failure apart from tool or parse
// failures with errors.As.
package llm
