package llm

import "context"

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one role-tagged turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SystemMessage builds a system-role message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage builds a user-role message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage builds an assistant-role message.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// Client is the language-model client contract. Implementations must return
// a *ModelError (or a type wrapping it) on communication failure so callers
// can classify the failure.
type Client interface {
	Respond(ctx context.Context, messages []Message, temperature float64) (string, error)
}

// ClientFunc adapts a plain function to the Client interface.
type ClientFunc func(ctx context.Context, messages []Message, temperature float64) (string, error)

func (f ClientFunc) Respond(ctx context.Context, messages []Message, temperature float64) (string, error) {
	return f(ctx, messages, temperature)
}

// ScriptedClient replays canned responses in order. It records every call's
// message list, which makes loop behavior assertable in tests.
type ScriptedClient struct {
	Responses []string
	Calls     [][]Message
	next      int
}

func (s *ScriptedClient) Respond(_ context.Context, messages []Message, _ float64) (string, error) {
	copied := make([]Message, len(messages))
	copy(copied, messages)
	s.Calls = append(s.Calls, copied)
	if s.next >= len(s.Responses) {
		return "", &ModelError{Message: "scripted client exhausted", Provider: "scripted"}
	}
	resp := s.Responses[s.next]
	s.next++
	return resp, nil
}
