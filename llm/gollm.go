package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/teilomillet/gollm"
)

// GollmClient implements Client on top of the gollm library, which handles
// the provider-specific HTTP APIs (OpenAI, Anthropic, and others).
type GollmClient struct {
	provider string
	model    string
	llm      gollm.LLM
	retry    RetryPolicy
}

// GollmOption configures a GollmClient.
type GollmOption func(*gollmConfig)

type gollmConfig struct {
	apiKey    string
	maxTokens int
	retry     RetryPolicy
	extraOpts []gollm.ConfigOption
}

// WithAPIKey sets the API key. When empty, gollm reads it from the
// provider's conventional environment variable.
func WithAPIKey(key string) GollmOption {
	return func(c *gollmConfig) { c.apiKey = key }
}

// WithMaxTokens sets the response token limit.
func WithMaxTokens(n int) GollmOption {
	return func(c *gollmConfig) { c.maxTokens = n }
}

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(p RetryPolicy) GollmOption {
	return func(c *gollmConfig) { c.retry = p }
}

// WithGollmOptions appends raw gollm configuration options.
func WithGollmOptions(opts ...gollm.ConfigOption) GollmOption {
	return func(c *gollmConfig) { c.extraOpts = append(c.extraOpts, opts...) }
}

// NewGollmClient creates a client for the given provider and model.
func NewGollmClient(provider, model string, opts ...GollmOption) (*GollmClient, error) {
	cfg := &gollmConfig{
		maxTokens: 4096,
		retry:     DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	gollmOpts := []gollm.ConfigOption{
		gollm.SetProvider(provider),
		gollm.SetModel(model),
		gollm.SetMaxTokens(cfg.maxTokens),
		gollm.SetMaxRetries(0), // retries are handled here, with classification
		gollm.SetLogLevel(gollm.LogLevelWarn),
	}
	if cfg.apiKey != "" {
		gollmOpts = append(gollmOpts, gollm.SetAPIKey(cfg.apiKey))
	}
	gollmOpts = append(gollmOpts, cfg.extraOpts...)

	inner, err := gollm.NewLLM(gollmOpts...)
	if err != nil {
		return nil, fmt.Errorf("create gollm LLM for provider %s: %w", provider, err)
	}

	return &GollmClient{
		provider: provider,
		model:    model,
		llm:      inner,
		retry:    cfg.retry,
	}, nil
}

// Provider returns the provider identifier.
func (c *GollmClient) Provider() string { return c.provider }

// Model returns the configured model identifier.
func (c *GollmClient) Model() string { return c.model }

// Respond sends the message list and returns the raw response text.
func (c *GollmClient) Respond(ctx context.Context, messages []Message, temperature float64) (string, error) {
	prompt := c.translateMessages(messages)
	c.llm.SetOption("temperature", temperature)

	return retry(ctx, c.retry, func(ctx context.Context) (string, error) {
		text, err := c.llm.Generate(ctx, prompt)
		if err != nil {
			return "", classifyError(c.provider, err)
		}
		return text, nil
	})
}

// translateMessages folds the role-tagged history into a gollm prompt.
// System turns become the system prompt; assistant turns are kept as labeled
// context so the model sees its own prior output.
func (c *GollmClient) translateMessages(messages []Message) *gollm.Prompt {
	var systemParts []string
	var bodyParts []string

	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			systemParts = append(systemParts, msg.Content)
		case RoleAssistant:
			if msg.Content != "" {
				bodyParts = append(bodyParts, "[Assistant]: "+msg.Content)
			}
		default:
			bodyParts = append(bodyParts, msg.Content)
		}
	}

	promptText := strings.Join(bodyParts, "\n")
	if promptText == "" {
		promptText = "Hello"
	}

	var promptOpts []gollm.PromptOption
	if len(systemParts) > 0 {
		promptOpts = append(promptOpts, gollm.WithSystemPrompt(strings.TrimSpace(strings.Join(systemParts, "\n")), gollm.CacheTypeEphemeral))
	}

	return gollm.NewPrompt(promptText, promptOpts...)
}
