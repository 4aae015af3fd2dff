package memory

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/dmcode/reagent/llm"
)

// Defaults for the compression cadence.
const (
	DefaultCompressEvery = 5 // trigger once this many user turns accumulate
	DefaultKeepRecent    = 3 // turns kept verbatim (2 messages per turn)
)

const summaryPrefix = "Summary of earlier conversation:\n"

var (
	filePathRe   = regexp.MustCompile(`[\w./\\-]+\.(?:go|py|js|ts|tsx|rs|java|c|h|cpp|md|json|yaml|yml|toml|txt|sql|sh|html|css|csv)\b`)
	actionRe     = regexp.MustCompile(`executed action (\w+)`)
	errorLineRe  = regexp.MustCompile(`(?i)\b(error|failed|failure|exception|denied)\b`)
	doneLineRe   = regexp.MustCompile(`(?i)\b(completed|complete|success|succeeded|wrote|created)\b`)
	maxPerSignal = 2
)

// Compressor reduces conversation history to a summary plus a recent
// window. It is stateless with respect to its input: Compress is a pure
// function of the history it is given.
type Compressor struct {
	compressEvery int
	keepRecent    int
	counter       *TokenCounter
}

// Option configures a Compressor.
type Option func(*Compressor)

// WithCompressEvery sets how many user turns trigger compression.
func WithCompressEvery(n int) Option {
	return func(c *Compressor) {
		if n > 0 {
			c.compressEvery = n
		}
	}
}

// WithKeepRecent sets how many trailing turns survive verbatim.
func WithKeepRecent(n int) Option {
	return func(c *Compressor) {
		if n > 0 {
			c.keepRecent = n
		}
	}
}

// WithTokenCounter attaches a token counter used only for Stats.
func WithTokenCounter(tc *TokenCounter) Option {
	return func(c *Compressor) { c.counter = tc }
}

// NewCompressor creates a Compressor with the given options.
func NewCompressor(opts ...Option) *Compressor {
	c := &Compressor{
		compressEvery: DefaultCompressEvery,
		keepRecent:    DefaultKeepRecent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ShouldCompress reports whether the history has accumulated enough user
// turns to warrant compression.
func (c *Compressor) ShouldCompress(history []llm.Message) bool {
	users := 0
	for _, msg := range history {
		if msg.Role == llm.RoleUser {
			users++
		}
	}
	return users >= c.compressEvery
}

// Compress returns a reduced history: leading system turns unchanged, a
// single synthetic summary turn for the collapsed middle, and the trailing
// window verbatim. System turns are never dropped and retained turns are
// never reordered.
func (c *Compressor) Compress(history []llm.Message) []llm.Message {
	if len(history) == 0 {
		return nil
	}

	var system, rest []llm.Message
	for _, msg := range history {
		if msg.Role == llm.RoleSystem {
			system = append(system, msg)
		} else {
			rest = append(rest, msg)
		}
	}

	window := c.keepRecent * 2
	if len(rest) <= window {
		result := make([]llm.Message, 0, len(history))
		result = append(result, system...)
		result = append(result, rest...)
		return result
	}

	middle := rest[:len(rest)-window]
	recent := rest[len(rest)-window:]

	result := make([]llm.Message, 0, len(system)+1+len(recent))
	result = append(result, system...)
	result = append(result, llm.UserMessage(summaryPrefix+extractKeyInformation(middle)))
	result = append(result, recent...)
	return result
}

// extractKeyInformation builds the extractive summary: referenced files,
// executed tools, error lines, and completion lines, each capped.
func extractKeyInformation(messages []llm.Message) string {
	files := map[string]struct{}{}
	actions := map[string]struct{}{}
	var errLines, doneLines []string

	for _, msg := range messages {
		for _, m := range filePathRe.FindAllString(msg.Content, -1) {
			files[m] = struct{}{}
		}
		for _, m := range actionRe.FindAllStringSubmatch(msg.Content, -1) {
			actions[m[1]] = struct{}{}
		}
		for _, line := range strings.Split(msg.Content, "\n") {
			// Classify before checking the cap: a line matching both signal
			// classes counts as an error, and a capped class drops the line
			// rather than letting it spill into the other.
			switch {
			case errorLineRe.MatchString(line):
				if len(errLines) < maxPerSignal {
					errLines = append(errLines, strings.TrimSpace(line))
				}
			case doneLineRe.MatchString(line):
				if len(doneLines) < maxPerSignal {
					doneLines = append(doneLines, strings.TrimSpace(line))
				}
			}
		}
	}

	var sections []string
	if len(files) > 0 {
		sections = append(sections, "files touched: "+strings.Join(sortedKeys(files), ", "))
	}
	if len(actions) > 0 {
		sections = append(sections, "tools used: "+strings.Join(sortedKeys(actions), ", "))
	}
	if len(errLines) > 0 {
		sections = append(sections, "errors encountered:\n"+strings.Join(errLines, "\n"))
	}
	if len(doneLines) > 0 {
		sections = append(sections, "completed work:\n"+strings.Join(doneLines, "\n"))
	}

	if len(sections) == 0 {
		return fmt.Sprintf("%d earlier messages covered prior work on the task.", len(messages))
	}
	return strings.Join(sections, "\n\n")
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Stats summarizes the effect of one compression.
type Stats struct {
	OriginalMessages   int     `json:"original_messages"`
	CompressedMessages int     `json:"compressed_messages"`
	CompressionRatio   float64 `json:"compression_ratio"`
	SavedMessages      int     `json:"saved_messages"`
	SavedTokens        int     `json:"saved_tokens,omitempty"`
}

// Stats computes statistics comparing original and compressed histories.
// Token savings are reported when a token counter is configured.
func (c *Compressor) Stats(original, compressed []llm.Message) Stats {
	s := Stats{
		OriginalMessages:   len(original),
		CompressedMessages: len(compressed),
		SavedMessages:      len(original) - len(compressed),
	}
	if len(original) > 0 {
		s.CompressionRatio = 1 - float64(len(compressed))/float64(len(original))
	}
	if c.counter != nil {
		before := 0
		for _, m := range original {
			before += c.counter.Count(m.Content)
		}
		after := 0
		for _, m := range compressed {
			after += c.counter.Count(m.Content)
		}
		s.SavedTokens = before - after
	}
	return s
}
