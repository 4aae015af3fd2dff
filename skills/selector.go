package skills

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/dmcode/reagent/llm"
)

// Selection defaults.
const (
	DefaultMinScore  = 0.1
	DefaultMaxActive = 3

	patternWeight = 1.5
)

// Selector scores skills against task text. Scoring is deterministic: the
// same task and catalog always produce the same ordered result.
type Selector struct {
	minScore  float64
	maxActive int
	fallback  llm.Client
}

// SelectorOption configures a Selector.
type SelectorOption func(*Selector)

// WithMinScore sets the minimum combined score a skill must reach.
func WithMinScore(s float64) SelectorOption {
	return func(sel *Selector) { sel.minScore = s }
}

// WithMaxActive caps how many skills one selection returns.
func WithMaxActive(n int) SelectorOption {
	return func(sel *Selector) {
		if n > 0 {
			sel.maxActive = n
		}
	}
}

// WithLLMFallback enables a single model query when no skill clears the
// score threshold.
func WithLLMFallback(client llm.Client) SelectorOption {
	return func(sel *Selector) { sel.fallback = client }
}

// NewSelector creates a Selector with the given options.
func NewSelector(opts ...SelectorOption) *Selector {
	sel := &Selector{minScore: DefaultMinScore, maxActive: DefaultMaxActive}
	for _, opt := range opts {
		opt(sel)
	}
	return sel
}

// Score computes the combined keyword/pattern score of one skill for the
// task: matchedKeywords/totalKeywords + 1.5 x matchedPatterns/totalPatterns.
func Score(task string, meta Metadata) float64 {
	lower := strings.ToLower(task)

	var keywordScore float64
	if len(meta.Keywords) > 0 {
		matched := 0
		for _, kw := range meta.Keywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				matched++
			}
		}
		keywordScore = float64(matched) / float64(len(meta.Keywords))
	}

	var patternScore float64
	if len(meta.Patterns) > 0 {
		matched := 0
		for _, p := range meta.Patterns {
			re, err := regexp.Compile("(?i)" + p)
			if err != nil {
				continue
			}
			if re.MatchString(task) {
				matched++
			}
		}
		patternScore = float64(matched) / float64(len(meta.Patterns))
	}

	return keywordScore + patternWeight*patternScore
}

// Select returns the names of the best-matching skills for the task, ordered
// by descending score with ties broken by ascending priority, truncated to
// the maximum active count. When nothing clears the threshold and a fallback
// client is configured, one model query may pick skills by name instead.
func (sel *Selector) Select(ctx context.Context, task string, catalog []Skill) []string {
	type scored struct {
		name     string
		score    float64
		priority int
	}

	var candidates []scored
	for _, s := range catalog {
		meta := s.Metadata()
		score := Score(task, meta)
		if score >= sel.minScore {
			candidates = append(candidates, scored{meta.Name, score, meta.Priority})
		}
	}

	if len(candidates) == 0 {
		if sel.fallback == nil {
			return nil
		}
		return sel.selectViaModel(ctx, task, catalog)
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		if candidates[i].priority != candidates[j].priority {
			return candidates[i].priority < candidates[j].priority
		}
		return candidates[i].name < candidates[j].name
	})

	if len(candidates) > sel.maxActive {
		candidates = candidates[:sel.maxActive]
	}

	names := make([]string, len(candidates))
	for i, c := range candidates {
		names[i] = c.name
	}
	return names
}

func (sel *Selector) selectViaModel(ctx context.Context, task string, catalog []Skill) []string {
	var b strings.Builder
	b.WriteString("Pick the skills relevant to the task below, if any.\n\n")
	fmt.Fprintf(&b, "Task: %s\n\nAvailable skills:\n", task)
	for _, s := range catalog {
		meta := s.Metadata()
		fmt.Fprintf(&b, "- %s: %s\n", meta.Name, meta.Description)
	}
	b.WriteString("\nRespond with a comma-separated list of skill names, or \"none\".")

	response, err := sel.fallback.Respond(ctx, []llm.Message{llm.UserMessage(b.String())}, 0)
	if err != nil {
		slog.Warn("skill selection fallback failed", "error", err)
		return nil
	}

	known := make(map[string]struct{}, len(catalog))
	for _, s := range catalog {
		known[s.Metadata().Name] = struct{}{}
	}

	var names []string
	for _, part := range strings.FieldsFunc(response, func(r rune) bool { return r == ',' || r == '\n' }) {
		name := strings.TrimSpace(part)
		if _, ok := known[name]; ok {
			names = append(names, name)
		}
	}
	if len(names) > sel.maxActive {
		names = names[:sel.maxActive]
	}
	return names
}
