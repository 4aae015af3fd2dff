// Package jsonx provides tolerant decoding of JSON objects embedded in
// model output. Models frequently wrap the requested JSON in prose or
// markdown fences; DecodeObject falls back to the outermost brace-delimited
// substring when a strict parse fails.
package jsonx

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrNoObject is returned when no JSON object can be located in the input.
var ErrNoObject = errors.New("no JSON object found in response")

// DecodeObject parses s into v. It first attempts a strict parse of the
// whole (trimmed) string; on failure it extracts the substring between the
// first '{' and the last '}' and parses that instead.
func DecodeObject(s string, v any) error {
	candidate := strings.TrimSpace(s)
	if candidate == "" {
		return ErrNoObject
	}
	if err := json.Unmarshal([]byte(candidate), v); err == nil {
		return nil
	}
	start := strings.Index(candidate, "{")
	end := strings.LastIndex(candidate, "}")
	if start == -1 || end == -1 || end <= start {
		return ErrNoObject
	}
	if err := json.Unmarshal([]byte(candidate[start:end+1]), v); err != nil {
		return err
	}
	return nil
}
