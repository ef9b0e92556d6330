// Package analysis defines the outcomes of LLM analysis steps. Every outcome
// is a tagged variant: either a structured value or the raw text the model
// returned when it could not be decoded.
package analysis

import (
	"encoding/json"
	"errors"
	"strings"
)

// Outcome is the result of one Analyze step.
// Exactly one of Structured or Raw is meaningful, selected by IsStructured.
type Outcome[T any] struct {
	structured *T
	raw        string
}

// Structured wraps a decoded value.
func Structured[T any](v T) Outcome[T] { return Outcome[T]{structured: &v} }

// RawText wraps undecodable model output.
func RawText[T any](text string) Outcome[T] { return Outcome[T]{raw: text} }

// IsStructured reports which variant o holds.
func (o Outcome[T]) IsStructured() bool { return o.structured != nil }

// Value returns the structured value and true, or the zero value and false.
func (o Outcome[T]) Value() (T, bool) {
	if o.structured == nil {
		var zero T
		return zero, false
	}
	return *o.structured, true
}

// Raw returns the raw text of a fallback outcome.
func (o Outcome[T]) Raw() string { return o.raw }

// envelope is the wire form of an Outcome.
type envelope[T any] struct {
	Kind       string `json:"kind"`
	Structured *T     `json:"structured,omitempty"`
	Raw        string `json:"raw,omitempty"`
}

// MarshalJSON encodes the variant tag alongside its payload.
func (o Outcome[T]) MarshalJSON() ([]byte, error) {
	if o.structured != nil {
		return json.Marshal(envelope[T]{Kind: "structured", Structured: o.structured})
	}
	return json.Marshal(envelope[T]{Kind: "raw", Raw: o.raw})
}

// UnmarshalJSON decodes the tagged wire form.
func (o *Outcome[T]) UnmarshalJSON(data []byte) error {
	var env envelope[T]
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	switch env.Kind {
	case "structured":
		if env.Structured == nil {
			return errors.New("analysis: structured outcome without payload")
		}
		*o = Outcome[T]{structured: env.Structured}
	case "raw":
		*o = Outcome[T]{raw: env.Raw}
	default:
		return errors.New("analysis: unknown outcome kind " + env.Kind)
	}
	return nil
}

// Parse decodes model output into T. Markdown code fences and prose around
// the first JSON object are tolerated. Anything else becomes a raw outcome.
func Parse[T any](text string) Outcome[T] {
	body, ok := extractJSON(text)
	if !ok {
		return RawText[T](text)
	}
	var v T
	if err := json.Unmarshal([]byte(body), &v); err != nil {
		return RawText[T](text)
	}
	return Structured(v)
}

func extractJSON(text string) (string, bool) {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}
