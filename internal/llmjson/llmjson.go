// Package llmjson decodes JSON objects out of LLM responses that may be
// wrapped in prose or markdown code fences.
package llmjson

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseError reports a response that could not be decoded as JSON. Raw holds
// a truncated copy of the offending text for diagnosis.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("llm response is not valid JSON: %v. Raw: %s", e.Err, e.Raw)
}

func (e *ParseError) Unwrap() error { return e.Err }

// maxRawChars bounds the diagnostic copy carried in ParseError.
const maxRawChars = 500

// Extract returns the JSON object span of text: from the first '{' to the
// last '}'. When no such span exists the trimmed text is returned unchanged.
func Extract(text string) string {
	trimmed := strings.TrimSpace(text)
	start := strings.Index(trimmed, "{")
	if start < 0 {
		return trimmed
	}
	end := strings.LastIndex(trimmed, "}")
	if end < start {
		return trimmed
	}
	return trimmed[start : end+1]
}

// Unmarshal extracts the object span of text and decodes it into v.
// On decode failure it returns a *ParseError carrying the offending span.
func Unmarshal(text string, v any) error {
	span := Extract(text)
	if err := json.Unmarshal([]byte(span), v); err != nil {
		return &ParseError{Raw: truncate(span, maxRawChars), Err: err}
	}
	return nil
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
