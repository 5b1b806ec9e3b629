package llmjson

import (
	"errors"
	"strings"
	"testing"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare object", `{"a": 1}`, `{"a": 1}`},
		{"code fence", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"surrounding prose", "Here is the plan:\n{\"a\": 1}\nDone.", `{"a": 1}`},
		{"no object", "plain text", "plain text"},
		{"unclosed brace", "prefix { tail", "prefix { tail"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Extract(tt.in); got != tt.want {
				t.Errorf("Extract(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestUnmarshalFenced(t *testing.T) {
	var v struct {
		Strategy string `json:"strategy"`
		Summary  string `json:"summary"`
	}
	err := Unmarshal("```json\n{\"strategy\": \"direct\", \"summary\": \"ok\"}\n```", &v)
	if err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if v.Strategy != "direct" || v.Summary != "ok" {
		t.Errorf("got %+v", v)
	}
}

func TestUnmarshalParseError(t *testing.T) {
	var v map[string]any
	err := Unmarshal("{not json at all", &v)
	if err == nil {
		t.Fatal("expected error")
	}
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ParseError, got %T", err)
	}
	if pe.Raw == "" {
		t.Error("ParseError.Raw should carry the offending text")
	}
}

func TestUnmarshalTruncatesRaw(t *testing.T) {
	long := "{" + strings.Repeat("x", 2000)
	var v map[string]any
	err := Unmarshal(long, &v)
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ParseError, got %T", err)
	}
	if len([]rune(pe.Raw)) > 500 {
		t.Errorf("Raw not truncated: %d chars", len([]rune(pe.Raw)))
	}
}
