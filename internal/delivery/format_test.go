package delivery

import (
	"strings"
	"testing"
)

func TestMarkdownToTelegramHTML(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"escapes entities", "a < b & c > d", "a &lt; b &amp; c &gt; d"},
		{"bold", "**hi**", "<b>hi</b>"},
		{"inline code", "run `ls` now", "run <code>ls</code> now"},
		{"link", "[docs](https://example.com/x)", `<a href="https://example.com/x">docs</a>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MarkdownToTelegramHTML(tt.in); got != tt.want {
				t.Errorf("MarkdownToTelegramHTML(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestMarkdownToTelegramHTML_CodeBlock(t *testing.T) {
	got := MarkdownToTelegramHTML("```go\nfmt.Println(1)\n```")
	if !strings.Contains(got, "<pre>") || !strings.Contains(got, "fmt.Println(1)") {
		t.Errorf("expected pre block, got %q", got)
	}
}

func TestChunkText(t *testing.T) {
	if got := ChunkText("", 80); got != nil {
		t.Errorf("empty input should yield no chunks, got %v", got)
	}
	if got := ChunkText("short", 80); len(got) != 1 || got[0] != "short" {
		t.Errorf("short input should be one chunk, got %v", got)
	}

	chunks := ChunkText(strings.Repeat("x", 200), 80)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if len(chunks[0]) != 80 || len(chunks[2]) != 40 {
		t.Errorf("unexpected chunk sizes: %d, %d, %d", len(chunks[0]), len(chunks[1]), len(chunks[2]))
	}

	// Rune boundaries survive multi-byte input.
	multi := strings.Repeat("é", 100)
	for _, c := range ChunkText(multi, 80) {
		if strings.ContainsRune(c, '�') {
			t.Error("chunking split a multi-byte rune")
		}
	}
}
