package delivery

import (
	"html"
	"regexp"
	"strings"
)

const discordMaxMessageLen = 2000

var (
	codeBlockRe  = regexp.MustCompile("(?s)```(?:[a-zA-Z0-9_+-]*\n)?(.*?)```")
	inlineCodeRe = regexp.MustCompile("`([^`\n]+)`")
	boldRe       = regexp.MustCompile(`\*\*([^*\n]+)\*\*`)
	italicRe     = regexp.MustCompile(`(^|[^*_\w])[*_]([^*_\n]+)[*_]`)
	linkRe       = regexp.MustCompile(`\[([^\]\n]+)\]\((https?://[^)\s]+)\)`)
)

// MarkdownToTelegramHTML converts the markdown subset the LLM tends to
// emit into Telegram's HTML parse mode. Everything is entity-escaped
// first so raw angle brackets in the reply survive.
func MarkdownToTelegramHTML(text string) string {
	out := html.EscapeString(text)

	out = codeBlockRe.ReplaceAllString(out, "<pre>$1</pre>")
	out = inlineCodeRe.ReplaceAllString(out, "<code>$1</code>")
	out = boldRe.ReplaceAllString(out, "<b>$1</b>")
	out = italicRe.ReplaceAllString(out, "$1<i>$2</i>")
	out = linkRe.ReplaceAllString(out, `<a href="$2">$1</a>`)

	return out
}

// ChunkText splits text into rune-bounded pieces of at most maxChars.
// Empty input yields no chunks.
func ChunkText(text string, maxChars int) []string {
	if text == "" {
		return nil
	}
	runes := []rune(text)
	if len(runes) <= maxChars {
		return []string{text}
	}

	var out []string
	var b strings.Builder
	count := 0
	for _, r := range runes {
		b.WriteRune(r)
		count++
		if count >= maxChars {
			out = append(out, b.String())
			b.Reset()
			count = 0
		}
	}
	if b.Len() > 0 {
		out = append(out, b.String())
	}
	return out
}
