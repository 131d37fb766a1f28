// Package textutil normalizes free-text LLM replies that may be wrapped in
// markdown code fences, quotes or a leading label.
package textutil

import (
	"strings"
)

// StripMarkdownFences removes ```lang ... ``` or ``` ... ``` wrapping from text.
// Returns the content between the fences, or the original text if no fences are found.
func StripMarkdownFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}

	lines := strings.Split(text, "\n")
	if len(lines) < 3 {
		return text
	}

	startIdx := 1 // skip the opening ``` line
	endIdx := len(lines)

	// Find the closing ```
	for i := len(lines) - 1; i > 0; i-- {
		if strings.TrimSpace(lines[i]) == "```" {
			endIdx = i
			break
		}
	}

	return strings.TrimSpace(strings.Join(lines[startIdx:endIdx], "\n"))
}

// quotePairs are the wrappers a model sometimes puts around a one-line answer.
var quotePairs = [][2]string{
	{`"`, `"`},
	{"'", "'"},
	{"“", "”"},
}

// CleanReply strips fences, one pair of surrounding quotes and a leading
// "Label:" prefix when the label is one of labels (case-insensitive).
func CleanReply(text string, labels ...string) string {
	text = StripMarkdownFences(text)
	for _, q := range quotePairs {
		if len(text) >= len(q[0])+len(q[1]) && strings.HasPrefix(text, q[0]) && strings.HasSuffix(text, q[1]) {
			text = strings.TrimSpace(text[len(q[0]) : len(text)-len(q[1])])
			break
		}
	}
	for _, label := range labels {
		prefix := label + ":"
		if len(text) >= len(prefix) && strings.EqualFold(text[:len(prefix)], prefix) {
			return strings.TrimSpace(text[len(prefix):])
		}
	}
	return text
}
