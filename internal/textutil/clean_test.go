package textutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripMarkdownFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "  a bold thumbnail  ", "a bold thumbnail"},
		{"fenced with lang", "```text\nline one\nline two\n```", "line one\nline two"},
		{"fenced no lang", "```\nonly\n```", "only"},
		{"unterminated", "```\nbody\nmore", "body\nmore"},
		{"too short", "```x```", "```x```"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripMarkdownFences(tt.in))
		})
	}
}

func TestCleanReply(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		labels []string
		want   string
	}{
		{"quoted", `"Create a vivid 16:9 thumbnail"`, nil, "Create a vivid 16:9 thumbnail"},
		{"curly quoted", "“bright”", nil, "bright"},
		{"label", "Instruction: keep everything", []string{"instruction"}, "keep everything"},
		{"fenced label", "```\nPrompt: glow\n```", []string{"Instruction", "Prompt"}, "glow"},
		{"label not listed", "Note: keep", []string{"Prompt"}, "Note: keep"},
		{"lone quote", `"`, nil, `"`},
		{"inner quotes kept", `say "hi" loudly`, nil, `say "hi" loudly`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanReply(tt.in, tt.labels...))
		})
	}
}
