// Package assets provides the prompt text and templates embedded into the binaries.
//
// Static system prompts are plain text files under prompts/; user-content
// templates are text/template files rendered per request.
package assets

import (
	"bytes"
	_ "embed"
	"strings"
	"text/template"
)

// OneLineImproverPrompt instructs the text model to expand a single image
// description without inventing new content.
//
//go:embed prompts/one-line-improver.txt
var OneLineImproverPrompt string

// QueryRewriterPrompt turns the enhanced fragments and metadata into one
// detailed synthesis instruction.
//
//go:embed prompts/query-rewriter.txt
var QueryRewriterPrompt string

// ImageGenerationPrompt is the system instruction for the image model.
//
//go:embed prompts/image-generation.txt
var ImageGenerationPrompt string

// FollowUpRewriterPrompt constrains follow-up edits to the requested delta.
//
//go:embed prompts/follow-up-rewriter.txt
var FollowUpRewriterPrompt string

//go:embed prompts/composition-input.tmpl
var compositionInputTemplate string

//go:embed prompts/follow-up-input.tmpl
var followUpInputTemplate string

var (
	compositionInputTmpl = template.Must(template.New("composition").Parse(compositionInputTemplate))
	followUpInputTmpl    = template.Must(template.New("follow-up").Parse(followUpInputTemplate))
)

// CompositionData fills the composition-input template. Empty fields are
// omitted from the output; Icons holds pre-formatted lines in index order.
type CompositionData struct {
	Background       string
	Major            string
	Icons            []string
	Category         string
	ThemeColor       string
	FinalDescription string
}

// RenderCompositionInput renders the user content for the query rewriter.
func RenderCompositionInput(data CompositionData) string {
	return render(compositionInputTmpl, data)
}

// RenderFollowUpInput renders the user content for the follow-up rewriter.
func RenderFollowUpInput(correction string) string {
	return render(followUpInputTmpl, struct{ Correction string }{correction})
}

func render(tmpl *template.Template, data any) string {
	var buf bytes.Buffer
	// The templates only reference fields that always exist, so Execute cannot
	// fail on well-typed data; whatever was rendered is returned regardless.
	_ = tmpl.Execute(&buf, data)
	return strings.TrimSpace(buf.String())
}
