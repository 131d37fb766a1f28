package thumbnail

import (
	"context"
	"fmt"
	"strings"

	"github.com/fpang/thumbnail-studio/internal/assets"
	"github.com/fpang/thumbnail-studio/internal/textutil"
)

// instructionLabels are prefixes a rewriter sometimes puts before its answer.
var instructionLabels = []string{"Instruction", "Prompt", "Image prompt"}

// Composer merges the enhanced fragments and request metadata into the single
// instruction handed to the image model.
type Composer struct {
	text TextCompleter
}

// NewComposer creates a Composer backed by text.
func NewComposer(text TextCompleter) *Composer {
	return &Composer{text: text}
}

// CompositionInput renders the deterministic user content for the rewrite
// call: background, major, icons in index order, then category, theme color
// and final description.
func CompositionInput(enhanced EnhancedDescriptions, category, themeColor, finalDescription string) string {
	icons := make([]string, len(enhanced.Icons))
	for i, desc := range enhanced.Icons {
		desc = strings.TrimSpace(desc)
		if desc == "" || desc == DefaultIconDescription {
			icons[i] = fmt.Sprintf("Icon %d is provided.", i+1)
			continue
		}
		icons[i] = fmt.Sprintf("Icon %d description: %s.", i+1, strings.TrimRight(desc, "."))
	}
	return assets.RenderCompositionInput(assets.CompositionData{
		Background:       strings.TrimSpace(enhanced.Background),
		Major:            strings.TrimSpace(enhanced.Major),
		Icons:            icons,
		Category:         strings.TrimSpace(category),
		ThemeColor:       strings.TrimSpace(themeColor),
		FinalDescription: strings.TrimSpace(finalDescription),
	})
}

// Compose issues the rewrite call. There is no fallback instruction: any
// failure is returned as a *CompositionError.
func (c *Composer) Compose(ctx context.Context, enhanced EnhancedDescriptions, category, themeColor, finalDescription string) (string, error) {
	input := CompositionInput(enhanced, category, themeColor, finalDescription)
	instruction, err := c.text.Complete(ctx, assets.QueryRewriterPrompt, input)
	if err != nil {
		return "", &CompositionError{Stage: "compose", Err: err}
	}
	instruction = textutil.CleanReply(instruction, instructionLabels...)
	if instruction == "" {
		return "", &CompositionError{Stage: "compose", Err: ErrEmptyCompletion}
	}
	return instruction, nil
}

// Rewrite turns a follow-up correction into an edit instruction constrained to
// the requested delta.
func (c *Composer) Rewrite(ctx context.Context, correction string) (string, error) {
	instruction, err := c.text.Complete(ctx, assets.FollowUpRewriterPrompt, assets.RenderFollowUpInput(strings.TrimSpace(correction)))
	if err != nil {
		return "", &CompositionError{Stage: "rewrite", Err: err}
	}
	instruction = textutil.CleanReply(instruction, instructionLabels...)
	if instruction == "" {
		return "", &CompositionError{Stage: "rewrite", Err: ErrEmptyCompletion}
	}
	return instruction, nil
}
