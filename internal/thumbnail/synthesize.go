package thumbnail

import (
	"context"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/fpang/thumbnail-studio/internal/assets"
)

// Synthesizer builds and issues the multi-modal image request.
type Synthesizer struct {
	model ImageModel
}

// NewSynthesizer creates a Synthesizer backed by model.
func NewSynthesizer(model ImageModel) *Synthesizer {
	return &Synthesizer{model: model}
}

// roleRank fixes the submission order: background, icons, major. The major
// image goes last so it sits closest to the end of the request.
var roleRank = map[Role]int{
	RoleBackground: 0,
	RoleIcon:       1,
	RoleMajor:      2,
	RoleSource:     3,
}

// BuildParts returns the instruction followed by each attachment's image and
// label, in background → icons (index order) → major order regardless of the
// order attachments were passed in.
func BuildParts(instruction string, attachments []Attachment) []Part {
	ordered := make([]Attachment, len(attachments))
	copy(ordered, attachments)
	sort.SliceStable(ordered, func(i, j int) bool {
		ri, rj := roleRank[ordered[i].Role], roleRank[ordered[j].Role]
		if ri != rj {
			return ri < rj
		}
		return ordered[i].Index < ordered[j].Index
	})

	parts := make([]Part, 0, 1+2*len(ordered))
	parts = append(parts, Part{Text: instruction})
	for i := range ordered {
		img := ordered[i].Image
		parts = append(parts, Part{Image: &img}, Part{Text: ordered[i].Label()})
	}
	return parts
}

// Synthesize returns the model's first image, or (nil, nil) when it replied
// with text only. Call failures are returned as *SynthesisError.
func (s *Synthesizer) Synthesize(ctx context.Context, instruction string, attachments []Attachment) (*SynthesisResult, error) {
	parts := BuildParts(instruction, attachments)
	result, err := s.model.GenerateImage(ctx, assets.ImageGenerationPrompt, parts)
	if err != nil {
		return nil, &SynthesisError{Err: err}
	}
	if result == nil || len(result.Data) == 0 {
		evt := log.Warn().Int("parts", len(parts))
		if result != nil && result.Text != "" {
			evt = evt.Str("modelText", truncate(result.Text, 200))
		}
		evt.Msg("Image model returned no image")
		return nil, nil
	}
	if result.MIMEType == "" {
		result.MIMEType = "image/png"
	}
	return result, nil
}

// AttachmentsFor pairs each attached image in req with its enhanced description.
func AttachmentsFor(req *GenerationRequest, enhanced EnhancedDescriptions) []Attachment {
	var out []Attachment
	if req.Background != nil {
		out = append(out, Attachment{Role: RoleBackground, Image: *req.Background, Description: enhanced.Background})
	}
	for i, icon := range req.Icons {
		var desc string
		if i < len(enhanced.Icons) {
			desc = enhanced.Icons[i]
		}
		out = append(out, Attachment{Role: RoleIcon, Index: i, Image: icon, Description: desc})
	}
	if req.Major != nil {
		out = append(out, Attachment{Role: RoleMajor, Image: *req.Major, Description: enhanced.Major})
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
