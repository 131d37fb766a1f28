// Package thumbnail implements the thumbnail generation pipeline:
// validate → enhance (fan-out) → compose (fan-in) → synthesize → publish,
// plus the follow-up path that refines an already published thumbnail.
//
// External capabilities (text completion, image synthesis, storage) are
// consumed through the small interfaces in this file so every stage can be
// exercised with fakes.
package thumbnail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Role identifies which slot of the thumbnail an image fills.
type Role string

const (
	RoleBackground Role = "background"
	RoleMajor      Role = "major"
	RoleIcon       Role = "icon"
	// RoleSource is the previously published thumbnail in the follow-up path.
	RoleSource Role = "source"
)

// MaxIcons is the most icon images (and icon descriptions) a request may carry.
const MaxIcons = 5

// Default descriptions used when an image is attached without text.
const (
	DefaultBackgroundDescription = "Background image is provided"
	DefaultMajorDescription      = "Major image is provided"
	DefaultIconDescription       = "Icon image is provided"
)

// Image is an uploaded or fetched binary image.
type Image struct {
	Data     []byte
	MIMEType string
	Filename string
}

// GenerationRequest is one inbound /generate call. It lives only for the
// duration of the pipeline run.
type GenerationRequest struct {
	RequestID string

	Background *Image
	Major      *Image
	Icons      []Image

	BackgroundDescription string
	MajorDescription      string
	// IconDescriptionsRaw is the JSON array string exactly as received.
	IconDescriptionsRaw string

	FinalDescription string
	ThemeColor       string
	Category         string
}

// IconDescriptions returns the parsed icon descriptions, or nil when the raw
// payload is absent or malformed. Call Validate first to surface errors.
func (r *GenerationRequest) IconDescriptions() []string {
	descs, err := parseIconDescriptions(r.IconDescriptionsRaw)
	if err != nil {
		return nil
	}
	return descs
}

var (
	errNotJSON    = errors.New("not valid JSON")
	errNotArray   = errors.New("not a JSON array")
	errNotStrings = errors.New("array contains non-string values")
)

func parseIconDescriptions(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, errNotJSON
	}
	arr, ok := v.([]any)
	if !ok {
		return nil, errNotArray
	}
	out := make([]string, len(arr))
	var err error
	for i, item := range arr {
		switch s := item.(type) {
		case string:
			out[i] = s
		case nil:
		default:
			err = errNotStrings
		}
	}
	return out, err
}

// FollowUpRequest asks for a change to an already published thumbnail.
type FollowUpRequest struct {
	RequestID  string
	ImageURL   string
	Correction string
}

// EnhancedDescriptions holds one description per present image slot. An empty
// string means the corresponding image was not attached. Icons[i] always
// describes GenerationRequest.Icons[i].
type EnhancedDescriptions struct {
	Background string
	Major      string
	Icons      []string
}

// Part is one ordered content item of a multi-modal synthesis request.
// Exactly one of Text or Image is set.
type Part struct {
	Text  string
	Image *Image
}

// SynthesisResult is the first image the model produced, plus any text it
// returned alongside.
type SynthesisResult struct {
	Data     []byte
	MIMEType string
	Text     string
}

// PublishedAsset is a stored thumbnail. It is created once and never changed.
type PublishedAsset struct {
	URL        string
	StorageKey string
	MIMEType   string
	SizeBytes  int
	CreatedAt  time.Time
}

// Asset sources recorded in the ledger.
const (
	SourceGenerate = "generate"
	SourceFollowUp = "follow-up"
)

// AssetRecord is the ledger entry written after a successful publish.
type AssetRecord struct {
	AssetKey  string    `dynamodbav:"assetKey"`
	URL       string    `dynamodbav:"url"`
	MIMEType  string    `dynamodbav:"mimeType"`
	SizeBytes int       `dynamodbav:"sizeBytes"`
	Source    string    `dynamodbav:"source"`
	ParentURL string    `dynamodbav:"parentUrl,omitempty"`
	Category  string    `dynamodbav:"category,omitempty"`
	RequestID string    `dynamodbav:"requestId,omitempty"`
	CreatedAt time.Time `dynamodbav:"createdAt"`
}

// TextCompleter turns a system instruction plus user content into text.
type TextCompleter interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// ImageModel performs one multi-modal synthesis call. A nil result with a nil
// error means the model answered with text only.
type ImageModel interface {
	GenerateImage(ctx context.Context, system string, parts []Part) (*SynthesisResult, error)
}

// AssetPublisher stores image bytes durably and returns a public reference.
type AssetPublisher interface {
	Publish(ctx context.Context, data []byte, mimeType string) (*PublishedAsset, error)
}

// AssetFetcher downloads a previously published asset.
type AssetFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*Image, error)
}

// AssetRecorder persists ledger rows for published assets.
type AssetRecorder interface {
	RecordAsset(ctx context.Context, rec *AssetRecord) error
}

// Attachment is an image handed to the synthesizer together with its
// one-line description.
type Attachment struct {
	Role        Role
	Index       int // icon position, zero-based
	Image       Image
	Description string
}

// Label is the contextual text that follows the attachment's image part.
func (a Attachment) Label() string {
	desc := strings.TrimSpace(a.Description)
	switch a.Role {
	case RoleBackground:
		if desc == "" {
			desc = DefaultBackgroundDescription
		}
		return "Background image: " + desc
	case RoleMajor:
		if desc == "" {
			desc = DefaultMajorDescription
		}
		return "Major image: " + desc
	case RoleIcon:
		if desc == "" {
			desc = DefaultIconDescription
		}
		return fmt.Sprintf("Icon image %d: %s", a.Index+1, desc)
	default:
		if desc == "" {
			desc = "Previously generated thumbnail"
		}
		return "Previous thumbnail: " + desc
	}
}
