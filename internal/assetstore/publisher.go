package assetstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fpang/thumbnail-studio/internal/s3util"
	"github.com/fpang/thumbnail-studio/internal/thumbnail"
)

// DefaultKeyPrefix is the folder every generated thumbnail is written under.
const DefaultKeyPrefix = "generated-images"

// Publisher uploads synthesized images and returns their public URLs.
type Publisher struct {
	client  s3util.ObjectWriter
	locator Locator
	prefix  string
	now     func() time.Time
	newID   func() string
}

// NewPublisher creates a publisher writing to locator.Bucket. An empty prefix
// uses DefaultKeyPrefix.
func NewPublisher(client s3util.ObjectWriter, locator Locator, prefix string) *Publisher {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Publisher{
		client:  client,
		locator: locator,
		prefix:  prefix,
		now:     time.Now,
		newID:   func() string { return uuid.NewString()[:8] },
	}
}

// Publish stores data under a fresh key. Keys are never reused.
func (p *Publisher) Publish(ctx context.Context, data []byte, mimeType string) (*thumbnail.PublishedAsset, error) {
	if mimeType == "" {
		mimeType = "image/png"
	}
	createdAt := p.now().UTC()
	key := p.keyFor(createdAt, mimeType)

	start := time.Now()
	if err := s3util.UploadBytes(ctx, p.client, p.locator.Bucket, key, data, mimeType); err != nil {
		return nil, err
	}

	asset := &thumbnail.PublishedAsset{
		URL:        p.locator.URLFor(key),
		StorageKey: key,
		MIMEType:   mimeType,
		SizeBytes:  len(data),
		CreatedAt:  createdAt,
	}
	log.Info().
		Str("key", key).
		Str("url", asset.URL).
		Int("bytes", len(data)).
		Dur("duration", time.Since(start)).
		Msg("Thumbnail uploaded")
	return asset, nil
}

// keyFor builds generated-images/generated-image-<ts>-<id>.<ext>, with ':'
// and '.' in the ISO timestamp replaced by '-'.
func (p *Publisher) keyFor(t time.Time, mimeType string) string {
	ts := t.Format("2006-01-02T15:04:05.000Z")
	ts = strings.NewReplacer(":", "-", ".", "-").Replace(ts)
	return fmt.Sprintf("%s/generated-image-%s-%s%s", p.prefix, ts, p.newID(), ExtensionFor(mimeType))
}

// ExtensionFor maps an image MIME type to a file extension, defaulting to .png.
func ExtensionFor(mimeType string) string {
	mimeType = strings.ToLower(mimeType)
	switch {
	case strings.Contains(mimeType, "jpeg"), strings.Contains(mimeType, "jpg"):
		return ".jpg"
	case strings.Contains(mimeType, "webp"):
		return ".webp"
	case strings.Contains(mimeType, "gif"):
		return ".gif"
	default:
		return ".png"
	}
}
