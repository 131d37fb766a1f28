package s3util

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// ObjectWriter is the PutObject subset of *s3.Client.
type ObjectWriter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// generatedCacheControl marks published objects immutable; keys are never reused.
const generatedCacheControl = "public, max-age=31536000, immutable"

// UploadBytes stores data under key with the given content type and the
// project cost-allocation tag.
func UploadBytes(ctx context.Context, client ObjectWriter, bucket, key string, data []byte, contentType string) error {
	log.Debug().
		Str("bucket", bucket).
		Str("key", key).
		Int("bytes", len(data)).
		Str("content_type", contentType).
		Msg("Uploading object to S3")

	_, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        &bucket,
		Key:           &key,
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   &contentType,
		CacheControl:  aws.String(generatedCacheControl),
		Tagging:       ProjectTagging(),
	})
	if err != nil {
		return fmt.Errorf("S3 PutObject %s: %w", key, err)
	}
	return nil
}
