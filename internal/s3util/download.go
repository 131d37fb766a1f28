// Package s3util provides the small S3 helpers shared by the asset publisher
// and the follow-up fetcher.
package s3util

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// ErrObjectTooLarge is returned when an object exceeds the caller's byte cap.
var ErrObjectTooLarge = errors.New("object exceeds size limit")

// ObjectReader is the GetObject subset of *s3.Client.
type ObjectReader interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// ReadObject downloads an object into memory, refusing anything larger than
// maxBytes. It returns the data and the stored content type.
func ReadObject(ctx context.Context, client ObjectReader, bucket, key string, maxBytes int64) ([]byte, string, error) {
	log.Debug().Str("bucket", bucket).Str("key", key).Msg("Downloading from S3")
	result, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &bucket, Key: &key,
	})
	if err != nil {
		return nil, "", fmt.Errorf("S3 GetObject %s: %w", key, err)
	}
	defer result.Body.Close()

	if result.ContentLength != nil && *result.ContentLength > maxBytes {
		return nil, "", fmt.Errorf("%w: %d bytes", ErrObjectTooLarge, *result.ContentLength)
	}
	data, err := io.ReadAll(io.LimitReader(result.Body, maxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", key, err)
	}
	if int64(len(data)) > maxBytes {
		return nil, "", ErrObjectTooLarge
	}

	contentType := ""
	if result.ContentType != nil {
		contentType = *result.ContentType
	}
	return data, contentType, nil
}
