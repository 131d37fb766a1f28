// Package store keeps the asset ledger: one DynamoDB row per published
// thumbnail, recording where it lives and what produced it.
//
// The table uses a single-table layout with partition key ASSET#{key} and
// sort key META. An optional TTL attribute (expiresAt) lets old rows age out
// together with an S3 lifecycle rule on the asset bucket.
package store

import (
	"context"

	"github.com/fpang/thumbnail-studio/internal/thumbnail"
)

// AssetLedger records and looks up published thumbnails.
//
// GetAsset returns (nil, nil) when the key is unknown.
type AssetLedger interface {
	RecordAsset(ctx context.Context, rec *thumbnail.AssetRecord) error
	GetAsset(ctx context.Context, key string) (*thumbnail.AssetRecord, error)
}
