package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"

	"github.com/fpang/thumbnail-studio/internal/thumbnail"
)

// DynamoDB key constants for the single-table design.
const (
	pkPrefix = "ASSET#"
	skMeta   = "META"
)

// DynamoAPI is the subset of *dynamodb.Client the ledger uses.
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// DynamoLedger implements AssetLedger using AWS DynamoDB.
type DynamoLedger struct {
	client    DynamoAPI
	tableName string
	retention time.Duration
}

// Compile-time interface checks.
var (
	_ AssetLedger             = (*DynamoLedger)(nil)
	_ thumbnail.AssetRecorder = (*DynamoLedger)(nil)
)

// NewDynamoLedger creates a ledger for the given table. retention <= 0 keeps
// rows forever.
func NewDynamoLedger(client DynamoAPI, tableName string, retention time.Duration) *DynamoLedger {
	return &DynamoLedger{
		client:    client,
		tableName: tableName,
		retention: retention,
	}
}

func assetPK(key string) string {
	return pkPrefix + key
}

// RecordAsset writes the ledger row for a published asset. Keys are unique,
// so a conditional put guards against accidental overwrites.
func (l *DynamoLedger) RecordAsset(ctx context.Context, rec *thumbnail.AssetRecord) error {
	if rec == nil || rec.AssetKey == "" {
		return errors.New("asset record requires a key")
	}
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	pk := assetPK(rec.AssetKey)
	item["PK"] = &types.AttributeValueMemberS{Value: pk}
	item["SK"] = &types.AttributeValueMemberS{Value: skMeta}
	if l.retention > 0 {
		exp := rec.CreatedAt.Add(l.retention).Unix()
		item["expiresAt"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(exp, 10)}
	}

	_, err = l.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           &l.tableName,
		Item:                item,
		ConditionExpression: stringPtr("attribute_not_exists(PK)"),
	})
	if err != nil {
		return fmt.Errorf("PutItem PK=%s SK=%s: %w", pk, skMeta, err)
	}

	log.Debug().
		Str("key", rec.AssetKey).
		Str("source", rec.Source).
		Msg("Asset recorded in ledger")
	return nil
}

// GetAsset reads the ledger row for key.
func (l *DynamoLedger) GetAsset(ctx context.Context, key string) (*thumbnail.AssetRecord, error) {
	pk := assetPK(key)
	result, err := l.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &l.tableName,
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: pk},
			"SK": &types.AttributeValueMemberS{Value: skMeta},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("GetItem PK=%s SK=%s: %w", pk, skMeta, err)
	}
	if result.Item == nil {
		return nil, nil
	}
	var rec thumbnail.AssetRecord
	if err := attributevalue.UnmarshalMap(result.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal PK=%s SK=%s: %w", pk, skMeta, err)
	}
	return &rec, nil
}

func stringPtr(s string) *string { return &s }
