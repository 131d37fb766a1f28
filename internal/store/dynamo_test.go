package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fpang/thumbnail-studio/internal/thumbnail"
)

// fakeDynamo keeps items in memory keyed by PK.
type fakeDynamo struct {
	items  map[string]map[string]types.AttributeValue
	puts   []*dynamodb.PutItemInput
	putErr error
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: map[string]map[string]types.AttributeValue{}}
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.puts = append(f.puts, in)
	if f.putErr != nil {
		return nil, f.putErr
	}
	pk := in.Item["PK"].(*types.AttributeValueMemberS).Value
	f.items[pk] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	pk := in.Key["PK"].(*types.AttributeValueMemberS).Value
	return &dynamodb.GetItemOutput{Item: f.items[pk]}, nil
}

func sampleRecord() *thumbnail.AssetRecord {
	return &thumbnail.AssetRecord{
		AssetKey:  "generated-images/generated-image-x.png",
		URL:       "https://cdn.example.com/generated-images/generated-image-x.png",
		MIMEType:  "image/png",
		SizeBytes: 1234,
		Source:    thumbnail.SourceGenerate,
		Category:  "Gaming",
		RequestID: "req-1",
		CreatedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestDynamoLedger_RecordAndGet(t *testing.T) {
	db := newFakeDynamo()
	ledger := NewDynamoLedger(db, "assets", 0)

	rec := sampleRecord()
	require.NoError(t, ledger.RecordAsset(context.Background(), rec))

	require.Len(t, db.puts, 1)
	put := db.puts[0]
	assert.Equal(t, "assets", *put.TableName)
	assert.Equal(t, "attribute_not_exists(PK)", *put.ConditionExpression)
	assert.Equal(t, "ASSET#"+rec.AssetKey, put.Item["PK"].(*types.AttributeValueMemberS).Value)
	assert.Equal(t, "META", put.Item["SK"].(*types.AttributeValueMemberS).Value)
	assert.NotContains(t, put.Item, "expiresAt")
	assert.NotContains(t, put.Item, "parentUrl", "empty parent is omitted")

	got, err := ledger.GetAsset(context.Background(), rec.AssetKey)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec.URL, got.URL)
	assert.Equal(t, rec.SizeBytes, got.SizeBytes)
	assert.Equal(t, rec.Category, got.Category)
	assert.True(t, rec.CreatedAt.Equal(got.CreatedAt))
}

func TestDynamoLedger_Retention(t *testing.T) {
	db := newFakeDynamo()
	ledger := NewDynamoLedger(db, "assets", 24*time.Hour)

	rec := sampleRecord()
	require.NoError(t, ledger.RecordAsset(context.Background(), rec))

	exp := db.puts[0].Item["expiresAt"].(*types.AttributeValueMemberN).Value
	assert.Equal(t, "1714651200", exp)
}

func TestDynamoLedger_Errors(t *testing.T) {
	db := newFakeDynamo()
	ledger := NewDynamoLedger(db, "assets", 0)

	assert.Error(t, ledger.RecordAsset(context.Background(), nil))
	assert.Error(t, ledger.RecordAsset(context.Background(), &thumbnail.AssetRecord{}))

	db.putErr = errors.New("ConditionalCheckFailedException")
	err := ledger.RecordAsset(context.Background(), sampleRecord())
	assert.ErrorContains(t, err, "ConditionalCheckFailedException")

	got, err := ledger.GetAsset(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Nil(t, got)
}
