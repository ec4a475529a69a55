package storage

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohasinmudassar/Automated-AWS-Cost-Optimization-System/types"
)

type fakeDynamo struct {
	items    map[string]map[string]ddbtypes.AttributeValue
	putErr   error
	lastPut  *dynamodb.PutItemInput
	lastScan *dynamodb.ScanInput
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: make(map[string]map[string]ddbtypes.AttributeValue)}
}

func (f *fakeDynamo) GetItem(_ context.Context, params *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	key := params.Key["resource_id"].(*ddbtypes.AttributeValueMemberS).Value
	item, ok := f.items[key]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: item}, nil
}

func (f *fakeDynamo) PutItem(_ context.Context, params *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.lastPut = params
	if f.putErr != nil {
		return nil, f.putErr
	}
	key := params.Item["resource_id"].(*ddbtypes.AttributeValueMemberS).Value
	f.items[key] = params.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) Scan(_ context.Context, params *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.lastScan = params
	var items []map[string]ddbtypes.AttributeValue
	for _, item := range f.items {
		items = append(items, item)
	}
	return &dynamodb.ScanOutput{Items: items}, nil
}

func TestDynamoStoreGetNotFound(t *testing.T) {
	store := NewDynamoStore(newFakeDynamo(), "records")

	_, err := store.Get(context.Background(), "i-missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDynamoStoreRoundTrip(t *testing.T) {
	store := NewDynamoStore(newFakeDynamo(), "records")
	ctx := context.Background()

	rec := testRecord("i-0abc")
	require.NoError(t, store.ConditionalPut(ctx, rec, 0))

	got, err := store.Get(ctx, "i-0abc")
	require.NoError(t, err)
	assert.Equal(t, "i-0abc", got.ID)
	assert.Equal(t, int64(1), got.Version)
	assert.Equal(t, rec.Owner, got.Owner)
}

func TestDynamoStoreConditionExpressions(t *testing.T) {
	fake := newFakeDynamo()
	store := NewDynamoStore(fake, "records")
	ctx := context.Background()

	require.NoError(t, store.ConditionalPut(ctx, testRecord("i-0abc"), 0))
	require.NotNil(t, fake.lastPut.ConditionExpression)
	assert.Equal(t, "attribute_not_exists(resource_id)", aws.ToString(fake.lastPut.ConditionExpression))

	require.NoError(t, store.ConditionalPut(ctx, testRecord("i-0abc"), 1))
	assert.Equal(t, "version = :expected", aws.ToString(fake.lastPut.ConditionExpression))
	expected := fake.lastPut.ExpressionAttributeValues[":expected"].(*ddbtypes.AttributeValueMemberN)
	assert.Equal(t, "1", expected.Value)
}

func TestDynamoStoreMapsConditionFailure(t *testing.T) {
	fake := newFakeDynamo()
	fake.putErr = &ddbtypes.ConditionalCheckFailedException{Message: aws.String("conditional check failed")}
	store := NewDynamoStore(fake, "records")

	err := store.ConditionalPut(context.Background(), testRecord("i-0abc"), 3)
	assert.ErrorIs(t, err, ErrVersionConflict)
}

func TestDynamoStoreListDueDeletions(t *testing.T) {
	fake := newFakeDynamo()

	// Whole-second deadline, fractional-second now: RFC3339Nano renders
	// these at different widths ("...00Z" vs "...00.5Z"), so a string
	// comparison in the filter expression would miss the due record.
	now := time.Date(2025, 6, 8, 12, 0, 0, 500_000_000, time.UTC)
	dueAt := time.Date(2025, 6, 8, 12, 0, 0, 0, time.UTC)

	due := testRecord("i-due")
	due.State = types.StatePendingDeletion
	due.ScheduledDeletionAt = &dueAt

	future := testRecord("i-future")
	futureAt := now.Add(24 * time.Hour)
	future.State = types.StatePendingDeletion
	future.ScheduledDeletionAt = &futureAt

	flagged := testRecord("i-flagged")
	flagged.State = types.StateFlagged

	for _, rec := range []types.ResourceRecord{due, future, flagged} {
		item, err := attributevalue.MarshalMap(rec)
		require.NoError(t, err)
		fake.items[rec.ID] = item
	}

	store := NewDynamoStore(fake, "records")
	got, err := store.ListDueDeletions(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "i-due", got[0].ID)

	// The deadline check happens on the decoded timestamp, never in the
	// filter expression.
	require.NotNil(t, fake.lastScan.FilterExpression)
	assert.NotContains(t, aws.ToString(fake.lastScan.FilterExpression), "scheduled_deletion_at")
}

func TestDynamoStoreListRecords(t *testing.T) {
	fake := newFakeDynamo()
	for _, id := range []string{"i-a", "i-b"} {
		item, err := attributevalue.MarshalMap(testRecord(id))
		require.NoError(t, err)
		fake.items[id] = item
	}
	store := NewDynamoStore(fake, "records")

	records, err := store.ListRecords(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 2)
}
