package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/mohasinmudassar/Automated-AWS-Cost-Optimization-System/types"
)

// DynamoAPI is the slice of the DynamoDB client the store needs.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoStore is the production record store: one item per resource, keyed
// by resource_id, with conditional writes on the version attribute.
type DynamoStore struct {
	client DynamoAPI
	table  string
}

// NewDynamoStore creates a store over an existing DynamoDB table.
func NewDynamoStore(client DynamoAPI, table string) *DynamoStore {
	return &DynamoStore{client: client, table: table}
}

// Close is a no-op; the SDK client owns no local resources.
func (s *DynamoStore) Close() error { return nil }

// Get returns the record for a resource ID, or ErrNotFound.
func (s *DynamoStore) Get(ctx context.Context, resourceID string) (types.ResourceRecord, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		ConsistentRead: aws.Bool(true),
		Key: map[string]ddbtypes.AttributeValue{
			"resource_id": &ddbtypes.AttributeValueMemberS{Value: resourceID},
		},
	})
	if err != nil {
		return types.ResourceRecord{}, fmt.Errorf("failed to get record %s: %w", resourceID, err)
	}
	if out.Item == nil {
		return types.ResourceRecord{}, ErrNotFound
	}

	var record types.ResourceRecord
	if err := attributevalue.UnmarshalMap(out.Item, &record); err != nil {
		return types.ResourceRecord{}, fmt.Errorf("failed to decode record %s: %w", resourceID, err)
	}
	return record, nil
}

// ConditionalPut writes the record iff the stored version equals
// expectedVersion, using a DynamoDB condition expression as the atomic
// compare-and-swap.
func (s *DynamoStore) ConditionalPut(ctx context.Context, record types.ResourceRecord, expectedVersion int64) error {
	record.Version = expectedVersion + 1

	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record %s: %w", record.ID, err)
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	}

	if expectedVersion == 0 {
		input.ConditionExpression = aws.String("attribute_not_exists(resource_id)")
	} else {
		input.ConditionExpression = aws.String("version = :expected")
		input.ExpressionAttributeValues = map[string]ddbtypes.AttributeValue{
			":expected": &ddbtypes.AttributeValueMemberN{Value: fmt.Sprintf("%d", expectedVersion)},
		}
	}

	if _, err := s.client.PutItem(ctx, input); err != nil {
		var conditionFailed *ddbtypes.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return ErrVersionConflict
		}
		return fmt.Errorf("failed to put record %s: %w", record.ID, err)
	}
	return nil
}

// ListDueDeletions scans for PendingDeletion records due at or before now.
// The filter narrows on state only: scheduled_deletion_at is stored as
// RFC3339Nano, whose variable-width fractional seconds do not sort
// lexicographically, so the deadline is compared on the decoded timestamp.
func (s *DynamoStore) ListDueDeletions(ctx context.Context, now time.Time) ([]types.ResourceRecord, error) {
	pending, err := s.scan(ctx, &dynamodb.ScanInput{
		TableName:        aws.String(s.table),
		FilterExpression: aws.String("#state = :pending"),
		ExpressionAttributeNames: map[string]string{
			"#state": "state",
		},
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":pending": &ddbtypes.AttributeValueMemberS{Value: string(types.StatePendingDeletion)},
		},
	})
	if err != nil {
		return nil, err
	}

	var due []types.ResourceRecord
	for _, rec := range pending {
		if rec.DueForDeletion(now) {
			due = append(due, rec)
		}
	}
	return due, nil
}

// ListRecords returns every stored record.
func (s *DynamoStore) ListRecords(ctx context.Context) ([]types.ResourceRecord, error) {
	return s.scan(ctx, &dynamodb.ScanInput{
		TableName: aws.String(s.table),
	})
}

func (s *DynamoStore) scan(ctx context.Context, input *dynamodb.ScanInput) ([]types.ResourceRecord, error) {
	var records []types.ResourceRecord

	paginator := dynamodb.NewScanPaginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to scan records: %w", err)
		}

		var batch []types.ResourceRecord
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("failed to decode records: %w", err)
		}
		records = append(records, batch...)
	}
	return records, nil
}
