package kv

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Attribute names of the coordination table. The table's partition key is "pk" (S) and
// "expiresAt" should be enabled as its TTL attribute.
const (
	attrKey       = "pk"
	attrValue     = "val"
	attrExpiresAt = "expiresAt"
)

// DynamoAPI is the subset of the DynamoDB client used by DynamoStore.
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// DynamoStore implements Store on one DynamoDB table.
//
// DynamoDB deletes expired items lazily, so every read also filters on expiresAt.
// PutIfAbsent is a conditional PutItem, which DynamoDB evaluates atomically per item.
type DynamoStore struct {
	client    DynamoAPI
	tableName string
	now       func() time.Time
}

var _ Store = (*DynamoStore)(nil)

type dynamoItem struct {
	Key       string `dynamodbav:"pk"`
	Value     string `dynamodbav:"val"`
	ExpiresAt int64  `dynamodbav:"expiresAt,omitempty"`
}

func (i dynamoItem) live(now time.Time) bool {
	return i.ExpiresAt == 0 || now.Unix() < i.ExpiresAt
}

// NewDynamoStore creates a DynamoStore for the given table.
func NewDynamoStore(client DynamoAPI, tableName string) *DynamoStore {
	return &DynamoStore{
		client:    client,
		tableName: tableName,
		now:       time.Now,
	}
}

func (s *DynamoStore) item(key string, value string, ttl time.Duration) (map[string]types.AttributeValue, error) {
	record := dynamoItem{Key: key, Value: value}
	if expiresAt := expiry(s.now(), ttl); !expiresAt.IsZero() {
		record.ExpiresAt = expiresAt.Unix()
	}

	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return nil, fmt.Errorf("marshal %q: %w", key, err)
	}
	return item, nil
}

func keyAttribute(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrKey: &types.AttributeValueMemberS{Value: key},
	}
}

func (s *DynamoStore) Put(ctx context.Context, key string, value string, ttl time.Duration) error {
	item, err := s.item(key, value, ttl)
	if err != nil {
		return err
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("PutItem %s: %w", key, err)
	}
	return nil
}

func (s *DynamoStore) PutIfAbsent(ctx context.Context, key string, value string, ttl time.Duration) (bool, error) {
	item, err := s.item(key, value, ttl)
	if err != nil {
		return false, err
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(#k) OR (#e > :zero AND #e <= :now)"),
		ExpressionAttributeNames: map[string]string{
			"#k": attrKey,
			"#e": attrExpiresAt,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":zero": &types.AttributeValueMemberN{Value: "0"},
			":now":  &types.AttributeValueMemberN{Value: strconv.FormatInt(s.now().Unix(), 10)},
		},
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return false, nil
		}
		return false, fmt.Errorf("conditional PutItem %s: %w", key, err)
	}
	return true, nil
}

func (s *DynamoStore) Get(ctx context.Context, key string) (string, bool, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      &s.tableName,
		Key:            keyAttribute(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return "", false, fmt.Errorf("GetItem %s: %w", key, err)
	}
	if result.Item == nil {
		return "", false, nil
	}

	var record dynamoItem
	if err := attributevalue.UnmarshalMap(result.Item, &record); err != nil {
		return "", false, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	if !record.live(s.now()) {
		return "", false, nil
	}

	return record.Value, true, nil
}

func (s *DynamoStore) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: &s.tableName,
		Key:       keyAttribute(key),
	})
	if err != nil {
		return fmt.Errorf("DeleteItem %s: %w", key, err)
	}
	return nil
}

// List scans one page of the table. A page can be empty while Complete is false because
// DynamoDB applies the filter after the scan limit.
func (s *DynamoStore) List(ctx context.Context, opts ListOptions) (Page, error) {
	input := &dynamodb.ScanInput{
		TableName:        &s.tableName,
		ConsistentRead:   aws.Bool(true),
		Limit:            aws.Int32(int32(opts.limit())),
		FilterExpression: aws.String("begins_with(#k, :prefix) AND (attribute_not_exists(#e) OR #e = :zero OR #e > :now)"),
		ExpressionAttributeNames: map[string]string{
			"#k": attrKey,
			"#e": attrExpiresAt,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":prefix": &types.AttributeValueMemberS{Value: opts.Prefix},
			":zero":   &types.AttributeValueMemberN{Value: "0"},
			":now":    &types.AttributeValueMemberN{Value: strconv.FormatInt(s.now().Unix(), 10)},
		},
	}
	if opts.Cursor != "" {
		input.ExclusiveStartKey = keyAttribute(opts.Cursor)
	}

	result, err := s.client.Scan(ctx, input)
	if err != nil {
		return Page{}, fmt.Errorf("Scan prefix=%s: %w", opts.Prefix, err)
	}

	var records []dynamoItem
	if err := attributevalue.UnmarshalListOfMaps(result.Items, &records); err != nil {
		return Page{}, fmt.Errorf("unmarshal scan page: %w", err)
	}

	page := Page{Keys: make([]string, 0, len(records)), Complete: true}
	for _, record := range records {
		page.Keys = append(page.Keys, record.Key)
	}

	if len(result.LastEvaluatedKey) > 0 {
		if last, ok := result.LastEvaluatedKey[attrKey].(*types.AttributeValueMemberS); ok {
			page.Cursor = last.Value
			page.Complete = false
		}
	}

	return page, nil
}

func (s *DynamoStore) Ping(ctx context.Context) error {
	if _, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: &s.tableName}); err != nil {
		return fmt.Errorf("DescribeTable %s: %w", s.tableName, err)
	}
	return nil
}
