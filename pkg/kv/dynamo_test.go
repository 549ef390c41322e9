package kv

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDynamo struct {
	putErr  error
	lastPut *dynamodb.PutItemInput
	getOut  *dynamodb.GetItemOutput
	scanOut *dynamodb.ScanOutput
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.lastPut = in
	if f.putErr != nil {
		return nil, f.putErr
	}
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if f.getOut == nil {
		return &dynamodb.GetItemOutput{}, nil
	}
	return f.getOut, nil
}

func (f *fakeDynamo) DeleteItem(context.Context, *dynamodb.DeleteItemInput, ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeDynamo) Scan(context.Context, *dynamodb.ScanInput, ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	return f.scanOut, nil
}

func (f *fakeDynamo) DescribeTable(context.Context, *dynamodb.DescribeTableInput, ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	return &dynamodb.DescribeTableOutput{}, nil
}

func TestDynamoPutIfAbsentConditionFailed(t *testing.T) {
	client := &fakeDynamo{putErr: &types.ConditionalCheckFailedException{}}
	store := NewDynamoStore(client, "relay")

	claimed, err := store.PutIfAbsent(context.Background(), "batch:g:panel", "1", time.Hour)
	require.NoError(t, err)
	assert.False(t, claimed)
	require.NotNil(t, client.lastPut.ConditionExpression)
	assert.Contains(t, *client.lastPut.ConditionExpression, "attribute_not_exists")
}

func TestDynamoPutIfAbsentPropagatesErrors(t *testing.T) {
	store := NewDynamoStore(&fakeDynamo{putErr: errors.New("throttled")}, "relay")

	_, err := store.PutIfAbsent(context.Background(), "k", "v", time.Hour)
	require.Error(t, err)
}

func TestDynamoPutSetsExpiry(t *testing.T) {
	client := &fakeDynamo{}
	store := NewDynamoStore(client, "relay")
	store.now = func() time.Time { return time.Unix(1000, 0) }

	require.NoError(t, store.Put(context.Background(), "k", "v", time.Minute))

	expires, ok := client.lastPut.Item[attrExpiresAt].(*types.AttributeValueMemberN)
	require.True(t, ok)
	assert.Equal(t, "1060", expires.Value)
}

func TestDynamoGetFiltersExpired(t *testing.T) {
	client := &fakeDynamo{getOut: &dynamodb.GetItemOutput{Item: map[string]types.AttributeValue{
		attrKey:       &types.AttributeValueMemberS{Value: "k"},
		attrValue:     &types.AttributeValueMemberS{Value: "v"},
		attrExpiresAt: &types.AttributeValueMemberN{Value: "999"},
	}}}
	store := NewDynamoStore(client, "relay")
	store.now = func() time.Time { return time.Unix(1000, 0) }

	_, ok, err := store.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDynamoListCursor(t *testing.T) {
	client := &fakeDynamo{scanOut: &dynamodb.ScanOutput{
		Items: []map[string]types.AttributeValue{
			{attrKey: &types.AttributeValueMemberS{Value: "batch:g:file:01"}, attrValue: &types.AttributeValueMemberS{Value: "{}"}},
		},
		LastEvaluatedKey: map[string]types.AttributeValue{
			attrKey: &types.AttributeValueMemberS{Value: "batch:g:file:01"},
		},
	}}
	store := NewDynamoStore(client, "relay")

	page, err := store.List(context.Background(), ListOptions{Prefix: "batch:g:"})
	require.NoError(t, err)
	assert.Equal(t, []string{"batch:g:file:01"}, page.Keys)
	assert.False(t, page.Complete)
	assert.Equal(t, "batch:g:file:01", page.Cursor)
}
