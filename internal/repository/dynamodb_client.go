package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	pkPrefixSession = "SESSION#"
	skLog           = "LOG#"
)

// dynamodbAPI is the minimal DynamoDB interface required by DynamoStore.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// DynamoStore keeps one item per session key. The ttl attribute lets the
// table's TTL sweeper drop sessions nobody reads again; the digest attribute
// lets CompareAndSet condition a write on the payload it replaces.
type DynamoStore struct {
	api       dynamodbAPI
	tableName string
	ttl       time.Duration
	now       func() time.Time
}

// NewDynamoStore creates a DynamoStore over tableName.
func NewDynamoStore(api dynamodbAPI, tableName string, ttl time.Duration) (*DynamoStore, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &DynamoStore{api: api, tableName: tableName, ttl: ttl, now: time.Now}, nil
}

// sessionPK returns the partition key for a session record.
func sessionPK(key string) string {
	return pkPrefixSession + key
}

func (d *DynamoStore) itemKey(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: sessionPK(key)},
		"SK": &types.AttributeValueMemberS{Value: skLog},
	}
}

// Get reads the session payload with a consistent read.
func (d *DynamoStore) Get(ctx context.Context, key string) (string, bool, error) {
	out, err := d.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(d.tableName),
		Key:            d.itemKey(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return "", false, fmt.Errorf("repository: DynamoStore get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return "", false, nil
	}
	payload, err := strAttr(out.Item, "payload")
	if err != nil {
		return "", false, fmt.Errorf("repository: DynamoStore decode payload: %w", err)
	}
	return payload, true, nil
}

// Set overwrites the session payload and refreshes its TTL.
func (d *DynamoStore) Set(ctx context.Context, key, value string) error {
	_, err := d.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.tableName),
		Item:      d.sessionItem(key, value),
	})
	if err != nil {
		return fmt.Errorf("repository: DynamoStore put item: %w", err)
	}
	return nil
}

// CompareAndSet conditions the put on the item being absent or on its digest
// matching prev.
func (d *DynamoStore) CompareAndSet(ctx context.Context, key string, prev *string, value string) error {
	in := &dynamodb.PutItemInput{
		TableName: aws.String(d.tableName),
		Item:      d.sessionItem(key, value),
	}
	if prev == nil {
		in.ConditionExpression = aws.String("attribute_not_exists(PK)")
	} else {
		in.ConditionExpression = aws.String("digest = :prev")
		in.ExpressionAttributeValues = map[string]types.AttributeValue{
			":prev": &types.AttributeValueMemberS{Value: digest(*prev)},
		}
	}
	_, err := d.api.PutItem(ctx, in)
	var conflict *types.ConditionalCheckFailedException
	if errors.As(err, &conflict) {
		return ErrStale
	}
	if err != nil {
		return fmt.Errorf("repository: DynamoStore conditional put item: %w", err)
	}
	return nil
}

func (d *DynamoStore) Delete(ctx context.Context, key string) error {
	_, err := d.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(d.tableName),
		Key:       d.itemKey(key),
	})
	if err != nil {
		return fmt.Errorf("repository: DynamoStore delete item: %w", err)
	}
	return nil
}

func (d *DynamoStore) sessionItem(key, value string) map[string]types.AttributeValue {
	now := d.now().UTC()
	item := d.itemKey(key)
	item["payload"] = &types.AttributeValueMemberS{Value: value}
	item["digest"] = &types.AttributeValueMemberS{Value: digest(value)}
	item["updatedAt"] = &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)}
	if d.ttl > 0 {
		item["ttl"] = &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", now.Add(d.ttl).Unix())}
	}
	return item
}

func digest(payload string) string {
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}
