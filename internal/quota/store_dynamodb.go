package quota

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"carvalue-api/internal/model"
)

// dynamodbAPI is the minimal DynamoDB interface required by DynamoDBStore.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// DynamoDBStore keeps one item per identity, keyed by PK = "QUOTA#<identity>".
// Items carry a ttl attribute so the table's TTL setting can reap old records.
type DynamoDBStore struct {
	api       dynamodbAPI
	tableName string
	now       func() time.Time
}

var _ Store = (*DynamoDBStore)(nil)

// NewDynamoDBStore creates a store over an existing table.
func NewDynamoDBStore(api dynamodbAPI, tableName string) (*DynamoDBStore, error) {
	if api == nil {
		return nil, errors.New("quota: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("quota: table name must not be empty")
	}
	return &DynamoDBStore{api: api, tableName: tableName, now: time.Now}, nil
}

func quotaPK(identity string) string {
	return "QUOTA#" + identity
}

func (s *DynamoDBStore) Get(ctx context.Context, identity string) (model.QuotaRecord, bool, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: quotaPK(identity)},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return model.QuotaRecord{}, false, fmt.Errorf("quota: get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return model.QuotaRecord{}, false, nil
	}

	day, err := strAttr(out.Item, "day")
	if err != nil {
		return model.QuotaRecord{}, false, err
	}
	used, err := intAttr(out.Item, "used")
	if err != nil {
		return model.QuotaRecord{}, false, err
	}
	return model.QuotaRecord{Identity: identity, Day: model.Day(day), Used: used}, true, nil
}

func (s *DynamoDBStore) Put(ctx context.Context, rec model.QuotaRecord) error {
	_, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item: map[string]types.AttributeValue{
			"PK":       &types.AttributeValueMemberS{Value: quotaPK(rec.Identity)},
			"identity": &types.AttributeValueMemberS{Value: rec.Identity},
			"day":      &types.AttributeValueMemberS{Value: string(rec.Day)},
			"used":     &types.AttributeValueMemberN{Value: strconv.Itoa(rec.Used)},
			"ttl":      &types.AttributeValueMemberN{Value: strconv.FormatInt(s.now().Add(recordTTL).Unix(), 10)},
		},
	})
	if err != nil {
		return fmt.Errorf("quota: put item: %w", err)
	}
	return nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("quota: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("quota: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func intAttr(item map[string]types.AttributeValue, key string) (int, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("quota: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("quota: attribute %q is not a number", key)
	}
	parsed, err := strconv.Atoi(n.Value)
	if err != nil {
		return 0, fmt.Errorf("quota: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}
