package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoAPI is the subset of the DynamoDB client the ledger uses.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

type dynamoEntry struct {
	DedupKey  string `dynamodbav:"dedup_key"`
	Channel   string `dynamodbav:"channel"`
	FiredAt   string `dynamodbav:"fired_at"`
	ExpiresAt int64  `dynamodbav:"expires_at,omitempty"`
}

// DynamoLedger stores one item per "<channel>#<key>" partition key. expires_at
// is meant for the table's TTL setting; reads also honor it because DynamoDB
// deletes expired items lazily.
type DynamoLedger struct {
	client  DynamoAPI
	table   string
	channel Channel
	ttl     time.Duration
	now     func() time.Time
}

func NewDynamoLedger(client DynamoAPI, table string, channel Channel, ttl time.Duration) *DynamoLedger {
	return &DynamoLedger{client: client, table: table, channel: channel, ttl: ttl, now: time.Now}
}

func (l *DynamoLedger) pk(key string) string {
	return string(l.channel) + "#" + key
}

func (l *DynamoLedger) HasFired(ctx context.Context, key string) (bool, error) {
	if l.client == nil {
		return false, ErrNilBackend
	}
	out, err := l.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(l.table),
		Key:            map[string]types.AttributeValue{"dedup_key": &types.AttributeValueMemberS{Value: l.pk(key)}},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return false, fmt.Errorf("dynamo ledger get: %w", err)
	}
	if len(out.Item) == 0 {
		return false, nil
	}
	var entry dynamoEntry
	if err := attributevalue.UnmarshalMap(out.Item, &entry); err != nil {
		return false, fmt.Errorf("dynamo ledger decode: %w", err)
	}
	if entry.ExpiresAt > 0 && l.now().Unix() >= entry.ExpiresAt {
		return false, nil
	}
	return true, nil
}

func (l *DynamoLedger) MarkFired(ctx context.Context, key string) error {
	_, err := l.put(ctx, key, false)
	return err
}

func (l *DynamoLedger) Claim(ctx context.Context, key string) (bool, error) {
	return l.put(ctx, key, true)
}

func (l *DynamoLedger) Release(ctx context.Context, key string) error {
	if l.client == nil {
		return ErrNilBackend
	}
	_, err := l.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(l.table),
		Key:       map[string]types.AttributeValue{"dedup_key": &types.AttributeValueMemberS{Value: l.pk(key)}},
	})
	if err != nil {
		return fmt.Errorf("dynamo ledger delete: %w", err)
	}
	return nil
}

func (l *DynamoLedger) put(ctx context.Context, key string, conditional bool) (bool, error) {
	if l.client == nil {
		return false, ErrNilBackend
	}
	now := l.now().UTC()
	entry := dynamoEntry{DedupKey: l.pk(key), Channel: string(l.channel), FiredAt: now.Format(time.RFC3339)}
	if l.ttl > 0 {
		entry.ExpiresAt = now.Add(l.ttl).Unix()
	}
	item, err := attributevalue.MarshalMap(entry)
	if err != nil {
		return false, fmt.Errorf("dynamo ledger encode: %w", err)
	}
	input := &dynamodb.PutItemInput{TableName: aws.String(l.table), Item: item}
	if conditional {
		// An expired item that TTL has not swept yet may be overwritten.
		input.ConditionExpression = aws.String("attribute_not_exists(dedup_key) OR expires_at < :now")
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", now.Unix())},
		}
	}
	if _, err := l.client.PutItem(ctx, input); err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return false, nil
		}
		return false, fmt.Errorf("dynamo ledger put: %w", err)
	}
	return true, nil
}
