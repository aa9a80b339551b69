package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"slack-responder/internal/domain"
)

const skLastReply = "LAST_REPLY"

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// Client is a Ledger backed by a DynamoDB table with a PK/SK string key
// schema. Each channel owns exactly one item; PutItem replaces it whole.
type Client struct {
	api       dynamodbAPI
	tableName string
	now       func() time.Time
}

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName, now: time.Now}, nil
}

// channelPK returns the DynamoDB partition key for a channel.
func channelPK(channelID string) string {
	return "CHANNEL#" + channelID
}

func (c *Client) key(channelID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: channelPK(channelID)},
		"SK": &types.AttributeValueMemberS{Value: skLastReply},
	}
}

// Record writes rec as the channel's last reply, replacing any previous one.
func (c *Client) Record(ctx context.Context, rec domain.ReplyRecord) error {
	if strings.TrimSpace(rec.ChannelID) == "" {
		return errEmptyChannel
	}
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item:      c.recordItem(rec),
	})
	if err != nil {
		return fmt.Errorf("repository: Record: %w", err)
	}
	return nil
}

// Get reads the channel's last reply with a strongly consistent read.
func (c *Client) Get(ctx context.Context, channelID string) (domain.ReplyRecord, bool, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.tableName),
		Key:            c.key(channelID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.ReplyRecord{}, false, fmt.Errorf("repository: Get: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.ReplyRecord{}, false, nil
	}
	rec, err := itemToRecord(out.Item)
	if err != nil {
		return domain.ReplyRecord{}, false, fmt.Errorf("repository: Get unmarshal: %w", err)
	}
	return rec, true, nil
}

// ClearIf deletes the channel's last reply if it is still messageID. A
// missing item or a newer record is left alone and is not an error.
func (c *Client) ClearIf(ctx context.Context, channelID, messageID string) error {
	_, err := c.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(c.tableName),
		Key:                 c.key(channelID),
		ConditionExpression: aws.String("messageId = :id"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":id": &types.AttributeValueMemberS{Value: messageID},
		},
	})
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("repository: ClearIf: %w", err)
	}
	return nil
}

func (c *Client) recordItem(rec domain.ReplyRecord) map[string]types.AttributeValue {
	item := c.key(rec.ChannelID)
	item["channelId"] = &types.AttributeValueMemberS{Value: rec.ChannelID}
	item["messageId"] = &types.AttributeValueMemberS{Value: rec.MessageID}
	item["threadId"] = &types.AttributeValueMemberS{Value: rec.ThreadID}
	item["text"] = &types.AttributeValueMemberS{Value: rec.Text}
	item["updatedAt"] = &types.AttributeValueMemberS{Value: c.now().UTC().Format(time.RFC3339Nano)}
	return item
}

// itemToRecord converts a DynamoDB attribute map to a ReplyRecord.
func itemToRecord(item map[string]types.AttributeValue) (domain.ReplyRecord, error) {
	channelID, err := strAttr(item, "channelId")
	if err != nil {
		return domain.ReplyRecord{}, err
	}
	messageID, err := strAttr(item, "messageId")
	if err != nil {
		return domain.ReplyRecord{}, err
	}
	threadID, _ := strAttr(item, "threadId") // allow empty
	text, _ := strAttr(item, "text")         // allow empty

	return domain.ReplyRecord{
		ChannelID: channelID,
		MessageID: messageID,
		ThreadID:  threadID,
		Text:      text,
	}, nil
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
