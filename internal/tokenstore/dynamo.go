package tokenstore

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"
)

// DynamoStore implements Store on a DynamoDB table keyed by page_id.
type DynamoStore struct {
	client    *dynamodb.Client
	tableName string
}

// Compile-time interface check.
var _ Store = (*DynamoStore)(nil)

// NewDynamoStore creates a DynamoStore for the given table.
// The client should be initialized from the shared AWS config.
func NewDynamoStore(client *dynamodb.Client, tableName string) *DynamoStore {
	return &DynamoStore{
		client:    client,
		tableName: tableName,
	}
}

// Get fetches the stored token for a page. Returns (nil, nil) when the page
// has no stored token.
func (s *DynamoStore) Get(ctx context.Context, pageID string) (*PageToken, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"page_id": &types.AttributeValueMemberS{Value: pageID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("GetItem page_id=%s: %w", pageID, err)
	}
	if result.Item == nil {
		return nil, nil
	}

	var token PageToken
	if err := attributevalue.UnmarshalMap(result.Item, &token); err != nil {
		return nil, fmt.Errorf("unmarshal page_id=%s: %w", pageID, err)
	}
	return &token, nil
}

// Put stores or replaces a page's token. A zero UpdatedAt is stamped with
// the current time.
func (s *DynamoStore) Put(ctx context.Context, token PageToken) error {
	if token.PageID == "" || token.AccessToken == "" {
		return fmt.Errorf("page_id and access_token are required")
	}
	if token.UpdatedAt == 0 {
		token.UpdatedAt = time.Now().Unix()
	}

	item, err := attributevalue.MarshalMap(token)
	if err != nil {
		return fmt.Errorf("marshal page_id=%s: %w", token.PageID, err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("PutItem page_id=%s: %w", token.PageID, err)
	}

	log.Info().Str("pageId", token.PageID).Msg("Page token stored")
	return nil
}
