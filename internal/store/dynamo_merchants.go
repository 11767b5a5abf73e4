package store

import (
	"context"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"

	"github.com/TheSoftNode/StacksPay-sub004/internal/errors"
	"github.com/TheSoftNode/StacksPay-sub004/internal/logger"
	"github.com/TheSoftNode/StacksPay-sub004/internal/models"
)

// DynamoMerchantStore handles merchant account reads
type DynamoMerchantStore struct {
	svc       *dynamodb.DynamoDB
	tableName string
}

// NewDynamoMerchantStore creates a merchant store client
func NewDynamoMerchantStore(region, tableName, endpoint string) (*DynamoMerchantStore, error) {
	client, err := NewDynamoStore(region, tableName, endpoint)
	if err != nil {
		return nil, err
	}

	return &DynamoMerchantStore{
		svc:       client.svc,
		tableName: tableName,
	}, nil
}

// GetMerchant retrieves a merchant by ID
func (s *DynamoMerchantStore) GetMerchant(ctx context.Context, merchantID string) (*models.Merchant, error) {
	input := &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]*dynamodb.AttributeValue{
			"merchant_id": {
				S: aws.String(merchantID),
			},
		},
	}

	result, err := s.svc.GetItemWithContext(ctx, input)
	if err != nil {
		logger.Error("Failed to get merchant", logger.Fields{"error": err.Error(), "merchant_id": merchantID})
		return nil, errors.ErrDatabaseOperation("get", err)
	}

	if result.Item == nil {
		return nil, errors.ErrMerchantNotFound(merchantID)
	}

	var merchant models.Merchant
	err = dynamodbattribute.UnmarshalMap(result.Item, &merchant)
	if err != nil {
		logger.Error("Failed to unmarshal merchant", logger.Fields{"error": err.Error()})
		return nil, errors.ErrDatabaseOperation("unmarshal", err)
	}

	return &merchant, nil
}

// PutMerchant writes a merchant record. Used by operational tooling, not
// by the gateway itself.
func (s *DynamoMerchantStore) PutMerchant(ctx context.Context, merchant *models.Merchant) error {
	av, err := dynamodbattribute.MarshalMap(merchant)
	if err != nil {
		logger.Error("Failed to marshal merchant", logger.Fields{"error": err.Error()})
		return errors.ErrDatabaseOperation("marshal", err)
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      av,
	}

	_, err = s.svc.PutItemWithContext(ctx, input)
	if err != nil {
		logger.Error("Failed to put merchant", logger.Fields{"error": err.Error(), "merchant_id": merchant.MerchantID})
		return errors.ErrDatabaseOperation("put", err)
	}

	logger.Info("Merchant stored", logger.Fields{"merchant_id": merchant.MerchantID})
	return nil
}
