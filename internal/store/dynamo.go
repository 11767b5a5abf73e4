package store

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/expression"

	"github.com/TheSoftNode/StacksPay-sub004/internal/errors"
	"github.com/TheSoftNode/StacksPay-sub004/internal/logger"
	"github.com/TheSoftNode/StacksPay-sub004/internal/models"
)

// Secondary indexes on the payments table.
const (
	indexUniqueAddress = "unique_address-index"
	indexMerchant      = "merchant_id-index"
	indexDueSettlement = "status-settle_after-index"
)

// DynamoStore is the DynamoDB-backed payment record store
type DynamoStore struct {
	svc       *dynamodb.DynamoDB
	tableName string
}

// NewDynamoStore creates a payment store client
func NewDynamoStore(region, tableName, endpoint string) (*DynamoStore, error) {
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(region),
	})
	if err != nil {
		return nil, err
	}

	svc := dynamodb.New(sess)

	// Override endpoint for local testing
	if endpoint != "" {
		svc.Endpoint = endpoint
	}

	return &DynamoStore{
		svc:       svc,
		tableName: tableName,
	}, nil
}

// CreatePayment creates a new payment record
func (s *DynamoStore) CreatePayment(ctx context.Context, payment *models.Payment) error {
	av, err := dynamodbattribute.MarshalMap(payment)
	if err != nil {
		logger.Error("Failed to marshal payment", logger.Fields{"error": err.Error()})
		return errors.ErrDatabaseOperation("marshal", err)
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      av,
		// Create-if-absent: never overwrite an existing record
		ConditionExpression: aws.String("attribute_not_exists(payment_id)"),
	}

	_, err = s.svc.PutItemWithContext(ctx, input)
	if err != nil {
		if _, ok := err.(*dynamodb.ConditionalCheckFailedException); ok {
			return errors.ErrDuplicateRequest(payment.IdempotencyKey)
		}
		logger.Error("Failed to create payment", logger.Fields{"error": err.Error()})
		return errors.ErrDatabaseOperation("create", err)
	}

	logger.Info("Payment created", logger.Fields{
		"payment_id":     payment.PaymentID,
		"merchant_id":    payment.MerchantID,
		"unique_address": payment.UniqueAddress,
	})
	return nil
}

// GetPaymentByID retrieves a payment by its ID
func (s *DynamoStore) GetPaymentByID(ctx context.Context, paymentID string) (*models.Payment, error) {
	input := &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]*dynamodb.AttributeValue{
			"payment_id": {
				S: aws.String(paymentID),
			},
		},
	}

	result, err := s.svc.GetItemWithContext(ctx, input)
	if err != nil {
		logger.Error("Failed to get payment", logger.Fields{"error": err.Error(), "payment_id": paymentID})
		return nil, errors.ErrDatabaseOperation("get", err)
	}

	if result.Item == nil {
		return nil, errors.ErrPaymentNotFound(paymentID)
	}

	var payment models.Payment
	err = dynamodbattribute.UnmarshalMap(result.Item, &payment)
	if err != nil {
		logger.Error("Failed to unmarshal payment", logger.Fields{"error": err.Error()})
		return nil, errors.ErrDatabaseOperation("unmarshal", err)
	}

	return &payment, nil
}

// GetPaymentByAddress resolves a payment by its unique receiving address
// through the address index. A miss returns (nil, nil): transfers to
// unknown addresses are not errors.
func (s *DynamoStore) GetPaymentByAddress(ctx context.Context, uniqueAddress string) (*models.Payment, error) {
	keyCond := expression.Key("unique_address").Equal(expression.Value(uniqueAddress))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		logger.Error("Failed to build expression", logger.Fields{"error": err.Error()})
		return nil, errors.ErrDatabaseOperation("build_expression", err)
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(s.tableName),
		IndexName:                 aws.String(indexUniqueAddress),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		Limit:                     aws.Int64(1),
	}

	result, err := s.svc.QueryWithContext(ctx, input)
	if err != nil {
		logger.Error("Failed to query payment by address", logger.Fields{"error": err.Error()})
		return nil, errors.ErrDatabaseOperation("query", err)
	}

	if len(result.Items) == 0 {
		return nil, nil
	}

	var payment models.Payment
	err = dynamodbattribute.UnmarshalMap(result.Items[0], &payment)
	if err != nil {
		logger.Error("Failed to unmarshal payment", logger.Fields{"error": err.Error()})
		return nil, errors.ErrDatabaseOperation("unmarshal", err)
	}

	return &payment, nil
}

// GetPaymentByIdempotencyKey retrieves a payment by its idempotency key
func (s *DynamoStore) GetPaymentByIdempotencyKey(ctx context.Context, idempotencyKey string) (*models.Payment, error) {
	filt := expression.Name("idempotency_key").Equal(expression.Value(idempotencyKey))
	expr, err := expression.NewBuilder().WithFilter(filt).Build()
	if err != nil {
		logger.Error("Failed to build expression", logger.Fields{"error": err.Error()})
		return nil, errors.ErrDatabaseOperation("build_expression", err)
	}

	input := &dynamodb.ScanInput{
		TableName:                 aws.String(s.tableName),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}

	result, err := s.svc.ScanWithContext(ctx, input)
	if err != nil {
		logger.Error("Failed to scan for payment", logger.Fields{"error": err.Error()})
		return nil, errors.ErrDatabaseOperation("scan", err)
	}

	if len(result.Items) == 0 {
		return nil, nil // Not found, but not an error
	}

	var payment models.Payment
	err = dynamodbattribute.UnmarshalMap(result.Items[0], &payment)
	if err != nil {
		logger.Error("Failed to unmarshal payment", logger.Fields{"error": err.Error()})
		return nil, errors.ErrDatabaseOperation("unmarshal", err)
	}

	return &payment, nil
}

// ListPaymentsByMerchant returns one page of a merchant's payments,
// newest first
func (s *DynamoStore) ListPaymentsByMerchant(ctx context.Context, merchantID string, limit int, cursor string) (*models.PaymentPage, error) {
	keyCond := expression.Key("merchant_id").Equal(expression.Value(merchantID))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		logger.Error("Failed to build expression", logger.Fields{"error": err.Error()})
		return nil, errors.ErrDatabaseOperation("build_expression", err)
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(s.tableName),
		IndexName:                 aws.String(indexMerchant),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(false),
	}

	if limit > 0 {
		input.Limit = aws.Int64(int64(limit))
	}

	if cursor != "" {
		startKey, err := decodeCursor(cursor)
		if err != nil {
			return nil, errors.ErrInvalidRequest("invalid cursor", err)
		}
		input.ExclusiveStartKey = startKey
	}

	result, err := s.svc.QueryWithContext(ctx, input)
	if err != nil {
		logger.Error("Failed to list payments", logger.Fields{"error": err.Error(), "merchant_id": merchantID})
		return nil, errors.ErrDatabaseOperation("query", err)
	}

	payments := make([]models.Payment, 0, len(result.Items))
	for _, item := range result.Items {
		var payment models.Payment
		if err := dynamodbattribute.UnmarshalMap(item, &payment); err != nil {
			logger.Error("Failed to unmarshal payment", logger.Fields{"error": err.Error()})
			return nil, errors.ErrDatabaseOperation("unmarshal", err)
		}
		payments = append(payments, payment)
	}

	nextCursor, err := encodeCursor(result.LastEvaluatedKey)
	if err != nil {
		return nil, errors.ErrDatabaseOperation("encode_cursor", err)
	}

	return &models.PaymentPage{
		Payments:   payments,
		NextCursor: nextCursor,
	}, nil
}

// ListDueSettlements returns confirmed payments whose settle_after has
// passed, oldest first
func (s *DynamoStore) ListDueSettlements(ctx context.Context, dueBy time.Time, limit int) ([]models.Payment, error) {
	keyCond := expression.Key("status").Equal(expression.Value(models.StatusConfirmed)).
		And(expression.Key("settle_after").LessThanEqual(expression.Value(dueBy.Unix())))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		logger.Error("Failed to build expression", logger.Fields{"error": err.Error()})
		return nil, errors.ErrDatabaseOperation("build_expression", err)
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(s.tableName),
		IndexName:                 aws.String(indexDueSettlement),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}

	if limit > 0 {
		input.Limit = aws.Int64(int64(limit))
	}

	result, err := s.svc.QueryWithContext(ctx, input)
	if err != nil {
		logger.Error("Failed to query due settlements", logger.Fields{"error": err.Error()})
		return nil, errors.ErrDatabaseOperation("query", err)
	}

	payments := make([]models.Payment, 0, len(result.Items))
	for _, item := range result.Items {
		var payment models.Payment
		if err := dynamodbattribute.UnmarshalMap(item, &payment); err != nil {
			logger.Error("Failed to unmarshal payment", logger.Fields{"error": err.Error()})
			return nil, errors.ErrDatabaseOperation("unmarshal", err)
		}
		payments = append(payments, payment)
	}

	return payments, nil
}

// TransitionStatus applies a compare-and-set status update. The write
// succeeds only if the record's status still equals from; sibling fields
// land in the same conditional update. A lost race returns (false, nil).
func (s *DynamoStore) TransitionStatus(ctx context.Context, paymentID string, from models.PaymentStatus, update StatusUpdate) (bool, error) {
	cond := expression.Name("status").Equal(expression.Value(from))

	upd := expression.Set(expression.Name("status"), expression.Value(update.To)).
		Set(expression.Name("updated_at"), expression.Value(time.Now().UTC()))

	if update.ConfirmedAt != nil {
		upd = upd.Set(expression.Name("confirmed_at"), expression.Value(*update.ConfirmedAt)).
			Set(expression.Name("received_amount"), expression.Value(update.ReceivedAmount)).
			Set(expression.Name("receive_tx_id"), expression.Value(update.ReceiveTxID))
	}

	if update.SettleAfter != nil {
		upd = upd.Set(expression.Name("settle_after"), expression.Value(update.SettleAfter.Unix()))
	}

	if update.SettledAt != nil {
		upd = upd.Set(expression.Name("settled_at"), expression.Value(*update.SettledAt)).
			Set(expression.Name("fee_amount"), expression.Value(update.FeeAmount)).
			Set(expression.Name("net_amount"), expression.Value(update.NetAmount))
	}

	if update.SettlementTxID != "" {
		upd = upd.Set(expression.Name("settlement_tx_id"), expression.Value(update.SettlementTxID))
	}

	if update.ErrorMessage != "" {
		upd = upd.Set(expression.Name("error_message"), expression.Value(update.ErrorMessage))
	}

	expr, err := expression.NewBuilder().WithCondition(cond).WithUpdate(upd).Build()
	if err != nil {
		logger.Error("Failed to build update expression", logger.Fields{"error": err.Error()})
		return false, errors.ErrDatabaseOperation("build_expression", err)
	}

	input := &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]*dynamodb.AttributeValue{
			"payment_id": {
				S: aws.String(paymentID),
			},
		},
		ConditionExpression:       expr.Condition(),
		UpdateExpression:          expr.Update(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}

	_, err = s.svc.UpdateItemWithContext(ctx, input)
	if err != nil {
		if _, ok := err.(*dynamodb.ConditionalCheckFailedException); ok {
			// Another writer advanced the record first
			return false, nil
		}
		logger.Error("Failed to transition payment status", logger.Fields{
			"error":      err.Error(),
			"payment_id": paymentID,
			"from":       from,
			"to":         update.To,
		})
		return false, errors.ErrDatabaseOperation("transition", err)
	}

	logger.Info("Payment status transitioned", logger.Fields{
		"payment_id": paymentID,
		"from":       from,
		"to":         update.To,
	})
	return true, nil
}

// SetContractLinkage records a contract tx id on an existing payment.
// The attribute_exists guard keeps linkage writes from materializing
// records for unknown payment ids.
func (s *DynamoStore) SetContractLinkage(ctx context.Context, paymentID string, field LinkageField, txID string) error {
	upd := expression.Set(expression.Name(string(field)), expression.Value(txID)).
		Set(expression.Name("updated_at"), expression.Value(time.Now().UTC()))

	cond := expression.Name("payment_id").AttributeExists()

	expr, err := expression.NewBuilder().WithCondition(cond).WithUpdate(upd).Build()
	if err != nil {
		logger.Error("Failed to build update expression", logger.Fields{"error": err.Error()})
		return errors.ErrDatabaseOperation("build_expression", err)
	}

	input := &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]*dynamodb.AttributeValue{
			"payment_id": {
				S: aws.String(paymentID),
			},
		},
		ConditionExpression:       expr.Condition(),
		UpdateExpression:          expr.Update(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}

	_, err = s.svc.UpdateItemWithContext(ctx, input)
	if err != nil {
		if _, ok := err.(*dynamodb.ConditionalCheckFailedException); ok {
			return errors.ErrPaymentNotFound(paymentID)
		}
		logger.Error("Failed to set contract linkage", logger.Fields{
			"error":      err.Error(),
			"payment_id": paymentID,
			"field":      string(field),
		})
		return errors.ErrDatabaseOperation("set_linkage", err)
	}

	return nil
}

// encodeCursor packs a DynamoDB LastEvaluatedKey into an opaque page token
func encodeCursor(lastKey map[string]*dynamodb.AttributeValue) (string, error) {
	if len(lastKey) == 0 {
		return "", nil
	}
	data, err := json.Marshal(lastKey)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// decodeCursor unpacks a page token produced by encodeCursor
func decodeCursor(cursor string) (map[string]*dynamodb.AttributeValue, error) {
	data, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, err
	}
	var startKey map[string]*dynamodb.AttributeValue
	if err := json.Unmarshal(data, &startKey); err != nil {
		return nil, err
	}
	return startKey, nil
}
