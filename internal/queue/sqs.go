package queue

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/sqs"

	"github.com/TheSoftNode/StacksPay-sub004/internal/errors"
	"github.com/TheSoftNode/StacksPay-sub004/internal/logger"
	"github.com/TheSoftNode/StacksPay-sub004/internal/models"
)

// maxDelaySeconds is the SQS DelaySeconds ceiling. Settlement delays
// longer than this are driven by worker re-enqueues against the persisted
// settle_after timestamp.
const maxDelaySeconds = 900

// Client represents an SQS client
type Client struct {
	svc *sqs.SQS
}

// NewClient creates a new SQS client
func NewClient(region, endpoint string) (*Client, error) {
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(region),
	})
	if err != nil {
		return nil, err
	}

	svc := sqs.New(sess)

	// Override endpoint for local testing
	if endpoint != "" {
		svc.Endpoint = endpoint
	}

	return &Client{
		svc: svc,
	}, nil
}

// SendSettlementJob sends a settlement job to the queue without delay
func (c *Client) SendSettlementJob(ctx context.Context, queueURL string, job *models.SettlementJob) error {
	return c.SendSettlementJobWithDelay(ctx, queueURL, job, 0)
}

// SendSettlementJobWithDelay sends a settlement job with delayed
// visibility, capped at the SQS maximum
func (c *Client) SendSettlementJobWithDelay(ctx context.Context, queueURL string, job *models.SettlementJob, delaySeconds int) error {
	body, err := json.Marshal(job)
	if err != nil {
		logger.Error("Failed to marshal settlement job", logger.Fields{"error": err.Error()})
		return errors.ErrQueueOperation("marshal", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]*sqs.MessageAttributeValue{
			"PaymentID": {
				DataType:    aws.String("String"),
				StringValue: aws.String(job.PaymentID),
			},
			"Attempt": {
				DataType:    aws.String("Number"),
				StringValue: aws.String(strconv.Itoa(job.Attempt)),
			},
		},
	}

	if delaySeconds > 0 {
		if delaySeconds > maxDelaySeconds {
			delaySeconds = maxDelaySeconds
		}
		input.DelaySeconds = aws.Int64(int64(delaySeconds))
	}

	result, err := c.svc.SendMessageWithContext(ctx, input)
	if err != nil {
		logger.Error("Failed to send settlement job", logger.Fields{
			"error":         err.Error(),
			"payment_id":    job.PaymentID,
			"delay_seconds": delaySeconds,
		})
		return errors.ErrQueueOperation("send", err)
	}

	logger.Info("Settlement job sent to queue", logger.Fields{
		"payment_id":    job.PaymentID,
		"message_id":    *result.MessageId,
		"delay_seconds": delaySeconds,
		"attempt":       job.Attempt,
	})
	return nil
}

// SendWebhookEvent sends a webhook event to the queue
func (c *Client) SendWebhookEvent(ctx context.Context, queueURL string, event *models.WebhookEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		logger.Error("Failed to marshal webhook event", logger.Fields{"error": err.Error()})
		return errors.ErrQueueOperation("marshal", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]*sqs.MessageAttributeValue{
			"PaymentID": {
				DataType:    aws.String("String"),
				StringValue: aws.String(event.Data.Payment.PaymentID),
			},
			"EventType": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(event.Type)),
			},
		},
	}

	result, err := c.svc.SendMessageWithContext(ctx, input)
	if err != nil {
		logger.Error("Failed to send webhook event", logger.Fields{
			"error":      err.Error(),
			"event_id":   event.ID,
			"payment_id": event.Data.Payment.PaymentID,
		})
		return errors.ErrQueueOperation("send", err)
	}

	logger.Info("Webhook event sent to queue", logger.Fields{
		"event_id":   event.ID,
		"event_type": event.Type,
		"message_id": *result.MessageId,
	})
	return nil
}

// DeleteMessage deletes a message from the queue
func (c *Client) DeleteMessage(ctx context.Context, queueURL, receiptHandle string) error {
	input := &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	}

	_, err := c.svc.DeleteMessageWithContext(ctx, input)
	if err != nil {
		logger.Error("Failed to delete message", logger.Fields{"error": err.Error()})
		return errors.ErrQueueOperation("delete", err)
	}

	return nil
}
