package consumer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"go.uber.org/zap"

	"github.com/myseetara-source/seetara-website-sub001/models"
	aws_pkg "github.com/myseetara-source/seetara-website-sub001/pkg/aws"
	"github.com/myseetara-source/seetara-website-sub001/services"
)

// StatusUpdater applies a status change to a stored order.
type StatusUpdater interface {
	UpdateStatus(ctx context.Context, orderNumber, status, actor string) (*models.Order, *services.ServiceError)
}

// SQSConsumer applies status changes from courier webhooks and back-office
// tools. Each change goes through the order service, so it reaches the
// conversion relay the same way an admin edit does.
type SQSConsumer struct {
	client   aws_pkg.SQSAPI
	queueURL string
	updater  StatusUpdater
	logger   *zap.Logger
	backoff  time.Duration
}

func NewSQSConsumer(client aws_pkg.SQSAPI, queueURL string, updater StatusUpdater, logger *zap.Logger) *SQSConsumer {
	return &SQSConsumer{
		client:   client,
		queueURL: queueURL,
		updater:  updater,
		logger:   logger,
		backoff:  5 * time.Second,
	}
}

// Start polls until ctx is cancelled.
func (c *SQSConsumer) Start(ctx context.Context) {
	c.logger.Info("status consumer started", zap.String("queue", c.queueURL))
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("status consumer shutting down")
			return
		default:
			c.poll(ctx)
		}
	}
}

func (c *SQSConsumer) poll(ctx context.Context) {
	output, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.queueURL),
		MaxNumberOfMessages: 10,
		WaitTimeSeconds:     10,
	})
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		c.logger.Error("SQS receive error", zap.Error(err))
		select {
		case <-ctx.Done():
		case <-time.After(c.backoff):
		}
		return
	}

	for _, msg := range output.Messages {
		c.HandleMessage(ctx, aws.ToString(msg.Body), aws.ToString(msg.ReceiptHandle))
	}
}

type snsEnvelope struct {
	Type    string `json:"Type"`
	Message string `json:"Message"`
}

// HandleMessage processes one queue message and reports whether it was
// deleted. Malformed messages and rejected changes are deleted; server-side
// failures stay on the queue for redelivery.
func (c *SQSConsumer) HandleMessage(ctx context.Context, body, receiptHandle string) bool {
	if receiptHandle == "" {
		c.logger.Error("received SQS message without receipt handle")
		return false
	}
	if body == "" {
		c.logger.Error("received empty SQS message body")
		return c.deleteMessage(ctx, receiptHandle)
	}

	// Messages arrive either wrapped by an SNS subscription or sent directly.
	payload := body
	var envelope snsEnvelope
	if err := json.Unmarshal([]byte(body), &envelope); err != nil {
		c.logger.Error("failed to unmarshal SQS message", zap.Error(err))
		return c.deleteMessage(ctx, receiptHandle)
	}
	if envelope.Message != "" {
		payload = envelope.Message
	}

	var msg models.StatusChangeMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil || msg.OrderID == "" || msg.Status == "" {
		c.logger.Error("invalid status change message", zap.Error(err))
		return c.deleteMessage(ctx, receiptHandle)
	}
	actor := msg.Actor
	if actor == "" {
		actor = "queue"
	}

	log := c.logger.With(zap.String("order_id", msg.OrderID), zap.String("status", msg.Status))
	if _, svcErr := c.updater.UpdateStatus(ctx, msg.OrderID, msg.Status, actor); svcErr != nil {
		if svcErr.StatusCode >= 500 {
			log.Error("status change failed, leaving for retry", zap.String("error", svcErr.Message))
			return false
		}
		log.Warn("status change rejected", zap.Int("code", svcErr.StatusCode), zap.String("error", svcErr.Message))
		return c.deleteMessage(ctx, receiptHandle)
	}

	return c.deleteMessage(ctx, receiptHandle)
}

func (c *SQSConsumer) deleteMessage(ctx context.Context, receiptHandle string) bool {
	_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		c.logger.Error("failed to delete SQS message", zap.Error(err))
		return false
	}
	return true
}
