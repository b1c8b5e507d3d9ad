package external

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"expirywatch/internal/types"
)

// sqsAPI is the subset of the SQS SDK client used by the publisher.
// This interface enables testing with a mock client.
type sqsAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSEscalationPublisher implements EscalationPublisher by pushing failure
// contexts onto the ops escalation queue. Consumers on the ops side fan the
// message out to paging and ticketing.
type SQSEscalationPublisher struct {
	client   sqsAPI
	queueURL string
	logger   *slog.Logger
}

// NewSQSEscalationPublisher creates a publisher bound to the given queue URL.
func NewSQSEscalationPublisher(client *sqs.Client, queueURL string, logger *slog.Logger) *SQSEscalationPublisher {
	return newSQSEscalationPublisher(client, queueURL, logger)
}

// newSQSEscalationPublisher accepts the narrow API interface for testing.
func newSQSEscalationPublisher(client sqsAPI, queueURL string, logger *slog.Logger) *SQSEscalationPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQSEscalationPublisher{
		client:   client,
		queueURL: queueURL,
		logger:   logger,
	}
}

// PublishFailure serializes the failure context and sends it to the
// escalation queue. The message body is the JSON FailureContext; the module
// and tenant travel as message attributes for consumer-side filtering.
func (p *SQSEscalationPublisher) PublishFailure(ctx context.Context, fc types.FailureContext) error {
	body, err := json.Marshal(fc)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to marshal failure context", err)
	}

	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return types.NewAppError(types.ErrCodeUpstreamQueue, "failed to publish failure to escalation queue", err)
	}

	p.logger.InfoContext(ctx, "escalation published",
		"module", fc.Module,
		"tenant_id", fc.TenantID,
	)
	return nil
}

var _ EscalationPublisher = (*SQSEscalationPublisher)(nil)
