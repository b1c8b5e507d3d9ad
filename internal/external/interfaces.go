package external

import (
	"context"

	"expirywatch/internal/types"
)

// EmailProvider is the platform transactional email channel. Implemented by
// SendGridClient in production and StubEmailProvider in dev mode.
type EmailProvider interface {
	// Send transmits one message and returns the provider message ID.
	Send(ctx context.Context, input types.SendInput) (string, error)
}

// EscalationPublisher pushes delivery-failure contexts onto the ops
// escalation queue. Implemented by SQSEscalationPublisher.
type EscalationPublisher interface {
	PublishFailure(ctx context.Context, fc types.FailureContext) error
}

// MetricsSink records per-job run counters. Implemented by
// CloudWatchMetricsSink.
type MetricsSink interface {
	RecordJobRun(ctx context.Context, jobType string, summary types.RunSummary) error
}
