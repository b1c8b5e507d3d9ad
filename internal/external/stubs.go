package external

import (
	"context"
	"log/slog"

	"expirywatch/internal/types"
)

// ---------------------------------------------------------------------------
// Stub Implementations
//
// Stub implementations allow the workers to run in local/dev mode without
// real external service credentials. They log all actions and return
// predictable, safe default values so non-production runs stay
// side-effect-free.
// ---------------------------------------------------------------------------

// StubMessageID is the sentinel message ID returned by the stub provider.
// A send that reports this ID made no network call.
const StubMessageID = "dev-simulated"

// StubEmailProvider implements EmailProvider by logging the message and
// returning the sentinel ID. Used when SENDGRID_API_KEY is absent.
type StubEmailProvider struct {
	logger *slog.Logger
}

// NewStubEmailProvider creates a new StubEmailProvider.
func NewStubEmailProvider(logger *slog.Logger) *StubEmailProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &StubEmailProvider{logger: logger}
}

func (s *StubEmailProvider) Send(ctx context.Context, input types.SendInput) (string, error) {
	to := make([]string, 0, len(input.To))
	for _, addr := range input.To {
		to = append(to, addr.Address)
	}
	s.logger.InfoContext(ctx, "stub: Send email called",
		"to", to,
		"subject", input.Subject,
		"from", input.From.Address,
	)
	return StubMessageID, nil
}

// StubEscalationPublisher implements EscalationPublisher by logging the
// failure context. Used when no escalation queue is configured.
type StubEscalationPublisher struct {
	logger *slog.Logger
}

// NewStubEscalationPublisher creates a new StubEscalationPublisher.
func NewStubEscalationPublisher(logger *slog.Logger) *StubEscalationPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &StubEscalationPublisher{logger: logger}
}

func (s *StubEscalationPublisher) PublishFailure(ctx context.Context, fc types.FailureContext) error {
	s.logger.InfoContext(ctx, "stub: PublishFailure called",
		"module", fc.Module,
		"action", fc.Action,
		"tenant_id", fc.TenantID,
		"error", fc.Error,
	)
	return nil
}

// StubMetricsSink implements MetricsSink by logging the run counters.
// Used in local mode where CloudWatch is unavailable.
type StubMetricsSink struct {
	logger *slog.Logger
}

// NewStubMetricsSink creates a new StubMetricsSink.
func NewStubMetricsSink(logger *slog.Logger) *StubMetricsSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &StubMetricsSink{logger: logger}
}

func (s *StubMetricsSink) RecordJobRun(ctx context.Context, jobType string, summary types.RunSummary) error {
	s.logger.InfoContext(ctx, "stub: RecordJobRun called",
		"job_type", jobType,
		"checked", summary.Checked,
		"alerted", summary.Alerted,
		"sent", summary.Sent,
		"failed", summary.Failed,
	)
	return nil
}

// ---------------------------------------------------------------------------
// Interface Compliance
// ---------------------------------------------------------------------------

var _ EmailProvider = (*StubEmailProvider)(nil)
var _ EscalationPublisher = (*StubEscalationPublisher)(nil)
var _ MetricsSink = (*StubMetricsSink)(nil)
