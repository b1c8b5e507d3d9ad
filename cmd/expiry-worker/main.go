// Package main is the entrypoint for the expiry worker Lambda function.
//
// The worker acts as a job multiplexer. EventBridge rules send JSON payloads
// indicating the TaskType, and the handler routes execution to the matching
// scheduler service. Consolidating the scans and the retention purge into a
// single Lambda keeps cold starts and infrastructure sprawl down.
//
// Handler flow per invocation:
//  1. Parse JobPayload from EventBridge.
//  2. Acquire a distributed job lock to prevent concurrent execution.
//  3. Switch on TaskType and call the appropriate service method.
//  4. Publish run counters and record job history.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"

	"expirywatch/internal/config"
	"expirywatch/internal/db"
	"expirywatch/internal/external"
	"expirywatch/internal/notifications/core"
	emailpkg "expirywatch/internal/notifications/email"
	"expirywatch/internal/notifications/smtp"
	"expirywatch/internal/scheduler"
	"expirywatch/internal/security"
	"expirywatch/internal/types"
)

// lockTTL covers the typical Lambda execution duration with margin.
const lockTTL = 15 * time.Minute

// ScanService is a job that walks tenant data and reports run counters.
type ScanService interface {
	Run(ctx context.Context, now time.Time) (types.RunSummary, error)
}

// WarrantyScanService additionally supports a single-tenant run triggered on
// demand from the tenant's asset page.
type WarrantyScanService interface {
	Run(ctx context.Context, now time.Time, tenantID string) (types.RunSummary, error)
}

// RetentionService purges and archives old notification rows.
type RetentionService interface {
	PurgeNotifications(ctx context.Context, now time.Time, retentionDays, batchSize int) (int, error)
}

// ServiceRegistry holds the service implementations the multiplexer routes
// to. Services are eagerly initialized during cold start and reused across
// invocations. Fields are interfaces to enable testing.
type ServiceRegistry struct {
	CompanyDocs  ScanService
	EmployeeDocs ScanService
	InAppNotices ScanService
	Warranties   WarrantyScanService
	Retention    RetentionService
}

// JobLocker abstracts the distributed lock acquisition and release.
type JobLocker interface {
	Acquire(ctx context.Context, lockID string, workerID string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, lockID string, workerID string) error
}

// JobHistorian abstracts the job history recording.
type JobHistorian interface {
	Start(ctx context.Context, jobType string) (int64, error)
	Finish(ctx context.Context, id int64, status types.JobStatus, items int, err error) error
}

// Handler holds the dependencies for the worker Lambda handler function.
type Handler struct {
	Services   ServiceRegistry
	JobLock    JobLocker
	JobHistory JobHistorian
	Metrics    external.MetricsSink
	WorkerID   string

	RetentionDays  int
	PurgeBatchSize int

	Logger *slog.Logger
}

// Handle processes a JobPayload from EventBridge, routing to the appropriate
// service based on the TaskType.
func (h *Handler) Handle(ctx context.Context, payload scheduler.JobPayload) (string, error) {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := time.Now().UTC()
	if payload.ReferenceTime != nil {
		now = payload.ReferenceTime.UTC()
	}

	traceID := uuid.New().String()
	ctx = types.WithTraceID(ctx, traceID)

	taskStr := string(payload.Task)
	logger.InfoContext(ctx, "expiry worker invoked",
		"task", taskStr,
		"reference_time", now.Format(time.RFC3339),
		"worker_id", h.WorkerID,
		"trace_id", traceID,
	)

	if payload.Task == "" {
		return "", errors.New("empty task type in job payload")
	}

	// The lock key includes the trigger hour so a retried event for the same
	// schedule slot is skipped while a later slot still runs.
	lockID := fmt.Sprintf("%s:%s", payload.Task, now.Truncate(time.Hour).Format("2006-01-02T15"))
	acquired, err := h.JobLock.Acquire(ctx, lockID, h.WorkerID, lockTTL)
	if err != nil {
		logger.ErrorContext(ctx, "failed to acquire job lock",
			"lock_id", lockID,
			"error", err,
		)
		return "", fmt.Errorf("acquiring job lock %s: %w", lockID, err)
	}
	if !acquired {
		logger.InfoContext(ctx, "job lock held by another worker, skipping",
			"lock_id", lockID,
		)
		return fmt.Sprintf("skipped: lock %s held by another worker", lockID), nil
	}

	jobID, err := h.JobHistory.Start(ctx, taskStr)
	if err != nil {
		logger.ErrorContext(ctx, "failed to start job history",
			"task", taskStr,
			"error", err,
		)
		// Non-fatal: proceed even if history tracking fails. jobID=0 signals
		// that Finish should be skipped.
		jobID = 0
	}

	items, execErr := h.dispatch(ctx, payload, now)

	status := types.JobStatusSuccess
	if execErr != nil {
		status = types.JobStatusFailed
	}
	if jobID != 0 {
		if finishErr := h.JobHistory.Finish(ctx, jobID, status, items, execErr); finishErr != nil {
			logger.ErrorContext(ctx, "failed to finish job history",
				"job_id", jobID,
				"task", taskStr,
				"error", finishErr,
			)
		}
	}

	if execErr != nil {
		logger.ErrorContext(ctx, "task execution failed",
			"task", taskStr,
			"error", execErr,
			"items_before_error", items,
		)
		// Release the slot lock so a retried delivery of the same schedule
		// trigger can re-run the failed task. Successful runs keep the lock
		// until it expires, which is what dedupes duplicate deliveries.
		if relErr := h.JobLock.Release(ctx, lockID, h.WorkerID); relErr != nil {
			logger.ErrorContext(ctx, "failed to release job lock after failure",
				"lock_id", lockID,
				"error", relErr,
			)
		}
		return "", fmt.Errorf("task %s failed: %w", taskStr, execErr)
	}

	result := fmt.Sprintf("task %s complete: %d items processed", taskStr, items)
	logger.InfoContext(ctx, result, "task", taskStr, "items", items)
	return result, nil
}

// dispatch routes a TaskType to the appropriate service method. Returns the
// number of items processed and any error.
func (h *Handler) dispatch(ctx context.Context, payload scheduler.JobPayload, now time.Time) (int, error) {
	switch payload.Task {
	case scheduler.TaskCompanyDocExpiry:
		return h.runScan(ctx, payload.Task, func(ctx context.Context) (types.RunSummary, error) {
			return h.Services.CompanyDocs.Run(ctx, now)
		})

	case scheduler.TaskEmployeeDocExpiry:
		return h.runScan(ctx, payload.Task, func(ctx context.Context) (types.RunSummary, error) {
			return h.Services.EmployeeDocs.Run(ctx, now)
		})

	case scheduler.TaskEmployeeDocNotices:
		return h.runScan(ctx, payload.Task, func(ctx context.Context) (types.RunSummary, error) {
			return h.Services.InAppNotices.Run(ctx, now)
		})

	case scheduler.TaskWarrantyExpiry:
		return h.runScan(ctx, payload.Task, func(ctx context.Context) (types.RunSummary, error) {
			return h.Services.Warranties.Run(ctx, now, payload.TenantID)
		})

	case scheduler.TaskPurgeNotifications:
		return h.Services.Retention.PurgeNotifications(ctx, now, h.RetentionDays, h.PurgeBatchSize)

	default:
		return 0, fmt.Errorf("unknown task type: %q", payload.Task)
	}
}

// runScan executes one scan job and publishes its counters. A metrics failure
// never fails the job.
func (h *Handler) runScan(ctx context.Context, task scheduler.TaskType, run func(ctx context.Context) (types.RunSummary, error)) (int, error) {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}

	summary, err := run(ctx)

	if h.Metrics != nil {
		if mErr := h.Metrics.RecordJobRun(ctx, string(task), summary); mErr != nil {
			logger.ErrorContext(ctx, "failed to publish job metrics",
				"task", string(task),
				"error", mErr,
			)
		}
	}

	return summary.Sent, err
}

// unavailableDecrypter is used when no SMTP secret key is configured. Every
// tenant override then downgrades to the platform channel with a warning.
type unavailableDecrypter struct{}

func (unavailableDecrypter) Decrypt(string) (string, error) {
	return "", errors.New("smtp secret key not configured")
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	logger.Info("expiry worker initializing (cold start)")

	cfg, err := config.LoadConfig(config.NewSSMProvider(os.Getenv("AWS_REGION")))
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to initialize database pool", "error", err)
		os.Exit(1)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		logger.Error("failed to load AWS SDK config", "error", err)
		os.Exit(1)
	}

	handler, err := buildHandler(cfg, pool, awsCfg, logger)
	if err != nil {
		logger.Error("failed to build handler", "error", err)
		os.Exit(1)
	}

	logger.Info("expiry worker initialized",
		"worker_id", handler.WorkerID,
		"environment", cfg.Environment,
		"business_timezone", cfg.Jobs.BusinessTimezone,
	)

	// Local mode: read a JobPayload from stdin instead of starting the Lambda
	// runtime. Usage: echo '{"task":"company_document_expiry"}' | go run ./cmd/expiry-worker
	if cfg.Environment == "local" {
		runLocal(ctx, handler, logger)
		return
	}

	lambda.Start(handler.Handle)
}

// buildHandler wires the repositories, clients, and services into a Handler.
func buildHandler(cfg *config.Config, pool db.DBTX, awsCfg aws.Config, logger *slog.Logger) (*Handler, error) {
	tenantRepo := db.NewTenantRepository(pool)
	recordRepo := db.NewRecordRepository(pool)
	notifRepo := db.NewNotificationRepository(pool)
	smtpRepo := db.NewSMTPConfigRepository(pool)
	failureRepo := db.NewFailureRepository(pool)
	lockRepo := db.NewJobLockRepository(pool)
	historyRepo := db.NewJobHistoryRepository(pool)

	var provider external.EmailProvider
	if cfg.Email.SendGridAPIKey.Unmask() == "" {
		logger.Warn("SENDGRID_API_KEY not set, using stub email provider")
		provider = external.NewStubEmailProvider(logger)
	} else {
		provider = external.NewSendGridClient(
			&http.Client{Timeout: 10 * time.Second},
			external.SendGridClientConfig{
				APIKey: cfg.Email.SendGridAPIKey,
				Logger: logger,
			},
		)
	}

	var escalations external.EscalationPublisher
	if cfg.AWS.EscalationQueue == "" {
		logger.Warn("SQS_ESCALATIONS not set, using stub escalation publisher")
		escalations = external.NewStubEscalationPublisher(logger)
	} else {
		escalations = external.NewSQSEscalationPublisher(
			sqs.NewFromConfig(awsCfg), cfg.AWS.EscalationQueue, logger)
	}

	var metrics external.MetricsSink
	if cfg.Environment == "local" {
		metrics = external.NewStubMetricsSink(logger)
	} else {
		metrics = external.NewCloudWatchMetricsSink(
			cloudwatch.NewFromConfig(awsCfg), cfg.AWS.MetricNamespace, logger)
	}

	var archiver scheduler.Archiver
	if cfg.Jobs.ArchiveBucket != "" {
		archiver = external.NewS3Archiver(s3.NewFromConfig(awsCfg), cfg.Jobs.ArchiveBucket, logger)
	}

	var decrypter core.SecretDecrypter
	if cfg.Email.SMTPSecretKey.Unmask() == "" {
		logger.Warn("SMTP_SECRET_KEY not set, tenant relay overrides will be ignored")
		decrypter = unavailableDecrypter{}
	} else {
		cipher, err := security.NewSecretCipher(cfg.Email.SMTPSecretKey)
		if err != nil {
			return nil, fmt.Errorf("initializing smtp secret cipher: %w", err)
		}
		decrypter = cipher
	}

	location := cfg.Jobs.BusinessLocation()

	composer, err := emailpkg.NewTemplateComposer(emailpkg.TemplateComposerConfig{
		BaseDomain: cfg.Email.BaseDomain,
		Location:   location,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing email composer: %w", err)
	}

	sender := core.NewSender(core.SenderConfig{
		Provider:    provider,
		Relay:       smtp.NewRelayClient(logger),
		SMTPConfigs: smtpRepo,
		Secrets:     decrypter,
		Logger:      logger,
	})

	resolver := core.NewRecipientResolver(tenantRepo, logger)

	failureHandler := core.NewFailureHandler(core.FailureHandlerConfig{
		Failures:    failureRepo,
		Escalations: escalations,
		Provider:    provider,
		SuperAdmins: cfg.Email.SuperAdminAddresses(),
		From:        cfg.Email.FromEmail(),
		Logger:      logger,
	})

	services := ServiceRegistry{
		CompanyDocs: scheduler.NewCompanyDocService(scheduler.CompanyDocServiceConfig{
			Tenants:       tenantRepo,
			DB:            recordRepo,
			Recipients:    resolver,
			Composer:      composer,
			Sender:        sender,
			Notifications: notifRepo,
			Failures:      failureHandler,
			From:          cfg.Email.FromEmail(),
			Location:      location,
			Logger:        logger,
		}),
		EmployeeDocs: scheduler.NewEmployeeDocService(scheduler.EmployeeDocServiceConfig{
			Tenants:       tenantRepo,
			DB:            recordRepo,
			Deduper:       notifRepo,
			Recipients:    resolver,
			Composer:      composer,
			Sender:        sender,
			Notifications: notifRepo,
			Failures:      failureHandler,
			From:          cfg.Email.FromEmail(),
			Location:      location,
			Logger:        logger,
		}),
		InAppNotices: scheduler.NewInAppNoticeService(scheduler.InAppNoticeServiceConfig{
			Tenants:       tenantRepo,
			DB:            recordRepo,
			Deduper:       notifRepo,
			Notifications: notifRepo,
			Location:      location,
			Logger:        logger,
		}),
		Warranties: scheduler.NewWarrantyService(scheduler.WarrantyServiceConfig{
			Tenants:    tenantRepo,
			DB:         recordRepo,
			Composer:   composer,
			Sender:     sender,
			Failures:   failureHandler,
			From:       cfg.Email.FromEmail(),
			Recipients: warrantyRecipients(cfg.Jobs.WarrantyAlertRecipients),
			Location:   location,
			Logger:     logger,
		}),
		Retention: scheduler.NewRetentionService(notifRepo, archiver, logger),
	}

	return &Handler{
		Services:       services,
		JobLock:        lockRepo,
		JobHistory:     historyRepo,
		Metrics:        metrics,
		WorkerID:       uuid.New().String(),
		RetentionDays:  cfg.Jobs.RetentionDays,
		PurgeBatchSize: cfg.Jobs.PurgeBatchSize,
		Logger:         logger,
	}, nil
}

// warrantyRecipients converts the configured address list into EmailAddress
// values, dropping blanks.
func warrantyRecipients(addrs []string) []types.EmailAddress {
	out := make([]types.EmailAddress, 0, len(addrs))
	for _, addr := range addrs {
		if addr == "" {
			continue
		}
		out = append(out, types.EmailAddress{Address: addr})
	}
	return out
}

// runLocal reads one JobPayload from stdin and executes it synchronously.
func runLocal(ctx context.Context, handler *Handler, logger *slog.Logger) {
	logger.Info("APP_ENV=local: reading job payload from stdin")

	raw, err := io.ReadAll(os.Stdin)
	if err != nil {
		logger.Error("failed to read stdin", "error", err)
		os.Exit(1)
	}
	if len(raw) == 0 {
		logger.Error("no input received on stdin")
		os.Exit(1)
	}

	var payload scheduler.JobPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		logger.Error("failed to parse stdin as job payload", "error", err)
		os.Exit(1)
	}

	result, err := handler.Handle(ctx, payload)
	if err != nil {
		logger.Error("job failed", "error", err)
		os.Exit(1)
	}
	logger.Info("job finished", "result", result)
}
