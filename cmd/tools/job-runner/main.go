// Package main implements the job-runner CLI tool for invoking expiry worker
// tasks directly, bypassing the AWS Lambda shim.
//
// This tool is intended for local development, manual backfilling, and
// operational debugging. It constructs a scheduler.JobPayload and runs the
// matching scheduler service against the configured database. Email delivery
// uses the stub provider, so no real mail leaves the machine.
//
// Usage:
//
//	go run ./cmd/tools/job-runner --task=company_document_expiry
//	go run ./cmd/tools/job-runner --task=warranty_expiry --tenant=ten_123
//	go run ./cmd/tools/job-runner --task=purge_notifications --reference-time=2026-01-15T02:00:00Z
//	go run ./cmd/tools/job-runner --dry-run --task=employee_document_expiry
//	go run ./cmd/tools/job-runner --list
//
// The tool reads DATABASE_URL from environment variables (or a .env file via
// godotenv). In --dry-run mode it prints the constructed JSON payload without
// executing. Otherwise it acquires the distributed job lock, records job
// history, and dispatches to the appropriate scheduler service.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"expirywatch/internal/db"
	"expirywatch/internal/external"
	"expirywatch/internal/notifications/core"
	emailpkg "expirywatch/internal/notifications/email"
	"expirywatch/internal/scheduler"
	"expirywatch/internal/types"
)

// validTasks is the exhaustive set of TaskType values the worker supports.
// Maintained in sync with the constants in internal/scheduler/types.go and
// the dispatch table in cmd/expiry-worker/main.go.
var validTasks = map[scheduler.TaskType]string{
	scheduler.TaskCompanyDocExpiry:   "Email tenant admins about expiring company documents",
	scheduler.TaskEmployeeDocExpiry:  "Email employees and admin summaries about expiring employee documents",
	scheduler.TaskEmployeeDocNotices: "Write in-app expiry notices for employee documents",
	scheduler.TaskWarrantyExpiry:     "Email the asset team about expiring warranties",
	scheduler.TaskPurgeNotifications: "Purge notification rows past the retention period",
}

// Operational constants matching cmd/expiry-worker/main.go. Duplicated here
// because cmd/expiry-worker is a main package and cannot be imported.
const lockTTL = 15 * time.Minute

func main() {
	taskFlag := flag.String("task", "", "Task type to execute (e.g., company_document_expiry)")
	tenantFlag := flag.String("tenant", "", "Restrict the run to one tenant (warranty_expiry only)")
	refTimeFlag := flag.String("reference-time", "", "Override reference time (RFC3339, e.g., 2026-01-15T02:00:00Z)")
	listFlag := flag.Bool("list", false, "List all available task types and exit")
	dryRunFlag := flag.Bool("dry-run", false, "Print the JSON payload without executing")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: job-runner [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Invoke expiry worker tasks directly, bypassing Lambda.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nUse --list to see all available task types.\n")
	}

	flag.Parse()

	if *listFlag {
		printAvailableTasks()
		return
	}

	if *taskFlag == "" {
		fmt.Fprintf(os.Stderr, "error: --task is required\n\n")
		flag.Usage()
		os.Exit(1)
	}

	taskType := scheduler.TaskType(*taskFlag)
	if _, ok := validTasks[taskType]; !ok {
		fmt.Fprintf(os.Stderr, "error: unknown task type %q\n\n", *taskFlag)
		printAvailableTasks()
		os.Exit(1)
	}

	if *tenantFlag != "" && taskType != scheduler.TaskWarrantyExpiry {
		fmt.Fprintf(os.Stderr, "error: --tenant is only supported for %s\n", scheduler.TaskWarrantyExpiry)
		os.Exit(1)
	}

	var refTime *time.Time
	if *refTimeFlag != "" {
		t, err := time.Parse(time.RFC3339, *refTimeFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: invalid --reference-time %q: %v\n", *refTimeFlag, err)
			fmt.Fprintf(os.Stderr, "  expected RFC3339 format, e.g., 2026-01-15T02:00:00Z\n")
			os.Exit(1)
		}
		refTime = &t
	}

	payload := scheduler.JobPayload{
		Task:          taskType,
		TenantID:      *tenantFlag,
		ReferenceTime: refTime,
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	if *dryRunFlag {
		printPayload(payload)
		return
	}

	// Load .env file for local development (non-fatal if missing).
	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file loaded (this is fine in production)", "error", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	result, err := executeTask(ctx, payload, logger)
	if err != nil {
		logger.Error("task execution failed",
			"task", string(payload.Task),
			"error", err,
		)
		os.Exit(1)
	}

	logger.Info("task execution succeeded",
		"task", string(payload.Task),
		"result", result,
	)
}

// executeTask wires up the database and service dependencies, then invokes
// the worker dispatch logic directly, bypassing Lambda.
//
// This mirrors the cold-start wiring in cmd/expiry-worker/main.go and the
// Handle method flow:
//  1. Connect to the database.
//  2. Determine reference time.
//  3. Acquire distributed job lock.
//  4. Record job history start.
//  5. Dispatch to the appropriate service.
//  6. Record job history completion.
func executeTask(ctx context.Context, payload scheduler.JobPayload, logger *slog.Logger) (string, error) {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return "", fmt.Errorf("DATABASE_URL environment variable is required")
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return "", fmt.Errorf("creating database pool: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return "", fmt.Errorf("pinging database: %w", err)
	}

	logger.Info("database connection established")

	jobLockRepo := db.NewJobLockRepository(pool)
	jobHistoryRepo := db.NewJobHistoryRepository(pool)

	workerID := fmt.Sprintf("job-runner-%s", uuid.New().String())

	now := time.Now().UTC()
	if payload.ReferenceTime != nil {
		now = payload.ReferenceTime.UTC()
	}

	taskStr := string(payload.Task)
	logger.Info("executing task",
		"task", taskStr,
		"reference_time", now.Format(time.RFC3339),
		"worker_id", workerID,
	)

	// Same lock pattern as the worker handler.
	lockID := fmt.Sprintf("%s:%s", payload.Task, now.Truncate(time.Hour).Format("2006-01-02T15"))
	acquired, err := jobLockRepo.Acquire(ctx, lockID, workerID, lockTTL)
	if err != nil {
		return "", fmt.Errorf("acquiring job lock %s: %w", lockID, err)
	}
	if !acquired {
		return fmt.Sprintf("skipped: lock %s held by another worker", lockID), nil
	}
	logger.Info("job lock acquired", "lock_id", lockID)

	jobID, err := jobHistoryRepo.Start(ctx, taskStr)
	if err != nil {
		logger.Warn("failed to record job start (continuing anyway)", "error", err)
		jobID = 0
	}

	items, execErr := dispatch(ctx, payload, now, pool, logger)

	status := types.JobStatusSuccess
	if execErr != nil {
		status = types.JobStatusFailed
	}
	if jobID != 0 {
		if finishErr := jobHistoryRepo.Finish(ctx, jobID, status, items, execErr); finishErr != nil {
			logger.Error("failed to record job completion", "job_id", jobID, "error", finishErr)
		}
	}

	if execErr != nil {
		// Same release-on-failure as the worker handler: the slot can then be
		// retried without waiting out the lock TTL.
		if relErr := jobLockRepo.Release(ctx, lockID, workerID); relErr != nil {
			logger.Error("failed to release job lock after failure", "lock_id", lockID, "error", relErr)
		}
		return "", fmt.Errorf("task %s failed: %w", taskStr, execErr)
	}

	return fmt.Sprintf("task %s complete: %d items processed", taskStr, items), nil
}

// dispatch routes a TaskType to the appropriate scheduler service. All email
// leaves through the stub provider: the CLI exists to exercise scans and
// purges against real data without real deliveries.
func dispatch(ctx context.Context, payload scheduler.JobPayload, now time.Time, pool *pgxpool.Pool, logger *slog.Logger) (int, error) {
	tenantRepo := db.NewTenantRepository(pool)
	recordRepo := db.NewRecordRepository(pool)
	notifRepo := db.NewNotificationRepository(pool)
	failureRepo := db.NewFailureRepository(pool)

	provider := external.NewStubEmailProvider(logger)

	from := types.EmailAddress{
		Address: envOr("EMAIL_FROM_ADDRESS", "alerts@expirywatch.io"),
		Name:    envOr("EMAIL_FROM_NAME", "ExpiryWatch Alerts"),
	}

	location := time.UTC
	if tz := os.Getenv("BUSINESS_TIMEZONE"); tz != "" {
		if loc, err := time.LoadLocation(tz); err == nil {
			location = loc
		} else {
			logger.Warn("unknown BUSINESS_TIMEZONE, using UTC", "timezone", tz)
		}
	}

	composer, err := emailpkg.NewTemplateComposer(emailpkg.TemplateComposerConfig{
		BaseDomain: envOr("APP_BASE_DOMAIN", "expirywatch.io"),
		Location:   location,
		Logger:     logger,
	})
	if err != nil {
		return 0, fmt.Errorf("initializing email composer: %w", err)
	}

	sender := core.NewSender(core.SenderConfig{
		Provider:    provider,
		Relay:       nil, // unused: the stub channel never resolves to strict
		SMTPConfigs: neverOverride{},
		Secrets:     nil,
		Logger:      logger,
	})

	resolver := core.NewRecipientResolver(tenantRepo, logger)

	failureHandler := core.NewFailureHandler(core.FailureHandlerConfig{
		Failures:    failureRepo,
		Escalations: external.NewStubEscalationPublisher(logger),
		Provider:    provider,
		Logger:      logger,
	})

	switch payload.Task {
	case scheduler.TaskCompanyDocExpiry:
		svc := scheduler.NewCompanyDocService(scheduler.CompanyDocServiceConfig{
			Tenants:       tenantRepo,
			DB:            recordRepo,
			Recipients:    resolver,
			Composer:      composer,
			Sender:        sender,
			Notifications: notifRepo,
			Failures:      failureHandler,
			From:          from,
			Location:      location,
			Logger:        logger,
		})
		summary, err := svc.Run(ctx, now)
		return summary.Sent, err

	case scheduler.TaskEmployeeDocExpiry:
		svc := scheduler.NewEmployeeDocService(scheduler.EmployeeDocServiceConfig{
			Tenants:       tenantRepo,
			DB:            recordRepo,
			Deduper:       notifRepo,
			Recipients:    resolver,
			Composer:      composer,
			Sender:        sender,
			Notifications: notifRepo,
			Failures:      failureHandler,
			From:          from,
			Location:      location,
			Logger:        logger,
		})
		summary, err := svc.Run(ctx, now)
		return summary.Sent, err

	case scheduler.TaskEmployeeDocNotices:
		svc := scheduler.NewInAppNoticeService(scheduler.InAppNoticeServiceConfig{
			Tenants:       tenantRepo,
			DB:            recordRepo,
			Deduper:       notifRepo,
			Notifications: notifRepo,
			Location:      location,
			Logger:        logger,
		})
		summary, err := svc.Run(ctx, now)
		return summary.Sent, err

	case scheduler.TaskWarrantyExpiry:
		svc := scheduler.NewWarrantyService(scheduler.WarrantyServiceConfig{
			Tenants:    tenantRepo,
			DB:         recordRepo,
			Composer:   composer,
			Sender:     sender,
			Failures:   failureHandler,
			From:       from,
			Recipients: warrantyRecipients(),
			Location:   location,
			Logger:     logger,
		})
		summary, err := svc.Run(ctx, now, payload.TenantID)
		return summary.Sent, err

	case scheduler.TaskPurgeNotifications:
		svc := scheduler.NewRetentionService(notifRepo, nil, logger)
		return svc.PurgeNotifications(ctx, now, 0, 0)

	default:
		return 0, fmt.Errorf("task %q cannot be dispatched", payload.Task)
	}
}

// neverOverride reports no tenant SMTP override, keeping CLI runs on the
// stub provider regardless of tenant configuration.
type neverOverride struct{}

func (neverOverride) GetForTenant(context.Context, string) (*types.TenantSMTPConfig, error) {
	return nil, nil
}

// warrantyRecipients parses the WARRANTY_ALERT_RECIPIENTS list from the
// environment the same way the worker config does.
func warrantyRecipients() []types.EmailAddress {
	raw := os.Getenv("WARRANTY_ALERT_RECIPIENTS")
	if raw == "" {
		return nil
	}
	var out []types.EmailAddress
	for _, addr := range strings.Split(raw, ",") {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		out = append(out, types.EmailAddress{Address: addr})
	}
	return out
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// printAvailableTasks prints all valid task types and their descriptions to
// stderr, sorted alphabetically by task name.
func printAvailableTasks() {
	fmt.Fprintf(os.Stderr, "Available task types:\n\n")

	tasks := make([]scheduler.TaskType, 0, len(validTasks))
	for t := range validTasks {
		tasks = append(tasks, t)
	}
	sort.Slice(tasks, func(i, j int) bool {
		return string(tasks[i]) < string(tasks[j])
	})

	maxLen := 0
	for _, t := range tasks {
		if len(string(t)) > maxLen {
			maxLen = len(string(t))
		}
	}

	for _, t := range tasks {
		fmt.Fprintf(os.Stderr, "  %-*s  %s\n", maxLen, string(t), validTasks[t])
	}
	fmt.Fprintln(os.Stderr)
}

// printPayload marshals the JobPayload to pretty-printed JSON and writes it
// to stdout for inspection or piping.
func printPayload(payload scheduler.JobPayload) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to marshal payload: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(string(data))

	if desc, ok := validTasks[payload.Task]; ok {
		fmt.Fprintf(os.Stderr, "\nTask: %s\nDescription: %s\n", payload.Task, desc)
		if payload.ReferenceTime != nil {
			fmt.Fprintf(os.Stderr, "Reference time: %s\n", payload.ReferenceTime.Format(time.RFC3339))
		} else {
			fmt.Fprintf(os.Stderr, "Reference time: (current UTC time will be used)\n")
		}
	}
}
