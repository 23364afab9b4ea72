package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/gstbilling/internal/identity"
	jobmetrics "github.com/odyssey-erp/gstbilling/internal/jobs"
	"github.com/odyssey-erp/gstbilling/internal/platform/lock"
)

// Merger consolidates duplicates of one tenant.
type Merger interface {
	Merge(ctx context.Context, tenantID int64, kind identity.MergeKind) (identity.MergeReport, error)
}

// MergeDuplicatesJob runs operator-triggered duplicate merges.
type MergeDuplicatesJob struct {
	Service Merger
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewMergeDuplicatesJob constructs the job handler.
func NewMergeDuplicatesJob(service Merger, logger *slog.Logger, metrics *jobmetrics.Metrics) *MergeDuplicatesJob {
	return &MergeDuplicatesJob{Service: service, Logger: logger, Metrics: metrics}
}

// Handle executes the merge job. A held maintenance lock is retried by asynq.
func (j *MergeDuplicatesJob) Handle(ctx context.Context, task *asynq.Task) (resultErr error) {
	if j == nil || j.Service == nil {
		return errors.New("merge duplicates: dependencies not configured")
	}
	var payload MergePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode merge payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.TenantID <= 0 || !payload.Kind.Valid() {
		return fmt.Errorf("merge payload tenant=%d kind=%q: %w", payload.TenantID, payload.Kind, asynq.SkipRetry)
	}

	tracker := j.metrics().Track(TaskMergeDuplicates)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	report, err := j.Service.Merge(ctx, payload.TenantID, payload.Kind)
	if err != nil {
		level := slog.LevelError
		if errors.Is(err, lock.ErrLocked) {
			level = slog.LevelWarn
		}
		j.log().Log(ctx, level, "merge duplicates",
			slog.Int64("tenant_id", payload.TenantID),
			slog.String("kind", string(payload.Kind)),
			slog.Any("error", err))
		return err
	}
	j.metrics().AddMerged(string(payload.Kind), report.Removed)
	return nil
}

func (j *MergeDuplicatesJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *MergeDuplicatesJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskMergeDuplicates))
	}
	return slog.Default().With(slog.String("job", TaskMergeDuplicates))
}
