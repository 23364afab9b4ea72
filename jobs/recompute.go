package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/gstbilling/internal/identity"
	jobmetrics "github.com/odyssey-erp/gstbilling/internal/jobs"
	"github.com/odyssey-erp/gstbilling/internal/ledger"
	"github.com/odyssey-erp/gstbilling/internal/platform/lock"
	"github.com/odyssey-erp/gstbilling/internal/shared"
)

// DefaultRecomputeConcurrency bounds how many tenants recompute at once.
const DefaultRecomputeConcurrency = 4

// Recomputer rebuilds the caches of one tenant.
type Recomputer interface {
	RecomputeTenant(ctx context.Context, tenantID int64) (ledger.RecomputeReport, error)
}

// TenantLister enumerates tenants owning ledger rows.
type TenantLister interface {
	ListTenants(ctx context.Context) ([]int64, error)
}

// Locker serialises maintenance runs per tenant.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(context.Context) error) error
}

// RecomputeSummary aggregates one run.
type RecomputeSummary struct {
	Tenants int `json:"tenants"`
	Skipped int `json:"skipped"`
	Drifted int `json:"drifted"`
}

// RecomputeAllJob recomputes balance caches across tenants.
type RecomputeAllJob struct {
	Service     Recomputer
	Tenants     TenantLister
	Locker      Locker
	Concurrency int
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
}

// NewRecomputeAllJob constructs the job handler. A nil locker runs unguarded.
func NewRecomputeAllJob(service Recomputer, tenants TenantLister, locker Locker, concurrency int, logger *slog.Logger, metrics *jobmetrics.Metrics) *RecomputeAllJob {
	return &RecomputeAllJob{
		Service:     service,
		Tenants:     tenants,
		Locker:      locker,
		Concurrency: concurrency,
		Logger:      logger,
		Metrics:     metrics,
	}
}

// Handle executes the recompute job.
func (j *RecomputeAllJob) Handle(ctx context.Context, task *asynq.Task) error {
	var payload RecomputePayload
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return fmt.Errorf("decode recompute payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	_, err := j.Run(ctx, payload.TenantID)
	return err
}

// Run recomputes one tenant, or every tenant when tenantID is zero. Tenants
// whose maintenance lock is held by a merge are skipped.
func (j *RecomputeAllJob) Run(ctx context.Context, tenantID int64) (summary RecomputeSummary, resultErr error) {
	if j == nil || j.Service == nil || j.Tenants == nil {
		return RecomputeSummary{}, errors.New("recompute: dependencies not configured")
	}
	tracker := j.metrics().Track(TaskRecomputeAll)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	tenants := []int64{tenantID}
	if tenantID == 0 {
		var err error
		tenants, err = j.Tenants.ListTenants(ctx)
		if err != nil {
			j.log().Error("list tenants", slog.Any("error", err))
			return summary, err
		}
	}

	start := time.Now()
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.concurrency())
	for _, id := range tenants {
		g.Go(func() error {
			report, err := j.recompute(gctx, id)
			mu.Lock()
			defer mu.Unlock()
			if errors.Is(err, lock.ErrLocked) {
				summary.Skipped++
				j.log().Warn("tenant under maintenance, skipped", slog.Int64("tenant_id", id))
				return nil
			}
			if err != nil {
				return fmt.Errorf("recompute tenant %d: %w", id, err)
			}
			summary.Tenants++
			summary.Drifted += len(report.Drift)
			j.recordDrift(report)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		j.log().Error("recompute failed", slog.Any("error", err))
		return summary, err
	}

	j.log().Info("recomputed balance caches",
		slog.Int("tenants", summary.Tenants),
		slog.Int("skipped", summary.Skipped),
		slog.Int("drifted", summary.Drifted),
		slog.Duration("duration", time.Since(start)))
	return summary, nil
}

func (j *RecomputeAllJob) recompute(ctx context.Context, tenantID int64) (ledger.RecomputeReport, error) {
	var report ledger.RecomputeReport
	run := func(ctx context.Context) error {
		var err error
		report, err = j.Service.RecomputeTenant(ctx, tenantID)
		return err
	}
	if j.Locker == nil {
		return report, run(ctx)
	}
	return report, j.Locker.WithLock(ctx, shared.TenantLockKey(identity.MaintenanceScope, tenantID), run)
}

func (j *RecomputeAllJob) recordDrift(report ledger.RecomputeReport) {
	counts := map[string]int{}
	for _, d := range report.Drift {
		counts[d.Subject]++
	}
	for subject, n := range counts {
		j.metrics().AddDrift(subject, n)
	}
}

func (j *RecomputeAllJob) concurrency() int {
	if j.Concurrency > 0 {
		return j.Concurrency
	}
	return DefaultRecomputeConcurrency
}

func (j *RecomputeAllJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *RecomputeAllJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskRecomputeAll))
	}
	return slog.Default().With(slog.String("job", TaskRecomputeAll))
}
