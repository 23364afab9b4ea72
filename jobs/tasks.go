package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/gstbilling/internal/identity"
	jobmetrics "github.com/odyssey-erp/gstbilling/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueNotifications carries notification deliveries.
	QueueNotifications = "notifications"

	// TaskRecomputeAll rebuilds every balance cache of one or all tenants.
	TaskRecomputeAll = "ledger:recompute_all"
	// TaskMergeDuplicates consolidates duplicate customers or products of a tenant.
	TaskMergeDuplicates = "ledger:merge_duplicates"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// RecomputePayload scopes a recompute run. A zero TenantID means every tenant.
type RecomputePayload struct {
	TenantID int64 `json:"tenant_id"`
}

// NewRecomputeTask constructs an Asynq task for the recompute job.
func NewRecomputeTask(tenantID int64) (*asynq.Task, error) {
	body, err := json.Marshal(RecomputePayload{TenantID: tenantID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRecomputeAll, body, asynq.Queue(QueueDefault)), nil
}

// MergePayload selects the tenant and kind of a merge run.
type MergePayload struct {
	TenantID int64              `json:"tenant_id"`
	Kind     identity.MergeKind `json:"kind"`
}

// NewMergeTask constructs an Asynq task for the duplicate merge job.
func NewMergeTask(tenantID int64, kind identity.MergeKind) (*asynq.Task, error) {
	if tenantID <= 0 {
		return nil, fmt.Errorf("merge task: tenant id must be positive")
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("merge task: unknown kind %q", kind)
	}
	body, err := json.Marshal(MergePayload{TenantID: tenantID, Kind: kind})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskMergeDuplicates, body, asynq.Queue(QueueDefault)), nil
}
