package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/odyssey-erp/gstbilling/internal/shared"
)

// MaintenanceScope is the tenant lock scope shared by merges and recomputes.
const MaintenanceScope = "maintenance"

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TenantLocker serialises maintenance runs per tenant.
type TenantLocker interface {
	WithLock(ctx context.Context, key string, fn func(context.Context) error) error
}

// Service runs bulk registration and duplicate merges.
type Service struct {
	repo     RepositoryPort
	resolver *Resolver
	merger   *Merger
	locker   TenantLocker
	logger   *slog.Logger
}

// NewService builds Service. A nil locker runs merges unlocked.
func NewService(repo RepositoryPort, resolver *Resolver, merger *Merger, locker TenantLocker, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, resolver: resolver, merger: merger, locker: locker, logger: logger}
}

// RegisterCustomers inserts each customer in its own transaction. Collisions
// and invalid rows are skipped and counted.
func (s *Service) RegisterCustomers(ctx context.Context, tenantID int64, customers []Customer) BulkResult {
	var result BulkResult
	for i, c := range customers {
		err := shared.Validate(c)
		if err == nil {
			err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
				_, err := s.resolver.RegisterCustomer(ctx, tx, tenantID, c)
				return err
			})
		}
		if err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: %v", i+1, err))
			if !errors.Is(err, shared.ErrConflict) && !errors.Is(err, shared.ErrValidation) {
				s.logger.Error("register customer", slog.Int64("tenant_id", tenantID), slog.Any("error", err))
			}
			continue
		}
		result.Inserted++
	}
	return result
}

// RegisterProducts inserts each product in its own transaction.
func (s *Service) RegisterProducts(ctx context.Context, tenantID int64, regs []ProductRegistration) BulkResult {
	var result BulkResult
	for i, reg := range regs {
		err := shared.Validate(reg)
		if err == nil {
			err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
				_, err := s.resolver.RegisterProduct(ctx, tx, tenantID, reg)
				return err
			})
		}
		if err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: %v", i+1, err))
			if !errors.Is(err, shared.ErrConflict) && !errors.Is(err, shared.ErrValidation) {
				s.logger.Error("register product", slog.Int64("tenant_id", tenantID), slog.Any("error", err))
			}
			continue
		}
		result.Inserted++
	}
	return result
}

// Merge consolidates duplicate customers or products of one tenant while
// holding the tenant maintenance lock. Each group commits on its own.
func (s *Service) Merge(ctx context.Context, tenantID int64, kind MergeKind) (MergeReport, error) {
	if !kind.Valid() {
		return MergeReport{}, fmt.Errorf("%w: %q", ErrInvalidMergeKind, kind)
	}
	var report MergeReport
	run := func(ctx context.Context) error {
		var err error
		report, err = s.merge(ctx, tenantID, kind)
		return err
	}
	var err error
	if s.locker == nil {
		err = run(ctx)
	} else {
		err = s.locker.WithLock(ctx, shared.TenantLockKey(MaintenanceScope, tenantID), run)
	}
	if err != nil {
		return report, err
	}
	s.logger.Info("duplicates merged",
		slog.Int64("tenant_id", tenantID),
		slog.String("kind", string(kind)),
		slog.Int("groups", report.Groups),
		slog.Int("removed", report.Removed),
		slog.Int64("logs_moved", report.LogsMoved))
	return report, nil
}

func (s *Service) merge(ctx context.Context, tenantID int64, kind MergeKind) (MergeReport, error) {
	report := MergeReport{Kind: kind}

	var keys []string
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		if kind == MergeCustomers {
			keys, err = tx.DuplicateCustomerNames(ctx, tenantID)
		} else {
			keys, err = tx.DuplicateModelNos(ctx, tenantID)
		}
		return err
	})
	if err != nil {
		return report, fmt.Errorf("list duplicate %s: %w", kind, err)
	}

	for _, key := range keys {
		var group MergeReport
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			var err error
			if kind == MergeCustomers {
				group, err = s.merger.MergeCustomerGroup(ctx, tx, tenantID, key)
			} else {
				group, err = s.merger.MergeProductGroup(ctx, tx, tenantID, key)
			}
			if err != nil {
				return err
			}
			return tx.RecordAudit(ctx, shared.AuditLog{
				TenantID: tenantID,
				Actor:    shared.ActorFromContext(ctx),
				Action:   "merge." + string(kind),
				Entity:   string(kind),
				EntityID: key,
				Meta: map[string]any{
					"removed":    group.Removed,
					"logs_moved": strconv.FormatInt(group.LogsMoved, 10),
				},
			})
		})
		if err != nil {
			return report, fmt.Errorf("merge %s %q: %w", kind, key, err)
		}
		report.add(group)
	}
	return report, nil
}
