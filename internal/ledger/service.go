package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/gstbilling/internal/notify"
	"github.com/odyssey-erp/gstbilling/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// Service runs standalone ledger operations, each in its own transaction.
// Notifications are emitted only after the transaction commits.
type Service struct {
	repo     RepositoryPort
	engine   *Engine
	notifier notify.Sink
	metrics  *Metrics
	logger   *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, engine *Engine, notifier notify.Sink, metrics *Metrics, logger *slog.Logger) *Service {
	if engine == nil {
		engine = NewEngine()
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, engine: engine, notifier: notifier, metrics: metrics, logger: logger}
}

// AddStock records a manual stock change.
func (s *Service) AddStock(ctx context.Context, entry StockEntry) (InventoryLog, Inventory, error) {
	var (
		log InventoryLog
		inv Inventory
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		log, inv, err = s.engine.AddStock(ctx, tx, entry)
		return err
	})
	if err != nil {
		return InventoryLog{}, Inventory{}, err
	}
	s.metrics.entry("inventory", "insert", 1)
	if inv.LowStock() {
		s.notifier.Notify(ctx, notify.LowStock(inv.TenantID, inv.ProductID, inv.ProductName, inv.ModelNo, inv.CurrentStock))
	}
	return log, inv, nil
}

// AddBookEntry records a manual book change.
func (s *Service) AddBookEntry(ctx context.Context, entry BookEntry) (BookLog, Book, error) {
	var (
		log  BookLog
		book Book
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		log, book, err = s.engine.AddBookEntry(ctx, tx, entry)
		return err
	})
	if err != nil {
		return BookLog{}, Book{}, err
	}
	s.metrics.entry("book", "insert", 1)
	s.paymentReceived(ctx, log, book)
	return log, book, nil
}

// AddCustomerPayment records a payment submitted by the customer. It stays
// inactive until activated or resolved.
func (s *Service) AddCustomerPayment(ctx context.Context, tenantID, bookID int64, amount decimal.Decimal, description string) (BookLog, error) {
	if !amount.IsPositive() {
		return BookLog{}, fmt.Errorf("ledger: payment amount must be positive: %w", shared.ErrValidation)
	}
	var log BookLog
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		book, err := tx.GetBook(ctx, tenantID, bookID)
		if err != nil {
			return err
		}
		log, _, err = s.engine.AddBookEntry(ctx, tx, CustomerPayment(tenantID, bookID, amount, description, book.CustomerName))
		return err
	})
	if err != nil {
		return BookLog{}, err
	}
	s.metrics.entry("book", "insert", 1)
	return log, nil
}

// ActivateEntry makes an inactive book entry count. Pending cheques stay
// out of the balance until ResolveEntry settles them.
func (s *Service) ActivateEntry(ctx context.Context, tenantID, logID int64) (BookLog, Book, error) {
	var (
		log  BookLog
		book Book
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		log, book, err = s.engine.ActivateEntry(ctx, tx, tenantID, logID)
		if err != nil {
			return err
		}
		return tx.RecordAudit(ctx, s.audit(ctx, tenantID, "book_log.activate", "book_log", log.ID, nil))
	})
	if err != nil {
		return BookLog{}, Book{}, err
	}
	s.metrics.recompute("book", 1)
	s.paymentReceived(ctx, log, book)
	return log, book, nil
}

// ResolveEntry confirms or adjusts a pending book entry.
func (s *Service) ResolveEntry(ctx context.Context, res Resolution) (BookLog, Book, error) {
	if res.CreatedBy == "" {
		res.CreatedBy = shared.ActorFromContext(ctx)
	}
	var (
		log  BookLog
		book Book
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		log, book, err = s.engine.ResolveEntry(ctx, tx, res)
		if err != nil {
			return err
		}
		meta := map[string]any{"action": string(res.Action), "result_log_id": log.ID}
		return tx.RecordAudit(ctx, s.audit(ctx, res.TenantID, "book_log.resolve", "book_log", res.LogID, meta))
	})
	if err != nil {
		return BookLog{}, Book{}, err
	}
	s.metrics.recompute("book", 1)
	s.paymentReceived(ctx, log, book)
	return log, book, nil
}

// DeleteInventoryEntry removes an inventory entry and recomputes its stock.
func (s *Service) DeleteInventoryEntry(ctx context.Context, tenantID, logID int64) (*Inventory, error) {
	var inv *Inventory
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		inv, err = s.engine.DeleteInventoryEntry(ctx, tx, tenantID, logID)
		if err != nil {
			return err
		}
		return tx.RecordAudit(ctx, s.audit(ctx, tenantID, "inventory_log.delete", "inventory_log", logID, nil))
	})
	if err != nil {
		return nil, err
	}
	s.metrics.entry("inventory", "delete", 1)
	s.metrics.recompute("inventory", 1)
	return inv, nil
}

// DeleteBookEntry removes a book entry and recomputes its balance.
func (s *Service) DeleteBookEntry(ctx context.Context, tenantID, logID int64) (Book, error) {
	var book Book
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		book, err = s.engine.DeleteBookEntry(ctx, tx, tenantID, logID)
		if err != nil {
			return err
		}
		return tx.RecordAudit(ctx, s.audit(ctx, tenantID, "book_log.delete", "book_log", logID, nil))
	})
	if err != nil {
		return Book{}, err
	}
	s.metrics.entry("book", "delete", 1)
	s.metrics.recompute("book", 1)
	return book, nil
}

// InventoryStatement returns the inventory of a product with its entries.
func (s *Service) InventoryStatement(ctx context.Context, tenantID, productID int64) (Inventory, []InventoryLog, error) {
	var (
		inv  Inventory
		logs []InventoryLog
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		if inv, err = tx.GetInventory(ctx, tenantID, productID); err != nil {
			return err
		}
		logs, err = tx.ListInventoryLogs(ctx, tenantID, productID)
		return err
	})
	return inv, logs, err
}

// BookStatement returns a book with its entries. A non-nil active filters by
// the active flag.
func (s *Service) BookStatement(ctx context.Context, tenantID, bookID int64, active *bool) (Book, []BookLog, error) {
	var (
		book Book
		logs []BookLog
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		if book, err = tx.GetBook(ctx, tenantID, bookID); err != nil {
			return err
		}
		all, err := tx.ListBookLogs(ctx, tenantID, bookID)
		if err != nil {
			return err
		}
		logs = filterActive(all, active)
		return nil
	})
	return book, logs, err
}

// RecomputeTenant rebuilds every cache of a tenant and reports the drift found.
func (s *Service) RecomputeTenant(ctx context.Context, tenantID int64) (RecomputeReport, error) {
	var report RecomputeReport
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		report, err = s.engine.RecomputeTenant(ctx, tx, tenantID)
		return err
	})
	if err != nil {
		return RecomputeReport{}, err
	}
	s.metrics.recompute("inventory", report.Inventories)
	s.metrics.recompute("book", report.Books)
	if len(report.Drift) > 0 {
		s.logger.Warn("balance cache drift corrected",
			slog.Int64("tenant_id", tenantID),
			slog.Int("drifted", len(report.Drift)))
	}
	return report, nil
}

// AddPurchase records a vendor purchase entry.
func (s *Service) AddPurchase(ctx context.Context, log PurchaseLog) (PurchaseLog, error) {
	var out PurchaseLog
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = s.engine.AddPurchase(ctx, tx, log)
		return err
	})
	if err != nil {
		return PurchaseLog{}, err
	}
	s.metrics.entry("purchase", "insert", 1)
	return out, nil
}

// DeletePurchase removes a vendor purchase entry.
func (s *Service) DeletePurchase(ctx context.Context, tenantID, id int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.DeletePurchaseLog(ctx, tenantID, id)
	})
	if err != nil {
		return err
	}
	s.metrics.entry("purchase", "delete", 1)
	return nil
}

// ListPurchases returns purchase entries, newest first, with their totals.
func (s *Service) ListPurchases(ctx context.Context, tenantID int64, vendorID *int64) ([]PurchaseLog, PurchaseTotals, error) {
	var logs []PurchaseLog
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		logs, err = tx.ListPurchaseLogs(ctx, tenantID, vendorID)
		return err
	})
	if err != nil {
		return nil, PurchaseTotals{}, err
	}
	return logs, SumPurchases(logs), nil
}

func (s *Service) paymentReceived(ctx context.Context, log BookLog, book Book) {
	if log.ChangeType != BookPaid || !log.Counts() {
		return
	}
	s.notifier.Notify(ctx, notify.PaymentReceived(book.TenantID, book.CustomerID, log.Change, book.CustomerName))
}

func (s *Service) audit(ctx context.Context, tenantID int64, action, entity string, id int64, meta map[string]any) shared.AuditLog {
	return shared.AuditLog{
		TenantID: tenantID,
		Actor:    shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   entity,
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	}
}

func filterActive(logs []BookLog, active *bool) []BookLog {
	if active == nil {
		return logs
	}
	out := make([]BookLog, 0, len(logs))
	for _, log := range logs {
		if log.IsActive == *active {
			out = append(out, log)
		}
	}
	return out
}
