package billing

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/odyssey-erp/gstbilling/internal/identity"
	"github.com/odyssey-erp/gstbilling/internal/ledger"
	"github.com/odyssey-erp/gstbilling/internal/notify"
	"github.com/odyssey-erp/gstbilling/internal/shared"
)

const idempotencyModule = "invoice.create"

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// Service issues, deletes and repairs invoices.
type Service struct {
	repo     RepositoryPort
	resolver *identity.Resolver
	engine   *ledger.Engine
	notifier notify.Sink
	logger   *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, resolver *identity.Resolver, engine *ledger.Engine, notifier notify.Sink, logger *slog.Logger) *Service {
	if engine == nil {
		engine = ledger.NewEngine()
	}
	if resolver == nil {
		resolver = identity.NewResolver(identity.NewNormalizer(""), engine)
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, resolver: resolver, engine: engine, notifier: notifier, logger: logger}
}

// CreateInvoice resolves the customer and products, numbers the invoice and
// applies it to both ledgers in one transaction.
func (s *Service) CreateInvoice(ctx context.Context, tenantID int64, req CreateRequest) (Issued, error) {
	payload := req.Payload.Normalize()
	if err := payload.Validate(); err != nil {
		return Issued{}, err
	}
	number, _, _ := payload.Number()
	date, err := payload.Date()
	if err != nil {
		return Issued{}, err
	}

	var issued Issued
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if req.IdempotencyKey != "" {
			if err := tx.ClaimIdempotencyKey(ctx, tenantID, req.IdempotencyKey, idempotencyModule); err != nil {
				return err
			}
		}
		customer, _, err := s.resolver.FindOrCreateCustomer(ctx, tx, tenantID, payload.CustomerKey())
		if err != nil {
			return err
		}
		issued, err = s.Issue(ctx, tx, Draft{
			TenantID:     tenantID,
			CustomerID:   customer.ID,
			CustomerName: customer.Name,
			Number:       number,
			Date:         date,
			IsGST:        req.IsGST,
			Payload:      payload,
		})
		if err != nil {
			return err
		}
		return tx.RecordAudit(ctx, audit(ctx, tenantID, "invoice.create", issued.Invoice.ID, map[string]any{
			"invoice_number": issued.Invoice.Number,
		}))
	})
	if err != nil {
		return Issued{}, err
	}
	s.logger.Info("invoice created",
		slog.Int64("tenant_id", tenantID),
		slog.Int64("invoice_id", issued.Invoice.ID),
		slog.Int64("invoice_number", issued.Invoice.Number))
	s.Announce(ctx, issued)
	return issued, nil
}

// Issue inserts and applies an invoice inside the caller's transaction.
// A zero Number allocates the next number in the tenant's series.
func (s *Service) Issue(ctx context.Context, tx TxRepository, d Draft) (Issued, error) {
	lines := make([]ledger.Line, 0, len(d.Payload.Items))
	for _, it := range d.Payload.Items {
		p, _, err := s.resolver.FindOrCreateProduct(ctx, tx, d.TenantID, it.Product())
		if err != nil {
			return Issued{}, fmt.Errorf("resolve product %q: %w", it.ModelNo, err)
		}
		lines = append(lines, ledger.Line{Key: p.Key(), Qty: it.Qty})
	}

	number := d.Number
	if number == 0 {
		var err error
		number, err = NextNumber(ctx, tx, DocInvoice, d.TenantID, d.IsGST)
		if err != nil {
			return Issued{}, err
		}
	} else if err := ReserveNumber(ctx, tx, DocInvoice, d.TenantID, d.IsGST, number); err != nil {
		return Issued{}, err
	}
	payload := d.Payload
	payload.InvoiceNumber = strconv.FormatInt(number, 10)
	customerID := d.CustomerID

	inv, err := tx.InsertInvoice(ctx, Invoice{
		TenantID:   d.TenantID,
		Number:     number,
		Date:       d.Date,
		CustomerID: &customerID,
		Payload:    payload,
		IsGST:      d.IsGST,
	})
	if err != nil {
		return Issued{}, err
	}
	inv.CustomerName = d.CustomerName

	applied, err := s.engine.ApplyInvoice(ctx, tx, ledger.InvoiceApplication{
		TenantID:   d.TenantID,
		InvoiceID:  inv.ID,
		CustomerID: customerID,
		Date:       d.Date,
		IsGST:      d.IsGST,
		Total:      payload.Total(),
		Lines:      lines,
	})
	if err != nil {
		return Issued{}, fmt.Errorf("apply invoice %d: %w", inv.Number, err)
	}
	inv.InventoryReflected, inv.BooksReflected = true, true
	if err := tx.SetReflected(ctx, inv.TenantID, inv.ID, true, true); err != nil {
		return Issued{}, err
	}
	return Issued{Invoice: inv, Applied: applied}, nil
}

// Announce emits the invoice-created and low-stock notifications. Call it
// only after the issuing transaction has committed.
func (s *Service) Announce(ctx context.Context, issued Issued) {
	inv := issued.Invoice
	events := []notify.Event{notify.InvoiceCreated(inv.TenantID, inv.ID, inv.Number, inv.CustomerName)}
	for _, stock := range issued.Applied.Inventories {
		if stock.LowStock() {
			events = append(events, notify.LowStock(stock.TenantID, stock.ProductID, stock.ProductName, stock.ModelNo, stock.CurrentStock))
		}
	}
	s.notifier.Notify(ctx, events...)
}

// DeleteInvoice reverses the selected ledger sides, unlinks any quotation
// converted into the invoice and deletes it.
func (s *Service) DeleteInvoice(ctx context.Context, tenantID, id int64, scope ledger.ReverseScope) (ledger.Reversed, error) {
	var reversed ledger.Reversed
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoiceForUpdate(ctx, tenantID, id)
		if err != nil {
			return err
		}
		reversed, err = s.engine.ReverseInvoice(ctx, tx, tenantID, id, scope)
		if err != nil {
			return err
		}
		if _, err := tx.ClearQuotationLink(ctx, tenantID, id); err != nil {
			return fmt.Errorf("clear quotation link: %w", err)
		}
		if err := tx.DeleteInvoice(ctx, tenantID, id); err != nil {
			return err
		}
		return tx.RecordAudit(ctx, audit(ctx, tenantID, "invoice.delete", id, map[string]any{
			"invoice_number": inv.Number,
			"inventory":      scope.Inventory,
			"books":          scope.Books,
		}))
	})
	if err != nil {
		return ledger.Reversed{}, err
	}
	return reversed, nil
}

// PushToBooks re-applies whichever ledger side of an invoice is missing. A
// reflected flag with no linked entries is stale and is reset first; a side
// that already has its entries is never applied twice.
func (s *Service) PushToBooks(ctx context.Context, tenantID, id int64) (Repair, error) {
	var repair Repair
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		repair = Repair{}
		inv, err := tx.GetInvoiceForUpdate(ctx, tenantID, id)
		if err != nil {
			return err
		}
		app := ledger.InvoiceApplication{
			TenantID:  tenantID,
			InvoiceID: inv.ID,
			Date:      inv.Date,
			IsGST:     inv.IsGST,
			Total:     inv.Payload.Total(),
		}

		bookLogs, err := tx.ListBookLogsByInvoice(ctx, tenantID, inv.ID)
		if err != nil {
			return err
		}
		if inv.BooksReflected && len(bookLogs) == 0 {
			inv.BooksReflected = false
			repair.StaleFlagsReset++
		}
		if !inv.BooksReflected {
			if len(bookLogs) == 0 {
				if inv.CustomerID == nil {
					return fmt.Errorf("%w: invoice %d", ErrCustomerRequired, inv.Number)
				}
				app.CustomerID = *inv.CustomerID
				if _, err := s.engine.ApplyBook(ctx, tx, app); err != nil {
					return fmt.Errorf("apply book side of invoice %d: %w", inv.Number, err)
				}
				repair.Books = true
			}
			inv.BooksReflected = true
		}

		invLogs, err := tx.ListInventoryLogsByInvoice(ctx, tenantID, inv.ID)
		if err != nil {
			return err
		}
		hasItems := len(inv.Payload.Items) > 0
		if inv.InventoryReflected && hasItems && len(invLogs) == 0 {
			inv.InventoryReflected = false
			repair.StaleFlagsReset++
		}
		if !inv.InventoryReflected {
			if hasItems && len(invLogs) == 0 {
				app.Lines, err = s.repairLines(ctx, tx, tenantID, inv.Payload)
				if err != nil {
					return fmt.Errorf("resolve products of invoice %d: %w", inv.Number, err)
				}
				if _, err := s.engine.ApplyInventory(ctx, tx, app); err != nil {
					return fmt.Errorf("apply inventory side of invoice %d: %w", inv.Number, err)
				}
				repair.Inventory = true
			}
			inv.InventoryReflected = true
		}

		if err := tx.SetReflected(ctx, tenantID, inv.ID, inv.InventoryReflected, inv.BooksReflected); err != nil {
			return err
		}
		if !repair.Books && !repair.Inventory {
			return nil
		}
		return tx.RecordAudit(ctx, audit(ctx, tenantID, "invoice.push_to_books", inv.ID, map[string]any{
			"inventory":   repair.Inventory,
			"books":       repair.Books,
			"stale_flags": repair.StaleFlagsReset,
		}))
	})
	if err != nil {
		return Repair{}, err
	}
	if repair.Books || repair.Inventory {
		s.logger.Warn("invoice ledgers repaired",
			slog.Int64("tenant_id", tenantID),
			slog.Int64("invoice_id", id),
			slog.Bool("inventory", repair.Inventory),
			slog.Bool("books", repair.Books))
	}
	return repair, nil
}

// repairLines resolves each line's product, creating any the tenant no longer
// has, and leaves existing rates alone.
func (s *Service) repairLines(ctx context.Context, tx TxRepository, tenantID int64, p Payload) ([]ledger.Line, error) {
	out := make([]ledger.Line, 0, len(p.Items))
	for _, it := range p.Items {
		product, _, err := s.resolver.EnsureProduct(ctx, tx, tenantID, it.Product())
		if err != nil {
			return nil, fmt.Errorf("resolve product %q: %w", it.ModelNo, err)
		}
		out = append(out, ledger.Line{Key: product.Key(), Qty: it.Qty})
	}
	return out, nil
}

// GetInvoice returns one invoice.
func (s *Service) GetInvoice(ctx context.Context, tenantID, id int64) (Invoice, error) {
	var inv Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		inv, err = tx.GetInvoice(ctx, tenantID, id)
		return err
	})
	return inv, err
}

// ListInvoices returns the tenant's invoices, newest first.
func (s *Service) ListInvoices(ctx context.Context, tenantID int64) ([]Invoice, error) {
	var out []Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = tx.ListInvoices(ctx, tenantID)
		return err
	})
	return out, err
}

func audit(ctx context.Context, tenantID int64, action string, id int64, meta map[string]any) shared.AuditLog {
	return shared.AuditLog{
		TenantID: tenantID,
		Actor:    shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   "invoice",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	}
}
