package quotations

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/odyssey-erp/gstbilling/internal/billing"
	"github.com/odyssey-erp/gstbilling/internal/identity"
	"github.com/odyssey-erp/gstbilling/internal/notify"
	"github.com/odyssey-erp/gstbilling/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

type Service struct {
	repo     RepositoryPort
	invoices *billing.Service
	resolver *identity.Resolver
	notifier notify.Sink
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(repo RepositoryPort, invoices *billing.Service, resolver *identity.Resolver, notifier notify.Sink, logger *slog.Logger) *Service {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		invoices: invoices,
		resolver: resolver,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock overrides the service clock.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *Service) Create(ctx context.Context, tenantID int64, req CreateQuotationRequest) (Quotation, error) {
	payload, date, err := checkPayload(req.Payload)
	if err != nil {
		return Quotation{}, err
	}
	validUntil := date.Add(DefaultValidity)
	if req.ValidUntil != nil {
		validUntil = *req.ValidUntil
	}
	if validUntil.Before(date) {
		return Quotation{}, ErrValidUntil
	}

	var created Quotation
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		customer, _, err := s.resolver.FindOrCreateCustomer(ctx, tx, tenantID, payload.CustomerKey())
		if err != nil {
			return err
		}
		p := payload
		number, ok, _ := p.Number()
		if !ok {
			number, err = billing.NextNumber(ctx, tx, billing.DocQuotation, tenantID, req.IsGST)
			if err != nil {
				return err
			}
			p.InvoiceNumber = strconv.FormatInt(number, 10)
		} else if err := billing.ReserveNumber(ctx, tx, billing.DocQuotation, tenantID, req.IsGST, number); err != nil {
			return err
		}
		created, err = tx.InsertQuotation(ctx, Quotation{
			TenantID:          tenantID,
			Number:            number,
			Date:              date,
			ValidUntil:        &validUntil,
			CustomerID:        &customer.ID,
			Payload:           p,
			IsGST:             req.IsGST,
			Status:            QuotationStatusDraft,
			CreatedByCustomer: req.CreatedByCustomer,
			Notes:             req.Notes,
		})
		if err != nil {
			return err
		}
		created.CustomerName = customer.Name
		return tx.RecordAudit(ctx, audit(ctx, tenantID, "quotation.create", created.ID, nil))
	})
	if err != nil {
		return Quotation{}, err
	}
	s.notifier.Notify(ctx, notify.QuotationCreated(tenantID, created.ID, created.Number, created.CustomerName))
	return created, nil
}

func (s *Service) Update(ctx context.Context, tenantID, id int64, req UpdateQuotationRequest) (Quotation, error) {
	payload, date, err := checkPayload(req.Payload)
	if err != nil {
		return Quotation{}, err
	}

	var updated Quotation
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		q, err := tx.GetQuotationForUpdate(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if !q.CanBeEdited() {
			return fmt.Errorf("%w: quotation %d is %s and cannot be edited", ErrInvalidStatus, q.Number, q.Status)
		}
		customer, _, err := s.resolver.FindOrCreateCustomer(ctx, tx, tenantID, payload.CustomerKey())
		if err != nil {
			return err
		}
		payload.InvoiceNumber = strconv.FormatInt(q.Number, 10)
		q.Payload = payload
		q.Date = date
		q.CustomerID = &customer.ID
		q.CustomerName = customer.Name
		if req.ValidUntil != nil {
			q.ValidUntil = req.ValidUntil
		}
		if q.ValidUntil != nil && q.ValidUntil.Before(q.Date) {
			return ErrValidUntil
		}
		if req.Notes != nil {
			q.Notes = *req.Notes
		}
		if err := tx.UpdateQuotation(ctx, q); err != nil {
			return err
		}
		updated = q
		return tx.RecordAudit(ctx, audit(ctx, tenantID, "quotation.update", q.ID, nil))
	})
	return updated, err
}

// Approve moves a draft to APPROVED.
func (s *Service) Approve(ctx context.Context, tenantID, id int64) (Quotation, error) {
	var approved Quotation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		q, err := tx.GetQuotationForUpdate(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if q.Status != QuotationStatusDraft {
			return fmt.Errorf("%w: only draft quotations can be approved", ErrInvalidStatus)
		}
		if err := tx.SetQuotationStatus(ctx, tenantID, id, QuotationStatusApproved); err != nil {
			return err
		}
		q.Status = QuotationStatusApproved
		approved = q
		return tx.RecordAudit(ctx, audit(ctx, tenantID, "quotation.approve", id, nil))
	})
	if err != nil {
		return Quotation{}, err
	}
	s.notifier.Notify(ctx, notify.QuotationApproved(tenantID, approved.ID, approved.Number))
	return approved, nil
}

// UpdateStatus records a fulfilment status. CONVERTED is terminal and needs
// a linked invoice.
func (s *Service) UpdateStatus(ctx context.Context, tenantID, id int64, status QuotationStatus) (Quotation, error) {
	if !status.Valid() {
		return Quotation{}, fmt.Errorf("%w: %q", ErrUnknownStatus, status)
	}
	var out Quotation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		q, err := tx.GetQuotationForUpdate(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if q.Status == QuotationStatusConverted && status != QuotationStatusConverted {
			return fmt.Errorf("%w: converted quotations cannot move back to %s", ErrInvalidStatus, status)
		}
		if status == QuotationStatusConverted && q.ConvertedInvoiceID == nil {
			return fmt.Errorf("%w: quotation %d has no invoice", ErrInvalidStatus, q.Number)
		}
		if err := tx.SetQuotationStatus(ctx, tenantID, id, status); err != nil {
			return err
		}
		old := q.Status
		q.Status = status
		out = q
		return tx.RecordAudit(ctx, audit(ctx, tenantID, "quotation.status", id, map[string]any{
			"from": old,
			"to":   status,
		}))
	})
	return out, err
}

// MarkReceived confirms customer receipt of a delivered, invoiced order.
func (s *Service) MarkReceived(ctx context.Context, tenantID, id int64) (Quotation, error) {
	var out Quotation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		q, err := tx.GetQuotationForUpdate(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if q.Status != QuotationStatusDelivered || q.ConvertedInvoiceID == nil {
			return fmt.Errorf("%w: only delivered orders can be marked as received", ErrInvalidStatus)
		}
		if err := tx.SetQuotationStatus(ctx, tenantID, id, QuotationStatusConverted); err != nil {
			return err
		}
		q.Status = QuotationStatusConverted
		out = q
		return tx.RecordAudit(ctx, audit(ctx, tenantID, "quotation.received", id, nil))
	})
	return out, err
}

func (s *Service) Delete(ctx context.Context, tenantID, id int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		q, err := tx.GetQuotationForUpdate(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if !q.CanBeDeleted() {
			return fmt.Errorf("%w: cannot delete a quotation with an invoice", ErrInvalidStatus)
		}
		if err := tx.DeleteQuotation(ctx, tenantID, id); err != nil {
			return err
		}
		return tx.RecordAudit(ctx, audit(ctx, tenantID, "quotation.delete", id, map[string]any{"quotation_number": q.Number}))
	})
}

// Convert issues an invoice dated today from the frozen quotation payload and
// moves the quotation to DELIVERED. Receipt confirmation later moves it to
// CONVERTED.
func (s *Service) Convert(ctx context.Context, tenantID, id int64) (Conversion, error) {
	return s.convert(ctx, tenantID, id, false)
}

// Reconvert re-issues the invoice of a converted quotation whose invoice was deleted.
func (s *Service) Reconvert(ctx context.Context, tenantID, id int64) (Conversion, error) {
	return s.convert(ctx, tenantID, id, true)
}

func (s *Service) convert(ctx context.Context, tenantID, id int64, again bool) (Conversion, error) {
	var (
		out    Conversion
		issued billing.Issued
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		q, err := tx.GetQuotationForUpdate(ctx, tenantID, id)
		if err != nil {
			return err
		}
		status := QuotationStatusDelivered
		if again {
			if q.Status != QuotationStatusConverted {
				return fmt.Errorf("%w: only converted quotations can be reconverted", ErrInvalidStatus)
			}
			if q.ConvertedInvoiceID != nil {
				return fmt.Errorf("%w: invoice still exists", ErrInvalidStatus)
			}
			status = QuotationStatusConverted
		} else if !q.CanBeConverted() {
			return fmt.Errorf("%w: quotation %d cannot be converted from %s", ErrInvalidStatus, q.Number, q.Status)
		}
		if q.CustomerID == nil {
			return fmt.Errorf("%w: quotation %d", billing.ErrCustomerRequired, q.Number)
		}

		now := s.now()
		issued, err = s.invoices.Issue(ctx, tx, billing.Draft{
			TenantID:     tenantID,
			CustomerID:   *q.CustomerID,
			CustomerName: q.CustomerName,
			Date:         time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()),
			IsGST:        q.IsGST,
			Payload:      q.Payload,
		})
		if err != nil {
			return err
		}
		by := shared.ActorFromContext(ctx)
		if err := tx.LinkInvoice(ctx, tenantID, id, issued.Invoice.ID, status, now, by); err != nil {
			return err
		}
		q.Status = status
		q.ConvertedInvoiceID = &issued.Invoice.ID
		q.ConvertedAt = &now
		q.ConvertedBy = &by
		out = Conversion{Quotation: q, Invoice: issued.Invoice}

		action := "quotation.convert"
		if again {
			action = "quotation.reconvert"
		}
		return tx.RecordAudit(ctx, audit(ctx, tenantID, action, id, map[string]any{
			"invoice_id":     issued.Invoice.ID,
			"invoice_number": issued.Invoice.Number,
		}))
	})
	if err != nil {
		return Conversion{}, err
	}
	s.logger.Info("quotation converted",
		slog.Int64("tenant_id", tenantID),
		slog.Int64("quotation_id", id),
		slog.Int64("invoice_number", out.Invoice.Number),
		slog.Bool("reconvert", again))
	s.invoices.Announce(ctx, issued)
	return out, nil
}

func (s *Service) Get(ctx context.Context, tenantID, id int64) (Quotation, error) {
	var q Quotation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		q, err = tx.GetQuotation(ctx, tenantID, id)
		return err
	})
	return q, err
}

func (s *Service) List(ctx context.Context, tenantID int64, status *QuotationStatus) ([]Quotation, error) {
	var out []Quotation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = tx.ListQuotations(ctx, tenantID, status)
		return err
	})
	return out, err
}

func checkPayload(p billing.Payload) (billing.Payload, time.Time, error) {
	p = p.Normalize()
	if err := p.Validate(); err != nil {
		return billing.Payload{}, time.Time{}, err
	}
	date, err := p.Date()
	if err != nil {
		return billing.Payload{}, time.Time{}, err
	}
	return p, date, nil
}

func audit(ctx context.Context, tenantID int64, action string, id int64, meta map[string]any) shared.AuditLog {
	return shared.AuditLog{
		TenantID: tenantID,
		Actor:    shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   "quotation",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	}
}
