package quotations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/gstbilling/internal/billing"
	"github.com/odyssey-erp/gstbilling/internal/platform/db"
)

// TxRepository adds quotations to the invoice store.
type TxRepository interface {
	billing.TxRepository

	InsertQuotation(ctx context.Context, q Quotation) (Quotation, error)
	GetQuotation(ctx context.Context, tenantID, id int64) (Quotation, error)
	GetQuotationForUpdate(ctx context.Context, tenantID, id int64) (Quotation, error)
	ListQuotations(ctx context.Context, tenantID int64, status *QuotationStatus) ([]Quotation, error)
	UpdateQuotation(ctx context.Context, q Quotation) error
	SetQuotationStatus(ctx context.Context, tenantID, id int64, status QuotationStatus) error
	LinkInvoice(ctx context.Context, tenantID, id, invoiceID int64, status QuotationStatus, at time.Time, by string) error
	DeleteQuotation(ctx context.Context, tenantID, id int64) error
}

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewQueries(tx))
	})
}

// Queries implements TxRepository.
type Queries struct {
	*billing.Queries
	db db.DBTX
}

func NewQueries(conn db.DBTX) *Queries {
	return &Queries{Queries: billing.NewQueries(conn), db: conn}
}

const quotationColumns = `q.id, q.tenant_id, q.quotation_number, q.quotation_date, q.valid_until, q.customer_id,
	COALESCE(c.name, ''), q.quotation_json, q.is_gst, q.status, q.converted_invoice_id, q.converted_at,
	q.converted_by, q.created_by_customer, q.notes, q.created_at, q.updated_at`

func scanQuotation(row pgx.Row) (Quotation, error) {
	var q Quotation
	err := row.Scan(&q.ID, &q.TenantID, &q.Number, &q.Date, &q.ValidUntil, &q.CustomerID,
		&q.CustomerName, &q.Payload, &q.IsGST, &q.Status, &q.ConvertedInvoiceID, &q.ConvertedAt,
		&q.ConvertedBy, &q.CreatedByCustomer, &q.Notes, &q.CreatedAt, &q.UpdatedAt)
	return q, err
}

func (r *Queries) InsertQuotation(ctx context.Context, q Quotation) (Quotation, error) {
	err := r.db.QueryRow(ctx, `
		INSERT INTO quotations (tenant_id, quotation_number, quotation_date, valid_until, customer_id,
			quotation_json, is_gst, status, created_by_customer, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at`,
		q.TenantID, q.Number, q.Date, q.ValidUntil, q.CustomerID,
		q.Payload, q.IsGST, q.Status, q.CreatedByCustomer, q.Notes).
		Scan(&q.ID, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		return Quotation{}, fmt.Errorf("insert quotation: %w", err)
	}
	return q, nil
}

func (r *Queries) GetQuotation(ctx context.Context, tenantID, id int64) (Quotation, error) {
	return r.getQuotation(ctx, tenantID, id, "")
}

func (r *Queries) GetQuotationForUpdate(ctx context.Context, tenantID, id int64) (Quotation, error) {
	return r.getQuotation(ctx, tenantID, id, "FOR UPDATE OF q")
}

func (r *Queries) getQuotation(ctx context.Context, tenantID, id int64, lock string) (Quotation, error) {
	q, err := scanQuotation(r.db.QueryRow(ctx, `
		SELECT `+quotationColumns+`
		FROM quotations q LEFT JOIN customers c ON c.id = q.customer_id
		WHERE q.tenant_id = $1 AND q.id = $2 `+lock, tenantID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Quotation{}, fmt.Errorf("%w: id %d", ErrQuotationNotFound, id)
	}
	return q, err
}

func (r *Queries) ListQuotations(ctx context.Context, tenantID int64, status *QuotationStatus) ([]Quotation, error) {
	var filter *string
	if status != nil {
		s := string(*status)
		filter = &s
	}
	rows, err := r.db.Query(ctx, `
		SELECT `+quotationColumns+`
		FROM quotations q LEFT JOIN customers c ON c.id = q.customer_id
		WHERE q.tenant_id = $1 AND ($2::text IS NULL OR q.status = $2)
		ORDER BY q.quotation_date DESC, q.id DESC`, tenantID, filter)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Quotation, error) {
		return scanQuotation(row)
	})
}

func (r *Queries) UpdateQuotation(ctx context.Context, q Quotation) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE quotations
		SET quotation_date = $3, valid_until = $4, customer_id = $5, quotation_json = $6, notes = $7, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2`,
		q.TenantID, q.ID, q.Date, q.ValidUntil, q.CustomerID, q.Payload, q.Notes)
	return expectOne(tag.RowsAffected(), err, q.ID)
}

func (r *Queries) SetQuotationStatus(ctx context.Context, tenantID, id int64, status QuotationStatus) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE quotations SET status = $3, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2`, tenantID, id, status)
	return expectOne(tag.RowsAffected(), err, id)
}

func (r *Queries) LinkInvoice(ctx context.Context, tenantID, id, invoiceID int64, status QuotationStatus, at time.Time, by string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE quotations
		SET converted_invoice_id = $3, status = $4, converted_at = $5, converted_by = $6, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2`, tenantID, id, invoiceID, status, at, by)
	return expectOne(tag.RowsAffected(), err, id)
}

func (r *Queries) DeleteQuotation(ctx context.Context, tenantID, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM quotations WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	return expectOne(tag.RowsAffected(), err, id)
}

func expectOne(affected int64, err error, id int64) error {
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: id %d", ErrQuotationNotFound, id)
	}
	return nil
}
