package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/gstbilling/internal/identity"
	"github.com/odyssey-erp/gstbilling/internal/platform/db"
	"github.com/odyssey-erp/gstbilling/internal/shared"
)

// TxRepository adds invoices and numbering to the identity store.
type TxRepository interface {
	identity.TxRepository
	NumberingRepository

	InsertInvoice(ctx context.Context, inv Invoice) (Invoice, error)
	GetInvoice(ctx context.Context, tenantID, id int64) (Invoice, error)
	GetInvoiceForUpdate(ctx context.Context, tenantID, id int64) (Invoice, error)
	ListInvoices(ctx context.Context, tenantID int64) ([]Invoice, error)
	SetReflected(ctx context.Context, tenantID, id int64, inventory, books bool) error
	DeleteInvoice(ctx context.Context, tenantID, id int64) error
	ClearQuotationLink(ctx context.Context, tenantID, invoiceID int64) (int64, error)
	ClaimIdempotencyKey(ctx context.Context, tenantID int64, key, module string) error
}

// Repository persists invoices in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
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
	*identity.Queries
	db db.DBTX
}

// NewQueries constructs Queries.
func NewQueries(conn db.DBTX) *Queries {
	return &Queries{Queries: identity.NewQueries(conn), db: conn}
}

// ============================================================================
// Numbering
// ============================================================================

func (q *Queries) GetBusinessProfile(ctx context.Context, tenantID int64) (BusinessProfile, error) {
	p := BusinessProfile{TenantID: tenantID}
	err := q.db.QueryRow(ctx, `
		SELECT business_title, business_gst FROM business_profiles WHERE tenant_id = $1`, tenantID).
		Scan(&p.BusinessTitle, &p.BusinessGST)
	if errors.Is(err, pgx.ErrNoRows) {
		return p, nil
	}
	return p, err
}

// ClaimNumberSeries writes the series row. Under RepeatableRead a concurrent
// claim committed after this transaction's snapshot raises 40001.
func (q *Queries) ClaimNumberSeries(ctx context.Context, key string, number int64) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO document_series (series_key, last_number, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (series_key) DO UPDATE
		SET last_number = GREATEST(document_series.last_number, EXCLUDED.last_number), updated_at = NOW()`, key, number)
	return err
}

func (q *Queries) MaxNumber(ctx context.Context, doc Document, tenantID int64, isGST bool, businessGST string) (int64, error) {
	table, column := "invoices", "invoice_number"
	if doc == DocQuotation {
		table, column = "quotations", "quotation_number"
	}
	var last int64
	if isGST && businessGST != "" {
		err := q.db.QueryRow(ctx, `
			SELECT COALESCE(MAX(d.`+column+`), 0)
			FROM `+table+` d JOIN business_profiles p ON p.tenant_id = d.tenant_id
			WHERE p.business_gst = $1 AND d.is_gst`, businessGST).Scan(&last)
		return last, err
	}
	err := q.db.QueryRow(ctx, `
		SELECT COALESCE(MAX(`+column+`), 0) FROM `+table+`
		WHERE tenant_id = $1 AND is_gst = $2`, tenantID, isGST).Scan(&last)
	return last, err
}

// ============================================================================
// Invoices
// ============================================================================

const invoiceColumns = `i.id, i.tenant_id, i.invoice_number, i.invoice_date, i.customer_id, COALESCE(c.name, ''),
	i.invoice_json, i.is_gst, i.inventory_reflected, i.books_reflected, i.created_at`

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.TenantID, &inv.Number, &inv.Date, &inv.CustomerID, &inv.CustomerName,
		&inv.Payload, &inv.IsGST, &inv.InventoryReflected, &inv.BooksReflected, &inv.CreatedAt)
	return inv, err
}

func (q *Queries) InsertInvoice(ctx context.Context, inv Invoice) (Invoice, error) {
	err := q.db.QueryRow(ctx, `
		INSERT INTO invoices (tenant_id, invoice_number, invoice_date, customer_id, invoice_json, is_gst, inventory_reflected, books_reflected)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`,
		inv.TenantID, inv.Number, inv.Date, inv.CustomerID, inv.Payload, inv.IsGST, inv.InventoryReflected, inv.BooksReflected).
		Scan(&inv.ID, &inv.CreatedAt)
	if err != nil {
		return Invoice{}, fmt.Errorf("insert invoice: %w", err)
	}
	return inv, nil
}

func (q *Queries) GetInvoice(ctx context.Context, tenantID, id int64) (Invoice, error) {
	return q.getInvoice(ctx, tenantID, id, "")
}

func (q *Queries) GetInvoiceForUpdate(ctx context.Context, tenantID, id int64) (Invoice, error) {
	return q.getInvoice(ctx, tenantID, id, "FOR UPDATE OF i")
}

func (q *Queries) getInvoice(ctx context.Context, tenantID, id int64, lock string) (Invoice, error) {
	inv, err := scanInvoice(q.db.QueryRow(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices i LEFT JOIN customers c ON c.id = i.customer_id
		WHERE i.tenant_id = $1 AND i.id = $2 `+lock, tenantID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, fmt.Errorf("%w: id %d", ErrInvoiceNotFound, id)
	}
	return inv, err
}

func (q *Queries) ListInvoices(ctx context.Context, tenantID int64) ([]Invoice, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices i LEFT JOIN customers c ON c.id = i.customer_id
		WHERE i.tenant_id = $1
		ORDER BY i.id DESC`, tenantID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Invoice, error) {
		return scanInvoice(row)
	})
}

func (q *Queries) SetReflected(ctx context.Context, tenantID, id int64, inventory, books bool) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE invoices SET inventory_reflected = $3, books_reflected = $4
		WHERE tenant_id = $1 AND id = $2`, tenantID, id, inventory, books)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", ErrInvoiceNotFound, id)
	}
	return nil
}

func (q *Queries) DeleteInvoice(ctx context.Context, tenantID, id int64) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM invoices WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", ErrInvoiceNotFound, id)
	}
	return nil
}

func (q *Queries) ClearQuotationLink(ctx context.Context, tenantID, invoiceID int64) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE quotations SET converted_invoice_id = NULL, updated_at = NOW()
		WHERE tenant_id = $1 AND converted_invoice_id = $2`, tenantID, invoiceID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ClaimIdempotencyKey rolls back with the transaction that claimed it.
func (q *Queries) ClaimIdempotencyKey(ctx context.Context, tenantID int64, key, module string) error {
	return shared.NewIdempotencyStore(q.db).CheckAndInsert(ctx, tenantID, key, module)
}
