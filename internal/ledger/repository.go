package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/gstbilling/internal/platform/db"
	"github.com/odyssey-erp/gstbilling/internal/shared"
)

// TxRepository exposes the ledger entry store and balance cache rows inside one transaction.
// The store never adjusts a cache as a side effect of writing an entry; the engine does.
type TxRepository interface {
	FindProductIDs(ctx context.Context, tenantID int64, key ProductKey) ([]int64, error)

	GetInventory(ctx context.Context, tenantID, productID int64) (Inventory, error)
	GetInventoryForUpdate(ctx context.Context, tenantID, productID int64) (Inventory, error)
	CreateInventory(ctx context.Context, tenantID, productID, alertLevel int64) (Inventory, error)
	SaveInventory(ctx context.Context, inv Inventory) error
	ListInventories(ctx context.Context, tenantID int64) ([]Inventory, error)
	InsertInventoryLog(ctx context.Context, log InventoryLog) (InventoryLog, error)
	GetInventoryLog(ctx context.Context, tenantID, id int64) (InventoryLog, error)
	DeleteInventoryLog(ctx context.Context, tenantID, id int64) error
	ListInventoryLogs(ctx context.Context, tenantID, productID int64) ([]InventoryLog, error)
	ListInventoryLogsByInvoice(ctx context.Context, tenantID, invoiceID int64) ([]InventoryLog, error)

	GetBook(ctx context.Context, tenantID, bookID int64) (Book, error)
	GetBookForUpdate(ctx context.Context, tenantID, bookID int64) (Book, error)
	GetBookByCustomerForUpdate(ctx context.Context, tenantID, customerID int64) (Book, error)
	CreateBook(ctx context.Context, tenantID, customerID int64) (Book, error)
	SaveBook(ctx context.Context, book Book) error
	ListBooks(ctx context.Context, tenantID int64) ([]Book, error)
	InsertBookLog(ctx context.Context, log BookLog) (BookLog, error)
	GetBookLog(ctx context.Context, tenantID, id int64) (BookLog, error)
	UpdateBookLog(ctx context.Context, log BookLog) error
	DeleteBookLog(ctx context.Context, tenantID, id int64) error
	ListBookLogs(ctx context.Context, tenantID, bookID int64) ([]BookLog, error)
	ListBookLogsByInvoice(ctx context.Context, tenantID, invoiceID int64) ([]BookLog, error)

	InsertPurchaseLog(ctx context.Context, log PurchaseLog) (PurchaseLog, error)
	DeletePurchaseLog(ctx context.Context, tenantID, id int64) error
	ListPurchaseLogs(ctx context.Context, tenantID int64, vendorID *int64) ([]PurchaseLog, error)

	RecordAudit(ctx context.Context, log shared.AuditLog) error
}

// Repository persists ledger data in PostgreSQL.
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

// ListTenants returns every tenant owning a balance cache row.
func (r *Repository) ListTenants(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT tenant_id FROM inventories UNION SELECT tenant_id FROM books ORDER BY 1`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

// Queries implements TxRepository over a pool or a transaction.
type Queries struct {
	db db.DBTX
}

// NewQueries constructs Queries.
func NewQueries(conn db.DBTX) *Queries {
	return &Queries{db: conn}
}

// ============================================================================
// Inventory
// ============================================================================

const inventoryColumns = `i.id, i.tenant_id, i.product_id, COALESCE(p.name, ''), COALESCE(p.model_no, ''), i.current_stock, i.alert_level, i.last_log_id`

func scanInventory(row pgx.Row) (Inventory, error) {
	var inv Inventory
	err := row.Scan(&inv.ID, &inv.TenantID, &inv.ProductID, &inv.ProductName, &inv.ModelNo, &inv.CurrentStock, &inv.AlertLevel, &inv.LastLogID)
	return inv, err
}

func (q *Queries) FindProductIDs(ctx context.Context, tenantID int64, key ProductKey) ([]int64, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id FROM products
		WHERE tenant_id = $1 AND model_no = $2 AND name = $3 AND hsn = $4 AND gst_percentage = $5
		ORDER BY id`, tenantID, key.ModelNo, key.Name, key.HSN, key.GSTPercentage)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

func (q *Queries) GetInventory(ctx context.Context, tenantID, productID int64) (Inventory, error) {
	return q.getInventory(ctx, tenantID, productID, "")
}

func (q *Queries) GetInventoryForUpdate(ctx context.Context, tenantID, productID int64) (Inventory, error) {
	return q.getInventory(ctx, tenantID, productID, "FOR UPDATE OF i")
}

func (q *Queries) getInventory(ctx context.Context, tenantID, productID int64, lock string) (Inventory, error) {
	inv, err := scanInventory(q.db.QueryRow(ctx, `
		SELECT `+inventoryColumns+`
		FROM inventories i LEFT JOIN products p ON p.id = i.product_id
		WHERE i.tenant_id = $1 AND i.product_id = $2 `+lock, tenantID, productID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Inventory{}, fmt.Errorf("%w: product %d", ErrInventoryNotFound, productID)
	}
	return inv, err
}

func (q *Queries) CreateInventory(ctx context.Context, tenantID, productID, alertLevel int64) (Inventory, error) {
	_, err := q.db.Exec(ctx, `
		INSERT INTO inventories (tenant_id, product_id, alert_level)
		VALUES ($1, $2, $3)
		ON CONFLICT (tenant_id, product_id) DO NOTHING`, tenantID, productID, alertLevel)
	if err != nil {
		return Inventory{}, fmt.Errorf("create inventory: %w", err)
	}
	return q.GetInventoryForUpdate(ctx, tenantID, productID)
}

func (q *Queries) SaveInventory(ctx context.Context, inv Inventory) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE inventories SET current_stock = $3, alert_level = $4, last_log_id = $5
		WHERE tenant_id = $1 AND id = $2`, inv.TenantID, inv.ID, inv.CurrentStock, inv.AlertLevel, inv.LastLogID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", ErrInventoryNotFound, inv.ID)
	}
	return nil
}

func (q *Queries) ListInventories(ctx context.Context, tenantID int64) ([]Inventory, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+inventoryColumns+`
		FROM inventories i LEFT JOIN products p ON p.id = i.product_id
		WHERE i.tenant_id = $1
		ORDER BY i.product_id`, tenantID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Inventory, error) {
		return scanInventory(row)
	})
}

const inventoryLogColumns = `id, tenant_id, COALESCE(product_id, 0), date, change, change_type, invoice_id, description`

func scanInventoryLog(row pgx.Row) (InventoryLog, error) {
	var log InventoryLog
	err := row.Scan(&log.ID, &log.TenantID, &log.ProductID, &log.Date, &log.Change, &log.ChangeType, &log.InvoiceID, &log.Description)
	return log, err
}

func (q *Queries) InsertInventoryLog(ctx context.Context, log InventoryLog) (InventoryLog, error) {
	var productID *int64
	if log.ProductID != 0 {
		productID = &log.ProductID
	}
	err := q.db.QueryRow(ctx, `
		INSERT INTO inventory_logs (tenant_id, product_id, date, change, change_type, invoice_id, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`, log.TenantID, productID, log.Date, log.Change, log.ChangeType, log.InvoiceID, log.Description).Scan(&log.ID)
	if err != nil {
		return InventoryLog{}, fmt.Errorf("insert inventory log: %w", err)
	}
	return log, nil
}

func (q *Queries) GetInventoryLog(ctx context.Context, tenantID, id int64) (InventoryLog, error) {
	log, err := scanInventoryLog(q.db.QueryRow(ctx, `SELECT `+inventoryLogColumns+` FROM inventory_logs WHERE tenant_id = $1 AND id = $2`, tenantID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return InventoryLog{}, fmt.Errorf("%w: inventory log %d", ErrEntryNotFound, id)
	}
	return log, err
}

func (q *Queries) DeleteInventoryLog(ctx context.Context, tenantID, id int64) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM inventory_logs WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: inventory log %d", ErrEntryNotFound, id)
	}
	return nil
}

func (q *Queries) ListInventoryLogs(ctx context.Context, tenantID, productID int64) ([]InventoryLog, error) {
	rows, err := q.db.Query(ctx, `SELECT `+inventoryLogColumns+` FROM inventory_logs WHERE tenant_id = $1 AND product_id = $2 ORDER BY id`, tenantID, productID)
	if err != nil {
		return nil, err
	}
	return collectInventoryLogs(rows)
}

func (q *Queries) ListInventoryLogsByInvoice(ctx context.Context, tenantID, invoiceID int64) ([]InventoryLog, error) {
	rows, err := q.db.Query(ctx, `SELECT `+inventoryLogColumns+` FROM inventory_logs WHERE tenant_id = $1 AND invoice_id = $2 ORDER BY id`, tenantID, invoiceID)
	if err != nil {
		return nil, err
	}
	return collectInventoryLogs(rows)
}

func collectInventoryLogs(rows pgx.Rows) ([]InventoryLog, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (InventoryLog, error) {
		return scanInventoryLog(row)
	})
}

// ============================================================================
// Books
// ============================================================================

const bookColumns = `b.id, b.tenant_id, b.customer_id, COALESCE(c.name, ''), b.current_balance, b.last_log_id`

func scanBook(row pgx.Row) (Book, error) {
	var book Book
	err := row.Scan(&book.ID, &book.TenantID, &book.CustomerID, &book.CustomerName, &book.CurrentBalance, &book.LastLogID)
	return book, err
}

func (q *Queries) GetBook(ctx context.Context, tenantID, bookID int64) (Book, error) {
	return q.getBook(ctx, tenantID, bookID, "")
}

func (q *Queries) GetBookForUpdate(ctx context.Context, tenantID, bookID int64) (Book, error) {
	return q.getBook(ctx, tenantID, bookID, "FOR UPDATE OF b")
}

func (q *Queries) getBook(ctx context.Context, tenantID, bookID int64, lock string) (Book, error) {
	book, err := scanBook(q.db.QueryRow(ctx, `
		SELECT `+bookColumns+`
		FROM books b LEFT JOIN customers c ON c.id = b.customer_id
		WHERE b.tenant_id = $1 AND b.id = $2 `+lock, tenantID, bookID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Book{}, fmt.Errorf("%w: id %d", ErrBookNotFound, bookID)
	}
	return book, err
}

func (q *Queries) GetBookByCustomerForUpdate(ctx context.Context, tenantID, customerID int64) (Book, error) {
	book, err := scanBook(q.db.QueryRow(ctx, `
		SELECT `+bookColumns+`
		FROM books b LEFT JOIN customers c ON c.id = b.customer_id
		WHERE b.tenant_id = $1 AND b.customer_id = $2
		FOR UPDATE OF b`, tenantID, customerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Book{}, fmt.Errorf("%w: customer %d", ErrBookNotFound, customerID)
	}
	return book, err
}

func (q *Queries) CreateBook(ctx context.Context, tenantID, customerID int64) (Book, error) {
	_, err := q.db.Exec(ctx, `
		INSERT INTO books (tenant_id, customer_id)
		VALUES ($1, $2)
		ON CONFLICT (tenant_id, customer_id) DO NOTHING`, tenantID, customerID)
	if err != nil {
		return Book{}, fmt.Errorf("create book: %w", err)
	}
	return q.GetBookByCustomerForUpdate(ctx, tenantID, customerID)
}

func (q *Queries) SaveBook(ctx context.Context, book Book) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE books SET current_balance = $3, last_log_id = $4
		WHERE tenant_id = $1 AND id = $2`, book.TenantID, book.ID, book.CurrentBalance, book.LastLogID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", ErrBookNotFound, book.ID)
	}
	return nil
}

func (q *Queries) ListBooks(ctx context.Context, tenantID int64) ([]Book, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+bookColumns+`
		FROM books b LEFT JOIN customers c ON c.id = b.customer_id
		WHERE b.tenant_id = $1
		ORDER BY b.id`, tenantID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Book, error) {
		return scanBook(row)
	})
}

const bookLogColumns = `id, tenant_id, book_id, date, change, change_type, invoice_id, description, created_by, is_active`

func scanBookLog(row pgx.Row) (BookLog, error) {
	var log BookLog
	err := row.Scan(&log.ID, &log.TenantID, &log.BookID, &log.Date, &log.Change, &log.ChangeType, &log.InvoiceID, &log.Description, &log.CreatedBy, &log.IsActive)
	return log, err
}

func (q *Queries) InsertBookLog(ctx context.Context, log BookLog) (BookLog, error) {
	err := q.db.QueryRow(ctx, `
		INSERT INTO book_logs (tenant_id, book_id, date, change, change_type, invoice_id, description, created_by, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`, log.TenantID, log.BookID, log.Date, log.Change, log.ChangeType, log.InvoiceID, log.Description, log.CreatedBy, log.IsActive).Scan(&log.ID)
	if err != nil {
		return BookLog{}, fmt.Errorf("insert book log: %w", err)
	}
	return log, nil
}

func (q *Queries) GetBookLog(ctx context.Context, tenantID, id int64) (BookLog, error) {
	log, err := scanBookLog(q.db.QueryRow(ctx, `SELECT `+bookLogColumns+` FROM book_logs WHERE tenant_id = $1 AND id = $2`, tenantID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return BookLog{}, fmt.Errorf("%w: book log %d", ErrEntryNotFound, id)
	}
	return log, err
}

func (q *Queries) UpdateBookLog(ctx context.Context, log BookLog) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE book_logs SET change_type = $3, description = $4, is_active = $5
		WHERE tenant_id = $1 AND id = $2`, log.TenantID, log.ID, log.ChangeType, log.Description, log.IsActive)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: book log %d", ErrEntryNotFound, log.ID)
	}
	return nil
}

func (q *Queries) DeleteBookLog(ctx context.Context, tenantID, id int64) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM book_logs WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: book log %d", ErrEntryNotFound, id)
	}
	return nil
}

func (q *Queries) ListBookLogs(ctx context.Context, tenantID, bookID int64) ([]BookLog, error) {
	rows, err := q.db.Query(ctx, `SELECT `+bookLogColumns+` FROM book_logs WHERE tenant_id = $1 AND book_id = $2 ORDER BY id`, tenantID, bookID)
	if err != nil {
		return nil, err
	}
	return collectBookLogs(rows)
}

func (q *Queries) ListBookLogsByInvoice(ctx context.Context, tenantID, invoiceID int64) ([]BookLog, error) {
	rows, err := q.db.Query(ctx, `SELECT `+bookLogColumns+` FROM book_logs WHERE tenant_id = $1 AND invoice_id = $2 ORDER BY id`, tenantID, invoiceID)
	if err != nil {
		return nil, err
	}
	return collectBookLogs(rows)
}

func collectBookLogs(rows pgx.Rows) ([]BookLog, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (BookLog, error) {
		return scanBookLog(row)
	})
}

// ============================================================================
// Purchases
// ============================================================================

func (q *Queries) InsertPurchaseLog(ctx context.Context, log PurchaseLog) (PurchaseLog, error) {
	err := q.db.QueryRow(ctx, `
		INSERT INTO purchase_logs (tenant_id, vendor_id, date, change, change_type, reference, category)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`, log.TenantID, log.VendorID, log.Date, log.Change, log.ChangeType, log.Reference, log.Category).Scan(&log.ID)
	if err != nil {
		return PurchaseLog{}, fmt.Errorf("insert purchase log: %w", err)
	}
	return log, nil
}

func (q *Queries) DeletePurchaseLog(ctx context.Context, tenantID, id int64) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM purchase_logs WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: purchase log %d", ErrEntryNotFound, id)
	}
	return nil
}

func (q *Queries) ListPurchaseLogs(ctx context.Context, tenantID int64, vendorID *int64) ([]PurchaseLog, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, tenant_id, vendor_id, date, change, change_type, reference, category
		FROM purchase_logs
		WHERE tenant_id = $1 AND ($2::bigint IS NULL OR vendor_id = $2)
		ORDER BY date DESC, id DESC`, tenantID, vendorID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (PurchaseLog, error) {
		var log PurchaseLog
		err := row.Scan(&log.ID, &log.TenantID, &log.VendorID, &log.Date, &log.Change, &log.ChangeType, &log.Reference, &log.Category)
		return log, err
	})
}

// RecordAudit writes an audit entry in the same transaction as the change it describes.
func (q *Queries) RecordAudit(ctx context.Context, log shared.AuditLog) error {
	return shared.NewAuditLogger(q.db).Record(ctx, log)
}
