package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/gstbilling/internal/ledger"
	"github.com/odyssey-erp/gstbilling/internal/platform/db"
)

// TxRepository adds customer and product persistence to the ledger store.
type TxRepository interface {
	ledger.TxRepository

	GetCustomer(ctx context.Context, tenantID, id int64) (Customer, error)
	FindCustomers(ctx context.Context, tenantID int64, key CustomerKey) ([]Customer, error)
	CustomerCollides(ctx context.Context, tenantID int64, phone, email, gst string) (bool, error)
	InsertCustomer(ctx context.Context, c Customer) (Customer, error)
	SetCustomerUserID(ctx context.Context, tenantID, id int64, userID string) error
	DeleteCustomer(ctx context.Context, tenantID, id int64) error

	GetProduct(ctx context.Context, tenantID, id int64) (Product, error)
	FindProductsByModel(ctx context.Context, tenantID int64, modelNo string) ([]Product, error)
	InsertProduct(ctx context.Context, p Product) (Product, error)
	UpdateProductRate(ctx context.Context, tenantID, id int64, rateWithGST float64) error
	DeleteProduct(ctx context.Context, tenantID, id int64) error

	DuplicateCustomerNames(ctx context.Context, tenantID int64) ([]string, error)
	ListCustomersByName(ctx context.Context, tenantID int64, name string) ([]Customer, error)
	MoveBookLogs(ctx context.Context, tenantID, fromBookID, toBookID int64) (int64, error)
	ReassignBook(ctx context.Context, tenantID, bookID, customerID int64) error
	DeleteBook(ctx context.Context, tenantID, bookID int64) error
	ReassignInvoices(ctx context.Context, tenantID, fromCustomerID, toCustomerID int64) (int64, error)
	ReassignQuotations(ctx context.Context, tenantID, fromCustomerID, toCustomerID int64) (int64, error)

	DuplicateModelNos(ctx context.Context, tenantID int64) ([]string, error)
	MoveInventoryLogs(ctx context.Context, tenantID, fromProductID, toProductID int64) (int64, error)
	DeleteInventory(ctx context.Context, tenantID, productID int64) (bool, error)
}

// Repository persists customers and products in PostgreSQL.
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
	*ledger.Queries
	db db.DBTX
}

// NewQueries constructs Queries.
func NewQueries(conn db.DBTX) *Queries {
	return &Queries{Queries: ledger.NewQueries(conn), db: conn}
}

const customerColumns = `id, tenant_id, name, address, phone, gst, email, userid, is_mobile_user, created_at`

func scanCustomer(row pgx.Row) (Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.TenantID, &c.Name, &c.Address, &c.Phone, &c.GST, &c.Email, &c.UserID, &c.IsMobileUser, &c.CreatedAt)
	return c, err
}

func collectCustomers(rows pgx.Rows) ([]Customer, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Customer, error) {
		return scanCustomer(row)
	})
}

func (q *Queries) GetCustomer(ctx context.Context, tenantID, id int64) (Customer, error) {
	c, err := scanCustomer(q.db.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE tenant_id = $1 AND id = $2`, tenantID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, fmt.Errorf("%w: id %d", ErrCustomerNotFound, id)
	}
	return c, err
}

func (q *Queries) FindCustomers(ctx context.Context, tenantID int64, key CustomerKey) ([]Customer, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+customerColumns+` FROM customers
		WHERE tenant_id = $1 AND name = $2 AND address = $3 AND phone = $4 AND gst = $5
		ORDER BY id`, tenantID, key.Name, key.Address, key.Phone, key.GST)
	if err != nil {
		return nil, err
	}
	return collectCustomers(rows)
}

func (q *Queries) CustomerCollides(ctx context.Context, tenantID int64, phone, email, gst string) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM customers
			WHERE tenant_id = $1
			  AND (($2 <> '' AND phone = $2) OR ($3 <> '' AND email = $3) OR ($4 <> '' AND gst = $4))
		)`, tenantID, phone, email, gst).Scan(&exists)
	return exists, err
}

func (q *Queries) InsertCustomer(ctx context.Context, c Customer) (Customer, error) {
	err := q.db.QueryRow(ctx, `
		INSERT INTO customers (tenant_id, name, address, phone, gst, email, is_mobile_user)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`, c.TenantID, c.Name, c.Address, c.Phone, c.GST, c.Email, c.IsMobileUser).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return Customer{}, fmt.Errorf("insert customer: %w", err)
	}
	return c, nil
}

func (q *Queries) SetCustomerUserID(ctx context.Context, tenantID, id int64, userID string) error {
	_, err := q.db.Exec(ctx, `UPDATE customers SET userid = $3 WHERE tenant_id = $1 AND id = $2`, tenantID, id, userID)
	return err
}

func (q *Queries) DeleteCustomer(ctx context.Context, tenantID, id int64) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM customers WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", ErrCustomerNotFound, id)
	}
	return nil
}

const productColumns = `id, tenant_id, model_no, name, hsn, discount, gst_percentage, rate_with_gst`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.TenantID, &p.ModelNo, &p.Name, &p.HSN, &p.Discount, &p.GSTPercentage, &p.RateWithGST)
	return p, err
}

func (q *Queries) GetProduct(ctx context.Context, tenantID, id int64) (Product, error) {
	p, err := scanProduct(q.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE tenant_id = $1 AND id = $2`, tenantID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, fmt.Errorf("%w: id %d", ledger.ErrProductNotFound, id)
	}
	return p, err
}

func (q *Queries) FindProductsByModel(ctx context.Context, tenantID int64, modelNo string) ([]Product, error) {
	rows, err := q.db.Query(ctx, `SELECT `+productColumns+` FROM products WHERE tenant_id = $1 AND model_no = $2 ORDER BY id DESC`, tenantID, modelNo)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Product, error) {
		return scanProduct(row)
	})
}

func (q *Queries) InsertProduct(ctx context.Context, p Product) (Product, error) {
	err := q.db.QueryRow(ctx, `
		INSERT INTO products (tenant_id, model_no, name, hsn, discount, gst_percentage, rate_with_gst)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`, p.TenantID, p.ModelNo, p.Name, p.HSN, p.Discount, p.GSTPercentage, p.RateWithGST).Scan(&p.ID)
	if err != nil {
		return Product{}, fmt.Errorf("insert product: %w", err)
	}
	return p, nil
}

func (q *Queries) UpdateProductRate(ctx context.Context, tenantID, id int64, rateWithGST float64) error {
	_, err := q.db.Exec(ctx, `UPDATE products SET rate_with_gst = $3 WHERE tenant_id = $1 AND id = $2`, tenantID, id, rateWithGST)
	return err
}

func (q *Queries) DeleteProduct(ctx context.Context, tenantID, id int64) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM products WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", ledger.ErrProductNotFound, id)
	}
	return nil
}

func (q *Queries) DuplicateCustomerNames(ctx context.Context, tenantID int64) ([]string, error) {
	rows, err := q.db.Query(ctx, `
		SELECT name FROM customers WHERE tenant_id = $1
		GROUP BY name HAVING COUNT(*) > 1 ORDER BY name`, tenantID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (q *Queries) ListCustomersByName(ctx context.Context, tenantID int64, name string) ([]Customer, error) {
	rows, err := q.db.Query(ctx, `SELECT `+customerColumns+` FROM customers WHERE tenant_id = $1 AND name = $2 ORDER BY id DESC`, tenantID, name)
	if err != nil {
		return nil, err
	}
	return collectCustomers(rows)
}

func (q *Queries) MoveBookLogs(ctx context.Context, tenantID, fromBookID, toBookID int64) (int64, error) {
	tag, err := q.db.Exec(ctx, `UPDATE book_logs SET book_id = $3 WHERE tenant_id = $1 AND book_id = $2`, tenantID, fromBookID, toBookID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (q *Queries) ReassignBook(ctx context.Context, tenantID, bookID, customerID int64) error {
	_, err := q.db.Exec(ctx, `UPDATE books SET customer_id = $3 WHERE tenant_id = $1 AND id = $2`, tenantID, bookID, customerID)
	return err
}

func (q *Queries) DeleteBook(ctx context.Context, tenantID, bookID int64) error {
	_, err := q.db.Exec(ctx, `DELETE FROM books WHERE tenant_id = $1 AND id = $2`, tenantID, bookID)
	return err
}

func (q *Queries) ReassignInvoices(ctx context.Context, tenantID, fromCustomerID, toCustomerID int64) (int64, error) {
	tag, err := q.db.Exec(ctx, `UPDATE invoices SET customer_id = $3 WHERE tenant_id = $1 AND customer_id = $2`, tenantID, fromCustomerID, toCustomerID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (q *Queries) ReassignQuotations(ctx context.Context, tenantID, fromCustomerID, toCustomerID int64) (int64, error) {
	tag, err := q.db.Exec(ctx, `UPDATE quotations SET customer_id = $3, updated_at = NOW() WHERE tenant_id = $1 AND customer_id = $2`, tenantID, fromCustomerID, toCustomerID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (q *Queries) DuplicateModelNos(ctx context.Context, tenantID int64) ([]string, error) {
	rows, err := q.db.Query(ctx, `
		SELECT model_no FROM products WHERE tenant_id = $1
		GROUP BY model_no HAVING COUNT(*) > 1 ORDER BY model_no`, tenantID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (q *Queries) MoveInventoryLogs(ctx context.Context, tenantID, fromProductID, toProductID int64) (int64, error) {
	tag, err := q.db.Exec(ctx, `UPDATE inventory_logs SET product_id = $3 WHERE tenant_id = $1 AND product_id = $2`, tenantID, fromProductID, toProductID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (q *Queries) DeleteInventory(ctx context.Context, tenantID, productID int64) (bool, error) {
	tag, err := q.db.Exec(ctx, `DELETE FROM inventories WHERE tenant_id = $1 AND product_id = $2`, tenantID, productID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
