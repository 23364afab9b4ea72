package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// InventoryTotal sums every inventory entry and returns the id of the newest one.
func InventoryTotal(logs []InventoryLog) (int64, *int64) {
	var (
		total int64
		last  *int64
	)
	for i := range logs {
		total += logs[i].Change
		if last == nil || logs[i].ID > *last {
			id := logs[i].ID
			last = &id
		}
	}
	return total, last
}

// BookTotal sums the entries that count toward a balance and returns the id
// of the newest counted entry. Inactive and pending entries are ignored.
func BookTotal(logs []BookLog) (decimal.Decimal, *int64) {
	total := decimal.Zero
	var last *int64
	for i := range logs {
		if !logs[i].Counts() {
			continue
		}
		total = total.Add(logs[i].Change)
		if last == nil || logs[i].ID > *last {
			id := logs[i].ID
			last = &id
		}
	}
	return total, last
}

// recomputeInventory rewrites a locked inventory row from its full entry set.
func recomputeInventory(ctx context.Context, tx TxRepository, inv Inventory) (Inventory, error) {
	logs, err := tx.ListInventoryLogs(ctx, inv.TenantID, inv.ProductID)
	if err != nil {
		return Inventory{}, fmt.Errorf("list inventory logs for product %d: %w", inv.ProductID, err)
	}
	inv.CurrentStock, inv.LastLogID = InventoryTotal(logs)
	if err := tx.SaveInventory(ctx, inv); err != nil {
		return Inventory{}, fmt.Errorf("save inventory for product %d: %w", inv.ProductID, err)
	}
	return inv, nil
}

// recomputeBook rewrites a locked book row from its full entry set.
func recomputeBook(ctx context.Context, tx TxRepository, book Book) (Book, error) {
	logs, err := tx.ListBookLogs(ctx, book.TenantID, book.ID)
	if err != nil {
		return Book{}, fmt.Errorf("list book logs for book %d: %w", book.ID, err)
	}
	book.CurrentBalance, book.LastLogID = BookTotal(logs)
	if err := tx.SaveBook(ctx, book); err != nil {
		return Book{}, fmt.Errorf("save book %d: %w", book.ID, err)
	}
	return book, nil
}

// RecomputeInventory locks the product's inventory and rebuilds it from the ledger.
// Running it twice without intervening writes yields the same row.
func (e *Engine) RecomputeInventory(ctx context.Context, tx TxRepository, tenantID, productID int64) (Inventory, error) {
	inv, err := tx.GetInventoryForUpdate(ctx, tenantID, productID)
	if err != nil {
		return Inventory{}, err
	}
	return recomputeInventory(ctx, tx, inv)
}

// RecomputeBook locks the book and rebuilds it from the ledger.
func (e *Engine) RecomputeBook(ctx context.Context, tx TxRepository, tenantID, bookID int64) (Book, error) {
	book, err := tx.GetBookForUpdate(ctx, tenantID, bookID)
	if err != nil {
		return Book{}, err
	}
	return recomputeBook(ctx, tx, book)
}

// Drift records a cache row whose stored value disagreed with its ledger.
type Drift struct {
	Subject  string `json:"subject"`
	ID       int64  `json:"id"`
	Stored   string `json:"stored"`
	Computed string `json:"computed"`
}

// RecomputeReport summarises a tenant-wide recompute.
type RecomputeReport struct {
	TenantID    int64   `json:"tenant_id"`
	Inventories int     `json:"inventories"`
	Books       int     `json:"books"`
	Drift       []Drift `json:"drift,omitempty"`
}

// RecomputeTenant rebuilds every inventory and book cache of a tenant.
func (e *Engine) RecomputeTenant(ctx context.Context, tx TxRepository, tenantID int64) (RecomputeReport, error) {
	report := RecomputeReport{TenantID: tenantID}

	inventories, err := tx.ListInventories(ctx, tenantID)
	if err != nil {
		return report, fmt.Errorf("list inventories: %w", err)
	}
	for _, stored := range inventories {
		fresh, err := e.RecomputeInventory(ctx, tx, tenantID, stored.ProductID)
		if err != nil {
			return report, err
		}
		report.Inventories++
		if fresh.CurrentStock != stored.CurrentStock {
			report.Drift = append(report.Drift, Drift{
				Subject:  "inventory",
				ID:       stored.ID,
				Stored:   fmt.Sprint(stored.CurrentStock),
				Computed: fmt.Sprint(fresh.CurrentStock),
			})
		}
	}

	books, err := tx.ListBooks(ctx, tenantID)
	if err != nil {
		return report, fmt.Errorf("list books: %w", err)
	}
	for _, stored := range books {
		fresh, err := e.RecomputeBook(ctx, tx, tenantID, stored.ID)
		if err != nil {
			return report, err
		}
		report.Books++
		if !fresh.CurrentBalance.Equal(stored.CurrentBalance) {
			report.Drift = append(report.Drift, Drift{
				Subject:  "book",
				ID:       stored.ID,
				Stored:   stored.CurrentBalance.StringFixed(2),
				Computed: fresh.CurrentBalance.StringFixed(2),
			})
		}
	}
	return report, nil
}
