package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/odyssey-erp/gstbilling/internal/ledger"
)

// Merger consolidates duplicate ledger subjects. Each group is merged inside
// the caller's transaction and ends with a full recompute of the keeper.
type Merger struct {
	engine *ledger.Engine
}

// NewMerger constructs Merger.
func NewMerger(engine *ledger.Engine) *Merger {
	if engine == nil {
		engine = ledger.NewEngine()
	}
	return &Merger{engine: engine}
}

// MergeCustomerGroup merges every customer of a tenant sharing name into the
// one with the highest id.
func (m *Merger) MergeCustomerGroup(ctx context.Context, tx TxRepository, tenantID int64, name string) (MergeReport, error) {
	report := MergeReport{Kind: MergeCustomers}
	customers, err := tx.ListCustomersByName(ctx, tenantID, name)
	if err != nil {
		return report, fmt.Errorf("list customers %q: %w", name, err)
	}
	if len(customers) < 2 {
		return report, nil
	}
	report.Groups = 1
	keeper := customers[0]

	keeperBook, hasKeeperBook, err := m.lockBook(ctx, tx, tenantID, keeper.ID)
	if err != nil {
		return report, err
	}

	for _, dup := range customers[1:] {
		dupBook, hasDupBook, err := m.lockBook(ctx, tx, tenantID, dup.ID)
		if err != nil {
			return report, err
		}
		if hasDupBook {
			if hasKeeperBook {
				moved, err := tx.MoveBookLogs(ctx, tenantID, dupBook.ID, keeperBook.ID)
				if err != nil {
					return report, fmt.Errorf("move book logs from book %d: %w", dupBook.ID, err)
				}
				report.LogsMoved += moved
				if err := tx.DeleteBook(ctx, tenantID, dupBook.ID); err != nil {
					return report, fmt.Errorf("delete book %d: %w", dupBook.ID, err)
				}
				report.BooksMerged++
			} else {
				if err := tx.ReassignBook(ctx, tenantID, dupBook.ID, keeper.ID); err != nil {
					return report, fmt.Errorf("transfer book %d: %w", dupBook.ID, err)
				}
				logs, err := tx.ListBookLogs(ctx, tenantID, dupBook.ID)
				if err != nil {
					return report, err
				}
				report.LogsMoved += int64(len(logs))
				keeperBook, hasKeeperBook = dupBook, true
			}
		}

		invoices, err := tx.ReassignInvoices(ctx, tenantID, dup.ID, keeper.ID)
		if err != nil {
			return report, fmt.Errorf("reassign invoices of customer %d: %w", dup.ID, err)
		}
		report.InvoicesMoved += invoices
		quotations, err := tx.ReassignQuotations(ctx, tenantID, dup.ID, keeper.ID)
		if err != nil {
			return report, fmt.Errorf("reassign quotations of customer %d: %w", dup.ID, err)
		}
		report.QuotationsMoved += quotations

		if err := tx.DeleteCustomer(ctx, tenantID, dup.ID); err != nil {
			return report, err
		}
		report.Removed++
	}

	if hasKeeperBook {
		if _, err := m.engine.RecomputeBook(ctx, tx, tenantID, keeperBook.ID); err != nil {
			return report, err
		}
	}
	return report, nil
}

// MergeProductGroup merges every product of a tenant sharing modelNo into the
// one with the highest id.
func (m *Merger) MergeProductGroup(ctx context.Context, tx TxRepository, tenantID int64, modelNo string) (MergeReport, error) {
	report := MergeReport{Kind: MergeProducts}
	products, err := tx.FindProductsByModel(ctx, tenantID, modelNo)
	if err != nil {
		return report, fmt.Errorf("list products %q: %w", modelNo, err)
	}
	if len(products) < 2 {
		return report, nil
	}
	report.Groups = 1
	keeper := products[0]

	for _, dup := range products[1:] {
		moved, err := tx.MoveInventoryLogs(ctx, tenantID, dup.ID, keeper.ID)
		if err != nil {
			return report, fmt.Errorf("move inventory logs of product %d: %w", dup.ID, err)
		}
		report.LogsMoved += moved
		deleted, err := tx.DeleteInventory(ctx, tenantID, dup.ID)
		if err != nil {
			return report, fmt.Errorf("delete inventory of product %d: %w", dup.ID, err)
		}
		if deleted {
			report.InventoriesMerged++
		}
		if err := tx.DeleteProduct(ctx, tenantID, dup.ID); err != nil {
			return report, err
		}
		report.Removed++
	}

	_, err = m.engine.RecomputeInventory(ctx, tx, tenantID, keeper.ID)
	if errors.Is(err, ledger.ErrInventoryNotFound) {
		logs, err := tx.ListInventoryLogs(ctx, tenantID, keeper.ID)
		if err != nil {
			return report, err
		}
		if len(logs) == 0 {
			return report, nil
		}
		if _, err := tx.CreateInventory(ctx, tenantID, keeper.ID, 0); err != nil {
			return report, err
		}
		_, err = m.engine.RecomputeInventory(ctx, tx, tenantID, keeper.ID)
		return report, err
	}
	return report, err
}

func (m *Merger) lockBook(ctx context.Context, tx TxRepository, tenantID, customerID int64) (ledger.Book, bool, error) {
	book, err := tx.GetBookByCustomerForUpdate(ctx, tenantID, customerID)
	if errors.Is(err, ledger.ErrBookNotFound) {
		return ledger.Book{}, false, nil
	}
	if err != nil {
		return ledger.Book{}, false, err
	}
	return book, true, nil
}
