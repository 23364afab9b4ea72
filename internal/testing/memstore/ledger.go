package memstore

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/odyssey-erp/gstbilling/internal/identity"
	"github.com/odyssey-erp/gstbilling/internal/ledger"
	"github.com/odyssey-erp/gstbilling/internal/shared"
)

func (t *Tx) FindProductIDs(_ context.Context, tenantID int64, key ledger.ProductKey) ([]int64, error) {
	ids := make([]int64, 0)
	for _, p := range sortedBy(t.d.products, func(p identity.Product) bool { return p.TenantID == tenantID }) {
		if p.Key() == key {
			ids = append(ids, p.ID)
		}
	}
	return ids, nil
}

func (t *Tx) inventory(tenantID, productID int64) (ledger.Inventory, bool) {
	for _, inv := range t.d.inventories {
		if inv.TenantID == tenantID && inv.ProductID == productID {
			return t.joinInventory(inv), true
		}
	}
	return ledger.Inventory{}, false
}

func (t *Tx) joinInventory(inv ledger.Inventory) ledger.Inventory {
	p := t.d.products[inv.ProductID]
	inv.ProductName, inv.ModelNo = p.Name, p.ModelNo
	return inv
}

func (t *Tx) GetInventory(_ context.Context, tenantID, productID int64) (ledger.Inventory, error) {
	inv, ok := t.inventory(tenantID, productID)
	if !ok {
		return ledger.Inventory{}, fmt.Errorf("%w: product %d", ledger.ErrInventoryNotFound, productID)
	}
	return inv, nil
}

func (t *Tx) GetInventoryForUpdate(ctx context.Context, tenantID, productID int64) (ledger.Inventory, error) {
	return t.GetInventory(ctx, tenantID, productID)
}

func (t *Tx) CreateInventory(ctx context.Context, tenantID, productID, alertLevel int64) (ledger.Inventory, error) {
	if err := t.fault("CreateInventory"); err != nil {
		return ledger.Inventory{}, err
	}
	if _, ok := t.inventory(tenantID, productID); !ok {
		if p, ok := t.d.products[productID]; !ok || p.TenantID != tenantID {
			return ledger.Inventory{}, fmt.Errorf("create inventory: %w: id %d", ledger.ErrProductNotFound, productID)
		}
		id := t.d.next("inventories")
		t.d.inventories[id] = ledger.Inventory{ID: id, TenantID: tenantID, ProductID: productID, AlertLevel: alertLevel}
	}
	return t.GetInventory(ctx, tenantID, productID)
}

func (t *Tx) SaveInventory(_ context.Context, inv ledger.Inventory) error {
	if err := t.fault("SaveInventory"); err != nil {
		return err
	}
	cur, ok := t.d.inventories[inv.ID]
	if !ok || cur.TenantID != inv.TenantID {
		return fmt.Errorf("%w: id %d", ledger.ErrInventoryNotFound, inv.ID)
	}
	cur.CurrentStock, cur.AlertLevel, cur.LastLogID = inv.CurrentStock, inv.AlertLevel, inv.LastLogID
	t.d.inventories[inv.ID] = cur
	return nil
}

func (t *Tx) ListInventories(_ context.Context, tenantID int64) ([]ledger.Inventory, error) {
	out := sortedBy(t.d.inventories, func(inv ledger.Inventory) bool { return inv.TenantID == tenantID })
	for i := range out {
		out[i] = t.joinInventory(out[i])
	}
	slices.SortFunc(out, func(a, b ledger.Inventory) int { return cmp.Compare(a.ProductID, b.ProductID) })
	return out, nil
}

func (t *Tx) InsertInventoryLog(_ context.Context, log ledger.InventoryLog) (ledger.InventoryLog, error) {
	if err := t.fault("InsertInventoryLog"); err != nil {
		return ledger.InventoryLog{}, err
	}
	log.ID = t.d.next("inventory_logs")
	t.d.inventoryLogs[log.ID] = log
	return log, nil
}

func (t *Tx) GetInventoryLog(_ context.Context, tenantID, id int64) (ledger.InventoryLog, error) {
	log, ok := t.d.inventoryLogs[id]
	if !ok || log.TenantID != tenantID {
		return ledger.InventoryLog{}, fmt.Errorf("%w: inventory log %d", ledger.ErrEntryNotFound, id)
	}
	return log, nil
}

func (t *Tx) DeleteInventoryLog(ctx context.Context, tenantID, id int64) error {
	if _, err := t.GetInventoryLog(ctx, tenantID, id); err != nil {
		return err
	}
	delete(t.d.inventoryLogs, id)
	for invID, inv := range t.d.inventories {
		if inv.LastLogID != nil && *inv.LastLogID == id {
			inv.LastLogID = nil
			t.d.inventories[invID] = inv
		}
	}
	return nil
}

func (t *Tx) ListInventoryLogs(_ context.Context, tenantID, productID int64) ([]ledger.InventoryLog, error) {
	return sortedBy(t.d.inventoryLogs, func(l ledger.InventoryLog) bool {
		return l.TenantID == tenantID && l.ProductID == productID && productID != 0
	}), nil
}

func (t *Tx) ListInventoryLogsByInvoice(_ context.Context, tenantID, invoiceID int64) ([]ledger.InventoryLog, error) {
	return sortedBy(t.d.inventoryLogs, func(l ledger.InventoryLog) bool {
		return l.TenantID == tenantID && l.InvoiceID != nil && *l.InvoiceID == invoiceID
	}), nil
}

func (t *Tx) joinBook(b ledger.Book) ledger.Book {
	b.CustomerName = t.d.customers[b.CustomerID].Name
	return b
}

func (t *Tx) GetBook(_ context.Context, tenantID, bookID int64) (ledger.Book, error) {
	b, ok := t.d.books[bookID]
	if !ok || b.TenantID != tenantID {
		return ledger.Book{}, fmt.Errorf("%w: id %d", ledger.ErrBookNotFound, bookID)
	}
	return t.joinBook(b), nil
}

func (t *Tx) GetBookForUpdate(ctx context.Context, tenantID, bookID int64) (ledger.Book, error) {
	return t.GetBook(ctx, tenantID, bookID)
}

func (t *Tx) GetBookByCustomerForUpdate(_ context.Context, tenantID, customerID int64) (ledger.Book, error) {
	for _, b := range t.d.books {
		if b.TenantID == tenantID && b.CustomerID == customerID {
			return t.joinBook(b), nil
		}
	}
	return ledger.Book{}, fmt.Errorf("%w: customer %d", ledger.ErrBookNotFound, customerID)
}

func (t *Tx) CreateBook(ctx context.Context, tenantID, customerID int64) (ledger.Book, error) {
	if err := t.fault("CreateBook"); err != nil {
		return ledger.Book{}, err
	}
	if _, err := t.GetBookByCustomerForUpdate(ctx, tenantID, customerID); err != nil {
		if c, ok := t.d.customers[customerID]; !ok || c.TenantID != tenantID {
			return ledger.Book{}, fmt.Errorf("create book: customer %d %w", customerID, shared.ErrNotFound)
		}
		id := t.d.next("books")
		t.d.books[id] = ledger.Book{ID: id, TenantID: tenantID, CustomerID: customerID}
	}
	return t.GetBookByCustomerForUpdate(ctx, tenantID, customerID)
}

func (t *Tx) SaveBook(_ context.Context, book ledger.Book) error {
	if err := t.fault("SaveBook"); err != nil {
		return err
	}
	cur, ok := t.d.books[book.ID]
	if !ok || cur.TenantID != book.TenantID {
		return fmt.Errorf("%w: id %d", ledger.ErrBookNotFound, book.ID)
	}
	cur.CurrentBalance, cur.LastLogID = book.CurrentBalance, book.LastLogID
	t.d.books[book.ID] = cur
	return nil
}

func (t *Tx) ListBooks(_ context.Context, tenantID int64) ([]ledger.Book, error) {
	out := sortedBy(t.d.books, func(b ledger.Book) bool { return b.TenantID == tenantID })
	for i := range out {
		out[i] = t.joinBook(out[i])
	}
	return out, nil
}

func (t *Tx) InsertBookLog(_ context.Context, log ledger.BookLog) (ledger.BookLog, error) {
	if err := t.fault("InsertBookLog"); err != nil {
		return ledger.BookLog{}, err
	}
	if _, ok := t.d.books[log.BookID]; !ok {
		return ledger.BookLog{}, fmt.Errorf("insert book log: book %d %w", log.BookID, shared.ErrNotFound)
	}
	log.ID = t.d.next("book_logs")
	t.d.bookLogs[log.ID] = log
	return log, nil
}

func (t *Tx) GetBookLog(_ context.Context, tenantID, id int64) (ledger.BookLog, error) {
	log, ok := t.d.bookLogs[id]
	if !ok || log.TenantID != tenantID {
		return ledger.BookLog{}, fmt.Errorf("%w: book log %d", ledger.ErrEntryNotFound, id)
	}
	return log, nil
}

func (t *Tx) UpdateBookLog(ctx context.Context, log ledger.BookLog) error {
	cur, err := t.GetBookLog(ctx, log.TenantID, log.ID)
	if err != nil {
		return err
	}
	cur.ChangeType, cur.Description, cur.IsActive = log.ChangeType, log.Description, log.IsActive
	t.d.bookLogs[log.ID] = cur
	return nil
}

func (t *Tx) DeleteBookLog(ctx context.Context, tenantID, id int64) error {
	if _, err := t.GetBookLog(ctx, tenantID, id); err != nil {
		return err
	}
	t.dropBookLog(id)
	return nil
}

func (t *Tx) dropBookLog(id int64) {
	delete(t.d.bookLogs, id)
	for bookID, b := range t.d.books {
		if b.LastLogID != nil && *b.LastLogID == id {
			b.LastLogID = nil
			t.d.books[bookID] = b
		}
	}
}

func (t *Tx) ListBookLogs(_ context.Context, tenantID, bookID int64) ([]ledger.BookLog, error) {
	return sortedBy(t.d.bookLogs, func(l ledger.BookLog) bool {
		return l.TenantID == tenantID && l.BookID == bookID
	}), nil
}

func (t *Tx) ListBookLogsByInvoice(_ context.Context, tenantID, invoiceID int64) ([]ledger.BookLog, error) {
	return sortedBy(t.d.bookLogs, func(l ledger.BookLog) bool {
		return l.TenantID == tenantID && l.InvoiceID != nil && *l.InvoiceID == invoiceID
	}), nil
}

func (t *Tx) InsertPurchaseLog(_ context.Context, log ledger.PurchaseLog) (ledger.PurchaseLog, error) {
	log.ID = t.d.next("purchase_logs")
	t.d.purchases[log.ID] = log
	return log, nil
}

func (t *Tx) DeletePurchaseLog(_ context.Context, tenantID, id int64) error {
	log, ok := t.d.purchases[id]
	if !ok || log.TenantID != tenantID {
		return fmt.Errorf("%w: purchase log %d", ledger.ErrEntryNotFound, id)
	}
	delete(t.d.purchases, id)
	return nil
}

func (t *Tx) ListPurchaseLogs(_ context.Context, tenantID int64, vendorID *int64) ([]ledger.PurchaseLog, error) {
	out := sortedBy(t.d.purchases, func(l ledger.PurchaseLog) bool {
		if l.TenantID != tenantID {
			return false
		}
		return vendorID == nil || (l.VendorID != nil && *l.VendorID == *vendorID)
	})
	slices.SortStableFunc(out, func(a, b ledger.PurchaseLog) int {
		if c := b.Date.Compare(a.Date); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return out, nil
}

func (t *Tx) RecordAudit(_ context.Context, log shared.AuditLog) error {
	t.d.audits = append(t.d.audits, log)
	return nil
}
