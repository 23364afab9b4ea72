package ledger

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// Engine applies invoices and manual entries to the ledgers and keeps the
// balance caches equal to their ledger sums. Every method runs inside the
// caller's transaction and locks the cache rows it touches.
type Engine struct {
	now func() time.Time
}

// NewEngine constructs Engine.
func NewEngine() *Engine {
	return &Engine{now: time.Now}
}

// WithClock overrides the engine clock.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	if now != nil {
		e.now = now
	}
	return e
}

// Line is one invoiced product quantity.
type Line struct {
	Key ProductKey
	Qty int64
}

// InvoiceApplication carries what the engine needs from an invoice.
type InvoiceApplication struct {
	TenantID   int64
	InvoiceID  int64
	CustomerID int64
	Date       time.Time
	IsGST      bool
	Total      decimal.Decimal
	Lines      []Line
}

// Applied reports the entries written and the caches after an apply.
type Applied struct {
	InventoryLogs []InventoryLog `json:"inventory_logs"`
	Inventories   []Inventory    `json:"inventories"`
	BookLog       *BookLog       `json:"book_log,omitempty"`
	Book          *Book          `json:"book,omitempty"`
}

// ApplyInvoice debits stock for every line and the customer book once for the total.
// The engine does not check whether the invoice was already applied.
func (e *Engine) ApplyInvoice(ctx context.Context, tx TxRepository, app InvoiceApplication) (Applied, error) {
	applied, err := e.ApplyInventory(ctx, tx, app)
	if err != nil {
		return Applied{}, err
	}
	bookSide, err := e.ApplyBook(ctx, tx, app)
	if err != nil {
		return Applied{}, err
	}
	applied.BookLog = bookSide.BookLog
	applied.Book = bookSide.Book
	return applied, nil
}

// ApplyInventory writes one Sale entry per line and recomputes every touched inventory.
func (e *Engine) ApplyInventory(ctx context.Context, tx TxRepository, app InvoiceApplication) (Applied, error) {
	productIDs := make([]int64, len(app.Lines))
	for i, line := range app.Lines {
		id, err := e.resolveProduct(ctx, tx, app.TenantID, line.Key)
		if err != nil {
			return Applied{}, fmt.Errorf("invoice %d line %d: %w", app.InvoiceID, i+1, err)
		}
		productIDs[i] = id
	}

	locked, err := lockInventories(ctx, tx, app.TenantID, productIDs, true)
	if err != nil {
		return Applied{}, err
	}

	description := DescSale
	if !app.IsGST {
		description = DescNonGSTSale
	}
	invoiceID := app.InvoiceID
	var out Applied
	for i, line := range app.Lines {
		log, err := tx.InsertInventoryLog(ctx, InventoryLog{
			TenantID:    app.TenantID,
			ProductID:   productIDs[i],
			Date:        e.now(),
			Change:      -line.Qty,
			ChangeType:  InventorySale,
			InvoiceID:   &invoiceID,
			Description: description,
		})
		if err != nil {
			return Applied{}, err
		}
		out.InventoryLogs = append(out.InventoryLogs, log)
	}

	for _, id := range slices.Sorted(maps.Keys(locked)) {
		inv, err := recomputeInventory(ctx, tx, locked[id])
		if err != nil {
			return Applied{}, err
		}
		out.Inventories = append(out.Inventories, inv)
	}
	return out, nil
}

// ApplyBook writes the single aggregate PurchasedItems entry for an invoice.
func (e *Engine) ApplyBook(ctx context.Context, tx TxRepository, app InvoiceApplication) (Applied, error) {
	book, err := e.bookForCustomer(ctx, tx, app.TenantID, app.CustomerID)
	if err != nil {
		return Applied{}, err
	}

	description := DescPurchase
	if !app.IsGST {
		description = DescNonGSTSale
	}
	date := app.Date
	if date.IsZero() {
		date = e.now()
	}
	invoiceID := app.InvoiceID
	log, err := tx.InsertBookLog(ctx, BookLog{
		TenantID:    app.TenantID,
		BookID:      book.ID,
		Date:        date,
		Change:      app.Total.Neg(),
		ChangeType:  BookPurchasedItems,
		InvoiceID:   &invoiceID,
		Description: description,
		CreatedBy:   DefaultCreator,
		IsActive:    true,
	})
	if err != nil {
		return Applied{}, err
	}

	book, err = recomputeBook(ctx, tx, book)
	if err != nil {
		return Applied{}, err
	}
	return Applied{BookLog: &log, Book: &book}, nil
}

// ReverseScope selects which ledgers an invoice reversal touches.
type ReverseScope struct {
	Inventory bool
	Books     bool
}

// Reversed reports what an invoice reversal removed.
type Reversed struct {
	InventoryLogs int         `json:"inventory_logs"`
	Inventories   []Inventory `json:"inventories,omitempty"`
	BookLogID     *int64      `json:"book_log_id,omitempty"`
	Book          *Book       `json:"book,omitempty"`
}

// ReverseInvoice deletes the entries linked to an invoice and recomputes the
// touched caches. The invoice record itself is left to the caller.
func (e *Engine) ReverseInvoice(ctx context.Context, tx TxRepository, tenantID, invoiceID int64, scope ReverseScope) (Reversed, error) {
	var out Reversed

	if scope.Inventory {
		logs, err := tx.ListInventoryLogsByInvoice(ctx, tenantID, invoiceID)
		if err != nil {
			return Reversed{}, fmt.Errorf("list inventory logs for invoice %d: %w", invoiceID, err)
		}
		productIDs := make([]int64, 0, len(logs))
		for _, log := range logs {
			if log.ProductID != 0 {
				productIDs = append(productIDs, log.ProductID)
			}
		}
		locked, err := lockInventories(ctx, tx, tenantID, productIDs, false)
		if err != nil {
			return Reversed{}, err
		}
		for _, log := range logs {
			if err := tx.DeleteInventoryLog(ctx, tenantID, log.ID); err != nil {
				return Reversed{}, err
			}
		}
		out.InventoryLogs = len(logs)
		for _, id := range slices.Sorted(maps.Keys(locked)) {
			inv, err := recomputeInventory(ctx, tx, locked[id])
			if err != nil {
				return Reversed{}, err
			}
			out.Inventories = append(out.Inventories, inv)
		}
	}

	if scope.Books {
		log, err := e.InvoiceBookEntry(ctx, tx, tenantID, invoiceID)
		if err != nil {
			return Reversed{}, err
		}
		book, err := tx.GetBookForUpdate(ctx, tenantID, log.BookID)
		if err != nil {
			return Reversed{}, err
		}
		if err := tx.DeleteBookLog(ctx, tenantID, log.ID); err != nil {
			return Reversed{}, err
		}
		book, err = recomputeBook(ctx, tx, book)
		if err != nil {
			return Reversed{}, err
		}
		out.BookLogID = &log.ID
		out.Book = &book
	}
	return out, nil
}

// InvoiceBookEntry returns the one book entry linked to an invoice.
// No entry is a not-found error; more than one is a data-integrity error.
func (e *Engine) InvoiceBookEntry(ctx context.Context, tx TxRepository, tenantID, invoiceID int64) (BookLog, error) {
	logs, err := tx.ListBookLogsByInvoice(ctx, tenantID, invoiceID)
	if err != nil {
		return BookLog{}, fmt.Errorf("list book logs for invoice %d: %w", invoiceID, err)
	}
	switch len(logs) {
	case 0:
		return BookLog{}, fmt.Errorf("%w: invoice %d", ErrInvoiceEntryMissing, invoiceID)
	case 1:
		return logs[0], nil
	default:
		return BookLog{}, fmt.Errorf("%w: invoice %d has %d entries", ErrInvoiceEntryDuplicated, invoiceID, len(logs))
	}
}

// StockEntry is a manual inventory change.
type StockEntry struct {
	TenantID    int64
	ProductID   int64
	Change      int64
	ChangeType  InventoryChangeType
	Description string
	InvoiceID   *int64
	Date        time.Time
}

// AddStock inserts one inventory entry and bumps the cached stock by its change.
func (e *Engine) AddStock(ctx context.Context, tx TxRepository, entry StockEntry) (InventoryLog, Inventory, error) {
	if entry.Change == 0 {
		return InventoryLog{}, Inventory{}, ErrZeroChange
	}
	if !entry.ChangeType.Valid() {
		return InventoryLog{}, Inventory{}, fmt.Errorf("%w: %d", ErrInvalidChangeType, entry.ChangeType)
	}
	inv, err := e.inventoryForProduct(ctx, tx, entry.TenantID, entry.ProductID)
	if err != nil {
		return InventoryLog{}, Inventory{}, err
	}
	if entry.Date.IsZero() {
		entry.Date = e.now()
	}
	log, err := tx.InsertInventoryLog(ctx, InventoryLog{
		TenantID:    entry.TenantID,
		ProductID:   entry.ProductID,
		Date:        entry.Date,
		Change:      entry.Change,
		ChangeType:  entry.ChangeType,
		InvoiceID:   entry.InvoiceID,
		Description: entry.Description,
	})
	if err != nil {
		return InventoryLog{}, Inventory{}, err
	}
	inv.CurrentStock += log.Change
	inv.LastLogID = &log.ID
	if err := tx.SaveInventory(ctx, inv); err != nil {
		return InventoryLog{}, Inventory{}, err
	}
	return log, inv, nil
}

// BookEntry is a manual book change.
type BookEntry struct {
	TenantID    int64
	BookID      int64
	Change      decimal.Decimal
	ChangeType  BookChangeType
	Description string
	CreatedBy   string
	Active      bool
	InvoiceID   *int64
	Date        time.Time
}

// AddBookEntry inserts one book entry. The cached balance is bumped only when
// the entry counts; inactive and pending entries wait for activation.
func (e *Engine) AddBookEntry(ctx context.Context, tx TxRepository, entry BookEntry) (BookLog, Book, error) {
	if entry.Change.IsZero() {
		return BookLog{}, Book{}, ErrZeroChange
	}
	if !entry.ChangeType.Valid() {
		return BookLog{}, Book{}, fmt.Errorf("%w: %d", ErrInvalidChangeType, entry.ChangeType)
	}
	book, err := tx.GetBookForUpdate(ctx, entry.TenantID, entry.BookID)
	if err != nil {
		return BookLog{}, Book{}, err
	}
	if entry.CreatedBy == "" {
		entry.CreatedBy = DefaultCreator
	}
	if entry.Date.IsZero() {
		entry.Date = e.now()
	}
	log, err := tx.InsertBookLog(ctx, BookLog{
		TenantID:    entry.TenantID,
		BookID:      book.ID,
		Date:        entry.Date,
		Change:      entry.Change,
		ChangeType:  entry.ChangeType,
		InvoiceID:   entry.InvoiceID,
		Description: entry.Description,
		CreatedBy:   entry.CreatedBy,
		IsActive:    entry.Active,
	})
	if err != nil {
		return BookLog{}, Book{}, err
	}
	if log.Counts() {
		book.CurrentBalance = book.CurrentBalance.Add(log.Change)
		book.LastLogID = &log.ID
		if err := tx.SaveBook(ctx, book); err != nil {
			return BookLog{}, Book{}, err
		}
	}
	return log, book, nil
}

// CustomerPayment builds the inactive entry for a payment submitted by the
// customer. A cheque waits as Pending; anything else is an unverified Paid entry.
func CustomerPayment(tenantID, bookID int64, amount decimal.Decimal, description, customerName string) BookEntry {
	changeType := BookPaid
	if description == DescCheque {
		changeType = BookPending
	}
	return BookEntry{
		TenantID:    tenantID,
		BookID:      bookID,
		Change:      amount,
		ChangeType:  changeType,
		Description: description,
		CreatedBy:   customerName + mobileCreatorSuffix,
		Active:      false,
	}
}

// ActivateEntry marks a book entry active and recomputes its book.
//
// A Pending entry (an uncleared cheque) is flagged active but still does not
// count: the returned balance is unchanged and the returned log reports
// Counts() == false. Such entries start counting only once ResolveEntry
// confirms or adjusts them.
func (e *Engine) ActivateEntry(ctx context.Context, tx TxRepository, tenantID, logID int64) (BookLog, Book, error) {
	log, err := tx.GetBookLog(ctx, tenantID, logID)
	if err != nil {
		return BookLog{}, Book{}, err
	}
	book, err := tx.GetBookForUpdate(ctx, tenantID, log.BookID)
	if err != nil {
		return BookLog{}, Book{}, err
	}
	log.IsActive = true
	if err := tx.UpdateBookLog(ctx, log); err != nil {
		return BookLog{}, Book{}, err
	}
	book, err = recomputeBook(ctx, tx, book)
	if err != nil {
		return BookLog{}, Book{}, err
	}
	return log, book, nil
}

// ResolveAction names how a pending book entry is settled.
type ResolveAction string

const (
	// ResolveConfirm reclassifies the entry as Paid and activates it.
	ResolveConfirm ResolveAction = "confirm"
	// ResolveAdjust leaves the entry alone and books a corrected Other entry.
	ResolveAdjust ResolveAction = "adjust"
)

// Resolution settles one pending book entry.
type Resolution struct {
	TenantID    int64
	LogID       int64
	Action      ResolveAction
	Amount      *decimal.Decimal
	Description string
	CreatedBy   string
}

// ResolveEntry settles a pending or inactive entry and returns the entry that
// now counts. Invoice entries are only changed through the invoice.
func (e *Engine) ResolveEntry(ctx context.Context, tx TxRepository, res Resolution) (BookLog, Book, error) {
	log, err := tx.GetBookLog(ctx, res.TenantID, res.LogID)
	if err != nil {
		return BookLog{}, Book{}, err
	}
	if log.InvoiceID != nil {
		return BookLog{}, Book{}, fmt.Errorf("%w: entry %d, invoice %d", ErrInvoiceEntry, log.ID, *log.InvoiceID)
	}
	if log.IsActive && log.ChangeType != BookPending {
		return BookLog{}, Book{}, fmt.Errorf("%w: entry %d", ErrNotPending, log.ID)
	}
	book, err := tx.GetBookForUpdate(ctx, res.TenantID, log.BookID)
	if err != nil {
		return BookLog{}, Book{}, err
	}

	var result BookLog
	switch res.Action {
	case ResolveConfirm:
		log.ChangeType = BookPaid
		log.IsActive = true
		if res.Description != "" {
			log.Description = res.Description
		}
		if err := tx.UpdateBookLog(ctx, log); err != nil {
			return BookLog{}, Book{}, err
		}
		result = log
	case ResolveAdjust:
		if res.Amount == nil || res.Amount.IsZero() {
			return BookLog{}, Book{}, ErrAmountRequired
		}
		description := res.Description
		if description == "" {
			description = log.Description
		}
		createdBy := res.CreatedBy
		if createdBy == "" {
			createdBy = DefaultCreator
		}
		result, err = tx.InsertBookLog(ctx, BookLog{
			TenantID:    res.TenantID,
			BookID:      book.ID,
			Date:        e.now(),
			Change:      *res.Amount,
			ChangeType:  BookOther,
			Description: description,
			CreatedBy:   createdBy,
			IsActive:    true,
		})
		if err != nil {
			return BookLog{}, Book{}, err
		}
	default:
		return BookLog{}, Book{}, fmt.Errorf("%w: %q", ErrInvalidAction, res.Action)
	}

	book, err = recomputeBook(ctx, tx, book)
	if err != nil {
		return BookLog{}, Book{}, err
	}
	return result, book, nil
}

// DeleteInventoryEntry hard-deletes an inventory entry and recomputes its inventory.
func (e *Engine) DeleteInventoryEntry(ctx context.Context, tx TxRepository, tenantID, logID int64) (*Inventory, error) {
	log, err := tx.GetInventoryLog(ctx, tenantID, logID)
	if err != nil {
		return nil, err
	}
	if log.ProductID == 0 {
		return nil, tx.DeleteInventoryLog(ctx, tenantID, logID)
	}
	inv, err := tx.GetInventoryForUpdate(ctx, tenantID, log.ProductID)
	if err != nil {
		return nil, err
	}
	if err := tx.DeleteInventoryLog(ctx, tenantID, logID); err != nil {
		return nil, err
	}
	inv, err = recomputeInventory(ctx, tx, inv)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// DeleteBookEntry hard-deletes a book entry and recomputes its book.
func (e *Engine) DeleteBookEntry(ctx context.Context, tx TxRepository, tenantID, logID int64) (Book, error) {
	log, err := tx.GetBookLog(ctx, tenantID, logID)
	if err != nil {
		return Book{}, err
	}
	book, err := tx.GetBookForUpdate(ctx, tenantID, log.BookID)
	if err != nil {
		return Book{}, err
	}
	if err := tx.DeleteBookLog(ctx, tenantID, logID); err != nil {
		return Book{}, err
	}
	return recomputeBook(ctx, tx, book)
}

func (e *Engine) resolveProduct(ctx context.Context, tx TxRepository, tenantID int64, key ProductKey) (int64, error) {
	ids, err := tx.FindProductIDs(ctx, tenantID, key)
	if err != nil {
		return 0, err
	}
	switch len(ids) {
	case 0:
		return 0, fmt.Errorf("%w: model %q", ErrProductNotFound, key.ModelNo)
	case 1:
		return ids[0], nil
	default:
		return 0, fmt.Errorf("%w: model %q matched %d products", ErrAmbiguousProduct, key.ModelNo, len(ids))
	}
}

// inventoryForProduct locks the product's inventory, creating it when missing.
func (e *Engine) inventoryForProduct(ctx context.Context, tx TxRepository, tenantID, productID int64) (Inventory, error) {
	inv, err := tx.GetInventoryForUpdate(ctx, tenantID, productID)
	if errors.Is(err, ErrInventoryNotFound) {
		return tx.CreateInventory(ctx, tenantID, productID, 0)
	}
	return inv, err
}

// bookForCustomer locks the customer's book, creating it when missing.
func (e *Engine) bookForCustomer(ctx context.Context, tx TxRepository, tenantID, customerID int64) (Book, error) {
	book, err := tx.GetBookByCustomerForUpdate(ctx, tenantID, customerID)
	if errors.Is(err, ErrBookNotFound) {
		return tx.CreateBook(ctx, tenantID, customerID)
	}
	return book, err
}

// lockInventories locks inventory rows in ascending product order. Missing rows
// are created when create is set and skipped otherwise.
func lockInventories(ctx context.Context, tx TxRepository, tenantID int64, productIDs []int64, create bool) (map[int64]Inventory, error) {
	ids := slices.Clone(productIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	locked := make(map[int64]Inventory, len(ids))
	for _, id := range ids {
		inv, err := tx.GetInventoryForUpdate(ctx, tenantID, id)
		switch {
		case errors.Is(err, ErrInventoryNotFound) && create:
			inv, err = tx.CreateInventory(ctx, tenantID, id, 0)
			if err != nil {
				return nil, err
			}
		case errors.Is(err, ErrInventoryNotFound):
			continue
		case err != nil:
			return nil, err
		}
		locked[id] = inv
	}
	return locked, nil
}
