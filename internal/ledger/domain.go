// Package ledger implements the inventory and customer-book ledgers, their
// balance caches and the reconciliation engine that keeps both in step with
// invoices.
package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/gstbilling/internal/shared"
)

// InventoryChangeType tags an inventory log entry. Values are persisted.
type InventoryChangeType int16

const (
	InventoryOther      InventoryChangeType = 0
	InventoryPurchase   InventoryChangeType = 1
	InventoryProduction InventoryChangeType = 2
	InventoryReturn     InventoryChangeType = 3
	InventorySale       InventoryChangeType = 4
)

// Valid reports whether the value is a known change type.
func (t InventoryChangeType) Valid() bool {
	return t >= InventoryOther && t <= InventorySale
}

func (t InventoryChangeType) String() string {
	switch t {
	case InventoryOther:
		return "Other"
	case InventoryPurchase:
		return "Purchase"
	case InventoryProduction:
		return "Production"
	case InventoryReturn:
		return "Return"
	case InventorySale:
		return "Sale"
	default:
		return fmt.Sprintf("InventoryChangeType(%d)", int16(t))
	}
}

// BookChangeType tags a book log entry. Values are persisted.
type BookChangeType int16

const (
	BookPaid           BookChangeType = 0
	BookPurchasedItems BookChangeType = 1
	BookReturnedItems  BookChangeType = 2
	BookOther          BookChangeType = 3
	BookPending        BookChangeType = 4
)

// Valid reports whether the value is a known change type.
func (t BookChangeType) Valid() bool {
	return t >= BookPaid && t <= BookPending
}

// Counts reports whether entries of this type contribute to a balance.
func (t BookChangeType) Counts() bool {
	return t.Valid() && t != BookPending
}

func (t BookChangeType) String() string {
	switch t {
	case BookPaid:
		return "Paid"
	case BookPurchasedItems:
		return "Purchased Items"
	case BookReturnedItems:
		return "Returned Items"
	case BookOther:
		return "Other"
	case BookPending:
		return "Pending"
	default:
		return fmt.Sprintf("BookChangeType(%d)", int16(t))
	}
}

// PurchaseChangeType tags a vendor purchase log entry. Values are persisted.
type PurchaseChangeType int16

const (
	PurchasePurchase PurchaseChangeType = 0
	PurchasePaid     PurchaseChangeType = 1
	PurchaseOthers   PurchaseChangeType = 3
)

// Valid reports whether the value is a known change type.
func (t PurchaseChangeType) Valid() bool {
	return t == PurchasePurchase || t == PurchasePaid || t == PurchaseOthers
}

const (
	// DefaultCreator is stamped on book entries written by the system.
	DefaultCreator = "SYSTEM"

	DescSale            = "Sale - Auto Deduct"
	DescNonGSTSale      = "Non-GST Sale - Auto Deduct"
	DescPurchase        = "Purchase - Auto Deduct"
	DescInitialStock    = "Initial stock"
	DescCheque          = "Cheque"
	mobileCreatorSuffix = " via Mobile App"
)

// InventoryLog is one stock-affecting event. Every entry counts toward stock.
type InventoryLog struct {
	ID          int64               `json:"id"`
	TenantID    int64               `json:"tenant_id"`
	ProductID   int64               `json:"product_id"`
	Date        time.Time           `json:"date"`
	Change      int64               `json:"change"`
	ChangeType  InventoryChangeType `json:"change_type"`
	InvoiceID   *int64              `json:"invoice_id,omitempty"`
	Description string              `json:"description"`
}

// Inventory is the cached stock of one product.
type Inventory struct {
	ID           int64  `json:"id"`
	TenantID     int64  `json:"tenant_id"`
	ProductID    int64  `json:"product_id"`
	ProductName  string `json:"product_name"`
	ModelNo      string `json:"model_no"`
	CurrentStock int64  `json:"current_stock"`
	AlertLevel   int64  `json:"alert_level"`
	LastLogID    *int64 `json:"last_log_id,omitempty"`
}

// LowStock reports whether stock has fallen to the alert level.
func (i Inventory) LowStock() bool {
	return i.AlertLevel > 0 && i.CurrentStock <= i.AlertLevel
}

// Book is the cached running balance of one customer.
type Book struct {
	ID             int64           `json:"id"`
	TenantID       int64           `json:"tenant_id"`
	CustomerID     int64           `json:"customer_id"`
	CustomerName   string          `json:"customer_name"`
	CurrentBalance decimal.Decimal `json:"current_balance"`
	LastLogID      *int64          `json:"last_log_id,omitempty"`
}

// BookLog is one balance-affecting event.
//
// IsActive carries two meanings at once: the entry counts toward the balance,
// and the entry has been verified. Customer-submitted payments are stored
// inactive and only count once activated.
type BookLog struct {
	ID          int64           `json:"id"`
	TenantID    int64           `json:"tenant_id"`
	BookID      int64           `json:"book_id"`
	Date        time.Time       `json:"date"`
	Change      decimal.Decimal `json:"change"`
	ChangeType  BookChangeType  `json:"change_type"`
	InvoiceID   *int64          `json:"invoice_id,omitempty"`
	Description string          `json:"description"`
	CreatedBy   string          `json:"created_by"`
	IsActive    bool            `json:"is_active"`
}

// Counts reports whether the entry contributes to its book balance.
func (l BookLog) Counts() bool {
	return l.IsActive && l.ChangeType.Counts()
}

// PurchaseLog is one vendor purchase or payment.
type PurchaseLog struct {
	ID         int64              `json:"id"`
	TenantID   int64              `json:"tenant_id"`
	VendorID   *int64             `json:"vendor_id,omitempty"`
	Date       time.Time          `json:"date"`
	Change     decimal.Decimal    `json:"change"`
	ChangeType PurchaseChangeType `json:"change_type"`
	Reference  string             `json:"reference"`
	Category   string             `json:"category"`
}

// ProductKey is the invoice-path natural key of a product.
type ProductKey struct {
	ModelNo       string  `json:"model_no"`
	Name          string  `json:"name"`
	HSN           string  `json:"hsn"`
	GSTPercentage float64 `json:"gst_percentage"`
}

var (
	ErrInventoryNotFound      = fmt.Errorf("ledger: inventory %w", shared.ErrNotFound)
	ErrBookNotFound           = fmt.Errorf("ledger: book %w", shared.ErrNotFound)
	ErrEntryNotFound          = fmt.Errorf("ledger: entry %w", shared.ErrNotFound)
	ErrProductNotFound        = fmt.Errorf("ledger: product %w", shared.ErrNotFound)
	ErrAmbiguousProduct       = fmt.Errorf("ledger: product %w", shared.ErrAmbiguousMatch)
	ErrInvoiceEntryMissing    = fmt.Errorf("ledger: invoice book entry %w", shared.ErrNotFound)
	ErrInvoiceEntryDuplicated = fmt.Errorf("ledger: more than one book entry linked to invoice: %w", shared.ErrDataIntegrity)
	ErrZeroChange             = fmt.Errorf("ledger: change must not be zero: %w", shared.ErrValidation)
	ErrInvalidChangeType      = fmt.Errorf("ledger: unknown change type: %w", shared.ErrValidation)
	ErrInvalidAction          = fmt.Errorf("ledger: unknown resolve action: %w", shared.ErrValidation)
	ErrAmountRequired         = fmt.Errorf("ledger: adjusted amount required: %w", shared.ErrValidation)
	ErrNotPending             = fmt.Errorf("ledger: entry is not pending: %w", shared.ErrInvalidState)
	ErrInvoiceEntry           = fmt.Errorf("ledger: entry belongs to an invoice: %w", shared.ErrInvalidState)
)
