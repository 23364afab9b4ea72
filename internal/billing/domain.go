// Package billing issues invoices, allocates document numbers and keeps
// invoices reconciled with the inventory and book ledgers.
package billing

import (
	"fmt"
	"time"

	"github.com/odyssey-erp/gstbilling/internal/ledger"
	"github.com/odyssey-erp/gstbilling/internal/shared"
)

// Invoice is an issued financial document. The reflected flags record
// whether each ledger side has been applied.
type Invoice struct {
	ID                 int64     `json:"id"`
	TenantID           int64     `json:"tenant_id"`
	Number             int64     `json:"invoice_number"`
	Date               time.Time `json:"invoice_date"`
	CustomerID         *int64    `json:"customer_id,omitempty"`
	CustomerName       string    `json:"customer_name"`
	Payload            Payload   `json:"invoice_json"`
	IsGST              bool      `json:"is_gst"`
	InventoryReflected bool      `json:"inventory_reflected"`
	BooksReflected     bool      `json:"books_reflected"`
	CreatedAt          time.Time `json:"created_at"`
}

// BusinessProfile carries the GST registration that groups numbering series.
type BusinessProfile struct {
	TenantID      int64  `json:"tenant_id"`
	BusinessTitle string `json:"business_title"`
	BusinessGST   string `json:"business_gst"`
}

// CreateRequest is an invoice submitted by the caller.
type CreateRequest struct {
	Payload        Payload `json:"payload"`
	IsGST          bool    `json:"is_gst"`
	IdempotencyKey string  `json:"-"`
}

// Draft is an invoice about to be issued for an already resolved customer.
type Draft struct {
	TenantID     int64
	CustomerID   int64
	CustomerName string
	Number       int64
	Date         time.Time
	IsGST        bool
	Payload      Payload
}

// Issued is an invoice together with the ledger effects of issuing it.
type Issued struct {
	Invoice Invoice        `json:"invoice"`
	Applied ledger.Applied `json:"applied"`
}

// Repair reports what push-to-books re-applied.
type Repair struct {
	Inventory       bool `json:"inventory"`
	Books           bool `json:"books"`
	StaleFlagsReset int  `json:"stale_flags_reset"`
}

var (
	ErrInvoiceNotFound  = fmt.Errorf("billing: invoice %w", shared.ErrNotFound)
	ErrCustomerRequired = fmt.Errorf("billing: invoice has no customer: %w", shared.ErrInvalidState)
)
