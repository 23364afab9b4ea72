// Package identity resolves customers and products by natural key, registers
// them in bulk and merges duplicates discovered after the fact.
package identity

import (
	"fmt"
	"time"

	"github.com/odyssey-erp/gstbilling/internal/ledger"
	"github.com/odyssey-erp/gstbilling/internal/shared"
)

// Customer is a tenant's customer.
type Customer struct {
	ID           int64     `json:"id"`
	TenantID     int64     `json:"tenant_id"`
	Name         string    `json:"name" validate:"required,max=200"`
	Address      string    `json:"address" validate:"max=600"`
	Phone        string    `json:"phone" validate:"max=14"`
	GST          string    `json:"gst" validate:"omitempty,len=15"`
	Email        string    `json:"email" validate:"omitempty,email"`
	UserID       string    `json:"userid,omitempty"`
	IsMobileUser bool      `json:"is_mobile_user"`
	CreatedAt    time.Time `json:"created_at"`
}

// Key returns the strict-path natural key.
func (c Customer) Key() CustomerKey {
	return CustomerKey{Name: c.Name, Address: c.Address, Phone: c.Phone, GST: c.GST}
}

// CustomerKey is the strict-path natural key of a customer.
type CustomerKey struct {
	Name    string
	Address string
	Phone   string
	GST     string
}

// Product is a tenant's product.
type Product struct {
	ID            int64   `json:"id"`
	TenantID      int64   `json:"tenant_id"`
	ModelNo       string  `json:"model_no" validate:"required,max=200"`
	Name          string  `json:"name" validate:"max=50"`
	HSN           string  `json:"hsn" validate:"max=50"`
	Discount      float64 `json:"discount" validate:"gte=0,lte=100"`
	GSTPercentage float64 `json:"gst_percentage" validate:"gte=0,lte=100"`
	RateWithGST   float64 `json:"rate_with_gst" validate:"gte=0"`
}

// Key returns the invoice-path natural key.
func (p Product) Key() ledger.ProductKey {
	return ledger.ProductKey{ModelNo: p.ModelNo, Name: p.Name, HSN: p.HSN, GSTPercentage: p.GSTPercentage}
}

// ProductRegistration is one bulk product insert with optional opening stock.
type ProductRegistration struct {
	Product      Product `json:"product"`
	AlertLevel   int64   `json:"alert_level" validate:"gte=0"`
	InitialStock int64   `json:"initial_stock"`
}

// BulkResult counts the outcome of a bulk registration.
type BulkResult struct {
	Inserted int      `json:"inserted"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`
}

// MergeKind selects which duplicates a merge run consolidates.
type MergeKind string

const (
	MergeCustomers MergeKind = "customers"
	MergeProducts  MergeKind = "products"
)

// Valid reports whether the kind is known.
func (k MergeKind) Valid() bool {
	return k == MergeCustomers || k == MergeProducts
}

// MergeReport counts what a merge run changed.
type MergeReport struct {
	Kind              MergeKind `json:"kind"`
	Groups            int       `json:"groups"`
	Removed           int       `json:"removed"`
	BooksMerged       int       `json:"books_merged,omitempty"`
	InventoriesMerged int       `json:"inventories_merged,omitempty"`
	LogsMoved         int64     `json:"logs_moved"`
	InvoicesMoved     int64     `json:"invoices_moved,omitempty"`
	QuotationsMoved   int64     `json:"quotations_moved,omitempty"`
}

func (r *MergeReport) add(o MergeReport) {
	r.Groups += o.Groups
	r.Removed += o.Removed
	r.BooksMerged += o.BooksMerged
	r.InventoriesMerged += o.InventoriesMerged
	r.LogsMoved += o.LogsMoved
	r.InvoicesMoved += o.InvoicesMoved
	r.QuotationsMoved += o.QuotationsMoved
}

var (
	ErrCustomerNotFound  = fmt.Errorf("identity: customer %w", shared.ErrNotFound)
	ErrAmbiguousCustomer = fmt.Errorf("identity: customer %w", shared.ErrAmbiguousMatch)
	ErrDuplicateCustomer = fmt.Errorf("identity: customer already exists: %w", shared.ErrConflict)
	ErrDuplicateProduct  = fmt.Errorf("identity: model number already exists: %w", shared.ErrConflict)
	ErrInvalidMergeKind  = fmt.Errorf("identity: unknown merge kind: %w", shared.ErrValidation)
)
