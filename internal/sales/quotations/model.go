// Package quotations tracks quotations through fulfilment and converts them
// into invoices exactly once.
package quotations

import (
	"fmt"
	"time"

	"github.com/odyssey-erp/gstbilling/internal/billing"
	"github.com/odyssey-erp/gstbilling/internal/shared"
)

type QuotationStatus string

const (
	QuotationStatusDraft          QuotationStatus = "DRAFT"
	QuotationStatusApproved       QuotationStatus = "APPROVED"
	QuotationStatusProcessing     QuotationStatus = "PROCESSING"
	QuotationStatusPacked         QuotationStatus = "PACKED"
	QuotationStatusShipped        QuotationStatus = "SHIPPED"
	QuotationStatusOutForDelivery QuotationStatus = "OUT_FOR_DELIVERY"
	QuotationStatusDelivered      QuotationStatus = "DELIVERED"
	QuotationStatusConverted      QuotationStatus = "CONVERTED"
)

// Valid reports whether the status is known.
func (s QuotationStatus) Valid() bool {
	switch s {
	case QuotationStatusDraft, QuotationStatusApproved, QuotationStatusProcessing, QuotationStatusPacked,
		QuotationStatusShipped, QuotationStatusOutForDelivery, QuotationStatusDelivered, QuotationStatusConverted:
		return true
	}
	return false
}

// DefaultValidity is how long a quotation stays valid when no date is given.
const DefaultValidity = 30 * 24 * time.Hour

type Quotation struct {
	ID                 int64           `json:"id"`
	TenantID           int64           `json:"tenant_id"`
	Number             int64           `json:"quotation_number"`
	Date               time.Time       `json:"quotation_date"`
	ValidUntil         *time.Time      `json:"valid_until,omitempty"`
	CustomerID         *int64          `json:"customer_id,omitempty"`
	CustomerName       string          `json:"customer_name"`
	Payload            billing.Payload `json:"quotation_json"`
	IsGST              bool            `json:"is_gst"`
	Status             QuotationStatus `json:"status"`
	ConvertedInvoiceID *int64          `json:"converted_invoice_id,omitempty"`
	ConvertedAt        *time.Time      `json:"converted_at,omitempty"`
	ConvertedBy        *string         `json:"converted_by,omitempty"`
	CreatedByCustomer  bool            `json:"created_by_customer"`
	Notes              string          `json:"notes"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// CanBeEdited reports whether the quotation still accepts edits.
func (q Quotation) CanBeEdited() bool {
	return q.Status != QuotationStatusConverted
}

// CanBeConverted reports whether an invoice may be issued from the quotation.
// A delivered quotation without an invoice was fulfilled through the status
// tracker but never invoiced, and remains convertible.
func (q Quotation) CanBeConverted() bool {
	if q.ConvertedInvoiceID != nil {
		return false
	}
	switch q.Status {
	case QuotationStatusDraft, QuotationStatusApproved, QuotationStatusDelivered:
		return true
	}
	return false
}

// CanBeDeleted reports whether the quotation may be removed.
func (q Quotation) CanBeDeleted() bool {
	return q.Status != QuotationStatusConverted && q.ConvertedInvoiceID == nil
}

// Conversion is the outcome of issuing an invoice from a quotation.
type Conversion struct {
	Quotation Quotation       `json:"quotation"`
	Invoice   billing.Invoice `json:"invoice"`
}

var (
	ErrQuotationNotFound = fmt.Errorf("quotations: quotation %w", shared.ErrNotFound)
	ErrInvalidStatus     = fmt.Errorf("quotations: %w", shared.ErrInvalidState)
	ErrUnknownStatus     = fmt.Errorf("quotations: unknown status: %w", shared.ErrValidation)
	ErrValidUntil        = fmt.Errorf("quotations: valid_until must not precede the quotation date: %w", shared.ErrValidation)
)
