package quotations

import (
	"time"

	"github.com/odyssey-erp/gstbilling/internal/billing"
)

type CreateQuotationRequest struct {
	Payload           billing.Payload `json:"payload"`
	IsGST             bool            `json:"is_gst"`
	ValidUntil        *time.Time      `json:"valid_until,omitempty"`
	Notes             string          `json:"notes"`
	CreatedByCustomer bool            `json:"created_by_customer"`
}

type UpdateQuotationRequest struct {
	Payload    billing.Payload `json:"payload"`
	ValidUntil *time.Time      `json:"valid_until,omitempty"`
	Notes      *string         `json:"notes,omitempty"`
}

type UpdateStatusRequest struct {
	Status QuotationStatus `json:"status" validate:"required"`
}
