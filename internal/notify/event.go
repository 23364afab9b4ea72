// Package notify builds tenant notifications and delivers them out of band.
// Delivery never participates in the ledger transaction that produced an event.
package notify

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Type classifies a notification.
type Type string

const (
	TypeInfo      Type = "INFO"
	TypeSuccess   Type = "SUCCESS"
	TypeWarning   Type = "WARNING"
	TypeError     Type = "ERROR"
	TypeInvoice   Type = "INVOICE"
	TypeQuotation Type = "QUOTATION"
	TypeCustomer  Type = "CUSTOMER"
	TypeProduct   Type = "PRODUCT"
	TypePayment   Type = "PAYMENT"
	TypeSystem    Type = "SYSTEM"
)

// Event is one notification addressed to a tenant.
type Event struct {
	ID                uuid.UUID `json:"id"`
	TenantID          int64     `json:"tenant_id"`
	Title             string    `json:"title"`
	Message           string    `json:"message"`
	Type              Type      `json:"notification_type"`
	LinkURL           string    `json:"link_url,omitempty"`
	LinkText          string    `json:"link_text,omitempty"`
	RelatedObjectType string    `json:"related_object_type,omitempty"`
	RelatedObjectID   *int64    `json:"related_object_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

func newEvent(tenantID int64, typ Type, title, msg string) Event {
	return Event{
		ID:        uuid.New(),
		TenantID:  tenantID,
		Title:     title,
		Message:   msg,
		Type:      typ,
		CreatedAt: time.Now().UTC(),
	}
}

func (e Event) withLink(url, text string) Event {
	e.LinkURL = url
	e.LinkText = text
	return e
}

func (e Event) relatedTo(kind string, id int64) Event {
	e.RelatedObjectType = kind
	e.RelatedObjectID = &id
	return e
}

func orNA(name string) string {
	if name == "" {
		return "N/A"
	}
	return name
}

// InvoiceCreated announces a new invoice.
func InvoiceCreated(tenantID, invoiceID, number int64, customerName string) Event {
	return newEvent(tenantID, TypeInvoice,
		fmt.Sprintf("Invoice #%d Created", number),
		fmt.Sprintf("New invoice #%d created for %s", number, orNA(customerName))).
		withLink(fmt.Sprintf("/invoice/%d/", invoiceID), "View Invoice").
		relatedTo("Invoice", invoiceID)
}

// QuotationCreated announces a new quotation.
func QuotationCreated(tenantID, quotationID, number int64, customerName string) Event {
	return newEvent(tenantID, TypeQuotation,
		fmt.Sprintf("Quotation #%d Created", number),
		fmt.Sprintf("New quotation #%d created for %s", number, orNA(customerName))).
		withLink(fmt.Sprintf("/quotation/%d/", quotationID), "View Quotation").
		relatedTo("Quotation", quotationID)
}

// QuotationApproved announces an approved quotation.
func QuotationApproved(tenantID, quotationID, number int64) Event {
	return newEvent(tenantID, TypeSuccess,
		fmt.Sprintf("Quotation #%d Approved", number),
		fmt.Sprintf("Quotation #%d has been approved and is ready for conversion", number)).
		withLink(fmt.Sprintf("/quotation/%d/", quotationID), "View Quotation").
		relatedTo("Quotation", quotationID)
}

// PaymentReceived announces a payment that now counts toward a customer balance.
func PaymentReceived(tenantID, customerID int64, amount decimal.Decimal, customerName string) Event {
	p := message.NewPrinter(language.English)
	return newEvent(tenantID, TypePayment,
		"Payment Received",
		p.Sprintf("Payment of ₹%.2f received from %s", amount.Abs().InexactFloat64(), orNA(customerName))).
		withLink(fmt.Sprintf("/customers/edit/%d", customerID), "View Customer").
		relatedTo("Customer", customerID)
}

// LowStock warns that a product is at or below its alert level.
func LowStock(tenantID, productID int64, productName, modelNo string, stock int64) Event {
	return newEvent(tenantID, TypeWarning,
		"Low Stock Alert",
		fmt.Sprintf("Product '%s' (%s) has low stock: %d units remaining", productName, modelNo, stock)).
		withLink("/products", "View Products").
		relatedTo("Product", productID)
}
