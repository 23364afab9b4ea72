package billing

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/gstbilling/internal/identity"
	"github.com/odyssey-erp/gstbilling/internal/shared"
)

// DateLayout is the payload date format.
const DateLayout = "2006-01-02"

// Item is one invoiced line as stored in the invoice and quotation JSON.
type Item struct {
	ModelNo        string  `json:"invoice_model_no" validate:"required,max=200"`
	Name           string  `json:"invoice_product" validate:"max=50"`
	HSN            string  `json:"invoice_hsn" validate:"max=50"`
	Qty            int64   `json:"invoice_qty" validate:"gt=0"`
	Discount       float64 `json:"invoice_discount"`
	RateWithGST    float64 `json:"invoice_rate_with_gst"`
	GSTPercentage  float64 `json:"invoice_gst_percentage"`
	RateWithoutGST float64 `json:"invoice_rate_without_gst"`
	AmtWithoutGST  float64 `json:"invoice_amt_without_gst"`
	AmtSGST        float64 `json:"invoice_amt_sgst"`
	AmtCGST        float64 `json:"invoice_amt_cgst"`
	AmtIGST        float64 `json:"invoice_amt_igst"`
	AmtWithGST     float64 `json:"invoice_amt_with_gst"`
}

// Product returns the product the line refers to.
func (it Item) Product() identity.Product {
	return identity.Product{
		ModelNo:       it.ModelNo,
		Name:          it.Name,
		HSN:           it.HSN,
		Discount:      it.Discount,
		GSTPercentage: it.GSTPercentage,
		RateWithGST:   it.RateWithGST,
	}
}

// Payload is the line-item document shared by invoices and quotations.
// Totals are computed by the caller and trusted as given.
type Payload struct {
	InvoiceNumber   string  `json:"invoice_number"`
	InvoiceDate     string  `json:"invoice_date" validate:"required,datetime=2006-01-02"`
	CustomerName    string  `json:"customer_name" validate:"required,max=200"`
	CustomerAddress string  `json:"customer_address" validate:"max=600"`
	CustomerPhone   string  `json:"customer_phone" validate:"max=14"`
	CustomerGST     string  `json:"customer_gst" validate:"omitempty,len=15"`
	VehicleNumber   string  `json:"vehicle_number"`
	IGST            bool    `json:"igstcheck"`
	Items           []Item  `json:"items" validate:"dive"`
	TotalWithoutGST float64 `json:"invoice_total_amt_without_gst"`
	TotalSGST       float64 `json:"invoice_total_amt_sgst"`
	TotalCGST       float64 `json:"invoice_total_amt_cgst"`
	TotalIGST       float64 `json:"invoice_total_amt_igst"`
	TotalWithGST    float64 `json:"invoice_total_amt_with_gst"`
}

// Normalize trims the header fields and drops lines without a model number.
func (p Payload) Normalize() Payload {
	p.InvoiceNumber = strings.TrimSpace(p.InvoiceNumber)
	p.InvoiceDate = strings.TrimSpace(p.InvoiceDate)
	p.CustomerName = strings.TrimSpace(p.CustomerName)
	p.CustomerAddress = strings.TrimSpace(p.CustomerAddress)
	p.CustomerPhone = strings.TrimSpace(p.CustomerPhone)
	p.CustomerGST = strings.TrimSpace(p.CustomerGST)
	items := make([]Item, 0, len(p.Items))
	for _, it := range p.Items {
		if strings.TrimSpace(it.ModelNo) == "" {
			continue
		}
		items = append(items, it)
	}
	p.Items = items
	return p
}

// Validate checks the boundary rules on a normalized payload.
func (p Payload) Validate() error {
	if err := shared.Validate(p); err != nil {
		return err
	}
	if _, _, err := p.Number(); err != nil {
		return err
	}
	return nil
}

// Number returns the caller-supplied invoice number; ok is false when none was given.
func (p Payload) Number() (int64, bool, error) {
	if p.InvoiceNumber == "" {
		return 0, false, nil
	}
	n, err := strconv.ParseInt(p.InvoiceNumber, 10, 64)
	if err != nil || n < 1 {
		return 0, false, fmt.Errorf("%w: invoice_number must be a positive integer", shared.ErrValidation)
	}
	return n, true, nil
}

// Date parses the payload date.
func (p Payload) Date() (time.Time, error) {
	d, err := time.Parse(DateLayout, p.InvoiceDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invoice_date: %v", shared.ErrValidation, err)
	}
	return d, nil
}

// Total is the grand total with GST, rounded to paise.
func (p Payload) Total() decimal.Decimal {
	return decimal.NewFromFloat(p.TotalWithGST).Round(2)
}

// CustomerKey is the strict-path customer identity carried by the payload.
func (p Payload) CustomerKey() identity.CustomerKey {
	return identity.CustomerKey{
		Name:    p.CustomerName,
		Address: p.CustomerAddress,
		Phone:   p.CustomerPhone,
		GST:     p.CustomerGST,
	}
}
