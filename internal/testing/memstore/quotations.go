package memstore

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/odyssey-erp/gstbilling/internal/sales/quotations"
)

func (t *Tx) joinQuotation(q quotations.Quotation) quotations.Quotation {
	q.CustomerName = ""
	if q.CustomerID != nil {
		q.CustomerName = t.d.customers[*q.CustomerID].Name
	}
	return q
}

func (t *Tx) InsertQuotation(_ context.Context, q quotations.Quotation) (quotations.Quotation, error) {
	q.ID = t.d.next("quotations")
	q.CreatedAt = time.Now()
	q.UpdatedAt = q.CreatedAt
	t.d.quotations[q.ID] = q
	return q, nil
}

func (t *Tx) GetQuotation(_ context.Context, tenantID, id int64) (quotations.Quotation, error) {
	q, ok := t.d.quotations[id]
	if !ok || q.TenantID != tenantID {
		return quotations.Quotation{}, fmt.Errorf("%w: id %d", quotations.ErrQuotationNotFound, id)
	}
	return t.joinQuotation(q), nil
}

func (t *Tx) GetQuotationForUpdate(ctx context.Context, tenantID, id int64) (quotations.Quotation, error) {
	return t.GetQuotation(ctx, tenantID, id)
}

func (t *Tx) ListQuotations(_ context.Context, tenantID int64, status *quotations.QuotationStatus) ([]quotations.Quotation, error) {
	out := sortedBy(t.d.quotations, func(q quotations.Quotation) bool {
		return q.TenantID == tenantID && (status == nil || q.Status == *status)
	})
	for i := range out {
		out[i] = t.joinQuotation(out[i])
	}
	slices.SortFunc(out, func(a, b quotations.Quotation) int {
		if c := b.Date.Compare(a.Date); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return out, nil
}

func (t *Tx) update(tenantID, id int64, fn func(*quotations.Quotation)) error {
	q, ok := t.d.quotations[id]
	if !ok || q.TenantID != tenantID {
		return fmt.Errorf("%w: id %d", quotations.ErrQuotationNotFound, id)
	}
	fn(&q)
	q.UpdatedAt = time.Now()
	t.d.quotations[id] = q
	return nil
}

func (t *Tx) UpdateQuotation(_ context.Context, q quotations.Quotation) error {
	return t.update(q.TenantID, q.ID, func(cur *quotations.Quotation) {
		cur.Date, cur.ValidUntil, cur.CustomerID, cur.Payload, cur.Notes = q.Date, q.ValidUntil, q.CustomerID, q.Payload, q.Notes
	})
}

func (t *Tx) SetQuotationStatus(_ context.Context, tenantID, id int64, status quotations.QuotationStatus) error {
	return t.update(tenantID, id, func(cur *quotations.Quotation) { cur.Status = status })
}

func (t *Tx) LinkInvoice(_ context.Context, tenantID, id, invoiceID int64, status quotations.QuotationStatus, at time.Time, by string) error {
	if err := t.fault("LinkInvoice"); err != nil {
		return err
	}
	return t.update(tenantID, id, func(cur *quotations.Quotation) {
		cur.ConvertedInvoiceID = &invoiceID
		cur.Status = status
		cur.ConvertedAt = &at
		cur.ConvertedBy = &by
	})
}

func (t *Tx) DeleteQuotation(_ context.Context, tenantID, id int64) error {
	if _, ok := t.d.quotations[id]; !ok || t.d.quotations[id].TenantID != tenantID {
		return fmt.Errorf("%w: id %d", quotations.ErrQuotationNotFound, id)
	}
	delete(t.d.quotations, id)
	return nil
}
