package memstore

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/odyssey-erp/gstbilling/internal/billing"
	"github.com/odyssey-erp/gstbilling/internal/shared"
)

func (t *Tx) GetBusinessProfile(_ context.Context, tenantID int64) (billing.BusinessProfile, error) {
	if p, ok := t.d.profiles[tenantID]; ok {
		return p, nil
	}
	return billing.BusinessProfile{TenantID: tenantID}, nil
}

// ClaimNumberSeries records the claim; transactions are already serialised.
func (t *Tx) ClaimNumberSeries(_ context.Context, key string, number int64) error {
	t.d.seriesClaims = append(t.d.seriesClaims, SeriesClaim{Key: key, Number: number})
	return nil
}

func (t *Tx) MaxNumber(_ context.Context, doc billing.Document, tenantID int64, isGST bool, businessGST string) (int64, error) {
	inSeries := func(docTenant int64, docGST bool) bool {
		if isGST && businessGST != "" {
			return docGST && t.d.profiles[docTenant].BusinessGST == businessGST
		}
		return docTenant == tenantID && docGST == isGST
	}
	var last int64
	if doc == billing.DocQuotation {
		for _, q := range t.d.quotations {
			if inSeries(q.TenantID, q.IsGST) {
				last = max(last, q.Number)
			}
		}
		return last, nil
	}
	for _, inv := range t.d.invoices {
		if inSeries(inv.TenantID, inv.IsGST) {
			last = max(last, inv.Number)
		}
	}
	return last, nil
}

func (t *Tx) joinInvoice(inv billing.Invoice) billing.Invoice {
	inv.CustomerName = ""
	if inv.CustomerID != nil {
		inv.CustomerName = t.d.customers[*inv.CustomerID].Name
	}
	return inv
}

func (t *Tx) InsertInvoice(_ context.Context, inv billing.Invoice) (billing.Invoice, error) {
	if err := t.fault("InsertInvoice"); err != nil {
		return billing.Invoice{}, err
	}
	inv.ID = t.d.next("invoices")
	inv.CreatedAt = time.Now()
	t.d.invoices[inv.ID] = inv
	return inv, nil
}

func (t *Tx) GetInvoice(_ context.Context, tenantID, id int64) (billing.Invoice, error) {
	inv, ok := t.d.invoices[id]
	if !ok || inv.TenantID != tenantID {
		return billing.Invoice{}, fmt.Errorf("%w: id %d", billing.ErrInvoiceNotFound, id)
	}
	return t.joinInvoice(inv), nil
}

func (t *Tx) GetInvoiceForUpdate(ctx context.Context, tenantID, id int64) (billing.Invoice, error) {
	return t.GetInvoice(ctx, tenantID, id)
}

func (t *Tx) ListInvoices(_ context.Context, tenantID int64) ([]billing.Invoice, error) {
	out := sortedBy(t.d.invoices, func(inv billing.Invoice) bool { return inv.TenantID == tenantID })
	for i := range out {
		out[i] = t.joinInvoice(out[i])
	}
	slices.SortFunc(out, func(a, b billing.Invoice) int { return cmp.Compare(b.ID, a.ID) })
	return out, nil
}

func (t *Tx) SetReflected(_ context.Context, tenantID, id int64, inventory, books bool) error {
	if err := t.fault("SetReflected"); err != nil {
		return err
	}
	inv, ok := t.d.invoices[id]
	if !ok || inv.TenantID != tenantID {
		return fmt.Errorf("%w: id %d", billing.ErrInvoiceNotFound, id)
	}
	inv.InventoryReflected, inv.BooksReflected = inventory, books
	t.d.invoices[id] = inv
	return nil
}

func (t *Tx) DeleteInvoice(ctx context.Context, tenantID, id int64) error {
	if _, err := t.GetInvoice(ctx, tenantID, id); err != nil {
		return err
	}
	delete(t.d.invoices, id)
	for logID, l := range t.d.inventoryLogs {
		if l.InvoiceID != nil && *l.InvoiceID == id {
			l.InvoiceID = nil
			t.d.inventoryLogs[logID] = l
		}
	}
	for logID, l := range t.d.bookLogs {
		if l.InvoiceID != nil && *l.InvoiceID == id {
			l.InvoiceID = nil
			t.d.bookLogs[logID] = l
		}
	}
	for qID, q := range t.d.quotations {
		if q.ConvertedInvoiceID != nil && *q.ConvertedInvoiceID == id {
			q.ConvertedInvoiceID = nil
			t.d.quotations[qID] = q
		}
	}
	return nil
}

func (t *Tx) ClearQuotationLink(_ context.Context, tenantID, invoiceID int64) (int64, error) {
	var n int64
	for id, q := range t.d.quotations {
		if q.TenantID == tenantID && q.ConvertedInvoiceID != nil && *q.ConvertedInvoiceID == invoiceID {
			q.ConvertedInvoiceID = nil
			q.UpdatedAt = time.Now()
			t.d.quotations[id] = q
			n++
		}
	}
	return n, nil
}

func (t *Tx) ClaimIdempotencyKey(_ context.Context, tenantID int64, key, module string) error {
	if key == "" || module == "" {
		return errors.New("idempotency key and module required")
	}
	k := fmt.Sprintf("%d/%s/%s", tenantID, module, key)
	if _, ok := t.d.idempotency[k]; ok {
		return shared.ErrIdempotencyConflict
	}
	t.d.idempotency[k] = struct{}{}
	return nil
}
