package memstore

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/odyssey-erp/gstbilling/internal/identity"
	"github.com/odyssey-erp/gstbilling/internal/ledger"
)

func (t *Tx) GetCustomer(_ context.Context, tenantID, id int64) (identity.Customer, error) {
	c, ok := t.d.customers[id]
	if !ok || c.TenantID != tenantID {
		return identity.Customer{}, fmt.Errorf("%w: id %d", identity.ErrCustomerNotFound, id)
	}
	return c, nil
}

func (t *Tx) FindCustomers(_ context.Context, tenantID int64, key identity.CustomerKey) ([]identity.Customer, error) {
	return sortedBy(t.d.customers, func(c identity.Customer) bool {
		return c.TenantID == tenantID && c.Key() == key
	}), nil
}

func (t *Tx) CustomerCollides(_ context.Context, tenantID int64, phone, email, gst string) (bool, error) {
	for _, c := range t.d.customers {
		if c.TenantID != tenantID {
			continue
		}
		if (phone != "" && c.Phone == phone) || (email != "" && c.Email == email) || (gst != "" && c.GST == gst) {
			return true, nil
		}
	}
	return false, nil
}

func (t *Tx) InsertCustomer(_ context.Context, c identity.Customer) (identity.Customer, error) {
	if err := t.fault("InsertCustomer"); err != nil {
		return identity.Customer{}, err
	}
	c.ID = t.d.next("customers")
	c.CreatedAt = time.Now()
	t.d.customers[c.ID] = c
	return c, nil
}

func (t *Tx) SetCustomerUserID(_ context.Context, tenantID, id int64, userID string) error {
	if c, ok := t.d.customers[id]; ok && c.TenantID == tenantID {
		c.UserID = userID
		t.d.customers[id] = c
	}
	return nil
}

func (t *Tx) DeleteCustomer(ctx context.Context, tenantID, id int64) error {
	if _, err := t.GetCustomer(ctx, tenantID, id); err != nil {
		return err
	}
	delete(t.d.customers, id)
	for bookID, b := range t.d.books {
		if b.CustomerID == id {
			t.dropBook(bookID)
		}
	}
	for invID, inv := range t.d.invoices {
		if inv.CustomerID != nil && *inv.CustomerID == id {
			inv.CustomerID = nil
			t.d.invoices[invID] = inv
		}
	}
	for qID, q := range t.d.quotations {
		if q.CustomerID != nil && *q.CustomerID == id {
			q.CustomerID = nil
			t.d.quotations[qID] = q
		}
	}
	return nil
}

func (t *Tx) dropBook(bookID int64) {
	delete(t.d.books, bookID)
	for id, l := range t.d.bookLogs {
		if l.BookID == bookID {
			delete(t.d.bookLogs, id)
		}
	}
}

func (t *Tx) GetProduct(_ context.Context, tenantID, id int64) (identity.Product, error) {
	p, ok := t.d.products[id]
	if !ok || p.TenantID != tenantID {
		return identity.Product{}, fmt.Errorf("%w: id %d", ledger.ErrProductNotFound, id)
	}
	return p, nil
}

func (t *Tx) FindProductsByModel(_ context.Context, tenantID int64, modelNo string) ([]identity.Product, error) {
	out := sortedBy(t.d.products, func(p identity.Product) bool {
		return p.TenantID == tenantID && p.ModelNo == modelNo
	})
	slices.Reverse(out)
	return out, nil
}

func (t *Tx) InsertProduct(_ context.Context, p identity.Product) (identity.Product, error) {
	if err := t.fault("InsertProduct"); err != nil {
		return identity.Product{}, err
	}
	p.ID = t.d.next("products")
	t.d.products[p.ID] = p
	return p, nil
}

func (t *Tx) UpdateProductRate(_ context.Context, tenantID, id int64, rateWithGST float64) error {
	if p, ok := t.d.products[id]; ok && p.TenantID == tenantID {
		p.RateWithGST = rateWithGST
		t.d.products[id] = p
	}
	return nil
}

func (t *Tx) DeleteProduct(ctx context.Context, tenantID, id int64) error {
	if _, err := t.GetProduct(ctx, tenantID, id); err != nil {
		return err
	}
	delete(t.d.products, id)
	for invID, inv := range t.d.inventories {
		if inv.ProductID == id {
			delete(t.d.inventories, invID)
		}
	}
	for logID, l := range t.d.inventoryLogs {
		if l.ProductID == id {
			l.ProductID = 0
			t.d.inventoryLogs[logID] = l
		}
	}
	return nil
}

func duplicates[T any](items []T, key func(T) string) []string {
	counts := map[string]int{}
	for _, it := range items {
		counts[key(it)]++
	}
	out := make([]string, 0)
	for k, n := range counts {
		if n > 1 {
			out = append(out, k)
		}
	}
	slices.Sort(out)
	return out
}

func (t *Tx) DuplicateCustomerNames(_ context.Context, tenantID int64) ([]string, error) {
	customers := sortedBy(t.d.customers, func(c identity.Customer) bool { return c.TenantID == tenantID })
	return duplicates(customers, func(c identity.Customer) string { return c.Name }), nil
}

func (t *Tx) ListCustomersByName(_ context.Context, tenantID int64, name string) ([]identity.Customer, error) {
	out := sortedBy(t.d.customers, func(c identity.Customer) bool {
		return c.TenantID == tenantID && c.Name == name
	})
	slices.SortFunc(out, func(a, b identity.Customer) int { return cmp.Compare(b.ID, a.ID) })
	return out, nil
}

func (t *Tx) MoveBookLogs(_ context.Context, tenantID, fromBookID, toBookID int64) (int64, error) {
	var n int64
	for id, l := range t.d.bookLogs {
		if l.TenantID == tenantID && l.BookID == fromBookID {
			l.BookID = toBookID
			t.d.bookLogs[id] = l
			n++
		}
	}
	return n, nil
}

func (t *Tx) ReassignBook(_ context.Context, tenantID, bookID, customerID int64) error {
	if b, ok := t.d.books[bookID]; ok && b.TenantID == tenantID {
		b.CustomerID = customerID
		t.d.books[bookID] = b
	}
	return nil
}

func (t *Tx) DeleteBook(_ context.Context, tenantID, bookID int64) error {
	if b, ok := t.d.books[bookID]; ok && b.TenantID == tenantID {
		t.dropBook(bookID)
	}
	return nil
}

func (t *Tx) ReassignInvoices(_ context.Context, tenantID, fromCustomerID, toCustomerID int64) (int64, error) {
	var n int64
	for id, inv := range t.d.invoices {
		if inv.TenantID == tenantID && inv.CustomerID != nil && *inv.CustomerID == fromCustomerID {
			to := toCustomerID
			inv.CustomerID = &to
			t.d.invoices[id] = inv
			n++
		}
	}
	return n, nil
}

func (t *Tx) ReassignQuotations(_ context.Context, tenantID, fromCustomerID, toCustomerID int64) (int64, error) {
	var n int64
	for id, q := range t.d.quotations {
		if q.TenantID == tenantID && q.CustomerID != nil && *q.CustomerID == fromCustomerID {
			to := toCustomerID
			q.CustomerID = &to
			q.UpdatedAt = time.Now()
			t.d.quotations[id] = q
			n++
		}
	}
	return n, nil
}

func (t *Tx) DuplicateModelNos(_ context.Context, tenantID int64) ([]string, error) {
	products := sortedBy(t.d.products, func(p identity.Product) bool { return p.TenantID == tenantID })
	return duplicates(products, func(p identity.Product) string { return p.ModelNo }), nil
}

func (t *Tx) MoveInventoryLogs(_ context.Context, tenantID, fromProductID, toProductID int64) (int64, error) {
	var n int64
	for id, l := range t.d.inventoryLogs {
		if l.TenantID == tenantID && l.ProductID == fromProductID {
			l.ProductID = toProductID
			t.d.inventoryLogs[id] = l
			n++
		}
	}
	return n, nil
}

func (t *Tx) DeleteInventory(_ context.Context, tenantID, productID int64) (bool, error) {
	for id, inv := range t.d.inventories {
		if inv.TenantID == tenantID && inv.ProductID == productID {
			delete(t.d.inventories, id)
			return true, nil
		}
	}
	return false, nil
}
