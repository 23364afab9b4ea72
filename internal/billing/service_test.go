package billing_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/gstbilling/internal/billing"
	"github.com/odyssey-erp/gstbilling/internal/identity"
	"github.com/odyssey-erp/gstbilling/internal/ledger"
	"github.com/odyssey-erp/gstbilling/internal/notify"
	"github.com/odyssey-erp/gstbilling/internal/shared"
	"github.com/odyssey-erp/gstbilling/internal/testing/memstore"
)

const (
	tenant      = int64(1)
	sharedGST   = "29ABCDE1234F1Z5"
	invoiceDate = "2024-04-01"
)

type fixture struct {
	store    *memstore.Store
	notifier *notify.Recorder
	service  *billing.Service
	ledger   *ledger.Service
	customer identity.Customer
	product  identity.Product
}

// newFixture seeds ACME owing 100 and fifty units of M1.
func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	store := memstore.New()
	engine := ledger.NewEngine()
	rec := &notify.Recorder{}
	resolver := identity.NewResolver(identity.NewNormalizer("IN"), engine)
	f := fixture{
		store:    store,
		notifier: rec,
		service:  billing.NewService(store.Billing(), resolver, engine, rec, nil),
		ledger:   ledger.NewService(store.Ledger(), engine, nil, nil, nil),
	}

	f.customer = store.AddCustomer(identity.Customer{TenantID: tenant, Name: "ACME"})
	book := store.AddBook(tenant, f.customer.ID)
	_, _, err := f.ledger.AddBookEntry(ctx, ledger.BookEntry{TenantID: tenant, BookID: book.ID, Change: decimal.NewFromInt(-100), ChangeType: ledger.BookOther, Active: true})
	require.NoError(t, err)

	f.product = store.AddProduct(identity.Product{TenantID: tenant, ModelNo: "M1", Name: "WIDGET", HSN: "8471", GSTPercentage: 18})
	_, _, err = f.ledger.AddStock(ctx, ledger.StockEntry{TenantID: tenant, ProductID: f.product.ID, Change: 50, ChangeType: ledger.InventoryPurchase})
	require.NoError(t, err)
	return f
}

func payload(customer string, total float64, items ...billing.Item) billing.Payload {
	return billing.Payload{
		InvoiceDate:  invoiceDate,
		CustomerName: customer,
		Items:        items,
		TotalWithGST: total,
	}
}

func widget(qty int64) billing.Item {
	return billing.Item{ModelNo: "m1", Name: "widget", HSN: "8471", GSTPercentage: 18, Qty: qty, RateWithGST: 100}
}

func (f fixture) balance(t *testing.T) decimal.Decimal {
	t.Helper()
	book, ok := f.store.Book(tenant, f.customer.ID)
	require.True(t, ok)
	return book.CurrentBalance
}

func (f fixture) stock(t *testing.T) int64 {
	t.Helper()
	inv, ok := f.store.Inventory(tenant, f.product.ID)
	require.True(t, ok)
	return inv.CurrentStock
}

func TestCreateInvoiceAppliesBothLedgers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	issued, err := f.service.CreateInvoice(ctx, tenant, billing.CreateRequest{Payload: payload(" acme ", 500, widget(5)), IsGST: true})
	require.NoError(t, err)

	inv := issued.Invoice
	require.EqualValues(t, 1, inv.Number)
	require.Equal(t, "1", inv.Payload.InvoiceNumber)
	require.Equal(t, f.customer.ID, *inv.CustomerID)
	require.True(t, inv.InventoryReflected)
	require.True(t, inv.BooksReflected)

	require.EqualValues(t, 45, f.stock(t))
	require.True(t, f.balance(t).Equal(decimal.NewFromInt(-600)))

	require.Len(t, issued.Applied.InventoryLogs, 1)
	require.EqualValues(t, -5, issued.Applied.InventoryLogs[0].Change)
	require.Equal(t, ledger.BookPurchasedItems, issued.Applied.BookLog.ChangeType)
	require.True(t, issued.Applied.BookLog.Change.Equal(decimal.NewFromInt(-500)))

	stored, err := f.service.GetInvoice(ctx, tenant, inv.ID)
	require.NoError(t, err)
	require.Equal(t, "ACME", stored.CustomerName)
	require.True(t, stored.BooksReflected)

	events := f.notifier.Events()
	require.Len(t, events, 1)
	require.Equal(t, "Invoice #1 Created", events[0].Title)

	require.Len(t, f.store.Customers(tenant), 1, "existing customer is reused")
}

func TestDeleteInvoiceRestoresLedgers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	issued, err := f.service.CreateInvoice(ctx, tenant, billing.CreateRequest{Payload: payload("ACME", 500, widget(5)), IsGST: true})
	require.NoError(t, err)

	reversed, err := f.service.DeleteInvoice(ctx, tenant, issued.Invoice.ID, ledger.ReverseScope{Inventory: true, Books: true})
	require.NoError(t, err)
	require.Equal(t, 1, reversed.InventoryLogs)

	require.EqualValues(t, 50, f.stock(t))
	require.True(t, f.balance(t).Equal(decimal.NewFromInt(-100)))

	f.store.Do(func(tx *memstore.Tx) {
		logs, err := tx.ListInventoryLogsByInvoice(ctx, tenant, issued.Invoice.ID)
		require.NoError(t, err)
		require.Empty(t, logs)
		bookLogs, err := tx.ListBookLogsByInvoice(ctx, tenant, issued.Invoice.ID)
		require.NoError(t, err)
		require.Empty(t, bookLogs)
	})

	_, err = f.service.GetInvoice(ctx, tenant, issued.Invoice.ID)
	require.ErrorIs(t, err, billing.ErrInvoiceNotFound)
	_, err = f.service.DeleteInvoice(ctx, tenant, issued.Invoice.ID, ledger.ReverseScope{Inventory: true, Books: true})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestDeleteInvoiceKeepsOutOfScopeSide(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	issued, err := f.service.CreateInvoice(ctx, tenant, billing.CreateRequest{Payload: payload("ACME", 500, widget(5)), IsGST: true})
	require.NoError(t, err)

	_, err = f.service.DeleteInvoice(ctx, tenant, issued.Invoice.ID, ledger.ReverseScope{Inventory: true})
	require.NoError(t, err)
	require.EqualValues(t, 50, f.stock(t))
	require.True(t, f.balance(t).Equal(decimal.NewFromInt(-600)))
}

func TestGSTSeriesIsSharedAcrossTenants(t *testing.T) {
	store := memstore.New()
	svc := billing.NewService(store.Billing(), nil, nil, nil, nil)
	ctx := context.Background()
	tenantA, tenantB := int64(10), int64(20)
	store.SetProfile(billing.BusinessProfile{TenantID: tenantA, BusinessGST: sharedGST})
	store.SetProfile(billing.BusinessProfile{TenantID: tenantB, BusinessGST: sharedGST})

	customer := store.AddCustomer(identity.Customer{TenantID: tenantA, Name: "SEED"})
	store.Do(func(tx *memstore.Tx) {
		for n := int64(1); n <= 12; n++ {
			_, err := tx.InsertInvoice(ctx, billing.Invoice{TenantID: tenantA, Number: n, CustomerID: &customer.ID, IsGST: true})
			require.NoError(t, err)
		}
		_, err := tx.InsertInvoice(ctx, billing.Invoice{TenantID: tenantA, Number: 40, CustomerID: &customer.ID, IsGST: false})
		require.NoError(t, err)
	})

	issued, err := svc.CreateInvoice(ctx, tenantB, billing.CreateRequest{Payload: payload("Buyer", 10), IsGST: true})
	require.NoError(t, err)
	require.EqualValues(t, 13, issued.Invoice.Number)
	require.Contains(t, store.SeriesClaims(), memstore.SeriesClaim{Key: billing.SeriesKey(billing.DocInvoice, tenantB, true, sharedGST), Number: 13})

	next, err := svc.CreateInvoice(ctx, tenantA, billing.CreateRequest{Payload: payload("Buyer", 10), IsGST: true})
	require.NoError(t, err)
	require.EqualValues(t, 14, next.Invoice.Number)

	nonGST, err := svc.CreateInvoice(ctx, tenantB, billing.CreateRequest{Payload: payload("Buyer", 10), IsGST: false})
	require.NoError(t, err)
	require.EqualValues(t, 1, nonGST.Invoice.Number, "non-GST series is per tenant")
}

func TestSeriesKey(t *testing.T) {
	require.Equal(t, "invoice:gst:"+sharedGST, billing.SeriesKey(billing.DocInvoice, 3, true, sharedGST))
	require.Equal(t, "invoice:tenant:3:gst", billing.SeriesKey(billing.DocInvoice, 3, true, ""))
	require.Equal(t, "quotation:tenant:3:nongst", billing.SeriesKey(billing.DocQuotation, 3, false, sharedGST))
}

func TestCreateInvoiceHonoursCallerNumber(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := payload("ACME", 100, widget(1))
	p.InvoiceNumber = " 77 "
	issued, err := f.service.CreateInvoice(ctx, tenant, billing.CreateRequest{Payload: p, IsGST: true})
	require.NoError(t, err)
	require.EqualValues(t, 77, issued.Invoice.Number)
	require.Contains(t, f.store.SeriesClaims(), memstore.SeriesClaim{Key: billing.SeriesKey(billing.DocInvoice, tenant, true, ""), Number: 77},
		"a supplied number still claims its series")

	p.InvoiceNumber = "abc"
	_, err = f.service.CreateInvoice(ctx, tenant, billing.CreateRequest{Payload: p, IsGST: true})
	require.ErrorIs(t, err, shared.ErrValidation)

	p.InvoiceNumber = ""
	p.InvoiceDate = "01/04/2024"
	_, err = f.service.CreateInvoice(ctx, tenant, billing.CreateRequest{Payload: p, IsGST: true})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateInvoiceIdempotencyKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := billing.CreateRequest{Payload: payload("ACME", 500, widget(5)), IsGST: true, IdempotencyKey: "retry-1"}

	boom := errors.New("connection reset")
	f.store.Fail("SetReflected", boom)
	_, err := f.service.CreateInvoice(ctx, tenant, req)
	require.ErrorIs(t, err, boom)
	require.EqualValues(t, 50, f.stock(t), "failed create leaves no ledger effect")
	require.True(t, f.balance(t).Equal(decimal.NewFromInt(-100)))
	f.store.Fail("SetReflected", nil)

	_, err = f.service.CreateInvoice(ctx, tenant, req)
	require.NoError(t, err, "key is released with the rolled back work")

	_, err = f.service.CreateInvoice(ctx, tenant, req)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	require.ErrorIs(t, err, shared.ErrConflict)

	invoices, err := f.service.ListInvoices(ctx, tenant)
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	require.EqualValues(t, 45, f.stock(t))
}

func TestCreateInvoiceCreatesUnknownProductAndCustomer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := billing.Item{ModelNo: "n-2", Name: "gear", HSN: "8483", GSTPercentage: 12, Qty: 3, RateWithGST: 56}
	p := payload("New Buyer", 168, item, billing.Item{ModelNo: "  "})
	p.CustomerAddress = "Ring Road"

	issued, err := f.service.CreateInvoice(ctx, tenant, billing.CreateRequest{Payload: p, IsGST: false})
	require.NoError(t, err)
	require.Len(t, issued.Invoice.Payload.Items, 1, "blank lines are dropped")
	require.Equal(t, ledger.DescNonGSTSale, issued.Applied.BookLog.Description)

	products := f.store.Products(tenant)
	require.Len(t, products, 2)
	gear := products[1]
	require.Equal(t, "N-2", gear.ModelNo)
	inv, ok := f.store.Inventory(tenant, gear.ID)
	require.True(t, ok)
	require.EqualValues(t, -3, inv.CurrentStock)

	customers := f.store.Customers(tenant)
	require.Len(t, customers, 2)
	require.Equal(t, "NEW BUYER", customers[1].Name)
	require.Equal(t, "RING ROAD", customers[1].Address)
}

func TestCreateInvoiceAnnouncesLowStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.Do(func(tx *memstore.Tx) {
		inv, err := tx.GetInventory(ctx, tenant, f.product.ID)
		require.NoError(t, err)
		inv.AlertLevel = 10
		require.NoError(t, tx.SaveInventory(ctx, inv))
	})

	_, err := f.service.CreateInvoice(ctx, tenant, billing.CreateRequest{Payload: payload("ACME", 4500, widget(45)), IsGST: true})
	require.NoError(t, err)

	events := f.notifier.Events()
	require.Len(t, events, 2)
	require.Equal(t, notify.TypeInvoice, events[0].Type)
	require.Equal(t, notify.TypeWarning, events[1].Type)
}

func TestCreateInvoiceRefusesAmbiguousCustomer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.AddCustomer(identity.Customer{TenantID: tenant, Name: "ACME"})

	_, err := f.service.CreateInvoice(ctx, tenant, billing.CreateRequest{Payload: payload("ACME", 500, widget(5)), IsGST: true})
	require.ErrorIs(t, err, identity.ErrAmbiguousCustomer)
	require.EqualValues(t, 50, f.stock(t))
}

func TestPushToBooksRepairsMissingSides(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	issued, err := f.service.CreateInvoice(ctx, tenant, billing.CreateRequest{Payload: payload("ACME", 500, widget(5)), IsGST: true})
	require.NoError(t, err)
	id := issued.Invoice.ID

	repair, err := f.service.PushToBooks(ctx, tenant, id)
	require.NoError(t, err)
	require.Equal(t, billing.Repair{}, repair, "fully reflected invoice is left alone")

	f.store.Do(func(tx *memstore.Tx) {
		require.NoError(t, tx.DeleteBookLog(ctx, tenant, issued.Applied.BookLog.ID))
		for _, log := range issued.Applied.InventoryLogs {
			require.NoError(t, tx.DeleteInventoryLog(ctx, tenant, log.ID))
		}
	})
	_, err = f.ledger.RecomputeTenant(ctx, tenant)
	require.NoError(t, err)
	require.EqualValues(t, 50, f.stock(t))

	repair, err = f.service.PushToBooks(ctx, tenant, id)
	require.NoError(t, err)
	require.True(t, repair.Books)
	require.True(t, repair.Inventory)
	require.Equal(t, 2, repair.StaleFlagsReset)

	require.EqualValues(t, 45, f.stock(t))
	require.True(t, f.balance(t).Equal(decimal.NewFromInt(-600)))

	repair, err = f.service.PushToBooks(ctx, tenant, id)
	require.NoError(t, err)
	require.False(t, repair.Books || repair.Inventory, "entries are never applied twice")
	require.True(t, f.balance(t).Equal(decimal.NewFromInt(-600)))

	var actions []string
	for _, a := range f.store.Audits() {
		actions = append(actions, a.Action)
	}
	require.Equal(t, []string{"invoice.create", "invoice.push_to_books"}, actions)
}

func TestPushToBooksFlagsOnlyWhenEntriesExist(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	issued, err := f.service.CreateInvoice(ctx, tenant, billing.CreateRequest{Payload: payload("ACME", 500, widget(5)), IsGST: true})
	require.NoError(t, err)
	f.store.Do(func(tx *memstore.Tx) {
		require.NoError(t, tx.SetReflected(ctx, tenant, issued.Invoice.ID, false, false))
	})

	repair, err := f.service.PushToBooks(ctx, tenant, issued.Invoice.ID)
	require.NoError(t, err)
	require.False(t, repair.Books)
	require.False(t, repair.Inventory)

	inv, err := f.service.GetInvoice(ctx, tenant, issued.Invoice.ID)
	require.NoError(t, err)
	require.True(t, inv.BooksReflected)
	require.True(t, inv.InventoryReflected)
	require.True(t, f.balance(t).Equal(decimal.NewFromInt(-600)))
}

func TestPushToBooksRecreatesProductsMergedAway(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	engine := ledger.NewEngine()
	identities := identity.NewService(f.store.Identity(), identity.NewResolver(identity.NewNormalizer("IN"), engine), identity.NewMerger(engine), nil, nil)

	first, err := f.service.CreateInvoice(ctx, tenant, billing.CreateRequest{Payload: payload("ACME", 500, widget(5)), IsGST: true})
	require.NoError(t, err)
	renamed := widget(1)
	renamed.Name = "widget v2"
	second, err := f.service.CreateInvoice(ctx, tenant, billing.CreateRequest{Payload: payload("ACME", 100, renamed), IsGST: true})
	require.NoError(t, err)
	keeperID := second.Applied.Inventories[0].ProductID

	report, err := identities.Merge(ctx, tenant, identity.MergeProducts)
	require.NoError(t, err)
	require.Equal(t, 1, report.Removed)
	require.Len(t, f.store.Products(tenant), 1)

	logs := f.store.InventoryLogs(tenant, keeperID)
	f.store.Do(func(tx *memstore.Tx) {
		for _, log := range logs {
			if log.InvoiceID != nil && *log.InvoiceID == first.Invoice.ID {
				require.NoError(t, tx.DeleteInventoryLog(ctx, tenant, log.ID))
			}
		}
	})
	_, err = f.ledger.RecomputeTenant(ctx, tenant)
	require.NoError(t, err)

	repair, err := f.service.PushToBooks(ctx, tenant, first.Invoice.ID)
	require.NoError(t, err)
	require.True(t, repair.Inventory)
	require.False(t, repair.Books)

	kept, ok := f.store.Inventory(tenant, keeperID)
	require.True(t, ok)
	require.EqualValues(t, 49, kept.CurrentStock, "the merged keeper is left alone")

	var recreated *identity.Product
	for _, p := range f.store.Products(tenant) {
		if p.ID != keeperID {
			recreated = &p
		}
	}
	require.NotNil(t, recreated)
	require.Equal(t, "WIDGET", recreated.Name)
	inv, ok := f.store.Inventory(tenant, recreated.ID)
	require.True(t, ok)
	require.EqualValues(t, -5, inv.CurrentStock)

	drift, err := f.ledger.RecomputeTenant(ctx, tenant)
	require.NoError(t, err)
	require.Empty(t, drift.Drift)
}

func TestInvoiceBookEntryCannotBeResolved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	issued, err := f.service.CreateInvoice(ctx, tenant, billing.CreateRequest{Payload: payload("ACME", 500, widget(5)), IsGST: true})
	require.NoError(t, err)
	entryID := issued.Applied.BookLog.ID

	amount := decimal.NewFromInt(-50)
	_, _, err = f.ledger.ResolveEntry(ctx, ledger.Resolution{TenantID: tenant, LogID: entryID, Action: ledger.ResolveAdjust, Amount: &amount})
	require.ErrorIs(t, err, shared.ErrInvalidState)
	_, _, err = f.ledger.ResolveEntry(ctx, ledger.Resolution{TenantID: tenant, LogID: entryID, Action: ledger.ResolveConfirm})
	require.ErrorIs(t, err, shared.ErrInvalidState)

	logs := f.store.BookLogs(tenant, issued.Applied.Book.ID)
	var linked int
	for _, l := range logs {
		if l.InvoiceID != nil && *l.InvoiceID == issued.Invoice.ID {
			linked++
			require.Equal(t, ledger.BookPurchasedItems, l.ChangeType)
		}
	}
	require.Equal(t, 1, linked)

	_, err = f.service.DeleteInvoice(ctx, tenant, issued.Invoice.ID, ledger.ReverseScope{Inventory: true, Books: true})
	require.NoError(t, err)
	require.True(t, f.balance(t).Equal(decimal.NewFromInt(-100)))
	require.EqualValues(t, 50, f.stock(t))
}

func TestCreateInvoiceRejectsNonPositiveQuantities(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, qty := range []int64{0, -3} {
		_, err := f.service.CreateInvoice(ctx, tenant, billing.CreateRequest{Payload: payload("ACME", 100, widget(qty)), IsGST: true})
		require.ErrorIs(t, err, shared.ErrValidation, "qty %d", qty)
	}
	require.EqualValues(t, 50, f.stock(t))
	require.True(t, f.balance(t).Equal(decimal.NewFromInt(-100)))
}
