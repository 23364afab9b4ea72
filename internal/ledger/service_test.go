package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/gstbilling/internal/identity"
	"github.com/odyssey-erp/gstbilling/internal/ledger"
	"github.com/odyssey-erp/gstbilling/internal/notify"
	"github.com/odyssey-erp/gstbilling/internal/shared"
	"github.com/odyssey-erp/gstbilling/internal/testing/memstore"
)

const tenant = int64(1)

type fixture struct {
	store    *memstore.Store
	notifier *notify.Recorder
	service  *ledger.Service
}

func newFixture() fixture {
	store := memstore.New()
	rec := &notify.Recorder{}
	return fixture{
		store:    store,
		notifier: rec,
		service:  ledger.NewService(store.Ledger(), ledger.NewEngine(), rec, ledger.NewMetrics(nil), nil),
	}
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestAddStockKeepsCacheEqualToLedger(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	p := f.store.AddProduct(identity.Product{TenantID: tenant, ModelNo: "M-1", Name: "Widget", HSN: "8471", GSTPercentage: 18})

	first, inv, err := f.service.AddStock(ctx, ledger.StockEntry{TenantID: tenant, ProductID: p.ID, Change: 10, ChangeType: ledger.InventoryPurchase, Description: ledger.DescInitialStock})
	require.NoError(t, err)
	require.EqualValues(t, 10, inv.CurrentStock)

	second, inv, err := f.service.AddStock(ctx, ledger.StockEntry{TenantID: tenant, ProductID: p.ID, Change: -3, ChangeType: ledger.InventoryOther})
	require.NoError(t, err)
	require.EqualValues(t, 7, inv.CurrentStock)
	require.Equal(t, second.ID, *inv.LastLogID)

	_, err = f.service.DeleteInventoryEntry(ctx, tenant, second.ID)
	require.NoError(t, err)
	stored, ok := f.store.Inventory(tenant, p.ID)
	require.True(t, ok)
	require.EqualValues(t, 10, stored.CurrentStock)
	require.Equal(t, first.ID, *stored.LastLogID)

	total, _ := ledger.InventoryTotal(f.store.InventoryLogs(tenant, p.ID))
	require.Equal(t, total, stored.CurrentStock)
}

func TestAddStockRejectsInvalidEntries(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	p := f.store.AddProduct(identity.Product{TenantID: tenant, ModelNo: "M-1"})

	_, _, err := f.service.AddStock(ctx, ledger.StockEntry{TenantID: tenant, ProductID: p.ID, Change: 0, ChangeType: ledger.InventoryPurchase})
	require.ErrorIs(t, err, ledger.ErrZeroChange)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, _, err = f.service.AddStock(ctx, ledger.StockEntry{TenantID: tenant, ProductID: p.ID, Change: 1, ChangeType: ledger.InventoryChangeType(9)})
	require.ErrorIs(t, err, ledger.ErrInvalidChangeType)

	_, ok := f.store.Inventory(tenant, p.ID)
	require.False(t, ok)
}

func TestLowStockNotifiesAfterCommit(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	p := f.store.AddProduct(identity.Product{TenantID: tenant, ModelNo: "M-1", Name: "Widget"})
	f.store.AddInventory(tenant, p.ID, 5)

	_, _, err := f.service.AddStock(ctx, ledger.StockEntry{TenantID: tenant, ProductID: p.ID, Change: 4, ChangeType: ledger.InventoryPurchase})
	require.NoError(t, err)

	events := f.notifier.Events()
	require.Len(t, events, 1)
	require.Equal(t, notify.TypeWarning, events[0].Type)
	require.Contains(t, events[0].Message, "4 units remaining")
}

func TestPendingEntriesDoNotCountUntilResolved(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	c := f.store.AddCustomer(identity.Customer{TenantID: tenant, Name: "ACME"})
	book := f.store.AddBook(tenant, c.ID)

	_, got, err := f.service.AddBookEntry(ctx, ledger.BookEntry{TenantID: tenant, BookID: book.ID, Change: dec("-500"), ChangeType: ledger.BookPurchasedItems, Active: true})
	require.NoError(t, err)
	require.True(t, got.CurrentBalance.Equal(dec("-500")))

	cheque, err := f.service.AddCustomerPayment(ctx, tenant, book.ID, dec("200"), ledger.DescCheque)
	require.NoError(t, err)
	require.Equal(t, ledger.BookPending, cheque.ChangeType)
	require.False(t, cheque.IsActive)
	require.Equal(t, "ACME via Mobile App", cheque.CreatedBy)

	activated, got, err := f.service.ActivateEntry(ctx, tenant, cheque.ID)
	require.NoError(t, err)
	require.True(t, activated.IsActive)
	require.False(t, activated.Counts(), "an active cheque still waits for resolve")
	require.True(t, got.CurrentBalance.Equal(dec("-500")))

	resolved, got, err := f.service.ResolveEntry(ctx, ledger.Resolution{TenantID: tenant, LogID: cheque.ID, Action: ledger.ResolveConfirm})
	require.NoError(t, err)
	require.Equal(t, ledger.BookPaid, resolved.ChangeType)
	require.True(t, got.CurrentBalance.Equal(dec("-300")))

	events := f.notifier.Events()
	require.Len(t, events, 1)
	require.Equal(t, notify.TypePayment, events[0].Type)
}

func TestInactivePaymentCountsOnActivation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	c := f.store.AddCustomer(identity.Customer{TenantID: tenant, Name: "ACME"})
	book := f.store.AddBook(tenant, c.ID)

	payment, err := f.service.AddCustomerPayment(ctx, tenant, book.ID, dec("150.50"), "UPI")
	require.NoError(t, err)
	require.Equal(t, ledger.BookPaid, payment.ChangeType)

	_, logs, err := f.service.BookStatement(ctx, tenant, book.ID, nil)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	stored, _ := f.store.Book(tenant, c.ID)
	require.True(t, stored.CurrentBalance.IsZero())

	_, got, err := f.service.ActivateEntry(ctx, tenant, payment.ID)
	require.NoError(t, err)
	require.True(t, got.CurrentBalance.Equal(dec("150.50")))
	require.Equal(t, payment.ID, *got.LastLogID)

	inactive := false
	_, logs, err = f.service.BookStatement(ctx, tenant, book.ID, &inactive)
	require.NoError(t, err)
	require.Empty(t, logs)

	_, err = f.service.AddCustomerPayment(ctx, tenant, book.ID, dec("-1"), "UPI")
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestResolveAdjustBooksCorrectedEntry(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	c := f.store.AddCustomer(identity.Customer{TenantID: tenant, Name: "ACME"})
	book := f.store.AddBook(tenant, c.ID)
	cheque, err := f.service.AddCustomerPayment(ctx, tenant, book.ID, dec("200"), ledger.DescCheque)
	require.NoError(t, err)

	_, _, err = f.service.ResolveEntry(ctx, ledger.Resolution{TenantID: tenant, LogID: cheque.ID, Action: ledger.ResolveAdjust})
	require.ErrorIs(t, err, ledger.ErrAmountRequired)

	_, _, err = f.service.ResolveEntry(ctx, ledger.Resolution{TenantID: tenant, LogID: cheque.ID, Action: "bounce"})
	require.ErrorIs(t, err, ledger.ErrInvalidAction)

	amount := dec("180")
	adjusted, got, err := f.service.ResolveEntry(ctx, ledger.Resolution{TenantID: tenant, LogID: cheque.ID, Action: ledger.ResolveAdjust, Amount: &amount})
	require.NoError(t, err)
	require.Equal(t, ledger.BookOther, adjusted.ChangeType)
	require.NotEqual(t, cheque.ID, adjusted.ID)
	require.True(t, got.CurrentBalance.Equal(dec("180")))
	require.Len(t, f.store.BookLogs(tenant, book.ID), 2)

	audits := f.store.Audits()
	require.Len(t, audits, 1)
	require.Equal(t, "book_log.resolve", audits[0].Action)
}

func TestResolveRefusesSettledAndInvoiceEntries(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	c := f.store.AddCustomer(identity.Customer{TenantID: tenant, Name: "ACME"})
	book := f.store.AddBook(tenant, c.ID)
	invoiceID := int64(7)

	debit, _, err := f.service.AddBookEntry(ctx, ledger.BookEntry{TenantID: tenant, BookID: book.ID, Change: dec("-500"), ChangeType: ledger.BookPurchasedItems, InvoiceID: &invoiceID, Active: true})
	require.NoError(t, err)
	manual, _, err := f.service.AddBookEntry(ctx, ledger.BookEntry{TenantID: tenant, BookID: book.ID, Change: dec("-20"), ChangeType: ledger.BookOther, Active: true})
	require.NoError(t, err)

	amount := dec("-50")
	for _, action := range []ledger.ResolveAction{ledger.ResolveConfirm, ledger.ResolveAdjust} {
		_, _, err = f.service.ResolveEntry(ctx, ledger.Resolution{TenantID: tenant, LogID: debit.ID, Action: action, Amount: &amount})
		require.ErrorIs(t, err, ledger.ErrInvoiceEntry, action)
		_, _, err = f.service.ResolveEntry(ctx, ledger.Resolution{TenantID: tenant, LogID: manual.ID, Action: action, Amount: &amount})
		require.ErrorIs(t, err, ledger.ErrNotPending, action)
		require.ErrorIs(t, err, shared.ErrInvalidState, action)
	}

	logs := f.store.BookLogs(tenant, book.ID)
	require.Len(t, logs, 2)
	for _, l := range logs {
		require.NotEqual(t, ledger.BookPaid, l.ChangeType)
	}
	stored, ok := f.store.Book(tenant, c.ID)
	require.True(t, ok)
	require.True(t, stored.CurrentBalance.Equal(dec("-520")))
	require.Empty(t, f.store.Audits())
}

func TestResolveAdjustEntryIsNotLinkedToAnInvoice(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	c := f.store.AddCustomer(identity.Customer{TenantID: tenant, Name: "ACME"})
	book := f.store.AddBook(tenant, c.ID)
	payment, err := f.service.AddCustomerPayment(ctx, tenant, book.ID, dec("300"), "UPI")
	require.NoError(t, err)

	amount := dec("250")
	adjusted, _, err := f.service.ResolveEntry(ctx, ledger.Resolution{TenantID: tenant, LogID: payment.ID, Action: ledger.ResolveAdjust, Amount: &amount})
	require.NoError(t, err)
	require.Nil(t, adjusted.InvoiceID)

	_, _, err = f.service.ResolveEntry(ctx, ledger.Resolution{TenantID: tenant, LogID: adjusted.ID, Action: ledger.ResolveConfirm})
	require.ErrorIs(t, err, ledger.ErrNotPending, "the adjustment already counts")
}

func TestDeleteBookEntryRecomputesBalance(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	c := f.store.AddCustomer(identity.Customer{TenantID: tenant, Name: "ACME"})
	book := f.store.AddBook(tenant, c.ID)

	first, _, err := f.service.AddBookEntry(ctx, ledger.BookEntry{TenantID: tenant, BookID: book.ID, Change: dec("-100"), ChangeType: ledger.BookPurchasedItems, Active: true})
	require.NoError(t, err)
	second, _, err := f.service.AddBookEntry(ctx, ledger.BookEntry{TenantID: tenant, BookID: book.ID, Change: dec("40"), ChangeType: ledger.BookPaid, Active: true})
	require.NoError(t, err)

	got, err := f.service.DeleteBookEntry(ctx, tenant, second.ID)
	require.NoError(t, err)
	require.True(t, got.CurrentBalance.Equal(dec("-100")))
	require.Equal(t, first.ID, *got.LastLogID)

	_, err = f.service.DeleteBookEntry(ctx, tenant, second.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRecomputeTenantCorrectsDriftAndIsIdempotent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	p := f.store.AddProduct(identity.Product{TenantID: tenant, ModelNo: "M-1"})
	c := f.store.AddCustomer(identity.Customer{TenantID: tenant, Name: "ACME"})
	book := f.store.AddBook(tenant, c.ID)

	_, inv, err := f.service.AddStock(ctx, ledger.StockEntry{TenantID: tenant, ProductID: p.ID, Change: 7, ChangeType: ledger.InventoryPurchase})
	require.NoError(t, err)
	_, stored, err := f.service.AddBookEntry(ctx, ledger.BookEntry{TenantID: tenant, BookID: book.ID, Change: dec("-250.75"), ChangeType: ledger.BookPurchasedItems, Active: true})
	require.NoError(t, err)

	f.store.Do(func(tx *memstore.Tx) {
		inv.CurrentStock = 999
		require.NoError(t, tx.SaveInventory(ctx, inv))
		stored.CurrentBalance = dec("1")
		require.NoError(t, tx.SaveBook(ctx, stored))
	})

	report, err := f.service.RecomputeTenant(ctx, tenant)
	require.NoError(t, err)
	require.Equal(t, 1, report.Inventories)
	require.Equal(t, 1, report.Books)
	require.Len(t, report.Drift, 2)

	fresh, _ := f.store.Inventory(tenant, p.ID)
	require.EqualValues(t, 7, fresh.CurrentStock)
	freshBook, _ := f.store.Book(tenant, c.ID)
	require.True(t, freshBook.CurrentBalance.Equal(dec("-250.75")))

	again, err := f.service.RecomputeTenant(ctx, tenant)
	require.NoError(t, err)
	require.Empty(t, again.Drift)
	repeat, _ := f.store.Inventory(tenant, p.ID)
	require.Equal(t, fresh, repeat)
}

func TestPurchasesNormaliseSignAndTotal(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	vendor := int64(9)
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	bought, err := f.service.AddPurchase(ctx, ledger.PurchaseLog{TenantID: tenant, VendorID: &vendor, Date: day, Change: dec("-1000"), ChangeType: ledger.PurchasePurchase, Reference: " bill 7 ", Category: "raw"})
	require.NoError(t, err)
	require.True(t, bought.Change.Equal(dec("1000")))
	require.Equal(t, "BILL 7", bought.Reference)
	require.Equal(t, "RAW", bought.Category)

	paid, err := f.service.AddPurchase(ctx, ledger.PurchaseLog{TenantID: tenant, VendorID: &vendor, Date: day.AddDate(0, 0, 1), Change: dec("400"), ChangeType: ledger.PurchasePaid})
	require.NoError(t, err)
	require.True(t, paid.Change.Equal(dec("-400")))

	_, err = f.service.AddPurchase(ctx, ledger.PurchaseLog{TenantID: tenant, Date: day, Change: dec("50"), ChangeType: ledger.PurchaseOthers})
	require.NoError(t, err)

	_, err = f.service.AddPurchase(ctx, ledger.PurchaseLog{TenantID: tenant, Change: dec("50"), ChangeType: ledger.PurchaseChangeType(2)})
	require.ErrorIs(t, err, ledger.ErrInvalidChangeType)

	logs, totals, err := f.service.ListPurchases(ctx, tenant, &vendor)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	require.Equal(t, paid.ID, logs[0].ID)
	require.True(t, totals.Balance.Equal(dec("600")))

	all, totals, err := f.service.ListPurchases(ctx, tenant, nil)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.True(t, totals.Others.Equal(dec("50")))
	require.True(t, totals.Balance.Equal(dec("650")))

	require.NoError(t, f.service.DeletePurchase(ctx, tenant, bought.ID))
	require.ErrorIs(t, f.service.DeletePurchase(ctx, tenant, bought.ID), ledger.ErrEntryNotFound)
}
