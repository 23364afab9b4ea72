package identity_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/gstbilling/internal/billing"
	"github.com/odyssey-erp/gstbilling/internal/identity"
	"github.com/odyssey-erp/gstbilling/internal/ledger"
	"github.com/odyssey-erp/gstbilling/internal/platform/lock"
	"github.com/odyssey-erp/gstbilling/internal/shared"
	"github.com/odyssey-erp/gstbilling/internal/testing/memstore"
)

func newService(t *testing.T, store *memstore.Store) (*identity.Service, *lock.Locker) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locker := lock.New(client, time.Minute)
	engine := ledger.NewEngine()
	svc := identity.NewService(store.Identity(), identity.NewResolver(identity.NewNormalizer("IN"), engine), identity.NewMerger(engine), locker, nil)
	return svc, locker
}

func TestRegisterCustomersSkipsCollisions(t *testing.T) {
	store := memstore.New()
	svc, _ := newService(t, store)

	result := svc.RegisterCustomers(context.Background(), tenant, []identity.Customer{
		{Name: "Alpha", Phone: "9876543210"},
		{Name: "Beta", Phone: "+91 98765 43210"},
		{Name: "Gamma", Email: "g@example.com"},
		{Name: "Delta", Email: "G@EXAMPLE.com"},
		{Name: "Epsilon", GST: "short"},
		{Name: ""},
	})
	require.Equal(t, 2, result.Inserted)
	require.Equal(t, 4, result.Skipped)
	require.Len(t, result.Errors, 4)
	require.Contains(t, result.Errors[0], "row 2")

	customers := store.Customers(tenant)
	require.Len(t, customers, 2)
	for _, c := range customers {
		_, ok := store.Book(tenant, c.ID)
		require.True(t, ok)
	}
}

func TestRegisterProductsWithOpeningStock(t *testing.T) {
	store := memstore.New()
	svc, _ := newService(t, store)

	result := svc.RegisterProducts(context.Background(), tenant, []identity.ProductRegistration{
		{Product: identity.Product{ModelNo: "m1", Name: "widget"}, AlertLevel: 3, InitialStock: 25},
		{Product: identity.Product{ModelNo: "M1", Name: "other"}},
		{Product: identity.Product{ModelNo: "m2"}},
		{Product: identity.Product{ModelNo: "m3", GSTPercentage: 140}},
	})
	require.Equal(t, 2, result.Inserted)
	require.Equal(t, 2, result.Skipped)

	products := store.Products(tenant)
	require.Len(t, products, 2)
	inv, ok := store.Inventory(tenant, products[0].ID)
	require.True(t, ok)
	require.EqualValues(t, 25, inv.CurrentStock)
	require.EqualValues(t, 3, inv.AlertLevel)
	logs := store.InventoryLogs(tenant, products[0].ID)
	require.Len(t, logs, 1)
	require.Equal(t, ledger.DescInitialStock, logs[0].Description)
	require.Equal(t, ledger.InventoryPurchase, logs[0].ChangeType)

	empty, ok := store.Inventory(tenant, products[1].ID)
	require.True(t, ok)
	require.Zero(t, empty.CurrentStock)
	require.Empty(t, store.InventoryLogs(tenant, products[1].ID))
}

func addEntries(t *testing.T, store *memstore.Store, bookID int64, changes ...string) {
	t.Helper()
	store.Do(func(tx *memstore.Tx) {
		for _, c := range changes {
			_, err := tx.InsertBookLog(context.Background(), ledger.BookLog{
				TenantID: tenant, BookID: bookID, Change: decimal.RequireFromString(c),
				ChangeType: ledger.BookPurchasedItems, IsActive: true,
			})
			require.NoError(t, err)
		}
	})
}

func TestMergeCustomersRecomputesKeeperBook(t *testing.T) {
	store := memstore.New()
	svc, _ := newService(t, store)
	ctx := context.Background()

	older := store.AddCustomer(identity.Customer{TenantID: tenant, Name: "RAJ TRADERS", Phone: "1"})
	newer := store.AddCustomer(identity.Customer{TenantID: tenant, Name: "RAJ TRADERS", Phone: "2"})
	other := store.AddCustomer(identity.Customer{TenantID: tenant, Name: "OTHER"})
	olderBook := store.AddBook(tenant, older.ID)
	newerBook := store.AddBook(tenant, newer.ID)
	addEntries(t, store, olderBook.ID, "-120", "-80")
	addEntries(t, store, newerBook.ID, "-150")

	store.Do(func(tx *memstore.Tx) {
		_, err := tx.InsertInvoice(ctx, billing.Invoice{TenantID: tenant, Number: 1, CustomerID: &older.ID, IsGST: true})
		require.NoError(t, err)
	})

	report, err := svc.Merge(ctx, tenant, identity.MergeCustomers)
	require.NoError(t, err)
	require.Equal(t, 1, report.Groups)
	require.Equal(t, 1, report.Removed)
	require.Equal(t, 1, report.BooksMerged)
	require.EqualValues(t, 2, report.LogsMoved)
	require.EqualValues(t, 1, report.InvoicesMoved)

	book, ok := store.Book(tenant, newer.ID)
	require.True(t, ok)
	require.True(t, book.CurrentBalance.Equal(decimal.NewFromInt(-350)), book.CurrentBalance.String())
	require.Len(t, store.BookLogs(tenant, newerBook.ID), 3)

	_, ok = store.Book(tenant, older.ID)
	require.False(t, ok)
	customers := store.Customers(tenant)
	require.Len(t, customers, 2)
	require.Equal(t, newer.ID, customers[0].ID)
	require.Equal(t, other.ID, customers[1].ID)

	var invoices []billing.Invoice
	store.Do(func(tx *memstore.Tx) { invoices, _ = tx.ListInvoices(ctx, tenant) })
	require.Equal(t, newer.ID, *invoices[0].CustomerID)

	audits := store.Audits()
	require.Len(t, audits, 1)
	require.Equal(t, "merge.customers", audits[0].Action)
	require.Equal(t, "RAJ TRADERS", audits[0].EntityID)

	again, err := svc.Merge(ctx, tenant, identity.MergeCustomers)
	require.NoError(t, err)
	require.Zero(t, again.Groups)
}

func TestMergeCustomersTransfersBookToKeeperWithoutOne(t *testing.T) {
	store := memstore.New()
	svc, _ := newService(t, store)
	older := store.AddCustomer(identity.Customer{TenantID: tenant, Name: "RAJ"})
	newer := store.AddCustomer(identity.Customer{TenantID: tenant, Name: "RAJ"})
	book := store.AddBook(tenant, older.ID)
	addEntries(t, store, book.ID, "-40")

	report, err := svc.Merge(context.Background(), tenant, identity.MergeCustomers)
	require.NoError(t, err)
	require.Zero(t, report.BooksMerged)
	require.EqualValues(t, 1, report.LogsMoved)

	moved, ok := store.Book(tenant, newer.ID)
	require.True(t, ok)
	require.Equal(t, book.ID, moved.ID)
	require.True(t, moved.CurrentBalance.Equal(decimal.NewFromInt(-40)))
}

func TestMergeProductsRecomputesKeeperInventory(t *testing.T) {
	store := memstore.New()
	svc, _ := newService(t, store)
	ctx := context.Background()

	older := store.AddProduct(identity.Product{TenantID: tenant, ModelNo: "M1", Name: "A"})
	newer := store.AddProduct(identity.Product{TenantID: tenant, ModelNo: "M1", Name: "B"})
	store.AddInventory(tenant, older.ID, 0)
	store.Do(func(tx *memstore.Tx) {
		for _, change := range []int64{5, 3} {
			_, err := tx.InsertInventoryLog(ctx, ledger.InventoryLog{TenantID: tenant, ProductID: older.ID, Change: change, ChangeType: ledger.InventoryPurchase})
			require.NoError(t, err)
		}
	})

	report, err := svc.Merge(ctx, tenant, identity.MergeProducts)
	require.NoError(t, err)
	require.Equal(t, 1, report.Removed)
	require.Equal(t, 1, report.InventoriesMerged)
	require.EqualValues(t, 2, report.LogsMoved)

	inv, ok := store.Inventory(tenant, newer.ID)
	require.True(t, ok, "keeper inventory is created for moved entries")
	require.EqualValues(t, 8, inv.CurrentStock)
	require.Len(t, store.Products(tenant), 1)
}

func TestMergeRejectsUnknownKindAndHeldLock(t *testing.T) {
	store := memstore.New()
	svc, locker := newService(t, store)
	ctx := context.Background()

	_, err := svc.Merge(ctx, tenant, identity.MergeKind("vendors"))
	require.ErrorIs(t, err, identity.ErrInvalidMergeKind)
	require.ErrorIs(t, err, shared.ErrValidation)

	key := shared.TenantLockKey(identity.MaintenanceScope, tenant)
	require.NoError(t, locker.WithLock(ctx, key, func(ctx context.Context) error {
		_, err := svc.Merge(ctx, tenant, identity.MergeCustomers)
		require.ErrorIs(t, err, lock.ErrLocked)
		return nil
	}))
}
