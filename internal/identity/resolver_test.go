package identity_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/gstbilling/internal/identity"
	"github.com/odyssey-erp/gstbilling/internal/ledger"
	"github.com/odyssey-erp/gstbilling/internal/shared"
	"github.com/odyssey-erp/gstbilling/internal/testing/memstore"
)

const tenant = int64(1)

func TestNormalizerCustomer(t *testing.T) {
	n := identity.NewNormalizer("")
	got := n.Customer(identity.Customer{
		Name:    "  Raj Traders ",
		Address: "mg road",
		Phone:   "98765 43210",
		GST:     "29abcde1234f1z5",
		Email:   " Raj@Example.COM ",
	})
	require.Equal(t, "RAJ TRADERS", got.Name)
	require.Equal(t, "MG ROAD", got.Address)
	require.Equal(t, "+919876543210", got.Phone)
	require.Equal(t, "29ABCDE1234F1Z5", got.GST)
	require.Equal(t, "raj@example.com", got.Email)

	require.Equal(t, "12345", n.Phone(" 12345 "))
	require.Empty(t, n.Phone("  "))
}

func TestNormalizerProductKey(t *testing.T) {
	n := identity.NewNormalizer("in")
	p := n.Product(identity.Product{ModelNo: " ab-12 ", Name: "bolt", HSN: " 7318 ", GSTPercentage: 18})
	require.Equal(t, ledger.ProductKey{ModelNo: "AB-12", Name: "BOLT", HSN: "7318", GSTPercentage: 18}, p.Key())
}

func TestCustomerUserID(t *testing.T) {
	require.Equal(t, "gst7c42", identity.CustomerUserID(7, 42))
}

func withTx(t *testing.T, store *memstore.Store, fn func(ctx context.Context, tx identity.TxRepository) error) error {
	t.Helper()
	return store.Identity().WithTx(context.Background(), fn)
}

func TestFindOrCreateCustomerCreatesOnceWithBook(t *testing.T) {
	store := memstore.New()
	resolver := identity.NewResolver(identity.NewNormalizer("IN"), nil)

	var first identity.Customer
	var created bool
	require.NoError(t, withTx(t, store, func(ctx context.Context, tx identity.TxRepository) error {
		var err error
		first, created, err = resolver.FindOrCreateCustomer(ctx, tx, tenant, identity.CustomerKey{Name: "acme", Address: "main st"})
		return err
	}))
	require.True(t, created)
	require.Equal(t, "ACME", first.Name)
	require.Equal(t, identity.CustomerUserID(tenant, first.ID), first.UserID)
	book, ok := store.Book(tenant, first.ID)
	require.True(t, ok)
	require.True(t, book.CurrentBalance.IsZero())

	var again identity.Customer
	require.NoError(t, withTx(t, store, func(ctx context.Context, tx identity.TxRepository) error {
		var err error
		again, created, err = resolver.FindOrCreateCustomer(ctx, tx, tenant, identity.CustomerKey{Name: " Acme ", Address: "MAIN ST"})
		return err
	}))
	require.False(t, created)
	require.Equal(t, first.ID, again.ID)
	require.Len(t, store.Customers(tenant), 1)

	require.NoError(t, withTx(t, store, func(ctx context.Context, tx identity.TxRepository) error {
		other, created, err := resolver.FindOrCreateCustomer(ctx, tx, 2, identity.CustomerKey{Name: "acme", Address: "main st"})
		require.True(t, created)
		require.NotEqual(t, first.ID, other.ID)
		return err
	}))
}

func TestFindOrCreateCustomerRefusesAmbiguousMatch(t *testing.T) {
	store := memstore.New()
	resolver := identity.NewResolver(identity.NewNormalizer("IN"), nil)
	store.AddCustomer(identity.Customer{TenantID: tenant, Name: "ACME"})
	store.AddCustomer(identity.Customer{TenantID: tenant, Name: "ACME"})

	err := withTx(t, store, func(ctx context.Context, tx identity.TxRepository) error {
		_, _, err := resolver.FindOrCreateCustomer(ctx, tx, tenant, identity.CustomerKey{Name: "acme"})
		return err
	})
	require.ErrorIs(t, err, identity.ErrAmbiguousCustomer)
	require.ErrorIs(t, err, shared.ErrAmbiguousMatch)
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.Len(t, store.Customers(tenant), 2)
}

func TestFindOrCreateProductRefreshesRateOnMatch(t *testing.T) {
	store := memstore.New()
	resolver := identity.NewResolver(identity.NewNormalizer("IN"), nil)
	input := identity.Product{ModelNo: "m1", Name: "widget", HSN: "8471", GSTPercentage: 18, RateWithGST: 118}

	var p identity.Product
	var created bool
	require.NoError(t, withTx(t, store, func(ctx context.Context, tx identity.TxRepository) error {
		var err error
		p, created, err = resolver.FindOrCreateProduct(ctx, tx, tenant, input)
		return err
	}))
	require.True(t, created)
	require.Equal(t, "M1", p.ModelNo)
	inv, ok := store.Inventory(tenant, p.ID)
	require.True(t, ok)
	require.Zero(t, inv.CurrentStock)

	input.RateWithGST = 236
	require.NoError(t, withTx(t, store, func(ctx context.Context, tx identity.TxRepository) error {
		again, created, err := resolver.FindOrCreateProduct(ctx, tx, tenant, input)
		require.False(t, created)
		require.Equal(t, p.ID, again.ID)
		return err
	}))
	products := store.Products(tenant)
	require.Len(t, products, 1)
	require.InDelta(t, 236.0, products[0].RateWithGST, 1e-9)

	input.GSTPercentage = 12
	require.NoError(t, withTx(t, store, func(ctx context.Context, tx identity.TxRepository) error {
		_, created, err := resolver.FindOrCreateProduct(ctx, tx, tenant, input)
		require.True(t, created, "a different GST rate is a different product")
		return err
	}))
	require.Len(t, store.Products(tenant), 2)
}
