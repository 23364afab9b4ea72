//go:build integration

package billing_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/gstbilling/internal/billing"
	"github.com/odyssey-erp/gstbilling/internal/identity"
	"github.com/odyssey-erp/gstbilling/internal/ledger"
	"github.com/odyssey-erp/gstbilling/internal/platform/db"
	"github.com/odyssey-erp/gstbilling/internal/platform/migrate"
	"github.com/odyssey-erp/gstbilling/internal/sales/quotations"
)

func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("gstbilling_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	m, err := migrate.Open(dsn, "../../migrations", slog.Default())
	require.NoError(t, err)
	require.NoError(t, m.Up())
	require.NoError(t, m.Close())
	return dsn
}

func TestInvoiceLifecycleAgainstPostgres(t *testing.T) {
	dsn := startPostgres(t)
	ctx := context.Background()
	pool, err := db.New(ctx, dsn, 4)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	engine := ledger.NewEngine()
	resolver := identity.NewResolver(identity.NewNormalizer("IN"), engine)
	ledgerSvc := ledger.NewService(ledger.NewRepository(pool), engine, nil, nil, nil)
	invoices := billing.NewService(billing.NewRepository(pool), resolver, engine, nil, nil)
	quotes := quotations.NewService(quotations.NewRepository(pool), invoices, resolver, nil, nil)

	req := billing.CreateRequest{Payload: payload("acme", 236, widget(2)), IsGST: true, IdempotencyKey: "first"}
	issued, err := invoices.CreateInvoice(ctx, tenant, req)
	require.NoError(t, err)
	require.EqualValues(t, 1, issued.Invoice.Number)
	require.Len(t, issued.Applied.Inventories, 1)
	require.EqualValues(t, -2, issued.Applied.Inventories[0].CurrentStock)

	_, err = invoices.CreateInvoice(ctx, tenant, req)
	require.Error(t, err, "the idempotency key is spent")

	productID := issued.Applied.Inventories[0].ProductID
	bookID := issued.Applied.Book.ID
	book, logs, err := ledgerSvc.BookStatement(ctx, tenant, bookID, nil)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, "-236", book.CurrentBalance.String())

	q, err := quotes.Create(ctx, tenant, quotations.CreateQuotationRequest{Payload: payload("acme", 118, widget(1)), IsGST: true})
	require.NoError(t, err)
	conv, err := quotes.Convert(ctx, tenant, q.ID)
	require.NoError(t, err)
	require.EqualValues(t, 2, conv.Invoice.Number)

	_, err = invoices.DeleteInvoice(ctx, tenant, conv.Invoice.ID, ledger.ReverseScope{Inventory: true, Books: true})
	require.NoError(t, err)
	unlinked, err := quotes.Get(ctx, tenant, q.ID)
	require.NoError(t, err)
	require.Nil(t, unlinked.ConvertedInvoiceID)

	inv, _, err := ledgerSvc.InventoryStatement(ctx, tenant, productID)
	require.NoError(t, err)
	require.EqualValues(t, -2, inv.CurrentStock)

	report, err := ledgerSvc.RecomputeTenant(ctx, tenant)
	require.NoError(t, err)
	require.Empty(t, report.Drift)
}

func TestConcurrentInvoicesSharingBusinessGSTGetDistinctNumbers(t *testing.T) {
	dsn := startPostgres(t)
	ctx := context.Background()
	pool, err := db.New(ctx, dsn, 4)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	tenants := []int64{10, 20}
	for _, id := range tenants {
		_, err := pool.Exec(ctx, `INSERT INTO business_profiles (tenant_id, business_gst) VALUES ($1, $2)`, id, sharedGST)
		require.NoError(t, err)
	}

	engine := ledger.NewEngine()
	resolver := identity.NewResolver(identity.NewNormalizer("IN"), engine)
	invoices := billing.NewService(billing.NewRepository(pool), resolver, engine, nil, nil)

	for round := 0; round < 5; round++ {
		numbers := make([]int64, len(tenants))
		var g errgroup.Group
		for i, id := range tenants {
			g.Go(func() error {
				issued, err := invoices.CreateInvoice(ctx, id, billing.CreateRequest{Payload: payload("buyer", 118, widget(1)), IsGST: true})
				numbers[i] = issued.Invoice.Number
				return err
			})
		}
		require.NoError(t, g.Wait())
		require.NotEqual(t, numbers[0], numbers[1], "round %d", round)
	}

	var total, distinct int
	err = pool.QueryRow(ctx, `SELECT COUNT(*), COUNT(DISTINCT invoice_number) FROM invoices WHERE is_gst`).Scan(&total, &distinct)
	require.NoError(t, err)
	require.Equal(t, 10, total)
	require.Equal(t, 10, distinct)
}
