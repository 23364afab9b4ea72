package app_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/gstbilling/internal/app"
	"github.com/odyssey-erp/gstbilling/internal/billing"
	"github.com/odyssey-erp/gstbilling/internal/identity"
	"github.com/odyssey-erp/gstbilling/internal/ledger"
	"github.com/odyssey-erp/gstbilling/internal/ledger/export"
	"github.com/odyssey-erp/gstbilling/internal/observability"
	"github.com/odyssey-erp/gstbilling/internal/sales/quotations"
	"github.com/odyssey-erp/gstbilling/internal/testing/memstore"
	"github.com/odyssey-erp/gstbilling/jobs"
)

func newRouter(t *testing.T) (http.Handler, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	engine := ledger.NewEngine()
	resolver := identity.NewResolver(identity.NewNormalizer("IN"), engine)
	invoices := billing.NewService(store.Billing(), resolver, engine, nil, nil)
	h := app.NewRouter(app.RouterParams{
		Config:            &app.Config{AppEnv: "test"},
		LedgerHandler:     ledger.NewHandler(nil, ledger.NewService(store.Ledger(), engine, nil, nil, nil), export.NewExporter()),
		IdentityHandler:   identity.NewHandler(identity.NewService(store.Identity(), resolver, identity.NewMerger(engine), nil, nil)),
		BillingHandler:    billing.NewHandler(nil, invoices),
		QuotationsHandler: quotations.NewHandler(nil, quotations.NewService(store, invoices, resolver, nil, nil)),
		JobHandler:        jobs.NewHandler(nil, nil),
		Metrics:           observability.NewMetrics(),
	})
	return h, store
}

func serve(h http.Handler, method, target, body string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for k, v := range header {
		req.Header[http.CanonicalHeaderKey(k)] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouterServesHealthAndMetrics(t *testing.T) {
	h, _ := newRouter(t)

	rec := serve(h, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = serve(h, http.MethodGet, "/jobs/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(h, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "gstbilling_http_requests_total")
}

func TestRouterScopesRequestsToTenant(t *testing.T) {
	h, _ := newRouter(t)

	rec := serve(h, http.MethodGet, "/invoices/", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(h, http.MethodGet, "/invoices/", "", http.Header{app.TenantHeader: {"abc"}})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(h, http.MethodGet, "/invoices/", "", http.Header{app.TenantHeader: {"4"}})
	require.Equal(t, http.StatusOK, rec.Code)

	body := `{"payload": {"invoice_date": "2024-06-01", "customer_name": "Hooli",
		"items": [{"invoice_model_no": "X1", "invoice_qty": 1, "invoice_rate_with_gst": 10}],
		"invoice_total_amt_with_gst": 10}}`
	rec = serve(h, http.MethodPost, "/quotations/", body, http.Header{
		app.TenantHeader: {"4"},
		app.ActorHeader:  {"sales-desk"},
		"Content-Type":   {"application/json"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = serve(h, http.MethodGet, "/quotations/", "", http.Header{app.TenantHeader: {"5"}})
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"quotations": []}`, rec.Body.String())
}
