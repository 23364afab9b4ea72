package billing_test

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/gstbilling/internal/billing"
	"github.com/odyssey-erp/gstbilling/internal/shared"
)

func newRouter(f fixture) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if raw := req.Header.Get("X-Tenant-ID"); raw != "" {
				id, _ := strconv.ParseInt(raw, 10, 64)
				req = req.WithContext(shared.ContextWithTenant(req.Context(), id))
			}
			next.ServeHTTP(w, req)
		})
	})
	billing.NewHandler(slog.Default(), f.service).MountRoutes(r)
	return r
}

func do(t *testing.T, h http.Handler, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

const invoiceBody = `{
	"invoice_date": "2024-04-01",
	"customer_name": "acme",
	"items": [{"invoice_model_no": "M1", "invoice_product": "Widget", "invoice_hsn": "8471",
		"invoice_qty": 5, "invoice_gst_percentage": 18, "invoice_rate_with_gst": 100}],
	"invoice_total_amt_with_gst": 500
}`

func TestInvoiceHandlersLifecycle(t *testing.T) {
	f := newFixture(t)
	h := newRouter(f)
	tenantHeader := map[string]string{"X-Tenant-ID": "1", billing.IdempotencyHeader: "k-1"}

	rec := do(t, h, http.MethodPost, "/invoices/", invoiceBody, tenantHeader)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var issued billing.Issued
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &issued))
	require.EqualValues(t, 1, issued.Invoice.Number)
	require.True(t, issued.Invoice.IsGST, "is_gst defaults to true")

	rec = do(t, h, http.MethodPost, "/invoices/", invoiceBody, tenantHeader)
	require.Equal(t, http.StatusConflict, rec.Code)

	id := strconv.FormatInt(issued.Invoice.ID, 10)
	rec = do(t, h, http.MethodGet, "/invoices/"+id, "", tenantHeader)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/invoices/"+id, "", map[string]string{"X-Tenant-ID": "2"})
	require.Equal(t, http.StatusNotFound, rec.Code, "tenants never see each other's invoices")

	rec = do(t, h, http.MethodDelete, "/invoices/"+id+"?inventory=true&books=true", "", tenantHeader)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.EqualValues(t, 50, f.stock(t))
	require.True(t, f.balance(t).Equal(decimal.NewFromInt(-100)))
}

func TestInvoiceHandlersRejectBadRequests(t *testing.T) {
	f := newFixture(t)
	h := newRouter(f)

	rec := do(t, h, http.MethodPost, "/invoices/", invoiceBody, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodPost, "/invoices/", `{"customer_name": ""}`, map[string]string{"X-Tenant-ID": "1"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, h, http.MethodPost, "/invoices/", `{`, map[string]string{"X-Tenant-ID": "1"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, h, http.MethodGet, "/invoices/abc", "", map[string]string{"X-Tenant-ID": "1"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
