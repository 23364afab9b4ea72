package billing

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/odyssey-erp/gstbilling/internal/ledger"
	"github.com/odyssey-erp/gstbilling/internal/platform/httpx"
	"github.com/odyssey-erp/gstbilling/internal/shared"
)

// IdempotencyHeader carries the client retry key for invoice creation.
const IdempotencyHeader = "Idempotency-Key"

// Handler exposes invoice operations over JSON.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// createInvoiceRequest is the invoice document plus its series flag.
type createInvoiceRequest struct {
	Payload
	IsGST *bool `json:"is_gst"`
}

func (h *Handler) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	tenantID, err := httpx.Tenant(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req createInvoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: malformed body: %v", shared.ErrValidation, err))
		return
	}
	isGST := req.IsGST == nil || *req.IsGST
	issued, err := h.service.CreateInvoice(r.Context(), tenantID, CreateRequest{
		Payload:        req.Payload,
		IsGST:          isGST,
		IdempotencyKey: r.Header.Get(IdempotencyHeader),
	})
	if err != nil {
		h.fail(w, "create invoice", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, issued)
}

func (h *Handler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	tenantID, err := httpx.Tenant(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	invoices, err := h.service.ListInvoices(r.Context(), tenantID)
	if err != nil {
		h.fail(w, "list invoices", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"invoices": invoices})
}

func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	tenantID, id, ok := h.tenantAndID(w, r)
	if !ok {
		return
	}
	inv, err := h.service.GetInvoice(r.Context(), tenantID, id)
	if err != nil {
		h.fail(w, "get invoice", err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) DeleteInvoice(w http.ResponseWriter, r *http.Request) {
	tenantID, id, ok := h.tenantAndID(w, r)
	if !ok {
		return
	}
	scope := ledger.ReverseScope{
		Inventory: queryFlag(r, "inventory"),
		Books:     queryFlag(r, "books"),
	}
	reversed, err := h.service.DeleteInvoice(r.Context(), tenantID, id, scope)
	if err != nil {
		h.fail(w, "delete invoice", err)
		return
	}
	httpx.JSON(w, http.StatusOK, reversed)
}

func (h *Handler) PushToBooks(w http.ResponseWriter, r *http.Request) {
	tenantID, id, ok := h.tenantAndID(w, r)
	if !ok {
		return
	}
	repair, err := h.service.PushToBooks(r.Context(), tenantID, id)
	if err != nil {
		h.fail(w, "push to books", err)
		return
	}
	httpx.JSON(w, http.StatusOK, repair)
}

func (h *Handler) tenantAndID(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	tenantID, err := httpx.Tenant(r)
	if err != nil {
		httpx.RespondError(w, err)
		return 0, 0, false
	}
	id, err := httpx.Int64Param(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return 0, 0, false
	}
	return tenantID, id, true
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Error(op+" failed", slog.Any("error", err))
	httpx.RespondError(w, err)
}

func queryFlag(r *http.Request, name string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(name))
	return err == nil && v
}
