package ledger

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/gstbilling/internal/platform/httpx"
	"github.com/odyssey-erp/gstbilling/internal/shared"
)

// StatementRenderer renders book and inventory statements.
type StatementRenderer interface {
	BookStatement(book Book, logs []BookLog) ([]byte, error)
	InventoryStatement(inv Inventory, logs []InventoryLog) ([]byte, error)
}

// Handler exposes ledger operations over JSON.
type Handler struct {
	logger     *slog.Logger
	service    *Service
	statements StatementRenderer
}

// NewHandler constructs Handler.
func NewHandler(logger *slog.Logger, service *Service, statements StatementRenderer) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, statements: statements}
}

type stockRequest struct {
	Change      int64               `json:"change" validate:"required"`
	ChangeType  InventoryChangeType `json:"change_type" validate:"min=0,max=4"`
	Description string              `json:"description" validate:"max=200"`
	InvoiceID   *int64              `json:"invoice_id"`
	Date        *time.Time          `json:"date"`
}

type bookEntryRequest struct {
	Change      decimal.Decimal `json:"change"`
	ChangeType  BookChangeType  `json:"change_type" validate:"min=0,max=4"`
	Description string          `json:"description" validate:"max=200"`
	Active      *bool           `json:"is_active"`
	InvoiceID   *int64          `json:"invoice_id"`
	Date        *time.Time      `json:"date"`
}

type paymentRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description" validate:"max=200"`
}

type resolveRequest struct {
	Action      ResolveAction    `json:"action" validate:"required,oneof=confirm adjust"`
	Amount      *decimal.Decimal `json:"amount"`
	Description string           `json:"description" validate:"max=200"`
}

type purchaseRequest struct {
	VendorID   *int64             `json:"vendor_id"`
	Change     decimal.Decimal    `json:"change"`
	ChangeType PurchaseChangeType `json:"change_type" validate:"oneof=0 1 3"`
	Reference  string             `json:"reference" validate:"max=100"`
	Category   string             `json:"category" validate:"max=100"`
	Date       *time.Time         `json:"date"`
}

func (h *Handler) AddStock(w http.ResponseWriter, r *http.Request) {
	tenantID, productID, ok := h.tenantAndID(w, r, "productID")
	if !ok {
		return
	}
	var req stockRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	log, inv, err := h.service.AddStock(r.Context(), StockEntry{
		TenantID:    tenantID,
		ProductID:   productID,
		Change:      req.Change,
		ChangeType:  req.ChangeType,
		Description: req.Description,
		InvoiceID:   req.InvoiceID,
		Date:        deref(req.Date),
	})
	if err != nil {
		h.fail(w, "add stock", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"entry": log, "inventory": inv})
}

func (h *Handler) ListInventoryEntries(w http.ResponseWriter, r *http.Request) {
	tenantID, productID, ok := h.tenantAndID(w, r, "productID")
	if !ok {
		return
	}
	inv, logs, err := h.service.InventoryStatement(r.Context(), tenantID, productID)
	if err != nil {
		h.fail(w, "list inventory entries", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"inventory": inv, "entries": logs})
}

func (h *Handler) DeleteInventoryEntry(w http.ResponseWriter, r *http.Request) {
	tenantID, id, ok := h.tenantAndID(w, r, "id")
	if !ok {
		return
	}
	inv, err := h.service.DeleteInventoryEntry(r.Context(), tenantID, id)
	if err != nil {
		h.fail(w, "delete inventory entry", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"inventory": inv})
}

func (h *Handler) InventoryStatement(w http.ResponseWriter, r *http.Request) {
	tenantID, productID, ok := h.tenantAndID(w, r, "productID")
	if !ok {
		return
	}
	inv, logs, err := h.service.InventoryStatement(r.Context(), tenantID, productID)
	if err != nil {
		h.fail(w, "inventory statement", err)
		return
	}
	data, err := h.statements.InventoryStatement(inv, logs)
	if err != nil {
		h.fail(w, "render inventory statement", err)
		return
	}
	writeXLSX(w, "inventory-"+strconv.FormatInt(productID, 10)+".xlsx", data)
}

func (h *Handler) AddBookEntry(w http.ResponseWriter, r *http.Request) {
	tenantID, bookID, ok := h.tenantAndID(w, r, "bookID")
	if !ok {
		return
	}
	var req bookEntryRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	log, book, err := h.service.AddBookEntry(r.Context(), BookEntry{
		TenantID:    tenantID,
		BookID:      bookID,
		Change:      req.Change,
		ChangeType:  req.ChangeType,
		Description: req.Description,
		CreatedBy:   shared.ActorFromContext(r.Context()),
		Active:      active,
		InvoiceID:   req.InvoiceID,
		Date:        deref(req.Date),
	})
	if err != nil {
		h.fail(w, "add book entry", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"entry": log, "book": book})
}

func (h *Handler) AddPayment(w http.ResponseWriter, r *http.Request) {
	tenantID, bookID, ok := h.tenantAndID(w, r, "bookID")
	if !ok {
		return
	}
	var req paymentRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	log, err := h.service.AddCustomerPayment(r.Context(), tenantID, bookID, req.Amount, req.Description)
	if err != nil {
		h.fail(w, "add customer payment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"entry": log})
}

func (h *Handler) ListBookEntries(w http.ResponseWriter, r *http.Request) {
	tenantID, bookID, ok := h.tenantAndID(w, r, "bookID")
	if !ok {
		return
	}
	var active *bool
	if raw := r.URL.Query().Get("active"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "active must be a boolean")
			return
		}
		active = &v
	}
	book, logs, err := h.service.BookStatement(r.Context(), tenantID, bookID, active)
	if err != nil {
		h.fail(w, "list book entries", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"book": book, "entries": logs})
}

func (h *Handler) BookStatement(w http.ResponseWriter, r *http.Request) {
	tenantID, bookID, ok := h.tenantAndID(w, r, "bookID")
	if !ok {
		return
	}
	book, logs, err := h.service.BookStatement(r.Context(), tenantID, bookID, nil)
	if err != nil {
		h.fail(w, "book statement", err)
		return
	}
	data, err := h.statements.BookStatement(book, logs)
	if err != nil {
		h.fail(w, "render book statement", err)
		return
	}
	writeXLSX(w, "book-"+strconv.FormatInt(bookID, 10)+".xlsx", data)
}

func (h *Handler) ActivateEntry(w http.ResponseWriter, r *http.Request) {
	tenantID, id, ok := h.tenantAndID(w, r, "id")
	if !ok {
		return
	}
	log, book, err := h.service.ActivateEntry(r.Context(), tenantID, id)
	if err != nil {
		h.fail(w, "activate book entry", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entry": log, "book": book})
}

func (h *Handler) ResolveEntry(w http.ResponseWriter, r *http.Request) {
	tenantID, id, ok := h.tenantAndID(w, r, "id")
	if !ok {
		return
	}
	var req resolveRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	log, book, err := h.service.ResolveEntry(r.Context(), Resolution{
		TenantID:    tenantID,
		LogID:       id,
		Action:      req.Action,
		Amount:      req.Amount,
		Description: req.Description,
	})
	if err != nil {
		h.fail(w, "resolve book entry", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entry": log, "book": book})
}

func (h *Handler) DeleteBookEntry(w http.ResponseWriter, r *http.Request) {
	tenantID, id, ok := h.tenantAndID(w, r, "id")
	if !ok {
		return
	}
	book, err := h.service.DeleteBookEntry(r.Context(), tenantID, id)
	if err != nil {
		h.fail(w, "delete book entry", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"book": book})
}

func (h *Handler) AddPurchase(w http.ResponseWriter, r *http.Request) {
	tenantID, err := httpx.Tenant(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req purchaseRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	log, err := h.service.AddPurchase(r.Context(), PurchaseLog{
		TenantID:   tenantID,
		VendorID:   req.VendorID,
		Date:       deref(req.Date),
		Change:     req.Change,
		ChangeType: req.ChangeType,
		Reference:  req.Reference,
		Category:   req.Category,
	})
	if err != nil {
		h.fail(w, "add purchase", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, log)
}

func (h *Handler) ListPurchases(w http.ResponseWriter, r *http.Request) {
	tenantID, err := httpx.Tenant(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var vendorID *int64
	if raw := r.URL.Query().Get("vendor"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "vendor must be an id")
			return
		}
		vendorID = &v
	}
	logs, totals, err := h.service.ListPurchases(r.Context(), tenantID, vendorID)
	if err != nil {
		h.fail(w, "list purchases", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": logs, "totals": totals})
}

func (h *Handler) DeletePurchase(w http.ResponseWriter, r *http.Request) {
	tenantID, id, ok := h.tenantAndID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.DeletePurchase(r.Context(), tenantID, id); err != nil {
		h.fail(w, "delete purchase", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) tenantAndID(w http.ResponseWriter, r *http.Request, param string) (int64, int64, bool) {
	tenantID, err := httpx.Tenant(r)
	if err != nil {
		httpx.RespondError(w, err)
		return 0, 0, false
	}
	id, err := httpx.Int64Param(r, param)
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

func writeXLSX(w http.ResponseWriter, filename string, data []byte) {
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func deref(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
