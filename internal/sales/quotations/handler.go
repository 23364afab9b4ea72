package quotations

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/odyssey-erp/gstbilling/internal/platform/httpx"
	"github.com/odyssey-erp/gstbilling/internal/shared"
)

type Handler struct {
	logger  *slog.Logger
	service *Service
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	tenantID, err := httpx.Tenant(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var status *QuotationStatus
	if v := r.URL.Query().Get("status"); v != "" {
		s := QuotationStatus(v)
		if !s.Valid() {
			httpx.RespondError(w, fmt.Errorf("%w: %q", ErrUnknownStatus, v))
			return
		}
		status = &s
	}
	quotations, err := h.service.List(r.Context(), tenantID, status)
	if err != nil {
		h.fail(w, "list quotations", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"quotations": quotations})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	tenantID, id, ok := h.tenantAndID(w, r)
	if !ok {
		return
	}
	q, err := h.service.Get(r.Context(), tenantID, id)
	if err != nil {
		h.fail(w, "get quotation", err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	tenantID, err := httpx.Tenant(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req CreateQuotationRequest
	if err := decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	q, err := h.service.Create(r.Context(), tenantID, req)
	if err != nil {
		h.fail(w, "create quotation", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, q)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	tenantID, id, ok := h.tenantAndID(w, r)
	if !ok {
		return
	}
	var req UpdateQuotationRequest
	if err := decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	q, err := h.service.Update(r.Context(), tenantID, id, req)
	if err != nil {
		h.fail(w, "update quotation", err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	tenantID, id, ok := h.tenantAndID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), tenantID, id); err != nil {
		h.fail(w, "delete quotation", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	tenantID, id, ok := h.tenantAndID(w, r)
	if !ok {
		return
	}
	q, err := h.service.Approve(r.Context(), tenantID, id)
	if err != nil {
		h.fail(w, "approve quotation", err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	tenantID, id, ok := h.tenantAndID(w, r)
	if !ok {
		return
	}
	var req UpdateStatusRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	q, err := h.service.UpdateStatus(r.Context(), tenantID, id, req.Status)
	if err != nil {
		h.fail(w, "update quotation status", err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

func (h *Handler) Received(w http.ResponseWriter, r *http.Request) {
	tenantID, id, ok := h.tenantAndID(w, r)
	if !ok {
		return
	}
	q, err := h.service.MarkReceived(r.Context(), tenantID, id)
	if err != nil {
		h.fail(w, "mark quotation received", err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

func (h *Handler) Convert(w http.ResponseWriter, r *http.Request) {
	tenantID, id, ok := h.tenantAndID(w, r)
	if !ok {
		return
	}
	out, err := h.service.Convert(r.Context(), tenantID, id)
	if err != nil {
		h.fail(w, "convert quotation", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, out)
}

func (h *Handler) Reconvert(w http.ResponseWriter, r *http.Request) {
	tenantID, id, ok := h.tenantAndID(w, r)
	if !ok {
		return
	}
	out, err := h.service.Reconvert(r.Context(), tenantID, id)
	if err != nil {
		h.fail(w, "reconvert quotation", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, out)
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

// decode leaves payload validation to the service, which drops blank lines first.
func decode(r *http.Request, target any) error {
	if err := httpx.DecodeJSON(r, target); err != nil {
		return fmt.Errorf("%w: malformed body: %v", shared.ErrValidation, err)
	}
	return nil
}
