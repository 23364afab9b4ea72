package identity

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/gstbilling/internal/platform/httpx"
)

// Handler exposes bulk registration.
type Handler struct {
	service *Service
}

// NewHandler constructs Handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type bulkCustomersRequest struct {
	Customers []Customer `json:"customers" validate:"required,min=1,max=1000"`
}

type bulkProductsRequest struct {
	Products []ProductRegistration `json:"products" validate:"required,min=1,max=1000"`
}

func (h *Handler) RegisterCustomers(w http.ResponseWriter, r *http.Request) {
	tenantID, err := httpx.Tenant(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req bulkCustomersRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, h.service.RegisterCustomers(r.Context(), tenantID, req.Customers))
}

func (h *Handler) RegisterProducts(w http.ResponseWriter, r *http.Request) {
	tenantID, err := httpx.Tenant(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req bulkProductsRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, h.service.RegisterProducts(r.Context(), tenantID, req.Products))
}

// MountRoutes registers identity endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/customers/bulk", h.RegisterCustomers)
	r.Post("/products/bulk", h.RegisterProducts)
}
