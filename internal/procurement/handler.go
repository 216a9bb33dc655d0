package procurement

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/cabinetworks/mto/internal/platform/httpx"
	"github.com/cabinetworks/mto/internal/rbac"
	"github.com/cabinetworks/mto/internal/shared"
)

// Handler wires HTTP endpoints for purchase orders and ordered counters.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds a procurement handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers procurement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermProcurementView, shared.PermProcurementEdit))
		r.Get("/purchase-orders", h.handleList)
		r.Get("/purchase-orders/{id}", h.handleGet)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermProcurementEdit))
		r.Post("/purchase-orders", h.handleCreate)
		r.Post("/purchase-orders/{id}/order", h.handleOrder)
		r.Post("/purchase-orders/{id}/receive", h.handleReceive)
		r.Post("/purchase-orders/{id}/cancel", h.handleCancel)
		r.Put("/mto-lines/{id}/quantity-ordered", h.handleQuantityOrdered)
	})
}

type createRequest struct {
	Number     string        `json:"number" validate:"max=64"`
	SupplierID int64         `json:"supplier_id" validate:"required,gt=0"`
	Notes      string        `json:"notes" validate:"max=1000"`
	Items      []POItemInput `json:"items" validate:"required,min=1,max=500,dive"`
}

type quantityOrderedRequest struct {
	QuantityOrdered *decimal.Decimal `json:"quantity_ordered" validate:"required"`
}

func idParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid id", httpx.ErrValidation)
	}
	return id, nil
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{Status: POStatus(strings.ToUpper(strings.TrimSpace(q.Get("status"))))}
	if raw := q.Get("supplier_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: supplier_id", httpx.ErrValidation))
			return
		}
		filter.SupplierID = id
	}
	page, err := shared.ParsePage(q)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	filter.Limit, filter.Offset = page.Limit, page.Offset
	list, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list purchase orders", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"purchase_orders": list})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	detail, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, detail)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	detail, warnings, err := h.service.CreatePurchaseOrder(r.Context(), CreatePOInput{
		Number:     req.Number,
		SupplierID: req.SupplierID,
		Notes:      req.Notes,
		Items:      req.Items,
		ActorID:    shared.ActorID(r.Context()),
	})
	if err != nil {
		h.logger.Info("create purchase order rejected", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"purchase_order": detail, "warnings": warnings})
}

func (h *Handler) handleOrder(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.MarkOrdered)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Cancel)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn func(context.Context, int64, int64) (PurchaseOrder, shared.Warnings, error)) {
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	po, warnings, err := fn(r.Context(), id, shared.ActorID(r.Context()))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"purchase_order": po, "warnings": warnings})
}

func (h *Handler) handleReceive(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.Receive(r.Context(), id, shared.ActorID(r.Context()))
	if err != nil {
		h.logger.Info("receive purchase order rejected", slog.Int64("purchase_order_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleQuantityOrdered(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req quantityOrderedRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.UpdateQuantityOrdered(r.Context(), id, *req.QuantityOrdered, shared.ActorID(r.Context()))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}
