package reservation

import (
	"errors"
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

// Handler wires HTTP endpoints for reservations.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler constructs the reservation handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers reservation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermMTOView, shared.PermInventoryView))
		r.Get("/mto-lines/{id}/reservations", h.handleListByLine)
		r.Get("/items/{id}/reservations", h.handleListByItem)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermInventoryEdit))
		r.Post("/reservations", h.handleReserve)
	})
}

type reserveRequest struct {
	ItemID    int64           `json:"item_id" validate:"required,gt=0"`
	MTOLineID int64           `json:"mto_line_id" validate:"required,gt=0"`
	Quantity  decimal.Decimal `json:"quantity"`
	Notes     string          `json:"notes" validate:"max=500"`
}

func (h *Handler) handleReserve(w http.ResponseWriter, r *http.Request) {
	var req reserveRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.Reserve(r.Context(), ReserveInput{
		ItemID:         req.ItemID,
		MTOLineID:      req.MTOLineID,
		Quantity:       req.Quantity,
		Notes:          req.Notes,
		ActorID:        shared.ActorID(r.Context()),
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	})
	if err != nil {
		var stockErr *shared.InsufficientStockError
		switch {
		case errors.As(err, &stockErr):
			h.logger.Info("reservation rejected",
				slog.Int64("item_id", stockErr.ItemID),
				slog.String("shortage", stockErr.Shortage.String()))
		case errors.Is(err, shared.ErrNotFound), errors.Is(err, shared.ErrInvalidQuantity), errors.Is(err, shared.ErrConflictingState):
			h.logger.Info("reservation rejected", slog.Any("error", err))
		default:
			h.logger.Error("reserve stock", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) handleListByLine(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid line id", httpx.ErrValidation))
		return
	}
	list, err := h.service.ListByLine(r.Context(), id)
	if err != nil {
		h.logger.Error("list reservations by line", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"reservations": list})
}

func (h *Handler) handleListByItem(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid item id", httpx.ErrValidation))
		return
	}
	list, err := h.service.ListByItem(r.Context(), id)
	if err != nil {
		h.logger.Error("list reservations by item", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"reservations": list})
}
