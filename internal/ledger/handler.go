package ledger

import (
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/cabinetworks/mto/internal/platform/httpx"
	"github.com/cabinetworks/mto/internal/rbac"
	"github.com/cabinetworks/mto/internal/shared"
)

// maxTallyBody bounds tally uploads.
const maxTallyBody = 4 << 20

// Handler wires HTTP endpoints for the item ledger.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	rateLimit func(http.Handler) http.Handler
}

// NewHandler constructs the ledger handler. rateLimit guards the bulk tally
// import and may be nil.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware, rateLimit func(http.Handler) http.Handler) *Handler {
	if rateLimit == nil {
		rateLimit = func(next http.Handler) http.Handler { return next }
	}
	return &Handler{logger: logger, service: service, rbac: rbac, rateLimit: rateLimit}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermInventoryView, shared.PermInventoryEdit))
		r.Get("/items", h.handleListItems)
		r.Get("/items/{id}", h.handleGetItem)
		r.Get("/items/{id}/transactions", h.handleListTransactions)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermInventoryEdit))
		r.Post("/items/{id}/adjustments", h.handleAdjustment)
		r.With(h.rateLimit).Post("/stock-tally", h.handleStockTally)
	})
}

type adjustmentRequest struct {
	Type     TransactionType `json:"type" validate:"required,oneof=ADDED WASTED"`
	Quantity decimal.Decimal `json:"quantity"`
	Notes    string          `json:"notes" validate:"max=500"`
}

// tallyEntryRequest keeps the count as a pointer so a missing or null
// quantity is rejected instead of read as a count of zero.
type tallyEntryRequest struct {
	ItemID   int64            `json:"item_id" validate:"required,gt=0"`
	Quantity *decimal.Decimal `json:"quantity" validate:"required"`
}

type tallyRequest struct {
	Entries []tallyEntryRequest `json:"entries" validate:"required,min=1,max=5000,dive"`
	Notes   string              `json:"notes" validate:"max=500"`
}

func (req tallyRequest) toEntries() []TallyEntry {
	entries := make([]TallyEntry, len(req.Entries))
	for i, e := range req.Entries {
		entries[i] = TallyEntry{ItemID: e.ItemID, NewQuantity: *e.Quantity}
	}
	return entries
}

func (h *Handler) handleListItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ItemFilter{
		Category: strings.TrimSpace(q.Get("category")),
		Search:   strings.TrimSpace(q.Get("q")),
	}
	var err error
	if filter.SupplierID, err = optionalInt(q.Get("supplier_id")); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: supplier_id", httpx.ErrValidation))
		return
	}
	page, err := shared.ParsePage(q)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	filter.Limit, filter.Offset = page.Limit, page.Offset

	items, err := h.service.ListItems(r.Context(), filter)
	if err != nil {
		h.logger.Error("list items", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) handleGetItem(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid item id", httpx.ErrValidation))
		return
	}
	item, err := h.service.GetItem(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid item id", httpx.ErrValidation))
		return
	}
	limit, _ := optionalInt(r.URL.Query().Get("limit"))
	txns, err := h.service.ListTransactions(r.Context(), id, int(limit))
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			h.logger.Error("list stock transactions", slog.Any("error", err), slog.Int64("item_id", id))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"transactions": txns})
}

func (h *Handler) handleAdjustment(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid item id", httpx.ErrValidation))
		return
	}
	var req adjustmentRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	qty := req.Quantity.Abs()
	if req.Type == TransactionWasted {
		qty = qty.Neg()
	}
	result, warnings, err := h.service.ApplyDelta(r.Context(), DeltaInput{
		ItemID:   id,
		Quantity: qty,
		Type:     req.Type,
		Notes:    req.Notes,
		ActorID:  shared.ActorID(r.Context()),
	})
	if err != nil {
		h.logger.Info("stock adjustment rejected", slog.Int64("item_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"result": result, "warnings": warnings})
}

func (h *Handler) handleStockTally(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxTallyBody)
	var (
		entries []TallyEntry
		notes   string
	)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "text/csv":
		parsed, err := ParseTallyCSV(r.Body)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
			return
		}
		entries = parsed
		notes = r.URL.Query().Get("notes")
	default:
		var req tallyRequest
		if err := httpx.DecodeAndValidate(r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
		entries, notes = req.toEntries(), req.Notes
	}

	report, err := h.service.ReconcileTally(r.Context(), TallyInput{
		Entries: entries,
		Notes:   notes,
		ActorID: shared.ActorID(r.Context()),
	})
	if err != nil {
		h.logger.Error("stock tally", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	status := http.StatusOK
	if report.Failed > 0 {
		status = http.StatusMultiStatus
	}
	httpx.JSON(w, status, report)
}

func optionalInt(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}
