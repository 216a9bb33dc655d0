package planning

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cabinetworks/mto/internal/platform/httpx"
	"github.com/cabinetworks/mto/internal/rbac"
	"github.com/cabinetworks/mto/internal/shared"
)

// Handler exposes the planning views.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler constructs Handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers planning routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermMTOView, shared.PermProcurementView))
		r.Get("/planning/cumulative", h.handleCumulative)
		r.Get("/planning/cumulative.csv", h.handleCumulativeCSV)
		r.Get("/planning/used-materials", h.handleUsedMaterials)
		r.Get("/planning/overview", h.handleOverview)
	})
}

func (h *Handler) handleCumulative(w http.ResponseWriter, r *http.Request) {
	demand, err := h.service.Cumulative(r.Context())
	if err != nil {
		h.logger.Error("build cumulative demand", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"suppliers": demand})
}

func (h *Handler) handleCumulativeCSV(w http.ResponseWriter, r *http.Request) {
	demand, err := h.service.Cumulative(r.Context())
	if err != nil {
		h.logger.Error("build cumulative demand", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="cumulative-demand.csv"`)
	if err := WriteCumulativeCSV(w, demand); err != nil {
		h.logger.Error("write cumulative csv", slog.Any("error", err))
	}
}

func (h *Handler) handleUsedMaterials(w http.ResponseWriter, r *http.Request) {
	used, err := h.service.UsedMaterials(r.Context())
	if err != nil {
		h.logger.Error("classify used materials", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, used)
}

func (h *Handler) handleOverview(w http.ResponseWriter, r *http.Request) {
	overview, err := h.service.Overview(r.Context())
	if err != nil {
		h.logger.Error("planning overview", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, overview)
}
