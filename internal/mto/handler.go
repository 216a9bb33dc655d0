package mto

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/cabinetworks/mto/internal/platform/httpx"
	"github.com/cabinetworks/mto/internal/rbac"
	"github.com/cabinetworks/mto/internal/shared"
)

// Handler wires HTTP endpoints for MTOs and their lines.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler constructs the MTO handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers MTO routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermMTOView, shared.PermMTOEdit))
		r.Get("/mtos", h.handleList)
		r.Get("/mtos/{id}", h.handleGet)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermMTOEdit))
		r.Post("/mtos", h.handleCreate)
		r.Post("/mtos/{id}/lines", h.handleAddLine)
		r.Post("/mtos/{id}/resolve", h.handleResolve)
		r.Delete("/mtos/{id}", h.handleDelete)
		r.Post("/mtos/{id}/recover", h.handleRecover)
		r.Delete("/mto-lines/{id}", h.handleDeleteLine)
		r.Post("/mto-lines/{id}/recover", h.handleRecoverLine)
	})
}

type createRequest struct {
	ProjectID *int64      `json:"project_id" validate:"omitempty,gt=0"`
	Notes     string      `json:"notes" validate:"max=1000"`
	LotIDs    []int64     `json:"lot_ids" validate:"dive,gt=0"`
	Lines     []LineInput `json:"lines" validate:"max=500,dive"`
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
	filter := ListFilter{
		Status:         Status(strings.ToUpper(strings.TrimSpace(q.Get("status")))),
		IncludeDeleted: q.Get("include_deleted") == "true",
	}
	if filter.Status != "" && !filter.Status.Valid() {
		httpx.RespondError(w, fmt.Errorf("%w: unknown status %q", httpx.ErrValidation, filter.Status))
		return
	}
	if raw := q.Get("project_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: project_id", httpx.ErrValidation))
			return
		}
		filter.ProjectID = id
	}
	page, err := shared.ParsePage(q)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	filter.Limit, filter.Offset = page.Limit, page.Offset
	items, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list mtos", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"mtos": items})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	detail, err := h.service.Get(r.Context(), id, r.URL.Query().Get("include_deleted") == "true")
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
	detail, warnings, err := h.service.Create(r.Context(), CreateInput{
		ProjectID: req.ProjectID,
		Notes:     req.Notes,
		LotIDs:    req.LotIDs,
		Lines:     req.Lines,
		ActorID:   shared.ActorID(r.Context()),
	})
	if err != nil {
		h.logger.Info("create mto rejected", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"mto": detail, "warnings": warnings})
}

func (h *Handler) handleAddLine(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req LineInput
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	change, warnings, err := h.service.AddLine(r.Context(), id, req, shared.ActorID(r.Context()))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"change": change, "warnings": warnings})
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	status, changed, err := h.service.Resolve(r.Context(), id)
	if err != nil {
		h.logger.Error("resolve mto", slog.Int64("mto_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"mto_id": id, "status": status, "changed": changed})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	h.mtoStateChange(w, r, h.service.SoftDelete)
}

func (h *Handler) handleRecover(w http.ResponseWriter, r *http.Request) {
	h.mtoStateChange(w, r, h.service.Recover)
}

func (h *Handler) handleDeleteLine(w http.ResponseWriter, r *http.Request) {
	h.lineStateChange(w, r, h.service.SoftDeleteLine)
}

func (h *Handler) handleRecoverLine(w http.ResponseWriter, r *http.Request) {
	h.lineStateChange(w, r, h.service.RecoverLine)
}

func (h *Handler) mtoStateChange(w http.ResponseWriter, r *http.Request, fn func(context.Context, int64, int64) (MTO, shared.Warnings, error)) {
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	m, warnings, err := fn(r.Context(), id, shared.ActorID(r.Context()))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"mto": m, "warnings": warnings})
}

func (h *Handler) lineStateChange(w http.ResponseWriter, r *http.Request, fn func(context.Context, int64, int64) (LineChange, shared.Warnings, error)) {
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	change, warnings, err := fn(r.Context(), id, shared.ActorID(r.Context()))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"change": change, "warnings": warnings})
}
