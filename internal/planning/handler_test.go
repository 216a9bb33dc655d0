package planning

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/cabinetworks/mto/internal/mto"
	"github.com/cabinetworks/mto/internal/rbac"
	"github.com/cabinetworks/mto/internal/shared"
)

func newHandlerRouter(repo *memoryRepo) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(logger, NewService(repo, logger), rbac.Middleware{Logger: logger})
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := &shared.Actor{ID: 2, Permissions: strings.Split(r.Header.Get("X-Test-Perms"), ",")}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithActor(r.Context(), actor)))
		})
	})
	h.MountRoutes(r)
	return r
}

func get(router http.Handler, path, perms string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("X-Test-Perms", perms)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func planningFixture() *memoryRepo {
	supplier := int64(3)
	return &memoryRepo{
		lines: []DemandLine{
			{MTOID: 1, MTOStatus: mto.StatusDraft, LineID: 11, ItemID: 100, ItemName: "Soft-close hinge", SupplierID: &supplier, SupplierName: "Blum", Quantity: dec("4")},
			{MTOID: 2, MTOStatus: mto.StatusPartiallyOrdered, LineID: 21, ItemID: 100, ItemName: "Soft-close hinge", SupplierID: &supplier, SupplierName: "Blum", Quantity: dec("6")},
		},
		snapshots: []MTOSnapshot{{MTOID: 5, Status: mto.StatusFullyOrdered, Lines: []SnapshotLine{
			{LineID: 51, ItemID: 100, Quantity: dec("2"), ReservationCount: 1},
		}}},
	}
}

func TestCumulativeEndpoint(t *testing.T) {
	router := newHandlerRouter(planningFixture())

	rec := get(router, "/planning/cumulative", shared.PermMTOView)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Suppliers []SupplierDemand `json:"suppliers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Suppliers, 1)
	require.Equal(t, "Blum", body.Suppliers[0].SupplierName)
	require.Len(t, body.Suppliers[0].Items, 1)
	require.True(t, body.Suppliers[0].Items[0].Quantity.Equal(dec("10")))
	require.Len(t, body.Suppliers[0].Items[0].Sources, 2)
}

func TestCumulativeCSVEndpoint(t *testing.T) {
	router := newHandlerRouter(planningFixture())

	rec := get(router, "/planning/cumulative.csv", shared.PermProcurementView)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Header().Get("Content-Disposition"), "cumulative-demand.csv")

	records, err := csv.NewReader(rec.Body).ReadAll()
	require.NoError(t, err)
	require.Equal(t, cumulativeHeader, records[0])
	require.Equal(t, []string{"Blum", "100", "Soft-close hinge", "10", "1/11:4 2/21:6"}, records[1])
}

func TestUsedMaterialsAndOverviewEndpoints(t *testing.T) {
	router := newHandlerRouter(planningFixture())

	rec := get(router, "/planning/used-materials", shared.PermMTOView)
	require.Equal(t, http.StatusOK, rec.Code)
	var used UsedMaterials
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &used))
	require.Len(t, used.ReadyToUse, 1)
	require.Equal(t, 1, used.ReadyToUse[0].Stats.TotalItems)

	rec = get(router, "/planning/overview", shared.PermMTOView)
	require.Equal(t, http.StatusOK, rec.Code)
	var overview Overview
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &overview))
	require.Len(t, overview.Cumulative, 1)
	require.Len(t, overview.UsedMaterials.ReadyToUse, 1)
}

func TestPlanningEndpointsFailWithoutLeakingErrors(t *testing.T) {
	router := newHandlerRouter(&memoryRepo{err: errors.New("dial tcp 10.0.0.5:5432: connection refused")})

	for _, path := range []string{"/planning/cumulative", "/planning/cumulative.csv", "/planning/used-materials", "/planning/overview"} {
		rec := get(router, path, shared.PermMTOView)
		require.Equal(t, http.StatusInternalServerError, rec.Code, path)
		require.NotContains(t, rec.Body.String(), "10.0.0.5", path)
	}
}

func TestPlanningRoutesEnforcePermissions(t *testing.T) {
	repo := planningFixture()
	router := newHandlerRouter(repo)

	for _, perms := range []string{shared.PermInventoryView, shared.PermInventoryEdit, ""} {
		rec := get(router, "/planning/overview", perms)
		require.Equal(t, http.StatusForbidden, rec.Code, perms)
	}
	require.Zero(t, repo.calls)
}
