package ledger

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/cabinetworks/mto/internal/rbac"
	"github.com/cabinetworks/mto/internal/shared"
)

func newTestRouter(repo *memoryRepo) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(repo, nil, nil, nil, logger)
	h := NewHandler(logger, svc, rbac.Middleware{Logger: logger}, nil)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := &shared.Actor{ID: 5, Permissions: strings.Split(r.Header.Get("X-Test-Perms"), ",")}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithActor(r.Context(), actor)))
		})
	})
	h.MountRoutes(r)
	return r
}

func TestStockTallyCSVEndpoint(t *testing.T) {
	repo := newMemoryRepo(Item{ID: 1, Quantity: qty(8)}, Item{ID: 2, Quantity: qty(3)})
	router := newTestRouter(repo)

	req := httptest.NewRequest(http.MethodPost, "/stock-tally", strings.NewReader("item_id,quantity\n1,5\n2,-1\n"))
	req.Header.Set("Content-Type", "text/csv; charset=utf-8")
	req.Header.Set("X-Test-Perms", shared.PermInventoryEdit)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusMultiStatus, rec.Code)
	var report TallyReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	require.Equal(t, 1, report.Updated)
	require.Equal(t, 1, report.Failed)
	require.Equal(t, "invalid_quantity", report.Results[1].ErrorCode)
	require.True(t, repo.quantity(1).Equal(qty(5)))
}

func TestStockTallyJSONEndpoint(t *testing.T) {
	repo := newMemoryRepo(Item{ID: 1, Quantity: qty(8)})
	router := newTestRouter(repo)

	body := `{"entries":[{"item_id":1,"quantity":"12"}],"notes":"cycle count"}`
	req := httptest.NewRequest(http.MethodPost, "/stock-tally", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-Perms", shared.PermInventoryEdit)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	txns := repo.transactions(1)
	require.Len(t, txns, 1)
	require.Equal(t, TransactionAdded, txns[0].Type)
	require.Equal(t, "cycle count", txns[0].Notes)
	require.Equal(t, int64(5), txns[0].CreatedBy)
}

func TestStockTallyJSONRejectsMissingCount(t *testing.T) {
	repo := newMemoryRepo(Item{ID: 1, Quantity: qty(8)}, Item{ID: 2, Quantity: qty(9)})
	router := newTestRouter(repo)

	for _, body := range []string{
		`{"entries":[{"item_id":1},{"item_id":2,"quantity":null}]}`,
		`{"entries":[{"item_id":1,"quantity":"4"},{"item_id":2}]}`,
		`{"entries":[{"quantity":"4"}]}`,
	} {
		req := httptest.NewRequest(http.MethodPost, "/stock-tally", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-Perms", shared.PermInventoryEdit)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code, body)
	}

	require.True(t, repo.quantity(1).Equal(qty(8)))
	require.True(t, repo.quantity(2).Equal(qty(9)))
	require.Empty(t, repo.transactions(1))
	require.Empty(t, repo.transactions(2))
}

func TestStockTallyJSONAcceptsExplicitZero(t *testing.T) {
	repo := newMemoryRepo(Item{ID: 1, Quantity: qty(8)})
	router := newTestRouter(repo)

	req := httptest.NewRequest(http.MethodPost, "/stock-tally", strings.NewReader(`{"entries":[{"item_id":1,"quantity":0}]}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-Perms", shared.PermInventoryEdit)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, repo.quantity(1).IsZero())
	txns := repo.transactions(1)
	require.Len(t, txns, 1)
	require.Equal(t, TransactionWasted, txns[0].Type)
}

func TestStockTallyRequiresEditPermission(t *testing.T) {
	router := newTestRouter(newMemoryRepo())
	req := httptest.NewRequest(http.MethodPost, "/stock-tally", strings.NewReader(`{"entries":[]}`))
	req.Header.Set("X-Test-Perms", shared.PermInventoryView)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdjustmentEndpointMapsErrors(t *testing.T) {
	repo := newMemoryRepo(Item{ID: 1, Quantity: qty(2)})
	router := newTestRouter(repo)

	req := httptest.NewRequest(http.MethodPost, "/items/1/adjustments", strings.NewReader(`{"type":"WASTED","quantity":5}`))
	req.Header.Set("X-Test-Perms", shared.PermInventoryEdit)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/items/7/adjustments", strings.NewReader(`{"type":"ADDED","quantity":5}`))
	req.Header.Set("X-Test-Perms", shared.PermInventoryEdit)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/items/1/adjustments", strings.NewReader(`{"type":"RESERVED","quantity":1}`))
	req.Header.Set("X-Test-Perms", shared.PermInventoryEdit)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
