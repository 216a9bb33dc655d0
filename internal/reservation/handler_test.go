package reservation

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

	"github.com/cabinetworks/mto/internal/mto"
	"github.com/cabinetworks/mto/internal/platform/httpx"
	"github.com/cabinetworks/mto/internal/rbac"
	"github.com/cabinetworks/mto/internal/shared"
)

func newHandlerRouter(deps Deps) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	deps.Logger = logger
	h := NewHandler(logger, NewService(deps), rbac.Middleware{Logger: logger})
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := &shared.Actor{ID: 8, Permissions: strings.Split(r.Header.Get("X-Test-Perms"), ",")}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithActor(r.Context(), actor)))
		})
	})
	h.MountRoutes(r)
	return r
}

func postReservation(router http.Handler, body, perms, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/reservations", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-Perms", perms)
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestReserveEndpointCreatesReservation(t *testing.T) {
	repo := fixture(10)
	router := newHandlerRouter(Deps{Repo: repo, Resolver: &stubResolver{}})

	rec := postReservation(router, `{"item_id":1,"mto_line_id":10,"quantity":"4","notes":"carcass run"}`, shared.PermInventoryEdit, "")
	require.Equal(t, http.StatusCreated, rec.Code)

	var result ReserveResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.True(t, result.ItemQuantity.Equal(qty(6)))
	require.Equal(t, int64(100), result.MTOID)
	require.Equal(t, mto.StatusPartiallyOrdered, result.Status)
	require.Equal(t, int64(8), result.Reservation.CreatedBy)
	require.Equal(t, "carcass run", result.Reservation.Notes)
	require.True(t, repo.quantity(1).Equal(qty(6)))
}

func TestReserveEndpointReportsShortage(t *testing.T) {
	repo := fixture(6)
	router := newHandlerRouter(Deps{Repo: repo})

	rec := postReservation(router, `{"item_id":1,"mto_line_id":10,"quantity":10}`, shared.PermInventoryEdit, "")
	require.Equal(t, http.StatusConflict, rec.Code)

	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	require.Equal(t, "insufficient-stock", problem.Type)
	require.Equal(t, int64(1), problem.ItemID)
	require.Equal(t, "6", problem.Available)
	require.Equal(t, "10", problem.Requested)
	require.Equal(t, "4", problem.Shortage)
	require.True(t, repo.quantity(1).Equal(qty(6)))
	require.Empty(t, repo.reservations)
}

func TestReserveEndpointPassesIdempotencyKey(t *testing.T) {
	repo := fixture(10)
	idem := &memoryIdempotency{}
	router := newHandlerRouter(Deps{Repo: repo, Idempotency: idem})
	body := `{"item_id":1,"mto_line_id":10,"quantity":"2"}`

	require.Equal(t, http.StatusCreated, postReservation(router, body, shared.PermInventoryEdit, " order-42 ").Code)
	require.True(t, idem.keys["reservation:order-42"])

	require.Equal(t, http.StatusConflict, postReservation(router, body, shared.PermInventoryEdit, "order-42").Code)
	require.Equal(t, http.StatusCreated, postReservation(router, body, shared.PermInventoryEdit, "").Code)
	require.True(t, repo.quantity(1).Equal(qty(6)))
	require.Len(t, repo.reservations, 2)
}

func TestReserveEndpointRejectsBadInput(t *testing.T) {
	repo := fixture(10)
	router := newHandlerRouter(Deps{Repo: repo})

	cases := []struct {
		body   string
		status int
	}{
		{`{"mto_line_id":10,"quantity":"1"}`, http.StatusBadRequest},
		{`{"item_id":1,"quantity":"1"}`, http.StatusBadRequest},
		{`{"item_id":1,"mto_line_id":10}`, http.StatusUnprocessableEntity},
		{`{"item_id":1,"mto_line_id":10,"quantity":"-3"}`, http.StatusUnprocessableEntity},
		{`{"item_id":1,"mto_line_id":77,"quantity":"1"}`, http.StatusNotFound},
		{`not json`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		rec := postReservation(router, tc.body, shared.PermInventoryEdit, "")
		require.Equal(t, tc.status, rec.Code, tc.body)
	}
	require.Equal(t, 1, repo.txCount)
	require.True(t, repo.quantity(1).Equal(qty(10)))
}

func TestReservationRoutesEnforcePermissions(t *testing.T) {
	repo := fixture(10)
	router := newHandlerRouter(Deps{Repo: repo})
	body := `{"item_id":1,"mto_line_id":10,"quantity":"1"}`

	require.Equal(t, http.StatusForbidden, postReservation(router, body, shared.PermMTOEdit, "").Code)
	require.Equal(t, http.StatusForbidden, postReservation(router, body, shared.PermInventoryView, "").Code)
	require.Empty(t, repo.reservations)

	for _, tc := range []struct {
		path, perms string
		status      int
	}{
		{"/mto-lines/10/reservations", shared.PermMTOView, http.StatusOK},
		{"/items/1/reservations", shared.PermInventoryView, http.StatusOK},
		{"/items/1/reservations", shared.PermProcurementView, http.StatusForbidden},
		{"/items/x/reservations", shared.PermInventoryView, http.StatusBadRequest},
	} {
		req := httptest.NewRequest(http.MethodGet, tc.path, nil)
		req.Header.Set("X-Test-Perms", tc.perms)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, tc.status, rec.Code, tc.path)
	}
}
