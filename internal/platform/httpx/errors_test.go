package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/cabinetworks/mto/internal/shared"
)

func TestRespondErrorStatusCodes(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{shared.NotFoundf("item %d", 4), http.StatusNotFound},
		{shared.InvalidQuantityf("quantity must be positive"), http.StatusUnprocessableEntity},
		{shared.ConflictingStatef("mto deleted"), http.StatusConflict},
		{fmt.Errorf("%w: bad body", ErrValidation), http.StatusBadRequest},
		{ErrUnauthorized, http.StatusUnauthorized},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, tc.err)
		require.Equal(t, tc.status, rec.Code, tc.err.Error())
		require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	}
}

func TestRespondErrorInsufficientStockCarriesFigures(t *testing.T) {
	rec := httptest.NewRecorder()
	err := fmt.Errorf("reserve: %w", shared.NewInsufficientStock(7, decimal.NewFromInt(5), decimal.NewFromInt(8)))
	RespondError(rec, err)

	require.Equal(t, http.StatusConflict, rec.Code)
	var body ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, int64(7), body.ItemID)
	require.Equal(t, "5", body.Available)
	require.Equal(t, "8", body.Requested)
	require.Equal(t, "3", body.Shortage)
}

func TestValidateCollectsFields(t *testing.T) {
	type payload struct {
		ItemID int64 `json:"item_id" validate:"required"`
	}
	err := Validate(payload{})
	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	require.Equal(t, "required", valErr.Fields["ItemID"])
	require.ErrorIs(t, err, ErrValidation)

	rec := httptest.NewRecorder()
	RespondError(rec, err)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
