// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/cabinetworks/mto/internal/shared"
)

// Sentinel errors for the transport layer.
var (
	ErrValidation   = errors.New("validation failed")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	var (
		stockErr *shared.InsufficientStockError
		valErr   *ValidationError
	)
	switch {
	case errors.As(err, &valErr):
		RespondValidation(w, valErr)
	case errors.As(err, &stockErr):
		JSON(w, http.StatusConflict, ProblemDetail{
			Type:      "insufficient-stock",
			Title:     "Insufficient Stock",
			Status:    http.StatusConflict,
			Detail:    stockErr.Error(),
			ItemID:    stockErr.ItemID,
			Available: stockErr.Available.String(),
			Requested: stockErr.Requested.String(),
			Shortage:  stockErr.Shortage.String(),
		})
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrInvalidQuantity):
		Problem(w, http.StatusUnprocessableEntity, "Invalid Quantity", err.Error())
	case errors.Is(err, shared.ErrConflictingState):
		Problem(w, http.StatusConflict, "Conflicting State", err.Error())
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, ErrUnauthorized):
		Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
