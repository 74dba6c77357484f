package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/slhventures/investorledger/pkg/ledger"
)

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}

// respondError maps a ledger error kind to a status code. The message keeps
// the domain context (requested amount, current balance) rather than a
// generic failure string.
func respondError(ctx *gin.Context, err error) {
	status, code := statusForError(err)
	ctx.JSON(status, errorResponse(code, err.Error()))
}

func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, ledger.ErrInvalidAmount):
		return http.StatusBadRequest, "invalid_amount"
	case errors.Is(err, ledger.ErrInvalidOperation):
		return http.StatusBadRequest, "invalid_operation"
	case errors.Is(err, ledger.ErrUnauthorized):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, ledger.ErrInvalidState):
		return http.StatusConflict, "invalid_state"
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity, "insufficient_funds"
	case errors.Is(err, ledger.ErrNotImplemented):
		return http.StatusNotImplemented, "not_implemented"
	case errors.Is(err, ledger.ErrStorageUnavailable):
		return http.StatusServiceUnavailable, "storage_unavailable"
	case errors.Is(err, ledger.ErrInvalidAccountID),
		errors.Is(err, ledger.ErrInvalidCurrency),
		errors.Is(err, ledger.ErrInvalidBucket),
		errors.Is(err, ledger.ErrInvalidDirection),
		errors.Is(err, ledger.ErrInvalidReason),
		errors.Is(err, ledger.ErrInvalidMetadataJSON),
		errors.Is(err, ledger.ErrInvalidDay),
		errors.Is(err, ledger.ErrInvalidPolicy),
		errors.Is(err, ledger.ErrInvalidStatus):
		return http.StatusBadRequest, "invalid_request"
	}
	return http.StatusInternalServerError, "internal_error"
}
