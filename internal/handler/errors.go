package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/brewloyal/api/internal/service"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// backendErrorResponse carries a database rejection back to the caller
// so staff can act on it.
type backendErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
	Hint   string `json:"hint,omitempty"`
	Code   string `json:"code,omitempty"`
}

var errorStatuses = []struct {
	err    error
	status int
}{
	{service.ErrEmptyItems, http.StatusBadRequest},
	{service.ErrInvalidQuantity, http.StatusBadRequest},
	{service.ErrInvalidPrice, http.StatusBadRequest},
	{service.ErrNegativeDiscount, http.StatusBadRequest},
	{service.ErrDiscountExceedsGross, http.StatusBadRequest},
	{service.ErrNoOrdersSelected, http.StatusBadRequest},
	{service.ErrNoItemsSelected, http.StatusBadRequest},
	{service.ErrInvalidItemIndex, http.StatusBadRequest},
	{service.ErrDuplicateItemIndex, http.StatusBadRequest},
	{service.ErrPasscodeIncomplete, http.StatusBadRequest},

	{service.ErrStaffInactive, http.StatusUnauthorized},
	{service.ErrPasscodeLocked, http.StatusTooManyRequests},

	{service.ErrOrderNotFound, http.StatusNotFound},
	{service.ErrRewardNotFound, http.StatusNotFound},
	{service.ErrOutletNotFound, http.StatusNotFound},

	{service.ErrPaymentSettled, http.StatusConflict},
	{service.ErrInvalidTransition, http.StatusConflict},
	{service.ErrNotRedeemable, http.StatusConflict},
	{service.ErrAlreadyRedeemed, http.StatusConflict},
	{service.ErrRewardAlreadyRedeemed, http.StatusConflict},
	{service.ErrKitchenClosed, http.StatusConflict},
	{service.ErrInvalidKitchenTransition, http.StatusConflict},
	{service.ErrKitchenConflict, http.StatusConflict},
	{service.ErrNotReady, http.StatusConflict},
	{service.ErrAlreadyNotified, http.StatusConflict},

	{service.ErrInvalidConfirmToken, http.StatusUnprocessableEntity},
}

// writeServiceError maps err to a response. Unknown errors are logged
// under op and hidden behind a 500.
func writeServiceError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, service.ErrInvalidPasscode) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid passcode."})
		return
	}

	for _, m := range errorStatuses {
		if errors.Is(err, m.err) {
			writeJSON(w, m.status, map[string]string{"error": err.Error()})
			return
		}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		writeJSON(w, http.StatusUnprocessableEntity, backendErrorResponse{
			Error:  pgErr.Message,
			Detail: pgErr.Detail,
			Hint:   pgErr.Hint,
			Code:   pgErr.Code,
		})
		return
	}

	// A conditional update that matched nothing: the row changed underneath.
	if errors.Is(err, pgx.ErrNoRows) {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "record was changed or removed, refresh and retry"})
		return
	}

	log.Printf("ERROR: %s: %v", op, err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("ERROR: failed to encode JSON response: %v", err)
	}
}
