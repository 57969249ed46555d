package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"time"

	"github.com/ruralpay/ledger/internal/services"
)

const maxBodyBytes = 1_048_576 // 1 MB

// decodeJSON reads exactly one JSON object into dst, rejecting unknown
// fields. It writes the error response itself and reports whether decoding
// succeeded.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		log.Printf("[HTTP] invalid request body on %s: %v", r.URL.Path, err)
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeServiceError maps service errors onto HTTP statuses. Causes of
// unexpected errors are never sent to the client.
func writeServiceError(w http.ResponseWriter, err error) {
	var lockedErr *services.LockedError
	switch {
	case errors.As(err, &lockedErr):
		wait := lockedErr.RetryAfter(time.Now())
		w.Header().Set("Retry-After", fmt.Sprintf("%d", int(math.Max(1, wait.Seconds()))))
		services.SendErrorResponse(w, err.Error(), http.StatusLocked, nil)

	case errors.Is(err, services.ErrValidation):
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)

	case errors.Is(err, services.ErrInvalidAmount),
		errors.Is(err, services.ErrAmountTooLarge),
		errors.Is(err, services.ErrInvalidEmail),
		errors.Is(err, services.ErrSelfTransfer),
		errors.Is(err, services.ErrRecipientNotFound),
		errors.Is(err, services.ErrInvalidPIN),
		errors.Is(err, services.ErrSamePIN):
		services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)

	case errors.Is(err, services.ErrAccountNotFound):
		services.SendErrorResponse(w, err.Error(), http.StatusNotFound, nil)

	case errors.Is(err, services.ErrInsufficientFunds),
		errors.Is(err, services.ErrDailyWithdrawalLimitExceeded),
		errors.Is(err, services.ErrDailyTransferLimitExceeded),
		errors.Is(err, services.ErrRecipientTransferFrequencyExceeded),
		errors.Is(err, services.ErrAdministratorImmutable),
		errors.Is(err, services.ErrBalanceCeiling),
		errors.Is(err, services.ErrAccountLocked):
		services.SendErrorResponse(w, err.Error(), http.StatusUnprocessableEntity, nil)

	case errors.Is(err, services.ErrWrongCredentials),
		errors.Is(err, services.ErrIncorrectPIN):
		services.SendErrorResponse(w, err.Error(), http.StatusUnauthorized, nil)

	case errors.Is(err, services.ErrEmailTaken):
		services.SendErrorResponse(w, err.Error(), http.StatusConflict, nil)

	case errors.Is(err, services.ErrTransactionFailed):
		services.SendErrorResponse(w, err.Error(), http.StatusInternalServerError, nil)

	default:
		log.Printf("[HTTP] unexpected error: %v", err)
		services.SendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
	}
}
