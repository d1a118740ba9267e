package application

import (
	"context"
	"errors"
	"net/http"

	"github.com/DanielPopoola/wallet-ledger/internal/domain"
)

// ToHTTPStatus and ToErrorCode map an application/domain error to the
// facade's wire representation, grounded on teacher's
// internal/application/error_categorizer.go. Retry decisions are made
// closer to the errors they classify rather than through a shared
// category table: the bank gateway's per-attempt retries use the
// tri-state TransferOutcome classifier in internal/infrastructure/bank
// (grounded on original_source's exact _normalize_response logic), and the
// executor's lock-contention retries check postgres.IsLockContention
// directly, since that decision depends on a Postgres error code no
// generic category would capture correctly.
func ToHTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}

	if svcErr, ok := IsServiceError(err); ok {
		return svcErr.HTTPStatus
	}

	switch {
	case errors.Is(err, domain.ErrInvalidAmount), errors.Is(err, domain.ErrInvalidExecuteAt):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidTransactionState), errors.Is(err, domain.ErrIdempotencyConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInsufficientBalance):
		return http.StatusConflict
	case errors.Is(err, domain.ErrWalletNotFound), errors.Is(err, domain.ErrTransactionNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	}

	return http.StatusInternalServerError
}

func ToErrorCode(err error) string {
	if svcErr, ok := IsServiceError(err); ok {
		return svcErr.Code
	}
	switch {
	case errors.Is(err, domain.ErrInvalidTransactionState):
		return "INVALID_TRANSACTION_STATE"
	case errors.Is(err, domain.ErrInvalidAmount):
		return "INVALID_AMOUNT"
	case errors.Is(err, domain.ErrInvalidExecuteAt):
		return "INVALID_EXECUTE_AT"
	case errors.Is(err, domain.ErrIdempotencyConflict):
		return "IDEMPOTENCY_CONFLICT"
	case errors.Is(err, domain.ErrInsufficientBalance):
		return "INSUFFICIENT_BALANCE"
	case errors.Is(err, domain.ErrWalletNotFound):
		return "WALLET_NOT_FOUND"
	case errors.Is(err, domain.ErrTransactionNotFound):
		return "TRANSACTION_NOT_FOUND"
	case errors.Is(err, context.DeadlineExceeded):
		return "TIMEOUT"
	}
	return "INTERNAL_ERROR"
}
