package apperror

import (
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// ---- Wallet (WAL) ----

func ErrWalletNotFound() *AppError {
	return New("WAL_001", "Wallet not found", http.StatusNotFound)
}

func ErrWalletLocked() *AppError {
	return New("WAL_002", "Wallet is locked", http.StatusForbidden)
}

func ErrInsufficientBalance() *AppError {
	return New("WAL_003", "Insufficient wallet balance", http.StatusPaymentRequired)
}

func ErrAlreadyLocked() *AppError {
	return New("WAL_004", "Wallet is already locked", http.StatusConflict)
}

func ErrNotLocked() *AppError {
	return New("WAL_005", "Wallet is not locked", http.StatusConflict)
}

// ---- Ledger (TXN) ----

func ErrTransactionNotFound() *AppError {
	return New("TXN_001", "Transaction not found", http.StatusNotFound)
}

func ErrInvalidTransition(from, to string) *AppError {
	return New("TXN_002", fmt.Sprintf("Invalid status transition %s -> %s", from, to), http.StatusConflict)
}

func ErrAlreadyProcessed() *AppError {
	return New("TXN_003", "Transaction has already been processed", http.StatusConflict)
}

func ErrAlreadyRefunded() *AppError {
	return New("TXN_004", "Transaction has already been refunded", http.StatusConflict)
}

func ErrDuplicateReference() *AppError {
	return New("TXN_005", "Transaction reference already exists", http.StatusConflict)
}

func ErrMaxRetriesExceeded() *AppError {
	return New("TXN_006", "Maximum retry attempts reached", http.StatusUnprocessableEntity)
}

func ErrInvalidAmount() *AppError {
	return New("TXN_007", "Invalid amount", http.StatusBadRequest)
}

func ErrInvalidTransactionType() *AppError {
	return New("TXN_008", "Unknown transaction type", http.StatusBadRequest)
}

// ---- Providers (PRV) ----

func ErrProviderUnavailable() *AppError {
	return New("PRV_001", "No eligible provider for this service", http.StatusServiceUnavailable)
}

func ErrProviderRejected(provider string) *AppError {
	return New("PRV_002", fmt.Sprintf("Provider %s rejected the request", provider), http.StatusBadGateway)
}

func ErrProviderTimeout(provider string) *AppError {
	return New("PRV_003", fmt.Sprintf("Provider %s timed out", provider), http.StatusGatewayTimeout)
}

// ---- Transfers (TRF) ----

func ErrInvalidRecipient() *AppError {
	return New("TRF_001", "Sender and recipient must differ", http.StatusBadRequest)
}

// ---- Auth boundary (AUTH) ----

func ErrInvalidToken() *AppError {
	return New("AUTH_001", "Invalid or expired token", http.StatusUnauthorized)
}

func ErrInvalidPin() *AppError {
	return New("AUTH_002", "Invalid transaction PIN", http.StatusForbidden)
}

func ErrInvalidSignature() *AppError {
	return New("AUTH_003", "Invalid webhook signature", http.StatusUnauthorized)
}

// ---- System (SYS) ----

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}

// Validation returns a request validation error.
func Validation(message string) *AppError {
	return New("SYS_002", message, http.StatusBadRequest)
}
