// Package dto defines the request and response shapes of the HTTP API.
package dto

import (
	"vtupay/internal/core/domain"

	"github.com/google/uuid"
)

// SetPinRequest is the body of POST /api/v1/wallet/pin.
type SetPinRequest struct {
	Pin string `json:"pin" binding:"required"`
}

// FundRequest is the body of POST /api/v1/wallet/fund. It opens a pending
// funding entry; the credit lands when the gateway webhook confirms.
type FundRequest struct {
	Amount int64 `json:"amount" binding:"required,gt=0"`
}

// LockRequest is the body of POST /api/v1/wallet/lock.
type LockRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// PurchaseRequest is the body of POST /api/v1/purchases. Details carries
// the service-specific payload matching Type.
type PurchaseRequest struct {
	Type     string          `json:"type" binding:"required"`
	Amount   int64           `json:"amount" binding:"required,gt=0"`
	Pin      string          `json:"pin" binding:"required"`
	Provider string          `json:"provider"` // optional preferred provider
	Details  domain.Metadata `json:"details"`
}

// WithdrawRequest is the body of POST /api/v1/withdrawals.
type WithdrawRequest struct {
	Amount        int64  `json:"amount" binding:"required,gt=0"`
	Pin           string `json:"pin" binding:"required"`
	BankCode      string `json:"bank_code" binding:"required"`
	AccountNumber string `json:"account_number" binding:"required"`
	AccountName   string `json:"account_name"`
}

// TransferRequest is the body of POST /api/v1/transfers.
type TransferRequest struct {
	RecipientID uuid.UUID `json:"recipient_id" binding:"required"`
	Amount      int64     `json:"amount" binding:"required,gt=0"`
	Pin         string    `json:"pin" binding:"required"`
	Description string    `json:"description"`
}

// RetryRequest is the body of POST /api/v1/purchases/:reference/retry.
type RetryRequest struct {
	Provider string `json:"provider"` // optional preferred provider
}

// WebhookPayload is the body every gateway callback delivers.
type WebhookPayload struct {
	Event     string `json:"event" binding:"required"`
	Reference string `json:"reference" binding:"required"`
	Amount    int64  `json:"amount"`
}

// Webhook event names.
const (
	EventPaymentSuccess  = "payment.success"
	EventPaymentFailed   = "payment.failed"
	EventTransferFailed  = "transfer.failed"
	EventTransferSuccess = "transfer.success"
)

// TransferResponse is returned by POST /api/v1/transfers.
type TransferResponse struct {
	Reference     string              `json:"reference"`
	Amount        int64               `json:"amount"`
	Fee           int64               `json:"fee"`
	SenderBalance int64               `json:"sender_balance"`
	Debit         *domain.Transaction `json:"debit"`
	Credit        *domain.Transaction `json:"credit"`
}

// ListResponse wraps a transaction page.
type ListResponse struct {
	Items    []domain.Transaction `json:"items"`
	Total    int64                `json:"total"`
	Page     int                  `json:"page"`
	PageSize int                  `json:"page_size"`
}
