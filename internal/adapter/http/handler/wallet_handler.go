// Package handler wires HTTP routes to the core services.
package handler

import (
	"strconv"

	"vtupay/internal/adapter/http/dto"
	"vtupay/internal/adapter/http/middleware"
	"vtupay/internal/core/domain"
	"vtupay/internal/core/ports"
	"vtupay/pkg/apperror"
	"vtupay/pkg/response"

	"github.com/gin-gonic/gin"
)

// WalletHandler serves wallet state, funding initiation and the
// transaction history endpoints.
type WalletHandler struct {
	wallets ports.WalletService
	ledger  ports.LedgerService
}

// NewWalletHandler creates a new wallet handler.
func NewWalletHandler(wallets ports.WalletService, ledger ports.LedgerService) *WalletHandler {
	return &WalletHandler{wallets: wallets, ledger: ledger}
}

// Create handles POST /api/v1/wallet. Idempotent per user.
func (h *WalletHandler) Create(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	w, err := h.wallets.CreateWallet(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, w)
}

// Get handles GET /api/v1/wallet.
func (h *WalletHandler) Get(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	w, err := h.wallets.GetWallet(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, w)
}

// SetPin handles POST /api/v1/wallet/pin.
func (h *WalletHandler) SetPin(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.SetPinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	if err := h.wallets.SetPin(c.Request.Context(), userID, req.Pin); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"message": "transaction pin set"})
}

// Fund handles POST /api/v1/wallet/fund. It opens a pending funding entry
// and returns its reference; the balance credit happens when the payment
// gateway confirms via webhook.
func (h *WalletHandler) Fund(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.FundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	txn, err := h.ledger.Create(c.Request.Context(), ports.CreateTransactionSpec{
		UserID: userID,
		Type:   domain.TypeFundWallet,
		Amount: req.Amount,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, txn)
}

// Lock handles POST /api/v1/wallet/lock.
func (h *WalletHandler) Lock(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.LockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	if err := h.wallets.Lock(c.Request.Context(), userID, req.Reason); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"message": "wallet locked"})
}

// Unlock handles POST /api/v1/wallet/unlock.
func (h *WalletHandler) Unlock(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	if err := h.wallets.Unlock(c.Request.Context(), userID); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"message": "wallet unlocked"})
}

// ListTransactions handles GET /api/v1/transactions with optional
// status, type, from, to, page and page_size query filters.
func (h *WalletHandler) ListTransactions(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	params := ports.TransactionListParams{UserID: userID}
	if s := c.Query("status"); s != "" {
		status := domain.TransactionStatus(s)
		params.Status = &status
	}
	if t := c.Query("type"); t != "" {
		txnType := domain.TransactionType(t)
		if !txnType.IsValid() {
			response.Error(c, apperror.ErrInvalidTransactionType())
			return
		}
		params.Type = &txnType
	}
	if v := c.Query("from"); v != "" {
		ts, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			response.Error(c, apperror.Validation("from must be a unix timestamp"))
			return
		}
		params.From = &ts
	}
	if v := c.Query("to"); v != "" {
		ts, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			response.Error(c, apperror.Validation("to must be a unix timestamp"))
			return
		}
		params.To = &ts
	}
	params.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	params.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))

	items, total, err := h.ledger.List(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.ListResponse{
		Items:    items,
		Total:    total,
		Page:     params.Page,
		PageSize: params.PageSize,
	})
}

// GetTransaction handles GET /api/v1/transactions/:reference. Only the
// owner may read an entry.
func (h *WalletHandler) GetTransaction(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	txn, err := h.ledger.FindByReference(c.Request.Context(), c.Param("reference"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if txn.UserID != userID {
		response.Error(c, apperror.ErrTransactionNotFound())
		return
	}
	response.OK(c, txn)
}

// Stats handles GET /api/v1/transactions/stats.
func (h *WalletHandler) Stats(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	stats, err := h.ledger.Stats(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, stats)
}
