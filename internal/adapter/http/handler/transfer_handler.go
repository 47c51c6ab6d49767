package handler

import (
	"vtupay/internal/adapter/http/dto"
	"vtupay/internal/adapter/http/middleware"
	"vtupay/internal/core/ports"
	"vtupay/pkg/apperror"
	"vtupay/pkg/response"

	"github.com/gin-gonic/gin"
)

// TransferHandler serves peer wallet transfers.
type TransferHandler struct {
	wallets   ports.WalletService
	transfers ports.TransferService
}

// NewTransferHandler creates a new transfer handler.
func NewTransferHandler(wallets ports.WalletService, transfers ports.TransferService) *TransferHandler {
	return &TransferHandler{wallets: wallets, transfers: transfers}
}

// Transfer handles POST /api/v1/transfers.
func (h *TransferHandler) Transfer(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	if err := h.wallets.VerifyPin(c.Request.Context(), userID, req.Pin); err != nil {
		response.Error(c, err)
		return
	}

	result, err := h.transfers.Transfer(c.Request.Context(), ports.TransferRequest{
		SenderID:    userID,
		RecipientID: req.RecipientID,
		Amount:      req.Amount,
		Description: req.Description,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.TransferResponse{
		Reference:     result.Debit.Reference,
		Amount:        result.Debit.Amount,
		Fee:           result.FeeEntry.TotalAmount,
		SenderBalance: result.SenderWallet.Balance,
		Debit:         result.Debit,
		Credit:        result.Credit,
	})
}
