package handler

import (
	"vtupay/internal/adapter/http/dto"
	"vtupay/internal/adapter/http/middleware"
	"vtupay/internal/core/domain"
	"vtupay/internal/core/ports"
	"vtupay/pkg/apperror"
	"vtupay/pkg/response"

	"github.com/gin-gonic/gin"
)

// PurchaseHandler serves VTU purchases and bank withdrawals. Both verify
// the transaction PIN, open a pending ledger entry and hand it to the
// settlement orchestrator in one request.
type PurchaseHandler struct {
	wallets    ports.WalletService
	ledger     ports.LedgerService
	settlement ports.SettlementService
	withdrawal domain.FeePolicy
}

// NewPurchaseHandler creates a new purchase handler.
func NewPurchaseHandler(
	wallets ports.WalletService,
	ledger ports.LedgerService,
	settlement ports.SettlementService,
	withdrawal domain.FeePolicy,
) *PurchaseHandler {
	return &PurchaseHandler{
		wallets:    wallets,
		ledger:     ledger,
		settlement: settlement,
		withdrawal: withdrawal,
	}
}

// purchasable rejects types that have dedicated endpoints or no
// provider-side settlement.
func purchasable(t domain.TransactionType) bool {
	switch t {
	case domain.TypeFundWallet, domain.TypeWalletTransfer, domain.TypeWithdrawal:
		return false
	}
	return t.IsValid()
}

// Purchase handles POST /api/v1/purchases.
func (h *PurchaseHandler) Purchase(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	txnType := domain.TransactionType(req.Type)
	if !purchasable(txnType) {
		response.Error(c, apperror.ErrInvalidTransactionType())
		return
	}

	if err := h.wallets.VerifyPin(c.Request.Context(), userID, req.Pin); err != nil {
		response.Error(c, err)
		return
	}

	txn, err := h.ledger.Create(c.Request.Context(), ports.CreateTransactionSpec{
		UserID:   userID,
		Type:     txnType,
		Amount:   req.Amount,
		Metadata: req.Details,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	settled, err := h.settlement.Settle(c.Request.Context(), txn.Reference, req.Provider)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, settled)
}

// Withdraw handles POST /api/v1/withdrawals.
func (h *PurchaseHandler) Withdraw(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.WithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	if err := h.wallets.VerifyPin(c.Request.Context(), userID, req.Pin); err != nil {
		response.Error(c, err)
		return
	}

	txn, err := h.ledger.Create(c.Request.Context(), ports.CreateTransactionSpec{
		UserID: userID,
		Type:   domain.TypeWithdrawal,
		Amount: req.Amount,
		Fee:    h.withdrawal.FeeFor(req.Amount),
		Metadata: domain.Metadata{
			Withdrawal: &domain.WithdrawalDetails{
				BankCode:      req.BankCode,
				AccountNumber: req.AccountNumber,
				AccountName:   req.AccountName,
			},
		},
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	settled, err := h.settlement.Settle(c.Request.Context(), txn.Reference, "")
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, settled)
}

// Retry handles POST /api/v1/purchases/:reference/retry. Only the owner
// of a failed, funds-reserved entry may retry it.
func (h *PurchaseHandler) Retry(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	reference := c.Param("reference")
	txn, err := h.ledger.FindByReference(c.Request.Context(), reference)
	if err != nil {
		response.Error(c, err)
		return
	}
	if txn.UserID != userID {
		response.Error(c, apperror.ErrTransactionNotFound())
		return
	}

	retried, err := h.settlement.Retry(c.Request.Context(), reference)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, retried)
}
