package handler

import (
	"vtupay/config"
	"vtupay/internal/adapter/http/middleware"
	"vtupay/internal/core/domain"
	"vtupay/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// maxBodyBytes caps inbound request bodies.
const maxBodyBytes = 1 << 20

// RouterDeps bundles everything the router needs.
type RouterDeps struct {
	Cfg        *config.Config
	Log        zerolog.Logger
	Wallets    ports.WalletService
	Ledger     ports.LedgerService
	Settlement ports.SettlementService
	Transfers  ports.TransferService
	Reconciler ports.ReconcilerService
	Tokens     ports.TokenService
	Signatures ports.SignatureService
	Checkers   []ports.HealthChecker
}

// SetupRouter builds the gin engine with the full route table.
func SetupRouter(deps RouterDeps) *gin.Engine {
	if deps.Cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(
		middleware.RequestID(),
		middleware.RequestLogger(deps.Log),
		middleware.Recovery(deps.Log),
		middleware.MaxBodySize(maxBodyBytes),
	)

	healthHandler := NewHealthHandler(deps.Checkers...)
	walletHandler := NewWalletHandler(deps.Wallets, deps.Ledger)
	withdrawalFees := domain.FeePolicy{
		Rate:    deps.Cfg.Fees.WithdrawalRate,
		Minimum: deps.Cfg.Fees.WithdrawalMinimum,
	}
	purchaseHandler := NewPurchaseHandler(deps.Wallets, deps.Ledger, deps.Settlement, withdrawalFees)
	transferHandler := NewTransferHandler(deps.Wallets, deps.Transfers)
	webhookHandler := NewWebhookHandler(deps.Reconciler)

	router.GET("/health", healthHandler.Check)

	v1 := router.Group("/api/v1")

	// Gateway callbacks authenticate by payload signature, not JWT.
	webhooks := v1.Group("/webhooks")
	webhooks.Use(middleware.WebhookSignature(deps.Signatures, deps.Cfg.Webhook.Secret))
	webhooks.POST("/payment", webhookHandler.Handle)

	authed := v1.Group("")
	authed.Use(middleware.JWTAuth(deps.Tokens))
	{
		authed.POST("/wallet", walletHandler.Create)
		authed.GET("/wallet", walletHandler.Get)
		authed.POST("/wallet/pin", walletHandler.SetPin)
		authed.POST("/wallet/fund", walletHandler.Fund)
		authed.POST("/wallet/lock", walletHandler.Lock)
		authed.POST("/wallet/unlock", walletHandler.Unlock)

		authed.GET("/transactions", walletHandler.ListTransactions)
		authed.GET("/transactions/stats", walletHandler.Stats)
		authed.GET("/transactions/:reference", walletHandler.GetTransaction)

		authed.POST("/purchases", purchaseHandler.Purchase)
		authed.POST("/purchases/:reference/retry", purchaseHandler.Retry)
		authed.POST("/withdrawals", purchaseHandler.Withdraw)

		authed.POST("/transfers", transferHandler.Transfer)
	}

	return router
}
