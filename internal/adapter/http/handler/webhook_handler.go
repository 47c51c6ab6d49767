package handler

import (
	"vtupay/internal/adapter/http/dto"
	"vtupay/internal/core/ports"
	"vtupay/pkg/apperror"
	"vtupay/pkg/response"

	"github.com/gin-gonic/gin"
)

// WebhookHandler receives gateway callbacks. Signature verification has
// already happened in middleware; the handler only dispatches events to
// the reconciler and answers 200 so the gateway stops redelivering.
type WebhookHandler struct {
	reconciler ports.ReconcilerService
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(reconciler ports.ReconcilerService) *WebhookHandler {
	return &WebhookHandler{reconciler: reconciler}
}

// Handle processes POST /api/v1/webhooks/payment.
func (h *WebhookHandler) Handle(c *gin.Context) {
	var payload dto.WebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	ctx := c.Request.Context()
	var err error
	switch payload.Event {
	case dto.EventPaymentSuccess:
		err = h.reconciler.ReconcilePaymentSuccess(ctx, payload.Reference, payload.Amount)
	case dto.EventPaymentFailed:
		err = h.reconciler.ReconcilePaymentFailure(ctx, payload.Reference)
	case dto.EventTransferFailed:
		err = h.reconciler.ReconcileTransferFailure(ctx, payload.Reference)
	case dto.EventTransferSuccess:
		err = h.reconciler.ReconcileTransferSuccess(ctx, payload.Reference)
	default:
		response.Error(c, apperror.Validation("unknown webhook event"))
		return
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"message": "processed"})
}
