package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/storybook-backend/internal/http/response"
	"github.com/yungbote/storybook-backend/internal/platform/apierr"
	"github.com/yungbote/storybook-backend/internal/platform/logger"
	"github.com/yungbote/storybook-backend/internal/services"
)

const (
	maxWebhookBody  = 1 << 20
	signatureHeader = "X-Razorpay-Signature"
)

type PaymentHandler struct {
	log      *logger.Logger
	payments services.PaymentService
}

func NewPaymentHandler(log *logger.Logger, payments services.PaymentService) *PaymentHandler {
	return &PaymentHandler{log: log.With("handler", "PaymentHandler"), payments: payments}
}

// POST /api/payments/orders
func (h *PaymentHandler) CreateOrder(c *gin.Context) {
	userID, ok := requestUserID(c)
	if !ok {
		return
	}
	var req services.StoryOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondBindError(c, err)
		return
	}
	checkout, err := h.payments.CreateStoryOrder(c.Request.Context(), userID, req)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"checkout": checkout})
}

// POST /api/payments/verify
func (h *PaymentHandler) Verify(c *gin.Context) {
	userID, ok := requestUserID(c)
	if !ok {
		return
	}
	var req services.VerifyCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondBindError(c, err)
		return
	}
	order, err := h.payments.VerifyCheckout(c.Request.Context(), userID, req)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"order": order})
}

// GET /api/orders
func (h *PaymentHandler) ListOrders(c *gin.Context) {
	userID, ok := requestUserID(c)
	if !ok {
		return
	}
	orders, err := h.payments.ListOrders(c.Request.Context(), userID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"orders": orders})
}

// POST /api/webhooks/razorpay. The signature covers the exact bytes sent,
// so the body is read raw and never re-encoded.
func (h *PaymentHandler) Webhook(c *gin.Context) {
	raw, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		response.RespondAPIError(c, apierr.Validation("invalid_webhook_body", "webhook body could not be read"))
		return
	}
	if err := h.payments.HandleWebhook(c.Request.Context(), raw, c.GetHeader(signatureHeader)); err != nil {
		if apierr.IsKind(err, apierr.KindAuth) {
			h.log.Warn("webhook signature rejected", "remote_ip", c.ClientIP())
		}
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"received": true})
}
