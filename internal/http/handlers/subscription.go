package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/storybook-backend/internal/http/response"
	"github.com/yungbote/storybook-backend/internal/services"
)

type SubscriptionHandler struct {
	subs services.SubscriptionService
}

func NewSubscriptionHandler(subs services.SubscriptionService) *SubscriptionHandler {
	return &SubscriptionHandler{subs: subs}
}

// GET /api/subscription/plans
func (h *SubscriptionHandler) Plans(c *gin.Context) {
	response.RespondOK(c, gin.H{"plans": h.subs.Plans()})
}

// GET /api/subscription
func (h *SubscriptionHandler) Status(c *gin.Context) {
	userID, ok := requestUserID(c)
	if !ok {
		return
	}
	status, err := h.subs.Status(c.Request.Context(), userID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, status)
}

// POST /api/subscription/upgrade
func (h *SubscriptionHandler) Upgrade(c *gin.Context) {
	userID, ok := requestUserID(c)
	if !ok {
		return
	}
	var req struct {
		PlanID string `json:"plan_id" binding:"required,oneof=basic premium"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondBindError(c, err)
		return
	}
	checkout, err := h.subs.StartUpgrade(c.Request.Context(), userID, req.PlanID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"checkout": checkout})
}

// POST /api/subscription/cancel
func (h *SubscriptionHandler) Cancel(c *gin.Context) {
	userID, ok := requestUserID(c)
	if !ok {
		return
	}
	status, err := h.subs.Cancel(c.Request.Context(), userID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, status)
}
