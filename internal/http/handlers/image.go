package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/storybook-backend/internal/http/response"
	"github.com/yungbote/storybook-backend/internal/services"
)

type ImageHandler struct {
	illustration services.IllustrationService
}

func NewImageHandler(illustration services.IllustrationService) *ImageHandler {
	return &ImageHandler{illustration: illustration}
}

// POST /api/images/generate
func (h *ImageHandler) Generate(c *gin.Context) {
	var req struct {
		Prompt string `json:"prompt" binding:"required,max=1000"`
		Size   string `json:"size" binding:"omitempty,oneof=1024x1024 1024x1792 1792x1024"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondBindError(c, err)
		return
	}
	img, err := h.illustration.GenerateSingle(c.Request.Context(), req.Prompt, req.Size)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, img)
}
