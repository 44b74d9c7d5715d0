package handlers

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/storybook-backend/internal/http/response"
	"github.com/yungbote/storybook-backend/internal/platform/apierr"
	"github.com/yungbote/storybook-backend/internal/platform/cache"
	"github.com/yungbote/storybook-backend/internal/prompts"
)

const themesCacheKey = "catalog:themes"

// CatalogHandler serves the theme catalog and the prompt template stats.
type CatalogHandler struct {
	cache     cache.Cache
	ttl       time.Duration
	optimizer *prompts.Optimizer
}

func NewCatalogHandler(c cache.Cache, ttl time.Duration, optimizer *prompts.Optimizer) *CatalogHandler {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CatalogHandler{cache: c, ttl: ttl, optimizer: optimizer}
}

// GET /api/themes
func (h *CatalogHandler) ListThemes(c *gin.Context) {
	ctx := c.Request.Context()
	var themes []prompts.Theme
	if !cache.GetJSON(ctx, h.cache, themesCacheKey, &themes) {
		themes = prompts.Themes()
		cache.SetJSON(ctx, h.cache, themesCacheKey, themes, h.ttl)
	}
	response.RespondOK(c, gin.H{"themes": themes})
}

// GET /api/prompts/templates?category=
func (h *CatalogHandler) TemplateStats(c *gin.Context) {
	response.RespondOK(c, gin.H{"templates": h.optimizer.Stats(c.Query("category"))})
}

type templateFeedbackRequest struct {
	Success     *bool    `json:"success" binding:"required"`
	Quality     *float64 `json:"quality" binding:"required,gte=0,lte=10"`
	Consistency *float64 `json:"consistency" binding:"required,gte=0,lte=10"`
}

// POST /api/prompts/templates/:id/feedback
func (h *CatalogHandler) TemplateFeedback(c *gin.Context) {
	var req templateFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondBindError(c, err)
		return
	}
	id := c.Param("id")
	if err := h.optimizer.RecordUse(id, *req.Success, *req.Quality, *req.Consistency); err != nil {
		if errors.Is(err, prompts.ErrUnknownTemplate) {
			response.RespondAPIError(c, apierr.NotFound("template_not_found", "prompt template %q not found", id))
			return
		}
		response.RespondAPIError(c, err)
		return
	}
	stats, _ := h.optimizer.TemplateStats(id)
	response.RespondOK(c, gin.H{"template": stats})
}
