package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/storybook-backend/internal/http/response"
	"github.com/yungbote/storybook-backend/internal/platform/apierr"
	"github.com/yungbote/storybook-backend/internal/services"
)

type StoryHandler struct {
	stories services.StoryService
	export  services.ExportService
}

func NewStoryHandler(stories services.StoryService, export services.ExportService) *StoryHandler {
	return &StoryHandler{stories: stories, export: export}
}

// POST /api/stories
func (h *StoryHandler) Create(c *gin.Context) {
	userID, ok := requestUserID(c)
	if !ok {
		return
	}
	var req services.CreateStoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondBindError(c, err)
		return
	}
	story, err := h.stories.Create(c.Request.Context(), userID, req)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"story": story})
}

// GET /api/stories?limit=&offset=
func (h *StoryHandler) List(c *gin.Context) {
	userID, ok := requestUserID(c)
	if !ok {
		return
	}
	limit := queryInt(c, "limit", 20, 1, 100)
	offset := queryInt(c, "offset", 0, 0, 1<<30)
	list, err := h.stories.List(c.Request.Context(), userID, limit, offset)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{
		"stories": list.Stories,
		"total":   list.Total,
		"limit":   limit,
		"offset":  offset,
	})
}

// GET /api/stories/:id
func (h *StoryHandler) Get(c *gin.Context) {
	userID, ok := requestUserID(c)
	if !ok {
		return
	}
	storyID, ok := uuidParam(c, "id", "invalid_story_id")
	if !ok {
		return
	}
	story, err := h.stories.Get(c.Request.Context(), userID, storyID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"story": story})
}

// DELETE /api/stories/:id
func (h *StoryHandler) Delete(c *gin.Context) {
	userID, ok := requestUserID(c)
	if !ok {
		return
	}
	storyID, ok := uuidParam(c, "id", "invalid_story_id")
	if !ok {
		return
	}
	if err := h.stories.Delete(c.Request.Context(), userID, storyID); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"ok": true})
}

// PATCH /api/stories/:id/pages/:index
func (h *StoryHandler) UpdatePage(c *gin.Context) {
	userID, ok := requestUserID(c)
	if !ok {
		return
	}
	storyID, ok := uuidParam(c, "id", "invalid_story_id")
	if !ok {
		return
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		response.RespondAPIError(c, apierr.Validation("invalid_page_index", "page index must be a non-negative integer"))
		return
	}
	var req struct {
		Text string `json:"text" binding:"required,max=2000"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondBindError(c, err)
		return
	}
	page, err := h.stories.UpdatePageText(c.Request.Context(), userID, storyID, index, req.Text)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"page": page})
}

// POST /api/stories/:id/illustrations queues the illustration job.
func (h *StoryHandler) RequestIllustrations(c *gin.Context) {
	userID, ok := requestUserID(c)
	if !ok {
		return
	}
	storyID, ok := uuidParam(c, "id", "invalid_story_id")
	if !ok {
		return
	}
	job, err := h.stories.RequestIllustrations(c.Request.Context(), userID, storyID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"job": job})
}

// POST /api/stories/:id/export
func (h *StoryHandler) Export(c *gin.Context) {
	userID, ok := requestUserID(c)
	if !ok {
		return
	}
	storyID, ok := uuidParam(c, "id", "invalid_story_id")
	if !ok {
		return
	}
	out, err := h.export.Export(c.Request.Context(), userID, storyID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, out)
}
