package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	jobtypes "github.com/yungbote/storybook-backend/internal/domain/jobs"
	"github.com/yungbote/storybook-backend/internal/http/response"
	"github.com/yungbote/storybook-backend/internal/platform/dbctx"
	"github.com/yungbote/storybook-backend/internal/services"
)

type JobHandler struct {
	jobs services.JobService
}

func NewJobHandler(jobs services.JobService) *JobHandler {
	return &JobHandler{jobs: jobs}
}

// GET /api/jobs/:id
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID, ok := uuidParam(c, "id", "invalid_job_id")
	if !ok {
		return
	}
	job, err := h.jobs.GetByIDForRequestUser(dbctx.Of(c.Request.Context()), jobID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"job": job})
}

// GET /api/stories/:id/job?type=story_illustrate|story_export
func (h *JobHandler) LatestForStory(c *gin.Context) {
	storyID, ok := uuidParam(c, "id", "invalid_story_id")
	if !ok {
		return
	}
	jobType := strings.TrimSpace(c.DefaultQuery("type", jobtypes.TypeStoryIllustrate))
	job, err := h.jobs.LatestForStory(dbctx.Of(c.Request.Context()), storyID, jobType)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"job": job})
}
