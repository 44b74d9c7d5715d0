package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/storybook-backend/internal/data/repos"
	types "github.com/yungbote/storybook-backend/internal/domain"
	jobtypes "github.com/yungbote/storybook-backend/internal/domain/jobs"
	storytypes "github.com/yungbote/storybook-backend/internal/domain/story"
	"github.com/yungbote/storybook-backend/internal/platform/apierr"
	"github.com/yungbote/storybook-backend/internal/platform/dbctx"
	"github.com/yungbote/storybook-backend/internal/platform/gcp"
	"github.com/yungbote/storybook-backend/internal/platform/llm"
	"github.com/yungbote/storybook-backend/internal/platform/logger"
	"github.com/yungbote/storybook-backend/internal/prompts"
)

const (
	maxPageTextLen     = 2000
	maxCustomElements  = 500
	storySchemaName    = "story_draft"
	storyEntityType    = "story"
	defaultStoriesPage = 20
)

type CreateStoryRequest struct {
	Title            string `json:"title" binding:"omitempty,max=120"`
	ChildName        string `json:"child_name" binding:"required,max=60"`
	ChildAge         int    `json:"child_age" binding:"required,min=1,max=12"`
	ChildGender      string `json:"child_gender" binding:"omitempty,oneof=boy girl male female other"`
	ChildDescription string `json:"child_description" binding:"omitempty,max=1000"`
	PhotoKey         string `json:"photo_key" binding:"omitempty,max=300"`
	ThemeID          string `json:"theme_id" binding:"required"`
	PageCount        int    `json:"page_count" binding:"omitempty,min=1,max=32"`
	CustomElements   string `json:"custom_elements" binding:"omitempty,max=500"`
}

type StoryList struct {
	Stories []*types.Story `json:"stories"`
	Total   int64          `json:"total"`
}

// storyDraft is the structured output requested from the text model.
type storyDraft struct {
	Title string           `json:"title"`
	Pages []storyDraftPage `json:"pages"`
}

type storyDraftPage struct {
	Text  string `json:"text"`
	Scene string `json:"scene"`
}

type StoryService interface {
	Create(ctx context.Context, userID uuid.UUID, req CreateStoryRequest) (*types.Story, error)
	List(ctx context.Context, userID uuid.UUID, limit, offset int) (*StoryList, error)
	Get(ctx context.Context, userID, storyID uuid.UUID) (*types.Story, error)
	Delete(ctx context.Context, userID, storyID uuid.UUID) error
	UpdatePageText(ctx context.Context, userID, storyID uuid.UUID, index int, text string) (*types.StoryPage, error)
	RequestIllustrations(ctx context.Context, userID, storyID uuid.UUID) (*types.JobRun, error)
}

type storyService struct {
	db      *gorm.DB
	log     *logger.Logger
	stories repos.StoryRepo
	subs    SubscriptionService
	jobs    JobService
	text    llm.TextGenerator
	builder *prompts.Builder
	bucket  gcp.BucketService
	notify  StoryNotifier
}

func NewStoryService(
	db *gorm.DB,
	baseLog *logger.Logger,
	stories repos.StoryRepo,
	subs SubscriptionService,
	jobs JobService,
	text llm.TextGenerator,
	builder *prompts.Builder,
	bucket gcp.BucketService,
	notify StoryNotifier,
) StoryService {
	if notify == nil {
		notify = NewNotifier(nil)
	}
	return &storyService{
		db:      db,
		log:     baseLog.With("service", "StoryService"),
		stories: stories,
		subs:    subs,
		jobs:    jobs,
		text:    text,
		builder: builder,
		bucket:  bucket,
		notify:  notify,
	}
}

func (s *storyService) Create(ctx context.Context, userID uuid.UUID, req CreateStoryRequest) (*types.Story, error) {
	theme, fields := validateStoryRequest(userID, &req)
	if len(fields) > 0 {
		return nil, apierr.ValidationFields(fields)
	}
	if s.text == nil {
		return nil, apierr.External("text_provider_unavailable", errors.New("no text generation provider configured"))
	}

	status, err := s.subs.Status(ctx, userID)
	if err != nil {
		return nil, err
	}
	pageCount := prompts.ClampPageCount(req.PageCount, status.Plan.MaxPages)

	if err := s.subs.ConsumeStory(ctx, userID); err != nil {
		return nil, err
	}
	story, err := s.generate(ctx, userID, req, theme, pageCount)
	if err != nil {
		if rerr := s.subs.ReleaseStory(ctx, userID); rerr != nil {
			s.log.Error("release story allowance failed", "user_id", userID, "error", rerr)
		}
		return nil, err
	}
	s.log.Info("story created", "user_id", userID, "story_id", story.ID, "theme_id", theme.ID, "pages", len(story.Pages))
	s.notify.StoryUpdated(userID, story)
	return story, nil
}

func validateStoryRequest(userID uuid.UUID, req *CreateStoryRequest) (prompts.Theme, []apierr.FieldError) {
	var fields []apierr.FieldError
	req.ChildName = strings.TrimSpace(req.ChildName)
	req.ThemeID = strings.TrimSpace(req.ThemeID)
	req.PhotoKey = strings.TrimSpace(req.PhotoKey)
	if req.PhotoKey != "" && !ownsPhotoKey(userID, req.PhotoKey) {
		fields = append(fields, apierr.FieldError{Field: "photo_key", Rule: "owner", Message: "photo_key must reference a photo you uploaded"})
	}
	if req.ChildName == "" {
		fields = append(fields, apierr.FieldError{Field: "child_name", Rule: "required", Message: "child_name is required"})
	}
	if req.ChildAge < 1 || req.ChildAge > 12 {
		fields = append(fields, apierr.FieldError{Field: "child_age", Rule: "range", Message: "child_age must be between 1 and 12"})
	}
	if utf8.RuneCountInString(req.CustomElements) > maxCustomElements {
		fields = append(fields, apierr.FieldError{Field: "custom_elements", Rule: "max", Message: "custom_elements is too long"})
	}
	theme, ok := prompts.ThemeByID(req.ThemeID)
	if !ok {
		fields = append(fields, apierr.FieldError{Field: "theme_id", Rule: "oneof", Message: "unknown theme"})
	}
	return theme, fields
}

func childOf(req CreateStoryRequest) prompts.Child {
	return prompts.Child{
		Name:        req.ChildName,
		Age:         req.ChildAge,
		Gender:      req.ChildGender,
		Description: strings.TrimSpace(req.ChildDescription),
	}
}

func (s *storyService) generate(ctx context.Context, userID uuid.UUID, req CreateStoryRequest, theme prompts.Theme, pageCount int) (*types.Story, error) {
	child := childOf(req)
	sp := prompts.BuildStoryPrompt(prompts.StoryRequest{
		Child:          child,
		Title:          req.Title,
		PageCount:      pageCount,
		CustomElements: req.CustomElements,
	}, theme)
	s.log.Debug("story prompt built", "tokens", sp.Tokens, "pages", pageCount)

	draft, err := s.draft(ctx, sp)
	if err != nil {
		return nil, err
	}
	if len(draft.Pages) > pageCount {
		draft.Pages = draft.Pages[:pageCount]
	}

	themeJSON, err := json.Marshal(theme)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = strings.TrimSpace(draft.Title)
	}
	if title == "" {
		title = fmt.Sprintf("%s and the %s", child.Name, theme.Name)
	}

	story := &types.Story{
		ID:               uuid.New(),
		UserID:           userID,
		Title:            title,
		ChildName:        child.Name,
		ChildAge:         child.Age,
		ChildGender:      child.Gender,
		ChildDescription: child.Description,
		PhotoKey:         req.PhotoKey,
		PhotoURL:         s.photoURL(req.PhotoKey),
		ThemeID:          theme.ID,
		Theme:            datatypes.JSON(themeJSON),
		CustomElements:   strings.TrimSpace(req.CustomElements),
		Status:           storytypes.StatusTextReady,
		TextGenerated:    true,
	}
	for i, p := range draft.Pages {
		scene := strings.TrimSpace(p.Scene)
		if scene == "" {
			scene = prompts.ExtractScene(p.Text)
		}
		ip := s.builder.ImagePrompt(child, theme, scene, i)
		story.Pages = append(story.Pages, &types.StoryPage{
			StoryID:     story.ID,
			Index:       i,
			Text:        strings.TrimSpace(p.Text),
			Scene:       scene,
			ImagePrompt: ip.Text,
			ImageStatus: storytypes.ImagePending,
		})
	}
	if _, err := s.stories.Create(dbctx.Of(ctx), story); err != nil {
		return nil, apierr.Database(err)
	}
	return story, nil
}

func (s *storyService) photoURL(key string) string {
	if key == "" || s.bucket == nil {
		return ""
	}
	return s.bucket.GetPublicURL(gcp.BucketCategoryPhoto, key)
}

// draft asks for the story JSON, retrying once when the output cannot be
// parsed even after stripping code fences.
func (s *storyService) draft(ctx context.Context, sp prompts.StoryPrompt) (*storyDraft, error) {
	schema := llm.SchemaFor[storyDraft]()
	var lastErr error
	for attempt := 1; attempt <= 2; attempt++ {
		raw, err := s.text.GenerateJSON(ctx, sp.System, sp.User, storySchemaName, schema)
		if err != nil {
			return nil, apierr.External("story_generation_failed", err)
		}
		d, err := parseStoryDraft(raw)
		if err == nil {
			return d, nil
		}
		lastErr = err
		s.log.Warn("story draft unparseable", "attempt", attempt, "error", err)
	}
	return nil, apierr.External("story_generation_failed", lastErr)
}

func parseStoryDraft(raw string) (*storyDraft, error) {
	var d storyDraft
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		if err := json.Unmarshal([]byte(cleanJSON(raw)), &d); err != nil {
			return nil, fmt.Errorf("decode story draft: %w", err)
		}
	}
	pages := d.Pages[:0]
	for _, p := range d.Pages {
		if strings.TrimSpace(p.Text) != "" {
			pages = append(pages, p)
		}
	}
	d.Pages = pages
	if len(d.Pages) == 0 {
		return nil, errors.New("story draft has no pages")
	}
	return &d, nil
}

// cleanJSON strips markdown fences and anything outside the outermost object.
func cleanJSON(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return strings.TrimSpace(s)
	}
	return s[start : end+1]
}

func (s *storyService) List(ctx context.Context, userID uuid.UUID, limit, offset int) (*StoryList, error) {
	if limit <= 0 || limit > 100 {
		limit = defaultStoriesPage
	}
	stories, total, err := s.stories.ListByUser(dbctx.Of(ctx), userID, limit, offset)
	if err != nil {
		return nil, apierr.Database(err)
	}
	if stories == nil {
		stories = []*types.Story{}
	}
	return &StoryList{Stories: stories, Total: total}, nil
}

func (s *storyService) Get(ctx context.Context, userID, storyID uuid.UUID) (*types.Story, error) {
	story, err := s.stories.GetByIDForUser(dbctx.Of(ctx), userID, storyID)
	if err != nil {
		return nil, notFoundOr(err, "story_not_found", "story not found")
	}
	return story, nil
}

func (s *storyService) Delete(ctx context.Context, userID, storyID uuid.UUID) error {
	ok, err := s.stories.SoftDeleteForUser(dbctx.Of(ctx), userID, storyID)
	if err != nil {
		return apierr.Database(err)
	}
	if !ok {
		return apierr.NotFound("story_not_found", "story not found")
	}
	if s.bucket != nil {
		prefix := "illustrations/" + storyID.String() + "/"
		if err := s.bucket.DeletePrefix(ctx, gcp.BucketCategoryIllustration, prefix); err != nil {
			s.log.Warn("illustration cleanup failed", "story_id", storyID, "error", err)
		}
	}
	s.log.Info("story deleted", "user_id", userID, "story_id", storyID)
	return nil
}

// storyTheme prefers the live catalog entry and falls back to the copy saved
// with the story.
func storyTheme(story *types.Story) prompts.Theme {
	if t, ok := prompts.ThemeByID(story.ThemeID); ok {
		return t
	}
	var t prompts.Theme
	_ = json.Unmarshal(story.Theme, &t)
	if t.ID == "" {
		t.ID = story.ThemeID
	}
	return t
}

func storyChild(story *types.Story) prompts.Child {
	return prompts.Child{
		Name:        story.ChildName,
		Age:         story.ChildAge,
		Gender:      story.ChildGender,
		Description: story.ChildDescription,
	}
}

func (s *storyService) UpdatePageText(ctx context.Context, userID, storyID uuid.UUID, index int, text string) (*types.StoryPage, error) {
	text = strings.TrimSpace(text)
	if text == "" || utf8.RuneCountInString(text) > maxPageTextLen {
		return nil, apierr.ValidationFields([]apierr.FieldError{{Field: "text", Rule: "range", Message: "text must be between 1 and 2000 characters"}})
	}
	dbc := dbctx.Of(ctx)
	story, err := s.stories.GetByIDForUser(dbc, userID, storyID)
	if err != nil {
		return nil, notFoundOr(err, "story_not_found", "story not found")
	}
	if story.Status == storytypes.StatusIllustrating {
		return nil, apierr.Conflict("story_busy", "story is being illustrated")
	}
	if _, err := s.stories.GetPage(dbc, storyID, index); err != nil {
		return nil, notFoundOr(err, "page_not_found", "page not found")
	}
	scene := prompts.ExtractScene(text)
	ip := s.builder.ImagePrompt(storyChild(story), storyTheme(story), scene, index)
	if err := s.stories.UpdatePageFields(dbc, storyID, index, map[string]interface{}{
		"text":         text,
		"scene":        scene,
		"image_prompt": ip.Text,
		"image_status": storytypes.ImagePending,
		"image_url":    "",
		"image_key":    "",
	}); err != nil {
		return nil, notFoundOr(err, "page_not_found", "page not found")
	}
	return s.stories.GetPage(dbc, storyID, index)
}

func (s *storyService) RequestIllustrations(ctx context.Context, userID, storyID uuid.UUID) (*types.JobRun, error) {
	var job *types.JobRun
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		// the row lock makes concurrent requests for one story run the
		// active-job check one at a time
		story, err := s.stories.LockForUser(dbc, userID, storyID)
		if err != nil {
			return notFoundOr(err, "story_not_found", "story not found")
		}
		if !story.TextGenerated || len(story.Pages) == 0 {
			return apierr.Conflict("story_not_ready", "story text has not been generated")
		}
		active, err := s.jobs.HasActive(dbc, userID, jobtypes.TypeStoryIllustrate, storyEntityType, storyID)
		if err != nil {
			return apierr.Database(err)
		}
		if active {
			return apierr.Conflict("illustration_in_progress", "illustrations are already being generated")
		}
		if err := s.stories.UpdateFields(dbc, storyID, map[string]interface{}{
			"status": storytypes.StatusIllustrating,
			"error":  "",
		}); err != nil {
			return apierr.Database(err)
		}
		job, err = s.jobs.Enqueue(dbc, userID, jobtypes.TypeStoryIllustrate, storyEntityType, &storyID, map[string]any{
			"story_id": storyID.String(),
		})
		if err != nil {
			return apierr.Internal(err)
		}
		story.Status = storytypes.StatusIllustrating
		s.notify.StoryUpdated(userID, story)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}
