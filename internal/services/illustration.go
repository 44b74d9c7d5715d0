package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"strings"
	"time"

	"github.com/gen2brain/webp"
	"github.com/google/uuid"
	"github.com/segmentio/ksuid"

	"github.com/yungbote/storybook-backend/internal/data/repos"
	types "github.com/yungbote/storybook-backend/internal/domain"
	storytypes "github.com/yungbote/storybook-backend/internal/domain/story"
	"github.com/yungbote/storybook-backend/internal/platform/apierr"
	"github.com/yungbote/storybook-backend/internal/platform/dbctx"
	"github.com/yungbote/storybook-backend/internal/platform/gcp"
	"github.com/yungbote/storybook-backend/internal/platform/httpx"
	"github.com/yungbote/storybook-backend/internal/platform/llm"
	"github.com/yungbote/storybook-backend/internal/platform/logger"
)

const (
	DefaultImageCallDelay = time.Second
	defaultImageSize      = "1024x1024"
	webpQuality           = 85
	maxReferenceBytes     = MaxPhotoBytes
)

// pastel backgrounds for placeholder art, picked by page index.
var placeholderColors = []string{"#FDE2E4", "#E2ECE9", "#DFE7FD", "#FFF1E6", "#EAE4E9", "#E8F6EF"}

// PlaceholderSVG returns a data URL for the art shown when a page has no
// generated illustration.
func PlaceholderSVG(pageIndex int) string {
	if pageIndex < 0 {
		pageIndex = 0
	}
	bg := placeholderColors[pageIndex%len(placeholderColors)]
	svg := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" width="1024" height="1024" viewBox="0 0 1024 1024">`+
		`<rect width="1024" height="1024" fill="%s"/>`+
		`<circle cx="512" cy="430" r="140" fill="#ffffff" fill-opacity="0.6"/>`+
		`<text x="512" y="690" font-family="Georgia, serif" font-size="56" fill="#6b5b7b" text-anchor="middle">Illustration coming soon</text>`+
		`</svg>`, bg)
	return "data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString([]byte(svg))
}

// IllustrationProgress is called after every page, with the page's final state.
type IllustrationProgress func(done, total int, page *types.StoryPage)

type IllustrationResult struct {
	StoryID      uuid.UUID `json:"story_id"`
	Generated    int       `json:"generated"`
	Placeholders int       `json:"placeholders"`
	Skipped      int       `json:"skipped"`
}

type SingleImage struct {
	URL         string `json:"url"`
	Provider    string `json:"provider,omitempty"`
	Placeholder bool   `json:"placeholder"`
}

type IllustrationService interface {
	IllustrateStory(ctx context.Context, storyID uuid.UUID, progress IllustrationProgress) (*IllustrationResult, error)
	GenerateSingle(ctx context.Context, prompt, size string) (*SingleImage, error)
}

type IllustrationConfig struct {
	Provider string
	Delay    time.Duration
}

type illustrationService struct {
	log        *logger.Logger
	stories    repos.StoryRepo
	generators map[string]llm.ImageGenerator
	bucket     gcp.BucketService
	notify     StoryNotifier
	cfg        IllustrationConfig
	sleep      func(ctx context.Context, d time.Duration) error
}

func NewIllustrationService(
	baseLog *logger.Logger,
	stories repos.StoryRepo,
	generators []llm.ImageGenerator,
	bucket gcp.BucketService,
	notify StoryNotifier,
	cfg IllustrationConfig,
) IllustrationService {
	m := make(map[string]llm.ImageGenerator, len(generators))
	for _, g := range generators {
		if g != nil {
			m[g.Name()] = g
		}
	}
	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	if cfg.Provider == "" {
		cfg.Provider = llm.ProviderDalle
	}
	if cfg.Delay < 0 {
		cfg.Delay = 0
	}
	if notify == nil {
		notify = NewNotifier(nil)
	}
	return &illustrationService{
		log:        baseLog.With("service", "IllustrationService"),
		stories:    stories,
		generators: m,
		bucket:     bucket,
		notify:     notify,
		cfg:        cfg,
		sleep:      httpx.Sleep,
	}
}

// IllustrateStory renders pages one at a time, waiting cfg.Delay between
// vendor calls. Pages already generated are kept, so a retried job only
// fills the gaps. A failing page gets placeholder art and the run continues.
func (s *illustrationService) IllustrateStory(ctx context.Context, storyID uuid.UUID, progress IllustrationProgress) (*IllustrationResult, error) {
	dbc := dbctx.Of(ctx)
	story, err := s.stories.GetByID(dbc, storyID)
	if err != nil {
		return nil, notFoundOr(err, "story_not_found", "story not found")
	}
	log := s.log.With("story_id", storyID, "provider", s.cfg.Provider)
	gen := s.generators[s.cfg.Provider]
	if gen == nil {
		log.Warn("image provider not configured; using placeholders")
	}

	ref, refMime := s.referencePhoto(ctx, story)
	res := &IllustrationResult{StoryID: storyID}
	total := len(story.Pages)
	calls := 0

	for i, page := range story.Pages {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if page.ImageStatus == storytypes.ImageGenerated && page.ImageURL != "" {
			res.Skipped++
			if progress != nil {
				progress(i+1, total, page)
			}
			continue
		}

		var updates map[string]interface{}
		if gen != nil {
			if calls > 0 {
				if err := s.sleep(ctx, s.cfg.Delay); err != nil {
					return res, err
				}
			}
			calls++
			updates, err = s.renderPage(ctx, gen, story, page, ref, refMime)
			if err != nil {
				if ctx.Err() != nil {
					return res, ctx.Err()
				}
				log.Warn("page illustration failed", "page_index", page.Index, "error", err)
			}
		}
		if updates == nil {
			updates = map[string]interface{}{
				"image_url":    PlaceholderSVG(page.Index),
				"image_key":    "",
				"image_status": storytypes.ImagePlaceholder,
				"provider":     "",
			}
			res.Placeholders++
		} else {
			res.Generated++
		}
		if err := s.stories.UpdatePageFields(dbc, storyID, page.Index, updates); err != nil {
			return res, apierr.Database(err)
		}
		applyPageUpdates(page, updates)
		if progress != nil {
			progress(i+1, total, page)
		}
	}

	if err := s.stories.UpdateFields(dbc, storyID, map[string]interface{}{
		"status":           storytypes.StatusComplete,
		"images_generated": true,
		"error":            "",
	}); err != nil {
		return res, apierr.Database(err)
	}
	story.Status = storytypes.StatusComplete
	story.ImagesGenerated = true
	s.notify.StoryUpdated(story.UserID, story)
	log.Info("story illustrated", "generated", res.Generated, "placeholders", res.Placeholders, "skipped", res.Skipped)
	return res, nil
}

func applyPageUpdates(page *types.StoryPage, updates map[string]interface{}) {
	page.ImageURL, _ = updates["image_url"].(string)
	page.ImageKey, _ = updates["image_key"].(string)
	page.ImageStatus, _ = updates["image_status"].(string)
	page.Provider, _ = updates["provider"].(string)
}

func (s *illustrationService) renderPage(ctx context.Context, gen llm.ImageGenerator, story *types.Story, page *types.StoryPage, ref []byte, refMime string) (map[string]interface{}, error) {
	prompt := strings.TrimSpace(page.ImagePrompt)
	if prompt == "" {
		return nil, errors.New("page has no image prompt")
	}
	out, err := gen.GenerateImage(ctx, llm.ImageRequest{
		Prompt:        prompt,
		Size:          defaultImageSize,
		Reference:     ref,
		ReferenceMime: refMime,
	})
	if err != nil {
		return nil, err
	}
	if len(out.Bytes) == 0 {
		return nil, errors.New("provider returned no image")
	}
	key := fmt.Sprintf("illustrations/%s/%d-%s.webp", story.ID, page.Index, ksuid.New().String())
	url, key, err := s.store(ctx, key, out)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"image_url":    url,
		"image_key":    key,
		"image_status": storytypes.ImageGenerated,
		"provider":     gen.Name(),
	}, nil
}

// store re-encodes the image as WebP and uploads it under key. When the
// image cannot be decoded it is stored as returned, with key's extension
// adjusted. Without a bucket the image is returned inline as a data URL.
func (s *illustrationService) store(ctx context.Context, key string, img llm.ImageGeneration) (string, string, error) {
	data, mime := img.Bytes, img.MimeType
	if encoded, err := toWebP(img.Bytes); err == nil {
		data, mime = encoded, "image/webp"
	} else {
		s.log.Debug("webp re-encode skipped", "error", err)
		key = strings.TrimSuffix(key, ".webp") + extForMime(mime)
	}
	if s.bucket == nil {
		return llm.DataURL(mime, data), "", nil
	}
	if err := s.bucket.UploadFile(ctx, gcp.BucketCategoryIllustration, key, bytes.NewReader(data)); err != nil {
		return "", "", fmt.Errorf("upload illustration: %w", err)
	}
	return s.bucket.GetPublicURL(gcp.BucketCategoryIllustration, key), key, nil
}

func extForMime(mime string) string {
	if ext, ok := photoExtensions[normalizeMime(mime)]; ok {
		return "." + ext
	}
	return ".png"
}

func toWebP(raw []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, webp.Options{Lossless: false, Quality: webpQuality}); err != nil {
		return nil, fmt.Errorf("encode webp: %w", err)
	}
	return buf.Bytes(), nil
}

// referencePhoto loads the child's photo for providers that condition on it.
func (s *illustrationService) referencePhoto(ctx context.Context, story *types.Story) ([]byte, string) {
	if s.cfg.Provider != llm.ProviderGemini || s.bucket == nil || story.PhotoKey == "" {
		return nil, ""
	}
	if !ownsPhotoKey(story.UserID, story.PhotoKey) {
		s.log.Warn("reference photo outside owner prefix", "story_id", story.ID)
		return nil, ""
	}
	rc, err := s.bucket.DownloadFile(ctx, gcp.BucketCategoryPhoto, story.PhotoKey)
	if err != nil {
		s.log.Warn("reference photo unavailable", "story_id", story.ID, "error", err)
		return nil, ""
	}
	defer rc.Close()
	raw, err := io.ReadAll(io.LimitReader(rc, maxReferenceBytes))
	if err != nil {
		s.log.Warn("reference photo read failed", "story_id", story.ID, "error", err)
		return nil, ""
	}
	return raw, gcp.ContentTypeForKey(story.PhotoKey)
}

// GenerateSingle backs the direct image endpoint. It always uses DALL·E and
// answers with placeholder art when generation fails.
func (s *illustrationService) GenerateSingle(ctx context.Context, prompt, size string) (*SingleImage, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, apierr.ValidationFields([]apierr.FieldError{{Field: "prompt", Rule: "required", Message: "prompt is required"}})
	}
	if size == "" {
		size = defaultImageSize
	}
	gen := s.generators[llm.ProviderDalle]
	if gen == nil {
		return &SingleImage{URL: PlaceholderSVG(0), Placeholder: true}, nil
	}
	out, err := gen.GenerateImage(ctx, llm.ImageRequest{Prompt: prompt, Size: size})
	if err != nil || len(out.Bytes) == 0 {
		s.log.Warn("single image generation failed", "error", err)
		return &SingleImage{URL: PlaceholderSVG(0), Placeholder: true}, nil
	}
	key := fmt.Sprintf("illustrations/single/%s.webp", ksuid.New().String())
	url, _, err := s.store(ctx, key, out)
	if err != nil {
		s.log.Warn("single image store failed", "error", err)
		return &SingleImage{URL: PlaceholderSVG(0), Placeholder: true}, nil
	}
	return &SingleImage{URL: url, Provider: gen.Name()}, nil
}
