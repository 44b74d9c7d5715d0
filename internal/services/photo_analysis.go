package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/ksuid"

	"github.com/yungbote/storybook-backend/internal/platform/apierr"
	"github.com/yungbote/storybook-backend/internal/platform/cache"
	"github.com/yungbote/storybook-backend/internal/platform/gcp"
	"github.com/yungbote/storybook-backend/internal/platform/llm"
	"github.com/yungbote/storybook-backend/internal/platform/logger"
)

const (
	MaxPhotoBytes = 10 << 20

	GenericChildDescription = "a cheerful child with a bright smile and curious eyes"

	photoCacheTTL = 24 * time.Hour
)

const photoSystemPrompt = `You describe children's photos for a picture book illustrator.
Describe only what is visible: hair color and style, eye color, skin tone, approximate age range,
clothing, and distinctive features such as glasses or freckles.
Never guess or mention names, locations, or anything identifying.
Answer with one warm, concise paragraph of at most 60 words.`

const photoUserPrompt = "Describe the child in this photo so an illustrator can draw them consistently."

var photoExtensions = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
}

// describerOrder is the preference order when picking a fallback provider.
var describerOrder = []string{llm.ProviderOpenAI, llm.ProviderAnthropic, llm.ProviderGemini}

type PhotoAnalysis struct {
	Description string `json:"description"`
	Provider    string `json:"provider"`
	Fallback    bool   `json:"fallback"`
	PhotoKey    string `json:"photo_key,omitempty"`
	PhotoURL    string `json:"photo_url,omitempty"`
}

type PhotoAnalysisService interface {
	Analyze(ctx context.Context, userID uuid.UUID, image []byte, mime string, provider string) (*PhotoAnalysis, error)
}

type photoAnalysisService struct {
	log       *logger.Logger
	describer map[string]llm.VisionDescriber
	precheck  gcp.FaceDetector
	bucket    gcp.BucketService
	cache     cache.Cache
}

// NewPhotoAnalysisService takes the configured describers keyed by provider
// name. precheck, bucket and c may be nil.
func NewPhotoAnalysisService(
	baseLog *logger.Logger,
	describers []llm.VisionDescriber,
	precheck gcp.FaceDetector,
	bucket gcp.BucketService,
	c cache.Cache,
) PhotoAnalysisService {
	m := make(map[string]llm.VisionDescriber, len(describers))
	for _, d := range describers {
		if d != nil {
			m[d.Name()] = d
		}
	}
	return &photoAnalysisService{
		log:       baseLog.With("service", "PhotoAnalysisService"),
		describer: m,
		precheck:  precheck,
		bucket:    bucket,
		cache:     c,
	}
}

func normalizeMime(mime string) string {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	if mime == "image/jpg" {
		return "image/jpeg"
	}
	return mime
}

func (s *photoAnalysisService) Analyze(ctx context.Context, userID uuid.UUID, image []byte, mime string, provider string) (*PhotoAnalysis, error) {
	mime = normalizeMime(mime)
	ext, ok := photoExtensions[mime]
	if !ok {
		return nil, apierr.ValidationFields([]apierr.FieldError{{Field: "photo", Rule: "mime", Message: "photo must be a JPEG, PNG or WebP image"}})
	}
	if len(image) == 0 {
		return nil, apierr.ValidationFields([]apierr.FieldError{{Field: "photo", Rule: "required", Message: "photo is empty"}})
	}
	if len(image) > MaxPhotoBytes {
		return nil, apierr.ValidationFields([]apierr.FieldError{{Field: "photo", Rule: "max", Message: "photo must be at most 10 MB"}})
	}
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		provider = llm.ProviderOpenAI
	}
	if !knownDescriber(provider) {
		return nil, apierr.ValidationFields([]apierr.FieldError{{Field: "provider", Rule: "oneof", Message: "provider must be openai, anthropic or gemini"}})
	}

	if s.precheck != nil {
		check, err := s.precheck.CheckPhoto(ctx, image)
		if err != nil {
			// An unavailable precheck does not block the upload.
			s.log.Warn("photo precheck unavailable", "error", err)
		} else if !check.OK {
			return nil, apierr.Validation("photo_rejected", "%s", check.Reason)
		}
	}

	out := &PhotoAnalysis{}
	if s.bucket != nil {
		key := fmt.Sprintf("%s%s.%s", photoPrefix(userID), ksuid.New().String(), ext)
		if err := s.bucket.UploadFile(ctx, gcp.BucketCategoryPhoto, key, bytes.NewReader(image)); err != nil {
			return nil, apierr.External("storage_error", fmt.Errorf("upload photo: %w", err))
		}
		out.PhotoKey = key
		out.PhotoURL = s.bucket.GetPublicURL(gcp.BucketCategoryPhoto, key)
	}

	sum := sha256.Sum256(image)
	digest := hex.EncodeToString(sum[:])

	desc, used, err := s.describe(ctx, provider, digest, image, mime)
	if err != nil {
		s.log.Warn("photo analysis failed", "provider", provider, "error", err)
		if fb := s.fallbackFor(provider); fb != "" {
			desc, used, err = s.describe(ctx, fb, digest, image, mime)
			if err != nil {
				s.log.Warn("fallback photo analysis failed", "provider", fb, "error", err)
			}
		}
	}
	if err != nil {
		out.Description = GenericChildDescription
		out.Provider = provider
		out.Fallback = true
		return out, nil
	}
	out.Description = desc
	out.Provider = used
	return out, nil
}

func knownDescriber(name string) bool {
	for _, p := range describerOrder {
		if p == name {
			return true
		}
	}
	return false
}

// fallbackFor returns the first configured provider other than requested.
func (s *photoAnalysisService) fallbackFor(requested string) string {
	for _, p := range describerOrder {
		if p == requested {
			continue
		}
		if _, ok := s.describer[p]; ok {
			return p
		}
	}
	return ""
}

func photoCacheKey(digest, provider string) string {
	return "photo:" + digest + ":" + provider
}

func (s *photoAnalysisService) describe(ctx context.Context, provider, digest string, image []byte, mime string) (string, string, error) {
	d, ok := s.describer[provider]
	if !ok {
		return "", "", fmt.Errorf("provider %s is not configured", provider)
	}
	key := photoCacheKey(digest, provider)
	var cached string
	if cache.GetJSON(ctx, s.cache, key, &cached) && cached != "" {
		return cached, provider, nil
	}
	text, err := d.GenerateTextWithImages(ctx, photoSystemPrompt, photoUserPrompt, []llm.ImageInput{{
		ImageURL: llm.DataURL(mime, image),
		Detail:   "low",
		Bytes:    image,
		MimeType: mime,
	}})
	if err != nil {
		return "", "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", "", fmt.Errorf("provider %s returned an empty description", provider)
	}
	cache.SetJSON(ctx, s.cache, key, text, photoCacheTTL)
	return text, provider, nil
}

// photoPrefix is the bucket prefix holding one user's uploads.
func photoPrefix(userID uuid.UUID) string {
	return "photos/" + userID.String() + "/"
}

// ownsPhotoKey rejects keys outside the user's prefix, including ones that
// climb out of it with "..".
func ownsPhotoKey(userID uuid.UUID, key string) bool {
	return userID != uuid.Nil && strings.HasPrefix(key, photoPrefix(userID)) && !strings.Contains(key, "..")
}
