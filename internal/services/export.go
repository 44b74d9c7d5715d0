package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/fogleman/gg"
	"github.com/go-pdf/fpdf"
	"github.com/golang/freetype/truetype"
	"github.com/google/uuid"
	"github.com/segmentio/ksuid"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/storybook-backend/internal/data/repos"
	types "github.com/yungbote/storybook-backend/internal/domain"
	billing "github.com/yungbote/storybook-backend/internal/domain/billing"
	"github.com/yungbote/storybook-backend/internal/platform/apierr"
	"github.com/yungbote/storybook-backend/internal/platform/dbctx"
	"github.com/yungbote/storybook-backend/internal/platform/gcp"
	"github.com/yungbote/storybook-backend/internal/platform/httpx"
	"github.com/yungbote/storybook-backend/internal/platform/logger"
)

// A4 at 150 dpi.
const (
	pageWidthPx  = 1240
	pageHeightPx = 1754
	pageMarginPx = 100
	a4WidthMM    = 210.0
	a4HeightMM   = 297.0

	maxIllustrationBytes = 20 << 20
	exportDownloadLimit  = 4
)

type ExportResult struct {
	URL string `json:"url"`
	Key string `json:"key"`
}

type ExportService interface {
	Export(ctx context.Context, userID, storyID uuid.UUID) (*ExportResult, error)
}

type exportService struct {
	log     *logger.Logger
	stories repos.StoryRepo
	orders  repos.OrderRepo
	subs    SubscriptionService
	bucket  gcp.BucketService
	notify  StoryNotifier
	http    *http.Client
}

func NewExportService(
	baseLog *logger.Logger,
	stories repos.StoryRepo,
	orders repos.OrderRepo,
	subs SubscriptionService,
	bucket gcp.BucketService,
	notify StoryNotifier,
) ExportService {
	if notify == nil {
		notify = NewNotifier(nil)
	}
	return &exportService{
		log:     baseLog.With("service", "ExportService"),
		stories: stories,
		orders:  orders,
		subs:    subs,
		bucket:  bucket,
		notify:  notify,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *exportService) Export(ctx context.Context, userID, storyID uuid.UUID) (*ExportResult, error) {
	dbc := dbctx.Of(ctx)
	story, err := s.stories.GetByIDForUser(dbc, userID, storyID)
	if err != nil {
		return nil, notFoundOr(err, "story_not_found", "story not found")
	}
	if !story.TextGenerated || len(story.Pages) == 0 {
		return nil, apierr.Conflict("story_not_ready", "story text has not been generated")
	}
	if err := s.authorize(ctx, userID, storyID); err != nil {
		return nil, err
	}
	if s.bucket == nil {
		return nil, apierr.External("storage_unavailable", errors.New("object storage is not configured"))
	}

	images := s.downloadIllustrations(ctx, story.Pages)
	pdf, err := renderStoryPDF(story, images)
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("render pdf: %w", err))
	}

	key := fmt.Sprintf("exports/%s/%s.pdf", storyID, ksuid.New().String())
	if err := s.bucket.UploadFile(ctx, gcp.BucketCategoryExport, key, bytes.NewReader(pdf)); err != nil {
		return nil, apierr.External("storage_error", fmt.Errorf("upload pdf: %w", err))
	}
	url := s.bucket.GetPublicURL(gcp.BucketCategoryExport, key)
	if err := s.stories.UpdateFields(dbc, storyID, map[string]interface{}{
		"pdf_url": url,
		"pdf_key": key,
	}); err != nil {
		return nil, apierr.Database(err)
	}
	story.PDFURL, story.PDFKey = url, key
	s.notify.StoryUpdated(userID, story)
	s.log.Info("story exported", "story_id", storyID, "pages", len(story.Pages), "bytes", len(pdf))
	return &ExportResult{URL: url, Key: key}, nil
}

// authorize allows export when the plan includes it or a pdf order for the
// story has been paid.
func (s *exportService) authorize(ctx context.Context, userID, storyID uuid.UUID) error {
	status, err := s.subs.Status(ctx, userID)
	if err != nil {
		return err
	}
	if status.Plan.PDFExport {
		return nil
	}
	paid, err := s.orders.HasPaidForStory(dbctx.Of(ctx), userID, storyID, billing.FormatPDF)
	if err != nil {
		return apierr.Database(err)
	}
	if !paid {
		return apierr.Payment("export_not_included", "PDF export requires a paid plan or a PDF purchase")
	}
	return nil
}

// downloadIllustrations fetches page art concurrently. Missing or unreadable
// images come back as nil and render as an empty art box.
func (s *exportService) downloadIllustrations(ctx context.Context, pages []*types.StoryPage) []image.Image {
	out := make([]image.Image, len(pages))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(exportDownloadLimit)
	for i, p := range pages {
		g.Go(func() error {
			raw, err := s.fetchImage(gctx, p)
			if err != nil {
				s.log.Warn("illustration download failed", "story_id", p.StoryID, "page_index", p.Index, "error", err)
				return nil
			}
			if raw == nil {
				return nil
			}
			img, _, err := image.Decode(bytes.NewReader(raw))
			if err != nil {
				s.log.Warn("illustration decode failed", "story_id", p.StoryID, "page_index", p.Index, "error", err)
				return nil
			}
			out[i] = img
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (s *exportService) fetchImage(ctx context.Context, p *types.StoryPage) ([]byte, error) {
	if p.ImageKey != "" && s.bucket != nil {
		rc, err := s.bucket.DownloadFile(ctx, gcp.BucketCategoryIllustration, p.ImageKey)
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(io.LimitReader(rc, maxIllustrationBytes))
	}
	url := strings.TrimSpace(p.ImageURL)
	switch {
	case strings.HasPrefix(url, "http://"), strings.HasPrefix(url, "https://"):
		raw, _, err := httpx.Download(ctx, s.http, url, maxIllustrationBytes)
		return raw, err
	case strings.HasPrefix(url, "data:image/") && !strings.HasPrefix(url, "data:image/svg"):
		i := strings.Index(url, ";base64,")
		if i < 0 {
			return nil, nil
		}
		return base64.StdEncoding.DecodeString(url[i+len(";base64,"):])
	}
	return nil, nil
}

var (
	fontsOnce sync.Once
	fontsErr  error
	titleFont *truetype.Font
	bodyFont  *truetype.Font
)

func loadFonts() error {
	fontsOnce.Do(func() {
		if titleFont, fontsErr = truetype.Parse(gobold.TTF); fontsErr != nil {
			return
		}
		bodyFont, fontsErr = truetype.Parse(goregular.TTF)
	})
	return fontsErr
}

func face(f *truetype.Font, size float64) font.Face {
	return truetype.NewFace(f, &truetype.Options{Size: size, DPI: 72, Hinting: font.HintingNone})
}

var (
	paperColor = color.NRGBA{R: 0xFF, G: 0xFB, B: 0xF2, A: 0xFF}
	inkColor   = color.NRGBA{R: 0x3B, G: 0x33, B: 0x4A, A: 0xFF}
	boxColor   = color.NRGBA{R: 0xEA, G: 0xE4, B: 0xF2, A: 0xFF}
)

func renderStoryPDF(story *types.Story, images []image.Image) ([]byte, error) {
	if err := loadFonts(); err != nil {
		return nil, err
	}
	theme := storyTheme(story)

	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetTitle(story.Title, true)
	doc.SetAuthor("AI Storybook", true)
	doc.SetAutoPageBreak(false, 0)

	add := func(name string, dc *gg.Context) error {
		var buf bytes.Buffer
		if err := dc.EncodePNG(&buf); err != nil {
			return err
		}
		opts := fpdf.ImageOptions{ImageType: "PNG"}
		doc.AddPage()
		doc.RegisterImageOptionsReader(name, opts, &buf)
		doc.ImageOptions(name, 0, 0, a4WidthMM, a4HeightMM, false, opts, 0, "")
		return doc.Error()
	}

	if err := add("cover", renderCover(story, theme.Name)); err != nil {
		return nil, err
	}
	for i, p := range story.Pages {
		var img image.Image
		if i < len(images) {
			img = images[i]
		}
		if err := add(fmt.Sprintf("page-%d", p.Index), renderPage(p, img, i+1)); err != nil {
			return nil, err
		}
	}

	var out bytes.Buffer
	if err := doc.Output(&out); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func newPage() *gg.Context {
	dc := gg.NewContext(pageWidthPx, pageHeightPx)
	dc.SetColor(paperColor)
	dc.Clear()
	dc.SetColor(inkColor)
	return dc
}

func renderCover(story *types.Story, themeName string) *gg.Context {
	dc := newPage()
	w := float64(pageWidthPx - 2*pageMarginPx)
	cx := float64(pageWidthPx) / 2

	dc.SetColor(boxColor)
	dc.DrawRoundedRectangle(pageMarginPx, pageMarginPx, w, float64(pageHeightPx-2*pageMarginPx), 40)
	dc.Fill()

	dc.SetColor(inkColor)
	dc.SetFontFace(face(titleFont, 96))
	dc.DrawStringWrapped(story.Title, cx, 560, 0.5, 0.5, w-120, 1.3, gg.AlignCenter)

	dc.SetFontFace(face(bodyFont, 48))
	dc.DrawStringAnchored("A story for "+story.ChildName, cx, 980, 0.5, 0.5)
	if themeName != "" {
		dc.SetFontFace(face(bodyFont, 36))
		dc.DrawStringAnchored(themeName, cx, 1060, 0.5, 0.5)
	}
	return dc
}

func renderPage(p *types.StoryPage, img image.Image, number int) *gg.Context {
	dc := newPage()
	w := float64(pageWidthPx - 2*pageMarginPx)
	art := pageWidthPx - 2*pageMarginPx

	if img != nil {
		dst := image.NewRGBA(image.Rect(0, 0, art, art))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
		dc.DrawImage(dst, pageMarginPx, pageMarginPx)
	} else {
		dc.SetColor(boxColor)
		dc.DrawRoundedRectangle(pageMarginPx, pageMarginPx, float64(art), float64(art), 30)
		dc.Fill()
		dc.SetColor(inkColor)
		dc.SetFontFace(face(bodyFont, 40))
		dc.DrawStringAnchored("Illustration coming soon", float64(pageWidthPx)/2, pageMarginPx+float64(art)/2, 0.5, 0.5)
	}

	dc.SetColor(inkColor)
	dc.SetFontFace(face(bodyFont, 40))
	textTop := float64(pageMarginPx + art + 70)
	dc.DrawStringWrapped(p.Text, pageMarginPx, textTop, 0, 0, w, 1.5, gg.AlignLeft)

	dc.SetFontFace(face(bodyFont, 28))
	dc.DrawStringAnchored(fmt.Sprintf("%d", number), float64(pageWidthPx)/2, float64(pageHeightPx-60), 0.5, 0.5)
	return dc
}
