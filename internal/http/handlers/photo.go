package handlers

import (
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/storybook-backend/internal/http/response"
	"github.com/yungbote/storybook-backend/internal/platform/apierr"
	"github.com/yungbote/storybook-backend/internal/services"
)

// multipart overhead on top of the photo itself
const multipartSlack = 1 << 20

type PhotoHandler struct {
	photos services.PhotoAnalysisService
}

func NewPhotoHandler(photos services.PhotoAnalysisService) *PhotoHandler {
	return &PhotoHandler{photos: photos}
}

type analyzePhotoRequest struct {
	ImageBase64 string `json:"image_base64" binding:"required"`
	MimeType    string `json:"mime_type"`
	Provider    string `json:"provider" binding:"omitempty,oneof=openai anthropic gemini"`
}

// POST /api/photos/analyze accepts a multipart "photo" file or a JSON body
// with image_base64 (raw base64 or a data URL).
func (h *PhotoHandler) Analyze(c *gin.Context) {
	userID, ok := requestUserID(c)
	if !ok {
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, services.MaxPhotoBytes*4/3+multipartSlack)

	var (
		image    []byte
		mime     string
		provider string
		err      error
	)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		image, mime, err = readMultipartPhoto(c)
		provider = c.PostForm("provider")
	} else {
		var req analyzePhotoRequest
		if bindErr := c.ShouldBindJSON(&req); bindErr != nil {
			response.RespondBindError(c, bindErr)
			return
		}
		image, mime, err = decodeBase64Image(req.ImageBase64, req.MimeType)
		provider = req.Provider
	}
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}

	out, err := h.photos.Analyze(c.Request.Context(), userID, image, mime, provider)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, out)
}

func readMultipartPhoto(c *gin.Context) ([]byte, string, error) {
	fh, err := c.FormFile("photo")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, "", photoFieldError("too_large", "photo must be at most 10MB")
		}
		return nil, "", photoFieldError("required", "photo file is required")
	}
	f, err := fh.Open()
	if err != nil {
		return nil, "", apierr.Internal(err)
	}
	defer f.Close()
	b, err := io.ReadAll(io.LimitReader(f, services.MaxPhotoBytes+1))
	if err != nil {
		return nil, "", apierr.Internal(err)
	}
	mime := fh.Header.Get("Content-Type")
	if mime == "" || mime == "application/octet-stream" {
		mime = http.DetectContentType(b)
	}
	return b, mime, nil
}

func decodeBase64Image(raw, mime string) ([]byte, string, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "data:") {
		comma := strings.IndexByte(raw, ',')
		if comma < 0 {
			return nil, "", photoFieldError("base64", "image_base64 is not a valid data URL")
		}
		header := raw[len("data:"):comma]
		if mime == "" {
			mime = strings.TrimSuffix(header, ";base64")
		}
		raw = raw[comma+1:]
	}
	b, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, "", photoFieldError("base64", "image_base64 is not valid base64")
	}
	if mime == "" {
		mime = http.DetectContentType(b)
	}
	return b, mime, nil
}

func photoFieldError(rule, msg string) error {
	return apierr.ValidationFields([]apierr.FieldError{{Field: "photo", Rule: rule, Message: msg}})
}
