package replicate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/yungbote/storybook-backend/internal/platform/ctxutil"
	"github.com/yungbote/storybook-backend/internal/platform/httpx"
	"github.com/yungbote/storybook-backend/internal/platform/llm"
	"github.com/yungbote/storybook-backend/internal/platform/logger"
)

const defaultBaseURL = "https://api.replicate.com/v1"

type Config struct {
	APIToken     string
	BaseURL      string
	Model        string
	AspectRatio  string
	PollInterval time.Duration
	Timeout      time.Duration
}

// Client runs image predictions against the Replicate HTTP API.
type Client struct {
	log  *logger.Logger
	http *http.Client
	cfg  Config
}

func New(log *logger.Logger, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIToken) == "" {
		return nil, errors.New("missing REPLICATE_API_TOKEN")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = "black-forest-labs/flux-schnell"
	}
	if cfg.AspectRatio == "" {
		cfg.AspectRatio = "1:1"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Minute
	}
	return &Client{
		log:  log.With("client", "ReplicateClient"),
		http: &http.Client{Timeout: 60 * time.Second},
		cfg:  cfg,
	}, nil
}

func (c *Client) Name() string { return llm.ProviderReplicate }

type prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  any             `json:"error"`
}

func (p prediction) done() bool {
	switch p.Status {
	case "succeeded", "failed", "canceled":
		return true
	}
	return false
}

func (c *Client) headers() map[string]string {
	return map[string]string{
		"Authorization": "Bearer " + c.cfg.APIToken,
		"Prefer":        "wait",
	}
}

func (c *Client) GenerateImage(ctx context.Context, req llm.ImageRequest) (llm.ImageGeneration, error) {
	ctx = ctxutil.Default(ctx)
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	body := map[string]any{
		"input": map[string]any{
			"prompt":        req.Prompt,
			"aspect_ratio":  c.cfg.AspectRatio,
			"output_format": "png",
			"num_outputs":   1,
		},
	}
	var p prediction
	url := fmt.Sprintf("%s/models/%s/predictions", c.cfg.BaseURL, c.cfg.Model)
	if err := httpx.DoJSON(ctx, c.http, http.MethodPost, url, c.headers(), body, &p); err != nil {
		return llm.ImageGeneration{}, fmt.Errorf("replicate create prediction: %w", err)
	}

	for !p.done() {
		if err := httpx.Sleep(ctx, c.cfg.PollInterval); err != nil {
			return llm.ImageGeneration{}, fmt.Errorf("replicate poll %s: %w", p.ID, err)
		}
		if err := httpx.DoJSON(ctx, c.http, http.MethodGet, c.cfg.BaseURL+"/predictions/"+p.ID, c.headers(), nil, &p); err != nil {
			return llm.ImageGeneration{}, fmt.Errorf("replicate get prediction: %w", err)
		}
	}
	if p.Status != "succeeded" {
		return llm.ImageGeneration{}, fmt.Errorf("replicate prediction %s %s: %v", p.ID, p.Status, p.Error)
	}

	imageURL, err := outputURL(p.Output)
	if err != nil {
		return llm.ImageGeneration{}, err
	}
	raw, mime, err := httpx.Download(ctx, c.http, imageURL, 20<<20)
	if err != nil {
		return llm.ImageGeneration{}, fmt.Errorf("replicate download output: %w", err)
	}
	if mime == "" {
		mime = "image/png"
	}
	c.log.Debug("replicate prediction done", "prediction_id", p.ID, "bytes", len(raw))
	return llm.ImageGeneration{Bytes: raw, MimeType: mime, Provider: llm.ProviderReplicate}, nil
}

// outputURL accepts both output shapes Replicate models use: a single URL or
// a list of URLs.
func outputURL(raw json.RawMessage) (string, error) {
	var one string
	if err := json.Unmarshal(raw, &one); err == nil && one != "" {
		return one, nil
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err == nil && len(many) > 0 && many[0] != "" {
		return many[0], nil
	}
	return "", errors.New("replicate prediction has no output url")
}
