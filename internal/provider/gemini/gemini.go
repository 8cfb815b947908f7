package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/yshirai/genimage/internal/provider"
	"github.com/yshirai/genimage/pkg/models"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com"
	apiVersion     = "v1beta"
	defaultTimeout = 120 * time.Second

	// translateModel serves subject translation; the image models
	// reject text-only output.
	translateModel = "gemini-3-flash-preview"
)

const translateInstruction = "Translate the following image prompt subject into English. " +
	"Return only the translation, nothing else.\n\n"

type generateContentRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string     `json:"responseModalities,omitempty"`
	ImageConfig        *imageConfig `json:"imageConfig,omitempty"`
}

type imageConfig struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
	ImageSize   string `json:"imageSize,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string `json:"text,omitempty"`
	InlineData *blob  `json:"inlineData,omitempty"`
}

type blob struct {
	Data     string `json:"data"`
	MimeType string `json:"mimeType"`
}

type generateContentResponse struct {
	Candidates []candidate `json:"candidates"`
}

type candidate struct {
	Content      content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
}

type apiErrorEnvelope struct {
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

type Provider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	registry   *models.ModelRegistry
	logger     zerolog.Logger
}

func New(cfg *provider.Config, registry *models.ModelRegistry) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, provider.ErrAPIKeyRequired
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Provider{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		registry: registry,
		logger:   cfg.Logger,
	}, nil
}

func (p *Provider) Name() models.ProviderType {
	return models.ProviderGemini
}

func (p *Provider) SupportsModel(model string) bool {
	cap, ok := p.registry.Get(model)
	if !ok {
		return false
	}
	return cap.Provider == models.ProviderGemini
}

func (p *Provider) ListModels() []string {
	return p.registry.ListByProvider(models.ProviderGemini)
}

func (p *Provider) Generate(ctx context.Context, req *models.Request) (*models.Response, error) {
	imgCfg := &imageConfig{AspectRatio: req.AspectRatio.String()}
	if cap, ok := p.registry.Get(req.Model); ok && cap.SupportsResolution {
		imgCfg.ImageSize = req.Resolution.String()
	}

	apiReq := generateContentRequest{
		Contents: []content{
			{Role: "user", Parts: []part{{Text: req.Prompt}}},
		},
		GenerationConfig: &generationConfig{
			ResponseModalities: []string{"IMAGE"},
			ImageConfig:        imgCfg,
		},
	}

	apiResp, err := p.generateContent(ctx, req.Model, apiReq)
	if err != nil && isUnknownFieldError(err, "imageConfig") {
		// Older models reject imageConfig outright; aspect ratio and
		// size are then left to the model.
		p.logger.Debug().Str("model", req.Model).Msg("model rejected imageConfig, retrying without it")
		apiReq.GenerationConfig.ImageConfig = nil
		apiResp, err = p.generateContent(ctx, req.Model, apiReq)
	}
	if err != nil {
		return nil, err
	}

	return buildResponse(apiResp)
}

func (p *Provider) Translate(ctx context.Context, text string) (string, error) {
	apiReq := generateContentRequest{
		Contents: []content{
			{Role: "user", Parts: []part{{Text: translateInstruction + text}}},
		},
	}

	apiResp, err := p.generateContent(ctx, translateModel, apiReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", provider.ErrTranslationFailed, err)
	}

	translated, _ := extractParts(apiResp)
	translated = strings.TrimSpace(translated)
	if translated == "" {
		return "", fmt.Errorf("%w: empty response", provider.ErrTranslationFailed)
	}
	return translated, nil
}

func (p *Provider) generateContent(ctx context.Context, model string, payload generateContentRequest) (*generateContentResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/models/%s:generateContent", p.baseURL, apiVersion, model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", p.apiKey)

	p.logger.Debug().
		Str("method", http.MethodPost).
		Str("url", url).
		Int("body_bytes", len(body)).
		Msg("gemini request")

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer httpResp.Body.Close()

	rawBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	p.logger.Debug().
		Int("status", httpResp.StatusCode).
		Int("body_bytes", len(rawBody)).
		Msg("gemini response")

	if httpResp.StatusCode >= 400 {
		return nil, apiErrorFrom(httpResp.Status, rawBody)
	}

	var decoded generateContentResponse
	if err := json.Unmarshal(rawBody, &decoded); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &decoded, nil
}

func apiErrorFrom(status string, rawBody []byte) error {
	var envelope apiErrorEnvelope
	if err := json.Unmarshal(rawBody, &envelope); err == nil && envelope.Error != nil && envelope.Error.Message != "" {
		return fmt.Errorf("gemini API %s: %s", status, envelope.Error.Message)
	}
	return fmt.Errorf("gemini API %s: %s", status, strings.TrimSpace(string(rawBody)))
}

func buildResponse(apiResp *generateContentResponse) (*models.Response, error) {
	text, images, err := extractImages(apiResp)
	if err != nil {
		return nil, err
	}

	if len(images) == 0 {
		if text != "" {
			// Safety refusals come back as a text part; surface it.
			return nil, fmt.Errorf("%w: %s", provider.ErrNoImageReturned, text)
		}
		reason := ""
		if len(apiResp.Candidates) > 0 {
			reason = apiResp.Candidates[0].FinishReason
		}
		if reason != "" {
			return nil, fmt.Errorf("%w (finish reason: %s)", provider.ErrNoImageReturned, reason)
		}
		return nil, provider.ErrNoImageReturned
	}

	return &models.Response{Images: images, Text: text}, nil
}

func extractParts(apiResp *generateContentResponse) (string, []*blob) {
	if len(apiResp.Candidates) == 0 {
		return "", nil
	}

	var textBuilder strings.Builder
	var blobs []*blob
	for _, pt := range apiResp.Candidates[0].Content.Parts {
		if pt.Text != "" {
			textBuilder.WriteString(pt.Text)
		}
		if pt.InlineData != nil && pt.InlineData.Data != "" {
			blobs = append(blobs, pt.InlineData)
		}
	}
	return textBuilder.String(), blobs
}

func extractImages(apiResp *generateContentResponse) (string, []models.GeneratedImage, error) {
	text, blobs := extractParts(apiResp)

	images := make([]models.GeneratedImage, 0, len(blobs))
	for i, b := range blobs {
		decoded, err := base64.StdEncoding.DecodeString(b.Data)
		if err != nil {
			return "", nil, fmt.Errorf("failed to decode image %d: %w", i, err)
		}
		images = append(images, models.GeneratedImage{
			Data:     decoded,
			MimeType: b.MimeType,
			Index:    i,
		})
	}
	return strings.TrimSpace(text), images, nil
}

func isUnknownFieldError(err error, field string) bool {
	message := err.Error()
	return strings.Contains(message, "Unknown name") && strings.Contains(message, field)
}
