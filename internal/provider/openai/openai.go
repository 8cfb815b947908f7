package openai

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
	defaultBaseURL = "https://api.openai.com/v1"
	defaultTimeout = 120 * time.Second

	// translateModel serves subject translation; the image endpoints
	// have no text output.
	translateModel = "gpt-4o-mini"
)

const translateInstruction = "Translate the following image prompt subject into English. " +
	"Return only the translation, nothing else.\n\n"

type apiRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n,omitempty"`
	Size           string `json:"size,omitempty"`
	Quality        string `json:"quality,omitempty"`
	ResponseFormat string `json:"response_format,omitempty"`
	OutputFormat   string `json:"output_format,omitempty"`
}

type apiResponse struct {
	Created int64       `json:"created"`
	Data    []imageData `json:"data"`
	Error   *apiError   `json:"error,omitempty"`
}

type imageData struct {
	URL           string `json:"url,omitempty"`
	B64JSON       string `json:"b64_json,omitempty"`
	RevisedPrompt string `json:"revised_prompt,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Error   *apiError    `json:"error,omitempty"`
}

type chatChoice struct {
	Message chatMessage `json:"message"`
}

type Provider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	registry   *models.ModelRegistry
	verbose    bool
	logger     zerolog.Logger
}

func New(cfg *provider.Config, registry *models.ModelRegistry) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, provider.ErrAPIKeyRequired
	}

	baseURL := cfg.BaseURL
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
		verbose:  cfg.Verbose,
		logger:   cfg.Logger,
	}, nil
}

func (p *Provider) Name() models.ProviderType {
	return models.ProviderOpenAI
}

func (p *Provider) SupportsModel(model string) bool {
	cap, ok := p.registry.Get(model)
	if !ok {
		return false
	}
	return cap.Provider == models.ProviderOpenAI
}

func (p *Provider) ListModels() []string {
	return p.registry.ListByProvider(models.ProviderOpenAI)
}

func (p *Provider) Generate(ctx context.Context, req *models.Request) (*models.Response, error) {
	apiReq := p.buildAPIRequest(req)

	statusCode, body, err := p.postJSON(ctx, p.baseURL+"/images/generations", apiReq)
	if err != nil {
		return nil, err
	}

	var apiResp apiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if apiResp.Error != nil {
		return nil, fmt.Errorf("%w: %s", provider.ErrGenerationFailed, apiResp.Error.Message)
	}

	if statusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", provider.ErrGenerationFailed, statusCode)
	}

	return p.buildResponse(apiResp)
}

func (p *Provider) Translate(ctx context.Context, text string) (string, error) {
	chatReq := chatRequest{
		Model: translateModel,
		Messages: []chatMessage{
			{Role: "user", Content: translateInstruction + text},
		},
	}

	statusCode, body, err := p.postJSON(ctx, p.baseURL+"/chat/completions", chatReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", provider.ErrTranslationFailed, err)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return "", fmt.Errorf("%w: %v", provider.ErrTranslationFailed, err)
	}

	if chatResp.Error != nil {
		return "", fmt.Errorf("%w: %s", provider.ErrTranslationFailed, chatResp.Error.Message)
	}
	if statusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", provider.ErrTranslationFailed, statusCode)
	}

	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty response", provider.ErrTranslationFailed)
	}
	translated := strings.TrimSpace(chatResp.Choices[0].Message.Content)
	if translated == "" {
		return "", fmt.Errorf("%w: empty response", provider.ErrTranslationFailed)
	}
	return translated, nil
}

func (p *Provider) postJSON(ctx context.Context, url string, payload interface{}) (int, []byte, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	p.logRequest(http.MethodPost, url, httpReq.Header, jsonData)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}

	p.logResponse(resp.StatusCode, body)

	return resp.StatusCode, body, nil
}

func (p *Provider) buildAPIRequest(req *models.Request) *apiRequest {
	apiReq := &apiRequest{
		Model:   req.Model,
		Prompt:  req.Prompt,
		N:       1,
		Size:    sizeFor(req.Model, req.AspectRatio),
		Quality: qualityFor(req.Model, req.Resolution),
	}

	switch req.Model {
	case "gpt-image-1":
		apiReq.OutputFormat = "png"
	default:
		// dall-e-3 returns URLs unless base64 is requested, and the
		// URLs expire after an hour.
		apiReq.ResponseFormat = "b64_json"
	}

	return apiReq
}

// sizeFor maps an aspect ratio onto the fixed pixel sizes each OpenAI
// model accepts.
func sizeFor(model string, aspect models.AspectRatio) string {
	if model == "gpt-image-1" {
		switch aspect {
		case models.AspectPortrait:
			return "1024x1536"
		case models.AspectLandscape:
			return "1536x1024"
		default:
			return "1024x1024"
		}
	}
	switch aspect {
	case models.AspectPortrait:
		return "1024x1792"
	case models.AspectLandscape:
		return "1792x1024"
	default:
		return "1024x1024"
	}
}

func qualityFor(model string, res models.Resolution) string {
	if model == "gpt-image-1" {
		switch res {
		case models.Resolution4K:
			return "high"
		case models.Resolution2K:
			return "medium"
		default:
			return "low"
		}
	}
	if res == models.Resolution4K {
		return "hd"
	}
	return "standard"
}

func (p *Provider) buildResponse(apiResp apiResponse) (*models.Response, error) {
	response := &models.Response{
		Images: make([]models.GeneratedImage, 0, len(apiResp.Data)),
	}

	for i, data := range apiResp.Data {
		img := models.GeneratedImage{
			Index:    i,
			URL:      data.URL,
			MimeType: "image/png",
		}

		if data.B64JSON != "" {
			decoded, err := base64.StdEncoding.DecodeString(data.B64JSON)
			if err != nil {
				return nil, fmt.Errorf("failed to decode image %d: %w", i, err)
			}
			img.Data = decoded
		}

		if i == 0 && data.RevisedPrompt != "" {
			response.Text = data.RevisedPrompt
		}

		response.Images = append(response.Images, img)
	}

	if len(response.Images) == 0 {
		return nil, provider.ErrNoImageReturned
	}

	return response, nil
}

func (p *Provider) logRequest(method, url string, headers http.Header, body []byte) {
	if !p.verbose {
		return
	}

	evt := p.logger.Debug().Str("method", method).Str("url", url)
	for key, values := range headers {
		value := strings.Join(values, ", ")
		if strings.EqualFold(key, "authorization") {
			value = "[REDACTED]"
		}
		evt = evt.Str("header_"+strings.ToLower(key), value)
	}
	if len(body) > 0 && json.Valid(body) {
		evt = evt.RawJSON("body", body)
	}
	evt.Msg("openai request")
}

func (p *Provider) logResponse(statusCode int, body []byte) {
	if !p.verbose {
		return
	}

	evt := p.logger.Debug().Int("status", statusCode)
	if len(body) > 0 {
		// Truncate large base64 data in responses for readability.
		truncated := truncateBase64InJSON(body)
		if json.Valid(truncated) {
			evt = evt.RawJSON("body", truncated)
		} else {
			evt = evt.Str("body", string(truncated))
		}
	}
	evt.Msg("openai response")
}

func truncateBase64InJSON(body []byte) []byte {
	var data map[string]interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		return body
	}

	truncateBase64Fields(data)

	result, err := json.Marshal(data)
	if err != nil {
		return body
	}
	return result
}

func truncateBase64Fields(data map[string]interface{}) {
	for key, value := range data {
		switch v := value.(type) {
		case string:
			if key == "b64_json" && len(v) > 100 {
				data[key] = v[:100] + "... [truncated]"
			}
		case map[string]interface{}:
			truncateBase64Fields(v)
		case []interface{}:
			for _, item := range v {
				if m, ok := item.(map[string]interface{}); ok {
					truncateBase64Fields(m)
				}
			}
		}
	}
}
