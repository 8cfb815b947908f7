package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/yshirai/genimage/internal/provider"
	"github.com/yshirai/genimage/pkg/models"
)

func TestNew(t *testing.T) {
	registry := models.DefaultRegistry()

	tests := []struct {
		name    string
		cfg     *provider.Config
		wantErr error
	}{
		{
			name:    "valid config",
			cfg:     &provider.Config{APIKey: "test-key"},
			wantErr: nil,
		},
		{
			name:    "empty API key",
			cfg:     &provider.Config{APIKey: ""},
			wantErr: provider.ErrAPIKeyRequired,
		},
		{
			name:    "custom base URL",
			cfg:     &provider.Config{APIKey: "test-key", BaseURL: "https://custom.api.com/"},
			wantErr: nil,
		},
		{
			name:    "custom timeout",
			cfg:     &provider.Config{APIKey: "test-key", Timeout: 30 * time.Second},
			wantErr: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(tt.cfg, registry)
			if tt.wantErr != nil {
				if err == nil {
					t.Fatal("New() error = nil, want error")
				}
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("New() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("New() error = %v, want nil", err)
			}
			if p == nil {
				t.Fatal("New() returned nil provider")
			}
		})
	}
}

func TestNew_TrimsBaseURL(t *testing.T) {
	p, err := New(&provider.Config{APIKey: "test", BaseURL: "https://custom.api.com/"}, models.DefaultRegistry())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if p.baseURL != "https://custom.api.com" {
		t.Errorf("baseURL = %q, want trailing slash trimmed", p.baseURL)
	}
}

func TestProvider_Name(t *testing.T) {
	p, _ := New(&provider.Config{APIKey: "test"}, models.DefaultRegistry())
	if p.Name() != models.ProviderGemini {
		t.Errorf("Name() = %v, want %v", p.Name(), models.ProviderGemini)
	}
}

func TestProvider_SupportsModel(t *testing.T) {
	p, _ := New(&provider.Config{APIKey: "test"}, models.DefaultRegistry())

	tests := []struct {
		model string
		want  bool
	}{
		{"gemini-3-pro-image-preview", true},
		{"gemini-2.5-flash-image", true},
		{"dall-e-3", false},
		{"unknown-model", false},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			if got := p.SupportsModel(tt.model); got != tt.want {
				t.Errorf("SupportsModel(%s) = %v, want %v", tt.model, got, tt.want)
			}
		})
	}
}

func TestProvider_ListModels(t *testing.T) {
	p, _ := New(&provider.Config{APIKey: "test"}, models.DefaultRegistry())
	listed := p.ListModels()

	expected := map[string]bool{
		"gemini-3-pro-image-preview": true,
		"gemini-2.5-flash-image":     true,
	}

	if len(listed) != len(expected) {
		t.Errorf("ListModels() returned %d models, want %d", len(listed), len(expected))
	}
	for _, model := range listed {
		if !expected[model] {
			t.Errorf("ListModels() unexpected model: %s", model)
		}
	}
}

func TestProvider_Generate_Success(t *testing.T) {
	imageBytes := []byte("fake png bytes")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		wantPath := "/v1beta/models/gemini-3-pro-image-preview:generateContent"
		if r.URL.Path != wantPath {
			t.Errorf("path = %s, want %s", r.URL.Path, wantPath)
		}
		if r.Header.Get("x-goog-api-key") != "test-key" {
			t.Errorf("wrong api key header")
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("wrong content type")
		}

		var req generateContentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		if len(req.Contents) != 1 || len(req.Contents[0].Parts) != 1 {
			t.Fatalf("unexpected contents shape: %+v", req.Contents)
		}
		if req.Contents[0].Parts[0].Text != "test prompt" {
			t.Errorf("prompt = %q", req.Contents[0].Parts[0].Text)
		}
		gc := req.GenerationConfig
		if gc == nil {
			t.Fatal("missing generationConfig")
		}
		if len(gc.ResponseModalities) != 1 || gc.ResponseModalities[0] != "IMAGE" {
			t.Errorf("responseModalities = %v", gc.ResponseModalities)
		}
		if gc.ImageConfig == nil {
			t.Fatal("missing imageConfig")
		}
		if gc.ImageConfig.AspectRatio != "16:9" {
			t.Errorf("aspectRatio = %q, want 16:9", gc.ImageConfig.AspectRatio)
		}
		if gc.ImageConfig.ImageSize != "2K" {
			t.Errorf("imageSize = %q, want 2K", gc.ImageConfig.ImageSize)
		}

		resp := generateContentResponse{
			Candidates: []candidate{
				{
					Content: content{
						Role: "model",
						Parts: []part{
							{Text: "here is your image"},
							{InlineData: &blob{
								Data:     base64.StdEncoding.EncodeToString(imageBytes),
								MimeType: "image/png",
							}},
						},
					},
				},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	p, err := New(&provider.Config{APIKey: "test-key", BaseURL: server.URL}, models.DefaultRegistry())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	req := &models.Request{
		Model:       "gemini-3-pro-image-preview",
		Prompt:      "test prompt",
		Resolution:  models.Resolution2K,
		AspectRatio: models.AspectLandscape,
	}

	resp, err := p.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if len(resp.Images) != 1 {
		t.Fatalf("Generate() returned %d images, want 1", len(resp.Images))
	}
	if string(resp.Images[0].Data) != string(imageBytes) {
		t.Errorf("Generate() image data mismatch")
	}
	if resp.Images[0].MimeType != "image/png" {
		t.Errorf("Generate() MimeType = %s, want image/png", resp.Images[0].MimeType)
	}
	if resp.Text != "here is your image" {
		t.Errorf("Generate() Text = %q", resp.Text)
	}
}

func TestProvider_Generate_OmitsSizeWhenUnsupported(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req generateContentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		ic := req.GenerationConfig.ImageConfig
		if ic == nil {
			t.Fatal("missing imageConfig")
		}
		if ic.AspectRatio != "1:1" {
			t.Errorf("aspectRatio = %q, want 1:1", ic.AspectRatio)
		}
		if ic.ImageSize != "" {
			t.Errorf("imageSize = %q, want empty for model without resolution support", ic.ImageSize)
		}

		json.NewEncoder(w).Encode(generateContentResponse{
			Candidates: []candidate{
				{Content: content{Parts: []part{
					{InlineData: &blob{Data: base64.StdEncoding.EncodeToString([]byte("x")), MimeType: "image/png"}},
				}}},
			},
		})
	}))
	defer server.Close()

	p, _ := New(&provider.Config{APIKey: "test-key", BaseURL: server.URL}, models.DefaultRegistry())

	req := &models.Request{
		Model:       "gemini-2.5-flash-image",
		Prompt:      "test",
		Resolution:  models.Resolution4K,
		AspectRatio: models.AspectSquare,
	}

	if _, err := p.Generate(context.Background(), req); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
}

func TestProvider_Generate_RetriesWithoutImageConfig(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++

		var req generateContentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}

		if calls == 1 {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(apiErrorEnvelope{
				Error: &apiError{
					Code:    400,
					Message: `Invalid JSON payload received. Unknown name "imageConfig" at 'generation_config': Cannot find field.`,
					Status:  "INVALID_ARGUMENT",
				},
			})
			return
		}

		if req.GenerationConfig.ImageConfig != nil {
			t.Error("retry still carries imageConfig")
		}
		json.NewEncoder(w).Encode(generateContentResponse{
			Candidates: []candidate{
				{Content: content{Parts: []part{
					{InlineData: &blob{Data: base64.StdEncoding.EncodeToString([]byte("retry image")), MimeType: "image/png"}},
				}}},
			},
		})
	}))
	defer server.Close()

	p, _ := New(&provider.Config{APIKey: "test-key", BaseURL: server.URL}, models.DefaultRegistry())

	req := &models.Request{
		Model:       "gemini-3-pro-image-preview",
		Prompt:      "test",
		Resolution:  models.Resolution1K,
		AspectRatio: models.AspectSquare,
	}

	resp, err := p.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if calls != 2 {
		t.Errorf("server saw %d calls, want 2", calls)
	}
	if string(resp.Images[0].Data) != "retry image" {
		t.Errorf("Generate() image data mismatch after retry")
	}
}

func TestProvider_Generate_NoImageSurfacesText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(generateContentResponse{
			Candidates: []candidate{
				{Content: content{Parts: []part{{Text: "I cannot generate that image."}}}},
			},
		})
	}))
	defer server.Close()

	p, _ := New(&provider.Config{APIKey: "test-key", BaseURL: server.URL}, models.DefaultRegistry())

	_, err := p.Generate(context.Background(), &models.Request{
		Model:       "gemini-3-pro-image-preview",
		Prompt:      "test",
		Resolution:  models.Resolution1K,
		AspectRatio: models.AspectSquare,
	})
	if !errors.Is(err, provider.ErrNoImageReturned) {
		t.Fatalf("Generate() error = %v, want %v", err, provider.ErrNoImageReturned)
	}
	if !strings.Contains(err.Error(), "I cannot generate that image.") {
		t.Errorf("Generate() error should carry the model text, got %v", err)
	}
}

func TestProvider_Generate_NoImageFinishReason(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(generateContentResponse{
			Candidates: []candidate{
				{FinishReason: "SAFETY"},
			},
		})
	}))
	defer server.Close()

	p, _ := New(&provider.Config{APIKey: "test-key", BaseURL: server.URL}, models.DefaultRegistry())

	_, err := p.Generate(context.Background(), &models.Request{
		Model:       "gemini-3-pro-image-preview",
		Prompt:      "test",
		Resolution:  models.Resolution1K,
		AspectRatio: models.AspectSquare,
	})
	if !errors.Is(err, provider.ErrNoImageReturned) {
		t.Fatalf("Generate() error = %v, want %v", err, provider.ErrNoImageReturned)
	}
	if !strings.Contains(err.Error(), "SAFETY") {
		t.Errorf("Generate() error should carry finish reason, got %v", err)
	}
}

func TestProvider_Generate_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(apiErrorEnvelope{
			Error: &apiError{Code: 403, Message: "API key not valid", Status: "PERMISSION_DENIED"},
		})
	}))
	defer server.Close()

	p, _ := New(&provider.Config{APIKey: "bad-key", BaseURL: server.URL}, models.DefaultRegistry())

	_, err := p.Generate(context.Background(), &models.Request{
		Model:       "gemini-3-pro-image-preview",
		Prompt:      "test",
		Resolution:  models.Resolution1K,
		AspectRatio: models.AspectSquare,
	})
	if err == nil {
		t.Fatal("Generate() error = nil, want error")
	}
	if !strings.Contains(err.Error(), "API key not valid") {
		t.Errorf("Generate() error = %v, want API message surfaced", err)
	}
}

func TestProvider_Generate_ContextCanceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		json.NewEncoder(w).Encode(generateContentResponse{})
	}))
	defer server.Close()

	p, _ := New(&provider.Config{APIKey: "test-key", BaseURL: server.URL}, models.DefaultRegistry())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Generate(ctx, &models.Request{
		Model:       "gemini-3-pro-image-preview",
		Prompt:      "test",
		Resolution:  models.Resolution1K,
		AspectRatio: models.AspectSquare,
	})
	if err == nil {
		t.Fatal("Generate() error = nil, want error")
	}
}

func TestProvider_Translate_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, translateModel) {
			t.Errorf("path = %s, want translate model", r.URL.Path)
		}

		var req generateContentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		if req.GenerationConfig != nil {
			t.Error("translate request should not set generationConfig")
		}
		if !strings.Contains(req.Contents[0].Parts[0].Text, "蓝图风格城市夜景") {
			t.Errorf("instruction missing subject: %q", req.Contents[0].Parts[0].Text)
		}

		json.NewEncoder(w).Encode(generateContentResponse{
			Candidates: []candidate{
				{Content: content{Parts: []part{{Text: "  blueprint style city nightscape\n"}}}},
			},
		})
	}))
	defer server.Close()

	p, _ := New(&provider.Config{APIKey: "test-key", BaseURL: server.URL}, models.DefaultRegistry())

	got, err := p.Translate(context.Background(), "蓝图风格城市夜景")
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if got != "blueprint style city nightscape" {
		t.Errorf("Translate() = %q", got)
	}
}

func TestProvider_Translate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "api error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				json.NewEncoder(w).Encode(apiErrorEnvelope{Error: &apiError{Message: "boom"}})
			},
		},
		{
			name: "empty response",
			handler: func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(generateContentResponse{})
			},
		},
		{
			name: "whitespace only",
			handler: func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(generateContentResponse{
					Candidates: []candidate{
						{Content: content{Parts: []part{{Text: "   \n"}}}},
					},
				})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			p, _ := New(&provider.Config{APIKey: "test-key", BaseURL: server.URL}, models.DefaultRegistry())

			_, err := p.Translate(context.Background(), "hello")
			if !errors.Is(err, provider.ErrTranslationFailed) {
				t.Errorf("Translate() error = %v, want %v", err, provider.ErrTranslationFailed)
			}
		})
	}
}

func TestProvider_Generate_BadImageData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(generateContentResponse{
			Candidates: []candidate{
				{Content: content{Parts: []part{
					{InlineData: &blob{Data: "not base64!!!", MimeType: "image/png"}},
				}}},
			},
		})
	}))
	defer server.Close()

	p, _ := New(&provider.Config{APIKey: "test-key", BaseURL: server.URL}, models.DefaultRegistry())

	_, err := p.Generate(context.Background(), &models.Request{
		Model:       "gemini-3-pro-image-preview",
		Prompt:      "test",
		Resolution:  models.Resolution1K,
		AspectRatio: models.AspectSquare,
	})
	if err == nil {
		t.Fatal("Generate() error = nil, want decode error")
	}
	if !strings.Contains(err.Error(), "decode image") {
		t.Errorf("Generate() error = %v, want decode failure", err)
	}
}

func TestIsUnknownFieldError(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		field string
		want  bool
	}{
		{
			name:  "unknown imageConfig",
			err:   errors.New(`gemini API 400 Bad Request: Invalid JSON payload received. Unknown name "imageConfig" at 'generation_config': Cannot find field.`),
			field: "imageConfig",
			want:  true,
		},
		{
			name:  "different field",
			err:   errors.New(`Unknown name "responseModalities"`),
			field: "imageConfig",
			want:  false,
		},
		{
			name:  "unrelated error",
			err:   errors.New("connection refused"),
			field: "imageConfig",
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isUnknownFieldError(tt.err, tt.field); got != tt.want {
				t.Errorf("isUnknownFieldError() = %v, want %v", got, tt.want)
			}
		})
	}
}
