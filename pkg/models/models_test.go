package models

import (
	"errors"
	"testing"
)

func TestResolution_IsValid(t *testing.T) {
	tests := []struct {
		name string
		res  Resolution
		want bool
	}{
		{"valid 1K", Resolution1K, true},
		{"valid 2K", Resolution2K, true},
		{"valid 4K", Resolution4K, true},
		{"lowercase", Resolution("2k"), false},
		{"invalid", Resolution("8K"), false},
		{"empty", Resolution(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.res.IsValid(); got != tt.want {
				t.Errorf("Resolution.IsValid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseResolution(t *testing.T) {
	tests := []struct {
		input   string
		want    Resolution
		wantErr bool
	}{
		{"1K", Resolution1K, false},
		{"2k", Resolution2K, false},
		{" 4K ", Resolution4K, false},
		{"8K", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseResolution(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseResolution(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidResolution) {
				t.Errorf("ParseResolution(%q) error = %v, want ErrInvalidResolution", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseResolution(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestAspectRatio_IsValid(t *testing.T) {
	tests := []struct {
		name   string
		aspect AspectRatio
		want   bool
	}{
		{"square", AspectSquare, true},
		{"portrait", AspectPortrait, true},
		{"landscape", AspectLandscape, true},
		{"reversed", AspectRatio("16:10"), false},
		{"empty", AspectRatio(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.aspect.IsValid(); got != tt.want {
				t.Errorf("AspectRatio.IsValid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseAspectRatio(t *testing.T) {
	tests := []struct {
		input   string
		want    AspectRatio
		wantErr bool
	}{
		{"1:1", AspectSquare, false},
		{" 16:9 ", AspectLandscape, false},
		{"9:16", AspectPortrait, false},
		{"4:3", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseAspectRatio(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseAspectRatio(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseAspectRatio(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestDefaultsAreFirstEnumMembers(t *testing.T) {
	if ValidResolutions()[0] != Resolution1K {
		t.Errorf("default resolution = %v, want %v", ValidResolutions()[0], Resolution1K)
	}
	if ValidAspectRatios()[0] != AspectSquare {
		t.Errorf("default aspect ratio = %v, want %v", ValidAspectRatios()[0], AspectSquare)
	}
}

func TestParseProvider(t *testing.T) {
	tests := []struct {
		input   string
		want    ProviderType
		wantErr bool
	}{
		{"gemini", ProviderGemini, false},
		{"OpenAI", ProviderOpenAI, false},
		{" gemini ", ProviderGemini, false},
		{"stability", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseProvider(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseProvider(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseProvider(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestProviderType_EnvVar(t *testing.T) {
	tests := []struct {
		provider ProviderType
		want     string
	}{
		{ProviderGemini, "GEMINI_API_KEY"},
		{ProviderOpenAI, "OPENAI_API_KEY"},
		{ProviderType("other"), ""},
	}

	for _, tt := range tests {
		if got := tt.provider.EnvVar(); got != tt.want {
			t.Errorf("EnvVar(%v) = %v, want %v", tt.provider, got, tt.want)
		}
	}
}

func TestNewRequest(t *testing.T) {
	req := NewRequest("test prompt")

	if req.Prompt != "test prompt" {
		t.Errorf("NewRequest().Prompt = %v, want test prompt", req.Prompt)
	}
	if req.Resolution != Resolution1K {
		t.Errorf("NewRequest().Resolution = %v, want %v", req.Resolution, Resolution1K)
	}
	if req.AspectRatio != AspectSquare {
		t.Errorf("NewRequest().AspectRatio = %v, want %v", req.AspectRatio, AspectSquare)
	}
}

func TestModelCapabilities_Validate(t *testing.T) {
	cap := &ModelCapabilities{
		Name:             "test-model",
		Provider:         ProviderGemini,
		SupportedAspects: []AspectRatio{AspectSquare, AspectLandscape},
		MaxPromptLen:     50,
	}

	tests := []struct {
		name    string
		req     *Request
		wantErr error
	}{
		{
			name:    "valid request",
			req:     &Request{Prompt: "test", Resolution: Resolution2K, AspectRatio: AspectSquare},
			wantErr: nil,
		},
		{
			name:    "empty prompt",
			req:     &Request{Prompt: ""},
			wantErr: ErrEmptyPrompt,
		},
		{
			name:    "prompt too long",
			req:     &Request{Prompt: "this prompt is much longer than the fifty characters the model allows"},
			wantErr: ErrPromptTooLong,
		},
		{
			name:    "invalid resolution",
			req:     &Request{Prompt: "test", Resolution: Resolution("3K")},
			wantErr: ErrInvalidResolution,
		},
		{
			name:    "invalid aspect ratio",
			req:     &Request{Prompt: "test", AspectRatio: AspectRatio("2:1")},
			wantErr: ErrInvalidAspectRatio,
		},
		{
			name:    "unsupported aspect ratio",
			req:     &Request{Prompt: "test", AspectRatio: AspectPortrait},
			wantErr: ErrAspectNotSupported,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := cap.Validate(tt.req)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestModelCapabilities_ApplyDefaults(t *testing.T) {
	cap := &ModelCapabilities{Name: "test-model", Provider: ProviderGemini}

	req := &Request{Prompt: "test"}
	cap.ApplyDefaults(req)

	if req.Model != "test-model" {
		t.Errorf("ApplyDefaults() Model = %v, want test-model", req.Model)
	}
	if req.Resolution != Resolution1K {
		t.Errorf("ApplyDefaults() Resolution = %v, want %v", req.Resolution, Resolution1K)
	}
	if req.AspectRatio != AspectSquare {
		t.Errorf("ApplyDefaults() AspectRatio = %v, want %v", req.AspectRatio, AspectSquare)
	}

	// Explicit values survive
	req2 := &Request{Prompt: "test", Model: "other", Resolution: Resolution4K, AspectRatio: AspectLandscape}
	cap.ApplyDefaults(req2)
	if req2.Model != "other" || req2.Resolution != Resolution4K || req2.AspectRatio != AspectLandscape {
		t.Errorf("ApplyDefaults() overwrote explicit values: %+v", req2)
	}
}

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()

	for _, model := range []string{"gemini-3-pro-image-preview", "gemini-2.5-flash-image", "dall-e-3", "gpt-image-1"} {
		if _, ok := r.Get(model); !ok {
			t.Errorf("DefaultRegistry() missing model %s", model)
		}
	}

	geminiDefault, ok := r.DefaultFor(ProviderGemini)
	if !ok || geminiDefault != "gemini-3-pro-image-preview" {
		t.Errorf("DefaultFor(gemini) = %v, want gemini-3-pro-image-preview", geminiDefault)
	}

	openaiDefault, ok := r.DefaultFor(ProviderOpenAI)
	if !ok || openaiDefault != "dall-e-3" {
		t.Errorf("DefaultFor(openai) = %v, want dall-e-3", openaiDefault)
	}

	geminiModels := r.ListByProvider(ProviderGemini)
	if len(geminiModels) != 2 {
		t.Errorf("ListByProvider(gemini) = %v, want 2 models", geminiModels)
	}
}
