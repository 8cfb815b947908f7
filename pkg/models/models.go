package models

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
)

var (
	ErrEmptyPrompt        = errors.New("prompt cannot be empty")
	ErrPromptTooLong      = errors.New("prompt exceeds maximum length for model")
	ErrInvalidResolution  = errors.New("invalid resolution")
	ErrInvalidAspectRatio = errors.New("invalid aspect ratio")
	ErrAspectNotSupported = errors.New("aspect ratio not supported by model")
	ErrUnknownModel       = errors.New("unknown model")
	ErrUnknownProvider    = errors.New("unknown provider")
)

type ProviderType string

const (
	ProviderGemini ProviderType = "gemini"
	ProviderOpenAI ProviderType = "openai"
)

func ValidProviders() []ProviderType {
	return []ProviderType{ProviderGemini, ProviderOpenAI}
}

func (p ProviderType) IsValid() bool {
	return slices.Contains(ValidProviders(), p)
}

func (p ProviderType) String() string {
	return string(p)
}

// EnvVar returns the environment variable consulted for this provider's
// API key.
func (p ProviderType) EnvVar() string {
	switch p {
	case ProviderGemini:
		return "GEMINI_API_KEY"
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	default:
		return ""
	}
}

func ParseProvider(s string) (ProviderType, error) {
	p := ProviderType(strings.ToLower(strings.TrimSpace(s)))
	if !p.IsValid() {
		return "", fmt.Errorf("%w: %q (valid: %v)", ErrUnknownProvider, s, ValidProviders())
	}
	return p, nil
}

type Resolution string

const (
	Resolution1K Resolution = "1K"
	Resolution2K Resolution = "2K"
	Resolution4K Resolution = "4K"
)

// ValidResolutions returns the closed set of resolutions in presentation
// order. The first entry is the default.
func ValidResolutions() []Resolution {
	return []Resolution{Resolution1K, Resolution2K, Resolution4K}
}

func (r Resolution) IsValid() bool {
	return slices.Contains(ValidResolutions(), r)
}

func (r Resolution) String() string {
	return string(r)
}

func ParseResolution(s string) (Resolution, error) {
	r := Resolution(strings.ToUpper(strings.TrimSpace(s)))
	if !r.IsValid() {
		return "", fmt.Errorf("%w: %q (valid: %v)", ErrInvalidResolution, s, ValidResolutions())
	}
	return r, nil
}

type AspectRatio string

const (
	AspectSquare    AspectRatio = "1:1"
	AspectPortrait  AspectRatio = "9:16"
	AspectLandscape AspectRatio = "16:9"
)

// ValidAspectRatios returns the closed set of aspect ratios in
// presentation order. The first entry is the default.
func ValidAspectRatios() []AspectRatio {
	return []AspectRatio{AspectSquare, AspectPortrait, AspectLandscape}
}

func (a AspectRatio) IsValid() bool {
	return slices.Contains(ValidAspectRatios(), a)
}

func (a AspectRatio) String() string {
	return string(a)
}

func ParseAspectRatio(s string) (AspectRatio, error) {
	a := AspectRatio(strings.TrimSpace(s))
	if !a.IsValid() {
		return "", fmt.Errorf("%w: %q (valid: %v)", ErrInvalidAspectRatio, s, ValidAspectRatios())
	}
	return a, nil
}

type Request struct {
	Prompt      string
	Model       string
	Resolution  Resolution
	AspectRatio AspectRatio
}

func NewRequest(prompt string) *Request {
	return &Request{
		Prompt:      prompt,
		Resolution:  Resolution1K,
		AspectRatio: AspectSquare,
	}
}

type Response struct {
	Images []GeneratedImage
	// Text carries any text the model returned alongside or instead of
	// image data, e.g. a safety refusal.
	Text string
}

type GeneratedImage struct {
	Data     []byte
	URL      string
	MimeType string
	Index    int
	Filename string
}

type ModelCapabilities struct {
	Name               string
	Provider           ProviderType
	SupportedAspects   []AspectRatio
	SupportsResolution bool
	MaxPromptLen       int
	Default            bool
}

func (c *ModelCapabilities) Validate(req *Request) error {
	if req.Prompt == "" {
		return ErrEmptyPrompt
	}

	if c.MaxPromptLen > 0 && len(req.Prompt) > c.MaxPromptLen {
		return fmt.Errorf("%w: max %d characters, got %d", ErrPromptTooLong, c.MaxPromptLen, len(req.Prompt))
	}

	if req.Resolution != "" && !req.Resolution.IsValid() {
		return fmt.Errorf("%w: %q (valid: %v)", ErrInvalidResolution, req.Resolution, ValidResolutions())
	}

	if req.AspectRatio != "" {
		if !req.AspectRatio.IsValid() {
			return fmt.Errorf("%w: %q (valid: %v)", ErrInvalidAspectRatio, req.AspectRatio, ValidAspectRatios())
		}
		if len(c.SupportedAspects) > 0 && !slices.Contains(c.SupportedAspects, req.AspectRatio) {
			return fmt.Errorf("%w: %q not in %v", ErrAspectNotSupported, req.AspectRatio, c.SupportedAspects)
		}
	}

	return nil
}

func (c *ModelCapabilities) ApplyDefaults(req *Request) {
	if req.Model == "" {
		req.Model = c.Name
	}
	if req.Resolution == "" {
		req.Resolution = ValidResolutions()[0]
	}
	if req.AspectRatio == "" {
		req.AspectRatio = ValidAspectRatios()[0]
	}
}

type ModelRegistry struct {
	models map[string]*ModelCapabilities
}

func NewModelRegistry() *ModelRegistry {
	return &ModelRegistry{
		models: make(map[string]*ModelCapabilities),
	}
}

func (r *ModelRegistry) Register(cap *ModelCapabilities) {
	r.models[cap.Name] = cap
}

func (r *ModelRegistry) Get(name string) (*ModelCapabilities, bool) {
	cap, ok := r.models[name]
	return cap, ok
}

func (r *ModelRegistry) List() []string {
	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *ModelRegistry) ListByProvider(provider ProviderType) []string {
	var names []string
	for name, cap := range r.models {
		if cap.Provider == provider {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// DefaultFor returns the default model name for a provider.
func (r *ModelRegistry) DefaultFor(provider ProviderType) (string, bool) {
	for name, cap := range r.models {
		if cap.Provider == provider && cap.Default {
			return name, true
		}
	}
	return "", false
}

func DefaultRegistry() *ModelRegistry {
	r := NewModelRegistry()

	r.Register(&ModelCapabilities{
		Name:               "gemini-3-pro-image-preview",
		Provider:           ProviderGemini,
		SupportedAspects:   ValidAspectRatios(),
		SupportsResolution: true,
		Default:            true,
	})

	r.Register(&ModelCapabilities{
		Name:               "gemini-2.5-flash-image",
		Provider:           ProviderGemini,
		SupportedAspects:   ValidAspectRatios(),
		SupportsResolution: false,
	})

	r.Register(&ModelCapabilities{
		Name:               "dall-e-3",
		Provider:           ProviderOpenAI,
		SupportedAspects:   ValidAspectRatios(),
		SupportsResolution: true,
		MaxPromptLen:       4000,
		Default:            true,
	})

	r.Register(&ModelCapabilities{
		Name:               "gpt-image-1",
		Provider:           ProviderOpenAI,
		SupportedAspects:   ValidAspectRatios(),
		SupportsResolution: true,
		MaxPromptLen:       32000,
	})

	return r
}
