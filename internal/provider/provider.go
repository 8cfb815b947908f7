package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/yshirai/genimage/pkg/models"
)

var (
	ErrProviderNotFound  = errors.New("provider not found")
	ErrAPIKeyRequired    = errors.New("API key is required")
	ErrGenerationFailed  = errors.New("image generation failed")
	ErrTranslationFailed = errors.New("translation failed")
	ErrNoImageReturned   = errors.New("no image data returned by the model")
)

type Provider interface {
	Name() models.ProviderType
	Generate(ctx context.Context, req *models.Request) (*models.Response, error)
	Translate(ctx context.Context, text string) (string, error)
	SupportsModel(model string) bool
	ListModels() []string
}

type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
	Verbose bool
	Logger  zerolog.Logger
}

// Constructor builds a concrete provider from a config. Each provider
// package exposes one.
type Constructor func(cfg *Config, registry *models.ModelRegistry) (Provider, error)

// Factory instantiates providers by type. Providers are constructed
// per invocation because the API key is only resolved once the
// provider choice is known.
type Factory struct {
	registry     *models.ModelRegistry
	constructors map[models.ProviderType]Constructor
}

func NewFactory(registry *models.ModelRegistry) *Factory {
	return &Factory{
		registry:     registry,
		constructors: make(map[models.ProviderType]Constructor),
	}
}

func (f *Factory) Register(pt models.ProviderType, ctor Constructor) {
	f.constructors[pt] = ctor
}

func (f *Factory) New(pt models.ProviderType, cfg *Config) (Provider, error) {
	ctor, ok := f.constructors[pt]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, pt)
	}
	return ctor(cfg, f.registry)
}

// ProviderFor maps a model name to the provider that serves it.
func (f *Factory) ProviderFor(model string) (models.ProviderType, error) {
	cap, ok := f.registry.Get(model)
	if !ok {
		return "", fmt.Errorf("%w: %q (known: %v)", models.ErrUnknownModel, model, f.registry.List())
	}
	return cap.Provider, nil
}

func (f *Factory) Registry() *models.ModelRegistry {
	return f.registry
}
