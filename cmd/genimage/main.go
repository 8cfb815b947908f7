package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/yshirai/genimage/internal/config"
	"github.com/yshirai/genimage/internal/history"
	"github.com/yshirai/genimage/internal/image"
	"github.com/yshirai/genimage/internal/keys"
	"github.com/yshirai/genimage/internal/logging"
	"github.com/yshirai/genimage/internal/naming"
	"github.com/yshirai/genimage/internal/picker"
	"github.com/yshirai/genimage/internal/prompt"
	"github.com/yshirai/genimage/internal/provider"
	"github.com/yshirai/genimage/internal/provider/gemini"
	"github.com/yshirai/genimage/internal/provider/openai"
	"github.com/yshirai/genimage/internal/security"
	"github.com/yshirai/genimage/internal/style"
	"github.com/yshirai/genimage/pkg/models"
)

var (
	version = "dev"
	commit  = "none"
)

var (
	flagStyle      string
	flagResolution string
	flagAspect     string
	flagProvider   string
	flagModel      string
	flagOut        string
	flagPrompt     string
	flagTranslate  bool
	flagAPIKey     string
	flagDryRun     bool
	flagVerbose    bool
)

// App carries the process dependencies so tests can swap any of them.
type App struct {
	Out      io.Writer
	Err      io.Writer
	In       io.Reader
	Registry *models.ModelRegistry
	GetEnv   func(string) string

	NewProvider func(pt models.ProviderType, cfg *provider.Config) (provider.Provider, error)
	NewSaver    func() *image.Saver
	NewCatalog  func(overrideDir string) *style.Catalog
	NewKeyStore func() (*keys.Store, error)
	OpenHistory func() (*history.Store, error)
	IsTerminal  func(io.Reader) bool
}

func DefaultApp() *App {
	registry := models.DefaultRegistry()

	factory := provider.NewFactory(registry)
	factory.Register(models.ProviderGemini, func(cfg *provider.Config, reg *models.ModelRegistry) (provider.Provider, error) {
		return gemini.New(cfg, reg)
	})
	factory.Register(models.ProviderOpenAI, func(cfg *provider.Config, reg *models.ModelRegistry) (provider.Provider, error) {
		return openai.New(cfg, reg)
	})

	return &App{
		Out:      os.Stdout,
		Err:      os.Stderr,
		In:       os.Stdin,
		Registry: registry,
		GetEnv:   os.Getenv,
		NewProvider: func(pt models.ProviderType, cfg *provider.Config) (provider.Provider, error) {
			return factory.New(pt, cfg)
		},
		NewSaver:    func() *image.Saver { return image.NewSaver(nil) },
		NewCatalog:  style.NewCatalog,
		NewKeyStore: keys.NewStore,
		OpenHistory: func() (*history.Store, error) {
			path, err := history.DefaultPath()
			if err != nil {
				return nil, err
			}
			return history.Open(path)
		},
		IsTerminal: picker.IsTerminal,
	}
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	config.LoadEnvFile()

	app := DefaultApp()
	rootCmd := newRootCmd(app)
	return rootCmd.Execute()
}

func newRootCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "genimage [subject]",
		Short: "Generate styled images from short text subjects",
		Long: `genimage assembles a documented prompt from a subject, a style file and
fixed rendering parameters, then generates a PNG through the Gemini or
OpenAI image API.

Examples:
  genimage -s blueprint "suspension bridge"
  genimage -s watercolor -r 4K -a 16:9 "mountain lake at dawn"
  genimage -s neon --dry-run "retro diner sign"
  genimage --prompt "full prompt text" --out render.png`,
		Args:          cobra.MaximumNArgs(1),
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, args, app)
		},
	}

	cmd.Flags().StringVarP(&flagStyle, "style", "s", "", "style name (blueprint, watercolor, neon)")
	cmd.Flags().StringVarP(&flagResolution, "resolution", "r", "", "resolution (1K, 2K, 4K)")
	cmd.Flags().StringVarP(&flagAspect, "aspect", "a", "", "aspect ratio (1:1, 9:16, 16:9)")
	cmd.Flags().StringVarP(&flagProvider, "provider", "p", "", "provider (gemini, openai)")
	cmd.Flags().StringVarP(&flagModel, "model", "m", "", "model override")
	cmd.Flags().StringVarP(&flagOut, "out", "o", "", "output path (default: derived from the subject)")
	cmd.Flags().StringVar(&flagPrompt, "prompt", "", "send this prompt as-is, bypassing style assembly")
	cmd.Flags().BoolVar(&flagTranslate, "translate", false, "translate the subject to English before assembly")
	cmd.Flags().StringVar(&flagAPIKey, "api-key", "", "API key (overrides stored key and environment)")
	cmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "print the assembled prompt and output path without calling the API")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "verbose logging")

	cmd.AddCommand(
		newStylesCmd(app),
		newKeysCmd(app),
		newHistoryCmd(app),
		newBatchCmd(app),
		newSkillCmd(app),
		newVersionCmd(app),
	)

	return cmd
}

func runGenerate(_ *cobra.Command, args []string, app *App) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := logging.New(app.Err, flagVerbose)
	cfg := config.Load()

	if flagPrompt != "" && len(args) > 0 {
		return fmt.Errorf("--prompt and a subject argument are mutually exclusive")
	}

	var pick *picker.Picker
	if app.IsTerminal(app.In) {
		pick = picker.New(app.In, app.Out)
	}

	pt, model, err := resolveProviderAndModel(flagProvider, flagModel, app.Registry)
	if err != nil {
		return err
	}
	caps, _ := app.Registry.Get(model)

	var (
		subject    string
		st         style.Style
		resolution models.Resolution
		aspect     models.AspectRatio
		assembled  string
	)
	if flagPrompt != "" {
		// The script contract: the text goes out as-is, parameters come
		// from flags or defaults, nothing is prompted for.
		assembled = flagPrompt
		if resolution, aspect, err = resolveParameters(nil); err != nil {
			return err
		}
	} else {
		subject, err = resolveSubject(args, pick)
		if err != nil {
			return err
		}

		catalog := app.NewCatalog(cfg.StyleDir)
		st, err = resolveStyle(catalog, pick, app.Err)
		if err != nil {
			return err
		}

		if resolution, aspect, err = resolveParameters(pick); err != nil {
			return err
		}

		assembled = prompt.Assemble(subject, st, resolution, aspect)
	}

	outPath, err := resolveOutputPath(flagOut, subject)
	if err != nil {
		return err
	}

	// The dry run ends here, before any key lookup or network work.
	if flagDryRun {
		fmt.Fprintln(app.Out, assembled)
		fmt.Fprintf(app.Out, "Output: %s\n", outPath)
		return nil
	}

	store, err := app.NewKeyStore()
	if err != nil {
		logger.Warn().Err(err).Msg("key store unavailable, falling back to environment")
		store = nil
	}
	apiKey, keySource, err := keys.Resolve(store, pt, flagAPIKey, app.GetEnv)
	if err != nil {
		return err
	}
	logger.Debug().Str("provider", pt.String()).Str("source", keySource).Msg("resolved API key")

	prov, err := app.NewProvider(pt, &provider.Config{
		APIKey:  apiKey,
		BaseURL: baseURLFor(cfg, pt),
		Timeout: cfg.HTTPTimeout,
		Verbose: flagVerbose,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create provider: %w", err)
	}

	if flagTranslate && flagPrompt == "" {
		translated := prompt.TranslateSubject(ctx, prov, subject, logger)
		assembled = prompt.Assemble(translated, st, resolution, aspect)
	}

	req := models.NewRequest(assembled)
	req.Model = model
	req.Resolution = resolution
	req.AspectRatio = aspect
	if err := caps.Validate(req); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}

	fmt.Fprintf(app.Out, "Generating with %s...\n", model)

	start := time.Now()
	resp, err := prov.Generate(ctx, req)
	if err != nil {
		return fmt.Errorf("generation failed: %w", err)
	}

	saver := app.NewSaver()
	saved, err := saver.SaveAll(ctx, resp, outPath)
	if err != nil {
		return err
	}

	for _, f := range saved {
		fmt.Fprintf(app.Out, "Saved image: %s\n", f.Path)
	}
	if resp.Text != "" {
		logger.Debug().Str("text", resp.Text).Msg("model returned text alongside the image")
	}

	if !cfg.HistoryDisabled {
		recordHistory(ctx, app, logger, &history.Entry{
			Provider:    pt.String(),
			Model:       model,
			Style:       st.Name,
			Subject:     subject,
			Prompt:      assembled,
			Resolution:  resolution.String(),
			AspectRatio: aspect.String(),
			OutputPath:  saved[0].Path,
			Bytes:       int64(saved[0].Bytes),
			Duration:    time.Since(start),
		})
	}

	return nil
}

// resolveSubject takes the subject from the argument list, falling back
// to an interactive prompt on a terminal.
func resolveSubject(args []string, pick *picker.Picker) (string, error) {
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		return args[0], nil
	}
	if pick == nil {
		return "", fmt.Errorf("subject required: pass it as an argument or run on a terminal")
	}
	return pick.Line("Subject")
}

// resolveStyle resolves --style against the catalog. A missing or
// unknown style opens the picker on a terminal; otherwise the error
// lists the valid names.
func resolveStyle(catalog *style.Catalog, pick *picker.Picker, errOut io.Writer) (style.Style, error) {
	if flagStyle != "" {
		st, err := catalog.Get(flagStyle)
		if err == nil {
			return st, nil
		}
		if pick == nil {
			return style.Style{}, err
		}
		fmt.Fprintf(errOut, "%v\n", err)
	}

	if pick == nil {
		return style.Style{}, fmt.Errorf("style required: choose one of %s", strings.Join(catalog.Names(), ", "))
	}

	name, err := pick.Select("Available styles", catalog.Names())
	if err != nil {
		return style.Style{}, err
	}
	return catalog.Get(name)
}

// resolveParameters resolves the resolution and aspect flags. On a
// terminal, a missing or invalid value opens the picker; otherwise a
// missing value takes the first member of the set and an invalid one
// errors.
func resolveParameters(pick *picker.Picker) (models.Resolution, models.AspectRatio, error) {
	resolution := models.ValidResolutions()[0]
	switch {
	case flagResolution != "":
		parsed, err := models.ParseResolution(flagResolution)
		if err != nil {
			if pick == nil {
				return "", "", err
			}
			choice, perr := pick.Select("Resolutions", resolutionNames())
			if perr != nil {
				return "", "", perr
			}
			parsed, _ = models.ParseResolution(choice)
		}
		resolution = parsed
	case pick != nil:
		choice, err := pick.Select("Resolutions", resolutionNames())
		if err != nil {
			return "", "", err
		}
		resolution, _ = models.ParseResolution(choice)
	}

	aspect := models.ValidAspectRatios()[0]
	switch {
	case flagAspect != "":
		parsed, err := models.ParseAspectRatio(flagAspect)
		if err != nil {
			if pick == nil {
				return "", "", err
			}
			choice, perr := pick.Select("Aspect ratios", aspectNames())
			if perr != nil {
				return "", "", perr
			}
			parsed, _ = models.ParseAspectRatio(choice)
		}
		aspect = parsed
	case pick != nil:
		choice, err := pick.Select("Aspect ratios", aspectNames())
		if err != nil {
			return "", "", err
		}
		aspect, _ = models.ParseAspectRatio(choice)
	}

	return resolution, aspect, nil
}

func resolutionNames() []string {
	all := models.ValidResolutions()
	names := make([]string, len(all))
	for i, r := range all {
		names[i] = r.String()
	}
	return names
}

func aspectNames() []string {
	all := models.ValidAspectRatios()
	names := make([]string, len(all))
	for i, a := range all {
		names[i] = a.String()
	}
	return names
}

// resolveProviderAndModel maps the provider/model flags to a concrete
// pair. A model flag pins the provider; a bare provider flag selects
// that provider's default model; neither means gemini and its default.
func resolveProviderAndModel(providerFlag, modelFlag string, registry *models.ModelRegistry) (models.ProviderType, string, error) {
	if modelFlag != "" {
		caps, ok := registry.Get(modelFlag)
		if !ok {
			return "", "", fmt.Errorf("%w: %q (known: %v)", models.ErrUnknownModel, modelFlag, registry.List())
		}
		if providerFlag != "" {
			pt, err := models.ParseProvider(providerFlag)
			if err != nil {
				return "", "", err
			}
			if caps.Provider != pt {
				return "", "", fmt.Errorf("model %q belongs to provider %s, not %s", modelFlag, caps.Provider, pt)
			}
		}
		return caps.Provider, modelFlag, nil
	}

	pt := models.ProviderGemini
	if providerFlag != "" {
		parsed, err := models.ParseProvider(providerFlag)
		if err != nil {
			return "", "", err
		}
		pt = parsed
	}

	model, ok := registry.DefaultFor(pt)
	if !ok {
		return "", "", fmt.Errorf("no default model registered for provider %s", pt)
	}
	return pt, model, nil
}

// resolveOutputPath turns --out into a concrete file path. An empty
// flag derives the name from the subject; a directory (existing or
// marked by a trailing separator) receives the derived basename.
func resolveOutputPath(out, subject string) (string, error) {
	derived := naming.FromSubject(subject)

	switch {
	case out == "":
		out = derived
	case strings.HasSuffix(out, "/") || strings.HasSuffix(out, string(os.PathSeparator)):
		out = filepath.Join(out, derived)
	default:
		if info, err := os.Stat(out); err == nil && info.IsDir() {
			out = filepath.Join(out, derived)
		} else {
			out = naming.EnsurePNG(out)
		}
	}

	if err := security.ValidateOutputPath(out); err != nil {
		return "", err
	}
	return out, nil
}

func baseURLFor(cfg *config.Config, pt models.ProviderType) string {
	switch pt {
	case models.ProviderGemini:
		return cfg.GeminiBaseURL
	case models.ProviderOpenAI:
		return cfg.OpenAIBaseURL
	default:
		return ""
	}
}

// recordHistory is best effort; the image is already on disk.
func recordHistory(ctx context.Context, app *App, logger zerolog.Logger, e *history.Entry) {
	store, err := app.OpenHistory()
	if err != nil {
		logger.Warn().Err(err).Msg("history unavailable")
		return
	}
	defer store.Close()

	if err := store.Record(ctx, e); err != nil {
		logger.Warn().Err(err).Msg("failed to record history entry")
	}
}

func newVersionCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the genimage version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(app.Out, "genimage %s (commit: %s)\n", version, commit)
		},
	}
}
