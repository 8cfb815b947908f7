package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yshirai/genimage/internal/batch"
	"github.com/yshirai/genimage/internal/config"
	"github.com/yshirai/genimage/internal/history"
	"github.com/yshirai/genimage/internal/keys"
	"github.com/yshirai/genimage/internal/logging"
	"github.com/yshirai/genimage/internal/provider"
	"github.com/yshirai/genimage/pkg/models"
)

var (
	flagBatchStyle       string
	flagBatchOut         string
	flagBatchProvider    string
	flagBatchModel       string
	flagBatchResolution  string
	flagBatchAspect      string
	flagBatchAPIKey      string
	flagBatchConcurrency int
	flagBatchRPS         float64
	flagBatchFailFast    bool
)

func newBatchCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch FILE",
		Short: "Generate images for every subject in a file",
		Long: `batch reads subjects from a text file (one per line, # comments) or a
JSON array and generates an image for each. JSON items may override the
style and model per subject.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, args, app)
		},
	}

	cmd.Flags().StringVarP(&flagBatchStyle, "style", "s", "", "style applied to items without one of their own")
	cmd.Flags().StringVarP(&flagBatchOut, "out", "o", "", "output directory (default: current directory)")
	cmd.Flags().StringVarP(&flagBatchProvider, "provider", "p", "", "provider (gemini, openai)")
	cmd.Flags().StringVarP(&flagBatchModel, "model", "m", "", "model override")
	cmd.Flags().StringVarP(&flagBatchResolution, "resolution", "r", "", "resolution (1K, 2K, 4K)")
	cmd.Flags().StringVarP(&flagBatchAspect, "aspect", "a", "", "aspect ratio (1:1, 9:16, 16:9)")
	cmd.Flags().StringVar(&flagBatchAPIKey, "api-key", "", "API key (overrides stored key and environment)")
	cmd.Flags().IntVarP(&flagBatchConcurrency, "concurrency", "c", 0, "parallel generations (default from config)")
	cmd.Flags().Float64Var(&flagBatchRPS, "rps", 0, "request rate limit per second (default from config)")
	cmd.Flags().BoolVar(&flagBatchFailFast, "fail-fast", false, "stop at the first failure")

	return cmd
}

func runBatch(_ *cobra.Command, args []string, app *App) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := logging.New(app.Err, flagVerbose)
	cfg := config.Load()

	items, err := batch.ParseFile(args[0])
	if err != nil {
		return err
	}

	if flagBatchStyle == "" {
		for _, item := range items {
			if item.Style == "" {
				return fmt.Errorf("item %d (%q) has no style: pass --style or set one per item", item.Index, item.Subject)
			}
		}
	}

	resolution := models.ValidResolutions()[0]
	if flagBatchResolution != "" {
		if resolution, err = models.ParseResolution(flagBatchResolution); err != nil {
			return err
		}
	}
	aspect := models.ValidAspectRatios()[0]
	if flagBatchAspect != "" {
		if aspect, err = models.ParseAspectRatio(flagBatchAspect); err != nil {
			return err
		}
	}

	pt, model, err := resolveProviderAndModel(flagBatchProvider, flagBatchModel, app.Registry)
	if err != nil {
		return err
	}

	store, err := app.NewKeyStore()
	if err != nil {
		logger.Warn().Err(err).Msg("key store unavailable, falling back to environment")
		store = nil
	}
	apiKey, keySource, err := keys.Resolve(store, pt, flagBatchAPIKey, app.GetEnv)
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

	var hist *history.Store
	if !cfg.HistoryDisabled {
		if hist, err = app.OpenHistory(); err != nil {
			logger.Warn().Err(err).Msg("history unavailable")
			hist = nil
		} else {
			defer hist.Close()
		}
	}

	outputDir := flagBatchOut
	if outputDir == "" {
		outputDir = "."
	}
	concurrency := flagBatchConcurrency
	if concurrency <= 0 {
		concurrency = cfg.BatchConcurrency
	}
	rps := flagBatchRPS
	if rps <= 0 {
		rps = cfg.BatchRPS
	}

	fmt.Fprintf(app.Out, "Generating %d images with %s...\n", len(items), model)

	runner := batch.NewRunner(prov, app.NewSaver(), app.Registry, app.NewCatalog(cfg.StyleDir), hist, logger, app.Out, app.Err)
	results, runErr := runner.Run(ctx, items, &batch.Options{
		OutputDir:   outputDir,
		Model:       model,
		Style:       flagBatchStyle,
		Resolution:  resolution,
		AspectRatio: aspect,
		Concurrency: concurrency,
		RPS:         rps,
		FailFast:    flagBatchFailFast,
	})
	runner.PrintSummary(results)
	if runErr != nil {
		return runErr
	}

	failed := 0
	for _, res := range results {
		if res.Error != nil {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d generations failed", failed, len(results))
	}
	return nil
}
