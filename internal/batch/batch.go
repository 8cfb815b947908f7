package batch

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/yshirai/genimage/internal/config"
	"github.com/yshirai/genimage/internal/history"
	"github.com/yshirai/genimage/internal/image"
	"github.com/yshirai/genimage/internal/naming"
	"github.com/yshirai/genimage/internal/prompt"
	"github.com/yshirai/genimage/internal/provider"
	"github.com/yshirai/genimage/internal/style"
	"github.com/yshirai/genimage/pkg/models"
)

type Result struct {
	Index    int
	Subject  string
	Prompt   string
	Path     string
	Bytes    int
	Error    error
	Duration time.Duration
}

type Options struct {
	OutputDir   string
	Model       string
	Style       string
	Resolution  models.Resolution
	AspectRatio models.AspectRatio
	Concurrency int
	RPS         float64
	FailFast    bool
}

type Runner struct {
	provider provider.Provider
	saver    *image.Saver
	registry *models.ModelRegistry
	catalog  *style.Catalog
	history  *history.Store
	logger   zerolog.Logger
	out      io.Writer
	errOut   io.Writer
	outMu    sync.Mutex
}

// NewRunner wires a batch runner. The history store may be nil, in
// which case runs are not recorded.
func NewRunner(prov provider.Provider, saver *image.Saver, registry *models.ModelRegistry,
	catalog *style.Catalog, hist *history.Store, logger zerolog.Logger, out, errOut io.Writer) *Runner {
	return &Runner{
		provider: prov,
		saver:    saver,
		registry: registry,
		catalog:  catalog,
		history:  hist,
		logger:   logger,
		out:      out,
		errOut:   errOut,
	}
}

func (r *Runner) printf(format string, args ...interface{}) {
	r.outMu.Lock()
	fmt.Fprintf(r.out, format, args...)
	r.outMu.Unlock()
}

func (r *Runner) errorf(format string, args ...interface{}) {
	r.outMu.Lock()
	fmt.Fprintf(r.errOut, format, args...)
	r.outMu.Unlock()
}

// Run generates every item, bounded by the configured concurrency and
// request rate. Results arrive in item order regardless of completion
// order. With FailFast the first failure cancels the remaining items.
func (r *Runner) Run(ctx context.Context, items []Item, opts *Options) ([]Result, error) {
	results := make([]Result, len(items))
	total := len(items)

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = config.DefaultBatchConcurrency
	}
	rps := opts.RPS
	if rps <= 0 {
		rps = config.DefaultBatchRPS
	}
	limiter := rate.NewLimiter(rate.Limit(rps), 1)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, item := range items {
		g.Go(func() error {
			if err := limiter.Wait(gctx); err != nil {
				results[i] = Result{Index: item.Index, Subject: item.Subject, Error: err}
				return nil
			}

			res := r.runItem(gctx, item, opts, total)
			results[i] = res

			if res.Error != nil && opts.FailFast {
				return fmt.Errorf("item %d: %w", item.Index, res.Error)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		// Items the cancellation kept from running would otherwise
		// show up as successes in the summary.
		for i := range results {
			if results[i].Path == "" && results[i].Error == nil {
				results[i] = Result{Index: items[i].Index, Subject: items[i].Subject, Error: context.Canceled}
			}
		}
		return results, fmt.Errorf("batch stopped: %w", err)
	}
	return results, nil
}

func (r *Runner) runItem(ctx context.Context, item Item, opts *Options, total int) Result {
	start := time.Now()
	result := Result{Index: item.Index, Subject: item.Subject}

	r.printf("[%d/%d] Generating: %q...\n", item.Index, total, truncate(item.Subject, 50))

	styleName := item.Style
	if styleName == "" {
		styleName = opts.Style
	}
	st, err := r.catalog.Get(styleName)
	if err != nil {
		return r.fail(result, start, err)
	}

	model := item.Model
	if model == "" {
		model = opts.Model
	}
	caps, ok := r.registry.Get(model)
	if !ok {
		return r.fail(result, start, fmt.Errorf("%w: %s", models.ErrUnknownModel, model))
	}

	req := models.NewRequest("")
	req.Model = model
	req.Resolution = opts.Resolution
	req.AspectRatio = opts.AspectRatio
	caps.ApplyDefaults(req)

	req.Prompt = prompt.Assemble(item.Subject, st, req.Resolution, req.AspectRatio)
	result.Prompt = req.Prompt

	if err := caps.Validate(req); err != nil {
		return r.fail(result, start, fmt.Errorf("validation failed: %w", err))
	}

	resp, err := r.provider.Generate(ctx, req)
	if err != nil {
		return r.fail(result, start, fmt.Errorf("generation failed: %w", err))
	}

	filename := fmt.Sprintf("%03d-%s", item.Index, naming.FromSubject(item.Subject))
	outputPath := filepath.Join(opts.OutputDir, filename)

	saved, err := r.saver.SaveAll(ctx, resp, outputPath)
	if err != nil {
		return r.fail(result, start, fmt.Errorf("save failed: %w", err))
	}

	result.Path = saved[0].Path
	result.Bytes = saved[0].Bytes
	result.Duration = time.Since(start)
	r.printf("       Saved: %s\n", result.Path)

	r.record(ctx, item, st.Name, req, &result)

	return result
}

func (r *Runner) fail(result Result, start time.Time, err error) Result {
	result.Error = err
	result.Duration = time.Since(start)
	r.errorf("       Error: %v\n", err)
	return result
}

func (r *Runner) record(ctx context.Context, item Item, styleName string, req *models.Request, res *Result) {
	if r.history == nil {
		return
	}

	entry := &history.Entry{
		Provider:    r.provider.Name().String(),
		Model:       req.Model,
		Style:       styleName,
		Subject:     item.Subject,
		Prompt:      req.Prompt,
		Resolution:  req.Resolution.String(),
		AspectRatio: req.AspectRatio.String(),
		OutputPath:  res.Path,
		Bytes:       int64(res.Bytes),
		Duration:    res.Duration,
	}
	if err := r.history.Record(ctx, entry); err != nil {
		// Recording is best effort; the image is already on disk.
		r.logger.Warn().Err(err).Str("path", res.Path).Msg("failed to record history entry")
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func (r *Runner) PrintSummary(results []Result) {
	var successful, failed int
	var totalBytes uint64
	var failures []Result

	for _, res := range results {
		if res.Error != nil {
			failed++
			failures = append(failures, res)
		} else {
			successful++
			totalBytes += uint64(res.Bytes)
		}
	}

	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, "Summary:")
	fmt.Fprintf(r.out, "  Successful: %d/%d images\n", successful, len(results))
	if failed > 0 {
		fmt.Fprintf(r.out, "  Failed: %d (see errors below)\n", failed)
	}
	fmt.Fprintf(r.out, "  Total written: %s\n", humanize.Bytes(totalBytes))

	if len(failures) > 0 {
		fmt.Fprintln(r.out)
		fmt.Fprintln(r.out, "Errors:")
		for _, f := range failures {
			fmt.Fprintf(r.out, "  [%d] %q: %v\n", f.Index, truncate(f.Subject, 40), f.Error)
		}
	}
}
