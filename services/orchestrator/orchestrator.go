// Package orchestrator runs source adapters and hands their output to the
// reconciliation engine.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"lapets-backend/lib/scraper"
	"lapets-backend/services/reconcile"
	"lapets-backend/services/registry"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("lapets/services/orchestrator")

var ErrUnknownShelter = errors.New("unknown shelter")

type Reconciler interface {
	Reconcile(ctx context.Context, batch reconcile.Batch) (reconcile.Stats, error)
}

// Notifier is told about every run that had a failing source.
type Notifier interface {
	Notify(ctx context.Context, summary Summary) error
}

type Options struct {
	// Parallelism bounds how many sources are scraped at once, values
	// below 2 scrape one source at a time.
	Parallelism int
	Notifier    Notifier
}

type SourceResult struct {
	SourceKey string
	Name      string
	// Shelters holds one result per scraped location.
	Shelters []scraper.Result
	Success  bool
	Err      error
	Found    int
	Stats    reconcile.Stats
	// ReconcileErr is set when the results could not be fully stored.
	ReconcileErr error
	Duration     time.Duration
}

type Summary struct {
	Sources            []SourceResult
	TotalSources       int
	SuccessfulSources  int
	TotalShelters      int
	SuccessfulShelters int
	TotalAnimalsFound  int
	TotalDuration      time.Duration
}

// Failed lists the sources that did not scrape or store cleanly.
func (s Summary) Failed() []SourceResult {
	var out []SourceResult
	for _, r := range s.Sources {
		if !r.Success || r.ReconcileErr != nil {
			out = append(out, r)
		}
	}
	return out
}

// summarize totals results, elapsed is the wall time of the whole run,
// source durations overlap when sources are scraped in parallel.
func summarize(results []SourceResult, elapsed time.Duration) Summary {
	summary := Summary{
		Sources:       results,
		TotalSources:  len(results),
		TotalDuration: elapsed,
	}
	for _, r := range results {
		if r.Success {
			summary.SuccessfulSources++
		}
		for _, shelter := range r.Shelters {
			summary.TotalShelters++
			if shelter.Success {
				summary.SuccessfulShelters++
			}
		}
		summary.TotalAnimalsFound += r.Found
	}
	return summary
}

type Orchestrator struct {
	registry *registry.Registry
	store    registry.ShelterStore
	engine   Reconciler
	opts     Options
}

func New(reg *registry.Registry, store registry.ShelterStore, engine Reconciler, opts Options) *Orchestrator {
	return &Orchestrator{
		registry: reg,
		store:    store,
		engine:   engine,
		opts:     opts,
	}
}

func (o *Orchestrator) initialize(ctx context.Context) {
	err := o.registry.InitializeShelterMetadata(ctx, o.store)
	if err != nil {
		slog.ErrorContext(ctx, "failed to initialize shelter metadata", "err", err)
	}
}

// RunAll scrapes and reconciles every registered source. A failing source
// never affects the others.
func (o *Orchestrator) RunAll(ctx context.Context) Summary {
	ctx, span := tracer.Start(ctx, "RunAll")
	defer span.End()

	start := time.Now()
	o.initialize(ctx)

	keys := o.registry.SourceKeys()
	results := make([]SourceResult, len(keys))

	parallelism := o.opts.Parallelism
	if parallelism < 1 {
		parallelism = 1
	}
	sem := make(chan struct{}, parallelism)
	wg := sync.WaitGroup{}
	for i, key := range keys {
		adapter, err := o.registry.Adapter(key)
		if err != nil {
			results[i] = SourceResult{SourceKey: key, Err: err}
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(i int, adapter scraper.Adapter) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = o.runSource(ctx, adapter, "", nil)
		}(i, adapter)
	}
	wg.Wait()

	summary := summarize(results, time.Since(start))
	span.SetAttributes(
		attribute.Int("sources", summary.TotalSources),
		attribute.Int("successful", summary.SuccessfulSources),
		attribute.Int("found", summary.TotalAnimalsFound),
	)
	o.report(ctx, summary)
	return summary
}

// RunOne scrapes and reconciles a single source, it only fails when the
// source is unknown.
func (o *Orchestrator) RunOne(ctx context.Context, sourceKey string) (Summary, error) {
	ctx, span := tracer.Start(ctx, "RunOne")
	defer span.End()
	span.SetAttributes(attribute.String("source", sourceKey))

	adapter, err := o.registry.Adapter(sourceKey)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "unknown source")
		return Summary{}, err
	}

	start := time.Now()
	o.initialize(ctx)
	summary := summarize([]SourceResult{o.runSource(ctx, adapter, "", nil)}, time.Since(start))
	o.report(ctx, summary)
	return summary, nil
}

// RunShelter scrapes only one location of its source. Retirement is
// limited to that location.
func (o *Orchestrator) RunShelter(ctx context.Context, slug string) (Summary, error) {
	ctx, span := tracer.Start(ctx, "RunShelter")
	defer span.End()
	span.SetAttributes(attribute.String("shelter", slug))

	shelter, ok := o.registry.ShelterBySlug(slug)
	if !ok {
		err := fmt.Errorf("%w: %q", ErrUnknownShelter, slug)
		span.RecordError(err)
		span.SetStatus(codes.Error, "unknown shelter")
		return Summary{}, err
	}
	adapter, err := o.registry.Adapter(shelter.SourceKey)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "unknown source")
		return Summary{}, err
	}

	start := time.Now()
	o.initialize(ctx)
	summary := summarize([]SourceResult{o.runSource(ctx, adapter, slug, []string{slug})}, time.Since(start))
	o.report(ctx, summary)
	return summary, nil
}

func (o *Orchestrator) runSource(ctx context.Context, adapter scraper.Adapter, filter string, scope []string) SourceResult {
	ctx, span := tracer.Start(ctx, "runSource")
	defer span.End()
	span.SetAttributes(attribute.String("source", adapter.SourceKey()))

	start := time.Now()
	shelters := scraper.Guard(ctx, adapter, filter)

	result := SourceResult{
		SourceKey: adapter.SourceKey(),
		Name:      adapter.Name(),
		Shelters:  shelters,
		Success:   len(shelters) > 0,
	}
	var animals []scraper.ScrapedAnimal
	for _, s := range shelters {
		animals = append(animals, s.Animals...)
		if !s.Success {
			result.Success = false
			if result.Err == nil {
				result.Err = s.Err
			}
		}
	}
	if len(shelters) == 0 {
		result.Err = fmt.Errorf("%s returned no shelters", adapter.SourceKey())
	}
	if !result.Success && result.Err == nil {
		result.Err = fmt.Errorf("%s failed", adapter.SourceKey())
	}
	result.Found = len(animals)

	stats, err := o.engine.Reconcile(ctx, reconcile.Batch{
		SourceKey: adapter.SourceKey(),
		Animals:   animals,
		Success:   result.Success,
		Err:       result.Err,
		Scope:     scope,
	})
	result.Stats = stats
	result.ReconcileErr = err
	result.Duration = time.Since(start)

	status := "success"
	if !result.Success {
		status = "failure"
		span.RecordError(result.Err)
		span.SetStatus(codes.Error, "scrape failed")
		slog.WarnContext(ctx, "source scrape failed", "source", result.SourceKey, "err", result.Err)
	}
	if err != nil {
		status = "store_failure"
		slog.ErrorContext(ctx, "failed to reconcile source", "source", result.SourceKey, "err", err)
	}
	scrapeRunsTotal.WithLabelValues(result.SourceKey, status).Inc()
	scrapeDuration.WithLabelValues(result.SourceKey).Observe(result.Duration.Seconds())
	animalsFound.WithLabelValues(result.SourceKey).Set(float64(result.Found))
	reconciledTotal.WithLabelValues(result.SourceKey, "added").Add(float64(stats.Added))
	reconciledTotal.WithLabelValues(result.SourceKey, "updated").Add(float64(stats.Updated))
	reconciledTotal.WithLabelValues(result.SourceKey, "retired").Add(float64(stats.Retired))
	reconciledTotal.WithLabelValues(result.SourceKey, "failed").Add(float64(stats.Failed))

	return result
}

func (o *Orchestrator) report(ctx context.Context, summary Summary) {
	slog.InfoContext(
		ctx, "scrape finished",
		"sources", summary.TotalSources,
		"successful", summary.SuccessfulSources,
		"found", summary.TotalAnimalsFound,
		"duration", summary.TotalDuration,
	)
	if o.opts.Notifier == nil || len(summary.Failed()) == 0 {
		return
	}
	err := o.opts.Notifier.Notify(ctx, summary)
	if err != nil {
		slog.WarnContext(ctx, "failed to send failure notification", "err", err)
	}
}
