// Package reconcile folds one source's scrape batch into the record store,
// adding, updating and retiring animals.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"lapets-backend/lib/petstore"
	"lapets-backend/lib/scraper"
	"lapets-backend/services/registry"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("lapets/services/reconcile")

// ErrUnknownSource is returned for batches of a source that has no stored
// shelters.
var ErrUnknownSource = fmt.Errorf("%w: no stored shelters", registry.ErrUnknownSource)

type Store interface {
	ShelterSlugsBySource(ctx context.Context, sourceKey string) ([]string, error)
	ListAnimalKeys(ctx context.Context, sourceKey string) ([]petstore.AnimalKey, error)
	SaveAnimal(ctx context.Context, sourceKey string, animal scraper.ScrapedAnimal, seenAt time.Time) (int64, bool, error)
	SetAvailable(ctx context.Context, id int64, available bool) error
	AppendRunLog(ctx context.Context, log petstore.RunLog) error
	TouchShelters(ctx context.Context, slugs []string, at time.Time) error
}

// Batch is everything one source produced in a run.
type Batch struct {
	SourceKey string
	Animals   []scraper.ScrapedAnimal
	Success   bool
	Err       error
	// Scope limits retirement to these shelters when the run was filtered
	// to part of the source, empty means the whole source.
	Scope []string
}

type Stats struct {
	Found    int
	Added    int
	Updated  int
	Retired  int
	Failed   int
	Duration time.Duration
}

type Engine struct {
	store Store
	now   func() time.Time
}

func New(store Store) *Engine {
	return &Engine{store: store, now: time.Now}
}

// Reconcile applies a batch and appends a run log for it. Records that fail
// to save are skipped and counted in Stats.Failed. The returned stats are
// valid even when an error is returned alongside them.
func (e *Engine) Reconcile(ctx context.Context, batch Batch) (Stats, error) {
	ctx, span := tracer.Start(ctx, "Reconcile")
	defer span.End()
	span.SetAttributes(
		attribute.String("source_key", batch.SourceKey),
		attribute.Int("found", len(batch.Animals)),
	)

	start := e.now()
	stats, err := e.apply(ctx, start, batch)
	stats.Duration = e.now().Sub(start)

	if errors.Is(err, ErrUnknownSource) {
		slog.ErrorContext(ctx, "reconcile unknown source", "source", batch.SourceKey, "err", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "unknown source")
		return stats, err
	}

	runErr := err
	if runErr == nil && !batch.Success {
		runErr = batch.Err
		if runErr == nil {
			runErr = fmt.Errorf("scrape failed")
		}
	}
	logErr := e.store.AppendRunLog(ctx, runLog(batch.SourceKey, start, stats, runErr))
	if logErr != nil {
		slog.ErrorContext(ctx, "failed to write run log", "source", batch.SourceKey, "err", logErr)
		err = errors.Join(err, fmt.Errorf("write run log: %w", logErr))
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reconcile failed")
	}
	span.SetAttributes(
		attribute.Int("added", stats.Added),
		attribute.Int("updated", stats.Updated),
		attribute.Int("retired", stats.Retired),
		attribute.Int("failed", stats.Failed),
	)
	return stats, err
}

func runLog(sourceKey string, start time.Time, stats Stats, err error) petstore.RunLog {
	log := petstore.RunLog{
		ID:        uuid.NewString(),
		SourceKey: sourceKey,
		StartedAt: start,
		Duration:  stats.Duration,
		Success:   err == nil,
		Found:     stats.Found,
		Added:     stats.Added,
		Updated:   stats.Updated,
		Retired:   stats.Retired,
		Failed:    stats.Failed,
	}
	if err != nil {
		log.Error = err.Error()
	}
	return log
}

func (e *Engine) apply(ctx context.Context, now time.Time, batch Batch) (Stats, error) {
	slugs, err := e.store.ShelterSlugsBySource(ctx, batch.SourceKey)
	if err != nil {
		return Stats{}, fmt.Errorf("list shelters: %w", err)
	}
	if len(slugs) == 0 {
		return Stats{}, fmt.Errorf("%w: %q", ErrUnknownSource, batch.SourceKey)
	}
	// a failed scrape says nothing about which animals are still listed
	if !batch.Success {
		return Stats{}, nil
	}

	stats := Stats{Found: len(batch.Animals)}

	stored, err := e.store.ListAnimalKeys(ctx, batch.SourceKey)
	if err != nil {
		return stats, fmt.Errorf("list stored animals: %w", err)
	}
	known := make(map[string]bool, len(stored))
	for _, k := range stored {
		known[k.ExternalID] = true
	}

	matcher := newSynthMatcher(stored, batch.Animals)
	seen := make(map[string]bool, len(batch.Animals))
	for _, animal := range batch.Animals {
		if animal.ExternalID == "" {
			stats.Failed++
			continue
		}
		if !known[animal.ExternalID] {
			if id, ok := matcher.match(animal); ok {
				slog.DebugContext(ctx, "matched renamed listing", "source", batch.SourceKey, "from", animal.ExternalID, "to", id)
				animal.ExternalID = id
			}
		}
		if seen[animal.ExternalID] {
			continue
		}
		seen[animal.ExternalID] = true

		_, created, err := e.store.SaveAnimal(ctx, batch.SourceKey, animal, now)
		if err != nil {
			slog.WarnContext(ctx, "failed to save animal", "source", batch.SourceKey, "id", animal.ExternalID, "err", err)
			stats.Failed++
			continue
		}
		if created {
			stats.Added++
		} else {
			stats.Updated++
		}
	}

	scope := slugs
	if len(batch.Scope) > 0 {
		scope = batch.Scope
	}
	inScope := make(map[string]bool, len(scope))
	for _, slug := range scope {
		inScope[slug] = true
	}

	var retireErrs []error
	for _, k := range stored {
		if !k.IsAvailable || seen[k.ExternalID] || !inScope[k.ShelterSlug] {
			continue
		}
		err := e.store.SetAvailable(ctx, k.ID, false)
		if err != nil {
			retireErrs = append(retireErrs, fmt.Errorf("retire %s: %w", k.ExternalID, err))
			continue
		}
		stats.Retired++
	}
	if len(retireErrs) > 0 {
		return stats, errors.Join(retireErrs...)
	}

	err = e.store.TouchShelters(ctx, scope, now)
	if err != nil {
		slog.WarnContext(ctx, "failed to update last scraped time", "source", batch.SourceKey, "err", err)
	}

	slog.InfoContext(
		ctx, "reconciled source",
		"source", batch.SourceKey,
		"found", stats.Found,
		"added", stats.Added,
		"updated", stats.Updated,
		"retired", stats.Retired,
		"failed", stats.Failed,
	)
	return stats, nil
}
