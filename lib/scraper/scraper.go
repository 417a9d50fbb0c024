package scraper

import (
	"context"
	"errors"
	"fmt"
	"lapets-backend/lib/normalize"
	"log/slog"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("lapets/lib/scraper")

// ErrNoAnimals is returned by a strategy that fetched and parsed its
// content successfully but found nothing in it.
var ErrNoAnimals = errors.New("no animals found")

// ScrapedAnimal is one animal listing as a source presents it, already
// mapped onto the canonical enums.
type ScrapedAnimal struct {
	// ExternalID is stable across runs for the same animal at the same
	// source, ids derived from record contents carry normalize.SyntheticPrefix.
	ExternalID string
	// ShelterSlug is the physical location the listing belongs to.
	ShelterSlug string

	Name           string
	Species        normalize.Species
	Breed          string
	BreedSecondary string
	Age            normalize.Age
	Gender         normalize.Gender
	Size           normalize.Size
	Description    string
	Color          string
	// Photos are absolute urls, the first one is the primary photo.
	Photos      []string
	AdoptionURL string
	IntakeDate  *time.Time

	// nil means the source does not say.
	SpayedNeutered   *bool
	HouseTrained     *bool
	SpecialNeeds     *bool
	ShotsCurrent     *bool
	GoodWithChildren *bool
	GoodWithDogs     *bool
	GoodWithCats     *bool
}

// Result is the outcome of scraping one shelter location.
type Result struct {
	SourceKey   string
	ShelterSlug string
	ShelterName string
	Animals     []ScrapedAnimal
	Success     bool
	Err         error
	Duration    time.Duration
}

// Location is a physical shelter served by an adapter.
type Location struct {
	Slug string
	Name string
}

// Adapter scrapes one source. Scrape never returns an error, failures
// are reported through Result.Success and Result.Err. An empty
// shelterFilter scrapes every location of the source.
type Adapter interface {
	Name() string
	SourceKey() string
	Scrape(ctx context.Context, shelterFilter string) []Result
}

// Guard runs adapter.Scrape, turning a panic inside the adapter into a
// failed result so it cannot take down the caller.
func Guard(ctx context.Context, adapter Adapter, shelterFilter string) (results []Result) {
	ctx, span := tracer.Start(ctx, "Scrape")
	span.SetAttributes(attribute.String("source", adapter.SourceKey()))
	defer span.End()

	start := time.Now()
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		err := fmt.Errorf("adapter %s panicked: %v", adapter.SourceKey(), r)
		slog.ErrorContext(ctx, "adapter panic", "source", adapter.SourceKey(), "err", err, "stack", string(debug.Stack()))
		span.RecordError(err)
		span.SetStatus(codes.Error, "adapter panicked")
		results = []Result{{
			SourceKey:   adapter.SourceKey(),
			ShelterSlug: shelterFilter,
			ShelterName: adapter.Name(),
			Err:         err,
			Duration:    time.Since(start),
		}}
	}()

	return adapter.Scrape(ctx, shelterFilter)
}

// Group splits animals into one result per location, skipping locations
// other than shelterFilter when it is set. Animals attributed to a slug
// outside of locations are given to the first location.
func Group(sourceKey string, locations []Location, animals []ScrapedAnimal, shelterFilter string, err error, start time.Time) []Result {
	if len(locations) == 0 {
		return nil
	}

	known := make(map[string]bool, len(locations))
	for _, l := range locations {
		known[l.Slug] = true
	}
	bySlug := map[string][]ScrapedAnimal{}
	for _, a := range animals {
		if !known[a.ShelterSlug] {
			a.ShelterSlug = locations[0].Slug
		}
		bySlug[a.ShelterSlug] = append(bySlug[a.ShelterSlug], a)
	}

	duration := time.Since(start)
	var results []Result
	for _, l := range locations {
		if shelterFilter != "" && l.Slug != shelterFilter {
			continue
		}
		results = append(results, Result{
			SourceKey:   sourceKey,
			ShelterSlug: l.Slug,
			ShelterName: l.Name,
			Animals:     bySlug[l.Slug],
			Success:     err == nil,
			Err:         err,
			Duration:    duration,
		})
	}
	return results
}
