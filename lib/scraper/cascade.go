package scraper

import (
	"context"
	"errors"
	"fmt"
	"lapets-backend/lib/normalize"
	"lapets-backend/lib/textutil"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Strategy is one way of getting listings out of a source.
type Strategy struct {
	Name string
	// Merge strategies always run and only contribute animals that
	// earlier strategies did not find. Other strategies only run while
	// nothing has been found yet.
	Merge bool
	Fetch func(ctx context.Context) ([]ScrapedAnimal, error)
}

// Cascade tries each strategy in order.
type Cascade struct {
	SourceKey  string
	Strategies []Strategy
}

type dedup struct {
	ids   map[string]bool
	names map[string]bool
}

func nameKey(a ScrapedAnimal) string {
	return a.ShelterSlug + "|" + textutil.NormalizeName(a.Name)
}

// add reports whether a was not seen before. Records are keyed by id,
// ids derived from contents fall back to the name as the key.
func (d dedup) add(a ScrapedAnimal) bool {
	if d.ids[a.ExternalID] {
		return false
	}
	name := nameKey(a)
	if normalize.IsSynthetic(a.ExternalID) && d.names[name] {
		return false
	}
	d.ids[a.ExternalID] = true
	d.names[name] = true
	return true
}

// Run returns the animals found by the cascade. An empty result with a
// nil error means every strategy worked but the source listed nothing,
// an error is returned only when no strategy succeeded.
func (c Cascade) Run(ctx context.Context) ([]ScrapedAnimal, error) {
	ctx, span := tracer.Start(ctx, "Cascade")
	span.SetAttributes(attribute.String("source", c.SourceKey))
	defer span.End()

	seen := dedup{ids: map[string]bool{}, names: map[string]bool{}}
	var out []ScrapedAnimal
	var errs []error
	succeeded := 0

	for _, s := range c.Strategies {
		if !s.Merge && len(out) > 0 {
			continue
		}
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}

		animals, err := c.fetch(ctx, s)
		if errors.Is(err, ErrNoAnimals) {
			err = nil
		}
		if err != nil {
			slog.DebugContext(ctx, "strategy failed", "source", c.SourceKey, "strategy", s.Name, "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
			continue
		}
		succeeded++

		added := 0
		for _, a := range animals {
			if a.ExternalID == "" {
				continue
			}
			if seen.add(a) {
				out = append(out, a)
				added++
			}
		}
		slog.DebugContext(ctx, "strategy finished", "source", c.SourceKey, "strategy", s.Name, "found", len(animals), "added", added)
	}

	span.SetAttributes(attribute.Int("animals", len(out)))
	if succeeded == 0 && len(errs) > 0 {
		err := errors.Join(errs...)
		span.RecordError(err)
		span.SetStatus(codes.Error, "every strategy failed")
		return nil, err
	}
	if len(errs) > 0 {
		slog.InfoContext(ctx, "some strategies failed", "source", c.SourceKey, "err", errors.Join(errs...))
	}
	return out, nil
}

// fetch runs a single strategy, recovering from panics in parsing code.
func (c Cascade) fetch(ctx context.Context, s Strategy) (animals []ScrapedAnimal, err error) {
	ctx, span := tracer.Start(ctx, "Strategy:"+s.Name)
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil && !errors.Is(err, ErrNoAnimals) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "strategy failed")
		}
	}()
	return s.Fetch(ctx)
}
