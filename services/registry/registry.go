// Package registry knows every shelter the aggregator lists and which
// adapter scrapes it.
package registry

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"lapets-backend/lib/browser"
	"lapets-backend/lib/petstore"
	"lapets-backend/lib/scraper"
	"lapets-backend/lib/scrapers/bestfriends"
	"lapets-backend/lib/scrapers/lacity"
	"lapets-backend/lib/scrapers/lacounty"
	"lapets-backend/lib/scrapers/pasadena"
	"lapets-backend/lib/scrapers/spcala"
	"log/slog"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"gopkg.in/yaml.v3"
)

var tracer = otel.Tracer("lapets/services/registry")

var ErrUnknownSource = errors.New("unknown source")

//go:embed shelters.yaml
var catalog []byte

type Shelter struct {
	Name        string  `yaml:"name"`
	Slug        string  `yaml:"slug"`
	SourceKey   string  `yaml:"source_key"`
	Platform    string  `yaml:"platform"`
	Website     string  `yaml:"website"`
	AdoptionURL string  `yaml:"adoption_url"`
	Email       string  `yaml:"email"`
	Phone       string  `yaml:"phone"`
	Street      string  `yaml:"street"`
	City        string  `yaml:"city"`
	Postcode    string  `yaml:"postcode"`
	Latitude    float64 `yaml:"latitude"`
	Longitude   float64 `yaml:"longitude"`
}

func (s Shelter) record() petstore.Shelter {
	return petstore.Shelter{
		Slug:        s.Slug,
		Name:        s.Name,
		SourceKey:   s.SourceKey,
		Platform:    s.Platform,
		Website:     s.Website,
		AdoptionURL: s.AdoptionURL,
		Email:       s.Email,
		Phone:       s.Phone,
		Street:      s.Street,
		City:        s.City,
		State:       "CA",
		Postcode:    s.Postcode,
		Latitude:    s.Latitude,
		Longitude:   s.Longitude,
	}
}

// LoadCatalog parses the built in shelter catalog.
func LoadCatalog() ([]Shelter, error) {
	var shelters []Shelter
	err := yaml.Unmarshal(catalog, &shelters)
	if err != nil {
		return nil, fmt.Errorf("parse shelter catalog: %w", err)
	}
	seen := map[string]bool{}
	for _, s := range shelters {
		if s.Slug == "" || s.SourceKey == "" {
			return nil, fmt.Errorf("shelter catalog: %q is missing a slug or source key", s.Name)
		}
		if seen[s.Slug] {
			return nil, fmt.Errorf("shelter catalog: duplicate slug %q", s.Slug)
		}
		seen[s.Slug] = true
	}
	return shelters, nil
}

type Options struct {
	Client scraper.ClientOptions
	// BaseUrls overrides the origin of individual sources by source key.
	BaseUrls map[string]string
	// Launcher loads pages for sources that render client side, nil
	// loads them over plain http.
	Launcher browser.Launcher
	// SkipDetails disables fetching detail pages where a source has them.
	SkipDetails bool
	// Adapters replaces the built in adapters.
	Adapters []scraper.Adapter
}

type Registry struct {
	shelters []Shelter
	adapters map[string]scraper.Adapter
}

func New(opts Options) (*Registry, error) {
	shelters, err := LoadCatalog()
	if err != nil {
		return nil, err
	}
	r := &Registry{
		shelters: shelters,
		adapters: map[string]scraper.Adapter{},
	}

	adapters := opts.Adapters
	if adapters == nil {
		adapters = r.builtin(opts)
	}
	for _, a := range adapters {
		r.adapters[a.SourceKey()] = a
	}
	return r, nil
}

func (r *Registry) config(opts Options, sourceKey string) scraper.Config {
	var locations []scraper.Location
	for _, s := range r.SheltersBySourceKey(sourceKey) {
		locations = append(locations, scraper.Location{Slug: s.Slug, Name: s.Name})
	}
	return scraper.Config{
		BaseUrl:   opts.BaseUrls[sourceKey],
		Locations: locations,
		Client:    opts.Client,
	}
}

func (r *Registry) builtin(opts Options) []scraper.Adapter {
	spca := spcala.New(r.config(opts, spcala.SourceKey))
	spca.EnrichDetails = !opts.SkipDetails
	return []scraper.Adapter{
		lacounty.New(r.config(opts, lacounty.SourceKey), opts.Launcher),
		lacity.New(r.config(opts, lacity.SourceKey)),
		spca,
		pasadena.New(r.config(opts, pasadena.SourceKey)),
		bestfriends.New(r.config(opts, bestfriends.SourceKey)),
	}
}

// Adapter returns the adapter registered for a source key.
func (r *Registry) Adapter(sourceKey string) (scraper.Adapter, error) {
	a, ok := r.adapters[sourceKey]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, sourceKey)
	}
	return a, nil
}

// SourceKeys lists the sources that have an adapter, sorted.
func (r *Registry) SourceKeys() []string {
	keys := make([]string, 0, len(r.adapters))
	for k := range r.adapters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (r *Registry) Shelters() []Shelter {
	return r.shelters
}

// SheltersBySourceKey lists the shelters scraped by a source in catalog
// order.
func (r *Registry) SheltersBySourceKey(sourceKey string) []Shelter {
	var out []Shelter
	for _, s := range r.shelters {
		if s.SourceKey == sourceKey {
			out = append(out, s)
		}
	}
	return out
}

func (r *Registry) ShelterBySlug(slug string) (Shelter, bool) {
	for _, s := range r.shelters {
		if s.Slug == slug {
			return s, true
		}
	}
	return Shelter{}, false
}

type ShelterStore interface {
	UpsertShelter(ctx context.Context, shelter petstore.Shelter) error
}

// InitializeShelterMetadata upserts every catalog shelter by slug, calling
// it again only refreshes the stored metadata.
func (r *Registry) InitializeShelterMetadata(ctx context.Context, store ShelterStore) error {
	ctx, span := tracer.Start(ctx, "InitializeShelterMetadata")
	defer span.End()

	for _, s := range r.shelters {
		err := store.UpsertShelter(ctx, s.record())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to upsert shelter")
			return fmt.Errorf("upsert shelter %s: %w", s.Slug, err)
		}
	}
	slog.DebugContext(ctx, "initialized shelter metadata", "count", len(r.shelters))
	return nil
}
