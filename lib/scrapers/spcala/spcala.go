// Package spcala scrapes the spcaLA adoption centers, dogs and cats are
// listed on separate pages.
package spcala

import (
	"context"
	"errors"
	"lapets-backend/lib/normalize"
	"lapets-backend/lib/scraper"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("lapets/lib/scrapers/spcala")

const (
	SourceKey = "spcala"
	Origin    = "https://spcala.com"
)

var Locations = scraper.LocationMap{
	Rules: []scraper.LocationRule{
		{Needles: []string{"south bay", "hawthorne"}, Slug: "spcala-south-bay"},
		{Needles: []string{"long beach", "pitchford"}, Slug: "spcala-long-beach"},
	},
	Default: "spcala-south-bay",
}

var cards = scraper.CardSelectors{
	Card:        ".pet-card, .adoptable-pet, .animal-listing, article.pet, .pet-item",
	Name:        ".pet-name, h2, h3, .name",
	Breed:       ".breed, .pet-breed",
	Age:         ".age, .pet-age",
	Gender:      ".gender, .pet-gender, .sex",
	Size:        ".size, .pet-size",
	Color:       ".color, .pet-color",
	Location:    ".location, .shelter-location",
	Description: ".description, .bio, .pet-description",
	Link:        "a",
	IDPatterns: []*regexp.Regexp{
		regexp.MustCompile(`/(\d+)/?$`),
		regexp.MustCompile(`(?i)pet[_-]?id[=/](\d+)`),
	},
}

var scriptPattern = scraper.ScriptArrayPattern("pets", "animals")

type listing struct {
	path    string
	species normalize.Species
}

var listings = []listing{
	{path: "/adoptable/dogs/", species: normalize.Dog},
	{path: "/adoptable/cats/", species: normalize.Cat},
}

// detail pages are fetched with at most this many requests in flight
const detailParallelism = 4

type Adapter struct {
	cfg    scraper.Config
	origin string
	// EnrichDetails fetches the detail page of every listing for extra
	// photos, a full description and attribute flags.
	EnrichDetails bool
}

func New(cfg scraper.Config) *Adapter {
	return &Adapter{cfg: cfg, origin: cfg.Origin(Origin), EnrichDetails: true}
}

func (a *Adapter) Name() string      { return "spcaLA" }
func (a *Adapter) SourceKey() string { return SourceKey }

func (a *Adapter) conversion(species normalize.Species) scraper.Conversion {
	return scraper.Conversion{
		BaseUrl:        a.origin,
		Locations:      Locations,
		DefaultBreed:   "Mixed Breed",
		DefaultSpecies: species,
	}
}

func (a *Adapter) Scrape(ctx context.Context, shelterFilter string) []scraper.Result {
	start := time.Now()
	animals, err := a.scrape(ctx)
	if err != nil {
		slog.WarnContext(ctx, "spcala scrape failed", "err", err)
	}
	return scraper.Group(SourceKey, a.cfg.Locations, animals, shelterFilter, err, start)
}

type page struct {
	listing listing
	doc     *goquery.Document
}

// fetchListings loads every listing page concurrently, it fails only if
// none of them could be loaded.
func fetchListings(ctx context.Context, client *resty.Client) ([]page, error) {
	ctx, span := tracer.Start(ctx, "fetchListings")
	defer span.End()

	var pages []page
	var errs []error
	lock := sync.Mutex{}
	wg := sync.WaitGroup{}

	for _, l := range listings {
		wg.Add(1)
		go func() {
			defer wg.Done()

			doc, err := scraper.FetchDocument(ctx, client, l.path)

			lock.Lock()
			defer lock.Unlock()
			if err != nil {
				slog.WarnContext(ctx, "failed to fetch listing page", "path", l.path, "err", err)
				errs = append(errs, err)
				return
			}
			pages = append(pages, page{listing: l, doc: doc})
		}()
	}
	wg.Wait()

	if len(pages) == 0 {
		return nil, errors.Join(errs...)
	}
	return pages, nil
}

func (a *Adapter) scrape(ctx context.Context) ([]scraper.ScrapedAnimal, error) {
	client, err := scraper.NewClient(a.cfg.ClientOptions(Origin))
	if err != nil {
		return nil, err
	}
	loaded := sync.OnceValues(func() ([]page, error) {
		return fetchListings(ctx, client)
	})

	animals, err := scraper.Cascade{
		SourceKey: SourceKey,
		Strategies: []scraper.Strategy{
			{
				Name: "cards",
				Fetch: func(ctx context.Context) ([]scraper.ScrapedAnimal, error) {
					pages, err := loaded()
					if err != nil {
						return nil, err
					}
					var out []scraper.ScrapedAnimal
					for _, p := range pages {
						out = append(out, a.conversion(p.listing.species).Cards(p.doc.Selection, cards)...)
					}
					return out, nil
				},
			},
			{
				Name:  "scripts",
				Merge: true,
				Fetch: func(ctx context.Context) ([]scraper.ScrapedAnimal, error) {
					pages, err := loaded()
					if err != nil {
						return nil, err
					}
					var out []scraper.ScrapedAnimal
					for _, p := range pages {
						out = append(out, a.conversion(p.listing.species).ScriptAnimals(ctx, p.doc, scriptPattern)...)
					}
					return out, nil
				},
			},
		},
	}.Run(ctx)
	if err != nil {
		return nil, err
	}

	if a.EnrichDetails {
		a.enrich(ctx, client, animals)
	}
	return animals, nil
}

// enrich fills animals in place from their detail pages, a detail page
// that cannot be loaded leaves its animal as it was.
func (a *Adapter) enrich(ctx context.Context, client *resty.Client, animals []scraper.ScrapedAnimal) {
	ctx, span := tracer.Start(ctx, "enrich")
	defer span.End()

	sem := make(chan struct{}, detailParallelism)
	wg := sync.WaitGroup{}
	for i := range animals {
		if !strings.HasPrefix(animals[i].AdoptionURL, a.origin) {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()

			d, err := fetchDetails(ctx, client, animals[i].AdoptionURL)
			if err != nil {
				slog.DebugContext(ctx, "failed to fetch details", "url", animals[i].AdoptionURL, "err", err)
				return
			}
			d.apply(&animals[i], a.origin)
		}()
	}
	wg.Wait()
}
