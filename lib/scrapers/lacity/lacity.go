// Package lacity scrapes the six LA City Animal Services shelters from
// the city's adoption page.
package lacity

import (
	"context"
	"lapets-backend/lib/normalize"
	"lapets-backend/lib/scraper"
	"log/slog"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	SourceKey = "la-city"
	Origin    = "https://www.laanimalservices.com"
)

var Locations = scraper.LocationMap{
	Rules: []scraper.LocationRule{
		{Needles: []string{"east valley"}, Slug: "la-city-east-valley"},
		{Needles: []string{"west valley"}, Slug: "la-city-west-valley"},
		{Needles: []string{"west la", "west los angeles"}, Slug: "la-city-west-la"},
		{Needles: []string{"north central"}, Slug: "la-city-north-central"},
		{Needles: []string{"south la", "south los angeles"}, Slug: "la-city-south-la"},
		{Needles: []string{"harbor"}, Slug: "la-city-harbor"},
	},
	Default: "la-city-north-central",
}

var cards = scraper.CardSelectors{
	Card:        ".pet-listing, .animal-card, .adoptable-pet, [data-pet-id]",
	Name:        ".pet-name, .name, h3, h4",
	Species:     ".species, .pet-type",
	Breed:       ".breed, .pet-breed",
	Age:         ".age, .pet-age",
	Gender:      ".gender, .pet-gender",
	Size:        ".size, .pet-size",
	Location:    ".location, .shelter-name, .shelter",
	Description: ".description, .bio, .pet-bio",
	Link:        "a.adopt-link, a.view-details",
	IDAttrs:     []string{"data-pet-id", "data-id"},
}

var scriptPattern = scraper.ScriptArrayPattern("pets", "animals", "adoptables")

type Adapter struct {
	cfg        scraper.Config
	conversion scraper.Conversion
}

func New(cfg scraper.Config) *Adapter {
	return &Adapter{
		cfg: cfg,
		conversion: scraper.Conversion{
			BaseUrl:        cfg.Origin(Origin),
			Locations:      Locations,
			DefaultBreed:   "Mixed Breed",
			DefaultSpecies: normalize.Dog,
		},
	}
}

func (a *Adapter) Name() string      { return "LA City Animal Services" }
func (a *Adapter) SourceKey() string { return SourceKey }

func (a *Adapter) Scrape(ctx context.Context, shelterFilter string) []scraper.Result {
	start := time.Now()
	animals, err := a.scrape(ctx)
	if err != nil {
		slog.WarnContext(ctx, "la city scrape failed", "err", err)
	}
	return scraper.Group(SourceKey, a.cfg.Locations, animals, shelterFilter, err, start)
}

func (a *Adapter) scrape(ctx context.Context) ([]scraper.ScrapedAnimal, error) {
	client, err := scraper.NewClient(a.cfg.ClientOptions(Origin))
	if err != nil {
		return nil, err
	}
	adoptPage := sync.OnceValues(func() (*goquery.Document, error) {
		return scraper.FetchDocument(ctx, client, "/adopt/")
	})

	return scraper.Cascade{
		SourceKey: SourceKey,
		Strategies: []scraper.Strategy{
			{
				Name: "cards",
				Fetch: func(ctx context.Context) ([]scraper.ScrapedAnimal, error) {
					doc, err := adoptPage()
					if err != nil {
						return nil, err
					}
					return a.conversion.Cards(doc.Selection, cards), nil
				},
			},
			{
				Name:  "scripts",
				Merge: true,
				Fetch: func(ctx context.Context) ([]scraper.ScrapedAnimal, error) {
					doc, err := adoptPage()
					if err != nil {
						return nil, err
					}
					return a.conversion.ScriptAnimals(ctx, doc, scriptPattern), nil
				},
			},
		},
	}.Run(ctx)
}
