// Package pasadena scrapes Pasadena Humane, whose listings are either
// rendered into the adoption page or served from an embedded widget.
package pasadena

import (
	"context"
	"errors"
	"lapets-backend/lib/normalize"
	"lapets-backend/lib/scraper"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
)

const (
	SourceKey   = "pasadena-humane"
	ShelterSlug = "pasadena-humane"
	Origin      = "https://pasadenahumane.org"
)

var cards = scraper.CardSelectors{
	Card:        ".pet-card, .animal-card, .adoptable-pet, .pet-listing, .pet-item, [data-pet-id], .grid-item, article.pet",
	Name:        ".pet-name, .name, h2, h3, h4",
	Species:     ".species, .pet-type, .animal-type",
	Breed:       ".breed, .pet-breed",
	Age:         ".age, .pet-age",
	Gender:      ".gender, .pet-gender, .sex",
	Size:        ".size, .pet-size",
	Description: ".description, .bio, .pet-bio",
	Link:        "a",
	IDAttrs:     []string{"data-pet-id"},
	IDPatterns:  []*regexp.Regexp{regexp.MustCompile(`[/=](\d+)`)},
}

var widgetCards = scraper.CardSelectors{
	Card:    ".pet, .animal, [data-animal]",
	Name:    ".name, h2, h3",
	Species: ".species",
	Breed:   ".breed",
	Age:     ".age",
	Gender:  ".gender",
	Size:    ".size",
	Link:    "a",
	IDAttrs: []string{"data-id", "data-animal"},
}

var widgetSelector = "iframe[src*='adopt'], iframe[src*='pet']"

var scriptPattern = scraper.ScriptArrayPattern("pets", "animals", "adoptables")

var errNoWidget = errors.New("page has no adoption widget")

type Adapter struct {
	cfg    scraper.Config
	origin string
}

func New(cfg scraper.Config) *Adapter {
	return &Adapter{cfg: cfg, origin: cfg.Origin(Origin)}
}

func (a *Adapter) Name() string      { return "Pasadena Humane" }
func (a *Adapter) SourceKey() string { return SourceKey }

func (a *Adapter) conversion(base string) scraper.Conversion {
	return scraper.Conversion{
		BaseUrl:         base,
		Locations:       scraper.LocationMap{Default: ShelterSlug},
		DefaultBreed:    "Unknown",
		SpeciesFromName: true,
	}
}

func (a *Adapter) Scrape(ctx context.Context, shelterFilter string) []scraper.Result {
	start := time.Now()
	animals, err := a.scrape(ctx)
	if err != nil {
		slog.WarnContext(ctx, "pasadena humane scrape failed", "err", err)
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
					return a.conversion(a.origin).Cards(doc.Selection, cards), nil
				},
			},
			{
				Name: "widget",
				Fetch: func(ctx context.Context) ([]scraper.ScrapedAnimal, error) {
					doc, err := adoptPage()
					if err != nil {
						return nil, err
					}
					return a.widget(ctx, client, doc)
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
					return a.conversion(a.origin).ScriptAnimals(ctx, doc, scriptPattern), nil
				},
			},
		},
	}.Run(ctx)
}

// widget follows the embedded adoption iframe and reads its listings.
func (a *Adapter) widget(ctx context.Context, client *resty.Client, doc *goquery.Document) ([]scraper.ScrapedAnimal, error) {
	src := doc.Find(widgetSelector).First().AttrOr("src", "")
	if src == "" {
		return nil, scraper.ErrNoAnimals
	}
	widgetUrl := normalize.AbsoluteURL(a.origin, src)
	if widgetUrl == "" {
		return nil, errNoWidget
	}

	widgetDoc, err := scraper.FetchDocument(ctx, client, widgetUrl)
	if err != nil {
		return nil, err
	}
	animals := a.conversion(widgetUrl).Cards(widgetDoc.Selection, widgetCards)
	for i := range animals {
		if animals[i].AdoptionURL == "" {
			animals[i].AdoptionURL = widgetUrl
		}
	}
	return animals, nil
}
