// Package lacounty scrapes the six LA County Animal Care Centers, which
// share one search portal whose listings are rendered client side from a
// WordPress REST endpoint.
package lacounty

import (
	"context"
	"fmt"
	"lapets-backend/lib/browser"
	"lapets-backend/lib/normalize"
	"lapets-backend/lib/scraper"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("lapets/lib/scrapers/lacounty")

const (
	SourceKey = "la-county"
	Origin    = "https://animalcare.lacounty.gov"

	apiPath   = "/wp-json/wppro-acc/v1/get/animals"
	imageBase = "https://daccanimalimagesprod.blob.core.windows.net/images/"
	maxPages  = 10
)

var Locations = scraper.LocationMap{
	Rules: []scraper.LocationRule{
		{Needles: []string{"agoura"}, Slug: "la-county-agoura"},
		{Needles: []string{"baldwin park", "baldwin"}, Slug: "la-county-baldwin-park"},
		{Needles: []string{"carson", "gardena"}, Slug: "la-county-carson"},
		{Needles: []string{"castaic"}, Slug: "la-county-castaic"},
		{Needles: []string{"downey"}, Slug: "la-county-downey"},
		{Needles: []string{"lancaster", "palmdale"}, Slug: "la-county-lancaster"},
	},
	Default: "la-county-downey",
}

var cardSelector = ".card.custom-card, .animal-card, [class*='pet-card'], .animal-item"

type Adapter struct {
	cfg      scraper.Config
	origin   string
	launcher browser.Launcher
}

// New creates the adapter, a nil launcher loads pages over plain http.
func New(cfg scraper.Config, launcher browser.Launcher) *Adapter {
	if launcher == nil {
		launcher = browser.HTTPLauncher{Options: cfg.ClientOptions(Origin)}
	}
	return &Adapter{
		cfg:      cfg,
		origin:   cfg.Origin(Origin),
		launcher: launcher,
	}
}

func (a *Adapter) Name() string      { return "LA County Animal Care" }
func (a *Adapter) SourceKey() string { return SourceKey }

func (a *Adapter) Scrape(ctx context.Context, shelterFilter string) []scraper.Result {
	start := time.Now()
	animals, err := a.scrape(ctx)
	if err != nil {
		slog.WarnContext(ctx, "la county scrape failed", "err", err)
	}
	return scraper.Group(SourceKey, a.cfg.Locations, animals, shelterFilter, err, start)
}

func (a *Adapter) searchUrl(page int) string {
	return fmt.Sprintf("%s/dacc-search/?PageNumber=%d&SortType=0&PageSize=100", a.origin, page)
}

func isAnimalsEndpoint(url string) bool {
	return strings.Contains(url, apiPath)
}

func (a *Adapter) scrape(ctx context.Context) ([]scraper.ScrapedAnimal, error) {
	session, openErr := a.launcher.Open(ctx)
	if openErr == nil {
		defer session.Close()
	}

	var firstPage *browser.Page

	intercept := func(ctx context.Context) ([]scraper.ScrapedAnimal, error) {
		if openErr != nil {
			return nil, openErr
		}
		page, err := session.Navigate(ctx, a.searchUrl(1), isAnimalsEndpoint)
		if err != nil {
			return nil, err
		}
		firstPage = &page
		return a.paginate(ctx, session, page)
	}

	dom := func(ctx context.Context) ([]scraper.ScrapedAnimal, error) {
		if firstPage == nil {
			return nil, fmt.Errorf("search page was not loaded")
		}
		doc, err := firstPage.Document()
		if err != nil {
			return nil, err
		}
		return a.animals(cardRecords(doc)), nil
	}

	direct := func(ctx context.Context) ([]scraper.ScrapedAnimal, error) {
		client, err := scraper.NewClient(a.cfg.ClientOptions(Origin))
		if err != nil {
			return nil, err
		}
		body, err := scraper.FetchJSON(ctx, client, apiPath)
		if err != nil {
			return nil, err
		}
		records, err := parseAnimals(body)
		if err != nil {
			return nil, err
		}
		return a.animals(records), nil
	}

	return scraper.Cascade{
		SourceKey: SourceKey,
		Strategies: []scraper.Strategy{
			{Name: "intercept", Fetch: intercept},
			{Name: "dom", Fetch: dom},
			{Name: "direct", Fetch: direct},
		},
	}.Run(ctx)
}

// paginate keeps loading search pages while they produce animals that
// have not been seen yet.
func (a *Adapter) paginate(ctx context.Context, session browser.Session, first browser.Page) ([]scraper.ScrapedAnimal, error) {
	ctx, span := tracer.Start(ctx, "paginate")
	defer span.End()

	var records []scraper.Record
	seen := map[string]bool{}
	collect := func(page browser.Page) int {
		added := 0
		for _, res := range page.Captured {
			parsed, err := parseAnimals(res.Body)
			if err != nil {
				slog.DebugContext(ctx, "skipped captured response", "url", res.URL, "err", err)
				continue
			}
			for _, r := range parsed {
				key := animalID(r)
				if key == "" {
					key = fmt.Sprintf("%d-%s", len(records), animalName(r, ""))
				}
				if seen[key] {
					continue
				}
				seen[key] = true
				records = append(records, r)
				added++
			}
		}
		return added
	}

	if _, err := first.Captures(); err != nil {
		return nil, err
	}
	collect(first)

	pages := 1
	for n := 2; n <= maxPages; n++ {
		page, err := session.Navigate(ctx, a.searchUrl(n), isAnimalsEndpoint)
		if err != nil {
			slog.DebugContext(ctx, "stopped paginating", "page", n, "err", err)
			break
		}
		if collect(page) == 0 {
			break
		}
		pages++
	}
	span.SetAttributes(attribute.Int("pages", pages), attribute.Int("records", len(records)))

	return a.animals(records), nil
}

// parseAnimals accepts the endpoint's bare list as well as the wrapped
// variants it has been seen to return.
func parseAnimals(body []byte) ([]scraper.Record, error) {
	return scraper.ParseRecords(body, "animals", "data", "results")
}

// cardRecords reads the rendered result cards, the favorite button of
// each card carries the animal's id, name and image.
func cardRecords(doc *goquery.Document) []scraper.Record {
	var out []scraper.Record
	doc.Find(cardSelector).Each(func(_ int, card *goquery.Selection) {
		button := card.Find("[data-id]").First()
		if button.Length() == 0 {
			button = card.Filter("[data-id]")
		}
		id := strings.TrimSpace(button.AttrOr("data-id", ""))
		if id == "" {
			return
		}
		image := button.AttrOr("data-image", "")
		if image == "" {
			image = card.Find("img").First().AttrOr("src", "")
		}
		out = append(out, scraper.Record{
			"animalId":   id,
			"animalName": strings.TrimSpace(button.AttrOr("data-name", "")),
			"image":      image,
			"imageCount": float64(1),
		})
	})
	return out
}

func animalID(r scraper.Record) string {
	return r.String("animalId", "AnimalId", "id")
}

func animalName(r scraper.Record, id string) string {
	name := r.String("animalName", "Name", "name")
	if name == "" && id != "" {
		name = "Pet " + id
	}
	return name
}

func (a *Adapter) animals(records []scraper.Record) []scraper.ScrapedAnimal {
	out := make([]scraper.ScrapedAnimal, 0, len(records))
	for _, r := range records {
		if animal, ok := a.animal(r); ok {
			out = append(out, animal)
		}
	}
	return out
}

func (a *Adapter) animal(r scraper.Record) (scraper.ScrapedAnimal, bool) {
	id := animalID(r)
	name := animalName(r, id)
	if name == "" {
		return scraper.ScrapedAnimal{}, false
	}

	species := normalize.Dog
	if strings.Contains(strings.ToUpper(r.String("animalType", "Type", "type")), "CAT") {
		species = normalize.Cat
	}
	breed := r.String("breed", "Breed")
	if breed == "" {
		breed = "Mixed Breed"
	}

	age := normalize.Adult
	years, hasYears := r.Int("yearsOld")
	months, hasMonths := r.Int("monthsOld")
	if hasYears || hasMonths {
		age = normalize.AgeFromYearsMonths(years, months)
	}

	animal := scraper.ScrapedAnimal{
		ShelterSlug: Locations.Slug(r.String("location", "Location")),
		Name:        name,
		Species:     species,
		Breed:       breed,
		Age:         age,
		Gender:      normalize.ToGender(r.String("sex", "Sex")),
		Size:        normalize.ToSize(r.String("animalSize", "Size")),
		Color:       r.String("primaryColor"),
	}
	if animal.Color != "" {
		animal.Description = "Color: " + animal.Color
	}
	if id == "" {
		id = normalize.SyntheticID(animal.ShelterSlug, name, breed, string(species))
	} else {
		imageCount, _ := r.Int("imageCount")
		if imageCount > 0 || r.String("image") != "" {
			animal.Photos = []string{imageBase + id + ".jpg"}
		}
		animal.AdoptionURL = a.origin + "/dacc-search/?AnimalID=" + id
	}
	animal.ExternalID = id
	return animal, true
}
