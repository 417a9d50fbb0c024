// Package bestfriends scrapes the Los Angeles center of Best Friends
// Animal Society out of its national adoption search.
package bestfriends

import (
	"context"
	"errors"
	"fmt"
	"lapets-backend/lib/htmlutil"
	"lapets-backend/lib/scraper"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
)

const (
	SourceKey   = "best-friends"
	ShelterSlug = "best-friends-la"
	Origin      = "https://bestfriends.org"

	searchPath = "/adopt-pet?location=los-angeles"
)

// tried in order, the first one listing animals wins
var apiEndpoints = []string{
	"/api/v1/animals?location=los-angeles",
	"/api/animals?center=los-angeles",
	"/adopt/api/search?location=los-angeles",
}

var cards = scraper.CardSelectors{
	Card:        ".pet-card, .animal-card, .adoptable-animal, [data-animal-id]",
	Name:        ".pet-name, .name, h2, h3",
	Species:     ".species, .pet-type",
	Breed:       ".breed, .pet-breed",
	Age:         ".age, .pet-age",
	Gender:      ".gender, .sex",
	Size:        ".size",
	Description: ".description, .bio",
	Link:        "a",
	IDAttrs:     []string{"data-animal-id"},
	IDPatterns:  []*regexp.Regexp{regexp.MustCompile(`/(\d+)`)},
}

var statePattern = regexp.MustCompile(`window\.__(?:NUXT__|NEXT_DATA__|INITIAL_STATE__)\s*=\s*\{`)

var scriptPattern = scraper.ScriptArrayPattern("animals", "pets", "adoptables")

// app state is only searched below these keys (lowercased)
var stateKeys = map[string]bool{
	"animals":    true,
	"pets":       true,
	"adoptables": true,
	"results":    true,
	"data":       true,
	"props":      true,
	"pageprops":  true,
	"state":      true,
}

type Adapter struct {
	cfg        scraper.Config
	conversion scraper.Conversion
}

func New(cfg scraper.Config) *Adapter {
	return &Adapter{
		cfg: cfg,
		conversion: scraper.Conversion{
			BaseUrl:      cfg.Origin(Origin),
			Locations:    scraper.LocationMap{Default: ShelterSlug},
			DefaultBreed: "Mixed",
		},
	}
}

func (a *Adapter) Name() string      { return "Best Friends Animal Society - LA" }
func (a *Adapter) SourceKey() string { return SourceKey }

func (a *Adapter) Scrape(ctx context.Context, shelterFilter string) []scraper.Result {
	start := time.Now()
	animals, err := a.scrape(ctx)
	if err != nil {
		slog.WarnContext(ctx, "best friends scrape failed", "err", err)
	}
	return scraper.Group(SourceKey, a.cfg.Locations, animals, shelterFilter, err, start)
}

func (a *Adapter) scrape(ctx context.Context) ([]scraper.ScrapedAnimal, error) {
	client, err := scraper.NewClient(a.cfg.ClientOptions(Origin))
	if err != nil {
		return nil, err
	}
	searchPage := sync.OnceValues(func() (*goquery.Document, error) {
		return scraper.FetchDocument(ctx, client, searchPath)
	})
	withPage := func(parse func(ctx context.Context, doc *goquery.Document) []scraper.ScrapedAnimal) func(context.Context) ([]scraper.ScrapedAnimal, error) {
		return func(ctx context.Context) ([]scraper.ScrapedAnimal, error) {
			doc, err := searchPage()
			if err != nil {
				return nil, err
			}
			return parse(ctx, doc), nil
		}
	}

	return scraper.Cascade{
		SourceKey: SourceKey,
		Strategies: []scraper.Strategy{
			{
				Name: "api",
				Fetch: func(ctx context.Context) ([]scraper.ScrapedAnimal, error) {
					return a.api(ctx, client)
				},
			},
			{
				Name: "cards",
				Fetch: withPage(func(_ context.Context, doc *goquery.Document) []scraper.ScrapedAnimal {
					return a.conversion.Cards(doc.Selection, cards)
				}),
			},
			{Name: "state", Merge: true, Fetch: withPage(a.state)},
			{
				Name:  "scripts",
				Merge: true,
				Fetch: withPage(a.scripts),
			},
		},
	}.Run(ctx)
}

func (a *Adapter) api(ctx context.Context, client *resty.Client) ([]scraper.ScrapedAnimal, error) {
	var errs []error
	for _, endpoint := range apiEndpoints {
		body, err := scraper.FetchJSON(ctx, client, endpoint)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		records, err := scraper.ParseRecords(body, "animals", "data.animals")
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", endpoint, err))
			continue
		}
		if animals := a.conversion.Records(records); len(animals) > 0 {
			return animals, nil
		}
	}
	if len(errs) == len(apiEndpoints) {
		return nil, errors.Join(errs...)
	}
	return nil, scraper.ErrNoAnimals
}

// state searches the application state a javascript frontend ships with
// the page for animal objects.
func (a *Adapter) state(ctx context.Context, doc *goquery.Document) []scraper.ScrapedAnimal {
	values, errs := scraper.ExtractScriptValues(htmlutil.Scripts(ctx, doc), statePattern)
	for _, err := range errs {
		slog.DebugContext(ctx, "skipped app state", "err", err)
	}

	nextData := strings.TrimSpace(doc.Find("script#__NEXT_DATA__").Text())
	if nextData != "" {
		v, err := scraper.DecodeJSON([]byte(nextData))
		if err != nil {
			slog.DebugContext(ctx, "skipped next data", "err", err)
		} else {
			values = append(values, v)
		}
	}

	var records []scraper.Record
	for _, v := range values {
		findAnimals(v, &records)
	}
	return a.conversion.Records(records)
}

// scripts reads listing arrays out of every script except the app state,
// which state already covers.
func (a *Adapter) scripts(ctx context.Context, doc *goquery.Document) []scraper.ScrapedAnimal {
	var scripts []string
	for _, s := range htmlutil.Scripts(ctx, doc) {
		if !statePattern.MatchString(s) {
			scripts = append(scripts, s)
		}
	}
	records, errs := scraper.ExtractScriptArrays(scripts, scriptPattern)
	for _, err := range errs {
		slog.DebugContext(ctx, "skipped embedded array", "err", err)
	}
	return a.conversion.Records(records)
}

func looksLikeAnimal(r scraper.Record) bool {
	return r.String("name") != "" && r.Has("species", "type", "breed")
}

func findAnimals(v any, out *[]scraper.Record) {
	switch v := v.(type) {
	case map[string]any:
		r := scraper.Record(v)
		if looksLikeAnimal(r) {
			*out = append(*out, r)
			return
		}
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if stateKeys[strings.ToLower(k)] {
				findAnimals(v[k], out)
			}
		}
	case []any:
		for _, item := range v {
			findAnimals(item, out)
		}
	}
}
