package scraper

import (
	"context"
	"lapets-backend/lib/htmlutil"
	"lapets-backend/lib/normalize"
	"log/slog"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Config is handed to every adapter constructor.
type Config struct {
	// overrides the origin of the source, tests point this at a fake
	BaseUrl   string
	Locations []Location
	Client    ClientOptions
}

func (c Config) Origin(fallback string) string {
	if c.BaseUrl != "" {
		return strings.TrimSuffix(c.BaseUrl, "/")
	}
	return fallback
}

func (c Config) ClientOptions(fallbackOrigin string) ClientOptions {
	opts := c.Client
	opts.BaseUrl = c.Origin(fallbackOrigin)
	return opts
}

// Conversion holds the source specific defaults used when turning
// loosely structured listings into ScrapedAnimals.
type Conversion struct {
	// relative photo and adoption urls are resolved against this
	BaseUrl      string
	Locations    LocationMap
	DefaultBreed string
	// used when a listing does not name a species
	DefaultSpecies normalize.Species
	// guess the species from the name before falling back to DefaultSpecies
	SpeciesFromName bool
}

func (c Conversion) species(text, name string) normalize.Species {
	text = strings.TrimSpace(text)
	if text != "" {
		return normalize.ToSpecies(text)
	}
	if c.SpeciesFromName {
		if species := normalize.ToSpecies(name); species != normalize.Other {
			return species
		}
	}
	if c.DefaultSpecies != "" {
		return c.DefaultSpecies
	}
	return normalize.Other
}

// finish fills in everything derived from the rest of the record.
func (c Conversion) finish(a ScrapedAnimal, location string) ScrapedAnimal {
	a.ShelterSlug = c.Locations.Slug(location)
	if a.Breed == "" {
		a.Breed = c.DefaultBreed
	}

	var photos []string
	seen := map[string]bool{}
	for _, p := range a.Photos {
		p = normalize.PhotoURL(c.BaseUrl, p)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		photos = append(photos, p)
	}
	a.Photos = photos
	a.AdoptionURL = normalize.AbsoluteURL(c.BaseUrl, a.AdoptionURL)

	if a.ExternalID == "" {
		a.ExternalID = normalize.SyntheticID(a.ShelterSlug, a.Name, a.Breed, string(a.Species))
	}
	return a
}

// CardSelectors locate the fields of a listing card in a page.
type CardSelectors struct {
	Card        string
	Name        string
	Species     string
	Breed       string
	Age         string
	Gender      string
	Size        string
	Color       string
	Location    string
	Description string
	Link        string
	// attributes of the card holding the listing id, checked first
	IDAttrs []string
	// patterns over the link url, the first group is the listing id
	IDPatterns []*regexp.Regexp
}

func optionalText(card *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return htmlutil.FirstText(card, selector)
}

// cardLink picks the listing link of a card. Without a Link selector match
// the anchor whose url carries a listing id wins, then the first anchor
// that points at a page.
func cardLink(card *goquery.Selection, s CardSelectors) string {
	if s.Link != "" {
		if link := htmlutil.FirstAttr(card, s.Link, "href"); link != "" {
			return link
		}
	}
	var candidates []string
	for _, a := range htmlutil.GetAnchors(card) {
		href := strings.ToLower(a.Href)
		if href == "" || strings.HasPrefix(href, "#") ||
			strings.HasPrefix(href, "mailto:") ||
			strings.HasPrefix(href, "tel:") ||
			strings.HasPrefix(href, "javascript:") {
			continue
		}
		candidates = append(candidates, a.Href)
	}
	for _, href := range candidates {
		for _, pattern := range s.IDPatterns {
			if pattern.MatchString(href) {
				return href
			}
		}
	}
	if len(candidates) > 0 {
		return candidates[0]
	}
	return ""
}

// Card converts one listing card, cards without a name are skipped.
func (c Conversion) Card(card *goquery.Selection, s CardSelectors) (ScrapedAnimal, bool) {
	name := optionalText(card, s.Name)
	if name == "" {
		return ScrapedAnimal{}, false
	}

	link := cardLink(card, s)

	id := ""
	if len(s.IDAttrs) > 0 {
		id = htmlutil.FirstAttr(card, "", s.IDAttrs...)
	}
	for _, pattern := range s.IDPatterns {
		if id != "" {
			break
		}
		if groups := pattern.FindStringSubmatch(link); len(groups) > 1 {
			id = groups[1]
		}
	}

	var photos []string
	if photo := htmlutil.FirstAttr(card, "img", "src", "data-src", "data-lazy-src"); photo != "" {
		photos = append(photos, photo)
	}

	a := ScrapedAnimal{
		ExternalID:  id,
		Name:        name,
		Species:     c.species(optionalText(card, s.Species), name),
		Breed:       optionalText(card, s.Breed),
		Age:         normalize.ToAge(optionalText(card, s.Age)),
		Gender:      normalize.ToGender(optionalText(card, s.Gender)),
		Size:        normalize.ToSize(optionalText(card, s.Size)),
		Color:       optionalText(card, s.Color),
		Description: optionalText(card, s.Description),
		Photos:      photos,
		AdoptionURL: link,
	}
	return c.finish(a, optionalText(card, s.Location)), true
}

func (c Conversion) Cards(sel *goquery.Selection, s CardSelectors) []ScrapedAnimal {
	var out []ScrapedAnimal
	sel.Find(s.Card).Each(func(_ int, card *goquery.Selection) {
		if a, ok := c.Card(card, s); ok {
			out = append(out, a)
		}
	})
	return out
}

// Record converts one loosely shaped JSON listing, records without a name
// are skipped.
func (c Conversion) Record(r Record) (ScrapedAnimal, bool) {
	name := r.String("name", "animal_name", "animalName")
	if name == "" {
		return ScrapedAnimal{}, false
	}

	var age normalize.Age
	years, hasYears := r.Int("yearsOld", "years_old")
	months, hasMonths := r.Int("monthsOld", "months_old")
	if hasYears || hasMonths {
		age = normalize.AgeFromYearsMonths(years, months)
	} else {
		age = normalize.ToAge(r.String("age", "age_group"))
	}

	location := r.String("location", "shelter", "shelter_name", "location_name")
	if location == "" {
		location = r.Child("shelter", "location").String("name")
	}

	a := ScrapedAnimal{
		ExternalID:       r.String("id", "animal_id", "animalId"),
		Name:             name,
		Species:          c.species(r.String("species", "type", "animal_type"), name),
		Breed:            r.String("breed", "primary_breed", "breed_primary"),
		BreedSecondary:   r.String("secondary_breed", "breed_secondary"),
		Age:              age,
		Gender:           normalize.ToGender(r.String("gender", "sex")),
		Size:             normalize.ToSize(r.String("size")),
		Description:      r.String("description", "bio"),
		Color:            r.String("color", "primary_color"),
		Photos:           r.Photos("photo", "photos", "image", "images"),
		AdoptionURL:      r.String("url", "link"),
		SpayedNeutered:   r.Bool("spayed_neutered", "altered", "fixed"),
		HouseTrained:     r.Bool("house_trained"),
		SpecialNeeds:     r.Bool("special_needs"),
		ShotsCurrent:     r.Bool("shots_current", "vaccinated"),
		GoodWithChildren: r.Bool("good_with_children", "good_with_kids", "kids"),
		GoodWithDogs:     r.Bool("good_with_dogs", "dogs"),
		GoodWithCats:     r.Bool("good_with_cats", "cats"),
	}
	return c.finish(a, location), true
}

func (c Conversion) Records(records []Record) []ScrapedAnimal {
	var out []ScrapedAnimal
	for _, r := range records {
		if a, ok := c.Record(r); ok {
			out = append(out, a)
		}
	}
	return out
}

// ScriptAnimals converts the listing arrays embedded in the inline scripts
// of doc.
func (c Conversion) ScriptAnimals(ctx context.Context, doc *goquery.Document, pattern *regexp.Regexp) []ScrapedAnimal {
	records, errs := ExtractScriptArrays(htmlutil.Scripts(ctx, doc), pattern)
	for _, err := range errs {
		slog.DebugContext(ctx, "skipped embedded array", "err", err)
	}
	return c.Records(records)
}
