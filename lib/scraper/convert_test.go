package scraper

import (
	"bytes"
	"context"
	"lapets-backend/lib/normalize"
	"regexp"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

var testConversion = Conversion{
	BaseUrl: "https://example.org",
	Locations: LocationMap{
		Rules: []LocationRule{
			{Needles: []string{"lancaster"}, Slug: "lancaster"},
		},
		Default: "downey",
	},
	DefaultBreed:   "Mixed Breed",
	DefaultSpecies: normalize.Dog,
}

func TestConversionRecord(t *testing.T) {
	records, err := ParseRecords([]byte(`[{
		"id": "101",
		"name": "Rex",
		"species": "Dog",
		"age": "3 years",
		"size": "lg",
		"gender": "m",
		"photos": ["/img/rex.jpg"]
	}]`))
	require.NoError(t, err)

	rex, ok := testConversion.Record(records[0])
	require.True(t, ok)

	expected := ScrapedAnimal{
		ExternalID:  "101",
		ShelterSlug: "downey",
		Name:        "Rex",
		Species:     normalize.Dog,
		Breed:       "Mixed Breed",
		Age:         normalize.Adult,
		Gender:      normalize.Male,
		Size:        normalize.Large,
		Photos:      []string{"https://example.org/img/rex.jpg"},
	}
	if diff := cmp.Diff(expected, rex); diff != "" {
		t.Fatal(diff)
	}
}

func TestConversionRecordFields(t *testing.T) {
	records, err := ParseRecords([]byte(`[
		{"name": "Whiskers", "type": "Feline", "monthsOld": 4, "sex": "Female", "location": "Lancaster Branch",
		 "altered": true, "kids": "no", "photo": "//cdn.example.org/w.jpg", "link": "/pets/whiskers"},
		{"id": 7}
	]`))
	require.NoError(t, err)

	animals := testConversion.Records(records)
	require.Len(t, animals, 1)

	whiskers := animals[0]
	require.True(t, normalize.IsSynthetic(whiskers.ExternalID))
	require.Equal(t, "lancaster", whiskers.ShelterSlug)
	require.Equal(t, normalize.Cat, whiskers.Species)
	require.Equal(t, normalize.Baby, whiskers.Age)
	require.Equal(t, normalize.Female, whiskers.Gender)
	require.Equal(t, []string{"https://cdn.example.org/w.jpg"}, whiskers.Photos)
	require.Equal(t, "https://example.org/pets/whiskers", whiskers.AdoptionURL)
	require.True(t, *whiskers.SpayedNeutered)
	require.False(t, *whiskers.GoodWithChildren)
	require.Nil(t, whiskers.GoodWithDogs)

	again := testConversion.Records(records)
	require.Equal(t, whiskers.ExternalID, again[0].ExternalID)
}

const cardsPage = `<html><body>
<div class="pet-card" data-pet-id="55">
	<h3>  Biscuit </h3>
	<span class="breed">Beagle</span>
	<span class="age">Puppy</span>
	<span class="gender">Male</span>
	<span class="size">Small</span>
	<span class="location">Lancaster</span>
	<img data-src="/img/biscuit.jpg">
	<a class="details" href="/adopt/biscuit">View</a>
</div>
<div class="pet-card">
	<h3>Luna</h3>
	<a class="details" href="https://example.org/pet/9001/">View</a>
</div>
<div class="pet-card">
	<h3>Pumpkin</h3>
</div>
<div class="pet-card">
	<h3>Olive</h3>
	<a href="mailto:adopt@example.org">Email us</a>
	<a href="/events">Events</a>
	<a href="/pet/777">Meet Olive</a>
</div>
<div class="pet-card"><span class="breed">Nameless</span></div>
</body></html>`

func TestConversionCards(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewBufferString(cardsPage))
	require.NoError(t, err)

	animals := testConversion.Cards(doc.Selection, CardSelectors{
		Card:     ".pet-card",
		Name:     ".pet-name, h3",
		Breed:    ".breed",
		Age:      ".age",
		Gender:   ".gender",
		Size:     ".size",
		Location: ".location",
		Link:     "a.details",
		IDAttrs:  []string{"data-pet-id", "data-id"},
		IDPatterns: []*regexp.Regexp{
			regexp.MustCompile(`/(\d+)/?$`),
		},
	})
	require.Len(t, animals, 4)

	biscuit := animals[0]
	require.Equal(t, "55", biscuit.ExternalID)
	require.Equal(t, "Biscuit", biscuit.Name)
	require.Equal(t, "lancaster", biscuit.ShelterSlug)
	require.Equal(t, normalize.Dog, biscuit.Species)
	require.Equal(t, normalize.Baby, biscuit.Age)
	require.Equal(t, normalize.Small, biscuit.Size)
	require.Equal(t, []string{"https://example.org/img/biscuit.jpg"}, biscuit.Photos)
	require.Equal(t, "https://example.org/adopt/biscuit", biscuit.AdoptionURL)

	require.Equal(t, "9001", animals[1].ExternalID)
	require.Equal(t, "downey", animals[1].ShelterSlug)
	require.Equal(t, "Mixed Breed", animals[1].Breed)

	require.True(t, normalize.IsSynthetic(animals[2].ExternalID))
	require.Empty(t, animals[2].AdoptionURL)

	olive := animals[3]
	require.Equal(t, "777", olive.ExternalID)
	require.Equal(t, "https://example.org/pet/777", olive.AdoptionURL)
}

func TestCardLinkFallback(t *testing.T) {
	testCases := []struct {
		name     string
		html     string
		link     string
		expected string
	}{
		{
			name:     "selector wins",
			html:     `<div><a href="/other">x</a><a class="details" href="/pet/1">y</a></div>`,
			link:     "a.details",
			expected: "/pet/1",
		},
		{
			name:     "selector misses, id pattern anchor",
			html:     `<div><a href="/events">x</a><a href="/pet/2">y</a></div>`,
			link:     "a.details",
			expected: "/pet/2",
		},
		{
			name:     "first page anchor",
			html:     `<div><a href="#top">x</a><a href="tel:555">y</a><a href="/about">z</a></div>`,
			expected: "/about",
		},
		{
			name:     "card is the anchor",
			html:     `<a class="card" href="/pet/3"><h3>Rex</h3></a>`,
			expected: "/pet/3",
		},
		{
			name: "no usable anchor",
			html: `<div><a href="javascript:void(0)">x</a></div>`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			doc, err := goquery.NewDocumentFromReader(bytes.NewBufferString(tc.html))
			require.NoError(t, err)
			card := doc.Find("body").Children().First()
			got := cardLink(card, CardSelectors{
				Link:       tc.link,
				IDPatterns: []*regexp.Regexp{regexp.MustCompile(`/pet/(\d+)`)},
			})
			require.Equal(t, tc.expected, got)
		})
	}
}

func TestConversionScriptAnimals(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewBufferString(`<html><head><script>
		var animals = [{"id": 1, "name": "Mia", "species": "cat"}, {"id": 2}];
	</script></head></html>`))
	require.NoError(t, err)

	animals := testConversion.ScriptAnimals(context.Background(), doc, ScriptArrayPattern("animals"))
	require.Len(t, animals, 1)
	require.Equal(t, "1", animals[0].ExternalID)
	require.Equal(t, normalize.Cat, animals[0].Species)
}
