package spcala

import (
	"context"
	"lapets-backend/lib/normalize"
	"lapets-backend/lib/scraper"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var locations = []scraper.Location{
	{Slug: "spcala-south-bay", Name: "spcaLA South Bay Pet Adoption Center"},
	{Slug: "spcala-long-beach", Name: "spcaLA P.D. Pitchford Companion Animal Village"},
}

const dogsPage = `<html><body>
<article class="pet">
	<a href="/pet/1201/"><img data-lazy-src="/uploads/max.jpg"></a>
	<h2>Max</h2>
	<span class="breed">Labrador Retriever</span>
	<span class="age">Senior</span>
	<span class="sex">Male</span>
	<span class="size">XL</span>
	<span class="location">Pitchford Long Beach</span>
</article>
<article class="pet">
	<a href="/adopt?pet_id=1300"></a>
	<h2>Daisy</h2>
	<span class="location">Hawthorne</span>
</article>
</body></html>`

const catsPage = `<html><body>
<div class="pet-card">
	<a href="/pet/2001/"></a>
	<h3>Mittens</h3>
</div>
<script>
	var pets = [{"id": "2001", "name": "Mittens"}, {"id": "2002", "name": "Shadow", "breed": "Siamese", "location": "Long Beach"}];
</script>
</body></html>`

const detailPage = `<html><body>
<div class="pet-gallery"><img src="/uploads/max-1.jpg"><img data-src="/uploads/max-2.jpg"></div>
<div class="pet-description">Max loves long naps.</div>
<ul class="pet-attributes"><li>Neutered</li><li>Vaccinated</li><li>Good with kids</li><li>No cats</li></ul>
</body></html>`

func newServer(catsDown bool) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/adoptable/dogs/":
			w.Write([]byte(dogsPage))
		case "/adoptable/cats/":
			if catsDown {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.Write([]byte(catsPage))
		case "/pet/1201/":
			w.Write([]byte(detailPage))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func scrapeAll(t *testing.T, server *httptest.Server) map[string][]scraper.ScrapedAnimal {
	adapter := New(scraper.Config{
		BaseUrl:   server.URL,
		Locations: locations,
		Client:    scraper.ClientOptions{Timeout: time.Second * 5},
	})
	results := adapter.Scrape(context.Background(), "")
	require.Len(t, results, 2)

	out := map[string][]scraper.ScrapedAnimal{}
	for _, r := range results {
		require.True(t, r.Success, r.Err)
		for _, a := range r.Animals {
			out[a.ExternalID] = append(out[a.ExternalID], a)
			require.Equal(t, r.ShelterSlug, a.ShelterSlug)
		}
	}
	return out
}

func TestScrape(t *testing.T) {
	server := newServer(false)
	defer server.Close()

	animals := scrapeAll(t, server)
	require.Len(t, animals, 4)

	max := animals["1201"][0]
	require.Equal(t, "spcala-long-beach", max.ShelterSlug)
	require.Equal(t, normalize.Dog, max.Species)
	require.Equal(t, normalize.Senior, max.Age)
	require.Equal(t, normalize.ExtraLarge, max.Size)
	require.Equal(t, []string{server.URL + "/uploads/max-1.jpg", server.URL + "/uploads/max-2.jpg"}, max.Photos)
	require.Equal(t, "Max loves long naps.", max.Description)
	require.True(t, *max.SpayedNeutered)
	require.True(t, *max.ShotsCurrent)
	require.True(t, *max.GoodWithChildren)
	require.False(t, *max.GoodWithCats)
	require.Nil(t, max.GoodWithDogs)

	daisy := animals["1300"][0]
	require.Equal(t, "spcala-south-bay", daisy.ShelterSlug)
	require.Equal(t, "Mixed Breed", daisy.Breed)
	require.Empty(t, daisy.Photos)

	require.Len(t, animals["2001"], 1)
	require.Equal(t, normalize.Cat, animals["2001"][0].Species)

	shadow := animals["2002"][0]
	require.Equal(t, normalize.Cat, shadow.Species)
	require.Equal(t, "spcala-long-beach", shadow.ShelterSlug)
	require.Equal(t, "Siamese", shadow.Breed)
}

func TestScrapeOnePageDown(t *testing.T) {
	server := newServer(true)
	defer server.Close()

	animals := scrapeAll(t, server)
	require.Len(t, animals, 2)
	require.Contains(t, animals, "1201")
	require.Contains(t, animals, "1300")
}

func TestParseDetailsReadabilityFallback(t *testing.T) {
	d, err := parseDetails([]byte(`<html><head><title>Buddy</title></head><body>
		<article><h1>Buddy</h1>
		<p>Buddy is a gentle giant who has been waiting for his forever home for a long time. He enjoys slow walks around the block, chewing on his favorite rope toy and curling up at your feet in the evening.</p>
		<p>He already knows sit, stay and down, and is eager to learn more. Buddy would do best in a home without cats, but he has done well with the other dogs he has met at the shelter so far.</p>
		<p>Our adoption counselors describe him as calm, affectionate and polite on a leash. He is house trained, up to date on his shots and ready to go home today with the right family. Stop by the adoption center to meet him in person and see if he is the right fit for you.</p>
		</article></body></html>`), "https://spcala.com/pet/3/")
	require.NoError(t, err)
	require.Contains(t, d.description, "gentle giant")
	require.Empty(t, d.photos)
	require.Nil(t, d.goodWithCats)
}
