package lacity

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
	{Slug: "la-city-east-valley", Name: "East Valley Animal Shelter"},
	{Slug: "la-city-west-valley", Name: "West Valley Animal Shelter"},
	{Slug: "la-city-west-la", Name: "West LA Animal Shelter"},
	{Slug: "la-city-north-central", Name: "North Central Animal Shelter"},
	{Slug: "la-city-south-la", Name: "South LA Animal Shelter"},
	{Slug: "la-city-harbor", Name: "Harbor Animal Shelter"},
}

const adoptPage = `<html><body>
<div class="adoptable-pet" data-pet-id="A1">
	<h3>Duke</h3>
	<span class="pet-type">Dog</span>
	<span class="pet-breed">Pit Bull Terrier</span>
	<span class="pet-age">Young Adult</span>
	<span class="pet-gender">Male</span>
	<span class="shelter-name">East Valley</span>
	<img src="//images.example.org/duke.jpg">
	<a class="view-details" href="/pet/A1">Details</a>
</div>
<div class="adoptable-pet" data-pet-id="A2">
	<h4>Cleo</h4>
	<span class="species">Cat</span>
	<span class="location">South Los Angeles</span>
</div>
<script>
	window.shelterData = {
		animals: [
			{ id: "A2", name: "Cleo", species: "cat" },
			{ animal_id: 77, name: "Pepper", species: "Rabbit", primary_breed: "Lop", secondary_breed: "Rex",
			  location: "Harbor", photos: [{ url: "/img/pepper.jpg" }], altered: true, dogs: false }
		]
	};
</script>
</body></html>`

func TestScrape(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/adopt/" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(adoptPage))
	}))
	defer server.Close()

	adapter := New(scraper.Config{
		BaseUrl:   server.URL,
		Locations: locations,
		Client:    scraper.ClientOptions{Timeout: time.Second * 5},
	})
	results := adapter.Scrape(context.Background(), "")
	require.Len(t, results, 6)

	found := map[string][]scraper.ScrapedAnimal{}
	for _, r := range results {
		require.True(t, r.Success)
		found[r.ShelterSlug] = r.Animals
	}

	require.Len(t, found["la-city-east-valley"], 1)
	duke := found["la-city-east-valley"][0]
	require.Equal(t, "A1", duke.ExternalID)
	require.Equal(t, normalize.Young, duke.Age)
	require.Equal(t, normalize.Medium, duke.Size)
	require.Equal(t, []string{"https://images.example.org/duke.jpg"}, duke.Photos)
	require.Equal(t, server.URL+"/pet/A1", duke.AdoptionURL)

	require.Len(t, found["la-city-south-la"], 1)
	require.Equal(t, normalize.Cat, found["la-city-south-la"][0].Species)

	require.Len(t, found["la-city-harbor"], 1)
	pepper := found["la-city-harbor"][0]
	require.Equal(t, "77", pepper.ExternalID)
	require.Equal(t, normalize.Rabbit, pepper.Species)
	require.Equal(t, "Lop", pepper.Breed)
	require.Equal(t, "Rex", pepper.BreedSecondary)
	require.Equal(t, []string{server.URL + "/img/pepper.jpg"}, pepper.Photos)
	require.True(t, *pepper.SpayedNeutered)
	require.False(t, *pepper.GoodWithDogs)
}

func TestScrapeUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	adapter := New(scraper.Config{BaseUrl: server.URL, Locations: locations})
	results := adapter.Scrape(context.Background(), "la-city-harbor")
	require.Len(t, results, 1)
	require.False(t, results[0].Success)
	require.ErrorContains(t, results[0].Err, "502")
}
