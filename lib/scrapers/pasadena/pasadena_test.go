package pasadena

import (
	"context"
	"lapets-backend/lib/normalize"
	"lapets-backend/lib/scraper"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var locations = []scraper.Location{{Slug: ShelterSlug, Name: "Pasadena Humane"}}

func scrape(t *testing.T, pages map[string]string) scraper.Result {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := pages[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(strings.ReplaceAll(body, "{{origin}}", server.URL)))
	}))
	t.Cleanup(server.Close)

	adapter := New(scraper.Config{
		BaseUrl:   server.URL,
		Locations: locations,
		Client:    scraper.ClientOptions{Timeout: time.Second * 5},
	})
	results := adapter.Scrape(context.Background(), "")
	require.Len(t, results, 1)
	require.Equal(t, ShelterSlug, results[0].ShelterSlug)
	return results[0]
}

func TestCardsAndScripts(t *testing.T) {
	result := scrape(t, map[string]string{
		"/adopt/": `<html><body>
			<div class="grid-item">
				<a href="/adopt/animal?id=4411"><img src="/media/kitty.jpg"></a>
				<h4>Kitty Purry</h4>
				<span class="age">Kitten</span>
			</div>
			<div class="grid-item"><h4>Sir Barksalot</h4><span class="breed">Corgi</span></div>
			<iframe src="{{origin}}/widget/adopt"></iframe>
			<script>var data = {"pets": [
				{"id": 4411, "name": "Kitty Purry"},
				{"id": 99, "name": "Clover", "type": "bunny", "fixed": "yes", "photos": [{"large": "//cdn.ph.org/c.jpg"}]}
			]};</script>
		</body></html>`,
	})
	require.True(t, result.Success)
	require.Len(t, result.Animals, 3)

	kitty := result.Animals[0]
	require.Equal(t, "4411", kitty.ExternalID)
	require.Equal(t, normalize.Other, kitty.Species)
	require.Equal(t, normalize.Baby, kitty.Age)
	require.Equal(t, "Unknown", kitty.Breed)
	require.Contains(t, kitty.Photos[0], "/media/kitty.jpg")

	barks := result.Animals[1]
	require.True(t, normalize.IsSynthetic(barks.ExternalID))
	require.Equal(t, "Corgi", barks.Breed)

	clover := result.Animals[2]
	require.Equal(t, "99", clover.ExternalID)
	require.Equal(t, normalize.Rabbit, clover.Species)
	require.True(t, *clover.SpayedNeutered)
	require.Equal(t, []string{"https://cdn.ph.org/c.jpg"}, clover.Photos)
}

func TestWidgetFallback(t *testing.T) {
	result := scrape(t, map[string]string{
		"/adopt/": `<html><body><iframe src="{{origin}}/widget/adopt"></iframe></body></html>`,
		"/widget/adopt": `<html><body>
			<div class="animal" data-id="w-1"><h2>Puppy Love</h2><span class="species">Dog</span><span class="gender">F</span></div>
			<div class="animal"><span class="species">Cat</span></div>
		</body></html>`,
	})
	require.True(t, result.Success)
	require.Len(t, result.Animals, 1)

	puppy := result.Animals[0]
	require.Equal(t, "w-1", puppy.ExternalID)
	require.Equal(t, normalize.Dog, puppy.Species)
	require.Equal(t, normalize.Female, puppy.Gender)
	require.Contains(t, puppy.AdoptionURL, "/widget/adopt")
}

func TestEmptyPage(t *testing.T) {
	result := scrape(t, map[string]string{
		"/adopt/": `<html><body><p>Check back soon!</p></body></html>`,
	})
	require.True(t, result.Success)
	require.Empty(t, result.Animals)
}

func TestUnreachable(t *testing.T) {
	result := scrape(t, map[string]string{})
	require.False(t, result.Success)
	require.Error(t, result.Err)
}
