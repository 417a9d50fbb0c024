package scraper

import (
	"context"
	"errors"
	"lapets-backend/lib/normalize"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func animal(id, name, slug string) ScrapedAnimal {
	return ScrapedAnimal{ExternalID: id, Name: name, ShelterSlug: slug}
}

func ids(animals []ScrapedAnimal) []string {
	out := make([]string, len(animals))
	for i, a := range animals {
		out[i] = a.ExternalID
	}
	return out
}

func static(animals []ScrapedAnimal, err error) func(context.Context) ([]ScrapedAnimal, error) {
	return func(context.Context) ([]ScrapedAnimal, error) {
		return animals, err
	}
}

func TestCascade(t *testing.T) {
	fetchErr := errors.New("connection refused")
	synthetic := normalize.SyntheticID("s", "Rex")

	testCases := []struct {
		name       string
		strategies []Strategy
		expected   []string
		fails      bool
	}{
		{
			name: "first non-empty strategy wins",
			strategies: []Strategy{
				{Name: "api", Fetch: static(nil, fetchErr)},
				{Name: "html", Fetch: static([]ScrapedAnimal{animal("1", "Rex", "s")}, nil)},
				{Name: "other", Fetch: static([]ScrapedAnimal{animal("2", "Mia", "s")}, nil)},
			},
			expected: []string{"1"},
		},
		{
			name: "merge only adds unseen records",
			strategies: []Strategy{
				{Name: "html", Fetch: static([]ScrapedAnimal{
					animal("1", "Rex", "s"),
					animal(synthetic, "Rex", "s"),
				}, nil)},
				{Name: "scripts", Merge: true, Fetch: static([]ScrapedAnimal{
					animal("1", "Rex", "s"),
					animal("2", "Mia", "s"),
					animal(normalize.SyntheticID("s", "rex "), " REX", "s"),
				}, nil)},
			},
			expected: []string{"1", "2"},
		},
		{
			name: "empty but working source is not a failure",
			strategies: []Strategy{
				{Name: "api", Fetch: static(nil, ErrNoAnimals)},
				{Name: "html", Fetch: static(nil, nil)},
			},
			expected: nil,
		},
		{
			name: "every strategy failing is a failure",
			strategies: []Strategy{
				{Name: "api", Fetch: static(nil, fetchErr)},
				{Name: "html", Fetch: func(context.Context) ([]ScrapedAnimal, error) {
					var m map[string]string
					m["boom"] = "x"
					return nil, nil
				}},
			},
			fails: true,
		},
		{
			name: "records without ids are dropped",
			strategies: []Strategy{
				{Name: "html", Fetch: static([]ScrapedAnimal{animal("", "Nobody", "s"), animal("3", "Bo", "s")}, nil)},
			},
			expected: []string{"3"},
		},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			animals, err := Cascade{SourceKey: "test", Strategies: test.strategies}.Run(context.Background())
			if test.fails {
				require.Error(t, err)
				require.Empty(t, animals)
				return
			}
			require.NoError(t, err)
			require.Len(t, animals, len(test.expected))
			if len(test.expected) == 0 {
				return
			}
			if diff := cmp.Diff(test.expected, ids(animals)); diff != "" {
				t.Fatal(diff)
			}
		})
	}
}

func TestCascadeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Cascade{Strategies: []Strategy{
		{Name: "api", Fetch: static([]ScrapedAnimal{animal("1", "Rex", "s")}, nil)},
	}}.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestLocationMap(t *testing.T) {
	locations := LocationMap{
		Rules: []LocationRule{
			{Needles: []string{"baldwin park", "baldwin"}, Slug: "baldwin-park"},
			{Needles: []string{"lancaster", "palmdale"}, Slug: "lancaster"},
			{Needles: []string{"downey"}, Slug: "downey"},
		},
		Default: "downey",
	}

	testCases := []struct {
		location string
		expected string
	}{
		{location: "Lancaster Branch", expected: "lancaster"},
		{location: "  BALDWIN   Park Animal Care Center", expected: "baldwin-park"},
		{location: "Palmdale", expected: "lancaster"},
		{location: "Somewhere Else", expected: "downey"},
		{location: "", expected: "downey"},
	}
	for _, test := range testCases {
		require.Equal(t, test.expected, locations.Slug(test.location), test.location)
	}
}

func TestGroup(t *testing.T) {
	locations := []Location{
		{Slug: "downey", Name: "Downey"},
		{Slug: "lancaster", Name: "Lancaster"},
	}
	animals := []ScrapedAnimal{
		animal("1", "Rex", "lancaster"),
		animal("2", "Mia", "downey"),
		animal("3", "Bo", "mystery"),
	}
	start := time.Now()

	results := Group("la-county", locations, animals, "", nil, start)
	require.Len(t, results, 2)
	require.Equal(t, "downey", results[0].ShelterSlug)
	require.Equal(t, []string{"2", "3"}, ids(results[0].Animals))
	require.Equal(t, "downey", results[0].Animals[1].ShelterSlug)
	require.Equal(t, []string{"1"}, ids(results[1].Animals))
	require.True(t, results[1].Success)

	filtered := Group("la-county", locations, animals, "lancaster", nil, start)
	require.Len(t, filtered, 1)
	require.Equal(t, "Lancaster", filtered[0].ShelterName)

	failed := Group("la-county", locations, nil, "", errors.New("down"), start)
	require.Len(t, failed, 2)
	for _, r := range failed {
		require.False(t, r.Success)
		require.Error(t, r.Err)
	}
}

type panicky struct{}

func (panicky) Name() string      { return "Panicky" }
func (panicky) SourceKey() string { return "panicky" }
func (panicky) Scrape(context.Context, string) []Result {
	panic("selector exploded")
}

func TestGuard(t *testing.T) {
	results := Guard(context.Background(), panicky{}, "")
	require.Len(t, results, 1)
	require.False(t, results[0].Success)
	require.ErrorContains(t, results[0].Err, "selector exploded")
	require.Equal(t, "panicky", results[0].SourceKey)
}

func TestFetchDocument(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("content-type", "text/html")
		w.Write([]byte(`<html><body><h1>Adopt</h1></body></html>`))
	}))
	defer server.Close()

	client, err := NewClient(ClientOptions{BaseUrl: server.URL, Timeout: time.Second * 5})
	require.NoError(t, err)

	doc, err := FetchDocument(context.Background(), client, "/adopt")
	require.NoError(t, err)
	require.Equal(t, "Adopt", doc.Find("h1").Text())

	_, err = FetchDocument(context.Background(), client, "/missing")
	require.Error(t, err)
}
