package orchestrator

import (
	"context"
	"errors"
	"lapets-backend/lib/normalize"
	"lapets-backend/lib/petstore"
	"lapets-backend/lib/scraper"
	"lapets-backend/lib/testutil"
	"lapets-backend/services/reconcile"
	"lapets-backend/services/registry"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeAdapter struct {
	key       string
	locations []scraper.Location
	animals   []scraper.ScrapedAnimal
	err       error
	panics    bool
	delay     time.Duration

	active    *atomic.Int32
	maxActive *atomic.Int32
}

func (a fakeAdapter) Name() string      { return "fake " + a.key }
func (a fakeAdapter) SourceKey() string { return a.key }

func (a fakeAdapter) Scrape(ctx context.Context, filter string) []scraper.Result {
	if a.active != nil {
		n := a.active.Add(1)
		defer a.active.Add(-1)
		for {
			peak := a.maxActive.Load()
			if n <= peak || a.maxActive.CompareAndSwap(peak, n) {
				break
			}
		}
	}
	if a.delay > 0 {
		time.Sleep(a.delay)
	}
	if a.panics {
		panic("selector exploded")
	}
	return scraper.Group(a.key, a.locations, a.animals, filter, a.err, time.Now())
}

func pet(id, slug string) scraper.ScrapedAnimal {
	return scraper.ScrapedAnimal{
		ExternalID:  id,
		ShelterSlug: slug,
		Name:        id,
		Species:     normalize.Cat,
		Breed:       "Domestic Shorthair",
		Age:         normalize.Young,
		Gender:      normalize.Female,
		Size:        normalize.Small,
	}
}

var spcaLocations = []scraper.Location{
	{Slug: "spcala-south-bay", Name: "South Bay"},
	{Slug: "spcala-long-beach", Name: "Long Beach"},
}

type recordingNotifier struct {
	mutex     sync.Mutex
	summaries []Summary
}

func (n *recordingNotifier) Notify(_ context.Context, summary Summary) error {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	n.summaries = append(n.summaries, summary)
	return nil
}

func setup(t *testing.T, opts Options, adapters ...scraper.Adapter) (*Orchestrator, petstore.Store) {
	res, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "orchestrator",
		DbSchema: petstore.Schema,
	})
	t.Cleanup(cleanup)

	store := petstore.NewStore(res.DB)
	reg, err := registry.New(registry.Options{Adapters: adapters})
	require.NoError(t, err)
	return New(reg, store, reconcile.New(store), opts), store
}

func TestRunAll(t *testing.T) {
	notifier := &recordingNotifier{}
	o, store := setup(
		t, Options{Notifier: notifier},
		fakeAdapter{
			key:       "spcala",
			locations: spcaLocations,
			animals: []scraper.ScrapedAnimal{
				pet("A", "spcala-south-bay"),
				pet("B", "spcala-long-beach"),
				pet("C", "spcala-long-beach"),
			},
		},
		fakeAdapter{
			key:       "la-city",
			locations: []scraper.Location{{Slug: "la-city-harbor", Name: "Harbor"}},
			err:       errors.New("503 service unavailable"),
		},
		fakeAdapter{
			key:       "pasadena-humane",
			locations: []scraper.Location{{Slug: "pasadena-humane", Name: "Pasadena Humane"}},
			panics:    true,
		},
	)
	ctx := context.Background()

	summary := o.RunAll(ctx)
	require.Equal(t, 3, summary.TotalSources)
	require.Equal(t, 1, summary.SuccessfulSources)
	require.Equal(t, 3, summary.TotalAnimalsFound)
	require.Equal(t, 4, summary.TotalShelters)
	require.Equal(t, 2, summary.SuccessfulShelters)

	bySource := map[string]SourceResult{}
	for _, r := range summary.Sources {
		bySource[r.SourceKey] = r
	}
	require.True(t, bySource["spcala"].Success)
	require.Equal(t, 3, bySource["spcala"].Stats.Added)
	require.NoError(t, bySource["spcala"].ReconcileErr)
	require.ErrorContains(t, bySource["la-city"].Err, "503")
	require.ErrorContains(t, bySource["pasadena-humane"].Err, "panicked")

	require.Len(t, notifier.summaries, 1)
	require.Len(t, notifier.summaries[0].Failed(), 2)

	// shelters were initialized before reconciling
	shelters, err := store.ListShelters(ctx)
	require.NoError(t, err)
	require.Len(t, shelters, 23)

	runs, err := store.RecentRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 3)
}

func TestRunOne(t *testing.T) {
	o, store := setup(t, Options{}, fakeAdapter{
		key:       "spcala",
		locations: spcaLocations,
		animals:   []scraper.ScrapedAnimal{pet("A", "spcala-south-bay")},
	})
	ctx := context.Background()

	_, err := o.RunOne(ctx, "nowhere")
	require.ErrorIs(t, err, registry.ErrUnknownSource)

	summary, err := o.RunOne(ctx, "spcala")
	require.NoError(t, err)
	require.Equal(t, 1, summary.TotalSources)
	require.Equal(t, 1, summary.SuccessfulSources)

	count, err := store.CountAvailable(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestRunShelter(t *testing.T) {
	adapter := fakeAdapter{
		key:       "spcala",
		locations: spcaLocations,
		animals: []scraper.ScrapedAnimal{
			pet("A", "spcala-south-bay"),
			pet("B", "spcala-long-beach"),
		},
	}
	o, store := setup(t, Options{}, adapter)
	ctx := context.Background()

	_, err := o.RunOne(ctx, "spcala")
	require.NoError(t, err)

	_, err = o.RunShelter(ctx, "spcala-nowhere")
	require.ErrorIs(t, err, ErrUnknownShelter)
	_, err = o.RunShelter(ctx, "burbank-animal-shelter")
	require.ErrorIs(t, err, registry.ErrUnknownSource)

	summary, err := o.RunShelter(ctx, "spcala-long-beach")
	require.NoError(t, err)
	require.Len(t, summary.Sources[0].Shelters, 1)
	require.Equal(t, 1, summary.TotalAnimalsFound)
	require.Zero(t, summary.Sources[0].Stats.Retired)

	keys, err := store.ListAnimalKeys(ctx, "spcala")
	require.NoError(t, err)
	for _, k := range keys {
		require.True(t, k.IsAvailable, k.ExternalID)
	}
}

func TestParallelism(t *testing.T) {
	var active, maxActive atomic.Int32
	var adapters []scraper.Adapter
	for _, key := range []string{"la-county", "la-city", "spcala", "pasadena-humane", "best-friends"} {
		adapters = append(adapters, fakeAdapter{
			key:       key,
			locations: []scraper.Location{{Slug: key, Name: key}},
			delay:     20 * time.Millisecond,
			active:    &active,
			maxActive: &maxActive,
		})
	}

	o, _ := setup(t, Options{Parallelism: 2}, adapters...)
	summary := o.RunAll(context.Background())
	require.Equal(t, 5, summary.TotalSources)
	require.LessOrEqual(t, maxActive.Load(), int32(2))

	maxActive.Store(0)
	o, _ = setup(t, Options{}, adapters...)
	o.RunAll(context.Background())
	require.Equal(t, int32(1), maxActive.Load())
}

func TestTotalDuration(t *testing.T) {
	var adapters []scraper.Adapter
	for _, key := range []string{"la-county", "la-city", "spcala", "pasadena-humane", "best-friends"} {
		adapters = append(adapters, fakeAdapter{
			key:       key,
			locations: []scraper.Location{{Slug: key, Name: key}},
			delay:     50 * time.Millisecond,
		})
	}
	sourceTotal := func(summary Summary) time.Duration {
		var total time.Duration
		for _, r := range summary.Sources {
			total += r.Duration
		}
		return total
	}

	o, _ := setup(t, Options{Parallelism: 5}, adapters...)
	summary := o.RunAll(context.Background())
	require.GreaterOrEqual(t, summary.TotalDuration, 50*time.Millisecond)
	require.Less(t, summary.TotalDuration, sourceTotal(summary))

	o, _ = setup(t, Options{}, adapters...)
	summary = o.RunAll(context.Background())
	require.GreaterOrEqual(t, summary.TotalDuration, sourceTotal(summary))
}
