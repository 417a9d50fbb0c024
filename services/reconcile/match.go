package reconcile

import (
	"lapets-backend/lib/normalize"
	"lapets-backend/lib/petstore"
	"lapets-backend/lib/scraper"
	"lapets-backend/lib/textutil"

	"github.com/antzucaro/matchr"
)

// names at least this similar are taken to be the same animal
const nameSimilarity = 0.93

// synthMatcher pairs records whose synthetic id changed between runs (the
// listed name was edited) with the stored synthetic record they most
// likely are.
type synthMatcher struct {
	candidates []petstore.AnimalKey
	taken      map[int64]bool
}

func newSynthMatcher(stored []petstore.AnimalKey, incoming []scraper.ScrapedAnimal) *synthMatcher {
	present := make(map[string]bool, len(incoming))
	for _, a := range incoming {
		present[a.ExternalID] = true
	}
	m := &synthMatcher{taken: map[int64]bool{}}
	for _, k := range stored {
		if normalize.IsSynthetic(k.ExternalID) && !present[k.ExternalID] {
			m.candidates = append(m.candidates, k)
		}
	}
	return m
}

// match returns the external id of the stored record the animal should
// be filed under, or false if there is none.
func (m *synthMatcher) match(a scraper.ScrapedAnimal) (string, bool) {
	if len(m.candidates) == 0 || !normalize.IsSynthetic(a.ExternalID) {
		return "", false
	}

	name := textutil.NormalizeName(a.Name)
	breed := textutil.NormalizeName(a.Breed)

	var best petstore.AnimalKey
	var bestSimilarity float64
	for _, k := range m.candidates {
		if m.taken[k.ID] ||
			k.ShelterSlug != a.ShelterSlug ||
			k.Species != a.Species ||
			textutil.NormalizeName(k.Breed) != breed {
			continue
		}
		similarity := matchr.JaroWinkler(name, textutil.NormalizeName(k.Name), false)
		if similarity > bestSimilarity {
			bestSimilarity = similarity
			best = k
		}
	}

	if bestSimilarity < nameSimilarity {
		return "", false
	}
	m.taken[best.ID] = true
	return best.ExternalID, true
}
