package scraper

import (
	"lapets-backend/lib/textutil"
	"strings"
)

type LocationRule struct {
	// any of the needles appearing in the location text selects Slug
	Needles []string
	Slug    string
}

// LocationMap attributes free-text location names to shelter slugs.
// Rules are checked in order, text matching no rule is given Default.
type LocationMap struct {
	Rules   []LocationRule
	Default string
}

func (m LocationMap) Slug(location string) string {
	folded := textutil.Fold(location)
	if folded == "" {
		return m.Default
	}
	for _, r := range m.Rules {
		for _, n := range r.Needles {
			if strings.Contains(folded, n) {
				return r.Slug
			}
		}
	}
	return m.Default
}
