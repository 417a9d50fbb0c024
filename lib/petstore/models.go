package petstore

import (
	"lapets-backend/lib/normalize"
	"lapets-backend/lib/scraper"
	"time"
)

// Animal is a stored listing. It is never deleted, animals that stop
// showing up at their source are marked unavailable instead.
type Animal struct {
	ID        int64
	SourceKey string
	scraper.ScrapedAnimal

	IsAvailable bool
	FirstSeenAt time.Time
	LastSeenAt  time.Time
	// url of the photo flagged primary, empty for animals without photos
	PrimaryPhoto string

	// Shelter is only populated by SearchAnimals.
	Shelter Shelter
}

type Photo struct {
	URL       string
	IsPrimary bool
}

// setPhotos fills Photos and PrimaryPhoto from stored photo rows.
func (a *Animal) setPhotos(photos []Photo) {
	a.Photos = nil
	a.PrimaryPhoto = ""
	for _, p := range photos {
		a.Photos = append(a.Photos, p.URL)
		if p.IsPrimary && a.PrimaryPhoto == "" {
			a.PrimaryPhoto = p.URL
		}
	}
}

// AnimalKey is the slice of a stored animal needed to reconcile a new
// batch against it.
type AnimalKey struct {
	ID          int64
	ExternalID  string
	ShelterSlug string
	Name        string
	Breed       string
	Species     normalize.Species
	IsAvailable bool
}

type Shelter struct {
	Slug        string
	Name        string
	SourceKey   string
	Platform    string
	Website     string
	AdoptionURL string
	Email       string
	Phone       string
	Street      string
	City        string
	State       string
	Postcode    string
	Latitude    float64
	Longitude   float64

	LastScrapedAt time.Time
}

type ShelterSummary struct {
	Shelter
	ActiveAnimals int
}

// RunLog is written once per reconciled source run and never updated.
type RunLog struct {
	ID        string
	SourceKey string
	StartedAt time.Time
	Duration  time.Duration
	Success   bool
	Found     int
	Added     int
	Updated   int
	Retired   int
	Failed    int
	Error     string
}

// Filter narrows SearchAnimals, zero fields match everything.
type Filter struct {
	Species normalize.Species
	// Breed matches as a case insensitive substring.
	Breed   string
	Age     normalize.Age
	Size    normalize.Size
	Gender  normalize.Gender
	Shelter string

	GoodWithChildren bool
	GoodWithDogs     bool
	GoodWithCats     bool

	// Page starts at 1.
	Page  int
	Limit int
}

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

type Page struct {
	Animals    []Animal
	Page       int
	Limit      int
	Total      int
	TotalPages int
}

const (
	StaleAfter      = time.Hour
	IncompleteBelow = 50
)

// Status summarizes whether the catalog is fresh enough to serve.
type Status struct {
	AvailableAnimals int
	// LastSuccessAt is zero when no run has succeeded yet.
	LastSuccessAt time.Time
	IsStale       bool
	IsIncomplete  bool
	NeedsScrape   bool
}
