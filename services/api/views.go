package api

import (
	"lapets-backend/lib/petstore"
	"lapets-backend/services/orchestrator"
	"time"
)

type photoView struct {
	Small  string `json:"small"`
	Medium string `json:"medium"`
	Large  string `json:"large"`
	Full   string `json:"full"`
}

type attributesView struct {
	SpayedNeutered   *bool `json:"spayedNeutered"`
	HouseTrained     *bool `json:"houseTrained"`
	SpecialNeeds     *bool `json:"specialNeeds"`
	ShotsCurrent     *bool `json:"shotsCurrent"`
	GoodWithChildren *bool `json:"goodWithChildren"`
	GoodWithDogs     *bool `json:"goodWithDogs"`
	GoodWithCats     *bool `json:"goodWithCats"`
}

type addressView struct {
	Street   string `json:"street"`
	City     string `json:"city"`
	State    string `json:"state"`
	Postcode string `json:"postcode"`
	Country  string `json:"country,omitempty"`
}

type petShelterView struct {
	ID      string      `json:"id"`
	Name    string      `json:"name"`
	Email   string      `json:"email"`
	Phone   string      `json:"phone"`
	Address addressView `json:"address"`
	Website string      `json:"website"`
}

type petView struct {
	ID             int64          `json:"id"`
	Name           string         `json:"name"`
	Species        string         `json:"species"`
	Breed          string         `json:"breed"`
	BreedSecondary string         `json:"breedSecondary,omitempty"`
	Age            string         `json:"age"`
	Gender         string         `json:"gender"`
	Size           string         `json:"size"`
	Description    string         `json:"description"`
	Color          string         `json:"color,omitempty"`
	Photos         []photoView    `json:"photos"`
	Attributes     attributesView `json:"attributes"`
	Shelter        petShelterView `json:"shelter"`
	DaysInShelter  int            `json:"daysInShelter"`
	AdoptionURL    string         `json:"adoptionUrl"`
	PublishedAt    time.Time      `json:"publishedAt"`
}

func newPetView(a petstore.Animal, now time.Time) petView {
	photos := make([]photoView, len(a.Photos))
	for i, p := range a.Photos {
		photos[i] = photoView{Small: p, Medium: p, Large: p, Full: p}
	}

	adoptionURL := a.AdoptionURL
	if adoptionURL == "" {
		adoptionURL = a.Shelter.AdoptionURL
	}
	if adoptionURL == "" {
		adoptionURL = a.Shelter.Website
	}

	published := a.FirstSeenAt
	if a.IntakeDate != nil && a.IntakeDate.Before(published) {
		published = *a.IntakeDate
	}

	return petView{
		ID:             a.ID,
		Name:           a.Name,
		Species:        string(a.Species),
		Breed:          a.Breed,
		BreedSecondary: a.BreedSecondary,
		Age:            string(a.Age),
		Gender:         string(a.Gender),
		Size:           string(a.Size),
		Description:    a.Description,
		Color:          a.Color,
		Photos:         photos,
		Attributes: attributesView{
			SpayedNeutered:   a.SpayedNeutered,
			HouseTrained:     a.HouseTrained,
			SpecialNeeds:     a.SpecialNeeds,
			ShotsCurrent:     a.ShotsCurrent,
			GoodWithChildren: a.GoodWithChildren,
			GoodWithDogs:     a.GoodWithDogs,
			GoodWithCats:     a.GoodWithCats,
		},
		Shelter: petShelterView{
			ID:    a.Shelter.Slug,
			Name:  a.Shelter.Name,
			Email: a.Shelter.Email,
			Phone: a.Shelter.Phone,
			Address: addressView{
				Street:   a.Shelter.Street,
				City:     a.Shelter.City,
				State:    a.Shelter.State,
				Postcode: a.Shelter.Postcode,
				Country:  "US",
			},
			Website: a.Shelter.Website,
		},
		DaysInShelter: int(now.Sub(published).Hours() / 24),
		AdoptionURL:   adoptionURL,
		PublishedAt:   published,
	}
}

type locationView struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type shelterView struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Slug        string        `json:"slug"`
	Website     string        `json:"website"`
	AdoptionURL string        `json:"adoptionUrl"`
	Phone       string        `json:"phone"`
	Email       string        `json:"email"`
	Address     addressView   `json:"address"`
	Location    *locationView `json:"location"`
	LastScraped *time.Time    `json:"lastScraped"`
	ActivePets  int           `json:"activePets"`
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func newShelterView(s petstore.ShelterSummary) shelterView {
	view := shelterView{
		ID:          s.Slug,
		Name:        s.Name,
		Slug:        s.Slug,
		Website:     s.Website,
		AdoptionURL: s.AdoptionURL,
		Phone:       s.Phone,
		Email:       s.Email,
		Address: addressView{
			Street:   s.Street,
			City:     s.City,
			State:    s.State,
			Postcode: s.Postcode,
		},
		LastScraped: optionalTime(s.LastScrapedAt),
		ActivePets:  s.ActiveAnimals,
	}
	if s.Latitude != 0 && s.Longitude != 0 {
		view.Location = &locationView{Lat: s.Latitude, Lng: s.Longitude}
	}
	return view
}

type runView struct {
	ID          string    `json:"id"`
	Source      string    `json:"source"`
	Status      string    `json:"status"`
	PetsFound   int       `json:"petsFound"`
	PetsAdded   int       `json:"petsAdded"`
	PetsUpdated int       `json:"petsUpdated"`
	PetsRemoved int       `json:"petsRemoved"`
	PetsFailed  int       `json:"petsFailed"`
	DurationMs  int64     `json:"duration"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

func newRunView(r petstore.RunLog) runView {
	status := "success"
	if !r.Success {
		status = "error"
	}
	return runView{
		ID:          r.ID,
		Source:      r.SourceKey,
		Status:      status,
		PetsFound:   r.Found,
		PetsAdded:   r.Added,
		PetsUpdated: r.Updated,
		PetsRemoved: r.Retired,
		PetsFailed:  r.Failed,
		DurationMs:  r.Duration.Milliseconds(),
		Error:       r.Error,
		CreatedAt:   r.StartedAt.Add(r.Duration),
	}
}

type scrapeResultView struct {
	Shelter    string `json:"shelter"`
	Source     string `json:"source"`
	Success    bool   `json:"success"`
	PetsFound  int    `json:"petsFound"`
	DurationMs int64  `json:"duration"`
	Error      string `json:"error,omitempty"`
}

type summaryView struct {
	TotalSources       int   `json:"totalSources"`
	SuccessfulSources  int   `json:"successfulSources"`
	TotalShelters      int   `json:"totalShelters"`
	SuccessfulShelters int   `json:"successfulShelters"`
	TotalPetsFound     int   `json:"totalPetsFound"`
	TotalDurationMs    int64 `json:"totalDuration"`
}

func newScrapeResultViews(summary orchestrator.Summary) []scrapeResultView {
	var out []scrapeResultView
	for _, source := range summary.Sources {
		for _, r := range source.Shelters {
			view := scrapeResultView{
				Shelter:    r.ShelterName,
				Source:     r.SourceKey,
				Success:    r.Success,
				PetsFound:  len(r.Animals),
				DurationMs: r.Duration.Milliseconds(),
			}
			if r.Err != nil {
				view.Error = r.Err.Error()
			}
			out = append(out, view)
		}
	}
	return out
}

func newSummaryView(summary orchestrator.Summary) summaryView {
	return summaryView{
		TotalSources:       summary.TotalSources,
		SuccessfulSources:  summary.SuccessfulSources,
		TotalShelters:      summary.TotalShelters,
		SuccessfulShelters: summary.SuccessfulShelters,
		TotalPetsFound:     summary.TotalAnimalsFound,
		TotalDurationMs:    summary.TotalDuration.Milliseconds(),
	}
}
