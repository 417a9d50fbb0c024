package petstore

import (
	"context"
	"database/sql"
	"lapets-backend/lib/normalize"
	"lapets-backend/lib/scraper"
	"lapets-backend/lib/timezone"
	"strings"
	"time"
)

type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// Queries runs single statements against either the database or an
// open transaction.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

func flagValue(b *bool) any {
	if b == nil {
		return nil
	}
	if *b {
		return 1
	}
	return 0
}

func flagFrom(v sql.NullInt64) *bool {
	if !v.Valid {
		return nil
	}
	return normalize.Bool(v.Int64 != 0)
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

const getAnimalID = `SELECT id FROM animals WHERE source_key = ? AND external_id = ?`

func (q *Queries) GetAnimalID(ctx context.Context, sourceKey, externalID string) (int64, error) {
	var id int64
	err := q.db.QueryRowContext(ctx, getAnimalID, sourceKey, externalID).Scan(&id)
	return id, err
}

const upsertAnimal = `INSERT INTO animals (
    source_key, external_id, shelter_slug, name, species, breed,
    breed_secondary, age, gender, size, description, color, adoption_url,
    intake_date, spayed_neutered, house_trained, special_needs,
    shots_current, good_with_children, good_with_dogs, good_with_cats,
    is_available, first_seen_at, last_seen_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
ON CONFLICT(source_key, external_id) DO UPDATE SET
    shelter_slug = excluded.shelter_slug,
    name = excluded.name,
    species = excluded.species,
    breed = excluded.breed,
    breed_secondary = excluded.breed_secondary,
    age = excluded.age,
    gender = excluded.gender,
    size = excluded.size,
    description = excluded.description,
    color = excluded.color,
    adoption_url = excluded.adoption_url,
    intake_date = excluded.intake_date,
    spayed_neutered = excluded.spayed_neutered,
    house_trained = excluded.house_trained,
    special_needs = excluded.special_needs,
    shots_current = excluded.shots_current,
    good_with_children = excluded.good_with_children,
    good_with_dogs = excluded.good_with_dogs,
    good_with_cats = excluded.good_with_cats,
    is_available = 1,
    last_seen_at = excluded.last_seen_at
RETURNING id`

func (q *Queries) UpsertAnimal(ctx context.Context, sourceKey string, a scraper.ScrapedAnimal, seenAt time.Time) (int64, error) {
	var intake any
	if a.IntakeDate != nil {
		intake = a.IntakeDate.UnixMilli()
	}
	var id int64
	err := q.db.QueryRowContext(
		ctx, upsertAnimal,
		sourceKey, a.ExternalID, a.ShelterSlug, a.Name, string(a.Species), a.Breed,
		a.BreedSecondary, string(a.Age), string(a.Gender), string(a.Size), a.Description, a.Color, a.AdoptionURL,
		intake, flagValue(a.SpayedNeutered), flagValue(a.HouseTrained), flagValue(a.SpecialNeeds),
		flagValue(a.ShotsCurrent), flagValue(a.GoodWithChildren), flagValue(a.GoodWithDogs), flagValue(a.GoodWithCats),
		seenAt.UnixMilli(), seenAt.UnixMilli(),
	).Scan(&id)
	return id, err
}

const deletePhotos = `DELETE FROM animal_photos WHERE animal_id = ?`

func (q *Queries) DeletePhotos(ctx context.Context, animalID int64) error {
	_, err := q.db.ExecContext(ctx, deletePhotos, animalID)
	return err
}

const insertPhoto = `INSERT INTO animal_photos (animal_id, url, is_primary, sort_order) VALUES (?, ?, ?, ?)`

func (q *Queries) InsertPhoto(ctx context.Context, animalID int64, url string, sortOrder int) error {
	_, err := q.db.ExecContext(ctx, insertPhoto, animalID, url, boolInt(sortOrder == 0), sortOrder)
	return err
}

const listAnimalKeys = `SELECT id, external_id, shelter_slug, name, breed, species, is_available
FROM animals WHERE source_key = ? ORDER BY id`

func (q *Queries) ListAnimalKeys(ctx context.Context, sourceKey string) ([]AnimalKey, error) {
	rows, err := q.db.QueryContext(ctx, listAnimalKeys, sourceKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AnimalKey
	for rows.Next() {
		var k AnimalKey
		var species string
		err = rows.Scan(&k.ID, &k.ExternalID, &k.ShelterSlug, &k.Name, &k.Breed, &species, &k.IsAvailable)
		if err != nil {
			return nil, err
		}
		k.Species = normalize.Species(species)
		out = append(out, k)
	}
	return out, rows.Err()
}

const setAvailable = `UPDATE animals SET is_available = ? WHERE id = ?`

func (q *Queries) SetAvailable(ctx context.Context, id int64, available bool) error {
	_, err := q.db.ExecContext(ctx, setAvailable, boolInt(available), id)
	return err
}

const insertRunLog = `INSERT INTO scrape_runs (
    id, source_key, started_at, duration_ms, success,
    found, added, updated, retired, failed, error
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) InsertRunLog(ctx context.Context, log RunLog) error {
	_, err := q.db.ExecContext(
		ctx, insertRunLog,
		log.ID, log.SourceKey, millis(log.StartedAt), log.Duration.Milliseconds(), boolInt(log.Success),
		log.Found, log.Added, log.Updated, log.Retired, log.Failed, log.Error,
	)
	return err
}

const recentRuns = `SELECT id, source_key, started_at, duration_ms, success,
    found, added, updated, retired, failed, error
FROM scrape_runs ORDER BY started_at DESC, rowid DESC LIMIT ?`

func (q *Queries) RecentRuns(ctx context.Context, limit int) ([]RunLog, error) {
	rows, err := q.db.QueryContext(ctx, recentRuns, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunLog
	for rows.Next() {
		var log RunLog
		var startedAt, durationMs int64
		err = rows.Scan(
			&log.ID, &log.SourceKey, &startedAt, &durationMs, &log.Success,
			&log.Found, &log.Added, &log.Updated, &log.Retired, &log.Failed, &log.Error,
		)
		if err != nil {
			return nil, err
		}
		log.StartedAt = timezone.FromUnixMilli(startedAt)
		log.Duration = time.Duration(durationMs) * time.Millisecond
		out = append(out, log)
	}
	return out, rows.Err()
}

const lastSuccessfulRun = `SELECT started_at + duration_ms FROM scrape_runs
WHERE success = 1 ORDER BY started_at DESC LIMIT 1`

func (q *Queries) LastSuccessfulRun(ctx context.Context) (time.Time, error) {
	var finished int64
	err := q.db.QueryRowContext(ctx, lastSuccessfulRun).Scan(&finished)
	if err != nil {
		return time.Time{}, err
	}
	return timezone.FromUnixMilli(finished), nil
}

const countAvailable = `SELECT COUNT(*) FROM animals WHERE is_available = 1`

func (q *Queries) CountAvailable(ctx context.Context) (int, error) {
	var count int
	err := q.db.QueryRowContext(ctx, countAvailable).Scan(&count)
	return count, err
}

const upsertShelter = `INSERT INTO shelters (
    slug, name, source_key, platform, website, adoption_url, email, phone,
    street, city, state, postcode, latitude, longitude
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(slug) DO UPDATE SET
    name = excluded.name,
    source_key = excluded.source_key,
    platform = excluded.platform,
    website = excluded.website,
    adoption_url = excluded.adoption_url,
    email = excluded.email,
    phone = excluded.phone,
    street = excluded.street,
    city = excluded.city,
    state = excluded.state,
    postcode = excluded.postcode,
    latitude = excluded.latitude,
    longitude = excluded.longitude,
    is_active = 1`

func (q *Queries) UpsertShelter(ctx context.Context, s Shelter) error {
	state := s.State
	if state == "" {
		state = "CA"
	}
	_, err := q.db.ExecContext(
		ctx, upsertShelter,
		s.Slug, s.Name, s.SourceKey, s.Platform, s.Website, s.AdoptionURL, s.Email, s.Phone,
		s.Street, s.City, state, s.Postcode, s.Latitude, s.Longitude,
	)
	return err
}

const shelterSlugsBySource = `SELECT slug FROM shelters WHERE source_key = ? ORDER BY slug`

func (q *Queries) ShelterSlugsBySource(ctx context.Context, sourceKey string) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, shelterSlugsBySource, sourceKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var slug string
		err = rows.Scan(&slug)
		if err != nil {
			return nil, err
		}
		out = append(out, slug)
	}
	return out, rows.Err()
}

const touchShelter = `UPDATE shelters SET last_scraped_at = ? WHERE slug = ?`

func (q *Queries) TouchShelter(ctx context.Context, slug string, at time.Time) error {
	_, err := q.db.ExecContext(ctx, touchShelter, millis(at), slug)
	return err
}

const shelterColumns = `s.slug, s.name, s.source_key, s.platform, s.website, s.adoption_url,
    s.email, s.phone, s.street, s.city, s.state, s.postcode, s.latitude,
    s.longitude, s.last_scraped_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanShelter(row scanner, extra ...any) (Shelter, error) {
	var s Shelter
	var lastScraped int64
	dest := []any{
		&s.Slug, &s.Name, &s.SourceKey, &s.Platform, &s.Website, &s.AdoptionURL,
		&s.Email, &s.Phone, &s.Street, &s.City, &s.State, &s.Postcode, &s.Latitude,
		&s.Longitude, &lastScraped,
	}
	err := row.Scan(append(dest, extra...)...)
	if err != nil {
		return Shelter{}, err
	}
	s.LastScrapedAt = timezone.FromUnixMilli(lastScraped)
	return s, nil
}

const listShelters = `SELECT ` + shelterColumns + `,
    (SELECT COUNT(*) FROM animals a WHERE a.shelter_slug = s.slug AND a.is_available = 1)
FROM shelters s WHERE s.is_active = 1 ORDER BY s.name`

func (q *Queries) ListShelters(ctx context.Context) ([]ShelterSummary, error) {
	rows, err := q.db.QueryContext(ctx, listShelters)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ShelterSummary
	for rows.Next() {
		var active int
		s, err := scanShelter(rows, &active)
		if err != nil {
			return nil, err
		}
		out = append(out, ShelterSummary{Shelter: s, ActiveAnimals: active})
	}
	return out, rows.Err()
}

const getShelter = `SELECT ` + shelterColumns + ` FROM shelters s WHERE s.slug = ?`

func (q *Queries) GetShelter(ctx context.Context, slug string) (Shelter, error) {
	return scanShelter(q.db.QueryRowContext(ctx, getShelter, slug))
}

const listBreeds = `SELECT DISTINCT breed FROM animals
WHERE species = ? AND is_available = 1 AND breed NOT IN ('', 'Unknown', 'Mixed Breed')
ORDER BY breed`

// ListBreeds lists the distinct specific breeds of available animals of a
// species, an empty species lists nothing.
func (q *Queries) ListBreeds(ctx context.Context, species normalize.Species) ([]string, error) {
	if species == "" {
		return nil, nil
	}
	rows, err := q.db.QueryContext(ctx, listBreeds, string(species))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var breed string
		err = rows.Scan(&breed)
		if err != nil {
			return nil, err
		}
		out = append(out, breed)
	}
	return out, rows.Err()
}

const animalColumns = `a.id, a.source_key, a.external_id, a.shelter_slug, a.name, a.species,
    a.breed, a.breed_secondary, a.age, a.gender, a.size, a.description,
    a.color, a.adoption_url, a.intake_date, a.spayed_neutered,
    a.house_trained, a.special_needs, a.shots_current, a.good_with_children,
    a.good_with_dogs, a.good_with_cats, a.is_available, a.first_seen_at,
    a.last_seen_at`

func scanAnimal(row scanner, extra ...any) (Animal, error) {
	var a Animal
	var species, age, gender, size string
	var intake sql.NullInt64
	var spayed, house, special, shots, children, dogs, cats sql.NullInt64
	var firstSeen, lastSeen int64
	dest := []any{
		&a.ID, &a.SourceKey, &a.ExternalID, &a.ShelterSlug, &a.Name, &species,
		&a.Breed, &a.BreedSecondary, &age, &gender, &size, &a.Description,
		&a.Color, &a.AdoptionURL, &intake, &spayed,
		&house, &special, &shots, &children,
		&dogs, &cats, &a.IsAvailable, &firstSeen,
		&lastSeen,
	}
	err := row.Scan(append(dest, extra...)...)
	if err != nil {
		return Animal{}, err
	}

	a.Species = normalize.Species(species)
	a.Age = normalize.Age(age)
	a.Gender = normalize.Gender(gender)
	a.Size = normalize.Size(size)
	if intake.Valid {
		t := timezone.FromUnixMilli(intake.Int64)
		a.IntakeDate = &t
	}
	a.SpayedNeutered = flagFrom(spayed)
	a.HouseTrained = flagFrom(house)
	a.SpecialNeeds = flagFrom(special)
	a.ShotsCurrent = flagFrom(shots)
	a.GoodWithChildren = flagFrom(children)
	a.GoodWithDogs = flagFrom(dogs)
	a.GoodWithCats = flagFrom(cats)
	a.FirstSeenAt = timezone.FromUnixMilli(firstSeen)
	a.LastSeenAt = timezone.FromUnixMilli(lastSeen)
	return a, nil
}

const getAnimal = `SELECT ` + animalColumns + ` FROM animals a WHERE a.source_key = ? AND a.external_id = ?`

func (q *Queries) GetAnimal(ctx context.Context, sourceKey, externalID string) (Animal, error) {
	a, err := scanAnimal(q.db.QueryRowContext(ctx, getAnimal, sourceKey, externalID))
	if err != nil {
		return Animal{}, err
	}
	photos, err := q.ListPhotos(ctx, []int64{a.ID})
	if err != nil {
		return Animal{}, err
	}
	a.setPhotos(photos[a.ID])
	return a, nil
}

// ListPhotos returns the photos of each animal, the primary photo first
// and the rest in listing order.
func (q *Queries) ListPhotos(ctx context.Context, animalIDs []int64) (map[int64][]Photo, error) {
	out := map[int64][]Photo{}
	if len(animalIDs) == 0 {
		return out, nil
	}

	args := make([]any, len(animalIDs))
	for i, id := range animalIDs {
		args[i] = id
	}
	query := `SELECT animal_id, url, is_primary FROM animal_photos WHERE animal_id IN (` +
		strings.TrimSuffix(strings.Repeat("?, ", len(animalIDs)), ", ") +
		`) ORDER BY animal_id, is_primary DESC, sort_order`

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var url string
		var primary int
		err = rows.Scan(&id, &url, &primary)
		if err != nil {
			return nil, err
		}
		out[id] = append(out[id], Photo{URL: url, IsPrimary: primary != 0})
	}
	return out, rows.Err()
}
