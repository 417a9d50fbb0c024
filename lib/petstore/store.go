package petstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"lapets-backend/lib/scraper"
	"lapets-backend/lib/timezone"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("lapets/lib/petstore")

// MakeTx opens a transaction, exactly one of discard or commit must be
// called on the returned functions.
type MakeTx = func(ctx context.Context) (tx *Queries, discard, commit func() error, err error)

func NewMakeTx(db *sql.DB) MakeTx {
	return func(ctx context.Context) (tx *Queries, discard, commit func() error, err error) {
		sqltx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return nil, nil, nil, err
		}
		return New(db).WithTx(sqltx),
			func() error {
				return sqltx.Rollback()
			},
			func() error {
				return sqltx.Commit()
			},
			nil
	}
}

// Store is the record store for animals, shelters and scrape runs.
type Store struct {
	*Queries
	makeTx MakeTx
}

func NewStore(db *sql.DB) Store {
	return Store{
		Queries: New(db),
		makeTx:  NewMakeTx(db),
	}
}

// SaveAnimal upserts one animal by (sourceKey, ExternalID) and replaces its
// photos in the same transaction. created reports whether the animal was
// seen for the first time.
func (s Store) SaveAnimal(ctx context.Context, sourceKey string, animal scraper.ScrapedAnimal, seenAt time.Time) (id int64, created bool, err error) {
	ctx, span := tracer.Start(ctx, "SaveAnimal")
	defer span.End()
	span.SetAttributes(
		attribute.String("source_key", sourceKey),
		attribute.String("external_id", animal.ExternalID),
	)

	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to save animal")
		}
	}()

	if animal.ExternalID == "" {
		return 0, false, fmt.Errorf("save animal: empty external id")
	}

	tx, discard, commit, err := s.makeTx(ctx)
	if err != nil {
		return 0, false, err
	}
	defer discard()

	_, err = tx.GetAnimalID(ctx, sourceKey, animal.ExternalID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		created = true
	case err != nil:
		return 0, false, err
	}

	id, err = tx.UpsertAnimal(ctx, sourceKey, animal, seenAt)
	if err != nil {
		return 0, false, fmt.Errorf("upsert %s: %w", animal.ExternalID, err)
	}

	err = tx.DeletePhotos(ctx, id)
	if err != nil {
		return 0, false, err
	}
	for i, url := range animal.Photos {
		err = tx.InsertPhoto(ctx, id, url, i)
		if err != nil {
			return 0, false, err
		}
	}

	err = commit()
	if err != nil {
		return 0, false, err
	}
	return id, created, nil
}

// AppendRunLog writes one run log.
func (s Store) AppendRunLog(ctx context.Context, log RunLog) error {
	return s.InsertRunLog(ctx, log)
}

// TouchShelters marks the given shelters as scraped at `at`.
func (s Store) TouchShelters(ctx context.Context, slugs []string, at time.Time) error {
	if len(slugs) == 0 {
		return nil
	}
	tx, discard, commit, err := s.makeTx(ctx)
	if err != nil {
		return err
	}
	defer discard()

	for _, slug := range slugs {
		err = tx.TouchShelter(ctx, slug, at)
		if err != nil {
			return err
		}
	}
	return commit()
}

func clampPage(filter Filter) (page, limit int) {
	page = filter.Page
	if page < 1 {
		page = 1
	}
	limit = filter.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return page, limit
}

func whereClause(filter Filter) (string, []any) {
	conds := []string{"a.is_available = 1"}
	var args []any
	add := func(cond string, arg any) {
		conds = append(conds, cond)
		args = append(args, arg)
	}

	if filter.Species != "" {
		add("a.species = ?", string(filter.Species))
	}
	if filter.Breed != "" {
		add("a.breed LIKE ?", "%"+filter.Breed+"%")
	}
	if filter.Age != "" {
		add("a.age = ?", string(filter.Age))
	}
	if filter.Size != "" {
		add("a.size = ?", string(filter.Size))
	}
	if filter.Gender != "" {
		add("a.gender = ?", string(filter.Gender))
	}
	if filter.Shelter != "" {
		add("a.shelter_slug = ?", filter.Shelter)
	}
	if filter.GoodWithChildren {
		conds = append(conds, "a.good_with_children = 1")
	}
	if filter.GoodWithDogs {
		conds = append(conds, "a.good_with_dogs = 1")
	}
	if filter.GoodWithCats {
		conds = append(conds, "a.good_with_cats = 1")
	}
	return strings.Join(conds, " AND "), args
}

// SearchAnimals lists available animals matching filter, newest first.
func (s Store) SearchAnimals(ctx context.Context, filter Filter) (Page, error) {
	ctx, span := tracer.Start(ctx, "SearchAnimals")
	defer span.End()

	page, limit := clampPage(filter)
	where, args := whereClause(filter)

	var total int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM animals a WHERE `+where, args...).Scan(&total)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to count animals")
		return Page{}, err
	}

	query := `SELECT ` + animalColumns + `, ` + shelterColumns + `
FROM animals a JOIN shelters s ON s.slug = a.shelter_slug
WHERE ` + where + `
ORDER BY a.first_seen_at DESC, a.id DESC LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, query, append(args, limit, (page-1)*limit)...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to query animals")
		return Page{}, err
	}
	defer rows.Close()

	var animals []Animal
	var ids []int64
	for rows.Next() {
		var shelter Shelter
		var lastScraped int64
		a, err := scanAnimal(
			rows,
			&shelter.Slug, &shelter.Name, &shelter.SourceKey, &shelter.Platform,
			&shelter.Website, &shelter.AdoptionURL, &shelter.Email, &shelter.Phone,
			&shelter.Street, &shelter.City, &shelter.State, &shelter.Postcode,
			&shelter.Latitude, &shelter.Longitude, &lastScraped,
		)
		if err != nil {
			return Page{}, err
		}
		shelter.LastScrapedAt = timezone.FromUnixMilli(lastScraped)
		a.Shelter = shelter
		animals = append(animals, a)
		ids = append(ids, a.ID)
	}
	err = rows.Err()
	if err != nil {
		return Page{}, err
	}
	rows.Close()

	photos, err := s.ListPhotos(ctx, ids)
	if err != nil {
		return Page{}, err
	}
	for i := range animals {
		animals[i].setPhotos(photos[animals[i].ID])
	}

	return Page{
		Animals:    animals,
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: (total + limit - 1) / limit,
	}, nil
}

// Status reports catalog freshness as of now.
func (s Store) Status(ctx context.Context, now time.Time) (Status, error) {
	count, err := s.CountAvailable(ctx)
	if err != nil {
		return Status{}, err
	}
	lastSuccess, err := s.LastSuccessfulRun(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Status{}, err
	}

	stale := lastSuccess.IsZero() || now.Sub(lastSuccess) > StaleAfter
	incomplete := count < IncompleteBelow
	return Status{
		AvailableAnimals: count,
		LastSuccessAt:    lastSuccess,
		IsStale:          stale,
		IsIncomplete:     incomplete,
		NeedsScrape:      count == 0 || stale || incomplete,
	}, nil
}
