package api

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"lapets-backend/lib/normalize"
	"lapets-backend/lib/petstore"
	"lapets-backend/services/orchestrator"
	"lapets-backend/services/registry"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const apiKeyHeader = "x-api-key"

func internalError(c *gin.Context, message string, err error) {
	slog.ErrorContext(c.Request.Context(), message, "err", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": message})
}

func badRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": message})
}

// parseEnum matches raw case insensitively against values.
func parseEnum[T ~string](raw string, values ...T) (T, bool) {
	var zero T
	if raw == "" {
		return zero, true
	}
	for _, v := range values {
		if strings.EqualFold(raw, string(v)) {
			return v, true
		}
	}
	return zero, false
}

func parseFilter(c *gin.Context) (petstore.Filter, error) {
	var filter petstore.Filter
	var ok bool

	filter.Species, ok = parseEnum(c.Query("species"),
		normalize.Dog, normalize.Cat, normalize.Rabbit, normalize.Bird, normalize.Other)
	if !ok {
		return filter, fmt.Errorf("invalid species %q", c.Query("species"))
	}
	filter.Age, ok = parseEnum(c.Query("age"),
		normalize.Baby, normalize.Young, normalize.Adult, normalize.Senior)
	if !ok {
		return filter, fmt.Errorf("invalid age %q", c.Query("age"))
	}
	filter.Size, ok = parseEnum(c.Query("size"),
		normalize.Small, normalize.Medium, normalize.Large, normalize.ExtraLarge)
	if !ok {
		return filter, fmt.Errorf("invalid size %q", c.Query("size"))
	}
	filter.Gender, ok = parseEnum(c.Query("gender"),
		normalize.Male, normalize.Female, normalize.UnknownGender)
	if !ok {
		return filter, fmt.Errorf("invalid gender %q", c.Query("gender"))
	}

	filter.Breed = strings.TrimSpace(c.Query("breed"))
	filter.Shelter = c.Query("shelter")

	for name, dst := range map[string]*bool{
		"goodWithChildren": &filter.GoodWithChildren,
		"goodWithDogs":     &filter.GoodWithDogs,
		"goodWithCats":     &filter.GoodWithCats,
	} {
		raw := c.Query(name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, fmt.Errorf("invalid %s %q", name, raw)
		}
		*dst = v
	}

	// malformed paging falls back to the defaults
	filter.Page, _ = strconv.Atoi(c.Query("page"))
	filter.Limit, _ = strconv.Atoi(c.Query("limit"))
	return filter, nil
}

func (s *Server) listPets(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "listPets")
	defer span.End()

	filter, err := parseFilter(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	page, err := s.catalog.SearchAnimals(ctx, filter)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to search animals")
		internalError(c, "failed to fetch pets", err)
		return
	}

	now := s.now()
	pets := make([]petView, len(page.Animals))
	for i, a := range page.Animals {
		pets[i] = newPetView(a, now)
	}
	c.JSON(http.StatusOK, gin.H{
		"pets": pets,
		"pagination": gin.H{
			"currentPage": page.Page,
			"totalPages":  page.TotalPages,
			"totalCount":  page.Total,
			"limit":       page.Limit,
		},
	})
}

func (s *Server) listBreeds(c *gin.Context) {
	species, ok := parseEnum(c.Query("species"),
		normalize.Dog, normalize.Cat, normalize.Rabbit, normalize.Bird, normalize.Other)
	if !ok {
		badRequest(c, fmt.Sprintf("invalid species %q", c.Query("species")))
		return
	}

	breeds, err := s.catalog.ListBreeds(c.Request.Context(), species)
	if err != nil {
		internalError(c, "failed to fetch breeds", err)
		return
	}
	if breeds == nil {
		breeds = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"breeds": breeds})
}

func (s *Server) listShelters(c *gin.Context) {
	shelters, err := s.catalog.ListShelters(c.Request.Context())
	if err != nil {
		internalError(c, "failed to fetch shelters", err)
		return
	}
	out := make([]shelterView, len(shelters))
	for i, sh := range shelters {
		out[i] = newShelterView(sh)
	}
	c.JSON(http.StatusOK, gin.H{"shelters": out})
}

func (s *Server) scrapeStatus(c *gin.Context) {
	status, err := s.catalog.Status(c.Request.Context(), s.now())
	if err != nil {
		internalError(c, "failed to check scrape status", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"petCount":      status.AvailableAnimals,
		"lastScrapedAt": optionalTime(status.LastSuccessAt),
		"needsScrape":   status.NeedsScrape,
		"isStale":       status.IsStale,
		"isIncomplete":  status.IsIncomplete,
	})
}

func (s *Server) scrapeOverview(c *gin.Context) {
	ctx := c.Request.Context()

	runs, err := s.catalog.RecentRuns(ctx, recentRunsLimit)
	if err != nil {
		internalError(c, "failed to fetch scrape logs", err)
		return
	}
	shelters, err := s.catalog.ListShelters(ctx)
	if err != nil {
		internalError(c, "failed to fetch shelters", err)
		return
	}

	logs := make([]runView, len(runs))
	for i, r := range runs {
		logs[i] = newRunView(r)
	}
	type shelterStatus struct {
		Name        string `json:"name"`
		Slug        string `json:"slug"`
		LastScraped any    `json:"lastScraped"`
		ActivePets  int    `json:"activePets"`
	}
	statuses := make([]shelterStatus, len(shelters))
	for i, sh := range shelters {
		statuses[i] = shelterStatus{
			Name:        sh.Name,
			Slug:        sh.Slug,
			LastScraped: optionalTime(sh.LastScrapedAt),
			ActivePets:  sh.ActiveAnimals,
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"shelters":   statuses,
		"recentLogs": logs,
	})
}

func (s *Server) requireApiKey(c *gin.Context) {
	if s.opts.ApiKey == "" {
		return
	}
	key := c.GetHeader(apiKeyHeader)
	if key == "" {
		key = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	}
	if subtle.ConstantTimeCompare([]byte(key), []byte(s.opts.ApiKey)) != 1 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	}
}

type scrapeRequest struct {
	// Scraper is the name older clients send, Source takes precedence.
	Scraper string `json:"scraper"`
	Source  string `json:"source"`
	Shelter string `json:"shelter"`
}

func (s *Server) triggerScrape(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "triggerScrape")
	defer span.End()

	var req scrapeRequest
	err := c.ShouldBindJSON(&req)
	if err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, "invalid request body")
		return
	}
	source := req.Source
	if source == "" {
		source = req.Scraper
	}
	span.SetAttributes(
		attribute.String("source", source),
		attribute.String("shelter", req.Shelter),
	)

	if !s.scraping.TryLock() {
		c.JSON(http.StatusConflict, gin.H{"error": "a scrape is already running"})
		return
	}
	defer s.scraping.Unlock()

	var summary orchestrator.Summary
	switch {
	case req.Shelter != "":
		summary, err = s.runner.RunShelter(ctx, req.Shelter)
	case source != "":
		summary, err = s.runner.RunOne(ctx, source)
	default:
		summary = s.runner.RunAll(ctx)
	}
	if errors.Is(err, registry.ErrUnknownSource) || errors.Is(err, orchestrator.ErrUnknownShelter) {
		badRequest(c, err.Error())
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "scrape failed")
		internalError(c, "scrape failed", err)
		return
	}

	results := newScrapeResultViews(summary)
	if results == nil {
		results = []scrapeResultView{}
	}
	c.JSON(http.StatusOK, gin.H{
		"success": len(summary.Failed()) == 0,
		"summary": newSummaryView(summary),
		"results": results,
	})
}
