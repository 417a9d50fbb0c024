// Package api serves the stored catalog and the manual scrape trigger over
// HTTP.
package api

import (
	"context"
	"lapets-backend/lib/normalize"
	"lapets-backend/lib/petstore"
	"lapets-backend/lib/timezone"
	"lapets-backend/services/orchestrator"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("lapets/services/api")

const recentRunsLimit = 20

// Catalog is the read side of the pet store.
type Catalog interface {
	SearchAnimals(ctx context.Context, filter petstore.Filter) (petstore.Page, error)
	ListBreeds(ctx context.Context, species normalize.Species) ([]string, error)
	ListShelters(ctx context.Context) ([]petstore.ShelterSummary, error)
	Status(ctx context.Context, now time.Time) (petstore.Status, error)
	RecentRuns(ctx context.Context, limit int) ([]petstore.RunLog, error)
}

// Runner triggers scrapes, it is implemented by *orchestrator.Orchestrator.
type Runner interface {
	RunAll(ctx context.Context) orchestrator.Summary
	RunOne(ctx context.Context, sourceKey string) (orchestrator.Summary, error)
	RunShelter(ctx context.Context, slug string) (orchestrator.Summary, error)
}

type Options struct {
	// ApiKey guards POST /api/scrape when set.
	ApiKey       string
	AllowOrigins []string
}

type Server struct {
	catalog Catalog
	runner  Runner
	opts    Options
	now     func() time.Time

	// scraping is held while a manually triggered scrape runs.
	scraping sync.Mutex
}

func NewServer(catalog Catalog, runner Runner, opts Options) *Server {
	return &Server{
		catalog: catalog,
		runner:  runner,
		opts:    opts,
		now:     timezone.Now,
	}
}

func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())

	config := cors.DefaultConfig()
	if len(s.opts.AllowOrigins) > 0 {
		config.AllowOrigins = s.opts.AllowOrigins
	} else {
		config.AllowAllOrigins = true
	}
	config.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", apiKeyHeader}
	config.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	r.Use(cors.New(config))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "lapets"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		api.GET("/pets", s.listPets)
		api.GET("/breeds", s.listBreeds)
		api.GET("/shelters", s.listShelters)
		api.GET("/scrape-status", s.scrapeStatus)
		api.GET("/scrape", s.scrapeOverview)
		api.POST("/scrape", s.requireApiKey, s.triggerScrape)
	}
	return r
}
