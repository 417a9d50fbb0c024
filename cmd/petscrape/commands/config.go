package commands

import (
	"errors"
	"lapets-backend/lib/browser"
	"lapets-backend/lib/configutil"
	"lapets-backend/lib/petstore"
	"lapets-backend/lib/restyutil"
	"lapets-backend/lib/scraper"
	"lapets-backend/services/alerts"
	"lapets-backend/services/orchestrator"
	"lapets-backend/services/reconcile"
	"lapets-backend/services/registry"
	"log/slog"
	"os"
	"time"
)

type ScrapeConfig struct {
	Parallelism           int  `json:"parallelism"`
	IntervalMinutes       int  `json:"interval_minutes"`
	RequestTimeoutSeconds int  `json:"request_timeout_seconds"`
	SkipDetails           bool `json:"skip_details"`
	// HttpDumpDir receives every http exchange when set, it may start
	// with <dev_state>.
	HttpDumpDir string            `json:"http_dump_dir"`
	BaseUrls    map[string]string `json:"base_urls"`
}

type ApiConfig struct {
	Port         int      `json:"port"`
	AllowOrigins []string `json:"allow_origins"`
	ApiKey       string   `json:"api_key"`
}

type Config struct {
	Database configutil.Database `json:"database"`
	Scrape   ScrapeConfig        `json:"scrape"`
	Api      ApiConfig           `json:"api"`
	Alerts   alerts.Options      `json:"alerts"`
}

var defaultConfig = Config{
	Database: configutil.Database{File: "<dev_state>/lapets.db"},
	Scrape: ScrapeConfig{
		Parallelism:           1,
		IntervalMinutes:       60,
		RequestTimeoutSeconds: 30,
	},
	Api: ApiConfig{Port: 8080},
}

// loadConfig reads the config file, a missing file means every default.
func loadConfig() (Config, error) {
	cfg, err := configutil.ReadConfig[Config](*configPath)
	if errors.Is(err, os.ErrNotExist) {
		slog.Info("no config file found, using defaults", "path", *configPath)
		err = nil
	}
	if err != nil {
		return Config{}, err
	}
	return configutil.WithDefaults(cfg, defaultConfig)
}

func (c ScrapeConfig) interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

func (c ScrapeConfig) registryOptions() (registry.Options, error) {
	client := scraper.ClientOptions{
		Timeout: time.Duration(c.RequestTimeoutSeconds) * time.Second,
	}
	if c.HttpDumpDir != "" {
		output, err := restyutil.NewFilesystemOutput(c.HttpDumpDir)
		if err != nil {
			return registry.Options{}, err
		}
		client.Output = output
	}
	return registry.Options{
		Client:      client,
		BaseUrls:    c.BaseUrls,
		Launcher:    browser.HTTPLauncher{Options: client},
		SkipDetails: c.SkipDetails,
	}, nil
}

type app struct {
	cfg          Config
	store        petstore.Store
	registry     *registry.Registry
	orchestrator *orchestrator.Orchestrator
	close        func() error
}

func openApp() (app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return app{}, err
	}

	db, err := cfg.Database.OpenDB(petstore.Schema)
	if err != nil {
		return app{}, err
	}
	store := petstore.NewStore(db)

	regOpts, err := cfg.Scrape.registryOptions()
	if err != nil {
		db.Close()
		return app{}, err
	}
	reg, err := registry.New(regOpts)
	if err != nil {
		db.Close()
		return app{}, err
	}

	opts := orchestrator.Options{Parallelism: cfg.Scrape.Parallelism}
	if cfg.Alerts.Enabled() {
		opts.Notifier = alerts.NewMailer(cfg.Alerts)
	}

	return app{
		cfg:          cfg,
		store:        store,
		registry:     reg,
		orchestrator: orchestrator.New(reg, store, reconcile.New(store), opts),
		close:        db.Close,
	}, nil
}
