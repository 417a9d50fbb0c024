package commands

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json5")
	previous := *configPath
	*configPath = path
	t.Cleanup(func() { *configPath = previous })

	cfg, err := loadConfig()
	require.NoError(t, err)
	require.Equal(t, defaultConfig, cfg)

	err = os.WriteFile(path, []byte(`{
		database: { file: "pets.db" },
		scrape: { parallelism: 3, skip_details: true },
		api: { api_key: "secret" },
		alerts: {
			smtp: { server: "smtp.example.org", port: 587 },
			recipients: ["ops@example.org"],
		},
	}`), 0600)
	require.NoError(t, err)

	cfg, err = loadConfig()
	require.NoError(t, err)
	require.Equal(t, "pets.db", cfg.Database.File)
	require.Equal(t, 3, cfg.Scrape.Parallelism)
	require.True(t, cfg.Scrape.SkipDetails)
	require.Equal(t, time.Hour, cfg.Scrape.interval())
	require.Equal(t, 8080, cfg.Api.Port)
	require.Equal(t, "secret", cfg.Api.ApiKey)
	require.True(t, cfg.Alerts.Enabled())
}

func TestRegistryOptions(t *testing.T) {
	opts, err := ScrapeConfig{RequestTimeoutSeconds: 5, SkipDetails: true}.registryOptions()
	require.NoError(t, err)
	require.Equal(t, 5*time.Second, opts.Client.Timeout)
	require.Nil(t, opts.Client.Output)
	require.True(t, opts.SkipDetails)
	require.NotNil(t, opts.Launcher)

	opts, err = ScrapeConfig{HttpDumpDir: filepath.Join(t.TempDir(), "http")}.registryOptions()
	require.NoError(t, err)
	require.NotNil(t, opts.Client.Output)
}
