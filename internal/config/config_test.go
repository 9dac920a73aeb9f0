package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("POSTGRES_HOST", "db")
	t.Setenv("APIFY_POLL_INTERVAL", "")
	t.Setenv("GCS_BUCKET", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "db", cfg.Postgres.Host)
	assert.Equal(t, 100, cfg.Apify.BatchSize)
	assert.Equal(t, 5*time.Second, cfg.Apify.PollInterval)
	assert.Equal(t, "ssOXktOBaQQiYfhc4", cfg.Apify.ActorID)
	assert.False(t, cfg.Storage.Enabled())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APIFY_POLL_INTERVAL", "2")
	t.Setenv("APIFY_BATCH_SIZE", "50")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("SCRAPE_EXPLORE_LINK_PAGE", "true")
	t.Setenv("GCS_BUCKET", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, cfg.Apify.PollInterval)
	assert.Equal(t, 50, cfg.Apify.BatchSize)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.True(t, cfg.Scrape.ExploreLinkPage)
}

func TestValidateRejectsOversizedBatch(t *testing.T) {
	cfg := &Config{
		Server:   ServerConfig{Addr: ":8080"},
		Postgres: PostgresConfig{Host: "db", Database: "outreach"},
		Apify:    ApifyConfig{BatchSize: 150, PollInterval: time.Second},
		Scrape:   ScrapeConfig{MaxVideoCount: 10},
	}
	assert.ErrorContains(t, cfg.Validate(), "APIFY_BATCH_SIZE")
}

func TestValidateStorageNeedsCredentials(t *testing.T) {
	cfg := &Config{
		Server:   ServerConfig{Addr: ":8080"},
		Postgres: PostgresConfig{Host: "db", Database: "outreach"},
		Apify:    ApifyConfig{BatchSize: 100, PollInterval: time.Second},
		Scrape:   ScrapeConfig{MaxVideoCount: 10},
		Storage:  StorageConfig{Bucket: "media"},
	}
	assert.ErrorContains(t, cfg.Validate(), "GCS_CREDENTIALS")
}

func TestPostgresDSN(t *testing.T) {
	p := PostgresConfig{Host: "h", Port: 5432, User: "u", Password: "p", Database: "d", SSLMode: "disable"}
	assert.Equal(t, "host=h port=5432 user=u password=p dbname=d sslmode=disable", p.DSN())
}
