package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsinsight/reportcore/pkg/retrieval"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)

	d := Default()
	assert.Equal(t, d.Database, cfg.Database)
	assert.Equal(t, d.Jobs, cfg.Jobs)
	assert.Equal(t, d.Retrieval, cfg.Retrieval)
	assert.Equal(t, d.HTTP.Addr, cfg.HTTP.Addr)
	assert.Equal(t, d.HTTP.ShutdownTimeout, cfg.HTTP.ShutdownTimeout)
	assert.Empty(t, cfg.HTTP.AllowedOrigins)
	assert.Equal(t, d.Audit, cfg.Audit)
}

func TestLoadFileEnvAndFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reportd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  driver: postgres
  dsn: host=db user=reportcore dbname=reportcore
jobs:
  concurrency: 8
  poll_interval: 2s
retrieval:
  mode: keyword
http:
  allowed_origins: ["https://ops.example.com"]
`), 0o600))

	t.Setenv("REPORTCORE_JOBS_RETENTION_DAYS", "30")
	t.Setenv("REPORTCORE_HTTP_ADDR", ":9000")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.Int("concurrency", 3, "")
	fs.String("listen", ":8080", "")
	require.NoError(t, fs.Parse([]string{"--concurrency=12"}))

	cfg, err := Load(path, fs)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 12, cfg.Jobs.Concurrency)
	assert.Equal(t, 2*time.Second, cfg.Jobs.PollInterval)
	assert.Equal(t, 30, cfg.Jobs.RetentionDays)
	assert.Equal(t, retrieval.ModeKeyword, cfg.Retrieval.Mode)
	assert.Equal(t, "hash", cfg.Retrieval.Embedder)
	assert.Equal(t, []string{"https://ops.example.com"}, cfg.HTTP.AllowedOrigins)
	// The listen flag was not set, so the environment wins.
	assert.Equal(t, ":9000", cfg.HTTP.Addr)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	require.Error(t, err)
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("REPORTCORE_RETRIEVAL_EMBEDDER", "genai")
	t.Setenv("REPORTCORE_JOBS_CONCURRENCY", "0")

	_, err := Load("", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retrieval.api_key is required")
	assert.Contains(t, err.Error(), "jobs.concurrency must be at least 1")
}

func TestValidateRetrievalMode(t *testing.T) {
	cfg := Default()
	cfg.Retrieval.Mode = "fuzzy"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `retrieval.mode "fuzzy"`)
}
