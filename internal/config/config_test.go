package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithEnvCredentials(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("GCP_PROJECT_ID", "test-project")

	cfg, err := LoadYAML(filepath.Join(t.TempDir(), "missing.yaml"))

	require.NoError(t, err)
	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, []string{"*"}, cfg.Server.CorsOrigins)
	assert.Equal(t, "us-central1", cfg.Upstream.Location)
	assert.NotEmpty(t, cfg.Persona.Text)
	assert.Equal(t, 256, cfg.Tools.ResultCacheSize)
	assert.False(t, cfg.Database.EnablePersistence)
	assert.True(t, cfg.CircuitBreaker.Enabled)
	assert.Equal(t, 60*time.Second, cfg.CircuitBreaker.Timeout)
}

func TestLoadFailsWithoutAPIKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GCP_PROJECT_ID", "test-project")

	_, err := LoadYAML(filepath.Join(t.TempDir(), "missing.yaml"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "GEMINI_API_KEY")
}

func TestLoadFailsWithoutProjectOrBaseURL(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("GCP_PROJECT_ID", "")
	t.Setenv("UPSTREAM_BASE_URL", "")

	_, err := LoadYAML(filepath.Join(t.TempDir(), "missing.yaml"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "GCP_PROJECT_ID")
}

func TestLoadYAMLFileWithEnvExpansion(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "expanded-key")

	content := `
server:
  port: "9000"
upstream:
  api_key: ${GEMINI_API_KEY}
  project_id: yaml-project
persona:
  text: "You are a test persona."
tools:
  payment_base_url: https://payments.test
  result_cache_size: 32
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadYAML(path)

	require.NoError(t, err)
	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "expanded-key", cfg.Upstream.APIKey)
	assert.Equal(t, "yaml-project", cfg.Upstream.ProjectID)
	assert.Equal(t, "You are a test persona.", cfg.Persona.Text)
	assert.Equal(t, "https://payments.test", cfg.Tools.PaymentBaseURL)
	assert.Equal(t, 32, cfg.Tools.ResultCacheSize)
}

func TestEnvironmentOverridesBeatYAML(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "env-key")
	t.Setenv("GCP_PROJECT_ID", "env-project")
	t.Setenv("PORT", "7777")
	t.Setenv("CORS_ORIGINS", "https://a.test, https://b.test")
	t.Setenv("PERSONA_TEXT", "env persona")

	cfg, err := LoadYAML(filepath.Join(t.TempDir(), "missing.yaml"))

	require.NoError(t, err)
	assert.Equal(t, "7777", cfg.Server.Port)
	assert.Equal(t, []string{"https://a.test", "https://b.test"}, cfg.Server.CorsOrigins)
	assert.Equal(t, "env persona", cfg.Persona.Text)
}

func TestUpstreamURLVertexFormat(t *testing.T) {
	cfg := getDefaultConfig()
	cfg.Upstream.APIKey = "k"
	cfg.Upstream.ProjectID = "proj"
	cfg.Upstream.Location = "us-central1"

	assert.Equal(t,
		"https://us-central1-aiplatform.googleapis.com/v1/projects/proj/locations/us-central1/endpoints/openapi:predict?key=k",
		cfg.UpstreamURL())
}

func TestUpstreamURLBaseOverride(t *testing.T) {
	cfg := getDefaultConfig()
	cfg.Upstream.APIKey = "k"
	cfg.Upstream.BaseURL = "http://127.0.0.1:9999/v1/chat/"

	assert.Equal(t, "http://127.0.0.1:9999/v1/chat?key=k", cfg.UpstreamURL())
}

func TestGetDatabaseDSN(t *testing.T) {
	cfg := getDefaultConfig()
	cfg.Database.Password = "secret"

	dsn := cfg.GetDatabaseDSN()
	assert.Contains(t, dsn, "host=localhost")
	assert.Contains(t, dsn, "dbname=courtvision")
	assert.Contains(t, dsn, "password=secret")

	cfg.Database.URL = "postgres://u:p@db:5432/x"
	assert.Equal(t, "postgres://u:p@db:5432/x", cfg.GetDatabaseDSN())
}
