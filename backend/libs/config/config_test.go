package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleConfig struct {
	HTTP struct {
		Port string `yaml:"port" env:"SAMPLE_HTTP_PORT"`
	} `yaml:"http"`
	Backend struct {
		URL        string        `yaml:"url"`
		MaxRetries int           `yaml:"maxRetries"`
		Timeout    time.Duration `yaml:"timeout"`
	} `yaml:"backend"`
	Rate float64 `yaml:"rate" env:"SAMPLE_RATE"`
}

func TestLoadConfigYAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http:\n  port: \"9000\"\nbackend:\n  url: http://central\n  maxRetries: 4\nrate: 12.5\n"), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("DOTENV_FILE", "")
	t.Setenv("SAMPLE_HTTP_PORT", "9100")
	t.Setenv("BACKEND_TIMEOUT", "3s")

	var cfg sampleConfig
	require.NoError(t, LoadConfig(&cfg))

	assert.Equal(t, "9100", cfg.HTTP.Port)
	assert.Equal(t, "http://central", cfg.Backend.URL)
	assert.Equal(t, 4, cfg.Backend.MaxRetries)
	assert.Equal(t, 3*time.Second, cfg.Backend.Timeout)
	assert.InDelta(t, 12.5, cfg.Rate, 0.0001)
}

func TestLoadConfigDotenv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("SAMPLE_RATE=7\n"), 0o600))

	t.Setenv("CONFIG_FILE", "")
	t.Setenv("DOTENV_FILE", path)
	t.Cleanup(func() { os.Unsetenv("SAMPLE_RATE") })

	var cfg sampleConfig
	require.NoError(t, LoadConfig(&cfg))
	assert.InDelta(t, 7.0, cfg.Rate, 0.0001)
}

func TestLoadConfigRejectsBadInput(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("DOTENV_FILE", "")

	require.Error(t, LoadConfig(nil))
	require.Error(t, LoadConfig(sampleConfig{}))

	t.Setenv("SAMPLE_RATE", "not-a-number")
	var cfg sampleConfig
	require.Error(t, LoadConfig(&cfg))
}

func TestLoadConfigMissingExplicitDotenv(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("DOTENV_FILE", filepath.Join(t.TempDir(), "missing.env"))

	var cfg sampleConfig
	require.Error(t, LoadConfig(&cfg))
}
