package config

import (
	"os"
	"path/filepath"
	"testing"

	"canvas-bulkflow/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("CANVAS_API_TOKEN", "")
	t.Setenv("CANVAS_BASE_URL", "")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)

	assert.Equal(t, models.DefaultBaseUrl, cfg.BaseUrl)
	assert.Equal(t, "Downloads", cfg.OutputFolder)
	assert.Equal(t, "Downloads/OCRed", cfg.OcrFolder)
	assert.Equal(t, models.DefaultFileIdColumn, cfg.FileIdColumn)
	assert.Equal(t, models.DefaultFilenameColumn, cfg.FilenameColumn)
	assert.Equal(t, models.DefaultRowDelayMs, cfg.RowDelayMs)
	assert.Equal(t, 60, cfg.ApiClientTimeoutSec)
	assert.Equal(t, models.DefaultListenAddr, cfg.ListenAddr)
	assert.Equal(t, 60, cfg.JobRetentionMins)
}

func TestLoadConfigFromToml(t *testing.T) {
	t.Setenv("CANVAS_API_TOKEN", "")
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
Token = "toml-token"
BaseUrl = "https://other.instructure.com"
OutputFolder = "Incoming"
RowDelayMs = 250
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "toml-token", cfg.Token)
	assert.Equal(t, "https://other.instructure.com", cfg.BaseUrl)
	assert.Equal(t, "Incoming", cfg.OutputFolder)
	assert.Equal(t, 250, cfg.RowDelayMs)
	// Unset fields still get defaults.
	assert.Equal(t, "Downloads/OCRed", cfg.OcrFolder)
}

func TestLoadConfigEnvFallback(t *testing.T) {
	t.Setenv("CANVAS_API_TOKEN", "env-token")
	t.Setenv("CANVAS_BASE_URL", "https://env.instructure.com")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, "env-token", cfg.Token)
	assert.Equal(t, "https://env.instructure.com", cfg.BaseUrl)
}

func TestLoadConfigMalformedToml(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("Token = [not closed"), 0644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bulkflow.env")
	content := `
# comment line
CANVAS_API_TOKEN="file-token"
CANVAS_BASE_URL = https://file.instructure.com
ALREADY_SET=from-file
not a key value line
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	t.Setenv("CANVAS_API_TOKEN", "")
	os.Unsetenv("CANVAS_API_TOKEN")
	t.Setenv("CANVAS_BASE_URL", "")
	os.Unsetenv("CANVAS_BASE_URL")
	t.Setenv("ALREADY_SET", "from-env")

	require.NoError(t, LoadEnvFile(path))

	// Quotes are trimmed, spaces around '=' tolerated.
	assert.Equal(t, "file-token", os.Getenv("CANVAS_API_TOKEN"))
	assert.Equal(t, "https://file.instructure.com", os.Getenv("CANVAS_BASE_URL"))
	// The existing environment always wins.
	assert.Equal(t, "from-env", os.Getenv("ALREADY_SET"))
}

func TestLoadEnvFileMissing(t *testing.T) {
	assert.NoError(t, LoadEnvFile(filepath.Join(t.TempDir(), "absent.env")))
}
