package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"PORT", "CARID_ADDR", "CARID_MODEL_PATH", "CARID_ORT_LIBRARY",
	"CARID_SERIALIZE_INFERENCE", "CARID_CATALOG_PATH", "CARID_STATIC_DIR",
	"CARID_DATASET_DIR", "CARID_MODEL_URL", "CARID_DATASET_URL",
	"CARID_LOG_LEVEL", "CARID_LOG_FORMAT",
}

// clearEnv unsets every variable Load reads for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, int64(10<<20), cfg.Server.MaxUploadBytes)
	assert.Equal(t, 3, cfg.Server.TopK)
	assert.Equal(t, "models/model.onnx", cfg.Model.Path)
	assert.Equal(t, 224, cfg.Model.InputSize)
	assert.Equal(t, "categories.json", cfg.Catalog.Path)
	assert.Equal(t, "static", cfg.Samples.StaticDir)
	assert.Equal(t, "riotu-cars-dataset-200", cfg.Samples.DatasetDir)
	assert.Equal(t, time.Duration(0), cfg.Samples.CacheTTL)
	assert.Equal(t, "bgr", cfg.Preprocess.ChannelOrder)
	assert.Equal(t, "bilinear", cfg.Preprocess.Filter)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.False(t, cfg.Model.Serialize)
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
server:
  addr: ":9000"
  top_k: 5
  cors_origins: ["https://cars.example"]
model:
  path: /opt/models/cars.onnx
  serialize: true
samples:
  static_dir: /srv/static
  cache_ttl: 5m
preprocess:
  channel_order: rgb
  filter: lanczos3
bootstrap:
  model_url: https://example.com/model.onnx
log:
  level: debug
  format: console
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, 5, cfg.Server.TopK)
	assert.Equal(t, []string{"https://cars.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "/opt/models/cars.onnx", cfg.Model.Path)
	assert.True(t, cfg.Model.Serialize)
	assert.Equal(t, "/srv/static", cfg.Samples.StaticDir)
	assert.Equal(t, "riotu-cars-dataset-200", cfg.Samples.DatasetDir, "unset keys keep defaults")
	assert.Equal(t, 5*time.Minute, cfg.Samples.CacheTTL)
	assert.Equal(t, "rgb", cfg.Preprocess.ChannelOrder)
	assert.Equal(t, "https://example.com/model.onnx", cfg.Bootstrap.ModelURL)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoad_EmptyFile(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "model:\n  path: from-file.onnx\n")
	t.Setenv("PORT", "7000")
	t.Setenv("CARID_MODEL_PATH", "from-env.onnx")
	t.Setenv("CARID_SERIALIZE_INFERENCE", "true")
	t.Setenv("CARID_DATASET_DIR", "cars")
	t.Setenv("CARID_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.Server.Addr)
	assert.Equal(t, "from-env.onnx", cfg.Model.Path)
	assert.True(t, cfg.Model.Serialize)
	assert.Equal(t, "cars", cfg.Samples.DatasetDir)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoad_AddrBeatsPort(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "7000")
	t.Setenv("CARID_ADDR", "127.0.0.1:7001")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7001", cfg.Server.Addr)
}

func TestLoad_InvalidBoolIgnored(t *testing.T) {
	clearEnv(t)
	t.Setenv("CARID_SERIALIZE_INFERENCE", "maybe")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.False(t, cfg.Model.Serialize)
}

func TestLoad_Errors(t *testing.T) {
	clearEnv(t)

	tests := []struct {
		name    string
		content string
	}{
		{"unknown key", "server:\n  port: 80\n"},
		{"bad yaml", "server: [\n"},
		{"bad duration", "samples:\n  cache_ttl: soon\n"},
		{"empty model path", "model:\n  path: \"\"\n"},
		{"negative top_k", "server:\n  top_k: -1\n"},
		{"zero upload", "server:\n  max_upload_bytes: 0\n"},
		{"bad channel order", "preprocess:\n  channel_order: hsv\n"},
		{"bad log format", "log:\n  format: xml\n"},
		{"negative ttl", "samples:\n  cache_ttl: -1s\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
