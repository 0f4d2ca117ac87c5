package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all service configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Model      ModelConfig      `yaml:"model"`
	Catalog    CatalogConfig    `yaml:"catalog"`
	Samples    SamplesConfig    `yaml:"samples"`
	Preprocess PreprocessConfig `yaml:"preprocess"`
	Bootstrap  BootstrapConfig  `yaml:"bootstrap"`
	Log        LogConfig        `yaml:"log"`
}

// ServerConfig holds HTTP settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`
	TopK            int           `yaml:"top_k"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// ModelConfig holds inference engine settings.
type ModelConfig struct {
	Path           string `yaml:"path"`
	LibraryPath    string `yaml:"library_path"`
	IntraOpThreads int    `yaml:"intra_op_threads"`
	InterOpThreads int    `yaml:"inter_op_threads"`
	Serialize      bool   `yaml:"serialize"`
	InputSize      int    `yaml:"input_size"` // used when the model leaves H/W dynamic
}

// CatalogConfig points at the category list.
type CatalogConfig struct {
	Path string `yaml:"path"`
}

// SamplesConfig locates the exemplar pool.
type SamplesConfig struct {
	StaticDir  string        `yaml:"static_dir"`
	DatasetDir string        `yaml:"dataset_dir"`
	CacheSize  int           `yaml:"cache_size"`
	CacheTTL   time.Duration `yaml:"cache_ttl"`
}

// PreprocessConfig controls image normalization.
type PreprocessConfig struct {
	Filter       string `yaml:"filter"`
	ChannelOrder string `yaml:"channel_order"` // "bgr" or "rgb"
	MaxPixels    int    `yaml:"max_pixels"`
}

// BootstrapConfig holds download locations for first start.
type BootstrapConfig struct {
	ModelURL   string        `yaml:"model_url"`
	DatasetURL string        `yaml:"dataset_url"`
	Timeout    time.Duration `yaml:"timeout"`
}

// LogConfig controls logger construction.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "console"
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			MaxUploadBytes:  10 << 20,
			TopK:            3,
			ShutdownTimeout: 10 * time.Second,
		},
		Model: ModelConfig{
			Path:      "models/model.onnx",
			InputSize: 224,
		},
		Catalog: CatalogConfig{
			Path: "categories.json",
		},
		Samples: SamplesConfig{
			StaticDir:  "static",
			DatasetDir: "riotu-cars-dataset-200",
			CacheSize:  256,
		},
		Preprocess: PreprocessConfig{
			Filter:       "bilinear",
			ChannelOrder: "bgr",
			MaxPixels:    50_000_000,
		},
		Bootstrap: BootstrapConfig{
			Timeout: 10 * time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds a Config from defaults, the YAML file at path (if any) and
// CARID_* environment variables, in that order.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		if err := decode(data, &cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func applyEnv(cfg *Config) {
	if port := os.Getenv("PORT"); port != "" {
		cfg.Server.Addr = ":" + port
	}
	cfg.Server.Addr = getenv("CARID_ADDR", cfg.Server.Addr)
	cfg.Model.Path = getenv("CARID_MODEL_PATH", cfg.Model.Path)
	cfg.Model.LibraryPath = getenv("CARID_ORT_LIBRARY", cfg.Model.LibraryPath)
	cfg.Model.Serialize = getenvBool("CARID_SERIALIZE_INFERENCE", cfg.Model.Serialize)
	cfg.Catalog.Path = getenv("CARID_CATALOG_PATH", cfg.Catalog.Path)
	cfg.Samples.StaticDir = getenv("CARID_STATIC_DIR", cfg.Samples.StaticDir)
	cfg.Samples.DatasetDir = getenv("CARID_DATASET_DIR", cfg.Samples.DatasetDir)
	cfg.Bootstrap.ModelURL = getenv("CARID_MODEL_URL", cfg.Bootstrap.ModelURL)
	cfg.Bootstrap.DatasetURL = getenv("CARID_DATASET_URL", cfg.Bootstrap.DatasetURL)
	cfg.Log.Level = getenv("CARID_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getenv("CARID_LOG_FORMAT", cfg.Log.Format)
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Server.Addr == "":
		return fmt.Errorf("server.addr is required")
	case c.Server.MaxUploadBytes <= 0:
		return fmt.Errorf("server.max_upload_bytes must be positive")
	case c.Server.TopK < 0:
		return fmt.Errorf("server.top_k must not be negative")
	case c.Model.Path == "":
		return fmt.Errorf("model.path is required")
	case c.Model.InputSize <= 0:
		return fmt.Errorf("model.input_size must be positive")
	case c.Catalog.Path == "":
		return fmt.Errorf("catalog.path is required")
	case c.Samples.StaticDir == "":
		return fmt.Errorf("samples.static_dir is required")
	case c.Samples.CacheTTL < 0:
		return fmt.Errorf("samples.cache_ttl must not be negative")
	case c.Preprocess.MaxPixels < 0:
		return fmt.Errorf("preprocess.max_pixels must not be negative")
	}
	switch strings.ToLower(c.Preprocess.ChannelOrder) {
	case "bgr", "rgb":
	default:
		return fmt.Errorf("preprocess.channel_order must be bgr or rgb")
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("log.format must be json or console")
	}
	return nil
}
