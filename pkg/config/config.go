// Package config loads the emulator's runtime configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "S3MOCK_"

// Config holds runtime configuration for s3mock.
//
// YAML example:
//
//	address: ":9090"
//	tlsAddress: ":9191"
//	tlsCertFile: "server.crt"
//	tlsKeyFile: "server.key"
//	dataDir: "./data"
//	region: "us-east-1"
//	owner:
//	  id: "123"
//	  displayName: "s3-mock-file-store"
//	logLevel: "info"
//	metrics: true
//	initialBuckets: ["bucket-a", "bucket-b"]
//
// Environment overrides (also read from a .env file):
//
//	S3MOCK_CONFIG          path to the YAML file
//	S3MOCK_ADDR            Address
//	S3MOCK_TLS_ADDR        TLSAddress
//	S3MOCK_TLS_CERT        TLSCertFile
//	S3MOCK_TLS_KEY         TLSKeyFile
//	S3MOCK_DATA_DIR        DataDir
//	S3MOCK_REGION          Region
//	S3MOCK_OWNER_ID        Owner.ID
//	S3MOCK_OWNER_NAME      Owner.DisplayName
//	S3MOCK_LOG_LEVEL       LogLevel
//	S3MOCK_METRICS         Metrics (true/false)
//	S3MOCK_INITIAL_BUCKETS InitialBuckets, comma separated
//	S3MOCK_RETAIN_FILES    RetainFilesOnExit (true/false)
type Config struct {
	Address     string `yaml:"address"`
	TLSAddress  string `yaml:"tlsAddress"`
	TLSCertFile string `yaml:"tlsCertFile"`
	TLSKeyFile  string `yaml:"tlsKeyFile"`

	// DataDir holds metadata and payloads. When empty a temporary
	// directory is used and removed on exit unless RetainFilesOnExit is set.
	DataDir           string `yaml:"dataDir"`
	RetainFilesOnExit bool   `yaml:"retainFilesOnExit"`

	Region         string   `yaml:"region"`
	Owner          Owner    `yaml:"owner"`
	LogLevel       string   `yaml:"logLevel"`
	Metrics        bool     `yaml:"metrics"`
	InitialBuckets []string `yaml:"initialBuckets"`
}

// Owner is the fixed identity reported as the owner of every bucket and
// object.
type Owner struct {
	ID          string `yaml:"id"`
	DisplayName string `yaml:"displayName"`
}

// Default returns a Config with local defaults.
func Default() Config {
	return Config{
		Address:    ":9090",
		TLSAddress: ":9191",
		DataDir:    "",
		Region:     "us-east-1",
		Owner: Owner{
			ID:          "123",
			DisplayName: "s3-mock-file-store",
		},
		LogLevel: "info",
		Metrics:  true,
	}
}

// ConfigOption overrides one setting. Load applies options after the file
// and the environment, so they carry command line flags.
type ConfigOption func(*Config)

func WithAddress(addr string) ConfigOption {
	return func(cfg *Config) {
		cfg.Address = addr
	}
}

func WithDataDir(dataDir string) ConfigOption {
	return func(cfg *Config) {
		cfg.DataDir = dataDir
	}
}

func WithRetainFilesOnExit(retain bool) ConfigOption {
	return func(cfg *Config) {
		cfg.RetainFilesOnExit = retain
	}
}

func WithRegion(region string) ConfigOption {
	return func(cfg *Config) {
		cfg.Region = region
	}
}

func WithLogLevel(level string) ConfigOption {
	return func(cfg *Config) {
		cfg.LogLevel = level
	}
}

// WithInitialBuckets replaces the initial buckets. Names are trimmed and
// empty ones dropped.
func WithInitialBuckets(buckets ...string) ConfigOption {
	return func(cfg *Config) {
		cfg.InitialBuckets = splitAndTrim(strings.Join(buckets, ","))
	}
}

func WithMetrics(enabled bool) ConfigOption {
	return func(cfg *Config) {
		cfg.Metrics = enabled
	}
}

// LoadDotEnv loads variables from the given .env files (./.env when none
// are named) without overriding variables already set. Missing files are
// ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}

	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads configuration from path, falling back to S3MOCK_CONFIG and
// then ./config.yaml. A missing file yields Default(). Environment overrides
// apply next and opts last.
func Load(path string, opts ...ConfigOption) (Config, error) {
	if path == "" {
		path = os.Getenv(EnvPrefix + "CONFIG")
	}
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}

	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	cfg = applyEnvOverrides(cfg)
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg Config) Config {
	str := func(name string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(EnvPrefix + name)); v != "" {
			*dst = v
		}
	}
	boolean := func(name string, dst *bool) {
		switch strings.ToLower(strings.TrimSpace(os.Getenv(EnvPrefix + name))) {
		case "1", "true", "yes", "y", "on":
			*dst = true
		case "0", "false", "no", "n", "off":
			*dst = false
		}
	}

	str("ADDR", &cfg.Address)
	str("TLS_ADDR", &cfg.TLSAddress)
	str("TLS_CERT", &cfg.TLSCertFile)
	str("TLS_KEY", &cfg.TLSKeyFile)
	str("DATA_DIR", &cfg.DataDir)
	str("REGION", &cfg.Region)
	str("OWNER_ID", &cfg.Owner.ID)
	str("OWNER_NAME", &cfg.Owner.DisplayName)
	str("LOG_LEVEL", &cfg.LogLevel)
	boolean("METRICS", &cfg.Metrics)
	boolean("RETAIN_FILES", &cfg.RetainFilesOnExit)

	if v := os.Getenv(EnvPrefix + "INITIAL_BUCKETS"); v != "" {
		cfg.InitialBuckets = splitAndTrim(v)
	}

	return cfg
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
