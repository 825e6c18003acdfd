// Package config loads smartloan host configuration: defaults, then an
// optional YAML file, then SMARTLOAN_* environment overrides, then struct
// validation.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"smartloan/internal/blob"
	"smartloan/internal/core"
	"smartloan/internal/logging"
)

// Config holds all smartloan host settings.
type Config struct {
	// Catalog is a rule catalog file; empty uses the bundled Smart Loan catalog.
	Catalog string `yaml:"catalog"`

	Storage core.StorageOptions `yaml:"storage"`
	Archive blob.Options        `yaml:"archive"`
	Audit   AuditConfig         `yaml:"audit"`
	Log     logging.Config      `yaml:"log"`
	Metrics MetricsConfig       `yaml:"metrics"`
	Tracing TracingConfig       `yaml:"tracing"`
	HTTP    HTTPConfig          `yaml:"http"`
}

// AuditConfig bounds the per-session audit history.
type AuditConfig struct {
	// Retention keeps at most this many entries per session; 0 keeps all.
	Retention int `yaml:"retention" validate:"gte=0"`
}

// MetricsConfig selects the operation metrics sink.
type MetricsConfig struct {
	Driver string `yaml:"driver" validate:"oneof=none expvar prometheus"`
}

// TracingConfig selects the span exporter.
type TracingConfig struct {
	Driver string `yaml:"driver" validate:"oneof=none json otel"`
}

// HTTPConfig configures the serve command.
type HTTPConfig struct {
	Addr string `yaml:"addr" validate:"required"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Storage: core.StorageOptions{Driver: core.StorageSQLite, SQLitePath: "smartloan.db"},
		Archive: blob.Options{Driver: blob.DriverFilesystem, FSRoot: blob.DefaultFilesystemRoot},
		Log:     logging.Config{Level: "info"},
		Metrics: MetricsConfig{Driver: "prometheus"},
		Tracing: TracingConfig{Driver: "none"},
		HTTP:    HTTPConfig{Addr: ":8080"},
	}
}

// Load builds the configuration. An empty path skips the file layer; a named
// file must exist.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := cfg.decode(data); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
		if cfg.Catalog != "" && !filepath.IsAbs(cfg.Catalog) {
			cfg.Catalog = filepath.Join(filepath.Dir(path), cfg.Catalog)
		}
	}
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies SMARTLOAN_* variables that are set and non-empty.
func (c *Config) applyEnvOverrides() error {
	str := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	str("SMARTLOAN_CATALOG", &c.Catalog)

	if v := os.Getenv("SMARTLOAN_STORAGE_DRIVER"); v != "" {
		c.Storage.Driver = core.StorageDriver(v)
	}
	str("SMARTLOAN_SQLITE_PATH", &c.Storage.SQLitePath)
	str("SMARTLOAN_POSTGRES_DSN", &c.Storage.PostgresDSN)
	str("SMARTLOAN_BADGER_PATH", &c.Storage.BadgerPath)

	if v := os.Getenv("SMARTLOAN_ARCHIVE_DRIVER"); v != "" {
		c.Archive.Driver = blob.Driver(v)
	}
	str("SMARTLOAN_ARCHIVE_FS_ROOT", &c.Archive.FSRoot)
	str("SMARTLOAN_S3_BUCKET", &c.Archive.S3.Bucket)
	str("SMARTLOAN_S3_REGION", &c.Archive.S3.Region)
	str("SMARTLOAN_S3_ENDPOINT", &c.Archive.S3.Endpoint)
	if v := os.Getenv("SMARTLOAN_S3_PATH_STYLE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("SMARTLOAN_S3_PATH_STYLE: %w", err)
		}
		c.Archive.S3.PathStyle = b
	}

	if v := os.Getenv("SMARTLOAN_AUDIT_RETENTION"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SMARTLOAN_AUDIT_RETENTION: %w", err)
		}
		c.Audit.Retention = n
	}
	if v := os.Getenv("SMARTLOAN_LOG_LEVEL"); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
	str("SMARTLOAN_METRICS", &c.Metrics.Driver)
	str("SMARTLOAN_TRACING", &c.Tracing.Driver)
	str("SMARTLOAN_HTTP_ADDR", &c.HTTP.Addr)
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the struct tags of every section.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", describe(err))
	}
	if c.Archive.Driver == blob.DriverS3 && c.Archive.S3.Bucket == "" {
		return fmt.Errorf("invalid config: archive.s3.bucket required for the s3 driver")
	}
	return nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return errors.New(strings.Join(msgs, "; "))
}
