package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartloan/internal/blob"
	"smartloan/internal/core"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"SMARTLOAN_CATALOG", "SMARTLOAN_STORAGE_DRIVER", "SMARTLOAN_SQLITE_PATH", "SMARTLOAN_POSTGRES_DSN",
		"SMARTLOAN_BADGER_PATH", "SMARTLOAN_ARCHIVE_DRIVER", "SMARTLOAN_ARCHIVE_FS_ROOT", "SMARTLOAN_S3_BUCKET",
		"SMARTLOAN_S3_REGION", "SMARTLOAN_S3_ENDPOINT", "SMARTLOAN_S3_PATH_STYLE", "SMARTLOAN_AUDIT_RETENTION",
		"SMARTLOAN_LOG_LEVEL", "SMARTLOAN_METRICS", "SMARTLOAN_TRACING", "SMARTLOAN_HTTP_ADDR",
	} {
		t.Setenv(name, "")
	}
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "smartloan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, core.StorageSQLite, cfg.Storage.Driver)
	assert.Equal(t, blob.DriverFilesystem, cfg.Archive.Driver)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Zero(t, cfg.Audit.Retention)
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, `
catalog: rules.yaml
storage:
  driver: badger
  badger_path: /var/lib/smartloan
archive:
  driver: s3
  s3:
    bucket: audit-archive
    region: eu-west-1
    endpoint: http://minio:9000
    path_style: true
audit:
  retention: 500
log:
  level: debug
metrics:
  driver: expvar
tracing:
  driver: otel
http:
  addr: 127.0.0.1:9090
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "rules.yaml"), cfg.Catalog)
	assert.Equal(t, core.StorageBadger, cfg.Storage.Driver)
	assert.Equal(t, "/var/lib/smartloan", cfg.Storage.BadgerPath)
	assert.Equal(t, blob.DriverS3, cfg.Archive.Driver)
	assert.Equal(t, "audit-archive", cfg.Archive.S3.Bucket)
	assert.True(t, cfg.Archive.S3.PathStyle)
	assert.Equal(t, 500, cfg.Audit.Retention)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "expvar", cfg.Metrics.Driver)
	assert.Equal(t, "otel", cfg.Tracing.Driver)
	assert.Equal(t, "127.0.0.1:9090", cfg.HTTP.Addr)
	// Sections missing from the file keep their defaults.
	assert.Equal(t, "smartloan.db", cfg.Storage.SQLitePath)
}

func TestLoadEmptyFileKeepsDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(writeFile(t, ""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "storage:\n  driver: sqlite\naudit:\n  retention: 10\n")
	t.Setenv("SMARTLOAN_STORAGE_DRIVER", "postgres")
	t.Setenv("SMARTLOAN_POSTGRES_DSN", "postgres://u:p@db/smartloan")
	t.Setenv("SMARTLOAN_AUDIT_RETENTION", "25")
	t.Setenv("SMARTLOAN_ARCHIVE_DRIVER", "memory")
	t.Setenv("SMARTLOAN_S3_PATH_STYLE", "true")
	t.Setenv("SMARTLOAN_LOG_LEVEL", "WARN")
	t.Setenv("SMARTLOAN_METRICS", "none")
	t.Setenv("SMARTLOAN_HTTP_ADDR", ":9999")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, core.StoragePostgres, cfg.Storage.Driver)
	assert.Equal(t, "postgres://u:p@db/smartloan", cfg.Storage.PostgresDSN)
	assert.Equal(t, 25, cfg.Audit.Retention)
	assert.Equal(t, blob.DriverMemory, cfg.Archive.Driver)
	assert.True(t, cfg.Archive.S3.PathStyle)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "none", cfg.Metrics.Driver)
	assert.Equal(t, ":9999", cfg.HTTP.Addr)
}

func TestEnvOverrideParseErrors(t *testing.T) {
	t.Run("retention", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("SMARTLOAN_AUDIT_RETENTION", "many")
		_, err := Load("")
		require.ErrorContains(t, err, "SMARTLOAN_AUDIT_RETENTION")
	})
	t.Run("path style", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("SMARTLOAN_S3_PATH_STYLE", "sometimes")
		_, err := Load("")
		require.ErrorContains(t, err, "SMARTLOAN_S3_PATH_STYLE")
	})
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	cases := map[string]string{
		"unknown field":      "storage:\n  engine: sqlite\n",
		"storage driver":     "storage:\n  driver: mongo\n",
		"postgres needs dsn": "storage:\n  driver: postgres\n",
		"archive driver":     "archive:\n  driver: tape\n",
		"s3 needs bucket":    "archive:\n  driver: s3\n",
		"negative retention": "audit:\n  retention: -1\n",
		"log level":          "log:\n  level: loud\n",
		"metrics driver":     "metrics:\n  driver: statsd\n",
		"tracing driver":     "tracing:\n  driver: zipkin\n",
		"empty addr":         "http:\n  addr: \"\"\n",
		"not yaml":           "storage: [\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			_, err := Load(writeFile(t, body))
			require.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestSaveRoundTrip(t *testing.T) {
	clearEnv(t)
	cfg := Default()
	cfg.Audit.Retention = 42
	cfg.Tracing.Driver = "json"
	path := filepath.Join(t.TempDir(), "nested", "smartloan.yaml")
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
