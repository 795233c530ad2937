package config

import (
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"multipatch/internal/blob"
	"multipatch/internal/catalog"
	"multipatch/pkg/domain"
)

func env(values map[string]string) Lookup {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(env(nil))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.Driver != catalog.StorageSQLite {
		t.Fatalf("expected sqlite default, got %q", cfg.Storage.Driver)
	}
	if cfg.Workers != DefaultWorkers || cfg.LogLevel != "info" || cfg.LogJSON {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.MirrorEnabled() || cfg.Blob.Driver != "" {
		t.Fatalf("mirror should be off by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	roots := strings.Join([]string{"/data/a", " ", "/data/b"}, string(filepath.ListSeparator))
	cfg, err := Load(env(map[string]string{
		"MULTIPATCH_STORAGE_DRIVER":     "postgres",
		"MULTIPATCH_POSTGRES_DSN":       "postgres://db/multipatch",
		"MULTIPATCH_DATA_ROOTS":         roots,
		"MULTIPATCH_CACHE_DIR":          "/tmp/mirror",
		"MULTIPATCH_BLOB_DRIVER":        "s3",
		"MULTIPATCH_BLOB_S3_BUCKET":     "recordings",
		"MULTIPATCH_BLOB_S3_PATH_STYLE": "true",
		"MULTIPATCH_LOG_JSON":           "1",
		"MULTIPATCH_WORKERS":            "12",
		"MULTIPATCH_VERIFY_EXTERNAL":    "true",
	}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(cfg.DataRoots, []string{"/data/a", "/data/b"}) {
		t.Fatalf("unexpected roots %v", cfg.DataRoots)
	}
	if cfg.Blob.Driver != blob.DriverS3 || !cfg.Blob.S3.PathStyle || cfg.Blob.S3.Bucket != "recordings" {
		t.Fatalf("unexpected blob config %+v", cfg.Blob)
	}
	if !cfg.LogJSON || cfg.Workers != 12 || !cfg.VerifyExternal || !cfg.MirrorEnabled() {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name  string
		vars  map[string]string
		field string
	}{
		{"bad bool", map[string]string{"MULTIPATCH_LOG_JSON": "sometimes"}, "MULTIPATCH_LOG_JSON"},
		{"bad int", map[string]string{"MULTIPATCH_WORKERS": "many"}, "MULTIPATCH_WORKERS"},
		{"zero workers", map[string]string{"MULTIPATCH_WORKERS": "0"}, "MULTIPATCH_WORKERS"},
		{"unknown storage", map[string]string{"MULTIPATCH_STORAGE_DRIVER": "bolt"}, "MULTIPATCH_STORAGE_DRIVER"},
		{"postgres without dsn", map[string]string{"MULTIPATCH_STORAGE_DRIVER": "postgres"}, "MULTIPATCH_POSTGRES_DSN"},
		{"unknown blob", map[string]string{"MULTIPATCH_BLOB_DRIVER": "ftp", "MULTIPATCH_CACHE_DIR": "/tmp"}, "MULTIPATCH_BLOB_DRIVER"},
		{"s3 without bucket", map[string]string{"MULTIPATCH_BLOB_DRIVER": "s3", "MULTIPATCH_CACHE_DIR": "/tmp"}, "MULTIPATCH_BLOB_S3_BUCKET"},
		{"fs without root", map[string]string{"MULTIPATCH_BLOB_DRIVER": "fs", "MULTIPATCH_CACHE_DIR": "/tmp"}, "MULTIPATCH_BLOB_FS_ROOT"},
		{"archive without mirror", map[string]string{"MULTIPATCH_BLOB_DRIVER": "memory"}, "MULTIPATCH_CACHE_DIR"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(env(tc.vars))
			var ice domain.InvalidConfigurationError
			if !errors.As(err, &ice) {
				t.Fatalf("expected invalid configuration, got %v", err)
			}
			if ice.Field != tc.field {
				t.Fatalf("expected field %s, got %s", tc.field, ice.Field)
			}
		})
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("MULTIPATCH_STORAGE_DRIVER", "memory")
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("from env: %v", err)
	}
	if cfg.Storage.Driver != catalog.StorageMemory {
		t.Fatalf("expected memory driver, got %q", cfg.Storage.Driver)
	}
}
