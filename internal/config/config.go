// Package config reads process configuration from MULTIPATCH_* environment variables.
//
//	MULTIPATCH_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	MULTIPATCH_SQLITE_PATH: catalog sqlite file (default ./multipatch.db)
//	MULTIPATCH_POSTGRES_DSN: postgres DSN when driver=postgres
//	MULTIPATCH_DATA_ROOTS: extra site search roots, path-list separated
//	MULTIPATCH_LIMS_FILE: YAML specimen file served as the LIMS
//	MULTIPATCH_QC_CACHE: QC cache file (default beside the loaded record)
//	MULTIPATCH_CACHE_DIR: local recording mirror directory (unset disables the mirror;
//	  the mirror is only used when a recording reader is injected)
//	MULTIPATCH_BLOB_DRIVER: fs|s3|memory archive behind the mirror (unset disables the archive)
//	MULTIPATCH_BLOB_FS_ROOT, MULTIPATCH_BLOB_S3_*: archive driver settings
//	MULTIPATCH_LOG_LEVEL, MULTIPATCH_LOG_JSON: logger settings
//	MULTIPATCH_WORKERS: parallel catalog loads (default 4)
//	MULTIPATCH_VERIFY_EXTERNAL: fail loads whose site data cannot be resolved
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"multipatch/internal/blob"
	"multipatch/internal/catalog"
	"multipatch/pkg/domain"
)

// Prefix is prepended to every variable name.
const Prefix = "MULTIPATCH_"

// DefaultWorkers bounds parallel catalog loads when MULTIPATCH_WORKERS is unset.
const DefaultWorkers = 4

// Config is the resolved process configuration.
type Config struct {
	Storage        catalog.StoreConfig
	DataRoots      []string
	LIMSFile       string
	QCCachePath    string
	CacheDir       string
	Blob           blob.Config
	LogLevel       string
	LogJSON        bool
	Workers        int
	VerifyExternal bool
}

// Lookup matches os.LookupEnv.
type Lookup func(key string) (string, bool)

// FromEnv reads the process environment.
func FromEnv() (Config, error) { return Load(os.LookupEnv) }

// Load resolves configuration through lookup.
func Load(lookup Lookup) (Config, error) {
	r := reader{lookup: lookup}
	cfg := Config{
		Storage: catalog.StoreConfig{
			Driver:      catalog.StorageDriver(r.str("STORAGE_DRIVER", string(catalog.StorageSQLite))),
			SQLitePath:  r.str("SQLITE_PATH", ""),
			PostgresDSN: r.str("POSTGRES_DSN", ""),
		},
		DataRoots:   r.list("DATA_ROOTS"),
		LIMSFile:    r.str("LIMS_FILE", ""),
		QCCachePath: r.str("QC_CACHE", ""),
		CacheDir:    r.str("CACHE_DIR", ""),
		Blob: blob.Config{
			Driver: blob.Driver(r.str("BLOB_DRIVER", "")),
			FSRoot: r.str("BLOB_FS_ROOT", ""),
			S3: blob.S3Config{
				Region:          r.str("BLOB_S3_REGION", ""),
				Bucket:          r.str("BLOB_S3_BUCKET", ""),
				Prefix:          r.str("BLOB_S3_PREFIX", ""),
				Endpoint:        r.str("BLOB_S3_ENDPOINT", ""),
				AccessKeyID:     r.str("BLOB_S3_ACCESS_KEY_ID", ""),
				SecretAccessKey: r.str("BLOB_S3_SECRET_ACCESS_KEY", ""),
				SessionToken:    r.str("BLOB_S3_SESSION_TOKEN", ""),
				PathStyle:       r.flag("BLOB_S3_PATH_STYLE"),
			},
		},
		LogLevel:       r.str("LOG_LEVEL", "info"),
		LogJSON:        r.flag("LOG_JSON"),
		Workers:        r.number("WORKERS", DefaultWorkers),
		VerifyExternal: r.flag("VERIFY_EXTERNAL"),
	}
	if r.err != nil {
		return Config{}, r.err
	}
	return cfg, cfg.Validate()
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case catalog.StorageMemory, catalog.StorageSQLite:
	case catalog.StoragePostgres:
		if c.Storage.PostgresDSN == "" {
			return domain.InvalidConfigurationError{Field: Prefix + "POSTGRES_DSN", Reason: "required when the storage driver is postgres"}
		}
	default:
		return domain.InvalidConfigurationError{Field: Prefix + "STORAGE_DRIVER", Reason: "unknown driver " + strconv.Quote(string(c.Storage.Driver))}
	}
	switch c.Blob.Driver {
	case "", blob.DriverMemory:
	case blob.DriverFilesystem:
		if c.Blob.FSRoot == "" {
			return domain.InvalidConfigurationError{Field: Prefix + "BLOB_FS_ROOT", Reason: "required when the blob driver is fs"}
		}
	case blob.DriverS3:
		if c.Blob.S3.Bucket == "" {
			return domain.InvalidConfigurationError{Field: Prefix + "BLOB_S3_BUCKET", Reason: "required when the blob driver is s3"}
		}
	default:
		return domain.InvalidConfigurationError{Field: Prefix + "BLOB_DRIVER", Reason: "unknown driver " + strconv.Quote(string(c.Blob.Driver))}
	}
	if c.Blob.Driver != "" && c.CacheDir == "" {
		return domain.InvalidConfigurationError{Field: Prefix + "CACHE_DIR", Reason: "the recording archive needs a local mirror directory"}
	}
	if c.Workers < 1 {
		return domain.InvalidConfigurationError{Field: Prefix + "WORKERS", Reason: "must be positive"}
	}
	return nil
}

// MirrorEnabled reports whether recordings should be read through a local mirror.
func (c Config) MirrorEnabled() bool { return c.CacheDir != "" }

type reader struct {
	lookup Lookup
	err    error
}

func (r *reader) raw(key string) (string, bool) {
	v, ok := r.lookup(Prefix + key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (r *reader) str(key, def string) string {
	if v, ok := r.raw(key); ok {
		return v
	}
	return def
}

func (r *reader) list(key string) []string {
	v, ok := r.raw(key)
	if !ok {
		return nil
	}
	var out []string
	for _, p := range filepath.SplitList(v) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (r *reader) flag(key string) bool {
	v, ok := r.raw(key)
	if !ok {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil && r.err == nil {
		r.err = domain.InvalidConfigurationError{Field: Prefix + key, Reason: "expected a boolean, got " + strconv.Quote(v)}
	}
	return b
}

func (r *reader) number(key string, def int) int {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil && r.err == nil {
		r.err = domain.InvalidConfigurationError{Field: Prefix + key, Reason: "expected an integer, got " + strconv.Quote(v)}
	}
	return n
}
