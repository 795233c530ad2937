// Package blob exposes the recording archive and selects a driver from configuration.
package blob

import (
	"context"
	"fmt"

	"multipatch/internal/blob/core"
	"multipatch/internal/infra/blob/fs"
	memorystore "multipatch/internal/infra/blob/memory"
	infraS3 "multipatch/internal/infra/blob/s3"
)

type (
	// Driver identifies an archive backend driver.
	Driver = core.Driver
	// PutOptions configures an archive write.
	PutOptions = core.PutOptions
	// Info describes archived recording metadata.
	Info = core.Info
	// Store is the interface for archive backends.
	Store = core.Store
	// S3Config configures the S3 driver.
	S3Config = infraS3.Config
)

const (
	// DriverFilesystem is the directory driver.
	DriverFilesystem = core.DriverFilesystem
	// DriverS3 is the S3-compatible driver.
	DriverS3 = core.DriverS3
	// DriverMemory is the in-memory test driver.
	DriverMemory = core.DriverMemory
)

// Metadata keys written with archived recordings.
const (
	MetaSourcePath  = core.MetaSourcePath
	MetaSourceMTime = core.MetaSourceMTime
)

// ErrNotFound marks absent keys.
var ErrNotFound = core.ErrNotFound

// Config selects and configures an archive driver.
type Config struct {
	Driver Driver
	// FSRoot is the archive directory for the fs driver.
	FSRoot string
	S3     S3Config
}

// Open constructs the configured store. An empty driver means fs.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", DriverFilesystem:
		return fs.New(cfg.FSRoot)
	case DriverS3:
		return infraS3.New(ctx, cfg.S3)
	case DriverMemory:
		return memorystore.New(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", cfg.Driver)
	}
}
