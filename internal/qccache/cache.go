// Package qccache persists derived per-cell QC results across runs in a single
// gob file, keyed by recording file and AD channel.
package qccache

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/singleflight"

	"multipatch/internal/observability"
	"multipatch/pkg/domain"
)

// FileName is the cache file created next to the process configuration file.
const FileName = "cell_qc_cache.gob"

// Key identifies one recorded channel.
type Key struct {
	Recording string
	Channel   int
}

func (k Key) String() string { return fmt.Sprintf("%s#%d", k.Recording, k.Channel) }

// Result is the derived pass/fail triple.
type Result struct {
	Holding bool
	Access  bool
	Spiking bool
}

// Cache is safe for concurrent use. The file is read on first use and rewritten
// after every newly computed key.
type Cache struct {
	path    string
	log     observability.Logger
	metrics observability.CacheRecorder

	mu      sync.Mutex
	loaded  bool
	entries map[Key]Result
	group   singleflight.Group

	// saveMu orders snapshot and write so a later file always holds every earlier key.
	saveMu sync.Mutex
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger used for load and save problems.
func WithLogger(l observability.Logger) Option {
	return func(c *Cache) { c.log = observability.OrNop(l) }
}

// WithMetrics sets the hit/miss recorder.
func WithMetrics(m observability.CacheRecorder) Option {
	return func(c *Cache) {
		if m != nil {
			c.metrics = m
		}
	}
}

// New returns a cache backed by path. An empty path keeps results in memory only.
func New(path string, opts ...Option) *Cache {
	c := &Cache{path: path, log: observability.NopLogger(), metrics: observability.NopMetrics()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PathFor returns the cache location for a configuration file path.
func PathFor(configFile string) string {
	return filepath.Join(filepath.Dir(configFile), FileName)
}

// Path returns the backing file, if any.
func (c *Cache) Path() string { return c.path }

// Len returns the number of cached keys.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loadLocked()
	return len(c.entries)
}

// Get returns a cached result.
func (c *Cache) Get(key Key) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loadLocked()
	r, ok := c.entries[key]
	return r, ok
}

// GetOrCompute returns the cached result for key, running compute at most once
// per key across concurrent callers when it is missing. Results are persisted
// before returning; a failed save is logged and does not fail the call.
func (c *Cache) GetOrCompute(key Key, compute func() (Result, error)) (Result, error) {
	if r, ok := c.Get(key); ok {
		c.metrics.CacheLookup(true)
		return r, nil
	}
	c.metrics.CacheLookup(false)
	v, err, _ := c.group.Do(key.String(), func() (any, error) {
		if r, ok := c.Get(key); ok {
			return r, nil
		}
		r, err := compute()
		if err != nil {
			return Result{}, err
		}
		c.saveMu.Lock()
		defer c.saveMu.Unlock()
		c.mu.Lock()
		c.entries[key] = r
		snapshot := make(map[Key]Result, len(c.entries))
		for k, v := range c.entries {
			snapshot[k] = v
		}
		c.mu.Unlock()
		if err := c.save(snapshot); err != nil {
			c.log.Warn("failed to write cell qc cache", "path", c.path, "error", err)
		}
		return r, nil
	})
	if err != nil {
		return Result{}, err
	}
	return v.(Result), nil
}

func (c *Cache) loadLocked() {
	if c.loaded {
		return
	}
	c.loaded = true
	c.entries = make(map[Key]Result)
	if c.path == "" {
		return
	}
	b, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	if err != nil {
		c.log.Warn("failed to read cell qc cache; starting empty", "path", c.path, "error", fmt.Errorf("%w: %v", domain.ErrCacheCorrupt, err))
		return
	}
	var entries map[Key]Result
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&entries); err != nil {
		c.log.Warn("failed to decode cell qc cache; starting empty", "path", c.path, "error", fmt.Errorf("%w: %v", domain.ErrCacheCorrupt, err))
		return
	}
	c.entries = entries
}

// save writes the snapshot to a temp file and renames it over the cache file.
func (c *Cache) save(entries map[Key]Result) error {
	if c.path == "" {
		return nil
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(entries); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(c.path), filepath.Base(c.path)+".tmp-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	_, err = tmp.Write(buf.Bytes())
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	return os.Rename(tmp.Name(), c.path)
}
