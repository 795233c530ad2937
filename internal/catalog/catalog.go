// Package catalog loads many experiments and keeps a selectable record of
// their derived connectivity summaries.
package catalog

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"multipatch/internal/core"
	"multipatch/internal/infra/persistence/memory"
	"multipatch/internal/infra/persistence/postgres"
	"multipatch/internal/infra/persistence/sqlite"
	"multipatch/internal/observability"
	"multipatch/pkg/domain"
)

// StorageDriver identifies a catalog store implementation.
type StorageDriver string

// Storage drivers.
const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// StoreConfig selects and configures the catalog store.
type StoreConfig struct {
	Driver      StorageDriver
	SQLitePath  string
	PostgresDSN string
}

// OpenStore opens the configured store. An empty driver means sqlite.
func OpenStore(ctx context.Context, cfg StoreConfig) (domain.CatalogStore, error) {
	switch cfg.Driver {
	case StorageMemory:
		return memory.NewStore(), nil
	case StorageSQLite, "":
		s, err := sqlite.NewStore(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case StoragePostgres:
		s, err := postgres.NewStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, domain.InvalidConfigurationError{Field: "storage driver", Reason: fmt.Sprintf("unknown driver %q", cfg.Driver)}
	}
}

// Catalog builds and queries experiment records.
type Catalog struct {
	store domain.CatalogStore
	log   observability.Logger
	now   func() time.Time
}

// New returns a catalog over store.
func New(store domain.CatalogStore, log observability.Logger) *Catalog {
	return &Catalog{store: store, log: observability.OrNop(log), now: time.Now}
}

// Store returns the underlying store.
func (c *Catalog) Store() domain.CatalogStore { return c.store }

// BuildReport summarizes one Build run.
type BuildReport struct {
	Loaded int
	Failed int
}

// Build loads every experiment with up to workers loads in flight. Experiments
// that fail to load are logged and recorded as failures; only store errors
// abort the build.
func (c *Catalog) Build(ctx context.Context, loaders []core.Loader, opts core.Options, workers int) (BuildReport, error) {
	if workers < 1 {
		workers = 1
	}
	results := make([]error, len(loaders))
	loaded := make([]bool, len(loaders))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, l := range loaders {
		g.Go(func() error {
			e, err := core.Load(gctx, l, opts)
			if err == nil {
				var rec domain.CatalogRecord
				if rec, err = c.record(gctx, e); err == nil {
					loaded[i] = true
					return c.store.Put(gctx, rec)
				}
			}
			results[i] = err
			c.log.Warn("experiment skipped", "source", l.Source().String(), "error", err)
			return c.store.RecordFailure(gctx, domain.LoadFailure{Source: l.Source().String(), Error: err.Error(), At: c.now().UTC()})
		})
	}
	err := g.Wait()
	var report BuildReport
	for i := range loaders {
		switch {
		case loaded[i]:
			report.Loaded++
		case results[i] != nil:
			report.Failed++
		}
	}
	c.log.Info("catalog build finished", "loaded", report.Loaded, "failed", report.Failed)
	return report, err
}

// Add records a single loaded experiment.
func (c *Catalog) Add(ctx context.Context, e *core.Experiment) (domain.CatalogRecord, error) {
	rec, err := c.record(ctx, e)
	if err != nil {
		return rec, err
	}
	return rec, c.store.Put(ctx, rec)
}

func (c *Catalog) record(ctx context.Context, e *core.Experiment) (domain.CatalogRecord, error) {
	rec, err := Describe(ctx, e)
	rec.LoadedAt = c.now().UTC()
	return rec, err
}

// Describe derives the catalog record of a loaded experiment. The experiment
// must resolve its site uid; organism and site path are filled when available.
func Describe(ctx context.Context, e *core.Experiment) (domain.CatalogRecord, error) {
	uid, err := e.UID()
	if err != nil {
		return domain.CatalogRecord{}, err
	}
	rec := domain.CatalogRecord{
		UID:          uid,
		Source:       e.Source().String(),
		Region:       e.Region(),
		CreTypes:     e.CreTypes(),
		TargetLayers: e.TargetLayers(),
		Labels:       e.Labels(),
		Probed:       e.NConnectionsProbed(),
	}
	if p, err := e.Path(); err == nil {
		rec.SitePath = p
	}
	if lr, err := e.LIMSRecord(ctx); err == nil {
		rec.Organism = lr.Organism
	}
	if conns, ok := e.Connections(); ok {
		rec.Connections = conns
	}
	if sum, ok := e.Summary(); ok {
		rec.Summary = SummaryRows(sum)
	}
	return rec, nil
}

// SummaryRows flattens a summary into rows ordered by pre then post class.
func SummaryRows(sum map[core.SummaryKey]*core.SummaryEntry) []domain.SummaryRow {
	out := make([]domain.SummaryRow, 0, len(sum))
	for k, v := range sum {
		out = append(out, domain.SummaryRow{
			PreLayer:    k.Pre.Layer,
			PreCreType:  k.Pre.CreType,
			PostLayer:   k.Post.Layer,
			PostCreType: k.Post.CreType,
			Connected:   v.Connected,
			Unconnected: v.Unconnected,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.PreCreType != b.PreCreType {
			return domain.CreTypeIndex(a.PreCreType) < domain.CreTypeIndex(b.PreCreType)
		}
		if a.PostCreType != b.PostCreType {
			return domain.CreTypeIndex(a.PostCreType) < domain.CreTypeIndex(b.PostCreType)
		}
		if a.PreLayer != b.PreLayer {
			return a.PreLayer < b.PreLayer
		}
		return a.PostLayer < b.PostLayer
	})
	return out
}
