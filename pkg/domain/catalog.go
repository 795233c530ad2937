package domain

import (
	"context"
	"time"
)

// SummaryRow is one (pre class, post class) row of an experiment's connectivity summary.
type SummaryRow struct {
	PreLayer    string `json:"pre_layer"`
	PreCreType  string `json:"pre_cre_type"`
	PostLayer   string `json:"post_layer"`
	PostCreType string `json:"post_cre_type"`
	Connected   int    `json:"connected"`
	Unconnected int    `json:"unconnected"`
}

// CatalogRecord is the derived description of one loaded experiment.
type CatalogRecord struct {
	UID          string       `json:"uid"`
	Source       string       `json:"source"`
	SitePath     string       `json:"site_path,omitempty"`
	Region       string       `json:"region"`
	Organism     string       `json:"organism,omitempty"`
	CreTypes     []string     `json:"cre_types"`
	TargetLayers []string     `json:"target_layers"`
	Labels       []string     `json:"labels"`
	Probed       int          `json:"probed"`
	Connections  []Pair       `json:"connections"`
	Summary      []SummaryRow `json:"summary"`
	LoadedAt     time.Time    `json:"loaded_at"`
}

// LoadFailure records an experiment that could not be cataloged.
type LoadFailure struct {
	Source string    `json:"source"`
	Error  string    `json:"error"`
	At     time.Time `json:"at"`
}

// CatalogSnapshot is the full state of a catalog store.
type CatalogSnapshot struct {
	Records  []CatalogRecord `json:"records"`
	Failures []LoadFailure   `json:"failures"`
}

// CatalogStore persists catalog records. Implementations are safe for concurrent use.
type CatalogStore interface {
	// Put inserts or replaces the record with the same UID.
	Put(ctx context.Context, rec CatalogRecord) error
	Get(uid string) (CatalogRecord, bool)
	// List returns records in insertion order.
	List() []CatalogRecord
	RecordFailure(ctx context.Context, f LoadFailure) error
	Failures() []LoadFailure
	// Reset drops all records and failures.
	Reset(ctx context.Context) error
	Close() error
}
