// Package memory provides the in-memory catalog store. The sqlite and postgres
// drivers embed it and snapshot its state after every write.
package memory

import (
	"context"
	"sync"

	"multipatch/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.CatalogStore = (*Store)(nil)

// Snapshot is the exported state of a store.
type Snapshot = domain.CatalogSnapshot

// Store keeps catalog records in insertion order.
type Store struct {
	mu       sync.RWMutex
	records  map[string]domain.CatalogRecord
	order    []string
	failures []domain.LoadFailure
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{records: make(map[string]domain.CatalogRecord)}
}

// Put implements domain.CatalogStore.
func (s *Store) Put(_ context.Context, rec domain.CatalogRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.UID]; !ok {
		s.order = append(s.order, rec.UID)
	}
	s.records[rec.UID] = cloneRecord(rec)
	return nil
}

// Get implements domain.CatalogStore.
func (s *Store) Get(uid string) (domain.CatalogRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[uid]
	if !ok {
		return domain.CatalogRecord{}, false
	}
	return cloneRecord(rec), true
}

// List implements domain.CatalogStore.
func (s *Store) List() []domain.CatalogRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.CatalogRecord, 0, len(s.order))
	for _, uid := range s.order {
		out = append(out, cloneRecord(s.records[uid]))
	}
	return out
}

// RecordFailure implements domain.CatalogStore.
func (s *Store) RecordFailure(_ context.Context, f domain.LoadFailure) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, f)
	return nil
}

// Failures implements domain.CatalogStore.
func (s *Store) Failures() []domain.LoadFailure {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.LoadFailure(nil), s.failures...)
}

// Reset implements domain.CatalogStore.
func (s *Store) Reset(context.Context) error {
	s.ImportState(Snapshot{})
	return nil
}

// Close implements domain.CatalogStore.
func (s *Store) Close() error { return nil }

// ExportState returns a deep copy of the store contents.
func (s *Store) ExportState() Snapshot {
	return Snapshot{Records: s.List(), Failures: s.Failures()}
}

// ImportState replaces the store contents with snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]domain.CatalogRecord, len(snapshot.Records))
	s.order = s.order[:0]
	for _, rec := range snapshot.Records {
		if _, ok := s.records[rec.UID]; !ok {
			s.order = append(s.order, rec.UID)
		}
		s.records[rec.UID] = cloneRecord(rec)
	}
	s.failures = append([]domain.LoadFailure(nil), snapshot.Failures...)
}

func cloneRecord(rec domain.CatalogRecord) domain.CatalogRecord {
	rec.CreTypes = append([]string(nil), rec.CreTypes...)
	rec.TargetLayers = append([]string(nil), rec.TargetLayers...)
	rec.Labels = append([]string(nil), rec.Labels...)
	rec.Connections = append([]domain.Pair(nil), rec.Connections...)
	rec.Summary = append([]domain.SummaryRow(nil), rec.Summary...)
	return rec
}
