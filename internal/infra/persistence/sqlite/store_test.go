package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"multipatch/pkg/domain"
)

func TestStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "catalog.db")
	store, err := NewStore(path)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if store.Path() != path || store.DB() == nil {
		t.Fatalf("unexpected store wiring")
	}
	rec := domain.CatalogRecord{
		UID:      "1489093423.85",
		Region:   "V1",
		CreTypes: []string{"sst", "pvalb"},
		Summary:  []domain.SummaryRow{{PreCreType: "sst", PostCreType: "pvalb", Connected: 1, Unconnected: 2}},
	}
	if err := store.Put(ctx, rec); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.RecordFailure(ctx, domain.LoadFailure{Source: "bad", Error: "boom", At: time.Unix(10, 0).UTC()}); err != nil {
		t.Fatalf("record failure: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close() }()
	got, ok := reopened.Get(rec.UID)
	if !ok || len(got.Summary) != 1 || got.Summary[0].Unconnected != 2 {
		t.Fatalf("unexpected reloaded record %+v", got)
	}
	if f := reopened.Failures(); len(f) != 1 || f[0].Source != "bad" {
		t.Fatalf("unexpected failures %+v", f)
	}

	if err := reopened.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if len(reopened.List()) != 0 {
		t.Fatalf("expected empty catalog after reset")
	}
}
