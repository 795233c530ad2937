package memory

import (
	"context"
	"testing"
	"time"

	"multipatch/pkg/domain"
)

func TestStorePutListAndSnapshots(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	rec := domain.CatalogRecord{UID: "1.00", CreTypes: []string{"sst"}, Connections: []domain.Pair{{Pre: 1, Post: 2}}}
	if err := store.Put(ctx, rec); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Put(ctx, domain.CatalogRecord{UID: "2.00"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	rec.Region = "ALM"
	if err := store.Put(ctx, rec); err != nil {
		t.Fatalf("replace: %v", err)
	}
	list := store.List()
	if len(list) != 2 || list[0].UID != "1.00" || list[0].Region != "ALM" {
		t.Fatalf("unexpected records %+v", list)
	}

	got, _ := store.Get("1.00")
	got.CreTypes[0] = "vip"
	if again, _ := store.Get("1.00"); again.CreTypes[0] != "sst" {
		t.Fatalf("records must be returned as copies")
	}
	if _, ok := store.Get("missing"); ok {
		t.Fatalf("expected missing record")
	}

	if err := store.RecordFailure(ctx, domain.LoadFailure{Source: "x", Error: "boom", At: time.Now()}); err != nil {
		t.Fatalf("record failure: %v", err)
	}
	snapshot := store.ExportState()
	if err := store.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if len(store.List()) != 0 || len(store.Failures()) != 0 {
		t.Fatalf("expected cleared state")
	}
	store.ImportState(snapshot)
	if len(store.List()) != 2 || len(store.Failures()) != 1 {
		t.Fatalf("expected restored state")
	}
}
