package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"multipatch/internal/core"
	"multipatch/internal/infra/persistence/memory"
	"multipatch/pkg/domain"
)

const summaryText = `2017.03.09-1-1
    Labeling
        biocytin: 1+ 2+ 3+ 4+ 5+ 6+ 7+ 8+
        sst: 1+ 2- 3- 4+ 5- 6- 7- 8-
        pvalb: 1- 2+ 3- 4- 5- 6- 7- 8-
        L23pyr: 1 2 3 4
    Cell QC
        Holding: 1+ 2+ 3+ 4+ 5- 6? 7+ 8+
        Access: 1+ 2+ 3/ 4+ 5+ 6+ 7+ 8+
        Spiking: 1+ 2+ 3+ 4- 5+ 6+ 7- 8-
    Connections
        1 -> 2
        7 -> 1
2017.03.10-1-1
    Labeling
        sst: 1+
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func loaders(t *testing.T) []core.Loader {
	t.Helper()
	root := t.TempDir()
	site := filepath.Join(root, "2017.03.09_000", "slice_001", "site_001")
	writeFile(t, filepath.Join(site, ".index"), ".:\n    __timestamp__: 1489093423.85\n")
	writeFile(t, filepath.Join(root, "summary.txt"), summaryText)
	entries, err := core.ReadSummary(filepath.Join(root, "summary.txt"))
	if err != nil {
		t.Fatalf("read summary: %v", err)
	}
	out := make([]core.Loader, 0, len(entries))
	for _, e := range entries {
		out = append(out, e)
	}
	return out
}

func TestBuildRecordsLoadsAndFailures(t *testing.T) {
	store := memory.NewStore()
	c := New(store, nil)
	report, err := c.Build(context.Background(), loaders(t), core.Options{}, 4)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if report.Loaded != 1 || report.Failed != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	rec, ok := store.Get("1489093423.85")
	if !ok {
		t.Fatalf("expected record stored")
	}
	if rec.Region != "V1" || rec.Probed == 0 {
		t.Fatalf("unexpected record %+v", rec)
	}
	if len(rec.Connections) != 1 || rec.Connections[0] != (domain.Pair{Pre: 1, Post: 2}) {
		t.Fatalf("unexpected connections %v", rec.Connections)
	}
	failures := store.Failures()
	if len(failures) != 1 || failures[0].Error == "" {
		t.Fatalf("unexpected failures %+v", failures)
	}
}

func TestSelect(t *testing.T) {
	c := New(memory.NewStore(), nil)
	if _, err := c.Build(context.Background(), loaders(t), core.Options{}, 1); err != nil {
		t.Fatalf("build: %v", err)
	}
	cases := []struct {
		name      string
		filter    Filter
		records   int
		connected int
	}{
		{"sst to pvalb", Filter{PreCreType: "sst", PostCreType: "pvalb"}, 1, 1},
		{"layer and class", Filter{PreLayer: "2/3", PreCreType: "sst", PostLayer: "2/3", PostCreType: "pvalb"}, 1, 1},
		{"connected only", Filter{PreCreType: "pvalb", ConnectedOnly: true}, 0, 0},
		{"region mismatch", Filter{Region: "ALM"}, 0, 0},
		{"wildcard", Filter{}, 1, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := c.Select(tc.filter)
			if len(got) != tc.records {
				t.Fatalf("expected %d records, got %d", tc.records, len(got))
			}
			if tc.records == 0 {
				return
			}
			connected, _ := got[0].Totals()
			if connected != tc.connected {
				t.Fatalf("expected %d connected, got %d", tc.connected, connected)
			}
		})
	}
}

func TestParseClass(t *testing.T) {
	cases := map[string][2]string{
		"2/3:sst": {"2/3", "sst"},
		"sst":     {"", "sst"},
		"5:":      {"5", ""},
	}
	for in, want := range cases {
		layer, ct := ParseClass(in)
		if layer != want[0] || ct != want[1] {
			t.Fatalf("ParseClass(%q) = %q, %q", in, layer, ct)
		}
	}
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()
	s, err := OpenStore(ctx, StoreConfig{Driver: StorageMemory})
	if err != nil {
		t.Fatalf("memory: %v", err)
	}
	_ = s.Close()

	path := filepath.Join(t.TempDir(), "catalog.db")
	s, err = OpenStore(ctx, StoreConfig{Driver: StorageSQLite, SQLitePath: path})
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	_ = s.Close()
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected sqlite file: %v", err)
	}

	if _, err := OpenStore(ctx, StoreConfig{Driver: "bolt"}); !errors.Is(err, domain.ErrInvalidConfiguration) {
		t.Fatalf("expected invalid configuration, got %v", err)
	}
}
