package core

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
)

const summaryText = `# curated by hand
2017.03.09-1-1
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
        2 -> 5
        3 -> 4 ?
        7 -> 1
    Region ALM
`

const mosaicText = `{"items": [{"type": "MarkersCanvasItem", "markers": [["Cell1", [0, 0, 0]], ["Cell2", [3, 4, 0]]]}]}`

const siteTimestamp = "1489093423.85"

type fixture struct {
	root     string
	summary  string
	sitePath string
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// newSite lays out a day/slice/site tree with index files under root.
func newSite(t *testing.T, root, summary string) fixture {
	t.Helper()
	sitePath := filepath.Join(root, "2017.03.09_000", "slice_001", "site_001")
	writeFile(t, filepath.Join(sitePath, ".index"), ".:\n    __timestamp__: "+siteTimestamp+"\n")
	writeFile(t, filepath.Join(filepath.Dir(sitePath), ".index"), ".:\n    specimen_ID: ' 1234.05.01 '\n")
	writeFile(t, filepath.Join(filepath.Dir(filepath.Dir(sitePath)), ".index"), ".:\n    temperature: 'RT'\n    rig_name: 'MP4'\n")
	f := fixture{root: root, sitePath: sitePath}
	if summary != "" {
		f.summary = filepath.Join(root, "summary.txt")
		writeFile(t, f.summary, summary)
	}
	return f
}

func loadSummary(t *testing.T, path string) SummaryLoader {
	t.Helper()
	loaders, err := ReadSummary(path)
	if err != nil {
		t.Fatalf("read summary: %v", err)
	}
	if len(loaders) != 1 {
		t.Fatalf("expected one experiment entry, got %d", len(loaders))
	}
	return loaders[0]
}

type captureLogger struct {
	mu    sync.Mutex
	warns []string
}

func (c *captureLogger) Debug(string, ...any) {}
func (c *captureLogger) Info(string, ...any)  {}
func (c *captureLogger) Warn(msg string, _ ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.warns = append(c.warns, msg)
}
func (c *captureLogger) Error(string, ...any) {}

func ptr(v float64) *float64 { return &v }
