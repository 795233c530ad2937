package core

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"multipatch/internal/observability"
	"multipatch/pkg/domain"
)

func TestLoadSummaryExperiment(t *testing.T) {
	f := newSite(t, t.TempDir(), summaryText)
	writeFile(t, filepath.Join(f.sitePath, "site.mosaic"), mosaicText)
	tracer := observability.NewJSONTracer(nil)
	e, err := Load(context.Background(), loadSummary(t, f.summary), Options{Tracer: tracer})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if e.Stage() != StageReady {
		t.Fatalf("expected ready experiment, got %s", e.Stage())
	}
	if len(tracer.Entries()) == 0 {
		t.Fatalf("expected load to be traced")
	}
	if got := e.CreTypes(); !reflect.DeepEqual(got, []string{"sst", "pvalb", "unknown"}) {
		t.Fatalf("unexpected cre types %v", got)
	}
	if got := e.Labels(); !reflect.DeepEqual(got, []string{"biocytin"}) {
		t.Fatalf("unexpected labels %v", got)
	}
	if got := e.TargetLayers(); !reflect.DeepEqual(got, []string{"", "2/3"}) {
		t.Fatalf("unexpected target layers %v", got)
	}
	if e.Region() != "ALM" {
		t.Fatalf("unexpected region %q", e.Region())
	}
	if path, err := e.Path(); err != nil || path != f.sitePath {
		t.Fatalf("unexpected path %s %v", path, err)
	}
	if uid, err := e.UID(); err != nil || uid != siteTimestamp {
		t.Fatalf("unexpected uid %s %v", uid, err)
	}
	want := "<Experiment 2017.03.09-1-1 (" + f.summary + ":2) uid=" + siteTimestamp + ">"
	if e.String() != want {
		t.Fatalf("unexpected string %q, want %q", e.String(), want)
	}

	if e.NConnectionsProbed() != 27 {
		t.Fatalf("expected 27 probed pairs, got %d", e.NConnectionsProbed())
	}
	conns, ok := e.Connections()
	if !ok || !reflect.DeepEqual(conns, []domain.Pair{{Pre: 1, Post: 2}}) {
		t.Fatalf("unexpected connections %v", conns)
	}
	calls, _ := e.ConnectionCalls()
	if len(calls) != 3 {
		t.Fatalf("expected questionable connection dropped from calls, got %v", calls)
	}
	if _, ok := e.Gaps(); ok {
		t.Fatalf("summary records declare no gap list")
	}
	n, ok := e.NConnections()
	if !ok || n != 1 {
		t.Fatalf("expected one connection, got %d", n)
	}

	sum, _ := e.Summary()
	key := SummaryKey{Pre: TypeKey{Layer: "2/3", CreType: "sst"}, Post: TypeKey{Layer: "2/3", CreType: "pvalb"}}
	entry := sum[key]
	if entry == nil || entry.Connected != 1 || entry.ConnectedDistances[0] != 5 {
		t.Fatalf("unexpected summary entry %+v", entry)
	}
}

func TestConnectivityInvariants(t *testing.T) {
	f := newSite(t, t.TempDir(), summaryText)
	e, err := Load(context.Background(), loadSummary(t, f.summary), Options{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	probed := pairSet(e.ConnectionsProbed())
	for p := range probed {
		if p.Pre == p.Post {
			t.Fatalf("self pair %v probed", p)
		}
	}
	conns, _ := e.Connections()
	for _, p := range conns {
		if !probed[p] {
			t.Fatalf("connection %v not probed", p)
		}
	}
	sum, _ := e.Summary()
	total := 0
	for _, s := range sum {
		total += s.Connected + s.Unconnected
		if len(s.ConnectedDistances) != s.Connected || len(s.UnconnectedDistances) != s.Unconnected {
			t.Fatalf("distance counts disagree with %+v", s)
		}
	}
	if total != e.NConnectionsProbed() {
		t.Fatalf("summary covers %d pairs, probed %d", total, e.NConnectionsProbed())
	}
	if !probed[domain.Pair{Pre: 1, Post: 2}] {
		t.Fatalf("expected 1->2 probed")
	}
	if probed[domain.Pair{Pre: 1, Post: 5}] {
		t.Fatalf("post cell failing holding QC must not be probed")
	}
	if probed[domain.Pair{Pre: 4, Post: 1}] {
		t.Fatalf("pre cell failing spiking QC must not be probed")
	}
	if probed[domain.Pair{Pre: 1, Post: 6}] {
		t.Fatalf("post cell with unknown holding QC must not be probed")
	}

	// views are memoized and do not follow later registry changes
	c2, _ := e.Cell(2)
	c2.AccessQC = domain.Fail
	if !pairSet(e.ConnectionsProbed())[domain.Pair{Pre: 1, Post: 2}] {
		t.Fatalf("probed pairs must not be recomputed")
	}
}

func TestProbedRequiresDeterminateCreType(t *testing.T) {
	text := strings.Replace(summaryText, "sst: 1+ 2- 3- 4+ 5- 6- 7- 8-", "sst: 1+ 2- 3? 4+ 5- 6- 7- 8-", 1)
	text = strings.Replace(text, "pvalb: 1- 2+ 3- 4- 5- 6- 7- 8-", "pvalb: 1- 2+ 3? 4- 5- 6- 7- 8-", 1)
	f := newSite(t, t.TempDir(), text)
	e, err := Load(context.Background(), loadSummary(t, f.summary), Options{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	for _, p := range e.ConnectionsProbed() {
		if p.Pre == 3 || p.Post == 3 {
			t.Fatalf("cell without determinate cre type probed in %v", p)
		}
	}
}

func TestCreTypesFollowVocabularyOrder(t *testing.T) {
	text := strings.Replace(summaryText, "sst: 1+ 2- 3- 4+ 5- 6- 7- 8-", "sst: 1- 2- 3+ 4+ 5- 6- 7- 8-", 1)
	f := newSite(t, t.TempDir(), text)
	e, err := Load(context.Background(), loadSummary(t, f.summary), Options{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	var firstSeen []string
	for _, c := range e.Cells()[:3] {
		ct, _ := c.CreType()
		firstSeen = append(firstSeen, ct)
	}
	if !reflect.DeepEqual(firstSeen, []string{"unknown", "pvalb", "sst"}) {
		t.Fatalf("fixture should list cre types against vocabulary order, got %v", firstSeen)
	}
	got := e.CreTypes()
	if !reflect.DeepEqual(got, []string{"sst", "pvalb", "unknown"}) {
		t.Fatalf("expected vocabulary order without duplicates, got %v", got)
	}
}

func TestLoadFailures(t *testing.T) {
	cases := []struct {
		name string
		text string
		want error
	}{
		{
			name: "missing label coverage",
			text: strings.Replace(summaryText, "biocytin: 1+ 2+ 3+ 4+ 5+ 6+ 7+ 8+", "biocytin: 1+ 2+ 3+ 4+ 5+ 6+ 7+", 1),
			want: domain.ErrMalformedRecord,
		},
		{
			name: "missing cre component",
			text: strings.Replace(summaryText, "pvalb: 1- 2+ 3- 4- 5- 6- 7- 8-", "pvalb: 1- 2+ 3- 4- 5- 6- 7-", 1),
			want: domain.ErrMalformedRecord,
		},
		{
			name: "missing connections section",
			text: strings.Replace(summaryText, "    Connections\n", "    Conditions\n", 1),
			want: domain.ErrMalformedRecord,
		},
		{
			name: "unknown connection cell",
			text: strings.Replace(summaryText, "7 -> 1", "7 -> 9", 1),
			want: domain.ErrMissingReference,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newSite(t, t.TempDir(), tc.text)
			e, err := Load(context.Background(), loadSummary(t, f.summary), Options{})
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if e != nil {
				t.Fatalf("no experiment expected on failure")
			}
		})
	}
}

func TestMissingMosaicIsLogged(t *testing.T) {
	f := newSite(t, t.TempDir(), summaryText)
	log := &captureLogger{}
	e, err := Load(context.Background(), loadSummary(t, f.summary), Options{Logger: log})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(log.warns) != 1 {
		t.Fatalf("expected a position warning, got %v", log.warns)
	}
	if _, err := e.MosaicFile(); !errors.Is(err, domain.ErrResourceMissing) {
		t.Fatalf("expected missing mosaic, got %v", err)
	}
	if _, err := e.NWBFile(); !errors.Is(err, domain.ErrResourceMissing) {
		t.Fatalf("expected missing recording, got %v", err)
	}
	if _, err := e.UID(); err != nil {
		t.Fatalf("unrelated facts must still resolve: %v", err)
	}
	c1, _ := e.Cell(1)
	c2, _ := e.Cell(2)
	if !math.IsNaN(c1.Distance(c2)) {
		t.Fatalf("distance without positions must be NaN")
	}
}

func TestExternalFacts(t *testing.T) {
	f := newSite(t, t.TempDir(), summaryText)
	writeFile(t, filepath.Join(f.sitePath, "sync_source"), "/rigs/MP2/2017.03.09_000/slice_001/site_001")
	writeFile(t, filepath.Join(f.sitePath, "MultiPatch_1.log"), `{"event": "surface_depth_changed", "surface_depth": 0.002},`+"\n")
	e, err := Load(context.Background(), loadSummary(t, f.summary), Options{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if id, err := e.SpecimenID(); err != nil || id != "1234.05.01" {
		t.Fatalf("unexpected specimen id %q %v", id, err)
	}
	if temp, err := e.TargetTemperature(); err != nil || temp == nil || *temp != 22 {
		t.Fatalf("unexpected temperature %v %v", temp, err)
	}
	if rig, err := e.RigName(); err != nil || rig != "MP4" {
		t.Fatalf("expected rig from index, got %q %v", rig, err)
	}
	if orig, err := e.OriginalPath(); err != nil || !strings.Contains(orig, "/MP2/") {
		t.Fatalf("unexpected original path %q %v", orig, err)
	}
	if rel, err := e.RelativePath(); err != nil || rel != filepath.Join("2017.03.09_000", "slice_001", "site_001") {
		t.Fatalf("unexpected relative path %q %v", rel, err)
	}
	if depth, err := e.SurfaceDepth(); err != nil || depth == nil || *depth != 0.002 {
		t.Fatalf("unexpected surface depth %v %v", depth, err)
	}
	if _, err := e.LIMSRecord(context.Background()); !errors.Is(err, domain.ErrResourceMissing) {
		t.Fatalf("expected missing LIMS client, got %v", err)
	}
	if dt, err := e.Datetime(); err != nil || dt.Unix() != 1489093423 {
		t.Fatalf("unexpected datetime %v %v", dt, err)
	}
}

func TestSurfaceDepthErrors(t *testing.T) {
	f := newSite(t, t.TempDir(), summaryText)
	e, err := Load(context.Background(), loadSummary(t, f.summary), Options{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if depth, err := e.SurfaceDepth(); err != nil || depth != nil {
		t.Fatalf("expected no depth without a log, got %v %v", depth, err)
	}

	writeFile(t, filepath.Join(f.sitePath, "MultiPatch_1.log"), "")
	writeFile(t, filepath.Join(f.sitePath, "MultiPatch_2.log"), "")
	if _, err := e.SurfaceDepth(); !errors.Is(err, domain.ErrResourceMissing) {
		t.Fatalf("expected ambiguous logs reported, got %v", err)
	}

	g := newSite(t, t.TempDir(), strings.Replace(summaryText, "2017.03.09-1-1", "2017.03.11-1-1", 1))
	e, err = Load(context.Background(), loadSummary(t, g.summary), Options{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := e.SurfaceDepth(); !errors.Is(err, domain.ErrResourceMissing) {
		t.Fatalf("expected unresolved site path reported, got %v", err)
	}
}
