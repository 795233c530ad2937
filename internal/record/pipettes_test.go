package record

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"multipatch/pkg/domain"
)

const pipettesYAML = `
3:
  patch_start: 10.5
  patch_stop: 20.0
  ad_channel: 2
  got_data: true
  target_layer: "2/3"
  internal_dye: AF488
  cell_labels:
    biocytin: "+"
    red: "+"
    green: "-"
    blue: ""
  cell_qc:
    holding: "+"
    access: "/"
    spiking: "?"
  synapse_to: [1, "2?"]
1:
  ad_channel: 0
  got_data: true
  target_layer: "5"
  internal_dye: Cascade Blue
  cell_labels:
    red: "x"
    blue: "+"
  gap_to: ["3"]
2:
  ad_channel: 1
  got_data: false
`

func TestParsePipettesOrderAndFields(t *testing.T) {
	pips, err := ParsePipettes([]byte(pipettesYAML), "pipettes.yml")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(pips) != 3 || pips[0].ID != 3 || pips[1].ID != 1 || pips[2].ID != 2 {
		t.Fatalf("document order not preserved: %+v", pips)
	}
	p := pips[0]
	if p.PatchStart == nil || *p.PatchStart != 10.5 || p.ADChannel != 2 || p.TargetLayer != "2/3" {
		t.Fatalf("unexpected pipette %+v", p)
	}
	if p.Labels["biocytin"] != domain.Positive || p.Colors["red"] != domain.Positive || p.Colors["green"] != domain.Negative {
		t.Fatalf("unexpected labels %+v colors %+v", p.Labels, p.Colors)
	}
	if _, ok := p.Colors["blue"]; ok {
		t.Fatalf("empty label value must be skipped")
	}
	if p.QC == nil || p.QC.Holding != domain.Pass || p.QC.Access != domain.Pass || p.QC.Spiking != domain.Unknown {
		t.Fatalf("unexpected QC %+v", p.QC)
	}
	if len(p.SynapseTo) != 1 || p.SynapseTo[0] != 1 {
		t.Fatalf("tentative synapse not dropped: %v", p.SynapseTo)
	}
	if pips[1].QC != nil || pips[1].Colors["red"] != domain.Unknown {
		t.Fatalf("unexpected second pipette %+v", pips[1])
	}
	if pips[2].GotData {
		t.Fatalf("expected pipette without data")
	}
}

func TestBuildRegistry(t *testing.T) {
	pips, err := ParsePipettes([]byte(pipettesYAML), "pipettes.yml")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	derived := 0
	reg, err := BuildRegistry(pips, PipetteHooks{
		PredictDrivers: func(colors map[string]domain.TriState) map[string]domain.TriState {
			return map[string]domain.TriState{"sst": colors["red"], "biocytin": domain.Negative}
		},
		DeriveQC: func(ch int) (QCRecord, error) {
			derived++
			if ch != 0 {
				t.Fatalf("unexpected channel %d", ch)
			}
			return QCRecord{Holding: domain.Pass, Access: domain.Pass, Spiking: domain.Pass}, nil
		},
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(reg.Electrodes) != 3 || reg.Len() != 2 {
		t.Fatalf("expected 3 electrodes and 2 cells, got %d/%d", len(reg.Electrodes), reg.Len())
	}
	if ids := reg.CellIDs(); ids[0] != 3 || ids[1] != 1 {
		t.Fatalf("unexpected cell order %v", ids)
	}
	c3, _ := reg.Cell(3)
	if c3.Labels["af488"] != domain.Negative {
		t.Fatalf("dye fill should follow the green call, got %v", c3.Labels["af488"])
	}
	if c3.Labels["sst"] != domain.Positive || c3.Labels["biocytin"] != domain.Positive {
		t.Fatalf("prediction must not overwrite explicit labels: %+v", c3.Labels)
	}
	c1, _ := reg.Cell(1)
	if c1.Labels["cascade_blue"] != domain.Positive || c1.Labels["sst"] != domain.Unknown {
		t.Fatalf("unexpected cell 1 labels %+v", c1.Labels)
	}
	if derived != 1 || c1.PassQC() != domain.Pass {
		t.Fatalf("expected QC derived once for cell 1, got %d", derived)
	}
	if len(reg.Connections) != 1 || reg.Connections[0] != (domain.Pair{Pre: 3, Post: 1}) {
		t.Fatalf("unexpected connections %v", reg.Connections)
	}
	if !reg.HasGaps || len(reg.Gaps) != 1 || reg.Gaps[0] != (domain.Pair{Pre: 1, Post: 3}) {
		t.Fatalf("unexpected gaps %v", reg.Gaps)
	}
}

func TestPipetteErrors(t *testing.T) {
	cases := []struct {
		name string
		doc  string
		want error
	}{
		{"numeric target layer", "1: {ad_channel: 0, got_data: true, target_layer: 5}", domain.ErrInvalidConfiguration},
		{"bad label", "1: {ad_channel: 0, got_data: true, cell_labels: {purple: '+'}}", domain.ErrMalformedRecord},
		{"bad marker", "1: {ad_channel: 0, got_data: true, cell_labels: {red: 'y'}}", domain.ErrMalformedRecord},
		{"bad qc", "1: {ad_channel: 0, got_data: true, cell_qc: {holding: 'ok'}}", domain.ErrMalformedRecord},
		{"bad post id", "1: {ad_channel: 0, got_data: true, synapse_to: ['two']}", domain.ErrMalformedRecord},
		{"missing got_data", "1: {ad_channel: 0}", domain.ErrMalformedRecord},
		{"missing ad_channel", "1: {got_data: false}", domain.ErrMalformedRecord},
		{"bad id", "one: {ad_channel: 0, got_data: false}", domain.ErrMalformedRecord},
	}
	for _, tc := range cases {
		if _, err := ParsePipettes([]byte(tc.doc), "p.yml"); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestBuildRegistryErrors(t *testing.T) {
	pips, err := ParsePipettes([]byte("1: {ad_channel: 0, got_data: true, synapse_to: [4]}"), "p.yml")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, err := BuildRegistry(pips, PipetteHooks{}); !errors.Is(err, domain.ErrMissingReference) {
		t.Fatalf("expected missing reference, got %v", err)
	}
	pips, err = ParsePipettes([]byte("1: {ad_channel: 0, got_data: true, internal_dye: Ink}"), "p.yml")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, err := BuildRegistry(pips, PipetteHooks{}); !errors.Is(err, domain.ErrInvalidConfiguration) {
		t.Fatalf("expected invalid configuration, got %v", err)
	}
}

func TestReadPipettesMissing(t *testing.T) {
	_, err := ReadPipettes(filepath.Join(t.TempDir(), PipettesFile))
	if !errors.Is(err, domain.ErrResourceMissing) {
		t.Fatalf("expected resource missing, got %v", err)
	}
	path := filepath.Join(t.TempDir(), PipettesFile)
	if err := os.WriteFile(path, []byte(pipettesYAML), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if pips, err := ReadPipettes(path); err != nil || len(pips) != 3 {
		t.Fatalf("read: %v", err)
	}
}
