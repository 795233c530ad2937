package record

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"multipatch/pkg/domain"
)

// PipettesFile is the per-site pipette metadata file name.
const PipettesFile = "pipettes.yml"

var postIDRe = regexp.MustCompile(`^(\d+)(\?)?$`)

// QCRecord holds the three per-cell QC calls.
type QCRecord struct {
	Holding domain.TriState
	Access  domain.TriState
	Spiking domain.TriState
}

// Pipette is one entry of a pipettes.yml document after grammar checks.
type Pipette struct {
	ID          int
	PatchStart  *float64
	PatchStop   *float64
	ADChannel   int
	GotData     bool
	TargetLayer string
	// Labels are the explicitly scored marker labels.
	Labels    map[string]domain.TriState
	RawLabels map[string]string
	// Colors are fluorescence observations used for genotype prediction.
	Colors      map[string]domain.TriState
	InternalDye string
	// QC is nil when the entry carries no cell_qc block.
	QC        *QCRecord
	SynapseTo []int
	GapTo     []int
	// HasSynapses and HasGaps report whether the list keys were present at all.
	HasSynapses bool
	HasGaps     bool
}

type rawPipette struct {
	PatchStart  *float64          `yaml:"patch_start"`
	PatchStop   *float64          `yaml:"patch_stop"`
	ADChannel   *int              `yaml:"ad_channel"`
	GotData     *bool             `yaml:"got_data"`
	TargetLayer yaml.Node         `yaml:"target_layer"`
	CellLabels  map[string]string `yaml:"cell_labels"`
	InternalDye string            `yaml:"internal_dye"`
	CellQC      map[string]string `yaml:"cell_qc"`
	SynapseTo   []yaml.Node       `yaml:"synapse_to"`
	GapTo       []yaml.Node       `yaml:"gap_to"`
}

// ReadPipettes parses the pipette metadata file at path.
func ReadPipettes(path string) ([]*Pipette, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ResourceMissingError{Resource: "pipette metadata", Location: path}
		}
		return nil, err
	}
	return ParsePipettes(data, path)
}

// ParsePipettes decodes a pipettes.yml document keeping the document order of pipettes.
func ParsePipettes(data []byte, file string) ([]*Pipette, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", file, domain.MalformedRecordError{Section: "pipettes", Reason: err.Error()})
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, domain.MalformedRecordError{Section: "pipettes", Reason: "expected a mapping of pipette id to metadata"}
	}
	out := make([]*Pipette, 0, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, val := root.Content[i], root.Content[i+1]
		id, err := strconv.Atoi(key.Value)
		if err != nil {
			return nil, domain.MalformedRecordError{Section: "pipettes", Line: key.Value, Reason: "pipette id must be an integer"}
		}
		var raw rawPipette
		if err := val.Decode(&raw); err != nil {
			return nil, domain.MalformedRecordError{Section: fmt.Sprintf("pipette %d", id), Reason: err.Error()}
		}
		p, err := raw.pipette(id)
		if err != nil {
			return nil, fmt.Errorf("pipette %d in %s: %w", id, file, err)
		}
		out = append(out, p)
	}
	return out, nil
}

func (r rawPipette) pipette(id int) (*Pipette, error) {
	section := fmt.Sprintf("pipette %d", id)
	if r.GotData == nil {
		return nil, domain.MalformedRecordError{Section: section, Reason: "got_data is required"}
	}
	if r.ADChannel == nil {
		return nil, domain.MalformedRecordError{Section: section, Reason: "ad_channel is required"}
	}
	p := &Pipette{
		ID:          id,
		PatchStart:  r.PatchStart,
		PatchStop:   r.PatchStop,
		ADChannel:   *r.ADChannel,
		GotData:     *r.GotData,
		InternalDye: r.InternalDye,
		Labels:      make(map[string]domain.TriState),
		RawLabels:   make(map[string]string),
		Colors:      make(map[string]domain.TriState),
	}
	if !p.GotData {
		return p, nil
	}

	switch {
	case r.TargetLayer.Kind == 0:
	case r.TargetLayer.Kind == yaml.ScalarNode && r.TargetLayer.ShortTag() == "!!str":
		p.TargetLayer = r.TargetLayer.Value
	case r.TargetLayer.Kind == yaml.ScalarNode && r.TargetLayer.ShortTag() == "!!null":
	default:
		return nil, domain.InvalidConfigurationError{Field: "target_layer", Reason: fmt.Sprintf("must be a string, not %q", r.TargetLayer.Value)}
	}

	for label, value := range r.CellLabels {
		if value == "" {
			continue
		}
		mk, err := ParseMarker(value)
		if err != nil {
			return nil, domain.MalformedRecordError{Section: "cell_labels", Line: label + ": " + value, Reason: "invalid label record"}
		}
		switch {
		case domain.IsMarkerLabel(label):
			p.Labels[label] = mk.Label()
			p.RawLabels[label] = mk.Raw()
		case domain.IsColor(label):
			p.Colors[label] = mk.Color()
			p.RawLabels[label] = mk.Raw()
		default:
			return nil, domain.MalformedRecordError{Section: "cell_labels", Line: label, Reason: "invalid label or fluorescent color"}
		}
	}

	if r.CellQC != nil {
		qc := &QCRecord{}
		for _, f := range []struct {
			key string
			dst *domain.TriState
		}{{"holding", &qc.Holding}, {"access", &qc.Access}, {"spiking", &qc.Spiking}} {
			v := r.CellQC[f.key]
			if len(v) > 1 || (v != "" && !strings.Contains("+/-?", v)) {
				return nil, domain.MalformedRecordError{Section: "cell_qc", Line: f.key + ": " + v, Reason: "invalid QC string"}
			}
			*f.dst = QCValue(v)
		}
		p.QC = qc
	}

	var err error
	if p.SynapseTo, err = postIDs("synapse_to", r.SynapseTo); err != nil {
		return nil, err
	}
	if p.GapTo, err = postIDs("gap_to", r.GapTo); err != nil {
		return nil, err
	}
	p.HasSynapses = r.SynapseTo != nil
	p.HasGaps = r.GapTo != nil
	return p, nil
}

// postIDs keeps definite postsynaptic ids; "<id>?" entries are tentative and dropped.
func postIDs(section string, nodes []yaml.Node) ([]int, error) {
	var out []int
	for _, n := range nodes {
		if n.Kind != yaml.ScalarNode {
			return nil, domain.MalformedRecordError{Section: section, Reason: "expected a cell id"}
		}
		m := postIDRe.FindStringSubmatch(n.Value)
		if m == nil || (n.ShortTag() != "!!int" && n.ShortTag() != "!!str") {
			return nil, domain.MalformedRecordError{Section: section, Line: n.Value, Reason: "expected a cell id"}
		}
		if m[2] == "?" {
			continue
		}
		id, _ := strconv.Atoi(m[1])
		out = append(out, id)
	}
	return out, nil
}

// PipetteHooks supplies the external facts the YAML format depends on.
type PipetteHooks struct {
	// PredictDrivers is set for mouse specimens.
	PredictDrivers func(colors map[string]domain.TriState) map[string]domain.TriState
	// DeriveQC computes QC for cells without a cell_qc block.
	DeriveQC func(adChannel int) (QCRecord, error)
}

// BuildRegistry turns parsed pipettes into a registry, applying dye fills,
// driver prediction and QC derivation per data-bearing cell.
func BuildRegistry(pipettes []*Pipette, hooks PipetteHooks) (*Registry, error) {
	reg := NewRegistry()
	for _, p := range pipettes {
		elec := &domain.Electrode{ID: p.ID, PatchStart: p.PatchStart, PatchStop: p.PatchStop, ADChannel: p.ADChannel}
		if !p.GotData {
			reg.AddElectrode(elec)
			continue
		}
		cell := domain.NewCell(p.ID)
		cell.TargetLayer = p.TargetLayer
		for k, v := range p.Labels {
			cell.Labels[k] = v
		}
		for k, v := range p.RawLabels {
			cell.RawLabels[k] = v
		}

		if p.InternalDye != "" {
			color, ok := domain.Fluorophores[p.InternalDye]
			marker, isDye := domain.DyeLabels[p.InternalDye]
			if !ok || !isDye {
				return nil, domain.InvalidConfigurationError{Field: "internal_dye", Reason: fmt.Sprintf("unknown dye %q for pipette %d", p.InternalDye, p.ID)}
			}
			if _, set := cell.Labels[marker]; !set {
				cell.Labels[marker] = p.Colors[color]
			}
		}

		if hooks.PredictDrivers != nil {
			for driver, call := range hooks.PredictDrivers(p.Colors) {
				if _, set := cell.Labels[driver]; !set {
					cell.Labels[driver] = call
				}
			}
		}

		if p.QC != nil {
			cell.HoldingQC, cell.AccessQC, cell.SpikingQC = p.QC.Holding, p.QC.Access, p.QC.Spiking
		} else if hooks.DeriveQC != nil {
			qc, err := hooks.DeriveQC(p.ADChannel)
			if err != nil {
				return nil, fmt.Errorf("derive QC for pipette %d: %w", p.ID, err)
			}
			cell.HoldingQC, cell.AccessQC, cell.SpikingQC = qc.Holding, qc.Access, qc.Spiking
		}

		elec.Cell = cell
		reg.AddElectrode(elec)
	}

	for _, p := range pipettes {
		if !p.GotData {
			continue
		}
		for _, post := range p.SynapseTo {
			if _, ok := reg.Cell(post); !ok {
				return nil, domain.MissingReferenceError{Section: "synapse_to", CellID: post}
			}
			reg.AddConnection(domain.Pair{Pre: p.ID, Post: post})
		}
		if p.HasSynapses {
			reg.HasConnections = true
		}
		for _, post := range p.GapTo {
			if _, ok := reg.Cell(post); !ok {
				return nil, domain.MissingReferenceError{Section: "gap_to", CellID: post}
			}
			reg.AddGap(domain.Pair{Pre: p.ID, Post: post})
		}
		if p.HasGaps {
			reg.HasGaps = true
		}
	}
	return reg, nil
}
