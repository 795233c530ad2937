package record

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"multipatch/internal/record/block"
	"multipatch/pkg/domain"
)

// Old-format experiments always declare eight electrodes.
const summaryElectrodes = 8

var (
	qcTokenRe    = regexp.MustCompile(`^(\d+)([+/\-?])$`)
	connectionRe = regexp.MustCompile(`^(\d+)\s*->\s*(\d+)\s*(\??)\s*(.*)$`)
)

// ParseSummary populates a registry from one old-format experiment entry.
//
// The Labeling and Connections sections are required; Cell QC, Conditions,
// "Region <name>" and "Site path <path>" are optional.
func ParseSummary(entry *block.Entry) (*Registry, error) {
	reg := NewRegistry()
	for i := 1; i <= summaryElectrodes; i++ {
		reg.AddElectrode(&domain.Electrode{ID: i, ADChannel: i - 1, Cell: domain.NewCell(i)})
	}

	haveLabels, haveConnections := false, false
	for _, ch := range entry.Children {
		var err error
		switch {
		case ch.Text == "Labeling":
			err = parseLabeling(reg, ch)
			haveLabels = true
		case ch.Text == "Cell QC":
			err = parseQC(reg, ch)
		case ch.Text == "Connections":
			err = parseConnections(reg, ch)
			haveConnections = true
		case ch.Text == "Conditions":
			continue
		case strings.HasPrefix(ch.Text, "Region "):
			if len(ch.Children) > 0 {
				err = domain.MalformedRecordError{Section: "Region", Line: ch.Text, Reason: "entry must not have children"}
				break
			}
			reg.Region = strings.TrimSpace(strings.TrimPrefix(ch.Text, "Region "))
		case strings.HasPrefix(ch.Text, "Site path "):
			err = parseSitePath(reg, entry, ch)
		default:
			err = domain.MalformedRecordError{Section: "experiment", Line: ch.Text, Reason: "invalid experiment entry"}
		}
		if err != nil {
			return nil, fmt.Errorf("parse %s for experiment %s: %w", ch.Text, entry, err)
		}
	}
	if !haveLabels {
		return nil, fmt.Errorf("experiment %s: %w", entry, domain.MalformedRecordError{Section: "Labeling", Reason: "section missing"})
	}
	if !haveConnections {
		return nil, fmt.Errorf("experiment %s: %w", entry, domain.MalformedRecordError{Section: "Connections", Reason: "section missing"})
	}
	return reg, nil
}

func parseSitePath(reg *Registry, entry, ch *block.Entry) error {
	if len(ch.Children) > 0 {
		return domain.MalformedRecordError{Section: "Site path", Line: ch.Text, Reason: "entry must not have children"}
	}
	rel := strings.TrimSpace(strings.TrimPrefix(ch.Text, "Site path "))
	p, err := filepath.Abs(filepath.Join(filepath.Dir(entry.File), rel))
	if err != nil {
		return err
	}
	if st, err := os.Stat(p); err != nil || !st.IsDir() {
		return domain.ResourceMissingError{Resource: "site path", Location: p}
	}
	reg.SitePath = p
	return nil
}

// parseLabeling reads lines like "sim1: 1+ 2- 3x 4x+ 5+? 6?".
func parseLabeling(reg *Registry, section *block.Entry) error {
	for _, ch := range section.Children {
		fields := strings.Fields(ch.Text)
		if len(fields) == 0 {
			return domain.MalformedRecordError{Section: "Labeling", Line: ch.Text, Reason: "empty line"}
		}
		name := fields[0]
		if !strings.HasSuffix(name, ":") && len(fields) > 1 {
			return domain.MalformedRecordError{Section: "Labeling", Line: ch.Text, Reason: "expected \"<label>:\""}
		}
		name = strings.TrimSuffix(name, ":")
		if !validLabelingName(name) {
			return domain.MalformedRecordError{Section: "Labeling", Line: ch.Text, Reason: fmt.Sprintf("invalid label or cre type %q", name)}
		}
		tokens := fields[1:]
		if len(tokens) == 0 || (len(tokens) == 1 && tokens[0] == "?") {
			continue
		}
		for _, tok := range tokens {
			id, mk, err := ParseCellMarker(tok)
			if err != nil {
				return domain.MalformedRecordError{Section: "Labeling", Line: ch.Text, Reason: fmt.Sprintf("invalid label record %q", tok)}
			}
			cell, ok := reg.Cell(id)
			if !ok {
				return domain.MissingReferenceError{Section: "Labeling", CellID: id}
			}
			cell.RawLabels[name] = mk.Raw()
			switch {
			case domain.IsHumanLayerLabel(name):
				// positive marks the layer the cell was targeted in
				if mk.Sign == domain.Positive {
					cell.TargetLayer = domain.NormalizeLayer(strings.ToUpper(name[len("human_l"):]))
				}
			case domain.IsLegacyLayerLabel(name):
				cell.TargetLayer = domain.NormalizeLayer(strings.TrimSuffix(strings.TrimPrefix(name, "L"), "pyr"))
			default:
				if _, dup := cell.Labels[name]; dup {
					return domain.MalformedRecordError{Section: "Labeling", Line: ch.Text, Reason: fmt.Sprintf("duplicate %s label for cell %d", name, id)}
				}
				cell.Labels[name] = mk.Sign
			}
		}
	}
	return nil
}

func validLabelingName(name string) bool {
	return domain.IsMarkerLabel(name) ||
		domain.IsCreType(name) ||
		domain.IsHumanLayerLabel(name) ||
		domain.IsLegacyLayerLabel(name)
}

// parseQC reads lines like "Holding: 1- 2+ 3? 6/" where + and / pass, - fails and ? is unknown.
func parseQC(reg *Registry, section *block.Entry) error {
	for _, ch := range section.Children {
		fields := strings.Fields(ch.Text)
		if len(fields) == 0 {
			return domain.MalformedRecordError{Section: "Cell QC", Line: ch.Text, Reason: "empty line"}
		}
		key := strings.TrimSuffix(fields[0], ":")
		if key != "Holding" && key != "Access" && key != "Spiking" {
			return domain.MalformedRecordError{Section: "Cell QC", Line: ch.Text, Reason: "invalid cell QC line"}
		}
		for _, tok := range fields[1:] {
			m := qcTokenRe.FindStringSubmatch(tok)
			if m == nil {
				return domain.MalformedRecordError{Section: "Cell QC", Line: ch.Text, Reason: fmt.Sprintf("invalid cell QC string %q", tok)}
			}
			id, _ := strconv.Atoi(m[1])
			cell, ok := reg.Cell(id)
			if !ok {
				return domain.MissingReferenceError{Section: "Cell QC", CellID: id}
			}
			val := QCValue(m[2])
			switch key {
			case "Holding":
				cell.HoldingQC = val
			case "Access":
				cell.AccessQC = val
			case "Spiking":
				cell.SpikingQC = val
			}
		}
	}
	return nil
}

// QCValue maps a QC symbol to a call; anything other than + / - is unknown.
func QCValue(sym string) domain.TriState {
	switch sym {
	case "+", "/":
		return domain.Pass
	case "-":
		return domain.Fail
	default:
		return domain.Unknown
	}
}

// parseConnections reads lines like "1 -> 2" or "3 -> 4 ? unclear"; questionable
// connections are dropped.
func parseConnections(reg *Registry, section *block.Entry) error {
	reg.HasConnections = true
	if len(section.Children) == 0 || section.Children[0].Text == "None" {
		return nil
	}
	for _, ch := range section.Children {
		m := connectionRe.FindStringSubmatch(strings.TrimSpace(ch.Text))
		if m == nil {
			return domain.MalformedRecordError{Section: "Connections", Line: ch.Text, Reason: "invalid connection"}
		}
		if m[3] == "?" {
			continue
		}
		pre, _ := strconv.Atoi(m[1])
		post, _ := strconv.Atoi(m[2])
		for _, id := range []int{pre, post} {
			if _, ok := reg.Cell(id); !ok {
				return domain.MissingReferenceError{Section: "Connections", CellID: id}
			}
		}
		reg.AddConnection(domain.Pair{Pre: pre, Post: post})
	}
	return nil
}
