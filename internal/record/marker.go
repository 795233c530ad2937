// Package record parses experiment metadata records: the legacy indented
// summary format and the per-site pipette YAML format.
package record

import (
	"regexp"
	"strconv"

	"multipatch/pkg/domain"
)

var (
	cellMarkerRe = regexp.MustCompile(`^(\d+)(x)?([+-])?(\?)?$`)
	markerRe     = regexp.MustCompile(`^(x)?([+-])?(\?)?$`)
)

// Marker is one scored label observation.
//
//	1+   reporter-positive and dye filled
//	2-   reporter-negative and dye filled
//	3x   no pipette tip found
//	4x+  not filled, but the tip touches a reporter-positive cell
//	5+?  looks positive, image unclear
//	6?   filled, type ambiguous
type Marker struct {
	Absent    bool
	Sign      domain.TriState
	Uncertain bool
}

// ParseCellMarker parses an old-format token "<id>[x][+|-][?]".
func ParseCellMarker(tok string) (int, Marker, error) {
	m := cellMarkerRe.FindStringSubmatch(tok)
	if m == nil {
		return 0, Marker{}, domain.MalformedRecordError{Section: "Labeling", Line: tok, Reason: "invalid label record"}
	}
	id, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, Marker{}, domain.MalformedRecordError{Section: "Labeling", Line: tok, Reason: err.Error()}
	}
	return id, markerFromGroups(m[2], m[3], m[4]), nil
}

// ParseMarker parses a pipette YAML label value "[x][+|-][?]".
func ParseMarker(value string) (Marker, error) {
	m := markerRe.FindStringSubmatch(value)
	if m == nil {
		return Marker{}, domain.MalformedRecordError{Section: "cell_labels", Line: value, Reason: "invalid label record"}
	}
	return markerFromGroups(m[1], m[2], m[3]), nil
}

func markerFromGroups(absent, sign, uncertain string) Marker {
	mk := Marker{Absent: absent == "x", Uncertain: uncertain == "?"}
	switch sign {
	case "+":
		mk.Sign = domain.Positive
	case "-":
		mk.Sign = domain.Negative
	}
	return mk
}

// Raw renders the marker suffix as written, without the cell id.
func (m Marker) Raw() string {
	s := ""
	if m.Absent {
		s += "x"
	}
	if m.Sign.Known() {
		s += m.Sign.String()
	}
	if m.Uncertain {
		s += "?"
	}
	return s
}

// Color is the fluorescence call used for genotype prediction: unknown when the
// tip was not found or the call is uncertain.
func (m Marker) Color() domain.TriState {
	if m.Absent || m.Uncertain {
		return domain.Unknown
	}
	return domain.TriStateOf(m.Sign == domain.Positive)
}

// Label is the call stored for explicitly scored marker labels in pipette YAML.
func (m Marker) Label() domain.TriState {
	return domain.TriStateOf(m.Sign == domain.Positive)
}
