// Package domain defines the core entities, value types, vocabularies and error
// taxonomy shared by the multipatch experiment metadata packages.
package domain

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// TriState is a three-valued flag used for labels, fluorescence colors and QC calls.
// The zero value is Unknown.
type TriState int8

// Canonical tri-state values.
const (
	// Unknown means the observation was made but is indeterminate.
	Unknown TriState = iota
	// Positive marks a reporter-positive label or a passing QC call.
	Positive
	// Negative marks a reporter-negative label or a failing QC call.
	Negative
)

// QC aliases read better at QC call sites.
const (
	Pass = Positive
	Fail = Negative
)

// TriStateOf converts a boolean into a determinate TriState.
func TriStateOf(b bool) TriState {
	if b {
		return Positive
	}
	return Negative
}

// Known reports whether the value is determinate.
func (t TriState) Known() bool { return t == Positive || t == Negative }

// And returns the conjunction: any Negative wins, then any Unknown, else Positive.
func (t TriState) And(o TriState) TriState {
	switch {
	case t == Negative || o == Negative:
		return Negative
	case t == Positive && o == Positive:
		return Positive
	default:
		return Unknown
	}
}

func (t TriState) String() string {
	switch t {
	case Positive:
		return "+"
	case Negative:
		return "-"
	default:
		return "?"
	}
}

// Pair is an ordered (presynaptic, postsynaptic) cell id pair.
type Pair struct {
	Pre  int `json:"pre"`
	Post int `json:"post"`
}

func (p Pair) String() string { return fmt.Sprintf("%d->%d", p.Pre, p.Post) }

// Cell is a recorded neuron, identified by its pipette id within one experiment.
type Cell struct {
	ID          int
	TargetLayer string
	// RawLabels keeps the unparsed marker suffix per label ("x+?", "-", ...).
	RawLabels map[string]string
	// Labels holds evaluated labels; a missing key means "not evaluated".
	Labels    map[string]TriState
	HoldingQC TriState
	AccessQC  TriState
	SpikingQC TriState
	// Position is nil until loaded from the site mosaic.
	Position []float64
}

// NewCell returns an empty cell with initialized label maps.
func NewCell(id int) *Cell {
	return &Cell{
		ID:        id,
		RawLabels: make(map[string]string),
		Labels:    make(map[string]TriState),
	}
}

// PassQC is the conjunction of holding and access QC. Spiking QC is evaluated
// separately because it only matters for presynaptic cells.
func (c *Cell) PassQC() TriState {
	return c.HoldingQC.And(c.AccessQC)
}

// CreType classifies the cell by its driver labels. Positive drivers are joined
// by "," in vocabulary order; a cell negative for every evaluated driver is
// "unknown". ok is false when no driver label is determinate.
func (c *Cell) CreType() (string, bool) {
	var positives []string
	negative := false
	for label, v := range c.Labels {
		if IsMarkerLabel(label) {
			continue
		}
		switch v {
		case Positive:
			positives = append(positives, label)
		case Negative:
			negative = true
		}
	}
	if len(positives) > 0 {
		SortByVocabulary(positives, CreTypes)
		return strings.Join(positives, ","), true
	}
	if negative {
		return UnknownCreType, true
	}
	return "", false
}

// Distance returns the Euclidean distance between two cell positions, or NaN
// when either position is missing or their dimensions differ.
func (c *Cell) Distance(o *Cell) float64 {
	if c == nil || o == nil || len(c.Position) == 0 || len(c.Position) != len(o.Position) {
		return math.NaN()
	}
	var sum float64
	for i := range c.Position {
		d := c.Position[i] - o.Position[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

func (c *Cell) String() string { return fmt.Sprintf("<Cell %d>", c.ID) }

// Electrode is a declared pipette. Cell is nil when the pipette recorded nothing.
type Electrode struct {
	ID         int
	PatchStart *float64
	PatchStop  *float64
	ADChannel  int
	Cell       *Cell
}

// SortByVocabulary orders names by their index in vocab; names outside the
// vocabulary sort last, alphabetically.
func SortByVocabulary(names []string, vocab []string) {
	sort.SliceStable(names, func(i, j int) bool {
		a, b := indexOf(vocab, names[i]), indexOf(vocab, names[j])
		switch {
		case a >= 0 && b >= 0:
			return a < b
		case a >= 0:
			return true
		case b >= 0:
			return false
		default:
			return names[i] < names[j]
		}
	})
}

func indexOf(values []string, v string) int {
	for i, x := range values {
		if x == v {
			return i
		}
	}
	return -1
}
