package domain

import "strings"

// UnknownCreType is reported for cells negative for every evaluated driver.
const UnknownCreType = "unknown"

// CreTypes is the global driver-line vocabulary; its order defines cre type sorting.
var CreTypes = []string{
	"sst", "pvalb", "vip", "ndnf", "chat", "htr3a", "nos1", "chrna2", "penk",
	"tlx3", "sim1", "fam84b", "rorb", "ntsr1", "ctgf", "glt25d2", "cux2", "nr5a1", "rbp4", "slc17a8",
	UnknownCreType,
}

// MarkerLabels are non-genetic labels (fills and dyes); their order defines label sorting.
var MarkerLabels = []string{"biocytin", "af488", "cascade_blue"}

// Colors are the fluorescence channels scored in pipette metadata.
var Colors = []string{"red", "green", "blue", "yellow"}

// Fluorophores maps reporter proteins and dyes to the color they are scored under.
var Fluorophores = map[string]string{
	"tdTomato":     "red",
	"EGFP":         "green",
	"GFP":          "green",
	"ZsGreen":      "green",
	"EYFP":         "yellow",
	"AF488":        "green",
	"af488":        "green",
	"Cascade Blue": "blue",
	"cascade_blue": "blue",
}

// DyeLabels maps internal dye names to the marker label recording the fill.
var DyeLabels = map[string]string{
	"AF488":        "af488",
	"af488":        "af488",
	"Cascade Blue": "cascade_blue",
	"cascade_blue": "cascade_blue",
}

// LegacyLayerLabels were used in old summaries to encode the target layer.
var LegacyLayerLabels = []string{"L1", "L23pyr", "L4pyr", "L5pyr", "L6pyr"}

// Layers lists the cortical layers recognised as targets.
var Layers = []string{"1", "2", "2/3", "3", "4", "5", "5a", "5b", "6"}

// IsCreType reports whether name is a known driver line.
func IsCreType(name string) bool { return indexOf(CreTypes, name) >= 0 }

// IsMarkerLabel reports whether name is a non-genetic marker label.
func IsMarkerLabel(name string) bool { return indexOf(MarkerLabels, name) >= 0 }

// IsColor reports whether name is a scored fluorescence color.
func IsColor(name string) bool { return indexOf(Colors, name) >= 0 }

// IsLegacyLayerLabel reports whether name is an old "L<n>pyr" style layer label.
func IsLegacyLayerLabel(name string) bool { return indexOf(LegacyLayerLabels, name) >= 0 }

// IsHumanLayerLabel reports whether name is an old "human_l<n>" layer label.
func IsHumanLayerLabel(name string) bool {
	return strings.HasPrefix(strings.ToLower(name), "human_l")
}

// CreTypeIndex returns the vocabulary position of the first component of a
// (possibly comma-joined) cre type, or -1.
func CreTypeIndex(creType string) int {
	first, _, _ := strings.Cut(creType, ",")
	return indexOf(CreTypes, first)
}

// NormalizeLayer maps the legacy "23" spelling to "2/3".
func NormalizeLayer(layer string) string {
	if layer == "23" {
		return "2/3"
	}
	return layer
}
