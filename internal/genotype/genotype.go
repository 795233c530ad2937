// Package genotype models transgenic mouse genotypes and predicts which driver
// lines a cell expresses from its observed reporter fluorescence.
package genotype

import (
	"fmt"
	"sort"
	"strings"

	"multipatch/pkg/domain"
)

// Driver describes a recombinase driver line.
type Driver struct {
	CreType     string
	Recombinase string
}

// Reporter describes a recombinase-dependent reporter line.
type Reporter struct {
	Protein  string
	Requires []string
}

// Drivers maps driver allele names (without parenthesized suffixes) to their cre type.
var Drivers = map[string]Driver{
	"Sst-IRES-Cre":       {"sst", "Cre"},
	"Sst-IRES-FlpO":      {"sst", "Flp"},
	"Pvalb-IRES-Cre":     {"pvalb", "Cre"},
	"Pvalb-T2A-CreERT2":  {"pvalb", "Cre"},
	"Pvalb-T2A-FlpO":     {"pvalb", "Flp"},
	"Vip-IRES-Cre":       {"vip", "Cre"},
	"Ndnf-IRES2-dgCre":   {"ndnf", "Cre"},
	"Chat-IRES-Cre-neo":  {"chat", "Cre"},
	"Htr3a-Cre_NO152":    {"htr3a", "Cre"},
	"Nos1-CreERT2":       {"nos1", "Cre"},
	"Chrna2-Cre_OE25":    {"chrna2", "Cre"},
	"Penk-IRES2-Cre-neo": {"penk", "Cre"},
	"Tlx3-Cre_PL56":      {"tlx3", "Cre"},
	"Sim1-Cre_KJ18":      {"sim1", "Cre"},
	"Fam84b-T2A-FlpO":    {"fam84b", "Flp"},
	"Rorb-IRES2-Cre":     {"rorb", "Cre"},
	"Ntsr1-Cre_GN220":    {"ntsr1", "Cre"},
	"Ctgf-T2A-dgCre":     {"ctgf", "Cre"},
	"Glt25d2-Cre_NF107":  {"glt25d2", "Cre"},
	"Cux2-CreERT2":       {"cux2", "Cre"},
	"Nr5a1-Cre":          {"nr5a1", "Cre"},
	"Rbp4-Cre_KL100":     {"rbp4", "Cre"},
	"Slc17a8-IRES2-Cre":  {"slc17a8", "Cre"},
}

// Reporters maps reporter allele names to the fluorophore they express.
var Reporters = map[string]Reporter{
	"Ai14":               {"tdTomato", []string{"Cre"}},
	"Ai65":               {"tdTomato", []string{"Cre", "Flp"}},
	"Ai65F":              {"tdTomato", []string{"Flp"}},
	"Ai139":              {"EGFP", []string{"Cre"}},
	"Ai140":              {"EGFP", []string{"Cre"}},
	"Snap25-LSL-F2A-GFP": {"EGFP", []string{"Cre"}},
	"RCL-H2B-GFP":        {"EGFP", []string{"Cre"}},
	"Ai3":                {"EYFP", []string{"Cre"}},
}

// Genotype is a parsed genotype string such as
// "Sst-IRES-Cre/wt;Pvalb-T2A-FlpO/wt;Ai65(RCFL-tdT)/wt".
type Genotype struct {
	Name      string
	drivers   []string
	reporters []string
	// driverColors maps each cre type to the colors its recombinase can turn on.
	driverColors map[string][]string
}

// Parse reads a genotype string. Unrecognized alleles and wild type are ignored.
func Parse(name string) (*Genotype, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.InvalidConfigurationError{Field: "genotype", Reason: "empty genotype string"}
	}
	g := &Genotype{Name: name, driverColors: make(map[string][]string)}
	for _, locus := range strings.Split(name, ";") {
		for _, allele := range strings.Split(locus, "/") {
			base := alleleBase(allele)
			if base == "" || base == "wt" {
				continue
			}
			if _, ok := Drivers[base]; ok && !contains(g.drivers, base) {
				g.drivers = append(g.drivers, base)
			}
			if _, ok := Reporters[base]; ok && !contains(g.reporters, base) {
				g.reporters = append(g.reporters, base)
			}
		}
	}

	supplied := map[string]bool{}
	for _, d := range g.drivers {
		supplied[Drivers[d].Recombinase] = true
	}
	for _, d := range g.drivers {
		drv := Drivers[d]
		colors := g.driverColors[drv.CreType]
		for _, r := range g.reporters {
			rep := Reporters[r]
			if !contains(rep.Requires, drv.Recombinase) || !allSupplied(rep.Requires, supplied) {
				continue
			}
			color, ok := domain.Fluorophores[rep.Protein]
			if !ok {
				return nil, domain.InvalidConfigurationError{Field: "genotype", Reason: fmt.Sprintf("reporter %s has no known color", r)}
			}
			if !contains(colors, color) {
				colors = append(colors, color)
			}
		}
		g.driverColors[drv.CreType] = colors
	}
	return g, nil
}

func alleleBase(allele string) string {
	allele = strings.TrimSpace(allele)
	if i := strings.IndexByte(allele, '('); i >= 0 {
		allele = allele[:i]
	}
	return strings.TrimSpace(allele)
}

// DriverLines returns the cre types of the genotype's drivers in vocabulary order.
func (g *Genotype) DriverLines() []string {
	out := make([]string, 0, len(g.driverColors))
	for ct := range g.driverColors {
		out = append(out, ct)
	}
	domain.SortByVocabulary(out, domain.CreTypes)
	return out
}

// Colors returns every color the genotype can express.
func (g *Genotype) Colors() []string {
	var out []string
	for _, colors := range g.driverColors {
		for _, c := range colors {
			if !contains(out, c) {
				out = append(out, c)
			}
		}
	}
	sort.Strings(out)
	return out
}

// PredictDriverExpression maps observed colors to a call per driver line: any
// mapped color positive means expressed, all mapped colors negative means not
// expressed, anything else is unknown.
func (g *Genotype) PredictDriverExpression(colors map[string]domain.TriState) map[string]domain.TriState {
	out := make(map[string]domain.TriState, len(g.driverColors))
	for ct, mapped := range g.driverColors {
		call := domain.Unknown
		negatives := 0
		for _, c := range mapped {
			switch colors[c] {
			case domain.Positive:
				call = domain.Positive
			case domain.Negative:
				negatives++
			}
		}
		if call != domain.Positive && len(mapped) > 0 && negatives == len(mapped) {
			call = domain.Negative
		}
		out[ct] = call
	}
	return out
}

func (g *Genotype) String() string { return g.Name }

func allSupplied(required []string, supplied map[string]bool) bool {
	for _, r := range required {
		if !supplied[r] {
			return false
		}
	}
	return true
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
