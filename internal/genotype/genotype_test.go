package genotype

import (
	"errors"
	"reflect"
	"testing"

	"multipatch/pkg/domain"
)

func TestParseSingleDriver(t *testing.T) {
	g, err := Parse("Sst-IRES-Cre/wt;Ai14(RCL-tdT)/wt")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := g.DriverLines(); !reflect.DeepEqual(got, []string{"sst"}) {
		t.Fatalf("unexpected drivers %v", got)
	}
	if got := g.Colors(); !reflect.DeepEqual(got, []string{"red"}) {
		t.Fatalf("unexpected colors %v", got)
	}
	cases := []struct {
		colors map[string]domain.TriState
		want   domain.TriState
	}{
		{map[string]domain.TriState{"red": domain.Positive}, domain.Positive},
		{map[string]domain.TriState{"red": domain.Negative}, domain.Negative},
		{map[string]domain.TriState{"red": domain.Unknown}, domain.Unknown},
		{map[string]domain.TriState{}, domain.Unknown},
	}
	for _, tc := range cases {
		if got := g.PredictDriverExpression(tc.colors)["sst"]; got != tc.want {
			t.Fatalf("colors %v: got %v want %v", tc.colors, got, tc.want)
		}
	}
}

func TestParseIntersectionalGenotype(t *testing.T) {
	g, err := Parse("Pvalb-T2A-FlpO/wt;Sst-IRES-Cre/wt;Ai65(RCFL-tdT)/wt;Ai140(TIT2L-GFP-ICL-tTA2)/wt")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := g.DriverLines(); !reflect.DeepEqual(got, []string{"sst", "pvalb"}) {
		t.Fatalf("unexpected drivers %v", got)
	}
	pred := g.PredictDriverExpression(map[string]domain.TriState{"red": domain.Negative, "green": domain.Positive})
	if pred["sst"] != domain.Positive {
		t.Fatalf("sst drives both reporters, expected positive: %v", pred)
	}
	if pred["pvalb"] != domain.Negative {
		t.Fatalf("pvalb only reaches red, expected negative: %v", pred)
	}
}

func TestParseIgnoresUnknownAlleles(t *testing.T) {
	g, err := Parse("Foo-Cre/wt;wt/wt")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(g.DriverLines()) != 0 || len(g.PredictDriverExpression(nil)) != 0 {
		t.Fatalf("expected no drivers for %s", g)
	}
	if _, err := Parse("  "); !errors.Is(err, domain.ErrInvalidConfiguration) {
		t.Fatalf("expected invalid configuration, got %v", err)
	}
}
