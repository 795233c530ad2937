package domain

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"testing"
)

func TestTriStateAnd(t *testing.T) {
	cases := []struct {
		a, b, want TriState
	}{
		{Positive, Positive, Positive},
		{Positive, Negative, Negative},
		{Unknown, Negative, Negative},
		{Positive, Unknown, Unknown},
		{Unknown, Unknown, Unknown},
	}
	for _, tc := range cases {
		if got := tc.a.And(tc.b); got != tc.want {
			t.Fatalf("%v AND %v = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestCellCreType(t *testing.T) {
	cases := []struct {
		name   string
		labels map[string]TriState
		want   string
		ok     bool
	}{
		{"single positive", map[string]TriState{"sst": Positive, "biocytin": Positive}, "sst", true},
		{"all negative", map[string]TriState{"sst": Negative, "pvalb": Negative}, UnknownCreType, true},
		{"indeterminate", map[string]TriState{"sst": Unknown, "biocytin": Positive}, "", false},
		{"no labels", map[string]TriState{}, "", false},
		{"double positive sorted", map[string]TriState{"tlx3": Positive, "sst": Positive, "vip": Negative}, "sst,tlx3", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := NewCell(1)
			c.Labels = tc.labels
			got, ok := c.CreType()
			if got != tc.want || ok != tc.ok {
				t.Fatalf("CreType() = %q,%v want %q,%v", got, ok, tc.want, tc.ok)
			}
		})
	}
}

func TestCellPassQC(t *testing.T) {
	c := NewCell(2)
	if c.PassQC() != Unknown {
		t.Fatalf("expected unknown QC by default")
	}
	c.HoldingQC, c.AccessQC = Pass, Pass
	if c.PassQC() != Pass {
		t.Fatalf("expected pass")
	}
	c.AccessQC = Fail
	if c.PassQC() != Fail {
		t.Fatalf("expected fail")
	}
}

func TestCellDistance(t *testing.T) {
	a, b := NewCell(1), NewCell(2)
	if !math.IsNaN(a.Distance(b)) {
		t.Fatalf("expected NaN without positions")
	}
	a.Position = []float64{0, 0}
	b.Position = []float64{3e-6, 4e-6}
	if d := a.Distance(b); math.Abs(d-5e-6) > 1e-12 {
		t.Fatalf("unexpected distance %g", d)
	}
	b.Position = []float64{1, 2, 3}
	if !math.IsNaN(a.Distance(b)) {
		t.Fatalf("expected NaN for mismatched dimensions")
	}
}

func TestSortByVocabulary(t *testing.T) {
	names := []string{"unknown", "zeta", "tlx3", "sst", "alpha"}
	SortByVocabulary(names, CreTypes)
	want := []string{"sst", "tlx3", "unknown", "alpha", "zeta"}
	if !reflect.DeepEqual(names, want) {
		t.Fatalf("got %v want %v", names, want)
	}
}

func TestVocabularyHelpers(t *testing.T) {
	if CreTypeIndex("pvalb,sst") != 1 {
		t.Fatalf("expected first component index")
	}
	if !IsHumanLayerLabel("Human_L23") || IsHumanLayerLabel("L23pyr") {
		t.Fatalf("human layer detection wrong")
	}
	if NormalizeLayer("23") != "2/3" || NormalizeLayer("5") != "5" {
		t.Fatalf("layer normalization wrong")
	}
}

func TestErrorsMatchSentinels(t *testing.T) {
	errs := map[error]error{
		MalformedRecordError{Section: "Labeling", Line: "x", Reason: "bad"}: ErrMalformedRecord,
		MissingReferenceError{Section: "Connections", CellID: 9}:           ErrMissingReference,
		ResourceMissingError{Resource: "site mosaic"}:                        ErrResourceMissing,
		InvalidConfigurationError{Field: "target_layer", Reason: "int"}:     ErrInvalidConfiguration,
	}
	for err, sentinel := range errs {
		wrapped := fmt.Errorf("load: %w", err)
		if !errors.Is(wrapped, sentinel) {
			t.Fatalf("%v does not match %v", err, sentinel)
		}
		if err.Error() == "" {
			t.Fatalf("empty message for %T", err)
		}
	}
}
