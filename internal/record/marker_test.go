package record

import (
	"errors"
	"testing"

	"multipatch/pkg/domain"
)

func TestParseCellMarker(t *testing.T) {
	cases := []struct {
		tok  string
		id   int
		want Marker
		raw  string
	}{
		{"3+", 3, Marker{Sign: domain.Positive}, "+"},
		{"4x?", 4, Marker{Absent: true, Uncertain: true}, "x?"},
		{"2-", 2, Marker{Sign: domain.Negative}, "-"},
		{"7x+", 7, Marker{Absent: true, Sign: domain.Positive}, "x+"},
		{"12+?", 12, Marker{Sign: domain.Positive, Uncertain: true}, "+?"},
	}
	for _, tc := range cases {
		id, mk, err := ParseCellMarker(tc.tok)
		if err != nil {
			t.Fatalf("%s: unexpected error %v", tc.tok, err)
		}
		if id != tc.id || mk != tc.want {
			t.Fatalf("%s: got id=%d marker=%+v want id=%d marker=%+v", tc.tok, id, mk, tc.id, tc.want)
		}
		if mk.Raw() != tc.raw {
			t.Fatalf("%s: raw %q want %q", tc.tok, mk.Raw(), tc.raw)
		}
	}
}

func TestParseCellMarkerRejectsInvalid(t *testing.T) {
	for _, tok := range []string{"5y", "+", "x3", "3+-", ""} {
		if _, _, err := ParseCellMarker(tok); !errors.Is(err, domain.ErrMalformedRecord) {
			t.Fatalf("%q: expected malformed record, got %v", tok, err)
		}
	}
}

func TestMarkerCalls(t *testing.T) {
	cases := []struct {
		value string
		color domain.TriState
		label domain.TriState
	}{
		{"+", domain.Positive, domain.Positive},
		{"-", domain.Negative, domain.Negative},
		{"x", domain.Unknown, domain.Negative},
		{"+?", domain.Unknown, domain.Positive},
		{"x-", domain.Unknown, domain.Negative},
	}
	for _, tc := range cases {
		mk, err := ParseMarker(tc.value)
		if err != nil {
			t.Fatalf("%q: %v", tc.value, err)
		}
		if mk.Color() != tc.color || mk.Label() != tc.label {
			t.Fatalf("%q: color=%v label=%v", tc.value, mk.Color(), mk.Label())
		}
	}
	if _, err := ParseMarker("y"); err == nil {
		t.Fatalf("expected error for invalid marker")
	}
}
