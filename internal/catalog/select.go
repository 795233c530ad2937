package catalog

import (
	"strings"

	"multipatch/pkg/domain"
)

// Filter selects experiments by the classes they probed. Empty fields match anything.
type Filter struct {
	Region      string
	PreLayer    string
	PreCreType  string
	PostLayer   string
	PostCreType string
	// ConnectedOnly keeps rows with at least one connection.
	ConnectedOnly bool
}

// ParseClass splits "<layer>:<cre>" (either side optional) into its parts.
func ParseClass(s string) (layer, creType string) {
	if l, ct, ok := strings.Cut(s, ":"); ok {
		return l, ct
	}
	return "", s
}

// Selection is one matching experiment and the rows that matched.
type Selection struct {
	Record domain.CatalogRecord
	Rows   []domain.SummaryRow
}

// Totals sums connected and unconnected counts over the matching rows.
func (s Selection) Totals() (connected, unconnected int) {
	for _, r := range s.Rows {
		connected += r.Connected
		unconnected += r.Unconnected
	}
	return connected, unconnected
}

// Select returns the experiments holding at least one summary row that matches f.
func (c *Catalog) Select(f Filter) []Selection {
	var out []Selection
	for _, rec := range c.store.List() {
		if f.Region != "" && !strings.EqualFold(rec.Region, f.Region) {
			continue
		}
		var rows []domain.SummaryRow
		for _, row := range rec.Summary {
			if f.matches(row) {
				rows = append(rows, row)
			}
		}
		if len(rows) > 0 {
			out = append(out, Selection{Record: rec, Rows: rows})
		}
	}
	return out
}

func (f Filter) matches(row domain.SummaryRow) bool {
	switch {
	case f.PreLayer != "" && row.PreLayer != f.PreLayer:
		return false
	case f.PostLayer != "" && row.PostLayer != f.PostLayer:
		return false
	case f.PreCreType != "" && row.PreCreType != f.PreCreType:
		return false
	case f.PostCreType != "" && row.PostCreType != f.PostCreType:
		return false
	case f.ConnectedOnly && row.Connected == 0:
		return false
	}
	return true
}
