package record

import (
	"multipatch/pkg/domain"
)

// Registry is the parsed content of one experiment record: electrodes, the
// cells they recorded (in insertion order) and the curated connection lists.
type Registry struct {
	Electrodes []*domain.Electrode
	cells      map[int]*domain.Cell
	order      []int

	Connections []domain.Pair
	// HasConnections distinguishes an empty curated list from an absent one.
	HasConnections bool
	Gaps           []domain.Pair
	HasGaps        bool

	Region   string
	SitePath string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{cells: make(map[int]*domain.Cell)}
}

// AddElectrode registers an electrode and the cell it owns, if any.
func (r *Registry) AddElectrode(e *domain.Electrode) {
	r.Electrodes = append(r.Electrodes, e)
	if e.Cell == nil {
		return
	}
	if _, ok := r.cells[e.Cell.ID]; !ok {
		r.order = append(r.order, e.Cell.ID)
	}
	r.cells[e.Cell.ID] = e.Cell
}

// Cell returns the cell with the given id.
func (r *Registry) Cell(id int) (*domain.Cell, bool) {
	c, ok := r.cells[id]
	return c, ok
}

// CellIDs returns cell ids in insertion order.
func (r *Registry) CellIDs() []int {
	out := make([]int, len(r.order))
	copy(out, r.order)
	return out
}

// Cells returns cells in insertion order.
func (r *Registry) Cells() []*domain.Cell {
	out := make([]*domain.Cell, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.cells[id])
	}
	return out
}

// Len returns the number of cells.
func (r *Registry) Len() int { return len(r.order) }

// AddConnection appends a curated synaptic pair once; repeated pairs are ignored.
func (r *Registry) AddConnection(p domain.Pair) {
	r.HasConnections = true
	if !containsPair(r.Connections, p) {
		r.Connections = append(r.Connections, p)
	}
}

// AddGap appends a curated electrical pair once; repeated pairs are ignored.
func (r *Registry) AddGap(p domain.Pair) {
	r.HasGaps = true
	if !containsPair(r.Gaps, p) {
		r.Gaps = append(r.Gaps, p)
	}
}

// CheckReferences verifies that every curated pair names registered cells.
func (r *Registry) CheckReferences() error {
	for _, list := range []struct {
		section string
		pairs   []domain.Pair
	}{{"Connections", r.Connections}, {"Gaps", r.Gaps}} {
		for _, p := range list.pairs {
			for _, id := range []int{p.Pre, p.Post} {
				if _, ok := r.cells[id]; !ok {
					return domain.MissingReferenceError{Section: list.section, CellID: id}
				}
			}
		}
	}
	return nil
}

func containsPair(pairs []domain.Pair, p domain.Pair) bool {
	for _, q := range pairs {
		if q == p {
			return true
		}
	}
	return false
}
