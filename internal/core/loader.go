package core

import (
	"context"
	"fmt"
	"path/filepath"

	"multipatch/internal/genotype"
	"multipatch/internal/record"
	"multipatch/internal/record/block"
	"multipatch/pkg/domain"
)

// Source identifies the record an experiment was loaded from.
type Source struct {
	File string
	// ID is the "<date>-<slice>-<site>" entry text of summary records; empty for pipette files.
	ID     string
	LineNo int
}

func (s Source) String() string {
	if s.ID == "" {
		return s.File
	}
	return fmt.Sprintf("%s (%s:%d)", s.ID, s.File, s.LineNo)
}

// Loader populates an experiment's registry from one record format.
// SummaryLoader and PipetteLoader are the two implementations.
type Loader interface {
	Source() Source
	populate(ctx context.Context, e *Experiment) (*record.Registry, error)
}

// SummaryLoader reads one experiment entry of a legacy summary file.
type SummaryLoader struct {
	Entry *block.Entry
}

// Source implements Loader.
func (l SummaryLoader) Source() Source {
	return Source{File: l.Entry.File, ID: l.Entry.Text, LineNo: l.Entry.LineNo}
}

func (l SummaryLoader) populate(_ context.Context, e *Experiment) (*record.Registry, error) {
	reg, err := record.ParseSummary(l.Entry)
	if err != nil {
		return nil, err
	}
	if reg.SitePath != "" {
		e.sitePath = reg.SitePath
	}
	return reg, nil
}

// ReadSummary returns a loader for every top-level experiment entry of a summary file.
func ReadSummary(path string) ([]SummaryLoader, error) {
	root, err := block.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("read summary %s: %w", path, err)
	}
	out := make([]SummaryLoader, 0, len(root.Children))
	for _, entry := range root.Children {
		out = append(out, SummaryLoader{Entry: entry})
	}
	return out, nil
}

// PipetteLoader reads the pipette metadata file of a site directory.
type PipetteLoader struct {
	Path string
}

// PipetteLoaderFor returns the loader of the pipette file inside sitePath.
func PipetteLoaderFor(sitePath string) PipetteLoader {
	return PipetteLoader{Path: filepath.Join(sitePath, record.PipettesFile)}
}

// Source implements Loader.
func (l PipetteLoader) Source() Source { return Source{File: l.Path} }

func (l PipetteLoader) populate(ctx context.Context, e *Experiment) (*record.Registry, error) {
	e.sitePath = filepath.Dir(l.Path)
	pipettes, err := record.ReadPipettes(l.Path)
	if err != nil {
		return nil, err
	}
	rec, err := e.LIMSRecord(ctx)
	if err != nil {
		return nil, err
	}
	hooks := record.PipetteHooks{
		DeriveQC: func(adChannel int) (record.QCRecord, error) {
			return e.generateCellQC(ctx, adChannel)
		},
	}
	if rec.IsMouse() {
		var g *genotype.Genotype
		if g, err = e.Genotype(ctx); err != nil {
			return nil, err
		}
		if g == nil {
			specimen, _ := e.SpecimenID()
			return nil, domain.InvalidConfigurationError{Field: "genotype", Reason: fmt.Sprintf("mouse specimen %s has no genotype", specimen)}
		}
		hooks.PredictDrivers = g.PredictDriverExpression
	}
	return record.BuildRegistry(pipettes, hooks)
}
