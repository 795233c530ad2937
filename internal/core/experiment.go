// Package core models one multipatch experiment: the registry parsed from its
// record, the derived connectivity views, and lazily resolved facts about the
// files and specimen behind it.
package core

import (
	"context"
	"fmt"
	"sort"

	"multipatch/internal/genotype"
	"multipatch/internal/lims"
	"multipatch/internal/nwb"
	"multipatch/internal/observability"
	"multipatch/internal/qccache"
	"multipatch/internal/record"
	"multipatch/internal/site"
	"multipatch/pkg/domain"
)

// Stage is the construction progress of an experiment.
type Stage int

// Construction stages; Load returns only Ready experiments.
const (
	StageUninitialized Stage = iota
	StageParsed
	StageValidated
	StageReady
)

func (s Stage) String() string {
	switch s {
	case StageParsed:
		return "parsed"
	case StageValidated:
		return "validated"
	case StageReady:
		return "ready"
	default:
		return "uninitialized"
	}
}

// Options carries the collaborators an experiment resolves external facts with.
// Every field is optional.
type Options struct {
	// DataRoots are searched for the site directory after the summary file's own directory.
	DataRoots  []string
	LIMS       lims.Client
	Recordings nwb.Opener
	// Mirror, when set, serves local copies of recording files.
	Mirror  *nwb.Mirror
	QCCache *qccache.Cache
	Logger  observability.Logger
	Metrics observability.MetricsRecorder
	Tracer  observability.Tracer
	// VerifyExternal requires the donor age of mouse specimens and a single
	// recording file at load time.
	VerifyExternal bool
}

func (o Options) normalized() Options {
	o.Logger = observability.OrNop(o.Logger)
	if o.Metrics == nil {
		o.Metrics = observability.NopMetrics()
	}
	if o.Tracer == nil {
		o.Tracer = observability.NopTracer()
	}
	if o.Recordings == nil {
		o.Recordings = nwb.Unavailable
	}
	return o
}

// TypeKey classifies a cell by target layer and cre type.
type TypeKey struct {
	Layer   string
	CreType string
}

// SummaryKey is a (presynaptic, postsynaptic) cell class pair.
type SummaryKey struct {
	Pre  TypeKey
	Post TypeKey
}

// SummaryEntry aggregates probed pairs of one class pair.
type SummaryEntry struct {
	Connected   int
	Unconnected int
	// ConnectedDistances and UnconnectedDistances are inter-soma distances,
	// NaN where a position is missing.
	ConnectedDistances   []float64
	UnconnectedDistances []float64
}

// Experiment is one recorded site. It is not safe for concurrent use.
type Experiment struct {
	source Source
	opts   Options
	log    observability.Logger
	stage  Stage
	reg    *record.Registry

	sitePath string

	creTypes     view[[]string]
	targetLayers view[[]string]
	labels       view[[]string]
	probed       view[[]domain.Pair]
	connections  view[[]domain.Pair]
	gaps         view[[]domain.Pair]
	summary      view[map[SummaryKey]*SummaryEntry]

	path       memo[string]
	mosaicFile memo[string]
	nwbFile    memo[string]
	siteInfo   memo[site.Section]
	sliceInfo  memo[site.Section]
	exptInfo   memo[site.Section]
	limsRecord memo[lims.Record]
	genotype   memo[*genotype.Genotype]
	sweeps     memo[[]map[int]SweepRecord]
	stims      memo[[]string]
	rigName    memo[string]

	data nwb.Recording
}

// Load parses, validates and prepares an experiment. No experiment is returned
// when any stage fails.
func Load(ctx context.Context, loader Loader, opts Options) (*Experiment, error) {
	opts = opts.normalized()
	e := &Experiment{source: loader.Source(), opts: opts, log: opts.Logger}
	err := observability.Instrument(ctx, opts.Tracer, opts.Metrics, "experiment.load", func(ctx context.Context) error {
		return e.init(ctx, loader)
	})
	if err != nil {
		opts.Logger.Debug("experiment load failed", "source", e.source.String(), "stage", e.stage.String(), "error", err)
		return nil, fmt.Errorf("load experiment %s: %w", e.source, err)
	}
	return e, nil
}

func (e *Experiment) init(ctx context.Context, loader Loader) error {
	reg, err := loader.populate(ctx, e)
	if err != nil {
		return err
	}
	if err := reg.CheckReferences(); err != nil {
		return err
	}
	e.reg = reg
	e.stage = StageParsed

	if err := e.validateLabels(); err != nil {
		return err
	}
	e.stage = StageValidated

	if e.opts.VerifyExternal {
		if err := e.verifyExternal(ctx); err != nil {
			return err
		}
	}
	if e.reg.Len() > 0 {
		if err := e.LoadCellPositions(); err != nil {
			e.log.Warn("could not load cell positions", "experiment", e.String(), "error", err)
		}
	}
	e.stage = StageReady
	return nil
}

// validateLabels checks every cell carries every label and cre component in use.
func (e *Experiment) validateLabels() error {
	for _, cell := range e.reg.Cells() {
		for _, label := range e.Labels() {
			if _, ok := cell.Labels[label]; !ok {
				return domain.MalformedRecordError{Section: "labels", Reason: fmt.Sprintf("cell %d is missing label %s", cell.ID, label)}
			}
		}
		for _, ct := range e.CreTypes() {
			for _, part := range splitCreType(ct) {
				if part == domain.UnknownCreType {
					continue
				}
				if _, ok := cell.Labels[part]; !ok {
					return domain.MalformedRecordError{Section: "labels", Reason: fmt.Sprintf("cell %d is missing cre type %s", cell.ID, part)}
				}
			}
		}
	}
	return nil
}

func (e *Experiment) verifyExternal(ctx context.Context) error {
	rec, err := e.LIMSRecord(ctx)
	if err != nil {
		return err
	}
	if rec.IsMouse() {
		if _, err := e.Age(ctx); err != nil {
			return err
		}
	}
	if e.reg.Len() > 0 {
		if _, err := e.NWBFile(); err != nil {
			return err
		}
	}
	return nil
}

// Source returns the record the experiment was loaded from.
func (e *Experiment) Source() Source { return e.source }

// Stage returns the construction stage.
func (e *Experiment) Stage() Stage { return e.stage }

// Electrodes returns every declared pipette in record order.
func (e *Experiment) Electrodes() []*domain.Electrode { return e.reg.Electrodes }

// Cells returns the recorded cells in record order.
func (e *Experiment) Cells() []*domain.Cell { return e.reg.Cells() }

// Cell returns the cell with the given id.
func (e *Experiment) Cell(id int) (*domain.Cell, bool) { return e.reg.Cell(id) }

// Region is the recorded brain region, V1 when none was declared.
func (e *Experiment) Region() string {
	if e.reg.Region == "" {
		return "V1"
	}
	return e.reg.Region
}

// CreTypes returns the distinct determinate cre types, ordered by the driver vocabulary.
func (e *Experiment) CreTypes() []string {
	return e.creTypes.get(func() []string {
		seen := make(map[string]bool)
		var out []string
		for _, c := range e.reg.Cells() {
			ct, ok := c.CreType()
			if !ok || seen[ct] {
				continue
			}
			seen[ct] = true
			out = append(out, ct)
		}
		sort.SliceStable(out, func(i, j int) bool {
			a, b := domain.CreTypeIndex(out[i]), domain.CreTypeIndex(out[j])
			if a != b {
				return a < b
			}
			return out[i] < out[j]
		})
		return out
	})
}

// TargetLayers returns the distinct target layers of the cells.
func (e *Experiment) TargetLayers() []string {
	return e.targetLayers.get(func() []string {
		seen := make(map[string]bool)
		var out []string
		for _, c := range e.reg.Cells() {
			if !seen[c.TargetLayer] {
				seen[c.TargetLayer] = true
				out = append(out, c.TargetLayer)
			}
		}
		sort.Strings(out)
		return out
	})
}

// Labels returns the marker labels used by any cell, in vocabulary order.
func (e *Experiment) Labels() []string {
	return e.labels.get(func() []string {
		seen := make(map[string]bool)
		var out []string
		for _, c := range e.reg.Cells() {
			for label := range c.Labels {
				if domain.IsMarkerLabel(label) && !seen[label] {
					seen[label] = true
					out = append(out, label)
				}
			}
		}
		domain.SortByVocabulary(out, domain.MarkerLabels)
		return out
	})
}

// ConnectionsProbed returns the ordered pairs that could have been tested: the
// presynaptic cell passed spiking QC, the postsynaptic cell passed holding and
// access QC and both have a determinate cre type. Order is unspecified.
func (e *Experiment) ConnectionsProbed() []domain.Pair {
	return e.probed.get(func() []domain.Pair {
		var out []domain.Pair
		cells := e.reg.Cells()
		for _, ci := range cells {
			for _, cj := range cells {
				if ci.ID == cj.ID {
					continue
				}
				if ci.SpikingQC != domain.Pass || cj.PassQC() != domain.Pass {
					continue
				}
				if _, ok := ci.CreType(); !ok {
					continue
				}
				if _, ok := cj.CreType(); !ok {
					continue
				}
				out = append(out, domain.Pair{Pre: ci.ID, Post: cj.ID})
			}
		}
		return out
	})
}

// NConnectionsProbed is len(ConnectionsProbed()).
func (e *Experiment) NConnectionsProbed() int { return len(e.ConnectionsProbed()) }

// ConnectionCalls returns the curated synaptic connections before QC. ok is
// false when the record declares no connection list.
func (e *Experiment) ConnectionCalls() ([]domain.Pair, bool) {
	if !e.reg.HasConnections {
		return nil, false
	}
	return append([]domain.Pair(nil), e.reg.Connections...), true
}

// GapCalls returns the curated electrical connections before QC.
func (e *Experiment) GapCalls() ([]domain.Pair, bool) {
	if !e.reg.HasGaps {
		return nil, false
	}
	return append([]domain.Pair(nil), e.reg.Gaps...), true
}

// Connections returns curated connections that were also probed.
func (e *Experiment) Connections() ([]domain.Pair, bool) {
	if !e.reg.HasConnections {
		return nil, false
	}
	return e.connections.get(func() []domain.Pair { return e.probedOnly(e.reg.Connections) }), true
}

// Gaps returns curated electrical connections that were also probed.
func (e *Experiment) Gaps() ([]domain.Pair, bool) {
	if !e.reg.HasGaps {
		return nil, false
	}
	return e.gaps.get(func() []domain.Pair { return e.probedOnly(e.reg.Gaps) }), true
}

func (e *Experiment) probedOnly(calls []domain.Pair) []domain.Pair {
	probed := pairSet(e.ConnectionsProbed())
	out := make([]domain.Pair, 0, len(calls))
	for _, p := range calls {
		if probed[p] {
			out = append(out, p)
		}
	}
	return out
}

// Summary splits the probed pairs into connected and unconnected counts per
// class pair. ok is false when the record declares no connection list.
func (e *Experiment) Summary() (map[SummaryKey]*SummaryEntry, bool) {
	conns, ok := e.Connections()
	if !ok {
		return nil, false
	}
	return e.summary.get(func() map[SummaryKey]*SummaryEntry {
		connected := pairSet(conns)
		out := make(map[SummaryKey]*SummaryEntry)
		for _, p := range e.ConnectionsProbed() {
			ci, _ := e.reg.Cell(p.Pre)
			cj, _ := e.reg.Cell(p.Post)
			key := SummaryKey{Pre: typeKey(ci), Post: typeKey(cj)}
			entry := out[key]
			if entry == nil {
				entry = &SummaryEntry{}
				out[key] = entry
			}
			d := ci.Distance(cj)
			if connected[p] {
				entry.Connected++
				entry.ConnectedDistances = append(entry.ConnectedDistances, d)
			} else {
				entry.Unconnected++
				entry.UnconnectedDistances = append(entry.UnconnectedDistances, d)
			}
		}
		return out
	}), true
}

// NConnections is the number of connected probed pairs.
func (e *Experiment) NConnections() (int, bool) {
	sum, ok := e.Summary()
	if !ok {
		return 0, false
	}
	n := 0
	for _, s := range sum {
		n += s.Connected
	}
	return n, true
}

// LoadCellPositions copies marker positions from the site mosaic onto the cells.
func (e *Experiment) LoadCellPositions() error {
	mosaic, err := e.MosaicFile()
	if err != nil {
		return err
	}
	positions, err := site.LoadPositions(mosaic)
	if err != nil {
		return err
	}
	for id, pos := range positions {
		if c, ok := e.reg.Cell(id); ok {
			c.Position = pos
		}
	}
	return nil
}

func (e *Experiment) String() string {
	uid, err := e.UID()
	if err != nil {
		uid = "?"
	}
	return fmt.Sprintf("<Experiment %s uid=%s>", e.source, uid)
}

func typeKey(c *domain.Cell) TypeKey {
	ct, _ := c.CreType()
	return TypeKey{Layer: c.TargetLayer, CreType: ct}
}

func pairSet(pairs []domain.Pair) map[domain.Pair]bool {
	out := make(map[domain.Pair]bool, len(pairs))
	for _, p := range pairs {
		out[p] = true
	}
	return out
}
