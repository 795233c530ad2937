package core

import (
	"context"
	"errors"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"multipatch/internal/nwb"
	"multipatch/internal/observability"
	"multipatch/internal/qccache"
	"multipatch/internal/record"
	"multipatch/pkg/domain"
)

const (
	// holdingSweeps passing sweeps are required before a cell passes QC.
	holdingSweeps      = 5
	maxBaselineCurrent = 800e-12
	minRestingVm       = -75e-3
	maxRestingVm       = -50e-3
)

var stimFreqRe = regexp.MustCompile(`^(.*)(\d+)Hz`)

// SweepRecord summarizes one channel of one sweep.
type SweepRecord struct {
	StimName         string
	ClampMode        nwb.ClampMode
	HoldingCurrent   *float64
	HoldingPotential *float64
}

// Data opens the recording file, reusing an already open handle. With a
// mirror configured, an open that fails with nwb.ErrCorrupt evicts the local
// copy and retries once; other errors are returned as is.
func (e *Experiment) Data(ctx context.Context) (nwb.Recording, error) {
	if e.data != nil {
		return e.data, nil
	}
	source, err := e.NWBFile()
	if err != nil {
		return nil, err
	}
	rec, err := e.openRecording(ctx, source)
	if err != nil && e.opts.Mirror != nil && errors.Is(err, nwb.ErrCorrupt) {
		e.log.Warn("recording open failed; refreshing cached copy", "source", source, "error", err)
		if evictErr := e.opts.Mirror.Evict(source); evictErr != nil {
			return nil, evictErr
		}
		rec, err = e.openRecording(ctx, source)
	}
	if err != nil {
		return nil, err
	}
	e.data = rec
	return rec, nil
}

func (e *Experiment) openRecording(ctx context.Context, source string) (nwb.Recording, error) {
	local := source
	if e.opts.Mirror != nil {
		var err error
		if local, err = e.opts.Mirror.Local(ctx, source); err != nil {
			return nil, err
		}
	}
	return e.opts.Recordings.Open(ctx, local)
}

// CloseData closes the open recording, if any.
func (e *Experiment) CloseData() error {
	if e.data == nil {
		return nil
	}
	err := e.data.Close()
	e.data = nil
	return err
}

// SweepSummary lists, per sweep, the stimulus and clamp settings of each channel.
func (e *Experiment) SweepSummary(ctx context.Context) ([]map[int]SweepRecord, error) {
	return e.sweeps.get(func() (out []map[int]SweepRecord, err error) {
		rec, err := e.Data(ctx)
		if err != nil {
			return nil, err
		}
		defer func() {
			if cerr := e.CloseData(); err == nil {
				err = cerr
			}
		}()
		sweeps, err := rec.Sweeps(ctx)
		if err != nil {
			return nil, err
		}
		for _, sw := range sweeps {
			row := make(map[int]SweepRecord, len(sw.Records))
			for _, dev := range sw.Devices() {
				r := sw.Records[dev]
				row[dev] = SweepRecord{
					StimName:         r.StimName,
					ClampMode:        r.ClampMode,
					HoldingCurrent:   r.HoldingCurrent,
					HoldingPotential: r.HoldingPotential,
				}
			}
			out = append(out, row)
		}
		return out, nil
	})
}

// ListStims returns the distinct stimulus names, shortened and ordered by
// pulse frequency.
func (e *Experiment) ListStims(ctx context.Context) ([]string, error) {
	return e.stims.get(func() ([]string, error) {
		summary, err := e.SweepSummary(ctx)
		if err != nil {
			return nil, err
		}
		seen := make(map[string]bool)
		var stims []string
		for _, sweep := range summary {
			devs := make([]int, 0, len(sweep))
			for dev := range sweep {
				devs = append(devs, dev)
			}
			sort.Ints(devs)
			for _, dev := range devs {
				name := sweep[dev].StimName
				if !seen[name] {
					seen[name] = true
					stims = append(stims, ShortStimName(name))
				}
			}
		}
		sort.SliceStable(stims, func(i, j int) bool {
			a1, a2 := stimFreq(stims[i])
			b1, b2 := stimFreq(stims[j])
			if a1 != b1 {
				return a1 < b1
			}
			return a2 < b2
		})
		return stims, nil
	})
}

// ShortStimName strips acquisition prefixes and suffixes from a stimulus set name.
func ShortStimName(stim string) string {
	switch {
	case strings.HasPrefix(stim, "PulseTrain_"):
		stim = strings.TrimPrefix(stim, "PulseTrain_")
	case strings.HasPrefix(stim, "SPulseTrain_"):
		stim = "S" + strings.TrimPrefix(stim, "SPulseTrain_")
	}
	stim = strings.TrimSuffix(stim, "_DA_0")
	if strings.HasSuffix(stim, "H") {
		stim += "z"
	}
	return stim
}

// stimFreq is the sort key of a short stimulus name: the prefix length and
// the last digit before "Hz", or zeros when there is no frequency.
func stimFreq(stim string) (int, int) {
	m := stimFreqRe.FindStringSubmatch(stim)
	if m == nil {
		return 0, 0
	}
	f, _ := strconv.Atoi(m[2])
	return len(m[1]), f
}

// generateCellQC derives QC for one channel from the recording, through the QC cache.
func (e *Experiment) generateCellQC(ctx context.Context, adChannel int) (record.QCRecord, error) {
	var out record.QCRecord
	err := observability.Instrument(ctx, e.opts.Tracer, e.opts.Metrics, "experiment.cell_qc", func(ctx context.Context) error {
		source, err := e.NWBFile()
		if err != nil {
			return err
		}
		compute := func() (qccache.Result, error) { return e.scanHolding(ctx, adChannel) }
		var res qccache.Result
		if e.opts.QCCache != nil {
			res, err = e.opts.QCCache.GetOrCompute(qccache.Key{Recording: source, Channel: adChannel}, compute)
		} else {
			res, err = compute()
		}
		if err != nil {
			return err
		}
		out = record.QCRecord{
			Holding: domain.TriStateOf(res.Holding),
			Access:  domain.TriStateOf(res.Access),
			Spiking: domain.TriStateOf(res.Spiking),
		}
		return nil
	})
	return out, err
}

// scanHolding counts sweeps with an acceptable baseline on the channel. The
// recording is closed before returning.
func (e *Experiment) scanHolding(ctx context.Context, adChannel int) (res qccache.Result, err error) {
	rec, err := e.Data(ctx)
	if err != nil {
		return res, err
	}
	defer func() {
		if cerr := e.CloseData(); err == nil {
			err = cerr
		}
	}()
	sweeps, err := rec.Sweeps(ctx)
	if err != nil {
		return res, err
	}
	passed := 0
	for _, sw := range sweeps {
		r, ok := sw.Records[adChannel]
		if !ok {
			continue
		}
		if baselineOK(r) {
			passed++
		}
		if passed >= holdingSweeps {
			break
		}
	}
	if passed >= holdingSweeps {
		res = qccache.Result{Holding: true, Access: true, Spiking: true}
	}
	return res, nil
}

func baselineOK(r nwb.Record) bool {
	if r.ClampMode == nwb.VoltageClamp {
		return r.BaselineCurrent != nil && math.Abs(*r.BaselineCurrent) < maxBaselineCurrent
	}
	return r.BaselinePotential != nil && *r.BaselinePotential > minRestingVm && *r.BaselinePotential < maxRestingVm
}
