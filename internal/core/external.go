package core

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	"multipatch/internal/genotype"
	"multipatch/internal/lims"
	"multipatch/internal/site"
	"multipatch/pkg/domain"
)

// Path returns the site directory: the one recorded by the loader, otherwise
// the first matching candidate under the summary directory and DataRoots.
func (e *Experiment) Path() (string, error) {
	return e.path.get(func() (string, error) {
		if e.sitePath != "" {
			return e.sitePath, nil
		}
		id, err := site.ParseID(e.source.ID)
		if err != nil {
			return "", err
		}
		roots := append([]string{filepath.Dir(e.source.File)}, e.opts.DataRoots...)
		return site.Locate(roots, id)
	})
}

// MosaicFile returns the site mosaic holding cell positions.
func (e *Experiment) MosaicFile() (string, error) {
	return e.mosaicFile.get(func() (string, error) {
		p, err := e.Path()
		if err != nil {
			return "", err
		}
		return site.FindMosaic(p)
	})
}

// NWBFile returns the site's recording file.
func (e *Experiment) NWBFile() (string, error) {
	return e.nwbFile.get(func() (string, error) {
		p, err := e.Path()
		if err != nil {
			return "", err
		}
		return site.FindRecording(p)
	})
}

// SiteInfo returns the acquisition metadata of the site directory.
func (e *Experiment) SiteInfo() (site.Section, error) {
	return e.siteInfo.get(func() (site.Section, error) {
		p, err := e.Path()
		if err != nil {
			return nil, err
		}
		return site.DirInfo(p)
	})
}

// SliceInfo returns the acquisition metadata of the slice directory.
func (e *Experiment) SliceInfo() (site.Section, error) {
	return e.sliceInfo.get(func() (site.Section, error) {
		p, err := e.Path()
		if err != nil {
			return nil, err
		}
		return site.DirInfo(site.SliceDir(p))
	})
}

// ExptInfo returns the acquisition metadata of the experiment day directory.
func (e *Experiment) ExptInfo() (site.Section, error) {
	return e.exptInfo.get(func() (site.Section, error) {
		p, err := e.Path()
		if err != nil {
			return nil, err
		}
		return site.DirInfo(site.ExperimentDir(p))
	})
}

func (e *Experiment) siteTimestamp() (float64, error) {
	info, err := e.SiteInfo()
	if err != nil {
		return 0, err
	}
	ts, ok := info.Float("__timestamp__")
	if !ok {
		return 0, domain.ResourceMissingError{Resource: "site timestamp", Location: e.source.String()}
	}
	return ts, nil
}

// UID is the site timestamp with two decimals, unique for practical purposes.
func (e *Experiment) UID() (string, error) {
	ts, err := e.siteTimestamp()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0.2f", ts), nil
}

// Datetime is the local acquisition time of the site.
func (e *Experiment) Datetime() (time.Time, error) {
	ts, err := e.siteTimestamp()
	if err != nil {
		return time.Time{}, err
	}
	sec, frac := math.Modf(ts)
	return time.Unix(int64(sec), int64(frac*1e9)), nil
}

// Date is the acquisition day.
func (e *Experiment) Date() (time.Time, error) {
	dt, err := e.Datetime()
	if err != nil {
		return time.Time{}, err
	}
	return dateOf(dt), nil
}

// SpecimenID is the slice's LIMS specimen identifier.
func (e *Experiment) SpecimenID() (string, error) {
	info, err := e.SliceInfo()
	if err != nil {
		return "", err
	}
	id, ok := info.String("specimen_ID")
	if !ok {
		return "", domain.ResourceMissingError{Resource: "specimen id", Location: e.source.String()}
	}
	return strings.TrimSpace(id), nil
}

// LIMSRecord returns the specimen record.
func (e *Experiment) LIMSRecord(ctx context.Context) (lims.Record, error) {
	return e.limsRecord.get(func() (lims.Record, error) {
		if e.opts.LIMS == nil {
			return lims.Record{}, domain.ResourceMissingError{Resource: "LIMS client", Reason: "none configured"}
		}
		id, err := e.SpecimenID()
		if err != nil {
			return lims.Record{}, err
		}
		return e.opts.LIMS.SpecimenInfo(ctx, id)
	})
}

// Genotype returns the specimen genotype, nil when none was recorded.
func (e *Experiment) Genotype(ctx context.Context) (*genotype.Genotype, error) {
	return e.genotype.get(func() (*genotype.Genotype, error) {
		rec, err := e.LIMSRecord(ctx)
		if err != nil {
			return nil, err
		}
		if rec.Genotype == "" {
			return nil, nil
		}
		return genotype.Parse(rec.Genotype)
	})
}

// BirthDate is the donor's date of birth.
func (e *Experiment) BirthDate(ctx context.Context) (time.Time, error) {
	rec, err := e.LIMSRecord(ctx)
	if err != nil {
		return time.Time{}, err
	}
	if rec.DateOfBirth.IsZero() {
		return time.Time{}, domain.ResourceMissingError{Resource: "donor date of birth", Location: e.source.String()}
	}
	bd := rec.DateOfBirth
	return time.Date(bd.Year(), bd.Month(), bd.Day(), 0, 0, 0, 0, time.Local), nil
}

// Age is the donor age in days on the acquisition day for mouse specimens and
// NaN otherwise. Mouse records without an age entered in LIMS are rejected.
func (e *Experiment) Age(ctx context.Context) (float64, error) {
	rec, err := e.LIMSRecord(ctx)
	if err != nil {
		return 0, err
	}
	if !rec.IsMouse() {
		return math.NaN(), nil
	}
	if rec.Age == 0 {
		id, _ := e.SpecimenID()
		return 0, domain.ResourceMissingError{Resource: "donor age", Location: id, Reason: "not set in LIMS"}
	}
	date, err := e.Date()
	if err != nil {
		return 0, err
	}
	bd, err := e.BirthDate(ctx)
	if err != nil {
		return 0, err
	}
	return math.Round(date.Sub(bd).Hours() / 24), nil
}

// BiocytinImageURL links the specimen's biocytin image; ok is false when there is none.
func (e *Experiment) BiocytinImageURL(ctx context.Context) (string, bool, error) {
	return e.imageURL(ctx, lims.TreatmentBiocytin)
}

// DAPIImageURL links the specimen's DAPI image; ok is false when there is none.
func (e *Experiment) DAPIImageURL(ctx context.Context) (string, bool, error) {
	return e.imageURL(ctx, lims.TreatmentDAPI)
}

func (e *Experiment) imageURL(ctx context.Context, treatment string) (string, bool, error) {
	if e.opts.LIMS == nil {
		return "", false, domain.ResourceMissingError{Resource: "LIMS client", Reason: "none configured"}
	}
	id, err := e.SpecimenID()
	if err != nil {
		return "", false, err
	}
	images, err := e.opts.LIMS.SpecimenImages(ctx, id)
	if err != nil {
		return "", false, err
	}
	url, ok := lims.ImageURL(images, treatment)
	return url, ok, nil
}

// MultipatchLog returns the rig log of the site.
func (e *Experiment) MultipatchLog() (string, error) {
	p, err := e.Path()
	if err != nil {
		return "", err
	}
	return site.FindMultipatchLog(p)
}

// SurfaceDepth is the last logged slice surface depth, nil when the site has
// no log or the log never recorded one.
func (e *Experiment) SurfaceDepth() (*float64, error) {
	log, err := e.MultipatchLog()
	if errors.Is(err, site.ErrNoMultipatchLog) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return site.SurfaceDepth(log)
}

// TargetTemperature is the intended bath temperature in degrees C, nil when not recorded.
func (e *Experiment) TargetTemperature() (*float64, error) {
	info, err := e.ExptInfo()
	if err != nil {
		return nil, err
	}
	if v, ok := info.Float("temperature"); ok {
		return &v, nil
	}
	raw, ok := info.String("temperature")
	if !ok {
		return nil, nil
	}
	return site.ParseTemperature(raw)
}

// OriginalPath is where the site was acquired before being synced.
func (e *Experiment) OriginalPath() (string, error) {
	p, err := e.Path()
	if err != nil {
		return "", err
	}
	return site.OriginalPath(p)
}

// RelativePath is the site path within its data repository.
func (e *Experiment) RelativePath() (string, error) {
	p, err := e.Path()
	if err != nil {
		return "", err
	}
	return site.RelativePath(p)
}

// RigName is the acquisition rig, empty when unknown.
func (e *Experiment) RigName() (string, error) {
	return e.rigName.get(func() (string, error) {
		info, err := e.ExptInfo()
		if err != nil {
			return "", err
		}
		orig, err := e.OriginalPath()
		if err != nil {
			return "", err
		}
		return site.RigName(info, orig), nil
	})
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func splitCreType(ct string) []string { return strings.Split(ct, ",") }
