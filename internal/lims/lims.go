// Package lims looks up specimen records (donor organism, genotype, age and
// slide images) from the laboratory information system.
package lims

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"multipatch/pkg/domain"
)

// Image treatments with dedicated accessors.
const (
	TreatmentBiocytin = "Biocytin"
	TreatmentDAPI     = "DAPI"
)

// ImageURLFormat renders a slide image id as a viewer URL.
const ImageURLFormat = "http://lims2/siv?sub_image=%d"

// Record is the specimen information used by experiments.
type Record struct {
	Organism string `yaml:"organism"`
	// Genotype is empty when none was recorded.
	Genotype string `yaml:"genotype"`
	// Age is the donor age in days; zero when not entered.
	Age         float64   `yaml:"age"`
	DateOfBirth time.Time `yaml:"date_of_birth"`
}

// IsMouse reports whether the specimen came from a mouse.
func (r Record) IsMouse() bool { return r.Organism == "mouse" }

// Image is one slide image of a specimen.
type Image struct {
	ID        int    `yaml:"id"`
	Treatment string `yaml:"treatment"`
}

// Client resolves specimens by id.
type Client interface {
	SpecimenInfo(ctx context.Context, specimenID string) (Record, error)
	SpecimenImages(ctx context.Context, specimenID string) ([]Image, error)
}

// ImageURL returns the URL of the first image with the given treatment.
func ImageURL(images []Image, treatment string) (string, bool) {
	for _, img := range images {
		if img.Treatment == treatment {
			return fmt.Sprintf(ImageURLFormat, img.ID), true
		}
	}
	return "", false
}

// Static serves a fixed set of specimens.
type Static struct {
	mu        sync.RWMutex
	specimens map[string]specimen
}

type specimen struct {
	Record `yaml:",inline"`
	Images []Image `yaml:"images"`
}

// NewStatic returns an empty client.
func NewStatic() *Static {
	return &Static{specimens: make(map[string]specimen)}
}

// Add registers a specimen.
func (s *Static) Add(id string, rec Record, images ...Image) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.specimens[id] = specimen{Record: rec, Images: images}
}

func (s *Static) lookup(id string) (specimen, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sp, ok := s.specimens[id]
	if !ok {
		return specimen{}, domain.ResourceMissingError{Resource: "LIMS specimen", Location: id}
	}
	return sp, nil
}

// SpecimenInfo implements Client.
func (s *Static) SpecimenInfo(_ context.Context, id string) (Record, error) {
	sp, err := s.lookup(id)
	return sp.Record, err
}

// SpecimenImages implements Client.
func (s *Static) SpecimenImages(_ context.Context, id string) ([]Image, error) {
	sp, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return append([]Image(nil), sp.Images...), nil
}

// LoadFile reads a YAML export of specimens:
//
//	specimens:
//	  "1234.05.01":
//	    organism: mouse
//	    genotype: Sst-IRES-Cre/wt;Ai14(RCL-tdT)/wt
//	    age: 45
//	    date_of_birth: 2017-01-20
//	    images:
//	      - {id: 5, treatment: Biocytin}
func LoadFile(path string) (*Static, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ResourceMissingError{Resource: "LIMS export", Location: path}
		}
		return nil, err
	}
	var doc struct {
		Specimens map[string]specimen `yaml:"specimens"`
	}
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("decode LIMS export %s: %w", path, domain.InvalidConfigurationError{Field: "lims file", Reason: err.Error()})
	}
	s := NewStatic()
	for id, sp := range doc.Specimens {
		s.specimens[id] = sp
	}
	return s, nil
}
