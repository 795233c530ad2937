package site

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"multipatch/pkg/domain"
)

// MosaicFile is the preferred mosaic name.
const MosaicFile = "site.mosaic"

var markerNameRe = regexp.MustCompile(`^\D+(\d+)`)

// FindMosaic returns the site mosaic: site.mosaic in the site, then in the
// slice directory, then the only *.mosaic file in the site.
func FindMosaic(sitePath string) (string, error) {
	for _, p := range []string{
		filepath.Join(sitePath, MosaicFile),
		filepath.Join(SliceDir(sitePath), MosaicFile),
	} {
		if isFile(p) {
			return p, nil
		}
	}
	matches, err := filepath.Glob(filepath.Join(sitePath, "*.mosaic"))
	if err != nil {
		return "", err
	}
	if len(matches) == 1 && isFile(matches[0]) {
		return matches[0], nil
	}
	return "", domain.ResourceMissingError{Resource: "site mosaic", Location: sitePath}
}

type mosaicDoc struct {
	Items []struct {
		Type    string              `json:"type"`
		Markers [][]json.RawMessage `json:"markers"`
	} `json:"items"`
}

// LoadPositions reads cell positions from the single MarkersCanvasItem of a
// mosaic file, keyed by the cell id embedded in each marker name.
func LoadPositions(path string) (map[int][]float64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ResourceMissingError{Resource: "site mosaic", Location: path}
		}
		return nil, err
	}
	var doc mosaicDoc
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, domain.MalformedRecordError{Section: "mosaic", Line: path, Reason: err.Error()}
	}
	var markers [][]json.RawMessage
	found := 0
	for _, item := range doc.Items {
		if item.Type == "MarkersCanvasItem" {
			markers = item.Markers
			found++
		}
	}
	switch {
	case found == 0:
		return nil, domain.MalformedRecordError{Section: "mosaic", Line: path, Reason: "no cell markers found"}
	case found > 1:
		return nil, domain.MalformedRecordError{Section: "mosaic", Line: path, Reason: "multiple marker items found"}
	}

	out := make(map[int][]float64, len(markers))
	for _, mk := range markers {
		if len(mk) != 2 {
			return nil, domain.MalformedRecordError{Section: "mosaic", Line: path, Reason: "marker must be [name, position]"}
		}
		var name string
		var pos []float64
		if err := json.Unmarshal(mk[0], &name); err != nil {
			return nil, domain.MalformedRecordError{Section: "mosaic", Line: string(mk[0]), Reason: err.Error()}
		}
		if err := json.Unmarshal(mk[1], &pos); err != nil {
			return nil, domain.MalformedRecordError{Section: "mosaic", Line: name, Reason: err.Error()}
		}
		m := markerNameRe.FindStringSubmatch(name)
		if m == nil {
			return nil, domain.MalformedRecordError{Section: "mosaic", Line: name, Reason: fmt.Sprintf("marker name %q has no cell id", strings.TrimSpace(name))}
		}
		id, _ := strconv.Atoi(m[1])
		out[id] = pos
	}
	return out, nil
}
