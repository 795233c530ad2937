package site

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"multipatch/pkg/domain"
)

// ManifestFile disambiguates sites holding several recording files.
const ManifestFile = "file_manifest.yml"

// RecordingCategory is the manifest category of the physiology recording.
const RecordingCategory = "MIES physiology"

// ErrNoMultipatchLog marks a site directory without a multipatch log.
var ErrNoMultipatchLog = errors.New("no multipatch log")

var (
	multipatchLogRe = regexp.MustCompile(`^MultiPatch_\d+.log`)
	rigNameRe       = regexp.MustCompile(`/(MP\d)`)
)

// ManifestEntry is one file_manifest.yml item.
type ManifestEntry struct {
	Path     string `yaml:"path"`
	Category string `yaml:"category"`
}

// FindRecording returns the site's recording file: the only *.nwb (or *.NWB)
// file, or the manifest's physiology entry when there are several.
func FindRecording(sitePath string) (string, error) {
	files, err := filepath.Glob(filepath.Join(sitePath, "*.nwb"))
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		if files, err = filepath.Glob(filepath.Join(sitePath, "*.NWB")); err != nil {
			return "", err
		}
	}
	switch len(files) {
	case 0:
		return "", domain.ResourceMissingError{Resource: "recording file", Location: sitePath}
	case 1:
		return files[0], nil
	}
	entries, err := ReadManifest(filepath.Join(sitePath, ManifestFile))
	if err != nil && !os.IsNotExist(err) {
		return "", err
	}
	for _, e := range entries {
		if e.Category == RecordingCategory {
			return filepath.Join(filepath.Dir(sitePath), e.Path), nil
		}
	}
	return "", domain.ResourceMissingError{Resource: "recording file", Location: sitePath, Reason: fmt.Sprintf("%d candidates and no manifest entry", len(files))}
}

// ReadManifest decodes a file manifest.
func ReadManifest(path string) ([]ManifestEntry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out []ManifestEntry
	if err := yaml.Unmarshal(b, &out); err != nil {
		return nil, domain.MalformedRecordError{Section: "file manifest", Line: path, Reason: err.Error()}
	}
	return out, nil
}

// FindMultipatchLog returns the single MultiPatch_<N>.log in the site.
func FindMultipatchLog(sitePath string) (string, error) {
	ents, err := os.ReadDir(sitePath)
	if err != nil {
		return "", domain.ResourceMissingError{Resource: "multipatch log", Location: sitePath, Reason: err.Error()}
	}
	var found []string
	for _, e := range ents {
		if multipatchLogRe.MatchString(e.Name()) {
			found = append(found, e.Name())
		}
	}
	switch len(found) {
	case 0:
		return "", fmt.Errorf("%w: %w", ErrNoMultipatchLog, domain.ResourceMissingError{Resource: "multipatch log", Location: sitePath})
	case 1:
		return filepath.Join(sitePath, found[0]), nil
	default:
		return "", domain.ResourceMissingError{Resource: "multipatch log", Location: sitePath, Reason: fmt.Sprintf("found %d log files", len(found))}
	}
}

// SurfaceDepth returns the depth reported by the last surface_depth_changed
// event of a multipatch log, or nil when none was logged.
func SurfaceDepth(logPath string) (*float64, error) {
	f, err := os.Open(logPath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	last := ""
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		if strings.Contains(sc.Text(), "surface_depth_changed") {
			last = sc.Text()
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if last == "" {
		return nil, nil
	}
	var ev struct {
		SurfaceDepth *float64 `json:"surface_depth"`
	}
	if err := json.Unmarshal([]byte(strings.TrimRight(last, ",\r\n")), &ev); err != nil {
		return nil, domain.MalformedRecordError{Section: "multipatch log", Line: last, Reason: err.Error()}
	}
	return ev.SurfaceDepth, nil
}

// ParseTemperature converts a recorded target temperature to degrees C.
// "RT" is room temperature (22.0); an empty value is nil.
func ParseTemperature(raw string) (*float64, error) {
	t := strings.TrimSpace(strings.TrimRight(strings.ToLower(raw), " c"))
	switch t {
	case "":
		return nil, nil
	case "rt":
		v := 22.0
		return &v, nil
	}
	v, err := strconv.ParseFloat(t, 64)
	if err != nil {
		return nil, domain.InvalidConfigurationError{Field: "temperature", Reason: fmt.Sprintf("invalid temperature %q", raw)}
	}
	return &v, nil
}

// RigName returns the acquisition rig: the experiment index value when set,
// otherwise the "/MP<N>" component of the original acquisition path.
func RigName(exptInfo Section, originalPath string) string {
	if name, ok := exptInfo.String("rig_name"); ok {
		return name
	}
	if m := rigNameRe.FindStringSubmatch(filepath.ToSlash(originalPath)); m != nil {
		return m[1]
	}
	return ""
}
