// Package site resolves the on-disk layout of an acquired experiment site:
// the site directory itself, its acquisition index files, the mosaic holding
// cell positions, the recording file and the multipatch rig log.
package site

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"multipatch/pkg/domain"
)

// ID names a site as "<date>-<slice>-<site>", the way summary entries do.
type ID struct {
	Date  string
	Slice int
	Site  int
}

// ParseID parses "2017.01.05-1-2" style identifiers.
func ParseID(s string) (ID, error) {
	parts := strings.Split(strings.TrimSpace(s), "-")
	if len(parts) != 3 {
		return ID{}, domain.MalformedRecordError{Section: "experiment", Line: s, Reason: "expected <date>-<slice>-<site>"}
	}
	slice, err := strconv.Atoi(parts[1])
	if err != nil {
		return ID{}, domain.MalformedRecordError{Section: "experiment", Line: s, Reason: "slice must be an integer"}
	}
	site, err := strconv.Atoi(parts[2])
	if err != nil {
		return ID{}, domain.MalformedRecordError{Section: "experiment", Line: s, Reason: "site must be an integer"}
	}
	return ID{Date: parts[0], Slice: slice, Site: site}, nil
}

func (id ID) String() string { return fmt.Sprintf("%s-%d-%d", id.Date, id.Slice, id.Site) }

// Candidates lists the directories a site may live in under root, most likely first.
func Candidates(root string, id ID) []string {
	date := id.Date
	if !strings.Contains(date, "_") {
		date += "_000"
	}
	tail := []string{date, fmt.Sprintf("slice_%03d", id.Slice), fmt.Sprintf("site_%03d", id.Site)}
	bases := []string{
		root,
		filepath.Join(root, "V1"),
		filepath.Join(root, "ALM"),
		filepath.Join(root, "Human"),
		// sites never restored from versioned backups
		filepath.Join(root, "..", "..", "..", "version_backups", "data", "Alex", "V1"),
	}
	out := make([]string, 0, len(bases))
	for _, b := range bases {
		out = append(out, filepath.Join(append([]string{b}, tail...)...))
	}
	return out
}

// Locate returns the first existing candidate directory for id under any root.
func Locate(roots []string, id ID) (string, error) {
	var tried []string
	for _, root := range roots {
		for _, p := range Candidates(root, id) {
			if isDir(p) {
				return p, nil
			}
			tried = append(tried, p)
		}
	}
	return "", domain.ResourceMissingError{
		Resource: "site path",
		Location: id.String(),
		Reason:   "attempted " + strings.Join(tried, ", "),
	}
}

// SliceDir returns the slice directory containing a site.
func SliceDir(sitePath string) string { return filepath.Dir(sitePath) }

// ExperimentDir returns the day directory containing a site.
func ExperimentDir(sitePath string) string { return filepath.Dir(filepath.Dir(sitePath)) }

// RelativePath returns sitePath relative to the data repository holding it.
func RelativePath(sitePath string) (string, error) {
	abs, err := filepath.Abs(sitePath)
	if err != nil {
		return "", err
	}
	repo := filepath.Dir(filepath.Dir(filepath.Dir(abs)))
	return filepath.Rel(repo, abs)
}

// OriginalPath is where the site was acquired: the content of its sync_source
// file when present, otherwise sitePath.
func OriginalPath(sitePath string) (string, error) {
	b, err := os.ReadFile(filepath.Join(sitePath, "sync_source"))
	if os.IsNotExist(err) {
		return sitePath, nil
	}
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func isDir(p string) bool {
	st, err := os.Stat(p)
	return err == nil && st.IsDir()
}

func isFile(p string) bool {
	st, err := os.Stat(p)
	return err == nil && st.Mode().IsRegular()
}
