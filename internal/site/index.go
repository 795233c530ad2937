package site

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"multipatch/internal/record/block"
	"multipatch/pkg/domain"
)

// IndexFile is the per-directory acquisition metadata file.
const IndexFile = ".index"

// Section is one nested block of an index file. Values are string, float64,
// int64, bool, nil or a nested Section.
type Section map[string]any

// Sub returns a nested section.
func (s Section) Sub(key string) (Section, bool) {
	v, ok := s[key].(Section)
	return v, ok
}

// String returns a string value.
func (s Section) String(key string) (string, bool) {
	v, ok := s[key].(string)
	return v, ok
}

// Float returns a numeric value as float64.
func (s Section) Float(key string) (float64, bool) {
	switch v := s[key].(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// ReadIndex parses the index file at path.
func ReadIndex(path string) (Section, error) {
	root, err := block.ParseFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ResourceMissingError{Resource: "index file", Location: path}
		}
		return nil, err
	}
	return sectionOf(root), nil
}

// DirInfo returns the "." section of dir's index file, describing dir itself.
func DirInfo(dir string) (Section, error) {
	path := filepath.Join(dir, IndexFile)
	idx, err := ReadIndex(path)
	if err != nil {
		return nil, err
	}
	info, ok := idx.Sub(".")
	if !ok {
		return nil, domain.ResourceMissingError{Resource: "index entry \".\"", Location: path}
	}
	return info, nil
}

func sectionOf(e *block.Entry) Section {
	out := make(Section, len(e.Children))
	for _, ch := range e.Children {
		key, raw, hasValue := strings.Cut(ch.Text, ": ")
		key = strings.TrimSpace(key)
		switch {
		case len(ch.Children) > 0:
			out[key] = sectionOf(ch)
		case hasValue:
			out[key] = parseValue(strings.TrimSpace(raw))
		default:
			out[key] = nil
		}
	}
	return out
}

// parseValue decodes the scalar forms written by the acquisition software;
// anything else is kept as raw text.
func parseValue(raw string) any {
	switch raw {
	case "None", "":
		return nil
	case "True":
		return true
	case "False":
		return false
	}
	if len(raw) >= 2 && (raw[0] == '\'' || raw[0] == '"') && raw[len(raw)-1] == raw[0] {
		return raw[1 : len(raw)-1]
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}
