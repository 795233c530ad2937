package domain

import (
	"errors"
	"fmt"
)

// Sentinels matched by the typed errors below through errors.Is.
var (
	ErrMalformedRecord      = errors.New("malformed record")
	ErrMissingReference     = errors.New("missing reference")
	ErrResourceMissing      = errors.New("external resource missing")
	ErrInvalidConfiguration = errors.New("invalid configuration")
	// ErrCacheCorrupt is only logged; callers recover by rebuilding the cache.
	ErrCacheCorrupt = errors.New("cache corrupt")
)

// MalformedRecordError reports a grammar violation in a source record.
type MalformedRecordError struct {
	Section string
	Line    string
	Reason  string
}

func (e MalformedRecordError) Error() string {
	if e.Line == "" {
		return fmt.Sprintf("malformed %s section: %s", e.Section, e.Reason)
	}
	return fmt.Sprintf("malformed %s section: %s (line %q)", e.Section, e.Reason, e.Line)
}

// Is matches ErrMalformedRecord.
func (e MalformedRecordError) Is(target error) bool { return target == ErrMalformedRecord }

// MissingReferenceError reports a record that names a cell id absent from the registry.
type MissingReferenceError struct {
	Section string
	CellID  int
}

func (e MissingReferenceError) Error() string {
	return fmt.Sprintf("%s references unknown cell %d", e.Section, e.CellID)
}

// Is matches ErrMissingReference.
func (e MissingReferenceError) Is(target error) bool { return target == ErrMissingReference }

// ResourceMissingError reports a file, directory or external record that could not be found.
type ResourceMissingError struct {
	Resource string
	Location string
	Reason   string
}

func (e ResourceMissingError) Error() string {
	msg := fmt.Sprintf("%s not found", e.Resource)
	if e.Location != "" {
		msg += fmt.Sprintf(" (%s)", e.Location)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// Is matches ErrResourceMissing.
func (e ResourceMissingError) Is(target error) bool { return target == ErrResourceMissing }

// InvalidConfigurationError reports values that parse but cannot be used.
type InvalidConfigurationError struct {
	Field  string
	Reason string
}

func (e InvalidConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is matches ErrInvalidConfiguration.
func (e InvalidConfigurationError) Is(target error) bool { return target == ErrInvalidConfiguration }
