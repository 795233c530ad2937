// Package nwb describes the recording-file collaborator: sweeps of per-channel
// records read from a multipatch NWB file, plus a local mirror of those files.
package nwb

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"multipatch/pkg/domain"
)

// ClampMode is the amplifier mode of a record.
type ClampMode string

// Clamp modes.
const (
	VoltageClamp ClampMode = "vc"
	CurrentClamp ClampMode = "ic"
)

// Record is one channel of one sweep. Optional values are nil when not recorded.
type Record struct {
	StimName          string
	ClampMode         ClampMode
	HoldingCurrent    *float64
	HoldingPotential  *float64
	BaselineCurrent   *float64
	BaselinePotential *float64
}

// Sweep groups the records acquired together, keyed by AD channel.
type Sweep struct {
	Records map[int]Record
}

// Devices returns the sweep's channels in ascending order.
func (s Sweep) Devices() []int {
	out := make([]int, 0, len(s.Records))
	for ch := range s.Records {
		out = append(out, ch)
	}
	sort.Ints(out)
	return out
}

// Recording is an open recording file. Close must be called when done.
type Recording interface {
	Sweeps(ctx context.Context) ([]Sweep, error)
	Close() error
}

// Opener opens recording files by local path. Open errors wrapping ErrCorrupt
// mark an undecodable file; callers reading through a Mirror refresh the local
// copy and retry once only for those.
type Opener interface {
	Open(ctx context.Context, path string) (Recording, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, path string) (Recording, error)

// Open calls f.
func (f OpenerFunc) Open(ctx context.Context, path string) (Recording, error) { return f(ctx, path) }

// Unavailable is used when no recording reader is configured.
var Unavailable Opener = OpenerFunc(func(_ context.Context, path string) (Recording, error) {
	return nil, domain.ResourceMissingError{Resource: "recording reader", Location: path, Reason: "no reader configured"}
})

// Static serves in-memory recordings by path and counts opens and closes.
type Static struct {
	mu     sync.Mutex
	sweeps map[string][]Sweep
	opened map[string]int
	closed map[string]int
	fail   map[string]int
}

// NewStatic returns an empty static opener.
func NewStatic() *Static {
	return &Static{
		sweeps: make(map[string][]Sweep),
		opened: make(map[string]int),
		closed: make(map[string]int),
		fail:   make(map[string]int),
	}
}

// Add registers the sweeps served for path.
func (s *Static) Add(path string, sweeps ...Sweep) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweeps[path] = sweeps
}

// FailNext makes the next n opens of path fail as if the file were corrupt.
func (s *Static) FailNext(path string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[path] = n
}

// Open implements Opener.
func (s *Static) Open(_ context.Context, path string) (Recording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail[path] > 0 {
		s.fail[path]--
		return nil, fmt.Errorf("open %s: %w", path, ErrCorrupt)
	}
	sweeps, ok := s.sweeps[path]
	if !ok {
		return nil, domain.ResourceMissingError{Resource: "recording", Location: path}
	}
	s.opened[path]++
	return &staticRecording{owner: s, path: path, sweeps: sweeps}, nil
}

// Opened reports how many times path was opened successfully.
func (s *Static) Opened(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened[path]
}

// Closed reports how many times a recording of path was closed.
func (s *Static) Closed(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed[path]
}

type staticRecording struct {
	owner  *Static
	path   string
	sweeps []Sweep
}

func (r *staticRecording) Sweeps(context.Context) ([]Sweep, error) { return r.sweeps, nil }

func (r *staticRecording) Close() error {
	r.owner.mu.Lock()
	defer r.owner.mu.Unlock()
	r.owner.closed[r.path]++
	return nil
}
