package nwb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"multipatch/internal/blob"
	"multipatch/internal/observability"
	"multipatch/pkg/domain"
)

// ErrCorrupt marks a recording file that could not be decoded.
var ErrCorrupt = errors.New("recording file corrupt")

// Mirror keeps local copies of recording files under CacheDir and shares them
// through an archive store so other machines can reuse them when the source
// volume is offline.
type Mirror struct {
	// Root is stripped from source paths to form archive keys.
	Root     string
	CacheDir string
	Archive  blob.Store
	Logger   observability.Logger
}

// Key returns the archive key of a source recording path.
func (m *Mirror) Key(source string) string {
	p := filepath.Clean(source)
	if m.Root != "" {
		if rel, err := filepath.Rel(m.Root, p); err == nil && !strings.HasPrefix(rel, "..") {
			p = rel
		}
	}
	p = filepath.ToSlash(p)
	p = strings.TrimLeft(strings.TrimPrefix(p, filepath.VolumeName(p)), "/")
	return p
}

// LocalPath returns where the mirrored copy of source lives.
func (m *Mirror) LocalPath(source string) string {
	return filepath.Join(m.CacheDir, filepath.FromSlash(m.Key(source)))
}

// Local returns a local copy of source, refreshing it when the source is newer.
// When the source is unreachable an existing copy is reused, then the archive is tried.
func (m *Mirror) Local(ctx context.Context, source string) (string, error) {
	log := observability.OrNop(m.Logger)
	local := m.LocalPath(source)
	srcInfo, srcErr := os.Stat(source)
	localInfo, localErr := os.Stat(local)

	if srcErr == nil {
		if localErr == nil && !srcInfo.ModTime().After(localInfo.ModTime()) {
			return local, nil
		}
		log.Info("copying recording to cache", "source", source, "cache", local)
		if err := copyFile(source, local); err != nil {
			return "", fmt.Errorf("mirror %s: %w", source, err)
		}
		if m.Archive != nil {
			if err := m.upload(ctx, source, local, srcInfo.ModTime()); err != nil {
				log.Warn("archive upload failed", "source", source, "error", err)
			}
		}
		return local, nil
	}

	if localErr == nil {
		log.Warn("recording source unavailable; using cached copy", "source", source, "error", srcErr)
		return local, nil
	}
	if m.Archive != nil {
		err := m.download(ctx, source, local)
		if err == nil {
			log.Info("restored recording from archive", "source", source, "driver", m.Archive.Driver())
			return local, nil
		}
		if !errors.Is(err, blob.ErrNotFound) {
			return "", fmt.Errorf("restore %s from archive: %w", source, err)
		}
	}
	return "", domain.ResourceMissingError{Resource: "recording", Location: source, Reason: srcErr.Error()}
}

// Evict removes the local copy of source so the next Local call fetches it again.
func (m *Mirror) Evict(source string) error {
	err := os.Remove(m.LocalPath(source))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (m *Mirror) upload(ctx context.Context, source, local string, mtime time.Time) error {
	f, err := os.Open(local)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	_, err = m.Archive.Put(ctx, m.Key(source), f, blob.PutOptions{
		ContentType: "application/x-hdf5",
		Metadata: map[string]string{
			blob.MetaSourcePath:  source,
			blob.MetaSourceMTime: strconv.FormatInt(mtime.Unix(), 10),
		},
	})
	return err
}

func (m *Mirror) download(ctx context.Context, source, local string) error {
	_, rc, err := m.Archive.Get(ctx, m.Key(source))
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()
	return writeAtomic(local, rc)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()
	return writeAtomic(dst, in)
}

// writeAtomic writes r to a temp file beside dst and renames it into place.
func writeAtomic(dst string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".tmp-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	_, err = io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}
