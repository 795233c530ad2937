package fs

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"multipatch/internal/blob/core"
)

func TestPutWritesSidecar(t *testing.T) {
	root := t.TempDir()
	s, err := New(root)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	info, err := s.Put(context.Background(), "a/b.nwb", bytes.NewReader([]byte("abc")), core.PutOptions{
		ContentType: "application/x-hdf5",
		Metadata:    map[string]string{core.MetaSourcePath: "/data/b.nwb"},
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != 3 || len(info.ETag) != 64 {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := os.Stat(filepath.Join(root, "a", "b.nwb.meta")); err != nil {
		t.Fatalf("expected sidecar: %v", err)
	}
	head, err := s.Head(context.Background(), "a/b.nwb")
	if err != nil || head.Metadata[core.MetaSourcePath] != "/data/b.nwb" || head.ContentType != "application/x-hdf5" {
		t.Fatalf("unexpected head %+v %v", head, err)
	}
	if _, err := s.Head(context.Background(), "a/c.nwb"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSanitizeKey(t *testing.T) {
	for _, key := range []string{"", "  ", "/abs", "../up", "a/../../b"} {
		if _, err := sanitizeKey(key); err == nil {
			t.Fatalf("expected %q to be rejected", key)
		}
	}
	if k, err := sanitizeKey("a//b/./c.nwb"); err != nil || k != "a/b/c.nwb" {
		t.Fatalf("unexpected clean key %q %v", k, err)
	}
}

func TestListSkipsTempFiles(t *testing.T) {
	root := t.TempDir()
	s, _ := New(root)
	if _, err := s.Put(context.Background(), "x/1.nwb", bytes.NewReader(nil), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "x", ".tmp-123"), []byte("partial"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	list, err := s.List(context.Background(), "")
	if err != nil || len(list) != 1 || list[0].Key != "x/1.nwb" {
		t.Fatalf("unexpected list %v %v", list, err)
	}
}
