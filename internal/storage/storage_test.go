package storage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
)

func newMemStorage(t *testing.T) *Storage {
	t.Helper()

	s, err := NewWithFs(afero.NewMemMapFs(), "/data/media", "/tmp/staging")
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	return s
}

func writeStaging(t *testing.T, s *Storage, name, content string) string {
	t.Helper()

	path := s.StagingPath(name)
	if err := afero.WriteFile(s.Fs(), path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write staging file: %v", err)
	}
	return path
}

func TestStorage_Commit(t *testing.T) {
	s := newMemStorage(t)
	staging := writeStaging(t, s, "abc_clip.mp4", "0123456789")

	rel, size, err := s.Commit(staging, VideosDir)
	if err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	if rel != filepath.Join(VideosDir, "abc_clip.mp4") {
		t.Errorf("unexpected relative path: %s", rel)
	}
	if size != 10 {
		t.Errorf("expected size 10, got %d", size)
	}
	if !s.Exists(rel) {
		t.Error("committed file does not exist")
	}
	if ok, _ := afero.Exists(s.Fs(), staging); ok {
		t.Error("staging file still exists after commit")
	}
}

func TestStorage_CommitCollision(t *testing.T) {
	s := newMemStorage(t)

	first, _, err := s.Commit(writeStaging(t, s, "clip.mp4", "a"), VideosDir)
	if err != nil {
		t.Fatalf("first commit failed: %v", err)
	}
	second, _, err := s.Commit(writeStaging(t, s, "clip.mp4", "bb"), VideosDir)
	if err != nil {
		t.Fatalf("second commit failed: %v", err)
	}

	if first == second {
		t.Fatalf("collision not resolved: %s", second)
	}
	if !strings.HasPrefix(filepath.Base(second), "clip_") || filepath.Ext(second) != ".mp4" {
		t.Errorf("unexpected collision name: %s", second)
	}

	info, err := s.Stat(first)
	if err != nil || info.Size() != 1 {
		t.Errorf("first file was overwritten")
	}
}

func TestStorage_CommitMissingStaging(t *testing.T) {
	s := newMemStorage(t)

	if _, _, err := s.Commit(s.StagingPath("nope.mp4"), VideosDir); err == nil {
		t.Fatal("expected error for missing staging file")
	}
}

func TestStorage_Remove(t *testing.T) {
	s := newMemStorage(t)
	rel, _, err := s.Commit(writeStaging(t, s, "clip.mp4", "x"), VideosDir)
	if err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	removed, err := s.Remove(rel)
	if err != nil || !removed {
		t.Fatalf("expected removal, got %v (%v)", removed, err)
	}

	removed, err = s.Remove(rel)
	if err != nil || removed {
		t.Fatalf("absent file should be tolerated, got %v (%v)", removed, err)
	}
}

// denyStatFs falla Stat con permiso denegado para todo lo que esté bajo prefix
type denyStatFs struct {
	afero.Fs
	prefix string
}

func (d denyStatFs) Stat(name string) (os.FileInfo, error) {
	if strings.HasPrefix(name, d.prefix) {
		return nil, &os.PathError{Op: "stat", Path: name, Err: os.ErrPermission}
	}
	return d.Fs.Stat(name)
}

func TestStorage_CommitStatError(t *testing.T) {
	fs := denyStatFs{Fs: afero.NewMemMapFs(), prefix: "/data/media/videos/"}
	s, err := NewWithFs(fs, "/data/media", "/tmp/staging")
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	staging := writeStaging(t, s, "a.mp4", "data")

	done := make(chan error, 1)
	go func() {
		_, _, err := s.Commit(staging, VideosDir)
		done <- err
	}()

	select {
	case err := <-done:
		if !errors.Is(err, os.ErrPermission) {
			t.Errorf("expected permission error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("commit did not return on stat error")
	}

	if ok, _ := afero.Exists(fs.Fs, staging); !ok {
		t.Error("staging file should be kept when commit fails")
	}
}

func TestStorage_PathRejectsEscapes(t *testing.T) {
	s := newMemStorage(t)

	tests := []string{"", "/etc/passwd", "../outside.mp4", "videos/../../x"}
	for _, rel := range tests {
		if _, err := s.Path(rel); !errors.Is(err, ErrOutsideRoot) {
			t.Errorf("Path(%q): expected ErrOutsideRoot, got %v", rel, err)
		}
	}

	abs, err := s.Path("videos/clip.mp4")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if abs != "/data/media/videos/clip.mp4" {
		t.Errorf("unexpected absolute path: %s", abs)
	}
}

func TestStorage_OnDisk(t *testing.T) {
	root := t.TempDir()
	s, err := New(filepath.Join(root, "media"), filepath.Join(root, "staging"))
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}

	rel, size, err := s.Commit(writeStaging(t, s, "clip.webm", "hello"), VideosDir)
	if err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	if size != 5 || !s.Exists(rel) {
		t.Errorf("unexpected commit result: %s %d", rel, size)
	}
}
