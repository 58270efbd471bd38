package sqlite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/elsanchez/smart-stream/internal/domain"
	"github.com/elsanchez/smart-stream/internal/repository"
)

func newTestDB(t *testing.T) *Database {
	t.Helper()

	db, err := NewDatabase(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return db
}

func createVideo(t *testing.T, db *Database, status domain.VideoStatus) *domain.Video {
	t.Helper()

	v := &domain.Video{
		ID:          uuid.NewString(),
		Title:       "clip",
		DownloadURL: "https://example.com/media/clip.mkv",
		Status:      status,
	}
	if err := db.VideoRepo.Create(context.Background(), v); err != nil {
		t.Fatalf("failed to create video: %v", err)
	}
	return v
}

func TestDatabase_MigrationsApplied(t *testing.T) {
	tmpDir := t.TempDir()
	db, err := NewDatabase(tmpDir)
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(filepath.Join(tmpDir, DBFileName)); os.IsNotExist(err) {
		t.Fatal("database file was not created")
	}

	var count int
	err = db.DB.GetContext(context.Background(), &count,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='videos'")
	if err != nil {
		t.Fatalf("failed to query tables: %v", err)
	}
	if count != 1 {
		t.Error("videos table was not created")
	}
}

func TestDatabase_ReopenKeepsData(t *testing.T) {
	tmpDir := t.TempDir()

	db, err := NewDatabase(tmpDir)
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	v := createVideo(t, db, domain.StatusPending)
	db.Close()

	db, err = NewDatabase(tmpDir)
	if err != nil {
		t.Fatalf("failed to reopen database: %v", err)
	}
	defer db.Close()

	if _, err := db.VideoRepo.GetByID(context.Background(), v.ID); err != nil {
		t.Fatalf("video lost after reopen: %v", err)
	}
}

func TestVideoRepository_CreateAndGet(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	v := createVideo(t, db, "")
	if v.Status != domain.StatusPending {
		t.Errorf("expected default status pending, got %s", v.Status)
	}

	got, err := db.VideoRepo.GetByID(ctx, v.ID)
	if err != nil {
		t.Fatalf("failed to get video: %v", err)
	}

	if got.DownloadURL != v.DownloadURL {
		t.Errorf("expected URL %s, got %s", v.DownloadURL, got.DownloadURL)
	}
	if got.VideoFile != nil {
		t.Errorf("expected nil video file, got %q", *got.VideoFile)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Error("expected timestamps to be set")
	}
}

func TestVideoRepository_GetByIDNotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.VideoRepo.GetByID(context.Background(), "missing")
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestVideoRepository_Update(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	v := createVideo(t, db, domain.StatusDownloading)

	path := "videos/clip.mp4"
	updated, err := db.VideoRepo.Update(ctx, v.ID, func(v *domain.Video) error {
		v.VideoFile = &path
		v.FileSize = 4096
		v.Duration = 12
		return v.TransitionTo(domain.StatusCompleted)
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.Status != domain.StatusCompleted {
		t.Errorf("expected completed, got %s", updated.Status)
	}

	got, err := db.VideoRepo.GetByID(ctx, v.ID)
	if err != nil {
		t.Fatalf("failed to get video: %v", err)
	}
	if got.Status != domain.StatusCompleted {
		t.Errorf("expected persisted completed, got %s", got.Status)
	}
	if got.VideoFile == nil || *got.VideoFile != path {
		t.Errorf("expected video file %s, got %v", path, got.VideoFile)
	}
	if got.FileSize != 4096 || got.Duration != 12 {
		t.Errorf("unexpected size/duration: %d/%d", got.FileSize, got.Duration)
	}
}

func TestVideoRepository_UpdateMutatorErrorRollsBack(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	v := createVideo(t, db, domain.StatusCompleted)

	sentinel := errors.New("refused")
	_, err := db.VideoRepo.Update(ctx, v.ID, func(v *domain.Video) error {
		v.Title = "changed"
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected mutator error, got %v", err)
	}

	got, err := db.VideoRepo.GetByID(ctx, v.ID)
	if err != nil {
		t.Fatalf("failed to get video: %v", err)
	}
	if got.Title != "clip" {
		t.Errorf("mutation leaked after rollback: %q", got.Title)
	}
}

func TestVideoRepository_UpdateNotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.VideoRepo.Update(context.Background(), "missing", func(*domain.Video) error { return nil })
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// Varias goroutines compiten por pasar pending → downloading; solo una gana.
func TestVideoRepository_UpdateIsAtomic(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	v := createVideo(t, db, domain.StatusPending)

	const workers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := db.VideoRepo.Update(ctx, v.ID, func(v *domain.Video) error {
				if v.Status != domain.StatusPending {
					return errors.New("taken")
				}
				return v.TransitionTo(domain.StatusDownloading)
			})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
}

func TestVideoRepository_Delete(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	v := createVideo(t, db, domain.StatusPending)

	if err := db.VideoRepo.Delete(ctx, v.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := db.VideoRepo.GetByID(ctx, v.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := db.VideoRepo.Delete(ctx, v.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestVideoRepository_QueriesAndStats(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	createVideo(t, db, domain.StatusPending)
	createVideo(t, db, domain.StatusPending)
	done := createVideo(t, db, domain.StatusDownloading)

	if _, err := db.VideoRepo.Update(ctx, done.ID, func(v *domain.Video) error {
		v.FileSize = 1000
		return v.TransitionTo(domain.StatusCompleted)
	}); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	pending, err := db.VideoRepo.GetByStatus(ctx, domain.StatusPending)
	if err != nil {
		t.Fatalf("get by status failed: %v", err)
	}
	if len(pending) != 2 {
		t.Errorf("expected 2 pending, got %d", len(pending))
	}

	recent, err := db.VideoRepo.GetRecent(ctx, 2)
	if err != nil {
		t.Fatalf("get recent failed: %v", err)
	}
	if len(recent) != 2 {
		t.Errorf("expected 2 recent, got %d", len(recent))
	}

	total, err := db.VideoRepo.CountTotal(ctx)
	if err != nil || total != 3 {
		t.Errorf("expected total 3, got %d (%v)", total, err)
	}

	completed, err := db.VideoRepo.CountByStatus(ctx, domain.StatusCompleted)
	if err != nil || completed != 1 {
		t.Errorf("expected 1 completed, got %d (%v)", completed, err)
	}

	size, err := db.VideoRepo.TotalSize(ctx)
	if err != nil || size != 1000 {
		t.Errorf("expected total size 1000, got %d (%v)", size, err)
	}
}
