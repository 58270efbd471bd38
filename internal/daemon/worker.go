package daemon

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime/debug"

	log "github.com/sirupsen/logrus"

	"github.com/elsanchez/smart-stream/internal/domain"
	"github.com/elsanchez/smart-stream/internal/downloader"
	"github.com/elsanchez/smart-stream/internal/postprocessor"
	"github.com/elsanchez/smart-stream/internal/repository"
	"github.com/elsanchez/smart-stream/internal/storage"
)

// Worker ejecuta el ciclo completo de un video:
// descarga, conversión, guardado y estado final
type Worker struct {
	repo       repository.VideoRepository
	downloader downloader.Downloader
	transcoder postprocessor.Transcoder // opcional
	prober     postprocessor.Prober     // opcional
	store      *storage.Storage
}

// NewWorker crea un nuevo worker
func NewWorker(
	repo repository.VideoRepository,
	dl downloader.Downloader,
	transcoder postprocessor.Transcoder,
	prober postprocessor.Prober,
	store *storage.Storage,
) *Worker {
	return &Worker{
		repo:       repo,
		downloader: dl,
		transcoder: transcoder,
		prober:     prober,
		store:      store,
	}
}

// Run procesa un video. Cualquier error o panic deja el video en error.
func (w *Worker) Run(ctx context.Context, id string) (err error) {
	logger := log.WithField("video", id)

	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("Worker panic: %v\n%s", r, debug.Stack())
			err = fmt.Errorf("worker panic: %v", r)
		}
		if err != nil {
			w.markError(id, err)
		}
	}()

	v, err := w.repo.Update(ctx, id, func(v *domain.Video) error {
		if v.Status == domain.StatusCompleted {
			return ErrAlreadyCompleted
		}
		v.ErrorMessage = ""
		return v.TransitionTo(domain.StatusDownloading)
	})
	if errors.Is(err, ErrAlreadyCompleted) {
		logger.Info("Already completed, nothing to do")
		return nil
	}
	if err != nil {
		return fmt.Errorf("mark downloading: %w", err)
	}

	staging := w.store.StagingPath(downloader.StagingName(v.DownloadURL, id))
	logger.Infof("Downloading %s to %s", v.DownloadURL, staging)

	result, err := w.downloader.Fetch(ctx, v.DownloadURL, staging)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	logger.Infof("Downloaded %d bytes in %d attempt(s)", result.Size, result.Attempts)

	artifact := staging
	if w.transcoder != nil && w.transcoder.NeedsConversion(staging) {
		logger.Info("Converting to mp4")

		converted, err := w.transcoder.Convert(ctx, staging)
		if err != nil {
			logger.WithError(err).Error("Conversion failed, keeping original")
			return fmt.Errorf("transcode: %w", err)
		}
		artifact = converted
	}

	duration := 0
	if w.prober != nil {
		if info, err := w.prober.Probe(ctx, artifact); err != nil {
			logger.WithError(err).Warn("Probe failed, duration unknown")
		} else {
			duration = int(math.Round(info.Duration))
		}
	}

	rel, size, err := w.store.Commit(artifact, storage.VideosDir)
	if err != nil {
		return fmt.Errorf("save to storage: %w", err)
	}

	_, err = w.repo.Update(ctx, id, func(v *domain.Video) error {
		v.VideoFile = &rel
		v.FileSize = size
		v.Duration = duration
		v.ErrorMessage = ""
		return v.TransitionTo(domain.StatusCompleted)
	})
	if err != nil {
		// Sin registro que lo apunte el archivo quedaría huérfano
		if _, rmErr := w.store.Remove(rel); rmErr != nil {
			logger.WithError(rmErr).Warn("Failed to remove orphaned file")
		}
		return fmt.Errorf("mark completed: %w", err)
	}

	logger.Infof("Completed: %s (%s)", rel, domain.HumanSize(size))
	return nil
}

// markError persiste el estado error. Si falla solo se loguea.
func (w *Worker) markError(id string, cause error) {
	logger := log.WithField("video", id)
	logger.WithError(cause).Error("Download failed")

	_, err := w.repo.Update(context.Background(), id, func(v *domain.Video) error {
		v.ErrorMessage = cause.Error()
		return v.TransitionTo(domain.StatusError)
	})
	if err != nil {
		logger.WithError(err).Error("Failed to persist error status")
	}
}
