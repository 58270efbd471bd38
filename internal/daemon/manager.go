package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/elsanchez/smart-stream/internal/domain"
	"github.com/elsanchez/smart-stream/internal/downloader"
	"github.com/elsanchez/smart-stream/internal/postprocessor"
	"github.com/elsanchez/smart-stream/internal/repository"
	"github.com/elsanchez/smart-stream/internal/storage"
)

var (
	// ErrWorkerActive se retorna cuando una operación administrativa
	// choca con un worker vivo para el mismo video
	ErrWorkerActive = errors.New("a download worker is active for this video")

	ErrAlreadyCompleted   = errors.New("video already completed")
	ErrAlreadyDownloading = errors.New("video already downloading")
)

// Health resume la salud del video para el endpoint de status
type Health string

const (
	HealthOK              Health = "ok"
	HealthStalled         Health = "stalled"
	HealthMissingArtifact Health = "missing_artifact"
)

// WorkerHandle identifica un worker en ejecución.
// Hasta que launched es true el handle solo reserva el id.
type WorkerHandle struct {
	VideoID   string
	StartedAt time.Time
	done      chan struct{}
	launched  bool // protegido por Manager.mu
}

func newHandle(id string) *WorkerHandle {
	return &WorkerHandle{VideoID: id, StartedAt: time.Now(), done: make(chan struct{})}
}

// Alive indica si el worker sigue ejecutándose
func (h *WorkerHandle) Alive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// Done se cierra cuando el worker termina
func (h *WorkerHandle) Done() <-chan struct{} {
	return h.done
}

// StatusReport combina el estado persistido con el del worker en memoria
type StatusReport struct {
	Video        *domain.Video
	ThreadStatus domain.VideoStatus
	Alive        bool
	StartedAt    *time.Time
	Elapsed      time.Duration
	FileStatus   string
	Health       Health
}

// Stats son los contadores globales
type Stats struct {
	Pending       int   `json:"pending"`
	Downloading   int   `json:"downloading"`
	Completed     int   `json:"completed"`
	Error         int   `json:"error"`
	Total         int   `json:"total"`
	TotalSize     int64 `json:"total_size"`
	ActiveWorkers int   `json:"active_workers"`
}

// Manager lanza un worker por video y garantiza que no haya dos
// workers vivos para el mismo id
type Manager struct {
	repo   repository.VideoRepository
	store  *storage.Storage
	worker *Worker

	mu     sync.Mutex
	active map[string]*WorkerHandle
	wg     sync.WaitGroup

	// OnFilesChanged se llama cuando se eliminan archivos de un video
	OnFilesChanged func(id string)
}

// NewManager crea un nuevo manager
func NewManager(repo repository.VideoRepository, store *storage.Storage, worker *Worker) *Manager {
	return &Manager{
		repo:   repo,
		store:  store,
		worker: worker,
		active: make(map[string]*WorkerHandle),
	}
}

// RequestDownload inicia la descarga de un video.
// Retorna false sin efectos si ya está completado, descargándose
// o si hay un worker vivo para el id.
func (m *Manager) RequestDownload(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	if h, ok := m.active[id]; ok && h.Alive() {
		m.mu.Unlock()
		return false, nil
	}
	// Reservar el slot antes de tocar la base
	h := newHandle(id)
	m.active[id] = h
	m.mu.Unlock()

	_, err := m.repo.Update(ctx, id, func(v *domain.Video) error {
		switch v.Status {
		case domain.StatusCompleted:
			return ErrAlreadyCompleted
		case domain.StatusDownloading:
			return ErrAlreadyDownloading
		}
		v.ErrorMessage = ""
		return v.TransitionTo(domain.StatusDownloading)
	})
	if err != nil {
		m.release(h)
		if errors.Is(err, ErrAlreadyCompleted) || errors.Is(err, ErrAlreadyDownloading) {
			return false, nil
		}
		return false, err
	}

	m.mu.Lock()
	h.StartedAt = time.Now()
	h.launched = true
	m.mu.Unlock()

	m.wg.Add(1)
	go m.run(h)

	log.WithField("video", id).Info("Download started")
	return true, nil
}

func (m *Manager) run(h *WorkerHandle) {
	defer m.wg.Done()
	defer m.release(h)

	// Los workers no dependen del contexto del request que los lanzó
	m.worker.Run(context.Background(), h.VideoID)
}

// release quita el handle solo si sigue siendo el registrado
func (m *Manager) release(h *WorkerHandle) {
	m.mu.Lock()
	if m.active[h.VideoID] == h {
		delete(m.active, h.VideoID)
	}
	m.mu.Unlock()

	select {
	case <-h.done:
	default:
		close(h.done)
	}
}

// liveHandle retorna el handle vivo para id, incluyendo reservas
func (m *Manager) liveHandle(id string) *WorkerHandle {
	if h, ok := m.active[id]; ok && h.Alive() {
		return h
	}
	return nil
}

// Handle retorna el worker lanzado para id, si existe.
// Una reserva que todavía puede ser rechazada no cuenta.
func (m *Manager) Handle(id string) (WorkerHandle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h := m.liveHandle(id)
	if h == nil || !h.launched {
		return WorkerHandle{}, false
	}
	return *h, true
}

// GetStatus reporta el estado del video y de su worker
func (m *Manager) GetStatus(ctx context.Context, id string) (*StatusReport, error) {
	v, err := m.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	report := &StatusReport{
		Video:        v,
		ThreadStatus: v.Status,
		FileStatus:   m.fileStatus(v),
		Health:       HealthOK,
	}

	if h, ok := m.Handle(id); ok {
		started := h.StartedAt
		report.ThreadStatus = domain.StatusDownloading
		report.Alive = true
		report.StartedAt = &started
		report.Elapsed = time.Since(started)
	}

	switch {
	case v.Status == domain.StatusDownloading && !report.Alive:
		report.Health = HealthStalled
	case v.Status == domain.StatusCompleted && report.FileStatus == "missing":
		report.Health = HealthMissingArtifact
	}

	return report, nil
}

func (m *Manager) fileStatus(v *domain.Video) string {
	if !v.HasFile() {
		return "not_started"
	}

	info, err := m.store.Stat(*v.VideoFile)
	switch {
	case err == nil:
		return fmt.Sprintf("exists (%d bytes)", info.Size())
	case os.IsNotExist(err):
		return "missing"
	default:
		return "error"
	}
}

// ResetToPending devuelve a pending un video en error o descarga colgada
func (m *Manager) ResetToPending(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.liveHandle(id) != nil {
		return ErrWorkerActive
	}
	return m.resetLocked(ctx, id)
}

func (m *Manager) resetLocked(ctx context.Context, id string) error {
	_, err := m.repo.Update(ctx, id, func(v *domain.Video) error {
		switch v.Status {
		case domain.StatusPending:
			return nil
		case domain.StatusCompleted:
			return ErrAlreadyCompleted
		}
		return v.TransitionTo(domain.StatusPending)
	})
	if err == nil {
		log.WithField("video", id).Info("Reset to pending")
	}
	return err
}

// Retry resetea un video en error o colgado y vuelve a descargarlo
func (m *Manager) Retry(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	if m.liveHandle(id) != nil {
		m.mu.Unlock()
		return false, ErrWorkerActive
	}
	err := m.resetLocked(ctx, id)
	m.mu.Unlock()

	if err != nil {
		return false, err
	}
	return m.RequestDownload(ctx, id)
}

// ClearFiles borra el video y la miniatura y deja el registro en pending.
// Retorna true si se eliminó algún archivo.
func (m *Manager) ClearFiles(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.liveHandle(id) != nil {
		return false, ErrWorkerActive
	}

	v, err := m.repo.GetByID(ctx, id)
	if err != nil {
		return false, err
	}

	removed := m.removeFiles(v)

	_, err = m.repo.Update(ctx, id, func(v *domain.Video) error {
		v.VideoFile = nil
		v.Thumbnail = nil
		v.FileSize = 0
		v.Duration = 0
		v.ErrorMessage = ""
		if v.Status == domain.StatusPending {
			return nil
		}
		return v.TransitionTo(domain.StatusPending)
	})
	if err != nil {
		return removed, err
	}

	m.filesChanged(id)
	return removed, nil
}

// DeleteVideo borra los archivos y luego el registro
func (m *Manager) DeleteVideo(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.liveHandle(id) != nil {
		return ErrWorkerActive
	}

	v, err := m.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	m.removeFiles(v)

	// Descarga parcial o conversión que hayan quedado en staging
	staging := m.store.StagingPath(downloader.StagingName(v.DownloadURL, id))
	for _, path := range []string{staging, postprocessor.OutputPath(staging)} {
		if err := m.store.Fs().Remove(path); err != nil && !os.IsNotExist(err) {
			log.WithField("video", id).WithError(err).Warnf("Failed to remove staging file %s", path)
		}
	}

	if err := m.repo.Delete(ctx, id); err != nil {
		return err
	}

	m.filesChanged(id)
	log.WithField("video", id).Info("Video deleted")
	return nil
}

// removeFiles elimina video y miniatura. Los errores solo se loguean.
func (m *Manager) removeFiles(v *domain.Video) bool {
	logger := log.WithField("video", v.ID)
	removed := false

	for _, rel := range []*string{v.VideoFile, v.Thumbnail} {
		if rel == nil || *rel == "" {
			continue
		}
		ok, err := m.store.Remove(*rel)
		if err != nil {
			logger.WithError(err).Warnf("Failed to remove %s", *rel)
			continue
		}
		if ok {
			logger.Infof("Removed %s", *rel)
			removed = true
		}
	}

	return removed
}

func (m *Manager) filesChanged(id string) {
	if m.OnFilesChanged != nil {
		m.OnFilesChanged(id)
	}
}

// Reconcile revisa los videos que quedaron en downloading sin worker
// (por ejemplo tras un reinicio) y los devuelve a pending.
// Con resume=true además los vuelve a lanzar.
func (m *Manager) Reconcile(ctx context.Context, resume bool) (int, error) {
	stuck, err := m.repo.GetByStatus(ctx, domain.StatusDownloading)
	if err != nil {
		return 0, fmt.Errorf("list downloading videos: %w", err)
	}

	reset := 0
	for _, v := range stuck {
		logger := log.WithField("video", v.ID)

		if err := m.ResetToPending(ctx, v.ID); err != nil {
			if !errors.Is(err, ErrWorkerActive) {
				logger.WithError(err).Warn("Reconcile reset failed")
			}
			continue
		}
		reset++

		if resume {
			if _, err := m.RequestDownload(ctx, v.ID); err != nil {
				logger.WithError(err).Warn("Reconcile resume failed")
			}
		}
	}

	if reset > 0 {
		log.Infof("Reconciled %d stalled download(s), resume=%v", reset, resume)
	}
	return reset, nil
}

// ActiveCount retorna cuántos workers están vivos
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, h := range m.active {
		if h.launched && h.Alive() {
			n++
		}
	}
	return n
}

// Wait bloquea hasta que todos los workers terminen
func (m *Manager) Wait() {
	m.wg.Wait()
}

// GetStats retorna estadísticas globales
func (m *Manager) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{ActiveWorkers: m.ActiveCount()}

	counts := []struct {
		status domain.VideoStatus
		dst    *int
	}{
		{domain.StatusPending, &stats.Pending},
		{domain.StatusDownloading, &stats.Downloading},
		{domain.StatusCompleted, &stats.Completed},
		{domain.StatusError, &stats.Error},
	}
	for _, c := range counts {
		n, err := m.repo.CountByStatus(ctx, c.status)
		if err != nil {
			return nil, err
		}
		*c.dst = n
	}

	var err error
	if stats.Total, err = m.repo.CountTotal(ctx); err != nil {
		return nil, err
	}
	if stats.TotalSize, err = m.repo.TotalSize(ctx); err != nil {
		return nil, err
	}

	return stats, nil
}
