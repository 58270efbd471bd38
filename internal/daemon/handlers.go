package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/elsanchez/smart-stream/internal/domain"
	"github.com/elsanchez/smart-stream/internal/downloader"
	"github.com/elsanchez/smart-stream/internal/repository"
)

const defaultListLimit = 50

// VideoStreamer sirve los bytes de un video
type VideoStreamer interface {
	ServeVideo(w http.ResponseWriter, r *http.Request, id string)
}

// Handlers maneja las peticiones HTTP
type Handlers struct {
	repo     repository.VideoRepository
	manager  *Manager
	streamer VideoStreamer
}

// NewHandlers crea un nuevo conjunto de handlers
func NewHandlers(repo repository.VideoRepository, manager *Manager, streamer VideoStreamer) *Handlers {
	return &Handlers{
		repo:     repo,
		manager:  manager,
		streamer: streamer,
	}
}

// VideoResponse es la representación JSON de un video
type VideoResponse struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	Description   string  `json:"description"`
	DownloadURL   string  `json:"download_url"`
	VideoFile     *string `json:"video_file"`
	Thumbnail     *string `json:"thumbnail"`
	Status        string  `json:"status"`
	FileSize      int64   `json:"file_size"`
	FileSizeHuman string  `json:"file_size_human"`
	Duration      int     `json:"duration"`
	DurationHuman string  `json:"duration_human"`
	ErrorMessage  string  `json:"error_message"`
	CreatedAt     string  `json:"created_at"`
	UpdatedAt     string  `json:"updated_at"`
}

func toVideoResponse(v *domain.Video) VideoResponse {
	return VideoResponse{
		ID:            v.ID,
		Title:         v.Title,
		Description:   v.Description,
		DownloadURL:   v.DownloadURL,
		VideoFile:     v.VideoFile,
		Thumbnail:     v.Thumbnail,
		Status:        string(v.Status),
		FileSize:      v.FileSize,
		FileSizeHuman: v.FileSizeHuman(),
		Duration:      v.Duration,
		DurationHuman: v.DurationHuman(),
		ErrorMessage:  v.ErrorMessage,
		CreatedAt:     v.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     v.UpdatedAt.Format(time.RFC3339),
	}
}

// StatusResponse es la respuesta de GET /video/{id}/status
type StatusResponse struct {
	VideoID        string   `json:"video_id"`
	Title          string   `json:"title"`
	DatabaseStatus string   `json:"database_status"`
	ThreadStatus   string   `json:"thread_status"`
	ThreadAlive    bool     `json:"thread_alive"`
	StartedAt      *string  `json:"started_at"`
	ElapsedSeconds *float64 `json:"elapsed_seconds"`
	FileStatus     string   `json:"file_status"`
	Health         string   `json:"health"`
	DownloadURL    string   `json:"download_url"`
	CreatedAt      string   `json:"created_at"`
	UpdatedAt      string   `json:"updated_at"`
	ErrorMessage   string   `json:"error_message"`
}

// CreateVideoRequest es el body de POST /videos
type CreateVideoRequest struct {
	DownloadURL  string `json:"download_url"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	AutoDownload *bool  `json:"auto_download"`
}

// CreateVideoResponse es la respuesta de POST /videos
type CreateVideoResponse struct {
	Video           VideoResponse `json:"video"`
	DownloadStarted bool          `json:"download_started"`
}

// HandleStream sirve el archivo con soporte de Range
func (h *Handlers) HandleStream(w http.ResponseWriter, r *http.Request) {
	h.streamer.ServeVideo(w, r, chi.URLParam(r, "id"))
}

// HandleStatus reporta estado persistido y del worker
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	report, err := h.manager.GetStatus(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	v := report.Video
	resp := StatusResponse{
		VideoID:        v.ID,
		Title:          v.Title,
		DatabaseStatus: string(v.Status),
		ThreadStatus:   string(report.ThreadStatus),
		ThreadAlive:    report.Alive,
		FileStatus:     report.FileStatus,
		Health:         string(report.Health),
		DownloadURL:    v.DownloadURL,
		CreatedAt:      v.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      v.UpdatedAt.Format(time.RFC3339),
		ErrorMessage:   v.ErrorMessage,
	}
	if report.StartedAt != nil {
		started := report.StartedAt.Format(time.RFC3339)
		elapsed := report.Elapsed.Seconds()
		resp.StartedAt = &started
		resp.ElapsedSeconds = &elapsed
	}

	writeJSON(w, http.StatusOK, resp)
}

// HandleDownload dispara la descarga: 202 si arrancó, 409 si no
func (h *Handlers) HandleDownload(w http.ResponseWriter, r *http.Request) {
	started, err := h.manager.RequestDownload(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeStarted(w, started)
}

// HandleRetry resetea un video en error o colgado y lo relanza
func (h *Handlers) HandleRetry(w http.ResponseWriter, r *http.Request) {
	started, err := h.manager.Retry(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeStarted(w, started)
}

// HandleReset devuelve el video a pending
func (h *Handlers) HandleReset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.manager.ResetToPending(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	h.writeVideo(w, r, id, http.StatusOK)
}

// HandleClearFiles borra los archivos del video
func (h *Handlers) HandleClearFiles(w http.ResponseWriter, r *http.Request) {
	removed, err := h.manager.ClearFiles(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"removed": removed})
}

// HandleDelete borra archivos y registro
func (h *Handlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.DeleteVideo(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleGet retorna un video
func (h *Handlers) HandleGet(w http.ResponseWriter, r *http.Request) {
	h.writeVideo(w, r, chi.URLParam(r, "id"), http.StatusOK)
}

// HandleList lista videos recientes, opcionalmente filtrados por status
func (h *Handlers) HandleList(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			http.Error(w, fmt.Sprintf("invalid limit %q", s), http.StatusBadRequest)
			return
		}
		limit = n
	}

	var (
		videos []*domain.Video
		err    error
	)
	if s := r.URL.Query().Get("status"); s != "" {
		status := domain.VideoStatus(s)
		if !status.Valid() {
			http.Error(w, fmt.Sprintf("invalid status %q", s), http.StatusBadRequest)
			return
		}
		videos, err = h.repo.GetByStatus(r.Context(), status)
		if len(videos) > limit {
			videos = videos[:limit]
		}
	} else {
		videos, err = h.repo.GetRecent(r.Context(), limit)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	items := make([]VideoResponse, 0, len(videos))
	for _, v := range videos {
		items = append(items, toVideoResponse(v))
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"videos": items,
		"count":  len(items),
	})
}

// HandleCreate registra un video nuevo y, por defecto, lo descarga
func (h *Handlers) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateVideoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
		return
	}

	if req.DownloadURL == "" {
		http.Error(w, "download_url is required", http.StatusBadRequest)
		return
	}
	if err := downloader.ValidateURL(req.DownloadURL); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	v := &domain.Video{
		ID:          uuid.NewString(),
		Title:       req.Title,
		Description: req.Description,
		DownloadURL: req.DownloadURL,
		Status:      domain.StatusPending,
	}
	if v.Title == "" {
		v.Title = downloader.DefaultTitle(req.DownloadURL)
	}

	if err := h.repo.Create(r.Context(), v); err != nil {
		writeError(w, err)
		return
	}

	resp := CreateVideoResponse{Video: toVideoResponse(v)}

	if req.AutoDownload == nil || *req.AutoDownload {
		started, err := h.manager.RequestDownload(r.Context(), v.ID)
		if err != nil {
			log.WithField("video", v.ID).WithError(err).Error("Auto download failed to start")
		}
		resp.DownloadStarted = started
		if started {
			resp.Video.Status = string(domain.StatusDownloading)
		}
	}

	writeJSON(w, http.StatusCreated, resp)
}

// HandleStats retorna estadísticas
func (h *Handlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.manager.GetStats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// HandleHealth responde si el daemon está vivo
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"active_workers": h.manager.ActiveCount(),
	})
}

func (h *Handlers) writeVideo(w http.ResponseWriter, r *http.Request, id string, code int) {
	v, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, code, toVideoResponse(v))
}

func writeStarted(w http.ResponseWriter, started bool) {
	code := http.StatusAccepted
	if !started {
		code = http.StatusConflict
	}
	writeJSON(w, code, map[string]bool{"started": started})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("Failed to encode response")
	}
}

// writeError traduce errores de dominio a códigos HTTP
func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, repository.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, ErrWorkerActive),
		errors.Is(err, ErrAlreadyCompleted),
		errors.Is(err, ErrAlreadyDownloading),
		errors.Is(err, domain.ErrInvalidTransition):
		code = http.StatusConflict
	default:
		log.WithError(err).Error("Request failed")
	}

	writeJSON(w, code, map[string]string{"error": err.Error()})
}
