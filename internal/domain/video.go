package domain

import (
	"errors"
	"fmt"
	"time"
)

// VideoStatus representa los estados posibles de un video
type VideoStatus string

const (
	StatusPending     VideoStatus = "pending"
	StatusDownloading VideoStatus = "downloading"
	StatusCompleted   VideoStatus = "completed"
	StatusError       VideoStatus = "error"
)

// ErrInvalidTransition se retorna cuando un cambio de estado no está permitido
var ErrInvalidTransition = errors.New("invalid status transition")

// Video representa un video remoto con su ciclo de descarga/transcodificación
type Video struct {
	ID           string
	Title        string
	Description  string
	DownloadURL  string
	VideoFile    *string // relativo a la raíz de storage
	Thumbnail    *string // relativo a la raíz de storage
	Status       VideoStatus
	FileSize     int64 // bytes
	Duration     int   // segundos
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// transitions lista los cambios de estado válidos.
// Solo downloading puede llegar a completed.
var transitions = map[VideoStatus][]VideoStatus{
	StatusPending:     {StatusDownloading},
	StatusDownloading: {StatusDownloading, StatusCompleted, StatusError, StatusPending},
	StatusError:       {StatusDownloading, StatusPending},
	StatusCompleted:   {StatusPending},
}

// Valid retorna true si el status es uno de los conocidos
func (s VideoStatus) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransition indica si se puede pasar de from a to
func CanTransition(from, to VideoStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TransitionTo cambia el status validando la máquina de estados
func (v *Video) TransitionTo(next VideoStatus) error {
	if !CanTransition(v.Status, next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, v.Status, next)
	}
	v.Status = next
	return nil
}

// HasFile retorna true si el registro apunta a un archivo en storage
func (v *Video) HasFile() bool {
	return v.VideoFile != nil && *v.VideoFile != ""
}

// HasThumbnail retorna true si el registro apunta a una miniatura
func (v *Video) HasThumbnail() bool {
	return v.Thumbnail != nil && *v.Thumbnail != ""
}

// IsActive retorna true si el video está descargándose según la base de datos
func (v *Video) IsActive() bool {
	return v.Status == StatusDownloading
}

// FileSizeHuman formatea el tamaño en unidades legibles
func (v *Video) FileSizeHuman() string {
	return HumanSize(v.FileSize)
}

// DurationHuman formatea la duración como "1h 2m 3s"
func (v *Video) DurationHuman() string {
	return HumanDuration(v.Duration)
}

// HumanSize formatea bytes como "1.50 MB"
func HumanSize(size int64) string {
	if size == 0 {
		return "0 B"
	}

	value := float64(size)
	for _, unit := range []string{"B", "KB", "MB", "GB", "TB"} {
		if value < 1024.0 {
			return fmt.Sprintf("%.2f %s", value, unit)
		}
		value /= 1024.0
	}
	return fmt.Sprintf("%.2f PB", value)
}

// HumanDuration formatea segundos como "1h 2m 3s"
func HumanDuration(seconds int) string {
	if seconds <= 0 {
		return "0s"
	}

	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	secs := seconds % 60

	switch {
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, secs)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, secs)
	default:
		return fmt.Sprintf("%ds", secs)
	}
}
