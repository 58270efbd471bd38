package repository

import (
	"context"
	"errors"

	"github.com/elsanchez/smart-stream/internal/domain"
)

// ErrNotFound se retorna cuando el video no existe
var ErrNotFound = errors.New("video not found")

// Mutator modifica un video dentro de la transacción de Update.
// Si retorna error no se persiste nada. No debe acceder a la base de datos.
type Mutator func(v *domain.Video) error

// VideoRepository define las operaciones sobre videos
type VideoRepository interface {
	// CRUD básico
	Create(ctx context.Context, v *domain.Video) error
	GetByID(ctx context.Context, id string) (*domain.Video, error)
	Delete(ctx context.Context, id string) error

	// Update lee, modifica y guarda el video de forma atómica
	Update(ctx context.Context, id string, fn Mutator) (*domain.Video, error)

	// Queries especializadas
	GetRecent(ctx context.Context, limit int) ([]*domain.Video, error)
	GetByStatus(ctx context.Context, status domain.VideoStatus) ([]*domain.Video, error)

	// Estadísticas
	CountByStatus(ctx context.Context, status domain.VideoStatus) (int, error)
	CountTotal(ctx context.Context) (int, error)
	TotalSize(ctx context.Context) (int64, error)
}
