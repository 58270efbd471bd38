package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/elsanchez/smart-stream/internal/domain"
	"github.com/elsanchez/smart-stream/internal/repository"
)

var videoColumns = []string{
	"id", "title", "description", "download_url", "video_file", "thumbnail",
	"status", "file_size", "duration", "error_message", "created_at", "updated_at",
}

// VideoRepository implementa repository.VideoRepository usando SQLite
type VideoRepository struct {
	db *sqlx.DB
}

// Compiletime check: asegura que implementa la interfaz
var _ repository.VideoRepository = (*VideoRepository)(nil)

// NewVideoRepository crea un nuevo repositorio de videos
func NewVideoRepository(db *sqlx.DB) *VideoRepository {
	return &VideoRepository{db: db}
}

// videoRow mapea la tabla SQL a struct Go
type videoRow struct {
	ID           string         `db:"id"`
	Title        string         `db:"title"`
	Description  string         `db:"description"`
	DownloadURL  string         `db:"download_url"`
	VideoFile    sql.NullString `db:"video_file"`
	Thumbnail    sql.NullString `db:"thumbnail"`
	Status       string         `db:"status"`
	FileSize     int64          `db:"file_size"`
	Duration     int            `db:"duration"`
	ErrorMessage sql.NullString `db:"error_message"`
	CreatedAt    int64          `db:"created_at"`
	UpdatedAt    int64          `db:"updated_at"`
}

// Create inserta un nuevo video. CreatedAt/UpdatedAt se fijan aquí.
func (r *VideoRepository) Create(ctx context.Context, v *domain.Video) error {
	if v.ID == "" {
		return fmt.Errorf("insert video: empty id")
	}
	if v.Status == "" {
		v.Status = domain.StatusPending
	}

	now := time.Now()
	v.CreatedAt = now
	v.UpdatedAt = now

	query, args, err := squirrel.Insert("videos").
		SetMap(videoValues(v)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert video: %w", err)
	}

	return nil
}

// GetByID obtiene un video por ID
func (r *VideoRepository) GetByID(ctx context.Context, id string) (*domain.Video, error) {
	return getByID(ctx, r.db, id)
}

// Delete elimina un video
func (r *VideoRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM videos WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete video: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete video: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", repository.ErrNotFound, id)
	}

	return nil
}

// Update lee el video, aplica fn y lo guarda en una sola transacción.
// Si fn retorna error se hace rollback y el error se propaga sin envolver.
func (r *VideoRepository) Update(ctx context.Context, id string, fn repository.Mutator) (*domain.Video, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	v, err := getByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if err := fn(v); err != nil {
		return nil, err
	}

	v.ID = id
	v.UpdatedAt = time.Now()

	values := videoValues(v)
	delete(values, "id")
	delete(values, "created_at")

	query, args, err := squirrel.Update("videos").
		SetMap(values).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build update: %w", err)
	}

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("update video: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return v, nil
}

// GetRecent obtiene los videos más recientes
func (r *VideoRepository) GetRecent(ctx context.Context, limit int) ([]*domain.Video, error) {
	sb := squirrel.Select(videoColumns...).
		From("videos").
		OrderBy("created_at DESC", "rowid DESC")
	if limit > 0 {
		sb = sb.Limit(uint64(limit))
	}

	return r.selectVideos(ctx, sb)
}

// GetByStatus obtiene videos por status, los más antiguos primero
func (r *VideoRepository) GetByStatus(ctx context.Context, status domain.VideoStatus) ([]*domain.Video, error) {
	sb := squirrel.Select(videoColumns...).
		From("videos").
		Where(squirrel.Eq{"status": string(status)}).
		OrderBy("created_at ASC", "rowid ASC")

	return r.selectVideos(ctx, sb)
}

// CountByStatus cuenta videos por status
func (r *VideoRepository) CountByStatus(ctx context.Context, status domain.VideoStatus) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM videos WHERE status = ?`, string(status))
	return count, err
}

// CountTotal cuenta todos los videos
func (r *VideoRepository) CountTotal(ctx context.Context) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM videos`)
	return count, err
}

// TotalSize suma el tamaño de los videos completados
func (r *VideoRepository) TotalSize(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.GetContext(ctx, &total,
		`SELECT COALESCE(SUM(file_size), 0) FROM videos WHERE status = ?`, string(domain.StatusCompleted))
	return total, err
}

func (r *VideoRepository) selectVideos(ctx context.Context, sb squirrel.SelectBuilder) ([]*domain.Video, error) {
	query, args, err := sb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var rows []videoRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select videos: %w", err)
	}

	return rowsToDomain(rows), nil
}

func getByID(ctx context.Context, q sqlx.QueryerContext, id string) (*domain.Video, error) {
	query, args, err := squirrel.Select(videoColumns...).
		From("videos").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var row videoRow
	if err := sqlx.GetContext(ctx, q, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", repository.ErrNotFound, id)
		}
		return nil, fmt.Errorf("get video: %w", err)
	}

	return rowToDomain(&row), nil
}

// Helper: conversión domain → columnas
func videoValues(v *domain.Video) map[string]interface{} {
	return map[string]interface{}{
		"id":            v.ID,
		"title":         v.Title,
		"description":   v.Description,
		"download_url":  v.DownloadURL,
		"video_file":    nullString(v.VideoFile),
		"thumbnail":     nullString(v.Thumbnail),
		"status":        string(v.Status),
		"file_size":     v.FileSize,
		"duration":      v.Duration,
		"error_message": sql.NullString{String: v.ErrorMessage, Valid: v.ErrorMessage != ""},
		"created_at":    v.CreatedAt.Unix(),
		"updated_at":    v.UpdatedAt.Unix(),
	}
}

func nullString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// Helper: conversión row → domain
func rowToDomain(row *videoRow) *domain.Video {
	v := &domain.Video{
		ID:           row.ID,
		Title:        row.Title,
		Description:  row.Description,
		DownloadURL:  row.DownloadURL,
		Status:       domain.VideoStatus(row.Status),
		FileSize:     row.FileSize,
		Duration:     row.Duration,
		ErrorMessage: row.ErrorMessage.String,
		CreatedAt:    time.Unix(row.CreatedAt, 0),
		UpdatedAt:    time.Unix(row.UpdatedAt, 0),
	}

	if row.VideoFile.Valid {
		v.VideoFile = &row.VideoFile.String
	}
	if row.Thumbnail.Valid {
		v.Thumbnail = &row.Thumbnail.String
	}

	return v
}

// Helper: conversión múltiples rows → domain
func rowsToDomain(rows []videoRow) []*domain.Video {
	videos := make([]*domain.Video, 0, len(rows))
	for i := range rows {
		videos = append(videos, rowToDomain(&rows[i]))
	}
	return videos
}
