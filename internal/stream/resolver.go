package stream

import (
	"context"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru"

	"github.com/elsanchez/smart-stream/internal/repository"
	"github.com/elsanchez/smart-stream/internal/storage"
)

// ErrNoArtifact indica que el video no tiene archivo servible
var ErrNoArtifact = errors.New("video has no playable file")

const DefaultCacheSize = 256

// Resolver traduce ids de video a paths en storage, con cache LRU
type Resolver struct {
	repo  repository.VideoRepository
	store *storage.Storage
	cache *lru.Cache
}

// NewResolver crea un resolver con un cache de cacheSize entradas
func NewResolver(repo repository.VideoRepository, store *storage.Storage, cacheSize int) (*Resolver, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}

	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create path cache: %w", err)
	}

	return &Resolver{repo: repo, store: store, cache: cache}, nil
}

// Resolve retorna el path relativo del archivo del video.
// Falla con repository.ErrNotFound o ErrNoArtifact.
func (r *Resolver) Resolve(ctx context.Context, id string) (string, error) {
	if cached, ok := r.cache.Get(id); ok {
		rel := cached.(string)
		if r.store.Exists(rel) {
			return rel, nil
		}
		// El archivo cambió: consultar de nuevo
		r.cache.Remove(id)
	}

	v, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	if !v.HasFile() {
		return "", fmt.Errorf("%w: %s", ErrNoArtifact, id)
	}

	rel := *v.VideoFile
	if !r.store.Exists(rel) {
		return "", fmt.Errorf("%w: %s", ErrNoArtifact, id)
	}

	r.cache.Add(id, rel)
	return rel, nil
}

// Invalidate saca el id del cache (al limpiar o borrar archivos)
func (r *Resolver) Invalidate(id string) {
	r.cache.Remove(id)
}
