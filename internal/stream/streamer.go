package stream

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/elsanchez/smart-stream/internal/repository"
	"github.com/elsanchez/smart-stream/internal/storage"
)

const DefaultChunkSize = 8192

var videoTypes = map[string]string{
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".avi":  "video/x-msvideo",
	".mkv":  "video/x-matroska",
	".mov":  "video/quicktime",
}

// Streamer sirve archivos de video con soporte de rangos HTTP
type Streamer struct {
	resolver  *Resolver
	store     *storage.Storage
	chunkSize int

	// Yield se llama después de cada chunk para ceder el procesador
	Yield func()
}

// NewStreamer crea un streamer
func NewStreamer(resolver *Resolver, store *storage.Storage, chunkSize int) *Streamer {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Streamer{
		resolver:  resolver,
		store:     store,
		chunkSize: chunkSize,
		Yield:     runtime.Gosched,
	}
}

// Invalidate descarta el path cacheado de un video
func (s *Streamer) Invalidate(id string) {
	s.resolver.Invalidate(id)
}

// ServeVideo responde GET/HEAD para el video id
func (s *Streamer) ServeVideo(w http.ResponseWriter, r *http.Request, id string) {
	logger := log.WithField("video", id)

	rel, err := s.resolver.Resolve(r.Context(), id)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) && !errors.Is(err, ErrNoArtifact) {
			logger.WithError(err).Error("Resolve video failed")
		}
		http.Error(w, "video not found", http.StatusNotFound)
		return
	}

	file, err := s.store.Open(rel)
	if err != nil {
		s.resolver.Invalidate(id)
		http.Error(w, "video not found", http.StatusNotFound)
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		logger.WithError(err).Error("Stat video failed")
		http.Error(w, "video not found", http.StatusNotFound)
		return
	}
	size := info.Size()

	h := w.Header()
	h.Set("Accept-Ranges", "bytes")
	h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "0")
	h.Set("Content-Type", contentType(rel))
	if _, ok := r.URL.Query()["download"]; ok {
		h.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(rel)))
	}

	br, partial, err := ParseRange(r.Header.Get("Range"), size)
	if errors.Is(err, ErrUnsatisfiable) {
		h.Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
		return
	}

	status := http.StatusOK
	if partial {
		status = http.StatusPartialContent
		h.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", br.Start, br.End, size))
	} else {
		br = ByteRange{Start: 0, End: size - 1}
	}
	h.Set("Content-Length", strconv.FormatInt(br.Length(), 10))
	w.WriteHeader(status)

	if r.Method == http.MethodHead || br.Length() <= 0 {
		return
	}

	if _, err := file.Seek(br.Start, io.SeekStart); err != nil {
		logger.WithError(err).Error("Seek failed")
		return
	}

	if err := s.copyChunks(r, w, file, br.Length()); err != nil {
		logger.WithError(err).Debug("Stream interrupted")
	}
}

// copyChunks copia n bytes en bloques de chunkSize, cediendo entre bloques
func (s *Streamer) copyChunks(r *http.Request, w io.Writer, src io.Reader, n int64) error {
	buf := make([]byte, s.chunkSize)
	ctx := r.Context()

	for n > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		chunk := int64(len(buf))
		if n < chunk {
			chunk = n
		}

		read, err := io.ReadFull(src, buf[:chunk])
		if read > 0 {
			if _, werr := w.Write(buf[:read]); werr != nil {
				return werr
			}
			n -= int64(read)
		}
		if err != nil {
			return err
		}

		if s.Yield != nil {
			s.Yield()
		}
	}

	return nil
}

func contentType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if t, ok := videoTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "video/mp4"
}
