package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"
)

// Server es el servidor HTTP del daemon
type Server struct {
	addr     string
	handlers *Handlers
	http     *http.Server
}

// NewServer crea un nuevo servidor
func NewServer(addr string, handlers *Handlers) *Server {
	s := &Server{
		addr:     addr,
		handlers: handlers,
	}
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Router arma las rutas
func (s *Server) Router() http.Handler {
	h := s.handlers

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.HandleHealth)
	r.Get("/stats", h.HandleStats)

	r.Route("/videos", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Post("/", h.HandleCreate)
	})

	r.Route("/video/{id}", func(r chi.Router) {
		r.Get("/", h.HandleGet)
		r.Delete("/", h.HandleDelete)

		r.Get("/stream", h.HandleStream)
		r.Head("/stream", h.HandleStream)
		r.Get("/status", h.HandleStatus)

		r.Post("/download", h.HandleDownload)
		r.Post("/retry", h.HandleRetry)
		r.Post("/reset", h.HandleReset)
		r.Post("/clear-files", h.HandleClearFiles)
	})

	return r
}

// Start escucha en addr y sirve hasta que ctx se cancele.
// Al cancelar deja de aceptar conexiones y espera a los requests en curso.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}

	log.Infof("Server listening on %s", listener.Addr())

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		return s.Stop()
	}
}

// Stop detiene el servidor
func (s *Server) Stop() error {
	log.Info("Server stopping...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.http.Shutdown(ctx)
}

// requestLogger registra cada request con logrus
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		defer func() {
			entry := log.WithFields(log.Fields{
				"request_id": middleware.GetReqID(r.Context()),
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"bytes":      ww.BytesWritten(),
				"duration":   time.Since(start).String(),
			})
			if ww.Status() >= 500 {
				entry.Warn("Request served")
			} else {
				entry.Debug("Request served")
			}
		}()

		next.ServeHTTP(ww, r)
	})
}
