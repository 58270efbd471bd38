package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/time/rate"
)

const (
	DefaultMaxAttempts = 10
	DefaultBackoffStep = 2 * time.Second

	copyBufferSize = 32 * 1024
)

// Options configura el HTTPDownloader
type Options struct {
	MaxAttempts int           // intentos totales, incluyendo el primero
	BackoffStep time.Duration // espera antes del reintento k: k * BackoffStep
	Timeout     time.Duration // 0 = sin límite
	RateLimit   int           // bytes/s, 0 = sin límite
	UserAgent   string
	Jar         http.CookieJar
	Fs          afero.Fs // nil = filesystem del sistema

	// Transport permite inyectar un RoundTripper (tests)
	Transport http.RoundTripper
}

// HTTPDownloader descarga archivos por HTTP con reanudación y reintentos
type HTTPDownloader struct {
	client      *http.Client
	fs          afero.Fs
	maxAttempts int
	backoffStep time.Duration
	userAgent   string
	limiter     *rate.Limiter

	// sleep es reemplazable en tests
	sleep func(ctx context.Context, d time.Duration) error
}

// Compiletime check
var _ Downloader = (*HTTPDownloader)(nil)

// NewHTTPDownloader crea un nuevo downloader HTTP
func NewHTTPDownloader(opts Options) *HTTPDownloader {
	d := &HTTPDownloader{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Jar:       opts.Jar,
			Transport: opts.Transport,
		},
		fs:          opts.Fs,
		maxAttempts: opts.MaxAttempts,
		backoffStep: opts.BackoffStep,
		userAgent:   opts.UserAgent,
		sleep:       sleepContext,
	}

	if d.fs == nil {
		d.fs = afero.NewOsFs()
	}
	if d.maxAttempts <= 0 {
		d.maxAttempts = DefaultMaxAttempts
	}
	if d.backoffStep <= 0 {
		d.backoffStep = DefaultBackoffStep
	}
	if opts.RateLimit > 0 {
		burst := opts.RateLimit
		if burst < copyBufferSize {
			burst = copyBufferSize
		}
		d.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	return d
}

// Fetch implementa Downloader.Fetch.
// Cada intento retoma desde el tamaño actual de dest con Range: bytes=N-.
// Un 416 se toma como descarga ya completa.
func (d *HTTPDownloader) Fetch(ctx context.Context, rawURL, dest string) (*Result, error) {
	logger := log.WithField("dest", dest)
	result := &Result{Path: dest}

	for attempt := 1; ; attempt++ {
		result.Attempts = attempt

		resumed, err := d.attempt(ctx, rawURL, dest)
		if resumed {
			result.Resumed = true
		}
		if err == nil {
			break
		}

		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		if !IsRetryable(err) {
			return result, err
		}
		if attempt >= d.maxAttempts {
			return result, fmt.Errorf("giving up after %d attempts: %w", attempt, err)
		}

		wait := time.Duration(attempt) * d.backoffStep
		logger.WithError(err).Warnf("Attempt %d/%d failed, retrying in %s", attempt, d.maxAttempts, wait)

		if err := d.sleep(ctx, wait); err != nil {
			return result, err
		}
	}

	info, err := d.fs.Stat(dest)
	if err != nil {
		return result, fmt.Errorf("stat downloaded file: %w", err)
	}
	result.Size = info.Size()

	return result, nil
}

// attempt hace un único GET. Retorna si se pidió un rango.
func (d *HTTPDownloader) attempt(ctx context.Context, rawURL, dest string) (bool, error) {
	var offset int64
	if info, err := d.fs.Stat(dest); err == nil {
		offset = info.Size()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}

	resumed := offset > 0
	if resumed {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return resumed, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	flags := os.O_CREATE | os.O_WRONLY
	switch {
	case resp.StatusCode == http.StatusRequestedRangeNotSatisfiable:
		// El servidor no tiene más bytes: ya está completo
		return resumed, nil
	case resp.StatusCode == http.StatusPartialContent && resumed:
		start, ok := contentRangeStart(resp.Header.Get("Content-Range"))
		switch {
		case ok && start == offset:
			flags |= os.O_APPEND
		case ok && start == 0:
			log.WithField("dest", dest).Warn("Server returned range from byte 0, restarting")
			flags |= os.O_TRUNC
		default:
			// Otra ventana: descartar lo parcial y pedir todo de nuevo
			if err := d.discard(dest); err != nil {
				return resumed, err
			}
			return resumed, fmt.Errorf("%w: got %q for offset %d",
				ErrRangeMismatch, resp.Header.Get("Content-Range"), offset)
		}
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusPartialContent:
		if resumed {
			log.WithField("dest", dest).Warn("Server ignored Range header, restarting from byte 0")
		}
		flags |= os.O_TRUNC
	default:
		return resumed, &StatusError{Code: resp.StatusCode, Status: resp.Status}
	}

	file, err := d.fs.OpenFile(dest, flags, 0644)
	if err != nil {
		return resumed, fmt.Errorf("open staging file: %w", err)
	}

	var body io.Reader = &bodyReader{r: resp.Body}
	if d.limiter != nil {
		body = &limitedReader{ctx: ctx, r: body, limiter: d.limiter}
	}

	_, copyErr := io.CopyBuffer(file, body, make([]byte, copyBufferSize))
	closeErr := file.Close()

	if copyErr != nil {
		var re *readError
		if errors.As(copyErr, &re) {
			return resumed, &NetworkError{Err: re.err}
		}
		return resumed, fmt.Errorf("write staging file: %w", copyErr)
	}
	if closeErr != nil {
		return resumed, fmt.Errorf("close staging file: %w", closeErr)
	}

	return resumed, nil
}

// discard deja dest vacío para que el próximo intento empiece de cero
func (d *HTTPDownloader) discard(dest string) error {
	file, err := d.fs.OpenFile(dest, os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("truncate staging file: %w", err)
	}
	return file.Close()
}

// contentRangeStart extrae el primer byte de "bytes <start>-<end>/<size>"
func contentRangeStart(header string) (int64, bool) {
	spec, ok := strings.CutPrefix(strings.TrimSpace(header), "bytes ")
	if !ok {
		return 0, false
	}
	first, _, ok := strings.Cut(spec, "-")
	if !ok {
		return 0, false
	}
	start, err := strconv.ParseInt(strings.TrimSpace(first), 10, 64)
	if err != nil || start < 0 {
		return 0, false
	}
	return start, true
}

// bodyReader marca los errores de lectura del body como readError
type bodyReader struct {
	r io.Reader
}

func (b *bodyReader) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	if err != nil && err != io.EOF {
		return n, &readError{err: err}
	}
	return n, err
}

// limitedReader aplica el límite de ancho de banda compartido
type limitedReader struct {
	ctx     context.Context
	r       io.Reader
	limiter *rate.Limiter
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if burst := l.limiter.Burst(); len(p) > burst {
		p = p[:burst]
	}

	n, err := l.r.Read(p)
	if n > 0 {
		if werr := l.limiter.WaitN(l.ctx, n); werr != nil {
			return n, &readError{err: werr}
		}
	}
	return n, err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
