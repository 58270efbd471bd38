package downloader

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrRangeMismatch indica un 206 que no empieza donde se pidió
var ErrRangeMismatch = errors.New("content range does not match requested offset")

// NetworkError envuelve fallas de red: conexión, timeouts o lectura del body
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// StatusError es una respuesta HTTP no exitosa
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status: %s", e.Status)
}

// Retryable indica si vale la pena reintentar este status
func (e *StatusError) Retryable() bool {
	switch {
	case e.Code == http.StatusRequestTimeout, e.Code == http.StatusTooManyRequests:
		return true
	case e.Code >= 500:
		return true
	default:
		return false
	}
}

// readError marca errores al leer el body para distinguirlos de errores de escritura
type readError struct {
	err error
}

func (e *readError) Error() string { return e.err.Error() }
func (e *readError) Unwrap() error { return e.err }

// IsRetryable indica si err justifica otro intento
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrRangeMismatch) {
		return true
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable()
	}

	var netErr *NetworkError
	return errors.As(err, &netErr)
}
