package downloader

import (
	"context"
)

// Downloader define la interfaz para descargar contenido a un archivo local
type Downloader interface {
	// Fetch descarga rawURL en dest, reanudando si dest ya tiene datos
	Fetch(ctx context.Context, rawURL, dest string) (*Result, error)
}

// Result representa el resultado de una descarga
type Result struct {
	Path     string
	Size     int64 // bytes en disco al terminar
	Attempts int
	Resumed  bool // al menos un intento usó Range
}
