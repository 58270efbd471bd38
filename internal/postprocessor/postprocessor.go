package postprocessor

import (
	"context"
	"path/filepath"
	"strings"
)

// Transcoder define la interfaz de conversión post-descarga
type Transcoder interface {
	// NeedsConversion indica si el archivo debe convertirse a MP4
	NeedsConversion(inputPath string) bool

	// Convert convierte el archivo y retorna el path del resultado
	Convert(ctx context.Context, inputPath string) (outputPath string, err error)
}

// Prober obtiene metadata de un archivo de video
type Prober interface {
	Probe(ctx context.Context, path string) (*VideoInfo, error)
}

// PassthroughExtensions son los contenedores que se sirven sin convertir
var PassthroughExtensions = []string{".mp4", ".webm", ".avi"}

// IsPassthrough indica si la extensión se sirve tal cual
func IsPassthrough(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range PassthroughExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// OutputPath retorna el path .mp4 que produce Convert para inputPath
func OutputPath(inputPath string) string {
	return strings.TrimSuffix(inputPath, filepath.Ext(inputPath)) + ".mp4"
}
