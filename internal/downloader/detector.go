package downloader

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
)

const maxNameLength = 180

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// ValidateURL verifica que la URL sea http(s) absoluta
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid url %q: scheme must be http or https", rawURL)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid url %q: missing host", rawURL)
	}
	return nil
}

// BaseName retorna el último segmento del path de la URL, ya decodificado
func BaseName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}

	base := path.Base(u.Path) // u.Path ya está decodificado
	if base == "." || base == "/" {
		return ""
	}
	return base
}

// StagingName deriva el nombre del archivo de staging para un video.
// El prefijo con el id evita que dos videos con el mismo nombre
// compartan archivo parcial.
func StagingName(rawURL, id string) string {
	name := sanitizeFilename(BaseName(rawURL))
	if strings.Trim(name, "._-") == "" {
		return fmt.Sprintf("video_%s.mp4", id)
	}
	return id + "_" + name
}

// DefaultTitle retorna el título por defecto de un video: el nombre del archivo remoto
func DefaultTitle(rawURL string) string {
	if base := BaseName(rawURL); base != "" {
		return base
	}
	return rawURL
}

// sanitizeFilename sanitiza un string para usarlo como nombre de archivo
func sanitizeFilename(s string) string {
	s = unsafeChars.ReplaceAllString(s, "_")

	if len(s) > maxNameLength {
		ext := path.Ext(s)
		if len(ext) > 10 {
			ext = ""
		}
		s = s[:maxNameLength-len(ext)] + ext
	}

	return s
}
