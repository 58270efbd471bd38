package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// VideosDir es el subdirectorio donde se guardan los videos terminados
const VideosDir = "videos"

// ErrOutsideRoot se retorna cuando un path relativo escapa de la raíz
var ErrOutsideRoot = errors.New("path escapes storage root")

// Storage maneja el almacenamiento permanente y el directorio de staging
type Storage struct {
	fs      afero.Fs
	root    string
	staging string
}

// New crea un storage sobre el filesystem del sistema operativo
func New(root, stagingDir string) (*Storage, error) {
	return NewWithFs(afero.NewOsFs(), root, stagingDir)
}

// NewWithFs crea un storage sobre un afero.Fs arbitrario
func NewWithFs(fs afero.Fs, root, stagingDir string) (*Storage, error) {
	root = filepath.Clean(root)
	stagingDir = filepath.Clean(stagingDir)

	for _, dir := range []string{root, filepath.Join(root, VideosDir), stagingDir} {
		if err := fs.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return &Storage{fs: fs, root: root, staging: stagingDir}, nil
}

// Fs retorna el filesystem subyacente
func (s *Storage) Fs() afero.Fs {
	return s.fs
}

// Root retorna la raíz del almacenamiento permanente
func (s *Storage) Root() string {
	return s.root
}

// StagingDir retorna el directorio de trabajo temporal
func (s *Storage) StagingDir() string {
	return s.staging
}

// StagingPath retorna el path absoluto de un archivo de staging
func (s *Storage) StagingPath(name string) string {
	return filepath.Join(s.staging, filepath.Base(name))
}

// Path convierte un path relativo a la raíz en absoluto
func (s *Storage) Path(rel string) (string, error) {
	if rel == "" || filepath.IsAbs(rel) {
		return "", fmt.Errorf("%w: %q", ErrOutsideRoot, rel)
	}

	abs := filepath.Join(s.root, rel)
	if abs != s.root && !strings.HasPrefix(abs, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrOutsideRoot, rel)
	}
	return abs, nil
}

// Stat retorna la info de un archivo del storage
func (s *Storage) Stat(rel string) (os.FileInfo, error) {
	abs, err := s.Path(rel)
	if err != nil {
		return nil, err
	}
	return s.fs.Stat(abs)
}

// Exists indica si el archivo existe y es regular
func (s *Storage) Exists(rel string) bool {
	info, err := s.Stat(rel)
	return err == nil && info.Mode().IsRegular()
}

// Open abre un archivo del storage para lectura
func (s *Storage) Open(rel string) (afero.File, error) {
	abs, err := s.Path(rel)
	if err != nil {
		return nil, err
	}
	return s.fs.Open(abs)
}

// Remove elimina un archivo del storage. Un archivo inexistente no es error.
func (s *Storage) Remove(rel string) (bool, error) {
	abs, err := s.Path(rel)
	if err != nil {
		return false, err
	}

	if err := s.fs.Remove(abs); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("remove %s: %w", rel, err)
	}
	return true, nil
}

// Commit mueve un archivo de staging a dir dentro del storage.
// Retorna el path relativo final y su tamaño.
func (s *Storage) Commit(stagingPath, dir string) (string, int64, error) {
	info, err := s.fs.Stat(stagingPath)
	if err != nil {
		return "", 0, fmt.Errorf("stat staging file: %w", err)
	}

	if err := s.fs.MkdirAll(filepath.Join(s.root, dir), 0755); err != nil {
		return "", 0, fmt.Errorf("create directory %s: %w", dir, err)
	}

	rel, err := s.availableName(dir, filepath.Base(stagingPath))
	if err != nil {
		return "", 0, err
	}
	dst := filepath.Join(s.root, rel)

	if err := s.fs.Rename(stagingPath, dst); err != nil {
		// Distinto filesystem: copiar y borrar
		if err := s.copyFile(stagingPath, dst); err != nil {
			return "", 0, fmt.Errorf("move %s to storage: %w", stagingPath, err)
		}
		if err := s.fs.Remove(stagingPath); err != nil {
			return "", 0, fmt.Errorf("remove staging file: %w", err)
		}
	}

	return rel, info.Size(), nil
}

// availableName evita pisar archivos existentes agregando un sufijo corto.
// Un error de Stat distinto de "no existe" se retorna.
func (s *Storage) availableName(dir, name string) (string, error) {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)

	rel := filepath.Join(dir, name)
	for {
		_, err := s.fs.Stat(filepath.Join(s.root, rel))
		switch {
		case os.IsNotExist(err):
			return rel, nil
		case err != nil:
			return "", fmt.Errorf("check %s: %w", rel, err)
		}
		rel = filepath.Join(dir, fmt.Sprintf("%s_%s%s", base, uuid.NewString()[:8], ext))
	}
}

func (s *Storage) copyFile(src, dst string) error {
	in, err := s.fs.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := s.fs.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		s.fs.Remove(dst)
		return err
	}
	return out.Close()
}
