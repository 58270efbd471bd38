package stream

import (
	"errors"
	"strconv"
	"strings"
)

// ErrUnsatisfiable indica que el rango empieza después del final del archivo
var ErrUnsatisfiable = errors.New("range not satisfiable")

// ByteRange es un rango inclusivo [Start, End]
type ByteRange struct {
	Start int64
	End   int64
}

// Length retorna la cantidad de bytes del rango
func (r ByteRange) Length() int64 {
	return r.End - r.Start + 1
}

// ParseRange interpreta un header Range para un archivo de size bytes.
//
// Retorna ok=false cuando no hay header o es inválido: en ese caso se sirve
// el archivo completo. Solo se usa el primer rango de una lista.
// Soporta "bytes=a-b", "bytes=a-" y la forma sufijo "bytes=-n".
func ParseRange(header string, size int64) (ByteRange, bool, error) {
	const prefix = "bytes="

	header = strings.TrimSpace(header)
	if !strings.HasPrefix(header, prefix) {
		return ByteRange{}, false, nil
	}

	spec := strings.TrimSpace(strings.SplitN(header[len(prefix):], ",", 2)[0])
	dash := strings.IndexByte(spec, '-')
	if dash < 0 {
		return ByteRange{}, false, nil
	}

	startStr := strings.TrimSpace(spec[:dash])
	endStr := strings.TrimSpace(spec[dash+1:])

	// Sufijo: los últimos n bytes
	if startStr == "" {
		n, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || n < 0 {
			return ByteRange{}, false, nil
		}
		if n == 0 || size == 0 {
			return ByteRange{}, false, ErrUnsatisfiable
		}
		if n > size {
			n = size
		}
		return ByteRange{Start: size - n, End: size - 1}, true, nil
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 {
		return ByteRange{}, false, nil
	}

	end := size - 1
	if endStr != "" {
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil || end < start {
			return ByteRange{}, false, nil
		}
	}

	if start >= size {
		return ByteRange{}, false, ErrUnsatisfiable
	}
	if end >= size {
		end = size - 1
	}

	return ByteRange{Start: start, End: end}, true, nil
}
