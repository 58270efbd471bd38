package config

import (
	"fmt"
	"path"
	"runtime"
	"strings"

	"github.com/orandin/lumberjackrus"
	log "github.com/sirupsen/logrus"
)

// InitLog configura logger: texto con caller en consola y, si cfg.File
// está definido, JSON en un archivo rotado por tamaño
func InitLog(logger *log.Logger, cfg LogConfig) error {
	logger.SetReportCaller(true)
	logger.SetFormatter(&log.TextFormatter{
		FullTimestamp:    true,
		CallerPrettyfier: prettyCaller,
	})

	if err := UpdateLogLevel(logger, cfg.Level); err != nil {
		return err
	}

	if cfg.File == "" {
		return nil
	}

	maxSize := cfg.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 10
	}

	hook, err := lumberjackrus.NewHook(
		&lumberjackrus.LogFile{
			Filename:   cfg.File,
			MaxSize:    maxSize,
			MaxBackups: 3,
			MaxAge:     7,
			Compress:   false,
			LocalTime:  false,
		},
		log.DebugLevel,
		&log.JSONFormatter{},
		nil,
	)
	if err != nil {
		return fmt.Errorf("create log file hook: %w", err)
	}

	logger.AddHook(hook)
	return nil
}

// UpdateLogLevel cambia el nivel del logger
func UpdateLogLevel(logger *log.Logger, level string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}

	if logger.GetLevel() != lvl {
		logger.SetLevel(lvl)
		logger.Infof("Log level set to %s", lvl)
	}
	return nil
}

// prettyCaller muestra "func()" y "archivo.go:línea" en vez de rutas completas
func prettyCaller(f *runtime.Frame) (string, string) {
	fn := f.Function
	if i := strings.LastIndex(fn, "."); i >= 0 {
		fn = fn[i+1:]
	}
	return fmt.Sprintf("%s()", fn), fmt.Sprintf("%s:%d", path.Base(f.File), f.Line)
}
