package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/mapstructure"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	EnvPrefix  = "SMART_STREAM"
	ConfigName = "smart-stream"
	AppDir     = "smart-stream"
)

// Config es la configuración completa del daemon
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Download  DownloadConfig  `mapstructure:"download"`
	Transcode TranscodeConfig `mapstructure:"transcode"`
	Stream    StreamConfig    `mapstructure:"stream"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type StorageConfig struct {
	Root       string `mapstructure:"root"`
	StagingDir string `mapstructure:"staging_dir"`
}

type DatabaseConfig struct {
	Dir string `mapstructure:"dir"`
}

type DownloadConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts"`
	BackoffStep    time.Duration `mapstructure:"backoff_step"`
	Timeout        time.Duration `mapstructure:"timeout"`    // 0 = sin límite
	RateLimit      int64         `mapstructure:"rate_limit"` // bytes/s, 0 = sin límite
	UserAgent      string        `mapstructure:"user_agent"`
	CookiesFile    string        `mapstructure:"cookies_file"`
	CookiesBrowser string        `mapstructure:"cookies_browser"`
	CookiesDomain  string        `mapstructure:"cookies_domain"`
}

type TranscodeConfig struct {
	FFmpeg        string `mapstructure:"ffmpeg"`
	FFprobe       string `mapstructure:"ffprobe"`
	MaxConcurrent int    `mapstructure:"max_concurrent"`
}

type StreamConfig struct {
	ChunkSize int `mapstructure:"chunk_size"`
	CacheSize int `mapstructure:"cache_size"`
}

type ReconcileConfig struct {
	OnStartup bool `mapstructure:"on_startup"`
	Resume    bool `mapstructure:"resume"`
}

type LogConfig struct {
	Level     string `mapstructure:"level"`
	File      string `mapstructure:"file"`
	MaxSizeMB int    `mapstructure:"max_size_mb"`
}

// SetDefaults registra los valores por defecto de todas las claves
func SetDefaults(v *viper.Viper) {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	v.SetDefault("server.addr", ":8087")

	v.SetDefault("storage.root", filepath.Join(home, "Videos", AppDir))
	v.SetDefault("storage.staging_dir", filepath.Join(os.TempDir(), AppDir))
	v.SetDefault("database.dir", filepath.Join(home, ".local", "share", AppDir))

	v.SetDefault("download.max_attempts", 10)
	v.SetDefault("download.backoff_step", 2*time.Second)
	v.SetDefault("download.timeout", time.Duration(0))
	v.SetDefault("download.rate_limit", 0)
	v.SetDefault("download.user_agent", "smart-stream/1.0")
	v.SetDefault("download.cookies_file", "")
	v.SetDefault("download.cookies_browser", "")
	v.SetDefault("download.cookies_domain", "")

	v.SetDefault("transcode.ffmpeg", "ffmpeg")
	v.SetDefault("transcode.ffprobe", "ffprobe")
	v.SetDefault("transcode.max_concurrent", 2)

	v.SetDefault("stream.chunk_size", 8192)
	v.SetDefault("stream.cache_size", 256)

	v.SetDefault("reconcile.on_startup", true)
	v.SetDefault("reconcile.resume", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
}

// BindFlags registra los flags del daemon y los asocia a sus claves
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	flags.String("addr", "", "HTTP listen address")
	flags.String("storage-root", "", "Directory where finished videos are stored")
	flags.String("staging-dir", "", "Directory for in-progress downloads")
	flags.String("data-dir", "", "Directory for the SQLite database")
	flags.Int("max-attempts", 0, "Maximum download attempts per video")
	flags.Duration("backoff-step", 0, "Linear backoff step between attempts")
	flags.Int64("rate-limit", 0, "Download bandwidth cap in bytes/s (0 = unlimited)")
	flags.String("cookies-file", "", "Netscape cookies file for source requests")
	flags.String("cookies-browser", "", "Read source cookies from a local browser (chrome, firefox, ...)")
	flags.String("ffmpeg", "", "Path to the ffmpeg binary")
	flags.Bool("resume", false, "Relaunch downloads left unfinished by a previous run")
	flags.StringP("log-level", "l", "", "Log level (debug, info, warn, error)")
	flags.String("log-file", "", "Write JSON logs to this rotating file")

	bindings := map[string]string{
		"server.addr":              "addr",
		"storage.root":             "storage-root",
		"storage.staging_dir":      "staging-dir",
		"database.dir":             "data-dir",
		"download.max_attempts":    "max-attempts",
		"download.backoff_step":    "backoff-step",
		"download.rate_limit":      "rate-limit",
		"download.cookies_file":    "cookies-file",
		"download.cookies_browser": "cookies-browser",
		"transcode.ffmpeg":         "ffmpeg",
		"reconcile.resume":         "resume",
		"log.level":                "log-level",
		"log.file":                 "log-file",
	}
	for key, name := range bindings {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// Load lee archivo, variables de entorno y flags ya asociados.
// Sin cfgFile busca smart-stream.{yaml,toml,json}; si no hay archivo
// se usan los defaults.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(ConfigName)
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, AppDir))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	return Decode(v)
}

// Decode convierte el estado actual de viper en un Config validado
func Decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}

	err := v.Unmarshal(cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)))
	if err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.Storage.Root = expandHome(cfg.Storage.Root)
	cfg.Storage.StagingDir = expandHome(cfg.Storage.StagingDir)
	cfg.Database.Dir = expandHome(cfg.Database.Dir)
	cfg.Download.CookiesFile = expandHome(cfg.Download.CookiesFile)
	cfg.Log.File = expandHome(cfg.Log.File)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate revisa rangos y valores obligatorios
func (c *Config) Validate() error {
	switch {
	case c.Server.Addr == "":
		return errors.New("server.addr is required")
	case c.Storage.Root == "":
		return errors.New("storage.root is required")
	case c.Storage.StagingDir == "":
		return errors.New("storage.staging_dir is required")
	case c.Database.Dir == "":
		return errors.New("database.dir is required")
	case c.Download.MaxAttempts < 1:
		return fmt.Errorf("download.max_attempts must be >= 1, got %d", c.Download.MaxAttempts)
	case c.Download.BackoffStep < 0:
		return fmt.Errorf("download.backoff_step must not be negative, got %s", c.Download.BackoffStep)
	case c.Download.RateLimit < 0:
		return fmt.Errorf("download.rate_limit must not be negative, got %d", c.Download.RateLimit)
	case c.Transcode.MaxConcurrent < 1:
		return fmt.Errorf("transcode.max_concurrent must be >= 1, got %d", c.Transcode.MaxConcurrent)
	case c.Stream.ChunkSize <= 0:
		return fmt.Errorf("stream.chunk_size must be positive, got %d", c.Stream.ChunkSize)
	case c.Stream.CacheSize <= 0:
		return fmt.Errorf("stream.cache_size must be positive, got %d", c.Stream.CacheSize)
	}

	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// Watch vigila el archivo de configuración y llama a onChange con la
// configuración nueva. Sin archivo no hace nada.
func Watch(v *viper.Viper, onChange func(*Config)) {
	if v.ConfigFileUsed() == "" {
		return
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		log.WithField("file", e.Name).Info("Config file changed")

		cfg, err := Decode(v)
		if err != nil {
			log.WithError(err).Warn("Ignoring invalid config change")
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
