package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/elsanchez/smart-stream/internal/config"
	"github.com/elsanchez/smart-stream/internal/cookies"
	"github.com/elsanchez/smart-stream/internal/daemon"
	"github.com/elsanchez/smart-stream/internal/downloader"
	"github.com/elsanchez/smart-stream/internal/postprocessor"
	"github.com/elsanchez/smart-stream/internal/repository/sqlite"
	"github.com/elsanchez/smart-stream/internal/storage"
	"github.com/elsanchez/smart-stream/internal/stream"
)

const (
	version = "0.1.0"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	var cfgFile string

	cmd := &cobra.Command{
		Use:           "smart-streamd",
		Short:         "Background video downloader and range streaming server",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v, cfgFile)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				return err
			}
			if err := config.InitLog(log.StandardLogger(), cfg.Log); err != nil {
				fmt.Fprintln(os.Stderr, err)
				return err
			}

			config.Watch(v, func(next *config.Config) {
				if err := config.UpdateLogLevel(log.StandardLogger(), next.Log.Level); err != nil {
					log.WithError(err).Warn("Failed to apply log level")
				}
			})

			if err := run(cmd.Context(), cfg); err != nil {
				log.WithError(err).Error("Daemon stopped with error")
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&cfgFile, "config", "c", "", "Config file (default: ./smart-stream.yaml or $XDG_CONFIG_HOME/smart-stream/)")
	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		panic(err)
	}

	return cmd
}

func run(parent context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Infof("smart-streamd v%s starting...", version)

	store, err := storage.New(cfg.Storage.Root, cfg.Storage.StagingDir)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	log.Infof("Storage root: %s", store.Root())
	log.Infof("Staging directory: %s", store.StagingDir())

	db, err := sqlite.NewDatabase(cfg.Database.Dir)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	defer db.Close()
	log.Info("✓ Database initialized")

	ffmpeg := postprocessor.NewFFmpegProcessor(postprocessor.Options{
		FFmpegPath:    cfg.Transcode.FFmpeg,
		FFprobePath:   cfg.Transcode.FFprobe,
		MaxConcurrent: cfg.Transcode.MaxConcurrent,
	})
	if err := ffmpeg.CheckFFmpegInstalled(); err != nil {
		log.WithError(err).Warn("Transcoding unavailable, non mp4/webm/avi downloads will fail")
	} else {
		log.Info("✓ FFmpeg found")
	}

	jar, err := cookies.LoadJar(ctx, cookies.JarOptions{
		File:    cfg.Download.CookiesFile,
		Browser: cfg.Download.CookiesBrowser,
		Domain:  cfg.Download.CookiesDomain,
	})
	if err != nil {
		return fmt.Errorf("load cookies: %w", err)
	}

	dl := downloader.NewHTTPDownloader(downloader.Options{
		MaxAttempts: cfg.Download.MaxAttempts,
		BackoffStep: cfg.Download.BackoffStep,
		Timeout:     cfg.Download.Timeout,
		RateLimit:   int(cfg.Download.RateLimit),
		UserAgent:   cfg.Download.UserAgent,
		Jar:         jar,
		Fs:          store.Fs(),
	})

	worker := daemon.NewWorker(db.VideoRepo, dl, ffmpeg, ffmpeg, store)
	manager := daemon.NewManager(db.VideoRepo, store, worker)

	resolver, err := stream.NewResolver(db.VideoRepo, store, cfg.Stream.CacheSize)
	if err != nil {
		return fmt.Errorf("init resolver: %w", err)
	}
	streamer := stream.NewStreamer(resolver, store, cfg.Stream.ChunkSize)
	manager.OnFilesChanged = streamer.Invalidate

	if cfg.Reconcile.OnStartup {
		n, err := manager.Reconcile(ctx, cfg.Reconcile.Resume)
		if err != nil {
			log.WithError(err).Warn("Startup reconcile failed")
		} else if n > 0 {
			log.Infof("✓ Reconciled %d interrupted download(s)", n)
		}
	}

	handlers := daemon.NewHandlers(db.VideoRepo, manager, streamer)
	server := daemon.NewServer(cfg.Server.Addr, handlers)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(gctx)
	})

	log.Info("smart-streamd is ready")

	err = g.Wait()

	if n := manager.ActiveCount(); n > 0 {
		log.Warnf("Exiting with %d download(s) in progress; they will be reconciled on next start", n)
	}
	log.Info("Shutdown complete")
	return err
}
