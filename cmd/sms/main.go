package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/elsanchez/smart-stream/internal/postprocessor"
	"github.com/elsanchez/smart-stream/internal/tui/monitor"
	"github.com/elsanchez/smart-stream/pkg/client"
)

const (
	version = "0.1.0"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var addr string

	root := &cobra.Command{
		Use:           "sms",
		Short:         "Smart Media Stream client",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&addr, "addr", client.GetDefaultAddr(), "Daemon address (env SMART_STREAM_ADDR)")

	newClient := func() *client.Client {
		return client.NewClient(addr)
	}

	root.AddCommand(
		addCmd(newClient),
		triggerCmd(newClient, "download", "Start downloading a video", (*client.Client).Download),
		triggerCmd(newClient, "retry", "Reset a failed or stalled video and download it again", (*client.Client).Retry),
		resetCmd(newClient),
		clearCmd(newClient),
		deleteCmd(newClient),
		statusCmd(newClient),
		listCmd(newClient),
		statsCmd(newClient),
		watchCmd(newClient),
		convertCmd(),
	)

	return root
}

func addCmd(newClient func() *client.Client) *cobra.Command {
	var (
		title       string
		description string
		noDownload  bool
	)

	cmd := &cobra.Command{
		Use:   "add <url>",
		Short: "Register a video and download it in the background",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := &client.AddVideoRequest{
				DownloadURL: args[0],
				Title:       title,
				Description: description,
			}
			if noDownload {
				off := false
				req.AutoDownload = &off
			}

			result, err := newClient().AddVideo(cmd.Context(), req)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "✓ Video added: %s\n", result.Video.ID)
			fmt.Fprintf(out, "  Title:  %s\n", result.Video.Title)
			if result.DownloadStarted {
				fmt.Fprintln(out, "  Status: downloading")
			} else {
				fmt.Fprintf(out, "  Status: %s\n", result.Video.Status)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&title, "title", "t", "", "Title (default: remote file name)")
	cmd.Flags().StringVarP(&description, "description", "d", "", "Description")
	cmd.Flags().BoolVar(&noDownload, "no-download", false, "Only register the video")

	return cmd
}

func triggerCmd(
	newClient func() *client.Client,
	name, short string,
	fn func(*client.Client, context.Context, string) (bool, error),
) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			started, err := fn(newClient(), cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !started {
				fmt.Fprintln(cmd.OutOrStdout(), "Download not started: already completed or in progress")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Download started: %s\n", args[0])
			return nil
		},
	}
}

func resetCmd(newClient func() *client.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "reset <id>",
		Short: "Set a failed or stalled video back to pending",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := newClient().Reset(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ %s is now %s\n", v.ID, v.Status)
			return nil
		},
	}
}

func clearCmd(newClient func() *client.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "clear <id>",
		Short: "Remove downloaded files and set the video back to pending",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			removed, err := newClient().ClearFiles(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if removed {
				fmt.Fprintln(cmd.OutOrStdout(), "✓ Files removed")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "No files to remove")
			}
			return nil
		},
	}
}

func deleteCmd(newClient func() *client.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a video and its files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newClient().Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted %s\n", args[0])
			return nil
		},
	}
}

func statusCmd(newClient func() *client.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "status <id>",
		Short: "Show download status of a video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newClient().Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printStatus(cmd.OutOrStdout(), s)
			return nil
		},
	}
}

func printStatus(out io.Writer, s *client.Status) {
	fmt.Fprintf(out, "ID:              %s\n", s.VideoID)
	fmt.Fprintf(out, "  Title:         %s\n", s.Title)
	fmt.Fprintf(out, "  URL:           %s\n", s.DownloadURL)
	fmt.Fprintf(out, "  Status:        %s\n", s.DatabaseStatus)
	fmt.Fprintf(out, "  Worker:        %s (alive: %v)\n", s.ThreadStatus, s.ThreadAlive)
	if s.ElapsedSeconds != nil {
		fmt.Fprintf(out, "  Elapsed:       %s\n", time.Duration(*s.ElapsedSeconds*float64(time.Second)).Round(time.Second))
	}
	fmt.Fprintf(out, "  File:          %s\n", s.FileStatus)
	fmt.Fprintf(out, "  Health:        %s\n", s.Health)
	if s.ErrorMessage != "" {
		fmt.Fprintf(out, "  Error:         %s\n", s.ErrorMessage)
	}
}

func listCmd(newClient func() *client.Client) *cobra.Command {
	var (
		limit  int
		status string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent videos",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient()
			videos, err := c.List(cmd.Context(), client.ListOptions{Limit: limit, Status: status})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(videos) == 0 {
				fmt.Fprintln(out, "No videos found")
				return nil
			}

			fmt.Fprintf(out, "Recent videos (%d):\n\n", len(videos))
			for _, v := range videos {
				fmt.Fprintf(out, "ID: %s\n", v.ID)
				fmt.Fprintf(out, "  Title:  %s\n", v.Title)
				fmt.Fprintf(out, "  URL:    %s\n", v.DownloadURL)
				fmt.Fprintf(out, "  Status: %s\n", v.Status)
				if v.VideoFile != nil {
					fmt.Fprintf(out, "  File:   %s (%s, %s)\n", *v.VideoFile, v.FileSizeHuman, v.DurationHuman)
					fmt.Fprintf(out, "  Stream: %s\n", c.StreamURL(v.ID))
				}
				if v.ErrorMessage != "" {
					fmt.Fprintf(out, "  Error:  %s\n", v.ErrorMessage)
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of videos")
	cmd.Flags().StringVarP(&status, "status", "s", "", "Only videos in this status (pending, downloading, completed, error)")

	return cmd
}

func statsCmd(newClient func() *client.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show library statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newClient().Stats(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Library Statistics:")
			fmt.Fprintln(out)
			fmt.Fprintf(out, "  Pending:      %d\n", s.Pending)
			fmt.Fprintf(out, "  Downloading:  %d\n", s.Downloading)
			fmt.Fprintf(out, "  Completed:    %d\n", s.Completed)
			fmt.Fprintf(out, "  Error:        %d\n", s.Error)
			fmt.Fprintf(out, "  Total:        %d\n", s.Total)
			fmt.Fprintln(out)
			fmt.Fprintf(out, "  Stored:       %d bytes\n", s.TotalSize)
			fmt.Fprintf(out, "  Workers:      %d active\n", s.ActiveWorkers)
			return nil
		},
	}
}

func watchCmd(newClient func() *client.Client) *cobra.Command {
	var (
		interval time.Duration
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Interactive monitor of downloads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient()
			if err := c.Ping(cmd.Context()); err != nil {
				return err
			}

			p := tea.NewProgram(monitor.NewModel(c, interval, limit), tea.WithAltScreen())
			_, err := p.Run()
			return err
		},
	}

	cmd.Flags().DurationVarP(&interval, "interval", "i", monitor.DefaultRefresh, "Refresh interval")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of videos shown")

	return cmd
}

func convertCmd() *cobra.Command {
	var (
		ffmpegPath  string
		ffprobePath string
		checkOnly   bool
	)

	cmd := &cobra.Command{
		Use:   "convert <files...>",
		Short: "Convert local videos to streamable mp4",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ff := postprocessor.NewFFmpegProcessor(postprocessor.Options{
				FFmpegPath:  ffmpegPath,
				FFprobePath: ffprobePath,
			})
			if !checkOnly {
				if err := ff.CheckFFmpegInstalled(); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			failed := 0
			for _, path := range args {
				if !ff.NeedsConversion(path) {
					fmt.Fprintf(out, "  ✓ %s (already streamable)\n", path)
					continue
				}
				if checkOnly {
					fmt.Fprintf(out, "  • %s needs conversion\n", path)
					continue
				}

				fmt.Fprintf(out, "  ⏳ Converting %s...\n", path)
				converted, err := ff.Convert(cmd.Context(), path)
				if err != nil {
					failed++
					fmt.Fprintf(out, "  ✗ %s: %s\n", path, strings.SplitN(err.Error(), "\n", 2)[0])
					continue
				}
				fmt.Fprintf(out, "  ✓ %s\n", converted)
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d conversions failed", failed, len(args))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&ffmpegPath, "ffmpeg", "ffmpeg", "Path to the ffmpeg binary")
	cmd.Flags().StringVar(&ffprobePath, "ffprobe", "ffprobe", "Path to the ffprobe binary")
	cmd.Flags().BoolVar(&checkOnly, "check-only", false, "Only report which files need conversion")

	return cmd
}
