package monitor

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/elsanchez/smart-stream/pkg/client"
)

// Async commands that return tea.Msg

const requestTimeout = 10 * time.Second

func loadVideos(api API, limit int) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		videos, err := api.List(ctx, client.ListOptions{Limit: limit})
		if err != nil {
			return videosLoadedMsg{err: err}
		}

		stats, err := api.Stats(ctx)
		return videosLoadedMsg{videos: videos, stats: stats, err: err}
	}
}

func loadStatus(api API, id string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		status, err := api.Status(ctx, id)
		return statusLoadedMsg{status: status, err: err}
	}
}

func tick(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// action runs fn against the daemon and reports the outcome
func action(fn func(ctx context.Context) (string, error)) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		message, err := fn(ctx)
		return actionCompleteMsg{message: message, err: err}
	}
}

func addVideo(api API, url string) tea.Cmd {
	return action(func(ctx context.Context) (string, error) {
		result, err := api.AddVideo(ctx, &client.AddVideoRequest{DownloadURL: url})
		if err != nil {
			return "", err
		}
		if result.DownloadStarted {
			return "✓ Added and downloading " + result.Video.Title, nil
		}
		return "✓ Added " + result.Video.Title, nil
	})
}

func startDownload(api API, v client.Video) tea.Cmd {
	return action(func(ctx context.Context) (string, error) {
		started, err := api.Download(ctx, v.ID)
		if err != nil {
			return "", err
		}
		if !started {
			return fmt.Sprintf("Download not started (%s)", v.Status), nil
		}
		return "✓ Download started: " + v.Title, nil
	})
}

func retryVideo(api API, v client.Video) tea.Cmd {
	return action(func(ctx context.Context) (string, error) {
		started, err := api.Retry(ctx, v.ID)
		if err != nil {
			return "", err
		}
		if !started {
			return "Retry did not start a download", nil
		}
		return "✓ Retrying " + v.Title, nil
	})
}

func resetVideo(api API, v client.Video) tea.Cmd {
	return action(func(ctx context.Context) (string, error) {
		if _, err := api.Reset(ctx, v.ID); err != nil {
			return "", err
		}
		return "✓ Reset to pending: " + v.Title, nil
	})
}

func clearFiles(api API, v client.Video) tea.Cmd {
	return action(func(ctx context.Context) (string, error) {
		removed, err := api.ClearFiles(ctx, v.ID)
		if err != nil {
			return "", err
		}
		if !removed {
			return "No files to remove for " + v.Title, nil
		}
		return "✓ Files removed: " + v.Title, nil
	})
}

func deleteVideo(api API, v client.Video) tea.Cmd {
	return action(func(ctx context.Context) (string, error) {
		if err := api.Delete(ctx, v.ID); err != nil {
			return "", err
		}
		return "✓ Deleted " + v.Title, nil
	})
}
