package monitor

import (
	"time"

	"github.com/elsanchez/smart-stream/pkg/client"
)

// Message types for async operations

type videosLoadedMsg struct {
	videos []client.Video
	stats  *client.Stats
	err    error
}

type statusLoadedMsg struct {
	status *client.Status
	err    error
}

type actionCompleteMsg struct {
	message string
	err     error
}

type tickMsg time.Time
