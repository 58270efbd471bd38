package monitor

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/elsanchez/smart-stream/pkg/client"
)

// DefaultRefresh is how often the monitor polls the daemon
const DefaultRefresh = 2 * time.Second

// API is the subset of the daemon client used by the monitor
type API interface {
	List(ctx context.Context, opts client.ListOptions) ([]client.Video, error)
	Stats(ctx context.Context) (*client.Stats, error)
	Status(ctx context.Context, id string) (*client.Status, error)
	AddVideo(ctx context.Context, req *client.AddVideoRequest) (*client.AddVideoResult, error)
	Download(ctx context.Context, id string) (bool, error)
	Retry(ctx context.Context, id string) (bool, error)
	Reset(ctx context.Context, id string) (*client.Video, error)
	ClearFiles(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id string) error
}

// view represents different screens in the TUI
type view int

const (
	viewList view = iota
	viewAdd
	viewDetail
	viewConfirmDelete
	viewHelp
)

// Model is the Bubbletea model for the download monitor
type Model struct {
	// Navigation
	currentView view
	width       int
	height      int
	quitting    bool

	// Dependencies
	api     API
	refresh time.Duration
	limit   int

	// State
	videos []client.Video
	stats  *client.Stats
	detail *client.Status
	cursor int

	// Components
	urlInput textinput.Model
	spinner  spinner.Model

	// UI state
	loading       bool
	lastRefresh   time.Time
	statusMessage string
	errorMessage  string
}

// NewModel creates a new monitor model
func NewModel(api API, refresh time.Duration, limit int) Model {
	if refresh <= 0 {
		refresh = DefaultRefresh
	}
	if limit <= 0 {
		limit = 50
	}

	urlInput := textinput.New()
	urlInput.Placeholder = "https://example.com/video.mp4"
	urlInput.CharLimit = 2048
	urlInput.Width = 60

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = spinnerStyle

	return Model{
		currentView: viewList,
		api:         api,
		refresh:     refresh,
		limit:       limit,
		urlInput:    urlInput,
		spinner:     s,
		loading:     true,
	}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		loadVideos(m.api, m.limit),
		tick(m.refresh),
		m.spinner.Tick,
	)
}

// selected returns the video under the cursor
func (m Model) selected() (client.Video, bool) {
	if m.cursor < 0 || m.cursor >= len(m.videos) {
		return client.Video{}, false
	}
	return m.videos[m.cursor], true
}
