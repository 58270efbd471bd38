package monitor

import (
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/elsanchez/smart-stream/internal/downloader"
)

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		cmds = append(cmds, tick(m.refresh))
		if !m.loading {
			cmds = append(cmds, loadVideos(m.api, m.limit))
		}
		if m.currentView == viewDetail && m.detail != nil {
			cmds = append(cmds, loadStatus(m.api, m.detail.VideoID))
		}
		return m, tea.Batch(cmds...)

	case videosLoadedMsg:
		m.loading = false
		if msg.err != nil {
			m.errorMessage = msg.err.Error()
			return m, nil
		}
		m.errorMessage = ""
		m.videos = msg.videos
		m.stats = msg.stats
		m.lastRefresh = time.Now()
		if m.cursor >= len(m.videos) {
			m.cursor = len(m.videos) - 1
		}
		if m.cursor < 0 {
			m.cursor = 0
		}
		return m, nil

	case statusLoadedMsg:
		if msg.err != nil {
			m.errorMessage = msg.err.Error()
			return m, nil
		}
		m.detail = msg.status
		return m, nil

	case actionCompleteMsg:
		if msg.err != nil {
			m.errorMessage = msg.err.Error()
			m.statusMessage = ""
		} else {
			m.errorMessage = ""
			m.statusMessage = msg.message
		}
		m.loading = true
		return m, loadVideos(m.api, m.limit)

	case spinner.TickMsg:
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	if m.currentView == viewAdd {
		m.urlInput, cmd = m.urlInput.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// handleKeyPress handles keyboard input
func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, key.NewBinding(key.WithKeys("ctrl+c"))) {
		m.quitting = true
		return m, tea.Quit
	}

	switch m.currentView {
	case viewList:
		m.statusMessage = ""
		return m.handleListKeys(msg)
	case viewAdd:
		return m.handleAddKeys(msg)
	case viewConfirmDelete:
		return m.handleConfirmKeys(msg)
	case viewDetail, viewHelp:
		return m.handleDialogKeys(msg)
	}
	return m, nil
}

// handleListKeys handles keys in the list view
func (m Model) handleListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, key.NewBinding(key.WithKeys("q"))):
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, key.NewBinding(key.WithKeys("up", "k"))):
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil

	case key.Matches(msg, key.NewBinding(key.WithKeys("down", "j"))):
		if m.cursor < len(m.videos)-1 {
			m.cursor++
		}
		return m, nil

	case key.Matches(msg, key.NewBinding(key.WithKeys("a"))):
		m.currentView = viewAdd
		m.urlInput.SetValue("")
		m.urlInput.Focus()
		return m, textinput.Blink

	case key.Matches(msg, key.NewBinding(key.WithKeys("R"))):
		m.loading = true
		return m, loadVideos(m.api, m.limit)

	case key.Matches(msg, key.NewBinding(key.WithKeys("?"))):
		m.currentView = viewHelp
		return m, nil
	}

	v, ok := m.selected()
	if !ok {
		return m, nil
	}

	switch {
	case key.Matches(msg, key.NewBinding(key.WithKeys("enter"))):
		m.currentView = viewDetail
		m.detail = nil
		return m, loadStatus(m.api, v.ID)

	case key.Matches(msg, key.NewBinding(key.WithKeys("d"))):
		return m, startDownload(m.api, v)

	case key.Matches(msg, key.NewBinding(key.WithKeys("r"))):
		return m, retryVideo(m.api, v)

	case key.Matches(msg, key.NewBinding(key.WithKeys("x"))):
		return m, resetVideo(m.api, v)

	case key.Matches(msg, key.NewBinding(key.WithKeys("c"))):
		return m, clearFiles(m.api, v)

	case key.Matches(msg, key.NewBinding(key.WithKeys("D"))):
		m.currentView = viewConfirmDelete
		return m, nil
	}

	return m, nil
}

// handleAddKeys handles keys in the add form
func (m Model) handleAddKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, key.NewBinding(key.WithKeys("esc"))):
		m.currentView = viewList
		m.urlInput.Blur()
		return m, nil

	case key.Matches(msg, key.NewBinding(key.WithKeys("enter"))):
		url := m.urlInput.Value()
		if err := downloader.ValidateURL(url); err != nil {
			m.errorMessage = err.Error()
			return m, nil
		}
		m.errorMessage = ""
		m.currentView = viewList
		m.urlInput.Blur()
		return m, addVideo(m.api, url)
	}

	var cmd tea.Cmd
	m.urlInput, cmd = m.urlInput.Update(msg)
	return m, cmd
}

// handleConfirmKeys asks before deleting the selected video
func (m Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.currentView = viewList

	v, ok := m.selected()
	if !ok || !key.Matches(msg, key.NewBinding(key.WithKeys("y", "Y"))) {
		m.statusMessage = "Delete cancelled"
		return m, nil
	}
	return m, deleteVideo(m.api, v)
}

// handleDialogKeys handles keys in dialog views (detail, help)
func (m Model) handleDialogKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Any key returns to list
	m.currentView = viewList
	m.detail = nil
	return m, nil
}
