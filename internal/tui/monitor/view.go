package monitor

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/elsanchez/smart-stream/internal/domain"
	"github.com/elsanchez/smart-stream/pkg/client"
)

// Styles with adaptive colors for light/dark backgrounds
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "63", Dark: "205"}).
			MarginLeft(2)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "240", Dark: "250"})

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "160", Dark: "9"}).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "34", Dark: "10"}).
			Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "130", Dark: "214"})

	spinnerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "63", Dark: "205"})

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.AdaptiveColor{Light: "63", Dark: "63"}).
			Padding(1, 2)
)

// View renders the current view
func (m Model) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}

	var content string

	switch m.currentView {
	case viewAdd:
		content = m.viewAdd()
	case viewDetail:
		content = m.viewDetail()
	case viewConfirmDelete:
		content = m.viewConfirmDelete()
	case viewHelp:
		content = m.viewHelp()
	default:
		content = m.viewList()
	}

	// Add status/error messages
	if m.errorMessage != "" {
		content += "\n" + errorStyle.Render("Error: "+m.errorMessage)
	} else if m.statusMessage != "" {
		content += "\n" + successStyle.Render(m.statusMessage)
	}

	if m.loading {
		content += "\n" + m.spinner.View() + " Loading..."
	}

	return content
}

// statusIcon returns the glyph shown next to each video
func statusIcon(status string) string {
	switch domain.VideoStatus(status) {
	case domain.StatusCompleted:
		return "✓"
	case domain.StatusDownloading:
		return "⇣"
	case domain.StatusError:
		return "✗"
	case domain.StatusPending:
		return "…"
	default:
		return "?"
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func (m Model) viewStats() string {
	s := m.stats
	if s == nil {
		return "  waiting for daemon...\n"
	}
	return fmt.Sprintf("  %d videos • %d pending • %d downloading (%d workers) • %d completed • %d error • %s stored\n",
		s.Total, s.Pending, s.Downloading, s.ActiveWorkers, s.Completed, s.Error, domain.HumanSize(s.TotalSize))
}

// viewList renders the video list view
func (m Model) viewList() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("▶ Smart Stream Monitor") + "\n\n")
	b.WriteString(m.viewStats() + "\n")

	if len(m.videos) == 0 {
		b.WriteString("  No videos yet. Press 'a' to add one.\n")
	} else {
		b.WriteString(fmt.Sprintf("  %-2s %-40s %-12s %10s %9s\n", "", "Title", "Status", "Size", "Duration"))
		b.WriteString("  " + strings.Repeat("─", 78) + "\n")

		for i, v := range m.videos {
			cursor := "  "
			if i == m.cursor {
				cursor = "▸ "
			}

			size := v.FileSizeHuman
			if v.FileSize == 0 {
				size = "-"
			}
			duration := v.DurationHuman
			if v.Duration == 0 {
				duration = "-"
			}

			line := fmt.Sprintf("%s%s %-40s %-12s %10s %9s",
				cursor, statusIcon(v.Status), truncate(v.Title, 40), v.Status, size, duration)
			if v.Status == string(domain.StatusError) {
				line = warnStyle.Render(line)
			}
			b.WriteString(line + "\n")

			if i == m.cursor && v.ErrorMessage != "" {
				b.WriteString("     " + helpStyle.Render(truncate(v.ErrorMessage, 74)) + "\n")
			}
		}
	}

	if !m.lastRefresh.IsZero() {
		b.WriteString("\n  " + helpStyle.Render("updated "+m.lastRefresh.Format("15:04:05")) + "\n")
	}

	help := "\n" + helpStyle.Render(
		"  ↑/k up • ↓/j down • enter status • a add • d download • r retry • x reset • c clear files • D delete • R refresh • ? help • q quit",
	)

	return b.String() + help
}

// viewAdd renders the add form
func (m Model) viewAdd() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Add Video") + "\n\n")
	b.WriteString("  Download URL:\n")
	b.WriteString("  " + m.urlInput.View() + "\n\n")
	b.WriteString("  The download starts as soon as the video is registered.\n")

	help := helpStyle.Render("  Enter add • Esc cancel")
	return boxStyle.Render(b.String()) + "\n\n" + help
}

// viewDetail renders the worker status of one video
func (m Model) viewDetail() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Download Status") + "\n\n")

	s := m.detail
	if s == nil {
		b.WriteString("  " + m.spinner.View() + " Loading status...\n")
		return b.String()
	}

	alive := "no"
	if s.ThreadAlive {
		alive = "yes"
	}

	rows := [][2]string{
		{"ID", s.VideoID},
		{"Title", s.Title},
		{"URL", s.DownloadURL},
		{"Database status", s.DatabaseStatus},
		{"Worker status", s.ThreadStatus},
		{"Worker alive", alive},
		{"File", s.FileStatus},
		{"Health", s.Health},
		{"Created", s.CreatedAt},
		{"Updated", s.UpdatedAt},
	}
	if s.StartedAt != nil {
		rows = append(rows, [2]string{"Started", *s.StartedAt})
	}
	if s.ElapsedSeconds != nil {
		rows = append(rows, [2]string{"Elapsed", domain.HumanDuration(int(*s.ElapsedSeconds))})
	}
	if s.ErrorMessage != "" {
		rows = append(rows, [2]string{"Error", s.ErrorMessage})
	}

	for _, r := range rows {
		b.WriteString(fmt.Sprintf("  %-16s %s\n", r[0]+":", r[1]))
	}

	if s.Health != "" && s.Health != "ok" {
		b.WriteString("\n  " + warnStyle.Render(healthHint(s.Health)) + "\n")
	}

	return boxStyle.Render(b.String()) + "\n\n" + helpStyle.Render("  Press any key to return to list")
}

func healthHint(health string) string {
	switch health {
	case "stalled":
		return "⚠ Marked downloading but no worker is running. Press 'r' to retry."
	case "missing_artifact":
		return "⚠ Completed but the file is gone. Press 'c' to clear and download again."
	default:
		return "⚠ " + health
	}
}

// viewConfirmDelete asks for confirmation
func (m Model) viewConfirmDelete() string {
	v, _ := m.selected()
	return boxStyle.Render(fmt.Sprintf("Delete %q and its files?\n\n  y confirm • any other key cancel", v.Title))
}

// viewHelp renders the help screen
func (m Model) viewHelp() string {
	title := titleStyle.Render("Help")

	help := `
  Navigation:
    ↑/k        Move up
    ↓/j        Move down
    Enter      Show download status
    Esc        Go back / Cancel
    q          Quit

  Actions (from list view):
    a          Add a video by URL
    d          Start download
    r          Retry a failed or stalled download
    x          Reset to pending
    c          Remove downloaded files
    D          Delete video and files
    R          Refresh now
    ?          Show this help

  Status icons:
    …  pending    ⇣  downloading    ✓  completed    ✗  error
`

	return title + "\n" + help + "\n" + helpStyle.Render("  Press any key to return")
}

// compile-time check
var _ API = (*client.Client)(nil)
