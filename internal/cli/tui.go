package cli

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/matzehuels/lilyenv/pkg/catalog"
	"github.com/matzehuels/lilyenv/pkg/version"
)

// List styles
var (
	listDimStyle = lipgloss.NewStyle().Foreground(colorDim)
)

// =============================================================================
// BuildPickerModel - Interactive build selection
// =============================================================================

// BuildPickerModel is the bubbletea model for interactive build selection.
type BuildPickerModel struct {
	Entries   []catalog.Entry
	Installed map[version.BuildID]bool
	Cursor    int
	Selected  *catalog.Entry
	Height    int
	Offset    int
}

// NewBuildPickerModel creates a picker over entries, newest first.
func NewBuildPickerModel(entries []catalog.Entry, installed map[version.BuildID]bool) BuildPickerModel {
	return BuildPickerModel{
		Entries:   entries,
		Installed: installed,
		Height:    15,
	}
}

func (m BuildPickerModel) Init() tea.Cmd {
	return nil
}

func (m BuildPickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "up", "k":
			if m.Cursor > 0 {
				m.Cursor--
				if m.Cursor < m.Offset {
					m.Offset = m.Cursor
				}
			}
		case "down", "j":
			if m.Cursor < len(m.Entries)-1 {
				m.Cursor++
				if m.Cursor >= m.Offset+m.Height {
					m.Offset = m.Cursor - m.Height + 1
				}
			}
		case "enter":
			if len(m.Entries) == 0 {
				return m, tea.Quit
			}
			e := m.Entries[m.Cursor]
			m.Selected = &e
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.Height = max(msg.Height-6, 5)
	}
	return m, nil
}

func (m BuildPickerModel) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render("Select Build"))
	b.WriteString("\n")
	b.WriteString(listDimStyle.Render("↑/↓ navigate  ⏎ install  q quit"))
	b.WriteString("\n\n")

	end := min(m.Offset+m.Height, len(m.Entries))

	rows := [][]string{}
	for i := m.Offset; i < end; i++ {
		e := m.Entries[i]
		cursor := "  "
		if i == m.Cursor {
			cursor = "▸ "
		}
		status := ""
		if m.Installed[e.Build] {
			status = iconSuccess
		}
		rows = append(rows, []string{cursor, e.Build.String(), e.Build.Variant.Label(), e.ReleaseTag, formatSize(e.Size), status})
	}

	headerStyle := lipgloss.NewStyle().Foreground(colorGray).Bold(true)

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("", "Build", "Variant", "Release", "Size", "Installed").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return headerStyle
			}
			idx := m.Offset + row
			if idx >= len(m.Entries) {
				return lipgloss.NewStyle()
			}
			base := lipgloss.NewStyle()
			if m.Installed[m.Entries[idx].Build] {
				base = base.Foreground(colorGreen)
			}
			if idx == m.Cursor {
				return base.Bold(true)
			}
			if col >= 2 {
				return base.Foreground(colorDim)
			}
			return base
		})

	b.WriteString(t.Render())
	b.WriteString("\n\n")
	b.WriteString(listDimStyle.Render(fmt.Sprintf("  [%d/%d]", m.Cursor+1, len(m.Entries))))

	return b.String()
}

// =============================================================================
// Helpers
// =============================================================================

// formatSize renders a byte count as MB, or a dash when unknown.
func formatSize(n int64) string {
	if n <= 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
}
