package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/surge-downloader/ferry/internal/tui/colors"
	"github.com/surge-downloader/ferry/internal/tui/components"
)

var (
	titleStyle  = lipgloss.NewStyle().Foreground(colors.NeonPink).Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(colors.LightGray)
	valueStyle  = lipgloss.NewStyle().Foreground(colors.NeonCyan).Bold(true)
	errorStyle  = lipgloss.NewStyle().Foreground(colors.StateError)
	noticeStyle = lipgloss.NewStyle().Foreground(colors.StatePaused)
)

func (m Model) View() string {
	st := m.status()
	inner := m.width - 2 - 2*DefaultPaddingX

	lines := []string{
		dimStyle.Render(m.url),
		"",
		m.barLine(),
	}

	if m.current.Message != "" {
		lines = append(lines, m.current.String())
	} else {
		lines = append(lines, dimStyle.Render("Waiting..."))
	}
	if m.err != nil {
		lines = append(lines, errorStyle.Render("Error: "+m.err.Error()))
	}
	if m.notice != "" {
		lines = append(lines, noticeStyle.Render(m.notice))
	}

	lines = append(lines,
		"",
		fmt.Sprintf("%s %s   %s %s",
			dimStyle.Render("speed"), valueStyle.Render(humanize.IBytes(m.current.Rate)+"/s"),
			dimStyle.Render("top"), valueStyle.Render(humanize.IBytes(m.topRate)+"/s")),
		renderSpeedGraph(m.history, inner, GraphHeight, m.topRate),
		"",
		m.help.View(Keys),
	)

	content := lipgloss.NewStyle().Padding(0, DefaultPaddingX).Render(strings.Join(lines, "\n"))
	box := components.RenderBox(
		titleStyle.Render(" "+m.title+" "),
		" "+st.Render()+" ",
		content, m.width, st.Color())
	if m.quitting {
		box += "\n"
	}
	return box
}

func (m Model) barLine() string {
	pct, known := m.current.Percent()
	if !known {
		return dimStyle.Render("size unknown, " + humanize.IBytes(m.current.Value) + " so far")
	}
	return m.bar.ViewAs(pct/100) + fmt.Sprintf(" %5.1f%%", pct)
}
