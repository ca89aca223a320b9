package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// RenderBox draws a rounded box with titles set into the top border:
//
//	╭─ report.pdf ─────────── ⬇ Downloading ─╮
//
// Titles are pre-styled. Lines wider than the box are cut.
func RenderBox(leftTitle, rightTitle, content string, width int, borderColor lipgloss.Color) string {
	const (
		topLeft     = "╭"
		topRight    = "╮"
		bottomLeft  = "╰"
		bottomRight = "╯"
		horizontal  = "─"
		vertical    = "│"
	)
	innerWidth := max(width-2, 1)
	border := lipgloss.NewStyle().Foreground(borderColor)

	fill := innerWidth - 1 - lipgloss.Width(leftTitle) - lipgloss.Width(rightTitle)
	if rightTitle != "" {
		fill--
	}
	fill = max(fill, 0)

	top := border.Render(topLeft+horizontal) + leftTitle + border.Render(strings.Repeat(horizontal, fill))
	if rightTitle != "" {
		top += rightTitle + border.Render(horizontal)
	}
	top += border.Render(topRight)

	lines := strings.Split(content, "\n")
	wrapped := make([]string, 0, len(lines))
	for _, line := range lines {
		w := lipgloss.Width(line)
		switch {
		case w < innerWidth:
			line += strings.Repeat(" ", innerWidth-w)
		case w > innerWidth:
			line = lipgloss.NewStyle().MaxWidth(innerWidth).Render(line)
			line += strings.Repeat(" ", max(innerWidth-lipgloss.Width(line), 0))
		}
		wrapped = append(wrapped, border.Render(vertical)+line+border.Render(vertical))
	}

	bottom := border.Render(bottomLeft + strings.Repeat(horizontal, innerWidth) + bottomRight)
	return lipgloss.JoinVertical(lipgloss.Left, top, strings.Join(wrapped, "\n"), bottom)
}
