package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/surge-downloader/ferry/internal/tui/colors"
)

var graphGradient = []lipgloss.Color{
	lipgloss.Color("#5f005f"), // bottom
	lipgloss.Color("#8700af"),
	lipgloss.Color("#af00d7"),
	lipgloss.Color("#ff00ff"), // top
}

// renderSpeedGraph draws rate samples as a bar graph over a dashed grid.
// Samples are scaled against maxVal and stretched to fill width.
func renderSpeedGraph(data []uint64, width, height int, maxVal uint64) string {
	if width < 1 || height < 1 {
		return ""
	}

	grid := lipgloss.NewStyle().Foreground(colors.Gray)
	rows := make([][]string, height)
	for i := range rows {
		rows[i] = make([]string, width)
		for j := range rows[i] {
			switch {
			case i == height-1:
				rows[i][j] = grid.Render("─")
			case i%2 == 0:
				rows[i][j] = grid.Render("╌")
			default:
				rows[i][j] = " "
			}
		}
	}

	blocks := []string{" ", "▂", "▃", "▄", "▅", "▆", "▇", "█"}

	rowStyles := make([]lipgloss.Style, height)
	for y := range rowStyles {
		idx := min(y*len(graphGradient)/height, len(graphGradient)-1)
		rowStyles[y] = lipgloss.NewStyle().Foreground(graphGradient[idx])
	}

	if len(data) > 0 && maxVal > 0 {
		colsPerPoint := float64(width) / float64(len(data))
		for i, val := range data {
			pct := min(float64(val)/float64(maxVal), 1)
			subBlocks := pct * float64(height) * 8

			start := int(float64(i) * colsPerPoint)
			end := min(int(float64(i+1)*colsPerPoint), width)
			for col := start; col < end; col++ {
				for y := 0; y < height; y++ {
					fill := subBlocks - float64(y*8)
					if fill <= 0 {
						break
					}
					char := "█"
					if fill < 8 {
						char = blocks[int(fill)]
					}
					rows[height-1-y][col] = rowStyles[y].Render(char)
				}
			}
		}
	}

	var b strings.Builder
	for i, row := range rows {
		b.WriteString(strings.Join(row, ""))
		if i < height-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}
