package colors

import "github.com/charmbracelet/lipgloss"

// Palette
var (
	NeonPurple = lipgloss.Color("#bd93f9")
	NeonPink   = lipgloss.Color("#ff79c6")
	NeonCyan   = lipgloss.Color("#8be9fd")
	Gray       = lipgloss.Color("#44475a") // borders, grid
	LightGray  = lipgloss.Color("#a9b1d6") // secondary text
	White      = lipgloss.Color("#f8f8f2")
)

// Transfer states
var (
	StateIdle        = lipgloss.Color("#6272a4")
	StateError       = lipgloss.Color("#ff5555")
	StatePaused      = lipgloss.Color("#ffb86c")
	StateDownloading = lipgloss.Color("#50fa7b")
	StateDone        = lipgloss.Color("#bd93f9")
	StateConnecting  = lipgloss.Color("#f1fa8c")
)

// Progress bar gradient
const (
	ProgressStart = "#ff79c6"
	ProgressEnd   = "#bd93f9"
)
