package tui

const (
	// DefaultWidth is used until the terminal reports its size
	DefaultWidth = 72
	MaxWidth     = 110

	// ProgressBarWidthOffset leaves room for the box border and the percent label
	ProgressBarWidthOffset = 12
	DefaultPaddingX        = 1

	GraphHeight = 4
	// HistoryLength is the number of rate samples kept for the graph
	HistoryLength = 60
)
