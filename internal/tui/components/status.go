package components

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/surge-downloader/ferry/internal/download"
	"github.com/surge-downloader/ferry/internal/engine/single"
	"github.com/surge-downloader/ferry/internal/tui/colors"
)

// TransferStatus is what the view shows for a transfer
type TransferStatus int

const (
	StatusIdle TransferStatus = iota
	StatusConnecting
	StatusDownloading
	StatusPaused
	StatusComplete
	StatusCanceled
	StatusError
)

type statusInfo struct {
	icon  string
	label string
	color lipgloss.Color
}

var statusMap = map[TransferStatus]statusInfo{
	StatusIdle:        {"○", "Idle", colors.StateIdle},
	StatusConnecting:  {"⋯", "Connecting", colors.StateConnecting},
	StatusDownloading: {"⬇", "Downloading", colors.StateDownloading},
	StatusPaused:      {"⏸", "Paused", colors.StatePaused},
	StatusComplete:    {"✔", "Completed", colors.StateDone},
	StatusCanceled:    {"✖", "Canceled", colors.StateIdle},
	StatusError:       {"✖", "Error", colors.StateError},
}

func (s TransferStatus) Icon() string {
	if info, ok := statusMap[s]; ok {
		return info.icon
	}
	return "?"
}

func (s TransferStatus) Label() string {
	if info, ok := statusMap[s]; ok {
		return info.label
	}
	return "Unknown"
}

func (s TransferStatus) Color() lipgloss.Color {
	if info, ok := statusMap[s]; ok {
		return info.color
	}
	return colors.Gray
}

// Render returns the styled icon and label
func (s TransferStatus) Render() string {
	return lipgloss.NewStyle().Foreground(s.Color()).Render(s.Icon() + " " + s.Label())
}

// DetermineStatus maps the controller state and the last progress message
// to a display status. A failure wins over everything else.
func DetermineStatus(running, paused, failed bool, message string) TransferStatus {
	switch {
	case failed:
		return StatusError
	case paused:
		return StatusPaused
	case running && message == single.MsgConnecting:
		return StatusConnecting
	case running:
		return StatusDownloading
	case message == download.MsgFinished:
		return StatusComplete
	case message == download.MsgCanceled:
		return StatusCanceled
	default:
		return StatusIdle
	}
}
