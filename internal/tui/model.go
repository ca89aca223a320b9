// Package tui renders a single transfer in the terminal. It polls the
// transfer's progress observer on a timer instead of being pushed updates.
package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"

	"github.com/surge-downloader/ferry/internal/download"
	enginep "github.com/surge-downloader/ferry/internal/engine/progress"
	"github.com/surge-downloader/ferry/internal/engine/types"
	"github.com/surge-downloader/ferry/internal/tui/colors"
)

// Transfer is the part of download.Controller the view drives
type Transfer interface {
	Start() error
	Pause() error
	Cancel() error
	State() download.State
	Err() error
	Observer() *enginep.Observer
}

type keyMap struct {
	Toggle key.Binding
	Cancel key.Binding
	Quit   key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Toggle, k.Cancel, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

var Keys = keyMap{
	Toggle: key.NewBinding(
		key.WithKeys("p"),
		key.WithHelp("p", "pause/resume"),
	),
	Cancel: key.NewBinding(
		key.WithKeys("c"),
		key.WithHelp("c", "cancel"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// Model is the bubbletea model for one transfer
type Model struct {
	transfer Transfer
	title    string
	url      string
	interval time.Duration

	bar  progress.Model
	help help.Model

	// last poll
	current types.Progress
	state   download.State
	err     error

	history   []uint64 // one rate sample per historyInterval
	sampledAt time.Time
	topRate   uint64

	notice   string // result of the last key action, if it failed
	width    int
	done     bool
	quitting bool
}

// NewModel builds the view. interval is how often the observer is polled.
func NewModel(t Transfer, title, url string, interval time.Duration) Model {
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	bar := progress.New(
		progress.WithGradient(colors.ProgressStart, colors.ProgressEnd),
		progress.WithoutPercentage(),
	)
	bar.Width = DefaultWidth - ProgressBarWidthOffset
	return Model{
		transfer: t,
		title:    title,
		url:      url,
		interval: interval,
		bar:      bar,
		help:     help.New(),
		width:    DefaultWidth,
		history:  make([]uint64, 0, HistoryLength),
	}
}

// Done reports whether the transfer finished while the view was up
func (m Model) Done() bool {
	return m.done
}
